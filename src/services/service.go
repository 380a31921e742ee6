package services

import (
	"context"

	"github.com/square-key-labs/strawgo-intercom/src/frames"
	"github.com/square-key-labs/strawgo-intercom/src/services/telnyx"
)

// CallControl is the set of telephony actions the intercom issues against a
// live call. Implementations bound every call with a timeout and never retry.
type CallControl interface {
	Answer(ctx context.Context, callID string, opts telnyx.AnswerOptions) error
	Transfer(ctx context.Context, callID string, opts telnyx.TransferOptions) error
	StartPlayback(ctx context.Context, callID string, opts telnyx.PlaybackOptions) error
	SendDTMF(ctx context.Context, callID string, digits string, durationMs int) error
	Hangup(ctx context.Context, callID string) error
}

// Transcriber opens one streaming transcription link per call.
type Transcriber interface {
	// Dial connects and sends the session configuration. The link's receive
	// loop is running when Dial returns.
	Dial(ctx context.Context, callID string) (TranscriptionLink, error)
}

// TranscriptionLink is a live connection to the transcription service owned
// by exactly one call session.
type TranscriptionLink interface {
	// AppendAudio sends one base64 PCM chunk (24 kHz L16).
	AppendAudio(audioBase64 string) error

	// Events yields TranscriptFrame, ConnectionErrorFrame and finally one
	// ConnectionClosedFrame, after which the channel is closed.
	Events() <-chan frames.Frame

	// Close actively closes the connection. Safe to call more than once.
	Close() error
}

var _ CallControl = (*telnyx.Client)(nil)
