// Package openai streams call audio to the OpenAI realtime transcription
// endpoint and turns its server events into frames.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/square-key-labs/strawgo-intercom/src/audio"
	"github.com/square-key-labs/strawgo-intercom/src/frames"
	"github.com/square-key-labs/strawgo-intercom/src/logger"
	"github.com/square-key-labs/strawgo-intercom/src/services"
)

const (
	DefaultURL      = "wss://api.openai.com/v1/realtime?intent=transcription"
	DefaultModel    = "whisper-1"
	DefaultLanguage = "en"
	DefaultPrompt   = "Listen for surrealist phrases of a few words long. Repeat exactly what you hear, in English."
)

// Client event types.
const (
	EventTypeSessionUpdate          = "session.update"
	EventTypeInputAudioBufferAppend = "input_audio_buffer.append"
)

// Server event types the link reacts to.
const (
	EventTypeError                   = "error"
	EventTypeSessionCreated          = "session.created"
	EventTypeSessionUpdated          = "session.updated"
	EventTypeTranscriptionCompleted  = "conversation.item.input_audio_transcription.completed"
	EventTypeTranscriptionFailed     = "conversation.item.input_audio_transcription.failed"
	EventTypeInputAudioSpeechStarted = "input_audio_buffer.speech_started"
	EventTypeInputAudioSpeechStopped = "input_audio_buffer.speech_stopped"
)

// TranscriberConfig holds configuration for the realtime transcription link
type TranscriberConfig struct {
	APIKey   string
	URL      string // default DefaultURL
	Model    string // default DefaultModel
	Prompt   string // default DefaultPrompt
	Language string // default DefaultLanguage

	// Server VAD. Zero values fall back to 0.7 / 300ms / 1000ms.
	VADThreshold      float64
	PrefixPaddingMs   int
	SilenceDurationMs int

	DialTimeout  time.Duration // default 10s
	WriteTimeout time.Duration // default 5s
}

func (c *TranscriberConfig) setDefaults() {
	if c.URL == "" {
		c.URL = DefaultURL
	}
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.Prompt == "" {
		c.Prompt = DefaultPrompt
	}
	if c.Language == "" {
		c.Language = DefaultLanguage
	}
	if c.VADThreshold == 0 {
		c.VADThreshold = 0.7
	}
	if c.PrefixPaddingMs == 0 {
		c.PrefixPaddingMs = 300
	}
	if c.SilenceDurationMs == 0 {
		c.SilenceDurationMs = 1000
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 10 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
}

// Transcriber dials one realtime transcription link per call.
type Transcriber struct {
	config TranscriberConfig
	dialer *websocket.Dialer
	log    *logger.Logger
}

// NewTranscriber creates a transcriber. It does not connect until Dial.
func NewTranscriber(config TranscriberConfig) *Transcriber {
	config.setDefaults()
	return &Transcriber{
		config: config,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: config.DialTimeout,
		},
		log: logger.WithPrefix("OpenAITranscriber"),
	}
}

// Dial opens the link for callID, sends the session configuration and starts
// the receive loop.
func (t *Transcriber) Dial(ctx context.Context, callID string) (services.TranscriptionLink, error) {
	ctx, cancel := context.WithTimeout(ctx, t.config.DialTimeout)
	defer cancel()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+t.config.APIKey)

	conn, resp, err := t.dialer.DialContext(ctx, t.config.URL, header)
	if err != nil {
		if resp != nil {
			return nil, &Error{HTTPStatus: resp.StatusCode, Message: err.Error()}
		}
		return nil, fmt.Errorf("openai: dial: %w", err)
	}

	l := &Link{
		callID:       callID,
		conn:         conn,
		writeTimeout: t.config.WriteTimeout,
		events:       make(chan frames.Frame, 32),
		closed:       make(chan struct{}),
		log:          t.log.ForCall(callID),
	}

	if err := l.writeEvent(t.sessionUpdate()); err != nil {
		conn.Close()
		return nil, fmt.Errorf("openai: session.update: %w", err)
	}

	go l.readLoop()

	l.log.Info("Transcription link open")
	return l, nil
}

func (t *Transcriber) sessionUpdate() *sessionUpdateEvent {
	return &sessionUpdateEvent{
		Type: EventTypeSessionUpdate,
		Session: transcriptionSession{
			Type: "transcription",
			Audio: sessionAudio{
				Input: sessionAudioInput{
					Format: audioFormat{Type: "audio/pcm", Rate: audio.OutputSampleRate},
					Transcription: transcriptionConfig{
						Model:    t.config.Model,
						Prompt:   t.config.Prompt,
						Language: t.config.Language,
					},
					TurnDetection: turnDetection{
						Type:              "server_vad",
						Threshold:         t.config.VADThreshold,
						PrefixPaddingMs:   t.config.PrefixPaddingMs,
						SilenceDurationMs: t.config.SilenceDurationMs,
					},
				},
			},
		},
	}
}

// Link is one open transcription connection. Writes are serialized; the
// receive loop is the only reader.
type Link struct {
	callID       string
	conn         *websocket.Conn
	writeTimeout time.Duration
	writeMu      sync.Mutex

	events    chan frames.Frame
	closed    chan struct{}
	closeOnce sync.Once

	log *logger.Logger
}

// AppendAudio sends a base64 24 kHz PCM chunk into the input buffer.
func (l *Link) AppendAudio(audioBase64 string) error {
	select {
	case <-l.closed:
		return ErrLinkClosed
	default:
	}
	return l.writeEvent(&appendAudioEvent{
		EventID: "evt_" + uuid.NewString(),
		Type:    EventTypeInputAudioBufferAppend,
		Audio:   audioBase64,
	})
}

// Events returns the link's frame stream. It is closed after the final
// ConnectionClosedFrame.
func (l *Link) Events() <-chan frames.Frame {
	return l.events
}

// Close closes the connection. The receive loop then emits a
// ConnectionClosedFrame with a nil error.
func (l *Link) Close() error {
	var err error
	l.closeOnce.Do(func() {
		close(l.closed)
		l.writeMu.Lock()
		l.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		l.writeMu.Unlock()
		err = l.conn.Close()
	})
	return err
}

func (l *Link) isClosed() bool {
	select {
	case <-l.closed:
		return true
	default:
		return false
	}
}

func (l *Link) writeEvent(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	l.conn.SetWriteDeadline(time.Now().Add(l.writeTimeout))
	return l.conn.WriteMessage(websocket.TextMessage, data)
}

func (l *Link) readLoop() {
	defer close(l.events)

	for {
		_, message, err := l.conn.ReadMessage()
		if err != nil {
			l.events <- frames.NewConnectionClosedFrame(l.callID, l.closeReason(err))
			return
		}

		var ev serverEvent
		if err := json.Unmarshal(message, &ev); err != nil {
			l.log.Warn("Unparseable server message: %v", err)
			l.events <- frames.NewConnectionErrorFrame(l.callID, fmt.Errorf("openai: decode event: %w", err))
			continue
		}

		switch ev.Type {
		case EventTypeTranscriptionCompleted:
			l.log.Info("Transcript: %q", ev.Transcript)
			l.events <- frames.NewTranscriptFrame(l.callID, ev.ItemID, ev.Transcript)
		case EventTypeError:
			apiErr := &Error{}
			if ev.Error != nil {
				*apiErr = *ev.Error
			}
			l.log.Warn("Server error event: %v", apiErr)
			l.events <- frames.NewConnectionErrorFrame(l.callID, apiErr)
		case EventTypeTranscriptionFailed:
			msg := "transcription failed"
			if ev.Error != nil {
				msg = ev.Error.Message
			}
			l.log.Warn("Transcription failed for item %s: %s", ev.ItemID, msg)
		case EventTypeSessionCreated, EventTypeSessionUpdated:
			l.log.Debug("Session event: %s", ev.Type)
		case EventTypeInputAudioSpeechStarted, EventTypeInputAudioSpeechStopped:
			l.log.Debug("VAD: %s", ev.Type)
		}
	}
}

// closeReason maps a read error to the ConnectionClosedFrame error: nil for a
// local or normal close.
func (l *Link) closeReason(err error) error {
	if l.isClosed() {
		return nil
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return nil
	}
	if errors.Is(err, net.ErrClosed) || strings.Contains(err.Error(), "use of closed network connection") {
		return nil
	}
	l.log.Warn("Transcription link dropped: %v", err)
	return err
}
