package openai

import (
	"errors"
	"fmt"
)

// ErrLinkClosed is returned by AppendAudio after Close.
var ErrLinkClosed = errors.New("openai: transcription link closed")

// Error is an upstream error: either an "error" server event or a rejected
// handshake.
type Error struct {
	HTTPStatus int    `json:"-"`
	Type       string `json:"type,omitempty"`
	Code       string `json:"code,omitempty"`
	Message    string `json:"message,omitempty"`
	Param      string `json:"param,omitempty"`
	EventID    string `json:"event_id,omitempty"`
}

func (e *Error) Error() string {
	switch {
	case e.HTTPStatus != 0:
		return fmt.Sprintf("openai: handshake status %d: %s", e.HTTPStatus, e.Message)
	case e.Code != "":
		return fmt.Sprintf("openai: %s (%s): %s", e.Type, e.Code, e.Message)
	case e.Type != "":
		return fmt.Sprintf("openai: %s: %s", e.Type, e.Message)
	default:
		return "openai: " + e.Message
	}
}

type sessionUpdateEvent struct {
	Type    string               `json:"type"`
	Session transcriptionSession `json:"session"`
}

type transcriptionSession struct {
	Type  string       `json:"type"`
	Audio sessionAudio `json:"audio"`
}

type sessionAudio struct {
	Input sessionAudioInput `json:"input"`
}

type sessionAudioInput struct {
	Format        audioFormat         `json:"format"`
	Transcription transcriptionConfig `json:"transcription"`
	TurnDetection turnDetection       `json:"turn_detection"`
}

type audioFormat struct {
	Type string `json:"type"`
	Rate int    `json:"rate"`
}

type transcriptionConfig struct {
	Model    string `json:"model"`
	Prompt   string `json:"prompt,omitempty"`
	Language string `json:"language,omitempty"`
}

type turnDetection struct {
	Type              string  `json:"type"`
	Threshold         float64 `json:"threshold"`
	PrefixPaddingMs   int     `json:"prefix_padding_ms"`
	SilenceDurationMs int     `json:"silence_duration_ms"`
}

type appendAudioEvent struct {
	EventID string `json:"event_id,omitempty"`
	Type    string `json:"type"`
	Audio   string `json:"audio"`
}

type serverEvent struct {
	Type       string `json:"type"`
	EventID    string `json:"event_id,omitempty"`
	ItemID     string `json:"item_id,omitempty"`
	Transcript string `json:"transcript,omitempty"`
	Error      *Error `json:"error,omitempty"`
}
