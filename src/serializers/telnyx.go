package serializers

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/square-key-labs/strawgo-intercom/src/audio"
	"github.com/square-key-labs/strawgo-intercom/src/frames"
)

// TelnyxFrameSerializer handles the Telnyx media streaming WebSocket protocol.
// One serializer per connection; it remembers the call and codec from the
// start event and decodes media payloads to L16.
type TelnyxFrameSerializer struct {
	callControlID string
	streamID      string
	codec         string
}

// Telnyx message structures
type telnyxMessage struct {
	Event          string       `json:"event"`
	SequenceNumber string       `json:"sequence_number,omitempty"`
	StreamID       string       `json:"stream_id,omitempty"`
	Start          *telnyxStart `json:"start,omitempty"`
	Media          *telnyxMedia `json:"media,omitempty"`
	Stop           *telnyxStop  `json:"stop,omitempty"`
}

type telnyxStart struct {
	CallControlID string             `json:"call_control_id"`
	CallSessionID string             `json:"call_session_id,omitempty"`
	MediaFormat   *telnyxMediaFormat `json:"media_format,omitempty"`
}

type telnyxMediaFormat struct {
	Encoding   string `json:"encoding"`
	SampleRate int    `json:"sample_rate"`
	Channels   int    `json:"channels"`
}

type telnyxMedia struct {
	Track     string `json:"track"`
	Chunk     string `json:"chunk"`
	Timestamp string `json:"timestamp"`
	Payload   string `json:"payload"` // base64 audio in the start event's encoding
}

type telnyxStop struct {
	CallControlID string `json:"call_control_id"`
}

// NewTelnyxFrameSerializer creates a serializer for one media connection.
func NewTelnyxFrameSerializer() *TelnyxFrameSerializer {
	return &TelnyxFrameSerializer{codec: audio.CodecL16}
}

// Deserialize converts a Telnyx media-stream JSON message to a frame:
// start → StartFrame, media → AudioFrame, stop → StopFrame. Other events
// (connected, mark, dtmf, error) yield nil.
func (s *TelnyxFrameSerializer) Deserialize(data []byte) (frames.Frame, error) {
	var msg telnyxMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal Telnyx message: %w", err)
	}

	switch msg.Event {
	case "start":
		if msg.Start == nil || msg.Start.CallControlID == "" {
			return nil, fmt.Errorf("start event missing call_control_id")
		}
		s.callControlID = msg.Start.CallControlID
		s.streamID = msg.StreamID
		sampleRate := audio.InputSampleRate
		if f := msg.Start.MediaFormat; f != nil {
			if f.Encoding != "" {
				s.codec = audio.NormalizeCodecName(f.Encoding)
			}
			if f.SampleRate > 0 {
				sampleRate = f.SampleRate
			}
		}
		return frames.NewStartFrame(s.callControlID, s.streamID, s.codec, sampleRate), nil

	case "media":
		if msg.Media == nil {
			return nil, fmt.Errorf("media event missing media data")
		}
		payload, err := base64.StdEncoding.DecodeString(msg.Media.Payload)
		if err != nil {
			return nil, fmt.Errorf("failed to decode audio payload: %w", err)
		}
		pcm, err := audio.DecodeToL16(s.codec, payload)
		if err != nil {
			return nil, err
		}
		return frames.NewAudioFrame(pcm), nil

	case "stop":
		return frames.NewStopFrame(), nil

	default:
		return nil, nil
	}
}
