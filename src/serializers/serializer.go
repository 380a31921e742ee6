package serializers

import (
	"github.com/square-key-labs/strawgo-intercom/src/frames"
)

// FrameSerializer turns provider media-stream messages into frames.
type FrameSerializer interface {
	// Deserialize converts one message to a frame. A nil frame with a nil
	// error means the message carries nothing the intercom consumes.
	Deserialize(data []byte) (frames.Frame, error)
}
