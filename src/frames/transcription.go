package frames

// TranscriptFrame is a finalized transcript segment for a call.
type TranscriptFrame struct {
	*BaseFrame
	CallControlID string
	ItemID        string
	Text          string
}

func NewTranscriptFrame(callControlID, itemID, text string) *TranscriptFrame {
	return &TranscriptFrame{
		BaseFrame:     NewBaseFrame("TranscriptFrame"),
		CallControlID: callControlID,
		ItemID:        itemID,
		Text:          text,
	}
}

// ConnectionErrorFrame reports a problem on a transcription link that did not
// close it: an upstream error event or an unparseable message.
type ConnectionErrorFrame struct {
	*BaseFrame
	CallControlID string
	Error         error
}

func NewConnectionErrorFrame(callControlID string, err error) *ConnectionErrorFrame {
	return &ConnectionErrorFrame{
		BaseFrame:     NewBaseFrame("ConnectionErrorFrame"),
		CallControlID: callControlID,
		Error:         err,
	}
}

// ConnectionClosedFrame is the last frame a transcription link emits. Error is
// nil when the link was closed locally.
type ConnectionClosedFrame struct {
	*BaseFrame
	CallControlID string
	Error         error
}

func NewConnectionClosedFrame(callControlID string, err error) *ConnectionClosedFrame {
	return &ConnectionClosedFrame{
		BaseFrame:     NewBaseFrame("ConnectionClosedFrame"),
		CallControlID: callControlID,
		Error:         err,
	}
}
