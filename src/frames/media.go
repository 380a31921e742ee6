package frames

// StartFrame opens a media stream and names the call it belongs to.
type StartFrame struct {
	*BaseFrame
	CallControlID string
	StreamID      string
	Codec         string
	SampleRate    int
}

func NewStartFrame(callControlID, streamID, codec string, sampleRate int) *StartFrame {
	return &StartFrame{
		BaseFrame:     NewBaseFrame("StartFrame"),
		CallControlID: callControlID,
		StreamID:      streamID,
		Codec:         codec,
		SampleRate:    sampleRate,
	}
}

// AudioFrame carries one media payload as 16-bit little-endian PCM.
type AudioFrame struct {
	*BaseFrame
	Data []byte
}

func NewAudioFrame(data []byte) *AudioFrame {
	return &AudioFrame{
		BaseFrame: NewBaseFrame("AudioFrame"),
		Data:      data,
	}
}

// StopFrame signals the provider ended the media stream.
type StopFrame struct {
	*BaseFrame
}

func NewStopFrame() *StopFrame {
	return &StopFrame{BaseFrame: NewBaseFrame("StopFrame")}
}
