package telnyx

// Webhook event types handled by the intercom.
const (
	EventCallInitiated    = "call.initiated"
	EventCallAnswered     = "call.answered"
	EventCallDTMFReceived = "call.dtmf.received"
	EventCallHangup       = "call.hangup"
)

// Event is the envelope of a call-control webhook delivery.
type Event struct {
	Data *EventData `json:"data"`
}

// EventData carries the event type and its payload.
type EventData struct {
	ID        string        `json:"id,omitempty"`
	EventType string        `json:"event_type"`
	Payload   *EventPayload `json:"payload"`
}

// EventPayload holds the fields the intercom reads from every call event.
type EventPayload struct {
	CallControlID string `json:"call_control_id"`
	CallLegID     string `json:"call_leg_id,omitempty"`
	From          string `json:"from,omitempty"`
	To            string `json:"to,omitempty"`
	Digit         string `json:"digit,omitempty"`
	HangupCause   string `json:"hangup_cause,omitempty"`
}

// AnswerOptions is the body of the answer action.
type AnswerOptions struct {
	WebhookURLMethod         string `json:"webhook_url_method,omitempty"`
	StreamURL                string `json:"stream_url,omitempty"`
	StreamTrack              string `json:"stream_track,omitempty"`
	StreamBidirectionalMode  string `json:"stream_bidirectional_mode,omitempty"`
	StreamBidirectionalCodec string `json:"stream_bidirectional_codec,omitempty"`
	SendSilenceWhenIdle      bool   `json:"send_silence_when_idle"`
	Transcription            bool   `json:"transcription"`
	RecordChannels           string `json:"record_channels,omitempty"`
	RecordFormat             string `json:"record_format,omitempty"`
	RecordTimeoutSecs        int    `json:"record_timeout_secs"`
	RecordTrack              string `json:"record_track,omitempty"`
	RecordMaxLength          int    `json:"record_max_length,omitempty"`
}

// TransferOptions is the body of the transfer action.
type TransferOptions struct {
	To                        string `json:"to"`
	EarlyMedia                bool   `json:"early_media"`
	TimeoutSecs               int    `json:"timeout_secs,omitempty"`
	TimeLimitSecs             int    `json:"time_limit_secs,omitempty"`
	MuteDTMF                  string `json:"mute_dtmf,omitempty"`
	AnsweringMachineDetection string `json:"answering_machine_detection,omitempty"`
	SIPTransportProtocol      string `json:"sip_transport_protocol,omitempty"`
	MediaEncryption           string `json:"media_encryption,omitempty"`
	WebhookURLMethod          string `json:"webhook_url_method,omitempty"`
}

// PlaybackOptions is the body of the playback_start action.
type PlaybackOptions struct {
	AudioURL   string `json:"audio_url"`
	Loop       int    `json:"loop,omitempty"`
	Overlay    bool   `json:"overlay"`
	TargetLegs string `json:"target_legs,omitempty"`
	CacheAudio bool   `json:"cache_audio"`
	AudioType  string `json:"audio_type,omitempty"`
}

// DTMFOptions is the body of the send_dtmf action.
type DTMFOptions struct {
	Digits         string `json:"digits"`
	DurationMillis int    `json:"duration_millis,omitempty"`
}
