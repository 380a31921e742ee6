// Package intercom is the call-event state machine. It reacts to call-control
// webhooks, owns the per-call transcription links through the session
// registry, and decides when to open the door.
package intercom

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/square-key-labs/strawgo-intercom/src/logger"
	"github.com/square-key-labs/strawgo-intercom/src/phrases"
	"github.com/square-key-labs/strawgo-intercom/src/services"
	"github.com/square-key-labs/strawgo-intercom/src/services/telnyx"
	"github.com/square-key-labs/strawgo-intercom/src/session"
	"github.com/square-key-labs/strawgo-intercom/src/store"
)

var (
	// ErrMissingData is returned for a webhook without a data object.
	ErrMissingData = errors.New("intercom: event has no data")

	// ErrMissingCallControlID is returned for a webhook whose payload does
	// not name a call.
	ErrMissingCallControlID = errors.New("intercom: can't find call control ID")
)

// DoorOpener opens the door on a live call.
type DoorOpener interface {
	Open(ctx context.Context, callID string) error
}

// Config holds the call-flow settings.
type Config struct {
	// IntercomNumber is the number whose incoming calls are handled.
	IntercomNumber string

	// ForwardNumber receives the call when the forwardCall flag is set.
	ForwardNumber string

	// StreamURL is the media-stream WebSocket URL handed to the provider on
	// answer.
	StreamURL string

	BeepURL  string
	BeepLoop int

	TransferTimeoutSecs   int
	TransferTimeLimitSecs int

	// MatchThreshold is the fuzzy-match edit distance ratio. Zero matches
	// substrings only; a negative value selects the default.
	MatchThreshold float64

	// ActionTimeout bounds each call-control action. Default 10s.
	ActionTimeout time.Duration
}

// Deps are the collaborators the intercom drives.
type Deps struct {
	Calls       services.CallControl
	Transcriber services.Transcriber
	Phrases     *store.PhraseStore
	Door        DoorOpener
	Registry    *session.Registry
}

// Intercom handles call events for the intercom number.
type Intercom struct {
	config      Config
	calls       services.CallControl
	transcriber services.Transcriber
	phrases     *store.PhraseStore
	door        DoorOpener
	registry    *session.Registry
	log         *logger.Logger

	relays sync.WaitGroup
}

// New creates an Intercom.
func New(config Config, deps Deps) *Intercom {
	if config.MatchThreshold < 0 {
		config.MatchThreshold = phrases.DefaultThreshold
	}
	if config.BeepLoop <= 0 {
		config.BeepLoop = 1
	}
	if config.ActionTimeout <= 0 {
		config.ActionTimeout = 10 * time.Second
	}
	return &Intercom{
		config:      config,
		calls:       deps.Calls,
		transcriber: deps.Transcriber,
		phrases:     deps.Phrases,
		door:        deps.Door,
		registry:    deps.Registry,
		log:         logger.WithPrefix("Intercom"),
	}
}

// HandleEvent applies one webhook event. Only malformed events return an
// error; collaborator failures are logged and the call carries on.
func (ic *Intercom) HandleEvent(ctx context.Context, ev *telnyx.Event) error {
	if ev == nil || ev.Data == nil {
		return ErrMissingData
	}
	if ev.Data.Payload == nil || ev.Data.Payload.CallControlID == "" {
		return ErrMissingCallControlID
	}
	p := ev.Data.Payload

	switch ev.Data.EventType {
	case telnyx.EventCallInitiated:
		ic.onInitiated(ctx, p)
	case telnyx.EventCallAnswered:
		ic.onAnswered(ctx, p.CallControlID)
	case telnyx.EventCallDTMFReceived:
		ic.onDTMF(ctx, p.CallControlID, p.Digit)
	case telnyx.EventCallHangup:
		ic.onHangup(p.CallControlID, p.HangupCause)
	default:
		ic.log.ForCall(p.CallControlID).Debug("Ignoring event %s", ev.Data.EventType)
	}
	return nil
}

// onInitiated: (none) -> Initiated. Opens the transcription link, then
// answers with streaming enabled.
func (ic *Intercom) onInitiated(ctx context.Context, p *telnyx.EventPayload) {
	log := ic.log.ForCall(p.CallControlID)
	if p.To != ic.config.IntercomNumber {
		log.Debug("Call to %s is not for the intercom, ignoring", p.To)
		return
	}

	s, err := ic.registry.Create(p.CallControlID)
	if errors.Is(err, session.ErrExists) {
		log.Info("Duplicate call.initiated, ignoring")
		return
	}
	log.Info("Call initiated from %s", p.From)

	if link, err := ic.transcriber.Dial(ctx, s.ID); err != nil {
		log.Error("Failed to open transcription link: %v", err)
	} else if !ic.registry.Current(s) || !s.AttachLink(link) {
		// Hung up while dialing.
		link.Close()
	} else {
		ic.relays.Add(1)
		go ic.relay(s, link)
	}

	actx, cancel := context.WithTimeout(ctx, ic.config.ActionTimeout)
	defer cancel()
	if err := ic.calls.Answer(actx, s.ID, ic.answerOptions()); err != nil {
		log.Error("Failed to answer: %v", err)
	}
}

func (ic *Intercom) answerOptions() telnyx.AnswerOptions {
	return telnyx.AnswerOptions{
		WebhookURLMethod:         "POST",
		StreamURL:                ic.config.StreamURL,
		StreamTrack:              "inbound_track",
		StreamBidirectionalMode:  "rtp",
		StreamBidirectionalCodec: "L16",
		SendSilenceWhenIdle:      false,
		Transcription:            false,
		RecordChannels:           "single",
		RecordFormat:             "wav",
		RecordTimeoutSecs:        0,
		RecordTrack:              "both",
		RecordMaxLength:          600,
	}
}

// onAnswered: Initiated -> Answered -> Forwarded | Streaming.
func (ic *Intercom) onAnswered(ctx context.Context, callID string) {
	log := ic.log.ForCall(callID)
	s, err := ic.registry.Get(callID)
	if err != nil {
		log.Debug("Ignoring call.answered: %v", err)
		return
	}
	if err := s.Transition(session.Answered); err != nil {
		log.Info("Ignoring call.answered: %v", err)
		return
	}

	actx, cancel := context.WithTimeout(ctx, ic.config.ActionTimeout)
	defer cancel()

	forward := ic.phrases.ForwardCall(actx)
	if !ic.registry.Current(s) {
		log.Info("Call ended while reading flags")
		return
	}

	if forward {
		log.Info("Forwarding call to %s", ic.config.ForwardNumber)
		if err := ic.calls.Transfer(actx, callID, ic.transferOptions()); err != nil {
			log.Error("Failed to transfer call: %v", err)
		}
		s.Transition(session.Forwarded)
		if link := s.Link(); link != nil {
			s.DetachLink(link)
			link.Close()
		}
		return
	}

	log.Info("Call answered, playing beep")
	if err := ic.calls.StartPlayback(actx, callID, telnyx.PlaybackOptions{
		AudioURL:   ic.config.BeepURL,
		Loop:       ic.config.BeepLoop,
		Overlay:    false,
		TargetLegs: "self",
		CacheAudio: true,
		AudioType:  "mp3",
	}); err != nil {
		log.Error("Failed to play beep: %v", err)
	}
	s.Transition(session.Streaming)
}

func (ic *Intercom) transferOptions() telnyx.TransferOptions {
	return telnyx.TransferOptions{
		To:                        ic.config.ForwardNumber,
		EarlyMedia:                true,
		TimeoutSecs:               ic.config.TransferTimeoutSecs,
		TimeLimitSecs:             ic.config.TransferTimeLimitSecs,
		MuteDTMF:                  "none",
		AnsweringMachineDetection: "disabled",
		SIPTransportProtocol:      "UDP",
		MediaEncryption:           "disabled",
		WebhookURLMethod:          "POST",
	}
}

// onDTMF runs in any non-terminal state, forwarded calls included.
func (ic *Intercom) onDTMF(ctx context.Context, callID, digit string) {
	log := ic.log.ForCall(callID)
	if digit == "" {
		return
	}
	s, err := ic.registry.Get(callID)
	if err != nil {
		log.Debug("Ignoring DTMF: %v", err)
		return
	}
	if !s.PushDigit(digit) {
		return
	}
	log.Info("Door code entered")
	ic.door.Open(ctx, callID)
}

// onHangup: any -> Terminated. Unknown calls are a no-op.
func (ic *Intercom) onHangup(callID, cause string) {
	s := ic.registry.Remove(callID)
	if s == nil {
		return
	}
	if link := s.Terminate(); link != nil {
		link.Close()
	}
	ic.log.ForCall(callID).Info("Call ended (%s) after %s", cause, time.Since(s.CreatedAt).Round(time.Second))
}

// ActiveCalls returns the number of calls in flight.
func (ic *Intercom) ActiveCalls() int {
	return ic.registry.Len()
}

// Shutdown terminates every session, closing their transcription links, and
// waits for the relays to drain or ctx to end.
func (ic *Intercom) Shutdown(ctx context.Context) error {
	for _, s := range ic.registry.All() {
		ic.registry.Remove(s.ID)
		if link := s.Terminate(); link != nil {
			link.Close()
		}
	}

	done := make(chan struct{})
	go func() {
		ic.relays.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
