package intercom

import (
	"context"
	"errors"

	"github.com/square-key-labs/strawgo-intercom/src/audio"
	"github.com/square-key-labs/strawgo-intercom/src/frames"
	"github.com/square-key-labs/strawgo-intercom/src/phrases"
	"github.com/square-key-labs/strawgo-intercom/src/services"
	"github.com/square-key-labs/strawgo-intercom/src/session"
	"github.com/square-key-labs/strawgo-intercom/src/store"
)

// HandleMedia transforms one 8 kHz PCM chunk and appends it to the call's
// transcription link. Chunks for unknown calls, or calls without a live
// link, are dropped.
func (ic *Intercom) HandleMedia(callID string, chunk []byte) {
	s, err := ic.registry.Get(callID)
	if err != nil {
		return
	}
	link := s.Link()
	if link == nil {
		return
	}
	if err := link.AppendAudio(audio.Transform(chunk)); err != nil {
		ic.log.ForCall(callID).Debug("Dropping audio: %v", err)
	}
}

// relay consumes a link's events until the link closes. Transcripts of one
// call are handled one at a time, in order.
func (ic *Intercom) relay(s *session.CallSession, link services.TranscriptionLink) {
	defer ic.relays.Done()
	log := ic.log.ForCall(s.ID)

	for f := range link.Events() {
		switch f := f.(type) {
		case *frames.TranscriptFrame:
			ic.handleTranscript(context.Background(), s, f.Text)
		case *frames.ConnectionErrorFrame:
			log.Warn("Transcription error: %v", f.Error)
		case *frames.ConnectionClosedFrame:
			s.DetachLink(link)
			if f.Error != nil {
				log.Warn("Transcription link closed: %v", f.Error)
			} else {
				log.Debug("Transcription link closed")
			}
		}
	}
}

// handleTranscript matches a transcript against the stored phrases. A used
// phrase hangs up; an unused one opens the door, stamps the phrase and runs
// the reset rule.
func (ic *Intercom) handleTranscript(ctx context.Context, s *session.CallSession, transcript string) {
	log := ic.log.ForCall(s.ID)
	if !ic.registry.Current(s) {
		return
	}
	if st := s.State(); st != session.Streaming {
		log.Debug("Ignoring transcript in state %s", st)
		return
	}

	all, err := ic.phrases.Phrases(ctx)
	if err != nil {
		log.Error("Failed to list phrases: %v", err)
		return
	}
	keys := make([]string, len(all))
	for i, p := range all {
		keys[i] = p.Key
	}

	m, ok := phrases.Best(keys, transcript, ic.config.MatchThreshold)
	if !ok {
		log.Info("No phrase matches %q", transcript)
		return
	}

	p, err := ic.phrases.Phrase(ctx, m.Key)
	if errors.Is(err, store.ErrNotFound) {
		log.Info("Phrase %q was removed before it could be checked", m.Key)
		return
	}
	if err != nil {
		log.Error("Failed to read phrase %q: %v", m.Key, err)
		return
	}

	// The store round trips may have outlived the call.
	if !ic.registry.Current(s) {
		return
	}

	if p.Used() {
		log.Info("Phrase %q already used at %s, hanging up", p.Key, p.UsedAt.Format("2006-01-02 15:04:05"))
		actx, cancel := context.WithTimeout(ctx, ic.config.ActionTimeout)
		defer cancel()
		if err := ic.calls.Hangup(actx, s.ID); err != nil {
			log.Error("Hangup failed: %v", err)
		}
		return
	}

	if !s.ClaimDoor() {
		log.Info("Door already opened for this call")
		return
	}

	log.Info("Phrase %q matched (substring=%t, distance=%d), opening door", p.Key, m.Substring, m.Distance)
	ic.door.Open(ctx, s.ID)

	if _, err := ic.phrases.MarkUsed(ctx, p.Key); err != nil {
		log.Error("Failed to mark phrase used: %v", err)
		return
	}
	if _, err := ic.phrases.ResetIfExhausted(ctx); err != nil {
		log.Error("Phrase reset failed: %v", err)
	}
}
