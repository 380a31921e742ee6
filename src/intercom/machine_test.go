package intercom

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/square-key-labs/strawgo-intercom/src/audio"
	"github.com/square-key-labs/strawgo-intercom/src/door"
	"github.com/square-key-labs/strawgo-intercom/src/frames"
	"github.com/square-key-labs/strawgo-intercom/src/phrases"
	"github.com/square-key-labs/strawgo-intercom/src/services"
	"github.com/square-key-labs/strawgo-intercom/src/services/telnyx"
	"github.com/square-key-labs/strawgo-intercom/src/session"
	"github.com/square-key-labs/strawgo-intercom/src/store"
)

const (
	intercomNumber = "+14155491627"
	forwardNumber  = "+15550100"
)

// actionLog records collaborator calls in order, shared by all fakes.
type actionLog struct {
	mu      sync.Mutex
	entries []string
}

func (l *actionLog) add(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, fmt.Sprintf(format, args...))
}

func (l *actionLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.entries...)
}

func (l *actionLog) count(prefix string) int {
	n := 0
	for _, e := range l.snapshot() {
		if strings.HasPrefix(e, prefix) {
			n++
		}
	}
	return n
}

type fakeCalls struct {
	log *actionLog

	mu       sync.Mutex
	answer   telnyx.AnswerOptions
	transfer telnyx.TransferOptions
	playback telnyx.PlaybackOptions
}

func (f *fakeCalls) Answer(_ context.Context, callID string, opts telnyx.AnswerOptions) error {
	f.mu.Lock()
	f.answer = opts
	f.mu.Unlock()
	f.log.add("answer %s", callID)
	return nil
}

func (f *fakeCalls) Transfer(_ context.Context, callID string, opts telnyx.TransferOptions) error {
	f.mu.Lock()
	f.transfer = opts
	f.mu.Unlock()
	f.log.add("transfer %s", callID)
	return nil
}

func (f *fakeCalls) StartPlayback(_ context.Context, callID string, opts telnyx.PlaybackOptions) error {
	f.mu.Lock()
	f.playback = opts
	f.mu.Unlock()
	f.log.add("playback %s", callID)
	return nil
}

func (f *fakeCalls) SendDTMF(_ context.Context, callID, digits string, durationMs int) error {
	f.log.add("dtmf %s %s %d", callID, digits, durationMs)
	return nil
}

func (f *fakeCalls) Hangup(_ context.Context, callID string) error {
	f.log.add("hangup %s", callID)
	return nil
}

type fakeLink struct {
	events chan frames.Frame

	mu       sync.Mutex
	appended []string
	closed   bool
	once     sync.Once
}

func (l *fakeLink) AppendAudio(b64 string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.appended = append(l.appended, b64)
	return nil
}

func (l *fakeLink) Events() <-chan frames.Frame { return l.events }

func (l *fakeLink) Close() error {
	l.once.Do(func() {
		l.mu.Lock()
		l.closed = true
		l.mu.Unlock()
		l.events <- frames.NewConnectionClosedFrame("", nil)
		close(l.events)
	})
	return nil
}

func (l *fakeLink) isClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

type fakeTranscriber struct {
	mu    sync.Mutex
	links map[string]*fakeLink
	dials int
}

func (f *fakeTranscriber) Dial(_ context.Context, callID string) (services.TranscriptionLink, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dials++
	l := &fakeLink{events: make(chan frames.Frame, 16)}
	f.links[callID] = l
	return l, nil
}

func (f *fakeTranscriber) link(callID string) *fakeLink {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.links[callID]
}

// hookedBackend runs onFlags before each read of the flags document.
type hookedBackend struct {
	*store.Memory

	mu      sync.Mutex
	onFlags func()
}

func (b *hookedBackend) Get(ctx context.Context, key string) (string, error) {
	if key == store.FlagsKey {
		b.mu.Lock()
		hook := b.onFlags
		b.mu.Unlock()
		if hook != nil {
			hook()
		}
	}
	return b.Memory.Get(ctx, key)
}

func (b *hookedBackend) setOnFlags(fn func()) {
	b.mu.Lock()
	b.onFlags = fn
	b.mu.Unlock()
}

type harness struct {
	ic      *Intercom
	log     *actionLog
	calls   *fakeCalls
	tr      *fakeTranscriber
	mem     *store.Memory
	backend *hookedBackend
	reg     *session.Registry
	now     time.Time
}

func newHarness(t *testing.T, opts ...func(*Config)) *harness {
	t.Helper()
	h := &harness{
		log: &actionLog{},
		tr:  &fakeTranscriber{links: make(map[string]*fakeLink)},
		mem: store.NewMemory(),
		reg: session.NewRegistry("1009"),
		now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	h.calls = &fakeCalls{log: h.log}
	h.backend = &hookedBackend{Memory: h.mem}

	ps := store.NewPhraseStore(h.backend, store.PhraseStoreConfig{
		Now: func() time.Time {
			h.log.add("mark-used")
			return h.now
		},
	})
	config := Config{
		IntercomNumber:        intercomNumber,
		ForwardNumber:         forwardNumber,
		StreamURL:             "wss://example.test/media",
		BeepURL:               "https://example.test/beep.mp3",
		TransferTimeoutSecs:   30,
		TransferTimeLimitSecs: 14400,
		MatchThreshold:        phrases.DefaultThreshold,
	}
	for _, opt := range opts {
		opt(&config)
	}
	h.ic = New(config, Deps{
		Calls:       h.calls,
		Transcriber: h.tr,
		Phrases:     ps,
		Door:        door.NewActuator(h.calls, door.Config{HangupDelay: time.Hour}),
		Registry:    h.reg,
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		h.ic.Shutdown(ctx)
	})
	return h
}

func (h *harness) event(t *testing.T, eventType, callID string, edit func(*telnyx.EventPayload)) {
	t.Helper()
	p := &telnyx.EventPayload{CallControlID: callID, To: intercomNumber, From: "+15551234"}
	if edit != nil {
		edit(p)
	}
	ev := &telnyx.Event{Data: &telnyx.EventData{EventType: eventType, Payload: p}}
	if err := h.ic.HandleEvent(context.Background(), ev); err != nil {
		t.Fatalf("HandleEvent(%s): %v", eventType, err)
	}
}

func (h *harness) streaming(t *testing.T, callID string) *fakeLink {
	t.Helper()
	h.event(t, telnyx.EventCallInitiated, callID, nil)
	h.event(t, telnyx.EventCallAnswered, callID, nil)
	return h.tr.link(callID)
}

func (h *harness) setPhrase(key, value string) {
	h.mem.Set(context.Background(), key, value)
}

func (h *harness) phraseValue(t *testing.T, key string) string {
	t.Helper()
	v, err := h.mem.Get(context.Background(), key)
	if err != nil {
		t.Fatalf("get %q: %v", key, err)
	}
	return v
}

func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal(msg)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestInitiatedOpensLinkThenAnswers(t *testing.T) {
	h := newHarness(t)
	h.event(t, telnyx.EventCallInitiated, "c1", nil)

	s, err := h.reg.Get("c1")
	if err != nil || s.State() != session.Initiated {
		t.Fatal("session not created in Initiated")
	}
	if s.Link() == nil {
		t.Fatal("session should own a transcription link")
	}
	if got := h.log.snapshot(); len(got) != 1 || got[0] != "answer c1" {
		t.Fatalf("actions = %v", got)
	}

	a := h.calls.answer
	if a.StreamURL != "wss://example.test/media" || a.StreamTrack != "inbound_track" ||
		a.StreamBidirectionalCodec != "L16" || a.StreamBidirectionalMode != "rtp" || a.RecordMaxLength != 600 {
		t.Fatalf("answer options = %+v", a)
	}
}

func TestInitiatedForOtherNumberIgnored(t *testing.T) {
	h := newHarness(t)
	h.event(t, telnyx.EventCallInitiated, "c1", func(p *telnyx.EventPayload) { p.To = "+19990000" })

	if h.reg.Len() != 0 || h.tr.dials != 0 || len(h.log.snapshot()) != 0 {
		t.Fatal("a call for another number must be ignored")
	}
}

func TestDuplicateInitiatedIsIdempotent(t *testing.T) {
	h := newHarness(t)
	h.event(t, telnyx.EventCallInitiated, "c1", nil)
	h.event(t, telnyx.EventCallInitiated, "c1", nil)

	if h.tr.dials != 1 || h.log.count("answer") != 1 {
		t.Fatalf("dials=%d answers=%d", h.tr.dials, h.log.count("answer"))
	}
}

func TestAnsweredPlaysBeepWhenFlagsMissing(t *testing.T) {
	h := newHarness(t)
	h.streaming(t, "c1")

	s, _ := h.reg.Get("c1")
	if s.State() != session.Streaming {
		t.Fatalf("state = %s", s.State())
	}
	if h.log.count("playback c1") != 1 || h.log.count("transfer") != 0 {
		t.Fatalf("actions = %v", h.log.snapshot())
	}
	if p := h.calls.playback; p.AudioURL != "https://example.test/beep.mp3" || p.Loop != 1 || p.TargetLegs != "self" {
		t.Fatalf("playback options = %+v", p)
	}
}

func TestAnsweredForwardsWhenFlagSet(t *testing.T) {
	h := newHarness(t)
	h.setPhrase(store.FlagsKey, `{"forwardCall":true}`)

	link := h.streaming(t, "c1")

	s, _ := h.reg.Get("c1")
	if s.State() != session.Forwarded {
		t.Fatalf("state = %s", s.State())
	}
	if h.log.count("playback") != 0 {
		t.Fatal("forwarded call must not play the beep")
	}
	tr := h.calls.transfer
	if tr.To != forwardNumber || !tr.EarlyMedia || tr.TimeoutSecs != 30 || tr.TimeLimitSecs != 14400 {
		t.Fatalf("transfer options = %+v", tr)
	}
	if !link.isClosed() || s.Link() != nil {
		t.Fatal("forwarded call should release its transcription link")
	}
}

func TestHangupWhileReadingFlagsSkipsAction(t *testing.T) {
	for _, forward := range []bool{false, true} {
		t.Run(fmt.Sprintf("forward=%v", forward), func(t *testing.T) {
			h := newHarness(t)
			h.setPhrase(store.FlagsKey, fmt.Sprintf(`{"forwardCall":%v}`, forward))
			h.event(t, telnyx.EventCallInitiated, "c1", nil)

			h.backend.setOnFlags(func() { h.ic.onHangup("c1", "normal_clearing") })
			h.event(t, telnyx.EventCallAnswered, "c1", nil)

			if h.log.count("transfer") != 0 || h.log.count("playback") != 0 {
				t.Fatalf("action issued for a call that ended: %v", h.log.snapshot())
			}
			if h.reg.Len() != 0 {
				t.Fatal("session should stay removed")
			}
		})
	}
}

func TestDuplicateAnsweredIgnored(t *testing.T) {
	h := newHarness(t)
	h.streaming(t, "c1")
	h.event(t, telnyx.EventCallAnswered, "c1", nil)

	if h.log.count("playback") != 1 {
		t.Fatalf("beep played %d times", h.log.count("playback"))
	}
}

func TestDTMFCodeOpensDoorOnFourthDigit(t *testing.T) {
	h := newHarness(t)
	h.streaming(t, "c1")

	want := "dtmf c1 " + strings.Repeat("9", 30) + " 100"
	for i, d := range []string{"1", "0", "0"} {
		h.event(t, telnyx.EventCallDTMFReceived, "c1", func(p *telnyx.EventPayload) { p.Digit = d })
		if h.log.count("dtmf") != 0 {
			t.Fatalf("door opened early on digit %d", i+1)
		}
	}
	h.event(t, telnyx.EventCallDTMFReceived, "c1", func(p *telnyx.EventPayload) { p.Digit = "9" })

	if h.log.count(want) != 1 {
		t.Fatalf("actions = %v", h.log.snapshot())
	}

	h.event(t, telnyx.EventCallDTMFReceived, "c1", func(p *telnyx.EventPayload) { p.Digit = "9" })
	if h.log.count("dtmf") != 1 {
		t.Fatal("the same digits must not reopen the door")
	}
}

func TestDTMFHonoredOnForwardedCall(t *testing.T) {
	h := newHarness(t)
	h.setPhrase(store.FlagsKey, `{"forwardCall":true}`)
	h.streaming(t, "c1")

	for _, d := range "1009" {
		digit := string(d)
		h.event(t, telnyx.EventCallDTMFReceived, "c1", func(p *telnyx.EventPayload) { p.Digit = digit })
	}
	if h.log.count("dtmf c1") != 1 {
		t.Fatalf("actions = %v", h.log.snapshot())
	}
}

func TestUnusedPhraseOpensDoorThenStamps(t *testing.T) {
	h := newHarness(t)
	h.setPhrase("the cat wore a hat", "")
	h.setPhrase("purple elephant", "")

	link := h.streaming(t, "c1")
	link.events <- frames.NewTranscriptFrame("c1", "item_1", "um, the cat wore a hat I think")

	eventually(t, func() bool { return h.phraseValue(t, "the cat wore a hat") != "" }, "phrase never stamped")

	var dtmfAt, markAt = -1, -1
	for i, e := range h.log.snapshot() {
		if strings.HasPrefix(e, "dtmf c1") {
			dtmfAt = i
		}
		if e == "mark-used" {
			markAt = i
		}
	}
	if dtmfAt < 0 || markAt < dtmfAt {
		t.Fatalf("door must open before the stamp: %v", h.log.snapshot())
	}
	if got := h.phraseValue(t, "the cat wore a hat"); got != "2025-03-01T12:00:00.000Z" {
		t.Fatalf("stamp = %q", got)
	}
	if h.phraseValue(t, "purple elephant") != "" {
		t.Fatal("other phrases must stay unused")
	}
}

func TestUsedPhraseHangsUpWithoutDoor(t *testing.T) {
	h := newHarness(t)
	h.setPhrase("the cat wore a hat", "2025-02-01T10:00:00.000Z")

	link := h.streaming(t, "c1")
	link.events <- frames.NewTranscriptFrame("c1", "item_1", "um, the cat wore a hat I think")

	eventually(t, func() bool { return h.log.count("hangup c1") == 1 }, "call not hung up")
	if h.log.count("dtmf") != 0 {
		t.Fatal("used phrase must not open the door")
	}
}

func TestPhraseOpensDoorOncePerCall(t *testing.T) {
	h := newHarness(t)
	h.setPhrase("open sesame", "")
	h.setPhrase("purple elephant", "")

	link := h.streaming(t, "c1")
	link.events <- frames.NewTranscriptFrame("c1", "i1", "open sesame")
	link.events <- frames.NewTranscriptFrame("c1", "i2", "purple elephant")

	eventually(t, func() bool { return h.phraseValue(t, "open sesame") != "" }, "phrase never stamped")
	time.Sleep(50 * time.Millisecond)
	if n := h.log.count("dtmf"); n != 1 {
		t.Fatalf("door opened %d times", n)
	}
}

func TestMatchThresholdFromConfig(t *testing.T) {
	tests := []struct {
		name      string
		threshold float64
		fuzzy     bool
	}{
		{"zero is substring only", 0, false},
		{"default allows near misses", phrases.DefaultThreshold, true},
		{"negative selects default", -1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, func(c *Config) { c.MatchThreshold = tt.threshold })
			h.setPhrase("sesame", "")
			h.setPhrase("purple elephant", "")

			link := h.streaming(t, "c1")
			link.events <- frames.NewTranscriptFrame("c1", "i1", "sesami")
			link.events <- frames.NewTranscriptFrame("c1", "i2", "purple elephant")

			if tt.fuzzy {
				eventually(t, func() bool { return h.phraseValue(t, "sesame") != "" }, "near miss did not open the door")
				return
			}
			eventually(t, func() bool { return h.phraseValue(t, "purple elephant") != "" }, "exact phrase never stamped")
			if h.phraseValue(t, "sesame") != "" || h.log.count("dtmf") != 1 {
				t.Fatalf("near miss opened the door: %v", h.log.snapshot())
			}
		})
	}
}

func TestTranscriptIgnoredOutsideStreaming(t *testing.T) {
	h := newHarness(t)
	h.setPhrase("open sesame", "")

	h.event(t, telnyx.EventCallInitiated, "c1", nil)
	link := h.tr.link("c1")
	link.events <- frames.NewTranscriptFrame("c1", "i1", "open sesame")
	link.events <- frames.NewConnectionErrorFrame("c1", fmt.Errorf("boom"))

	time.Sleep(50 * time.Millisecond)
	if h.log.count("dtmf") != 0 || h.phraseValue(t, "open sesame") != "" {
		t.Fatal("transcripts before the beep must not open the door")
	}
}

func TestNoMatchDoesNothing(t *testing.T) {
	h := newHarness(t)
	h.setPhrase("open sesame", "")

	link := h.streaming(t, "c1")
	link.events <- frames.NewTranscriptFrame("c1", "i1", "hello, delivery for apartment two")

	time.Sleep(50 * time.Millisecond)
	if h.log.count("dtmf") != 0 || h.log.count("hangup") != 0 {
		t.Fatalf("actions = %v", h.log.snapshot())
	}
}

func TestHangupClosesLinkAndRemovesSession(t *testing.T) {
	h := newHarness(t)
	link := h.streaming(t, "c1")

	h.event(t, telnyx.EventCallHangup, "c1", func(p *telnyx.EventPayload) { p.HangupCause = "normal_clearing" })
	if h.reg.Len() != 0 {
		t.Fatal("session not removed")
	}
	if !link.isClosed() {
		t.Fatal("link not closed on hangup")
	}

	// Unknown and repeated hangups are no-ops.
	h.event(t, telnyx.EventCallHangup, "c1", nil)
	h.event(t, telnyx.EventCallHangup, "nope", nil)
}

func TestEventsForUnknownCallIgnored(t *testing.T) {
	h := newHarness(t)
	h.event(t, telnyx.EventCallAnswered, "ghost", nil)
	h.event(t, telnyx.EventCallDTMFReceived, "ghost", func(p *telnyx.EventPayload) { p.Digit = "1" })
	h.event(t, "call.playback.ended", "ghost", nil)

	if len(h.log.snapshot()) != 0 {
		t.Fatalf("actions = %v", h.log.snapshot())
	}
}

func TestHandleMediaRoutesTransformedAudio(t *testing.T) {
	h := newHarness(t)

	// No session yet: dropped.
	h.ic.HandleMedia("c1", []byte{1, 0, 2, 0})

	link := h.streaming(t, "c1")
	chunk := []byte{0x10, 0x00, 0x20, 0x00}
	h.ic.HandleMedia("c1", chunk)
	h.ic.HandleMedia("c1", chunk[:2])

	link.mu.Lock()
	defer link.mu.Unlock()
	if len(link.appended) != 2 {
		t.Fatalf("appended %d chunks", len(link.appended))
	}
	if link.appended[0] != audio.Transform(chunk) || link.appended[1] != audio.Transform(chunk[:2]) {
		t.Fatal("audio not transformed in order")
	}
}

func TestShutdownClosesAllLinks(t *testing.T) {
	h := newHarness(t)
	l1 := h.streaming(t, "c1")
	l2 := h.streaming(t, "c2")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := h.ic.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if !l1.isClosed() || !l2.isClosed() || h.ic.ActiveCalls() != 0 {
		t.Fatal("shutdown must close every link")
	}
}

func TestMalformedEvents(t *testing.T) {
	h := newHarness(t)
	if err := h.ic.HandleEvent(context.Background(), &telnyx.Event{}); err != ErrMissingData {
		t.Fatalf("no data: %v", err)
	}
	ev := &telnyx.Event{Data: &telnyx.EventData{EventType: telnyx.EventCallHangup, Payload: &telnyx.EventPayload{}}}
	if err := h.ic.HandleEvent(context.Background(), ev); err != ErrMissingCallControlID {
		t.Fatalf("no call id: %v", err)
	}
}
