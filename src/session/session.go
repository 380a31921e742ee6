package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/square-key-labs/strawgo-intercom/src/services"
)

// State is a call's position in the call-event state machine.
type State int

const (
	Initiated State = iota
	Answered
	Forwarded
	Streaming
	Terminated
)

func (s State) String() string {
	switch s {
	case Initiated:
		return "Initiated"
	case Answered:
		return "Answered"
	case Forwarded:
		return "Forwarded"
	case Streaming:
		return "Streaming"
	case Terminated:
		return "Terminated"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// ErrInvalidTransition is returned when an event arrives in a state that does
// not accept it, e.g. a duplicate call.answered.
var ErrInvalidTransition = errors.New("session: invalid state transition")

var transitions = map[State][]State{
	Initiated: {Answered, Terminated},
	Answered:  {Forwarded, Streaming, Terminated},
	Forwarded: {Terminated},
	Streaming: {Terminated},
}

// CallSession is one active call. All fields are guarded by the session's
// own lock; callers go through the methods.
type CallSession struct {
	ID        string
	CreatedAt time.Time

	mu         sync.Mutex
	state      State
	code       string
	digits     []byte
	link       services.TranscriptionLink
	doorOpened bool
}

func newCallSession(id, code string) *CallSession {
	return &CallSession{
		ID:        id,
		CreatedAt: time.Now(),
		state:     Initiated,
		code:      code,
		digits:    make([]byte, 0, len(code)),
	}
}

// State returns the current state.
func (s *CallSession) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Transition moves the session to next if the current state allows it.
func (s *CallSession) Transition(next State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, allowed := range transitions[s.state] {
		if allowed == next {
			s.state = next
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.state, next)
}

// PushDigit appends one DTMF digit to the trailing window and reports whether
// the window now equals the unlock code. The window is cleared on a match so
// the same digits cannot trigger twice. Terminated sessions never match.
func (s *CallSession) PushDigit(digit string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.code)
	if n == 0 || s.state == Terminated {
		return false
	}
	s.digits = append(s.digits, digit...)
	if len(s.digits) > n {
		s.digits = append(s.digits[:0], s.digits[len(s.digits)-n:]...)
	}
	if string(s.digits) == s.code {
		s.digits = s.digits[:0]
		return true
	}
	return false
}

// Digits returns a copy of the current DTMF window.
func (s *CallSession) Digits() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return string(s.digits)
}

// AttachLink hands ownership of link to the session. It fails if the session
// already terminated or owns a link; the caller then keeps ownership and must
// close link itself.
func (s *CallSession) AttachLink(link services.TranscriptionLink) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Terminated || s.link != nil {
		return false
	}
	s.link = link
	return true
}

// Link returns the owned transcription link, or nil.
func (s *CallSession) Link() services.TranscriptionLink {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.link
}

// DetachLink drops the session's link if it is still link, for when the
// link's receive loop reports it closed.
func (s *CallSession) DetachLink(link services.TranscriptionLink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.link == link {
		s.link = nil
	}
}

// Terminate moves the session to Terminated and returns the link it owned so
// the caller can close it outside the lock. Calling it again returns nil.
func (s *CallSession) Terminate() services.TranscriptionLink {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = Terminated
	link := s.link
	s.link = nil
	return link
}

// ClaimDoor reports whether the caller is the first to open the door on
// behalf of a spoken phrase in this call.
func (s *CallSession) ClaimDoor() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.doorOpened || s.state == Terminated {
		return false
	}
	s.doorOpened = true
	return true
}
