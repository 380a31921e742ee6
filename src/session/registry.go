// Package session holds the registry of in-flight calls. The registry is the
// single owner of session identity; code that holds a *CallSession across a
// blocking call re-validates it with Current before acting on it.
package session

import (
	"errors"
	"sort"
	"sync"
)

var (
	// ErrExists is returned by Create when the call id is already registered.
	ErrExists = errors.New("session: call already registered")

	// ErrUnknownCall is returned by Get when no session exists for the call.
	ErrUnknownCall = errors.New("session: unknown call")
)

// Registry maps call ids to sessions.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*CallSession
	code     string
}

// NewRegistry creates an empty registry. code is the DTMF unlock code given
// to every new session.
func NewRegistry(code string) *Registry {
	return &Registry{
		sessions: make(map[string]*CallSession),
		code:     code,
	}
}

// Create registers a new session in state Initiated.
func (r *Registry) Create(callID string) (*CallSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[callID]; ok {
		return nil, ErrExists
	}
	s := newCallSession(callID, r.code)
	r.sessions[callID] = s
	return s, nil
}

// Get returns the session for callID, or ErrUnknownCall.
func (r *Registry) Get(callID string) (*CallSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[callID]
	if !ok {
		return nil, ErrUnknownCall
	}
	return s, nil
}

// Current reports whether s is still the registered session for its call.
func (r *Registry) Current(s *CallSession) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[s.ID] == s
}

// Remove unregisters callID and returns the removed session, or nil.
func (r *Registry) Remove(callID string) *CallSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.sessions[callID]
	delete(r.sessions, callID)
	return s
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// All returns a snapshot of the registered sessions ordered by call id.
func (r *Registry) All() []*CallSession {
	r.mu.RLock()
	out := make([]*CallSession, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
