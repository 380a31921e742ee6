package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/square-key-labs/strawgo-intercom/src/logger"
)

// FlagsKey is the reserved key holding the flags document. It is never a
// phrase.
const FlagsKey = "flags"

// timestampLayout matches what JavaScript's Date.toISOString writes, which is
// what the dashboard and mobile app expect to read back.
const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Flags is the process-wide toggle document.
type Flags struct {
	ForwardCall bool `json:"forwardCall"`
}

// DefaultFlags applies when the flags document is missing or unreadable:
// run the door flow rather than ringing a human.
var DefaultFlags = Flags{ForwardCall: false}

// Phrase is a candidate passphrase. A zero UsedAt means unused.
type Phrase struct {
	Key    string
	UsedAt time.Time
}

// Used reports whether the phrase has already opened the door.
func (p Phrase) Used() bool {
	return !p.UsedAt.IsZero()
}

// PhraseStoreConfig configures a PhraseStore.
type PhraseStoreConfig struct {
	// Timeout bounds every backend round trip. Default 5s.
	Timeout time.Duration

	// Keep is how many of the most recently used phrases survive a reset.
	// Default 3.
	Keep int

	// Now returns the current time. Default time.Now.
	Now func() time.Time
}

// PhraseStore reads and writes phrases and flags on a Backend.
//
// The check-then-mark sequence used during matching is not transactional:
// two calls matching the same phrase at the same instant can both see it as
// unused.
type PhraseStore struct {
	backend Backend
	timeout time.Duration
	keep    int
	now     func() time.Time
	log     *logger.Logger
}

// NewPhraseStore creates a PhraseStore over backend.
func NewPhraseStore(backend Backend, config PhraseStoreConfig) *PhraseStore {
	if config.Timeout <= 0 {
		config.Timeout = 5 * time.Second
	}
	if config.Keep <= 0 {
		config.Keep = 3
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	return &PhraseStore{
		backend: backend,
		timeout: config.Timeout,
		keep:    config.Keep,
		now:     config.Now,
		log:     logger.WithPrefix("PhraseStore"),
	}
}

// Phrases returns every phrase, sorted by key.
func (s *PhraseStore) Phrases(ctx context.Context) ([]Phrase, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	keys, err := s.backend.Keys(ctx)
	if err != nil {
		return nil, fmt.Errorf("list phrases: %w", err)
	}
	sort.Strings(keys)

	phrases := make([]Phrase, 0, len(keys))
	for _, k := range keys {
		if k == FlagsKey {
			continue
		}
		v, err := s.backend.Get(ctx, k)
		if errors.Is(err, ErrNotFound) {
			// Deleted between KEYS and GET.
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("get phrase %q: %w", k, err)
		}
		phrases = append(phrases, Phrase{Key: k, UsedAt: parseUsedAt(v)})
	}
	return phrases, nil
}

// Phrase returns a single phrase. It returns ErrNotFound when the key does not
// exist, so callers can tell a missing phrase from a backend failure.
func (s *PhraseStore) Phrase(ctx context.Context, key string) (Phrase, error) {
	if key == FlagsKey {
		return Phrase{}, ErrNotFound
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	v, err := s.backend.Get(ctx, key)
	if err != nil {
		return Phrase{}, err
	}
	return Phrase{Key: key, UsedAt: parseUsedAt(v)}, nil
}

// MarkUsed stamps key with the current time and returns the stamp.
func (s *PhraseStore) MarkUsed(ctx context.Context, key string) (time.Time, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	now := s.now().UTC().Truncate(time.Millisecond)
	if err := s.backend.Set(ctx, key, now.Format(timestampLayout)); err != nil {
		return time.Time{}, fmt.Errorf("mark phrase %q used: %w", key, err)
	}
	return now, nil
}

// ResetIfExhausted clears the usage stamp of every phrase except the Keep
// most recently used, but only once every phrase carries a stamp. It returns
// the number of phrases cleared.
func (s *PhraseStore) ResetIfExhausted(ctx context.Context) (int, error) {
	phrases, err := s.Phrases(ctx)
	if err != nil {
		return 0, err
	}
	for _, p := range phrases {
		if !p.Used() {
			return 0, nil
		}
	}
	if len(phrases) <= s.keep {
		return 0, nil
	}

	sort.SliceStable(phrases, func(i, j int) bool {
		return phrases[i].UsedAt.After(phrases[j].UsedAt)
	})

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	reset := 0
	for _, p := range phrases[s.keep:] {
		if err := s.backend.Set(ctx, p.Key, ""); err != nil {
			return reset, fmt.Errorf("reset phrase %q: %w", p.Key, err)
		}
		reset++
	}
	s.log.Info("All phrases exhausted; reset %d phrases, kept the %d most recent", reset, s.keep)
	return reset, nil
}

// Available returns the keys of unused phrases, sorted.
func (s *PhraseStore) Available(ctx context.Context) ([]string, error) {
	phrases, err := s.Phrases(ctx)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(phrases))
	for _, p := range phrases {
		if !p.Used() {
			keys = append(keys, p.Key)
		}
	}
	return keys, nil
}

// Flags reads the flags document. A missing document returns ErrNotFound;
// anything else non-nil is a backend or decode failure.
func (s *PhraseStore) Flags(ctx context.Context) (Flags, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	v, err := s.backend.Get(ctx, FlagsKey)
	if err != nil {
		return DefaultFlags, err
	}
	if v == "" {
		return DefaultFlags, ErrNotFound
	}
	var f Flags
	if err := json.Unmarshal([]byte(v), &f); err != nil {
		return DefaultFlags, fmt.Errorf("decode flags: %w", err)
	}
	return f, nil
}

// ForwardCall reports whether calls should be bridged to a human. Any failure
// reading the flags falls back to DefaultFlags.
func (s *PhraseStore) ForwardCall(ctx context.Context) bool {
	f, err := s.Flags(ctx)
	switch {
	case errors.Is(err, ErrNotFound):
		s.log.Debug("No flags document, using defaults")
	case err != nil:
		s.log.Warn("Failed to read flags, using defaults: %v", err)
	}
	return f.ForwardCall
}

// parseUsedAt returns the zero time for empty or non-timestamp values.
func parseUsedAt(v string) time.Time {
	if v == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}
	}
	return t
}
