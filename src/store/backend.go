// Package store wraps the key-value service that holds passphrases and the
// forwarding flag.
//
// Every key other than FlagsKey is a phrase. A phrase's value is either empty
// (unused) or an ISO-8601 timestamp of when it last opened the door. FlagsKey
// holds a JSON document {"forwardCall": bool}.
//
// The production backend is Redis (Upstash speaks the Redis protocol). A
// Badger backend is provided for running a single box without a hosted store,
// and Memory for tests.
package store

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound is returned when a key does not exist in the backend.
var ErrNotFound = errors.New("store: not found")

// Backend is the minimal key-value surface the intercom consumes.
type Backend interface {
	// Get returns the value for key, or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)

	// Set stores value under key, overwriting any existing value.
	Set(ctx context.Context, key, value string) error

	// Keys returns every key in the backend, in no particular order.
	Keys(ctx context.Context) ([]string, error)

	// Close releases resources held by the backend.
	Close() error
}

// Backend kinds accepted by Open.
const (
	KindRedis  = "redis"
	KindBadger = "badger"
	KindMemory = "memory"
)

// OpenConfig selects and configures a backend.
type OpenConfig struct {
	Kind      string // redis (default), badger or memory
	RedisURL  string
	BadgerDir string
}

// Open creates the backend named by config.Kind.
func Open(config OpenConfig) (Backend, error) {
	switch config.Kind {
	case "", KindRedis:
		if config.RedisURL == "" {
			return nil, errors.New("store: redis url is required")
		}
		return NewRedis(config.RedisURL)
	case KindBadger:
		return NewBadger(BadgerConfig{Dir: config.BadgerDir})
	case KindMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("store: unknown backend %q", config.Kind)
	}
}
