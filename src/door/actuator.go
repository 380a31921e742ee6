// Package door opens the building door by playing the door-release DTMF run
// into the call, then hangs up after a short delay.
package door

import (
	"context"
	"strings"
	"time"

	"github.com/square-key-labs/strawgo-intercom/src/logger"
)

// Defaults for the door-release sequence.
const (
	DefaultDigit       = "9"
	DefaultRepeat      = 30
	DefaultToneMs      = 100
	DefaultHangupDelay = 3 * time.Second
)

// Caller is the subset of call control the actuator needs.
type Caller interface {
	SendDTMF(ctx context.Context, callID string, digits string, durationMs int) error
	Hangup(ctx context.Context, callID string) error
}

// Config holds configuration for the actuator
type Config struct {
	Digits      string        // default thirty "9"s
	ToneMs      int           // default 100
	HangupDelay time.Duration // default 3s

	// Timeout bounds each call-control action. Default 10s.
	Timeout time.Duration
}

// Actuator sends the door-release tones and schedules the hangup.
type Actuator struct {
	caller      Caller
	digits      string
	toneMs      int
	hangupDelay time.Duration
	timeout     time.Duration
	log         *logger.Logger

	// afterFunc is swapped in tests.
	afterFunc func(time.Duration, func()) *time.Timer
}

// NewActuator creates an actuator over caller.
func NewActuator(caller Caller, config Config) *Actuator {
	if config.Digits == "" {
		config.Digits = strings.Repeat(DefaultDigit, DefaultRepeat)
	}
	if config.ToneMs <= 0 {
		config.ToneMs = DefaultToneMs
	}
	if config.HangupDelay <= 0 {
		config.HangupDelay = DefaultHangupDelay
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	return &Actuator{
		caller:      caller,
		digits:      config.Digits,
		toneMs:      config.ToneMs,
		hangupDelay: config.HangupDelay,
		timeout:     config.Timeout,
		log:         logger.WithPrefix("Door"),
		afterFunc:   time.AfterFunc,
	}
}

// Open sends the DTMF run into callID and schedules a hangup after the
// configured delay. The hangup is scheduled even when the tones fail. Errors
// are logged, never retried; the returned error is the DTMF failure, if any.
func (a *Actuator) Open(ctx context.Context, callID string) error {
	log := a.log.ForCall(callID)
	log.Info("Opening door (%d tones)", len(a.digits))

	dctx, cancel := context.WithTimeout(ctx, a.timeout)
	err := a.caller.SendDTMF(dctx, callID, a.digits, a.toneMs)
	cancel()
	if err != nil {
		log.Error("Door DTMF failed: %v", err)
	}

	a.afterFunc(a.hangupDelay, func() {
		a.Hangup(context.Background(), callID)
	})
	return err
}

// Hangup ends callID now. A failure is logged and returned.
func (a *Actuator) Hangup(ctx context.Context, callID string) error {
	hctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	if err := a.caller.Hangup(hctx, callID); err != nil {
		a.log.ForCall(callID).Error("Hangup failed: %v", err)
		return err
	}
	return nil
}
