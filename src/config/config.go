// Package config loads the intercom's settings: built-in defaults, then an
// optional YAML file, then environment variables. Secrets are read from the
// environment only.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/square-key-labs/strawgo-intercom/src/store"
)

// Config is the full process configuration.
type Config struct {
	Addr     string `yaml:"addr"`
	LogLevel string `yaml:"log_level"`

	Call          CallConfig          `yaml:"call"`
	Door          DoorConfig          `yaml:"door"`
	Transcription TranscriptionConfig `yaml:"transcription"`
	Telnyx        TelnyxConfig        `yaml:"telnyx"`
	Store         StoreConfig         `yaml:"store"`
}

// CallConfig holds the call-flow settings.
type CallConfig struct {
	IntercomNumber        string        `yaml:"intercom_number"`
	ForwardNumber         string        `yaml:"forward_number"`
	StreamURL             string        `yaml:"stream_url"`
	BeepURL               string        `yaml:"beep_url"`
	BeepLoop              int           `yaml:"beep_loop"`
	TransferTimeoutSecs   int           `yaml:"transfer_timeout_secs"`
	TransferTimeLimitSecs int           `yaml:"transfer_time_limit_secs"`
	MatchThreshold        float64       `yaml:"match_threshold"`
	ActionTimeout         time.Duration `yaml:"action_timeout"`
}

// DoorConfig holds the unlock code and the door-release sequence.
type DoorConfig struct {
	Code        string        `yaml:"code"`
	Digits      string        `yaml:"digits"`
	ToneMs      int           `yaml:"tone_ms"`
	HangupDelay time.Duration `yaml:"hangup_delay"`
}

// TranscriptionConfig holds the realtime transcription settings.
type TranscriptionConfig struct {
	APIKey            string        `yaml:"-"`
	URL               string        `yaml:"url"`
	Model             string        `yaml:"model"`
	Prompt            string        `yaml:"prompt"`
	Language          string        `yaml:"language"`
	VADThreshold      float64       `yaml:"vad_threshold"`
	PrefixPaddingMs   int           `yaml:"prefix_padding_ms"`
	SilenceDurationMs int           `yaml:"silence_duration_ms"`
	DialTimeout       time.Duration `yaml:"dial_timeout"`
}

// TelnyxConfig holds the call-control client settings.
type TelnyxConfig struct {
	APIKey  string        `yaml:"-"`
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// StoreConfig selects the phrase/flag backend.
type StoreConfig struct {
	Backend   string        `yaml:"backend"`
	RedisURL  string        `yaml:"-"`
	BadgerDir string        `yaml:"badger_dir"`
	Timeout   time.Duration `yaml:"timeout"`
	Keep      int           `yaml:"keep"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Addr:     ":3000",
		LogLevel: "info",
		Call: CallConfig{
			IntercomNumber:        "+14155491627",
			BeepURL:               "https://doggo.ninja/yeLcOA.mp3",
			BeepLoop:              1,
			TransferTimeoutSecs:   30,
			TransferTimeLimitSecs: 14400,
			MatchThreshold:        0.45,
			ActionTimeout:         10 * time.Second,
		},
		Door: DoorConfig{
			Code:        "1009",
			Digits:      strings.Repeat("9", 30),
			ToneMs:      100,
			HangupDelay: 3 * time.Second,
		},
		Transcription: TranscriptionConfig{
			URL:               "wss://api.openai.com/v1/realtime?intent=transcription",
			Model:             "whisper-1",
			Prompt:            "Listen for surrealist phrases of a few words long. Repeat exactly what you hear, in English.",
			Language:          "en",
			VADThreshold:      0.7,
			PrefixPaddingMs:   300,
			SilenceDurationMs: 1000,
			DialTimeout:       10 * time.Second,
		},
		Telnyx: TelnyxConfig{
			BaseURL: "https://api.telnyx.com/v2",
			Timeout: 10 * time.Second,
		},
		Store: StoreConfig{
			Backend: store.KindRedis,
			Timeout: 5 * time.Second,
			Keep:    3,
		},
	}
}

// Load builds the configuration from defaults, the YAML file at path (if
// non-empty) and the process environment.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from environment variables read through lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	var errs []error
	dur := func(key string, dst *time.Duration) {
		if v, ok := lookup(key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}
	num := func(key string, dst *float64) {
		if v, ok := lookup(key); ok && v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = f
		}
	}

	str("TELNYX_API_KEY", &c.Telnyx.APIKey)
	str("OPENAI_API_KEY", &c.Transcription.APIKey)
	str("REDIS_URL", &c.Store.RedisURL)

	str("MEDIA_STREAM_URL", &c.Call.StreamURL)
	str("MY_PHONE_NUMBER", &c.Call.ForwardNumber)
	str("INTERCOM_PHONE_NUMBER", &c.Call.IntercomNumber)
	str("BEEP_URL", &c.Call.BeepURL)
	num("PHRASE_MATCH_THRESHOLD", &c.Call.MatchThreshold)
	str("DOOR_CODE", &c.Door.Code)
	dur("HANGUP_DELAY", &c.Door.HangupDelay)
	str("STORE_BACKEND", &c.Store.Backend)
	str("BADGER_DIR", &c.Store.BadgerDir)
	str("LOG_LEVEL", &c.LogLevel)
	if v, ok := lookup("PORT"); ok && v != "" {
		c.Addr = ":" + v
	}

	return errors.Join(errs...)
}

// Validate reports every missing or inconsistent setting.
func (c *Config) Validate() error {
	var errs []error
	if c.Telnyx.APIKey == "" {
		errs = append(errs, errors.New("TELNYX_API_KEY is required"))
	}
	if c.Transcription.APIKey == "" {
		errs = append(errs, errors.New("OPENAI_API_KEY is required"))
	}
	if c.Call.IntercomNumber == "" {
		errs = append(errs, errors.New("call.intercom_number is required"))
	}
	if c.Call.StreamURL == "" {
		errs = append(errs, errors.New("MEDIA_STREAM_URL is required"))
	}
	if c.Call.MatchThreshold < 0 {
		errs = append(errs, errors.New("call.match_threshold must not be negative"))
	}
	if !isDigits(c.Door.Code) {
		errs = append(errs, fmt.Errorf("door.code %q must be one or more DTMF digits", c.Door.Code))
	}
	switch c.Store.Backend {
	case store.KindRedis:
		if c.Store.RedisURL == "" {
			errs = append(errs, errors.New("REDIS_URL is required for the redis store"))
		}
	case store.KindBadger:
		if c.Store.BadgerDir == "" {
			errs = append(errs, errors.New("store.badger_dir is required for the badger store"))
		}
	case store.KindMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown store backend %q", c.Store.Backend))
	}
	return errors.Join(errs...)
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !strings.ContainsRune("0123456789*#", r) {
			return false
		}
	}
	return true
}
