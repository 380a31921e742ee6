package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	cli "github.com/spf13/pflag"

	"github.com/square-key-labs/strawgo-intercom/src/config"
	"github.com/square-key-labs/strawgo-intercom/src/door"
	"github.com/square-key-labs/strawgo-intercom/src/intercom"
	"github.com/square-key-labs/strawgo-intercom/src/logger"
	"github.com/square-key-labs/strawgo-intercom/src/services/openai"
	"github.com/square-key-labs/strawgo-intercom/src/services/telnyx"
	"github.com/square-key-labs/strawgo-intercom/src/session"
	"github.com/square-key-labs/strawgo-intercom/src/store"
)

func main() {
	envFile := cli.StringP("env", "e", ".env", "Env file path")
	configFile := cli.StringP("config", "c", "", "YAML config file")
	addr := cli.StringP("addr", "a", "", "Listen address (overrides config)")
	logLevel := cli.StringP("log", "l", "", "Log level (debug, info, warn, error)")
	storeKind := cli.StringP("store", "s", "", "Phrase store backend (redis, badger, memory)")
	cli.Parse()

	godotenv.Load(*envFile)
	logger.Init()
	log := logger.WithPrefix("Main")

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Error("Failed to load config: %v", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Addr = *addr
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if *storeKind != "" {
		cfg.Store.Backend = *storeKind
	}
	logger.SetLevel(logger.ParseLevel(cfg.LogLevel))

	if err := cfg.Validate(); err != nil {
		log.Error("Invalid config: %v", err)
		os.Exit(1)
	}

	backend, err := store.Open(store.OpenConfig{
		Kind:      cfg.Store.Backend,
		RedisURL:  cfg.Store.RedisURL,
		BadgerDir: cfg.Store.BadgerDir,
	})
	if err != nil {
		log.Error("Failed to open %s store: %v", cfg.Store.Backend, err)
		os.Exit(1)
	}
	defer backend.Close()

	calls := telnyx.NewClient(telnyx.ClientConfig{
		APIKey:  cfg.Telnyx.APIKey,
		BaseURL: cfg.Telnyx.BaseURL,
		Timeout: cfg.Telnyx.Timeout,
	})

	transcriber := openai.NewTranscriber(openai.TranscriberConfig{
		APIKey:            cfg.Transcription.APIKey,
		URL:               cfg.Transcription.URL,
		Model:             cfg.Transcription.Model,
		Prompt:            cfg.Transcription.Prompt,
		Language:          cfg.Transcription.Language,
		VADThreshold:      cfg.Transcription.VADThreshold,
		PrefixPaddingMs:   cfg.Transcription.PrefixPaddingMs,
		SilenceDurationMs: cfg.Transcription.SilenceDurationMs,
		DialTimeout:       cfg.Transcription.DialTimeout,
	})

	ic := intercom.New(intercom.Config{
		IntercomNumber:        cfg.Call.IntercomNumber,
		ForwardNumber:         cfg.Call.ForwardNumber,
		StreamURL:             cfg.Call.StreamURL,
		BeepURL:               cfg.Call.BeepURL,
		BeepLoop:              cfg.Call.BeepLoop,
		TransferTimeoutSecs:   cfg.Call.TransferTimeoutSecs,
		TransferTimeLimitSecs: cfg.Call.TransferTimeLimitSecs,
		MatchThreshold:        cfg.Call.MatchThreshold,
		ActionTimeout:         cfg.Call.ActionTimeout,
	}, intercom.Deps{
		Calls:       calls,
		Transcriber: transcriber,
		Phrases: store.NewPhraseStore(backend, store.PhraseStoreConfig{
			Timeout: cfg.Store.Timeout,
			Keep:    cfg.Store.Keep,
		}),
		Door: door.NewActuator(calls, door.Config{
			Digits:      cfg.Door.Digits,
			ToneMs:      cfg.Door.ToneMs,
			HangupDelay: cfg.Door.HangupDelay,
			Timeout:     cfg.Call.ActionTimeout,
		}),
		Registry: session.NewRegistry(cfg.Door.Code),
	})

	server := intercom.NewServer(ic, intercom.ServerConfig{Addr: cfg.Addr})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("Intercom for %s using %s store", cfg.Call.IntercomNumber, cfg.Store.Backend)
	if err := server.Start(ctx); err != nil {
		log.Error("Server stopped: %v", err)
		os.Exit(1)
	}
	log.Info("Stopped")
}
