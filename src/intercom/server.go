package intercom

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/square-key-labs/strawgo-intercom/src/transports"
)

// ServerConfig holds configuration for the HTTP server
type ServerConfig struct {
	Addr      string // e.g. ":3000"
	MediaPath string // default "/media"

	// ShutdownTimeout bounds graceful shutdown. Default 10s.
	ShutdownTimeout time.Duration
}

// Server serves the webhook, the media stream and the small JSON API.
type Server struct {
	intercom *Intercom
	media    *transports.MediaWebSocketTransport
	server   *http.Server
	timeout  time.Duration
}

// NewServer wires ic and a media transport feeding it behind one mux.
func NewServer(ic *Intercom, config ServerConfig) *Server {
	if config.MediaPath == "" {
		config.MediaPath = "/media"
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = 10 * time.Second
	}

	media := transports.NewMediaWebSocketTransport(transports.MediaWebSocketConfig{Sink: ic})

	return &Server{
		intercom: ic,
		media:    media,
		server: &http.Server{
			Addr:              config.Addr,
			Handler:           NewRouter(ic, media, config.MediaPath),
			ReadHeaderTimeout: 10 * time.Second,
		},
		timeout: config.ShutdownTimeout,
	}
}

// NewRouter builds the HTTP routes.
func NewRouter(ic *Intercom, media http.Handler, mediaPath string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /intercom", serveLanding)
	mux.HandleFunc("POST /intercom", ic.ServeWebhook)
	mux.Handle("GET "+mediaPath, media)
	mux.HandleFunc("GET /api/phrases", ic.ServePhrases)
	mux.HandleFunc("GET /healthz", ic.ServeHealth)
	return mux
}

// Start listens until ctx is cancelled, then shuts down: the HTTP server
// first, then media connections, then every live transcription link.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.intercom.log.Info("Listening on %s", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	sctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	s.intercom.log.Info("Shutting down")
	if err := s.server.Shutdown(sctx); err != nil {
		s.intercom.log.Warn("HTTP shutdown: %v", err)
	}
	if n := s.media.Len(); n > 0 {
		s.intercom.log.Info("Closing %d media connections", n)
	}
	s.media.Close()
	return s.intercom.Shutdown(sctx)
}
