// Package transports accepts the telephony provider's media-stream WebSocket
// connections and hands L16 audio to a sink.
package transports

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/square-key-labs/strawgo-intercom/src/frames"
	"github.com/square-key-labs/strawgo-intercom/src/logger"
	"github.com/square-key-labs/strawgo-intercom/src/serializers"
)

// MediaSink receives the audio of a media stream, in arrival order per
// connection. chunk is 8 kHz 16-bit little-endian PCM.
type MediaSink interface {
	HandleMedia(callID string, chunk []byte)
}

// MediaWebSocketTransport serves media-stream connections. Each connection is
// read by its own goroutine so frames of one call stay ordered.
type MediaWebSocketTransport struct {
	sink          MediaSink
	newSerializer func() serializers.FrameSerializer
	upgrader      websocket.Upgrader
	readLimit     int64
	conns         map[string]*wsConnection
	connMu        sync.Mutex
	log           *logger.Logger
}

type wsConnection struct {
	id     string
	conn   *websocket.Conn
	callID string
}

// MediaWebSocketConfig holds configuration for the media transport
type MediaWebSocketConfig struct {
	Sink MediaSink

	// NewSerializer builds the per-connection protocol serializer.
	// Default: Telnyx.
	NewSerializer func() serializers.FrameSerializer

	// ReadLimit caps a single message. Default 1 MiB.
	ReadLimit int64
}

// NewMediaWebSocketTransport creates the transport. It panics without a sink.
func NewMediaWebSocketTransport(config MediaWebSocketConfig) *MediaWebSocketTransport {
	if config.Sink == nil {
		panic("MediaWebSocketTransport requires a sink")
	}
	if config.NewSerializer == nil {
		config.NewSerializer = func() serializers.FrameSerializer {
			return serializers.NewTelnyxFrameSerializer()
		}
	}
	if config.ReadLimit <= 0 {
		config.ReadLimit = 1 << 20
	}
	return &MediaWebSocketTransport{
		sink:          config.Sink,
		newSerializer: config.NewSerializer,
		readLimit:     config.ReadLimit,
		conns:         make(map[string]*wsConnection),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // provider connects server-to-server
			},
		},
		log: logger.WithPrefix("MediaWS"),
	}
}

// ServeHTTP upgrades the request and runs the receive loop until the stream
// stops or the peer disconnects.
func (t *MediaWebSocketTransport) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := t.upgrader.Upgrade(w, r, nil)
	if err != nil {
		t.log.Warn("Upgrade failed: %v", err)
		return
	}
	conn.SetReadLimit(t.readLimit)

	c := &wsConnection{
		id:   fmt.Sprintf("ws-%p", conn),
		conn: conn,
	}

	t.connMu.Lock()
	t.conns[c.id] = c
	t.connMu.Unlock()

	defer func() {
		t.connMu.Lock()
		delete(t.conns, c.id)
		t.connMu.Unlock()
		conn.Close()
		t.log.Debug("Media connection closed: %s (call %s)", c.id, c.callID)
	}()

	t.log.Debug("Media connection from %s: %s", r.RemoteAddr, c.id)
	t.receive(c, t.newSerializer())
}

func (t *MediaWebSocketTransport) receive(c *wsConnection, serializer serializers.FrameSerializer) {
	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				t.log.Warn("Read error on %s: %v", c.id, err)
			}
			return
		}

		frame, err := serializer.Deserialize(message)
		if err != nil {
			t.log.Debug("Dropping media message on %s: %v", c.id, err)
			continue
		}
		if frame == nil {
			continue
		}

		switch f := frame.(type) {
		case *frames.StartFrame:
			c.callID = f.CallControlID
			t.log.ForCall(c.callID).Info("Media stream started (%s, %d Hz)", f.Codec, f.SampleRate)

		case *frames.AudioFrame:
			if c.callID == "" {
				continue
			}
			t.sink.HandleMedia(c.callID, f.Data)

		case *frames.StopFrame:
			t.log.ForCall(c.callID).Info("Media stream stopped")
			return
		}
	}
}

// Len returns the number of open media connections.
func (t *MediaWebSocketTransport) Len() int {
	t.connMu.Lock()
	defer t.connMu.Unlock()
	return len(t.conns)
}

// Close drops every open media connection.
func (t *MediaWebSocketTransport) Close() error {
	t.connMu.Lock()
	defer t.connMu.Unlock()
	for _, c := range t.conns {
		c.conn.Close()
	}
	return nil
}
