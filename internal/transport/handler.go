// Package transport upgrades HTTP requests to WebSocket connections and
// bridges them to the session broker. Each connection runs the usual pump
// pair: a read pump that feeds frames to the broker and a write pump that
// owns every write, including liveness pings.
package transport

import (
	"context"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/cotimer/server/internal/logging"
	"github.com/cotimer/server/internal/metrics"
	"github.com/cotimer/server/internal/protocol"
	"github.com/cotimer/server/internal/session"
)

var log = logging.L("transport")

// FrameHandler is the broker-side contract: one call per inbound frame,
// one call when the socket goes away.
type FrameHandler interface {
	HandleFrame(sock session.Socket, data []byte)
	RemoveClient(socketID string)
}

// Handler accepts WebSocket upgrades and tracks the live connections so a
// graceful shutdown can close them all.
type Handler struct {
	broker   FrameHandler
	metrics  *metrics.Collector
	upgrader websocket.Upgrader

	mu     sync.Mutex
	conns  map[string]*Conn
	closed bool

	wg sync.WaitGroup
}

// NewHandler wires the upgrade endpoint to a broker.
func NewHandler(broker FrameHandler, collector *metrics.Collector) *Handler {
	return &Handler{
		broker:  broker,
		metrics: collector,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Sessions are open to anyone who knows the id, so the
			// browser origin carries no authority here.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		conns: make(map[string]*Conn),
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	closed := h.closed
	h.mu.Unlock()
	if closed {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		log.Warn("upgrade failed", logging.KeyRemoteAddr, r.RemoteAddr, logging.KeyError, err)
		return
	}

	conn := &Conn{
		id:      uuid.NewString(),
		remote:  r.RemoteAddr,
		ws:      ws,
		handler: h,
		send:    make(chan protocol.ServerMessage, sendBuffer),
		done:    make(chan struct{}),
	}
	conn.log = log.With(logging.KeySocketID, conn.id, logging.KeyRemoteAddr, conn.remote)

	h.mu.Lock()
	if h.closed {
		// Shutdown won the race after our first check.
		h.mu.Unlock()
		ws.Close()
		return
	}
	h.conns[conn.id] = conn
	h.mu.Unlock()

	h.metrics.SocketOpened()
	conn.log.Info("socket open")

	h.wg.Add(2)
	go func() {
		defer h.wg.Done()
		conn.writePump()
	}()
	go func() {
		defer h.wg.Done()
		conn.readPump()
	}()
}

// detach forgets a connection and lets the broker release its session
// membership. Called exactly once per connection, from Conn.shutdown.
func (h *Handler) detach(c *Conn) {
	h.mu.Lock()
	delete(h.conns, c.id)
	h.mu.Unlock()

	h.broker.RemoveClient(c.id)
	h.metrics.SocketClosed()
}

// Shutdown refuses new upgrades, sends every peer a normal closure frame,
// and waits for the pumps to drain or the context to expire.
func (h *Handler) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	h.closed = true
	conns := make([]*Conn, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		c.shutdown()
	}

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
