package transport

import (
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cotimer/server/internal/protocol"
)

const (
	// writeWait bounds a single write to a peer.
	writeWait = 10 * time.Second

	// pongWait is how long a connection may stay silent before it is
	// considered dead. Pings go out early enough that a healthy peer
	// always answers within the window.
	pongWait   = 30 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize caps inbound frames. Interval lists are small;
	// anything near this limit is not a timer client.
	maxMessageSize = 64 * 1024

	// sendBuffer absorbs broadcast bursts per connection. A peer that
	// falls further behind than this starts losing messages.
	sendBuffer = 64
)

// Conn is one WebSocket attached to the broker. It satisfies
// session.Socket: the broker enqueues outbound messages through Send and
// the pumps own all reads and writes on the underlying connection.
type Conn struct {
	id      string
	remote  string
	ws      *websocket.Conn
	handler *Handler

	send   chan protocol.ServerMessage
	done   chan struct{}
	closed atomic.Bool
	once   sync.Once

	log *slog.Logger
}

func (c *Conn) ID() string { return c.id }

func (c *Conn) IsOpen() bool { return !c.closed.Load() }

// Send enqueues one outbound message without blocking session handling.
func (c *Conn) Send(msg protocol.ServerMessage) error {
	if c.closed.Load() {
		return ErrSocketClosed
	}
	select {
	case c.send <- msg:
		return nil
	default:
		c.log.Warn("send buffer full, dropping message", "type", msg.Type)
		return ErrSendBufferFull
	}
}

// readPump feeds inbound frames to the broker until the peer goes away.
func (c *Conn) readPump() {
	defer c.shutdown()

	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived) {
				c.log.Warn("read failed", "error", err)
			}
			return
		}
		c.handleFrame(data)
	}
}

// handleFrame hands one frame to the broker. A panicking handler costs the
// frame that caused it, not the connection.
func (c *Conn) handleFrame(data []byte) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("frame handler panicked", "panic", r, "stack", string(debug.Stack()))
		}
	}()
	c.handler.broker.HandleFrame(c, data)
}

// writePump serializes all writes: queued messages, liveness pings, and
// the final close frame.
func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteJSON(msg); err != nil {
				c.log.Debug("write failed", "error", err)
				c.shutdown()
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.shutdown()
				return
			}
		case <-c.done:
			c.flushAndClose()
			return
		}
	}
}

// flushAndClose drains whatever is already queued, then tells the peer
// this was a deliberate goodbye.
func (c *Conn) flushAndClose() {
	c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	for {
		select {
		case msg := <-c.send:
			if err := c.ws.WriteJSON(msg); err != nil {
				return
			}
		default:
			c.ws.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// shutdown runs the teardown exactly once, whichever pump gets there
// first. Closing done lets the write pump flush and close the underlying
// connection, which in turn unblocks the read pump.
func (c *Conn) shutdown() {
	c.once.Do(func() {
		c.closed.Store(true)
		close(c.done)
		c.handler.detach(c)
		c.log.Info("socket closed")
	})
}
