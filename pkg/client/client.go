// Package client implements a Go client for the timer broker's WebSocket
// protocol: join a session, send updates, receive broadcasts, and survive
// connection loss with automatic rejoin.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/cotimer/server/internal/logging"
	"github.com/cotimer/server/pkg/api"
)

const (
	dialTimeout = 10 * time.Second
	writeWait   = 10 * time.Second

	// pongWait is how long the connection may stay silent. The broker pings
	// well inside this window, and every inbound message refreshes it.
	pongWait = 60 * time.Second

	// pingInterval paces the application-level heartbeat that keeps this
	// participant's lastPing fresh on the broker.
	pingInterval = 15 * time.Second

	maxMessageSize = 512 * 1024
	sendBuffer     = 16

	initialBackoff = 1 * time.Second
	maxBackoff     = 60 * time.Second
	backoffFactor  = 2.0
	backoffJitter  = 0.3
)

var (
	// ErrQueueFull means the connection cannot keep up; the message was not
	// queued.
	ErrQueueFull = errors.New("client: send queue full")

	// ErrStopped is returned by send helpers after Stop.
	ErrStopped = errors.New("client: stopped")
)

// Config describes one participant's connection to one session.
type Config struct {
	// URL is the WebSocket endpoint, e.g. ws://localhost:3000/ws.
	URL string

	// SessionID names the room to join or create.
	SessionID string

	// ClientID identifies this participant across reconnects. Generated
	// when empty.
	ClientID string

	Name      string
	AvatarURL string

	// Session seeds the room's metadata when the join creates it.
	Session *api.SessionUpdate

	// OnMessage receives every server message, acks included, serially
	// from the read loop. It must not block.
	OnMessage func(api.ServerMessage)

	// Reconnect redials with capped jittered backoff after connection
	// loss, re-issuing the join with the last-known session state.
	Reconnect bool
}

// Client is a connection to one broker session. Run drives it; the send
// helpers may be called from any goroutine.
type Client struct {
	cfg Config
	log *slog.Logger

	mu          sync.RWMutex
	lastTimer   *api.TimerState
	sessionBody *api.SessionUpdate

	send     chan api.ClientMessage
	done     chan struct{}
	stopOnce sync.Once
}

// New validates the config and prepares a client. Dialing happens in Run.
func New(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("client: url required")
	}
	if cfg.SessionID == "" {
		return nil, errors.New("client: session id required")
	}
	if cfg.ClientID == "" {
		cfg.ClientID = uuid.NewString()
	}
	return &Client{
		cfg:         cfg,
		log:         logging.L("client").With(logging.KeySessionID, cfg.SessionID),
		sessionBody: cfg.Session,
		send:        make(chan api.ClientMessage, sendBuffer),
		done:        make(chan struct{}),
	}, nil
}

// ClientID returns the raw participant id this client joins with.
func (c *Client) ClientID() string {
	return c.cfg.ClientID
}

// LastTimer returns the most recent timer state seen or sent, and whether
// one exists yet.
func (c *Client) LastTimer() (api.TimerState, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.lastTimer == nil {
		return api.TimerState{}, false
	}
	return *c.lastTimer, true
}

// Run dials, joins, and serves the connection until ctx is canceled or Stop
// is called. With Reconnect set it redials on failure, re-issuing the join
// each time. Call it once.
func (c *Client) Run(ctx context.Context) error {
	backoff := initialBackoff
	for {
		connected, err := c.runOnce(ctx)

		select {
		case <-c.done:
			return nil
		default:
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !c.cfg.Reconnect {
			return err
		}
		if connected {
			backoff = initialBackoff
		}

		delay := applyJitter(backoff, backoffJitter)
		c.log.Warn("connection lost, reconnecting", "delay", delay, "error", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.done:
			return nil
		case <-time.After(delay):
		}

		backoff = time.Duration(float64(backoff) * backoffFactor)
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// Stop closes the connection with a normal closure and ends Run. Safe to
// call more than once.
func (c *Client) Stop() {
	c.stopOnce.Do(func() {
		close(c.done)
	})
}

// SendTimerUpdate pushes an authoritative timer overwrite to the session.
func (c *Client) SendTimerUpdate(t api.TimerState) error {
	c.mu.Lock()
	cp := t
	c.lastTimer = &cp
	c.mu.Unlock()
	return c.enqueue(api.ClientMessage{Type: api.TypeTimerUpdate, SessionID: c.cfg.SessionID, Timer: &t})
}

// SendSessionUpdate overwrites the session's metadata and interval list.
func (c *Client) SendSessionUpdate(upd api.SessionUpdate) error {
	c.mu.Lock()
	cp := upd
	c.sessionBody = &cp
	c.mu.Unlock()
	return c.enqueue(api.ClientMessage{Type: api.TypeSessionUpdate, SessionID: c.cfg.SessionID, Session: &upd})
}

// SendUserUpdate changes this participant's display profile.
func (c *Client) SendUserUpdate(name, avatarURL string) error {
	c.mu.Lock()
	c.cfg.Name, c.cfg.AvatarURL = name, avatarURL
	c.mu.Unlock()
	return c.enqueue(api.ClientMessage{
		Type:      api.TypeUserUpdate,
		SessionID: c.cfg.SessionID,
		User:      &api.UserProfile{ClientID: c.cfg.ClientID, Name: name, AvatarURL: avatarURL},
	})
}

// RequestUserList asks for the full roster; the reply arrives on OnMessage
// as users_connected.
func (c *Client) RequestUserList() error {
	return c.enqueue(api.ClientMessage{Type: api.TypeUserList, SessionID: c.cfg.SessionID})
}

// Ping sends an application-level heartbeat outside the automatic cadence.
func (c *Client) Ping() error {
	return c.enqueue(api.ClientMessage{Type: api.TypePing})
}

func (c *Client) enqueue(msg api.ClientMessage) error {
	select {
	case <-c.done:
		return ErrStopped
	default:
	}
	select {
	case c.send <- msg:
		return nil
	default:
		return ErrQueueFull
	}
}

// runOnce serves one connection. The bool reports whether the dial
// succeeded, so the caller can reset its backoff.
func (c *Client) runOnce(ctx context.Context) (bool, error) {
	dialer := websocket.Dialer{HandshakeTimeout: dialTimeout}
	ws, resp, err := dialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
			return false, fmt.Errorf("dial %s: %w (status %d)", c.cfg.URL, err, resp.StatusCode)
		}
		return false, fmt.Errorf("dial %s: %w", c.cfg.URL, err)
	}
	defer ws.Close()

	if err := c.writeJoin(ws); err != nil {
		return true, fmt.Errorf("join: %w", err)
	}
	c.log.Info("connected", "url", c.cfg.URL)

	// The watcher turns ctx cancellation or Stop into a close frame plus a
	// hard close, which unblocks the read loop immediately.
	watchDone := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
		case <-c.done:
		case <-watchDone:
			return
		}
		ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		ws.Close()
	}()
	defer close(watchDone)

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.writePump(ws, stop)
	}()

	err = c.readLoop(ws)
	close(stop)
	wg.Wait()
	return true, err
}

// writeJoin issues the session_join handshake carrying the last-known
// session state, so a rejoin after the room was reaped recreates it.
func (c *Client) writeJoin(ws *websocket.Conn) error {
	c.mu.RLock()
	body := c.sessionBody
	var timer *api.TimerState
	if c.lastTimer != nil {
		cp := *c.lastTimer
		timer = &cp
	}
	user := &api.UserProfile{
		ClientID:  c.cfg.ClientID,
		Name:      c.cfg.Name,
		AvatarURL: c.cfg.AvatarURL,
	}
	c.mu.RUnlock()

	msg := api.ClientMessage{
		Type:      api.TypeSessionJoin,
		SessionID: c.cfg.SessionID,
		Session:   body,
		Timer:     timer,
		User:      user,
	}
	ws.SetWriteDeadline(time.Now().Add(writeWait))
	return ws.WriteJSON(msg)
}

func (c *Client) readLoop(ws *websocket.Conn) error {
	ws.SetReadLimit(maxMessageSize)
	ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPingHandler(func(appData string) error {
		ws.SetReadDeadline(time.Now().Add(pongWait))
		return ws.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(writeWait))
	})

	for {
		var msg api.ServerMessage
		if err := ws.ReadJSON(&msg); err != nil {
			return err
		}
		ws.SetReadDeadline(time.Now().Add(pongWait))
		c.observe(msg)
		if c.cfg.OnMessage != nil {
			c.cfg.OnMessage(msg)
		}
	}
}

// writePump serializes queued messages and the heartbeat onto the wire. A
// write failure closes the connection so the read loop notices.
func (c *Client) writePump(ws *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg := <-c.send:
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteJSON(msg); err != nil {
				c.log.Debug("write failed", "error", err)
				ws.Close()
				return
			}
		case <-ticker.C:
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteJSON(api.ClientMessage{Type: api.TypePing}); err != nil {
				ws.Close()
				return
			}
		case <-stop:
			return
		}
	}
}

// observe keeps the last-known session state for rejoins.
func (c *Client) observe(msg api.ServerMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if msg.Timer != nil {
		cp := *msg.Timer
		c.lastTimer = &cp
	}
	if msg.Session != nil {
		if msg.Session.Timer != nil {
			cp := *msg.Session.Timer
			c.lastTimer = &cp
		}
		if msg.Session.Name != "" || len(msg.Session.Intervals.Items) > 0 {
			c.sessionBody = &api.SessionUpdate{
				Name:        msg.Session.Name,
				Description: msg.Session.Description,
				Intervals:   msg.Session.Intervals,
			}
		}
	}
}

// applyJitter adds ±frac random jitter to a duration.
func applyJitter(d time.Duration, frac float64) time.Duration {
	if frac <= 0 {
		return d
	}
	jitter := float64(d) * frac * (2*rand.Float64() - 1)
	result := time.Duration(float64(d) + jitter)
	if result < 0 {
		return 0
	}
	return result
}
