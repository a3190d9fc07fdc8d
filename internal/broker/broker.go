// Package broker implements the message semantics of the collaborative timer
// service: joining sessions, applying interval and timer updates, fanning
// broadcasts out to session members, and reaping idle state.
package broker

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/cotimer/server/internal/health"
	"github.com/cotimer/server/internal/logging"
	"github.com/cotimer/server/internal/metrics"
	"github.com/cotimer/server/internal/protocol"
	"github.com/cotimer/server/internal/session"
)

var log = logging.L("broker")

// binding records which session and client a socket is currently joined to.
type binding struct {
	sessionID string
	clientID  string // raw client id, routing only
}

// Broker owns the session store and applies every inbound message. All
// per-session work happens under that session's lock, so handlers for the
// same session never interleave.
type Broker struct {
	store   *session.Store
	metrics *metrics.Collector
	clock   clockwork.Clock
	health  *health.Monitor

	cleanupInterval time.Duration

	mu       sync.RWMutex
	bindings map[string]*binding // socketID -> membership
}

// New creates a broker around the given store. A nil clock selects the real
// clock. cleanupInterval is both the sweep cadence and the offline age at
// which users are reaped.
func New(store *session.Store, collector *metrics.Collector, clock clockwork.Clock, cleanupInterval time.Duration) *Broker {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Broker{
		store:           store,
		metrics:         collector,
		clock:           clock,
		health:          health.NewMonitor(),
		cleanupInterval: cleanupInterval,
		bindings:        make(map[string]*binding),
	}
}

// Health exposes the broker's component checks for the HTTP surface.
func (b *Broker) Health() *health.Monitor {
	return b.health
}

// HandleFrame applies one inbound text frame from a socket. Malformed frames
// are answered with an error message; the connection stays open.
func (b *Broker) HandleFrame(sock session.Socket, data []byte) {
	msg, err := protocol.DecodeClientMessage(data)
	if err != nil {
		b.reject(sock, err)
		return
	}
	b.metrics.IncReceived(msg.Type)

	switch msg.Type {
	case protocol.TypePing:
		b.handlePing(sock)
	case protocol.TypeSessionJoin:
		b.handleSessionJoin(sock, msg)
	case protocol.TypeSessionUpdate:
		b.handleSessionUpdate(sock, msg)
	case protocol.TypeTimerUpdate:
		b.handleTimerUpdate(sock, msg)
	case protocol.TypeUserUpdate:
		b.handleUserUpdate(sock, msg)
	case protocol.TypeUserList:
		b.handleUserList(sock, msg)
	}
}

// RemoveClient detaches a closed socket from its session, marking the user
// offline when its last socket drops. The transport calls this once per
// connection teardown.
func (b *Broker) RemoveClient(socketID string) {
	b.mu.Lock()
	bind, ok := b.bindings[socketID]
	delete(b.bindings, socketID)
	b.mu.Unlock()
	if !ok {
		return
	}
	b.dropMembership(bind, socketID)
}

func (b *Broker) dropMembership(bind *binding, socketID string) {
	s, ok := b.store.Get(bind.sessionID)
	if !ok {
		return
	}
	now := b.clock.Now().UnixMilli()

	s.Lock()
	defer s.Unlock()

	u, ok := s.User(bind.clientID)
	if !ok {
		return
	}
	u.RemoveSocket(socketID)
	if u.Online() {
		return
	}

	u.OfflineAt = now
	b.metrics.ClientDisconnected()
	b.broadcast(s, protocol.NewUserUpdated(s.ID, u.Public()), socketID)
	log.Info("user offline", "sessionId", s.ID, "clientId", u.HashedID)

	if !s.AnyOnline() {
		s.EmptyAt = now
		log.Info("session empty", "sessionId", s.ID)
	}
}

func (b *Broker) bind(socketID, sessionID, clientID string) {
	b.mu.Lock()
	b.bindings[socketID] = &binding{sessionID: sessionID, clientID: clientID}
	b.mu.Unlock()
}

func (b *Broker) boundTo(socketID string) (*binding, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	bind, ok := b.bindings[socketID]
	return bind, ok
}

// send delivers a direct message to one socket.
func (b *Broker) send(sock session.Socket, msg protocol.ServerMessage) {
	if err := sock.Send(msg); err != nil {
		log.Debug("send failed", "socketId", sock.ID(), "type", msg.Type, "error", err)
		return
	}
	b.metrics.IncSent(msg.Type)
}

// broadcast fans msg out to every open socket in the session except the
// excluded one. Caller holds the session lock; Send never blocks, it only
// enqueues.
func (b *Broker) broadcast(s *session.Session, msg protocol.ServerMessage, excludeSocketID string) {
	for _, u := range s.Users {
		for id, sock := range u.Sockets {
			if id == excludeSocketID || !sock.IsOpen() {
				continue
			}
			if err := sock.Send(msg); err != nil {
				log.Debug("broadcast drop", "socketId", id, "type", msg.Type, "error", err)
				continue
			}
			b.metrics.IncBroadcast(msg.Type)
		}
	}
}

// reject answers a bad frame with its wire error and counts it.
func (b *Broker) reject(sock session.Socket, err error) {
	b.metrics.IncError(errorKind(err))
	log.Warn("message rejected", "socketId", sock.ID(), "error", err)
	b.send(sock, protocol.NewError(err))
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, protocol.ErrUnknownType):
		return "unknown_type"
	case errors.Is(err, protocol.ErrInvalidIntervals):
		return "invalid_intervals"
	case errors.Is(err, protocol.ErrInvalidTimer):
		return "invalid_timer"
	case errors.Is(err, protocol.ErrInvalidUser):
		return "invalid_user"
	case errors.Is(err, protocol.ErrInvalidSessionID):
		return "invalid_session_id"
	case errors.Is(err, protocol.ErrSessionNotFound):
		return "session_not_found"
	default:
		return "invalid_message"
	}
}

// newClientID replaces a missing or malformed client id.
func newClientID() string {
	return uuid.NewString()
}
