// Package session holds the broker's in-memory state: sessions, their user
// rosters, and the socket handles users are reachable through. All state is
// process-memory; nothing survives a restart.
package session

import (
	"sync"

	"github.com/jonboulle/clockwork"

	"github.com/cotimer/server/internal/protocol"
	"github.com/cotimer/server/internal/timer"
)

// Socket is the transport handle the broker delivers through. The transport
// adapter owns the connection; users hold weak references that drop on close.
type Socket interface {
	// ID returns the per-connection socket id.
	ID() string
	// Send enqueues one outbound message without blocking session handling.
	Send(msg protocol.ServerMessage) error
	// IsOpen reports whether the connection still accepts writes.
	IsOpen() bool
}

// User is one participant within a session, keyed by its raw client id. The
// raw id is used only for routing; HashedID is the identity peers see.
type User struct {
	ClientID  string // raw UUID v4, never externalized
	HashedID  string // hex SHA-256 of ClientID
	Name      string
	AvatarURL string
	Sockets   map[string]Socket
	LastPing  int64 // wall-clock ms of the last join or ping
	OfflineAt int64 // wall-clock ms the last socket dropped, 0 while online
}

// NewUser builds a user for a raw client id, deriving the hashed identity.
func NewUser(clientID string) *User {
	return &User{
		ClientID: clientID,
		HashedID: protocol.HashClientID(clientID),
		Sockets:  make(map[string]Socket),
	}
}

// Online reports whether any of the user's sockets is still open.
func (u *User) Online() bool {
	for _, s := range u.Sockets {
		if s.IsOpen() {
			return true
		}
	}
	return false
}

// AddSocket binds a transport connection to the user.
func (u *User) AddSocket(s Socket) {
	u.Sockets[s.ID()] = s
}

// RemoveSocket drops a transport connection by id.
func (u *User) RemoveSocket(socketID string) {
	delete(u.Sockets, socketID)
}

// Public returns the externalized form carried on the wire. ClientID holds
// the hash, never the raw id.
func (u *User) Public() protocol.UserPublic {
	return protocol.UserPublic{
		ClientID:  u.HashedID,
		Name:      u.Name,
		AvatarURL: u.AvatarURL,
		IsOnline:  u.Online(),
		LastPing:  u.LastPing,
		OfflineAt: u.OfflineAt,
	}
}

// Session is one named room. The embedded mutex serializes every mutation
// and broadcast assembly; handlers hold it for the whole message, so the
// timer core and the maps below never see concurrent access.
type Session struct {
	sync.Mutex

	ID          string
	Name        string
	Description string
	Intervals   protocol.IntervalList
	Timer       *timer.Core
	Users       map[string]*User // keyed by raw client id

	CreatedAt    int64
	LastActivity int64
	EmptyAt      int64 // wall-clock ms the room lost its last open socket, 0 otherwise
}

// New builds an empty session anchored at the clock's current time. The
// timer core shares the injected clock.
func New(id string, clock clockwork.Clock) *Session {
	now := clock.Now().UnixMilli()
	s := &Session{
		ID:           id,
		Intervals:    protocol.IntervalList{Items: []protocol.Interval{}},
		Users:        make(map[string]*User),
		CreatedAt:    now,
		LastActivity: now,
	}
	s.Timer = timer.New(s.Intervals.Items, clock)
	return s
}

// ApplyUpdate overwrites the session metadata and rebinds the timer core to
// the new interval list. Caller holds the session lock.
func (s *Session) ApplyUpdate(upd *protocol.SessionUpdate) {
	s.Name = protocol.SanitizeSessionName(upd.Name)
	s.Description = protocol.SanitizeDescription(upd.Description)
	s.Intervals = protocol.SanitizeIntervals(upd.Intervals)
	s.Timer.UpdateIntervals(s.Intervals.Items)
}

// User returns the participant for a raw client id.
func (s *Session) User(clientID string) (*User, bool) {
	u, ok := s.Users[clientID]
	return u, ok
}

// AnyOnline reports whether any participant has an open socket. Caller holds
// the session lock.
func (s *Session) AnyOnline() bool {
	for _, u := range s.Users {
		if u.Online() {
			return true
		}
	}
	return false
}

// OnlineCount returns how many participants have at least one open socket.
// Caller holds the session lock.
func (s *Session) OnlineCount() int {
	n := 0
	for _, u := range s.Users {
		if u.Online() {
			n++
		}
	}
	return n
}

// Roster returns the externalized user map keyed by hashed id. Caller holds
// the session lock.
func (s *Session) Roster() map[string]protocol.UserPublic {
	users := make(map[string]protocol.UserPublic, len(s.Users))
	for _, u := range s.Users {
		users[u.HashedID] = u.Public()
	}
	return users
}

// Snapshot assembles the full external form around an already synced timer
// state. Caller holds the session lock.
func (s *Session) Snapshot(t protocol.TimerState) protocol.SessionSnapshot {
	return protocol.SessionSnapshot{
		SessionID:    s.ID,
		Name:         s.Name,
		Description:  s.Description,
		Intervals:    s.Intervals,
		Timer:        &t,
		Users:        s.Roster(),
		CreatedAt:    s.CreatedAt,
		LastActivity: s.LastActivity,
	}
}

// normalize re-canonicalizes the mutable metadata through the protocol
// sanitizers. Store.Put applies it so nothing unsanitized is ever findable.
func (s *Session) normalize() {
	s.Name = protocol.SanitizeSessionName(s.Name)
	s.Description = protocol.SanitizeDescription(s.Description)
	s.Intervals = protocol.SanitizeIntervals(s.Intervals)
}
