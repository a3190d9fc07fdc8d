// Package api defines the public wire contract of the timer broker: the
// message envelopes exchanged over the WebSocket and the JSON shapes served
// by the lookup endpoint. The server validates and sanitizes on its side;
// these types carry fields exactly as they appear on the wire.
package api

// Client -> server message types.
const (
	TypeSessionJoin   = "session_join"
	TypeSessionUpdate = "session_update"
	TypeTimerUpdate   = "timer_update"
	TypeUserUpdate    = "user_update"
	TypeUserList      = "user_list"
	TypePing          = "ping"
)

// Server -> client message types.
const (
	TypeSessionCreated   = "session_created"
	TypeSessionJoined    = "session_joined"
	TypeSessionUpdated   = "session_updated"
	TypeTimerUpdated     = "timer_updated"
	TypeUserConnected    = "user_connected"
	TypeUserDisconnected = "user_disconnected"
	TypeUserUpdated      = "user_updated"
	TypeUsersConnected   = "users_connected"
	TypePong             = "pong"
	TypeError            = "error"
)

// Interval is one ordered step in a session's cycle. Duration is seconds.
type Interval struct {
	Name      string `json:"name"`
	Duration  int    `json:"duration"`
	Alert     string `json:"alert"`
	CustomCSS string `json:"customCSS"`
}

// IntervalList is an ordered sequence of intervals plus the wall-clock
// millisecond timestamp of the last write.
type IntervalList struct {
	LastUpdated int64      `json:"lastUpdated"`
	Items       []Interval `json:"items"`
}

// TimerState is the shared timer as it travels on the wire. Remaining is
// milliseconds; IsPaused is only meaningful while IsRunning.
type TimerState struct {
	Repeat    bool  `json:"repeat"`
	Interval  int   `json:"interval"`
	Remaining int64 `json:"remaining"`
	IsRunning bool  `json:"isRunning"`
	IsPaused  bool  `json:"isPaused"`
}

// UserPublic is a session participant as peers see it. ClientID carries the
// hashed identity, never the raw client id.
type UserPublic struct {
	ClientID  string `json:"clientId"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatarUrl"`
	IsOnline  bool   `json:"isOnline"`
	LastPing  int64  `json:"lastPing"`
	OfflineAt int64  `json:"offlineAt,omitempty"`
}

// SessionUpdate is the session metadata a client sends with session_join and
// session_update.
type SessionUpdate struct {
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Intervals   IntervalList `json:"intervals"`
}

// SessionSnapshot is the full external form of a session, carried by join
// acks, session_updated broadcasts, and the lookup endpoint.
type SessionSnapshot struct {
	SessionID    string                `json:"sessionId,omitempty"`
	Name         string                `json:"name"`
	Description  string                `json:"description"`
	Intervals    IntervalList          `json:"intervals"`
	Timer        *TimerState           `json:"timer,omitempty"`
	Users        map[string]UserPublic `json:"users,omitempty"`
	CreatedAt    int64                 `json:"createdAt,omitempty"`
	LastActivity int64                 `json:"lastActivity,omitempty"`
}

// UserProfile is the user payload a client sends with session_join and
// user_update. ClientID is the raw id; it never comes back in responses.
type UserProfile struct {
	ClientID  string `json:"clientId"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatarUrl"`
}

// ClientMessage is the envelope for every client -> server message.
type ClientMessage struct {
	Type      string         `json:"type"`
	SessionID string         `json:"sessionId,omitempty"`
	Session   *SessionUpdate `json:"session,omitempty"`
	Timer     *TimerState    `json:"timer,omitempty"`
	User      *UserProfile   `json:"user,omitempty"`
}

// ServerMessage is the envelope for every server -> client message. Message
// is set only on type "error".
type ServerMessage struct {
	Type      string                `json:"type"`
	SessionID string                `json:"sessionId,omitempty"`
	ClientID  string                `json:"clientId,omitempty"`
	Session   *SessionSnapshot      `json:"session,omitempty"`
	Timer     *TimerState           `json:"timer,omitempty"`
	User      *UserPublic           `json:"user,omitempty"`
	Users     map[string]UserPublic `json:"users,omitempty"`
	Message   string                `json:"message,omitempty"`
}
