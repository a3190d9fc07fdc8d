package protocol

import "encoding/json"

// Inbound message type constants.
const (
	TypeSessionJoin   = "session_join"
	TypeSessionUpdate = "session_update"
	TypeTimerUpdate   = "timer_update"
	TypeUserUpdate    = "user_update"
	TypeUserList      = "user_list"
	TypePing          = "ping"
)

// Outbound message type constants.
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

// Field bounds and defaults applied by the codec.
const (
	// DefaultDuration is the interval length in seconds used when a
	// duration is absent or zero, and the virtual interval length for an
	// empty interval list.
	DefaultDuration = 1500

	// MinDuration and MaxDuration bound interval durations in seconds.
	MinDuration = 1
	MaxDuration = 86400

	// DefaultDurationMS and MaxRemainingMS are the millisecond forms used
	// by timer state.
	DefaultDurationMS = DefaultDuration * 1000
	MaxRemainingMS    = MaxDuration * 1000

	// DefaultAlert names the client-side cue played at interval end.
	DefaultAlert = "Default"

	MaxIntervalNameLen = 50
	MaxAlertLen        = 50
	MaxUserNameLen     = 50
	MaxAvatarURLLen    = 500
	MaxSessionNameLen  = 1000
	MaxDescriptionLen  = 1000
)

// Interval is one ordered step in a session's cycle.
type Interval struct {
	Name      string `json:"name"`
	Duration  int    `json:"duration"` // seconds
	Alert     string `json:"alert"`
	CustomCSS string `json:"customCSS"` // opaque to the broker
}

// IntervalList is an ordered sequence of intervals plus the wall-clock
// millisecond timestamp of the last write.
type IntervalList struct {
	LastUpdated int64      `json:"lastUpdated"`
	Items       []Interval `json:"items"`
}

// TimerState is the public wire form of a session timer. IsPaused is only
// meaningful while IsRunning.
type TimerState struct {
	Repeat    bool  `json:"repeat"`
	Interval  int   `json:"interval"`
	Remaining int64 `json:"remaining"` // milliseconds
	IsRunning bool  `json:"isRunning"`
	IsPaused  bool  `json:"isPaused"`
}

// UserPublic is the externalized form of a session participant. ClientID
// carries the SHA-256 hex of the raw client id, never the raw id itself.
type UserPublic struct {
	ClientID  string `json:"clientId"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatarUrl"`
	IsOnline  bool   `json:"isOnline"`
	LastPing  int64  `json:"lastPing"`
	OfflineAt int64  `json:"offlineAt,omitempty"`
}

// SessionSnapshot is the sanitized external form of a session. Formatters
// fill only the fields a given message type carries.
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

// SessionUpdate is the inbound session metadata carried by session_join and
// session_update.
type SessionUpdate struct {
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Intervals   IntervalList `json:"intervals"`

	// HasIntervals records whether the inbound payload carried an items
	// array at all; session_update requires one, session_join does not.
	HasIntervals bool `json:"-"`
}

// UserProfile is the inbound user payload of session_join and user_update.
type UserProfile struct {
	ClientID  string `json:"clientId"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatarUrl"`
}

// ClientMessage is a decoded and sanitized inbound message.
type ClientMessage struct {
	Type      string         `json:"type"`
	SessionID string         `json:"sessionId,omitempty"`
	Session   *SessionUpdate `json:"session,omitempty"`
	Timer     *TimerState    `json:"timer,omitempty"`
	User      *UserProfile   `json:"user,omitempty"`
}

// ServerMessage is the envelope for every outbound message. Formatters set
// exactly the fields the message type carries.
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

// rawMessage is the tolerant first-stage decode target. Interval items stay
// raw so a malformed array can be reported as an intervals error rather than
// a blanket parse failure.
type rawMessage struct {
	Type      string       `json:"type"`
	SessionID string       `json:"sessionId"`
	Session   *rawSession  `json:"session"`
	Timer     *TimerState  `json:"timer"`
	User      *UserProfile `json:"user"`
}

type rawSession struct {
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Intervals   *rawIntervals `json:"intervals"`
}

type rawIntervals struct {
	LastUpdated int64           `json:"lastUpdated"`
	Items       json.RawMessage `json:"items"`
}
