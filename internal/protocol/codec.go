package protocol

import (
	"encoding/json"
	"errors"
)

var (
	ErrInvalidMessage   = errors.New("protocol: invalid message format")
	ErrUnknownType      = errors.New("protocol: unknown message type")
	ErrInvalidIntervals = errors.New("protocol: invalid intervals data")
	ErrInvalidTimer     = errors.New("protocol: invalid timer data")
	ErrInvalidUser      = errors.New("protocol: invalid user data")
	ErrInvalidSessionID = errors.New("protocol: invalid session id")
	ErrSessionNotFound  = errors.New("protocol: session not found")
)

// wireErrors maps codec and broker sentinels to the exact error strings the
// wire contract promises clients.
var wireErrors = map[error]string{
	ErrInvalidMessage:   "Invalid message format",
	ErrUnknownType:      "Unknown message type",
	ErrInvalidIntervals: "Invalid intervals data",
	ErrInvalidTimer:     "Invalid timer data",
	ErrInvalidUser:      "Invalid user data",
	ErrInvalidSessionID: "Invalid session ID",
	ErrSessionNotFound:  "Session not found",
}

// WireError translates an error into its wire message string. Unrecognized
// errors collapse to the generic parse failure so internal details never
// reach peers.
func WireError(err error) string {
	for sentinel, msg := range wireErrors {
		if errors.Is(err, sentinel) {
			return msg
		}
	}
	return wireErrors[ErrInvalidMessage]
}

// DecodeClientMessage parses one inbound text frame into a sanitized typed
// message. Every field passes trim, truncate, clamp, default; re-decoding an
// already-sanitized message yields the same message. Unknown JSON fields are
// ignored. The returned error is always one of the sentinels above.
func DecodeClientMessage(data []byte) (*ClientMessage, error) {
	var raw rawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, ErrInvalidMessage
	}
	if raw.Type == "" {
		return nil, ErrInvalidMessage
	}

	msg := &ClientMessage{
		Type:      raw.Type,
		SessionID: FormatSessionID(raw.SessionID),
	}

	switch raw.Type {
	case TypeSessionJoin:
		// Join is permissive: a missing session or user becomes a default;
		// only a present-but-malformed items array is an error. An absent
		// timer stays nil so a created session derives its initial state
		// from the interval list. Invalid client ids are replaced by the
		// broker.
		sess, err := decodeSessionUpdate(raw.Session, false)
		if err != nil {
			return nil, err
		}
		msg.Session = sess
		if raw.Timer != nil {
			msg.Timer = decodeTimer(raw.Timer)
		}
		msg.User = decodeUser(raw.User)

	case TypeSessionUpdate:
		sess, err := decodeSessionUpdate(raw.Session, true)
		if err != nil {
			return nil, err
		}
		msg.Session = sess
		if raw.Timer != nil {
			msg.Timer = decodeTimer(raw.Timer)
		}

	case TypeTimerUpdate:
		if raw.Timer == nil {
			return nil, ErrInvalidTimer
		}
		msg.Timer = decodeTimer(raw.Timer)

	case TypeUserUpdate:
		if raw.User == nil {
			return nil, ErrInvalidUser
		}
		msg.User = decodeUser(raw.User)

	case TypeUserList, TypePing:
		// No payload.

	default:
		return nil, ErrUnknownType
	}

	return msg, nil
}

// decodeSessionUpdate builds the sanitized session metadata. When require is
// set (session_update) the payload must carry an items array; otherwise an
// absent list decodes as empty.
func decodeSessionUpdate(raw *rawSession, require bool) (*SessionUpdate, error) {
	if raw == nil {
		if require {
			return nil, ErrInvalidIntervals
		}
		return &SessionUpdate{
			Intervals: IntervalList{Items: []Interval{}},
		}, nil
	}

	out := &SessionUpdate{
		Name:        SanitizeSessionName(raw.Name),
		Description: SanitizeDescription(raw.Description),
		Intervals:   IntervalList{Items: []Interval{}},
	}

	if raw.Intervals == nil || len(raw.Intervals.Items) == 0 || string(raw.Intervals.Items) == "null" {
		if require {
			return nil, ErrInvalidIntervals
		}
		return out, nil
	}

	var items []Interval
	if err := json.Unmarshal(raw.Intervals.Items, &items); err != nil {
		return nil, ErrInvalidIntervals
	}
	if items == nil {
		items = []Interval{}
	}
	out.Intervals = SanitizeIntervals(IntervalList{
		LastUpdated: raw.Intervals.LastUpdated,
		Items:       items,
	})
	out.HasIntervals = true
	return out, nil
}

func decodeTimer(raw *TimerState) *TimerState {
	if raw == nil {
		t := SanitizeTimer(TimerState{Remaining: DefaultDurationMS})
		return &t
	}
	t := SanitizeTimer(*raw)
	return &t
}

func decodeUser(raw *UserProfile) *UserProfile {
	if raw == nil {
		return &UserProfile{}
	}
	u := SanitizeUserProfile(*raw)
	return &u
}

// Outbound formatters. Every server message is built here so malformed
// internal state cannot escape to peers unclamped.

// NewSessionCreated acknowledges a join that created the session. The client
// id it carries is the hashed form.
func NewSessionCreated(sessionID, hashedClientID string) ServerMessage {
	return ServerMessage{
		Type:      TypeSessionCreated,
		SessionID: sessionID,
		ClientID:  hashedClientID,
	}
}

// NewSessionJoined acknowledges a join into an existing session with a full
// snapshot.
func NewSessionJoined(sessionID, hashedClientID string, snap SessionSnapshot) ServerMessage {
	s := sanitizeSnapshot(snap)
	return ServerMessage{
		Type:      TypeSessionJoined,
		SessionID: sessionID,
		ClientID:  hashedClientID,
		Session:   &s,
	}
}

// NewSessionUpdated carries metadata and intervals only; timer changes ride
// the separate timer_updated message.
func NewSessionUpdated(sessionID string, snap SessionSnapshot) ServerMessage {
	s := sanitizeSnapshot(SessionSnapshot{
		Name:        snap.Name,
		Description: snap.Description,
		Intervals:   snap.Intervals,
	})
	return ServerMessage{
		Type:      TypeSessionUpdated,
		SessionID: sessionID,
		Session:   &s,
	}
}

// NewTimerUpdated carries a freshly synced timer snapshot.
func NewTimerUpdated(sessionID string, t TimerState) ServerMessage {
	st := SanitizeTimer(t)
	return ServerMessage{
		Type:      TypeTimerUpdated,
		SessionID: sessionID,
		Timer:     &st,
	}
}

// NewUserConnected announces a user coming online.
func NewUserConnected(sessionID string, u UserPublic) ServerMessage {
	return newUserEvent(TypeUserConnected, sessionID, u)
}

// NewUserDisconnected announces a reaped user.
func NewUserDisconnected(sessionID string, u UserPublic) ServerMessage {
	return newUserEvent(TypeUserDisconnected, sessionID, u)
}

// NewUserUpdated announces a profile or online-state change.
func NewUserUpdated(sessionID string, u UserPublic) ServerMessage {
	return newUserEvent(TypeUserUpdated, sessionID, u)
}

func newUserEvent(msgType, sessionID string, u UserPublic) ServerMessage {
	pub := sanitizeUserPublic(u)
	return ServerMessage{
		Type:      msgType,
		SessionID: sessionID,
		User:      &pub,
	}
}

// NewUsersConnected carries the full roster keyed by hashed client id.
func NewUsersConnected(sessionID string, users map[string]UserPublic) ServerMessage {
	out := make(map[string]UserPublic, len(users))
	for id, u := range users {
		out[id] = sanitizeUserPublic(u)
	}
	return ServerMessage{
		Type:      TypeUsersConnected,
		SessionID: sessionID,
		Users:     out,
	}
}

// NewPong answers a transport heartbeat.
func NewPong() ServerMessage {
	return ServerMessage{Type: TypePong}
}

// NewError wraps an error into the wire error message.
func NewError(err error) ServerMessage {
	return ServerMessage{Type: TypeError, Message: WireError(err)}
}

func sanitizeSnapshot(s SessionSnapshot) SessionSnapshot {
	s.Name = SanitizeSessionName(s.Name)
	s.Description = SanitizeDescription(s.Description)
	s.Intervals = SanitizeIntervals(s.Intervals)
	if s.Timer != nil {
		t := SanitizeTimer(*s.Timer)
		s.Timer = &t
	}
	if s.Users != nil {
		users := make(map[string]UserPublic, len(s.Users))
		for id, u := range s.Users {
			users[id] = sanitizeUserPublic(u)
		}
		s.Users = users
	}
	return s
}

func sanitizeUserPublic(u UserPublic) UserPublic {
	u.Name = SanitizeUserName(u.Name)
	u.AvatarURL = SanitizeAvatarURL(u.AvatarURL)
	return u
}
