package broker

import (
	"github.com/cotimer/server/internal/protocol"
	"github.com/cotimer/server/internal/session"
)

// handlePing answers the application-level heartbeat and refreshes the bound
// user's lastPing.
func (b *Broker) handlePing(sock session.Socket) {
	if bind, ok := b.boundTo(sock.ID()); ok {
		if s, ok := b.store.Get(bind.sessionID); ok {
			now := b.clock.Now().UnixMilli()
			s.Lock()
			if u, ok := s.User(bind.clientID); ok {
				u.LastPing = now
			}
			s.LastActivity = now
			s.Unlock()
		}
	}
	b.send(sock, protocol.NewPong())
}

// handleSessionJoin creates or enters a session. The ack is session_created
// for a fresh room and session_joined with a full snapshot for an existing
// one. Peers hear user_connected only when the user transitions to online,
// not for every additional socket.
func (b *Broker) handleSessionJoin(sock session.Socket, msg *protocol.ClientMessage) {
	if !protocol.ValidSessionID(msg.SessionID) {
		b.reject(sock, protocol.ErrInvalidSessionID)
		return
	}

	clientID := msg.User.ClientID
	if !protocol.ValidClientID(clientID) {
		clientID = newClientID()
	}

	// A socket joining a new room leaves its old one first.
	b.RemoveClient(sock.ID())
	b.bind(sock.ID(), msg.SessionID, clientID)

	now := b.clock.Now().UnixMilli()

	s, existed := b.store.Get(msg.SessionID)
	if !existed {
		fresh := session.New(msg.SessionID, b.clock)
		fresh.Lock()
		fresh.ApplyUpdate(msg.Session)
		if msg.Timer != nil {
			fresh.Timer.UpdateState(*msg.Timer)
		}
		fresh.Unlock()

		s, existed = b.store.GetOrPut(fresh)
		if !existed {
			b.metrics.SessionCreated()
			log.Info("session created", "sessionId", s.ID)
		}
	}

	s.Lock()
	u, ok := s.User(clientID)
	if !ok {
		u = session.NewUser(clientID)
		s.Users[clientID] = u
	}
	if msg.User.Name != "" {
		u.Name = msg.User.Name
	}
	if msg.User.AvatarURL != "" {
		u.AvatarURL = msg.User.AvatarURL
	}

	wasOnline := u.Online()
	u.AddSocket(sock)
	u.LastPing = now
	u.OfflineAt = 0
	s.EmptyAt = 0
	s.LastActivity = now

	state := s.Timer.Sync().Public()
	if existed {
		b.send(sock, protocol.NewSessionJoined(s.ID, u.HashedID, s.Snapshot(state)))
	} else {
		b.send(sock, protocol.NewSessionCreated(s.ID, u.HashedID))
	}

	if !wasOnline {
		b.metrics.ClientConnected()
		b.broadcast(s, protocol.NewUserConnected(s.ID, u.Public()), sock.ID())
	}
	s.Unlock()

	log.Info("session joined", "sessionId", s.ID, "clientId", u.HashedID, "created", !existed)
}

// handleSessionUpdate overwrites the session metadata and interval list. The
// timer core re-anchors around the new list, so members also receive a fresh
// timer_updated after the session_updated.
func (b *Broker) handleSessionUpdate(sock session.Socket, msg *protocol.ClientMessage) {
	s, ok := b.store.Get(msg.SessionID)
	if !ok {
		b.reject(sock, protocol.ErrSessionNotFound)
		return
	}
	now := b.clock.Now().UnixMilli()

	s.Lock()
	s.ApplyUpdate(msg.Session)
	if msg.Timer != nil {
		s.Timer.UpdateState(*msg.Timer)
	}
	state := s.Timer.Sync().Public()
	s.LastActivity = now

	b.broadcast(s, protocol.NewSessionUpdated(s.ID, s.Snapshot(state)), sock.ID())
	b.broadcast(s, protocol.NewTimerUpdated(s.ID, state), sock.ID())
	s.Unlock()

	log.Debug("session updated", "sessionId", s.ID, "intervals", len(msg.Session.Intervals.Items))
}

// handleTimerUpdate overwrites the authoritative timer state and fans the
// synced result out to everyone except the sender.
func (b *Broker) handleTimerUpdate(sock session.Socket, msg *protocol.ClientMessage) {
	s, ok := b.store.Get(msg.SessionID)
	if !ok {
		b.reject(sock, protocol.ErrSessionNotFound)
		return
	}
	now := b.clock.Now().UnixMilli()

	s.Lock()
	s.Timer.UpdateState(*msg.Timer)
	state := s.Timer.Sync().Public()
	s.LastActivity = now

	b.broadcast(s, protocol.NewTimerUpdated(s.ID, state), sock.ID())
	s.Unlock()

	log.Debug("timer updated", "sessionId", s.ID,
		"isRunning", state.IsRunning, "isPaused", state.IsPaused, "interval", state.Interval)
}

// handleUserUpdate upserts a profile in the roster and announces the change.
func (b *Broker) handleUserUpdate(sock session.Socket, msg *protocol.ClientMessage) {
	s, ok := b.store.Get(msg.SessionID)
	if !ok {
		b.reject(sock, protocol.ErrSessionNotFound)
		return
	}
	if !protocol.ValidClientID(msg.User.ClientID) {
		b.reject(sock, protocol.ErrInvalidUser)
		return
	}
	now := b.clock.Now().UnixMilli()

	s.Lock()
	u, ok := s.User(msg.User.ClientID)
	if !ok {
		u = session.NewUser(msg.User.ClientID)
		u.LastPing = now
		s.Users[u.ClientID] = u
	}
	u.Name = msg.User.Name
	u.AvatarURL = msg.User.AvatarURL
	s.LastActivity = now

	b.broadcast(s, protocol.NewUserUpdated(s.ID, u.Public()), sock.ID())
	s.Unlock()
}

// handleUserList replies to the requesting socket with the full roster.
func (b *Broker) handleUserList(sock session.Socket, msg *protocol.ClientMessage) {
	s, ok := b.store.Get(msg.SessionID)
	if !ok {
		b.reject(sock, protocol.ErrSessionNotFound)
		return
	}

	s.Lock()
	roster := s.Roster()
	s.Unlock()

	b.send(sock, protocol.NewUsersConnected(s.ID, roster))
}
