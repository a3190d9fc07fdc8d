package broker

import (
	"time"

	"github.com/cotimer/server/internal/health"
	"github.com/cotimer/server/internal/protocol"
	"github.com/cotimer/server/internal/session"
)

// SessionTimeout removes an empty session this long after its last open
// socket dropped.
const SessionTimeout = 10 * time.Minute

// Run drives the periodic cleanup sweep. Blocks until stopChan is closed.
func (b *Broker) Run(stopChan <-chan struct{}) {
	ticker := b.clock.NewTicker(b.cleanupInterval)
	defer ticker.Stop()

	log.Info("cleanup loop started", "interval", b.cleanupInterval)
	b.health.Update("cleanup", health.Healthy, "")
	for {
		select {
		case <-ticker.Chan():
			b.sweep()
			b.health.Update("cleanup", health.Healthy, "")
		case <-stopChan:
			log.Info("cleanup loop stopped")
			return
		}
	}
}

// sweep reconciles online state, reaps users offline longer than the cleanup
// interval, and removes sessions empty longer than SessionTimeout. State that
// drifted past a missed disconnect heals here.
func (b *Broker) sweep() {
	now := b.clock.Now().UnixMilli()
	offlineAfter := b.cleanupInterval.Milliseconds()
	emptyAfter := SessionTimeout.Milliseconds()

	var reaped []string
	b.store.Range(func(s *session.Session) bool {
		s.Lock()
		for cid, u := range s.Users {
			online := u.Online()
			switch {
			case online && u.OfflineAt != 0:
				// Reconnected without the close ever being observed.
				u.OfflineAt = 0
			case !online && u.OfflineAt == 0:
				// Missed disconnect.
				u.OfflineAt = now
				b.metrics.ClientDisconnected()
			case !online && now-u.OfflineAt > offlineAfter:
				delete(s.Users, cid)
				b.metrics.UserReaped()
				b.broadcast(s, protocol.NewUserDisconnected(s.ID, u.Public()), "")
				log.Info("user reaped", "sessionId", s.ID, "clientId", u.HashedID)
			}
		}

		if s.AnyOnline() {
			s.EmptyAt = 0
		} else if s.EmptyAt == 0 {
			s.EmptyAt = now
		} else if now-s.EmptyAt > emptyAfter {
			reaped = append(reaped, s.ID)
		}
		s.Unlock()
		return true
	})

	for _, id := range reaped {
		b.store.Delete(id)
		b.metrics.SessionReaped()
		log.Info("session reaped", "sessionId", id)
	}
}
