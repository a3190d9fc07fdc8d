package session

import "sync"

// Store is the process-wide session registry. Its lock guards only the map;
// per-session state is serialized by each session's own mutex, and the store
// lock is never held while a session lock is taken.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewStore returns an empty registry.
func NewStore() *Store {
	return &Store{sessions: make(map[string]*Session)}
}

// Get looks up a session by canonical id.
func (st *Store) Get(id string) (*Session, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	s, ok := st.sessions[id]
	return s, ok
}

// Put registers a session under its id, normalizing the metadata first so a
// session is never findable in an unsanitized state.
func (st *Store) Put(s *Session) {
	s.Lock()
	s.normalize()
	s.Unlock()

	st.mu.Lock()
	st.sessions[s.ID] = s
	st.mu.Unlock()
}

// GetOrPut inserts s unless a session with the same id already exists, and
// returns the winner. Two sockets racing to create a room both end up in the
// same session.
func (st *Store) GetOrPut(s *Session) (*Session, bool) {
	s.Lock()
	s.normalize()
	s.Unlock()

	st.mu.Lock()
	defer st.mu.Unlock()
	if cur, ok := st.sessions[s.ID]; ok {
		return cur, true
	}
	st.sessions[s.ID] = s
	return s, false
}

// Delete removes a session by id.
func (st *Store) Delete(id string) {
	st.mu.Lock()
	delete(st.sessions, id)
	st.mu.Unlock()
}

// Len returns the number of live sessions.
func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}

// Range calls fn for each session until fn returns false. The map is
// snapshotted under the read lock first, so fn may lock sessions or call
// back into the store without deadlocking.
func (st *Store) Range(fn func(s *Session) bool) {
	st.mu.RLock()
	snapshot := make([]*Session, 0, len(st.sessions))
	for _, s := range st.sessions {
		snapshot = append(snapshot, s)
	}
	st.mu.RUnlock()

	for _, s := range snapshot {
		if !fn(s) {
			return
		}
	}
}
