package session

import (
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/cotimer/server/internal/protocol"
)

type fakeSocket struct {
	id   string
	open bool
	sent []protocol.ServerMessage
}

func (f *fakeSocket) ID() string { return f.id }

func (f *fakeSocket) Send(msg protocol.ServerMessage) error {
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeSocket) IsOpen() bool { return f.open }

func testClock() clockwork.Clock {
	return clockwork.NewFakeClockAt(time.UnixMilli(1_000_000))
}

func TestNewUserDerivesHashedID(t *testing.T) {
	raw := "a3f2b8c1-4d5e-4f6a-8b9c-0d1e2f3a4b5c"
	u := NewUser(raw)

	if u.HashedID != protocol.HashClientID(raw) {
		t.Fatalf("HashedID = %q, want %q", u.HashedID, protocol.HashClientID(raw))
	}
	if len(u.HashedID) != 64 {
		t.Fatalf("HashedID length = %d, want 64", len(u.HashedID))
	}
	if u.HashedID == raw {
		t.Fatal("HashedID must differ from the raw id")
	}
}

func TestUserOnline(t *testing.T) {
	u := NewUser("a3f2b8c1-4d5e-4f6a-8b9c-0d1e2f3a4b5c")

	if u.Online() {
		t.Fatal("user with no sockets reported online")
	}

	closed := &fakeSocket{id: "s1", open: false}
	open := &fakeSocket{id: "s2", open: true}
	u.AddSocket(closed)
	if u.Online() {
		t.Fatal("user with only a closed socket reported online")
	}

	u.AddSocket(open)
	if !u.Online() {
		t.Fatal("user with an open socket reported offline")
	}

	u.RemoveSocket("s2")
	if u.Online() {
		t.Fatal("user reported online after its open socket was removed")
	}
}

func TestUserPublicNeverCarriesRawID(t *testing.T) {
	raw := "a3f2b8c1-4d5e-4f6a-8b9c-0d1e2f3a4b5c"
	u := NewUser(raw)
	u.Name = "Ana"
	u.LastPing = 123

	pub := u.Public()
	if pub.ClientID != u.HashedID {
		t.Fatalf("public ClientID = %q, want hashed id %q", pub.ClientID, u.HashedID)
	}
	if pub.ClientID == raw {
		t.Fatal("public form carries the raw client id")
	}
	if pub.Name != "Ana" || pub.LastPing != 123 {
		t.Fatalf("public form dropped fields: %+v", pub)
	}
}

func TestSessionRosterKeyedByHash(t *testing.T) {
	s := New("focus-room", testClock())
	s.Users["a3f2b8c1-4d5e-4f6a-8b9c-0d1e2f3a4b5c"] = NewUser("a3f2b8c1-4d5e-4f6a-8b9c-0d1e2f3a4b5c")
	s.Users["b4a3c2d1-5e6f-4a7b-9c8d-1e2f3a4b5c6d"] = NewUser("b4a3c2d1-5e6f-4a7b-9c8d-1e2f3a4b5c6d")

	roster := s.Roster()
	if len(roster) != 2 {
		t.Fatalf("roster size = %d, want 2", len(roster))
	}
	for key := range roster {
		if len(key) != 64 {
			t.Fatalf("roster key %q is not a hashed id", key)
		}
	}
}

func TestApplyUpdateSanitizesAndRebindsTimer(t *testing.T) {
	s := New("focus-room", testClock())

	upd := &protocol.SessionUpdate{
		Name:        " " + strings.Repeat("n", 1200) + " ",
		Description: "shared focus room",
		Intervals: protocol.IntervalList{
			LastUpdated: 42,
			Items:       []protocol.Interval{{Name: "Work", Duration: 60}},
		},
	}

	s.Lock()
	s.ApplyUpdate(upd)
	st := s.Timer.State()
	s.Unlock()

	if got := len([]rune(s.Name)); got != protocol.MaxSessionNameLen {
		t.Fatalf("name length = %d, want %d", got, protocol.MaxSessionNameLen)
	}
	if s.Intervals.LastUpdated != 42 {
		t.Fatalf("LastUpdated = %d, want 42", s.Intervals.LastUpdated)
	}
	if st.Remaining != 60_000 {
		t.Fatalf("stopped timer remaining = %d, want refreshed 60000", st.Remaining)
	}
}

func TestSnapshotCarriesTimerAndUsers(t *testing.T) {
	s := New("focus-room", testClock())
	s.Name = "Focus"
	u := NewUser("a3f2b8c1-4d5e-4f6a-8b9c-0d1e2f3a4b5c")
	u.Name = "Ana"
	s.Users[u.ClientID] = u

	s.Lock()
	snap := s.Snapshot(s.Timer.Sync().Public())
	s.Unlock()

	if snap.SessionID != "focus-room" || snap.Name != "Focus" {
		t.Fatalf("snapshot metadata = %q/%q", snap.SessionID, snap.Name)
	}
	if snap.Timer == nil || snap.Timer.Remaining != protocol.DefaultDurationMS {
		t.Fatalf("snapshot timer = %+v", snap.Timer)
	}
	if _, ok := snap.Users[u.HashedID]; !ok {
		t.Fatalf("snapshot roster missing hashed user, got %v", snap.Users)
	}
	if snap.CreatedAt != 1_000_000 {
		t.Fatalf("CreatedAt = %d, want 1000000", snap.CreatedAt)
	}
}

func TestStorePutNormalizes(t *testing.T) {
	store := NewStore()
	s := New("focus-room", testClock())
	s.Name = strings.Repeat("x", 1200)
	s.Intervals.Items = nil

	store.Put(s)

	got, ok := store.Get("focus-room")
	if !ok {
		t.Fatal("session not found after Put")
	}
	if n := len([]rune(got.Name)); n != protocol.MaxSessionNameLen {
		t.Fatalf("stored name length = %d, want %d", n, protocol.MaxSessionNameLen)
	}
	if got.Intervals.Items == nil {
		t.Fatal("stored intervals slice is nil")
	}
}

func TestStoreGetOrPutKeepsFirstWinner(t *testing.T) {
	store := NewStore()

	first := New("focus-room", testClock())
	got, existed := store.GetOrPut(first)
	if existed || got != first {
		t.Fatalf("first GetOrPut = (%p, %v), want insert of first", got, existed)
	}

	second := New("focus-room", testClock())
	got, existed = store.GetOrPut(second)
	if !existed {
		t.Fatal("second GetOrPut reported a fresh insert")
	}
	if got != first {
		t.Fatal("second GetOrPut did not return the existing session")
	}
	if store.Len() != 1 {
		t.Fatalf("Len = %d, want 1", store.Len())
	}
}

func TestStoreDeleteAndLen(t *testing.T) {
	store := NewStore()
	store.Put(New("one", testClock()))
	store.Put(New("two", testClock()))

	if store.Len() != 2 {
		t.Fatalf("Len = %d, want 2", store.Len())
	}

	store.Delete("one")
	if store.Len() != 1 {
		t.Fatalf("Len after delete = %d, want 1", store.Len())
	}
	if _, ok := store.Get("one"); ok {
		t.Fatal("deleted session still findable")
	}
}

func TestStoreRangeAllowsSessionLocking(t *testing.T) {
	store := NewStore()
	store.Put(New("one", testClock()))
	store.Put(New("two", testClock()))
	store.Put(New("three", testClock()))

	seen := 0
	store.Range(func(s *Session) bool {
		s.Lock()
		store.Delete(s.ID)
		s.Unlock()
		seen++
		return seen < 2
	})

	if seen != 2 {
		t.Fatalf("range visited %d sessions, want early stop at 2", seen)
	}
	if store.Len() != 1 {
		t.Fatalf("Len = %d, want 1 remaining", store.Len())
	}
}
