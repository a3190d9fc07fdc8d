package client_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/cotimer/server/internal/broker"
	"github.com/cotimer/server/internal/metrics"
	"github.com/cotimer/server/internal/session"
	"github.com/cotimer/server/internal/transport"
	"github.com/cotimer/server/pkg/api"
	"github.com/cotimer/server/pkg/client"
)

// stack is one complete server: store, broker, and transport handler.
type stack struct {
	store *session.Store
	h     *transport.Handler
}

func newStack() *stack {
	collector := metrics.NewCollector(prometheus.NewRegistry())
	store := session.NewStore()
	b := broker.New(store, collector, nil, 5*time.Minute)
	return &stack{store: store, h: transport.NewHandler(b, collector)}
}

func shutdown(t *testing.T, st *stack) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := st.h.Shutdown(ctx); err != nil {
		t.Errorf("shutdown: %v", err)
	}
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func waitFor(t *testing.T, ch <-chan api.ServerMessage, msgType string) api.ServerMessage {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case msg := <-ch:
			if msg.Type == msgType {
				return msg
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %q", msgType)
		}
	}
}

func startClient(t *testing.T, cfg client.Config) (*client.Client, chan error) {
	t.Helper()
	c, err := client.New(cfg)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	runErr := make(chan error, 1)
	go func() { runErr <- c.Run(ctx) }()
	return c, runErr
}

func stopClient(t *testing.T, c *client.Client, runErr chan error) {
	t.Helper()
	c.Stop()
	select {
	case err := <-runErr:
		if err != nil {
			t.Errorf("run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Error("run did not return after Stop")
	}
}

func TestNewValidatesConfig(t *testing.T) {
	if _, err := client.New(client.Config{}); err == nil {
		t.Fatal("want error for missing url")
	}
	if _, err := client.New(client.Config{URL: "ws://localhost/ws"}); err == nil {
		t.Fatal("want error for missing session id")
	}
	c, err := client.New(client.Config{URL: "ws://localhost/ws", SessionID: "sdk-room"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if c.ClientID() == "" {
		t.Fatal("client id was not generated")
	}
}

func TestJoinReceivesAck(t *testing.T) {
	st := newStack()
	srv := httptest.NewServer(st.h)
	t.Cleanup(func() { shutdown(t, st); srv.Close() })

	msgs := make(chan api.ServerMessage, 64)
	c, runErr := startClient(t, client.Config{
		URL:       wsURL(srv),
		SessionID: "sdk-room",
		Name:      "Ada",
		Session: &api.SessionUpdate{
			Name: "Sprint",
			Intervals: api.IntervalList{
				LastUpdated: 1,
				Items:       []api.Interval{{Name: "Work", Duration: 90}},
			},
		},
		OnMessage: func(m api.ServerMessage) { msgs <- m },
	})

	ack := waitFor(t, msgs, api.TypeSessionCreated)
	if ack.SessionID != "sdk-room" {
		t.Fatalf("ack sessionId = %q", ack.SessionID)
	}
	if len(ack.ClientID) != 64 || ack.ClientID == c.ClientID() {
		t.Fatalf("ack clientId = %q, want hashed id", ack.ClientID)
	}

	stopClient(t, c, runErr)
}

func TestTwoClientsShareTimer(t *testing.T) {
	st := newStack()
	srv := httptest.NewServer(st.h)
	t.Cleanup(func() { shutdown(t, st); srv.Close() })

	msgsA := make(chan api.ServerMessage, 64)
	a, runA := startClient(t, client.Config{
		URL:       wsURL(srv),
		SessionID: "pair-sdk",
		Name:      "Ada",
		OnMessage: func(m api.ServerMessage) { msgsA <- m },
	})
	waitFor(t, msgsA, api.TypeSessionCreated)

	msgsB := make(chan api.ServerMessage, 64)
	b, runB := startClient(t, client.Config{
		URL:       wsURL(srv),
		SessionID: "pair-sdk",
		Name:      "Grace",
		OnMessage: func(m api.ServerMessage) { msgsB <- m },
	})
	waitFor(t, msgsB, api.TypeSessionJoined)
	waitFor(t, msgsA, api.TypeUserConnected)

	if err := a.SendTimerUpdate(api.TimerState{Remaining: 300_000, IsRunning: true}); err != nil {
		t.Fatalf("send timer: %v", err)
	}

	upd := waitFor(t, msgsB, api.TypeTimerUpdated)
	if upd.Timer == nil || !upd.Timer.IsRunning || upd.Timer.Remaining <= 0 {
		t.Fatalf("timer broadcast = %+v", upd.Timer)
	}
	if lt, ok := b.LastTimer(); !ok || !lt.IsRunning {
		t.Fatalf("LastTimer = %+v, %v", lt, ok)
	}

	stopClient(t, a, runA)
	stopClient(t, b, runB)
}

func TestReconnectRejoinsWithLastState(t *testing.T) {
	st1 := newStack()
	var current atomic.Pointer[transport.Handler]
	current.Store(st1.h)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		current.Load().ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)

	msgs := make(chan api.ServerMessage, 64)
	c, runErr := startClient(t, client.Config{
		URL:       wsURL(srv),
		SessionID: "phoenix-room",
		Name:      "Ada",
		Reconnect: true,
		Session: &api.SessionUpdate{
			Name: "Sprint",
			Intervals: api.IntervalList{
				LastUpdated: 1,
				Items:       []api.Interval{{Name: "Work", Duration: 90}},
			},
		},
		OnMessage: func(m api.ServerMessage) { msgs <- m },
	})
	waitFor(t, msgs, api.TypeSessionCreated)

	if err := c.SendTimerUpdate(api.TimerState{Remaining: 42_000}); err != nil {
		t.Fatalf("send timer: %v", err)
	}

	// Replace the backend, then close every connection on the old one. The
	// client must redial and recreate the room from its last-known state.
	st2 := newStack()
	current.Store(st2.h)
	t.Cleanup(func() { shutdown(t, st2) })
	shutdown(t, st1)

	waitFor(t, msgs, api.TypeSessionCreated)

	sess, ok := st2.store.Get("phoenix-room")
	if !ok {
		t.Fatal("session was not recreated on the new backend")
	}
	sess.Lock()
	state := sess.Timer.Sync()
	intervals := len(sess.Intervals.Items)
	sess.Unlock()
	if state.Remaining != 42_000 || state.IsRunning {
		t.Fatalf("recreated timer = %+v, want remaining 42000 stopped", state)
	}
	if intervals != 1 {
		t.Fatalf("recreated intervals = %d, want 1", intervals)
	}

	stopClient(t, c, runErr)
}
