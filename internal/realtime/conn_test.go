package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

type wsServer struct {
	t        *testing.T
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns []*websocket.Conn
	dials int
	recv  chan Intent
}

func newWSServer(t *testing.T) (*wsServer, string) {
	s := &wsServer{t: t, recv: make(chan Intent, 128)}
	srv := httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(srv.Close)
	return s, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func (s *wsServer) handle(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.mu.Lock()
	s.conns = append(s.conns, conn)
	s.dials++
	s.mu.Unlock()
	for {
		var intent Intent
		if err := conn.ReadJSON(&intent); err != nil {
			return
		}
		s.recv <- intent
	}
}

func (s *wsServer) latest() *websocket.Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.conns) == 0 {
		return nil
	}
	return s.conns[len(s.conns)-1]
}

func (s *wsServer) dialCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dials
}

func (s *wsServer) push(event string, payload any) {
	conn := s.latest()
	require.NotNil(s.t, conn)
	data, err := json.Marshal(payload)
	require.NoError(s.t, err)
	require.NoError(s.t, conn.WriteJSON(Envelope{Event: event, Payload: data}))
}

func startManager(t *testing.T, url string) *Manager {
	m := NewManager(ManagerConfig{
		URL:       url,
		BaseDelay: 10 * time.Millisecond,
		MaxDelay:  50 * time.Millisecond,
	})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go m.Run(ctx)
	return m
}

func waitState(t *testing.T, m *Manager, want State) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if m.State() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("state never reached %s, currently %s", want, m.State())
}

func TestOpensOnlyAfterFirstServerFrame(t *testing.T) {
	server, url := newWSServer(t)
	m := startManager(t, url)

	waitState(t, m, StateDegraded)

	server.push("ready", nil)
	waitState(t, m, StateOpen)

	select {
	case env := <-m.Events():
		require.Equal(t, "ready", env.Event)
	case <-time.After(2 * time.Second):
		t.Fatal("frame not delivered")
	}
}

func TestIntentsQueueUntilOpen(t *testing.T) {
	server, url := newWSServer(t)
	m := startManager(t, url)

	m.Send(JoinBusinessRoomIntent("b1"))
	waitState(t, m, StateDegraded)

	select {
	case <-server.recv:
		t.Fatal("intent sent while channel was degraded")
	case <-time.After(50 * time.Millisecond):
	}

	server.push("ready", nil)
	select {
	case intent := <-server.recv:
		require.Equal(t, IntentJoinBusinessRoom, intent.Event)
	case <-time.After(2 * time.Second):
		t.Fatal("queued intent never flushed")
	}
}

func TestReconnectsAfterDrop(t *testing.T) {
	server, url := newWSServer(t)
	m := startManager(t, url)

	waitState(t, m, StateDegraded)
	server.push("ready", nil)
	waitState(t, m, StateOpen)

	require.NoError(t, server.latest().Close())

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) && server.dialCount() < 2 {
		time.Sleep(10 * time.Millisecond)
	}
	require.GreaterOrEqual(t, server.dialCount(), 2, "manager redialed after drop")

	server.push("ready", nil)
	waitState(t, m, StateOpen)
}

func TestConcurrentSendsAllDelivered(t *testing.T) {
	server, url := newWSServer(t)
	m := startManager(t, url)

	waitState(t, m, StateDegraded)
	server.push("ready", nil)
	waitState(t, m, StateOpen)

	const senders = 64
	var wg sync.WaitGroup
	for i := 0; i < senders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Send(JoinBusinessRoomIntent("b1"))
		}()
	}
	wg.Wait()

	received := 0
	deadline := time.After(3 * time.Second)
	for received < senders {
		select {
		case intent := <-server.recv:
			require.Equal(t, IntentJoinBusinessRoom, intent.Event)
			received++
		case <-deadline:
			t.Fatalf("only %d of %d intents arrived", received, senders)
		}
	}
}

func TestBackoffResetsAfterOpen(t *testing.T) {
	var (
		mu       sync.Mutex
		dials    int
		conns    []*websocket.Conn
		upgrader websocket.Upgrader
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		dials++
		n := dials
		mu.Unlock()
		if n <= 6 {
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		mu.Lock()
		conns = append(conns, conn)
		mu.Unlock()
		_ = conn.WriteJSON(Envelope{Event: "ready"})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)

	m := NewManager(ManagerConfig{
		URL:       "ws" + strings.TrimPrefix(srv.URL, "http"),
		BaseDelay: 10 * time.Millisecond,
		MaxDelay:  400 * time.Millisecond,
	})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go m.Run(ctx)

	// The failed dials walk the backoff up toward the cap before the
	// server finally accepts.
	waitState(t, m, StateOpen)

	mu.Lock()
	before := dials
	healthy := conns[len(conns)-1]
	mu.Unlock()

	dropped := time.Now()
	require.NoError(t, healthy.Close())

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		redialed := dials > before
		mu.Unlock()
		if redialed {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	mu.Lock()
	redialed := dials > before
	mu.Unlock()
	require.True(t, redialed, "manager never redialed after the drop")
	require.Less(t, time.Since(dropped), 200*time.Millisecond,
		"redial after a healthy session must start from the base delay")
}

func TestStateTransitionsPublished(t *testing.T) {
	server, url := newWSServer(t)
	m := startManager(t, url)

	waitState(t, m, StateDegraded)
	server.push("ready", nil)

	seen := map[State]bool{}
	deadline := time.After(3 * time.Second)
	for !seen[StateOpen] {
		select {
		case s := <-m.States():
			seen[s] = true
		case <-deadline:
			t.Fatalf("open never published, saw %v", seen)
		}
	}
	require.True(t, seen[StateOpen])
}

func TestMalformedFramesAreSkipped(t *testing.T) {
	server, url := newWSServer(t)
	m := startManager(t, url)

	waitState(t, m, StateDegraded)
	require.NoError(t, server.latest().WriteMessage(websocket.TextMessage, []byte("not json")))
	server.push("ready", nil)

	select {
	case env := <-m.Events():
		require.Equal(t, "ready", env.Event, "malformed frame dropped, valid one delivered")
	case <-time.After(2 * time.Second):
		t.Fatal("valid frame not delivered")
	}
}
