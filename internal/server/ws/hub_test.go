package ws

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/tradedesk/internal/domain"
)

// fakeBus is an in-process EventBus with trailing-glob pattern matching.
type fakeBus struct {
	mu   sync.Mutex
	subs []fakeSub
}

type fakeSub struct {
	pattern string
	ch      chan []byte
}

func (b *fakeBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, s := range b.subs {
		if domain.MatchChannel(s.pattern, channel) {
			s.ch <- payload
		}
	}
	return nil
}

func (b *fakeBus) Subscribe(_ context.Context, channel string) (<-chan []byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan []byte, 64)
	b.subs = append(b.subs, fakeSub{pattern: channel, ch: ch})
	return ch, nil
}

// subscriberCount lets tests wait for the hub's consumers to attach before
// publishing.
func (b *fakeBus) subscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

type testEnv struct {
	hub    *Hub
	bus    *fakeBus
	server *httptest.Server
	cancel context.CancelFunc
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	bus := &fakeBus{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	hub := NewHub(bus, logger)

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for bus.subscriberCount() < len(busRoutes) {
		if time.Now().After(deadline) {
			t.Fatal("hub consumers never subscribed")
		}
		time.Sleep(5 * time.Millisecond)
	}

	server := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	t.Cleanup(func() {
		server.Close()
		cancel()
	})

	return &testEnv{hub: hub, bus: bus, server: server, cancel: cancel}
}

func (e *testEnv) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(e.server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readPush(t *testing.T, conn *websocket.Conn) pushEnvelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg pushEnvelope
	if err := json.Unmarshal(raw, &msg); err != nil {
		t.Fatalf("unmarshal %q: %v", raw, err)
	}
	return msg
}

type pushEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func authenticate(t *testing.T, conn *websocket.Conn, userID string) {
	t.Helper()
	if err := conn.WriteJSON(map[string]string{"type": "authenticate", "userId": userID}); err != nil {
		t.Fatalf("write authenticate: %v", err)
	}
	msg := readPush(t, conn)
	if msg.Type != "authenticated" {
		t.Fatalf("reply type = %q, want authenticated", msg.Type)
	}
}

func waitForRoom(t *testing.T, hub *Hub, userID string, size int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.RoomSize(userID) != size {
		if time.Now().After(deadline) {
			t.Fatalf("room %s never reached size %d", userID, size)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func signalJSON(t *testing.T, id, userID string, status domain.SignalStatus) []byte {
	t.Helper()
	raw, err := json.Marshal(domain.TradeSignal{
		ID:        id,
		UserID:    userID,
		Symbol:    "SPY",
		Status:    status,
		ExpiresAt: time.Now().Add(time.Minute),
		CreatedAt: time.Now(),
	})
	if err != nil {
		t.Fatal(err)
	}
	return raw
}

func TestAuthenticateThenReceiveSignal(t *testing.T) {
	env := newTestEnv(t)
	conn := env.dial(t)

	authenticate(t, conn, "u1")
	waitForRoom(t, env.hub, "u1", 1)

	env.bus.Publish(context.Background(), domain.ChannelSignalsAll,
		signalJSON(t, "s1", "u1", domain.SignalStatusPending))

	msg := readPush(t, conn)
	if msg.Type != "new_signal" {
		t.Fatalf("type = %q, want new_signal", msg.Type)
	}
	var sig domain.TradeSignal
	if err := json.Unmarshal(msg.Data, &sig); err != nil {
		t.Fatalf("data: %v", err)
	}
	if sig.ID != "s1" {
		t.Errorf("signal id = %q, want s1", sig.ID)
	}
}

func TestUnauthenticatedClientReceivesNothing(t *testing.T) {
	env := newTestEnv(t)
	conn := env.dial(t)

	env.bus.Publish(context.Background(), domain.ChannelSignalsAll,
		signalJSON(t, "s1", "u1", domain.SignalStatusPending))

	conn.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	if _, raw, err := conn.ReadMessage(); err == nil {
		t.Fatalf("unauthenticated client received %q", raw)
	}
}

func TestNotificationsAreScopedToUserRoom(t *testing.T) {
	env := newTestEnv(t)
	alice := env.dial(t)
	bob := env.dial(t)

	authenticate(t, alice, "alice")
	authenticate(t, bob, "bob")
	waitForRoom(t, env.hub, "alice", 1)
	waitForRoom(t, env.hub, "bob", 1)

	notif, _ := json.Marshal(domain.Notification{
		UserID: "alice",
		Title:  "Trade confirmed: SPY",
		Type:   "signal_confirmed",
	})
	env.bus.Publish(context.Background(), domain.NotificationChannel("alice"), notif)

	msg := readPush(t, alice)
	if msg.Type != "notification" {
		t.Fatalf("alice got %q, want notification", msg.Type)
	}

	bob.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	if _, raw, err := bob.ReadMessage(); err == nil {
		t.Fatalf("bob received alice's notification: %q", raw)
	}
}

func TestSignalUpdateRoutedToOwnerRoom(t *testing.T) {
	env := newTestEnv(t)
	alice := env.dial(t)
	bob := env.dial(t)

	authenticate(t, alice, "alice")
	authenticate(t, bob, "bob")
	waitForRoom(t, env.hub, "alice", 1)
	waitForRoom(t, env.hub, "bob", 1)

	env.bus.Publish(context.Background(), domain.ChannelSignalsUpdated,
		signalJSON(t, "s9", "alice", domain.SignalStatusConfirmed))

	msg := readPush(t, alice)
	if msg.Type != "signal_update" {
		t.Fatalf("alice got %q, want signal_update", msg.Type)
	}

	bob.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	if _, raw, err := bob.ReadMessage(); err == nil {
		t.Fatalf("bob received alice's signal update: %q", raw)
	}
}

func TestPingPong(t *testing.T) {
	env := newTestEnv(t)
	conn := env.dial(t)

	authenticate(t, conn, "u1")

	if err := conn.WriteJSON(map[string]string{"type": "ping"}); err != nil {
		t.Fatal(err)
	}
	msg := readPush(t, conn)
	if msg.Type != "pong" {
		t.Fatalf("type = %q, want pong", msg.Type)
	}
}

func TestAuthenticateWithoutUserIDIsRejected(t *testing.T) {
	env := newTestEnv(t)
	conn := env.dial(t)

	if err := conn.WriteJSON(map[string]string{"type": "authenticate"}); err != nil {
		t.Fatal(err)
	}
	msg := readPush(t, conn)
	if msg.Type != "error" {
		t.Fatalf("type = %q, want error", msg.Type)
	}
	if env.hub.RoomSize("") != 0 {
		t.Error("empty user id joined a room")
	}
}

func TestLateJoinerMissesEarlierEvents(t *testing.T) {
	env := newTestEnv(t)

	env.bus.Publish(context.Background(), domain.ChannelSignalsAll,
		signalJSON(t, "early", "u1", domain.SignalStatusPending))

	// Give the hub loop time to route the frame into (no) rooms.
	time.Sleep(50 * time.Millisecond)

	conn := env.dial(t)
	authenticate(t, conn, "u1")
	waitForRoom(t, env.hub, "u1", 1)

	conn.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	if _, raw, err := conn.ReadMessage(); err == nil {
		t.Fatalf("late joiner received replayed event: %q", raw)
	}

	// New events still arrive.
	env.bus.Publish(context.Background(), domain.ChannelSignalsAll,
		signalJSON(t, "late", "u1", domain.SignalStatusPending))
	msg := readPush(t, conn)
	if msg.Type != "new_signal" {
		t.Fatalf("type = %q, want new_signal", msg.Type)
	}
}

func TestShutdownWithActiveClients(t *testing.T) {
	env := newTestEnv(t)
	conn := env.dial(t)

	authenticate(t, conn, "u1")
	waitForRoom(t, env.hub, "u1", 1)

	// Hammer pings while the hub winds down; a send on a closed channel in
	// that window would panic the server side.
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for i := 0; i < 200; i++ {
			if err := conn.WriteJSON(map[string]string{"type": "ping"}); err != nil {
				return
			}
		}
	}()

	env.cancel()
	<-writerDone

	// The server closes the connection rather than leaving it hanging.
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	// A dial after shutdown is turned away instead of parking a goroutine
	// on the register channel.
	url := "ws" + strings.TrimPrefix(env.server.URL, "http")
	late, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		late.SetReadDeadline(time.Now().Add(2 * time.Second))
		if _, raw, err := late.ReadMessage(); err == nil {
			t.Errorf("post-shutdown connection still serviced: %q", raw)
		}
		late.Close()
	}
}

func TestMalformedBusEventIsDropped(t *testing.T) {
	env := newTestEnv(t)
	conn := env.dial(t)

	authenticate(t, conn, "u1")
	waitForRoom(t, env.hub, "u1", 1)

	env.bus.Publish(context.Background(), domain.ChannelSignalsAll, []byte("not json"))

	conn.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	if _, raw, err := conn.ReadMessage(); err == nil {
		t.Fatalf("malformed event reached the client: %q", raw)
	}
}
