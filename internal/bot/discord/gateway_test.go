package discord

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// fakeGatewayServer accepts gateway connections, sends HELLO with the next
// interval from intervals, reads the identify or resume frame, and hands the
// upgraded conn to the test.
type fakeGatewayServer struct {
	srv       *httptest.Server
	intervals []int64
	next      int64
	conns     chan *websocket.Conn
}

func newFakeGatewayServer(t *testing.T, intervals []int64) *fakeGatewayServer {
	t.Helper()

	f := &fakeGatewayServer{
		intervals: intervals,
		conns:     make(chan *websocket.Conn, len(intervals)),
	}
	var upgrader websocket.Upgrader

	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		idx := atomic.AddInt64(&f.next, 1) - 1
		if idx >= int64(len(f.intervals)) {
			conn.Close()
			return
		}

		raw, err := json.Marshal(helloData{HeartbeatInterval: f.intervals[idx]})
		if err != nil {
			t.Errorf("marshal hello: %v", err)
			conn.Close()
			return
		}
		if err := conn.WriteJSON(GatewayPayload{Op: OpHello, Data: raw}); err != nil {
			conn.Close()
			return
		}

		var handshake GatewayPayload
		if err := conn.ReadJSON(&handshake); err != nil {
			conn.Close()
			return
		}
		if handshake.Op != OpIdentify && handshake.Op != OpResume {
			t.Errorf("handshake op = %d, want identify or resume", handshake.Op)
		}
		f.conns <- conn
	}))
	t.Cleanup(f.srv.Close)

	return f
}

func (f *fakeGatewayServer) url() string {
	return "ws" + strings.TrimPrefix(f.srv.URL, "http")
}

func (f *fakeGatewayServer) waitConn(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case conn := <-f.conns:
		return conn
	case <-time.After(2 * time.Second):
		t.Fatalf("gateway never completed the handshake")
		return nil
	}
}

func TestReconnectStopsPreviousHeartbeatLoop(t *testing.T) {
	// First connection heartbeats every 50ms, the second not for ten
	// minutes. Any heartbeat arriving promptly on the second connection can
	// only come from a loop left over from the first.
	server := newFakeGatewayServer(t, []int64{50, 600000})

	g := NewGateway("test-token", server.url())
	defer g.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := g.Connect(ctx); err != nil {
		t.Fatalf("first connect: %v", err)
	}
	first := server.waitConn(t)

	first.SetReadDeadline(time.Now().Add(2 * time.Second))
	var hb GatewayPayload
	if err := first.ReadJSON(&hb); err != nil {
		t.Fatalf("read first heartbeat: %v", err)
	}
	if hb.Op != OpHeartbeat {
		t.Fatalf("first connection op = %d, want %d", hb.Op, OpHeartbeat)
	}

	// Reconnect the way the read loop does after a drop.
	if err := g.Connect(ctx); err != nil {
		t.Fatalf("second connect: %v", err)
	}
	second := server.waitConn(t)

	second.SetReadDeadline(time.Now().Add(400 * time.Millisecond))
	var stray GatewayPayload
	err := second.ReadJSON(&stray)
	if err == nil {
		t.Fatalf("got op %d on the new connection before its interval elapsed", stray.Op)
	}
	netErr, ok := err.(net.Error)
	if !ok || !netErr.Timeout() {
		t.Fatalf("read on new connection: %v, want timeout", err)
	}
}
