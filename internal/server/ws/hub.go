package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/tradedesk/internal/domain"
)

const (
	// writeWait is the maximum time to wait for a write to complete.
	writeWait = 10 * time.Second

	// pongWait is the maximum time to wait for a pong from the client.
	pongWait = 60 * time.Second

	// pingPeriod sends pings at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// authWait bounds how long an unauthenticated connection may sit idle
	// before the server closes it.
	authWait = 30 * time.Second

	// maxMessageSize is the maximum size of an incoming message.
	maxMessageSize = 4096

	// sendBufferSize is the channel buffer for outgoing messages per client.
	sendBufferSize = 256
)

// busRoutes maps each bus subscription to the push event type clients see.
var busRoutes = []struct {
	channel string
	event   string
}{
	{domain.ChannelSignalsAll, "new_signal"},
	{domain.ChannelSignalsUpdated, "signal_update"},
	{domain.ChannelPositionsPattern, "position_update"},
	{domain.ChannelNotificationsPattern, "notification"},
}

// upgrader configures the WebSocket upgrade parameters.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Allow all origins. In production, restrict this to known origins.
		return true
	},
}

// client represents a single WebSocket connection. userID is empty until the
// client authenticates; an unauthenticated client receives nothing.
type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	mu     sync.RWMutex
	userID string
}

func (c *client) user() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userID
}

// clientMsg is a JSON text frame from the client. Only two kinds exist:
// {"type":"authenticate","userId":"..."} and {"type":"ping"}.
type clientMsg struct {
	Type   string `json:"type"`
	UserID string `json:"userId"`
}

// pushMsg is the envelope for every server-to-client frame.
type pushMsg struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// Hub fans bus events out to connected WebSocket clients grouped into
// per-user rooms. Delivery is at most once: a client connected after an
// event was published never sees it, and slow clients get dropped frames
// rather than backpressure into the bus readers.
type Hub struct {
	bus    domain.EventBus
	logger *slog.Logger

	mu      sync.RWMutex
	rooms   map[string]map[*client]struct{}
	pending map[*client]struct{}

	broadcast  chan busFrame
	register   chan *client
	unregister chan *client
	joins      chan join

	// done is closed when Run returns; pumps select on it so they never
	// block on a hub channel nobody is draining anymore.
	done chan struct{}
}

// busFrame carries a decoded bus event plus the push type it maps to.
type busFrame struct {
	event  string
	userID string // empty means deliver to every room
	data   json.RawMessage
}

type join struct {
	c      *client
	userID string
}

// NewHub creates a hub bridging the event bus to WebSocket clients.
func NewHub(bus domain.EventBus, logger *slog.Logger) *Hub {
	return &Hub{
		bus:        bus,
		logger:     logger.With(slog.String("component", "ws_hub")),
		rooms:      make(map[string]map[*client]struct{}),
		pending:    make(map[*client]struct{}),
		broadcast:  make(chan busFrame, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		joins:      make(chan join),
		done:       make(chan struct{}),
	}
}

// Run starts the bus subscriptions and the hub's event loop. It returns when
// the context is cancelled.
func (h *Hub) Run(ctx context.Context) error {
	for _, route := range busRoutes {
		go h.consume(ctx, route.channel, route.event)
	}

	for {
		select {
		case <-ctx.Done():
			// Close connections rather than send channels: readPumps still
			// enqueue pong and auth replies in this window, and a send on a
			// closed channel panics. The closed done channel lets every pump
			// exit without a receiver on register/unregister/joins.
			close(h.done)
			h.mu.Lock()
			for userID, room := range h.rooms {
				for c := range room {
					c.conn.Close()
				}
				delete(h.rooms, userID)
			}
			for c := range h.pending {
				c.conn.Close()
				delete(h.pending, c)
			}
			h.mu.Unlock()
			return ctx.Err()

		case c := <-h.register:
			h.mu.Lock()
			h.pending[c] = struct{}{}
			h.mu.Unlock()
			h.logger.Info("client connected", slog.Int("total", h.count()))

		case j := <-h.joins:
			h.mu.Lock()
			delete(h.pending, j.c)
			room, ok := h.rooms[j.userID]
			if !ok {
				room = make(map[*client]struct{})
				h.rooms[j.userID] = room
			}
			room[j.c] = struct{}{}
			h.mu.Unlock()
			h.logger.Info("client authenticated", slog.String("user_id", j.userID))

		case c := <-h.unregister:
			h.remove(c)

		case frame := <-h.broadcast:
			h.deliver(frame)
		}
	}
}

// consume reads one bus channel and routes decoded events into the hub loop.
// Events that fail to decode are logged and dropped; they never reach a
// client.
func (h *Hub) consume(ctx context.Context, pattern, event string) {
	msgCh, err := h.bus.Subscribe(ctx, pattern)
	if err != nil {
		h.logger.Error("bus subscribe failed",
			slog.String("channel", pattern),
			slog.String("error", err.Error()),
		)
		return
	}

	h.logger.Info("subscribed", slog.String("channel", pattern))

	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-msgCh:
			if !ok {
				h.logger.Warn("bus subscription closed", slog.String("channel", pattern))
				return
			}

			ev, err := domain.DecodeBusEvent(pattern, data)
			if err != nil {
				h.logger.Warn("malformed bus event",
					slog.String("channel", pattern),
					slog.String("error", err.Error()),
				)
				continue
			}

			select {
			case h.broadcast <- busFrame{event: event, userID: ev.UserID(), data: data}:
			case <-ctx.Done():
				return
			}
		}
	}
}

// deliver pushes a frame into the target room, or into every room for
// broadcast channels. Full client buffers drop the frame for that client.
func (h *Hub) deliver(frame busFrame) {
	out, err := json.Marshal(pushMsg{Type: frame.event, Data: frame.data})
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	push := func(room map[*client]struct{}) {
		for c := range room {
			select {
			case c.send <- out:
			default:
				h.logger.Warn("dropping frame for slow client",
					slog.String("user_id", c.user()),
					slog.String("type", frame.event),
				)
			}
		}
	}

	if frame.userID == "" {
		for _, room := range h.rooms {
			push(room)
		}
		return
	}
	if room, ok := h.rooms[frame.userID]; ok {
		push(room)
	}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.pending[c]; ok {
		delete(h.pending, c)
		close(c.send)
		return
	}

	userID := c.user()
	room, ok := h.rooms[userID]
	if !ok {
		return
	}
	if _, ok := room[c]; !ok {
		return
	}
	delete(room, c)
	close(c.send)
	if len(room) == 0 {
		delete(h.rooms, userID)
	}
	h.logger.Info("client disconnected", slog.String("user_id", userID))
}

func (h *Hub) count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := len(h.pending)
	for _, room := range h.rooms {
		n += len(room)
	}
	return n
}

// RoomSize reports how many connections a user currently has. Used by the
// health handler.
func (h *Hub) RoomSize(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[userID])
}

// HandleWS upgrades an HTTP request to a WebSocket connection.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := &client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
	}

	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

// readPump reads client frames: authenticate joins the user's room, ping is
// answered with pong. Everything else is ignored.
func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(authWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("unexpected close",
					slog.String("error", err.Error()),
				)
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(pongWait))

		var msg clientMsg
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}

		switch msg.Type {
		case "authenticate":
			c.authenticate(msg.UserID)
		case "ping":
			c.enqueue(pushMsg{Type: "pong"})
		}
	}
}

// authenticate joins the client to the user's room and acknowledges. A
// repeat authenticate on an already-joined connection is acknowledged
// without rejoining.
func (c *client) authenticate(userID string) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		c.enqueue(pushMsg{Type: "error", Data: "userId is required"})
		return
	}

	c.mu.Lock()
	already := c.userID != ""
	if !already {
		c.userID = userID
	}
	c.mu.Unlock()

	if !already {
		select {
		case c.hub.joins <- join{c: c, userID: userID}:
		case <-c.hub.done:
			return
		}
	}
	c.enqueue(pushMsg{Type: "authenticated", Data: map[string]string{"userId": c.user()}})
}

func (c *client) enqueue(msg pushMsg) {
	out, err := json.Marshal(msg)
	if err != nil {
		return
	}
	select {
	case c.send <- out:
	default:
	}
}

// writePump pumps frames from the hub to the connection and keeps the
// connection alive with periodic pings.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.hub.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}
