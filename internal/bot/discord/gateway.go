package discord

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// gatewayWriteWait is the time allowed to write a frame to the peer.
	gatewayWriteWait = 10 * time.Second

	// gatewayReadWait bounds reads; the heartbeat ACK resets it.
	gatewayReadWait = 90 * time.Second

	// gatewayReconnectDelay is the base delay before reconnecting.
	gatewayReconnectDelay = 2 * time.Second

	// gatewayMaxReconnectDelay caps the exponential backoff.
	gatewayMaxReconnectDelay = 60 * time.Second
)

// MessageHandler is called for every MESSAGE_CREATE dispatch.
type MessageHandler func(Message)

// InteractionHandler is called for every INTERACTION_CREATE dispatch.
type InteractionHandler func(Interaction)

// Gateway is a WebSocket client for the Discord gateway. It identifies,
// heartbeats at the interval the gateway announces, tracks the dispatch
// sequence, and reconnects with backoff when the connection drops.
type Gateway struct {
	token   string
	intents int
	wsURL   string
	conn    *websocket.Conn

	mu     sync.RWMutex
	closed bool

	sessionID string
	resumeURL string
	sequence  int64
	botUser   User

	// hbStop belongs to the current connection's heartbeat loop. Connect
	// closes the previous one so a reconnect never leaves two loops ticking
	// against the same conn.
	hbStop chan struct{}

	messageHandlers     []MessageHandler
	interactionHandlers []InteractionHandler
	handlerMu           sync.RWMutex

	// done is closed when the client shuts down.
	done chan struct{}
}

// NewGateway creates a gateway client for the given bot token.
//
// wsURL is the gateway endpoint from Client.GatewayURL.
func NewGateway(token, wsURL string) *Gateway {
	return &Gateway{
		token:   token,
		intents: IntentGuilds | IntentGuildMessages | IntentDirectMessages | IntentMessageContent,
		wsURL:   wsURL,
		done:    make(chan struct{}),
	}
}

// OnMessage registers a handler for incoming chat messages.
func (g *Gateway) OnMessage(handler MessageHandler) {
	g.handlerMu.Lock()
	defer g.handlerMu.Unlock()
	g.messageHandlers = append(g.messageHandlers, handler)
}

// OnInteraction registers a handler for component interactions.
func (g *Gateway) OnInteraction(handler InteractionHandler) {
	g.handlerMu.Lock()
	defer g.handlerMu.Unlock()
	g.interactionHandlers = append(g.interactionHandlers, handler)
}

// BotUser returns the bot's own user once READY has been received.
func (g *Gateway) BotUser() User {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.botUser
}

// Connect establishes the gateway connection and performs the hello,
// identify (or resume) handshake. Read and heartbeat loops run in the
// background until Close.
func (g *Gateway) Connect(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return fmt.Errorf("discord/gateway: client is closed")
	}

	target := g.wsURL
	if g.sessionID != "" && g.resumeURL != "" {
		target = g.resumeURL
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 15 * time.Second,
	}
	conn, _, err := dialer.DialContext(ctx, target, nil)
	if err != nil {
		return fmt.Errorf("discord/gateway: connect: %w", err)
	}
	g.conn = conn
	g.conn.SetReadDeadline(time.Now().Add(gatewayReadWait))

	// First frame must be HELLO with the heartbeat interval.
	var hello GatewayPayload
	if err := conn.ReadJSON(&hello); err != nil {
		conn.Close()
		return fmt.Errorf("discord/gateway: read hello: %w", err)
	}
	if hello.Op != OpHello {
		conn.Close()
		return fmt.Errorf("discord/gateway: expected hello, got op %d", hello.Op)
	}
	var h helloData
	if err := json.Unmarshal(hello.Data, &h); err != nil {
		conn.Close()
		return fmt.Errorf("discord/gateway: decode hello: %w", err)
	}

	if g.sessionID != "" {
		err = g.send(OpResume, resumeData{
			Token:     g.token,
			SessionID: g.sessionID,
			Sequence:  g.sequence,
		})
	} else {
		err = g.send(OpIdentify, identifyData{
			Token:   g.token,
			Intents: g.intents,
			Properties: identifyProperties{
				OS:      runtime.GOOS,
				Browser: "tradedesk",
				Device:  "tradedesk",
			},
		})
	}
	if err != nil {
		conn.Close()
		return fmt.Errorf("discord/gateway: handshake: %w", err)
	}

	if g.hbStop != nil {
		close(g.hbStop)
	}
	g.hbStop = make(chan struct{})

	go g.readLoop()
	go g.heartbeatLoop(time.Duration(h.HeartbeatInterval)*time.Millisecond, conn, g.hbStop)

	return nil
}

// Close shuts down the gateway connection.
func (g *Gateway) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return nil
	}
	g.closed = true
	close(g.done)

	if g.conn != nil {
		_ = g.conn.WriteMessage(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		)
		return g.conn.Close()
	}
	return nil
}

// send writes a gateway frame. Caller must hold g.mu.
func (g *Gateway) send(op int, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal op %d: %w", op, err)
	}

	g.conn.SetWriteDeadline(time.Now().Add(gatewayWriteWait))
	return g.conn.WriteJSON(GatewayPayload{Op: op, Data: raw})
}

// sendLocked is send with the lock taken, for the background loops.
func (g *Gateway) sendLocked(op int, data any) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.conn == nil {
		return fmt.Errorf("discord/gateway: not connected")
	}
	return g.send(op, data)
}

// heartbeatLoop sends heartbeats carrying the last seen sequence until its
// connection is replaced or the client closes. It writes only to the conn it
// was started for, so a loop outliving a reconnect cannot heartbeat the
// replacement connection.
func (g *Gateway) heartbeatLoop(interval time.Duration, conn *websocket.Conn, stop <-chan struct{}) {
	if interval <= 0 {
		interval = 41250 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-g.done:
			return
		case <-stop:
			return
		case <-ticker.C:
			g.mu.Lock()
			if g.conn != conn {
				g.mu.Unlock()
				return
			}
			seq := g.sequence
			err := g.send(OpHeartbeat, seq)
			g.mu.Unlock()

			if err != nil {
				return
			}
		}
	}
}

// readLoop reads gateway frames and dispatches them. On disconnect it
// attempts to resume with backoff.
func (g *Gateway) readLoop() {
	for {
		select {
		case <-g.done:
			return
		default:
		}

		g.mu.RLock()
		conn := g.conn
		g.mu.RUnlock()
		if conn == nil {
			return
		}

		var payload GatewayPayload
		if err := conn.ReadJSON(&payload); err != nil {
			select {
			case <-g.done:
				return
			default:
			}
			g.reconnect()
			return
		}
		conn.SetReadDeadline(time.Now().Add(gatewayReadWait))

		g.handlePayload(payload)
	}
}

// handlePayload routes one gateway frame.
func (g *Gateway) handlePayload(p GatewayPayload) {
	switch p.Op {
	case OpDispatch:
		if p.Sequence != nil {
			g.mu.Lock()
			g.sequence = *p.Sequence
			g.mu.Unlock()
		}
		g.handleDispatch(p.Type, p.Data)

	case OpHeartbeat:
		// The gateway may request an immediate heartbeat.
		g.mu.RLock()
		seq := g.sequence
		g.mu.RUnlock()
		_ = g.sendLocked(OpHeartbeat, seq)

	case OpReconnect:
		g.mu.RLock()
		conn := g.conn
		g.mu.RUnlock()
		if conn != nil {
			conn.Close()
		}

	case OpInvalidSession:
		// Session cannot be resumed; identify fresh on reconnect.
		g.mu.Lock()
		g.sessionID = ""
		g.resumeURL = ""
		g.sequence = 0
		conn := g.conn
		g.mu.Unlock()
		if conn != nil {
			conn.Close()
		}

	case OpHeartbeatACK:
		// Nothing to do.
	}
}

// handleDispatch routes a dispatch event to registered handlers.
func (g *Gateway) handleDispatch(event string, data json.RawMessage) {
	switch event {
	case "READY":
		var ready readyData
		if err := json.Unmarshal(data, &ready); err != nil {
			return
		}
		g.mu.Lock()
		g.sessionID = ready.SessionID
		g.resumeURL = ready.ResumeGatewayURL
		g.botUser = ready.User
		g.mu.Unlock()

	case "MESSAGE_CREATE":
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			return
		}
		// Ignore our own and other bots' messages.
		if msg.Author.Bot {
			return
		}

		g.handlerMu.RLock()
		handlers := g.messageHandlers
		g.handlerMu.RUnlock()
		for _, h := range handlers {
			h(msg)
		}

	case "INTERACTION_CREATE":
		var in Interaction
		if err := json.Unmarshal(data, &in); err != nil {
			return
		}
		if in.Type != InteractionMessageComponent {
			return
		}

		g.handlerMu.RLock()
		handlers := g.interactionHandlers
		g.handlerMu.RUnlock()
		for _, h := range handlers {
			h(in)
		}
	}
}

// reconnect re-establishes the gateway connection with exponential backoff.
func (g *Gateway) reconnect() {
	delay := gatewayReconnectDelay

	for {
		select {
		case <-g.done:
			return
		default:
		}

		time.Sleep(delay)

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		err := g.Connect(ctx)
		cancel()

		if err == nil {
			return
		}

		delay *= 2
		if delay > gatewayMaxReconnectDelay {
			delay = gatewayMaxReconnectDelay
		}
	}
}
