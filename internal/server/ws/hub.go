// Package ws bridges the in-process event broadcaster to WebSocket clients.
// Each client gets its own broadcast subscription, so a slow reader only
// loses its own events.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"dexradar/internal/broadcast"
	"dexradar/internal/domain"
)

const (
	// writeWait is the maximum time to wait for a write to complete.
	writeWait = 10 * time.Second

	// pongWait is the maximum time to wait for a pong from the client.
	pongWait = 60 * time.Second

	// pingPeriod sends pings at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize is the maximum size of an incoming message.
	maxMessageSize = 4096
)

// upgrader configures the WebSocket upgrade parameters.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// CORS policy is enforced at the HTTP middleware layer.
		return true
	},
}

// client represents a single WebSocket connection with its own event
// subscription.
type client struct {
	hub  *Hub
	conn *websocket.Conn
	sub  *broadcast.Subscriber
	// types the client wants; empty means everything.
	mu    sync.RWMutex
	types map[domain.EventType]bool
}

// subscribeMsg is the JSON message a client sends to narrow or widen the
// event types it receives.
type subscribeMsg struct {
	Action string   `json:"action"` // "subscribe" or "unsubscribe"
	Types  []string `json:"types"`
}

// Hub tracks connected WebSocket clients and hands each one a broadcast
// subscription on connect.
type Hub struct {
	bc      *broadcast.Broadcaster
	logger  *slog.Logger
	started time.Time

	mu      sync.RWMutex
	clients map[*client]bool
}

// NewHub creates a Hub over the given broadcaster.
func NewHub(bc *broadcast.Broadcaster, logger *slog.Logger) *Hub {
	return &Hub{
		bc:      bc,
		logger:  logger.With(slog.String("component", "ws_hub")),
		started: time.Now().UTC(),
		clients: make(map[*client]bool),
	}
}

// Run blocks until ctx is cancelled, then closes every client connection.
func (h *Hub) Run(ctx context.Context) error {
	<-ctx.Done()

	h.mu.Lock()
	for c := range h.clients {
		c.sub.Close()
		c.conn.Close()
		delete(h.clients, c)
	}
	h.mu.Unlock()
	return ctx.Err()
}

// HandleWS upgrades an HTTP request to a WebSocket connection, subscribes it
// to the broadcaster, and starts its read and write pumps.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := &client{
		hub:   h,
		conn:  conn,
		sub:   h.bc.Subscribe(),
		types: make(map[domain.EventType]bool),
	}

	h.mu.Lock()
	h.clients[c] = true
	total := len(h.clients)
	h.mu.Unlock()
	h.logger.Info("client connected", slog.Int("total_clients", total))

	c.sendHello()
	go c.writePump()
	go c.readPump()
}

// ClientCount returns the number of currently connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		c.sub.Close()
	}
	total := len(h.clients)
	h.mu.Unlock()
	h.logger.Info("client disconnected", slog.Int("total_clients", total))
}

// readPump reads frames from the connection. The only meaningful inbound
// messages are event-type subscription updates; everything else is ignored.
func (c *client) readPump() {
	defer func() {
		c.hub.remove(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("unexpected close", slog.String("error", err.Error()))
			}
			return
		}

		var sub subscribeMsg
		if jsonErr := json.Unmarshal(message, &sub); jsonErr == nil && sub.Action != "" {
			c.handleSubscription(sub)
		}
	}
}

// handleSubscription updates the client's event-type filter. A client with no
// explicit subscriptions receives every event type.
func (c *client) handleSubscription(msg subscribeMsg) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch msg.Action {
	case "subscribe":
		for _, t := range msg.Types {
			c.types[domain.EventType(t)] = true
		}
	case "unsubscribe":
		for _, t := range msg.Types {
			delete(c.types, domain.EventType(t))
		}
	}
}

func (c *client) wants(t domain.EventType) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.types) == 0 || c.types[t]
}

// sendHello pushes a small JSON envelope so clients can mark the connection
// healthy before the first cycle's events arrive.
func (c *client) sendHello() {
	msg, err := json.Marshal(map[string]any{
		"type": "hello",
		"data": map[string]any{
			"connected":      true,
			"uptime_seconds": int64(time.Since(c.hub.started).Seconds()),
		},
	})
	if err != nil {
		return
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	c.conn.WriteMessage(websocket.TextMessage, msg)
}

// writePump forwards subscribed events as JSON text frames and sends periodic
// pings for keepalive.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case ev, ok := <-c.sub.C():
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub detached this client.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if !c.wants(ev.Type) {
				continue
			}
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
