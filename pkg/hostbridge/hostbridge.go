// Package hostbridge exposes the dispatcher's ready-state transitions and
// tick reasons over a WebSocket, for an external dashboard or debugging
// tool to observe a running playback session without touching its control
// flow. Observability stays a side channel, never on the control path.
// The shape is a classic signaling hub: one upgrader, a registry of
// clients each with a buffered outbound queue, and a ping/pong keepalive
// pump per connection.
package hostbridge

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/aminofox/hlsplay/pkg/logger"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	sendBuffer = 32
)

// Event is the JSON payload pushed to every connected client whenever the
// dispatcher's ready state changes or a tick is observed.
type Event struct {
	Type     string  `json:"type"`
	State    string  `json:"state,omitempty"`
	Reason   string  `json:"reason,omitempty"`
	Position float64 `json:"position,omitempty"`
}

const (
	EventStateChanged = "state_changed"
	EventTick         = "tick"
)

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// Hub fans Event values out to every connected WebSocket client.
type Hub struct {
	mu       sync.RWMutex
	clients  map[string]*client
	upgrader websocket.Upgrader
	log      logger.Logger
	nextID   int
}

// NewHub creates a Hub. CheckOrigin is left permissive since this tap is
// read-only telemetry, not a control surface.
func NewHub(log logger.Logger) *Hub {
	return &Hub{
		clients: make(map[string]*client),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		log: log,
	}
}

// ServeHTTP upgrades the request to a WebSocket and registers the new
// client.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		if h.log != nil {
			h.log.Error("hostbridge upgrade failed", logger.Err(err))
		}
		return
	}

	h.mu.Lock()
	h.nextID++
	c := &client{id: idFor(h.nextID), conn: conn, send: make(chan []byte, sendBuffer)}
	h.clients[c.id] = c
	h.mu.Unlock()

	go h.writePump(c)
	go h.readPump(c)
}

func idFor(n int) string {
	const digits = "0123456789"
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = digits[n%10]
		n /= 10
	}
	return string(buf[i:])
}

// readPump only drains incoming frames to keep the connection alive; this
// tap accepts no commands from clients.
func (h *Hub) readPump(c *client) {
	defer h.unregister(c)

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
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

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c.id]; ok {
		delete(h.clients, c.id)
		close(c.send)
	}
	h.mu.Unlock()
	c.conn.Close()
}

// Broadcast pushes ev to every connected client, dropping (and
// disconnecting) any client whose outbound queue is full rather than
// blocking the caller.
func (h *Hub) Broadcast(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}

	h.mu.RLock()
	targets := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		select {
		case c.send <- data:
		default:
			go h.unregister(c)
		}
	}
}

// ClientCount reports how many WebSocket clients are currently connected.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
