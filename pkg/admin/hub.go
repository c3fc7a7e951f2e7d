package admin

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// eventsChannel is the only broadcast channel the admin hub carries today;
// kept as a channel name rather than a bare broadcast so the client
// protocol has room to grow without changing the wire shape.
const eventsChannel = "events"

// Hub fans TxEvents out to subscribed WebSocket clients. It never receives
// or reasons about verb payloads itself — Publish is called by the
// processor's dispatch loop after a transaction has already been applied.
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]bool
	logger  *zap.SugaredLogger
}

// NewHub returns an empty Hub. There is no Run loop to start: registration
// and broadcast are synchronized directly under mu rather than through a
// goroutine, since admin traffic is low-volume operator tooling, not the
// hot path.
func NewHub(logger *zap.SugaredLogger) *Hub {
	return &Hub{clients: make(map[*client]bool), logger: logger}
}

// Publish broadcasts event to every client subscribed to the events channel.
func (h *Hub) Publish(event TxEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		if h.logger != nil {
			h.logger.Warnw("admin_event_marshal_failed", "err", err)
		}
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if !c.subscribed(eventsChannel) {
			continue
		}
		select {
		case c.send <- data:
		default:
		}
	}
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.clients[c] = true
	h.mu.Unlock()
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	subsMu sync.RWMutex
	subs   map[string]bool
}

func (c *client) subscribed(channel string) bool {
	c.subsMu.RLock()
	defer c.subsMu.RUnlock()
	return c.subs[channel]
}

func (c *client) subscribe(channels []string) {
	c.subsMu.Lock()
	for _, ch := range channels {
		c.subs[ch] = true
	}
	c.subsMu.Unlock()
}

func (c *client) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})
	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var req WSSubscribeRequest
		if err := json.Unmarshal(msg, &req); err != nil {
			continue
		}
		if req.Op == "subscribe" {
			c.subscribe(req.Channels)
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		if h.logger != nil {
			h.logger.Warnw("admin_ws_upgrade_failed", "err", err)
		}
		return
	}
	c := &client{hub: h, conn: conn, send: make(chan []byte, 64), subs: make(map[string]bool)}
	h.register(c)
	go c.writePump()
	go c.readPump()
}
