package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // same-network deployment, no origin policy
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

// Event is one device-scoped notification pushed to subscribers.
type Event struct {
	Type      string      `json:"type"`
	DeviceID  string      `json:"device_id"`
	Operation string      `json:"operation,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Time      time.Time   `json:"time"`
}

type client struct {
	hub        *WebSocketHub
	conn       *websocket.Conn
	send       chan []byte
	subscribed map[string]bool
}

// WebSocketHub fans device events out to connected clients. Clients opt in
// per device id, or to "all".
type WebSocketHub struct {
	log        zerolog.Logger
	clients    map[*client]bool
	register   chan *client
	unregister chan *client
	done       chan struct{}
	mu         sync.RWMutex
}

func NewWebSocketHub(log zerolog.Logger) *WebSocketHub {
	return &WebSocketHub{
		log:        log.With().Str("component", "ws").Logger(),
		clients:    make(map[*client]bool),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
	}
}

// Run owns the client set until ctx is canceled. After it returns, done is
// closed so client goroutines never block on register/unregister.
func (h *WebSocketHub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			total := len(h.clients)
			h.mu.Unlock()
			h.log.Debug().Int("total", total).Msg("client connected")

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			total := len(h.clients)
			h.mu.Unlock()
			h.log.Debug().Int("total", total).Msg("client disconnected")

		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
			return
		}
	}
}

// Broadcast pushes an event to every client subscribed to its device. Slow
// clients drop events instead of blocking the sender.
func (h *WebSocketHub) Broadcast(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		h.log.Warn().Err(err).Msg("event marshal failed")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if !c.subscribed[ev.DeviceID] && !c.subscribed["all"] {
			continue
		}
		select {
		case c.send <- payload:
		default:
			h.log.Warn().Str("device", ev.DeviceID).Msg("client send buffer full, event dropped")
		}
	}
}

// HandleWebSocket upgrades the request and starts the client pumps.
func HandleWebSocket(hub *WebSocketHub, c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		hub.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	cl := &client{
		hub:        hub,
		conn:       conn,
		send:       make(chan []byte, 32),
		subscribed: make(map[string]bool),
	}
	select {
	case hub.register <- cl:
	case <-hub.done:
		conn.Close()
		return
	}

	go cl.writePump()
	go cl.readPump()
}

// detach hands the client back to the hub, unless the hub already shut down
// and closed every send channel itself.
func (c *client) detach() {
	select {
	case c.hub.unregister <- c:
	case <-c.hub.done:
	}
}

type subscribeMessage struct {
	Type     string `json:"type"`
	DeviceID string `json:"device_id"`
}

func (c *client) readPump() {
	defer func() {
		c.detach()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Debug().Err(err).Msg("websocket read error")
			}
			return
		}

		var msg subscribeMessage
		if err := json.Unmarshal(raw, &msg); err != nil || msg.DeviceID == "" {
			continue
		}
		switch msg.Type {
		case "subscribe":
			c.subscribed[msg.DeviceID] = true
		case "unsubscribe":
			delete(c.subscribed, msg.DeviceID)
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
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
