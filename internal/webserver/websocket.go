package webserver

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ichi0g0y/wheel-overlay/internal/metrics"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"go.uber.org/zap"
)

const (
	overlayPingEvery  = 30 * time.Second
	overlayPongWait   = 60 * time.Second
	overlayWriteWait  = 10 * time.Second
	overlaySendBuffer = 256
	hubQueueSize      = 256
)

// Message is one frame pushed to the overlay: {"type": ..., "data": ...}.
type Message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type overlayClient struct {
	hub      *Hub
	conn     *websocket.Conn
	outbox   chan []byte
	id       string
	joinedAt time.Time
}

// Hub fans wheel notifications out to every connected overlay.
// Run owns the client set; everything else talks to it over channels.
type Hub struct {
	mu      sync.RWMutex
	clients map[*overlayClient]struct{}

	joins  chan *overlayClient
	leaves chan *overlayClient
	queue  chan Message
	done   chan struct{}

	log      *zap.Logger
	greeting func() []Message
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// OBS browser sources connect from file:// and arbitrary hosts
	CheckOrigin: func(*http.Request) bool { return true },
}

func NewHub(log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		clients: make(map[*overlayClient]struct{}),
		joins:   make(chan *overlayClient),
		leaves:  make(chan *overlayClient),
		queue:   make(chan Message, hubQueueSize),
		done:    make(chan struct{}),
		log:     log,
	}
}

// SetGreeting sets the messages a client receives right after "connected".
func (h *Hub) SetGreeting(fn func() []Message) {
	h.greeting = fn
}

// Run serves the hub until ctx ends, then drops every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				delete(h.clients, c)
				close(c.outbox)
			}
			h.mu.Unlock()
			metrics.OverlayClients.Set(0)
			return

		case c := <-h.joins:
			h.add(c)

		case c := <-h.leaves:
			h.remove(c)

		case msg := <-h.queue:
			h.fanOut(msg)
		}
	}
}

func (h *Hub) add(c *overlayClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	metrics.OverlayClients.Set(float64(n))
	h.log.Info("Overlay connected", zap.String("clientId", c.id), zap.Int("clients", n))

	hello, _ := json.Marshal(map[string]string{"clientId": c.id})
	c.deliver(h, Message{Type: "connected", Data: hello})
	if h.greeting != nil {
		for _, msg := range h.greeting() {
			c.deliver(h, msg)
		}
	}
}

func (h *Hub) remove(c *overlayClient) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	close(c.outbox)
	n := len(h.clients)
	h.mu.Unlock()
	metrics.OverlayClients.Set(float64(n))
	h.log.Info("Overlay disconnected",
		zap.String("clientId", c.id),
		zap.Duration("connected_for", time.Since(c.joinedAt)),
		zap.Int("clients", n))
}

func (h *Hub) fanOut(msg Message) {
	frame, err := json.Marshal(msg)
	if err != nil {
		h.log.Error("Failed to encode overlay message", zap.String("type", msg.Type), zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.outbox <- frame:
		default:
			// slow consumer: drop it rather than stall the wheel
			go func(c *overlayClient) {
				h.leave(c)
				_ = c.conn.Close()
			}(c)
		}
	}
}

// leave unregisters c unless the hub has already stopped.
func (h *Hub) leave(c *overlayClient) {
	select {
	case h.leaves <- c:
	case <-h.done:
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast queues data for every overlay. It never blocks; when the queue is
// full the message is dropped.
func (h *Hub) Broadcast(msgType string, data any) {
	raw, err := json.Marshal(data)
	if err != nil {
		h.log.Error("Failed to encode overlay payload", zap.String("type", msgType), zap.Error(err))
		return
	}

	select {
	case h.queue <- Message{Type: msgType, Data: raw}:
		if msgType != "spin_tick" {
			h.log.Debug("Overlay message queued", zap.String("type", msgType))
		}
	default:
		h.log.Warn("Overlay queue full, message dropped", zap.String("type", msgType))
	}
}

// ServeWS upgrades an overlay connection. ?clientId= is optional.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("clientId")
	if id == "" {
		id = newClientID()
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("Overlay websocket upgrade failed", zap.Error(err))
		return
	}

	c := &overlayClient{
		hub:      h,
		conn:     conn,
		outbox:   make(chan []byte, overlaySendBuffer),
		id:       id,
		joinedAt: time.Now(),
	}

	select {
	case h.joins <- c:
	case <-h.done:
		_ = conn.Close()
		return
	}

	go c.writeLoop()
	go c.readLoop()
}

func (c *overlayClient) deliver(h *Hub, msg Message) {
	frame, err := json.Marshal(msg)
	if err != nil {
		h.log.Error("Failed to encode overlay message", zap.String("type", msg.Type), zap.Error(err))
		return
	}
	select {
	case c.outbox <- frame:
	default:
	}
}

// readLoop only exists to notice disconnects and keep the pong deadline fresh.
func (c *overlayClient) readLoop() {
	defer func() {
		c.hub.leave(c)
		_ = c.conn.Close()
	}()

	_ = c.conn.SetReadDeadline(time.Now().Add(overlayPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(overlayPongWait))
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Debug("Overlay read failed", zap.String("clientId", c.id), zap.Error(err))
			}
			return
		}
		c.hub.log.Debug("Ignoring overlay message", zap.String("clientId", c.id), zap.Int("bytes", len(msg)))
	}
}

// writeLoop is the connection's only writer.
func (c *overlayClient) writeLoop() {
	ping := time.NewTicker(overlayPingEvery)
	defer func() {
		ping.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.outbox:
			_ = c.conn.SetWriteDeadline(time.Now().Add(overlayWriteWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}

		case <-ping.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(overlayWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func newClientID() string {
	id, err := gonanoid.New(12)
	if err != nil {
		return "overlay-" + time.Now().Format("150405.000000")
	}
	return "overlay-" + id
}
