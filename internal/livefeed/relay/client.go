// Package relay reads a live platform feed forwarded over a WebSocket relay
// and republishes it on a livefeed.Emitter.
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ichi0g0y/wheel-overlay/internal/livefeed"
	"github.com/ichi0g0y/wheel-overlay/internal/types"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	ReadBufferSize  = 4096
	WriteBufferSize = 1024

	DefaultReconnectInterval = 5 * time.Second
	reconnectBurst           = 1
	pongWait                 = 60 * time.Second
	handshakeTimeout         = 10 * time.Second
)

// Frame is one relayed event.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Client is a livefeed.Source backed by a relay connection.
type Client struct {
	*livefeed.Emitter

	url     string
	log     *zap.Logger
	limiter *rate.Limiter
	dialer  websocket.Dialer

	mu        sync.RWMutex
	conn      *websocket.Conn
	connected bool
	lastError error
	onError   func(error)

	wg sync.WaitGroup
}

func NewClient(url string, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		Emitter: livefeed.NewEmitter(),
		url:     url,
		log:     log,
		limiter: rate.NewLimiter(rate.Every(DefaultReconnectInterval), reconnectBurst),
		dialer: websocket.Dialer{
			ReadBufferSize:   ReadBufferSize,
			WriteBufferSize:  WriteBufferSize,
			HandshakeTimeout: handshakeTimeout,
		},
	}
}

// SetReconnectInterval changes the minimum gap between connection attempts.
func (c *Client) SetReconnectInterval(d time.Duration) {
	c.limiter.SetLimit(rate.Every(d))
}

// Start connects in the background and keeps reconnecting until ctx ends.
func (c *Client) Start(ctx context.Context) {
	c.wg.Add(1)
	go c.connectLoop(ctx)
}

// Wait blocks until the connection loop has exited.
func (c *Client) Wait() {
	c.wg.Wait()
}

func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// OnError registers fn to receive connection errors.
func (c *Client) OnError(fn func(error)) {
	c.mu.Lock()
	c.onError = fn
	c.mu.Unlock()
}

func (c *Client) LastError() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastError
}

func (c *Client) connectLoop(ctx context.Context) {
	defer c.wg.Done()

	for {
		if err := c.limiter.Wait(ctx); err != nil {
			return
		}
		err := c.connect(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			c.mu.Lock()
			c.lastError = err
			onError := c.onError
			c.mu.Unlock()
			if onError != nil {
				onError(err)
			}
			c.log.Warn("Relay connection lost, will retry", zap.String("url", c.url), zap.Error(err))
		}
	}
}

func (c *Client) connect(ctx context.Context) error {
	c.log.Info("Connecting to relay", zap.String("url", c.url))

	conn, resp, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("failed to connect: %w (status: %s)", err, resp.Status)
		}
		return fmt.Errorf("failed to connect: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.lastError = nil
	c.mu.Unlock()
	c.log.Info("Relay connected", zap.String("url", c.url))
	c.Emit(types.EventConnect, nil)

	// ctxが終わったら読み込みを中断させる
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	err = c.readLoop(conn)

	c.mu.Lock()
	c.conn = nil
	c.connected = false
	c.mu.Unlock()
	conn.Close()
	c.Emit(types.EventDisconnect, nil)
	return err
}

func (c *Client) readLoop(conn *websocket.Conn) error {
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPingHandler(func(data string) error {
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
	})

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read failed: %w", err)
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		c.dispatch(msg)
	}
}

func (c *Client) dispatch(msg []byte) {
	var f Frame
	if err := json.Unmarshal(msg, &f); err != nil {
		c.log.Debug("Ignoring malformed relay frame", zap.Error(err))
		return
	}
	kind, ok := ParseKind(f.Event)
	if !ok {
		c.log.Debug("Ignoring unknown relay event", zap.String("event", f.Event))
		return
	}
	// connect/disconnectはこちらの接続状態だけを通知する
	if kind == types.EventConnect || kind == types.EventDisconnect {
		return
	}
	c.Emit(kind, f.Data)
}

// ParseKind maps a relay event name onto a feed channel. "join" and
// "roomJoin" are accepted as aliases for member.
func ParseKind(event string) (types.EventKind, bool) {
	switch event {
	case "join", "roomJoin":
		return types.EventMember, true
	}
	for _, k := range types.EventKinds {
		if string(k) == event {
			return k, true
		}
	}
	return "", false
}
