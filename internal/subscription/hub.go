package subscription

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mekatrol/imperium-core/internal/device"
	"github.com/mekatrol/imperium-core/internal/point"
)

// Defaults for Config fields left at zero.
const (
	DefaultMaxMessageSize = 8192
	DefaultPingInterval   = 30 * time.Second
	DefaultPongTimeout    = 10 * time.Second
	DefaultSendBuffer     = 256

	// closeGracePeriod bounds writing the close frame on shutdown.
	closeGracePeriod = time.Second
)

// Config holds websocket settings.
type Config struct {
	MaxMessageSize int64
	PingInterval   time.Duration
	PongTimeout    time.Duration
	SendBuffer     int
}

func (c Config) withDefaults() Config {
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = DefaultMaxMessageSize
	}
	if c.PingInterval <= 0 {
		c.PingInterval = DefaultPingInterval
	}
	if c.PongTimeout <= 0 {
		c.PongTimeout = DefaultPongTimeout
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = DefaultSendBuffer
	}
	return c
}

// Logger defines the logging interface for the hub.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Gauge receives the connected client count.
type Gauge interface {
	Gauge(name string, value float64, tags ...string)
}

// Hub tracks connected clients and their filters and broadcasts events.
//
// Thread Safety: All methods are safe for concurrent use.
type Hub struct {
	cfg      Config
	logger   Logger
	gauge    Gauge
	upgrader websocket.Upgrader

	clients map[*Client]struct{}
	closed  bool
	mu      sync.RWMutex
}

// NewHub creates a hub. logger may be nil.
func NewHub(cfg Config, logger Logger) *Hub {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Hub{
		cfg:    cfg.withDefaults(),
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(_ *http.Request) bool {
				// Origin checking is handled by CORS middleware
				return true
			},
		},
		clients: make(map[*Client]struct{}),
	}
}

// SetMetrics sets the gauge for the client count.
func (h *Hub) SetMetrics(g Gauge) {
	h.mu.Lock()
	h.gauge = g
	h.mu.Unlock()
}

// ServeHTTP upgrades the request to a websocket and starts the client's
// read and write pumps.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	client := &Client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, h.cfg.SendBuffer),
	}
	if !h.register(client) {
		//nolint:errcheck // Best-effort close during shutdown
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(closeGracePeriod))
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// Run blocks until ctx is cancelled, then closes every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.Close()
}

func (h *Hub) register(c *Client) bool {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return false
	}
	h.clients[c] = struct{}{}
	n := len(h.clients)
	gauge := h.gauge
	h.mu.Unlock()

	h.logger.Debug("websocket client connected", "clients", n)
	if gauge != nil {
		gauge.Gauge("subscription.clients", float64(n))
	}
	return true
}

// unregister removes a client. Only the goroutine that removes the client
// from the map closes its send channel.
func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	_, existed := h.clients[c]
	delete(h.clients, c)
	n := len(h.clients)
	gauge := h.gauge
	h.mu.Unlock()

	if !existed {
		return
	}
	close(c.send)
	h.logger.Debug("websocket client disconnected", "clients", n)
	if gauge != nil {
		gauge.Gauge("subscription.clients", float64(n))
	}
}

// Publish sends ev to every client with a matching filter.
func (h *Hub) Publish(ev Event) {
	if ev.Timestamp == "" {
		ev.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}
	if ev.Value == nil {
		ev.Value = json.RawMessage("null")
	}
	data, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("failed to marshal event", "error", err)
		return
	}

	// Snapshot client list under hub lock, then release before sending
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	sent := 0
	for _, c := range clients {
		if c.matches(ev) {
			c.trySend(data)
			sent++
		}
	}
	if sent > 0 {
		h.logger.Debug("event sent", "event", ev.EventType, "device", ev.DeviceKey, "point", ev.PointKey, "recipients", sent)
	}
}

// HandleChange converts a registry change to an event and publishes it.
// It is registered as a device.Listener.
func (h *Hub) HandleChange(c device.Change) {
	ev := Event{
		DeviceKey: c.DeviceKey,
		PointKey:  c.PointKey,
	}
	if !c.Time.IsZero() {
		ev.Timestamp = c.Time.UTC().Format(time.RFC3339Nano)
	}

	switch c.Kind {
	case device.PointChanged:
		ev.EventType = TypeChange
		ev.EntityType = EntityPoint
		value, err := point.EncodeValue(c.Value)
		if err != nil {
			h.logger.Warn("point value not encodable", "device", c.DeviceKey, "point", c.PointKey, "error", err)
			return
		}
		ev.Value = value
	case device.DeviceStatusChanged:
		ev.EventType = TypeStatus
		ev.EntityType = EntityDevice
		ev.Value, _ = json.Marshal(c.Online) //nolint:errcheck // bool always encodes
	default:
		return
	}
	h.Publish(ev)
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close sends a normal-closure close frame to every client, closes their
// connections, and rejects new clients.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
		delete(h.clients, c)
	}
	gauge := h.gauge
	h.mu.Unlock()

	deadline := time.Now().Add(closeGracePeriod)
	for _, c := range clients {
		//nolint:errcheck // Best-effort close frame; the connection is closed regardless
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "server shutdown"), deadline)
		close(c.send)
		c.conn.Close()
	}
	if len(clients) > 0 {
		h.logger.Info("websocket clients closed", "count", len(clients))
	}
	if gauge != nil {
		gauge.Gauge("subscription.clients", 0)
	}
}
