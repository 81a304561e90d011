package subscription

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Client actions.
const (
	ActionSubscribe   = "subscribe"
	ActionUnsubscribe = "unsubscribe"
	ActionClear       = "clear"
	ActionPing        = "ping"
)

// Response event types.
const (
	ResponseSubscribed   = "Subscribed"
	ResponseUnsubscribed = "Unsubscribed"
	ResponseCleared      = "Cleared"
	ResponsePong         = "Pong"
	ResponseError        = "Error"
)

// Request is a message from a client.
type Request struct {
	Action string `json:"action,omitempty"`
	ID     string `json:"id,omitempty"`
	Filter
}

// Response acknowledges a request.
type Response struct {
	EventType string  `json:"eventType"`
	ID        string  `json:"id,omitempty"`
	Filter    *Filter `json:"filter,omitempty"`
	Message   string  `json:"message,omitempty"`
}

// Client is a connected websocket peer and its filters.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	filters []Filter
	mu      sync.RWMutex
}

func (c *Client) matches(ev Event) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, f := range c.filters {
		if f.Matches(ev) {
			return true
		}
	}
	return false
}

// readPump reads requests until the connection fails or closes.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()

	cfg := c.hub.cfg
	c.conn.SetReadLimit(cfg.MaxMessageSize)
	//nolint:errcheck // Best-effort deadline on connection setup
	c.conn.SetReadDeadline(time.Now().Add(cfg.PingInterval + cfg.PongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(cfg.PingInterval + cfg.PongTimeout))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "error", err)
			} else {
				c.hub.logger.Debug("websocket closed", "error", err)
			}
			return
		}
		// Any client message resets the read deadline.
		//nolint:errcheck // Best-effort deadline reset
		c.conn.SetReadDeadline(time.Now().Add(cfg.PingInterval + cfg.PongTimeout))
		c.handleMessage(message)
	}
}

// writePump drains the send channel and pings the peer.
func (c *Client) writePump() {
	cfg := c.hub.cfg
	ticker := time.NewTicker(cfg.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				//nolint:errcheck // Best-effort close message
				c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			//nolint:errcheck // Best-effort deadline; write error caught below
			c.conn.SetWriteDeadline(time.Now().Add(cfg.PongTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			//nolint:errcheck // Best-effort deadline; ping error caught below
			c.conn.SetWriteDeadline(time.Now().Add(cfg.PongTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) handleMessage(data []byte) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		c.respond(Response{EventType: ResponseError, Message: "invalid JSON message"})
		return
	}

	switch strings.ToLower(strings.TrimSpace(req.Action)) {
	case "", ActionSubscribe:
		f, err := req.Filter.normalise()
		if err != nil {
			c.respond(Response{EventType: ResponseError, ID: req.ID, Message: err.Error()})
			return
		}
		c.mu.Lock()
		if !containsFilter(c.filters, f) {
			c.filters = append(c.filters, f)
		}
		c.mu.Unlock()
		c.hub.logger.Debug("websocket client subscribed", "type", f.SubscriptionType, "entity_type", f.EntityType, "entity_key", f.EntityKey)
		c.respond(Response{EventType: ResponseSubscribed, ID: req.ID, Filter: &f})

	case ActionUnsubscribe:
		f, err := req.Filter.normalise()
		if err != nil {
			c.respond(Response{EventType: ResponseError, ID: req.ID, Message: err.Error()})
			return
		}
		c.mu.Lock()
		kept := c.filters[:0]
		for _, existing := range c.filters {
			if !existing.equal(f) {
				kept = append(kept, existing)
			}
		}
		c.filters = kept
		c.mu.Unlock()
		c.respond(Response{EventType: ResponseUnsubscribed, ID: req.ID, Filter: &f})

	case ActionClear:
		c.mu.Lock()
		c.filters = nil
		c.mu.Unlock()
		c.respond(Response{EventType: ResponseCleared, ID: req.ID})

	case ActionPing:
		c.respond(Response{EventType: ResponsePong, ID: req.ID})

	default:
		c.respond(Response{EventType: ResponseError, ID: req.ID, Message: "unknown action: " + req.Action})
	}
}

func containsFilter(filters []Filter, f Filter) bool {
	for _, existing := range filters {
		if existing.equal(f) {
			return true
		}
	}
	return false
}

func (c *Client) respond(r Response) {
	data, err := json.Marshal(r)
	if err != nil {
		return
	}
	c.trySend(data)
}

// trySend queues data without blocking. Sends to a closed channel (client
// disconnected during a broadcast) and to a full buffer (slow client) are
// dropped.
func (c *Client) trySend(data []byte) {
	defer func() {
		recover() //nolint:errcheck // Absorb send-on-closed-channel panic
	}()

	select {
	case c.send <- data:
	default:
		c.hub.logger.Debug("websocket client buffer full, dropping message")
	}
}
