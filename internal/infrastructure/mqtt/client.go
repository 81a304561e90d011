package mqtt

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/eclipse/paho.mqtt.golang/packets"
)

// Client wraps a single paho connection.
//
// A Client does not reconnect on its own. When the connection drops, the
// onLost callback passed to Connect is invoked once and the client stays
// disconnected; the owner decides when to dial again.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Client struct {
	client pahomqtt.Client
	opts   Options

	connected bool
	connMu    sync.RWMutex

	logger   Logger
	loggerMu sync.RWMutex
}

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

// MessageHandler is the callback signature for received messages.
//
// Handlers are invoked on paho's delivery goroutine and should not block
// for extended periods.
//
// Returns:
//   - error: Logged but does not affect message acknowledgment
type MessageHandler func(topic string, payload []byte) error

// rejections are CONNACK refusals: the broker is reachable but will not
// accept this client as configured.
var rejections = []error{
	packets.ErrorRefusedBadProtocolVersion,
	packets.ErrorRefusedIDRejected,
	packets.ErrorRefusedBadUsernameOrPassword,
	packets.ErrorRefusedNotAuthorised,
}

// Connect dials the broker once.
//
// Parameters:
//   - ctx: Cancels the connect attempt
//   - o: Broker connection options
//   - onLost: Called when an established connection drops; may be nil
//
// Returns:
//   - *Client: Connected client
//   - error: ErrConnectionRejected when the broker refused the client,
//     ErrConnectionFailed for any other failure
func Connect(ctx context.Context, o Options, onLost func(err error)) (*Client, error) {
	if o.QoS > maxQoS {
		return nil, ErrInvalidQoS
	}

	c := &Client{opts: o}

	popts := buildClientOptions(o)
	popts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		c.setConnected(false)
		if onLost != nil {
			onLost(err)
		}
	})

	c.client = pahomqtt.NewClient(popts)
	timeout := o.ConnectTimeout
	if timeout <= 0 {
		timeout = defaultConnectTimeout
	}
	if err := wait(ctx, c.client.Connect(), timeout); err != nil {
		c.client.Disconnect(0)
		return nil, classifyConnectError(err)
	}
	c.setConnected(true)

	if o.StatusTopic != "" {
		c.client.Publish(o.StatusTopic, o.QoS, true, statusPayload(o.ClientID, "online", ""))
	}
	return c, nil
}

// classifyConnectError separates broker refusals from transport failures.
func classifyConnectError(err error) error {
	for _, rejection := range rejections {
		if errors.Is(err, rejection) {
			return fmt.Errorf("%w: %w", ErrConnectionRejected, err)
		}
	}
	return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
}

// wait blocks until the token completes, ctx is done, or timeout elapses.
func wait(ctx context.Context, token pahomqtt.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("timeout after %v", timeout)
	}
}

// Close publishes the graceful offline status (if configured) and
// disconnects. Closing a nil or already closed client is a no-op.
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}

	if c.IsConnected() && c.opts.StatusTopic != "" {
		token := c.client.Publish(c.opts.StatusTopic, c.opts.QoS, true,
			statusPayload(c.opts.ClientID, "offline", "graceful_shutdown"))
		token.WaitTimeout(defaultOperationTimeout)
	}

	c.setConnected(false)
	c.client.Disconnect(defaultDisconnectQuiesce)
	return nil
}

// HealthCheck returns ErrNotConnected unless the connection is up.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mqtt health check: %w", err)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// IsConnected returns the current connection state.
func (c *Client) IsConnected() bool {
	if c == nil || c.client == nil {
		return false
	}
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.connected && c.client.IsConnectionOpen()
}

func (c *Client) setConnected(v bool) {
	c.connMu.Lock()
	c.connected = v
	c.connMu.Unlock()
}

// SetLogger sets a logger for handler errors and panics.
func (c *Client) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

func (c *Client) getLogger() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}

// wrapHandler adds panic recovery and error logging to a MessageHandler.
func (c *Client) wrapHandler(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				if logger := c.getLogger(); logger != nil {
					logger.Error("MQTT handler panic recovered", "topic", msg.Topic(), "panic", r)
				}
			}
		}()

		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			if logger := c.getLogger(); logger != nil {
				logger.Warn("MQTT handler returned error", "topic", msg.Topic(), "error", err)
			}
		}
	}
}
