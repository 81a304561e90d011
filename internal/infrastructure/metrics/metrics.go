package metrics

import (
	"fmt"

	"github.com/DataDog/datadog-go/statsd"
)

// Config holds the DogStatsD settings.
type Config struct {
	Enabled   bool
	Address   string
	Namespace string
	Tags      []string
}

// Logger defines the logging interface for the metrics client.
type Logger interface {
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any) {}

// Client emits metrics to a DogStatsD agent. A nil *Client and a client
// created with metrics disabled are valid and discard everything.
type Client struct {
	statsd *statsd.Client
	logger Logger
}

// New creates a metrics client.
//
// Parameters:
//   - cfg: DogStatsD settings. When cfg.Enabled is false a no-op client is returned
//   - logger: Receives emit failures; may be nil
//
// Returns:
//   - *Client: Metrics client
//   - error: If the agent address cannot be resolved
func New(cfg Config, logger Logger) (*Client, error) {
	if logger == nil {
		logger = noopLogger{}
	}
	if !cfg.Enabled {
		return &Client{logger: logger}, nil
	}

	opts := []statsd.Option{statsd.WithTags(cfg.Tags)}
	if cfg.Namespace != "" {
		opts = append(opts, statsd.WithNamespace(cfg.Namespace))
	}

	c, err := statsd.New(cfg.Address, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating DogStatsD client: %w", err)
	}
	return &Client{statsd: c, logger: logger}, nil
}

// Enabled reports whether metrics are sent anywhere.
func (c *Client) Enabled() bool {
	return c != nil && c.statsd != nil
}

// Count adds value to a counter.
func (c *Client) Count(name string, value int64, tags ...string) {
	if !c.Enabled() {
		return
	}
	if err := c.statsd.Count(name, value, tags, 1); err != nil {
		c.logger.Warn("failed to emit count metric", "metric", name, "error", err)
	}
}

// Gauge records the current value of a gauge.
func (c *Client) Gauge(name string, value float64, tags ...string) {
	if !c.Enabled() {
		return
	}
	if err := c.statsd.Gauge(name, value, tags, 1); err != nil {
		c.logger.Warn("failed to emit gauge metric", "metric", name, "error", err)
	}
}

// Close flushes buffered metrics and closes the client.
func (c *Client) Close() error {
	if !c.Enabled() {
		return nil
	}
	return c.statsd.Close()
}
