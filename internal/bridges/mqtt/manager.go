package mqtt

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/mekatrol/imperium-core/internal/device"
	mqttclient "github.com/mekatrol/imperium-core/internal/infrastructure/mqtt"
	"github.com/mekatrol/imperium-core/internal/scheduler"
	"github.com/mekatrol/imperium-core/internal/status"
)

// Retry delays.
const (
	// RetryAfterFailure applies when the broker refused the client or no
	// host is configured.
	RetryAfterFailure = time.Minute

	// RetryAfterError applies to transport errors and panics during connect.
	RetryAfterError = 10 * time.Second

	// RetryAfterDisconnect applies after an unsolicited disconnect.
	RetryAfterDisconnect = time.Minute

	// routeTimeout bounds the processing of a single inbound message.
	routeTimeout = 10 * time.Second
)

// State is the connection state of the manager.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
)

// Conn is an established broker connection.
type Conn interface {
	Subscribe(ctx context.Context, filter string, qos byte, handler mqttclient.MessageHandler) error
	Publish(ctx context.Context, topic string, payload []byte, qos byte, retained bool) error
	IsConnected() bool
	Close() error
}

// Disconnect describes why a connection dropped. String prefers Err, then
// Reason, then Code.
type Disconnect struct {
	Err    error
	Reason string
	Code   int
}

func (d Disconnect) String() string {
	switch {
	case d.Err != nil:
		return d.Err.Error()
	case d.Reason != "":
		return d.Reason
	default:
		return fmt.Sprintf("reason code %d", d.Code)
	}
}

// Dialer opens a connection. onLost is called at most once when an
// established connection drops.
type Dialer func(ctx context.Context, o mqttclient.Options, onLost func(Disconnect)) (Conn, error)

// DialPaho is the Dialer backed by the paho client.
func DialPaho(ctx context.Context, o mqttclient.Options, onLost func(Disconnect)) (Conn, error) {
	c, err := mqttclient.Connect(ctx, o, func(err error) { onLost(Disconnect{Err: err}) })
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Logger defines the logging interface for the manager.
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

// Metrics receives connection and routing metrics.
type Metrics interface {
	Count(name string, value int64, tags ...string)
	Gauge(name string, value float64, tags ...string)
}

type noopMetrics struct{}

func (noopMetrics) Count(string, int64, ...string)   {}
func (noopMetrics) Gauge(string, float64, ...string) {}

// Reporter receives errors for the status sink.
type Reporter interface {
	ReportItem(ctx context.Context, item status.Item) string
}

// Config holds the manager settings.
type Config struct {
	// HostKey selects the broker in HostSettings. Defaults to DefaultHostKey.
	HostKey string

	// ClientID is used when the host has none. Defaults to "imperium".
	ClientID string

	// QoS for the catch-all subscription and publishes.
	QoS byte

	// TopicFilter is the subscription filter. Defaults to "#".
	TopicFilter string

	// StatusTopic, when set, receives retained online/offline messages.
	StatusTopic string

	ConnectTimeout time.Duration
	KeepAlive      time.Duration
}

// Options configures a Manager.
type Options struct {
	Config   Config
	Settings *HostSettings
	Registry *device.Registry
	Dialer   Dialer
	Logger   Logger
	Metrics  Metrics
	Reporter Reporter

	// Now overrides the clock in tests.
	Now func() time.Time
}

// Manager owns the broker connection and routes inbound messages to devices.
//
// Tick must be called from a single goroutine (the manager's scheduler
// loop). All other methods are safe for concurrent use, including while a
// Tick is connecting.
type Manager struct {
	cfg      Config
	settings *HostSettings
	registry *device.Registry
	dial     Dialer
	logger   Logger
	metrics  Metrics
	reporter Reporter
	now      func() time.Time

	mu          sync.Mutex
	conn        Conn
	gen         uint64
	connVersion int64
	retryAt     time.Time
	state       State

	patternsMu sync.Mutex
	patterns   map[string]*regexp.Regexp

	ctx    context.Context
	cancel context.CancelFunc
}

// NewManager creates a disconnected manager. Nothing is dialled until the
// first Tick.
func NewManager(opts Options) *Manager {
	cfg := opts.Config
	if cfg.HostKey == "" {
		cfg.HostKey = DefaultHostKey
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "imperium"
	}
	if cfg.TopicFilter == "" {
		cfg.TopicFilter = mqttclient.CatchAll
	}

	m := &Manager{
		cfg:         cfg,
		settings:    opts.Settings,
		registry:    opts.Registry,
		dial:        opts.Dialer,
		logger:      opts.Logger,
		metrics:     opts.Metrics,
		reporter:    opts.Reporter,
		now:         opts.Now,
		connVersion: -1,
		state:       StateDisconnected,
		patterns:    make(map[string]*regexp.Regexp),
	}
	if m.settings == nil {
		m.settings = NewHostSettings(nil)
	}
	if m.dial == nil {
		m.dial = DialPaho
	}
	if m.logger == nil {
		m.logger = noopLogger{}
	}
	if m.metrics == nil {
		m.metrics = noopMetrics{}
	}
	if m.now == nil {
		m.now = time.Now
	}
	m.ctx, m.cancel = context.WithCancel(context.Background())
	return m
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// RetryAt returns the scheduled retry time, zero when none is pending.
func (m *Manager) RetryAt() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.retryAt
}

// Iteration adapts Tick to a scheduler iteration.
func (m *Manager) Iteration(ctx context.Context, _ *scheduler.Scope) error {
	return m.Tick(ctx)
}

// Tick reconnects when the host settings changed since the last connect or
// the scheduled retry time has passed. Connect failures are handled here by
// scheduling a retry; Tick only returns an error when ctx is done.
//
// The dial and subscribe run without m.mu held, so State and Publish answer
// while a connect is in progress. A Close or lost connection during the
// attempt supersedes it and the new connection is discarded.
func (m *Manager) Tick(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	host, version, found := m.settings.Lookup(m.cfg.HostKey)

	m.mu.Lock()
	if m.ctx.Err() != nil {
		m.mu.Unlock()
		return nil
	}
	now := m.now()
	versionChanged := version != m.connVersion
	retryDue := !m.retryAt.IsZero() && !now.Before(m.retryAt)
	if !versionChanged && !retryDue {
		m.mu.Unlock()
		return nil
	}

	if versionChanged && m.connVersion >= 0 {
		m.logger.Info("MQTT host settings changed, reconnecting", "version", version)
	}
	m.connVersion = version
	m.retryAt = time.Time{}
	m.closeLocked()

	m.gen++
	gen := m.gen
	m.state = StateConnecting
	m.mu.Unlock()

	dialCtx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(m.ctx, cancel)
	conn, err := m.connect(dialCtx, gen, host, found)
	stop()
	cancel()

	m.mu.Lock()
	defer m.mu.Unlock()

	if gen != m.gen {
		if conn != nil {
			if closeErr := conn.Close(); closeErr != nil {
				m.logger.Debug("closing superseded MQTT connection", "error", closeErr)
			}
		}
		return ctx.Err()
	}

	if err != nil {
		delay := retryDelay(err)
		m.state = StateDisconnected
		m.retryAt = m.now().Add(delay)
		m.metrics.Gauge("mqtt.connected", 0)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		m.report(ctx, status.SeverityWarning, "MQTT connect failed", err)
		m.logger.Warn("MQTT connect failed", "host", host.Host, "port", host.Port, "retry_in", delay, "error", err)
		return nil
	}

	m.conn = conn
	m.state = StateConnected
	m.metrics.Gauge("mqtt.connected", 1)
	m.logger.Info("MQTT connected", "host", host.Host, "port", host.Port, "filter", m.cfg.TopicFilter)
	return nil
}

// connect dials and subscribes. A panic is converted to an error.
func (m *Manager) connect(ctx context.Context, gen uint64, host Host, found bool) (conn Conn, err error) {
	defer func() {
		if r := recover(); r != nil {
			if conn != nil {
				conn.Close() //nolint:errcheck // Best effort cleanup on error path
			}
			conn, err = nil, fmt.Errorf("panic during connect: %v", r)
		}
	}()

	if !found || host.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrNoHost, m.cfg.HostKey)
	}

	clientID := host.ClientID
	if clientID == "" {
		clientID = m.cfg.ClientID
	}
	conn, err = m.dial(ctx, mqttclient.Options{
		Host:           host.Host,
		Port:           host.Port,
		TLS:            host.TLS,
		ClientID:       clientID,
		Username:       host.Username,
		Password:       host.Password,
		QoS:            m.cfg.QoS,
		ConnectTimeout: m.cfg.ConnectTimeout,
		KeepAlive:      m.cfg.KeepAlive,
		StatusTopic:    m.cfg.StatusTopic,
	}, func(d Disconnect) { m.connectionLost(gen, d) })
	if err != nil {
		return nil, err
	}

	if err := conn.Subscribe(ctx, m.cfg.TopicFilter, m.cfg.QoS, m.Route); err != nil {
		conn.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, err
	}
	return conn, nil
}

// retryDelay maps a connect error to the cool-down before the next attempt.
func retryDelay(err error) time.Duration {
	if errors.Is(err, mqttclient.ErrConnectionRejected) || errors.Is(err, ErrNoHost) {
		return RetryAfterFailure
	}
	return RetryAfterError
}

// connectionLost handles an unsolicited disconnect of connection gen.
// Disconnects of connections already replaced are ignored.
func (m *Manager) connectionLost(gen uint64, d Disconnect) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if gen != m.gen || m.state == StateDisconnected {
		return
	}
	m.closeLocked()
	// A connect still in flight for gen must not install its connection.
	m.gen++
	m.retryAt = m.now().Add(RetryAfterDisconnect)
	m.metrics.Gauge("mqtt.connected", 0)
	m.logger.Warn("MQTT connection lost", "reason", d.String(), "retry_in", RetryAfterDisconnect)
	m.report(m.ctx, status.SeverityWarning, "MQTT connection lost: "+d.String(), d.Err)
}

// closeLocked tears down the current connection. m.mu must be held.
func (m *Manager) closeLocked() {
	if m.conn != nil {
		if err := m.conn.Close(); err != nil {
			m.logger.Debug("closing MQTT connection", "error", err)
		}
		m.conn = nil
	}
	m.state = StateDisconnected
}

// Publish sends payload to topic on the current connection.
//
// Returns:
//   - error: mqtt.ErrNotConnected when no connection is up, or the publish error
func (m *Manager) Publish(ctx context.Context, topic string, payload []byte, retained bool) error {
	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()

	if conn == nil {
		return mqttclient.ErrNotConnected
	}
	return conn.Publish(ctx, topic, payload, m.cfg.QoS, retained)
}

// Close disconnects and stops routing. Ticks after Close do nothing.
func (m *Manager) Close() error {
	m.cancel()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.gen++
	m.closeLocked()
	m.metrics.Gauge("mqtt.connected", 0)
	return nil
}

func (m *Manager) report(ctx context.Context, severity status.Severity, msg string, err error) {
	if m.reporter == nil {
		return
	}
	m.reporter.ReportItem(ctx, status.Item{
		Category: status.CategoryMQTT,
		Severity: severity,
		Key:      m.cfg.HostKey,
		Message:  msg,
		Err:      err,
	})
}
