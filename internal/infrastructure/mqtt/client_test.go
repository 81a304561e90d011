package mqtt

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"sync"
	"testing"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/eclipse/paho.mqtt.golang/packets"
)

// fakeMessage implements pahomqtt.Message for handler tests.
type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 0 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 0 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

var _ pahomqtt.Message = fakeMessage{}

type captureLogger struct {
	mu     sync.Mutex
	errors []string
	warns  []string
}

func (l *captureLogger) Error(msg string, _ ...any) {
	l.mu.Lock()
	l.errors = append(l.errors, msg)
	l.mu.Unlock()
}

func (l *captureLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	l.warns = append(l.warns, msg)
	l.mu.Unlock()
}

// ============================================================================
// Options
// ============================================================================

func TestBrokerURL(t *testing.T) {
	if got := (Options{Host: "broker", Port: 1883}).BrokerURL(); got != "tcp://broker:1883" {
		t.Errorf("BrokerURL() = %q", got)
	}
	if got := (Options{Host: "broker", Port: 8883, TLS: true}).BrokerURL(); got != "ssl://broker:8883" {
		t.Errorf("BrokerURL() TLS = %q", got)
	}
}

func TestBuildClientOptions_NoAutoReconnect(t *testing.T) {
	opts := buildClientOptions(Options{Host: "h", Port: 1, ClientID: "imperium", Username: "u", Password: "p"})

	if opts.AutoReconnect {
		t.Error("AutoReconnect must be disabled")
	}
	if opts.ConnectRetry {
		t.Error("ConnectRetry must be disabled")
	}
	if opts.ClientID != "imperium" || opts.Username != "u" {
		t.Errorf("credentials not applied: client=%q user=%q", opts.ClientID, opts.Username)
	}
	if opts.ConnectTimeout != defaultConnectTimeout {
		t.Errorf("ConnectTimeout = %v, want %v", opts.ConnectTimeout, defaultConnectTimeout)
	}
	if opts.WillEnabled {
		t.Error("will must be disabled without a status topic")
	}

	withStatus := buildClientOptions(Options{Host: "h", Port: 1, StatusTopic: "imperium/status"})
	if !withStatus.WillEnabled || withStatus.WillTopic != "imperium/status" || !withStatus.WillRetained {
		t.Error("status topic must configure a retained will")
	}
}

// ============================================================================
// Error classification
// ============================================================================

func TestClassifyConnectError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"bad credentials", packets.ErrorRefusedBadUsernameOrPassword, ErrConnectionRejected},
		{"not authorised wrapped", fmt.Errorf("%w : extra", packets.ErrorRefusedNotAuthorised), ErrConnectionRejected},
		{"id rejected", packets.ErrorRefusedIDRejected, ErrConnectionRejected},
		{"server unavailable", packets.ErrorRefusedServerUnavailable, ErrConnectionFailed},
		{"network", packets.ErrorNetworkError, ErrConnectionFailed},
		{"dial", errors.New("dial tcp: connection refused"), ErrConnectionFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifyConnectError(tt.err)
			if !errors.Is(got, tt.want) {
				t.Errorf("classifyConnectError(%v) = %v, want %v", tt.err, got, tt.want)
			}
			if !errors.Is(got, tt.err) {
				t.Errorf("cause not preserved in %v", got)
			}
		})
	}
}

func TestValidatePublishTopic(t *testing.T) {
	for _, topic := range []string{"", "a/+/b", "a/#"} {
		if err := validatePublishTopic(topic); !errors.Is(err, ErrInvalidTopic) {
			t.Errorf("validatePublishTopic(%q) = %v, want ErrInvalidTopic", topic, err)
		}
	}
	if err := validatePublishTopic("imperium/device/relay/set"); err != nil {
		t.Errorf("validatePublishTopic() unexpected error %v", err)
	}
}

// ============================================================================
// Client without a connection
// ============================================================================

func TestNilAndDisconnectedClient(t *testing.T) {
	var c *Client
	if c.IsConnected() {
		t.Error("nil client reports connected")
	}
	if err := c.Close(); err != nil {
		t.Errorf("Close() on nil = %v", err)
	}

	empty := &Client{}
	if err := empty.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() = %v, want ErrNotConnected", err)
	}
	if err := empty.Publish(context.Background(), "a/b", nil, 0, false); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Publish() = %v, want ErrNotConnected", err)
	}
	if err := empty.Subscribe(context.Background(), "#", 3, func(string, []byte) error { return nil }); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("Subscribe() = %v, want ErrInvalidQoS", err)
	}
}

func TestConnect_InvalidQoS(t *testing.T) {
	if _, err := Connect(context.Background(), Options{Host: "h", Port: 1, QoS: 3}, nil); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("Connect() = %v, want ErrInvalidQoS", err)
	}
}

func TestConnect_Unreachable(t *testing.T) {
	_, err := Connect(context.Background(), Options{
		Host:           "127.0.0.1",
		Port:           1,
		ClientID:       "imperium-test",
		ConnectTimeout: 2 * time.Second,
	}, nil)
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() = %v, want ErrConnectionFailed", err)
	}
}

func TestWrapHandler(t *testing.T) {
	log := &captureLogger{}
	c := &Client{}
	c.SetLogger(log)

	c.wrapHandler(func(string, []byte) error { panic("boom") })(nil, fakeMessage{topic: "a"})
	c.wrapHandler(func(string, []byte) error { return errors.New("bad") })(nil, fakeMessage{topic: "a"})

	var got string
	c.wrapHandler(func(topic string, payload []byte) error {
		got = topic + "=" + string(payload)
		return nil
	})(nil, fakeMessage{topic: "t", payload: []byte("1")})

	if len(log.errors) != 1 || len(log.warns) != 1 {
		t.Errorf("errors=%v warns=%v", log.errors, log.warns)
	}
	if got != "t=1" {
		t.Errorf("handler got %q", got)
	}
}

// ============================================================================
// Live broker (IMPERIUM_TEST_MQTT=host:port)
// ============================================================================

func TestLiveBroker_PublishSubscribe(t *testing.T) {
	addr := os.Getenv("IMPERIUM_TEST_MQTT")
	if addr == "" {
		t.Skip("IMPERIUM_TEST_MQTT not set")
	}
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatalf("IMPERIUM_TEST_MQTT must be host:port: %v", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("invalid port %q", portStr)
	}

	ctx := context.Background()
	c, err := Connect(ctx, Options{Host: host, Port: port, ClientID: "imperium-live-test", QoS: 1}, nil)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer c.Close() //nolint:errcheck // Test cleanup

	received := make(chan string, 1)
	if err := c.Subscribe(ctx, "imperium/test/#", 1, func(_ string, payload []byte) error {
		received <- string(payload)
		return nil
	}); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if err := c.Publish(ctx, "imperium/test/ping", []byte("pong"), 1, false); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case got := <-received:
		if got != "pong" {
			t.Errorf("payload = %q", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("message not received")
	}
}
