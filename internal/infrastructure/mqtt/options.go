package mqtt

import (
	"crypto/tls"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	defaultConnectTimeout    = 10 * time.Second
	defaultOperationTimeout  = 5 * time.Second
	defaultKeepAlive         = 60 * time.Second
	defaultDisconnectQuiesce = 250 // milliseconds

	maxQoS        = 2
	tlsMinVersion = tls.VersionTLS12
)

// Options describes one broker connection.
type Options struct {
	Host     string
	Port     int
	TLS      bool
	ClientID string
	Username string
	Password string

	// QoS is the default quality of service for subscriptions and publishes.
	QoS byte

	// ConnectTimeout bounds a single connect attempt. Defaults to 10s.
	ConnectTimeout time.Duration

	// KeepAlive is the PING interval used to detect dead connections.
	// Defaults to 60s.
	KeepAlive time.Duration

	// StatusTopic, when set, receives a retained "online" message on connect,
	// "offline" on Close, and is registered as the Last Will.
	StatusTopic string
}

// BrokerURL returns the tcp:// or ssl:// URL of the broker.
func (o Options) BrokerURL() string {
	scheme := "tcp"
	if o.TLS {
		scheme = "ssl"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, o.Host, o.Port)
}

// buildClientOptions creates paho options.
//
// Automatic reconnection is disabled: reconnect policy belongs to the
// caller, which is told about lost connections through the onLost callback.
func buildClientOptions(o Options) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(o.BrokerURL())
	opts.SetClientID(o.ClientID)

	if o.Username != "" {
		opts.SetUsername(o.Username)
		opts.SetPassword(o.Password)
	}

	opts.SetCleanSession(true)
	opts.SetAutoReconnect(false)
	opts.SetConnectRetry(false)

	connectTimeout := o.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = defaultConnectTimeout
	}
	opts.SetConnectTimeout(connectTimeout)

	keepAlive := o.KeepAlive
	if keepAlive <= 0 {
		keepAlive = defaultKeepAlive
	}
	opts.SetKeepAlive(keepAlive)

	if o.TLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tlsMinVersion})
	}

	if o.StatusTopic != "" {
		opts.SetWill(o.StatusTopic, statusPayload(o.ClientID, "offline", "unexpected_disconnect"), 1, true)
	}

	return opts
}

// statusPayload builds the JSON body published on the status topic.
func statusPayload(clientID, status, reason string) string {
	if reason == "" {
		return fmt.Sprintf(`{"status":%q,"client_id":%q,"timestamp":%q}`,
			status, clientID, time.Now().UTC().Format(time.RFC3339))
	}
	return fmt.Sprintf(`{"status":%q,"client_id":%q,"reason":%q,"timestamp":%q}`,
		status, clientID, reason, time.Now().UTC().Format(time.RFC3339))
}
