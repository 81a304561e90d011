package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for Imperium.
// Configuration is loaded from YAML or TOML and can be overridden by environment variables.
type Config struct {
	Server    ServerConfig    `yaml:"server" toml:"server"`
	API       APIConfig       `yaml:"api" toml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket" toml:"websocket"`
	MQTT      MQTTConfig      `yaml:"mqtt" toml:"mqtt"`
	Scheduler SchedulerConfig `yaml:"scheduler" toml:"scheduler"`
	Database  DatabaseConfig  `yaml:"database" toml:"database"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb" toml:"influxdb"`
	Metrics   MetricsConfig   `yaml:"metrics" toml:"metrics"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging"`
	Devices   []DeviceConfig  `yaml:"devices" toml:"devices"`
}

// ServerConfig contains engine-wide settings.
type ServerConfig struct {
	Name string `yaml:"name" toml:"name"`

	// ReadOnly suppresses all device writes. Point updates still change
	// in-memory state.
	ReadOnly bool `yaml:"read_only" toml:"read_only"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host" toml:"host"`
	Port     int              `yaml:"port" toml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts" toml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors" toml:"cors"`
}

// APITimeoutConfig contains HTTP timeout settings, in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read" toml:"read"`
	Write int `yaml:"write" toml:"write"`
	Idle  int `yaml:"idle" toml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins" toml:"allowed_origins"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	MaxMessageSize int `yaml:"max_message_size" toml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval" toml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout" toml:"pong_timeout"`
}

// MQTTConfig contains MQTT bridge settings.
type MQTTConfig struct {
	// Hosts holds broker settings keyed by name. The bridge uses "default"
	// unless HostKey names another entry.
	Hosts       map[string]MQTTHostConfig `yaml:"hosts" toml:"hosts"`
	HostKey     string                    `yaml:"host_key" toml:"host_key"`
	ClientID    string                    `yaml:"client_id" toml:"client_id"`
	QoS         int                       `yaml:"qos" toml:"qos"`
	TopicFilter string                    `yaml:"topic_filter" toml:"topic_filter"`
	StatusTopic string                    `yaml:"status_topic" toml:"status_topic"`
}

// MQTTHostConfig contains one broker's connection details.
type MQTTHostConfig struct {
	Host     string `yaml:"host" toml:"host"`
	Port     int    `yaml:"port" toml:"port"`
	TLS      bool   `yaml:"tls" toml:"tls"`
	ClientID string `yaml:"client_id" toml:"client_id"`
	Username string `yaml:"username" toml:"username"`
	Password string `yaml:"password" toml:"password"`
}

// SchedulerConfig holds the back-off settings of each background loop.
type SchedulerConfig struct {
	DevicePolling LoopConfig `yaml:"device_polling" toml:"device_polling"`
	MQTTManager   LoopConfig `yaml:"mqtt_manager" toml:"mqtt_manager"`
	Housekeeping  LoopConfig `yaml:"housekeeping" toml:"housekeeping"`

	// PollConcurrency bounds the number of devices read at once.
	PollConcurrency int `yaml:"poll_concurrency" toml:"poll_concurrency"`
}

// LoopConfig holds one loop's back-off settings.
type LoopConfig struct {
	MaxConsecutiveErrors int           `yaml:"max_consecutive_errors" toml:"max_consecutive_errors"`
	ErrorDelay           time.Duration `yaml:"error_delay" toml:"error_delay"`
	SuccessDelay         time.Duration `yaml:"success_delay" toml:"success_delay"`
}

// DatabaseConfig contains SQLite database settings. An empty path disables
// persistence of status reports.
type DatabaseConfig struct {
	Path        string `yaml:"path" toml:"path"`
	WALMode     bool   `yaml:"wal_mode" toml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout" toml:"busy_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled" toml:"enabled"`
	URL           string `yaml:"url" toml:"url"`
	Token         string `yaml:"token" toml:"token"`
	Org           string `yaml:"org" toml:"org"`
	Bucket        string `yaml:"bucket" toml:"bucket"`
	BatchSize     int    `yaml:"batch_size" toml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval" toml:"flush_interval"`
}

// MetricsConfig contains DogStatsD settings.
type MetricsConfig struct {
	Enabled   bool     `yaml:"enabled" toml:"enabled"`
	Address   string   `yaml:"address" toml:"address"`
	Namespace string   `yaml:"namespace" toml:"namespace"`
	Tags      []string `yaml:"tags" toml:"tags"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
	Output string `yaml:"output" toml:"output"`
}

// DeviceConfig defines one device instance and its points.
type DeviceConfig struct {
	Key        string `yaml:"key" toml:"key"`
	Controller string `yaml:"controller" toml:"controller"`
	Kind       string `yaml:"kind" toml:"kind"`

	// Enabled defaults to true when omitted.
	Enabled *bool `yaml:"enabled" toml:"enabled"`

	OfflineTimeout time.Duration `yaml:"offline_timeout" toml:"offline_timeout"`

	// Config is re-encoded as JSON and handed to the controller.
	Config map[string]any `yaml:"config" toml:"config"`

	Points []PointConfig `yaml:"points" toml:"points"`
}

// PointConfig defines one device point.
type PointConfig struct {
	Key          string `yaml:"key" toml:"key"`
	FriendlyName string `yaml:"friendly_name" toml:"friendly_name"`
	NativeType   string `yaml:"native_type" toml:"native_type"`
	ReadOnly     bool   `yaml:"read_only" toml:"read_only"`
	InitialValue any    `yaml:"initial_value" toml:"initial_value"`
}

// IsEnabled reports whether the device starts enabled.
func (d DeviceConfig) IsEnabled() bool {
	return d.Enabled == nil || *d.Enabled
}

// ConfigJSON returns the controller configuration as a JSON document, or ""
// when none is set.
func (d DeviceConfig) ConfigJSON() (string, error) {
	if len(d.Config) == 0 {
		return "", nil
	}
	data, err := json.Marshal(normaliseMaps(d.Config))
	if err != nil {
		return "", fmt.Errorf("device %q config: %w", d.Key, err)
	}
	return string(data), nil
}

// normaliseMaps converts map[any]any values, which encoding/json rejects,
// to map[string]any.
func normaliseMaps(v any) any {
	switch x := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, val := range x {
			out[k] = normaliseMaps(val)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(x))
		for k, val := range x {
			out[fmt.Sprint(k)] = normaliseMaps(val)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, val := range x {
			out[i] = normaliseMaps(val)
		}
		return out
	}
	return v
}

// Load reads configuration from a YAML or TOML file and applies environment
// variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. File values (override defaults); files ending in .toml are TOML, all others YAML
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: IMPERIUM_SECTION_KEY
// For example: IMPERIUM_DATABASE_PATH, IMPERIUM_API_PORT
//
// Parameters:
//   - path: Path to the configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func defaultLoop() LoopConfig {
	return LoopConfig{
		MaxConsecutiveErrors: 10,
		ErrorDelay:           10 * time.Second,
		SuccessDelay:         500 * time.Millisecond,
	}
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	housekeeping := defaultLoop()
	housekeeping.SuccessDelay = 5 * time.Second

	return &Config{
		Server: ServerConfig{
			Name: "imperium",
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		MQTT: MQTTConfig{
			HostKey:     "default",
			ClientID:    "imperium",
			QoS:         1,
			TopicFilter: "#",
		},
		Scheduler: SchedulerConfig{
			DevicePolling:   defaultLoop(),
			MQTTManager:     defaultLoop(),
			Housekeeping:    housekeeping,
			PollConcurrency: 4,
		},
		Database: DatabaseConfig{
			Path:        "./data/imperium.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Metrics: MetricsConfig{
			Address:   "127.0.0.1:8125",
			Namespace: "imperium.",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: IMPERIUM_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("IMPERIUM_SERVER_READ_ONLY"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Server.ReadOnly = b
		}
	}

	if v := os.Getenv("IMPERIUM_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT overrides apply to the selected host entry.
	mqttOverrides := map[string]func(*MQTTHostConfig, string){
		"IMPERIUM_MQTT_HOST":     func(h *MQTTHostConfig, v string) { h.Host = v },
		"IMPERIUM_MQTT_USERNAME": func(h *MQTTHostConfig, v string) { h.Username = v },
		"IMPERIUM_MQTT_PASSWORD": func(h *MQTTHostConfig, v string) { h.Password = v },
		"IMPERIUM_MQTT_PORT": func(h *MQTTHostConfig, v string) {
			if port, err := strconv.Atoi(v); err == nil {
				h.Port = port
			}
		},
	}
	for name, apply := range mqttOverrides {
		v := os.Getenv(name)
		if v == "" {
			continue
		}
		if cfg.MQTT.Hosts == nil {
			cfg.MQTT.Hosts = make(map[string]MQTTHostConfig)
		}
		key := strings.ToLower(cfg.MQTT.HostKey)
		h := cfg.MQTT.Hosts[key]
		apply(&h, v)
		cfg.MQTT.Hosts[key] = h
	}

	if v := os.Getenv("IMPERIUM_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("IMPERIUM_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}

	if v := os.Getenv("IMPERIUM_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	if v := os.Getenv("IMPERIUM_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	for key, h := range c.MQTT.Hosts {
		if h.Port < 0 || h.Port > 65535 {
			errs = append(errs, fmt.Sprintf("mqtt.hosts.%s.port must be between 0 and 65535", key))
		}
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	for name, loop := range map[string]LoopConfig{
		"device_polling": c.Scheduler.DevicePolling,
		"mqtt_manager":   c.Scheduler.MQTTManager,
		"housekeeping":   c.Scheduler.Housekeeping,
	} {
		if loop.MaxConsecutiveErrors < 1 {
			errs = append(errs, fmt.Sprintf("scheduler.%s.max_consecutive_errors must be at least 1", name))
		}
		if loop.ErrorDelay < 0 || loop.SuccessDelay < 0 {
			errs = append(errs, fmt.Sprintf("scheduler.%s delays must not be negative", name))
		}
	}

	if c.InfluxDB.Enabled && (c.InfluxDB.URL == "" || c.InfluxDB.Bucket == "") {
		errs = append(errs, "influxdb.url and influxdb.bucket are required when influxdb is enabled")
	}

	seen := make(map[string]bool, len(c.Devices))
	for i, d := range c.Devices {
		key := strings.ToLower(strings.TrimSpace(d.Key))
		switch {
		case key == "":
			errs = append(errs, fmt.Sprintf("devices[%d].key is required", i))
		case seen[key]:
			errs = append(errs, fmt.Sprintf("devices[%d].key %q is duplicated", i, d.Key))
		}
		seen[key] = true
		if strings.TrimSpace(d.Controller) == "" {
			errs = append(errs, fmt.Sprintf("devices[%d].controller is required", i))
		}
		for j, p := range d.Points {
			if strings.TrimSpace(p.Key) == "" {
				errs = append(errs, fmt.Sprintf("devices[%d].points[%d].key is required", i, j))
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
