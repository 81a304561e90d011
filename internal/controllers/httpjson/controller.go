package httpjson

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mekatrol/imperium-core/internal/device"
	"github.com/mekatrol/imperium-core/internal/point"
)

// Key is the controller key HTTP JSON devices are registered under.
const Key = "http-json"

const (
	defaultTimeout = 5 * time.Second

	// maxResponseSize caps device responses at 1MB.
	maxResponseSize = 1 << 20
)

// Config is the parsed instance configuration.
type Config struct {
	URL      string            `json:"url"`
	WriteURL string            `json:"writeUrl"`
	Timeout  string            `json:"timeout"`
	Headers  map[string]string `json:"headers"`
	Fields   map[string]string `json:"fields"`

	timeout time.Duration
}

// Controller reads and writes devices over HTTP.
type Controller struct {
	client *http.Client
}

// New creates a controller. A nil client uses a default http.Client; the
// per-device timeout applies to each request either way.
func New(client *http.Client) *Controller {
	if client == nil {
		client = &http.Client{}
	}
	return &Controller{client: client}
}

// ParseInstanceConfig parses and validates the JSON configuration.
func (c *Controller) ParseInstanceConfig(configJSON string) (any, error) {
	var cfg Config
	if err := json.Unmarshal([]byte(configJSON), &cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := validateURL(cfg.URL); err != nil {
		return nil, fmt.Errorf("%w: url: %w", ErrInvalidConfig, err)
	}
	if cfg.WriteURL == "" {
		cfg.WriteURL = cfg.URL
	} else if err := validateURL(cfg.WriteURL); err != nil {
		return nil, fmt.Errorf("%w: writeUrl: %w", ErrInvalidConfig, err)
	}

	cfg.timeout = defaultTimeout
	if cfg.Timeout != "" {
		d, err := time.ParseDuration(cfg.Timeout)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("%w: timeout %q", ErrInvalidConfig, cfg.Timeout)
		}
		cfg.timeout = d
	}
	return &cfg, nil
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("missing host")
	}
	return nil
}

func configOf(inst *device.Instance) (*Config, error) {
	cfg, ok := inst.Config.(*Config)
	if !ok || cfg == nil {
		return nil, fmt.Errorf("%w: device %q has %T", ErrInvalidConfig, inst.Key, inst.Config)
	}
	return cfg, nil
}

// Read fetches the device document and updates the device layer of every
// point found in it. Points missing from the document are reported
// together after the others have been applied.
func (c *Controller) Read(ctx context.Context, inst *device.Instance) error {
	cfg, err := configOf(inst)
	if err != nil {
		return err
	}

	body, err := c.do(ctx, cfg, http.MethodGet, cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("reading device %q: %w", inst.Key, err)
	}

	var errs []error
	for _, p := range inst.Points {
		path := p.Key()
		if mapped, ok := lookupFold(cfg.Fields, p.Key()); ok {
			path = mapped
		}

		raw, err := extract(body, path)
		if err != nil {
			errs = append(errs, fmt.Errorf("point %q: %w", p.Key(), err))
			continue
		}
		v, err := point.DecodeValue(p.Type(), raw)
		if err != nil {
			errs = append(errs, fmt.Errorf("point %q: %w", p.Key(), err))
			continue
		}
		if v == nil {
			continue
		}
		if _, err := p.SetValue(v); err != nil {
			errs = append(errs, fmt.Errorf("point %q: %w", p.Key(), err))
		}
	}
	return errors.Join(errs...)
}

// Write posts the control-resolved values of the writable points.
func (c *Controller) Write(ctx context.Context, inst *device.Instance) error {
	cfg, err := configOf(inst)
	if err != nil {
		return err
	}

	values := make(map[string]json.RawMessage)
	for _, p := range inst.Points {
		if p.ReadOnly() {
			continue
		}
		v := p.ControlResolvedValue()
		if v == nil {
			continue
		}
		raw, err := point.EncodeValue(v)
		if err != nil {
			return fmt.Errorf("point %q: %w", p.Key(), err)
		}
		values[p.Key()] = raw
	}
	if len(values) == 0 {
		return nil
	}

	payload, err := json.Marshal(values)
	if err != nil {
		return fmt.Errorf("encoding write for device %q: %w", inst.Key, err)
	}
	if _, err := c.do(ctx, cfg, http.MethodPost, cfg.WriteURL, payload); err != nil {
		return fmt.Errorf("writing device %q: %w", inst.Key, err)
	}
	return nil
}

func (c *Controller) do(ctx context.Context, cfg *Config, method, target string, payload []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.timeout)
	defer cancel()

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: %s", ErrUnexpectedStatus, resp.Status)
	}
	return data, nil
}

// extract walks a dot-separated path of object keys (case-insensitive).
func extract(doc []byte, path string) (json.RawMessage, error) {
	current := json.RawMessage(doc)
	for _, segment := range strings.Split(path, ".") {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(current, &obj); err != nil {
			return nil, fmt.Errorf("%w: %q (not an object at %q)", ErrFieldNotFound, path, segment)
		}
		next, ok := lookupFold(obj, segment)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrFieldNotFound, path)
		}
		current = next
	}
	return current, nil
}

func lookupFold[V any](m map[string]V, key string) (V, bool) {
	if v, ok := m[key]; ok {
		return v, true
	}
	for k, v := range m {
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	var zero V
	return zero, false
}
