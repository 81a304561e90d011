package influxdb

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/mekatrol/imperium-core/internal/device"
	"github.com/mekatrol/imperium-core/internal/infrastructure/config"
	"github.com/mekatrol/imperium-core/internal/point"
)

// fakeInflux answers /ping and records line protocol sent to /api/v2/write.
type fakeInflux struct {
	mu      sync.Mutex
	lines   []string
	healthy bool
}

func (f *fakeInflux) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/ping":
		if f.healthy {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	case "/api/v2/write":
		body, _ := io.ReadAll(r.Body) //nolint:errcheck // Test server
		f.mu.Lock()
		for _, line := range strings.Split(strings.TrimSpace(string(body)), "\n") {
			if line != "" {
				f.lines = append(f.lines, line)
			}
		}
		f.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (f *fakeInflux) received() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.lines...)
}

func startInflux(t *testing.T) (*fakeInflux, config.InfluxDBConfig) {
	t.Helper()
	f := &fakeInflux{healthy: true}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return f, config.InfluxDBConfig{
		Enabled:       true,
		URL:           srv.URL,
		Token:         "test-token",
		Org:           "imperium",
		Bucket:        "points",
		BatchSize:     1,
		FlushInterval: 1,
	}
}

// =============================================================================
// Connection Tests
// =============================================================================

func TestConnect(t *testing.T) {
	_, cfg := startInflux(t)

	client, err := Connect(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	if !client.IsConnected() {
		t.Error("IsConnected() = false after Connect()")
	}
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}

func TestConnect_Disabled(t *testing.T) {
	_, cfg := startInflux(t)
	cfg.Enabled = false

	_, err := Connect(context.Background(), cfg)
	if !errors.Is(err, ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnect_Unhealthy(t *testing.T) {
	f, cfg := startInflux(t)
	f.healthy = false

	_, err := Connect(context.Background(), cfg)
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestConnect_Unreachable(t *testing.T) {
	_, cfg := startInflux(t)
	cfg.URL = "http://127.0.0.1:1"

	_, err := Connect(context.Background(), cfg)
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestClose(t *testing.T) {
	_, cfg := startInflux(t)
	client, err := Connect(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	if err := client.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after Close()")
	}
	if err := client.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() after Close() = %v, want ErrNotConnected", err)
	}

	// Second close, flush and write after close are no-ops.
	client.Flush()
	client.WritePoint(write.NewPoint("x", nil, map[string]any{"v": 1}, time.Now()))
	if err := client.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestClose_Nil(t *testing.T) {
	var client *Client
	if err := client.Close(); err != nil {
		t.Errorf("Close() on nil = %v", err)
	}
}

// =============================================================================
// Recorder Tests
// =============================================================================

type capturedPoints struct {
	points []*write.Point
}

func (c *capturedPoints) WritePoint(p *write.Point) {
	c.points = append(c.points, p)
}

func tagsOf(p *write.Point) map[string]string {
	out := make(map[string]string)
	for _, tag := range p.TagList() {
		out[tag.Key] = tag.Value
	}
	return out
}

func fieldsOf(p *write.Point) map[string]any {
	out := make(map[string]any)
	for _, f := range p.FieldList() {
		out[f.Key] = f.Value
	}
	return out
}

func TestRecorder_PointChanges(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		value point.Value
		want  any
	}{
		{"integer", point.Integer(1), int64(1)},
		{"double", point.DoubleFloat(21.5), 21.5},
		{"boolean", point.Boolean(true), true},
		{"string", point.String("auto"), "auto"},
		{"timespan", point.TimeSpan(90 * time.Second), point.TimeSpan(90 * time.Second).String()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := &capturedPoints{}
			NewRecorder(sink).HandleChange(device.Change{
				Kind:      device.PointChanged,
				DeviceKey: "device.alfrescolight",
				PointKey:  "Relay",
				Value:     tt.value,
				Time:      ts,
			})

			if len(sink.points) != 1 {
				t.Fatalf("got %d points, want 1", len(sink.points))
			}
			p := sink.points[0]
			if p.Name() != MeasurementPointValue {
				t.Errorf("Name() = %q", p.Name())
			}
			tags := tagsOf(p)
			if tags["device"] != "device.alfrescolight" || tags["point"] != "Relay" || tags["type"] != tt.value.Type().String() {
				t.Errorf("tags = %v", tags)
			}
			if got := fieldsOf(p)["value"]; got != tt.want {
				t.Errorf("value field = %v (%T), want %v (%T)", got, got, tt.want, tt.want)
			}
			if !p.Time().Equal(ts) {
				t.Errorf("Time() = %v, want %v", p.Time(), ts)
			}
		})
	}
}

func TestRecorder_SkipsClearedAndOmitsEmptyDevice(t *testing.T) {
	sink := &capturedPoints{}
	r := NewRecorder(sink)

	r.HandleChange(device.Change{Kind: device.PointChanged, DeviceKey: "d", PointKey: "p", Value: nil})
	if len(sink.points) != 0 {
		t.Fatalf("cleared value recorded: %d points", len(sink.points))
	}

	r.HandleChange(device.Change{Kind: device.PointChanged, PointKey: "away", Value: point.Boolean(false)})
	if len(sink.points) != 1 {
		t.Fatalf("got %d points, want 1", len(sink.points))
	}
	if _, ok := tagsOf(sink.points[0])["device"]; ok {
		t.Error("virtual point carries a device tag")
	}
	if sink.points[0].Time().IsZero() {
		t.Error("missing timestamp defaulted to zero")
	}
}

func TestRecorder_DeviceStatus(t *testing.T) {
	sink := &capturedPoints{}
	NewRecorder(sink).HandleChange(device.Change{Kind: device.DeviceStatusChanged, DeviceKey: "device.pump", Online: false})

	if len(sink.points) != 1 {
		t.Fatalf("got %d points, want 1", len(sink.points))
	}
	p := sink.points[0]
	if p.Name() != MeasurementDeviceStatus {
		t.Errorf("Name() = %q", p.Name())
	}
	if got := fieldsOf(p)["online"]; got != false {
		t.Errorf("online = %v", got)
	}
}

func TestRecorder_WritesThroughClient(t *testing.T) {
	f, cfg := startInflux(t)
	client, err := Connect(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	NewRecorder(client).HandleChange(device.Change{
		Kind:      device.PointChanged,
		DeviceKey: "device.alfrescolight",
		PointKey:  "Relay",
		Value:     point.Integer(1),
	})
	client.Flush()

	deadline := time.Now().Add(5 * time.Second)
	for {
		lines := f.received()
		if len(lines) > 0 {
			want := "point_value,device=device.alfrescolight,point=Relay,type=Integer value=1i"
			if !strings.HasPrefix(lines[0], want) {
				t.Errorf("line = %q, want prefix %q", lines[0], want)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("no write received")
		}
		time.Sleep(20 * time.Millisecond)
	}
}
