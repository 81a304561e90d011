package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mekatrol/imperium-core/internal/device"
	"github.com/mekatrol/imperium-core/internal/infrastructure/config"
	"github.com/mekatrol/imperium-core/internal/infrastructure/logging"
	"github.com/mekatrol/imperium-core/internal/point"
	"github.com/mekatrol/imperium-core/internal/scheduler"
	"github.com/mekatrol/imperium-core/internal/status"
	"github.com/mekatrol/imperium-core/internal/subscription"
	"github.com/mekatrol/imperium-core/internal/update"
)

// stubController records writes and succeeds.
type stubController struct {
	mu     sync.Mutex
	writes int
}

func (c *stubController) Read(context.Context, *device.Instance) error { return nil }

func (c *stubController) Write(context.Context, *device.Instance) error {
	c.mu.Lock()
	c.writes++
	c.mu.Unlock()
	return nil
}

func (c *stubController) ParseInstanceConfig(string) (any, error) { return nil, nil }

type failingCheck struct{ err error }

func (f failingCheck) HealthCheck(context.Context) error { return f.err }

type fakeStatus struct {
	records []status.Record
	limit   int
}

func (f *fakeStatus) Recent(_ context.Context, limit int) ([]status.Record, error) {
	f.limit = limit
	return f.records, nil
}

type fixture struct {
	srv      *Server
	registry *device.Registry
	hub      *subscription.Hub
	ctrl     *stubController
}

func newFixture(t *testing.T, mutate func(*Deps)) *fixture {
	t.Helper()

	registry := device.NewRegistry()
	ctrl := &stubController{}
	if err := registry.AddController("stub", ctrl); err != nil {
		t.Fatalf("AddController: %v", err)
	}
	if _, err := device.AddDeviceInstance("device.alfrescolight", "stub", device.KindPhysical, "",
		[]device.PointDefinition{
			{Key: "Relay", NativeType: "int"},
			{Key: "Power", NativeType: "bool", ReadOnly: true},
		}, registry); err != nil {
		t.Fatalf("AddDeviceInstance: %v", err)
	}
	away, err := point.New("away", point.TypeBoolean, point.Options{})
	if err != nil {
		t.Fatalf("point.New: %v", err)
	}
	if err := registry.AddVirtualPoint(away); err != nil {
		t.Fatalf("AddVirtualPoint: %v", err)
	}

	log := logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")
	hub := subscription.NewHub(subscription.Config{}, log)
	registry.AddListener(hub.HandleChange)
	t.Cleanup(hub.Close)

	deps := Deps{
		Config: config.APIConfig{
			Host:     "127.0.0.1",
			Port:     0,
			Timeouts: config.APITimeoutConfig{Read: 5, Write: 5, Idle: 5},
		},
		Logger:   log,
		Registry: registry,
		Updates:  update.NewService(registry),
		Hub:      hub,
		Version:  "test",
	}
	if mutate != nil {
		mutate(&deps)
	}

	srv, err := New(deps)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return &fixture{srv: srv, registry: registry, hub: hub, ctrl: ctrl}
}

func (f *fixture) do(t *testing.T, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	w := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(w, req)

	var resp map[string]any
	if w.Body.Len() > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("unmarshal %q: %v", w.Body.String(), err)
		}
	}
	return w, resp
}

// ─── Construction ──────────────────────────────────────────────────

func TestNew_RequiresDeps(t *testing.T) {
	f := newFixture(t, nil)
	base := Deps{
		Logger:   f.srv.logger,
		Registry: f.registry,
		Updates:  f.srv.updates,
		Hub:      f.hub,
	}

	for name, mutate := range map[string]func(*Deps){
		"logger":   func(d *Deps) { d.Logger = nil },
		"registry": func(d *Deps) { d.Registry = nil },
		"updates":  func(d *Deps) { d.Updates = nil },
		"hub":      func(d *Deps) { d.Hub = nil },
	} {
		d := base
		mutate(&d)
		if _, err := New(d); err == nil {
			t.Errorf("New() without %s: expected error", name)
		}
	}
}

// ─── Health Endpoint Tests ─────────────────────────────────────────

func TestHealth(t *testing.T) {
	loop := scheduler.New(scheduler.DefaultConfig("device_polling"), func(context.Context, *scheduler.Scope) error { return nil })
	f := newFixture(t, func(d *Deps) { d.Loops = []*scheduler.Loop{loop} })

	w, resp := f.do(t, http.MethodGet, "/api/v1/health", nil)

	if w.Code != http.StatusOK {
		t.Errorf("health status = %d, want %d", w.Code, http.StatusOK)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
	if resp["status"] != "ok" {
		t.Errorf("status = %v, want ok", resp["status"])
	}
	if resp["version"] != "test" {
		t.Errorf("version = %v, want test", resp["version"])
	}
	loops, ok := resp["loops"].([]any)
	if !ok || len(loops) != 1 {
		t.Fatalf("loops = %v", resp["loops"])
	}
	if name := loops[0].(map[string]any)["name"]; name != "device_polling" {
		t.Errorf("loop name = %v", name)
	}
}

func TestHealth_FailedCheckIsDegraded(t *testing.T) {
	f := newFixture(t, func(d *Deps) {
		d.Checks = map[string]HealthChecker{"database": failingCheck{err: errors.New("disk I/O error")}}
	})

	w, resp := f.do(t, http.MethodGet, "/api/v1/health", nil)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("health status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
	if resp["status"] != "degraded" {
		t.Errorf("status = %v, want degraded", resp["status"])
	}
	checks := resp["checks"].(map[string]any)
	if checks["database"] != "disk I/O error" {
		t.Errorf("checks = %v", checks)
	}
}

// ─── Middleware Tests ──────────────────────────────────────────────

func TestRequestID_Generated(t *testing.T) {
	f := newFixture(t, nil)
	w, _ := f.do(t, http.MethodGet, "/api/v1/health", nil)

	if w.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header to be set")
	}
}

func TestRequestID_PreservesClient(t *testing.T) {
	f := newFixture(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "client-123")
	w := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(w, req)

	if got := w.Header().Get("X-Request-ID"); got != "client-123" {
		t.Errorf("X-Request-ID = %q, want %q", got, "client-123")
	}
}

func TestCORS_Preflight(t *testing.T) {
	f := newFixture(t, nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/points", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("ACAO = %q, want %q", got, "http://localhost:3000")
	}
}

func TestCORS_DisallowedOrigin(t *testing.T) {
	f := newFixture(t, func(d *Deps) { d.Config.CORS.AllowedOrigins = []string{"http://panel.local"} })

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("Origin", "http://evil.example")
	w := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(w, req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("ACAO = %q, want empty", got)
	}
}

func TestNotFound(t *testing.T) {
	f := newFixture(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/nonexistent", nil)
	w := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("unknown route status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

// ─── Point Tests ───────────────────────────────────────────────────

func TestListPoints(t *testing.T) {
	f := newFixture(t, nil)
	w, resp := f.do(t, http.MethodGet, "/api/v1/points", nil)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if resp["count"] != float64(3) {
		t.Errorf("count = %v, want 3", resp["count"])
	}
	first := resp["points"].([]any)[0].(map[string]any)
	if first["key"] != "Relay" || first["pointType"] != "Integer" || first["deviceKey"] != "device.alfrescolight" {
		t.Errorf("first point = %v", first)
	}
}

func TestUpdatePoint_Control(t *testing.T) {
	f := newFixture(t, nil)

	w, resp := f.do(t, http.MethodPost, "/api/v1/points/update", map[string]any{
		"deviceKey":         "device.alfrescolight",
		"pointKey":          "Relay",
		"pointUpdateAction": "Control",
		"value":             "1",
	})

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if resp["value"] != float64(1) {
		t.Errorf("value = %v, want 1", resp["value"])
	}
	if resp["pointState"] != "Control" {
		t.Errorf("pointState = %v, want Control", resp["pointState"])
	}

	f.ctrl.mu.Lock()
	writes := f.ctrl.writes
	f.ctrl.mu.Unlock()
	if writes != 1 {
		t.Errorf("controller writes = %d, want 1", writes)
	}
}

func TestUpdatePoint_VirtualPoint(t *testing.T) {
	f := newFixture(t, nil)

	w, resp := f.do(t, http.MethodPost, "/api/v1/points/update", map[string]any{
		"deviceKey":         "",
		"pointKey":          "away",
		"pointUpdateAction": "Toggle",
	})

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if resp["value"] != true {
		t.Errorf("value = %v, want true", resp["value"])
	}
}

func TestUpdatePoint_Errors(t *testing.T) {
	tests := []struct {
		name string
		body any
		want int
	}{
		{
			name: "invalid JSON",
			body: "{",
			want: http.StatusBadRequest,
		},
		{
			name: "unknown action",
			body: map[string]any{"deviceKey": "device.alfrescolight", "pointKey": "Relay", "pointUpdateAction": "Explode"},
			want: http.StatusBadRequest,
		},
		{
			name: "unknown point",
			body: map[string]any{"deviceKey": "device.alfrescolight", "pointKey": "Dimmer", "pointUpdateAction": "Control", "value": "1"},
			want: http.StatusNotFound,
		},
		{
			name: "unknown device",
			body: map[string]any{"deviceKey": "device.garage", "pointKey": "Relay", "pointUpdateAction": "Control", "value": "1"},
			want: http.StatusNotFound,
		},
		{
			name: "incompatible value",
			body: map[string]any{"deviceKey": "device.alfrescolight", "pointKey": "Relay", "pointUpdateAction": "Control", "value": "bright"},
			want: http.StatusBadRequest,
		},
		{
			name: "read-only point",
			body: map[string]any{"deviceKey": "device.alfrescolight", "pointKey": "Power", "pointUpdateAction": "Control", "value": "true"},
			want: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			w, resp := f.do(t, http.MethodPost, "/api/v1/points/update", tt.body)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", w.Code, tt.want, w.Body.String())
			}
			if resp["message"] == nil {
				t.Error("expected error message")
			}
		})
	}
}

func TestUpdatePoint_BodyTooLarge(t *testing.T) {
	f := newFixture(t, nil)
	body := `{"pointKey":"` + strings.Repeat("x", maxRequestBodySize) + `"}`

	w, _ := f.do(t, http.MethodPost, "/api/v1/points/update", body)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want %d", w.Code, http.StatusRequestEntityTooLarge)
	}
}

// ─── Device Tests ──────────────────────────────────────────────────

func TestListDevices(t *testing.T) {
	f := newFixture(t, nil)
	w, resp := f.do(t, http.MethodGet, "/api/v1/devices", nil)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	devices := resp["devices"].([]any)
	if len(devices) != 1 {
		t.Fatalf("devices = %v", devices)
	}
	d := devices[0].(map[string]any)
	if d["key"] != "device.alfrescolight" || d["controller"] != "stub" || d["kind"] != "physical" || d["enabled"] != true {
		t.Errorf("device = %v", d)
	}
	if _, ok := d["points"]; ok {
		t.Error("list should not include points")
	}
}

func TestGetDevice(t *testing.T) {
	f := newFixture(t, nil)

	w, resp := f.do(t, http.MethodGet, "/api/v1/devices/DEVICE.ALFRESCOLIGHT", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if points := resp["points"].([]any); len(points) != 2 {
		t.Errorf("points = %v", points)
	}

	w, _ = f.do(t, http.MethodGet, "/api/v1/devices/device.garage", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("missing device status = %d, want 404", w.Code)
	}
}

func TestGetDevicePoints(t *testing.T) {
	f := newFixture(t, nil)

	w, resp := f.do(t, http.MethodGet, "/api/v1/devices/device.alfrescolight/points", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if resp["count"] != float64(2) {
		t.Errorf("count = %v, want 2", resp["count"])
	}

	w, _ = f.do(t, http.MethodGet, "/api/v1/devices/device.garage/points", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("missing device status = %d, want 404", w.Code)
	}
}

func TestPatchDevice(t *testing.T) {
	f := newFixture(t, nil)

	w, resp := f.do(t, http.MethodPatch, "/api/v1/devices/device.alfrescolight", map[string]any{"enabled": false})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if resp["enabled"] != false {
		t.Errorf("enabled = %v, want false", resp["enabled"])
	}
	if n := len(f.registry.GetEnabledDeviceInstances(false)); n != 0 {
		t.Errorf("enabled devices = %d, want 0", n)
	}

	w, _ = f.do(t, http.MethodPatch, "/api/v1/devices/device.alfrescolight", map[string]any{})
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing enabled status = %d, want 400", w.Code)
	}

	w, _ = f.do(t, http.MethodPatch, "/api/v1/devices/device.garage", map[string]any{"enabled": true})
	if w.Code != http.StatusNotFound {
		t.Errorf("missing device status = %d, want 404", w.Code)
	}
}

// ─── Status Tests ──────────────────────────────────────────────────

func TestListStatus(t *testing.T) {
	src := &fakeStatus{records: []status.Record{{
		CorrelationID: "abc",
		Category:      status.CategoryMQTT,
		Severity:      status.SeverityWarning,
		Message:       "MQTT connect failed",
		CreatedAt:     time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}}}
	f := newFixture(t, func(d *Deps) { d.Status = src })

	w, resp := f.do(t, http.MethodGet, "/api/v1/status?limit=1000", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if src.limit != maxStatusLimit {
		t.Errorf("limit passed = %d, want %d", src.limit, maxStatusLimit)
	}
	reports := resp["reports"].([]any)
	if len(reports) != 1 || reports[0].(map[string]any)["correlationId"] != "abc" {
		t.Errorf("reports = %v", reports)
	}

	w, _ = f.do(t, http.MethodGet, "/api/v1/status?limit=zero", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("invalid limit status = %d, want 400", w.Code)
	}
}

func TestListStatus_NoSource(t *testing.T) {
	f := newFixture(t, nil)
	w, resp := f.do(t, http.MethodGet, "/api/v1/status", nil)

	if w.Code != http.StatusOK || resp["count"] != float64(0) {
		t.Errorf("status = %d, resp = %v", w.Code, resp)
	}
}

// ─── Server Lifecycle and WebSocket ────────────────────────────────

func TestServer_StartAndClose(t *testing.T) {
	f := newFixture(t, nil)

	if err := f.srv.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	addr := f.srv.Addr()
	if addr == "" {
		t.Fatal("Addr() empty after Start()")
	}

	resp, err := http.Get("http://" + addr + "/api/v1/health")
	if err != nil {
		t.Fatalf("health check failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health check status = %d, want 200", resp.StatusCode)
	}

	if err := f.srv.Close(); err != nil {
		t.Errorf("Close() error: %v", err)
	}
	if _, err := http.Get("http://" + addr + "/api/v1/health"); err == nil {
		t.Error("server still responding after Close()")
	}
}

func TestServer_CloseBeforeStart(t *testing.T) {
	f := newFixture(t, nil)
	if err := f.srv.Close(); err != nil {
		t.Errorf("Close() error: %v", err)
	}
}

func TestWebSocket_UpdateBroadcast(t *testing.T) {
	f := newFixture(t, nil)
	ts := httptest.NewServer(f.srv.Handler())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(map[string]any{"subscriptionType": "Change", "entityType": "Device", "entityKey": "device.alfrescolight"}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := conn.SetReadDeadline(time.Now().Add(5 * time.Second)); err != nil {
		t.Fatalf("deadline: %v", err)
	}
	var ack map[string]any
	if err := conn.ReadJSON(&ack); err != nil || ack["eventType"] != subscription.ResponseSubscribed {
		t.Fatalf("ack = %v, err = %v", ack, err)
	}

	body := `{"deviceKey":"device.alfrescolight","pointKey":"Relay","pointUpdateAction":"Control","value":"1"}`
	resp, err := http.Post(ts.URL+"/api/v1/points/update", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	resp.Body.Close()

	// The device also reports online after the write-through; skip status events.
	for {
		var ev map[string]any
		if err := conn.ReadJSON(&ev); err != nil {
			t.Fatalf("read event: %v", err)
		}
		if ev["eventType"] != subscription.TypeChange {
			continue
		}
		if ev["pointKey"] != "Relay" || ev["value"] != float64(1) {
			t.Errorf("event = %v", ev)
		}
		return
	}
}
