package device

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mekatrol/imperium-core/internal/point"
)

// stubController is a Controller that records calls.
type stubController struct {
	mu       sync.Mutex
	reads    int
	writes   int
	parseErr error
}

func (c *stubController) Read(context.Context, *Instance) error {
	c.mu.Lock()
	c.reads++
	c.mu.Unlock()
	return nil
}

func (c *stubController) Write(context.Context, *Instance) error {
	c.mu.Lock()
	c.writes++
	c.mu.Unlock()
	return nil
}

func (c *stubController) ParseInstanceConfig(configJSON string) (any, error) {
	if c.parseErr != nil {
		return nil, c.parseErr
	}
	return configJSON, nil
}

func mustPoint(t *testing.T, deviceKey, key string, typ point.Type) *point.Point {
	t.Helper()
	p, err := point.New(key, typ, point.Options{DeviceKey: deviceKey})
	require.NoError(t, err)
	return p
}

func newInstance(t *testing.T, key string, pointKeys ...string) *Instance {
	t.Helper()
	inst := &Instance{Key: key, ControllerKey: "stub", Enabled: true}
	for _, pk := range pointKeys {
		inst.Points = append(inst.Points, mustPoint(t, key, pk, point.TypeInteger))
	}
	return inst
}

// ============================================================================
// Controllers
// ============================================================================

func TestAddController(t *testing.T) {
	r := NewRegistry()

	require.NoError(t, r.AddController("Stub", &stubController{}))
	assert.ErrorIs(t, r.AddController("stub", &stubController{}), ErrDuplicateController)
	assert.ErrorIs(t, r.AddController("  ", &stubController{}), ErrInvalidKey)

	c, err := r.GetController("STUB")
	require.NoError(t, err)
	assert.NotNil(t, c)

	_, err = r.GetController("missing")
	assert.ErrorIs(t, err, ErrControllerNotFound)
}

// ============================================================================
// Devices
// ============================================================================

func TestAddDeviceAndPoints_DuplicateKeyKeepsFirst(t *testing.T) {
	r := NewRegistry()

	first := newInstance(t, "device.alfrescolight", "Relay")
	require.NoError(t, r.AddDeviceAndPoints(first))

	second := newInstance(t, "DEVICE.AlfrescoLight", "Other")
	err := r.AddDeviceAndPoints(second)
	assert.ErrorIs(t, err, ErrDuplicateDevice)

	inst, err := r.GetDeviceInstance("device.alfrescolight", true)
	require.NoError(t, err)
	require.Len(t, inst.Points, 1)
	assert.Equal(t, "Relay", inst.Points[0].Key())

	_, err = r.GetPoint("device.alfrescolight", "Other")
	assert.ErrorIs(t, err, ErrPointNotFound)
}

func TestAddDeviceAndPoints_Rejections(t *testing.T) {
	r := NewRegistry()

	assert.ErrorIs(t, r.AddDeviceAndPoints(&Instance{Key: " "}), ErrInvalidKey)

	dup := &Instance{Key: "d1", Points: []*point.Point{
		mustPoint(t, "d1", "A", point.TypeInteger),
		mustPoint(t, "d1", "a", point.TypeBoolean),
	}}
	assert.ErrorIs(t, r.AddDeviceAndPoints(dup), ErrDuplicatePoint)

	foreign := &Instance{Key: "d2", Points: []*point.Point{mustPoint(t, "other", "A", point.TypeInteger)}}
	assert.ErrorIs(t, r.AddDeviceAndPoints(foreign), ErrInvalidKey)

	assert.Empty(t, r.GetDeviceInstances(false), "failed registrations must leave nothing behind")
	assert.Empty(t, r.GetAllPoints())
}

func TestGetDeviceInstance_ReturnsCopies(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.AddDeviceAndPoints(newInstance(t, "d1", "A", "B")))

	inst, err := r.GetDeviceInstance("d1", true)
	require.NoError(t, err)
	inst.Points = inst.Points[:0]
	inst.Enabled = false

	again, err := r.GetDeviceInstance("d1", true)
	require.NoError(t, err)
	assert.Len(t, again.Points, 2)
	assert.True(t, again.Enabled)

	bare, err := r.GetDeviceInstance("d1", false)
	require.NoError(t, err)
	assert.Empty(t, bare.Points)

	_, err = r.GetDeviceInstance("missing", false)
	assert.ErrorIs(t, err, ErrDeviceNotFound)
}

func TestGetEnabledDeviceInstances(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.AddDeviceAndPoints(newInstance(t, "d1", "A")))
	require.NoError(t, r.AddDeviceAndPoints(newInstance(t, "d2", "A")))
	require.NoError(t, r.SetDeviceEnabled("d1", false))

	enabled := r.GetEnabledDeviceInstances(true)
	require.Len(t, enabled, 1)
	assert.Equal(t, "d2", enabled[0].Key)
	assert.Len(t, enabled[0].Points, 1)

	assert.ErrorIs(t, r.SetDeviceEnabled("nope", true), ErrDeviceNotFound)
}

func TestGetPointsAndVirtualPoints(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.AddDeviceAndPoints(newInstance(t, "d1", "A", "B")))

	v, err := point.New("Setpoint", point.TypeDoubleFloat, point.Options{})
	require.NoError(t, err)
	require.NoError(t, r.AddVirtualPoint(v))
	assert.ErrorIs(t, r.AddVirtualPoint(v), ErrDuplicatePoint)
	assert.ErrorIs(t, r.AddVirtualPoint(mustPoint(t, "d1", "C", point.TypeInteger)), ErrInvalidKey)

	all := r.GetAllPoints()
	require.Len(t, all, 3)
	assert.Equal(t, "Setpoint", all[2].Key())

	got, err := r.GetPoint("", "setpoint")
	require.NoError(t, err)
	assert.Same(t, v, got)

	pts, err := r.GetDevicePoints("D1")
	require.NoError(t, err)
	assert.Len(t, pts, 2)
}

// ============================================================================
// Listeners and status
// ============================================================================

func TestListener_PointChanges(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.AddDeviceAndPoints(newInstance(t, "d1", "A")))

	var got []Change
	r.AddListener(func(c Change) { got = append(got, c) })

	p, err := r.GetPoint("d1", "a")
	require.NoError(t, err)
	_, err = p.SetControlValue(point.Integer(4))
	require.NoError(t, err)
	_, err = p.SetControlValue(point.Integer(4))
	require.NoError(t, err)

	require.Len(t, got, 1)
	assert.Equal(t, PointChanged, got[0].Kind)
	assert.Equal(t, "d1", got[0].DeviceKey)
	assert.Equal(t, "A", got[0].PointKey)
	assert.Equal(t, point.Integer(4), got[0].Value)
}

func TestRefreshDeviceStatus(t *testing.T) {
	r := NewRegistry()
	inst := newInstance(t, "d1", "A")
	inst.OfflineTimeout = time.Minute
	require.NoError(t, r.AddDeviceAndPoints(inst))
	require.NoError(t, r.AddDeviceAndPoints(newInstance(t, "d2", "A")))

	var got []Change
	r.AddListener(func(c Change) { got = append(got, c) })

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, 0, r.RefreshDeviceStatus(start), "never-seen device starts offline")

	require.NoError(t, r.MarkDeviceCommunicated("d1", start))
	require.Len(t, got, 1)
	assert.True(t, got[0].Online)

	assert.Equal(t, 0, r.RefreshDeviceStatus(start.Add(30*time.Second)))
	assert.Equal(t, 1, r.RefreshDeviceStatus(start.Add(2*time.Minute)))
	require.Len(t, got, 2)
	assert.Equal(t, DeviceStatusChanged, got[1].Kind)
	assert.False(t, got[1].Online)

	d2, err := r.GetDeviceInstance("d2", false)
	require.NoError(t, err)
	assert.True(t, d2.Online, "devices without a timeout are always online")
}

// ============================================================================
// Factory
// ============================================================================

func TestAddDeviceInstance(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.AddController("stub", &stubController{}))

	inst, err := AddDeviceInstance("device.alfrescolight", "stub", KindPhysical, `{"x":1}`,
		[]PointDefinition{
			{Key: "Relay", NativeType: "int"},
			{Key: "Temp", NativeType: "double", InitialValue: "21.5", ReadOnly: true},
		}, r, WithOfflineTimeout(time.Minute))
	require.NoError(t, err)

	assert.Equal(t, `{"x":1}`, inst.Config)
	assert.Equal(t, time.Minute, inst.OfflineTimeout)
	require.Len(t, inst.Points, 2)
	assert.Equal(t, point.Integer(0), inst.Point("relay").Value())
	assert.Equal(t, point.DoubleFloat(21.5), inst.Point("Temp").Value())
	assert.True(t, inst.Point("Temp").ReadOnly())
}

func TestAddDeviceInstance_Failures(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.AddController("stub", &stubController{}))
	require.NoError(t, r.AddController("picky", &stubController{parseErr: errors.New("bad json")}))

	_, err := AddDeviceInstance("d1", "missing", KindPhysical, "", nil, r)
	assert.ErrorIs(t, err, ErrControllerNotFound)

	_, err = AddDeviceInstance("d1", "picky", KindPhysical, "{", nil, r)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = AddDeviceInstance("d1", "stub", KindPhysical, "",
		[]PointDefinition{{Key: "A", NativeType: "complex128"}}, r)
	assert.ErrorIs(t, err, ErrNoPointType)

	_, err = AddDeviceInstance("d1", "stub", KindPhysical, "",
		[]PointDefinition{{Key: "A", NativeType: "bool", InitialValue: 12}}, r)
	assert.ErrorIs(t, err, point.ErrIncompatibleValueType)

	assert.Empty(t, r.GetDeviceInstances(false))
}
