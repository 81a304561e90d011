package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/mekatrol/imperium-core/internal/device"
	"github.com/mekatrol/imperium-core/internal/point"
)

// Measurement names.
const (
	MeasurementPointValue   = "point_value"
	MeasurementDeviceStatus = "device_status"
)

// PointWriter queues a point for writing. *Client implements it.
type PointWriter interface {
	WritePoint(p *write.Point)
}

// Recorder turns registry changes into telemetry points. Register its
// HandleChange method as a device.Listener.
type Recorder struct {
	w   PointWriter
	now func() time.Time
}

// NewRecorder creates a recorder writing to w.
func NewRecorder(w PointWriter) *Recorder {
	return &Recorder{w: w, now: time.Now}
}

// HandleChange records a point value change or device status transition.
// Cleared values are not recorded.
func (r *Recorder) HandleChange(c device.Change) {
	if p := r.toPoint(c); p != nil {
		r.w.WritePoint(p)
	}
}

func (r *Recorder) toPoint(c device.Change) *write.Point {
	ts := c.Time
	if ts.IsZero() {
		ts = r.now()
	}

	tags := make(map[string]string, 3)
	if c.DeviceKey != "" {
		tags["device"] = c.DeviceKey
	}

	switch c.Kind {
	case device.PointChanged:
		if c.Value == nil {
			return nil
		}
		tags["point"] = c.PointKey
		tags["type"] = c.Value.Type().String()
		return write.NewPoint(MeasurementPointValue, tags,
			map[string]any{"value": fieldValue(c.Value)}, ts)

	case device.DeviceStatusChanged:
		return write.NewPoint(MeasurementDeviceStatus, tags,
			map[string]any{"online": c.Online}, ts)
	}
	return nil
}

// fieldValue maps a point value to an InfluxDB field: integers, floats and
// booleans natively, time-valued types as their canonical string.
func fieldValue(v point.Value) any {
	switch x := v.(type) {
	case point.Integer:
		return int64(x)
	case point.SingleFloat:
		return float64(x)
	case point.DoubleFloat:
		return float64(x)
	case point.Boolean:
		return bool(x)
	}
	return v.String()
}
