// Package point provides the typed point and value model for Imperium Core.
//
// A Point is a named, typed value slot representing one measurable or
// controllable attribute of a device (a relay state, a temperature, a
// schedule time). Points carry three value layers:
//
//	override   set by manual/API intervention
//	control    set by automation logic
//	device     last raw reading from the physical device
//
// The externally visible value is the override value if present, else the
// control value, else the device value.
//
// # Values
//
// Values form a closed set of nine types (Integer, SingleFloat, DoubleFloat,
// Boolean, String, DateTime, DateOnly, TimeOnly, TimeSpan). Every value has a
// canonical string form; two values are equal when their types and canonical
// strings are equal. Writes that do not change the canonical form of the
// visible value are no-ops and produce no change notification.
//
// # Thread Safety
//
// Each Point serialises its own reads and writes with a per-point mutex.
// There is no global lock, so high-frequency updates on different points
// never contend.
//
// # Usage
//
//	p, err := point.New("Relay", point.TypeInteger, point.Options{DeviceKey: "device.alfrescolight"})
//	if err != nil {
//	    return err
//	}
//	v, err := point.Parse(point.TypeInteger, "1")
//	if err != nil {
//	    return err
//	}
//	changed, err := p.SetControlValue(v)
package point
