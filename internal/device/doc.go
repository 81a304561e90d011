// Package device provides the device and controller registry for Imperium Core.
//
// The Registry is the central, append-mostly store of the engine. It maps
// three case-insensitive key spaces to their objects:
//
//   - controller key -> Controller (a registered protocol implementation)
//   - device key -> Instance (a physical or virtual device and its points)
//   - device key + point key -> *point.Point
//
// Each key space is unique. Registering a duplicate is a hard error and
// nothing is partially registered.
//
// # Architecture
//
//	┌───────────────────────────────────────────────────────────────┐
//	│                           Registry                             │
//	│                                                                │
//	│  controllers ──▶ Controller.Read / Write / ParseInstanceConfig │
//	│  devices     ──▶ Instance (copied out on every query)          │
//	│  points      ──▶ *point.Point (per-point lock for values)      │
//	│                                                                │
//	│  listeners   ◀── point value changes, online/offline changes   │
//	└───────────────────────────────────────────────────────────────┘
//
// The poller, the MQTT bridge and the update service mutate point values
// through the points held here; the subscription hub and telemetry writers
// observe them through listeners.
//
// # Usage
//
//	reg := device.NewRegistry()
//	reg.SetLogger(log)
//
//	if err := reg.AddController("http-json", httpjson.New(nil)); err != nil {
//	    return err
//	}
//	inst, err := device.AddDeviceInstance(
//	    "device.alfrescolight", "http-json", device.KindPhysical,
//	    `{"url":"http://10.0.0.5/state"}`,
//	    []device.PointDefinition{{Key: "Relay", NativeType: "int"}},
//	    reg,
//	)
//
// # Thread Safety
//
// Structural changes take a registry-wide write lock. Queries take a read
// lock and return copies. Point values are not guarded by the registry
// lock at all; see package point.
package device
