// Package update applies point update requests from the API.
//
// A request names a point by device key and point key (an empty device key
// addresses a virtual point) and one of four actions:
//
//	Control          set the control layer to the parsed value
//	Override         set the override layer to the parsed value
//	OverrideRelease  clear the override layer
//	Toggle           invert a boolean point: the override layer when set,
//	                 otherwise the control layer (falling back to the device
//	                 layer, defaulting to false)
//
// After the point is updated the device is written and immediately read
// back through its controller, unless the device is virtual, the point has
// no device, or the server runs read-only. Device I/O failures and missing
// devices or controllers are logged and reported but do not fail the
// request: the registry update has already happened.
package update
