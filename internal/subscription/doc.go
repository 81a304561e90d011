// Package subscription fans registry changes out to real-time websocket
// clients.
//
// A client registers interest by sending a filter:
//
//	{"action": "subscribe", "subscriptionType": "Change", "entityType": "Point", "entityKey": "device.alfrescolight.Relay"}
//
// action defaults to "subscribe"; "unsubscribe" removes an equal filter,
// "clear" removes all of them and "ping" is answered with "Pong".
// subscriptionType is Change (point value changes), Status (device
// online/offline) or All. entityType is Point, Device or "*" (the default).
// A Device filter matches every event of that device. entityKey is the
// device key for devices and "deviceKey.pointKey" for points (the bare
// point key for virtual points); empty or "*" matches any key. Matching is
// case-insensitive.
//
// Matching events are pushed as:
//
//	{"eventType": "Change", "entityType": "Point", "deviceKey": "device.alfrescolight", "pointKey": "Relay", "value": 1, "timestamp": "..."}
//
// The client list is copied under the hub lock and every send goes through
// a per-client buffered channel drained by that client's write goroutine,
// so a slow peer never blocks the goroutine that changed a point. On
// shutdown every client receives a 1000 (normal closure) close frame.
package subscription
