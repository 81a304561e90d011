// Package mqttdevice provides the controller for devices bridged over MQTT.
//
// Values arrive through the MQTT bridge: the device's topic pattern is a
// regular expression matched against every inbound topic. When the pattern
// has a named group "point", the payload is a scalar for the point with that
// key; otherwise the payload is a JSON object whose fields are matched to
// point keys (case-insensitive). Unknown fields are ignored.
//
// Write publishes control-resolved values to the command topic. A "{point}"
// placeholder in the command topic sends one message per point with a
// scalar payload; without it a single JSON object is sent.
//
// Each device may name a Transform. Its Inbound function rewrites payloads
// before they are parsed and its Outbound function rewrites payloads before
// they are published. The "identity" transform is always registered.
//
// Instance configuration:
//
//	{
//	  "topicPattern": "^shellies/relay-1/relay/(?P<point>\\w+)$",
//	  "commandTopic": "shellies/relay-1/relay/{point}/command",
//	  "transform": "identity",
//	  "retain": false
//	}
package mqttdevice
