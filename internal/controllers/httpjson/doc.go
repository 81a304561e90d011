// Package httpjson provides the controller for devices with a REST/JSON API.
//
// Read issues a GET to the configured URL and maps fields of the returned
// JSON document onto points. By default a point reads the top-level field
// with its own key (case-insensitive); the "fields" map overrides this with
// a dot-separated path of object keys such as "status.relay". Array indexes
// are not supported. Values go to the device layer.
//
// Write POSTs a JSON object of the control-resolved values of every writable
// point to writeUrl (defaults to url). Points without a resolved value are
// omitted; nothing is sent when no point has one.
//
// Instance configuration:
//
//	{
//	  "url": "http://10.0.0.21/api/state",
//	  "writeUrl": "http://10.0.0.21/api/control",
//	  "timeout": "5s",
//	  "headers": {"Authorization": "Bearer ..."},
//	  "fields": {"Relay": "status.relay"}
//	}
package httpjson
