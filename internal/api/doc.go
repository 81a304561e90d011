// Package api is the HTTP binding of the engine.
//
// Routes, under /api/v1:
//
//	GET   /health                 loop, MQTT and dependency health
//	GET   /status                 recent status reports
//	GET   /points                 all points
//	POST  /points/update          point update request
//	GET   /devices                all devices
//	GET   /devices/{key}          one device with its points
//	PATCH /devices/{key}          {"enabled": bool}
//	GET   /devices/{key}/points   a device's points
//	GET   /ws                     websocket subscription endpoint
//
// update.ErrNotFound and the registry's not-found errors answer 404,
// update.ErrBadRequest answers 400.
//
// There is no authentication layer.
package api
