// Package mqtt bridges an MQTT broker into the device registry.
//
// The Manager owns a single logical broker connection and drives it from a
// scheduler loop:
//
//	Disconnected --(host settings changed | retry due)--> Connecting
//	Connecting   --(connect + subscribe ok)-----------> Connected
//	Connecting   --(rejected / no host)----------------> Disconnected, retry in 1m
//	Connecting   --(transport error / panic)-----------> Disconnected, retry in 10s
//	Connected    --(connection lost)-------------------> Disconnected, retry in 1m
//
// HostSettings carries a version counter that only advances when the host
// set actually changes. A tick that sees a new version tears down the
// current connection and dials again, regardless of any pending retry.
//
// Every inbound message on the catch-all filter is offered to each enabled
// device whose controller implements Bridged. The device's topic pattern is
// a regular expression matched against the topic; on a match the captured
// groups and raw payload are handed to the controller. A failure or panic in
// one device does not stop delivery to the others.
package mqtt
