// Package poller holds the scheduler iterations that keep device state
// current.
//
// PollDevices reads every enabled physical device whose controller pulls
// state (controllers that receive pushed MQTT messages are skipped). Reads
// run concurrently up to a limit; each successful read marks the device as
// communicated. A failed device is logged and reported, and the iteration
// only fails when every device it tried failed, so one broken device does
// not drive the loop toward fail-stop.
//
// Housekeeping recomputes online/offline status from the time since each
// device last communicated.
package poller
