// Package metrics sends engine counters and gauges to a DogStatsD agent.
//
// Emitted metrics (all prefixed with the configured namespace):
//
//	scheduler.iteration.success   count  loop:<name>
//	scheduler.iteration.failure   count  loop:<name>
//	mqtt.connected                gauge  1 connected, 0 otherwise
//	mqtt.messages.routed          count  device:<key>
//	mqtt.messages.failed          count  device:<key>
//	subscription.clients          gauge
//	points.changed                count
package metrics
