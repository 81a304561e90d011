// Package influxdb records point telemetry in InfluxDB.
//
// Client wraps the influxdb-client-go v2 non-blocking write API. Recorder
// listens to registry changes and writes one point per change:
//
//	point_value,device=device.alfrescolight,point=Relay,type=Integer value=1i
//	device_status,device=device.alfrescolight online=false
//
// Virtual points carry no device tag.
//
// Writes are batched according to batch_size and flush_interval. Batch
// failures are delivered to the SetOnError callback.
package influxdb
