// Package influxdb records garage telemetry in InfluxDB v2.
//
// It wraps influxdb-client-go with the batched, non-blocking write API.
// Four measurements are written, all tagged with device_id:
//
//	garage_door     current, target, obstructed
//	garage_light    on
//	device_request  endpoint tag; status, latency_ms, failed
//	poll_error      axis tag; reason
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteDoorState("garage-door", "opening", "open", false)
//
// Write failures are asynchronous and reported through SetOnError.
package influxdb
