// Package telemetry fans controller activity out to Prometheus metrics and
// InfluxDB points. A Sink is registered three times: as the gate's request
// observer, the controller's poll observer and a state subscriber.
package telemetry
