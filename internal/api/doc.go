// Package api implements the HTTP REST API and WebSocket server for the
// garage bridge.
//
// This package provides:
//   - REST endpoints to read and operate the door and light
//   - Event history from the SQLite audit trail
//   - A health summary across MQTT, the database and InfluxDB
//   - Prometheus metrics on /metrics
//   - A WebSocket hub broadcasting every state push
//   - Middleware stack (request ID, logging, recovery, CORS, command rate limit)
//
// # Graceful Degradation
//
// History and metrics are optional. Without them the matching endpoints
// answer 503 and everything else keeps working.
//
// # Endpoints
//
//	GET  /api/v1/door       door state with staleness
//	PUT  /api/v1/door       {"target": "open"|"closed"}
//	GET  /api/v1/light      light state
//	PUT  /api/v1/light      {"on": true|false}
//	POST /api/v1/refresh    poll the device now
//	GET  /api/v1/history    recent events, ?limit=1..200
//	GET  /api/v1/health     component health
//	GET  /metrics           Prometheus exposition
//	GET  /ws                WebSocket (channels "door", "light")
package api
