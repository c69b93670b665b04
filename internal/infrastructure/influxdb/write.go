package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementDoor    = "garage_door"
	MeasurementLight   = "garage_light"
	MeasurementRequest = "device_request"
	MeasurementPoll    = "poll_error"
)

// WriteDoorState records a door state change.
//
// Parameters:
//   - deviceID: Bridge device identifier (mqtt.device_id)
//   - current: Current door state name (e.g. "opening")
//   - target: Target door state name ("open" or "closed")
//   - obstructed: Obstruction flag at the time of the change
func (c *Client) WriteDoorState(deviceID, current, target string, obstructed bool) {
	c.writePoint(MeasurementDoor,
		map[string]string{"device_id": deviceID},
		map[string]interface{}{
			"current":    current,
			"target":     target,
			"obstructed": obstructed,
		},
		time.Now(),
	)
}

// WriteLightState records a light state change.
func (c *Client) WriteLightState(deviceID string, on bool) {
	c.writePoint(MeasurementLight,
		map[string]string{"device_id": deviceID},
		map[string]interface{}{"on": on},
		time.Now(),
	)
}

// WriteDeviceRequest records one completed device HTTP request.
//
// Parameters:
//   - deviceID: Bridge device identifier
//   - endpoint: Logical endpoint name (e.g. "door_state", "light_on")
//   - status: HTTP status code, 0 when no response arrived
//   - latency: Time from dispatch to response
//   - failed: Whether the request produced an error
func (c *Client) WriteDeviceRequest(deviceID, endpoint string, status int, latency time.Duration, failed bool) {
	c.writePoint(MeasurementRequest,
		map[string]string{
			"device_id": deviceID,
			"endpoint":  endpoint,
		},
		map[string]interface{}{
			"status":     status,
			"latency_ms": float64(latency) / float64(time.Millisecond),
			"failed":     failed,
		},
		time.Now(),
	)
}

// WritePollError records a failed poll tick for one axis ("door" or "light").
func (c *Client) WritePollError(deviceID, axis, reason string) {
	c.writePoint(MeasurementPoll,
		map[string]string{
			"device_id": deviceID,
			"axis":      axis,
		},
		map[string]interface{}{"reason": reason},
		time.Now(),
	)
}

func (c *Client) writePoint(measurement string, tags map[string]string, fields map[string]interface{}, ts time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, ts))
}
