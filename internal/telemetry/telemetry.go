package telemetry

import (
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-garage/internal/garage"
	"github.com/nerrad567/gray-logic-garage/internal/infrastructure/metrics"
)

// PointWriter is the time-series surface of *influxdb.Client.
type PointWriter interface {
	WriteDoorState(deviceID, current, target string, obstructed bool)
	WriteLightState(deviceID string, on bool)
	WriteDeviceRequest(deviceID, endpoint string, status int, latency time.Duration, failed bool)
	WritePollError(deviceID, axis, reason string)
}

// Sink forwards controller activity to Prometheus and InfluxDB.
//
// It implements garage.Notifier, garage.RequestObserver and
// garage.PollObserver. Either backend may be nil.
type Sink struct {
	deviceID string
	metrics  *metrics.Metrics
	points   PointWriter

	mu          sync.Mutex
	current     garage.DoorState
	target      garage.DoorState
	obstruction bool
}

var (
	_ garage.Notifier        = (*Sink)(nil)
	_ garage.RequestObserver = (*Sink)(nil)
	_ garage.PollObserver    = (*Sink)(nil)
)

// NewSink creates a sink tagging every point with deviceID.
func NewSink(deviceID string, m *metrics.Metrics, points PointWriter) *Sink {
	return &Sink{
		deviceID: deviceID,
		metrics:  m,
		points:   points,
		current:  garage.DoorClosed,
		target:   garage.DoorClosed,
	}
}

// ObserveRequest records a completed device request.
func (s *Sink) ObserveRequest(endpoint string, status int, latency time.Duration, err error) {
	if s.metrics != nil {
		s.metrics.RecordRequest(endpoint, garage.ErrorKind(err), latency)
	}
	if s.points != nil {
		s.points.WriteDeviceRequest(s.deviceID, endpoint, status, latency, err != nil)
	}
}

// ObserveQueueDepth records the gate queue depth.
func (s *Sink) ObserveQueueDepth(depth int) {
	if s.metrics != nil {
		s.metrics.SetQueueDepth(depth)
	}
}

// PollFailed records a failed poll query.
func (s *Sink) PollFailed(axis string, err error) {
	kind := garage.ErrorKind(err)
	if s.metrics != nil {
		s.metrics.RecordPollError(axis, kind)
	}
	if s.points != nil {
		s.points.WritePollError(s.deviceID, axis, kind)
	}
}

func (s *Sink) DoorCurrentStateChanged(state garage.DoorState) {
	if s.metrics != nil {
		s.metrics.SetDoorCurrent(int(state))
	}
	s.updateDoor(func() { s.current = state })
}

func (s *Sink) DoorTargetStateChanged(state garage.DoorState) {
	if s.metrics != nil {
		s.metrics.SetDoorTarget(int(state))
	}
	s.updateDoor(func() { s.target = state })
}

func (s *Sink) ObstructionDetectedChanged(obstructed bool) {
	if s.metrics != nil {
		s.metrics.SetObstruction(obstructed)
	}
	s.updateDoor(func() { s.obstruction = obstructed })
}

func (s *Sink) LightStateChanged(on bool) {
	if s.metrics != nil {
		s.metrics.SetLight(on)
	}
	if s.points != nil {
		s.points.WriteLightState(s.deviceID, on)
	}
}

// updateDoor applies one axis change and writes the whole door row.
func (s *Sink) updateDoor(apply func()) {
	s.mu.Lock()
	apply()
	current, target, obstruction := s.current, s.target, s.obstruction
	s.mu.Unlock()

	if s.points != nil {
		s.points.WriteDoorState(s.deviceID,
			strings.ToLower(current.String()),
			strings.ToLower(target.String()),
			obstruction,
		)
	}
}
