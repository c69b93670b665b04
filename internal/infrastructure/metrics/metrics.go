package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "garage"

// Metrics holds the bridge's Prometheus collectors.
type Metrics struct {
	requests      *prometheus.CounterVec
	latency       *prometheus.HistogramVec
	queueDepth    prometheus.Gauge
	pollErrors    *prometheus.CounterVec
	doorCurrent   prometheus.Gauge
	doorTarget    prometheus.Gauge
	obstruction   prometheus.Gauge
	lightOn       prometheus.Gauge
	mqttConnected prometheus.Gauge
}

// New creates the collectors and registers them with reg.
//
// Door state gauges carry the numeric DoorState (0 open, 1 closed,
// 2 opening, 3 closing, 4 stopped).
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "device_requests_total",
				Help:      "Device HTTP requests by endpoint and outcome.",
			},
			[]string{"endpoint", "outcome"},
		),
		latency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "device_request_seconds",
				Help:      "Device HTTP request latency.",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"endpoint"},
		),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "gate_queue_depth",
			Help:      "Requests waiting for the device gate.",
		}),
		pollErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "poll_errors_total",
				Help:      "Failed poll queries by axis and error kind.",
			},
			[]string{"axis", "kind"},
		),
		doorCurrent: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "door_current_state",
			Help:      "Current door state.",
		}),
		doorTarget: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "door_target_state",
			Help:      "Target door state.",
		}),
		obstruction: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "door_obstruction_detected",
			Help:      "1 when the door is stopped mid-travel.",
		}),
		lightOn: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "light_on",
			Help:      "1 when the light is on.",
		}),
		mqttConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "mqtt_connected",
			Help:      "1 while the MQTT broker connection is up.",
		}),
	}

	reg.MustRegister(
		m.requests,
		m.latency,
		m.queueDepth,
		m.pollErrors,
		m.doorCurrent,
		m.doorTarget,
		m.obstruction,
		m.lightOn,
		m.mqttConnected,
	)
	return m
}

// RecordRequest counts one device request and its latency.
func (m *Metrics) RecordRequest(endpoint, outcome string, latency time.Duration) {
	m.requests.WithLabelValues(endpoint, outcome).Inc()
	m.latency.WithLabelValues(endpoint).Observe(latency.Seconds())
}

// SetQueueDepth sets the gate queue depth.
func (m *Metrics) SetQueueDepth(depth int) {
	m.queueDepth.Set(float64(depth))
}

// RecordPollError counts a failed poll query.
func (m *Metrics) RecordPollError(axis, kind string) {
	m.pollErrors.WithLabelValues(axis, kind).Inc()
}

// SetDoorCurrent sets the current door state gauge.
func (m *Metrics) SetDoorCurrent(state int) { m.doorCurrent.Set(float64(state)) }

// SetDoorTarget sets the target door state gauge.
func (m *Metrics) SetDoorTarget(state int) { m.doorTarget.Set(float64(state)) }

// SetObstruction sets the obstruction gauge.
func (m *Metrics) SetObstruction(obstructed bool) { m.obstruction.Set(boolValue(obstructed)) }

// SetLight sets the light gauge.
func (m *Metrics) SetLight(on bool) { m.lightOn.Set(boolValue(on)) }

// SetMQTTConnected sets the broker connection gauge.
func (m *Metrics) SetMQTTConnected(connected bool) { m.mqttConnected.Set(boolValue(connected)) }

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
