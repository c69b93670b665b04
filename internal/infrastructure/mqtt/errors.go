package mqtt

import "errors"

// Errors returned by the client. Match them with errors.Is.
var (
	// ErrNotConnected means the broker connection is down; the bridge
	// reports it as an unhealthy MQTT component.
	ErrNotConnected = errors.New("mqtt: client not connected")

	// ErrConnectionFailed means the broker was unreachable at startup.
	ErrConnectionFailed = errors.New("mqtt: connection failed")

	// ErrPublishFailed wraps a rejected or timed-out publish.
	ErrPublishFailed = errors.New("mqtt: publish failed")

	// ErrSubscribeFailed wraps a rejected or timed-out subscription.
	ErrSubscribeFailed = errors.New("mqtt: subscribe failed")

	// ErrInvalidQoS rejects QoS levels above 2.
	ErrInvalidQoS = errors.New("mqtt: invalid QoS level (must be 0, 1, or 2)")

	// ErrInvalidTopic rejects an empty topic.
	ErrInvalidTopic = errors.New("mqtt: topic cannot be empty")
)
