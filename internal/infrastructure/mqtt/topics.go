package mqtt

import "fmt"

// TopicPrefix is the root of every garage bridge topic.
//
// Topic scheme: garage/{category}/{device_id}[/{request_id}]
const TopicPrefix = "garage"

// Topics provides builders for garage bridge MQTT topics.
// Using these helpers keeps topic naming consistent between the bridge,
// the client's Last Will and the tests.
//
//	topics := mqtt.Topics{}
//	stateTopic := topics.State("garage-door")
//	// Returns: "garage/state/garage-door"
type Topics struct{}

// Command returns the topic on which commands for a device arrive.
//
// Example: garage/command/garage-door
func (Topics) Command(deviceID string) string {
	return fmt.Sprintf("%s/command/%s", TopicPrefix, deviceID)
}

// Ack returns the topic for command acknowledgements.
//
// Example: garage/ack/garage-door
func (Topics) Ack(deviceID string) string {
	return fmt.Sprintf("%s/ack/%s", TopicPrefix, deviceID)
}

// State returns the retained state topic for a device.
//
// Example: garage/state/garage-door
func (Topics) State(deviceID string) string {
	return fmt.Sprintf("%s/state/%s", TopicPrefix, deviceID)
}

// Request returns the topic on which requests for a device arrive.
//
// Example: garage/request/garage-door
func (Topics) Request(deviceID string) string {
	return fmt.Sprintf("%s/request/%s", TopicPrefix, deviceID)
}

// Response returns the topic a request's response is published on.
//
// Example: garage/response/garage-door/6f1c...
func (Topics) Response(deviceID, requestID string) string {
	return fmt.Sprintf("%s/response/%s/%s", TopicPrefix, deviceID, requestID)
}

// Health returns the retained health topic. It also carries the Last Will.
//
// Example: garage/health/garage-door
func (Topics) Health(deviceID string) string {
	return fmt.Sprintf("%s/health/%s", TopicPrefix, deviceID)
}

