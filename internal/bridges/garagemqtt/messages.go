package garagemqtt

import (
	"strings"
	"time"

	"github.com/nerrad567/gray-logic-garage/internal/garage"
)

// Commands accepted on garage/command/{device}.
const (
	CommandOpen     = "open"
	CommandClose    = "close"
	CommandLightOn  = "light_on"
	CommandLightOff = "light_off"
)

// Actions accepted on garage/request/{device}.
const (
	ActionReadState = "read_state"
	ActionRefresh   = "refresh"
)

// Error codes carried in acks and responses. Device failures use the
// upper-cased garage.ErrorKind (TRANSPORT, STALE, ...).
const (
	ErrCodeInvalidPayload = "INVALID_PAYLOAD"
	ErrCodeInvalidCommand = "INVALID_COMMAND"
	ErrCodeWrongDevice    = "WRONG_DEVICE"
	ErrCodeTimeout        = "TIMEOUT"
)

// CommandMessage asks the bridge to operate the door or light.
// Topic: garage/command/{device}
type CommandMessage struct {
	// ID correlates the command with its ack. Generated when empty.
	ID string `json:"id"`

	Timestamp time.Time `json:"timestamp"`

	// DeviceID must match the bridge device when set.
	DeviceID string `json:"device_id,omitempty"`

	// Command is one of open, close, light_on, light_off.
	Command string `json:"command"`

	// Source records who asked (e.g. "automation", "voice").
	Source string `json:"source,omitempty"`
}

// AckStatus represents the outcome of a command.
type AckStatus string

const (
	// AckAccepted means the device confirmed the command.
	AckAccepted AckStatus = "accepted"

	// AckFailed means the command was rejected or the device call failed.
	AckFailed AckStatus = "failed"

	// AckTimeout means the device did not answer in time.
	AckTimeout AckStatus = "timeout"
)

// AckMessage reports a command outcome.
// Topic: garage/ack/{device}, QoS 1, not retained
type AckMessage struct {
	CommandID string    `json:"command_id"`
	Timestamp time.Time `json:"timestamp"`
	DeviceID  string    `json:"device_id"`
	Command   string    `json:"command"`
	Status    AckStatus `json:"status"`
	Error     *AckError `json:"error,omitempty"`
}

// AckError contains details for failed commands.
type AckError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// DoorPayload is the door part of a state message.
type DoorPayload struct {
	Current             garage.DoorState `json:"current"`
	Target              garage.DoorState `json:"target"`
	ObstructionDetected bool             `json:"obstruction_detected"`
	Stale               bool             `json:"stale"`
	ReportedAt          time.Time        `json:"reported_at"`
}

// LightPayload is the light part of a state message.
type LightPayload struct {
	On         bool      `json:"on"`
	Stale      bool      `json:"stale"`
	ReportedAt time.Time `json:"reported_at"`
}

// StateMessage is the retained door and light state.
// Topic: garage/state/{device}, QoS 1, retained
type StateMessage struct {
	DeviceID  string        `json:"device_id"`
	Timestamp time.Time     `json:"timestamp"`
	Door      DoorPayload   `json:"door"`
	Light     *LightPayload `json:"light,omitempty"`
}

// HealthStatus represents the operational status of the bridge.
type HealthStatus string

const (
	HealthHealthy  HealthStatus = "healthy"
	HealthDegraded HealthStatus = "degraded"
	HealthStarting HealthStatus = "starting"
	HealthStopping HealthStatus = "stopping"

	// HealthOffline is only ever published by the broker, from the Last Will.
	HealthOffline HealthStatus = "offline"
)

// HealthMessage reports bridge health.
// Topic: garage/health/{device}, QoS 1, retained
//
// DeviceID, Status and Reason line up with the Last Will payload so a
// consumer can decode both with one type.
type HealthMessage struct {
	DeviceID      string       `json:"device_id"`
	Timestamp     time.Time    `json:"timestamp"`
	Status        HealthStatus `json:"status"`
	Reason        string       `json:"reason,omitempty"`
	Version       string       `json:"version"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	QueueDepth    int          `json:"queue_depth"`
}

// RequestMessage asks for a read or a refresh.
// Topic: garage/request/{device}
type RequestMessage struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`

	// Action is read_state or refresh.
	Action string `json:"action"`
}

// ResponseMessage answers a request.
// Topic: garage/response/{device}/{request_id}, QoS 1, not retained
type ResponseMessage struct {
	RequestID string         `json:"request_id"`
	Timestamp time.Time      `json:"timestamp"`
	Success   bool           `json:"success"`
	State     *StateMessage  `json:"state,omitempty"`
	Error     *ResponseError `json:"error,omitempty"`
}

// ResponseError contains details for failed requests.
type ResponseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewAckMessage creates a successful acknowledgment.
func NewAckMessage(cmd CommandMessage, deviceID string) AckMessage {
	return AckMessage{
		CommandID: cmd.ID,
		Timestamp: time.Now().UTC(),
		DeviceID:  deviceID,
		Command:   cmd.Command,
		Status:    AckAccepted,
	}
}

// NewAckError creates a failed acknowledgment.
func NewAckError(cmd CommandMessage, deviceID, code, message string) AckMessage {
	status := AckFailed
	if code == ErrCodeTimeout {
		status = AckTimeout
	}
	ack := NewAckMessage(cmd, deviceID)
	ack.Status = status
	ack.Error = &AckError{Code: code, Message: message}
	return ack
}

// ErrorCode maps a device error onto an ack/response code.
func ErrorCode(err error) string {
	return strings.ToUpper(garage.ErrorKind(err))
}
