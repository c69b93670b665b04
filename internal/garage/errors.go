package garage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Sentinel errors for the garage adapter.
// Use errors.Is() to classify a failure and errors.As() to reach the detail.
var (
	// ErrConfiguration is returned when the device configuration is unusable.
	ErrConfiguration = errors.New("garage: invalid configuration")

	// ErrTransport is returned when a device request fails below HTTP (timeout, refused, reset).
	ErrTransport = errors.New("garage: transport failure")

	// ErrUnexpectedStatus is returned when the device answers outside 200-299.
	ErrUnexpectedStatus = errors.New("garage: unexpected HTTP status")

	// ErrMalformedBody is returned when a structured response cannot be parsed.
	ErrMalformedBody = errors.New("garage: malformed response body")

	// ErrMissingField is returned when an expected field is absent from a structured response.
	ErrMissingField = errors.New("garage: response field missing")

	// ErrUnexpectedValue is returned when a structured success field holds the wrong value.
	ErrUnexpectedValue = errors.New("garage: unexpected response field value")

	// ErrUnexpectedBody is returned when an unstructured response lacks the success content.
	ErrUnexpectedBody = errors.New("garage: unexpected response body")

	// ErrUnrecognizedState is returned when a device state cannot be translated.
	ErrUnrecognizedState = errors.New("garage: unrecognised device state")

	// ErrStale is returned alongside the last known value when no observation
	// has refreshed it within the staleness window.
	ErrStale = errors.New("garage: state is stale")

	// ErrNoLight is returned for light operations when no light is configured.
	ErrNoLight = errors.New("garage: light not configured")

	// ErrGateClosed is returned when a request is submitted after the gate stopped.
	ErrGateClosed = errors.New("garage: request gate closed")
)

// ConfigurationError lists every problem found while validating the device configuration.
type ConfigurationError struct {
	Problems []string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s: %s", ErrConfiguration, strings.Join(e.Problems, "; "))
}

func (e *ConfigurationError) Unwrap() error { return ErrConfiguration }

// TransportError wraps a network-level failure for one endpoint.
type TransportError struct {
	Endpoint string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrTransport, e.Endpoint, e.Err)
}

func (e *TransportError) Unwrap() []error { return []error{ErrTransport, e.Err} }

// UnexpectedStatusError carries the status code of a non-2xx response.
type UnexpectedStatusError struct {
	Endpoint string
	Status   int
}

func (e *UnexpectedStatusError) Error() string {
	return fmt.Sprintf("%s: %s returned %d", ErrUnexpectedStatus, e.Endpoint, e.Status)
}

func (e *UnexpectedStatusError) Unwrap() error { return ErrUnexpectedStatus }

// MalformedBodyError wraps the decoder failure for a structured response.
type MalformedBodyError struct {
	Err error
}

func (e *MalformedBodyError) Error() string {
	return fmt.Sprintf("%s: %v", ErrMalformedBody, e.Err)
}

func (e *MalformedBodyError) Unwrap() []error { return []error{ErrMalformedBody, e.Err} }

// MissingFieldError names the absent response field.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("%s: %q", ErrMissingField, e.Field)
}

func (e *MissingFieldError) Unwrap() error { return ErrMissingField }

// UnexpectedValueError reports the value found in a success field.
type UnexpectedValueError struct {
	Field string
	Got   any
	Want  any
}

func (e *UnexpectedValueError) Error() string {
	return fmt.Sprintf("%s: %q is %v, want %v", ErrUnexpectedValue, e.Field, e.Got, e.Want)
}

func (e *UnexpectedValueError) Unwrap() error { return ErrUnexpectedValue }

// UnexpectedBodyError reports the success content missing from an unstructured body.
type UnexpectedBodyError struct {
	Expected string
}

func (e *UnexpectedBodyError) Error() string {
	return fmt.Sprintf("%s: does not contain %q", ErrUnexpectedBody, e.Expected)
}

func (e *UnexpectedBodyError) Unwrap() error { return ErrUnexpectedBody }

// UnrecognizedStateError carries the raw value that could not be decoded.
type UnrecognizedStateError struct {
	Value any
}

func (e *UnrecognizedStateError) Error() string {
	return fmt.Sprintf("%s: %v", ErrUnrecognizedState, e.Value)
}

func (e *UnrecognizedStateError) Unwrap() error { return ErrUnrecognizedState }

// StalenessError describes an observation that has not been refreshed in time.
// It is computed at read time and never stored.
type StalenessError struct {
	Subject   string
	LastKnown string
	Since     time.Time
}

func (e *StalenessError) Error() string {
	return fmt.Sprintf("%s current state is unknown (last known: %s), it hasn't been reported since %s",
		e.Subject, e.LastKnown, e.Since.Format(time.RFC1123))
}

func (e *StalenessError) Unwrap() error { return ErrStale }

var errorKinds = []struct {
	target error
	kind   string
}{
	{ErrConfiguration, "configuration"},
	{ErrTransport, "transport"},
	{ErrUnexpectedStatus, "unexpected_status"},
	{ErrMalformedBody, "malformed_body"},
	{ErrMissingField, "missing_field"},
	{ErrUnexpectedValue, "unexpected_value"},
	{ErrUnexpectedBody, "unexpected_body"},
	{ErrUnrecognizedState, "unrecognized_state"},
	{ErrStale, "stale"},
	{ErrNoLight, "no_light"},
	{ErrGateClosed, "gate_closed"},
	{context.Canceled, "canceled"},
	{context.DeadlineExceeded, "timeout"},
}

// ErrorKind returns a short stable label for err, used as a metric label
// and as the error code in MQTT acks and API responses. Nil is "ok".
func ErrorKind(err error) string {
	if err == nil {
		return "ok"
	}
	for _, k := range errorKinds {
		if errors.Is(err, k.target) {
			return k.kind
		}
	}
	return "internal"
}
