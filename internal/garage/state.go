package garage

import (
	"fmt"
	"strings"
	"time"
)

// DoorState is the door position vocabulary shared by both state axes.
// Values line up with the HomeKit CurrentDoorState characteristic.
type DoorState int

const (
	DoorOpen DoorState = iota
	DoorClosed
	DoorOpening
	DoorClosing
	DoorStopped
)

// String returns the upper-case name used in logs and on the wire.
func (s DoorState) String() string {
	switch s {
	case DoorOpen:
		return "OPEN"
	case DoorClosed:
		return "CLOSED"
	case DoorOpening:
		return "OPENING"
	case DoorClosing:
		return "CLOSING"
	case DoorStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

// IsTarget reports whether s can be commanded. Devices only accept open or closed.
func (s DoorState) IsTarget() bool {
	return s == DoorOpen || s == DoorClosed
}

// MarshalText implements encoding.TextMarshaler so JSON payloads carry names.
func (s DoorState) MarshalText() ([]byte, error) {
	return []byte(strings.ToLower(s.String())), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *DoorState) UnmarshalText(text []byte) error {
	parsed, err := ParseDoorState(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseDoorState maps a device or API token onto a DoorState.
//
// Matching is case-insensitive and ignores surrounding whitespace. The
// transitional "stopped" variants and "unknown" collapse to DoorStopped.
//
// Returns:
//   - DoorState: Decoded state
//   - error: *UnrecognizedStateError for any other token
func ParseDoorState(raw string) (DoorState, error) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "OPEN":
		return DoorOpen, nil
	case "CLOSED":
		return DoorClosed, nil
	case "OPENING":
		return DoorOpening, nil
	case "CLOSING":
		return DoorClosing, nil
	case "UNKNOWN", "STOPPED", "STOPPED-OPENING", "STOPPED-CLOSING":
		return DoorStopped, nil
	default:
		return DoorStopped, &UnrecognizedStateError{Value: raw}
	}
}

// LightString renders a light state the way logs expect it.
func LightString(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}

// Axis names one of the two door state axes.
type Axis int

const (
	AxisCurrent Axis = iota
	AxisTarget
)

func (a Axis) String() string {
	if a == AxisTarget {
		return "target"
	}
	return "current"
}

// DoorSnapshot is a consistent copy of the door machine state.
type DoorSnapshot struct {
	Current             DoorState `json:"current"`
	Target              DoorState `json:"target"`
	CurrentSetAt        time.Time `json:"current_set_at"`
	TargetSetAt         time.Time `json:"target_set_at"`
	ObstructionDetected bool      `json:"obstruction_detected"`
}

// LightSnapshot is a consistent copy of the light machine state.
type LightSnapshot struct {
	On    bool      `json:"on"`
	SetAt time.Time `json:"set_at"`
}

func (s DoorSnapshot) String() string {
	return fmt.Sprintf("current=%s target=%s obstructed=%t", s.Current, s.Target, s.ObstructionDetected)
}
