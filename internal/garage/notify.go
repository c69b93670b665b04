package garage

import "sync"

// Logger is the logging surface the garage package needs.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Notifier receives state pushes from the state machines.
// Calls are fire and forget and must not call back into the machine setters.
type Notifier interface {
	DoorCurrentStateChanged(state DoorState)
	DoorTargetStateChanged(state DoorState)
	ObstructionDetectedChanged(obstructed bool)
	LightStateChanged(on bool)
}

// Notifiers fans every push out to the registered adapters in registration order.
type Notifiers struct {
	mu   sync.RWMutex
	list []Notifier
}

// Add registers an adapter.
func (n *Notifiers) Add(notifier Notifier) {
	n.mu.Lock()
	n.list = append(n.list, notifier)
	n.mu.Unlock()
}

func (n *Notifiers) snapshot() []Notifier {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return append([]Notifier(nil), n.list...)
}

func (n *Notifiers) DoorCurrentStateChanged(state DoorState) {
	for _, l := range n.snapshot() {
		l.DoorCurrentStateChanged(state)
	}
}

func (n *Notifiers) DoorTargetStateChanged(state DoorState) {
	for _, l := range n.snapshot() {
		l.DoorTargetStateChanged(state)
	}
}

func (n *Notifiers) ObstructionDetectedChanged(obstructed bool) {
	for _, l := range n.snapshot() {
		l.ObstructionDetectedChanged(obstructed)
	}
}

func (n *Notifiers) LightStateChanged(on bool) {
	for _, l := range n.snapshot() {
		l.LightStateChanged(on)
	}
}
