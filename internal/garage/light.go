package garage

import "sync"

// LightMachine owns the light on/off state.
type LightMachine struct {
	name     string
	notifier Notifier
	clock    Clock
	logger   Logger

	setMu sync.Mutex

	mu    sync.RWMutex
	state LightSnapshot
}

// NewLightMachine creates a machine with the light off.
// Call Initialize to push the initial state.
func NewLightMachine(name string, notifier Notifier, clock Clock, logger Logger) *LightMachine {
	if clock == nil {
		clock = SystemClock{}
	}
	if logger == nil {
		logger = noopLogger{}
	}
	return &LightMachine{
		name:     name,
		notifier: notifier,
		clock:    clock,
		logger:   logger,
		state:    LightSnapshot{SetAt: clock.Now()},
	}
}

// Initialize pushes the current state unconditionally.
func (m *LightMachine) Initialize() {
	m.SetState(m.On(), true)
}

// SetState records the light state. Unchanged values only refresh the
// timestamp unless initial is set.
func (m *LightMachine) SetState(on, initial bool) {
	m.setMu.Lock()
	defer m.setMu.Unlock()

	now := m.clock.Now()

	m.mu.Lock()
	m.state.SetAt = now
	if m.state.On == on && !initial {
		m.mu.Unlock()
		return
	}
	m.state.On = on
	m.mu.Unlock()

	label := "NEW"
	if initial {
		label = "INITIAL"
	}
	m.logger.Info(label+" light state", "light", m.name, "state", LightString(on))

	if m.notifier != nil {
		m.notifier.LightStateChanged(on)
	}
}

// On returns the current light state.
func (m *LightMachine) On() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.On
}

// Snapshot returns a consistent copy of the state.
func (m *LightMachine) Snapshot() LightSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}
