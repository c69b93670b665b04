package garage

import "sync"

// DoorMachine owns the current and target door state.
//
// Every mutation goes through reconcile, which updates the originating axis
// and then applies the inferred value to the other axis once. Inference
// never recurses: an inferred update does not itself infer.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - Notifications are delivered in emission order, outside the state lock,
//     so notifiers may read the machine but must not mutate it.
type DoorMachine struct {
	name     string
	notifier Notifier
	clock    Clock
	logger   Logger

	// reconcileMu serialises whole reconciliations including their pushes.
	reconcileMu sync.Mutex

	mu    sync.RWMutex
	state DoorSnapshot
}

// NewDoorMachine creates a machine in CLOSED/CLOSED.
// Call Initialize to push the initial state to the notifier.
func NewDoorMachine(name string, notifier Notifier, clock Clock, logger Logger) *DoorMachine {
	if clock == nil {
		clock = SystemClock{}
	}
	if logger == nil {
		logger = noopLogger{}
	}
	now := clock.Now()
	return &DoorMachine{
		name:     name,
		notifier: notifier,
		clock:    clock,
		logger:   logger,
		state: DoorSnapshot{
			Current:      DoorClosed,
			Target:       DoorClosed,
			CurrentSetAt: now,
			TargetSetAt:  now,
		},
	}
}

// Initialize pushes the current state (and the target it infers) unconditionally.
func (m *DoorMachine) Initialize() {
	m.reconcile(AxisCurrent, m.Current(), true)
}

// SetCurrent records an observed door position.
//
// OPEN and OPENING infer target OPEN; CLOSED and CLOSING infer target CLOSED;
// STOPPED leaves the target alone. Unchanged values only refresh the
// timestamp unless initial is set.
func (m *DoorMachine) SetCurrent(state DoorState, initial bool) {
	m.reconcile(AxisCurrent, state, initial)
}

// SetTarget records a requested door position.
//
// Target OPEN infers current OPENING and target CLOSED infers CLOSING.
// Only OPEN and CLOSED are valid targets.
func (m *DoorMachine) SetTarget(state DoorState, initial bool) {
	if !state.IsTarget() {
		m.logger.Warn("ignoring invalid door target state", "door", m.name, "state", state.String())
		return
	}
	m.reconcile(AxisTarget, state, initial)
}

// Current returns the current door state.
func (m *DoorMachine) Current() DoorState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.Current
}

// Target returns the target door state.
func (m *DoorMachine) Target() DoorState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.Target
}

// Obstructed reports whether the door is stopped mid-travel.
func (m *DoorMachine) Obstructed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.ObstructionDetected
}

// Snapshot returns a consistent copy of the full state.
func (m *DoorMachine) Snapshot() DoorSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// reconcile is the single mutation entry point.
func (m *DoorMachine) reconcile(origin Axis, state DoorState, initial bool) {
	m.reconcileMu.Lock()
	defer m.reconcileMu.Unlock()

	var pushes []func()

	changed, pushes := m.apply(origin, state, initial, pushes)
	if changed {
		var inferred DoorState
		var ok bool
		if origin == AxisCurrent {
			inferred, ok = inferTarget(state)
		} else {
			inferred, ok = inferCurrent(state)
		}
		if ok {
			_, pushes = m.apply(otherAxis(origin), inferred, initial, pushes)
		}
	}

	for _, push := range pushes {
		push()
	}
}

// apply updates one axis and queues its notifications. It never infers.
func (m *DoorMachine) apply(axis Axis, state DoorState, initial bool, pushes []func()) (bool, []func()) {
	now := m.clock.Now()

	m.mu.Lock()
	if axis == AxisCurrent {
		m.state.CurrentSetAt = now
		if m.state.Current == state && !initial {
			m.mu.Unlock()
			return false, pushes
		}
		m.state.Current = state
		m.state.ObstructionDetected = state == DoorStopped
	} else {
		m.state.TargetSetAt = now
		if m.state.Target == state && !initial {
			m.mu.Unlock()
			return false, pushes
		}
		m.state.Target = state
	}
	obstructed := m.state.ObstructionDetected
	m.mu.Unlock()

	label := "NEW"
	if initial {
		label = "INITIAL"
	}

	if axis == AxisCurrent {
		m.logger.Info(label+" door state", "door", m.name, "state", state.String())
		if m.notifier != nil {
			pushes = append(pushes,
				func() { m.notifier.DoorCurrentStateChanged(state) },
				func() { m.notifier.ObstructionDetectedChanged(obstructed) },
			)
		}
	} else {
		m.logger.Info(label+" door target state", "door", m.name, "state", state.String())
		if m.notifier != nil {
			pushes = append(pushes, func() { m.notifier.DoorTargetStateChanged(state) })
		}
	}

	return true, pushes
}

// inferTarget derives the target implied by an observed position.
func inferTarget(current DoorState) (DoorState, bool) {
	switch current {
	case DoorOpen, DoorOpening:
		return DoorOpen, true
	case DoorClosed, DoorClosing:
		return DoorClosed, true
	default:
		return current, false
	}
}

// inferCurrent derives the motion implied by a new target.
func inferCurrent(target DoorState) (DoorState, bool) {
	switch target {
	case DoorOpen:
		return DoorOpening, true
	case DoorClosed:
		return DoorClosing, true
	default:
		return target, false
	}
}

func otherAxis(a Axis) Axis {
	if a == AxisCurrent {
		return AxisTarget
	}
	return AxisCurrent
}
