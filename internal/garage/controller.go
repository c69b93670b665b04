package garage

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ControllerOptions holds the collaborators for NewController.
type ControllerOptions struct {
	// Setup is the validated device configuration. Required.
	Setup *Setup

	// Executor performs device requests, normally a *Gate. Required.
	Executor Executor

	// Clock defaults to the wall clock.
	Clock Clock

	// Logger defaults to a no-op logger.
	Logger Logger

	// PollObserver is told about failed poll queries. Optional.
	PollObserver PollObserver
}

// Controller wires the gate, state machines and poller together and serves
// the accessory contract consumed by HomeKit, MQTT and the REST API.
//
// Lifecycle:
//
//	ctrl, _ := garage.NewController(opts)
//	ctrl.Subscribe(adapter)     // before Start so the initial push is seen
//	ctrl.Start(ctx)
//	defer ctrl.Stop()
type Controller struct {
	setup   *Setup
	profile *Profile
	exec    Executor
	clock   Clock
	logger  Logger

	notifiers *Notifiers
	door      *DoorMachine
	light     *LightMachine
	poller    *Poller

	// Command mutexes make check-then-request atomic per accessory.
	doorCmdMu  sync.Mutex
	lightCmdMu sync.Mutex

	openLoopMu sync.Mutex
	openLoop   Stopper

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once
}

// NewController builds a controller from a validated setup.
//
// Returns:
//   - *Controller: Ready to Subscribe and Start
//   - error: If required options are missing
func NewController(opts ControllerOptions) (*Controller, error) {
	if opts.Setup == nil || opts.Setup.Profile == nil {
		return nil, fmt.Errorf("%w: setup is required", ErrConfiguration)
	}
	if opts.Executor == nil {
		return nil, fmt.Errorf("%w: executor is required", ErrConfiguration)
	}
	if opts.Clock == nil {
		opts.Clock = SystemClock{}
	}
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}

	c := &Controller{
		setup:     opts.Setup,
		profile:   opts.Setup.Profile,
		exec:      opts.Executor,
		clock:     opts.Clock,
		logger:    opts.Logger,
		notifiers: &Notifiers{},
	}

	c.door = NewDoorMachine(opts.Setup.Name, c.notifiers, opts.Clock, opts.Logger)
	if c.profile.HasLight() {
		c.light = NewLightMachine(opts.Setup.LightName, c.notifiers, opts.Clock, opts.Logger)
	}

	c.poller = &Poller{
		exec:     opts.Executor,
		profile:  c.profile,
		door:     c.door,
		light:    c.light,
		interval: opts.Setup.PollInterval,
		logger:   opts.Logger,
		observer: opts.PollObserver,
	}

	return c, nil
}

// Subscribe registers an adapter for state pushes.
func (c *Controller) Subscribe(n Notifier) {
	c.notifiers.Add(n)
}

// Start pushes the initial state and, when the device exposes any state
// endpoint, starts polling.
func (c *Controller) Start(ctx context.Context) error {
	c.startOnce.Do(func() {
		c.door.Initialize()
		if c.light != nil {
			c.light.Initialize()
		}

		if !c.profile.HasStates() {
			c.logger.Info("no state endpoints configured, running open-loop",
				"door_operation", c.setup.DoorOperation)
			return
		}

		pollCtx, cancel := context.WithCancel(ctx)
		c.cancel = cancel
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			c.poller.Run(pollCtx)
		}()

		c.logger.Info("state polling started", "interval", c.setup.PollInterval)
	})
	return nil
}

// Stop halts polling and any pending open-loop completion.
func (c *Controller) Stop() {
	c.stopOnce.Do(func() {
		if c.cancel != nil {
			c.cancel()
		}
		c.wg.Wait()

		c.openLoopMu.Lock()
		if c.openLoop != nil {
			c.openLoop.Stop()
			c.openLoop = nil
		}
		c.openLoopMu.Unlock()
	})
}

// Name returns the door accessory name.
func (c *Controller) Name() string { return c.setup.Name }

// LightName returns the light accessory name, empty without a light.
func (c *Controller) LightName() string { return c.setup.LightName }

// HasLight reports whether the light sub-accessory exists.
func (c *Controller) HasLight() bool { return c.light != nil }

// Profile returns the immutable device profile.
func (c *Controller) Profile() *Profile { return c.profile }

// DoorSnapshot returns the full door state without staleness checks.
func (c *Controller) DoorSnapshot() DoorSnapshot { return c.door.Snapshot() }

// LightSnapshot returns the light state; zero without a light.
func (c *Controller) LightSnapshot() LightSnapshot {
	if c.light == nil {
		return LightSnapshot{}
	}
	return c.light.Snapshot()
}

// Refresh runs one poll round out of band. Errors are logged by the poller.
func (c *Controller) Refresh(ctx context.Context) {
	if c.profile.HasStates() {
		c.poller.Tick(ctx, false)
	}
}

// DoorCurrentState returns the current door state.
//
// Returns:
//   - DoorState: The last known state, always set
//   - error: *StalenessError when the door is polled and the last
//     observation is older than the staleness window
func (c *Controller) DoorCurrentState() (DoorState, error) {
	snap := c.door.Snapshot()
	return snap.Current, c.doorStaleness(snap)
}

// DoorObstructionDetected returns whether the door is stopped mid-travel,
// with the same staleness rule as DoorCurrentState.
func (c *Controller) DoorObstructionDetected() (bool, error) {
	snap := c.door.Snapshot()
	return snap.ObstructionDetected, c.doorStaleness(snap)
}

// DoorTargetState returns the target door state. It is never stale.
func (c *Controller) DoorTargetState() DoorState {
	return c.door.Target()
}

// LightCurrentState returns the light state.
//
// Returns:
//   - bool: The last known state
//   - error: ErrNoLight without a light, or *StalenessError
func (c *Controller) LightCurrentState() (bool, error) {
	if c.light == nil {
		return false, ErrNoLight
	}
	snap := c.light.Snapshot()
	if c.profile.HasLightState() && c.clock.Now().Sub(snap.SetAt) >= c.setup.StalenessWindow() {
		return snap.On, &StalenessError{Subject: c.setup.LightName, LastKnown: LightString(snap.On), Since: snap.SetAt}
	}
	return snap.On, nil
}

func (c *Controller) doorStaleness(snap DoorSnapshot) error {
	if !c.profile.HasDoorState() {
		return nil
	}
	if c.clock.Now().Sub(snap.CurrentSetAt) < c.setup.StalenessWindow() {
		return nil
	}
	return &StalenessError{Subject: c.setup.Name, LastKnown: snap.Current.String(), Since: snap.CurrentSetAt}
}

// OperateDoor commands the door towards target (OPEN or CLOSED).
//
// A request equal to the current target succeeds without a device call.
// On success the target is updated; without a door state endpoint the
// current state follows the target after the configured operation time.
// Failures leave the state untouched and are returned as-is.
func (c *Controller) OperateDoor(ctx context.Context, target DoorState) error {
	if !target.IsTarget() {
		return fmt.Errorf("%w: door target must be OPEN or CLOSED, got %s", ErrUnrecognizedState, target)
	}

	c.doorCmdMu.Lock()
	defer c.doorCmdMu.Unlock()

	snap := c.door.Snapshot()
	if snap.Target == target {
		return nil
	}

	c.logger.Info("operating door",
		"door", c.setup.Name,
		"requested", target.String(),
		"current", snap.Current.String(),
		"target", snap.Target.String(),
	)

	ep := c.profile.DoorClose
	if target == DoorOpen {
		ep = c.profile.DoorOpen
	}

	if _, err := perform(ctx, c.exec, *ep, c.profile.Structured); err != nil {
		c.logger.Error("door command failed", "door", c.setup.Name, "requested", target.String(), "error", err)
		return err
	}

	c.door.SetTarget(target, false)

	if !c.profile.HasDoorState() {
		c.scheduleOpenLoop()
	}
	return nil
}

// scheduleOpenLoop completes the door movement after the operation time.
// A newer command replaces any pending completion.
func (c *Controller) scheduleOpenLoop() {
	c.openLoopMu.Lock()
	defer c.openLoopMu.Unlock()

	if c.openLoop != nil {
		c.openLoop.Stop()
	}
	c.openLoop = c.clock.AfterFunc(c.setup.DoorOperation, func() {
		c.door.SetCurrent(c.door.Target(), false)
	})
}

// OperateLight switches the light.
//
// A request equal to the current state succeeds without a device call.
func (c *Controller) OperateLight(ctx context.Context, on bool) error {
	if c.light == nil {
		return ErrNoLight
	}

	c.lightCmdMu.Lock()
	defer c.lightCmdMu.Unlock()

	current := c.light.On()
	if current == on {
		return nil
	}

	c.logger.Info("operating light",
		"light", c.setup.LightName,
		"requested", LightString(on),
		"current", LightString(current),
	)

	ep := c.profile.LightOff
	if on {
		ep = c.profile.LightOn
	}

	if _, err := perform(ctx, c.exec, *ep, c.profile.Structured); err != nil {
		c.logger.Error("light command failed", "light", c.setup.LightName, "requested", LightString(on), "error", err)
		return err
	}

	c.light.SetState(on, false)
	return nil
}

// IsStale reports whether err is a staleness error.
func IsStale(err error) bool {
	return errors.Is(err, ErrStale)
}
