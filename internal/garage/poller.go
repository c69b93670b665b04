package garage

import (
	"context"
	"time"
)

// Poll axes used in logs and metrics.
const (
	PollAxisDoor  = "door"
	PollAxisLight = "light"
)

// PollObserver is told about failed poll queries.
type PollObserver interface {
	PollFailed(axis string, err error)
}

// Poller queries the device on a timer and feeds the state machines.
//
// The first tick runs immediately; each following tick is scheduled one
// interval after the previous tick finished, so ticks never overlap. Queries
// go through the same gate as commands.
type Poller struct {
	exec     Executor
	profile  *Profile
	door     *DoorMachine
	light    *LightMachine
	interval time.Duration
	logger   Logger
	observer PollObserver
}

// Run polls until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	timer := time.NewTimer(0)
	defer timer.Stop()

	initial := true
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		p.Tick(ctx, initial)
		initial = false

		timer.Reset(p.interval)
	}
}

// Tick performs one round of state queries. Errors are logged and never
// returned; the next tick simply tries again.
func (p *Poller) Tick(ctx context.Context, initial bool) {
	if p.profile.HasDoorState() {
		p.pollDoor(ctx, initial)
	}

	// A dual-state response already carried the light.
	if p.light != nil && p.profile.HasLightState() && !p.profile.HasDualState() {
		p.pollLight(ctx, initial)
	}
}

func (p *Poller) pollDoor(ctx context.Context, initial bool) {
	resp, err := perform(ctx, p.exec, *p.profile.DoorState, p.profile.Structured)
	if err == nil {
		var state DoorState
		state, err = DecodeDoorState(resp, p.profile.DoorStateField, p.profile.Structured)
		if err == nil {
			p.door.SetCurrent(state, initial)
			p.dualLight(resp, initial)
			return
		}
	}
	p.failed(ctx, PollAxisDoor, err)
}

// dualLight applies the light field carried by a combined door response.
func (p *Poller) dualLight(resp Response, initial bool) {
	if p.light == nil || !p.profile.HasDualState() {
		return
	}
	if _, ok := resp.Lookup(p.profile.LightStateField); !ok {
		return
	}
	p.light.SetState(DecodeLightState(resp, p.profile.LightStateField, true), initial)
}

func (p *Poller) pollLight(ctx context.Context, initial bool) {
	resp, err := perform(ctx, p.exec, *p.profile.LightState, p.profile.Structured)
	if err != nil {
		p.failed(ctx, PollAxisLight, err)
		return
	}
	p.light.SetState(DecodeLightState(resp, p.profile.LightStateField, p.profile.Structured), initial)
}

func (p *Poller) failed(ctx context.Context, axis string, err error) {
	if ctx.Err() != nil {
		// Shutting down; the abandoned query is not a device fault.
		return
	}
	p.logger.Error("state poll failed", "axis", axis, "error", err)
	if p.observer != nil {
		p.observer.PollFailed(axis, err)
	}
}

// perform executes ep through the gate and validates the response.
func perform(ctx context.Context, exec Executor, ep Endpoint, structured bool) (Response, error) {
	_, body, err := exec.Execute(ctx, ep)
	if err != nil {
		return Response{}, err
	}
	return Validate(body, ep, structured)
}
