package garage

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"
)

// =============================================================================
// Recording Notifier
// =============================================================================

type pushEvent struct {
	kind  string
	value any
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []pushEvent
}

func (r *recordingNotifier) record(kind string, value any) {
	r.mu.Lock()
	r.events = append(r.events, pushEvent{kind: kind, value: value})
	r.mu.Unlock()
}

func (r *recordingNotifier) DoorCurrentStateChanged(state DoorState) { r.record("current", state) }
func (r *recordingNotifier) DoorTargetStateChanged(state DoorState)  { r.record("target", state) }
func (r *recordingNotifier) ObstructionDetectedChanged(o bool)       { r.record("obstruction", o) }
func (r *recordingNotifier) LightStateChanged(on bool)               { r.record("light", on) }

func (r *recordingNotifier) all() []pushEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]pushEvent(nil), r.events...)
}

func (r *recordingNotifier) count(kind string) int {
	n := 0
	for _, e := range r.all() {
		if e.kind == kind {
			n++
		}
	}
	return n
}

func (r *recordingNotifier) last(kind string) (any, bool) {
	events := r.all()
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].kind == kind {
			return events[i].value, true
		}
	}
	return nil, false
}

func (r *recordingNotifier) reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}

// =============================================================================
// Fake Clock
// =============================================================================

type fakeTimer struct {
	clock   *fakeClock
	at      time.Time
	fn      func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	wasActive := !t.stopped && !t.fired
	t.stopped = true
	return wasActive
}

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 18, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Stopper {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now.Add(d), fn: f}
	c.timers = append(c.timers, t)
	return t
}

// Advance moves time forward and runs due timers in deadline order.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired && !t.at.After(c.now) {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()

	sort.Slice(due, func(i, j int) bool { return due[i].at.Before(due[j].at) })
	for _, t := range due {
		t.fn()
	}
}

func (c *fakeClock) pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

// =============================================================================
// Scripted Executor
// =============================================================================

type scriptedReply struct {
	status int
	body   string
	err    error
}

// scriptedExecutor answers per endpoint name and records every call.
type scriptedExecutor struct {
	mu      sync.Mutex
	replies map[string]scriptedReply
	calls   []string
}

func newScriptedExecutor() *scriptedExecutor {
	return &scriptedExecutor{replies: make(map[string]scriptedReply)}
}

func (e *scriptedExecutor) reply(endpoint string, status int, body string) {
	e.mu.Lock()
	e.replies[endpoint] = scriptedReply{status: status, body: body}
	e.mu.Unlock()
}

func (e *scriptedExecutor) fail(endpoint string, err error) {
	e.mu.Lock()
	e.replies[endpoint] = scriptedReply{err: err}
	e.mu.Unlock()
}

func (e *scriptedExecutor) Execute(_ context.Context, ep Endpoint) (int, []byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, ep.Name)
	r, ok := e.replies[ep.Name]
	if !ok {
		return http.StatusNotFound, nil, &UnexpectedStatusError{Endpoint: ep.Name, Status: http.StatusNotFound}
	}
	if r.err != nil {
		return 0, nil, r.err
	}
	return r.status, []byte(r.body), nil
}

func (e *scriptedExecutor) callCount(endpoint string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, c := range e.calls {
		if c == endpoint {
			n++
		}
	}
	return n
}

func (e *scriptedExecutor) totalCalls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.calls)
}

// =============================================================================
// Setup Builders
// =============================================================================

// jsonDualSetup is a structured profile whose door and light share /status.
func jsonDualSetup() *Setup {
	door := queryEndpoint("door_state", http.MethodGet, "/status", "door-state")
	light := queryEndpoint("light_state", http.MethodGet, "/status", "light-state")
	return &Setup{
		Name:         "Garage Door",
		LightName:    "Garage Light",
		PollInterval: 4 * time.Second,
		Profile: &Profile{
			Kind:            ProfileJSON,
			Structured:      true,
			DoorOpen:        commandEndpoint("door_open", http.MethodPut, "/door/open", "success"),
			DoorClose:       commandEndpoint("door_close", http.MethodPut, "/door/close", "success"),
			DoorState:       door,
			LightOn:         commandEndpoint("light_on", http.MethodPut, "/light/on", "success"),
			LightOff:        commandEndpoint("light_off", http.MethodPut, "/light/off", "success"),
			LightState:      light,
			DoorStateField:  "door-state",
			LightStateField: "light-state",
		},
	}
}

// genericOpenLoopSetup is an unstructured profile with no state endpoints.
func genericOpenLoopSetup() *Setup {
	return &Setup{
		Name:          "Garage Door",
		PollInterval:  4 * time.Second,
		DoorOperation: 15 * time.Second,
		Profile: &Profile{
			Kind:       ProfileGeneric,
			DoorOpen:   &Endpoint{Name: "door_open", Method: http.MethodPost, URL: "/open", SuccessBodyContains: "OK"},
			DoorClose:  &Endpoint{Name: "door_close", Method: http.MethodPost, URL: "/close", SuccessBodyContains: "OK"},
			Structured: false,
		},
	}
}

func newTestController(setup *Setup, exec Executor, clock Clock) (*Controller, *recordingNotifier) {
	ctrl, err := NewController(ControllerOptions{Setup: setup, Executor: exec, Clock: clock})
	if err != nil {
		panic(err)
	}
	rec := &recordingNotifier{}
	ctrl.Subscribe(rec)
	return ctrl, rec
}
