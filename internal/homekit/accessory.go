package homekit

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/brutella/hap/accessory"

	"github.com/nerrad567/gray-logic-garage/internal/garage"
)

// Accessory information reported to HomeKit controllers.
const (
	Manufacturer = "(c) 2017 Warren Ashcroft"
	Model        = "HttpGarageDoorController"
)

// statusCommunicationFailure is the HAP status for a failed device read or write.
const statusCommunicationFailure = -70402

// operateTimeout bounds queueing plus the device call for a HomeKit write.
const operateTimeout = 30 * time.Second

// Controller is the accessory contract the HomeKit adapter drives.
// *garage.Controller implements it.
type Controller interface {
	Name() string
	LightName() string
	HasLight() bool
	DoorCurrentState() (garage.DoorState, error)
	DoorObstructionDetected() (bool, error)
	DoorTargetState() garage.DoorState
	LightCurrentState() (bool, error)
	OperateDoor(ctx context.Context, target garage.DoorState) error
	OperateLight(ctx context.Context, on bool) error
}

// Logger interface for optional logging.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Accessories holds the garage door opener and the optional lightbulb.
//
// It implements garage.Notifier: controller pushes are copied into the
// characteristics, and remote writes from iOS are forwarded to the
// controller. A failed write or a stale read answers with a HAP
// communication failure so the Home app shows "No Response".
type Accessories struct {
	ctrl   Controller
	logger Logger

	door  *accessory.GarageDoorOpener
	light *accessory.Lightbulb

	// stale records which characteristics last read stale, so an outage
	// logs once on entry and once on recovery.
	staleMu sync.Mutex
	stale   map[string]bool
}

var _ garage.Notifier = (*Accessories)(nil)

// NewAccessories builds the HAP accessories for ctrl. Subscribe the result
// to the controller before starting it so the initial state is pushed.
func NewAccessories(ctrl Controller, serial, firmware string, logger Logger) *Accessories {
	a := &Accessories{ctrl: ctrl, logger: logger, stale: make(map[string]bool)}

	a.door = accessory.NewGarageDoorOpener(accessory.Info{
		Name:         ctrl.Name(),
		SerialNumber: serial,
		Manufacturer: Manufacturer,
		Model:        Model,
		Firmware:     firmware,
	})

	opener := a.door.GarageDoorOpener
	opener.TargetDoorState.OnSetRemoteValue(a.setTargetDoor)
	opener.CurrentDoorState.ValueRequestFunc = func(*http.Request) (interface{}, int) {
		state, err := ctrl.DoorCurrentState()
		return int(state), a.readStatus("current door state", err)
	}
	opener.ObstructionDetected.ValueRequestFunc = func(*http.Request) (interface{}, int) {
		obstructed, err := ctrl.DoorObstructionDetected()
		return obstructed, a.readStatus("obstruction", err)
	}

	if ctrl.HasLight() {
		a.light = accessory.NewLightbulb(accessory.Info{
			Name:         ctrl.LightName(),
			SerialNumber: serial + "-light",
			Manufacturer: Manufacturer,
			Model:        Model,
			Firmware:     firmware,
		})
		a.light.Lightbulb.On.OnSetRemoteValue(a.setLight)
		a.light.Lightbulb.On.ValueRequestFunc = func(*http.Request) (interface{}, int) {
			on, err := ctrl.LightCurrentState()
			return on, a.readStatus("light state", err)
		}
	}

	return a
}

// List returns the accessories to publish, door first.
func (a *Accessories) List() []*accessory.A {
	list := []*accessory.A{a.door.A}
	if a.light != nil {
		list = append(list, a.light.A)
	}
	return list
}

func (a *Accessories) setTargetDoor(v int) error {
	target := garage.DoorState(v)
	if !target.IsTarget() {
		return fmt.Errorf("target door state %d out of range", v)
	}

	ctx, cancel := context.WithTimeout(context.Background(), operateTimeout)
	defer cancel()

	if err := a.ctrl.OperateDoor(ctx, target); err != nil {
		a.logWarn("homekit door command failed", "target", target.String(), "error", err)
		return err
	}
	return nil
}

func (a *Accessories) setLight(on bool) error {
	ctx, cancel := context.WithTimeout(context.Background(), operateTimeout)
	defer cancel()

	if err := a.ctrl.OperateLight(ctx, on); err != nil {
		a.logWarn("homekit light command failed", "on", on, "error", err)
		return err
	}
	return nil
}

func (a *Accessories) readStatus(what string, err error) int {
	a.trackStale(what, garage.IsStale(err), err)
	if err == nil {
		return 0
	}
	return statusCommunicationFailure
}

// trackStale logs transitions into and out of the stale state for one
// characteristic.
func (a *Accessories) trackStale(what string, stale bool, err error) {
	a.staleMu.Lock()
	was := a.stale[what]
	a.stale[what] = stale
	a.staleMu.Unlock()

	if a.logger == nil || was == stale {
		return
	}
	if stale {
		a.logger.Warn("homekit reads of stale state, answering no response", "characteristic", what, "error", err)
	} else {
		a.logger.Info("homekit state fresh again", "characteristic", what)
	}
}

func (a *Accessories) DoorCurrentStateChanged(state garage.DoorState) {
	a.door.GarageDoorOpener.CurrentDoorState.SetValue(int(state))
}

func (a *Accessories) DoorTargetStateChanged(state garage.DoorState) {
	a.door.GarageDoorOpener.TargetDoorState.SetValue(int(state))
}

func (a *Accessories) ObstructionDetectedChanged(obstructed bool) {
	a.door.GarageDoorOpener.ObstructionDetected.SetValue(obstructed)
}

func (a *Accessories) LightStateChanged(on bool) {
	if a.light != nil {
		a.light.Lightbulb.On.SetValue(on)
	}
}

func (a *Accessories) logWarn(msg string, args ...any) {
	if a.logger != nil {
		a.logger.Warn(msg, args...)
	}
}
