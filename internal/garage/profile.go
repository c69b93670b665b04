package garage

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/nerrad567/gray-logic-garage/internal/infrastructure/config"
)

// Profile kinds.
const (
	ProfileVendor  = "vendor"
	ProfileJSON    = "json"
	ProfileGeneric = "generic"
)

// Vendor firmware constants for the HttpGarageDoorController profile.
const (
	vendorSuccessField    = "success"
	vendorDoorStateField  = "door-state"
	vendorLightStateField = "light-state"
	vendorStateURL        = "/controller"
)

// Endpoint is one operation against the device. Immutable once built.
type Endpoint struct {
	// Name labels the operation in logs and metrics (door_open, light_state, ...).
	Name   string
	Method string
	URL    string

	// SuccessField must be present in a structured response.
	SuccessField string

	// SuccessValue, when non-nil, must equal the SuccessField value.
	SuccessValue any

	// SuccessBodyContains must appear in an unstructured response.
	SuccessBodyContains string
}

// Same reports whether two endpoints address the same device resource.
func (e *Endpoint) Same(other *Endpoint) bool {
	if e == nil || other == nil {
		return false
	}
	return e.Method == other.Method && e.URL == other.URL
}

// Profile is the named bundle of endpoints the adapter talks to.
// Absent endpoints are nil.
type Profile struct {
	Kind       string
	Structured bool

	DoorOpen  *Endpoint
	DoorClose *Endpoint
	DoorState *Endpoint

	LightOn    *Endpoint
	LightOff   *Endpoint
	LightState *Endpoint

	DoorStateField  string
	LightStateField string
}

// HasDoorState reports whether the door position can be queried.
func (p *Profile) HasDoorState() bool { return p.DoorState != nil }

// HasLightState reports whether the light can be queried.
func (p *Profile) HasLightState() bool { return p.LightState != nil }

// HasStates reports whether anything needs polling.
func (p *Profile) HasStates() bool { return p.HasDoorState() || p.HasLightState() }

// HasLight reports whether the light sub-accessory is configured.
func (p *Profile) HasLight() bool { return p.LightOn != nil && p.LightOff != nil }

// HasDualState reports whether one structured response carries both door and light.
func (p *Profile) HasDualState() bool {
	return p.Structured && p.DoorState.Same(p.LightState)
}

// parseProfileKind accepts both the short kinds and the historical names.
func parseProfileKind(raw string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case ProfileVendor, "httpgaragedoorcontroller":
		return ProfileVendor, true
	case ProfileJSON:
		return ProfileJSON, true
	case ProfileGeneric:
		return ProfileGeneric, true
	default:
		return "", false
	}
}

// vendorProfile returns the fixed endpoint set of the vendor firmware.
func vendorProfile(withLight bool) *Profile {
	p := &Profile{
		Kind:            ProfileVendor,
		Structured:      true,
		DoorOpen:        commandEndpoint("door_open", http.MethodPut, "/controller/door/open", vendorSuccessField),
		DoorClose:       commandEndpoint("door_close", http.MethodPut, "/controller/door/close", vendorSuccessField),
		DoorState:       queryEndpoint("door_state", http.MethodGet, vendorStateURL, vendorDoorStateField),
		DoorStateField:  vendorDoorStateField,
		LightStateField: vendorLightStateField,
	}
	if withLight {
		p.LightOn = commandEndpoint("light_on", http.MethodPut, "/controller/light/on", vendorSuccessField)
		p.LightOff = commandEndpoint("light_off", http.MethodPut, "/controller/light/off", vendorSuccessField)
		p.LightState = queryEndpoint("light_state", http.MethodGet, vendorStateURL, vendorLightStateField)
	}
	return p
}

// commandEndpoint builds a structured command whose success field must be true.
func commandEndpoint(name, method, url, successField string) *Endpoint {
	ep := &Endpoint{Name: name, Method: method, URL: url, SuccessField: successField}
	if successField != "" {
		ep.SuccessValue = true
	}
	return ep
}

// queryEndpoint builds a state query that requires its state field to be present.
func queryEndpoint(name, method, url, stateField string) *Endpoint {
	return &Endpoint{Name: name, Method: method, URL: url, SuccessField: stateField}
}

// profileBuilder accumulates problems while converting configuration.
type profileBuilder struct {
	problems []string
}

func (b *profileBuilder) addf(format string, args ...any) {
	b.problems = append(b.problems, fmt.Sprintf(format, args...))
}

// method validates and normalises an HTTP method.
func (b *profileBuilder) method(key, raw string) string {
	m := strings.ToUpper(strings.TrimSpace(raw))
	switch m {
	case http.MethodGet, http.MethodPost, http.MethodPut:
		return m
	default:
		b.addf("%s must be GET, POST or PUT", key)
		return ""
	}
}

// endpoint validates a required endpoint.
func (b *profileBuilder) endpoint(key, name string, ep config.EndpointConfig) *Endpoint {
	method := b.method(key+".method", ep.Method)
	if ep.URL == "" {
		b.addf("%s.url is required", key)
	}
	return &Endpoint{Name: name, Method: method, URL: ep.URL}
}

// optionalEndpoint validates an endpoint that may be absent (no URL).
func (b *profileBuilder) optionalEndpoint(key, name string, ep config.EndpointConfig) *Endpoint {
	if ep.URL == "" {
		return nil
	}
	return &Endpoint{Name: name, Method: b.method(key+".method", ep.Method), URL: ep.URL}
}

// configuredProfile builds the json or generic profile from configuration.
func (b *profileBuilder) configuredProfile(kind string, cfg config.GarageConfig) *Profile {
	api := cfg.API
	p := &Profile{
		Kind:       kind,
		Structured: kind == ProfileJSON,
		DoorOpen:   b.endpoint("garage.api.door.open", "door_open", api.Door.Open),
		DoorClose:  b.endpoint("garage.api.door.close", "door_close", api.Door.Close),
		DoorState:  b.optionalEndpoint("garage.api.door.state", "door_state", api.Door.State),
	}

	if cfg.LightName != "" {
		p.LightOn = b.endpoint("garage.api.light.on", "light_on", api.Light.On)
		p.LightOff = b.endpoint("garage.api.light.off", "light_off", api.Light.Off)
		p.LightState = b.optionalEndpoint("garage.api.light.state", "light_state", api.Light.State)
	}

	if p.Structured {
		b.structuredFields(p, api)
	} else {
		// Unstructured devices succeed on body content alone.
		p.DoorOpen.SuccessBodyContains = api.Door.Open.SuccessContent
		p.DoorClose.SuccessBodyContains = api.Door.Close.SuccessContent
		if p.HasLight() {
			p.LightOn.SuccessBodyContains = api.Light.On.SuccessContent
			p.LightOff.SuccessBodyContains = api.Light.Off.SuccessContent
		}
	}

	return p
}

// structuredFields applies success and state field names for the json profile.
func (b *profileBuilder) structuredFields(p *Profile, api config.DeviceAPIConfig) {
	if f := api.Door.SuccessField; f != "" {
		p.DoorOpen.SuccessField, p.DoorOpen.SuccessValue = f, true
		p.DoorClose.SuccessField, p.DoorClose.SuccessValue = f, true
	}
	if p.HasDoorState() {
		if api.Door.StateField == "" {
			b.addf("garage.api.door.state_field is required when garage.api.door.state.url is set")
		}
		p.DoorStateField = api.Door.StateField
		p.DoorState.SuccessField = api.Door.StateField
	}

	if !p.HasLight() {
		return
	}
	if f := api.Light.SuccessField; f != "" {
		p.LightOn.SuccessField, p.LightOn.SuccessValue = f, true
		p.LightOff.SuccessField, p.LightOff.SuccessValue = f, true
	}
	if p.HasLightState() {
		if api.Light.StateField == "" {
			b.addf("garage.api.light.state_field is required when garage.api.light.state.url is set")
		}
		p.LightStateField = api.Light.StateField
		p.LightState.SuccessField = api.Light.StateField
	}
}
