// Package garage is the state reconciliation engine for an HTTP-controlled
// garage door and its optional light.
//
// It translates the accessory contract (current/target door state,
// obstruction, light on/off) into HTTP calls against a configurable device
// API, and translates device responses back into state changes.
//
// # Components
//
//   - Gate: FIFO request serialiser. Exactly one device request is in flight;
//     commands and poll queries share the queue. Optional static header and
//     OAuth1 signing (Signer).
//   - Validate / DecodeDoorState / DecodeLightState: success checks for
//     structured (JSON) and unstructured (text) responses, and translation
//     into the state vocabulary.
//   - DoorMachine: current and target axes with bidirectional inference
//     through a single reconciliation entry point. Obstruction is derived
//     from current == STOPPED.
//   - LightMachine: on/off with observation timestamps.
//   - Poller: timer-driven state queries, tolerant of door-only, light-only
//     and combined (dual-state) endpoints.
//   - Controller: wires the above and serves adapters (HomeKit, MQTT, REST).
//
// # Profiles
//
//	vendor   fixed HttpGarageDoorController firmware endpoints, HMAC-SHA256
//	json     configurable endpoints, field-based success and state
//	generic  configurable endpoints, body-substring success, text state
//
// # Staleness
//
// A state read is stale when its axis is polled and no observation has
// refreshed it within three poll intervals. The last known value is still
// returned, together with a *StalenessError.
//
// # Open-loop devices
//
// Without a door state endpoint the current state follows the target after
// a fixed operation time.
package garage
