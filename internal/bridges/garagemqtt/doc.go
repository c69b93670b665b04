// Package garagemqtt exposes a garage.Controller over MQTT.
//
// The bridge subscribes to garage/command/{device} and garage/request/{device},
// runs each message on its own goroutine against the controller, and answers
// on garage/ack/{device} or garage/response/{device}/{request_id}. Every
// state push from the controller republishes the retained
// garage/state/{device} message, and a HealthReporter keeps
// garage/health/{device} current alongside the client's Last Will.
//
// # Command example
//
//	{"id": "c-42", "command": "open", "source": "automation"}
//
// is answered with
//
//	{"command_id": "c-42", "command": "open", "status": "accepted", ...}
//
// Device failures are acknowledged with status "failed" and an error code
// derived from garage.ErrorKind, such as UNEXPECTED_STATUS or TRANSPORT.
package garagemqtt
