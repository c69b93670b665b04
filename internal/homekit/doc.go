// Package homekit publishes the garage controller as a HomeKit garage door
// opener, with a lightbulb when a light is configured, using brutella/hap.
package homekit
