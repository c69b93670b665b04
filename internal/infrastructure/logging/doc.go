// Package logging provides structured logging for the garage bridge.
//
// It wraps log/slog and stamps every entry with service and version.
// Components derive child loggers with Component so log lines can be
// filtered by origin (gate, poller, mqtt, homekit, api).
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, version)
//	logger.Component("poller").Error("state poll failed", "axis", "door", "error", err)
//
// # Security
//
// Never log OAuth secrets, MQTT passwords or the HomeKit PIN.
package logging
