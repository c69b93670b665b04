// Package mqtt provides the MQTT client used by the garage bridge.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Publishing with QoS and retained-flag control
//   - Subscriptions that are restored after a reconnect
//   - A Last Will on the device health topic for offline detection
//
// # Topics
//
//	garage/command/{device}              commands in
//	garage/ack/{device}                  command acknowledgements out
//	garage/state/{device}                retained door and light state out
//	garage/request/{device}              read_state requests in
//	garage/response/{device}/{request}   request responses out
//	garage/health/{device}               retained health and Last Will out
//
// # Security Considerations
//
//   - Enable TLS (cfg.Broker.TLS) when the broker is not on localhost
//   - Credentials come from config or GARAGE_MQTT_USERNAME/GARAGE_MQTT_PASSWORD
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	topic := mqtt.Topics{}.State(cfg.MQTT.DeviceID)
//	err = client.Publish(topic, payload, 1, true)
package mqtt
