// Package mqtt provides MQTT connectivity for publishing identityd
// session events.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Publishing JSON payloads with QoS validation
//   - Last Will and Testament (LWT) on identity/system/status
//
// Each session event is published to identity/events/<action>, not
// retained. Payloads never contain tokens or passwords.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.PublishJSON(mqtt.Topics{}.SessionEvent("login"), event)
package mqtt
