// Package mqtt provides the MQTT transport for homefleet.
//
// This package manages:
//   - The single broker connection with auto-reconnect and backoff
//   - Publishing with a bounded wait for broker acceptance
//   - Wildcard subscriptions, tracked and restored after reconnect
//   - Last Will and Testament on homefleet/system/status
//
// Devices publish state and telemetry on their own topics and receive
// commands on a command topic; this package knows nothing about devices.
// Subscription policy (discovery wildcards, per-device topics, readiness)
// lives in internal/bus.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe("home/#", 1, func(topic string, payload []byte) error {
//	    return pipeline.Handle(topic, payload)
//	})
//
//	err = client.Publish(ctx, "lamp/cmd", []byte(`{"action":"on"}`), 1, false)
package mqtt
