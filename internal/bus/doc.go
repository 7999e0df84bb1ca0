// Package bus manages the broker subscriptions and the outbound publish path
// for the device fleet.
//
// A Manager sits on top of the process-wide MQTT connection. It subscribes
// the discovery wildcards and every known device topic, re-runs that pass
// after each reconnect, and reports readiness once all of it is in place.
//
// Concrete device topics that a discovery wildcard already matches are not
// subscribed a second time: the broker would deliver such a message once
// per matching subscription and the device would be processed twice.
//
// Publishing is fire-and-forget. Success means the broker accepted the
// publish within the client's timeout; there is no end-to-end ack. Callers
// depend on the Publisher interface so a stricter variant can replace it.
package bus
