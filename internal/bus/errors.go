package bus

import "errors"

var (
	// ErrNoTopic is returned when publishing to an empty topic.
	ErrNoTopic = errors.New("bus: no topic")

	// ErrTransportUnavailable is returned when the broker connection is down
	// at publish time. It wraps mqtt.ErrNotConnected.
	ErrTransportUnavailable = errors.New("bus: transport unavailable")
)
