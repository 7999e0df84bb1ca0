package payload

import (
	"time"
)

// Kind classifies an inbound message.
type Kind string

const (
	// KindState is any message that is not explicitly telemetry.
	KindState Kind = "state"

	// KindSensor marks a telemetry reading ({"type": "sensor", ...}).
	KindSensor Kind = "sensor"
)

// RawKey is the key under which undecodable payloads are wrapped.
const RawKey = "raw"

// Payloads that are not valid UTF-8 are wrapped base64-encoded, with
// EncodingKey set to EncodingBase64, so the bytes survive JSON storage.
const (
	EncodingKey    = "encoding"
	EncodingBase64 = "base64"
)

// Message is a normalized inbound message.
type Message struct {
	Topic      string
	Kind       Kind
	ReceivedAt time.Time

	// Body is the decoded JSON object, or {"raw": text} when the payload
	// was not a JSON object.
	Body map[string]any

	// Structured is false when Body is the raw-text wrapper.
	Structured bool

	Device DeviceHints
	Sensor SensorHints
}

// DeviceHints are the device identity and topic fields a message carried.
// Empty strings mean "not supplied".
type DeviceHints struct {
	Identifier     string
	Name           string
	Type           string
	Location       string
	StateTopic     string
	TelemetryTopic string
	CommandTopic   string
}

// SensorHints are the sensor fields a telemetry message carried.
type SensorHints struct {
	ID     string
	Name   string
	Metric string
	Unit   string

	// Value is the reading as decoded from JSON (float64, string, bool,
	// map or slice). HasValue distinguishes an absent value from null.
	Value    any
	HasValue bool

	// DeclaredAt is the payload's own timestamp; zero when absent or
	// unparsable.
	DeclaredAt time.Time
}

// RecordedAt returns the payload timestamp, or the receipt time when the
// payload did not declare one.
func (m Message) RecordedAt() time.Time {
	if !m.Sensor.DeclaredAt.IsZero() {
		return m.Sensor.DeclaredAt
	}
	return m.ReceivedAt
}

// IsTelemetry reports whether the message is a sensor reading.
func (m Message) IsTelemetry() bool {
	return m.Kind == KindSensor
}
