package device

import (
	"time"
)

// DefaultType is the type of a device nobody has classified yet.
const DefaultType = "generic"

// Device is a physical endpoint on the broker.
type Device struct {
	ID string `json:"id"`

	// Identifier is the stable id the hardware reports. Empty for devices
	// registered by hand that have not sent one yet.
	Identifier string `json:"identifier,omitempty"`

	// Name is unique across the fleet, compared case-insensitively.
	Name     string `json:"name"`
	Type     string `json:"type"`
	Location string `json:"location,omitempty"`

	CommandTopic   string `json:"command_topic,omitempty"`
	StateTopic     string `json:"state_topic,omitempty"`
	TelemetryTopic string `json:"telemetry_topic,omitempty"`

	// Sensors in first-seen order.
	Sensors []Sensor `json:"sensors,omitempty"`

	LastState     any        `json:"last_state,omitempty"`
	LastTelemetry any        `json:"last_telemetry,omitempty"`
	LastSeenAt    *time.Time `json:"last_seen_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Sensor is a metric source embedded in a device.
type Sensor struct {
	SensorID       string     `json:"sensor_id"`
	Name           string     `json:"name,omitempty"`
	Metric         string     `json:"metric,omitempty"`
	Unit           string     `json:"unit,omitempty"`
	LastValue      any        `json:"last_value,omitempty"`
	LastRecordedAt *time.Time `json:"last_recorded_at,omitempty"`
}

// SubscriptionTopics returns the device's inbound topics, skipping empty
// ones and duplicates.
func (d *Device) SubscriptionTopics() []string {
	topics := make([]string, 0, 2)
	if d.StateTopic != "" {
		topics = append(topics, d.StateTopic)
	}
	if d.TelemetryTopic != "" && d.TelemetryTopic != d.StateTopic {
		topics = append(topics, d.TelemetryTopic)
	}
	return topics
}

// Sensor returns the embedded sensor with the given id.
func (d *Device) Sensor(sensorID string) (Sensor, bool) {
	for _, s := range d.Sensors {
		if s.SensorID == sensorID {
			return s, true
		}
	}
	return Sensor{}, false
}

// Backfill carries values that may fill empty device fields. Empty strings
// mean "nothing to offer".
type Backfill struct {
	Identifier     string
	Type           string
	Location       string
	CommandTopic   string
	StateTopic     string
	TelemetryTopic string
}

// IsZero reports whether the backfill offers nothing.
func (b Backfill) IsZero() bool {
	return b == Backfill{}
}

// missingFrom keeps only the offered values that would fill an empty field
// of d. Type counts as empty while it is still DefaultType.
func (b Backfill) missingFrom(d *Device) Backfill {
	var out Backfill
	if d.Identifier == "" {
		out.Identifier = b.Identifier
	}
	if (d.Type == "" || d.Type == DefaultType) && b.Type != DefaultType {
		out.Type = b.Type
	}
	if d.Location == "" {
		out.Location = b.Location
	}
	if d.CommandTopic == "" {
		out.CommandTopic = b.CommandTopic
	}
	if d.StateTopic == "" {
		out.StateTopic = b.StateTopic
	}
	if d.TelemetryTopic == "" {
		out.TelemetryTopic = b.TelemetryTopic
	}
	return out
}
