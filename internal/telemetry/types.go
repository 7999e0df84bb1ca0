package telemetry

import "time"

// DefaultMetric names readings whose payload declared no metric.
const DefaultMetric = "value"

// DefaultReadingLimit is the page size of ListReadings when none is given.
const DefaultReadingLimit = 50

// Reading is one immutable time-series row.
type Reading struct {
	ID         string    `json:"id"`
	DeviceID   string    `json:"device_id"`
	SensorID   string    `json:"sensor_id,omitempty"`
	SensorName string    `json:"sensor_name,omitempty"`
	Metric     string    `json:"metric"`
	Value      any       `json:"value"`
	Unit       string    `json:"unit,omitempty"`
	RecordedAt time.Time `json:"recorded_at"`
	CreatedAt  time.Time `json:"created_at"`
}

// SensorUpdate carries the sensor fields a message supplied. Empty strings
// and HasValue=false leave the stored column unchanged.
type SensorUpdate struct {
	SensorID   string
	Name       string
	Metric     string
	Unit       string
	Value      any
	HasValue   bool
	RecordedAt time.Time
}

// Record is everything one sensor message writes.
type Record struct {
	DeviceID string

	// Sensor is nil when the message named no sensor.
	Sensor *SensorUpdate

	Reading   Reading
	Telemetry any
	SeenAt    time.Time
}
