package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// MeasurementSensorReading is the measurement every mirrored reading lands in.
const MeasurementSensorReading = "sensor_reading"

// SensorPoint is one numeric reading to mirror.
type SensorPoint struct {
	DeviceID   string
	DeviceName string
	SensorID   string
	Metric     string
	Unit       string
	Value      float64
	RecordedAt time.Time
}

// WriteSensorReading queues a reading for the next batch.
//
// Tags stay low-cardinality (device, sensor, metric, unit); the device name
// is a field because operators rename devices.
func (c *Client) WriteSensorReading(p SensorPoint) {
	if !c.IsConnected() {
		return
	}

	tags := map[string]string{
		"device_id": p.DeviceID,
		"metric":    p.Metric,
	}
	if p.SensorID != "" {
		tags["sensor_id"] = p.SensorID
	}
	if p.Unit != "" {
		tags["unit"] = p.Unit
	}

	fields := map[string]interface{}{
		"value": p.Value,
	}
	if p.DeviceName != "" {
		fields["device_name"] = p.DeviceName
	}

	at := p.RecordedAt
	if at.IsZero() {
		at = time.Now()
	}

	c.writeAPI.WritePoint(write.NewPoint(MeasurementSensorReading, tags, fields, at))
}
