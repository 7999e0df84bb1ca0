package telemetry

import (
	"context"
	"fmt"

	"github.com/nerrad567/homefleet-core/internal/device"
	"github.com/nerrad567/homefleet-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/homefleet-core/internal/payload"
)

// Mirror receives numeric readings for a time-series database.
// *influxdb.Client satisfies it.
type Mirror interface {
	WriteSensorReading(p influxdb.SensorPoint)
}

// Recorder counts stored readings. *metrics.Metrics satisfies it.
type Recorder interface {
	ReadingStored()
}

// Store is the sensor metadata store.
type Store struct {
	repo     Repository
	mirror   Mirror
	recorder Recorder
}

// NewStore creates a store. mirror may be nil.
func NewStore(repo Repository, mirror Mirror) *Store {
	return &Store{repo: repo, mirror: mirror}
}

// SetRecorder registers a metrics recorder.
func (s *Store) SetRecorder(recorder Recorder) {
	s.recorder = recorder
}

// Record stores a sensor message for d and returns the appended reading.
//
// Without a sensor id only the reading and the device telemetry are
// written. Sensor fields absent from the message keep their stored values.
func (s *Store) Record(ctx context.Context, d *device.Device, msg payload.Message) (*Reading, error) {
	hints := msg.Sensor
	recordedAt := msg.RecordedAt()

	metric := hints.Metric
	if metric == "" {
		metric = DefaultMetric
	}

	rec := &Record{
		DeviceID: d.ID,
		Reading: Reading{
			SensorID:   hints.ID,
			SensorName: hints.Name,
			Metric:     metric,
			Value:      hints.Value,
			Unit:       hints.Unit,
			RecordedAt: recordedAt,
		},
		Telemetry: msg.Body,
		SeenAt:    msg.ReceivedAt,
	}
	if hints.ID != "" {
		rec.Sensor = &SensorUpdate{
			SensorID:   hints.ID,
			Name:       hints.Name,
			Metric:     hints.Metric,
			Unit:       hints.Unit,
			Value:      hints.Value,
			HasValue:   hints.HasValue,
			RecordedAt: recordedAt,
		}
	}

	if err := s.repo.Record(ctx, rec); err != nil {
		return nil, fmt.Errorf("recording telemetry for %s: %w", d.ID, err)
	}

	if s.recorder != nil {
		s.recorder.ReadingStored()
	}
	s.mirrorReading(d, &rec.Reading)
	return &rec.Reading, nil
}

func (s *Store) mirrorReading(d *device.Device, rd *Reading) {
	if s.mirror == nil {
		return
	}
	value, ok := rd.Value.(float64)
	if !ok {
		return
	}
	s.mirror.WriteSensorReading(influxdb.SensorPoint{
		DeviceID:   d.ID,
		DeviceName: d.Name,
		SensorID:   rd.SensorID,
		Metric:     rd.Metric,
		Unit:       rd.Unit,
		Value:      value,
		RecordedAt: rd.RecordedAt,
	})
}

// ListReadings returns a device's readings, newest first. A non-positive
// limit means DefaultReadingLimit.
func (s *Store) ListReadings(ctx context.Context, deviceID string, limit int) ([]Reading, error) {
	if limit <= 0 {
		limit = DefaultReadingLimit
	}
	return s.repo.ListReadings(ctx, deviceID, limit)
}
