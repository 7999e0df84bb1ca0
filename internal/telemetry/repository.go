package telemetry

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/homefleet-core/internal/device"
	"github.com/nerrad567/homefleet-core/internal/infrastructure/database"
)

// Repository defines persistence for sensor metadata and readings.
type Repository interface {
	// Record writes the sensor upsert, the reading and the device telemetry
	// atomically.
	Record(ctx context.Context, rec *Record) error

	// ListReadings returns a device's readings, newest first.
	ListReadings(ctx context.Context, deviceID string, limit int) ([]Reading, error)
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *database.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
func NewSQLiteRepository(db *database.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// upsertSensor appends new sensors after the device's last position and
// merges only supplied fields into existing ones.
const upsertSensor = `
	INSERT INTO device_sensors (
		device_id, sensor_id, name, metric, unit, last_value, last_recorded_at, position
	) VALUES (
		?, ?, ?, ?, ?, ?, ?,
		(SELECT COALESCE(MAX(position), -1) + 1 FROM device_sensors WHERE device_id = ?)
	)
	ON CONFLICT(device_id, sensor_id) DO UPDATE SET
		name = COALESCE(excluded.name, name),
		metric = COALESCE(excluded.metric, metric),
		unit = COALESCE(excluded.unit, unit),
		last_value = COALESCE(excluded.last_value, last_value),
		last_recorded_at = COALESCE(excluded.last_recorded_at, last_recorded_at)`

const insertReading = `
	INSERT INTO sensor_readings (
		id, device_id, sensor_id, sensor_name, metric, value, unit, recorded_at, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

// Record writes rec in one transaction. It fills rec.Reading's ID and
// CreatedAt.
func (r *SQLiteRepository) Record(ctx context.Context, rec *Record) error {
	value, err := encodeValue(rec.Reading.Value)
	if err != nil {
		return fmt.Errorf("encoding reading value: %w", err)
	}
	telemetry, err := json.Marshal(rec.Telemetry)
	if err != nil {
		return fmt.Errorf("encoding telemetry: %w", err)
	}

	now := time.Now().UTC()
	reading := &rec.Reading
	if reading.ID == "" {
		reading.ID = uuid.NewString()
	}
	reading.DeviceID = rec.DeviceID
	reading.CreatedAt = now

	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		// Device first: a vanished device fails cleanly before the sensor
		// foreign key does.
		result, err := tx.ExecContext(ctx, `
			UPDATE devices SET last_telemetry = ?, last_seen_at = ?, updated_at = ?
			WHERE id = ?`,
			string(telemetry), database.FormatTime(rec.SeenAt), database.FormatTime(now), rec.DeviceID,
		)
		if err != nil {
			return fmt.Errorf("updating device telemetry: %w", err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("checking telemetry update: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("updating device telemetry: %w", device.ErrDeviceNotFound)
		}

		if s := rec.Sensor; s != nil {
			lastValue, err := encodeValue(s.Value)
			if err != nil {
				return fmt.Errorf("encoding sensor value: %w", err)
			}
			var recordedAt any
			if !s.HasValue {
				lastValue = nil
			} else {
				recordedAt = database.NullableTime(&s.RecordedAt)
			}
			if _, err := tx.ExecContext(ctx, upsertSensor,
				rec.DeviceID, s.SensorID,
				database.NullableString(s.Name),
				database.NullableString(s.Metric),
				database.NullableString(s.Unit),
				lastValue, recordedAt,
				rec.DeviceID,
			); err != nil {
				return fmt.Errorf("upserting sensor %s: %w", s.SensorID, err)
			}
		}

		if _, err := tx.ExecContext(ctx, insertReading,
			reading.ID, reading.DeviceID,
			database.NullableString(reading.SensorID),
			database.NullableString(reading.SensorName),
			reading.Metric, value,
			database.NullableString(reading.Unit),
			database.FormatTime(reading.RecordedAt),
			database.FormatTime(now),
		); err != nil {
			return fmt.Errorf("inserting reading: %w", err)
		}
		return nil
	})
}

// ListReadings returns up to limit readings, newest first.
func (r *SQLiteRepository) ListReadings(ctx context.Context, deviceID string, limit int) ([]Reading, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, device_id, sensor_id, sensor_name, metric, value, unit, recorded_at, created_at
		FROM sensor_readings
		WHERE device_id = ?
		ORDER BY recorded_at DESC, created_at DESC
		LIMIT ?`, deviceID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying readings: %w", err)
	}
	defer rows.Close()

	var readings []Reading
	for rows.Next() {
		var (
			rd                         Reading
			sensorID, sensorName, unit sql.NullString
			value                      sql.NullString
			recordedAt, createdAt      string
		)
		if err := rows.Scan(&rd.ID, &rd.DeviceID, &sensorID, &sensorName, &rd.Metric,
			&value, &unit, &recordedAt, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning reading: %w", err)
		}
		rd.SensorID, rd.SensorName, rd.Unit = sensorID.String, sensorName.String, unit.String
		if value.Valid {
			if err := json.Unmarshal([]byte(value.String), &rd.Value); err != nil {
				return nil, fmt.Errorf("decoding reading %s value: %w", rd.ID, err)
			}
		}
		if rd.RecordedAt, err = database.ParseTime(recordedAt); err != nil {
			return nil, err
		}
		if rd.CreatedAt, err = database.ParseTime(createdAt); err != nil {
			return nil, err
		}
		readings = append(readings, rd)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating readings: %w", err)
	}
	return readings, nil
}

// encodeValue stores nil as NULL and anything else as JSON text.
func encodeValue(v any) (any, error) {
	if v == nil {
		return nil, nil //nolint:nilnil // NULL column
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}
