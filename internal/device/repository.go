package device

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/homefleet-core/internal/infrastructure/database"
)

// Repository defines the interface for device persistence operations.
// This abstraction allows for different implementations (SQLite, mock, etc.)
// and enables unit testing without database dependencies.
type Repository interface {
	// GetByID retrieves a device by its id.
	// Returns ErrDeviceNotFound if the device does not exist.
	GetByID(ctx context.Context, id string) (*Device, error)

	// GetByName retrieves a device by name, ignoring case.
	GetByName(ctx context.Context, name string) (*Device, error)

	// GetByIdentifier retrieves a device by its hardware identifier.
	GetByIdentifier(ctx context.Context, identifier string) (*Device, error)

	// FindByTopic retrieves the oldest device whose state or telemetry topic
	// equals topic.
	FindByTopic(ctx context.Context, topic string) (*Device, error)

	// List retrieves all devices ordered by name.
	List(ctx context.Context) ([]Device, error)

	// Create inserts a new device.
	// Returns ErrDeviceExists on an id or identifier clash and ErrNameTaken
	// on a name clash.
	Create(ctx context.Context, device *Device) error

	// InsertIfAbsent inserts device unless one with the same identifier
	// exists. It returns the stored device and whether this call created it.
	// A name clash returns ErrNameTaken and inserts nothing.
	InsertIfAbsent(ctx context.Context, device *Device) (*Device, bool, error)

	// Update modifies the operator-editable fields of an existing device.
	// Returns ErrDeviceNotFound or ErrNameTaken.
	Update(ctx context.Context, device *Device) error

	// Backfill fills empty fields of a device from fill without touching
	// fields that already hold a value, and returns the stored device.
	Backfill(ctx context.Context, id string, fill Backfill) (*Device, error)

	// Delete removes a device and its sensors.
	// Returns ErrDeviceNotFound if the device does not exist.
	Delete(ctx context.Context, id string) error

	// RecordState stores the latest state body and bumps last_seen_at.
	RecordState(ctx context.Context, id string, state any, seenAt time.Time) error

	// SubscriptionTopics returns the distinct state and telemetry topics of
	// all devices.
	SubscriptionTopics(ctx context.Context) ([]string, error)
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
// The db parameter should be an open, migrated SQLite connection.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const selectDevice = `
	SELECT id, identifier, name, type, location,
		command_topic, state_topic, telemetry_topic,
		last_state, last_telemetry, last_seen_at, created_at, updated_at
	FROM devices`

// GetByID retrieves a device by its id.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Device, error) {
	return r.getOne(ctx, selectDevice+` WHERE id = ?`, id)
}

// GetByName retrieves a device by name. The column collates NOCASE.
func (r *SQLiteRepository) GetByName(ctx context.Context, name string) (*Device, error) {
	return r.getOne(ctx, selectDevice+` WHERE name = ?`, name)
}

// GetByIdentifier retrieves a device by its hardware identifier.
func (r *SQLiteRepository) GetByIdentifier(ctx context.Context, identifier string) (*Device, error) {
	if identifier == "" {
		return nil, ErrDeviceNotFound
	}
	return r.getOne(ctx, selectDevice+` WHERE identifier = ?`, identifier)
}

// FindByTopic retrieves the oldest device listening on topic.
func (r *SQLiteRepository) FindByTopic(ctx context.Context, topic string) (*Device, error) {
	if topic == "" {
		return nil, ErrDeviceNotFound
	}
	return r.getOne(ctx, selectDevice+`
		WHERE state_topic = ? OR telemetry_topic = ?
		ORDER BY created_at, id
		LIMIT 1`, topic, topic)
}

// List retrieves all devices ordered by name.
func (r *SQLiteRepository) List(ctx context.Context) ([]Device, error) {
	rows, err := r.db.QueryContext(ctx, selectDevice+` ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}

	var devices []Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		devices = append(devices, *d)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterating devices: %w", err)
	}
	// The pool holds one connection; release it before the sensor query.
	rows.Close()

	sensors, err := r.allSensors(ctx)
	if err != nil {
		return nil, err
	}
	for i := range devices {
		devices[i].Sensors = sensors[devices[i].ID]
	}
	return devices, nil
}

// Create inserts a new device.
func (r *SQLiteRepository) Create(ctx context.Context, d *Device) error {
	_, err := r.db.ExecContext(ctx, insertDevice, insertArgs(d)...)
	if err != nil {
		return classifyWriteError(err)
	}
	return nil
}

// InsertIfAbsent inserts d unless its identifier is already stored.
func (r *SQLiteRepository) InsertIfAbsent(ctx context.Context, d *Device) (*Device, bool, error) {
	if d.Identifier == "" {
		return nil, false, fmt.Errorf("%w: identifier is required", ErrInvalidDevice)
	}

	result, err := r.db.ExecContext(ctx, insertDevice+` ON CONFLICT(identifier) DO NOTHING`, insertArgs(d)...)
	if err != nil {
		return nil, false, classifyWriteError(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("checking insert result: %w", err)
	}

	stored, err := r.GetByIdentifier(ctx, d.Identifier)
	if err != nil {
		return nil, false, fmt.Errorf("reading provisioned device: %w", err)
	}
	return stored, affected == 1, nil
}

// Update modifies name, type, location and topics of an existing device.
func (r *SQLiteRepository) Update(ctx context.Context, d *Device) error {
	d.UpdatedAt = time.Now().UTC()

	result, err := r.db.ExecContext(ctx, `
		UPDATE devices SET
			name = ?, type = ?, location = ?,
			command_topic = ?, state_topic = ?, telemetry_topic = ?,
			updated_at = ?
		WHERE id = ?`,
		d.Name, typeOrDefault(d.Type), d.Location,
		d.CommandTopic, d.StateTopic, d.TelemetryTopic,
		database.FormatTime(d.UpdatedAt),
		d.ID,
	)
	if err != nil {
		return classifyWriteError(err)
	}
	return requireOneRow(result)
}

// Backfill fills empty fields in one statement. Each column keeps its value
// unless it is empty and fill offers one, so a concurrent writer's value is
// never clobbered.
func (r *SQLiteRepository) Backfill(ctx context.Context, id string, fill Backfill) (*Device, error) {
	if fill.IsZero() {
		return r.GetByID(ctx, id)
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE devices SET
			identifier = CASE WHEN identifier IS NULL OR identifier = '' THEN COALESCE(?, identifier) ELSE identifier END,
			type = CASE WHEN type = '' OR type = ? THEN COALESCE(?, type) ELSE type END,
			location = CASE WHEN location = '' THEN COALESCE(?, location) ELSE location END,
			command_topic = CASE WHEN command_topic = '' THEN COALESCE(?, command_topic) ELSE command_topic END,
			state_topic = CASE WHEN state_topic = '' THEN COALESCE(?, state_topic) ELSE state_topic END,
			telemetry_topic = CASE WHEN telemetry_topic = '' THEN COALESCE(?, telemetry_topic) ELSE telemetry_topic END,
			updated_at = ?
		WHERE id = ?`,
		database.NullableString(fill.Identifier),
		DefaultType, database.NullableString(fill.Type),
		database.NullableString(fill.Location),
		database.NullableString(fill.CommandTopic),
		database.NullableString(fill.StateTopic),
		database.NullableString(fill.TelemetryTopic),
		database.FormatTime(time.Now()),
		id,
	)
	if err != nil {
		return nil, classifyWriteError(err)
	}
	if err := requireOneRow(result); err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

// Delete removes a device. Sensors go with it through the foreign key;
// readings and command logs are kept.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM devices WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting device: %w", err)
	}
	return requireOneRow(result)
}

// RecordState stores the latest state body.
func (r *SQLiteRepository) RecordState(ctx context.Context, id string, state any, seenAt time.Time) error {
	body, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encoding state: %w", err)
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE devices SET last_state = ?, last_seen_at = ?, updated_at = ?
		WHERE id = ?`,
		string(body), database.FormatTime(seenAt), database.FormatTime(time.Now()), id,
	)
	if err != nil {
		return fmt.Errorf("updating device state: %w", err)
	}
	return requireOneRow(result)
}

// SubscriptionTopics returns every distinct non-empty inbound topic.
func (r *SQLiteRepository) SubscriptionTopics(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT state_topic FROM devices WHERE state_topic != ''
		UNION
		SELECT telemetry_topic FROM devices WHERE telemetry_topic != ''
		ORDER BY 1`)
	if err != nil {
		return nil, fmt.Errorf("querying device topics: %w", err)
	}
	defer rows.Close()

	var topics []string
	for rows.Next() {
		var topic string
		if err := rows.Scan(&topic); err != nil {
			return nil, fmt.Errorf("scanning device topic: %w", err)
		}
		topics = append(topics, topic)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating device topics: %w", err)
	}
	return topics, nil
}

// ─── Helpers ────────────────────────────────────────────────────────

const insertDevice = `
	INSERT INTO devices (
		id, identifier, name, type, location,
		command_topic, state_topic, telemetry_topic,
		created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func insertArgs(d *Device) []any {
	now := time.Now().UTC()
	if d.ID == "" {
		d.ID = GenerateID()
	}
	d.Type = typeOrDefault(d.Type)
	d.CreatedAt = now
	d.UpdatedAt = now

	return []any{
		d.ID, database.NullableString(d.Identifier), d.Name, d.Type, d.Location,
		d.CommandTopic, d.StateTopic, d.TelemetryTopic,
		database.FormatTime(now), database.FormatTime(now),
	}
}

func typeOrDefault(t string) string {
	if strings.TrimSpace(t) == "" {
		return DefaultType
	}
	return t
}

// classifyWriteError maps unique violations onto domain errors.
func classifyWriteError(err error) error {
	column, ok := database.UniqueViolation(err)
	if !ok {
		return fmt.Errorf("writing device: %w", err)
	}
	switch column {
	case "devices.name":
		return fmt.Errorf("%w: %w", ErrNameTaken, err)
	default:
		return fmt.Errorf("%w: %w", ErrDeviceExists, err)
	}
}

func requireOneRow(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if affected == 0 {
		return ErrDeviceNotFound
	}
	return nil
}

func (r *SQLiteRepository) getOne(ctx context.Context, query string, args ...any) (*Device, error) {
	d, err := scanDevice(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, err
	}

	sensors, err := r.sensorsFor(ctx, d.ID)
	if err != nil {
		return nil, err
	}
	d.Sensors = sensors
	return d, nil
}

// rowScanner is implemented by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanDevice(row rowScanner) (*Device, error) {
	var (
		d                        Device
		identifier               sql.NullString
		lastState, lastTelemetry sql.NullString
		lastSeen                 sql.NullString
		createdAt, updatedAt     string
	)

	err := row.Scan(
		&d.ID, &identifier, &d.Name, &d.Type, &d.Location,
		&d.CommandTopic, &d.StateTopic, &d.TelemetryTopic,
		&lastState, &lastTelemetry, &lastSeen, &createdAt, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning device: %w", err)
	}

	d.Identifier = identifier.String
	if d.LastState, err = decodeJSON(lastState); err != nil {
		return nil, fmt.Errorf("decoding last_state of %s: %w", d.ID, err)
	}
	if d.LastTelemetry, err = decodeJSON(lastTelemetry); err != nil {
		return nil, fmt.Errorf("decoding last_telemetry of %s: %w", d.ID, err)
	}
	if d.LastSeenAt, err = database.NullTime(lastSeen); err != nil {
		return nil, err
	}
	if d.CreatedAt, err = database.ParseTime(createdAt); err != nil {
		return nil, err
	}
	if d.UpdatedAt, err = database.ParseTime(updatedAt); err != nil {
		return nil, err
	}
	return &d, nil
}

const selectSensor = `
	SELECT device_id, sensor_id, name, metric, unit, last_value, last_recorded_at
	FROM device_sensors`

func (r *SQLiteRepository) sensorsFor(ctx context.Context, deviceID string) ([]Sensor, error) {
	bySensor, err := r.querySensors(ctx, selectSensor+` WHERE device_id = ? ORDER BY position`, deviceID)
	if err != nil {
		return nil, err
	}
	return bySensor[deviceID], nil
}

func (r *SQLiteRepository) allSensors(ctx context.Context) (map[string][]Sensor, error) {
	return r.querySensors(ctx, selectSensor+` ORDER BY device_id, position`)
}

func (r *SQLiteRepository) querySensors(ctx context.Context, query string, args ...any) (map[string][]Sensor, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying sensors: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]Sensor)
	for rows.Next() {
		var (
			deviceID                string
			s                       Sensor
			name, metric, unit      sql.NullString
			lastValue, lastRecorded sql.NullString
		)
		if err := rows.Scan(&deviceID, &s.SensorID, &name, &metric, &unit, &lastValue, &lastRecorded); err != nil {
			return nil, fmt.Errorf("scanning sensor: %w", err)
		}
		s.Name, s.Metric, s.Unit = name.String, metric.String, unit.String
		if s.LastValue, err = decodeJSON(lastValue); err != nil {
			return nil, fmt.Errorf("decoding sensor %s value: %w", s.SensorID, err)
		}
		if s.LastRecordedAt, err = database.NullTime(lastRecorded); err != nil {
			return nil, err
		}
		out[deviceID] = append(out[deviceID], s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sensors: %w", err)
	}
	return out, nil
}

// decodeJSON turns a nullable JSON column into a Go value.
func decodeJSON(s sql.NullString) (any, error) {
	if !s.Valid || s.String == "" {
		return nil, nil //nolint:nilnil // absent value is not an error
	}
	var v any
	if err := json.Unmarshal([]byte(s.String), &v); err != nil {
		return nil, err
	}
	return v, nil
}
