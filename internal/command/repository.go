package command

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/homefleet-core/internal/infrastructure/database"
)

// Repository defines persistence for command logs.
type Repository interface {
	// Create inserts a log and fills its ID and timestamps.
	Create(ctx context.Context, log *CommandLog) error

	// Get retrieves a log by id. Returns ErrLogNotFound.
	Get(ctx context.Context, id string) (*CommandLog, error)

	// Transition moves a log from one status to another, recording errText.
	// Returns ErrStaleStatus when the log is not in from.
	Transition(ctx context.Context, id string, from, to Status, errText string) error

	// List returns up to limit logs, newest first.
	List(ctx context.Context, limit int) ([]CommandLog, error)
}

// Execer runs a statement. *sql.DB and *sql.Tx both satisfy it, so other
// packages can write a log inside their own transaction.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Create inserts a log.
func (r *SQLiteRepository) Create(ctx context.Context, log *CommandLog) error {
	return InsertLog(ctx, r.db, log)
}

// InsertLog writes log through db. It fills ID, CreatedAt and UpdatedAt and
// defaults Origin and Status.
func InsertLog(ctx context.Context, db Execer, log *CommandLog) error {
	payload, err := encodePayload(log.Payload)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	if log.Origin == "" {
		log.Origin = OriginAPI
	}
	if log.Status == "" {
		log.Status = StatusPending
	}
	log.CreatedAt = now
	log.UpdatedAt = now

	_, err = db.ExecContext(ctx, `
		INSERT INTO command_logs (
			id, device_id, device_name, action, payload, origin, natural_language,
			status, error, run_at, schedule_id, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		log.ID, log.DeviceID, log.DeviceName, log.Action, payload, log.Origin,
		database.NullableString(log.NaturalLanguage),
		string(log.Status),
		database.NullableString(log.Error),
		database.NullableTime(log.RunAt),
		database.NullableString(log.ScheduleID),
		database.FormatTime(now), database.FormatTime(now),
	)
	if err != nil {
		return fmt.Errorf("inserting command log: %w", err)
	}
	return nil
}

// Get retrieves a log by id.
func (r *SQLiteRepository) Get(ctx context.Context, id string) (*CommandLog, error) {
	log, err := scanLog(r.db.QueryRowContext(ctx, selectLog+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrLogNotFound
	}
	return log, err
}

// Transition updates the status only while the log is still in from.
func (r *SQLiteRepository) Transition(ctx context.Context, id string, from, to Status, errText string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE command_logs SET status = ?, error = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		string(to), database.NullableString(errText), database.FormatTime(time.Now()),
		id, string(from),
	)
	if err != nil {
		return fmt.Errorf("updating command log status: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s is not %s", ErrStaleStatus, id, from)
	}
	return nil
}

// List returns up to limit logs, newest first.
func (r *SQLiteRepository) List(ctx context.Context, limit int) ([]CommandLog, error) {
	rows, err := r.db.QueryContext(ctx, selectLog+` ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying command logs: %w", err)
	}
	defer rows.Close()

	var logs []CommandLog
	for rows.Next() {
		log, err := scanLog(rows)
		if err != nil {
			return nil, err
		}
		logs = append(logs, *log)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating command logs: %w", err)
	}
	return logs, nil
}

const selectLog = `
	SELECT id, device_id, device_name, action, payload, origin, natural_language,
		status, error, run_at, schedule_id, created_at, updated_at
	FROM command_logs`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLog(row rowScanner) (*CommandLog, error) {
	var (
		log                               CommandLog
		payload, naturalLanguage, errText sql.NullString
		runAt, scheduleID                 sql.NullString
		status, createdAt, updatedAt      string
	)
	err := row.Scan(
		&log.ID, &log.DeviceID, &log.DeviceName, &log.Action, &payload, &log.Origin,
		&naturalLanguage, &status, &errText, &runAt, &scheduleID, &createdAt, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning command log: %w", err)
	}

	log.Status = Status(status)
	log.NaturalLanguage = naturalLanguage.String
	log.Error = errText.String
	log.ScheduleID = scheduleID.String
	if payload.Valid {
		if err := json.Unmarshal([]byte(payload.String), &log.Payload); err != nil {
			return nil, fmt.Errorf("decoding payload of %s: %w", log.ID, err)
		}
	}
	if log.RunAt, err = database.NullTime(runAt); err != nil {
		return nil, err
	}
	if log.CreatedAt, err = database.ParseTime(createdAt); err != nil {
		return nil, err
	}
	if log.UpdatedAt, err = database.ParseTime(updatedAt); err != nil {
		return nil, err
	}
	return &log, nil
}

// encodePayload stores nil as NULL and anything else as JSON text.
func encodePayload(v any) (any, error) {
	if v == nil {
		return nil, nil //nolint:nilnil // NULL column
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding payload: %w", err)
	}
	return string(b), nil
}
