package schedule

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/homefleet-core/internal/command"
	"github.com/nerrad567/homefleet-core/internal/infrastructure/database"
)

// Repository defines persistence for schedules.
type Repository interface {
	// Create writes s and its command log snapshot in one transaction. It
	// fills IDs and timestamps of both.
	Create(ctx context.Context, s *Schedule, snapshot *command.CommandLog) error

	// Get retrieves a schedule by id. Returns ErrScheduleNotFound.
	Get(ctx context.Context, id string) (*Schedule, error)

	// List returns every schedule by ascending run time.
	List(ctx context.Context) ([]Schedule, error)

	// Cancel moves a scheduled row to cancelled.
	Cancel(ctx context.Context, id string) error

	// ClaimDue moves up to limit due schedules to running and returns them,
	// oldest first.
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]Schedule, error)

	// Settle moves a running schedule to executed or failed.
	Settle(ctx context.Context, id string, status Status, commandLogID, lastError string, at time.Time) error

	// ResetRunning returns running schedules to scheduled.
	ResetRunning(ctx context.Context) (int64, error)
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *database.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
func NewSQLiteRepository(db *database.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const scheduleColumns = `
	id, device_id, device_name, action, payload, run_at, origin, natural_language,
	status, command_log_id, last_error, executed_at, created_at, updated_at`

// Create writes the schedule and its snapshot atomically.
func (r *SQLiteRepository) Create(ctx context.Context, s *Schedule, snapshot *command.CommandLog) error {
	payload, err := encodePayload(s.Payload)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.Status == "" {
		s.Status = StatusScheduled
	}
	s.CreatedAt = now
	s.UpdatedAt = now
	snapshot.ScheduleID = s.ID

	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO schedules (`+scheduleColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, NULL, NULL, NULL, ?, ?)`,
			s.ID, s.DeviceID, s.DeviceName, s.Action, payload,
			database.FormatTime(s.RunAt), s.Origin,
			database.NullableString(s.NaturalLanguage),
			string(s.Status),
			database.FormatTime(now), database.FormatTime(now),
		)
		if err != nil {
			return fmt.Errorf("inserting schedule: %w", err)
		}
		return command.InsertLog(ctx, tx, snapshot)
	})
}

// Get retrieves a schedule by id.
func (r *SQLiteRepository) Get(ctx context.Context, id string) (*Schedule, error) {
	s, err := scanSchedule(r.db.QueryRowContext(ctx, `SELECT `+scheduleColumns+` FROM schedules WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrScheduleNotFound
	}
	return s, err
}

// List returns every schedule by ascending run time.
func (r *SQLiteRepository) List(ctx context.Context) ([]Schedule, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+scheduleColumns+` FROM schedules ORDER BY run_at, rowid`)
	if err != nil {
		return nil, fmt.Errorf("querying schedules: %w", err)
	}
	return collect(rows)
}

// Cancel moves a scheduled row to cancelled.
func (r *SQLiteRepository) Cancel(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE schedules SET status = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		string(StatusCancelled), database.FormatTime(time.Now()), id, string(StatusScheduled),
	)
	if err != nil {
		return fmt.Errorf("cancelling schedule: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 1 {
		return nil
	}

	current, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: %s is %s", ErrNotCancellable, id, current.Status)
}

// ClaimDue claims due schedules with a single UPDATE ... RETURNING, so two
// runners never claim the same row.
func (r *SQLiteRepository) ClaimDue(ctx context.Context, now time.Time, limit int) ([]Schedule, error) {
	rows, err := r.db.QueryContext(ctx, `
		UPDATE schedules SET status = ?, updated_at = ?
		WHERE id IN (
			SELECT id FROM schedules
			WHERE status = ? AND run_at <= ?
			ORDER BY run_at, rowid
			LIMIT ?
		)
		RETURNING `+scheduleColumns,
		string(StatusRunning), database.FormatTime(now),
		string(StatusScheduled), database.FormatTime(now), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("claiming due schedules: %w", err)
	}
	claimed, err := collect(rows)
	if err != nil {
		return nil, err
	}

	// RETURNING order is unspecified.
	sort.SliceStable(claimed, func(i, j int) bool {
		return claimed[i].RunAt.Before(claimed[j].RunAt)
	})
	return claimed, nil
}

// Settle records the outcome of a claimed schedule.
func (r *SQLiteRepository) Settle(ctx context.Context, id string, status Status, commandLogID, lastError string, at time.Time) error {
	if status != StatusExecuted && status != StatusFailed {
		return fmt.Errorf("settling schedule %s: invalid status %q", id, status)
	}
	result, err := r.db.ExecContext(ctx, `
		UPDATE schedules
		SET status = ?, command_log_id = ?, last_error = ?, executed_at = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		string(status), database.NullableString(commandLogID), database.NullableString(lastError),
		database.FormatTime(at), database.FormatTime(time.Now()),
		id, string(StatusRunning),
	)
	if err != nil {
		return fmt.Errorf("settling schedule: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("settling schedule %s: not running", id)
	}
	return nil
}

// ResetRunning returns running schedules to scheduled.
func (r *SQLiteRepository) ResetRunning(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE schedules SET status = ?, updated_at = ? WHERE status = ?`,
		string(StatusScheduled), database.FormatTime(time.Now()), string(StatusRunning),
	)
	if err != nil {
		return 0, fmt.Errorf("resetting running schedules: %w", err)
	}
	return result.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func collect(rows *sql.Rows) ([]Schedule, error) {
	defer rows.Close()

	var schedules []Schedule
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		schedules = append(schedules, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating schedules: %w", err)
	}
	return schedules, nil
}

func scanSchedule(row rowScanner) (*Schedule, error) {
	var (
		s                                 Schedule
		payload, naturalLanguage          sql.NullString
		commandLogID, lastError, executed sql.NullString
		runAt, status, createdAt, updated string
	)
	err := row.Scan(
		&s.ID, &s.DeviceID, &s.DeviceName, &s.Action, &payload, &runAt, &s.Origin,
		&naturalLanguage, &status, &commandLogID, &lastError, &executed, &createdAt, &updated,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning schedule: %w", err)
	}

	s.Status = Status(status)
	s.NaturalLanguage = naturalLanguage.String
	s.CommandLogID = commandLogID.String
	s.LastError = lastError.String
	if payload.Valid {
		if err := json.Unmarshal([]byte(payload.String), &s.Payload); err != nil {
			return nil, fmt.Errorf("decoding payload of schedule %s: %w", s.ID, err)
		}
	}
	if s.RunAt, err = database.ParseTime(runAt); err != nil {
		return nil, err
	}
	if s.ExecutedAt, err = database.NullTime(executed); err != nil {
		return nil, err
	}
	if s.CreatedAt, err = database.ParseTime(createdAt); err != nil {
		return nil, err
	}
	if s.UpdatedAt, err = database.ParseTime(updated); err != nil {
		return nil, err
	}
	return &s, nil
}

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

