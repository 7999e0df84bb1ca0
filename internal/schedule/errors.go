package schedule

import "errors"

var (
	// ErrInvalidTimestamp is returned when RunAt does not parse.
	ErrInvalidTimestamp = errors.New("schedule: invalid run time")

	// ErrInvalidInput is returned when a request has no action or no device
	// reference.
	ErrInvalidInput = errors.New("schedule: invalid input")

	// ErrScheduleNotFound is returned when a schedule id does not exist.
	ErrScheduleNotFound = errors.New("schedule: not found")

	// ErrNotCancellable is returned when cancelling a schedule that already
	// ran, failed or was cancelled.
	ErrNotCancellable = errors.New("schedule: not cancellable")
)
