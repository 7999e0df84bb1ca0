package schedule

import (
	"fmt"
	"strings"
	"time"
)

// Status is the lifecycle state of a schedule.
type Status string

// Schedule statuses. scheduled moves to running when claimed, then to
// executed or failed. Only scheduled can move to cancelled.
const (
	StatusScheduled Status = "scheduled"
	StatusRunning   Status = "running"
	StatusExecuted  Status = "executed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Schedule is a command deferred to RunAt.
type Schedule struct {
	ID              string     `json:"id"`
	DeviceID        string     `json:"device_id"`
	DeviceName      string     `json:"device_name"`
	Action          string     `json:"action"`
	Payload         any        `json:"payload,omitempty"`
	RunAt           time.Time  `json:"run_at"`
	Origin          string     `json:"origin"`
	NaturalLanguage string     `json:"natural_language,omitempty"`
	Status          Status     `json:"status"`
	CommandLogID    string     `json:"command_log_id,omitempty"`
	LastError       string     `json:"last_error,omitempty"`
	ExecutedAt      *time.Time `json:"executed_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Request asks for a schedule. DeviceID wins over DeviceName.
type Request struct {
	DeviceID   string
	DeviceName string
	Action     string
	Payload    any

	// RunAt is an RFC 3339 or ISO 8601 instant. A value without an offset
	// is read in the service's location.
	RunAt string

	// Origin defaults to "api".
	Origin          string
	NaturalLanguage string
}

// runAtLayouts are tried in order after RFC 3339.
var runAtLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// ParseRunAt parses s as RFC 3339, or as a local ISO date-time in loc.
func ParseRunAt(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: run time is required", ErrInvalidTimestamp)
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range runAtLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTimestamp, s)
}
