package command

import "time"

// Status is the delivery status of a command log.
type Status string

// Command log statuses. pending moves to sent or failed; scheduled marks
// the audit snapshot written alongside a schedule.
const (
	StatusPending   Status = "pending"
	StatusSent      Status = "sent"
	StatusFailed    Status = "failed"
	StatusScheduled Status = "scheduled"
)

// Origins of a command.
const (
	OriginAPI             = "api"
	OriginNaturalLanguage = "natural-language"
	OriginSchedule        = "schedule"
)

// DefaultLogLimit is the page size of ListLogs when none is given.
const DefaultLogLimit = 100

// CommandLog is the audit record of one dispatch attempt.
type CommandLog struct {
	ID              string     `json:"id"`
	DeviceID        string     `json:"device_id"`
	DeviceName      string     `json:"device_name"`
	Action          string     `json:"action"`
	Payload         any        `json:"payload,omitempty"`
	Origin          string     `json:"origin"`
	NaturalLanguage string     `json:"natural_language,omitempty"`
	Status          Status     `json:"status"`
	Error           string     `json:"error,omitempty"`
	RunAt           *time.Time `json:"run_at,omitempty"`
	ScheduleID      string     `json:"schedule_id,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Request asks for one command. DeviceID wins over DeviceName.
type Request struct {
	DeviceID   string
	DeviceName string
	Action     string

	// Payload is a decoded JSON value. Objects are merged into the outbound
	// message; anything else is sent as "value".
	Payload any

	// Origin defaults to OriginAPI.
	Origin          string
	NaturalLanguage string

	// ScheduleID links the log to the schedule that fired it.
	ScheduleID string
}
