package interpret

import "time"

// Kind says what an interpretation asks for.
type Kind string

// Interpretation kinds.
const (
	KindCommand  Kind = "command"
	KindSchedule Kind = "schedule"
)

// Source says which path produced an interpretation.
type Source string

// Interpretation sources.
const (
	SourceAI       Source = "ai"
	SourceFallback Source = "fallback"
)

// DefaultAction is used when the fallback finds no action keyword.
const DefaultAction = "toggle"

// DefaultDeviceName is used when the fallback finds no device phrase.
const DefaultDeviceName = "thiết bị"

// Interpretation is the structured reading of a prompt.
type Interpretation struct {
	Kind       Kind       `json:"type"`
	DeviceName string     `json:"device_name"`
	Action     string     `json:"action"`
	Payload    any        `json:"payload,omitempty"`
	RunAt      *time.Time `json:"run_at,omitempty"`
	Source     Source     `json:"source"`
}

// FunctionCall is a tool call chosen by a Backend.
type FunctionCall struct {
	Name string
	Args map[string]any
}

// Function names declared to the backend.
const (
	FuncDispatch = "dispatchDeviceCommand"
	FuncSchedule = "scheduleDeviceCommand"
)
