package interpret

import (
	"context"
	"fmt"
	"time"

	"github.com/nerrad567/homefleet-core/internal/command"
	"github.com/nerrad567/homefleet-core/internal/schedule"
)

// Dispatcher sends a command. *command.Dispatcher satisfies it.
type Dispatcher interface {
	Dispatch(ctx context.Context, req command.Request) (*command.CommandLog, error)
}

// Scheduler creates a schedule at a parsed instant. *schedule.Service
// satisfies it.
type Scheduler interface {
	CreateAt(ctx context.Context, req schedule.Request, runAt time.Time) (*schedule.Schedule, error)
}

// Result is the outcome of a handled prompt. Exactly one of Command and
// Schedule is set once the prompt reached the dispatcher or scheduler.
type Result struct {
	Type           Kind                `json:"type"`
	Interpretation Interpretation      `json:"interpretation"`
	Command        *command.CommandLog `json:"command,omitempty"`
	Schedule       *schedule.Schedule  `json:"schedule,omitempty"`
}

// Assistant interprets prompts and carries them out.
type Assistant struct {
	interpreter *Interpreter
	dispatcher  Dispatcher
	scheduler   Scheduler
	logger      Logger
}

// NewAssistant creates an assistant.
func NewAssistant(interpreter *Interpreter, dispatcher Dispatcher, scheduler Scheduler) *Assistant {
	return &Assistant{
		interpreter: interpreter,
		dispatcher:  dispatcher,
		scheduler:   scheduler,
		logger:      noopLogger{},
	}
}

// SetLogger sets the logger for the assistant.
func (a *Assistant) SetLogger(logger Logger) {
	a.logger = logger
}

// Handle interprets prompt and dispatches or schedules it. When dispatch
// fails after its log was written, the failed log is returned with the
// error.
func (a *Assistant) Handle(ctx context.Context, prompt string) (*Result, error) {
	in, err := a.interpreter.Interpret(ctx, prompt)
	if err != nil {
		return nil, err
	}
	res := &Result{Type: in.Kind, Interpretation: in}

	if in.Kind == KindSchedule && in.RunAt != nil {
		s, err := a.scheduler.CreateAt(ctx, schedule.Request{
			DeviceName:      in.DeviceName,
			Action:          in.Action,
			Payload:         in.Payload,
			Origin:          command.OriginNaturalLanguage,
			NaturalLanguage: prompt,
		}, *in.RunAt)
		if err != nil {
			return res, fmt.Errorf("scheduling %q for %s: %w", in.Action, in.DeviceName, err)
		}
		res.Schedule = s
		return res, nil
	}

	res.Type = KindCommand
	log, err := a.dispatcher.Dispatch(ctx, command.Request{
		DeviceName:      in.DeviceName,
		Action:          in.Action,
		Payload:         in.Payload,
		Origin:          command.OriginNaturalLanguage,
		NaturalLanguage: prompt,
	})
	res.Command = log
	if err != nil {
		return res, fmt.Errorf("dispatching %q to %s: %w", in.Action, in.DeviceName, err)
	}
	return res, nil
}
