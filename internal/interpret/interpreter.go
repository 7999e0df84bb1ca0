package interpret

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/homefleet-core/internal/schedule"
)

// Logger defines the logging interface used by the Interpreter and
// Assistant.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Backend picks a function call for a prompt. It returns ErrNoFunctionCall
// when the model answered without one.
type Backend interface {
	Call(ctx context.Context, prompt string, now time.Time) (*FunctionCall, error)
}

// Recorder counts interpretations. *metrics.Metrics satisfies it.
type Recorder interface {
	Interpreted(source, kind string)
}

// Interpreter turns prompts into interpretations.
type Interpreter struct {
	backend  Backend
	timeout  time.Duration
	loc      *time.Location
	now      func() time.Time
	recorder Recorder
	logger   Logger
}

// New creates an interpreter. A nil backend means the fallback parser only.
func New(backend Backend) *Interpreter {
	return &Interpreter{
		backend: backend,
		loc:     time.UTC,
		now:     time.Now,
		logger:  noopLogger{},
	}
}

// SetLogger sets the logger for the interpreter.
func (i *Interpreter) SetLogger(logger Logger) {
	i.logger = logger
}

// SetRecorder sets the metrics recorder.
func (i *Interpreter) SetRecorder(recorder Recorder) {
	i.recorder = recorder
}

// SetTimeout bounds each backend call. Zero leaves the caller's context
// deadline as the only limit.
func (i *Interpreter) SetTimeout(d time.Duration) {
	i.timeout = d
}

// SetLocation sets the site timezone used for clock times and run times
// without an offset.
func (i *Interpreter) SetLocation(loc *time.Location) {
	if loc != nil {
		i.loc = loc
	}
}

// Interpret reads prompt. Backend failures never surface: they are logged
// at debug and the fallback answers instead.
func (i *Interpreter) Interpret(ctx context.Context, prompt string) (Interpretation, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return Interpretation{}, ErrInvalidInput
	}
	now := i.now()

	in, err := i.fromBackend(ctx, prompt, now)
	if err != nil {
		if i.backend != nil {
			i.logger.Debug("backend interpretation unavailable, using fallback", "error", err)
		}
		in = fallback(prompt, now, i.loc)
	}

	if i.recorder != nil {
		i.recorder.Interpreted(string(in.Source), string(in.Kind))
	}
	i.logger.Debug("prompt interpreted",
		"kind", in.Kind, "device", in.DeviceName, "action", in.Action, "source", in.Source)
	return in, nil
}

var errNoBackend = errors.New("no backend configured")

func (i *Interpreter) fromBackend(ctx context.Context, prompt string, now time.Time) (Interpretation, error) {
	if i.backend == nil {
		return Interpretation{}, errNoBackend
	}
	if i.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, i.timeout)
		defer cancel()
	}
	call, err := i.backend.Call(ctx, prompt, now)
	if err != nil {
		return Interpretation{}, err
	}
	return fromCall(call, i.loc)
}

// fromCall maps a function call onto an interpretation. A schedule whose
// run time does not parse becomes a command.
func fromCall(call *FunctionCall, loc *time.Location) (Interpretation, error) {
	if call == nil {
		return Interpretation{}, ErrNoFunctionCall
	}
	if call.Name != FuncDispatch && call.Name != FuncSchedule {
		return Interpretation{}, fmt.Errorf("%w: %q", ErrUnusableCall, call.Name)
	}

	device := argString(call.Args, "device")
	if device == "" {
		device = argString(call.Args, "deviceName")
	}
	action := argString(call.Args, "action")
	if device == "" || action == "" {
		return Interpretation{}, fmt.Errorf("%w: %s needs device and action", ErrUnusableCall, call.Name)
	}

	in := Interpretation{
		Kind:       KindCommand,
		DeviceName: device,
		Action:     action,
		Source:     SourceAI,
	}
	if v, ok := call.Args["value"]; ok && v != nil && v != "" {
		in.Payload = map[string]any{"value": v}
	}

	if call.Name == FuncSchedule {
		if at, err := schedule.ParseRunAt(argString(call.Args, "runAt"), loc); err == nil {
			in.Kind = KindSchedule
			in.RunAt = &at
		}
	}
	return in, nil
}

func argString(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return strings.TrimSpace(s)
}
