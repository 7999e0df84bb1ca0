package command

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/nerrad567/homefleet-core/internal/device"
)

// Logger defines the logging interface used by the Dispatcher.
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

// DeviceLookup resolves a device by id or name. *device.Registry satisfies
// it.
type DeviceLookup interface {
	Lookup(ctx context.Context, id, name string) (*device.Device, error)
}

// Publisher sends a message to a broker topic. *bus.Manager satisfies it.
type Publisher interface {
	Publish(ctx context.Context, topic string, message []byte) error
}

// Recorder counts dispatch outcomes. *metrics.Metrics satisfies it.
type Recorder interface {
	CommandDispatched(status, origin string)
}

// Dispatcher turns command requests into broker publishes.
type Dispatcher struct {
	devices   DeviceLookup
	repo      Repository
	publisher Publisher
	recorder  Recorder
	logger    Logger
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(devices DeviceLookup, repo Repository, publisher Publisher) *Dispatcher {
	return &Dispatcher{
		devices:   devices,
		repo:      repo,
		publisher: publisher,
		logger:    noopLogger{},
	}
}

// SetLogger sets the logger for the dispatcher.
func (d *Dispatcher) SetLogger(logger Logger) {
	d.logger = logger
}

// SetRecorder sets the metrics recorder.
func (d *Dispatcher) SetRecorder(recorder Recorder) {
	d.recorder = recorder
}

// Dispatch resolves the device, logs the attempt and publishes the command.
//
// An unknown device returns device.ErrDeviceNotFound and writes no log. Once
// the log exists every outcome is recorded on it: the returned log is
// "sent" on success and "failed" alongside a non-nil error otherwise.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (*CommandLog, error) {
	req.Action = strings.TrimSpace(req.Action)
	if req.Action == "" {
		return nil, fmt.Errorf("%w: action is required", ErrInvalidInput)
	}
	if strings.TrimSpace(req.DeviceID) == "" && strings.TrimSpace(req.DeviceName) == "" {
		return nil, fmt.Errorf("%w: device id or name is required", ErrInvalidInput)
	}

	dev, err := d.devices.Lookup(ctx, req.DeviceID, req.DeviceName)
	if err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			return nil, fmt.Errorf("%w: %s", device.ErrDeviceNotFound, reference(req))
		}
		return nil, fmt.Errorf("resolving device: %w", err)
	}

	origin := req.Origin
	if origin == "" {
		origin = OriginAPI
	}
	log := &CommandLog{
		DeviceID:        dev.ID,
		DeviceName:      dev.Name,
		Action:          req.Action,
		Payload:         req.Payload,
		Origin:          origin,
		NaturalLanguage: req.NaturalLanguage,
		Status:          StatusPending,
		ScheduleID:      req.ScheduleID,
	}
	if err := d.repo.Create(ctx, log); err != nil {
		return nil, err
	}

	// The outcome is recorded even when ctx ended during the publish.
	settleCtx := context.WithoutCancel(ctx)
	if sendErr := d.send(ctx, dev, log); sendErr != nil {
		if err := d.repo.Transition(settleCtx, log.ID, StatusPending, StatusFailed, sendErr.Error()); err != nil {
			d.logger.Error("failed to record command failure", "log_id", log.ID, "error", err)
		}
		log.Status = StatusFailed
		log.Error = sendErr.Error()
		d.record(log)
		d.logger.Warn("command failed",
			"log_id", log.ID, "device_id", dev.ID, "action", log.Action, "error", sendErr)
		return log, sendErr
	}

	if err := d.repo.Transition(settleCtx, log.ID, StatusPending, StatusSent, ""); err != nil {
		return log, err
	}
	log.Status = StatusSent
	d.record(log)
	d.logger.Info("command sent",
		"log_id", log.ID, "device_id", dev.ID, "topic", dev.CommandTopic,
		"action", log.Action, "origin", log.Origin)
	return log, nil
}

func (d *Dispatcher) send(ctx context.Context, dev *device.Device, log *CommandLog) error {
	if strings.TrimSpace(dev.CommandTopic) == "" {
		return fmt.Errorf("%w: %s", ErrUnconfigured, dev.Name)
	}
	msg, err := BuildMessage(log.Action, log.Payload)
	if err != nil {
		return err
	}
	return d.publisher.Publish(ctx, dev.CommandTopic, msg)
}

// ListLogs returns up to limit logs, newest first. A limit of zero or less
// means DefaultLogLimit.
func (d *Dispatcher) ListLogs(ctx context.Context, limit int) ([]CommandLog, error) {
	if limit <= 0 {
		limit = DefaultLogLimit
	}
	return d.repo.List(ctx, limit)
}

func (d *Dispatcher) record(log *CommandLog) {
	if d.recorder != nil {
		d.recorder.CommandDispatched(string(log.Status), log.Origin)
	}
}

func reference(req Request) string {
	if id := strings.TrimSpace(req.DeviceID); id != "" {
		return id
	}
	return strings.TrimSpace(req.DeviceName)
}
