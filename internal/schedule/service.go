package schedule

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/homefleet-core/internal/command"
	"github.com/nerrad567/homefleet-core/internal/device"
)

// Logger defines the logging interface used by the Service and Runner.
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

// Recorder counts schedule events. *metrics.Metrics satisfies it.
type Recorder interface {
	ScheduleCreated()
	ScheduleRun(status string)
}

// Service creates and manages schedules.
type Service struct {
	devices  DeviceLookup
	repo     Repository
	loc      *time.Location
	recorder Recorder
	logger   Logger
}

// NewService creates a schedule service. Run times without an offset are
// read in UTC until SetLocation is called.
func NewService(devices DeviceLookup, repo Repository) *Service {
	return &Service{
		devices: devices,
		repo:    repo,
		loc:     time.UTC,
		logger:  noopLogger{},
	}
}

// SetLogger sets the logger for the service.
func (s *Service) SetLogger(logger Logger) {
	s.logger = logger
}

// SetRecorder sets the metrics recorder.
func (s *Service) SetRecorder(recorder Recorder) {
	s.recorder = recorder
}

// SetLocation sets the site timezone used for run times without an offset.
func (s *Service) SetLocation(loc *time.Location) {
	if loc != nil {
		s.loc = loc
	}
}

// Create resolves the device, then parses req.RunAt and creates the
// schedule. Past run times are accepted and fire on the next runner tick.
func (s *Service) Create(ctx context.Context, req Request) (*Schedule, error) {
	dev, action, err := s.resolve(ctx, req)
	if err != nil {
		return nil, err
	}
	runAt, err := ParseRunAt(req.RunAt, s.loc)
	if err != nil {
		return nil, err
	}
	return s.persist(ctx, req, dev, action, runAt)
}

// CreateAt creates a schedule for an already parsed instant. req.RunAt is
// ignored.
func (s *Service) CreateAt(ctx context.Context, req Request, runAt time.Time) (*Schedule, error) {
	dev, action, err := s.resolve(ctx, req)
	if err != nil {
		return nil, err
	}
	if runAt.IsZero() {
		return nil, fmt.Errorf("%w: run time is required", ErrInvalidTimestamp)
	}
	return s.persist(ctx, req, dev, action, runAt)
}

// resolve checks the request and finds its device. An unknown device is
// reported before any problem with the run time.
func (s *Service) resolve(ctx context.Context, req Request) (*device.Device, string, error) {
	action := strings.TrimSpace(req.Action)
	if action == "" {
		return nil, "", fmt.Errorf("%w: action is required", ErrInvalidInput)
	}
	if strings.TrimSpace(req.DeviceID) == "" && strings.TrimSpace(req.DeviceName) == "" {
		return nil, "", fmt.Errorf("%w: device id or name is required", ErrInvalidInput)
	}

	dev, err := s.devices.Lookup(ctx, req.DeviceID, req.DeviceName)
	if err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			return nil, "", err
		}
		return nil, "", fmt.Errorf("resolving device: %w", err)
	}
	return dev, action, nil
}

func (s *Service) persist(ctx context.Context, req Request, dev *device.Device, action string, runAt time.Time) (*Schedule, error) {
	origin := req.Origin
	if origin == "" {
		origin = command.OriginAPI
	}
	runAt = runAt.UTC()

	sched := &Schedule{
		DeviceID:        dev.ID,
		DeviceName:      dev.Name,
		Action:          action,
		Payload:         req.Payload,
		RunAt:           runAt,
		Origin:          origin,
		NaturalLanguage: req.NaturalLanguage,
		Status:          StatusScheduled,
	}
	snapshot := &command.CommandLog{
		DeviceID:        dev.ID,
		DeviceName:      dev.Name,
		Action:          action,
		Payload:         req.Payload,
		Origin:          origin,
		NaturalLanguage: req.NaturalLanguage,
		Status:          command.StatusScheduled,
		RunAt:           &runAt,
	}
	if err := s.repo.Create(ctx, sched, snapshot); err != nil {
		return nil, err
	}

	if s.recorder != nil {
		s.recorder.ScheduleCreated()
	}
	s.logger.Info("schedule created",
		"schedule_id", sched.ID, "device_id", dev.ID, "action", action,
		"run_at", runAt, "origin", origin)
	return sched, nil
}

// Get retrieves a schedule by id.
func (s *Service) Get(ctx context.Context, id string) (*Schedule, error) {
	return s.repo.Get(ctx, id)
}

// List returns every schedule by ascending run time.
func (s *Service) List(ctx context.Context) ([]Schedule, error) {
	return s.repo.List(ctx)
}

// Cancel cancels a schedule that has not run yet.
func (s *Service) Cancel(ctx context.Context, id string) error {
	if err := s.repo.Cancel(ctx, id); err != nil {
		return err
	}
	s.logger.Info("schedule cancelled", "schedule_id", id)
	return nil
}
