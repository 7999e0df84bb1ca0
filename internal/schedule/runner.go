package schedule

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/nerrad567/homefleet-core/internal/command"
)

// Runner defaults.
const (
	DefaultPollInterval = 5 * time.Second
	DefaultBatchSize    = 20
)

// ErrRunnerStarted is returned by Start when the runner is already running.
var ErrRunnerStarted = errors.New("schedule: runner already started")

// Dispatcher sends a command. *command.Dispatcher satisfies it.
type Dispatcher interface {
	Dispatch(ctx context.Context, req command.Request) (*command.CommandLog, error)
}

// RunnerConfig tunes the runner.
type RunnerConfig struct {
	// PollInterval is the tick period. cron rounds it up to whole seconds.
	PollInterval time.Duration

	// BatchSize caps how many schedules one tick claims.
	BatchSize int
}

// Runner fires due schedules.
type Runner struct {
	repo       Repository
	dispatcher Dispatcher
	cfg        RunnerConfig
	recorder   Recorder
	logger     Logger
	now        func() time.Time

	mu     sync.Mutex
	cron   *cron.Cron
	cancel context.CancelFunc
}

// NewRunner creates a runner. Zero config values take the defaults.
func NewRunner(repo Repository, dispatcher Dispatcher, cfg RunnerConfig) *Runner {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	return &Runner{
		repo:       repo,
		dispatcher: dispatcher,
		cfg:        cfg,
		logger:     noopLogger{},
		now:        time.Now,
	}
}

// SetLogger sets the logger for the runner.
func (r *Runner) SetLogger(logger Logger) {
	r.logger = logger
}

// SetRecorder sets the metrics recorder.
func (r *Runner) SetRecorder(recorder Recorder) {
	r.recorder = recorder
}

// Start recovers schedules left running and begins polling. Ticks never
// overlap; a slow tick delays the next one.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cron != nil {
		return ErrRunnerStarted
	}

	reset, err := r.repo.ResetRunning(ctx)
	if err != nil {
		return err
	}
	if reset > 0 {
		r.logger.Warn("requeued interrupted schedules", "count", reset)
	}

	runCtx, cancel := context.WithCancel(ctx)
	logger := cronLogger{r.logger}
	c := cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	spec := fmt.Sprintf("@every %s", r.cfg.PollInterval)
	if _, err := c.AddFunc(spec, func() { r.tick(runCtx) }); err != nil {
		cancel()
		return fmt.Errorf("scheduling runner: %w", err)
	}
	c.Start()

	r.cron = c
	r.cancel = cancel
	r.logger.Info("schedule runner started", "interval", r.cfg.PollInterval, "batch_size", r.cfg.BatchSize)
	return nil
}

// Stop halts polling and waits for an in-flight tick to finish.
func (r *Runner) Stop() {
	r.mu.Lock()
	c, cancel := r.cron, r.cancel
	r.cron, r.cancel = nil, nil
	r.mu.Unlock()

	if c == nil {
		return
	}
	<-c.Stop().Done()
	cancel()
	r.logger.Info("schedule runner stopped")
}

func (r *Runner) tick(ctx context.Context) {
	if _, err := r.RunDue(ctx); err != nil && ctx.Err() == nil {
		r.logger.Error("schedule tick failed", "error", err)
	}
}

// RunDue claims and fires the schedules due now. It returns how many were
// fired, whatever their outcome.
func (r *Runner) RunDue(ctx context.Context) (int, error) {
	due, err := r.repo.ClaimDue(ctx, r.now(), r.cfg.BatchSize)
	if err != nil {
		return 0, err
	}

	var errs []error
	for i := range due {
		if err := r.fire(ctx, &due[i]); err != nil {
			errs = append(errs, err)
		}
	}
	return len(due), errors.Join(errs...)
}

// fire dispatches one claimed schedule and settles it. A dispatch failure
// settles the schedule as failed and is not returned; only a settle error
// is.
//
// The device is resolved by id only. A deleted device fails the schedule
// rather than matching a newer device that reused its name.
func (r *Runner) fire(ctx context.Context, s *Schedule) error {
	log, dispatchErr := r.dispatcher.Dispatch(ctx, command.Request{
		DeviceID:        s.DeviceID,
		Action:          s.Action,
		Payload:         s.Payload,
		Origin:          command.OriginSchedule,
		NaturalLanguage: s.NaturalLanguage,
		ScheduleID:      s.ID,
	})

	status, lastError, logID := StatusExecuted, "", ""
	if log != nil {
		logID = log.ID
	}
	if dispatchErr != nil {
		status, lastError = StatusFailed, dispatchErr.Error()
		r.logger.Warn("scheduled command failed",
			"schedule_id", s.ID, "device_id", s.DeviceID, "action", s.Action, "error", dispatchErr)
	} else {
		r.logger.Info("scheduled command sent",
			"schedule_id", s.ID, "device_id", s.DeviceID, "action", s.Action, "log_id", logID)
	}

	// The schedule is settled even if ctx was cancelled mid-dispatch.
	if err := r.repo.Settle(context.WithoutCancel(ctx), s.ID, status, logID, lastError, r.now()); err != nil {
		return err
	}
	if r.recorder != nil {
		r.recorder.ScheduleRun(string(status))
	}
	return nil
}

// cronLogger adapts Logger to cron.Logger.
type cronLogger struct {
	logger Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
