package ingest

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/homefleet-core/internal/device"
	"github.com/nerrad567/homefleet-core/internal/payload"
	"github.com/nerrad567/homefleet-core/internal/telemetry"
)

// Defaults applied when Config leaves a field zero.
const (
	DefaultWorkers        = 4
	DefaultQueueSize      = 256
	DefaultEnqueueTimeout = 2 * time.Second
)

// Drop reasons reported to the Recorder.
const (
	DropQueueFull    = "queue_full"
	DropUnattributed = "unattributed"
	DropFailed       = "failed"
)

// Registry resolves messages to devices. *device.Registry satisfies it.
type Registry interface {
	Resolve(ctx context.Context, msg payload.Message) (*device.Device, bool, error)
	RecordState(ctx context.Context, id string, state any, seenAt time.Time) error
}

// TelemetryStore records sensor messages. *telemetry.Store satisfies it.
type TelemetryStore interface {
	Record(ctx context.Context, d *device.Device, msg payload.Message) (*telemetry.Reading, error)
}

// Recorder counts pipeline outcomes. *metrics.Metrics satisfies it.
type Recorder interface {
	MessageIngested(kind string)
	MessageDropped(reason string)
}

// Logger defines the logging interface used by the Pipeline.
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

type noopRecorder struct{}

func (noopRecorder) MessageIngested(string) {}
func (noopRecorder) MessageDropped(string)  {}

// Config holds the pipeline settings.
type Config struct {
	Workers        int
	QueueSize      int
	EnqueueTimeout time.Duration
}

type envelope struct {
	topic      string
	raw        []byte
	receivedAt time.Time
}

// Pipeline fans inbound messages out to per-topic ordered workers.
type Pipeline struct {
	registry Registry
	store    TelemetryStore
	recorder Recorder
	logger   Logger

	queues         []chan envelope
	enqueueTimeout time.Duration
	now            func() time.Time

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started atomic.Bool
	stopped atomic.Bool
	mu      sync.Mutex
}

// New creates a pipeline. Call Start before routing messages to Handle.
func New(registry Registry, store TelemetryStore, cfg Config) *Pipeline {
	workers := cfg.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	timeout := cfg.EnqueueTimeout
	if timeout <= 0 {
		timeout = DefaultEnqueueTimeout
	}

	queues := make([]chan envelope, workers)
	for i := range queues {
		queues[i] = make(chan envelope, queueSize)
	}

	return &Pipeline{
		registry:       registry,
		store:          store,
		recorder:       noopRecorder{},
		logger:         noopLogger{},
		queues:         queues,
		enqueueTimeout: timeout,
		now:            time.Now,
	}
}

// SetLogger sets the logger for the pipeline.
func (p *Pipeline) SetLogger(logger Logger) {
	p.logger = logger
}

// SetRecorder registers a metrics recorder.
func (p *Pipeline) SetRecorder(recorder Recorder) {
	p.recorder = recorder
}

// Start launches the workers. They run until ctx ends or Stop is called.
func (p *Pipeline) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started.Load() {
		return
	}

	p.ctx, p.cancel = context.WithCancel(ctx)
	for i, queue := range p.queues {
		p.wg.Add(1)
		go p.worker(i, queue)
	}
	p.started.Store(true)
	p.logger.Info("ingest pipeline started", "workers", len(p.queues))
}

// Stop cancels the workers and waits for them. Queued messages that were
// not picked up yet are discarded.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started.Load() || p.stopped.Load() {
		return
	}

	p.stopped.Store(true)
	p.cancel()
	p.wg.Wait()
	p.logger.Info("ingest pipeline stopped")
}

// Handle queues one broker message. It has the mqtt.MessageHandler shape.
func (p *Pipeline) Handle(topic string, raw []byte) error {
	if !p.started.Load() {
		return ErrNotStarted
	}
	if p.stopped.Load() {
		return ErrStopped
	}

	env := envelope{topic: topic, raw: raw, receivedAt: p.now()}
	queue := p.queues[shard(topic, len(p.queues))]

	select {
	case queue <- env:
		return nil
	default:
	}

	timer := time.NewTimer(p.enqueueTimeout)
	defer timer.Stop()

	select {
	case queue <- env:
		return nil
	case <-p.ctx.Done():
		return ErrStopped
	case <-timer.C:
		p.recorder.MessageDropped(DropQueueFull)
		return fmt.Errorf("%w: topic %s", ErrQueueFull, topic)
	}
}

func (p *Pipeline) worker(id int, queue <-chan envelope) {
	defer p.wg.Done()
	for {
		select {
		case <-p.ctx.Done():
			return
		case env := <-queue:
			if err := p.Process(p.ctx, env.topic, env.raw, env.receivedAt); err != nil {
				p.logger.Warn("ingest failed", "worker", id, "topic", env.topic, "error", err)
			}
		}
	}
}

// Process runs one message through normalisation, attribution and storage.
//
// Malformed payloads are not errors. A message that resolves to no device
// is counted and dropped without error.
func (p *Pipeline) Process(ctx context.Context, topic string, raw []byte, receivedAt time.Time) error {
	msg := payload.Normalize(topic, raw, receivedAt)

	d, created, err := p.registry.Resolve(ctx, msg)
	if errors.Is(err, device.ErrDeviceNotFound) {
		p.logger.Debug("unattributed message dropped", "topic", topic)
		p.recorder.MessageDropped(DropUnattributed)
		return nil
	}
	if err != nil {
		p.recorder.MessageDropped(DropFailed)
		return fmt.Errorf("resolving device: %w", err)
	}

	if msg.IsTelemetry() {
		_, err = p.store.Record(ctx, d, msg)
	} else {
		err = p.registry.RecordState(ctx, d.ID, msg.Body, msg.ReceivedAt)
	}
	if err != nil {
		p.recorder.MessageDropped(DropFailed)
		return err
	}

	p.recorder.MessageIngested(string(msg.Kind))
	if created {
		p.logger.Debug("message provisioned device", "device_id", d.ID, "topic", topic)
	}
	return nil
}

// shard maps a topic to a worker index.
func shard(topic string, n int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(topic))
	return int(h.Sum32() % uint32(n)) //nolint:gosec // n is a positive worker count
}
