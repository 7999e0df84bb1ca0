package main

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"

	"github.com/nerrad567/homefleet-core/internal/bus"
	"github.com/nerrad567/homefleet-core/internal/command"
	"github.com/nerrad567/homefleet-core/internal/device"
	"github.com/nerrad567/homefleet-core/internal/infrastructure/config"
	"github.com/nerrad567/homefleet-core/internal/infrastructure/database"
	"github.com/nerrad567/homefleet-core/internal/infrastructure/logging"
	"github.com/nerrad567/homefleet-core/internal/infrastructure/metrics"
	"github.com/nerrad567/homefleet-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/homefleet-core/internal/interpret"
	"github.com/nerrad567/homefleet-core/internal/schedule"
	"github.com/nerrad567/homefleet-core/internal/telemetry"
	"github.com/nerrad567/homefleet-core/migrations"
)

// app holds the components shared by serve and the one-shot commands.
// Storage comes up in openApp; the domain services come up in wire, once the
// caller knows how it reaches the broker.
type app struct {
	cfg     *config.Config
	log     *logging.Logger
	db      *database.DB
	metrics *metrics.Metrics

	registry     *device.Registry
	readings     *telemetry.Store
	commands     *command.Dispatcher
	scheduleRepo *schedule.SQLiteRepository
	schedules    *schedule.Service
	interpreter  *interpret.Interpreter
	assistant    *interpret.Assistant

	closers []func()
}

// openApp loads config, opens and migrates the database.
func openApp(ctx context.Context, configPath string, logOutput io.Writer) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	var log *logging.Logger
	if logOutput != nil {
		log = logging.NewWithWriter(cfg.Logging, version, logOutput)
	} else {
		log = logging.New(cfg.Logging, version)
	}

	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	a := &app{cfg: cfg, log: log, db: db, metrics: metrics.New()}
	a.onClose(func() {
		log.Debug("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	})

	if err := db.Migrate(ctx, migrations.FS); err != nil {
		a.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	log.Debug("database ready", "path", cfg.Database.Path)
	return a, nil
}

// wire builds the domain services. subscriber may be nil when the process
// holds no long-lived subscriptions; mirror may be nil when InfluxDB is off.
func (a *app) wire(ctx context.Context, subscriber device.Subscriber, publisher command.Publisher, mirror telemetry.Mirror) {
	a.registry = device.NewRegistry(device.NewSQLiteRepository(a.db.DB), subscriber)
	a.registry.SetLogger(a.log.With("component", "device"))
	a.registry.SetRecorder(a.metrics)

	a.readings = telemetry.NewStore(telemetry.NewSQLiteRepository(a.db), mirror)
	a.readings.SetRecorder(a.metrics)

	a.commands = command.NewDispatcher(a.registry, command.NewSQLiteRepository(a.db.DB), publisher)
	a.commands.SetLogger(a.log.With("component", "command"))
	a.commands.SetRecorder(a.metrics)

	loc := a.cfg.Location()
	a.scheduleRepo = schedule.NewSQLiteRepository(a.db)
	a.schedules = schedule.NewService(a.registry, a.scheduleRepo)
	a.schedules.SetLogger(a.log.With("component", "schedule"))
	a.schedules.SetRecorder(a.metrics)
	a.schedules.SetLocation(loc)

	a.interpreter = interpret.New(a.assistantBackend(ctx))
	a.interpreter.SetLogger(a.log.With("component", "interpret"))
	a.interpreter.SetRecorder(a.metrics)
	a.interpreter.SetLocation(loc)
	a.interpreter.SetTimeout(a.cfg.GetAssistantTimeout())

	a.assistant = interpret.NewAssistant(a.interpreter, a.commands, a.schedules)
	a.assistant.SetLogger(a.log.With("component", "assistant"))
}

// assistantBackend returns the Gemini backend when one is configured. Any
// problem leaves the fallback parser in charge; it is never fatal.
func (a *app) assistantBackend(ctx context.Context) interpret.Backend {
	if a.cfg.Assistant.Provider != "gemini" || a.cfg.Assistant.APIKey == "" {
		a.log.Debug("assistant backend disabled, using fallback parser")
		return nil
	}
	backend, err := interpret.NewGeminiBackend(ctx, a.cfg.Assistant.APIKey, a.cfg.Assistant.Model, a.cfg.Location())
	if err != nil {
		a.log.Warn("assistant backend unavailable, using fallback parser", "error", err)
		return nil
	}
	return backend
}

// onClose registers cleanup to run in reverse order on Close.
func (a *app) onClose(fn func()) {
	a.closers = append(a.closers, fn)
}

// Close releases everything openApp and wire acquired.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// brokerLink is the publisher of the one-shot commands. It dials the broker
// on first publish, so commands that never publish never touch the network.
//
// It connects under its own client id and without presence announcements so
// a running serve process keeps its session and its retained status.
type brokerLink struct {
	cfg config.MQTTConfig
	log *logging.Logger

	once    sync.Once
	client  *mqtt.Client
	manager *bus.Manager
	err     error
}

func newBrokerLink(cfg config.MQTTConfig, log *logging.Logger) *brokerLink {
	return &brokerLink{cfg: cfg, log: log}
}

// Publish sends message to topic, connecting first if needed. A broker that
// cannot be reached reports bus.ErrTransportUnavailable.
func (l *brokerLink) Publish(ctx context.Context, topic string, message []byte) error {
	l.once.Do(l.dial)
	if l.err != nil {
		return fmt.Errorf("%w: %w", bus.ErrTransportUnavailable, l.err)
	}
	return l.manager.Publish(ctx, topic, message)
}

func (l *brokerLink) dial() {
	cfg := l.cfg
	cfg.Broker.ClientID = fmt.Sprintf("%s-cli-%s", cfg.Broker.ClientID, uuid.NewString()[:8])

	client, err := mqtt.Connect(cfg, mqtt.WithoutPresence())
	if err != nil {
		l.err = err
		return
	}
	client.SetLogger(l.log)
	l.client = client
	l.manager = bus.NewManager(client, nil, bus.Config{QoS: byte(cfg.QoS)})
	l.log.Debug("connected to MQTT broker", "client_id", cfg.Broker.ClientID)
}

// Close disconnects if a connection was made.
func (l *brokerLink) Close() {
	if l.client == nil {
		return
	}
	if err := l.client.Close(); err != nil {
		l.log.Error("error closing MQTT", "error", err)
	}
}
