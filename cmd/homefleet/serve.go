package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/homefleet-core/internal/api"
	"github.com/nerrad567/homefleet-core/internal/bus"
	"github.com/nerrad567/homefleet-core/internal/infrastructure/database"
	"github.com/nerrad567/homefleet-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/homefleet-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/homefleet-core/internal/ingest"
	"github.com/nerrad567/homefleet-core/internal/schedule"
	"github.com/nerrad567/homefleet-core/internal/telemetry"
)

// enqueueTimeout bounds how long the MQTT callback waits on a full worker
// queue before the message is dropped.
const enqueueTimeout = 2 * time.Second

func newServeCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the fleet service until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), getConfigPath(opts.configPath))
		},
	}
}

// run is the service lifecycle, separated from the command for testability.
// It returns nil on a clean shutdown once ctx is cancelled.
func run(ctx context.Context, configPath string) error {
	a, err := openApp(ctx, configPath, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	log := a.log
	cfg := a.cfg
	log.Info("starting homefleet",
		"version", version,
		"commit", commit,
		"build_date", date,
		"site", cfg.Site.ID,
	)

	// Connect to MQTT broker
	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	a.onClose(func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	})
	mqttClient.SetLogger(log.With("component", "mqtt"))
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	// Connect to InfluxDB (optional)
	var mirror telemetry.Mirror
	influxClient, err := influxdb.Connect(cfg.InfluxDB)
	switch {
	case errors.Is(err, influxdb.ErrDisabled):
		log.Info("InfluxDB disabled")
	case err != nil:
		return fmt.Errorf("connecting to InfluxDB: %w", err)
	default:
		a.onClose(func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		})
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		mirror = influxClient
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	}

	// The manager routes messages to the pipeline, the pipeline resolves
	// devices through the registry, and the registry subscribes through the
	// manager. The closure breaks the cycle; nothing is delivered before
	// manager.Start below.
	var pipeline *ingest.Pipeline
	manager := bus.NewManager(mqttClient, func(topic string, payload []byte) error {
		return pipeline.Handle(topic, payload)
	}, bus.Config{
		DiscoveryTopics: cfg.MQTT.DiscoveryTopics,
		QoS:             byte(cfg.MQTT.QoS),
	})
	manager.SetLogger(log.With("component", "bus"))
	manager.SetObserver(a.metrics)

	a.wire(ctx, manager, manager, mirror)

	pipeline = ingest.New(a.registry, a.readings, ingest.Config{
		Workers:        cfg.Ingest.Workers,
		QueueSize:      cfg.Ingest.QueueSize,
		EnqueueTimeout: enqueueTimeout,
	})
	pipeline.SetLogger(log.With("component", "ingest"))
	pipeline.SetRecorder(a.metrics)
	pipeline.Start(ctx)
	a.onClose(pipeline.Stop)

	// A failed first pass is not fatal: the manager retries on reconnect
	// and /healthz reports subscriptions as not ready meanwhile.
	if startErr := manager.Start(ctx, a.registry); startErr != nil {
		log.Warn("initial subscription pass incomplete", "error", startErr)
	} else {
		log.Info("subscriptions ready", "count", manager.SubscriptionCount())
	}

	// Schedule runner
	if cfg.Scheduler.Enabled {
		runner := schedule.NewRunner(a.scheduleRepo, a.commands, schedule.RunnerConfig{
			PollInterval: cfg.GetPollInterval(),
			BatchSize:    cfg.Scheduler.BatchSize,
		})
		runner.SetLogger(log.With("component", "scheduler"))
		runner.SetRecorder(a.metrics)
		if startErr := runner.Start(ctx); startErr != nil {
			return fmt.Errorf("starting schedule runner: %w", startErr)
		}
		a.onClose(runner.Stop)
		log.Info("schedule runner started", "poll_interval", cfg.GetPollInterval())
	} else {
		log.Info("schedule runner disabled")
	}

	// Operations listener
	if cfg.API.Enabled {
		server, newErr := api.New(api.Deps{
			Config:  cfg.API,
			Logger:  log.With("component", "api"),
			DB:      a.db,
			Broker:  manager,
			Metrics: a.metrics.Handler(),
			Version: version,
		})
		if newErr != nil {
			return fmt.Errorf("creating API server: %w", newErr)
		}
		if startErr := server.Start(ctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		a.onClose(func() {
			if closeErr := server.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		})
	}

	if err := healthCheck(ctx, a.db, mqttClient); err != nil {
		log.Warn("startup health check failed", "error", err)
	}

	log.Info("homefleet started")
	<-ctx.Done()
	log.Info("shutting down")
	return nil
}

// healthCheck verifies the core dependencies once at startup.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var errs []error
	if err := db.HealthCheck(ctx); err != nil {
		errs = append(errs, fmt.Errorf("database: %w", err))
	}
	if err := mqttClient.HealthCheck(ctx); err != nil {
		errs = append(errs, fmt.Errorf("mqtt: %w", err))
	}
	return errors.Join(errs...)
}
