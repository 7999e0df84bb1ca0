// Package metrics exposes Prometheus counters for the ingest, command and
// schedule pipelines.
//
// Every method is safe on a nil *Metrics, so components can take one
// optionally and tests can leave it out.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "homefleet"

// Metrics holds the collectors and the registry they are registered on.
type Metrics struct {
	registry *prometheus.Registry

	messagesIngested   *prometheus.CounterVec
	messagesDropped    *prometheus.CounterVec
	devicesProvisioned prometheus.Counter
	readingsStored     prometheus.Counter
	commandsDispatched *prometheus.CounterVec
	schedulesCreated   prometheus.Counter
	scheduleRuns       *prometheus.CounterVec
	interpretations    *prometheus.CounterVec
	brokerConnected    prometheus.Gauge
}

// New creates a private registry with the Go and process collectors plus the
// homefleet counters.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		messagesIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_ingested_total",
			Help:      "Inbound broker messages processed, by message kind.",
		}, []string{"kind"}),
		messagesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_dropped_total",
			Help:      "Inbound broker messages not stored, by reason.",
		}, []string{"reason"}),
		devicesProvisioned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "devices_provisioned_total",
			Help:      "Devices created automatically from first-seen identifiers.",
		}),
		readingsStored: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sensor_readings_total",
			Help:      "Sensor readings appended to the time series.",
		}),
		commandsDispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_dispatched_total",
			Help:      "Command dispatch attempts, by final status and origin.",
		}, []string{"status", "origin"}),
		schedulesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "schedules_created_total",
			Help:      "Deferred commands accepted.",
		}),
		scheduleRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "schedule_runs_total",
			Help:      "Due schedules fired, by outcome.",
		}, []string{"status"}),
		interpretations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "interpretations_total",
			Help:      "Natural-language prompts interpreted, by source and kind.",
		}, []string{"source", "kind"}),
		brokerConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "broker_connected",
			Help:      "1 while the MQTT connection is up and subscriptions are restored.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.messagesIngested,
		m.messagesDropped,
		m.devicesProvisioned,
		m.readingsStored,
		m.commandsDispatched,
		m.schedulesCreated,
		m.scheduleRuns,
		m.interpretations,
		m.brokerConnected,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) MessageIngested(kind string) {
	if m != nil {
		m.messagesIngested.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) MessageDropped(reason string) {
	if m != nil {
		m.messagesDropped.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) DeviceProvisioned() {
	if m != nil {
		m.devicesProvisioned.Inc()
	}
}

func (m *Metrics) ReadingStored() {
	if m != nil {
		m.readingsStored.Inc()
	}
}

func (m *Metrics) CommandDispatched(status, origin string) {
	if m != nil {
		m.commandsDispatched.WithLabelValues(status, origin).Inc()
	}
}

func (m *Metrics) ScheduleCreated() {
	if m != nil {
		m.schedulesCreated.Inc()
	}
}

func (m *Metrics) ScheduleRun(status string) {
	if m != nil {
		m.scheduleRuns.WithLabelValues(status).Inc()
	}
}

func (m *Metrics) Interpreted(source, kind string) {
	if m != nil {
		m.interpretations.WithLabelValues(source, kind).Inc()
	}
}

// SetBrokerConnected records whether the bus is ready.
func (m *Metrics) SetBrokerConnected(up bool) {
	if m == nil {
		return
	}
	if up {
		m.brokerConnected.Set(1)
	} else {
		m.brokerConnected.Set(0)
	}
}
