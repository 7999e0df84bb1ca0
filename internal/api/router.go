package api

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/go-chi/chi/v5"
)

// healthCheckTimeout bounds the database ping of one /healthz request.
const healthCheckTimeout = 2 * time.Second

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)

	r.Get("/healthz", s.handleHealth)
	r.Get("/metrics", s.handleMetrics)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeNotFound(w, "not found")
	})

	return r
}

// Health statuses.
const (
	healthOK       = "ok"
	healthDegraded = "degraded"
)

// HealthResponse is the /healthz body.
type HealthResponse struct {
	Status        string           `json:"status"`
	Version       string           `json:"version"`
	UptimeSeconds int64            `json:"uptime_seconds"`
	Checks        map[string]Check `json:"checks"`
	Runtime       RuntimeMetrics   `json:"runtime"`
	Database      DatabaseMetrics  `json:"database"`
}

// Check is the outcome of one health probe.
type Check struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// DatabaseMetrics contains database connection pool statistics.
type DatabaseMetrics struct {
	OpenConnections int   `json:"open_connections"`
	InUse           int   `json:"in_use"`
	Idle            int   `json:"idle"`
	WaitCount       int64 `json:"wait_count"`
}

// handleHealth probes the database and the broker link. Any failed probe
// answers 503 so orchestrators can act on the status code alone.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	checks := map[string]Check{
		"database": {OK: true},
	}
	if err := s.db.HealthCheck(ctx); err != nil {
		checks["database"] = Check{OK: false, Error: err.Error()}
	}

	connected, ready := false, false
	if s.broker != nil {
		connected, ready = s.broker.Connected(), s.broker.Ready()
	}
	checks["mqtt"] = probe(connected, "broker not connected")
	checks["subscriptions"] = probe(ready, "subscriptions not established")

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	dbStats := s.db.Stats()

	resp := HealthResponse{
		Status:        healthOK,
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Checks:        checks,
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		Database: DatabaseMetrics{
			OpenConnections: dbStats.OpenConnections,
			InUse:           dbStats.InUse,
			Idle:            dbStats.Idle,
			WaitCount:       dbStats.WaitCount,
		},
	}

	status := http.StatusOK
	for _, c := range checks {
		if !c.OK {
			resp.Status = healthDegraded
			status = http.StatusServiceUnavailable
		}
	}
	writeJSON(w, status, resp)
}

func probe(ok bool, reason string) Check {
	if ok {
		return Check{OK: true}
	}
	return Check{OK: false, Error: reason}
}

// handleMetrics delegates to the Prometheus handler.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if s.metrics == nil {
		writeNotFound(w, "metrics are not enabled")
		return
	}
	s.metrics.ServeHTTP(w, r)
}
