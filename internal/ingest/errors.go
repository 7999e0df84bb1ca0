package ingest

import "errors"

var (
	// ErrNotStarted is returned by Handle before Start.
	ErrNotStarted = errors.New("ingest: pipeline not started")

	// ErrStopped is returned by Handle once the pipeline is stopping.
	ErrStopped = errors.New("ingest: pipeline stopped")

	// ErrQueueFull is returned when a message could not be queued within
	// the enqueue timeout.
	ErrQueueFull = errors.New("ingest: queue full")
)
