// Package ingest connects inbound broker messages to the registry and the
// telemetry store.
//
// The broker client delivers messages on one goroutine. Pipeline.Handle
// hashes the topic onto a fixed set of workers, so messages on one topic
// are processed in arrival order while different topics run concurrently.
// Each worker has a bounded queue. When a queue stays full past the enqueue
// timeout the message is dropped and counted rather than stalling the
// broker client, whose acknowledgements share the delivery goroutine.
package ingest
