// Package api implements the operations listener for homefleet.
//
// It serves two endpoints:
//   - GET /healthz reports database reachability, broker connectivity and
//     subscription readiness as JSON, with 503 when any of them is down
//   - GET /metrics exposes the Prometheus registry
//
// The server follows the same lifecycle pattern as other infrastructure
// components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api
