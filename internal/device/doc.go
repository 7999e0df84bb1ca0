// Package device provides the Device Registry for the fleet.
//
// The registry is the catalogue of every physical endpoint that talks to
// the broker. Devices appear two ways: an operator registers them, or the
// first message carrying an unseen identifier provisions them.
//
// # Architecture
//
//	┌──────────────────────────────────────────────────────────────┐
//	│                        Device Registry                       │
//	│                                                              │
//	│  ┌──────────────────┐    ┌──────────────────┐                │
//	│  │     Registry     │    │    Repository    │                │
//	│  │  (registry.go)   │───▶│ (repository.go)  │                │
//	│  │                  │    │                  │                │
//	│  │ • Resolve        │    │ • SQLite queries │                │
//	│  │ • singleflight   │    │ • insert-if-     │                │
//	│  │ • name suffixes  │    │   absent upsert  │                │
//	│  │ • backfill       │    │ • CASE backfill  │                │
//	│  └──────────────────┘    └──────────────────┘                │
//	│           │                                                  │
//	└───────────│──────────────────────────────────────────────────┘
//	            ▼
//	┌──────────────────────┐
//	│  Subscriber (bus)    │
//	│  new device topics   │
//	└──────────────────────┘
//
// # Resolution
//
// An inbound message resolves in this order: a device whose state or
// telemetry topic equals the message topic, then a device with the message
// identifier, then a newly provisioned device when the message has an
// identifier. Provisioning is atomic per identifier: concurrent callers in
// the process share one attempt, and the insert itself does nothing when
// another writer got there first.
//
// # Usage
//
//	repo := device.NewSQLiteRepository(db.DB)
//	registry := device.NewRegistry(repo, busManager)
//	registry.SetLogger(log)
//
//	dev, created, err := registry.Resolve(ctx, msg)
//	if errors.Is(err, device.ErrDeviceNotFound) {
//	    // no topic match and no identifier to provision from
//	}
//
// # Thread Safety
//
// The Registry is safe for concurrent use. The Repository implementation
// must also be thread-safe.
package device
