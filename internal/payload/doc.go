// Package payload turns raw broker messages into a normalized Message.
//
// Devices in the field send whatever shape their firmware author chose:
// "deviceId" or "device_id" or a nested {"device": {"id": ...}}, numbers
// where strings were expected, or plain text. Normalize never fails on any
// of that. It decodes JSON objects, wraps everything else as
// {"raw": "<text>"}, and pulls identity hints through an ordered table of
// field extractors (see extractors.go).
//
// Normalize is a pure function; storage and subscription side effects live
// in internal/device, internal/telemetry and internal/ingest.
package payload
