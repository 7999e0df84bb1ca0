// Package telemetry stores sensor metadata and readings.
//
// For every sensor message the Store upserts the sensor embedded in the
// device (keyed by device and sensor id), appends an immutable reading and
// refreshes the device's last telemetry, all in one transaction. Numeric
// readings are then mirrored to InfluxDB when a mirror is configured.
package telemetry
