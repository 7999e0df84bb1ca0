package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, device.ErrDeviceNotFound) {
//	    // handle not found case
//	}
var (
	// ErrDeviceNotFound is returned when no device matches an id, name,
	// topic or identifier.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrDeviceExists is returned when a device with the same id or
	// identifier already exists.
	ErrDeviceExists = errors.New("device: already exists")

	// ErrNameTaken is returned when another device already uses the name,
	// compared case-insensitively.
	ErrNameTaken = errors.New("device: name taken")

	// ErrInvalidDevice is returned when device validation fails.
	ErrInvalidDevice = errors.New("device: invalid")
)
