package command

import "errors"

var (
	// ErrInvalidInput is returned when a request has no action or no device
	// reference.
	ErrInvalidInput = errors.New("command: invalid input")

	// ErrUnconfigured is returned when the target device has no command
	// topic.
	ErrUnconfigured = errors.New("command: device has no command topic")

	// ErrLogNotFound is returned when a command log id does not exist.
	ErrLogNotFound = errors.New("command: log not found")

	// ErrStaleStatus is returned when a status transition finds the log in a
	// different status than expected.
	ErrStaleStatus = errors.New("command: stale status")
)
