package interpret

import "errors"

var (
	// ErrInvalidInput is returned for a blank prompt.
	ErrInvalidInput = errors.New("interpret: prompt is required")

	// ErrNoFunctionCall is returned by a Backend whose answer carried no
	// function call.
	ErrNoFunctionCall = errors.New("interpret: no function call in response")

	// ErrUnusableCall is returned when a function call is unknown or lacks a
	// device or action.
	ErrUnusableCall = errors.New("interpret: unusable function call")
)
