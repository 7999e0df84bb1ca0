package device

import (
	"strconv"
	"unicode/utf8"
)

// fallbackLabel prefixes generated names for devices that announce no name.
const fallbackLabel = "Device"

// maxNameAttempts bounds the suffix search. Hitting it means something other
// than ordinary collisions is going on.
const maxNameAttempts = 1000

// fallbackName builds "Device <last 4 chars of identifier>".
func fallbackName(identifier string) string {
	tail := identifier
	if n := utf8.RuneCountInString(identifier); n > 4 {
		runes := []rune(identifier)
		tail = string(runes[n-4:])
	}
	return fallbackLabel + " " + tail
}

// candidateName returns the n-th name to try: "X", "X 2", "X 3", ...
func candidateName(base string, n int) string {
	if n <= 1 {
		return base
	}
	return base + " " + strconv.Itoa(n)
}
