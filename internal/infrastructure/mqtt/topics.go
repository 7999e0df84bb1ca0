package mqtt

import "strings"

// SystemStatusTopic carries the retained online/offline status of this
// process. The LWT publishes "offline" here when the connection drops.
const SystemStatusTopic = "homefleet/system/status"

// ValidateFilter checks an MQTT topic filter: non-empty, "+" only as a whole
// level, "#" only as the final level.
func ValidateFilter(filter string) error {
	if filter == "" {
		return ErrInvalidTopic
	}
	levels := strings.Split(filter, "/")
	for i, level := range levels {
		switch {
		case level == "#" && i != len(levels)-1:
			return ErrInvalidTopic
		case level != "#" && level != "+" && strings.ContainsAny(level, "#+"):
			return ErrInvalidTopic
		}
	}
	return nil
}

// IsWildcard reports whether filter contains "+" or "#".
func IsWildcard(filter string) bool {
	return strings.ContainsAny(filter, "#+")
}

// Matches reports whether a concrete topic is delivered to a subscription on
// filter, following MQTT 3.1.1 section 4.7.
//
//	Matches("home/#", "home/abc123/telemetry")     // true
//	Matches("home/+/state", "home/abc123/state")   // true
//	Matches("home/+", "home/abc123/state")         // false
func Matches(filter, topic string) bool {
	if filter == topic {
		return true
	}
	// Wildcards never match topics starting with "$" (broker internals).
	if strings.HasPrefix(topic, "$") && IsWildcard(filter) {
		return false
	}

	f := strings.Split(filter, "/")
	t := strings.Split(topic, "/")
	for i, level := range f {
		if level == "#" {
			return true
		}
		if i >= len(t) {
			return false
		}
		if level != "+" && level != t[i] {
			return false
		}
	}
	return len(f) == len(t)
}
