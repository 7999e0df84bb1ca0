package payload

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// extractor describes where one logical field may appear: a list of
// top-level aliases, then the same or other aliases inside a nested object.
// The first non-empty trimmed string wins.
type extractor struct {
	top    []string
	nested string
	inner  []string

	// reject drops a candidate value, letting later aliases win.
	reject func(string) bool
}

// Nested object keys.
const (
	nestedDevice = "device"
	nestedSensor = "sensor"
)

var (
	deviceIdentifier = extractor{
		top:    []string{"deviceId", "device_id", "identifier", "id"},
		nested: nestedDevice,
		inner:  []string{"deviceId", "device_id", "identifier", "id"},
	}
	deviceName = extractor{
		top:    []string{"deviceName", "name"},
		nested: nestedDevice,
		inner:  []string{"deviceName", "name"},
	}
	// Top-level "type" doubles as the message kind; only other values are
	// device types.
	deviceType = extractor{
		top:    []string{"deviceType", "type"},
		nested: nestedDevice,
		inner:  []string{"deviceType", "type"},
		reject: isKindValue,
	}
	deviceLocation = extractor{
		top:    []string{"location", "room"},
		nested: nestedDevice,
		inner:  []string{"location", "room"},
	}
	stateTopic = extractor{
		top:    []string{"topicState", "stateTopic"},
		nested: nestedDevice,
		inner:  []string{"topicState", "stateTopic"},
	}
	telemetryTopic = extractor{
		top:    []string{"topicTelemetry", "telemetryTopic"},
		nested: nestedDevice,
		inner:  []string{"topicTelemetry", "telemetryTopic"},
	}
	commandTopic = extractor{
		top:    []string{"topicCommand", "commandTopic"},
		nested: nestedDevice,
		inner:  []string{"topicCommand", "commandTopic"},
	}

	sensorID = extractor{
		top:    []string{"sensorId", "sensor_id"},
		nested: nestedSensor,
		inner:  []string{"sensorId", "sensor_id", "id"},
	}
	// Top-level "name" belongs to the device unless "deviceName" is also
	// present; Normalize handles that case.
	sensorName = extractor{
		top:    []string{"sensorName"},
		nested: nestedSensor,
		inner:  []string{"sensorName", "name"},
	}
	// Top-level "type" is the message kind, so only the nested object may
	// use it for the metric.
	sensorMetric = extractor{
		top:    []string{"metric"},
		nested: nestedSensor,
		inner:  []string{"metric", "type"},
	}
	sensorUnit = extractor{
		top:    []string{"unit"},
		nested: nestedSensor,
		inner:  []string{"unit"},
	}
	recordedAt = extractor{
		top:    []string{"recordedAt", "recorded_at", "timestamp"},
		nested: nestedSensor,
		inner:  []string{"recordedAt", "recorded_at", "timestamp"},
	}
)

func isKindValue(v string) bool {
	switch strings.ToLower(v) {
	case string(KindState), string(KindSensor):
		return true
	}
	return false
}

// extract returns the first matching value and the key path it came from
// ("id", "device.id", ...). Both are empty when nothing matched.
func (e extractor) extract(body map[string]any) (value, path string) {
	for _, key := range e.top {
		if v, ok := stringValue(body[key]); ok && (e.reject == nil || !e.reject(v)) {
			return v, key
		}
	}
	if e.nested == "" {
		return "", ""
	}
	inner, ok := body[e.nested].(map[string]any)
	if !ok {
		return "", ""
	}
	for _, key := range e.inner {
		if v, ok := stringValue(inner[key]); ok && (e.reject == nil || !e.reject(v)) {
			return v, e.nested + "." + key
		}
	}
	return "", ""
}

func (e extractor) value(body map[string]any) string {
	v, _ := e.extract(body)
	return v
}

// stringValue renders identity-like JSON values as trimmed strings.
// Numbers are accepted because firmware often sends numeric ids.
func stringValue(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		s := strings.TrimSpace(t)
		return s, s != ""
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return "", false
		}
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case json.Number:
		return t.String(), true
	default:
		return "", false
	}
}

// readingValue finds the reading: top-level "value", then "sensor.value".
// JSON null counts as absent.
func readingValue(body map[string]any) (any, bool) {
	if v, ok := body["value"]; ok && v != nil {
		return v, true
	}
	if inner, ok := body[nestedSensor].(map[string]any); ok {
		if v, ok := inner["value"]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

// timestampLayouts are tried in order for payload-declared times.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
}

// parseTimestamp accepts ISO-8601 strings and Unix epochs in seconds or
// milliseconds. Local layouts without an offset are read as UTC.
func parseTimestamp(body map[string]any) time.Time {
	raw, path := recordedAt.extract(body)
	if raw == "" {
		return time.Time{}
	}

	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t
		}
	}

	// Epochs arrive as JSON numbers; stringValue has already formatted them.
	if n, err := strconv.ParseFloat(raw, 64); err == nil && n > 0 && isNumeric(body, path) {
		const msThreshold = 1e12
		if n >= msThreshold {
			return time.UnixMilli(int64(n)).UTC()
		}
		sec, frac := math.Modf(n)
		return time.Unix(int64(sec), int64(frac*1e9)).UTC()
	}
	return time.Time{}
}

func isNumeric(body map[string]any, path string) bool {
	var v any
	if nested, key, ok := strings.Cut(path, "."); ok {
		inner, _ := body[nested].(map[string]any)
		v = inner[key]
	} else {
		v = body[path]
	}
	_, ok := v.(float64)
	return ok
}
