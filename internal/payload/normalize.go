package payload

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"time"
	"unicode/utf8"
)

// Normalize decodes raw into a Message. It never fails: anything that is not
// a JSON object is kept under Body["raw"], base64-encoded when it is not
// valid UTF-8.
func Normalize(topic string, raw []byte, receivedAt time.Time) Message {
	msg := Message{
		Topic:      topic,
		Kind:       KindState,
		ReceivedAt: receivedAt,
	}

	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil || body == nil {
		msg.Body = rawBody(raw)
		return msg
	}
	msg.Body = body
	msg.Structured = true

	if kind, ok := body["type"].(string); ok && strings.EqualFold(strings.TrimSpace(kind), string(KindSensor)) {
		msg.Kind = KindSensor
	}

	identifier, identifierPath := deviceIdentifier.extract(body)
	name, namePath := deviceName.extract(body)
	msg.Device = DeviceHints{
		Identifier:     identifier,
		Name:           name,
		Type:           deviceType.value(body),
		Location:       deviceLocation.value(body),
		StateTopic:     stateTopic.value(body),
		TelemetryTopic: telemetryTopic.value(body),
		CommandTopic:   commandTopic.value(body),
	}

	if msg.Kind == KindSensor {
		msg.Sensor = SensorHints{
			ID:         sensorID.value(body),
			Name:       sensorName.value(body),
			Metric:     sensorMetric.value(body),
			Unit:       sensorUnit.value(body),
			DeclaredAt: parseTimestamp(body),
		}
		// A bare top-level "id" names the sensor only if the device
		// identity came from somewhere else.
		if msg.Sensor.ID == "" && identifierPath != "id" {
			if id, ok := stringValue(body["id"]); ok {
				msg.Sensor.ID = id
			}
		}
		// Likewise a bare top-level "name".
		if msg.Sensor.Name == "" && namePath != "name" {
			if n, ok := stringValue(body["name"]); ok {
				msg.Sensor.Name = n
			}
		}
		msg.Sensor.Value, msg.Sensor.HasValue = readingValue(body)
	}

	return msg
}

// rawBody wraps an undecodable payload. Text is kept as is; other bytes are
// base64-encoded.
func rawBody(raw []byte) map[string]any {
	if utf8.Valid(raw) {
		return map[string]any{RawKey: string(raw)}
	}
	return map[string]any{
		RawKey:      base64.StdEncoding.EncodeToString(raw),
		EncodingKey: EncodingBase64,
	}
}
