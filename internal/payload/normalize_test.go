package payload

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

var received = time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

func TestNormalize_StateMessage(t *testing.T) {
	raw := []byte(`{"deviceId":"abc123","deviceName":"Living Lamp","type":"light","location":"Living room","topicCommand":"home/abc123/cmd","state":"on"}`)

	msg := Normalize("home/abc123/state", raw, received)

	if msg.Kind != KindState {
		t.Errorf("Kind = %q, want %q", msg.Kind, KindState)
	}
	if !msg.Structured {
		t.Error("Structured = false, want true")
	}
	want := DeviceHints{
		Identifier:   "abc123",
		Name:         "Living Lamp",
		Type:         "light",
		Location:     "Living room",
		CommandTopic: "home/abc123/cmd",
	}
	if diff := cmp.Diff(want, msg.Device); diff != "" {
		t.Errorf("Device mismatch (-want +got):\n%s", diff)
	}
	if msg.Body["state"] != "on" {
		t.Errorf("Body[state] = %v, want on", msg.Body["state"])
	}
}

func TestNormalize_SensorMessage(t *testing.T) {
	raw := []byte(`{"type":"sensor","deviceId":"abc123","sensorId":"temp","sensorName":"Temperature","metric":"temperature","unit":"°C","value":21.5,"recordedAt":"2026-10-01T11:59:30Z"}`)

	msg := Normalize("home/abc123/telemetry", raw, received)

	if !msg.IsTelemetry() {
		t.Fatalf("Kind = %q, want sensor", msg.Kind)
	}
	if msg.Device.Type != "" {
		t.Errorf("Device.Type = %q, want empty (type carries the message kind)", msg.Device.Type)
	}
	want := SensorHints{
		ID:         "temp",
		Name:       "Temperature",
		Metric:     "temperature",
		Unit:       "°C",
		Value:      21.5,
		HasValue:   true,
		DeclaredAt: time.Date(2026, 10, 1, 11, 59, 30, 0, time.UTC),
	}
	if diff := cmp.Diff(want, msg.Sensor); diff != "" {
		t.Errorf("Sensor mismatch (-want +got):\n%s", diff)
	}
	if !msg.RecordedAt().Equal(want.DeclaredAt) {
		t.Errorf("RecordedAt() = %v, want %v", msg.RecordedAt(), want.DeclaredAt)
	}
}

func TestNormalize_NestedObjects(t *testing.T) {
	raw := []byte(`{"type":"sensor","device":{"id":"esp-7","name":"Garden Node","type":"esp32","topicTelemetry":"garden/esp-7/t"},"sensor":{"id":"soil","name":"Soil","type":"moisture","unit":"%","value":41}}`)

	msg := Normalize("garden/esp-7/t", raw, received)

	if msg.Device.Identifier != "esp-7" {
		t.Errorf("Device.Identifier = %q, want esp-7", msg.Device.Identifier)
	}
	if msg.Device.Name != "Garden Node" || msg.Device.Type != "esp32" {
		t.Errorf("Device = %+v, want name Garden Node type esp32", msg.Device)
	}
	if msg.Device.TelemetryTopic != "garden/esp-7/t" {
		t.Errorf("Device.TelemetryTopic = %q, want garden/esp-7/t", msg.Device.TelemetryTopic)
	}
	if msg.Sensor.ID != "soil" || msg.Sensor.Name != "Soil" || msg.Sensor.Metric != "moisture" {
		t.Errorf("Sensor = %+v, want soil/Soil/moisture", msg.Sensor)
	}
	if msg.Sensor.Value != float64(41) {
		t.Errorf("Sensor.Value = %v, want 41", msg.Sensor.Value)
	}
}

func TestNormalize_TopLevelID(t *testing.T) {
	tests := []struct {
		name       string
		raw        string
		wantDevice string
		wantSensor string
	}{
		{
			name:       "id names the device when nothing else does",
			raw:        `{"type":"sensor","id":"dev-1","value":3}`,
			wantDevice: "dev-1",
			wantSensor: "",
		},
		{
			name:       "id names the sensor when deviceId is present",
			raw:        `{"type":"sensor","deviceId":"dev-1","id":"hum","value":3}`,
			wantDevice: "dev-1",
			wantSensor: "hum",
		},
		{
			name:       "explicit sensorId wins over id",
			raw:        `{"type":"sensor","device_id":"dev-1","sensor_id":"temp","id":"other","value":3}`,
			wantDevice: "dev-1",
			wantSensor: "temp",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := Normalize("t", []byte(tt.raw), received)
			if msg.Device.Identifier != tt.wantDevice {
				t.Errorf("Device.Identifier = %q, want %q", msg.Device.Identifier, tt.wantDevice)
			}
			if msg.Sensor.ID != tt.wantSensor {
				t.Errorf("Sensor.ID = %q, want %q", msg.Sensor.ID, tt.wantSensor)
			}
		})
	}
}

func TestNormalize_TopLevelName(t *testing.T) {
	tests := []struct {
		name       string
		raw        string
		wantDevice string
		wantSensor string
	}{
		{
			name:       "name names the device when nothing else does",
			raw:        `{"type":"sensor","deviceId":"dev-1","name":"Porch","value":3}`,
			wantDevice: "Porch",
			wantSensor: "",
		},
		{
			name:       "name names the sensor when deviceName is present",
			raw:        `{"type":"sensor","deviceId":"dev-1","deviceName":"Porch","name":"Humidity","value":3}`,
			wantDevice: "Porch",
			wantSensor: "Humidity",
		},
		{
			name:       "explicit sensorName wins over name",
			raw:        `{"type":"sensor","deviceName":"Porch","sensorName":"Temp","name":"other","value":3}`,
			wantDevice: "Porch",
			wantSensor: "Temp",
		},
		{
			name:       "state messages have no sensor",
			raw:        `{"deviceName":"Porch","name":"other","state":"on"}`,
			wantDevice: "Porch",
			wantSensor: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := Normalize("t", []byte(tt.raw), received)
			if msg.Device.Name != tt.wantDevice {
				t.Errorf("Device.Name = %q, want %q", msg.Device.Name, tt.wantDevice)
			}
			if msg.Sensor.Name != tt.wantSensor {
				t.Errorf("Sensor.Name = %q, want %q", msg.Sensor.Name, tt.wantSensor)
			}
		})
	}
}

func TestNormalize_NumericIdentifier(t *testing.T) {
	msg := Normalize("t", []byte(`{"deviceId": 1234567, "name": "  Porch  "}`), received)

	if msg.Device.Identifier != "1234567" {
		t.Errorf("Device.Identifier = %q, want 1234567", msg.Device.Identifier)
	}
	if msg.Device.Name != "Porch" {
		t.Errorf("Device.Name = %q, want trimmed Porch", msg.Device.Name)
	}
}

func TestNormalize_BlankValuesFallThrough(t *testing.T) {
	msg := Normalize("t", []byte(`{"deviceId":"  ","device_id":"real"}`), received)

	if msg.Device.Identifier != "real" {
		t.Errorf("Device.Identifier = %q, want real", msg.Device.Identifier)
	}
}

func TestNormalize_Unstructured(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{name: "plain text", raw: "ON"},
		{name: "malformed json", raw: `{"deviceId":`},
		{name: "json array", raw: `[1,2,3]`},
		{name: "json number", raw: `42`},
		{name: "json null", raw: `null`},
		{name: "empty", raw: ``},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := Normalize("home/x/state", []byte(tt.raw), received)

			if msg.Structured {
				t.Error("Structured = true, want false")
			}
			if msg.Kind != KindState {
				t.Errorf("Kind = %q, want state", msg.Kind)
			}
			if diff := cmp.Diff(map[string]any{RawKey: tt.raw}, msg.Body); diff != "" {
				t.Errorf("Body mismatch (-want +got):\n%s", diff)
			}
			if msg.Device != (DeviceHints{}) {
				t.Errorf("Device = %+v, want zero", msg.Device)
			}
		})
	}
}

func TestNormalize_BinaryPayloadIsBase64(t *testing.T) {
	raw := []byte{0xff, 0xfe, 'o', 'n'}

	msg := Normalize("home/x/state", raw, received)

	if msg.Structured {
		t.Error("Structured = true, want false")
	}
	want := map[string]any{RawKey: "//5vbg==", EncodingKey: EncodingBase64}
	if diff := cmp.Diff(want, msg.Body); diff != "" {
		t.Errorf("Body mismatch (-want +got):\n%s", diff)
	}
}

func TestNormalize_SensorValue(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		wantValue any
		wantHas   bool
	}{
		{name: "number", raw: `{"type":"sensor","value":0}`, wantValue: float64(0), wantHas: true},
		{name: "bool", raw: `{"type":"sensor","value":false}`, wantValue: false, wantHas: true},
		{name: "string", raw: `{"type":"sensor","value":"open"}`, wantValue: "open", wantHas: true},
		{name: "null is absent", raw: `{"type":"sensor","value":null}`, wantHas: false},
		{name: "missing", raw: `{"type":"sensor"}`, wantHas: false},
		{name: "nested", raw: `{"type":"sensor","sensor":{"value":7.25}}`, wantValue: 7.25, wantHas: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := Normalize("t", []byte(tt.raw), received)
			if msg.Sensor.HasValue != tt.wantHas {
				t.Fatalf("HasValue = %v, want %v", msg.Sensor.HasValue, tt.wantHas)
			}
			if diff := cmp.Diff(tt.wantValue, msg.Sensor.Value); diff != "" {
				t.Errorf("Value mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestNormalize_Timestamps(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want time.Time
	}{
		{name: "rfc3339 with offset", raw: `{"type":"sensor","recordedAt":"2026-10-01T18:00:00+07:00"}`, want: time.Date(2026, 10, 1, 11, 0, 0, 0, time.UTC)},
		{name: "local layout read as utc", raw: `{"type":"sensor","recorded_at":"2026-10-01 08:30:00"}`, want: time.Date(2026, 10, 1, 8, 30, 0, 0, time.UTC)},
		{name: "epoch seconds", raw: `{"type":"sensor","timestamp":1790000000}`, want: time.Unix(1790000000, 0)},
		{name: "epoch milliseconds", raw: `{"type":"sensor","timestamp":1790000000123}`, want: time.UnixMilli(1790000000123)},
		{name: "numeric string is not an epoch", raw: `{"type":"sensor","timestamp":"1790000000"}`, want: received},
		{name: "garbage falls back to receipt", raw: `{"type":"sensor","recordedAt":"yesterday"}`, want: received},
		{name: "absent falls back to receipt", raw: `{"type":"sensor"}`, want: received},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := Normalize("t", []byte(tt.raw), received)
			if got := msg.RecordedAt(); !got.Equal(tt.want) {
				t.Errorf("RecordedAt() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNormalize_StateKindIgnoresTypeState(t *testing.T) {
	msg := Normalize("t", []byte(`{"type":"state","deviceType":"relay"}`), received)

	if msg.Kind != KindState {
		t.Errorf("Kind = %q, want state", msg.Kind)
	}
	if msg.Device.Type != "relay" {
		t.Errorf("Device.Type = %q, want relay", msg.Device.Type)
	}
}
