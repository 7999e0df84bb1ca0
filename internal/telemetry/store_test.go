package telemetry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/nerrad567/homefleet-core/internal/device"
	"github.com/nerrad567/homefleet-core/internal/infrastructure/database"
	"github.com/nerrad567/homefleet-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/homefleet-core/internal/payload"
	"github.com/nerrad567/homefleet-core/migrations"
)

// ─── Fakes ──────────────────────────────────────────────────────────

type fakeMirror struct {
	points []influxdb.SensorPoint
}

func (f *fakeMirror) WriteSensorReading(p influxdb.SensorPoint) {
	f.points = append(f.points, p)
}

type countingRecorder struct{ count int }

func (c *countingRecorder) ReadingStored() { c.count++ }

// ─── Helpers ────────────────────────────────────────────────────────

type fixture struct {
	db      *database.DB
	devices *device.SQLiteRepository
	store   *Store
	mirror  *fakeMirror
	device  *device.Device
}

func setup(t *testing.T) *fixture {
	t.Helper()

	db, err := database.Open(database.Config{Path: database.MemoryPath, BusyTimeout: 1})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(context.Background(), migrations.FS); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	devices := device.NewSQLiteRepository(db.DB)
	d := &device.Device{Name: "Thermo", Identifier: "abc123", TelemetryTopic: "home/abc123/telemetry"}
	if err := devices.Create(context.Background(), d); err != nil {
		t.Fatalf("creating device: %v", err)
	}

	mirror := &fakeMirror{}
	return &fixture{
		db:      db,
		devices: devices,
		store:   NewStore(NewSQLiteRepository(db), mirror),
		mirror:  mirror,
		device:  d,
	}
}

var receivedAt = time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

func msg(raw string) payload.Message {
	return payload.Normalize("home/abc123/telemetry", []byte(raw), receivedAt)
}

func (f *fixture) reload(t *testing.T) *device.Device {
	t.Helper()
	d, err := f.devices.GetByID(context.Background(), f.device.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	return d
}

// ─── Tests ──────────────────────────────────────────────────────────

func TestStore_RecordNewSensor(t *testing.T) {
	f := setup(t)
	recorder := &countingRecorder{}
	f.store.SetRecorder(recorder)

	reading, err := f.store.Record(context.Background(), f.device,
		msg(`{"type":"sensor","deviceId":"abc123","sensorId":"temp1","metric":"temperature","value":21.5,"unit":"C"}`))
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	if reading.ID == "" || reading.Metric != "temperature" || reading.Value != 21.5 {
		t.Errorf("Record() = %+v, want temperature 21.5 with an id", reading)
	}

	d := f.reload(t)
	if len(d.Sensors) != 1 {
		t.Fatalf("Sensors = %d, want 1", len(d.Sensors))
	}
	s := d.Sensors[0]
	if s.SensorID != "temp1" || s.Metric != "temperature" || s.Unit != "C" || s.LastValue != 21.5 {
		t.Errorf("Sensor = %+v, want temp1 temperature C 21.5", s)
	}
	if s.LastRecordedAt == nil || !s.LastRecordedAt.Equal(receivedAt) {
		t.Errorf("LastRecordedAt = %v, want receipt time", s.LastRecordedAt)
	}
	if d.LastSeenAt == nil || !d.LastSeenAt.Equal(receivedAt) {
		t.Errorf("LastSeenAt = %v, want receipt time", d.LastSeenAt)
	}
	body, ok := d.LastTelemetry.(map[string]any)
	if !ok || body["sensorId"] != "temp1" {
		t.Errorf("LastTelemetry = %v, want the normalized body", d.LastTelemetry)
	}

	want := []influxdb.SensorPoint{{
		DeviceID: f.device.ID, DeviceName: "Thermo", SensorID: "temp1",
		Metric: "temperature", Unit: "C", Value: 21.5, RecordedAt: receivedAt,
	}}
	if diff := cmp.Diff(want, f.mirror.points); diff != "" {
		t.Errorf("mirrored points mismatch (-want +got):\n%s", diff)
	}
	if recorder.count != 1 {
		t.Errorf("ReadingStored calls = %d, want 1", recorder.count)
	}
}

func TestStore_UpsertKeepsAbsentFields(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	messages := []string{
		`{"type":"sensor","sensorId":"temp1","sensorName":"Kitchen","metric":"temperature","unit":"C","value":20}`,
		`{"type":"sensor","sensorId":"hum","metric":"humidity","value":55}`,
		`{"type":"sensor","sensorId":"temp1","value":22.5,"recordedAt":"2026-10-01T13:00:00Z"}`,
		`{"type":"sensor","sensorId":"temp1","unit":"F"}`,
	}
	for i, m := range messages {
		if _, err := f.store.Record(ctx, f.device, msg(m)); err != nil {
			t.Fatalf("Record(#%d) error = %v", i, err)
		}
	}

	d := f.reload(t)
	if len(d.Sensors) != 2 {
		t.Fatalf("Sensors = %+v, want exactly 2", d.Sensors)
	}
	if d.Sensors[0].SensorID != "temp1" || d.Sensors[1].SensorID != "hum" {
		t.Errorf("sensor order = %s,%s, want temp1,hum", d.Sensors[0].SensorID, d.Sensors[1].SensorID)
	}

	temp := d.Sensors[0]
	wantAt := time.Date(2026, 10, 1, 13, 0, 0, 0, time.UTC)
	if temp.Name != "Kitchen" || temp.Metric != "temperature" || temp.Unit != "F" || temp.LastValue != 22.5 {
		t.Errorf("temp1 = %+v, want Kitchen temperature F 22.5", temp)
	}
	if temp.LastRecordedAt == nil || !temp.LastRecordedAt.Equal(wantAt) {
		t.Errorf("temp1 LastRecordedAt = %v, want %v (a value-less update keeps it)", temp.LastRecordedAt, wantAt)
	}

	readings, err := f.store.ListReadings(ctx, f.device.ID, 0)
	if err != nil {
		t.Fatalf("ListReadings() error = %v", err)
	}
	if len(readings) != 4 {
		t.Errorf("ListReadings() = %d rows, want 4 (one per message)", len(readings))
	}
}

func TestStore_RecordWithoutSensorID(t *testing.T) {
	f := setup(t)

	reading, err := f.store.Record(context.Background(), f.device, msg(`{"type":"sensor","deviceId":"abc123","value":"open"}`))
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if reading.Metric != DefaultMetric {
		t.Errorf("Metric = %q, want %q", reading.Metric, DefaultMetric)
	}

	d := f.reload(t)
	if len(d.Sensors) != 0 {
		t.Errorf("Sensors = %+v, want none", d.Sensors)
	}
	if d.LastTelemetry == nil || d.LastSeenAt == nil {
		t.Error("device telemetry not updated without a sensor id")
	}
	if len(f.mirror.points) != 0 {
		t.Errorf("mirrored %d points for a non-numeric value, want 0", len(f.mirror.points))
	}
}

func TestStore_RecordUnknownDevice(t *testing.T) {
	f := setup(t)

	_, err := f.store.Record(context.Background(), &device.Device{ID: "gone"}, msg(`{"type":"sensor","sensorId":"x","value":1}`))
	if !errors.Is(err, device.ErrDeviceNotFound) {
		t.Fatalf("Record() error = %v, want ErrDeviceNotFound", err)
	}

	// The transaction rolled back: no orphan reading or sensor.
	var readings int
	if err := f.db.QueryRowContext(context.Background(), `SELECT COUNT(*) FROM sensor_readings`).Scan(&readings); err != nil {
		t.Fatalf("counting readings: %v", err)
	}
	if readings != 0 {
		t.Errorf("readings = %d after failed Record, want 0", readings)
	}
}

func TestStore_ListReadings(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	for i := 0; i < 60; i++ {
		at := receivedAt.Add(time.Duration(i) * time.Minute).Format(time.RFC3339)
		raw := fmt.Sprintf(`{"type":"sensor","sensorId":"temp1","value":%d,"recordedAt":%q}`, i, at)
		if _, err := f.store.Record(ctx, f.device, msg(raw)); err != nil {
			t.Fatalf("Record(%d) error = %v", i, err)
		}
	}

	tests := []struct {
		name      string
		limit     int
		wantCount int
	}{
		{name: "default limit", limit: 0, wantCount: DefaultReadingLimit},
		{name: "explicit limit", limit: 5, wantCount: 5},
		{name: "more than stored", limit: 100, wantCount: 60},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			readings, err := f.store.ListReadings(ctx, f.device.ID, tt.limit)
			if err != nil {
				t.Fatalf("ListReadings() error = %v", err)
			}
			if len(readings) != tt.wantCount {
				t.Fatalf("ListReadings() = %d rows, want %d", len(readings), tt.wantCount)
			}
			if readings[0].Value != float64(59) {
				t.Errorf("newest value = %v, want 59", readings[0].Value)
			}
			for i := 1; i < len(readings); i++ {
				if readings[i].RecordedAt.After(readings[i-1].RecordedAt) {
					t.Fatalf("readings not newest first at index %d", i)
				}
			}
		})
	}

	other, err := f.store.ListReadings(ctx, "someone-else", 0)
	if err != nil {
		t.Fatalf("ListReadings() error = %v", err)
	}
	if len(other) != 0 {
		t.Errorf("ListReadings(other) = %d rows, want 0", len(other))
	}
}
