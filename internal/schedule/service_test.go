package schedule

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/nerrad567/homefleet-core/internal/command"
	"github.com/nerrad567/homefleet-core/internal/device"
	"github.com/nerrad567/homefleet-core/internal/infrastructure/database"
	"github.com/nerrad567/homefleet-core/migrations"
)

type fakePublisher struct {
	mu     sync.Mutex
	topics []string
}

func (p *fakePublisher) Publish(_ context.Context, topic string, _ []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	return nil
}

type fixture struct {
	registry   *device.Registry
	logs       *command.SQLiteRepository
	repo       *SQLiteRepository
	publisher  *fakePublisher
	dispatcher *command.Dispatcher
	service    *Service
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

	f := &fixture{
		registry:  device.NewRegistry(device.NewSQLiteRepository(db.DB), nil),
		logs:      command.NewSQLiteRepository(db.DB),
		repo:      NewSQLiteRepository(db),
		publisher: &fakePublisher{},
	}
	f.dispatcher = command.NewDispatcher(f.registry, f.logs, f.publisher)
	f.service = NewService(f.registry, f.repo)
	return f
}

func (f *fixture) addDevice(t *testing.T, name, commandTopic string) *device.Device {
	t.Helper()
	d := &device.Device{Name: name, CommandTopic: commandTopic}
	if err := f.registry.Create(context.Background(), d); err != nil {
		t.Fatalf("Create(%s) error = %v", name, err)
	}
	return d
}

// ─── Create ─────────────────────────────────────────────────────────

func TestService_CreateWritesSnapshot(t *testing.T) {
	f := setup(t)
	lamp := f.addDevice(t, "Lamp", "lamp/cmd")

	s, err := f.service.Create(context.Background(), Request{
		DeviceName: "lamp",
		Action:     "on",
		RunAt:      "2026-10-20T19:00:00+07:00",
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	want := time.Date(2026, 10, 20, 12, 0, 0, 0, time.UTC)
	if !s.RunAt.Equal(want) {
		t.Errorf("RunAt = %v, want %v", s.RunAt, want)
	}
	if s.Status != StatusScheduled || s.DeviceID != lamp.ID || s.DeviceName != "Lamp" {
		t.Errorf("schedule = %+v, want scheduled for Lamp", s)
	}

	logs, err := f.dispatcher.ListLogs(context.Background(), 0)
	if err != nil {
		t.Fatalf("ListLogs() error = %v", err)
	}
	if len(logs) != 1 {
		t.Fatalf("logs = %d, want 1 snapshot", len(logs))
	}
	snap := logs[0]
	if snap.Status != command.StatusScheduled || snap.ScheduleID != s.ID {
		t.Errorf("snapshot = %s/%s, want scheduled for %s", snap.Status, snap.ScheduleID, s.ID)
	}
	if snap.RunAt == nil || !snap.RunAt.Equal(want) {
		t.Errorf("snapshot RunAt = %v, want %v", snap.RunAt, want)
	}
	if len(f.publisher.topics) != 0 {
		t.Errorf("published %v at creation, want nothing", f.publisher.topics)
	}
}

func TestService_CreateLocalTimeUsesLocation(t *testing.T) {
	f := setup(t)
	f.addDevice(t, "Lamp", "lamp/cmd")

	loc := time.FixedZone("ICT", 7*60*60)
	f.service.SetLocation(loc)

	s, err := f.service.Create(context.Background(), Request{DeviceName: "Lamp", Action: "on", RunAt: "2026-10-20 19:00"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if want := time.Date(2026, 10, 20, 19, 0, 0, 0, loc); !s.RunAt.Equal(want) {
		t.Errorf("RunAt = %v, want %v", s.RunAt, want)
	}
}

func TestService_CreateErrors(t *testing.T) {
	f := setup(t)
	f.addDevice(t, "Lamp", "lamp/cmd")

	tests := []struct {
		name string
		req  Request
		want error
	}{
		{name: "bad run time", req: Request{DeviceName: "Lamp", Action: "on", RunAt: "tomorrow-ish"}, want: ErrInvalidTimestamp},
		{name: "missing run time", req: Request{DeviceName: "Lamp", Action: "on"}, want: ErrInvalidTimestamp},
		{name: "unknown device", req: Request{DeviceName: "Ghost", Action: "on", RunAt: "2026-10-20T19:00:00Z"}, want: device.ErrDeviceNotFound},
		{name: "unknown device before bad run time", req: Request{DeviceName: "Ghost", Action: "on", RunAt: "not a time"}, want: device.ErrDeviceNotFound},
		{name: "no action", req: Request{DeviceName: "Lamp", RunAt: "2026-10-20T19:00:00Z"}, want: ErrInvalidInput},
		{name: "no device", req: Request{Action: "on", RunAt: "2026-10-20T19:00:00Z"}, want: ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.service.Create(context.Background(), tt.req); !errors.Is(err, tt.want) {
				t.Errorf("Create() error = %v, want %v", err, tt.want)
			}
		})
	}

	schedules, err := f.service.List(context.Background())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(schedules) != 0 {
		t.Errorf("schedules = %d after failed creates, want 0", len(schedules))
	}
}

func TestService_PastRunTimeAccepted(t *testing.T) {
	f := setup(t)
	f.addDevice(t, "Lamp", "lamp/cmd")

	if _, err := f.service.Create(context.Background(), Request{DeviceName: "Lamp", Action: "on", RunAt: "2001-01-01T00:00:00Z"}); err != nil {
		t.Errorf("Create() error = %v, want past run times accepted", err)
	}
}

// ─── List and cancel ────────────────────────────────────────────────

func TestService_ListAscendingByRunTime(t *testing.T) {
	f := setup(t)
	f.addDevice(t, "Lamp", "lamp/cmd")

	for _, runAt := range []string{"2026-10-22T08:00:00Z", "2026-10-20T08:00:00Z", "2026-10-21T08:00:00Z"} {
		if _, err := f.service.Create(context.Background(), Request{DeviceName: "Lamp", Action: "on", RunAt: runAt}); err != nil {
			t.Fatalf("Create(%s) error = %v", runAt, err)
		}
	}

	schedules, err := f.service.List(context.Background())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	var got []string
	for _, s := range schedules {
		got = append(got, s.RunAt.Format("2006-01-02"))
	}
	if diff := cmp.Diff([]string{"2026-10-20", "2026-10-21", "2026-10-22"}, got); diff != "" {
		t.Errorf("List() mismatch (-want +got):\n%s", diff)
	}
}

func TestService_Cancel(t *testing.T) {
	f := setup(t)
	f.addDevice(t, "Lamp", "lamp/cmd")

	s, err := f.service.Create(context.Background(), Request{DeviceName: "Lamp", Action: "on", RunAt: "2026-10-20T19:00:00Z"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if err := f.service.Cancel(context.Background(), s.ID); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	got, err := f.service.Get(context.Background(), s.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Status != StatusCancelled {
		t.Errorf("Status = %q, want %q", got.Status, StatusCancelled)
	}

	if err := f.service.Cancel(context.Background(), s.ID); !errors.Is(err, ErrNotCancellable) {
		t.Errorf("second Cancel() error = %v, want ErrNotCancellable", err)
	}
	if err := f.service.Cancel(context.Background(), "missing"); !errors.Is(err, ErrScheduleNotFound) {
		t.Errorf("Cancel(missing) error = %v, want ErrScheduleNotFound", err)
	}
}

func TestParseRunAt(t *testing.T) {
	loc := time.FixedZone("ICT", 7*60*60)

	tests := []struct {
		in   string
		want time.Time
	}{
		{in: "2026-10-20T19:00:00Z", want: time.Date(2026, 10, 20, 19, 0, 0, 0, time.UTC)},
		{in: "2026-10-20T19:00:00.5+07:00", want: time.Date(2026, 10, 20, 19, 0, 0, 500000000, loc)},
		{in: "2026-10-20T19:00:00", want: time.Date(2026, 10, 20, 19, 0, 0, 0, loc)},
		{in: "2026-10-20T19:00", want: time.Date(2026, 10, 20, 19, 0, 0, 0, loc)},
		{in: " 2026-10-20 19:00:30 ", want: time.Date(2026, 10, 20, 19, 0, 30, 0, loc)},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseRunAt(tt.in, loc)
			if err != nil {
				t.Fatalf("ParseRunAt() error = %v", err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("ParseRunAt() = %v, want %v", got, tt.want)
			}
		})
	}

	if _, err := ParseRunAt("19:00", loc); !errors.Is(err, ErrInvalidTimestamp) {
		t.Errorf("ParseRunAt(19:00) error = %v, want ErrInvalidTimestamp", err)
	}
}
