package interpret

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/homefleet-core/internal/command"
	"github.com/nerrad567/homefleet-core/internal/device"
	"github.com/nerrad567/homefleet-core/internal/infrastructure/database"
	"github.com/nerrad567/homefleet-core/internal/schedule"
	"github.com/nerrad567/homefleet-core/migrations"
)

type fakePublisher struct {
	mu       sync.Mutex
	messages map[string][]string
}

func (p *fakePublisher) Publish(_ context.Context, topic string, message []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.messages == nil {
		p.messages = make(map[string][]string)
	}
	p.messages[topic] = append(p.messages[topic], string(message))
	return nil
}

type assistantStack struct {
	registry  *device.Registry
	publisher *fakePublisher
	schedules *schedule.Service
	assistant *Assistant
}

func setupAssistant(t *testing.T, backend Backend) *assistantStack {
	t.Helper()

	db, err := database.Open(database.Config{Path: database.MemoryPath, BusyTimeout: 1})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(context.Background(), migrations.FS); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	s := &assistantStack{
		registry:  device.NewRegistry(device.NewSQLiteRepository(db.DB), nil),
		publisher: &fakePublisher{},
	}
	dispatcher := command.NewDispatcher(s.registry, command.NewSQLiteRepository(db.DB), s.publisher)
	s.schedules = schedule.NewService(s.registry, schedule.NewSQLiteRepository(db))
	s.schedules.SetLocation(siteTZ)

	s.assistant = NewAssistant(newTestInterpreter(backend), dispatcher, s.schedules)

	livingRoom := &device.Device{Name: "đèn phòng khách", CommandTopic: "home/living/light/cmd"}
	if err := s.registry.Create(context.Background(), livingRoom); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	return s
}

func TestAssistant_SchedulesVietnamesePrompt(t *testing.T) {
	s := setupAssistant(t, nil)
	prompt := "bật đèn phòng khách lúc 19:00"

	res, err := s.assistant.Handle(context.Background(), prompt)
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if res.Type != KindSchedule || res.Schedule == nil {
		t.Fatalf("Handle() = %+v, want a schedule", res)
	}

	want := time.Date(2026, 10, 19, 19, 0, 0, 0, siteTZ)
	if !res.Schedule.RunAt.Equal(want) {
		t.Errorf("RunAt = %v, want %v", res.Schedule.RunAt, want)
	}
	if res.Schedule.Action != "on" || res.Schedule.Origin != command.OriginNaturalLanguage || res.Schedule.NaturalLanguage != prompt {
		t.Errorf("schedule = %s/%s/%q, want on/natural-language/prompt",
			res.Schedule.Action, res.Schedule.Origin, res.Schedule.NaturalLanguage)
	}
	if len(s.publisher.messages) != 0 {
		t.Errorf("published %v, want nothing before the run time", s.publisher.messages)
	}
}

func TestAssistant_DispatchesImmediateCommand(t *testing.T) {
	s := setupAssistant(t, &fakeBackend{call: &FunctionCall{
		Name: FuncDispatch,
		Args: map[string]any{"device": "đèn phòng khách", "action": "off"},
	}})

	res, err := s.assistant.Handle(context.Background(), "turn the living room light off")
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if res.Type != KindCommand || res.Command == nil {
		t.Fatalf("Handle() = %+v, want a command", res)
	}
	if res.Command.Status != command.StatusSent || res.Command.Origin != command.OriginNaturalLanguage {
		t.Errorf("command = %s/%s, want sent/natural-language", res.Command.Status, res.Command.Origin)
	}
	if res.Interpretation.Source != SourceAI {
		t.Errorf("Source = %q, want %q", res.Interpretation.Source, SourceAI)
	}

	got := s.publisher.messages["home/living/light/cmd"]
	if len(got) != 1 || got[0] != `{"action":"off"}` {
		t.Errorf("published = %v, want one off command", got)
	}
}

func TestAssistant_UnknownDevice(t *testing.T) {
	s := setupAssistant(t, nil)

	res, err := s.assistant.Handle(context.Background(), "tắt quạt trần")
	if !errors.Is(err, device.ErrDeviceNotFound) {
		t.Fatalf("Handle() error = %v, want ErrDeviceNotFound", err)
	}
	if res == nil || res.Command != nil {
		t.Errorf("Handle() result = %+v, want interpretation without a command", res)
	}
}

func TestAssistant_BlankPrompt(t *testing.T) {
	s := setupAssistant(t, nil)

	if _, err := s.assistant.Handle(context.Background(), " "); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("Handle() error = %v, want ErrInvalidInput", err)
	}
}
