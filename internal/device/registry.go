package device

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/nerrad567/homefleet-core/internal/payload"
)

// Logger defines the logging interface used by the Registry.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Subscriber subscribes broker topics. *bus.Manager satisfies it.
type Subscriber interface {
	Subscribe(topics ...string) error
}

// Recorder counts provisioning events. *metrics.Metrics satisfies it.
type Recorder interface {
	DeviceProvisioned()
}

// Registry resolves inbound messages to devices and manages the catalogue.
//
// Provisioning from messages is serialised per identifier in-process by a
// singleflight group; across processes the repository's insert-if-absent
// closes the same race.
//
// All public methods are thread-safe.
type Registry struct {
	repo       Repository
	subscriber Subscriber
	recorder   Recorder
	flight     singleflight.Group
	logger     Logger
}

// NewRegistry creates a new device registry. subscriber may be nil, in
// which case new topics are not subscribed.
func NewRegistry(repo Repository, subscriber Subscriber) *Registry {
	return &Registry{
		repo:       repo,
		subscriber: subscriber,
		logger:     noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// SetRecorder registers a metrics recorder.
func (r *Registry) SetRecorder(recorder Recorder) {
	r.recorder = recorder
}

// Resolve finds or provisions the device a message belongs to. created
// reports whether this call provisioned it.
//
// Resolution order: stored state or telemetry topic equal to the message
// topic, then identifier, then provisioning when the message has an
// identifier. Returns ErrDeviceNotFound when none applies.
func (r *Registry) Resolve(ctx context.Context, msg payload.Message) (*Device, bool, error) {
	d, err := r.repo.FindByTopic(ctx, msg.Topic)
	switch {
	case err == nil:
		return r.backfill(ctx, d, msg), false, nil
	case !errors.Is(err, ErrDeviceNotFound):
		return nil, false, fmt.Errorf("finding device by topic: %w", err)
	}

	identifier := msg.Device.Identifier
	if identifier == "" {
		return nil, false, ErrDeviceNotFound
	}

	d, err = r.repo.GetByIdentifier(ctx, identifier)
	switch {
	case err == nil:
		return r.backfill(ctx, d, msg), false, nil
	case !errors.Is(err, ErrDeviceNotFound):
		return nil, false, fmt.Errorf("finding device by identifier: %w", err)
	}

	return r.provision(ctx, msg)
}

// provisioned is the shared result of one singleflight provisioning call.
type provisioned struct {
	device  *Device
	created bool
}

func (r *Registry) provision(ctx context.Context, msg payload.Message) (*Device, bool, error) {
	var leader bool
	v, err, _ := r.flight.Do(msg.Device.Identifier, func() (any, error) {
		leader = true
		d, created, err := r.insertWithUniqueName(ctx, newDeviceFromMessage(msg), r.repo.InsertIfAbsent)
		if err != nil {
			return nil, err
		}
		return provisioned{device: d, created: created}, nil
	})
	if err != nil {
		return nil, false, err
	}

	result := v.(provisioned) //nolint:forcetypeassert // the closure only returns provisioned
	if !leader {
		// Followers share the leader's record; copy so callers never alias.
		cp := *result.device
		cp.Sensors = append([]Sensor(nil), result.device.Sensors...)
		return &cp, false, nil
	}

	if !result.created {
		// Another writer inserted the identifier first.
		return r.backfill(ctx, result.device, msg), false, nil
	}

	r.logger.Info("device provisioned",
		"device_id", result.device.ID,
		"identifier", result.device.Identifier,
		"name", result.device.Name,
		"topic", msg.Topic,
	)
	if r.recorder != nil {
		r.recorder.DeviceProvisioned()
	}
	r.subscribe(result.device.SubscriptionTopics()...)
	return result.device, true, nil
}

// newDeviceFromMessage seeds a device from the first message that names its
// identifier. Telemetry seeds the telemetry topic from the inbound topic;
// anything else seeds the state topic.
func newDeviceFromMessage(msg payload.Message) *Device {
	hints := msg.Device

	name := hints.Name
	if name == "" {
		name = fallbackName(hints.Identifier)
	}

	d := &Device{
		Identifier:     hints.Identifier,
		Name:           name,
		Type:           typeOrDefault(hints.Type),
		Location:       hints.Location,
		CommandTopic:   hints.CommandTopic,
		StateTopic:     hints.StateTopic,
		TelemetryTopic: hints.TelemetryTopic,
	}
	if msg.IsTelemetry() {
		d.TelemetryTopic = msg.Topic
	} else {
		d.StateTopic = msg.Topic
	}
	return d
}

// insertFunc is Create or InsertIfAbsent.
type insertFunc func(ctx context.Context, d *Device) (*Device, bool, error)

// insertWithUniqueName tries "X", "X 2", "X 3", ... until the name index
// accepts one.
func (r *Registry) insertWithUniqueName(ctx context.Context, d *Device, insert insertFunc) (*Device, bool, error) {
	base := d.Name
	for n := 1; n <= maxNameAttempts; n++ {
		candidate := *d
		candidate.Name = candidateName(base, n)

		stored, created, err := insert(ctx, &candidate)
		if errors.Is(err, ErrNameTaken) {
			continue
		}
		if err != nil {
			return nil, false, err
		}
		if n > 1 && created {
			r.logger.Debug("device name disambiguated", "requested", base, "assigned", candidate.Name)
		}
		return stored, created, nil
	}
	return nil, false, fmt.Errorf("%w: no free name for %q after %d attempts", ErrNameTaken, base, maxNameAttempts)
}

// backfill fills empty fields of d from msg. Failures are logged and the
// device is returned as it was; attribution must not fail because of them.
func (r *Registry) backfill(ctx context.Context, d *Device, msg payload.Message) *Device {
	offer := Backfill{
		Identifier:     msg.Device.Identifier,
		Type:           msg.Device.Type,
		Location:       msg.Device.Location,
		CommandTopic:   msg.Device.CommandTopic,
		StateTopic:     msg.Device.StateTopic,
		TelemetryTopic: msg.Device.TelemetryTopic,
	}
	if msg.IsTelemetry() {
		offer.TelemetryTopic = msg.Topic
	} else {
		offer.StateTopic = msg.Topic
	}

	fill := offer.missingFrom(d)
	if fill.IsZero() {
		return d
	}

	updated, err := r.repo.Backfill(ctx, d.ID, fill)
	if errors.Is(err, ErrDeviceExists) && fill.Identifier != "" {
		// The identifier belongs to another device; fill the rest.
		r.logger.Warn("identifier already claimed, skipping it in backfill",
			"device_id", d.ID, "identifier", fill.Identifier)
		fill.Identifier = ""
		if fill.IsZero() {
			return d
		}
		updated, err = r.repo.Backfill(ctx, d.ID, fill)
	}
	if err != nil {
		r.logger.Warn("device backfill failed", "device_id", d.ID, "error", err)
		return d
	}

	r.logger.Debug("device backfilled", "device_id", d.ID, "topic", msg.Topic)
	if updated.StateTopic != d.StateTopic || updated.TelemetryTopic != d.TelemetryTopic {
		r.subscribe(updated.SubscriptionTopics()...)
	}
	return updated
}

func (r *Registry) subscribe(topics ...string) {
	if r.subscriber == nil || len(topics) == 0 {
		return
	}
	// The subscriber logs each failure; a later reconnect pass retries.
	if err := r.subscriber.Subscribe(topics...); err != nil {
		r.logger.Warn("subscribing device topics failed", "topics", topics, "error", err)
	}
}

// RecordState stores the state body of a non-telemetry message.
func (r *Registry) RecordState(ctx context.Context, id string, state any, seenAt time.Time) error {
	if err := r.repo.RecordState(ctx, id, state, seenAt); err != nil {
		return fmt.Errorf("recording state for %s: %w", id, err)
	}
	return nil
}

// ─── Operator operations ────────────────────────────────────────────

// Create registers a device by hand and subscribes its topics. The name
// must be free; it is not suffixed.
func (r *Registry) Create(ctx context.Context, d *Device) error {
	if err := ValidateDevice(d); err != nil {
		return err
	}
	if d.Identifier != "" {
		d.Identifier = strings.TrimSpace(d.Identifier)
	}
	if err := r.repo.Create(ctx, d); err != nil {
		return err
	}

	r.logger.Info("device created", "device_id", d.ID, "name", d.Name)
	r.subscribe(d.SubscriptionTopics()...)
	return nil
}

// Get retrieves a device by id.
func (r *Registry) Get(ctx context.Context, id string) (*Device, error) {
	return r.repo.GetByID(ctx, id)
}

// GetByName retrieves a device by name, ignoring case.
func (r *Registry) GetByName(ctx context.Context, name string) (*Device, error) {
	return r.repo.GetByName(ctx, strings.TrimSpace(name))
}

// List retrieves all devices ordered by name.
func (r *Registry) List(ctx context.Context) ([]Device, error) {
	return r.repo.List(ctx)
}

// Lookup resolves an operator reference: a device id first, then a name.
func (r *Registry) Lookup(ctx context.Context, id, name string) (*Device, error) {
	if id = strings.TrimSpace(id); id != "" {
		d, err := r.repo.GetByID(ctx, id)
		if err == nil || !errors.Is(err, ErrDeviceNotFound) {
			return d, err
		}
	}
	if name = strings.TrimSpace(name); name != "" {
		return r.repo.GetByName(ctx, name)
	}
	return nil, ErrDeviceNotFound
}

// Update changes the operator-editable fields and subscribes any new
// topics.
func (r *Registry) Update(ctx context.Context, d *Device) error {
	if err := ValidateDevice(d); err != nil {
		return err
	}
	d.Type = typeOrDefault(d.Type)
	if err := r.repo.Update(ctx, d); err != nil {
		return err
	}

	r.logger.Info("device updated", "device_id", d.ID, "name", d.Name)
	r.subscribe(d.SubscriptionTopics()...)
	return nil
}

// Delete removes a device and its sensors. Readings and command logs stay.
func (r *Registry) Delete(ctx context.Context, id string) error {
	if err := r.repo.Delete(ctx, id); err != nil {
		return err
	}
	r.logger.Info("device deleted", "device_id", id)
	return nil
}

// SubscriptionTopics lists the inbound topics of every device. It lets the
// registry act as the bus manager's topic source.
func (r *Registry) SubscriptionTopics(ctx context.Context) ([]string, error) {
	return r.repo.SubscriptionTopics(ctx)
}
