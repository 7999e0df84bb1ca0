package bus

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/nerrad567/homefleet-core/internal/infrastructure/mqtt"
)

// Client is the part of the MQTT connection the manager drives.
// *mqtt.Client satisfies it; tests substitute a fake.
type Client interface {
	Subscribe(filter string, qos byte, handler mqtt.MessageHandler) error
	Publish(ctx context.Context, topic string, payload []byte, qos byte, retained bool) error
	IsConnected() bool
	HasSubscription(filter string) bool
	SetOnConnect(callback func())
	SetOnDisconnect(callback func(err error))
}

// Publisher sends one message to one topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, message []byte) error
}

// TopicSource lists the concrete topics of every known device.
type TopicSource interface {
	SubscriptionTopics(ctx context.Context) ([]string, error)
}

// Logger defines the logging interface used by the Manager.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// ConnectionObserver is told about broker connectivity changes.
// *metrics.Metrics satisfies it.
type ConnectionObserver interface {
	SetBrokerConnected(up bool)
}

// Config holds the Manager settings.
type Config struct {
	// DiscoveryTopics are the wildcard filters subscribed before any device
	// topic. Blank entries are ignored.
	DiscoveryTopics []string

	// QoS is used for subscriptions and publishes.
	QoS byte
}

// Manager owns the subscriptions of the process-wide broker connection.
//
// All methods are safe for concurrent use.
type Manager struct {
	client    Client
	handler   mqtt.MessageHandler
	discovery []string
	qos       byte

	source   TopicSource
	sourceMu sync.RWMutex

	// subscribed holds filters with a live subscription; covered maps a
	// concrete topic to the wildcard already delivering it.
	subscribed map[string]struct{}
	covered    map[string]string
	subMu      sync.Mutex

	// passMu serialises full subscription passes (start and reconnect).
	passMu sync.Mutex
	ready  atomic.Bool

	observer ConnectionObserver
	logger   Logger
}

// NewManager creates a manager that routes every inbound message to handler.
func NewManager(client Client, handler mqtt.MessageHandler, cfg Config) *Manager {
	discovery := make([]string, 0, len(cfg.DiscoveryTopics))
	for _, topic := range cfg.DiscoveryTopics {
		if topic = strings.TrimSpace(topic); topic != "" {
			discovery = append(discovery, topic)
		}
	}

	return &Manager{
		client:     client,
		handler:    handler,
		discovery:  discovery,
		qos:        cfg.QoS,
		subscribed: make(map[string]struct{}),
		covered:    make(map[string]string),
		logger:     noopLogger{},
	}
}

// SetLogger sets the logger for the manager.
func (m *Manager) SetLogger(logger Logger) {
	m.logger = logger
}

// SetObserver registers a connectivity observer.
func (m *Manager) SetObserver(observer ConnectionObserver) {
	m.observer = observer
}

// Start runs the first subscription pass and hooks the pass into every
// later reconnect. source supplies the known device topics; it may be nil.
//
// A failed pass leaves the manager not ready and is returned; the next
// reconnect tries again. Readiness is cleared on disconnect and restored
// only by a complete pass.
func (m *Manager) Start(ctx context.Context, source TopicSource) error {
	m.sourceMu.Lock()
	m.source = source
	m.sourceMu.Unlock()

	m.client.SetOnConnect(func() {
		m.notify(true)
		if err := m.resubscribe(context.Background()); err != nil {
			m.logger.Warn("resubscribe after reconnect incomplete", "error", err)
		}
	})
	m.client.SetOnDisconnect(func(error) {
		m.ready.Store(false)
		m.notify(false)
	})

	m.notify(m.client.IsConnected())
	return m.resubscribe(ctx)
}

// Ready reports whether the discovery wildcards and every known device
// topic are subscribed on the current connection.
func (m *Manager) Ready() bool {
	return m.ready.Load()
}

func (m *Manager) resubscribe(ctx context.Context) error {
	m.passMu.Lock()
	defer m.passMu.Unlock()

	m.dropLost()

	var errs []error
	if err := m.Subscribe(m.discovery...); err != nil {
		errs = append(errs, err)
	}

	m.sourceMu.RLock()
	source := m.source
	m.sourceMu.RUnlock()

	if source != nil {
		topics, err := source.SubscriptionTopics(ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("listing device topics: %w", err))
		} else if err := m.Subscribe(topics...); err != nil {
			errs = append(errs, err)
		}
	}

	if err := errors.Join(errs...); err != nil {
		return err
	}

	m.ready.Store(true)
	m.logger.Info("subscriptions ready", "filters", m.SubscriptionCount())
	return nil
}

// dropLost forgets filters the client no longer holds, such as one whose
// restore failed after a reconnect, and the topics they covered. The pass
// that follows subscribes them again.
func (m *Manager) dropLost() {
	m.subMu.Lock()
	defer m.subMu.Unlock()

	for filter := range m.subscribed {
		if !m.client.HasSubscription(filter) {
			delete(m.subscribed, filter)
			m.logger.Info("subscription lost, retrying", "topic", filter)
		}
	}
	for topic, wildcard := range m.covered {
		if _, ok := m.subscribed[wildcard]; !ok {
			delete(m.covered, topic)
		}
	}
}

// Subscribe subscribes each topic once.
//
// Empty topics are skipped. Topics already subscribed, or already matched
// by a subscribed wildcard, are no-ops. Failures are logged and returned
// joined; they never close the connection.
func (m *Manager) Subscribe(topics ...string) error {
	m.subMu.Lock()
	defer m.subMu.Unlock()

	var errs []error
	for _, topic := range topics {
		topic = strings.TrimSpace(topic)
		if topic == "" {
			continue
		}
		if _, ok := m.subscribed[topic]; ok {
			continue
		}
		if _, ok := m.covered[topic]; ok {
			continue
		}
		if wildcard, ok := m.coveringWildcard(topic); ok {
			m.covered[topic] = wildcard
			m.logger.Debug("topic covered by wildcard", "topic", topic, "wildcard", wildcard)
			continue
		}

		if err := m.client.Subscribe(topic, m.qos, m.handler); err != nil {
			m.logger.Warn("subscribe failed", "topic", topic, "error", err)
			errs = append(errs, fmt.Errorf("subscribing to %s: %w", topic, err))
			continue
		}
		m.subscribed[topic] = struct{}{}
		m.logger.Debug("subscribed", "topic", topic)
	}

	return errors.Join(errs...)
}

// coveringWildcard returns a subscribed wildcard filter matching topic.
// Caller holds subMu.
func (m *Manager) coveringWildcard(topic string) (string, bool) {
	if mqtt.IsWildcard(topic) {
		return "", false
	}
	for filter := range m.subscribed {
		if mqtt.IsWildcard(filter) && mqtt.Matches(filter, topic) {
			return filter, true
		}
	}
	return "", false
}

// IsSubscribed reports whether messages on topic reach the handler, either
// through its own subscription or a covering wildcard.
func (m *Manager) IsSubscribed(topic string) bool {
	m.subMu.Lock()
	defer m.subMu.Unlock()

	if _, ok := m.subscribed[topic]; ok {
		return true
	}
	_, ok := m.coveringWildcard(topic)
	return ok
}

// SubscriptionCount returns the number of live broker subscriptions.
func (m *Manager) SubscriptionCount() int {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	return len(m.subscribed)
}

// Connected reports whether the broker connection is up.
func (m *Manager) Connected() bool {
	return m.client.IsConnected()
}

// Publish sends message to topic. It is not retried.
func (m *Manager) Publish(ctx context.Context, topic string, message []byte) error {
	if strings.TrimSpace(topic) == "" {
		return ErrNoTopic
	}
	if !m.client.IsConnected() {
		return fmt.Errorf("%w: %w", ErrTransportUnavailable, mqtt.ErrNotConnected)
	}

	if err := m.client.Publish(ctx, topic, message, m.qos, false); err != nil {
		if errors.Is(err, mqtt.ErrNotConnected) {
			return fmt.Errorf("%w: %w", ErrTransportUnavailable, err)
		}
		return fmt.Errorf("publishing to %s: %w", topic, err)
	}
	return nil
}

func (m *Manager) notify(up bool) {
	if m.observer != nil {
		m.observer.SetBrokerConnected(up)
	}
}
