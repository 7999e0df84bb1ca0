package mqtt_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/homefleet-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/homefleet-core/internal/infrastructure/mqtt/mqtttest"
)

// ─── Helpers ────────────────────────────────────────────────────────

type received struct {
	mu       sync.Mutex
	messages map[string][]string
	notify   chan struct{}
}

func newReceived() *received {
	return &received{messages: make(map[string][]string), notify: make(chan struct{}, 64)}
}

func (r *received) handler(topic string, payload []byte) error {
	r.mu.Lock()
	r.messages[topic] = append(r.messages[topic], string(payload))
	r.mu.Unlock()
	select {
	case r.notify <- struct{}{}:
	default:
	}
	return nil
}

func (r *received) waitFor(t *testing.T, topic string, n int) []string {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		r.mu.Lock()
		got := append([]string(nil), r.messages[topic]...)
		r.mu.Unlock()
		if len(got) >= n {
			return got
		}
		select {
		case <-r.notify:
		case <-deadline:
			t.Fatalf("timed out waiting for %d messages on %s, got %d", n, topic, len(got))
		}
	}
}

func connect(t *testing.T, b *mqtttest.Broker) *mqtt.Client {
	t.Helper()
	client, err := mqtt.Connect(b.Config())
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() { client.Close() }) //nolint:errcheck // Test cleanup
	return client
}

// ─── Connection ─────────────────────────────────────────────────────

func TestConnect(t *testing.T) {
	b := mqtttest.Start(t)
	client := connect(t, b)

	if !client.IsConnected() {
		t.Error("IsConnected() = false, want true")
	}
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}

func TestClose(t *testing.T) {
	b := mqtttest.Start(t)
	client, err := mqtt.Connect(b.Config())
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	if err := client.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after Close(), want false")
	}
	if err := client.HealthCheck(context.Background()); !errors.Is(err, mqtt.ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}
	if err := client.Publish(context.Background(), "lamp/cmd", []byte("{}"), 1, false); !errors.Is(err, mqtt.ErrNotConnected) {
		t.Errorf("Publish() after Close error = %v, want ErrNotConnected", err)
	}
}

func TestCloseNil(t *testing.T) {
	client := &mqtt.Client{}
	if err := client.Close(); err != nil {
		t.Errorf("Close() on zero client error = %v, want nil", err)
	}
}

func TestHealthCheckCancelled(t *testing.T) {
	b := mqtttest.Start(t)
	client := connect(t, b)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := client.HealthCheck(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("HealthCheck() error = %v, want context.Canceled", err)
	}
}

func TestWithoutPresenceKeepsRetainedStatus(t *testing.T) {
	b := mqtttest.Start(t)
	connect(t, b)

	cliCfg := b.Config()
	oneShot, err := mqtt.Connect(cliCfg, mqtt.WithoutPresence())
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if err := oneShot.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	observer := connect(t, b)
	got := newReceived()
	if err := observer.Subscribe(mqtt.SystemStatusTopic, 1, got.handler); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	first := got.waitFor(t, mqtt.SystemStatusTopic, 1)[0]
	if !strings.Contains(first, `"status":"online"`) {
		t.Errorf("retained status = %s, want online", first)
	}
	if strings.Contains(first, cliCfg.Broker.ClientID) {
		t.Errorf("retained status = %s, written by the one-shot client", first)
	}
}

// ─── Publish / Subscribe ────────────────────────────────────────────

func TestPublishSubscribe(t *testing.T) {
	b := mqtttest.Start(t)
	client := connect(t, b)
	got := newReceived()

	if err := client.Subscribe("home/#", 1, got.handler); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if !client.HasSubscription("home/#") {
		t.Error("HasSubscription(home/#) = false")
	}

	ctx := context.Background()
	for _, body := range []string{`{"n":1}`, `{"n":2}`, `{"n":3}`} {
		if err := client.Publish(ctx, "home/abc123/telemetry", []byte(body), 1, false); err != nil {
			t.Fatalf("Publish() error = %v", err)
		}
	}

	messages := got.waitFor(t, "home/abc123/telemetry", 3)
	want := []string{`{"n":1}`, `{"n":2}`, `{"n":3}`}
	for i := range want {
		if messages[i] != want[i] {
			t.Errorf("message[%d] = %s, want %s (arrival order)", i, messages[i], want[i])
		}
	}
}

func TestUnsubscribe(t *testing.T) {
	b := mqtttest.Start(t)
	client := connect(t, b)
	got := newReceived()

	if err := client.Subscribe("lamp/state", 1, got.handler); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if client.SubscriptionCount() != 1 {
		t.Fatalf("SubscriptionCount() = %d, want 1", client.SubscriptionCount())
	}
	if err := client.Unsubscribe("lamp/state"); err != nil {
		t.Fatalf("Unsubscribe() error = %v", err)
	}
	if client.HasSubscription("lamp/state") {
		t.Error("HasSubscription() = true after Unsubscribe")
	}
}

func TestPublishValidation(t *testing.T) {
	b := mqtttest.Start(t)
	client := connect(t, b)
	ctx := context.Background()

	tests := []struct {
		name    string
		topic   string
		qos     byte
		payload []byte
		wantErr error
	}{
		{"empty topic", "", 1, nil, mqtt.ErrInvalidTopic},
		{"wildcard topic", "home/#", 1, nil, mqtt.ErrInvalidTopic},
		{"bad qos", "lamp/cmd", 3, nil, mqtt.ErrInvalidQoS},
		{"oversized", "lamp/cmd", 1, make([]byte, 1<<20+1), mqtt.ErrPublishFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := client.Publish(ctx, tt.topic, tt.payload, tt.qos, false)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Publish() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestSubscribeValidation(t *testing.T) {
	b := mqtttest.Start(t)
	client := connect(t, b)
	noop := func(string, []byte) error { return nil }

	if err := client.Subscribe("home/#/x", 1, noop); !errors.Is(err, mqtt.ErrInvalidTopic) {
		t.Errorf("Subscribe(bad filter) error = %v, want ErrInvalidTopic", err)
	}
	if err := client.Subscribe("home/#", 5, noop); !errors.Is(err, mqtt.ErrInvalidQoS) {
		t.Errorf("Subscribe(bad qos) error = %v, want ErrInvalidQoS", err)
	}
	if err := client.Subscribe("home/#", 1, nil); !errors.Is(err, mqtt.ErrSubscribeFailed) {
		t.Errorf("Subscribe(nil handler) error = %v, want ErrSubscribeFailed", err)
	}
}

func TestHandlerPanicRecovered(t *testing.T) {
	b := mqtttest.Start(t)
	client := connect(t, b)
	got := newReceived()

	if err := client.Subscribe("boom", 1, func(string, []byte) error { panic("handler bug") }); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if err := client.Subscribe("after", 1, got.handler); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	ctx := context.Background()
	if err := client.Publish(ctx, "boom", []byte("x"), 1, false); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if err := client.Publish(ctx, "after", []byte("still alive"), 1, false); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	got.waitFor(t, "after", 1)
}

// ─── Reconnect ──────────────────────────────────────────────────────

func TestReconnectRestoresSubscriptions(t *testing.T) {
	b := mqtttest.Start(t)
	cfg := b.Config()

	client, err := mqtt.Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close() //nolint:errcheck // Test cleanup

	reconnected := make(chan struct{}, 4)
	disconnected := make(chan struct{}, 4)
	client.SetOnConnect(func() { reconnected <- struct{}{} })
	client.SetOnDisconnect(func(error) { disconnected <- struct{}{} })

	got := newReceived()
	if err := client.Subscribe("lamp/state", 1, got.handler); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	b.Stop()
	select {
	case <-disconnected:
	case <-time.After(10 * time.Second):
		t.Fatal("client did not notice the broker going away")
	}
	// Drop a late signal from the initial connect.
	select {
	case <-reconnected:
	default:
	}

	replacement := mqtttest.StartOn(t, cfg.Broker.Port)
	defer replacement.Stop()

	select {
	case <-reconnected:
	case <-time.After(15 * time.Second):
		t.Fatal("client did not reconnect")
	}

	if err := client.Publish(context.Background(), "lamp/state", []byte(`{"on":true}`), 1, false); err != nil {
		t.Fatalf("Publish() after reconnect error = %v", err)
	}
	got.waitFor(t, "lamp/state", 1)
}
