package bus_test

import (
	"context"
	"testing"
	"time"

	"github.com/nerrad567/homefleet-core/internal/bus"
	"github.com/nerrad567/homefleet-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/homefleet-core/internal/infrastructure/mqtt/mqtttest"
)

type topics []string

func (t topics) SubscriptionTopics(context.Context) ([]string, error) { return t, nil }

func TestManager_WildcardDeliversOnce(t *testing.T) {
	broker := mqtttest.Start(t)

	client, err := mqtt.Connect(broker.Config())
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() { client.Close() })

	received := make(chan string, 8)
	handler := func(topic string, _ []byte) error {
		received <- topic
		return nil
	}

	m := bus.NewManager(client, handler, bus.Config{DiscoveryTopics: []string{"home/#"}, QoS: 1})
	if err := m.Start(context.Background(), topics{"home/lamp/state", "garden/soil/telemetry"}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if !m.Ready() {
		t.Fatal("Ready() = false after Start")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for _, topic := range []string{"home/lamp/state", "garden/soil/telemetry"} {
		if err := m.Publish(ctx, topic, []byte(`{"state":"on"}`)); err != nil {
			t.Fatalf("Publish(%s) error = %v", topic, err)
		}
	}

	got := map[string]int{}
	deadline := time.After(2 * time.Second)
	for len(got) < 2 {
		select {
		case topic := <-received:
			got[topic]++
		case <-deadline:
			t.Fatalf("received %v, want both topics", got)
		}
	}

	// Give a duplicate delivery time to show up.
	select {
	case topic := <-received:
		t.Errorf("duplicate delivery on %s", topic)
	case <-time.After(300 * time.Millisecond):
	}
}
