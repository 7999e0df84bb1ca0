// Package mqtttest runs an embedded MQTT broker for tests, so transport and
// subscription tests do not need a Mosquitto instance on the host.
package mqtttest

import (
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"

	mochi "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"

	"github.com/nerrad567/homefleet-core/internal/infrastructure/config"
)

var clientSeq atomic.Int64

// Broker is a running embedded broker.
type Broker struct {
	Host   string
	Port   int
	server *mochi.Server
	once   sync.Once
}

// Start launches a broker on a free loopback port and stops it when the test
// ends.
func Start(t testing.TB) *Broker {
	t.Helper()
	b := StartOn(t, freePort(t))
	t.Cleanup(func() { b.Stop() })
	return b
}

// StartOn launches a broker on a fixed port. Reconnect tests use it to bring
// a broker back on the address a client already knows. The caller owns Stop.
func StartOn(t testing.TB, port int) *Broker {
	t.Helper()

	server := mochi.New(nil)
	if err := server.AddHook(new(auth.AllowHook), nil); err != nil {
		t.Fatalf("adding auth hook: %v", err)
	}

	tcp := listeners.NewTCP(listeners.Config{
		ID:      fmt.Sprintf("test-%d", port),
		Address: net.JoinHostPort("127.0.0.1", strconv.Itoa(port)),
	})
	if err := server.AddListener(tcp); err != nil {
		t.Fatalf("adding listener on port %d: %v", port, err)
	}

	go func() {
		_ = server.Serve() //nolint:errcheck // Serve only fails on listener errors surfaced above
	}()

	return &Broker{Host: "127.0.0.1", Port: port, server: server}
}

// Stop closes the broker and every client connection. It is safe to call
// more than once.
func (b *Broker) Stop() {
	b.once.Do(func() {
		_ = b.server.Close() //nolint:errcheck // test teardown
	})
}

// Config returns an MQTT config pointing at the broker with a unique client
// id and short reconnect delays.
func (b *Broker) Config() config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     b.Host,
			Port:     b.Port,
			ClientID: fmt.Sprintf("homefleet-test-%d", clientSeq.Add(1)),
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     1,
		},
		DiscoveryTopics: []string{"home/#"},
		PublishTimeout:  2,
	}
}

func freePort(t testing.TB) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("finding free port: %v", err)
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}
