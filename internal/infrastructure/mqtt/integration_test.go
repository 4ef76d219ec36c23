//go:build integration

package mqtt

import (
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-appliances/internal/infrastructure/config"
)

// Integration tests against a running MQTT broker at 127.0.0.1:1883.
//
// Run with:
//   go test -tags=integration -count=1 -v ./internal/infrastructure/mqtt/...

func integrationConfig(clientID string) config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: clientID,
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}
}

func TestIntegration_SubscriptionTracking(t *testing.T) {
	client, err := Connect(integrationConfig("appliances-int-sub-track"), nil)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	topics := []string{
		Topics{}.AllCloudEvents(),
		Topics{}.AllCloudPrograms(),
		Topics{}.AllBridgeCommands("homeconnect"),
	}
	handler := func(string, []byte) error { return nil }

	for _, topic := range topics {
		if err := client.Subscribe(topic, 1, handler); err != nil {
			t.Fatalf("Subscribe(%s) error = %v", topic, err)
		}
	}
	if got := client.Subscriptions(); len(got) != len(topics) {
		t.Errorf("Subscriptions() = %v, want %d topics", got, len(topics))
	}

	if err := client.Unsubscribe(topics[0]); err != nil {
		t.Fatalf("Unsubscribe() error = %v", err)
	}
	if slices.Contains(client.Subscriptions(), topics[0]) {
		t.Errorf("%s still subscribed after unsubscribe", topics[0])
	}
}

func TestIntegration_WildcardRoundtrip(t *testing.T) {
	pub, err := Connect(integrationConfig("appliances-int-pub"), nil)
	if err != nil {
		t.Fatalf("Connect() publisher error = %v", err)
	}
	defer pub.Close()

	sub, err := Connect(integrationConfig("appliances-int-sub"), nil)
	if err != nil {
		t.Fatalf("Connect() subscriber error = %v", err)
	}
	defer sub.Close()

	received := make(chan string, 1)
	var once sync.Once
	err = sub.Subscribe(Topics{}.AllCloudEvents(), 1, func(topic string, _ []byte) error {
		once.Do(func() { received <- topic })
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	time.Sleep(100 * time.Millisecond)

	want := Topics{}.CloudEvent("SIEMENS-WT47-INT")
	if err := pub.Publish(want, []byte(`{"key":"BSH.Common.Status.DoorState","value":"Open"}`), 1, false); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case got := <-received:
		if got != want {
			t.Errorf("topic = %q, want %q", got, want)
		}
	case <-time.After(5 * time.Second):
		t.Error("Timeout waiting for message")
	}
}
