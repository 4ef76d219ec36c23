package mqtt

import (
	"crypto/tls"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/gray-logic-appliances/internal/infrastructure/config"
)

const (
	connectTimeout   = 10 * time.Second
	operationTimeout = 5 * time.Second
	keepAlive        = 60 * time.Second

	// quiesceMillis is how long Disconnect waits for in-flight work.
	quiesceMillis = 1000

	maxQoS = 2

	// maxPayloadSize caps a single publish.
	maxPayloadSize = 1 << 20
)

// Will is the Last Will the broker publishes, retained at QoS 1, when the
// bridge drops off without a clean disconnect.
type Will struct {
	Topic   string
	Payload []byte
}

// clientOptions maps the mqtt config section (and optional will) onto paho
// options. Sessions are clean: the client itself restores subscriptions on
// every reconnect.
func clientOptions(cfg config.MQTTConfig, will *Will) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions().
		AddBroker(brokerURL(cfg)).
		SetClientID(cfg.Broker.ClientID).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(time.Duration(cfg.Reconnect.InitialDelay) * time.Second).
		SetMaxReconnectInterval(time.Duration(cfg.Reconnect.MaxDelay) * time.Second).
		SetConnectTimeout(connectTimeout).
		SetKeepAlive(keepAlive)

	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username)
		opts.SetPassword(cfg.Auth.Password)
	}
	if cfg.Broker.TLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}
	if will != nil && will.Topic != "" {
		opts.SetBinaryWill(will.Topic, will.Payload, 1, true)
	}
	return opts
}

// brokerURL returns tcp://host:port, or ssl:// when TLS is on.
func brokerURL(cfg config.MQTTConfig) string {
	scheme := "tcp"
	if cfg.Broker.TLS {
		scheme = "ssl"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, cfg.Broker.Host, cfg.Broker.Port)
}
