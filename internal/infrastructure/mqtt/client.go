package mqtt

import (
	"context"
	"fmt"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/gray-logic-appliances/internal/infrastructure/config"
)

// Logger is the subset of logging.Logger the client reports through.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// MessageHandler receives one message. Paho calls handlers on its own
// goroutines; a returned error is logged and the message is still acked.
type MessageHandler func(topic string, payload []byte) error

type subscription struct {
	qos     byte
	handler MessageHandler
}

// Client is a paho connection shared by the appliance bridge.
//
// Subscriptions are remembered and replayed after every reconnect. All
// methods are safe for concurrent use.
type Client struct {
	paho pahomqtt.Client
	cfg  config.MQTTConfig

	mu           sync.RWMutex
	connected    bool
	subs         map[string]subscription
	onConnect    func()
	onDisconnect func(error)
	logger       Logger
}

// Connect dials the broker and waits up to the connect timeout for the
// first session. Failures wrap ErrConnect.
//
// Parameters:
//   - cfg: MQTT section of config.yaml
//   - will: Last Will registered with the broker; nil for none
//
// Returns:
//   - *Client: Connected client that reconnects on its own
//   - error: Wrapped ErrConnect on timeout or refusal
func Connect(cfg config.MQTTConfig, will *Will) (*Client, error) {
	c := newClient(cfg, will)

	token := c.paho.Connect()
	if err := wait(token, connectTimeout, ErrConnect); err != nil {
		return nil, err
	}

	// Paho runs the on-connect handler asynchronously.
	c.mu.Lock()
	c.connected = true
	c.mu.Unlock()
	return c, nil
}

func newClient(cfg config.MQTTConfig, will *Will) *Client {
	c := &Client{
		cfg:  cfg,
		subs: make(map[string]subscription),
	}

	opts := clientOptions(cfg, will)
	opts.SetOnConnectHandler(func(pahomqtt.Client) { c.handleConnect() })
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) { c.handleDisconnect(err) })
	opts.SetReconnectingHandler(func(pahomqtt.Client, *pahomqtt.ClientOptions) {
		if l := c.log(); l != nil {
			l.Info("MQTT reconnecting", "broker", brokerURL(cfg))
		}
	})

	c.paho = pahomqtt.NewClient(opts)
	return c
}

// wait blocks on a paho token and maps timeouts and failures onto sentinel.
func wait(token pahomqtt.Token, timeout time.Duration, sentinel error) error {
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("%w: timeout after %v", sentinel, timeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", sentinel, err)
	}
	return nil
}

func (c *Client) handleConnect() {
	c.mu.Lock()
	c.connected = true
	replay := make(map[string]subscription, len(c.subs))
	for topic, s := range c.subs {
		replay[topic] = s
	}
	cb := c.onConnect
	c.mu.Unlock()

	for topic, s := range replay {
		// A failure here shows up as the next connection loss.
		c.paho.Subscribe(topic, s.qos, c.deliver(s.handler))
	}
	if cb != nil {
		cb()
	}
}

func (c *Client) handleDisconnect(err error) {
	c.mu.Lock()
	c.connected = false
	cb := c.onDisconnect
	l := c.logger
	c.mu.Unlock()

	if l != nil {
		l.Warn("MQTT connection lost", "error", err)
	}
	if cb != nil {
		cb(err)
	}
}

// Close disconnects after the quiesce period. A client that never
// connected closes cleanly.
func (c *Client) Close() error {
	if c.paho == nil {
		return nil
	}
	c.paho.Disconnect(quiesceMillis)

	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()
	return nil
}

// HealthCheck reports ErrNotConnected while the broker is unreachable.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mqtt health check: %w", err)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// IsConnected reports whether a session is up.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected && c.paho != nil && c.paho.IsConnected()
}

// SetOnConnect installs a callback run after the first connect and after
// every reconnect, once subscriptions have been replayed.
func (c *Client) SetOnConnect(fn func()) {
	c.mu.Lock()
	c.onConnect = fn
	c.mu.Unlock()
}

// SetOnDisconnect installs a callback run when the connection drops.
func (c *Client) SetOnDisconnect(fn func(err error)) {
	c.mu.Lock()
	c.onDisconnect = fn
	c.mu.Unlock()
}

// SetLogger sets the logger. Without one, handler errors are dropped.
func (c *Client) SetLogger(l Logger) {
	c.mu.Lock()
	c.logger = l
	c.mu.Unlock()
}

func (c *Client) log() Logger {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.logger
}
