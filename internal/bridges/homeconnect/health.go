package homeconnect

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// DefaultHealthInterval is used when no interval is configured.
const DefaultHealthInterval = 30 * time.Second

// HealthPublisher publishes health messages.
type HealthPublisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	IsConnected() bool
}

// HealthReporterConfig configures a HealthReporter.
type HealthReporterConfig struct {
	BridgeID  string
	Version   string
	Interval  time.Duration
	Publisher HealthPublisher

	// Stats supplies the counters included in each message. Optional.
	Stats func() BridgeStatistics

	// Logger receives publish failures from the periodic loop. Optional.
	Logger Logger
}

// HealthReporter keeps a retained health document current on the broker.
type HealthReporter struct {
	cfg     HealthReporterConfig
	started time.Time

	mu      sync.Mutex
	devices int
	logger  Logger

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

func NewHealthReporter(cfg HealthReporterConfig) *HealthReporter {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultHealthInterval
	}
	return &HealthReporter{
		cfg:     cfg,
		started: time.Now(),
		logger:  cfg.Logger,
		done:    make(chan struct{}),
	}
}

// Start publishes on every interval until ctx ends or Stop is called.
func (h *HealthReporter) Start(ctx context.Context) {
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		tick := time.NewTicker(h.cfg.Interval)
		defer tick.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-h.done:
				return
			case <-tick.C:
				if err := h.PublishNow(); err != nil {
					h.logError(err)
				}
			}
		}
	}()
}

// Stop halts the loop and leaves a "stopping" document behind. Repeated
// calls are no-ops.
func (h *HealthReporter) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
		h.wg.Wait()
		//nolint:errcheck // shutting down
		h.publish(HealthStopping, "")
	})
}

func (h *HealthReporter) SetDeviceCount(count int) {
	h.mu.Lock()
	h.devices = count
	h.mu.Unlock()
}

func (h *HealthReporter) SetLogger(logger Logger) {
	h.mu.Lock()
	h.logger = logger
	h.mu.Unlock()
}

func (h *HealthReporter) logError(err error) {
	h.mu.Lock()
	logger := h.logger
	h.mu.Unlock()
	if logger != nil {
		logger.Error("failed to publish health", "error", err)
	}
}

func (h *HealthReporter) PublishStarting() error {
	return h.publish(HealthStarting, "bridge starting")
}

// PublishNow reports healthy while the broker connection is up and
// degraded otherwise.
func (h *HealthReporter) PublishNow() error {
	if h.cfg.Publisher == nil || !h.cfg.Publisher.IsConnected() {
		return h.publish(HealthDegraded, "MQTT disconnected")
	}
	return h.publish(HealthHealthy, "")
}

// LWTPayload is the Last Will document registered at connect time.
func (h *HealthReporter) LWTPayload() ([]byte, error) {
	return json.Marshal(NewLWTMessage(h.cfg.BridgeID))
}

func (h *HealthReporter) Uptime() time.Duration {
	return time.Since(h.started)
}

func (h *HealthReporter) publish(status HealthStatus, reason string) error {
	if h.cfg.Publisher == nil {
		return nil
	}

	h.mu.Lock()
	devices := h.devices
	h.mu.Unlock()

	var stats BridgeStatistics
	if h.cfg.Stats != nil {
		stats = h.cfg.Stats()
	}

	msg := NewHealthMessage(h.cfg.BridgeID, h.cfg.Version, status, stats, devices, h.started)
	msg.Reason = reason
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return h.cfg.Publisher.Publish(HealthTopic(), payload, 1, true)
}
