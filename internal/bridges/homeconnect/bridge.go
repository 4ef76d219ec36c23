package homeconnect

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Bridge operation constants.
const (
	// signalQueueSize is the backlog beyond which attribute signals are
	// shed and pending snapshots coalesced.
	signalQueueSize = 256

	// storeTimeout bounds each persistence call.
	storeTimeout = 5 * time.Second

	// pruneInterval is how often snapshot history is pruned.
	pruneInterval = time.Hour
)

// BridgeConfig configures a Bridge.
type BridgeConfig struct {
	BridgeID       string
	Version        string
	HealthInterval time.Duration

	// PersistState saves each device's state after every mutation and
	// restores it on start.
	PersistState bool

	// HistoryRetention is how long snapshot history is kept. Zero keeps it forever.
	HistoryRetention time.Duration

	Devices []DeviceConfig
}

// MQTTClient is the interface for MQTT operations.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error
	IsConnected() bool
}

// MetricsWriter records numeric appliance attributes as time-series points.
type MetricsWriter interface {
	WriteApplianceMetrics(deviceID, applianceType string, fields map[string]int)
}

// HistoryReader reads recorded snapshots.
type HistoryReader interface {
	History(ctx context.Context, deviceID string, limit int) ([]HistoryEntry, error)
}

type historyPruner interface {
	PruneHistory(ctx context.Context, olderThan time.Duration) (int64, error)
}

// SignalObserver receives every device signal after it is published.
type SignalObserver func(sig Signal)

// BridgeOptions holds the collaborators of a Bridge.
type BridgeOptions struct {
	Config     BridgeConfig
	MQTTClient MQTTClient

	// Connector reaches the appliance cloud. Defaults to an MQTTConnector
	// publishing through MQTTClient.
	Connector Connector

	// Store persists state and snapshot history. Optional.
	Store StateStore

	// Metrics receives numeric attributes after each snapshot. Optional.
	Metrics MetricsWriter

	Scheduler Scheduler
	Logger    Logger
	Clock     func() time.Time
}

// Bridge connects configured appliances to the hub over MQTT: cloud events
// flow into devices, device signals flow out as hub messages, and hub
// commands are translated and sent to the cloud.
//
// Thread Safety: All methods are safe for concurrent use.
type Bridge struct {
	cfg       BridgeConfig
	mqtt      MQTTClient
	connector Connector
	store     StateStore
	metrics   MetricsWriter
	health    *HealthReporter

	devices map[string]*Device
	byRef   map[string]*Device

	signals     *signalQueue
	observers   []SignalObserver
	observersMu sync.RWMutex

	eventsReceived atomic.Uint64
	commandsSent   atomic.Uint64
	signalsDropped atomic.Uint64
	errorCount     atomic.Uint64

	done      chan struct{}
	wg        sync.WaitGroup
	stopOnce  sync.Once
	ctx       context.Context
	ctxCancel context.CancelFunc

	logger   Logger
	loggerMu sync.RWMutex
}

// NewBridge creates a bridge and its devices. Call Start to begin operation.
func NewBridge(opts BridgeOptions) (*Bridge, error) {
	if opts.MQTTClient == nil {
		return nil, fmt.Errorf("MQTT client is required")
	}
	if opts.Config.BridgeID == "" {
		return nil, fmt.Errorf("bridge id is required")
	}

	ctx, ctxCancel := context.WithCancel(context.Background())
	b := &Bridge{
		cfg:       opts.Config,
		mqtt:      opts.MQTTClient,
		connector: opts.Connector,
		store:     opts.Store,
		metrics:   opts.Metrics,
		devices:   make(map[string]*Device, len(opts.Config.Devices)),
		byRef:     make(map[string]*Device, len(opts.Config.Devices)),
		signals:   newSignalQueue(signalQueueSize),
		done:      make(chan struct{}),
		ctx:       ctx,
		ctxCancel: ctxCancel,
		logger:    opts.Logger,
	}

	if b.connector == nil {
		mc := NewMQTTConnector(opts.MQTTClient)
		if opts.Logger != nil {
			mc.SetLogger(opts.Logger)
		}
		b.connector = mc
	}
	scheduler := opts.Scheduler
	if scheduler == nil {
		scheduler = bridgeScheduler{done: b.done}
	}

	for _, dc := range opts.Config.Devices {
		if _, dup := b.devices[dc.ID]; dup {
			ctxCancel()
			return nil, fmt.Errorf("duplicate device id %q", dc.ID)
		}
		d, err := NewDevice(DeviceOptions{
			Config:    dc,
			Connector: b.connector,
			Sink:      b,
			Scheduler: scheduler,
			Logger:    opts.Logger,
			Clock:     opts.Clock,
		})
		if err != nil {
			ctxCancel()
			return nil, fmt.Errorf("device %q: %w", dc.ID, err)
		}
		if _, dup := b.byRef[d.Ref()]; dup {
			ctxCancel()
			return nil, fmt.Errorf("duplicate ha_id %q", d.Ref())
		}
		b.devices[d.ID()] = d
		b.byRef[d.Ref()] = d
	}

	b.health = NewHealthReporter(HealthReporterConfig{
		BridgeID:  opts.Config.BridgeID,
		Version:   opts.Config.Version,
		Interval:  opts.Config.HealthInterval,
		Publisher: opts.MQTTClient,
		Stats:     b.Stats,
		Logger:    opts.Logger,
	})
	b.health.SetDeviceCount(len(b.devices))
	return b, nil
}

// Start restores or installs every device, subscribes to the cloud and
// command topics and starts health reporting.
func (b *Bridge) Start(ctx context.Context) error {
	if err := b.health.PublishStarting(); err != nil {
		b.logError("failed to publish starting status", err)
	}

	b.wg.Add(1)
	go b.signalLoop()

	for _, d := range b.Devices() {
		b.initDevice(ctx, d)
	}

	subscriptions := []struct {
		topic   string
		handler func(topic string, payload []byte)
	}{
		{CloudEventTopic("+"), b.handleCloudEvent},
		{CloudProgramsTopic("+"), b.handleCloudPrograms},
		{CommandSubscribeTopic(), b.handleCommand},
	}
	for _, s := range subscriptions {
		if err := b.mqtt.Subscribe(s.topic, 1, s.handler); err != nil {
			return fmt.Errorf("subscribe to %s: %w", s.topic, err)
		}
		b.logInfo("subscribed", "topic", s.topic)
	}

	b.health.Start(ctx)
	if err := b.health.PublishNow(); err != nil {
		b.logError("failed to publish healthy status", err)
	}

	if pruner, ok := b.store.(historyPruner); ok && b.cfg.HistoryRetention > 0 {
		b.wg.Add(1)
		go b.pruneLoop(pruner)
	}

	b.logInfo("bridge started",
		"bridge_id", b.cfg.BridgeID,
		"devices", len(b.devices))
	return nil
}

// Stop persists every device and shuts the bridge down.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		close(b.done)
		b.health.Stop()
		b.wg.Wait()

		for _, d := range b.Devices() {
			b.persist(d)
		}
		b.ctxCancel()
		b.logInfo("bridge stopped")
	})
}

// initDevice restores persisted state when available, otherwise installs
// the device from scratch.
func (b *Bridge) initDevice(ctx context.Context, d *Device) {
	if b.store != nil && b.cfg.PersistState {
		loadCtx, cancel := context.WithTimeout(ctx, storeTimeout)
		data, err := b.store.LoadState(loadCtx, d.ID())
		cancel()

		switch {
		case err == nil:
			if restoreErr := d.RestoreState(data); restoreErr == nil {
				d.Updated()
				b.logInfo("appliance state restored", "device_id", d.ID())
				return
			} else {
				b.logError("discarding unreadable appliance state", restoreErr)
			}
		case errors.Is(err, ErrStateNotFound):
		default:
			b.logError("failed to load appliance state", err)
		}
	}
	d.Installed()
	b.persist(d)
}

// =============================================================================
// Inbound
// =============================================================================

func (b *Bridge) handleCloudEvent(topic string, payload []byte) {
	d, ok := b.deviceByRef(lastTopicSegment(topic))
	if !ok {
		b.logDebug("event for unknown appliance", "topic", topic)
		return
	}
	events, err := ParseEvents(payload)
	if err != nil {
		b.errorCount.Add(1)
		b.logError("failed to parse appliance event", err)
		return
	}
	d.HandleEvents(events)
	b.eventsReceived.Add(uint64(len(events)))
	b.persist(d)
}

func (b *Bridge) handleCloudPrograms(topic string, payload []byte) {
	d, ok := b.deviceByRef(lastTopicSegment(topic))
	if !ok {
		b.logDebug("programs for unknown appliance", "topic", topic)
		return
	}
	entries, err := ParsePrograms(payload)
	if err != nil {
		b.errorCount.Add(1)
		b.logError("failed to parse available programs", err)
		return
	}
	d.SetAvailablePrograms(entries)
	b.persist(d)
}

func (b *Bridge) handleCommand(topic string, payload []byte) {
	var cmd CommandMessage
	if err := json.Unmarshal(payload, &cmd); err != nil {
		b.errorCount.Add(1)
		b.logError("failed to parse command", err)
		return
	}
	if cmd.DeviceID == "" {
		cmd.DeviceID = lastTopicSegment(topic)
	}

	b.logInfo("received command",
		"command_id", cmd.ID,
		"device_id", cmd.DeviceID,
		"command", cmd.Command)

	address := ""
	if d, ok := b.devices[cmd.DeviceID]; ok {
		address = d.Ref()
	}

	var ack AckMessage
	if err := b.ExecuteCommand(cmd.DeviceID, cmd.Command, Params(cmd.Parameters)); err != nil {
		ack = NewAckError(cmd, address, AckErrorCode(err), err.Error())
	} else {
		ack = NewAckMessage(cmd, address)
	}
	b.publishJSON(AckTopic(cmd.DeviceID), ack, false)
}

// AckErrorCode maps a command error to an acknowledgment code.
func AckErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrUnknownDevice):
		return ErrCodeNotConfigured
	case errors.Is(err, ErrUnknownCommand):
		return ErrCodeInvalidCommand
	case errors.Is(err, ErrMissingParameter),
		errors.Is(err, ErrInvalidValue),
		errors.Is(err, ErrCoercion),
		errors.Is(err, ErrNullValue):
		return ErrCodeInvalidParameters
	default:
		return ErrCodeBridgeError
	}
}

// =============================================================================
// Public operations
// =============================================================================

// Devices returns every device ordered by ID.
func (b *Bridge) Devices() []*Device {
	out := make([]*Device, 0, len(b.devices))
	for _, d := range b.devices {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// Device returns one device or ErrUnknownDevice.
func (b *Bridge) Device(id string) (*Device, error) {
	d, ok := b.devices[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDevice, id)
	}
	return d, nil
}

func (b *Bridge) deviceByRef(ref string) (*Device, bool) {
	d, ok := b.byRef[ref]
	return d, ok
}

// ExecuteCommand runs a semantic command on one device.
func (b *Bridge) ExecuteCommand(deviceID, command string, params Params) error {
	d, err := b.Device(deviceID)
	if err != nil {
		return err
	}
	if err := d.Execute(command, params); err != nil {
		return err
	}
	b.commandsSent.Add(1)
	b.persist(d)
	return nil
}

// InjectEvents applies an event envelope to a device as if it came from the cloud.
func (b *Bridge) InjectEvents(deviceID string, payload []byte) (int, error) {
	d, err := b.Device(deviceID)
	if err != nil {
		return 0, err
	}
	events, err := ParseEvents(payload)
	if err != nil {
		return 0, err
	}
	d.HandleEvents(events)
	b.eventsReceived.Add(uint64(len(events)))
	b.persist(d)
	return len(events), nil
}

// ClearDiscoveredKeys empties a device's discovered-key log and persists
// the result.
func (b *Bridge) ClearDiscoveredKeys(deviceID string) error {
	d, err := b.Device(deviceID)
	if err != nil {
		return err
	}
	d.ClearDiscoveredKeys()
	b.persist(d)
	return nil
}

// History returns recorded snapshots of a device, newest first.
func (b *Bridge) History(ctx context.Context, deviceID string, limit int) ([]HistoryEntry, error) {
	if _, err := b.Device(deviceID); err != nil {
		return nil, err
	}
	reader, ok := b.store.(HistoryReader)
	if !ok {
		return nil, ErrHistoryUnavailable
	}
	return reader.History(ctx, deviceID, limit)
}

// AddObserver registers fn to receive every device signal.
func (b *Bridge) AddObserver(fn SignalObserver) {
	b.observersMu.Lock()
	b.observers = append(b.observers, fn)
	b.observersMu.Unlock()
}

// Stats returns cumulative counters.
func (b *Bridge) Stats() BridgeStatistics {
	stats := BridgeStatistics{
		EventsReceived: b.eventsReceived.Load(),
		CommandsSent:   b.commandsSent.Load(),
		SignalsDropped: b.signalsDropped.Load(),
		Errors:         b.errorCount.Load(),
	}
	if mc, ok := b.connector.(*MQTTConnector); ok {
		stats.CloudRequests = mc.Requests()
		stats.Errors += mc.Failures()
	}
	return stats
}

// Uptime returns how long the bridge has been running.
func (b *Bridge) Uptime() time.Duration {
	return b.health.Uptime()
}

// Connected reports whether the MQTT client is connected.
func (b *Bridge) Connected() bool {
	return b.mqtt.IsConnected()
}

// PublishHealth publishes a health message immediately, replacing a
// retained LWT after a reconnect.
func (b *Bridge) PublishHealth() error {
	return b.health.PublishNow()
}

// =============================================================================
// Outbound
// =============================================================================

// Emit implements SignalSink. It never blocks. Under backlog only
// attribute signals are dropped; see signalQueue.
func (b *Bridge) Emit(sig Signal) {
	if !b.signals.push(sig) {
		b.signalsDropped.Add(1)
	}
}

// signalLoop publishes queued signals. It never takes a device lock.
func (b *Bridge) signalLoop() {
	defer b.wg.Done()
	for {
		select {
		case <-b.signals.wake:
			for _, sig := range b.signals.drain() {
				b.handleSignal(sig)
			}
		case <-b.done:
			for _, sig := range b.signals.drain() {
				b.handleSignal(sig)
			}
			return
		}
	}
}

func (b *Bridge) handleSignal(sig Signal) {
	switch sig.Kind {
	case SignalSnapshot:
		b.publishSnapshot(sig)
	case SignalButton, SignalCompletion, SignalDiagnostic:
		b.publishJSON(EventTopic(sig.Kind), NewEventMessage(sig), false)
	}

	b.observersMu.RLock()
	observers := b.observers
	b.observersMu.RUnlock()
	for _, fn := range observers {
		fn(sig)
	}
}

func (b *Bridge) publishSnapshot(sig Signal) {
	d, ok := b.devices[sig.DeviceID]
	if !ok {
		return
	}
	b.publishJSON(StateTopic(sig.DeviceID), StateMessage{
		DeviceID:  sig.DeviceID,
		Timestamp: sig.Timestamp.UTC(),
		State:     sig.Payload,
		Protocol:  Protocol,
		Address:   d.Ref(),
	}, true)

	if b.store != nil {
		ctx, cancel := context.WithTimeout(b.ctx, storeTimeout)
		if err := b.store.RecordSnapshot(ctx, sig.DeviceID, sig.Payload); err != nil {
			b.errorCount.Add(1)
			b.logError("failed to record snapshot", err)
		}
		cancel()
	}

	if b.metrics != nil && len(sig.Metrics) > 0 {
		b.metrics.WriteApplianceMetrics(d.ID(), string(d.Type()), sig.Metrics)
	}
}

func (b *Bridge) publishJSON(topic string, v any, retained bool) {
	payload, err := json.Marshal(v)
	if err != nil {
		b.errorCount.Add(1)
		b.logError("failed to marshal message", err)
		return
	}
	if err := b.mqtt.Publish(topic, payload, 1, retained); err != nil {
		b.errorCount.Add(1)
		b.logError("failed to publish message", fmt.Errorf("topic %s: %w", topic, err))
	}
}

func (b *Bridge) persist(d *Device) {
	if b.store == nil || !b.cfg.PersistState {
		return
	}
	data, err := d.ExportState()
	if err != nil {
		b.errorCount.Add(1)
		b.logError("failed to export appliance state", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := b.store.SaveState(ctx, d.ID(), d.Type(), data); err != nil {
		b.errorCount.Add(1)
		b.logError("failed to save appliance state", err)
	}
}

func (b *Bridge) pruneLoop(p historyPruner) {
	defer b.wg.Done()

	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.done:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(b.ctx, storeTimeout)
			n, err := p.PruneHistory(ctx, b.cfg.HistoryRetention)
			cancel()
			if err != nil {
				b.logError("failed to prune snapshot history", err)
				continue
			}
			if n > 0 {
				b.logInfo("pruned snapshot history", "deleted", n)
			}
		}
	}
}

// bridgeScheduler drops deferred callbacks once the bridge has stopped.
type bridgeScheduler struct {
	done <-chan struct{}
}

func (s bridgeScheduler) After(d time.Duration, fn func()) {
	time.AfterFunc(d, func() {
		select {
		case <-s.done:
		default:
			fn()
		}
	})
}

// =============================================================================
// Logging
// =============================================================================

// SetLogger sets the logger for the bridge.
func (b *Bridge) SetLogger(logger Logger) {
	b.loggerMu.Lock()
	b.logger = logger
	b.loggerMu.Unlock()

	if b.health != nil {
		b.health.SetLogger(logger)
	}
}

func (b *Bridge) logInfo(msg string, keysAndValues ...any) {
	b.loggerMu.RLock()
	logger := b.logger
	b.loggerMu.RUnlock()

	if logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

func (b *Bridge) logError(msg string, err error) {
	b.loggerMu.RLock()
	logger := b.logger
	b.loggerMu.RUnlock()

	if logger != nil {
		logger.Error(msg, "error", err)
	}
}

func (b *Bridge) logDebug(msg string, keysAndValues ...any) {
	b.loggerMu.RLock()
	logger := b.logger
	b.loggerMu.RUnlock()

	if logger != nil {
		logger.Debug(msg, keysAndValues...)
	}
}
