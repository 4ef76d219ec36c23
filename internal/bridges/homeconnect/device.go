package homeconnect

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// DefaultProgramFetchDelay is how long after Installed/Updated the device
// asks the cloud for its program list.
const DefaultProgramFetchDelay = 10 * time.Second

// Logger is the logging interface used by devices and the bridge.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// DeviceConfig identifies one appliance.
type DeviceConfig struct {
	// ID is the hub-facing device identifier.
	ID string

	// Name is the human-readable name used in notifications.
	Name string

	// Ref is the cloud appliance identifier (haId). Defaults to ID.
	Ref string

	// Type selects the vocabulary.
	Type ApplianceType

	// Location renders estimated end times and timestamps. Defaults to time.Local.
	Location *time.Location

	// MaxRecentEvents bounds the recent event log. Negative selects
	// DefaultMaxRecentEvents; zero disables the log.
	MaxRecentEvents int

	// ProgramFetchDelay defers the program list request after lifecycle
	// entry. Zero selects DefaultProgramFetchDelay.
	ProgramFetchDelay time.Duration
}

// DeviceOptions configures a Device.
type DeviceOptions struct {
	Config    DeviceConfig
	Connector Connector
	Sink      SignalSink
	Scheduler Scheduler
	Logger    Logger

	// Clock defaults to time.Now.
	Clock func() time.Time
}

// DeviceInfo is a summary of one device.
type DeviceInfo struct {
	ID             string        `json:"id"`
	Name           string        `json:"name"`
	Ref            string        `json:"ha_id"`
	Type           ApplianceType `json:"type"`
	OperationState string        `json:"operation_state"`
	FriendlyStatus string        `json:"friendly_status"`
	Attributes     int           `json:"attribute_count"`
	DiscoveredKeys int           `json:"discovered_key_count"`
}

// Device is one appliance. Every exported method takes the device mutex, so
// events and commands are applied strictly in call order.
type Device struct {
	mu sync.Mutex

	cfg      DeviceConfig
	vocab    *vocabulary
	state    *DeviceState
	catalog  *ProgramCatalog
	snapshot []byte

	connector Connector
	sink      SignalSink
	scheduler Scheduler
	logger    Logger
	clock     func() time.Time

	id string
}

// NewDevice creates a device with empty state. Call Installed for a new
// appliance, or RestoreState followed by Updated for a known one.
func NewDevice(opts DeviceOptions) (*Device, error) {
	cfg := opts.Config
	if strings.TrimSpace(cfg.ID) == "" {
		return nil, errors.New("homeconnect: device id is required")
	}
	vocab, err := lookupVocabulary(cfg.Type)
	if err != nil {
		return nil, err
	}
	if cfg.Ref == "" {
		cfg.Ref = cfg.ID
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.ProgramFetchDelay <= 0 {
		cfg.ProgramFetchDelay = DefaultProgramFetchDelay
	}

	d := &Device{
		cfg:       cfg,
		vocab:     vocab,
		catalog:   NewProgramCatalog(vocab.namespace, vocab.programs),
		connector: opts.Connector,
		sink:      opts.Sink,
		scheduler: opts.Scheduler,
		logger:    opts.Logger,
		clock:     opts.Clock,
		id:        cfg.ID,
	}
	if d.connector == nil {
		d.connector = NoopConnector{}
	}
	if d.sink == nil {
		d.sink = noopSink{}
	}
	if d.scheduler == nil {
		d.scheduler = TimerScheduler{}
	}
	if d.logger == nil {
		d.logger = noopLogger{}
	}
	if d.clock == nil {
		d.clock = time.Now
	}
	d.state = newDeviceState(cfg.MaxRecentEvents, d.clock())
	return d, nil
}

// ID returns the device identifier.
func (d *Device) ID() string { return d.id }

// Ref returns the cloud appliance identifier.
func (d *Device) Ref() string { return d.cfg.Ref }

// Type returns the appliance type.
func (d *Device) Type() ApplianceType { return d.vocab.kind }

// =============================================================================
// Lifecycle
// =============================================================================

// Installed resets the device to a fresh state and schedules a program
// list fetch.
func (d *Device) Installed() {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.clock()
	d.state = newDeviceState(d.cfg.MaxRecentEvents, now)
	d.catalog.Replace(nil)
	d.set(AttrSwitch, "off")
	d.resetProgress()
	d.recomputeDerived()
	d.publishSnapshot(now)
	d.scheduleProgramFetch()

	d.logger.Info("appliance installed",
		"device_id", d.id,
		"type", string(d.vocab.kind),
		"ha_id", d.cfg.Ref)
}

// Updated re-initialises missing state after a restart or upgrade and
// schedules a program list fetch.
func (d *Device) Updated() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.ensureState()
	d.state.Telemetry.SetLimit(d.cfg.MaxRecentEvents)
	d.recomputeDerived()
	d.publishSnapshot(d.clock())
	d.scheduleProgramFetch()

	d.logger.Debug("appliance updated", "device_id", d.id)
}

// Configure applies new per-device options. ID and Type cannot change.
func (d *Device) Configure(cfg DeviceConfig) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if cfg.ID != "" && cfg.ID != d.id {
		return fmt.Errorf("homeconnect: cannot change device id %q to %q", d.id, cfg.ID)
	}
	if cfg.Type != "" && cfg.Type != d.vocab.kind {
		return fmt.Errorf("homeconnect: cannot change type of %q from %s to %s", d.id, d.vocab.kind, cfg.Type)
	}

	d.ensureState()
	if cfg.Name != "" {
		d.cfg.Name = cfg.Name
	}
	if cfg.Ref != "" {
		d.cfg.Ref = cfg.Ref
	}
	if cfg.Location != nil {
		d.cfg.Location = cfg.Location
	}
	if cfg.ProgramFetchDelay > 0 {
		d.cfg.ProgramFetchDelay = cfg.ProgramFetchDelay
	}
	d.cfg.MaxRecentEvents = cfg.MaxRecentEvents
	d.state.Telemetry.SetLimit(cfg.MaxRecentEvents)

	d.recomputeDerived()
	d.publishSnapshot(d.clock())
	return nil
}

// ensureState re-creates any uninitialised part of the state.
func (d *Device) ensureState() {
	if d.state == nil {
		d.state = newDeviceState(d.cfg.MaxRecentEvents, d.clock())
		d.logger.Warn("device state missing, reinitialised", "device_id", d.id)
		return
	}
	if d.state.ensure(d.cfg.MaxRecentEvents) {
		d.logger.Warn("device state incomplete, reinitialised missing parts", "device_id", d.id)
	}
}

func (d *Device) scheduleProgramFetch() {
	d.scheduler.After(d.cfg.ProgramFetchDelay, d.fetchPrograms)
}

func (d *Device) fetchPrograms() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.logger.Debug("requesting available programs", "device_id", d.id, "ha_id", d.cfg.Ref)
	d.connector.RequestAvailablePrograms(d.cfg.Ref)
}

// SetAvailablePrograms replaces the discovered program table.
func (d *Device) SetAvailablePrograms(entries []ProgramEntry) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.ensureState()
	d.catalog.Replace(entries)
	d.state.Programs = d.catalog.Discovered()

	d.logger.Info("available programs updated",
		"device_id", d.id,
		"count", len(d.state.Programs))
}

// =============================================================================
// Events
// =============================================================================

// HandleEvent applies one raw event.
func (d *Device) HandleEvent(ev RawEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.process(ev)
}

// HandleEvents applies a batch of events in order.
func (d *Device) HandleEvents(events []RawEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, ev := range events {
		d.process(ev)
	}
}

// HandlePayload decodes an event envelope and applies it.
func (d *Device) HandlePayload(payload []byte) error {
	events, err := ParseEvents(payload)
	if err != nil {
		return err
	}
	d.HandleEvents(events)
	return nil
}

// process records, routes and applies one event. Events without a key are
// discarded.
func (d *Device) process(ev RawEvent) {
	ev.Key = strings.TrimSpace(ev.Key)
	if ev.Key == "" {
		return
	}
	d.ensureState()

	now := d.clock()
	d.state.Telemetry.Record(ev, now)

	rule, _ := d.vocab.rules.Match(ev.Key)
	d.applyRule(rule, ev)

	if rule.Derived {
		d.recomputeDerived()
	}
	if rule.Snapshot || rule.Derived {
		d.publishSnapshot(now)
	}
}

// applyRule runs one rule. Errors and panics skip the update.
func (d *Device) applyRule(rule Rule, ev RawEvent) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Warn("event rule panicked",
				"device_id", d.id,
				"key", ev.Key,
				"rule", rule.Name,
				"panic", fmt.Sprint(r))
		}
	}()

	if err := rule.apply(d, ev); err != nil {
		d.logger.Warn("event update skipped",
			"device_id", d.id,
			"key", ev.Key,
			"rule", rule.Name,
			"error", err)
	}
}

func (d *Device) recomputeDerived() {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("friendly status computation failed",
				"device_id", d.id,
				"panic", fmt.Sprint(r))
		}
	}()
	d.set(AttrFriendlyStatus, d.vocab.friendlyStatus(d.state.Attributes))
}

func (d *Device) publishSnapshot(now time.Time) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("snapshot serialisation panicked",
				"device_id", d.id,
				"panic", fmt.Sprint(r))
		}
	}()

	data, err := BuildSnapshot(d.state.Attributes, d.vocab.snapshotFields, now, d.cfg.Location)
	if err != nil {
		d.logger.Error("snapshot serialisation failed", "device_id", d.id, "error", err)
		return
	}
	d.snapshot = data
	d.emit(Signal{Kind: SignalSnapshot, Payload: data, Metrics: d.metrics(), Timestamp: now})
}

// resetProgress zeroes progress and time attributes.
func (d *Device) resetProgress() {
	d.set(AttrRemainingProgramTime, 0)
	d.set(AttrRemainingProgramTimeFormat, FormatDuration(0))
	d.set(AttrElapsedProgramTime, 0)
	d.set(AttrElapsedProgramTimeFormat, FormatDuration(0))
	d.set(AttrStartInRelative, 0)
	d.set(AttrStartInRelativeFormat, FormatDuration(0))
	d.set(AttrProgramProgress, 0)
	d.set(AttrProgramProgressFormat, "0%")
	d.set(AttrEstimatedEndTime, "")
	if d.vocab.onReset != nil {
		d.vocab.onReset(d)
	}
}

// =============================================================================
// Rule helpers (device lock held)
// =============================================================================

func (d *Device) attrs() *AttributeStore { return d.state.Attributes }

func (d *Device) set(name string, value any) {
	if d.state.Attributes.Set(name, value) {
		v, _ := d.state.Attributes.Get(name)
		d.emit(Signal{Kind: SignalAttribute, Name: name, Value: v})
	}
}

func (d *Device) emit(sig Signal) {
	sig.DeviceID = d.id
	if sig.Timestamp.IsZero() {
		sig.Timestamp = d.clock()
	}
	d.sink.Emit(sig)
}

func (d *Device) now() time.Time { return d.clock() }

func (d *Device) location() *time.Location { return d.cfg.Location }

func (d *Device) timestamp(t time.Time) string {
	return t.In(d.cfg.Location).Format(time.RFC3339)
}

func (d *Device) displayName() string {
	if d.cfg.Name != "" {
		return d.cfg.Name
	}
	return d.id
}

// =============================================================================
// Commands
// =============================================================================

// Execute translates a semantic command and dispatches it to the connector.
func (d *Device) Execute(command string, params Params) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	translate, ok := d.vocab.commands[command]
	if !ok {
		return fmt.Errorf("%w: %s does not support %q", ErrUnknownCommand, d.vocab.kind, command)
	}
	if params == nil {
		params = Params{}
	}
	d.ensureState()

	dispatch, err := translate(d.catalog, params)
	if err != nil {
		if errors.Is(err, ErrInvalidValue) {
			d.logger.Warn("command rejected, nothing sent",
				"device_id", d.id,
				"command", command,
				"error", err)
		}
		return fmt.Errorf("%s: %w", command, err)
	}
	for _, dropped := range dispatch.Dropped {
		d.logger.Debug("dropped unsupported option",
			"device_id", d.id,
			"command", command,
			"option", dropped)
	}

	for _, call := range dispatch.Calls {
		call.send(d.connector, d.cfg.Ref)
	}

	summary := command
	if dispatch.Detail != "" {
		summary = command + " " + dispatch.Detail
	}
	d.set(AttrLastCommand, summary)
	d.set(AttrLastCommandTime, d.timestamp(d.clock()))
	if dispatch.Program != "" {
		d.set(AttrLastSelectedProgram, dispatch.Program)
	}

	d.logger.Info("command sent",
		"device_id", d.id,
		"command", command,
		"calls", len(dispatch.Calls))
	return nil
}

// =============================================================================
// Diagnostics
// =============================================================================

// Info returns a summary of the device.
func (d *Device) Info() DeviceInfo {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ensureState()
	return DeviceInfo{
		ID:             d.id,
		Name:           d.cfg.Name,
		Ref:            d.cfg.Ref,
		Type:           d.vocab.kind,
		OperationState: d.state.Attributes.String(AttrOperationState),
		FriendlyStatus: d.state.Attributes.String(AttrFriendlyStatus),
		Attributes:     d.state.Attributes.Len(),
		DiscoveredKeys: len(d.state.Telemetry.Keys),
	}
}

// Attributes returns a copy of every current attribute.
func (d *Device) Attributes() map[string]any {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ensureState()
	return d.state.Attributes.All()
}

// Attribute returns one attribute.
func (d *Device) Attribute(name string) (any, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ensureState()
	return d.state.Attributes.Get(name)
}

// DiscoveredKeys returns every distinct event key seen, oldest first.
func (d *Device) DiscoveredKeys() []DiscoveredKeyStat {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ensureState()
	return d.state.Telemetry.DiscoveredKeys()
}

// RecentEvents returns the recent event log, newest first.
func (d *Device) RecentEvents() []RecentEvent {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ensureState()
	return d.state.Telemetry.RecentEvents()
}

// ClearDiscoveredKeys forgets all key statistics.
func (d *Device) ClearDiscoveredKeys() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ensureState()
	d.state.Telemetry.ClearDiscoveredKeys()
	d.logger.Info("discovered keys cleared", "device_id", d.id)
}

// Snapshot returns the last serialised snapshot, building one if none exists.
func (d *Device) Snapshot() ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.snapshot == nil {
		d.ensureState()
		data, err := BuildSnapshot(d.state.Attributes, d.vocab.snapshotFields, d.clock(), d.cfg.Location)
		if err != nil {
			return nil, err
		}
		d.snapshot = data
	}
	out := make([]byte, len(d.snapshot))
	copy(out, d.snapshot)
	return out, nil
}

// Programs returns the static and discovered program tables.
func (d *Device) Programs() (static, discovered []ProgramEntry) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.catalog.Static(), d.catalog.Discovered()
}

// Metrics returns the numeric attributes exported as time-series values.
func (d *Device) Metrics() map[string]int {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ensureState()
	return d.metrics()
}

func (d *Device) metrics() map[string]int {
	out := make(map[string]int, len(d.vocab.metricFields))
	for _, name := range d.vocab.metricFields {
		if _, ok := d.state.Attributes.Get(name); ok {
			out[name] = d.state.Attributes.Int(name)
		}
	}
	return out
}

// =============================================================================
// Persistence
// =============================================================================

// ExportState serialises the device state for persistence.
func (d *Device) ExportState() ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ensureState()
	d.state.Programs = d.catalog.Discovered()
	data, err := json.Marshal(d.state)
	if err != nil {
		return nil, fmt.Errorf("encoding device state: %w", err)
	}
	return data, nil
}

// RestoreState replaces the device state with a persisted blob. Call
// Updated afterwards to refresh derived attributes.
func (d *Device) RestoreState(data []byte) error {
	s, err := decodeDeviceState(data)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	s.ensure(d.cfg.MaxRecentEvents)
	s.Telemetry.SetLimit(d.cfg.MaxRecentEvents)
	d.state = s
	d.catalog.Replace(s.Programs)
	d.snapshot = nil
	return nil
}
