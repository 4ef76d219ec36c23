package homeconnect

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type metricsCall struct {
	deviceID string
	kind     string
	fields   map[string]int
}

type recordingMetrics struct {
	mu    sync.Mutex
	calls []metricsCall
}

func (m *recordingMetrics) WriteApplianceMetrics(deviceID, applianceType string, fields map[string]int) {
	m.mu.Lock()
	m.calls = append(m.calls, metricsCall{deviceID: deviceID, kind: applianceType, fields: fields})
	m.mu.Unlock()
}

func (m *recordingMetrics) last() (metricsCall, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.calls) == 0 {
		return metricsCall{}, false
	}
	return m.calls[len(m.calls)-1], true
}

type bridgeFixture struct {
	bridge  *Bridge
	mqtt    *mockMQTT
	metrics *recordingMetrics
	sched   *manualScheduler
}

func testBridgeConfig() BridgeConfig {
	return BridgeConfig{
		BridgeID:       "appliances",
		Version:        "test",
		HealthInterval: time.Hour,
		PersistState:   true,
		Devices: []DeviceConfig{
			{ID: "dryer-1", Name: "Dryer", Ref: "HA-DRYER", Type: ApplianceDryer, Location: time.UTC, MaxRecentEvents: -1},
			{ID: "hood-1", Name: "Hood", Ref: "HA-HOOD", Type: ApplianceHood, Location: time.UTC, MaxRecentEvents: -1},
		},
	}
}

func startTestBridge(t *testing.T, store StateStore) *bridgeFixture {
	t.Helper()

	f := &bridgeFixture{
		mqtt:    newMockMQTT(),
		metrics: &recordingMetrics{},
		sched:   &manualScheduler{},
	}
	opts := BridgeOptions{
		Config:     testBridgeConfig(),
		MQTTClient: f.mqtt,
		Metrics:    f.metrics,
		Scheduler:  f.sched,
		Clock:      func() time.Time { return testNow },
	}
	if store != nil {
		opts.Store = store
	}
	b, err := NewBridge(opts)
	require.NoError(t, err)
	require.NoError(t, b.Start(context.Background()))
	t.Cleanup(b.Stop)
	f.bridge = b
	return f
}

func (f *bridgeFixture) lastState(t *testing.T, deviceID string) map[string]any {
	t.Helper()
	msgs := f.mqtt.on(StateTopic(deviceID))
	require.NotEmpty(t, msgs)

	var msg StateMessage
	require.NoError(t, json.Unmarshal(msgs[len(msgs)-1].Payload, &msg))
	var state map[string]any
	require.NoError(t, json.Unmarshal(msg.State, &state))
	return state
}

// stateOf is lastState for use inside polling conditions.
func (f *bridgeFixture) stateOf(deviceID string) (map[string]any, bool) {
	msgs := f.mqtt.on(StateTopic(deviceID))
	if len(msgs) == 0 {
		return nil, false
	}
	var msg StateMessage
	if err := json.Unmarshal(msgs[len(msgs)-1].Payload, &msg); err != nil {
		return nil, false
	}
	var state map[string]any
	if err := json.Unmarshal(msg.State, &state); err != nil {
		return nil, false
	}
	return state, true
}

func (f *bridgeFixture) lastAck(t *testing.T, deviceID string) AckMessage {
	t.Helper()
	msgs := f.mqtt.on(AckTopic(deviceID))
	require.NotEmpty(t, msgs)
	var ack AckMessage
	require.NoError(t, json.Unmarshal(msgs[len(msgs)-1].Payload, &ack))
	return ack
}

func TestNewBridgeValidation(t *testing.T) {
	_, err := NewBridge(BridgeOptions{Config: testBridgeConfig()})
	assert.Error(t, err, "MQTT client required")

	cfg := testBridgeConfig()
	cfg.BridgeID = ""
	_, err = NewBridge(BridgeOptions{Config: cfg, MQTTClient: newMockMQTT()})
	assert.Error(t, err)

	cfg = testBridgeConfig()
	cfg.Devices = append(cfg.Devices, DeviceConfig{ID: "dryer-1", Type: ApplianceDryer})
	_, err = NewBridge(BridgeOptions{Config: cfg, MQTTClient: newMockMQTT()})
	assert.ErrorContains(t, err, "duplicate device id")

	cfg = testBridgeConfig()
	cfg.Devices = append(cfg.Devices, DeviceConfig{ID: "dryer-2", Ref: "HA-DRYER", Type: ApplianceDryer})
	_, err = NewBridge(BridgeOptions{Config: cfg, MQTTClient: newMockMQTT()})
	assert.ErrorContains(t, err, "duplicate ha_id")

	cfg = testBridgeConfig()
	cfg.Devices[0].Type = "fridge"
	_, err = NewBridge(BridgeOptions{Config: cfg, MQTTClient: newMockMQTT()})
	assert.ErrorIs(t, err, ErrUnknownApplianceType)
}

func TestBridgeStartPublishesInitialState(t *testing.T) {
	f := startTestBridge(t, nil)

	for _, topic := range []string{CloudEventTopic("+"), CloudProgramsTopic("+"), CommandSubscribeTopic()} {
		f.mqtt.mu.Lock()
		_, ok := f.mqtt.handlers[topic]
		f.mqtt.mu.Unlock()
		assert.True(t, ok, "subscribed to %s", topic)
	}

	require.Eventually(t, func() bool {
		return len(f.mqtt.on(StateTopic("dryer-1"))) > 0 && len(f.mqtt.on(StateTopic("hood-1"))) > 0
	}, time.Second, 5*time.Millisecond)

	msgs := f.mqtt.on(StateTopic("hood-1"))
	assert.True(t, msgs[0].Retained)
	assert.Equal(t, "Off", f.lastState(t, "hood-1")[AttrFriendlyStatus])

	health := f.mqtt.on(HealthTopic())
	require.GreaterOrEqual(t, len(health), 2)

	require.NoError(t, f.bridge.PublishHealth())
	assert.Len(t, f.mqtt.on(HealthTopic()), len(health)+1)
}

func TestBridgeRoutesCloudEvents(t *testing.T) {
	f := startTestBridge(t, nil)

	require.True(t, f.mqtt.deliver(CloudEventTopic("HA-DRYER"), []byte(`[
		{"key":"BSH.Common.Status.OperationState","value":"BSH.Common.EnumType.OperationState.Run"},
		{"key":"BSH.Common.Option.ProgramProgress","value":25}
	]`)))

	require.Eventually(t, func() bool {
		state, ok := f.stateOf("dryer-1")
		return ok && state[AttrProgramProgress] == float64(25)
	}, time.Second, 5*time.Millisecond)

	state := f.lastState(t, "dryer-1")
	assert.Equal(t, "Run", state[AttrOperationState])
	assert.Equal(t, "Drying", state[AttrFriendlyStatus])
	assert.Equal(t, uint64(2), f.bridge.Stats().EventsReceived)

	require.Eventually(t, func() bool {
		call, ok := f.metrics.last()
		return ok && call.deviceID == "dryer-1" && call.fields[AttrProgramProgress] == 25
	}, time.Second, 5*time.Millisecond)

	// Events for unknown appliances are ignored.
	f.mqtt.deliver(CloudEventTopic("HA-OTHER"), []byte(`{"key":"x","value":1}`))
	assert.Equal(t, uint64(2), f.bridge.Stats().EventsReceived)

	// Malformed payloads are counted as errors.
	f.mqtt.deliver(CloudEventTopic("HA-DRYER"), []byte(`{`))
	assert.Equal(t, uint64(1), f.bridge.Stats().Errors)
}

func TestBridgePublishesSignalEvents(t *testing.T) {
	f := startTestBridge(t, nil)

	var mu sync.Mutex
	var observed []Signal
	f.bridge.AddObserver(func(sig Signal) {
		mu.Lock()
		observed = append(observed, sig)
		mu.Unlock()
	})

	f.mqtt.deliver(CloudEventTopic("HA-DRYER"), []byte(`{"key":"BSH.Common.Status.OperationState","value":"BSH.Common.EnumType.OperationState.Run"}`))
	f.mqtt.deliver(CloudEventTopic("HA-DRYER"), []byte(`{"key":"BSH.Common.Status.OperationState","value":"BSH.Common.EnumType.OperationState.Finished"}`))
	f.mqtt.deliver(CloudEventTopic("HA-DRYER"), []byte(`{"key":"LaundryCare.Dryer.Event.CleanLintFilter","value":"BSH.Common.EnumType.EventPresentState.Present"}`))

	require.Eventually(t, func() bool {
		return len(f.mqtt.on(EventTopic(SignalCompletion))) == 1 && len(f.mqtt.on(EventTopic(SignalButton))) == 1
	}, time.Second, 5*time.Millisecond)

	var button EventMessage
	require.NoError(t, json.Unmarshal(f.mqtt.on(EventTopic(SignalButton))[0].Payload, &button))
	assert.Equal(t, "dryer-1", button.DeviceID)
	assert.Equal(t, ButtonLintFilter, button.Button)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		for _, sig := range observed {
			if sig.Kind == SignalCompletion {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)
}

func TestBridgeCommands(t *testing.T) {
	f := startTestBridge(t, nil)

	f.mqtt.deliver(CommandTopic("dryer-1"), []byte(`{"id":"c-1","command":"startProgram","parameters":{"program":"Cotton","dryingTarget":"ExtraDry"}}`))

	ack := f.lastAck(t, "dryer-1")
	assert.Equal(t, "c-1", ack.CommandID)
	assert.Equal(t, AckAccepted, ack.Status)
	assert.Equal(t, "HA-DRYER", ack.Address)

	requests := f.mqtt.on(CloudRequestTopic("HA-DRYER"))
	require.Len(t, requests, 1)
	var req CloudRequest
	require.NoError(t, json.Unmarshal(requests[0].Payload, &req))
	assert.Equal(t, CallStartProgram, req.Action)
	assert.Equal(t, "LaundryCare.Dryer.Program.Cotton", req.Key)
	assert.NotEmpty(t, req.RequestID)

	stats := f.bridge.Stats()
	assert.Equal(t, uint64(1), stats.CommandsSent)
	assert.Equal(t, uint64(1), stats.CloudRequests)

	t.Run("invalid value", func(t *testing.T) {
		f.mqtt.deliver(CommandTopic("dryer-1"), []byte(`{"id":"c-2","command":"setDryingTarget","parameters":{"dryingTarget":"Soggy"}}`))
		ack := f.lastAck(t, "dryer-1")
		assert.Equal(t, AckFailed, ack.Status)
		require.NotNil(t, ack.Error)
		assert.Equal(t, ErrCodeInvalidParameters, ack.Error.Code)
	})

	t.Run("unknown command", func(t *testing.T) {
		f.mqtt.deliver(CommandTopic("hood-1"), []byte(`{"id":"c-3","command":"startTimedDry","parameters":{"minutes":10}}`))
		ack := f.lastAck(t, "hood-1")
		require.NotNil(t, ack.Error)
		assert.Equal(t, ErrCodeInvalidCommand, ack.Error.Code)
	})

	t.Run("unknown device", func(t *testing.T) {
		f.mqtt.deliver(CommandTopic("oven-1"), []byte(`{"id":"c-4","command":"stopProgram"}`))
		ack := f.lastAck(t, "oven-1")
		require.NotNil(t, ack.Error)
		assert.Equal(t, ErrCodeNotConfigured, ack.Error.Code)
	})

	assert.Len(t, f.mqtt.on(CloudRequestTopic("HA-DRYER")), 1, "rejected commands send nothing")
}

func TestBridgeProgramDiscovery(t *testing.T) {
	f := startTestBridge(t, nil)

	f.sched.run()
	assert.Len(t, f.mqtt.on(CloudRequestTopic("HA-DRYER")), 1)
	assert.Len(t, f.mqtt.on(CloudRequestTopic("HA-HOOD")), 1)

	f.mqtt.deliver(CloudProgramsTopic("HA-DRYER"), []byte(`{"programs":[{"name":"Wool","key":"LaundryCare.Dryer.Program.Wool"}]}`))

	d, err := f.bridge.Device("dryer-1")
	require.NoError(t, err)
	_, discovered := d.Programs()
	require.Len(t, discovered, 1)
	assert.Equal(t, "Wool", discovered[0].Name)
}

func TestBridgeDevicesAndInjection(t *testing.T) {
	f := startTestBridge(t, nil)

	devices := f.bridge.Devices()
	require.Len(t, devices, 2)
	assert.Equal(t, "dryer-1", devices[0].ID())
	assert.Equal(t, "hood-1", devices[1].ID())

	_, err := f.bridge.Device("nope")
	assert.ErrorIs(t, err, ErrUnknownDevice)

	n, err := f.bridge.InjectEvents("hood-1", []byte(`{"key":"Cooking.Common.Setting.Lighting","value":true}`))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	hood, _ := f.bridge.Device("hood-1")
	assert.Equal(t, "Light Only", hood.Info().FriendlyStatus)

	_, err = f.bridge.InjectEvents("hood-1", []byte(`nope`))
	assert.ErrorIs(t, err, ErrInvalidPayload)

	_, err = f.bridge.History(context.Background(), "hood-1", 10)
	assert.ErrorIs(t, err, ErrHistoryUnavailable)
}

func TestBridgePersistsAndRestoresState(t *testing.T) {
	store := newTestStore(t)

	first := startTestBridge(t, store)
	_, err := first.bridge.InjectEvents("dryer-1", []byte(`[
		{"key":"BSH.Common.Status.OperationState","value":"BSH.Common.EnumType.OperationState.Run"},
		{"key":"LaundryCare.Dryer.Option.DryingTarget","value":"LaundryCare.Dryer.EnumType.DryingTarget.IronDry"}
	]`))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		entries, err := first.bridge.History(context.Background(), "dryer-1", 10)
		return err == nil && len(entries) >= 2
	}, time.Second, 5*time.Millisecond)
	first.bridge.Stop()

	second := startTestBridge(t, store)
	d, err := second.bridge.Device("dryer-1")
	require.NoError(t, err)

	assert.Equal(t, "Run", d.Info().OperationState)
	v, _ := d.Attribute(AttrDryingTarget)
	assert.Equal(t, "Iron Dry", v)
	assert.Len(t, d.RecentEvents(), 2)
}

func TestBridgeClearDiscoveredKeysPersists(t *testing.T) {
	store := newTestStore(t)

	first := startTestBridge(t, store)
	_, err := first.bridge.InjectEvents("dryer-1", []byte(`{"key":"LaundryCare.Dryer.Status.Unknown","value":"x"}`))
	require.NoError(t, err)
	d, err := first.bridge.Device("dryer-1")
	require.NoError(t, err)
	require.NotEmpty(t, d.DiscoveredKeys())

	require.NoError(t, first.bridge.ClearDiscoveredKeys("dryer-1"))
	assert.ErrorIs(t, first.bridge.ClearDiscoveredKeys("nope"), ErrUnknownDevice)

	// Read the stored blob directly rather than via Stop, which persists again.
	data, err := store.LoadState(context.Background(), "dryer-1")
	require.NoError(t, err)
	var state DeviceState
	require.NoError(t, json.Unmarshal(data, &state))
	require.NotNil(t, state.Telemetry)
	assert.Empty(t, state.Telemetry.DiscoveredKeys())
}

func TestBridgeEmitShedsOnlyAttributesWhenBacklogged(t *testing.T) {
	b, err := NewBridge(BridgeOptions{Config: testBridgeConfig(), MQTTClient: newMockMQTT()})
	require.NoError(t, err)

	// Not started: nothing drains the queue.
	for i := 0; i < signalQueueSize+3; i++ {
		b.Emit(Signal{Kind: SignalAttribute})
	}
	assert.Equal(t, uint64(3), b.Stats().SignalsDropped)

	b.Emit(Signal{DeviceID: "dryer-1", Kind: SignalCompletion})
	b.Emit(Signal{DeviceID: "dryer-1", Kind: SignalButton, Button: ButtonLintFilter})
	b.Emit(Signal{DeviceID: "dryer-1", Kind: SignalDiagnostic})
	assert.Equal(t, uint64(3), b.Stats().SignalsDropped)
	assert.Equal(t, signalQueueSize+3, b.signals.len())
}

func TestBridgeLargeBatchKeepsCompletion(t *testing.T) {
	f := startTestBridge(t, nil)

	events := []map[string]any{
		{"key": "BSH.Common.Status.OperationState", "value": "BSH.Common.EnumType.OperationState.Run"},
	}
	for i := 0; i < 300; i++ {
		events = append(events, map[string]any{
			"key":   fmt.Sprintf("LaundryCare.Dryer.Option.Extra%d", i),
			"value": fmt.Sprintf("LaundryCare.Dryer.EnumType.Extra.Value%d", i),
		})
	}
	events = append(events, map[string]any{
		"key": "BSH.Common.Status.OperationState", "value": "BSH.Common.EnumType.OperationState.Finished",
	})
	body, err := json.Marshal(events)
	require.NoError(t, err)

	n, err := f.bridge.InjectEvents("dryer-1", body)
	require.NoError(t, err)
	require.Equal(t, len(events), n)

	require.Eventually(t, func() bool {
		state, ok := f.stateOf("dryer-1")
		return ok && state[AttrOperationState] == "Finished"
	}, 2*time.Second, 5*time.Millisecond)

	assert.Len(t, f.mqtt.on(EventTopic(SignalCompletion)), 1)
	call, ok := f.metrics.last()
	require.True(t, ok)
	assert.Equal(t, "dryer-1", call.deviceID)
}
