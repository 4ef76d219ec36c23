package homeconnect

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 1, 14, 0, 0, 0, time.UTC)

// connCall is one recorded Connector invocation.
type connCall struct {
	Action  CallAction
	Ref     string
	Key     string
	Options []Option
	Value   any
	On      bool
}

type recordingConnector struct {
	mu    sync.Mutex
	calls []connCall
}

func (c *recordingConnector) record(call connCall) {
	c.mu.Lock()
	c.calls = append(c.calls, call)
	c.mu.Unlock()
}

func (c *recordingConnector) StartProgram(ref, key string, options []Option) {
	c.record(connCall{Action: CallStartProgram, Ref: ref, Key: key, Options: options})
}

func (c *recordingConnector) StopProgram(ref string) {
	c.record(connCall{Action: CallStopProgram, Ref: ref})
}

func (c *recordingConnector) SetSetting(ref, key string, value any) {
	c.record(connCall{Action: CallSetSetting, Ref: ref, Key: key, Value: value})
}

func (c *recordingConnector) SetSelectedProgramOption(ref, key string, value any) {
	c.record(connCall{Action: CallSetOption, Ref: ref, Key: key, Value: value})
}

func (c *recordingConnector) SetPowerState(ref string, on bool) {
	c.record(connCall{Action: CallSetPower, Ref: ref, On: on})
}

func (c *recordingConnector) RequestAvailablePrograms(ref string) {
	c.record(connCall{Action: CallFetchPrograms, Ref: ref})
}

func (c *recordingConnector) Calls() []connCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]connCall, len(c.calls))
	copy(out, c.calls)
	return out
}

type recordingSink struct {
	mu      sync.Mutex
	signals []Signal
}

func (s *recordingSink) Emit(sig Signal) {
	s.mu.Lock()
	s.signals = append(s.signals, sig)
	s.mu.Unlock()
}

func (s *recordingSink) ofKind(kind SignalKind) []Signal {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Signal
	for _, sig := range s.signals {
		if sig.Kind == kind {
			out = append(out, sig)
		}
	}
	return out
}

func (s *recordingSink) reset() {
	s.mu.Lock()
	s.signals = nil
	s.mu.Unlock()
}

// manualScheduler holds deferred callbacks until run is called.
type manualScheduler struct {
	mu     sync.Mutex
	delays []time.Duration
	fns    []func()
}

func (s *manualScheduler) After(d time.Duration, fn func()) {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	s.fns = append(s.fns, fn)
	s.mu.Unlock()
}

func (s *manualScheduler) run() {
	s.mu.Lock()
	fns := s.fns
	s.fns = nil
	s.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

type logEntry struct {
	level string
	msg   string
	kv    []any
}

type recordingLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

func (l *recordingLogger) add(level, msg string, kv []any) {
	l.mu.Lock()
	l.entries = append(l.entries, logEntry{level: level, msg: msg, kv: kv})
	l.mu.Unlock()
}

func (l *recordingLogger) Debug(msg string, kv ...any) { l.add("debug", msg, kv) }
func (l *recordingLogger) Info(msg string, kv ...any)  { l.add("info", msg, kv) }
func (l *recordingLogger) Warn(msg string, kv ...any)  { l.add("warn", msg, kv) }
func (l *recordingLogger) Error(msg string, kv ...any) { l.add("error", msg, kv) }

func (l *recordingLogger) count(level string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.entries {
		if e.level == level {
			n++
		}
	}
	return n
}

type testDevice struct {
	*Device
	conn   *recordingConnector
	sink   *recordingSink
	sched  *manualScheduler
	logger *recordingLogger
}

// newTestDevice creates and installs a device with a fixed clock in UTC.
func newTestDevice(t *testing.T, kind ApplianceType) *testDevice {
	t.Helper()

	td := &testDevice{
		conn:   &recordingConnector{},
		sink:   &recordingSink{},
		sched:  &manualScheduler{},
		logger: &recordingLogger{},
	}
	d, err := NewDevice(DeviceOptions{
		Config: DeviceConfig{
			ID:              fmt.Sprintf("%s-1", kind),
			Name:            "Utility " + string(kind),
			Ref:             "HA-" + string(kind),
			Type:            kind,
			Location:        time.UTC,
			MaxRecentEvents: -1,
		},
		Connector: td.conn,
		Sink:      td.sink,
		Scheduler: td.sched,
		Logger:    td.logger,
		Clock:     func() time.Time { return testNow },
	})
	require.NoError(t, err)
	td.Device = d
	d.Installed()
	return td
}

func ev(key string, value any) RawEvent {
	return RawEvent{Key: key, Value: ValueOf(value)}
}

func (td *testDevice) str(name string) string {
	v, _ := td.Attribute(name)
	s, _ := v.(string)
	return s
}

func (td *testDevice) num(name string) int {
	v, _ := td.Attribute(name)
	n, _ := v.(int)
	return n
}
