package homeconnect

import (
	"encoding/json"
	"time"
)

// SignalKind classifies what a device reports to the hub.
type SignalKind string

const (
	// SignalAttribute reports a changed attribute value.
	SignalAttribute SignalKind = "attribute"

	// SignalButton is a momentary button press used for maintenance alerts.
	SignalButton SignalKind = "button"

	// SignalCompletion fires once when a running program finishes.
	SignalCompletion SignalKind = "completion"

	// SignalDiagnostic flags an unhandled status or event key.
	SignalDiagnostic SignalKind = "diagnostic"

	// SignalSnapshot carries a freshly serialised snapshot.
	SignalSnapshot SignalKind = "snapshot"
)

// Signal is one outbound notification from a device.
type Signal struct {
	DeviceID  string          `json:"device_id"`
	Kind      SignalKind      `json:"kind"`
	Name      string          `json:"name,omitempty"`
	Value     any             `json:"value,omitempty"`
	Button    int             `json:"button,omitempty"`
	Message   string          `json:"message,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`

	// Metrics holds the numeric attributes captured with a snapshot.
	Metrics map[string]int `json:"-"`
}

// SignalSink receives device signals. Emit is called while the device lock
// is held, so implementations must not call back into the device.
type SignalSink interface {
	Emit(sig Signal)
}

// SignalSinkFunc adapts a function to SignalSink.
type SignalSinkFunc func(sig Signal)

// Emit implements SignalSink.
func (f SignalSinkFunc) Emit(sig Signal) { f(sig) }

type noopSink struct{}

func (noopSink) Emit(Signal) {}
