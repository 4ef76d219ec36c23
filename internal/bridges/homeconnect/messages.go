package homeconnect

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Protocol is the protocol identifier carried in hub messages.
const Protocol = "homeconnect"

// CommandMessage is sent from the hub to execute an appliance command.
// Topic: graylogic/command/homeconnect/{deviceId}
type CommandMessage struct {
	// ID correlates the command with its acknowledgment.
	ID string `json:"id"`

	// Timestamp is when the command was issued.
	Timestamp time.Time `json:"timestamp"`

	// DeviceID is the hub device identifier. Taken from the topic when empty.
	DeviceID string `json:"device_id"`

	// Command is the semantic command name (e.g. "startProgram").
	Command string `json:"command"`

	// Parameters are command-specific, e.g.
	//   {"program": "Cotton", "dryingTarget": "CupboardDry"}
	Parameters map[string]any `json:"parameters,omitempty"`

	// Source indicates where the command originated ("api", "automation", ...).
	Source string `json:"source"`

	// UserID is the user who triggered the command, if any.
	UserID string `json:"user_id,omitempty"`
}

// UnmarshalJSON accepts an RFC 3339 timestamp or none at all.
func (m *CommandMessage) UnmarshalJSON(data []byte) error {
	type alias CommandMessage
	aux := &struct {
		*alias
		Timestamp string `json:"timestamp"`
	}{alias: (*alias)(m)}
	if err := json.Unmarshal(data, aux); err != nil {
		return fmt.Errorf("unmarshal command message: %w", err)
	}
	if aux.Timestamp != "" {
		t, err := time.Parse(time.RFC3339, aux.Timestamp)
		if err != nil {
			return fmt.Errorf("parse timestamp: %w", err)
		}
		m.Timestamp = t
	}
	return nil
}

// AckStatus is the acknowledgment status of a command.
type AckStatus string

const (
	// AckAccepted means the command was translated and handed to the cloud.
	AckAccepted AckStatus = "accepted"

	// AckFailed means the command was rejected; nothing was sent.
	AckFailed AckStatus = "failed"
)

// AckMessage acknowledges a command.
// Topic: graylogic/ack/homeconnect/{deviceId}
type AckMessage struct {
	CommandID string    `json:"command_id"`
	Timestamp time.Time `json:"timestamp"`
	DeviceID  string    `json:"device_id"`
	Status    AckStatus `json:"status"`
	Protocol  string    `json:"protocol"`
	Address   string    `json:"address"`
	Error     *AckError `json:"error,omitempty"`
}

// AckError describes a rejected command.
type AckError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes for rejected commands.
const (
	ErrCodeInvalidCommand    = "INVALID_COMMAND"
	ErrCodeInvalidParameters = "INVALID_PARAMETERS"
	ErrCodeNotConfigured     = "NOT_CONFIGURED"
	ErrCodeBridgeError       = "BRIDGE_ERROR"
)

// NewAckMessage creates a successful acknowledgment.
func NewAckMessage(cmd CommandMessage, address string) AckMessage {
	return AckMessage{
		CommandID: cmd.ID,
		Timestamp: time.Now().UTC(),
		DeviceID:  cmd.DeviceID,
		Status:    AckAccepted,
		Protocol:  Protocol,
		Address:   address,
	}
}

// NewAckError creates a failed acknowledgment.
func NewAckError(cmd CommandMessage, address, code, message string) AckMessage {
	return AckMessage{
		CommandID: cmd.ID,
		Timestamp: time.Now().UTC(),
		DeviceID:  cmd.DeviceID,
		Status:    AckFailed,
		Protocol:  Protocol,
		Address:   address,
		Error:     &AckError{Code: code, Message: message},
	}
}

// StateMessage carries a device snapshot to the hub.
// Topic: graylogic/state/homeconnect/{deviceId}
// QoS: 1, Retained: Yes
type StateMessage struct {
	DeviceID  string          `json:"device_id"`
	Timestamp time.Time       `json:"timestamp"`
	State     json.RawMessage `json:"state"`
	Protocol  string          `json:"protocol"`
	Address   string          `json:"address"`
}

// EventMessage carries a momentary device signal (alert button, program
// completion, unhandled key) to the hub.
// Topic: graylogic/core/event/{kind}
type EventMessage struct {
	DeviceID  string     `json:"device_id"`
	Timestamp time.Time  `json:"timestamp"`
	Kind      SignalKind `json:"kind"`
	Name      string     `json:"name,omitempty"`
	Value     any        `json:"value,omitempty"`
	Button    int        `json:"button,omitempty"`
	Message   string     `json:"message,omitempty"`
	Protocol  string     `json:"protocol"`
}

// NewEventMessage converts a signal.
func NewEventMessage(sig Signal) EventMessage {
	return EventMessage{
		DeviceID:  sig.DeviceID,
		Timestamp: sig.Timestamp.UTC(),
		Kind:      sig.Kind,
		Name:      sig.Name,
		Value:     sig.Value,
		Button:    sig.Button,
		Message:   sig.Message,
		Protocol:  Protocol,
	}
}

// CloudRequest asks the cloud connector to perform one appliance call.
// Topic: homeconnect/request/{haId}
type CloudRequest struct {
	RequestID string     `json:"request_id"`
	Timestamp time.Time  `json:"timestamp"`
	HaID      string     `json:"ha_id"`
	Action    CallAction `json:"action"`
	Key       string     `json:"key,omitempty"`
	Value     any        `json:"value,omitempty"`
	Options   []Option   `json:"options,omitempty"`
	On        *bool      `json:"on,omitempty"`
}

// programsEnvelope is the object form of an available-programs response.
type programsEnvelope struct {
	Programs []ProgramEntry `json:"programs"`
}

// ParsePrograms decodes an available-programs response. Both
// {"programs": [...]} and a bare array are accepted. Entries without a key
// are skipped.
// Topic: homeconnect/programs/{haId}
func ParsePrograms(payload []byte) ([]ProgramEntry, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrInvalidPayload)
	}

	var entries []ProgramEntry
	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &entries); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
		}
	} else {
		var env programsEnvelope
		if err := json.Unmarshal(trimmed, &env); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
		}
		entries = env.Programs
	}

	out := make([]ProgramEntry, 0, len(entries))
	for _, e := range entries {
		if strings.TrimSpace(e.Key) == "" {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// HealthStatus is the operational status of the bridge.
type HealthStatus string

const (
	HealthHealthy  HealthStatus = "healthy"
	HealthDegraded HealthStatus = "degraded"
	HealthOffline  HealthStatus = "offline"
	HealthStarting HealthStatus = "starting"
	HealthStopping HealthStatus = "stopping"
)

// HealthMessage reports bridge status.
// Topic: graylogic/health/homeconnect
// QoS: 1, Retained: Yes
type HealthMessage struct {
	Bridge         string            `json:"bridge"`
	Timestamp      time.Time         `json:"timestamp"`
	Status         HealthStatus      `json:"status"`
	Version        string            `json:"version"`
	UptimeSeconds  int64             `json:"uptime_seconds"`
	Statistics     *BridgeStatistics `json:"statistics,omitempty"`
	DevicesManaged int               `json:"devices_managed"`
	Reason         string            `json:"reason,omitempty"`
}

// BridgeStatistics are cumulative bridge counters.
type BridgeStatistics struct {
	EventsReceived uint64 `json:"events_received"`
	CommandsSent   uint64 `json:"commands_sent"`
	CloudRequests  uint64 `json:"cloud_requests"`
	SignalsDropped uint64 `json:"signals_dropped"`
	Errors         uint64 `json:"errors"`
}

// NewHealthMessage creates a health status message.
func NewHealthMessage(bridgeID, version string, status HealthStatus, stats BridgeStatistics, deviceCount int, startTime time.Time) HealthMessage {
	return HealthMessage{
		Bridge:         bridgeID,
		Timestamp:      time.Now().UTC(),
		Status:         status,
		Version:        version,
		UptimeSeconds:  int64(time.Since(startTime).Seconds()),
		Statistics:     &stats,
		DevicesManaged: deviceCount,
	}
}

// NewLWTMessage creates the Last Will message published by the broker if
// the bridge disconnects unexpectedly.
func NewLWTMessage(bridgeID string) HealthMessage {
	return HealthMessage{
		Bridge:    bridgeID,
		Timestamp: time.Now().UTC(),
		Status:    HealthOffline,
		Reason:    "unexpected_disconnect",
	}
}

// Topic helpers

const (
	// TopicPrefix is the base topic for hub messages.
	TopicPrefix = "graylogic"

	// CloudTopicPrefix is the base topic of the cloud connector.
	CloudTopicPrefix = "homeconnect"
)

// CommandTopic returns graylogic/command/homeconnect/{deviceId}.
func CommandTopic(deviceID string) string {
	return fmt.Sprintf("%s/command/%s/%s", TopicPrefix, Protocol, deviceID)
}

// CommandSubscribeTopic returns graylogic/command/homeconnect/+.
func CommandSubscribeTopic() string {
	return CommandTopic("+")
}

// AckTopic returns graylogic/ack/homeconnect/{deviceId}.
func AckTopic(deviceID string) string {
	return fmt.Sprintf("%s/ack/%s/%s", TopicPrefix, Protocol, deviceID)
}

// StateTopic returns graylogic/state/homeconnect/{deviceId}.
func StateTopic(deviceID string) string {
	return fmt.Sprintf("%s/state/%s/%s", TopicPrefix, Protocol, deviceID)
}

// EventTopic returns graylogic/core/event/{kind}.
func EventTopic(kind SignalKind) string {
	return fmt.Sprintf("%s/core/event/%s", TopicPrefix, kind)
}

// HealthTopic returns graylogic/health/homeconnect.
func HealthTopic() string {
	return fmt.Sprintf("%s/health/%s", TopicPrefix, Protocol)
}

// CloudEventTopic returns homeconnect/event/{haId}.
func CloudEventTopic(haID string) string {
	return fmt.Sprintf("%s/event/%s", CloudTopicPrefix, haID)
}

// CloudProgramsTopic returns homeconnect/programs/{haId}.
func CloudProgramsTopic(haID string) string {
	return fmt.Sprintf("%s/programs/%s", CloudTopicPrefix, haID)
}

// CloudRequestTopic returns homeconnect/request/{haId}.
func CloudRequestTopic(haID string) string {
	return fmt.Sprintf("%s/request/%s", CloudTopicPrefix, haID)
}

// lastTopicSegment returns the final level of an MQTT topic.
func lastTopicSegment(topic string) string {
	if i := strings.LastIndexByte(topic, '/'); i >= 0 {
		return topic[i+1:]
	}
	return topic
}
