package homeconnect

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Publisher is the publishing half of an MQTT client.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// MQTTConnector implements Connector by publishing CloudRequest messages
// to homeconnect/request/{haId} for the cloud connector process.
// Publish failures are logged and counted; callers never see them.
type MQTTConnector struct {
	publisher Publisher
	newID     func() string

	requests atomic.Uint64
	failures atomic.Uint64

	logger   Logger
	loggerMu sync.RWMutex
}

// NewMQTTConnector creates a connector publishing through p.
func NewMQTTConnector(p Publisher) *MQTTConnector {
	return &MQTTConnector{
		publisher: p,
		newID:     uuid.NewString,
	}
}

// SetLogger sets the logger.
func (c *MQTTConnector) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

// Requests returns the number of requests published.
func (c *MQTTConnector) Requests() uint64 { return c.requests.Load() }

// Failures returns the number of requests that could not be published.
func (c *MQTTConnector) Failures() uint64 { return c.failures.Load() }

// StartProgram implements Connector.
func (c *MQTTConnector) StartProgram(ref, programKey string, options []Option) {
	c.send(CloudRequest{HaID: ref, Action: CallStartProgram, Key: programKey, Options: options})
}

// StopProgram implements Connector.
func (c *MQTTConnector) StopProgram(ref string) {
	c.send(CloudRequest{HaID: ref, Action: CallStopProgram})
}

// SetSetting implements Connector.
func (c *MQTTConnector) SetSetting(ref, settingKey string, value any) {
	c.send(CloudRequest{HaID: ref, Action: CallSetSetting, Key: settingKey, Value: value})
}

// SetSelectedProgramOption implements Connector.
func (c *MQTTConnector) SetSelectedProgramOption(ref, optionKey string, value any) {
	c.send(CloudRequest{HaID: ref, Action: CallSetOption, Key: optionKey, Value: value})
}

// SetPowerState implements Connector.
func (c *MQTTConnector) SetPowerState(ref string, on bool) {
	c.send(CloudRequest{HaID: ref, Action: CallSetPower, On: &on})
}

// RequestAvailablePrograms implements Connector.
func (c *MQTTConnector) RequestAvailablePrograms(ref string) {
	c.send(CloudRequest{HaID: ref, Action: CallFetchPrograms})
}

func (c *MQTTConnector) send(req CloudRequest) {
	req.RequestID = c.newID()
	req.Timestamp = time.Now().UTC()

	payload, err := json.Marshal(req)
	if err != nil {
		c.failures.Add(1)
		c.logError("failed to marshal cloud request", err)
		return
	}
	if err := c.publisher.Publish(CloudRequestTopic(req.HaID), payload, 1, false); err != nil {
		c.failures.Add(1)
		c.logError("failed to publish cloud request", err)
		return
	}
	c.requests.Add(1)
}

func (c *MQTTConnector) logError(msg string, err error) {
	c.loggerMu.RLock()
	logger := c.logger
	c.loggerMu.RUnlock()

	if logger != nil {
		logger.Error(msg, "error", err)
	}
}
