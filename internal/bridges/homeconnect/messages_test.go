package homeconnect

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePrograms(t *testing.T) {
	t.Run("object form", func(t *testing.T) {
		entries, err := ParsePrograms([]byte(`{"programs":[{"name":"Cotton","key":"LaundryCare.Dryer.Program.Cotton"},{"name":"Blank","key":""}]}`))
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, "Cotton", entries[0].Name)
	})

	t.Run("array form", func(t *testing.T) {
		entries, err := ParsePrograms([]byte(`[{"key":"Cooking.Common.Program.Hood.Venting"}]`))
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, ProgramHoodVenting, entries[0].Key)
	})

	t.Run("invalid", func(t *testing.T) {
		_, err := ParsePrograms(nil)
		assert.ErrorIs(t, err, ErrInvalidPayload)
		_, err = ParsePrograms([]byte(`{"programs":"nope"}`))
		assert.ErrorIs(t, err, ErrInvalidPayload)
	})
}

func TestCommandMessageUnmarshal(t *testing.T) {
	var cmd CommandMessage
	require.NoError(t, json.Unmarshal([]byte(`{
		"id": "c-1",
		"timestamp": "2026-03-01T14:00:00Z",
		"device_id": "dryer-1",
		"command": "startProgram",
		"parameters": {"program": "Cotton", "minutes": 30},
		"source": "api"
	}`), &cmd))
	assert.Equal(t, "c-1", cmd.ID)
	assert.Equal(t, testNow, cmd.Timestamp)
	assert.Equal(t, "Cotton", cmd.Parameters["program"])
	assert.Equal(t, float64(30), cmd.Parameters["minutes"])

	var bare CommandMessage
	require.NoError(t, json.Unmarshal([]byte(`{"command":"stopProgram"}`), &bare))
	assert.True(t, bare.Timestamp.IsZero())

	assert.Error(t, json.Unmarshal([]byte(`{"timestamp":"yesterday"}`), &bare))
}

func TestAckMessages(t *testing.T) {
	cmd := CommandMessage{ID: "c-1", DeviceID: "dryer-1"}

	ok := NewAckMessage(cmd, "HA-1")
	assert.Equal(t, AckAccepted, ok.Status)
	assert.Nil(t, ok.Error)
	assert.Equal(t, Protocol, ok.Protocol)

	failed := NewAckError(cmd, "HA-1", ErrCodeInvalidParameters, "bad")
	assert.Equal(t, AckFailed, failed.Status)
	require.NotNil(t, failed.Error)
	assert.Equal(t, ErrCodeInvalidParameters, failed.Error.Code)
}

func TestAckErrorCode(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{fmt.Errorf("x: %w", ErrUnknownDevice), ErrCodeNotConfigured},
		{fmt.Errorf("x: %w", ErrUnknownCommand), ErrCodeInvalidCommand},
		{fmt.Errorf("x: %w", ErrMissingParameter), ErrCodeInvalidParameters},
		{fmt.Errorf("x: %w", ErrInvalidValue), ErrCodeInvalidParameters},
		{fmt.Errorf("x: %w", ErrCoercion), ErrCodeInvalidParameters},
		{errors.New("boom"), ErrCodeBridgeError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, AckErrorCode(tt.err), tt.err.Error())
	}
}

func TestNewEventMessage(t *testing.T) {
	msg := NewEventMessage(Signal{
		DeviceID:  "dryer-1",
		Kind:      SignalButton,
		Button:    2,
		Message:   "Clean the condenser",
		Timestamp: testNow.In(time.FixedZone("CET", 3600)),
	})
	assert.Equal(t, testNow, msg.Timestamp)
	assert.Equal(t, time.UTC, msg.Timestamp.Location())
	assert.Equal(t, 2, msg.Button)
	assert.Equal(t, Protocol, msg.Protocol)
}

func TestHealthMessages(t *testing.T) {
	start := time.Now().Add(-90 * time.Second)
	msg := NewHealthMessage("bridge-1", "1.0.0", HealthHealthy, BridgeStatistics{EventsReceived: 4}, 2, start)
	assert.GreaterOrEqual(t, msg.UptimeSeconds, int64(90))
	require.NotNil(t, msg.Statistics)
	assert.Equal(t, uint64(4), msg.Statistics.EventsReceived)

	lwt := NewLWTMessage("bridge-1")
	assert.Equal(t, HealthOffline, lwt.Status)
	assert.Equal(t, "unexpected_disconnect", lwt.Reason)
}

func TestTopics(t *testing.T) {
	assert.Equal(t, "graylogic/command/homeconnect/dryer-1", CommandTopic("dryer-1"))
	assert.Equal(t, "graylogic/command/homeconnect/+", CommandSubscribeTopic())
	assert.Equal(t, "graylogic/ack/homeconnect/dryer-1", AckTopic("dryer-1"))
	assert.Equal(t, "graylogic/state/homeconnect/dryer-1", StateTopic("dryer-1"))
	assert.Equal(t, "graylogic/core/event/button", EventTopic(SignalButton))
	assert.Equal(t, "graylogic/health/homeconnect", HealthTopic())
	assert.Equal(t, "homeconnect/event/HA1", CloudEventTopic("HA1"))
	assert.Equal(t, "homeconnect/programs/HA1", CloudProgramsTopic("HA1"))
	assert.Equal(t, "homeconnect/request/HA1", CloudRequestTopic("HA1"))

	assert.Equal(t, "HA1", lastTopicSegment("homeconnect/event/HA1"))
	assert.Equal(t, "plain", lastTopicSegment("plain"))
}
