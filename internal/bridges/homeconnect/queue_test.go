package homeconnect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignalQueueShedsByKind(t *testing.T) {
	q := newSignalQueue(2)

	require.True(t, q.push(Signal{DeviceID: "hood-1", Kind: SignalSnapshot, Payload: []byte(`{"v":1}`)}))
	require.True(t, q.push(Signal{DeviceID: "hood-1", Kind: SignalAttribute}))

	assert.False(t, q.push(Signal{DeviceID: "hood-1", Kind: SignalAttribute}))
	assert.True(t, q.push(Signal{DeviceID: "hood-1", Kind: SignalSnapshot, Payload: []byte(`{"v":2}`)}))
	assert.Equal(t, 2, q.len(), "newer snapshot replaces the pending one")

	assert.True(t, q.push(Signal{DeviceID: "dryer-1", Kind: SignalSnapshot}))
	assert.True(t, q.push(Signal{DeviceID: "dryer-1", Kind: SignalCompletion}))
	assert.True(t, q.push(Signal{DeviceID: "dryer-1", Kind: SignalButton}))
	assert.True(t, q.push(Signal{DeviceID: "dryer-1", Kind: SignalDiagnostic}))

	got := q.drain()
	require.Len(t, got, 6)
	assert.JSONEq(t, `{"v":2}`, string(got[0].Payload))
	assert.Equal(t, SignalAttribute, got[1].Kind)
	assert.Equal(t, SignalCompletion, got[3].Kind)
	assert.Equal(t, 0, q.len())
}

func TestSignalQueueWakesOnce(t *testing.T) {
	q := newSignalQueue(8)
	q.push(Signal{Kind: SignalAttribute})
	q.push(Signal{Kind: SignalAttribute})

	select {
	case <-q.wake:
	default:
		t.Fatal("expected a wake-up after push")
	}
	select {
	case <-q.wake:
		t.Fatal("wake-ups should coalesce")
	default:
	}
	assert.Len(t, q.drain(), 2)
}
