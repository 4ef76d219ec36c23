package homeconnect

import (
	"sort"
	"time"
)

// Telemetry bounds.
const (
	// MaxDiscoveredKeys caps the number of distinct event keys tracked.
	// Keys first seen after the cap is reached are still routed but not recorded.
	MaxDiscoveredKeys = 100

	// DefaultMaxRecentEvents is the default length of the recent event log.
	DefaultMaxRecentEvents = 20

	maxValueLength        = 100
	maxDisplayValueLength = 50
)

// DiscoveredKeyStat tracks one distinct event key.
type DiscoveredKeyStat struct {
	Key       string    `json:"key"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
	LastValue string    `json:"last_value"`
	Count     int       `json:"count"`
}

// RecentEvent is one entry of the recent event log.
type RecentEvent struct {
	Time         time.Time `json:"time"`
	Key          string    `json:"key"`
	Value        string    `json:"value"`
	DisplayValue string    `json:"display_value,omitempty"`
}

// TelemetryRecorder keeps bounded diagnostic bookkeeping of raw events:
// every distinct key (earliest 100 win) and the most recent events, newest first.
//
// The exported fields are the persisted form; mutate through methods only.
// Not safe for concurrent use; the owning Device serialises access.
type TelemetryRecorder struct {
	Keys   map[string]*DiscoveredKeyStat `json:"discovered_keys"`
	Recent []RecentEvent                 `json:"recent_events"`

	limit int
}

// NewTelemetryRecorder creates a recorder keeping at most maxRecent events.
// A negative maxRecent selects DefaultMaxRecentEvents; zero disables the log.
func NewTelemetryRecorder(maxRecent int) *TelemetryRecorder {
	r := &TelemetryRecorder{}
	r.ensure()
	r.SetLimit(maxRecent)
	return r
}

// ensure initialises nil structures, e.g. after decoding an older state blob.
func (r *TelemetryRecorder) ensure() {
	if r.Keys == nil {
		r.Keys = make(map[string]*DiscoveredKeyStat)
	}
	if r.Recent == nil {
		r.Recent = []RecentEvent{}
	}
}

// SetLimit changes the recent event bound and trims the log to fit.
func (r *TelemetryRecorder) SetLimit(maxRecent int) {
	if maxRecent < 0 {
		maxRecent = DefaultMaxRecentEvents
	}
	r.limit = maxRecent
	r.ensure()
	if len(r.Recent) > r.limit {
		r.Recent = r.Recent[:r.limit]
	}
}

// Limit returns the recent event bound.
func (r *TelemetryRecorder) Limit() int {
	return r.limit
}

// Record books one event. It never fails.
func (r *TelemetryRecorder) Record(ev RawEvent, now time.Time) {
	r.ensure()
	value := truncate(recordedValue(ev.Value), maxValueLength)

	if stat, ok := r.Keys[ev.Key]; ok {
		stat.LastSeen = now
		stat.LastValue = value
		stat.Count++
	} else if len(r.Keys) < MaxDiscoveredKeys {
		r.Keys[ev.Key] = &DiscoveredKeyStat{
			Key:       ev.Key,
			FirstSeen: now,
			LastSeen:  now,
			LastValue: value,
			Count:     1,
		}
	}

	if r.limit == 0 {
		return
	}
	entry := RecentEvent{
		Time:         now,
		Key:          ev.Key,
		Value:        value,
		DisplayValue: truncate(ev.DisplayValue, maxDisplayValueLength),
	}
	r.Recent = append([]RecentEvent{entry}, r.Recent...)
	if len(r.Recent) > r.limit {
		r.Recent = r.Recent[:r.limit]
	}
}

// recordedValue is the logged form of v; null is kept distinguishable from "".
func recordedValue(v Value) string {
	if v.IsNull() {
		return "null"
	}
	return v.String()
}

// DiscoveredKeys returns a copy of the key statistics ordered by first sighting.
func (r *TelemetryRecorder) DiscoveredKeys() []DiscoveredKeyStat {
	out := make([]DiscoveredKeyStat, 0, len(r.Keys))
	for _, stat := range r.Keys {
		out = append(out, *stat)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FirstSeen.Equal(out[j].FirstSeen) {
			return out[i].Key < out[j].Key
		}
		return out[i].FirstSeen.Before(out[j].FirstSeen)
	})
	return out
}

// RecentEvents returns a copy of the recent event log, newest first.
func (r *TelemetryRecorder) RecentEvents() []RecentEvent {
	out := make([]RecentEvent, len(r.Recent))
	copy(out, r.Recent)
	return out
}

// ClearDiscoveredKeys forgets all key statistics.
func (r *TelemetryRecorder) ClearDiscoveredKeys() {
	r.Keys = make(map[string]*DiscoveredKeyStat)
}
