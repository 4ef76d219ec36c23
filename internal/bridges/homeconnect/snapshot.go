package homeconnect

import (
	"encoding/json"
	"fmt"
	"time"
)

// SnapshotLastUpdate is the timestamp field added to every snapshot.
const SnapshotLastUpdate = "lastUpdate"

// BuildSnapshot renders fields of attrs as a flat JSON object plus
// lastUpdate (RFC 3339 with offset in loc). Missing fields render as null.
func BuildSnapshot(attrs *AttributeStore, fields []string, now time.Time, loc *time.Location) ([]byte, error) {
	if loc == nil {
		loc = time.Local
	}
	out := make(map[string]any, len(fields)+1)
	for _, f := range fields {
		v, ok := attrs.Get(f)
		if !ok {
			out[f] = nil
			continue
		}
		out[f] = v
	}
	out[SnapshotLastUpdate] = now.In(loc).Format(time.RFC3339)

	data, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("encoding snapshot: %w", err)
	}
	return data, nil
}
