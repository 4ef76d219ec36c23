package homeconnect

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// RawEvent is one key/value report from the appliance cloud.
//
// Topic: homeconnect/event/{haId}
// Payload: a single object or a JSON array of objects.
type RawEvent struct {
	// Key is the dotted vendor identifier (e.g. "BSH.Common.Status.DoorState").
	Key string `json:"key"`

	// Value is the reported value; its type depends on the key.
	Value Value `json:"value"`

	// DisplayValue is the vendor's localised rendering of Value, if any.
	DisplayValue string `json:"displayvalue,omitempty"`

	// Unit is the vendor unit (e.g. "seconds", "%"), if any.
	Unit string `json:"unit,omitempty"`
}

// ParseEvents decodes an event envelope. Both a single event object and a
// batch (JSON array) are accepted; a batch expands to its events in order.
func ParseEvents(payload []byte) ([]RawEvent, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrInvalidPayload)
	}

	if trimmed[0] == '[' {
		var events []RawEvent
		if err := json.Unmarshal(trimmed, &events); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
		}
		return events, nil
	}

	var ev RawEvent
	if err := json.Unmarshal(trimmed, &ev); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	return []RawEvent{ev}, nil
}
