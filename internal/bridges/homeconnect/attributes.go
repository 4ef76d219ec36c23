package homeconnect

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
)

// AttributeStore holds the current value of every normalised attribute.
// Values are strings, ints or bools. Attributes are never deleted.
//
// Not safe for concurrent use; the owning Device serialises access.
type AttributeStore struct {
	values map[string]any
}

// NewAttributeStore creates an empty store.
func NewAttributeStore() *AttributeStore {
	return &AttributeStore{values: make(map[string]any)}
}

// Set stores value under name and reports whether it changed.
func (s *AttributeStore) Set(name string, value any) bool {
	if s.values == nil {
		s.values = make(map[string]any)
	}
	value = normaliseAttribute(value)
	if old, ok := s.values[name]; ok && old == value {
		return false
	}
	s.values[name] = value
	return true
}

// Get returns the raw value of name.
func (s *AttributeStore) Get(name string) (any, bool) {
	v, ok := s.values[name]
	return v, ok
}

// String returns name as a string; missing attributes yield "".
func (s *AttributeStore) String(name string) string {
	v, ok := s.values[name]
	if !ok || v == nil {
		return ""
	}
	if str, ok := v.(string); ok {
		return str
	}
	return fmt.Sprint(v)
}

// Int returns name as an int; missing or non-numeric attributes yield 0.
func (s *AttributeStore) Int(name string) int {
	switch v := s.values[name].(type) {
	case int:
		return v
	case bool:
		if v {
			return 1
		}
		return 0
	case string:
		n, err := StringValue(v).Int()
		if err != nil {
			return 0
		}
		return n
	default:
		return 0
	}
}

// Bool returns name as a bool.
func (s *AttributeStore) Bool(name string) bool {
	switch v := s.values[name].(type) {
	case bool:
		return v
	case string:
		return ToBool(v)
	case int:
		return v != 0
	default:
		return false
	}
}

// Len returns the number of attributes.
func (s *AttributeStore) Len() int {
	return len(s.values)
}

// All returns a copy of every attribute.
func (s *AttributeStore) All() map[string]any {
	out := make(map[string]any, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

// Names returns attribute names in sorted order.
func (s *AttributeStore) Names() []string {
	names := make([]string, 0, len(s.values))
	for k := range s.values {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// MarshalJSON implements json.Marshaler.
func (s *AttributeStore) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.values)
}

// UnmarshalJSON implements json.Unmarshaler. Numbers decoded as float64 are
// restored to ints.
func (s *AttributeStore) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	s.values = make(map[string]any, len(raw))
	for k, v := range raw {
		s.values[k] = normaliseAttribute(v)
	}
	return nil
}

// normaliseAttribute folds numeric types to int and other types to string.
func normaliseAttribute(v any) any {
	switch x := v.(type) {
	case nil:
		return ""
	case string, bool, int:
		return x
	case int64:
		return int(x)
	case int32:
		return int(x)
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return 0
		}
		return int(x)
	case float32:
		return int(x)
	case Value:
		return normaliseAttribute(x.Any())
	default:
		return fmt.Sprint(x)
	}
}
