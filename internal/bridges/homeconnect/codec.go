package homeconnect

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Duration formatting constants.
const (
	secondsPerMinute = 60
	secondsPerHour   = 3600
)

// ExtractEnum returns the terminal segment of a dotted vendor identifier.
//
// Example:
//
//	ExtractEnum("BSH.Common.EnumType.OperationState.Run") // "Run"
//	ExtractEnum("Cotton")                                 // "Cotton"
//	ExtractEnum("")                                       // ""
func ExtractEnum(value string) string {
	if i := strings.LastIndexByte(value, '.'); i >= 0 {
		return value[i+1:]
	}
	return value
}

// ToBool reports whether value equals "true", ignoring case.
func ToBool(value string) bool {
	return strings.EqualFold(strings.TrimSpace(value), "true")
}

// FormatDuration renders seconds as "H:MM" when at least one hour remains,
// otherwise as "MM:SS". Zero and negative durations render as "00:00".
func FormatDuration(seconds int) string {
	if seconds <= 0 {
		return "00:00"
	}
	hours := seconds / secondsPerHour
	minutes := (seconds % secondsPerHour) / secondsPerMinute
	if hours >= 1 {
		return fmt.Sprintf("%d:%02d", hours, minutes)
	}
	return fmt.Sprintf("%02d:%02d", minutes, seconds%secondsPerMinute)
}

// truncate shortens s to at most limit runes.
func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit])
}

// ValueKind identifies which member of a Value is populated.
type ValueKind int

// Value kinds.
const (
	KindNull ValueKind = iota
	KindString
	KindNumber
	KindBool
)

// String returns the kind name.
func (k ValueKind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	default:
		return "null"
	}
}

// Value is the payload of a raw appliance event. The cloud reports strings,
// numbers and booleans under the same field, so rules resolve the type at
// the point of use through Text, Enum, Int and Bool.
type Value struct {
	kind ValueKind
	str  string
	num  float64
	b    bool
}

// NullValue returns an empty Value.
func NullValue() Value { return Value{} }

// StringValue wraps a string.
func StringValue(s string) Value { return Value{kind: KindString, str: s} }

// NumberValue wraps a number.
func NumberValue(n float64) Value { return Value{kind: KindNumber, num: n} }

// BoolValue wraps a boolean.
func BoolValue(b bool) Value { return Value{kind: KindBool, b: b} }

// ValueOf converts a decoded JSON value (or a Go scalar) into a Value.
// Objects and arrays are kept as their JSON text.
func ValueOf(v any) Value {
	switch x := v.(type) {
	case nil:
		return NullValue()
	case Value:
		return x
	case string:
		return StringValue(x)
	case bool:
		return BoolValue(x)
	case float64:
		return NumberValue(x)
	case float32:
		return NumberValue(float64(x))
	case int:
		return NumberValue(float64(x))
	case int64:
		return NumberValue(float64(x))
	case int32:
		return NumberValue(float64(x))
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return StringValue(x.String())
		}
		return NumberValue(f)
	default:
		data, err := json.Marshal(x)
		if err != nil {
			return StringValue(fmt.Sprint(x))
		}
		return StringValue(string(data))
	}
}

// Kind returns the populated member.
func (v Value) Kind() ValueKind { return v.kind }

// IsNull reports whether the value is absent.
func (v Value) IsNull() bool { return v.kind == KindNull }

// String renders the value for diagnostics. Null renders as "".
func (v Value) String() string {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	default:
		return ""
	}
}

// Text returns the value as a string.
func (v Value) Text() (string, error) {
	if v.IsNull() {
		return "", ErrNullValue
	}
	return v.String(), nil
}

// Enum returns the terminal segment of a string value.
func (v Value) Enum() (string, error) {
	s, err := v.Text()
	if err != nil {
		return "", err
	}
	return ExtractEnum(s), nil
}

// Int returns the value as an integer, truncating fractions.
func (v Value) Int() (int, error) {
	switch v.kind {
	case KindNumber:
		if math.IsNaN(v.num) || math.IsInf(v.num, 0) {
			return 0, fmt.Errorf("%w: %v is not finite", ErrCoercion, v.num)
		}
		return int(v.num), nil
	case KindString:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.str), 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q is not numeric", ErrCoercion, v.str)
		}
		return int(f), nil
	case KindBool:
		return 0, fmt.Errorf("%w: boolean is not numeric", ErrCoercion)
	default:
		return 0, ErrNullValue
	}
}

// Float returns the value as a float64.
func (v Value) Float() (float64, error) {
	switch v.kind {
	case KindNumber:
		if math.IsNaN(v.num) || math.IsInf(v.num, 0) {
			return 0, fmt.Errorf("%w: %v is not finite", ErrCoercion, v.num)
		}
		return v.num, nil
	case KindString:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.str), 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q is not numeric", ErrCoercion, v.str)
		}
		return f, nil
	case KindBool:
		return 0, fmt.Errorf("%w: boolean is not numeric", ErrCoercion)
	default:
		return 0, ErrNullValue
	}
}

// Bool returns the value as a boolean. Strings follow ToBool.
func (v Value) Bool() (bool, error) {
	switch v.kind {
	case KindBool:
		return v.b, nil
	case KindString:
		return ToBool(v.str), nil
	case KindNumber:
		return v.num != 0, nil
	default:
		return false, ErrNullValue
	}
}

// Any returns the underlying Go value (nil, string, float64 or bool).
func (v Value) Any() any {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return v.num
	case KindBool:
		return v.b
	default:
		return nil
	}
}

// MarshalJSON implements json.Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Any())
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*v = ValueOf(raw)
	return nil
}
