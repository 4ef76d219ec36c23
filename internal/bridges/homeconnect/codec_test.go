package homeconnect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractEnum(t *testing.T) {
	tests := map[string]string{
		"BSH.Common.EnumType.OperationState.Run": "Run",
		"LaundryCare.Dryer.Program.Cotton":       "Cotton",
		"Cotton":                                 "Cotton",
		"trailing.":                              "",
		"":                                       "",
	}
	for in, want := range tests {
		assert.Equal(t, want, ExtractEnum(in), "ExtractEnum(%q)", in)
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		seconds int
		want    string
	}{
		{0, "00:00"},
		{-5, "00:00"},
		{59, "00:59"},
		{75, "01:15"},
		{3599, "59:59"},
		{3600, "1:00"},
		{3661, "1:01"},
		{36000, "10:00"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatDuration(tt.seconds), "FormatDuration(%d)", tt.seconds)
	}
}

func TestToBool(t *testing.T) {
	assert.True(t, ToBool("true"))
	assert.True(t, ToBool(" TRUE "))
	assert.False(t, ToBool("yes"))
	assert.False(t, ToBool(""))
}

func TestValueCoercion(t *testing.T) {
	t.Run("int from number and numeric string", func(t *testing.T) {
		n, err := NumberValue(42.9).Int()
		require.NoError(t, err)
		assert.Equal(t, 42, n)

		n, err = StringValue(" 120 ").Int()
		require.NoError(t, err)
		assert.Equal(t, 120, n)
	})

	t.Run("int coercion failures", func(t *testing.T) {
		_, err := StringValue("abc").Int()
		assert.ErrorIs(t, err, ErrCoercion)

		_, err = BoolValue(true).Int()
		assert.ErrorIs(t, err, ErrCoercion)

		_, err = NullValue().Int()
		assert.ErrorIs(t, err, ErrNullValue)
	})

	t.Run("float keeps fractions", func(t *testing.T) {
		f, err := StringValue("1.5").Float()
		require.NoError(t, err)
		assert.InDelta(t, 1.5, f, 1e-9)
	})

	t.Run("bool", func(t *testing.T) {
		b, err := StringValue("True").Bool()
		require.NoError(t, err)
		assert.True(t, b)

		b, err = NumberValue(0).Bool()
		require.NoError(t, err)
		assert.False(t, b)

		_, err = NullValue().Bool()
		assert.ErrorIs(t, err, ErrNullValue)
	})

	t.Run("enum", func(t *testing.T) {
		v, err := StringValue("BSH.Common.EnumType.DoorState.Open").Enum()
		require.NoError(t, err)
		assert.Equal(t, "Open", v)

		_, err = NullValue().Enum()
		assert.ErrorIs(t, err, ErrNullValue)
	})

	t.Run("string rendering", func(t *testing.T) {
		assert.Equal(t, "", NullValue().String())
		assert.Equal(t, "3.25", NumberValue(3.25).String())
		assert.Equal(t, "false", BoolValue(false).String())
	})
}

func TestValueOf(t *testing.T) {
	assert.Equal(t, KindNull, ValueOf(nil).Kind())
	assert.Equal(t, KindString, ValueOf("x").Kind())
	assert.Equal(t, KindNumber, ValueOf(7).Kind())
	assert.Equal(t, KindBool, ValueOf(true).Kind())

	obj := ValueOf(map[string]any{"a": 1})
	assert.Equal(t, KindString, obj.Kind())
	assert.JSONEq(t, `{"a":1}`, obj.String())
}

func TestParseEvents(t *testing.T) {
	t.Run("single object", func(t *testing.T) {
		events, err := ParseEvents([]byte(`{"key":"BSH.Common.Status.DoorState","value":"BSH.Common.EnumType.DoorState.Open","displayvalue":"Open"}`))
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, KeyDoorState, events[0].Key)
		assert.Equal(t, "Open", events[0].DisplayValue)
		assert.Equal(t, KindString, events[0].Value.Kind())
	})

	t.Run("batch keeps order and value types", func(t *testing.T) {
		events, err := ParseEvents([]byte(`[
			{"key":"BSH.Common.Option.ProgramProgress","value":42,"unit":"%"},
			{"key":"BSH.Common.Setting.ChildLock","value":true},
			{"key":"BSH.Common.Root.ActiveProgram","value":null}
		]`))
		require.NoError(t, err)
		require.Len(t, events, 3)
		assert.Equal(t, KindNumber, events[0].Value.Kind())
		assert.Equal(t, "%", events[0].Unit)
		assert.Equal(t, KindBool, events[1].Value.Kind())
		assert.True(t, events[2].Value.IsNull())
	})

	t.Run("invalid payloads", func(t *testing.T) {
		for _, payload := range []string{"", "   ", "{", "[1,2", "42"} {
			_, err := ParseEvents([]byte(payload))
			assert.ErrorIs(t, err, ErrInvalidPayload, "payload %q", payload)
		}
	})
}
