package ir

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonicalBasic(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		expected string
	}{
		{"string", "hello", `"hello"`},
		{"empty string", "", `""`},
		{"int", 42, "42"},
		{"negative int", -100, "-100"},
		{"zero", 0.0, "0"},
		{"negative zero", math.Copysign(0, -1), "0"},
		{"fraction", 1.5, "1.5"},
		{"large whole", 1e20, "100000000000000000000"},
		{"exponent", 1e21, "1e+21"},
		{"bool true", true, "true"},
		{"bool false", false, "false"},
		{"null", nil, "null"},
		{"empty array", []any{}, "[]"},
		{"empty object", map[string]any{}, "{}"},
		{"array of ints", []int{1, 2, 3}, "[1,2,3]"},
		{"simple object", map[string]any{"a": 1.0}, `{"a":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := MarshalCanonical(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(result))
		})
	}
}

func TestMarshalCanonicalSortedKeys(t *testing.T) {
	obj := map[string]any{
		"zebra": 1.0,
		"alpha": 2.0,
		"beta":  map[string]any{"b": 1.0, "a": 2.0},
	}

	result, err := MarshalCanonical(obj)
	require.NoError(t, err)
	assert.Equal(t, `{"alpha":2,"beta":{"a":2,"b":1},"zebra":1}`, string(result))
}

func TestMarshalCanonicalUTF16Ordering(t *testing.T) {
	// U+E000 vs U+10000: UTF-16 order differs from UTF-8
	obj := map[string]any{
		"\uE000":     1.0,
		"\U00010000": 2.0,
	}

	result, err := MarshalCanonical(obj)
	require.NoError(t, err)
	assert.Equal(t, "{\"\U00010000\":2,\"\uE000\":1}", string(result))
}

func TestMarshalCanonicalStrings(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"no html escaping", "<a & b>", `"<a & b>"`},
		{"nfc normalized", "e\u0301", "\"\u00e9\""},
		{"line separator literal", "a\u2028b", "\"a\u2028b\""},
		{"paragraph separator literal", "a\u2029b", "\"a\u2029b\""},
		{"escaped backslash kept", `\u2028`, `"\\u2028"`},
		{"control escaped", "a\nb", `"a\nb"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := MarshalCanonical(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(result))
		})
	}
}

func TestMarshalCanonicalStructUsesTags(t *testing.T) {
	def := ComponentDef{
		Name:       "Position",
		Properties: []Property{{Name: "x", Type: TypeNumber}},
	}

	result, err := MarshalCanonical(def)
	require.NoError(t, err)
	assert.Equal(t, `{"name":"Position","properties":[{"name":"x","type":"number"}]}`, string(result))
}

func TestMarshalCanonicalRejectsNonFinite(t *testing.T) {
	_, err := MarshalCanonical(map[string]any{"x": math.Inf(1)})
	require.Error(t, err)
}
