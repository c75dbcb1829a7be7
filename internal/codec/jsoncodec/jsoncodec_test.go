package jsoncodec

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opal-lang/xmd/internal/value"
)

func TestParsePrimitives(t *testing.T) {
	v, err := Parse(`true`)
	require.NoError(t, err)
	assert.True(t, v.BoolVal())

	v, err = Parse(`null`)
	require.NoError(t, err)
	assert.True(t, v.IsNull())

	v, err = Parse(`42`)
	require.NoError(t, err)
	assert.Equal(t, 42.0, v.NumberVal())

	v, err = Parse(`-3.5e2`)
	require.NoError(t, err)
	assert.Equal(t, -350.0, v.NumberVal())
}

func TestParseStringWithUnicodeEscape(t *testing.T) {
	v, err := Parse("\"caf\\u00e9\"")
	require.NoError(t, err)
	assert.Equal(t, "café", v.StringVal())
}

func TestParseStringWithSurrogatePair(t *testing.T) {
	v, err := Parse("\"\\ud83d\\ude00\"")
	require.NoError(t, err)
	assert.Equal(t, "😀", v.StringVal())
}

func TestParseObjectPreservesOrder(t *testing.T) {
	v, err := Parse(`{"z": 1, "a": 2, "m": 3}`)
	require.NoError(t, err)
	assert.Equal(t, []string{"z", "a", "m"}, v.ObjectKeys())
}

func TestParseArray(t *testing.T) {
	v, err := Parse(`[1, "two", false, null]`)
	require.NoError(t, err)
	require.Equal(t, 4, v.ArrayLen())
}

func TestParseRejectsTrailingData(t *testing.T) {
	_, err := Parse(`{}garbage`)
	assert.Error(t, err)
}

func TestStringifyRoundTrip(t *testing.T) {
	obj := value.NewObject()
	_ = obj.ObjectSet("name", value.String("xmd"))
	_ = obj.ObjectSet("count", value.Number(3))
	_ = obj.ObjectSet("items", value.NewArray(value.String("a"), value.String("b")))

	out := Stringify(obj, false)
	back, err := Parse(out)
	require.NoError(t, err)
	assert.True(t, obj.Equal(back))
}

func TestStringifyPrettyIndent(t *testing.T) {
	obj := value.NewObject()
	_ = obj.ObjectSet("k", value.Number(1))
	out := Stringify(obj, true)
	assert.Equal(t, "{\n  \"k\": 1\n}", out)
}

func TestStringifyEmptyComposites(t *testing.T) {
	assert.Equal(t, "[]", Stringify(value.NewArray(), false))
	assert.Equal(t, "{}", Stringify(value.NewObject(), false))
}

func TestCodecRoundTripFiniteValues(t *testing.T) {
	// §8 property 4: json.parse(json.stringify(v)) == v for finite
	// numbers, strings without unpaired surrogates, arrays, objects.
	v := value.NewArray(value.Number(1), value.String("x"), value.Bool(true), value.Null())
	out := Stringify(v, false)
	back, err := Parse(out)
	require.NoError(t, err)
	assert.True(t, v.Equal(back))
}

func TestFormatJSONNumberSpecials(t *testing.T) {
	assert.Equal(t, "NaN", formatJSONNumber(math.NaN()))
	assert.Equal(t, "Infinity", formatJSONNumber(math.Inf(1)))
	assert.Equal(t, "-Infinity", formatJSONNumber(math.Inf(-1)))
}
