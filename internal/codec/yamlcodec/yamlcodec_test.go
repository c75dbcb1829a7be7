package yamlcodec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opal-lang/xmd/internal/value"
)

func TestParseScalarTypeInference(t *testing.T) {
	v, err := Parse("true")
	require.NoError(t, err)
	assert.True(t, v.IsBool())

	v, err = Parse("~")
	require.NoError(t, err)
	assert.True(t, v.IsNull())

	v, err = Parse("42")
	require.NoError(t, err)
	assert.Equal(t, 42.0, v.NumberVal())

	v, err = Parse("hello")
	require.NoError(t, err)
	assert.Equal(t, "hello", v.StringVal())
}

func TestParseBlockSequence(t *testing.T) {
	v, err := Parse("- a\n- b\n- c\n")
	require.NoError(t, err)
	require.Equal(t, 3, v.ArrayLen())
	e0, _ := v.ArrayGet(0)
	assert.Equal(t, "a", e0.StringVal())
}

func TestParseBlockMapping(t *testing.T) {
	v, err := Parse("name: xmd\ncount: 3\nenabled: true\n")
	require.NoError(t, err)
	name, _ := v.ObjectGet("name")
	assert.Equal(t, "xmd", name.StringVal())
	count, _ := v.ObjectGet("count")
	assert.Equal(t, 3.0, count.NumberVal())
	enabled, _ := v.ObjectGet("enabled")
	assert.True(t, enabled.BoolVal())
}

func TestStringifyFlatMapping(t *testing.T) {
	obj := value.NewObject()
	_ = obj.ObjectSet("a", value.Number(1))
	_ = obj.ObjectSet("b", value.String("two"))
	got := Stringify(obj)
	assert.Equal(t, "a: 1\nb: two\n", got)
}

func TestStringifyEmptyComposites(t *testing.T) {
	assert.Equal(t, "[]\n", Stringify(value.NewArray()))
	assert.Equal(t, "{}\n", Stringify(value.NewObject()))
}

func TestStringifyNestedSequenceInMapping(t *testing.T) {
	obj := value.NewObject()
	_ = obj.ObjectSet("items", value.NewArray(value.String("x"), value.String("y")))
	got := Stringify(obj)
	assert.Equal(t, "items:\n  - x\n  - y\n", got)
}

func TestYAMLRoundTrip(t *testing.T) {
	obj := value.NewObject()
	_ = obj.ObjectSet("name", value.String("xmd"))
	_ = obj.ObjectSet("tags", value.NewArray(value.String("a"), value.String("b")))
	out := Stringify(obj)
	back, err := Parse(out)
	require.NoError(t, err)
	assert.True(t, obj.Equal(back))
}
