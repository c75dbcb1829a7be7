package value

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTruthy(t *testing.T) {
	cases := []struct {
		name string
		v    Value
		want bool
	}{
		{"null", Null(), false},
		{"bool true", Bool(true), true},
		{"bool false", Bool(false), false},
		{"number zero", Number(0), false},
		{"number nan", Number(math.NaN()), false},
		{"number nonzero", Number(-1), true},
		{"string empty", String(""), false},
		{"string nonempty", String("a"), true},
		{"array empty", NewArray(), false},
		{"array nonempty", NewArray(Number(1)), true},
		{"object empty", NewObject(), false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, c.v.Truthy())
		})
	}
}

func TestToNumber(t *testing.T) {
	assert.Equal(t, 0.0, Null().ToNumber())
	assert.Equal(t, 1.0, Bool(true).ToNumber())
	assert.Equal(t, 0.0, Bool(false).ToNumber())
	assert.Equal(t, 42.0, String("42").ToNumber())
	assert.Equal(t, 0.0, String("42abc").ToNumber())
	assert.Equal(t, 3.0, NewArray(Number(1), Number(2), Number(3)).ToNumber())
	obj := NewObject()
	require.NoError(t, obj.ObjectSet("a", Number(1)))
	assert.Equal(t, 1.0, obj.ToNumber())
}

func TestToString(t *testing.T) {
	assert.Equal(t, "null", Null().ToString())
	assert.Equal(t, "true", Bool(true).ToString())
	assert.Equal(t, "42", Number(42).ToString())
	assert.Equal(t, "NaN", Number(math.NaN()).ToString())
	assert.Equal(t, "Infinity", Number(math.Inf(1)).ToString())
	assert.Equal(t, "-Infinity", Number(math.Inf(-1)).ToString())
	assert.Equal(t, "1, 2, 3", NewArray(Number(1), Number(2), Number(3)).ToString())
	assert.Equal(t, "[object]", NewObject().ToString())
	assert.Equal(t, "3.14", Number(3.14).ToString())
}

func TestEquality(t *testing.T) {
	assert.True(t, Null().Equal(Null()))
	assert.True(t, Number(1).Equal(Number(1)))
	assert.False(t, Number(math.NaN()).Equal(Number(math.NaN())))
	assert.True(t, NewArray(Number(1), Number(2)).Equal(NewArray(Number(1), Number(2))))
	assert.False(t, NewArray(Number(1)).Equal(NewArray(Number(2))))

	a := NewObject()
	require.NoError(t, a.ObjectSet("x", Number(1)))
	require.NoError(t, a.ObjectSet("y", Number(2)))
	b := NewObject()
	require.NoError(t, b.ObjectSet("y", Number(2)))
	require.NoError(t, b.ObjectSet("x", Number(1)))
	assert.True(t, a.Equal(b), "object equality must be order-independent")
}

func TestDeepCopyIsolation(t *testing.T) {
	arr := NewArray(Number(1), Number(2))
	cp := arr.DeepCopy()
	require.NoError(t, cp.ArraySet(0, Number(99)))
	got, _ := arr.ArrayGet(0)
	assert.Equal(t, 1.0, got.NumberVal(), "mutating the copy must not affect the original")
}

func TestObjectInsertionOrderPreserved(t *testing.T) {
	obj := NewObject()
	require.NoError(t, obj.ObjectSet("b", Number(2)))
	require.NoError(t, obj.ObjectSet("a", Number(1)))
	require.NoError(t, obj.ObjectSet("c", Number(3)))
	if diff := cmp.Diff([]string{"b", "a", "c"}, obj.ObjectKeys()); diff != "" {
		t.Errorf("ObjectKeys() mismatch (-want +got):\n%s", diff)
	}

	// Replacing a key keeps its original position.
	require.NoError(t, obj.ObjectSet("a", Number(10)))
	assert.Equal(t, []string{"b", "a", "c"}, obj.ObjectKeys())
}

func TestArrayOutOfRangeIsNotFatal(t *testing.T) {
	arr := NewArray(Number(1))
	got, ok := arr.ArrayGet(5)
	assert.False(t, ok)
	assert.True(t, got.IsNull())
	assert.Error(t, arr.ArraySet(5, Number(1)))
}
