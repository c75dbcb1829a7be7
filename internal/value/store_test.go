package value

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreBasics(t *testing.T) {
	s := NewStore()
	_, ok := s.Get("x")
	assert.False(t, ok)

	s.Set("x", Number(1))
	v, ok := s.Get("x")
	require.True(t, ok)
	assert.Equal(t, 1.0, v.NumberVal())

	s.Set("x", Number(2))
	v, _ = s.Get("x")
	assert.Equal(t, 2.0, v.NumberVal())
	assert.Equal(t, []string{"x"}, s.Keys())

	s.Remove("x")
	_, ok = s.Get("x")
	assert.False(t, ok)
	assert.Equal(t, 0, s.Len())
}

// TestScopeIsolation verifies §8 property 3: after a simulated loop, the
// store equals its pre-loop state with the loop variable removed,
// regardless of what the loop body did.
func TestScopeIsolation(t *testing.T) {
	s := NewStore()
	s.Set("total", Number(0))
	s.Set("other", String("kept"))

	items := []Value{Number(1), Number(2), Number(3)}
	const loopVar = "x"
	for _, item := range items {
		snap := s.Snapshot(loopVar)
		s.Set(loopVar, item)

		// Body mutates store state arbitrarily.
		cur, _ := s.Get("total")
		s.Set("total", Number(cur.NumberVal()+item.NumberVal()))
		s.Set("scratch", String("leaked?"))

		s.Restore(snap, loopVar)
	}
	s.Remove(loopVar)

	_, hasScratch := s.Get("scratch")
	assert.False(t, hasScratch, "loop-body-only variables must not survive the loop")

	total, ok := s.Get("total")
	require.True(t, ok)
	assert.Equal(t, 0.0, total.NumberVal(), "mutations to pre-existing vars inside the loop must not survive restore")

	other, ok := s.Get("other")
	require.True(t, ok)
	assert.Equal(t, "kept", other.StringVal())

	_, hasLoopVar := s.Get(loopVar)
	assert.False(t, hasLoopVar)
}

func TestSnapshotDeepCopies(t *testing.T) {
	s := NewStore()
	arr := NewArray(Number(1))
	s.Set("a", arr)

	snap := s.Snapshot("")
	// Mutate the live store's array in place.
	live, _ := s.Get("a")
	require.NoError(t, live.ArraySet(0, Number(99)))

	s.Restore(snap, "")
	restored, _ := s.Get("a")
	got, _ := restored.ArrayGet(0)
	assert.Equal(t, 1.0, got.NumberVal(), "restore must not be affected by post-snapshot mutation")
}
