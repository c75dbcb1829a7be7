package xmd

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opal-lang/xmd/internal/value"
)

func TestProcessLegacyDirective(t *testing.T) {
	out, err := Process(context.Background(), `<!-- xmd:set name="World" -->Hello {{name}}!`, nil)
	require.NoError(t, err)
	assert.Equal(t, "Hello World!", out)
}

func TestProcessNativeDirective(t *testing.T) {
	out, err := Process(context.Background(), "for x in 1..3\n  print(x)", nil)
	require.NoError(t, err)
	assert.Equal(t, "123", out)
}

func TestProcessReusesSuppliedStoreAcrossCalls(t *testing.T) {
	e, err := NewEngine()
	require.NoError(t, err)
	defer e.Close()

	store := value.NewStore()
	_, err = e.Process(context.Background(), "set seen = 1", store)
	require.NoError(t, err)

	v, ok := store.Get("seen")
	require.True(t, ok)
	assert.Equal(t, float64(1), v.ToNumber())
}

func TestProcessDirectiveRendersOneDirective(t *testing.T) {
	store := value.NewStore()
	store.Set("name", value.String("XMD"))
	out, err := ProcessDirective(context.Background(), `<!-- xmd:set greeting="hi" -->{{greeting}} {{name}}`, store)
	require.NoError(t, err)
	assert.Equal(t, "hi XMD", out)
}

func TestExecRefusalPropagatesAsError(t *testing.T) {
	_, err := Process(context.Background(), `<!-- xmd:exec rm -rf / -->`, nil)
	require.Error(t, err)
}
