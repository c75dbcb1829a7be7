package dispatch

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opal-lang/xmd/internal/value"
)

func TestIsNativeDetectsLeadingKeyword(t *testing.T) {
	assert.True(t, IsNative("set a = 1"))
	assert.True(t, IsNative("plain text\nfor x in a\n  print(x)"))
	assert.False(t, IsNative("plain text only"))
}

func TestIsNativeDetectsDollarBrace(t *testing.T) {
	assert.True(t, IsNative("value is ${name}"))
}

func TestIsNativeIgnoresKeywordWithoutTrailingSpace(t *testing.T) {
	assert.False(t, IsNative("formatted text"))
	assert.False(t, IsNative("for(x) is not a native statement line"))
}

func TestProcessNativeForRange(t *testing.T) {
	store := value.NewStore()
	out, err := Process(context.Background(), "for x in 1..3\n  print(x)", store)
	require.NoError(t, err)
	assert.Equal(t, "123", out)
}

func TestProcessNativeTrailingTextSurvivesForSubstitution(t *testing.T) {
	store := value.NewStore()
	src := "set a = [1,2,3]\nset s = \"\"\nfor n in a\n  s += n\n${s}"
	out, err := Process(context.Background(), src, store)
	require.NoError(t, err)
	assert.Equal(t, "123", out)
}

func TestProcessLegacySurface(t *testing.T) {
	store := value.NewStore()
	out, err := Process(context.Background(), `<!-- xmd:set name="World" -->Hello {{name}}!`, store)
	require.NoError(t, err)
	assert.Equal(t, "Hello World!", out)
}

func TestProcessPlainPassthrough(t *testing.T) {
	store := value.NewStore()
	out, err := Process(context.Background(), "just markdown, nothing special", store)
	require.NoError(t, err)
	assert.Equal(t, "just markdown, nothing special", out)
}

func TestProcessPlainStillSubstitutesTemplates(t *testing.T) {
	store := value.NewStore()
	store.Set("who", value.String("there"))
	out, err := Process(context.Background(), "hi {{who}}", store)
	require.NoError(t, err)
	assert.Equal(t, "hi there", out)
}
