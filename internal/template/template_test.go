package template

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/opal-lang/xmd/internal/value"
)

func TestSubstituteLegacyKnown(t *testing.T) {
	store := value.NewStore()
	store.Set("name", value.String("world"))
	assert.Equal(t, "hello world", Substitute("hello {{name}}", store))
}

func TestSubstituteLegacyMissingYieldsEmpty(t *testing.T) {
	store := value.NewStore()
	assert.Equal(t, "hello ", Substitute("hello {{missing}}", store))
}

func TestSubstituteNativeKnown(t *testing.T) {
	store := value.NewStore()
	store.Set("name", value.String("world"))
	assert.Equal(t, "hello world", Substitute("hello ${name}", store))
}

func TestSubstituteNativeMissingKeepsLiteral(t *testing.T) {
	store := value.NewStore()
	assert.Equal(t, "hello ${missing}", Substitute("hello ${missing}", store))
}

func TestSubstituteBracesAreBalancedLiterally(t *testing.T) {
	store := value.NewStore()
	assert.Equal(t, "{{1 + 2}}", Substitute("{{1 + 2}}", store))
}

func TestSubstituteUnterminatedBraceLeftAsIs(t *testing.T) {
	store := value.NewStore()
	assert.Equal(t, "prefix {{name", Substitute("prefix {{name", store))
}
