package legacy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opal-lang/xmd/internal/runner"
	"github.com/opal-lang/xmd/internal/security"
	"github.com/opal-lang/xmd/internal/value"
)

type recordingSink struct {
	entries []security.Entry
}

func (s *recordingSink) Audit(e security.Entry) error {
	s.entries = append(s.entries, e)
	return nil
}

func TestProcessSetAndTemplateSubstitution(t *testing.T) {
	store := value.NewStore()
	p := New(store)
	out, err := p.Process(context.Background(), `<!-- xmd:set name="World" -->Hello {{name}}!`)
	require.NoError(t, err)
	assert.Contains(t, out, "Hello World!")
	assert.NotContains(t, out, "<!--")
}

func TestProcessIfElifElse(t *testing.T) {
	store := value.NewStore()
	store.Set("role", value.String("user"))
	p := New(store)
	text := `<!-- xmd:if role == "admin" -->admin view` +
		`<!-- xmd:elif role == "user" -->user view` +
		`<!-- xmd:else -->guest view` +
		`<!-- xmd:endif -->`
	out, err := p.Process(context.Background(), text)
	require.NoError(t, err)
	assert.Equal(t, "user view", out)
}

func TestProcessNestedIfInsideFor(t *testing.T) {
	store := value.NewStore()
	p := New(store)
	text := `<!-- xmd:set items="a,b,c" -->` +
		`<!-- xmd:for x in items -->` +
		`<!-- xmd:if x == "b" -->[B]<!-- xmd:else -->{{x}}<!-- xmd:endif -->` +
		`<!-- xmd:endfor -->`
	out, err := p.Process(context.Background(), text)
	require.NoError(t, err)
	assert.Equal(t, "a[B]c", out)
}

func TestProcessForOverLiteralList(t *testing.T) {
	store := value.NewStore()
	p := New(store)
	text := `<!-- xmd:set items="a,b,c" --><!-- xmd:for x in items -->{{x}},<!-- xmd:endfor -->`
	out, err := p.Process(context.Background(), text)
	require.NoError(t, err)
	assert.Equal(t, "a,b,c,", out)
}

func TestProcessExecRefusalHaltsAndAudits(t *testing.T) {
	store := value.NewStore()
	sink := &recordingSink{}
	secEngine := security.NewEngine(nil, sink)
	run := runner.New(secEngine)
	p := New(store, WithRunner(run), WithSecurity(secEngine))

	out, err := p.Process(context.Background(), `<!-- xmd:exec rm -rf / -->`)
	require.Error(t, err)
	assert.Empty(t, out)

	var secErr *SecurityError
	require.ErrorAs(t, err, &secErr)

	var destructive *security.Entry
	for i := range sink.entries {
		if sink.entries[i].Result == security.Destructive {
			destructive = &sink.entries[i]
			break
		}
	}
	require.NotNil(t, destructive, "expected a Destructive audit record")
}

func TestProcessUnbalancedIfIsReportedInline(t *testing.T) {
	store := value.NewStore()
	p := New(store)
	out, err := p.Process(context.Background(), `<!-- xmd:if true --><!-- xmd:endfor -->`)
	require.NoError(t, err)
	assert.Contains(t, out, "[Error:")
}

func TestProcessUnknownDirectiveIsReportedInlineAndContinues(t *testing.T) {
	store := value.NewStore()
	p := New(store)
	out, err := p.Process(context.Background(), `before<!-- xmd:bogus --> after`)
	require.NoError(t, err)
	assert.Contains(t, out, "before")
	assert.Contains(t, out, "[Error:")
	assert.Contains(t, out, " after")
}
