package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateInput(t *testing.T) {
	cases := []struct {
		name string
		in   string
		max  int
		want Result
	}{
		{"ok", "hello world", 100, Ok},
		{"too long", "xxxxxxxxxx", 5, ResourceLimit},
		{"embedded nul", "abc\x00def", 100, InvalidInput},
		{"nul at end tolerated", "abc\x00", 100, Ok},
		{"sql injection", "1'; DROP TABLE users", 100, InjectionDetected},
		{"script tag", "<script>alert(1)</script>", 100, InjectionDetected},
		{"shell substitution", "$(rm -rf /)", 100, InjectionDetected},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, ValidateInput(c.in, c.max))
		})
	}
}

func TestValidateCommand(t *testing.T) {
	cases := []struct {
		name string
		cmd  string
		want Result
	}{
		{"safe", "echo hello", Ok},
		{"pipe injection", "echo hi | rm -rf /", InjectionDetected},
		{"destructive", "rm -rf /var", Destructive},
		{"privilege", "sudo ls", Privilege},
		{"network", "curl http://example.com", Network},
		{"default deny", "vim file.txt", PermissionDenied},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, ValidateCommand(c.cmd))
		})
	}
}

func TestValidatePath(t *testing.T) {
	cases := []struct {
		name string
		path string
		base string
		want Result
	}{
		{"within base", "docs/readme.md", "/srv/xmd", Ok},
		{"traversal", "../../etc/passwd", "/srv/xmd", Traversal},
		{"encoded traversal", "%2e%2e/etc/passwd", "/srv/xmd", Traversal},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, ValidatePath(c.path, c.base))
		})
	}
}

func TestSanitizeOutput(t *testing.T) {
	got := SanitizeOutput(`<b>"it's" & ok</b>`)
	assert.Equal(t, `&lt;b&gt;&quot;it&#39;s&quot; &amp; ok&lt;&#47;b&gt;`, got)
}

func TestSanitizeOutputClosure(t *testing.T) {
	once := SanitizeOutput("<a>")
	twice := SanitizeOutput(once)
	assert.Equal(t, once, twice, "re-sanitizing already-escaped output must be a no-op (§8 property 6)")
}

func TestSanitizeHTMLKeepsWhitelistedTags(t *testing.T) {
	got := SanitizeHTML(`<p class="note">hi <script>bad()</script></p>`)
	assert.Contains(t, got, `<p class="note">`)
	assert.Contains(t, got, "&lt;script&gt;")
	assert.NotContains(t, got, "<script>")
}

func TestSanitizeHTMLRejectsJavascriptHref(t *testing.T) {
	got := SanitizeHTML(`<a href="javascript:alert(1)">click</a>`)
	assert.NotContains(t, got, `href="javascript:`)
}

func TestSanitizeHTMLStripsEventHandlers(t *testing.T) {
	got := SanitizeHTML(`<div onclick="evil()" id="x">hi</div>`)
	assert.NotContains(t, got, "onclick")
	assert.Contains(t, got, `id="x"`)
}

func TestSanitizeCommandOutputEscapesMarkdown(t *testing.T) {
	got := SanitizeCommandOutput("*bold* [link](url) #tag")
	assert.Equal(t, `\*bold\* \[link\]\(url\) \#tag`, got)
}

func TestSanitizeCommandOutputTruncates(t *testing.T) {
	huge := make([]byte, commandOutputLimit*2)
	for i := range huge {
		huge[i] = 'a'
	}
	got := SanitizeCommandOutput(string(huge))
	assert.LessOrEqual(t, len(got), commandOutputLimit)
	assert.Contains(t, got, "truncated")
}

func TestAuditRingBuffer(t *testing.T) {
	sink, err := NewRingBufferSink(2)
	require.NoError(t, err)
	require.NoError(t, Audit(sink, EventCommandExecution, "echo hi", "test", Ok))
	require.NoError(t, Audit(sink, EventCommandExecution, "echo two", "test", Ok))
	require.NoError(t, Audit(sink, EventCommandExecution, "echo three", "test", Ok))

	entries, err := sink.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "echo two", entries[0].Message)
	assert.Equal(t, "echo three", entries[1].Message)
	assert.NotEmpty(t, entries[0].Fingerprint)
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy([]byte(`{"safe_commands":["git"],"max_input_len":4096}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"git"}, p.SafeCommands)
	assert.Equal(t, 4096, p.MaxInputLen)
}

func TestParsePolicyRejectsUnknownField(t *testing.T) {
	_, err := ParsePolicy([]byte(`{"unexpected_field": true}`))
	assert.Error(t, err)
}

func TestEngineExtendsWhitelist(t *testing.T) {
	p, err := ParsePolicy([]byte(`{"safe_commands":["git"]}`))
	require.NoError(t, err)
	sink, err := NewRingBufferSink(8)
	require.NoError(t, err)
	e := NewEngine(p, sink)
	assert.Equal(t, Ok, e.ValidateCommand("git status", "test"))
	assert.Equal(t, Ok, e.ValidateCommand("echo hi", "test"))
	assert.Equal(t, PermissionDenied, e.ValidateCommand("vim x", "test"))
}
