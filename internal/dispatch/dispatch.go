// Package dispatch implements the Dispatcher of §4.5: it classifies
// input text as native or legacy-or-plain and routes it to the matching
// processor, then applies the Template Substitutor (§4.6) to whatever
// text comes out, since both surfaces render `{{…}}`/`${…}` the same
// way once the directive structure has been resolved.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/opal-lang/xmd/internal/eval"
	"github.com/opal-lang/xmd/internal/legacy"
	"github.com/opal-lang/xmd/internal/parser"
	"github.com/opal-lang/xmd/internal/runner"
	"github.com/opal-lang/xmd/internal/security"
	"github.com/opal-lang/xmd/internal/template"
	"github.com/opal-lang/xmd/internal/value"
)

// nativeLineKeywords is the fixed token set of §4.5 ("set if for while
// function class print"); "class" is carried over unchanged even though
// no native grammar production defines a class statement — the original
// spec's dispatcher checks for it regardless, and this is the one place
// documented to preserve that quirk verbatim.
var nativeLineKeywords = map[string]bool{
	"set": true, "if": true, "for": true, "while": true,
	"function": true, "class": true, "print": true,
}

// IsNative classifies text as the native surface (§4.5): any line whose
// first token is a native keyword followed by whitespace, or any
// occurrence of `${`.
func IsNative(text string) bool {
	if strings.Contains(text, "${") {
		return true
	}
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		word, rest := firstWord(trimmed)
		if nativeLineKeywords[word] && (rest == "" || rest[0] == ' ' || rest[0] == '\t') {
			return true
		}
	}
	return false
}

// Importer reads and fully re-dispatches the XMD content addressed by
// an `import` statement, used to wire both the native evaluator and the
// legacy processor's import handling back through this same Dispatcher.
type Importer func(ctx context.Context, path string) (string, error)

// Config collects the collaborators threaded through native and legacy
// processing alike.
type Config struct {
	Runner   *runner.Runner
	Security *security.Engine
	Importer Importer
	Logger   *slog.Logger
	MaxWhile int
	MaxRange int
}

// Option configures a Config at construction.
type Option func(*Config)

func WithRunner(r *runner.Runner) Option     { return func(c *Config) { c.Runner = r } }
func WithSecurity(s *security.Engine) Option { return func(c *Config) { c.Security = s } }
func WithImporter(imp Importer) Option       { return func(c *Config) { c.Importer = imp } }
func WithLogger(l *slog.Logger) Option       { return func(c *Config) { c.Logger = l } }
func WithMaxWhile(n int) Option              { return func(c *Config) { c.MaxWhile = n } }
func WithMaxRange(n int) Option              { return func(c *Config) { c.MaxRange = n } }

func newConfig(opts []Option) *Config {
	c := &Config{Logger: slog.Default(), MaxWhile: eval.DefaultMaxWhile, MaxRange: eval.DefaultMaxRange}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Process classifies text and routes it to the native parser/evaluator
// or the legacy directive processor, then applies the Template
// Substitutor to the result (§4.6 runs over "already-rendered text",
// which both surfaces produce identically from here on).
func Process(ctx context.Context, text string, store *value.Store, opts ...Option) (string, error) {
	cfg := newConfig(opts)

	var rendered string
	var err error
	switch {
	case IsNative(text):
		rendered, err = processNative(ctx, text, store, cfg)
	case strings.Contains(text, "<!--"):
		rendered, err = processLegacy(ctx, text, store, cfg)
	default:
		rendered, err = text, nil
	}
	if err != nil {
		return "", err
	}
	return template.Substitute(rendered, store), nil
}

func processLegacy(ctx context.Context, text string, store *value.Store, cfg *Config) (string, error) {
	proc := legacy.New(store,
		legacy.WithRunner(cfg.Runner),
		legacy.WithSecurity(cfg.Security),
		legacy.WithImporter(legacy.Importer(cfg.Importer)),
		legacy.WithLogger(cfg.Logger),
	)
	return proc.Process(ctx, text)
}

// blockOpeners are native keywords whose body is closed by dedent or an
// explicit end keyword (§4.2); a line starting with one of these opens
// a new code chunk that subsequent more-indented lines continue.
var blockOpeners = map[string]bool{"if": true, "for": true, "while": true, "function": true}

// blockClosers are native keywords that close the innermost open block
// when they appear back at that block's own indent.
var blockClosers = map[string]bool{"endif": true, "endfor": true, "endwhile": true}

// blockContinuations additionally includes the sibling-clause keywords,
// which stay at the block's indent without closing it.
var blockContinuations = map[string]bool{"elif": true, "else": true}

// topLevelStatementKeywords are native keywords that start a new code
// chunk on their own, without opening a multi-line block.
var topLevelStatementKeywords = map[string]bool{
	"set": true, "return": true, "break": true, "continue": true,
	"import": true, "print": true, "cmd": true,
}

// processNative groups the native surface's statement lines into
// contiguous chunks (by keyword lead and indentation, mirroring the
// block structure §4.2's grammar already enforces inside the parser)
// and parses/evaluates each chunk in turn, interleaving literal text
// lines verbatim into the rendered output in source order (§5:
// "statements execute in source order... output is appended in
// evaluation order").
//
// The native grammar (§3, §4.2) has no raw-text production — text can
// only reach the output via print() — so a plain line appearing outside
// any open block is passed straight through rather than offered to the
// parser, exactly the way S6 of §8 relies on a trailing `${s}` line
// being left untouched for the Template Substitutor to expand.
func processNative(ctx context.Context, text string, store *value.Store, cfg *Config) (string, error) {
	lines := strings.Split(text, "\n")
	var out strings.Builder
	var codeLines []string
	var openIndents []int

	flush := func() error {
		if len(codeLines) == 0 {
			return nil
		}
		src := strings.Join(codeLines, "\n")
		codeLines = codeLines[:0]
		prog, err := parser.Parse(src)
		if err != nil {
			return fmt.Errorf("dispatch: native parse: %w", err)
		}
		ev := eval.New(store,
			eval.WithRunner(cfg.Runner),
			eval.WithSecurity(cfg.Security),
			eval.WithImporter(eval.Importer(cfg.Importer)),
			eval.WithLogger(cfg.Logger),
			eval.WithMaxWhile(cfg.MaxWhile),
			eval.WithMaxRange(cfg.MaxRange),
		)
		if err := ev.Run(ctx, prog); err != nil {
			return err
		}
		out.WriteString(ev.Output.String())
		return nil
	}

	for idx, line := range lines {
		trimmed := strings.TrimSpace(line)
		indent := leadingWidth(line)
		word, _ := firstWord(trimmed)

		inBlock := len(openIndents) > 0
		top := 0
		if inBlock {
			top = openIndents[len(openIndents)-1]
		}
		continuesBlock := inBlock && (indent > top || (indent == top && (blockContinuations[word] || blockClosers[word])))

		switch {
		case continuesBlock:
			codeLines = append(codeLines, line)
			if blockOpeners[word] {
				openIndents = append(openIndents, indent)
			}
			if blockClosers[word] {
				openIndents = openIndents[:len(openIndents)-1]
			}
		case blockOpeners[word] || topLevelStatementKeywords[word]:
			codeLines = append(codeLines, line)
			if blockOpeners[word] {
				openIndents = append(openIndents, indent)
			}
		default:
			if err := flush(); err != nil {
				return "", err
			}
			out.WriteString(line)
			if idx < len(lines)-1 {
				out.WriteString("\n")
			}
		}
	}
	if err := flush(); err != nil {
		return "", err
	}
	return out.String(), nil
}

func leadingWidth(line string) int {
	n := 0
	for _, r := range line {
		if r == ' ' {
			n++
		} else if r == '\t' {
			n += 8
		} else {
			break
		}
	}
	return n
}

// firstWord extracts the leading identifier-like run of line (letters,
// digits, underscore after the first char) and returns it along with
// whatever follows, so callers can tell "print" apart from "print(" and
// "for" apart from "formatted".
func firstWord(line string) (word, rest string) {
	i := 0
	for i < len(line) {
		c := line[i]
		isIdentChar := c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (i > 0 && c >= '0' && c <= '9')
		if !isIdentChar {
			break
		}
		i++
	}
	return line[:i], line[i:]
}
