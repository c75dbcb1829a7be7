// Package legacy implements the legacy directive processor of §4.4: it
// scans host text for `<!-- xmd:… -->` comments and dispatches each one
// against a shared Store, while non-directive text and non-xmd comments
// pass through verbatim apart from `{{name}}`/`${name}` placeholder
// expansion against the store at the point the text is reached.
//
// The directive state described in §3 as an if-stack and a loop-stack
// ("push a frame on `if`/`for`, pop it on `endif`/`endfor`") is realized
// here as structural recursion over the already-scanned segment list
// instead of a hand-rolled stack machine: scan splits the whole document
// into text/directive segments up front, findBlock locates a directive's
// matching endif/endfor by counting nested if/for pairs, and
// processSegments recurses into the matched span. This produces the same
// observable behavior (§8 property 3, scope isolation; §3 invariants 1-4)
// with Go slices doing the bookkeeping C's manual stack did.
//
// Per §7's propagation policy, a malformed directive — including an
// unbalanced if/endif or for/endfor (§3 invariant 3) — is reported
// inline as a `[Error: ...]` marker and processing continues. Only a
// security refusal, or a fatal error propagated up from a re-parsed
// multi-line body's native evaluation, halts Process entirely.
package legacy

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/opal-lang/xmd/internal/eval"
	"github.com/opal-lang/xmd/internal/parser"
	"github.com/opal-lang/xmd/internal/runner"
	"github.com/opal-lang/xmd/internal/security"
	"github.com/opal-lang/xmd/internal/template"
	"github.com/opal-lang/xmd/internal/value"
)

// Importer reads and fully processes the XMD content addressed by an
// `import` directive, returning its rendered text. The top-level
// orchestrator supplies this so legacy stays free of a dependency on
// the dispatcher that chooses between native and legacy re-entry
// (mirrors eval.Importer).
type Importer func(ctx context.Context, path string) (string, error)

// Processor holds the collaborators threaded through every directive
// and every recursive body re-evaluation.
type Processor struct {
	Store    *value.Store
	Runner   *runner.Runner
	Security *security.Engine
	Importer Importer
	Logger   *slog.Logger
}

// Option configures a Processor at construction.
type Option func(*Processor)

func WithRunner(r *runner.Runner) Option     { return func(p *Processor) { p.Runner = r } }
func WithSecurity(s *security.Engine) Option { return func(p *Processor) { p.Security = s } }
func WithImporter(imp Importer) Option       { return func(p *Processor) { p.Importer = imp } }
func WithLogger(l *slog.Logger) Option       { return func(p *Processor) { p.Logger = l } }

// New creates a Processor bound to store.
func New(store *value.Store, opts ...Option) *Processor {
	p := &Processor{Store: store, Logger: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process scans and evaluates text against the Processor's store,
// returning the rendered output. A malformed directive is reported
// inline as a visible `[Error: ...]` marker and processing continues,
// preserving the rest of the document; a security refusal is the one
// exception that halts the document and has already been audited by
// the time it reaches here (§7).
func (p *Processor) Process(ctx context.Context, text string) (string, error) {
	return p.processSegments(ctx, scan(text))
}

func (p *Processor) processSegments(ctx context.Context, segs []segment) (string, error) {
	var out strings.Builder
	i := 0
	for i < len(segs) {
		if err := ctx.Err(); err != nil {
			return "", errf("legacy: deadline exceeded: %v", err)
		}
		seg := segs[i]
		if seg.kind == segText {
			out.WriteString(template.Substitute(seg.raw, p.Store))
			i++
			continue
		}

		switch {
		case strings.Contains(seg.raw, "\n"):
			rendered, err := p.evalNative(ctx, seg.raw)
			if err != nil {
				return "", err
			}
			out.WriteString(rendered)
			i++

		case strings.HasPrefix(seg.raw, "print(") && strings.HasSuffix(seg.raw, ")"):
			expr := seg.raw[len("print(") : len(seg.raw)-1]
			rendered, err := p.evalNative(ctx, "print("+expr+")")
			if err != nil {
				out.WriteString(inlineError(err))
			} else {
				out.WriteString(rendered)
			}
			i++

		case strings.HasPrefix(seg.raw, "cmd(") && strings.HasSuffix(seg.raw, ")"):
			inner := seg.raw[len("cmd(") : len(seg.raw)-1]
			rendered, err := p.execCmdLiteral(ctx, inner)
			if secErr, ok := err.(*SecurityError); ok {
				return "", secErr
			}
			if err != nil {
				out.WriteString(inlineError(err))
			} else {
				out.WriteString(rendered)
			}
			i++

		default:
			cmd, args := splitFirstWord(seg.raw)
			switch cmd {
			case "set":
				p.execSet(args)
				i++
			case "if":
				rendered, next, err := p.execIf(ctx, segs, i)
				if secErr, ok := err.(*SecurityError); ok {
					return "", secErr
				}
				if err != nil {
					out.WriteString(inlineError(err))
					i++
					continue
				}
				out.WriteString(rendered)
				i = next
			case "for":
				rendered, next, err := p.execFor(ctx, segs, i, args)
				if secErr, ok := err.(*SecurityError); ok {
					return "", secErr
				}
				if err != nil {
					out.WriteString(inlineError(err))
					i++
					continue
				}
				out.WriteString(rendered)
				i = next
			case "elif", "else", "endif", "endfor":
				out.WriteString(inlineError(errf("legacy: unexpected %q directive with no matching opener", cmd)))
				i++
			case "exec":
				rendered, err := p.execExecLike(ctx, args)
				if secErr, ok := err.(*SecurityError); ok {
					return "", secErr
				}
				if err != nil {
					out.WriteString(inlineError(err))
				} else {
					out.WriteString(rendered)
				}
				i++
			case "import":
				rendered, err := p.execImport(ctx, args)
				if err != nil {
					out.WriteString(inlineError(err))
				} else {
					out.WriteString(rendered)
				}
				i++
			default:
				out.WriteString(inlineError(errf("legacy: unknown directive %q", cmd)))
				i++
			}
		}
	}
	return out.String(), nil
}

// execSet implements the `set K = V` / `set K=V` single-line directive
// (§4.4): V is parsed as a plain literal, never a full expression.
func (p *Processor) execSet(args string) {
	key, val, ok := splitKV(args)
	if !ok {
		return
	}
	p.Store.Set(key, parseSetLiteral(val))
}

// execIf locates the if/elif/else/endif chain opened at segs[i],
// evaluates each condition in order until one matches (or else is
// reached), recursively renders that branch's body, and reports the
// index of the segment following the matching endif.
func (p *Processor) execIf(ctx context.Context, segs []segment, i int) (string, int, error) {
	m, err := findBlock(segs, i)
	if err != nil {
		return "", 0, err
	}
	boundaries := append(append([]int{i}, m.clauses...), m.endIdx)

	for k := 0; k < len(boundaries)-1; k++ {
		start, end := boundaries[k], boundaries[k+1]
		cmd, args := splitFirstWord(segs[start].raw)

		take := false
		if cmd == "else" {
			take = true
		} else {
			cond, err := evalCondition(args, p.Store)
			if err != nil {
				return "", 0, err
			}
			take = cond
		}
		if take {
			rendered, err := p.processSegments(ctx, segs[start+1:end])
			if err != nil {
				return "", 0, err
			}
			return rendered, m.endIdx + 1, nil
		}
	}
	return "", m.endIdx + 1, nil
}

// execFor locates the matching endfor for the `for` directive at
// segs[i], expands its collection, and recursively renders the body
// once per item, isolating each iteration's store mutations exactly as
// the native for-in loop does (§4.3, §8 property 3).
func (p *Processor) execFor(ctx context.Context, segs []segment, i int, args string) (string, int, error) {
	varName, collExpr, err := parseForHeader(args)
	if err != nil {
		return "", 0, err
	}
	m, err := findBlock(segs, i)
	if err != nil {
		return "", 0, err
	}
	items, err := resolveCollection(collExpr, p.Store)
	if err != nil {
		return "", 0, err
	}

	body := segs[i+1 : m.endIdx]
	var out strings.Builder
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return "", 0, errf("legacy: deadline exceeded in for loop: %v", err)
		}
		snap := p.Store.Snapshot(varName)
		p.Store.Set(varName, item)
		rendered, err := p.processSegments(ctx, body)
		p.Store.Restore(snap, varName)
		if err != nil {
			return "", 0, err
		}
		out.WriteString(rendered)
	}
	p.Store.Remove(varName)
	return out.String(), m.endIdx + 1, nil
}

// execExecLike runs a raw command line through the Command Runner and
// sanitizes its stdout (§4.4's `exec CMD…`).
func (p *Processor) execExecLike(ctx context.Context, cmdLine string) (string, error) {
	cmdLine = strings.TrimSpace(cmdLine)
	if cmdLine == "" {
		return "", errf("legacy: exec requires a command")
	}
	if p.Runner == nil {
		return "", errf("legacy: exec %q requested but no command runner is configured", cmdLine)
	}
	res, err := p.Runner.Run(ctx, cmdLine, "")
	if err != nil {
		var runErr *runner.RunError
		if errors.As(err, &runErr) && runErr.Refused {
			return "", &SecurityError{Message: "legacy: exec " + cmdLine + ": " + err.Error()}
		}
		return "", errf("legacy: exec %s: %v", cmdLine, err)
	}
	return security.SanitizeCommandOutput(res.Stdout), nil
}

// execCmdLiteral implements `cmd("STRING")`: identical to exec, but the
// argument is a quoted string literal rather than a bareword command
// line (§4.4's table: "Same as exec STRING").
func (p *Processor) execCmdLiteral(ctx context.Context, quoted string) (string, error) {
	lit, ok := unquote(quoted)
	if !ok {
		return "", errf("legacy: cmd() requires a quoted string argument, got %q", quoted)
	}
	return p.execExecLike(ctx, lit)
}

// execImport implements `import PATH` (§4.4, §4.3): PATH may be a
// quoted literal or a bareword path/variable reference; the import is
// fully processed by the Importer (wired by the dispatcher) and its
// rendered result appended as-is.
func (p *Processor) execImport(ctx context.Context, args string) (string, error) {
	path := resolveImportPath(args, p.Store)
	if path == "" {
		return "", errf("legacy: import requires a path, got %q", args)
	}
	if p.Importer == nil {
		return "", errf("legacy: import %q requested but no importer is configured", path)
	}
	rendered, err := p.Importer(ctx, path)
	if err != nil {
		return "", errf("legacy: import %q failed: %v", path, err)
	}
	return rendered, nil
}

func resolveImportPath(args string, store *value.Store) string {
	args = strings.TrimSpace(args)
	if lit, ok := unquote(args); ok {
		return lit
	}
	if v, ok := store.Get(args); ok {
		return v.ToString()
	}
	return args
}

// evalNative lowers a multi-line directive body, or a single-line
// `print(EXPR)`/expression call, to the native parser and evaluator
// (§4.4: "re-interpreted using the native parser"; §9: "a single common
// evaluator core" for both surfaces). The native evaluator shares this
// Processor's store, so side effects (assignments made inside the
// directive) are visible to the rest of the document.
func (p *Processor) evalNative(ctx context.Context, source string) (string, error) {
	prog, err := parser.Parse(source)
	if err != nil {
		return "", errf("legacy: multi-line directive: %v", err)
	}
	ev := eval.New(p.Store,
		eval.WithRunner(p.Runner),
		eval.WithSecurity(p.Security),
		eval.WithImporter(eval.Importer(p.Importer)),
		eval.WithLogger(p.Logger),
	)
	if err := ev.Run(ctx, prog); err != nil {
		if secErr, ok := err.(*eval.SecurityError); ok {
			return "", &SecurityError{Message: secErr.Error()}
		}
		return "", errf("legacy: multi-line directive: %v", err)
	}
	return ev.Output.String(), nil
}

func inlineError(err error) string {
	return "[Error: " + err.Error() + "]"
}
