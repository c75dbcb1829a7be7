// Package xmd is the text-templating engine of spec.md §1: directives
// embedded in Markdown (or any text), either inside HTML comments
// (`<!-- xmd:set x=1 -->`, the legacy surface) or as line-leading
// keywords (`set x = 1`, the native surface), expanding variables,
// evaluating conditionals and loops, importing other files, executing
// shell commands under a security policy, and emitting rendered text.
//
// Process and ProcessDirective are the two external entry points of
// §6. Library code never reads the environment directly — XMD_SAFE_MODE,
// XMD_MAX_WHILE, and XMD_AUDIT_LOG are parsed only by cmd/xmd and
// threaded in as Options, mirroring how runtime/lexer.Lexer takes its
// behavior entirely through constructor options rather than globals.
package xmd

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/opal-lang/xmd/internal/dispatch"
	"github.com/opal-lang/xmd/internal/eval"
	"github.com/opal-lang/xmd/internal/importcache"
	"github.com/opal-lang/xmd/internal/runner"
	"github.com/opal-lang/xmd/internal/security"
	"github.com/opal-lang/xmd/internal/value"
)

// Config collects everything an Engine needs: the security policy, the
// command runner's limits, the audit sink, logging, and the loop caps
// of §4.3.
type Config struct {
	policy     *security.Policy
	auditSink  security.Sink
	logger     *slog.Logger
	maxWhile   int
	maxRange   int
	cmdTimeout int // milliseconds, 0 uses runner.Runner's default
	importRoot string
}

// Option configures an Engine at construction.
type Option func(*Config)

// WithPolicy installs a parsed security policy (default: none, so the
// built-in §4.8 command tables apply unmodified, see internal/security).
func WithPolicy(p *security.Policy) Option { return func(c *Config) { c.policy = p } }

// WithAuditSink installs the append-only audit destination of §6's
// "audit sink writes newline-delimited records". Defaults to a no-op
// sink when unset.
func WithAuditSink(s security.Sink) Option { return func(c *Config) { c.auditSink = s } }

// WithLogger installs a structured logger (default slog.Default()).
func WithLogger(l *slog.Logger) Option { return func(c *Config) { c.logger = l } }

// WithMaxWhile overrides the while-loop iteration cap of §4.3 (default
// eval.DefaultMaxWhile), the programmatic equivalent of XMD_MAX_WHILE.
func WithMaxWhile(n int) Option { return func(c *Config) { c.maxWhile = n } }

// WithMaxRange overrides the for-in range expansion cap of §4.3.
func WithMaxRange(n int) Option { return func(c *Config) { c.maxRange = n } }

// WithCommandTimeoutMS overrides the Command Runner's per-invocation
// timeout in milliseconds (§4.9 default 2000).
func WithCommandTimeoutMS(ms int) Option { return func(c *Config) { c.cmdTimeout = ms } }

// WithImportRoot sets the base directory `import` paths resolve
// against (default: the current working directory).
func WithImportRoot(dir string) Option { return func(c *Config) { c.importRoot = dir } }

// Engine bundles a Config with the stateful collaborators (security
// Engine, Runner, import cache) built from it, so repeated Process
// calls reuse the same audit sink, command runner, and import cache
// instead of rebuilding them per call.
type Engine struct {
	cfg      Config
	security *security.Engine
	runner   *runner.Runner
	cache    *importcache.Cache
}

// NewEngine builds an Engine ready for Process/ProcessDirective calls.
func NewEngine(opts ...Option) (*Engine, error) {
	cfg := Config{
		logger:   slog.Default(),
		maxWhile: eval.DefaultMaxWhile,
		maxRange: eval.DefaultMaxRange,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.auditSink == nil {
		cfg.auditSink = security.NopSink{}
	}
	// cfg.policy stays nil when the caller didn't supply one: a nil
	// *Policy leaves the built-in §4.8 tables untouched.
	if cfg.importRoot == "" {
		if wd, err := os.Getwd(); err == nil {
			cfg.importRoot = wd
		}
	}

	secEngine := security.NewEngine(cfg.policy, cfg.auditSink)
	var runnerOpts []runner.Option
	if cfg.cmdTimeout > 0 {
		runnerOpts = append(runnerOpts, runner.WithTimeout(time.Duration(cfg.cmdTimeout)*time.Millisecond))
	}
	run := runner.New(secEngine, runnerOpts...)

	cache, err := importcache.New(cfg.logger)
	if err != nil {
		return nil, err
	}

	return &Engine{cfg: cfg, security: secEngine, runner: run, cache: cache}, nil
}

// Close releases the Engine's import-cache filesystem watcher.
func (e *Engine) Close() error {
	if e.cache == nil {
		return nil
	}
	return e.cache.Close()
}

// Process implements §6's `process(input_text, store?) → rendered_text`.
// If store is nil, a fresh empty Store is created.
func (e *Engine) Process(ctx context.Context, input string, store *value.Store) (string, error) {
	if store == nil {
		store = value.NewStore()
	}
	return dispatch.Process(ctx, input, store,
		dispatch.WithRunner(e.runner),
		dispatch.WithSecurity(e.security),
		dispatch.WithImporter(e.importer(store)),
		dispatch.WithLogger(e.cfg.logger),
		dispatch.WithMaxWhile(e.cfg.maxWhile),
		dispatch.WithMaxRange(e.cfg.maxRange),
	)
}

// ProcessDirective implements §6's `process_directive(directive_text,
// store) → output_text`: it processes directiveText exactly as Process
// does and returns the rendered output, reusing store as-is. It does not
// check that directiveText holds only one directive, and a nil store is
// replaced by a fresh one, as in Process.
func (e *Engine) ProcessDirective(ctx context.Context, directiveText string, store *value.Store) (string, error) {
	return e.Process(ctx, directiveText, store)
}

// importer builds the import collaborator for one Process call, bound
// to that call's store: §4.3's `import expr` directive reads the
// target file and "process[es] it as XMD content using the *current*
// store", so the import cache below only ever memoizes the raw file
// bytes (invalidated by importcache's fsnotify watch) — the render
// itself always runs fresh against the caller's live store.
func (e *Engine) importer(store *value.Store) dispatch.Importer {
	return func(ctx context.Context, path string) (string, error) {
		resolved := path
		if !strings.HasPrefix(path, "/") {
			resolved = e.cfg.importRoot + string(os.PathSeparator) + path
		}
		raw, err := e.cache.Load(resolved, func() (string, error) {
			f, err := os.Open(resolved)
			if err != nil {
				return "", err
			}
			defer f.Close()
			content, err := io.ReadAll(f)
			if err != nil {
				return "", err
			}
			return string(content), nil
		})
		if err != nil {
			return "", err
		}
		return e.Process(ctx, raw, store)
	}
}

// Process is a package-level convenience wrapper that builds a
// one-shot default Engine, renders input against store (or a fresh
// store if nil), and releases the Engine's resources before returning.
func Process(ctx context.Context, input string, store *value.Store, opts ...Option) (string, error) {
	e, err := NewEngine(opts...)
	if err != nil {
		return "", err
	}
	defer e.Close()
	return e.Process(ctx, input, store)
}

// ProcessDirective is the package-level convenience counterpart to
// Engine.ProcessDirective.
func ProcessDirective(ctx context.Context, directiveText string, store *value.Store, opts ...Option) (string, error) {
	e, err := NewEngine(opts...)
	if err != nil {
		return "", err
	}
	defer e.Close()
	return e.ProcessDirective(ctx, directiveText, store)
}
