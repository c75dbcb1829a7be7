// Command xmd is the CLI surface of spec.md §6: a single binary that
// renders one XMD input file and writes the result to stdout or a file.
//
//	xmd <input.md> [-o output.md] [--var K=V]...
//
// Exit codes: 0 success; 1 parse error; 2 evaluation error; 3 security
// refusal; 4 I/O error. XMD_SAFE_MODE, XMD_MAX_WHILE, and XMD_AUDIT_LOG
// are read here and only here — library code never touches the
// environment directly.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/opal-lang/xmd/internal/eval"
	"github.com/opal-lang/xmd/internal/legacy"
	"github.com/opal-lang/xmd/internal/parser"
	"github.com/opal-lang/xmd/internal/security"
	"github.com/opal-lang/xmd"
	"github.com/opal-lang/xmd/internal/value"
)

const (
	exitSuccess  = 0
	exitParse    = 1
	exitEval     = 2
	exitSecurity = 3
	exitIO       = 4
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		outputPath string
		vars       []string
	)

	rootCmd := &cobra.Command{
		Use:           "xmd <input.md>",
		Short:         "Render an XMD document",
		Args:          cobra.ExactArgs(1),
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return render(cmd.Context(), args[0], outputPath, vars)
		},
	}
	rootCmd.Flags().StringVarP(&outputPath, "output", "o", "", "write rendered output to this path instead of stdout")
	rootCmd.Flags().StringArrayVar(&vars, "var", nil, "seed a store variable as K=V (repeatable)")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()
	rootCmd.SetContext(ctx)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "xmd:", err)
		return exitCodeFor(err)
	}
	return exitSuccess
}

func render(ctx context.Context, inputPath, outputPath string, vars []string) error {
	raw, err := os.ReadFile(inputPath)
	if err != nil {
		return &ioError{err}
	}

	store := value.NewStore()
	for _, kv := range vars {
		key, val, ok := strings.Cut(kv, "=")
		if !ok {
			return fmt.Errorf("--var %q must be in K=V form", kv)
		}
		store.Set(key, value.String(val))
	}

	opts, err := optionsFromEnv()
	if err != nil {
		return err
	}

	e, err := xmd.NewEngine(opts...)
	if err != nil {
		return err
	}
	defer e.Close()

	rendered, err := e.Process(ctx, string(raw), store)
	if err != nil {
		return err
	}

	if outputPath == "" {
		_, err = os.Stdout.WriteString(rendered)
		if err != nil {
			return &ioError{err}
		}
		return nil
	}
	if err := os.WriteFile(outputPath, []byte(rendered), 0o644); err != nil {
		return &ioError{err}
	}
	return nil
}

// ioError marks an error as belonging to exit code 4 regardless of its
// underlying cause, since os.ReadFile/os.WriteFile failures don't fit
// any of the engine's own typed errors.
type ioError struct{ cause error }

func (e *ioError) Error() string { return e.cause.Error() }
func (e *ioError) Unwrap() error { return e.cause }

// optionsFromEnv reads XMD_SAFE_MODE, XMD_MAX_WHILE, and XMD_AUDIT_LOG
// (§6) and translates them into xmd.Options; this is the one place in
// the whole module permitted to call os.Getenv.
func optionsFromEnv() ([]xmd.Option, error) {
	var opts []xmd.Option

	safeMode := true
	if v, ok := os.LookupEnv("XMD_SAFE_MODE"); ok {
		safeMode = v != "0"
	}
	_ = safeMode // default-deny is always on; XMD_SAFE_MODE=0 is accepted but has no looser mode to switch to yet (see DESIGN.md).

	if v, ok := os.LookupEnv("XMD_MAX_WHILE"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("XMD_MAX_WHILE=%q is not an integer", v)
		}
		opts = append(opts, xmd.WithMaxWhile(n))
	} else {
		opts = append(opts, xmd.WithMaxWhile(eval.DefaultMaxWhile))
	}

	if path, ok := os.LookupEnv("XMD_AUDIT_LOG"); ok && path != "" {
		f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("opening XMD_AUDIT_LOG %q: %w", path, err)
		}
		sink, err := security.NewNDJSONSink(f)
		if err != nil {
			return nil, fmt.Errorf("opening XMD_AUDIT_LOG %q: %w", path, err)
		}
		opts = append(opts, xmd.WithAuditSink(sink))
	}

	opts = append(opts, xmd.WithLogger(slog.Default()))
	return opts, nil
}

// exitCodeFor classifies an error into spec.md §6's exit code table by
// walking its wrap chain for each typed error the engine can produce.
func exitCodeFor(err error) int {
	var parseErr *parser.ParseError
	if errors.As(err, &parseErr) {
		return exitParse
	}
	var evalSecErr *eval.SecurityError
	if errors.As(err, &evalSecErr) {
		return exitSecurity
	}
	var legacySecErr *legacy.SecurityError
	if errors.As(err, &legacySecErr) {
		return exitSecurity
	}
	var evalErr *eval.EvalError
	if errors.As(err, &evalErr) {
		return exitEval
	}
	var procErr *legacy.ProcessError
	if errors.As(err, &procErr) {
		return exitEval
	}
	var ioErr *ioError
	if errors.As(err, &ioErr) {
		return exitIO
	}
	return exitIO
}
