// Package runner implements the Command Runner interface of §4.9: a
// single entry point that validates, executes, and captures output for
// an external command, under a hard time limit and capture cap.
//
// Grounded on the teacher's shell worker pool
// (runtime/executor/shell_worker.go): context-scoped timeouts,
// sync.Pool-backed capture buffers, and a distinguishable error type
// for "command never started" vs "command failed after starting".
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/opal-lang/xmd/internal/invariant"
	"github.com/opal-lang/xmd/internal/security"
)

const (
	// DefaultTimeout is the 2000ms default of §4.9.
	DefaultTimeout = 2000 * time.Millisecond
	// DefaultCaptureLimit is the 1 MiB default of §4.9.
	DefaultCaptureLimit = 1 << 20
)

var captureBufferPool = sync.Pool{
	New: func() any {
		buf := make([]byte, 0, 64*1024)
		return &buf
	},
}

// Result is the outcome of running a command (§4.9).
type Result struct {
	ExitCode  int
	Stdout    string
	Stderr    string
	Truncated bool
}

// RunError distinguishes "the command was refused before starting" (a
// security refusal) from "the command started but failed", mirroring
// the teacher's workerRunError split.
type RunError struct {
	cause   error
	Refused bool
}

func (e *RunError) Error() string { return e.cause.Error() }
func (e *RunError) Unwrap() error { return e.cause }

func refusalError(format string, args ...any) error {
	return &RunError{cause: fmt.Errorf(format, args...), Refused: true}
}

// Runner executes validated commands. Run must call validate_command
// first and refuse on any non-Ok result (§4.9).
type Runner struct {
	engine  *security.Engine
	timeout time.Duration
	limit   int
}

// Option configures a Runner.
type Option func(*Runner)

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option { return func(r *Runner) { r.timeout = d } }

// WithCaptureLimit overrides DefaultCaptureLimit.
func WithCaptureLimit(n int) Option { return func(r *Runner) { r.limit = n } }

// New creates a Runner. engine may be nil, in which case the built-in
// §4.8 tables apply with no policy overrides and no audit sink.
func New(engine *security.Engine, opts ...Option) *Runner {
	r := &Runner{engine: engine, timeout: DefaultTimeout, limit: DefaultCaptureLimit}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run validates cmd, then executes it with stdin piped in (if non-empty)
// and both streams captured up to the runner's capture limit.
//
// The command is never interpreted by a shell: the first whitespace
// token is the executable, the rest are literal arguments (§4.9: "no
// shell metacharacter interpretation beyond argument splitting").
func (r *Runner) Run(ctx context.Context, cmdLine, stdin string) (Result, error) {
	invariant.Precondition(cmdLine != "", "runner: empty command")

	var validation security.Result
	if r.engine != nil {
		validation = r.engine.ValidateCommand(cmdLine, "runner.Run")
	} else {
		validation = security.ValidateCommand(cmdLine)
	}
	if validation != security.Ok {
		return Result{}, refusalError("runner: command refused: %s", validation)
	}

	fields := strings.Fields(cmdLine)
	if len(fields) == 0 {
		return Result{}, refusalError("runner: empty command after tokenization")
	}

	runCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, fields[0], fields[1:]...)
	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}

	stdoutBufPtr := captureBufferPool.Get().(*[]byte)
	stderrBufPtr := captureBufferPool.Get().(*[]byte)
	defer func() {
		*stdoutBufPtr = (*stdoutBufPtr)[:0]
		*stderrBufPtr = (*stderrBufPtr)[:0]
		captureBufferPool.Put(stdoutBufPtr)
		captureBufferPool.Put(stderrBufPtr)
	}()

	stdoutCap := &limitedWriter{limit: r.limit, buf: bytes.NewBuffer(*stdoutBufPtr)}
	stderrCap := &limitedWriter{limit: r.limit, buf: bytes.NewBuffer(*stderrBufPtr)}
	cmd.Stdout = stdoutCap
	cmd.Stderr = stderrCap

	err := cmd.Run()

	res := Result{
		Stdout:    stdoutCap.buf.String(),
		Stderr:    stderrCap.buf.String(),
		Truncated: stdoutCap.truncated || stderrCap.truncated,
	}

	var exitErr *exec.ExitError
	switch {
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		return res, &RunError{cause: fmt.Errorf("runner: command exceeded %s timeout", r.timeout)}
	case err != nil:
		return res, &RunError{cause: fmt.Errorf("runner: %w", err)}
	default:
		res.ExitCode = 0
		return res, nil
	}
}

// limitedWriter caps captured output at limit bytes; bytes past the cap
// are discarded and Truncated is set instead of returning an error,
// matching §4.9's "terminated with a truncation flag" contract (the
// process itself is left to run to completion or context timeout —
// capture, not process control, is what is limited here).
type limitedWriter struct {
	buf       *bytes.Buffer
	limit     int
	truncated bool
}

// Write always reports the full length of p as accepted, even past the
// cap, so an io.Copy driving this writer never sees a short write and
// aborts early; bytes beyond the cap are simply dropped and Truncated
// is set.
func (w *limitedWriter) Write(p []byte) (int, error) {
	full := len(p)
	if w.buf.Len() >= w.limit {
		w.truncated = true
		return full, nil
	}
	room := w.limit - w.buf.Len()
	if len(p) > room {
		w.truncated = true
		p = p[:room]
	}
	if _, err := w.buf.Write(p); err != nil {
		return 0, err
	}
	return full, nil
}

var _ io.Writer = (*limitedWriter)(nil)
