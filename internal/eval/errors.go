package eval

import "fmt"

// EvalError is a fatal evaluation error (§4.3): unlike the legacy
// processor, the native evaluator halts the document on error rather
// than emitting an inline marker (§6 propagation policy).
type EvalError struct {
	Message string
}

func (e *EvalError) Error() string { return e.Message }

func errf(format string, args ...any) *EvalError {
	return &EvalError{Message: fmt.Sprintf(format, args...)}
}

// SecurityError wraps a validator refusal; security refusals always
// halt and audit (§6).
type SecurityError struct {
	Message string
}

func (e *SecurityError) Error() string { return e.Message }
