package legacy

import "fmt"

// ProcessError reports any directive-processing failure: a malformed
// literal, an unbalanced if/endif or for/endfor structure, an unknown
// directive keyword, an unreadable import, or a native-eval failure
// from a re-parsed multi-line body. Per §7, processSegments reports
// most of these inline as a `[Error: ...]` marker and keeps going; the
// one case that instead propagates and halts Process is a multi-line
// directive body's evalNative failure, since that body has already
// been handed to the native evaluator and §7 treats its errors the
// same way the native surface always does (errors halt the document).
type ProcessError struct {
	Message string
}

func (e *ProcessError) Error() string { return e.Message }

func errf(format string, args ...any) *ProcessError {
	return &ProcessError{Message: fmt.Sprintf(format, args...)}
}

// SecurityError wraps a validator refusal surfaced while processing a
// legacy `exec`/`cmd(...)` directive. Security refusals are the one
// class of legacy-processing error that halts the document rather than
// being reported inline (§7: "Security refusals always halt and
// audit").
type SecurityError struct {
	Message string
}

func (e *SecurityError) Error() string { return e.Message }
