package parser

import (
	"fmt"
	"sort"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/opal-lang/xmd/internal/token"
)

// knownKeywords backs the "did you mean" suggestion on unknown-keyword
// errors (§B of SPEC_FULL.md): grounded on the teacher's use of
// lithammer/fuzzysearch in runtime/planner for nearest-match diagnostics.
var knownKeywords = func() []string {
	out := make([]string, 0, len(token.Keywords))
	for k := range token.Keywords {
		out = append(out, k)
	}
	return out
}()

// ParseError is the single accumulated parser error (§4.2: "the parser
// accumulates at most one error and halts").
type ParseError struct {
	Message string
	Pos     token.Position
	// Suggestion is a nearest-keyword hint for unrecognized identifiers,
	// e.g. "did you mean 'endfor'?".
	Suggestion string
}

func (e *ParseError) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("%s: %s (did you mean '%s'?)", e.Pos, e.Message, e.Suggestion)
	}
	return fmt.Sprintf("%s: %s", e.Pos, e.Message)
}

// suggestKeyword returns the closest known keyword to ident, or "" if
// none rank close enough to be useful.
func suggestKeyword(ident string) string {
	ranks := fuzzy.RankFindFold(ident, knownKeywords)
	if len(ranks) == 0 {
		return ""
	}
	sort.Sort(ranks)
	return ranks[0].Target
}
