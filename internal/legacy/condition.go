package legacy

import (
	"strconv"
	"strings"

	"github.com/opal-lang/xmd/internal/value"
)

// condTokKind classifies one token of the legacy condition grammar
// (§4.4): `EXPR ::= TERM ((&& | ||) TERM)* | !TERM`,
// `TERM ::= VALUE OP VALUE | VARREF`, `VALUE ::= "literal" | number | VARREF`.
type condTokKind int

const (
	condValue condTokKind = iota // string literal, number, or bare identifier
	condOp                       // == != < <= > >=
	condAnd
	condOr
	condNot
)

type condTok struct {
	kind condTokKind
	text string // literal text for condValue/condOp
}

// tokenizeCondition splits a condition expression into value/operator
// tokens, respecting double-quoted string literals.
func tokenizeCondition(expr string) []condTok {
	var toks []condTok
	i, n := 0, len(expr)
	for i < n {
		c := expr[i]
		switch {
		case c == ' ' || c == '\t':
			i++
		case c == '"':
			j := i + 1
			for j < n && expr[j] != '"' {
				j++
			}
			if j < n {
				j++
			}
			toks = append(toks, condTok{kind: condValue, text: expr[i:j]})
			i = j
		case strings.HasPrefix(expr[i:], "&&"):
			toks = append(toks, condTok{kind: condAnd})
			i += 2
		case strings.HasPrefix(expr[i:], "||"):
			toks = append(toks, condTok{kind: condOr})
			i += 2
		case strings.HasPrefix(expr[i:], "=="):
			toks = append(toks, condTok{kind: condOp, text: "=="})
			i += 2
		case strings.HasPrefix(expr[i:], "!="):
			toks = append(toks, condTok{kind: condOp, text: "!="})
			i += 2
		case strings.HasPrefix(expr[i:], "<="):
			toks = append(toks, condTok{kind: condOp, text: "<="})
			i += 2
		case strings.HasPrefix(expr[i:], ">="):
			toks = append(toks, condTok{kind: condOp, text: ">="})
			i += 2
		case c == '<':
			toks = append(toks, condTok{kind: condOp, text: "<"})
			i++
		case c == '>':
			toks = append(toks, condTok{kind: condOp, text: ">"})
			i++
		case c == '!':
			toks = append(toks, condTok{kind: condNot})
			i++
		default:
			j := i
			for j < n && expr[j] != ' ' && expr[j] != '\t' &&
				!strings.HasPrefix(expr[j:], "&&") && !strings.HasPrefix(expr[j:], "||") &&
				!strings.HasPrefix(expr[j:], "==") && !strings.HasPrefix(expr[j:], "!=") &&
				!strings.HasPrefix(expr[j:], "<=") && !strings.HasPrefix(expr[j:], ">=") &&
				expr[j] != '<' && expr[j] != '>' && expr[j] != '"' {
				j++
			}
			if j == i {
				j++ // never get stuck on an unrecognized byte
			}
			toks = append(toks, condTok{kind: condValue, text: expr[i:j]})
			i = j
		}
	}
	return toks
}

// resolveCondValue implements §4.4's one documented tolerance: "Quoted
// literals have their quotes stripped; bare identifiers are looked up
// in the store and, if absent, used as string literals."
func resolveCondValue(tok condTok, store *value.Store) value.Value {
	text := tok.text
	if len(text) >= 2 && text[0] == '"' && text[len(text)-1] == '"' {
		return value.String(unescapeQuoted(text[1 : len(text)-1]))
	}
	if n, err := strconv.ParseFloat(text, 64); err == nil {
		return value.Number(n)
	}
	if v, ok := store.Get(text); ok {
		return v
	}
	return value.String(text)
}

// evalCondition evaluates a legacy condition string against store,
// following the grammar of §4.4.
func evalCondition(expr string, store *value.Store) (bool, error) {
	toks := tokenizeCondition(expr)
	if len(toks) == 0 {
		return false, errf("legacy: empty condition expression")
	}

	negate := false
	if toks[0].kind == condNot {
		negate = true
		toks = toks[1:]
	}

	result, rest, err := evalCondTerm(toks, store)
	if err != nil {
		return false, err
	}
	if negate {
		return !result, nil
	}

	for len(rest) > 0 {
		conn := rest[0].kind
		if conn != condAnd && conn != condOr {
			return false, errf("legacy: expected '&&' or '||' in condition, got %q", rest[0].text)
		}
		rhs, remaining, err := evalCondTerm(rest[1:], store)
		if err != nil {
			return false, err
		}
		if conn == condAnd {
			result = result && rhs
		} else {
			result = result || rhs
		}
		rest = remaining
	}
	return result, nil
}

// evalCondTerm consumes one TERM (`VALUE OP VALUE` or a bare VARREF)
// from the front of toks and returns its truth value plus the
// unconsumed remainder.
func evalCondTerm(toks []condTok, store *value.Store) (bool, []condTok, error) {
	if len(toks) == 0 {
		return false, nil, errf("legacy: condition ends mid-expression")
	}
	if len(toks) >= 3 && toks[0].kind == condValue && toks[1].kind == condOp && toks[2].kind == condValue {
		left := resolveCondValue(toks[0], store)
		right := resolveCondValue(toks[2], store)
		result, err := compareValues(left, toks[1].text, right)
		return result, toks[3:], err
	}
	if toks[0].kind != condValue {
		return false, nil, errf("legacy: expected a value in condition, got %q", toks[0].text)
	}
	return resolveCondValue(toks[0], store).Truthy(), toks[1:], nil
}

// compareValues implements the OP set of §4.4's condition grammar:
// `== != < <= > >=`. Equality uses Value.Equal (§3); ordering coerces
// both sides to-number, matching the relational operators used
// elsewhere in the engine.
func compareValues(left value.Value, op string, right value.Value) (bool, error) {
	switch op {
	case "==":
		return left.Equal(right), nil
	case "!=":
		return !left.Equal(right), nil
	case "<":
		return left.ToNumber() < right.ToNumber(), nil
	case "<=":
		return left.ToNumber() <= right.ToNumber(), nil
	case ">":
		return left.ToNumber() > right.ToNumber(), nil
	case ">=":
		return left.ToNumber() >= right.ToNumber(), nil
	default:
		return false, errf("legacy: unknown condition operator %q", op)
	}
}
