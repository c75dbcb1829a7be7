package legacy

import (
	"strconv"
	"strings"

	"github.com/opal-lang/xmd/internal/value"
)

// defaultMaxRange mirrors eval.DefaultMaxRange (§4.3): the legacy `for`
// directive's range form is capped identically to the native surface.
const defaultMaxRange = 1000

// parseForHeader splits a `for` directive's argument text ("x in
// items") into its loop variable and collection expression.
func parseForHeader(args string) (varName, collExpr string, err error) {
	const sep = " in "
	idx := strings.Index(args, sep)
	if idx < 0 {
		return "", "", errf("legacy: malformed for directive, expected 'V in COLL', got %q", args)
	}
	varName = strings.TrimSpace(args[:idx])
	collExpr = strings.TrimSpace(args[idx+len(sep):])
	if varName == "" || collExpr == "" {
		return "", "", errf("legacy: malformed for directive, expected 'V in COLL', got %q", args)
	}
	return varName, collExpr, nil
}

// resolveCollection expands a `for` directive's collection expression
// per §4.4: a comma-separated literal list, an integer range `a..b`, or
// a bareword store lookup (string is comma-split, array is used
// directly, object iterates its values in insertion order — the open
// question of §9 resolved the same way as the native for-in loop).
func resolveCollection(expr string, store *value.Store) ([]value.Value, error) {
	expr = strings.TrimSpace(expr)

	if items, ok := tryParseRange(expr, store); ok {
		return items, nil
	}

	if strings.Contains(expr, ",") {
		return splitCommaList(expr), nil
	}

	if v, ok := store.Get(expr); ok {
		switch v.Kind() {
		case value.KindString:
			s := v.StringVal()
			if s == "" {
				return nil, nil
			}
			return splitCommaList(s), nil
		case value.KindArray:
			items := make([]value.Value, v.ArrayLen())
			copy(items, v.ArrayItems())
			return items, nil
		case value.KindObject:
			keys := v.ObjectKeys()
			items := make([]value.Value, 0, len(keys))
			for _, k := range keys {
				val, _ := v.ObjectGet(k)
				items = append(items, val)
			}
			return items, nil
		default:
			return nil, errf("legacy: for: variable %q is not a string, array, or object", expr)
		}
	}

	// Neither a list, range, nor known variable: treat as a single
	// bareword string item, the same tolerance §4.4's condition
	// grammar extends to unresolved identifiers.
	return []value.Value{value.String(expr)}, nil
}

// splitCommaList splits a comma-separated literal list into trimmed
// string items ("a, b, c" or "a,b,c").
func splitCommaList(s string) []value.Value {
	parts := strings.Split(s, ",")
	items := make([]value.Value, 0, len(parts))
	for _, p := range parts {
		items = append(items, value.String(strings.TrimSpace(p)))
	}
	return items
}

// tryParseRange recognizes `START..END`, operands either integer
// literals or store variables, direction-sensitive and capped at 1000
// items (§4.4).
func tryParseRange(expr string, store *value.Store) ([]value.Value, bool) {
	idx := strings.Index(expr, "..")
	if idx < 0 {
		return nil, false
	}
	fromText := strings.TrimSpace(expr[:idx])
	toText := strings.TrimSpace(expr[idx+2:])
	from, ok := rangeOperand(fromText, store)
	if !ok {
		return nil, false
	}
	to, ok := rangeOperand(toText, store)
	if !ok {
		return nil, false
	}

	step := 1
	if to < from {
		step = -1
	}
	size := (to-from)*step + 1
	if size > defaultMaxRange {
		return nil, false
	}
	items := make([]value.Value, 0, size)
	for i := from; ; i += step {
		items = append(items, value.Number(float64(i)))
		if i == to {
			break
		}
	}
	return items, true
}

func rangeOperand(text string, store *value.Store) (int, bool) {
	if n, err := strconv.Atoi(text); err == nil {
		return n, true
	}
	if v, ok := store.Get(text); ok {
		return int(v.ToNumber()), true
	}
	return 0, false
}
