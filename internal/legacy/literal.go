package legacy

import (
	"strconv"
	"strings"

	"github.com/opal-lang/xmd/internal/value"
)

// parseSetLiteral parses the right-hand side of a single-line `set K = V`
// directive (§4.4): a quoted string, a number, a bool, null, or else an
// unquoted bareword treated as a string — deliberately a plain literal
// grammar, not the full expression language the native surface uses for
// `set`.
func parseSetLiteral(text string) value.Value {
	text = strings.TrimSpace(text)
	if len(text) >= 2 && text[0] == '"' && text[len(text)-1] == '"' {
		return value.String(unescapeQuoted(text[1 : len(text)-1]))
	}
	switch text {
	case "true":
		return value.Bool(true)
	case "false":
		return value.Bool(false)
	case "null":
		return value.Null()
	}
	if n, err := strconv.ParseFloat(text, 64); err == nil {
		return value.Number(n)
	}
	return value.String(text)
}

func unescapeQuoted(s string) string {
	if !strings.ContainsRune(s, '\\') {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			switch s[i+1] {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case '"':
				b.WriteByte('"')
			case '\\':
				b.WriteByte('\\')
			default:
				b.WriteByte(s[i+1])
			}
			i++
			continue
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

// splitKV splits a `K = V` or `K=V` single-line set body on the first
// '=' that is not inside a quoted string.
func splitKV(s string) (key, val string, ok bool) {
	inQuote := false
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '"':
			inQuote = !inQuote
		case '=':
			if !inQuote {
				return strings.TrimSpace(s[:i]), strings.TrimSpace(s[i+1:]), true
			}
		}
	}
	return "", "", false
}

// unquote strips a single layer of double quotes, used for the literal
// string argument of `cmd("STRING")`.
func unquote(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return unescapeQuoted(s[1 : len(s)-1]), true
	}
	return "", false
}
