// Package template implements the template substitutor (§4.6): a
// post-render expansion pass over already-rendered text, distinct from
// the native parser's expression evaluation. It recognizes two
// independent placeholder forms and resolves each against a variable
// store.
package template

import (
	"strings"

	"github.com/opal-lang/xmd/internal/value"
)

// Substitute expands both legacy `{{name}}` and native `${name}`
// placeholders in text against store. Braces are matched literally
// (no nesting); a placeholder whose body is not a bare identifier is
// left untouched.
func Substitute(text string, store *value.Store) string {
	return substituteNative(substituteLegacy(text, store), store)
}

// substituteLegacy expands `{{name}}`, replacing an unresolved name
// with the empty string.
func substituteLegacy(text string, store *value.Store) string {
	var b strings.Builder
	b.Grow(len(text))
	i := 0
	for i < len(text) {
		open := strings.Index(text[i:], "{{")
		if open < 0 {
			b.WriteString(text[i:])
			break
		}
		open += i
		close := strings.Index(text[open+2:], "}}")
		if close < 0 {
			b.WriteString(text[i:])
			break
		}
		close = open + 2 + close
		name := strings.TrimSpace(text[open+2 : close])
		b.WriteString(text[i:open])
		if isIdent(name) {
			if v, ok := store.Get(name); ok {
				b.WriteString(v.ToString())
			}
			// Missing name: substitute empty string.
		} else {
			b.WriteString(text[open : close+2])
		}
		i = close + 2
	}
	return b.String()
}

// substituteNative expands `${name}`, keeping the literal sequence
// when name is unresolved.
func substituteNative(text string, store *value.Store) string {
	var b strings.Builder
	b.Grow(len(text))
	i := 0
	for i < len(text) {
		open := strings.Index(text[i:], "${")
		if open < 0 {
			b.WriteString(text[i:])
			break
		}
		open += i
		close := strings.IndexByte(text[open+2:], '}')
		if close < 0 {
			b.WriteString(text[i:])
			break
		}
		close = open + 2 + close
		name := strings.TrimSpace(text[open+2 : close])
		b.WriteString(text[i:open])
		if v, ok := store.Get(name); isIdent(name) && ok {
			b.WriteString(v.ToString())
		} else {
			b.WriteString(text[open : close+1])
		}
		i = close + 1
	}
	return b.String()
}

func isIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z'):
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}
