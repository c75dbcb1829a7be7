package lexer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opal-lang/xmd/internal/token"
)

func typesOf(toks []token.Token) []token.Type {
	out := make([]token.Type, len(toks))
	for i, t := range toks {
		out[i] = t.Type
	}
	return out
}

func TestLexBasicAssignment(t *testing.T) {
	toks := New(`set a = 1`).Tokens()
	require.Len(t, toks, 5) // set, a, =, 1, EOF
	assert.Equal(t, []token.Type{token.SET, token.IDENT, token.ASSIGN, token.NUMBER, token.EOF}, typesOf(toks))
}

func TestLexString(t *testing.T) {
	toks := New(`set s = "hello\nworld"`).Tokens()
	require.GreaterOrEqual(t, len(toks), 4)
	str := toks[3]
	assert.Equal(t, token.STRING, str.Type)
	assert.Equal(t, "hello\nworld", str.Literal)
}

func TestLexUnicodeEscape(t *testing.T) {
	toks := New("\"\\u0041\"").Tokens()
	require.Equal(t, token.STRING, toks[0].Type)
	assert.Equal(t, "A", toks[0].Literal)
}

func TestLexOperators(t *testing.T) {
	toks := New(`== != <= >= && || += ..`).Tokens()
	want := []token.Type{token.EQ, token.NEQ, token.LTE, token.GTE, token.AND, token.OR, token.PLUSEQ, token.RANGE, token.EOF}
	assert.Equal(t, want, typesOf(toks))
}

func TestLexObjectLiteralPunctuation(t *testing.T) {
	toks := New(`{a: 1}`).Tokens()
	want := []token.Type{token.LBRACE, token.IDENT, token.COLON, token.NUMBER, token.RBRACE, token.EOF}
	assert.Equal(t, want, typesOf(toks))
}

func TestLexNegativeNumber(t *testing.T) {
	toks := New(`-3.14`).Tokens()
	require.Equal(t, token.NUMBER, toks[0].Type)
	assert.Equal(t, "-3.14", toks[0].Literal)
}

func TestLexKeywordsAndIdentifiers(t *testing.T) {
	toks := New("if endif myVar").Tokens()
	assert.Equal(t, []token.Type{token.IF, token.ENDIF, token.IDENT, token.EOF}, typesOf(toks))
}

func TestLexIndentTracked(t *testing.T) {
	toks := New("if x\n  print(x)\nendif").Tokens()
	// the 'print' token on line 2 should carry indent 2
	for _, tk := range toks {
		if tk.Literal == "print" {
			assert.Equal(t, 2, tk.Indent)
		}
	}
}
