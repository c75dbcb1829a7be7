// Package jsoncodec implements the JSON half of §4.7: an RFC 8259
// subset sufficient for objects, arrays, strings, numbers, booleans,
// and null, parsed into and stringified from internal/value.Value.
//
// This is a hand-rolled parser/printer rather than encoding/json
// because Value has two requirements the standard library's object
// model cannot satisfy: insertion-order-preserved object keys on
// stringify, and literal (non-erroring) round-tripping of the value
// model's NaN/Infinity/-Infinity numbers, which encoding/json refuses
// to marshal. See DESIGN.md for the full justification.
package jsoncodec

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/opal-lang/xmd/internal/value"
)

// Parse decodes a JSON document into a Value.
func Parse(s string) (value.Value, error) {
	p := &parser{s: s}
	p.skipSpace()
	v, err := p.parseValue()
	if err != nil {
		return value.Null(), err
	}
	p.skipSpace()
	if p.pos != len(p.s) {
		return value.Null(), fmt.Errorf("jsoncodec: trailing data at offset %d", p.pos)
	}
	return v, nil
}

type parser struct {
	s   string
	pos int
}

func (p *parser) skipSpace() {
	for p.pos < len(p.s) {
		switch p.s[p.pos] {
		case ' ', '\t', '\n', '\r':
			p.pos++
		default:
			return
		}
	}
}

func (p *parser) parseValue() (value.Value, error) {
	if p.pos >= len(p.s) {
		return value.Null(), fmt.Errorf("jsoncodec: unexpected end of input")
	}
	switch c := p.s[p.pos]; {
	case c == '{':
		return p.parseObject()
	case c == '[':
		return p.parseArray()
	case c == '"':
		s, err := p.parseString()
		if err != nil {
			return value.Null(), err
		}
		return value.String(s), nil
	case c == 't':
		return p.parseLiteral("true", value.Bool(true))
	case c == 'f':
		return p.parseLiteral("false", value.Bool(false))
	case c == 'n':
		return p.parseLiteral("null", value.Null())
	case c == 'N':
		return p.parseLiteral("NaN", value.Number(math.NaN()))
	case c == 'I':
		return p.parseLiteral("Infinity", value.Number(math.Inf(1)))
	case c == '-' && strings.HasPrefix(p.s[p.pos:], "-Infinity"):
		return p.parseLiteral("-Infinity", value.Number(math.Inf(-1)))
	case c == '-' || (c >= '0' && c <= '9'):
		return p.parseNumber()
	default:
		return value.Null(), fmt.Errorf("jsoncodec: unexpected character %q at offset %d", c, p.pos)
	}
}

func (p *parser) parseLiteral(lit string, v value.Value) (value.Value, error) {
	if !strings.HasPrefix(p.s[p.pos:], lit) {
		return value.Null(), fmt.Errorf("jsoncodec: invalid literal at offset %d", p.pos)
	}
	p.pos += len(lit)
	return v, nil
}

func (p *parser) parseNumber() (value.Value, error) {
	start := p.pos
	if p.s[p.pos] == '-' {
		p.pos++
	}
	for p.pos < len(p.s) && p.s[p.pos] >= '0' && p.s[p.pos] <= '9' {
		p.pos++
	}
	if p.pos < len(p.s) && p.s[p.pos] == '.' {
		p.pos++
		for p.pos < len(p.s) && p.s[p.pos] >= '0' && p.s[p.pos] <= '9' {
			p.pos++
		}
	}
	if p.pos < len(p.s) && (p.s[p.pos] == 'e' || p.s[p.pos] == 'E') {
		p.pos++
		if p.pos < len(p.s) && (p.s[p.pos] == '+' || p.s[p.pos] == '-') {
			p.pos++
		}
		for p.pos < len(p.s) && p.s[p.pos] >= '0' && p.s[p.pos] <= '9' {
			p.pos++
		}
	}
	lit := p.s[start:p.pos]
	n, err := strconv.ParseFloat(lit, 64)
	if err != nil {
		return value.Null(), fmt.Errorf("jsoncodec: invalid number %q at offset %d", lit, start)
	}
	return value.Number(n), nil
}

func (p *parser) parseString() (string, error) {
	if p.s[p.pos] != '"' {
		return "", fmt.Errorf("jsoncodec: expected '\"' at offset %d", p.pos)
	}
	p.pos++
	var b strings.Builder
	for p.pos < len(p.s) {
		c := p.s[p.pos]
		switch {
		case c == '"':
			p.pos++
			return b.String(), nil
		case c == '\\':
			p.pos++
			if p.pos >= len(p.s) {
				return "", fmt.Errorf("jsoncodec: unterminated escape at offset %d", p.pos)
			}
			esc := p.s[p.pos]
			switch esc {
			case '"':
				b.WriteByte('"')
			case '\\':
				b.WriteByte('\\')
			case '/':
				b.WriteByte('/')
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case 'r':
				b.WriteByte('\r')
			case 'b':
				b.WriteByte('\b')
			case 'f':
				b.WriteByte('\f')
			case 'u':
				r, err := p.parseUnicodeEscape()
				if err != nil {
					return "", err
				}
				b.WriteRune(r)
				continue
			default:
				return "", fmt.Errorf("jsoncodec: invalid escape '\\%c' at offset %d", esc, p.pos)
			}
			p.pos++
		default:
			r, size := utf8.DecodeRuneInString(p.s[p.pos:])
			b.WriteRune(r)
			p.pos += size
		}
	}
	return "", fmt.Errorf("jsoncodec: unterminated string")
}

// parseUnicodeEscape consumes the 4 hex digits after "\u" (p.pos points
// at 'u') and, if it is a high surrogate immediately followed by a low
// surrogate "\uXXXX", combines them into one rune.
func (p *parser) parseUnicodeEscape() (rune, error) {
	r1, err := p.hex4()
	if err != nil {
		return 0, err
	}
	if utf16.IsSurrogate(rune(r1)) {
		if strings.HasPrefix(p.s[p.pos:], `\u`) {
			save := p.pos
			p.pos++ // skip '\'; hex4 consumes the 'u'
			r2, err := p.hex4()
			if err == nil {
				combined := utf16.DecodeRune(rune(r1), rune(r2))
				if combined != utf8.RuneError {
					return combined, nil
				}
			}
			p.pos = save
		}
		return utf8.RuneError, nil
	}
	return rune(r1), nil
}

// hex4 consumes the 'u' at p.pos and the exactly 4 hex digits after it,
// advancing p.pos past them and returning the decoded value.
func (p *parser) hex4() (uint64, error) {
	p.pos++ // consume 'u'
	if p.pos+4 > len(p.s) {
		return 0, fmt.Errorf("jsoncodec: truncated \\u escape at offset %d", p.pos)
	}
	n, err := strconv.ParseUint(p.s[p.pos:p.pos+4], 16, 32)
	if err != nil {
		return 0, fmt.Errorf("jsoncodec: invalid \\u escape at offset %d", p.pos)
	}
	p.pos += 4
	return n, nil
}

func (p *parser) parseArray() (value.Value, error) {
	p.pos++ // '['
	arr := value.NewArray()
	p.skipSpace()
	if p.pos < len(p.s) && p.s[p.pos] == ']' {
		p.pos++
		return arr, nil
	}
	for {
		p.skipSpace()
		elem, err := p.parseValue()
		if err != nil {
			return value.Null(), err
		}
		_ = arr.ArrayPush(elem)
		p.skipSpace()
		if p.pos >= len(p.s) {
			return value.Null(), fmt.Errorf("jsoncodec: unterminated array")
		}
		if p.s[p.pos] == ',' {
			p.pos++
			continue
		}
		if p.s[p.pos] == ']' {
			p.pos++
			return arr, nil
		}
		return value.Null(), fmt.Errorf("jsoncodec: expected ',' or ']' at offset %d", p.pos)
	}
}

func (p *parser) parseObject() (value.Value, error) {
	p.pos++ // '{'
	obj := value.NewObject()
	p.skipSpace()
	if p.pos < len(p.s) && p.s[p.pos] == '}' {
		p.pos++
		return obj, nil
	}
	for {
		p.skipSpace()
		key, err := p.parseString()
		if err != nil {
			return value.Null(), fmt.Errorf("jsoncodec: expected object key: %w", err)
		}
		p.skipSpace()
		if p.pos >= len(p.s) || p.s[p.pos] != ':' {
			return value.Null(), fmt.Errorf("jsoncodec: expected ':' at offset %d", p.pos)
		}
		p.pos++
		p.skipSpace()
		val, err := p.parseValue()
		if err != nil {
			return value.Null(), err
		}
		_ = obj.ObjectSet(key, val)
		p.skipSpace()
		if p.pos >= len(p.s) {
			return value.Null(), fmt.Errorf("jsoncodec: unterminated object")
		}
		if p.s[p.pos] == ',' {
			p.pos++
			continue
		}
		if p.s[p.pos] == '}' {
			p.pos++
			return obj, nil
		}
		return value.Null(), fmt.Errorf("jsoncodec: expected ',' or '}' at offset %d", p.pos)
	}
}

// Stringify renders v as JSON text. When pretty is true, uses a 2-space
// indent (§4.7); object keys are emitted in insertion order.
func Stringify(v value.Value, pretty bool) string {
	var b strings.Builder
	writeValue(&b, v, pretty, 0)
	return b.String()
}

func writeValue(b *strings.Builder, v value.Value, pretty bool, depth int) {
	switch v.Kind() {
	case value.KindNull:
		b.WriteString("null")
	case value.KindBool:
		if v.BoolVal() {
			b.WriteString("true")
		} else {
			b.WriteString("false")
		}
	case value.KindNumber:
		b.WriteString(formatJSONNumber(v.NumberVal()))
	case value.KindString:
		writeJSONString(b, v.StringVal())
	case value.KindArray:
		writeArray(b, v, pretty, depth)
	case value.KindObject:
		writeObject(b, v, pretty, depth)
	}
}

// formatJSONNumber encodes NaN/Infinity as bare identifiers so the
// value-model round-trip in §8 holds; strict RFC 8259 consumers outside
// XMD would reject these, which is an accepted deviation for a
// value-preserving internal codec.
func formatJSONNumber(n float64) string {
	switch {
	case math.IsNaN(n):
		return "NaN"
	case math.IsInf(n, 1):
		return "Infinity"
	case math.IsInf(n, -1):
		return "-Infinity"
	}
	if n == float64(int64(n)) {
		return strconv.FormatInt(int64(n), 10)
	}
	return strconv.FormatFloat(n, 'g', -1, 64)
}

func writeJSONString(b *strings.Builder, s string) {
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\t':
			b.WriteString(`\t`)
		case '\r':
			b.WriteString(`\r`)
		default:
			if r < 0x20 {
				fmt.Fprintf(b, `\u%04x`, r)
			} else {
				b.WriteRune(r)
			}
		}
	}
	b.WriteByte('"')
}

func indent(b *strings.Builder, depth int) {
	for i := 0; i < depth; i++ {
		b.WriteString("  ")
	}
}

func writeArray(b *strings.Builder, v value.Value, pretty bool, depth int) {
	items := v.ArrayItems()
	if len(items) == 0 {
		b.WriteString("[]")
		return
	}
	b.WriteByte('[')
	for i, elem := range items {
		if pretty {
			b.WriteByte('\n')
			indent(b, depth+1)
		}
		writeValue(b, elem, pretty, depth+1)
		if i < len(items)-1 {
			b.WriteByte(',')
		}
	}
	if pretty {
		b.WriteByte('\n')
		indent(b, depth)
	}
	b.WriteByte(']')
}

func writeObject(b *strings.Builder, v value.Value, pretty bool, depth int) {
	keys := v.ObjectKeys()
	if len(keys) == 0 {
		b.WriteString("{}")
		return
	}
	b.WriteByte('{')
	for i, k := range keys {
		if pretty {
			b.WriteByte('\n')
			indent(b, depth+1)
		}
		writeJSONString(b, k)
		b.WriteByte(':')
		if pretty {
			b.WriteByte(' ')
		}
		val, _ := v.ObjectGet(k)
		writeValue(b, val, pretty, depth+1)
		if i < len(keys)-1 {
			b.WriteByte(',')
		}
	}
	if pretty {
		b.WriteByte('\n')
		indent(b, depth)
	}
	b.WriteByte('}')
}
