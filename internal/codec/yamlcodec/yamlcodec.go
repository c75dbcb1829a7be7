// Package yamlcodec implements the restricted YAML subset of §4.7:
// block sequences, block mappings, and scalar type inference, built on
// gopkg.in/yaml.v3's Node tree so the codec exercises the real library
// the rest of the pack depends on instead of a hand-rolled scanner.
package yamlcodec

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/opal-lang/xmd/internal/value"
)

// Parse decodes the restricted YAML subset into a Value.
func Parse(s string) (value.Value, error) {
	var node yaml.Node
	if err := yaml.Unmarshal([]byte(s), &node); err != nil {
		return value.Null(), fmt.Errorf("yamlcodec: %w", err)
	}
	if len(node.Content) == 0 {
		return value.Null(), nil
	}
	return nodeToValue(node.Content[0])
}

func nodeToValue(n *yaml.Node) (value.Value, error) {
	switch n.Kind {
	case yaml.ScalarNode:
		return scalarToValue(n), nil
	case yaml.SequenceNode:
		arr := value.NewArray()
		for _, item := range n.Content {
			v, err := nodeToValue(item)
			if err != nil {
				return value.Null(), err
			}
			_ = arr.ArrayPush(v)
		}
		return arr, nil
	case yaml.MappingNode:
		obj := value.NewObject()
		for i := 0; i+1 < len(n.Content); i += 2 {
			key := n.Content[i]
			val := n.Content[i+1]
			v, err := nodeToValue(val)
			if err != nil {
				return value.Null(), err
			}
			_ = obj.ObjectSet(key.Value, v)
		}
		return obj, nil
	case yaml.AliasNode:
		return value.Null(), fmt.Errorf("yamlcodec: anchors/aliases are not supported")
	default:
		return value.Null(), fmt.Errorf("yamlcodec: unsupported node kind %v", n.Kind)
	}
}

// scalarToValue infers the restricted scalar type set of §4.7: booleans,
// null/~, decimal numbers, otherwise string.
func scalarToValue(n *yaml.Node) value.Value {
	if n.Tag == "!!str" {
		return value.String(n.Value)
	}
	s := n.Value
	switch s {
	case "true":
		return value.Bool(true)
	case "false":
		return value.Bool(false)
	case "null", "~", "":
		return value.Null()
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return value.Number(f)
	}
	return value.String(s)
}

// Stringify renders v using the restricted subset: block sequences,
// block mappings, flow-style {}/[] for empty composites (§4.7).
func Stringify(v value.Value) string {
	lines := renderLines(v, 0)
	return strings.Join(lines, "\n") + "\n"
}

// renderLines renders v as a block at the given indent depth: one
// string per output line, each already carrying its own leading
// indent. Sequence items splice a nested block's first line onto its
// own "- " marker rather than re-indenting, so nesting composes by
// simple concatenation instead of string surgery.
func renderLines(v value.Value, depth int) []string {
	pad := strings.Repeat("  ", depth)
	switch v.Kind() {
	case value.KindArray:
		items := v.ArrayItems()
		if len(items) == 0 {
			return []string{pad + "[]"}
		}
		var lines []string
		for _, elem := range items {
			if isEmptyComposite(elem) {
				lines = append(lines, pad+"- "+emptyMarker(elem))
				continue
			}
			if elem.IsArray() || elem.IsObject() {
				sub := renderLines(elem, depth+1)
				first := strings.TrimPrefix(sub[0], strings.Repeat("  ", depth+1))
				lines = append(lines, pad+"- "+first)
				lines = append(lines, sub[1:]...)
				continue
			}
			lines = append(lines, pad+"- "+scalarString(elem))
		}
		return lines
	case value.KindObject:
		keys := v.ObjectKeys()
		if len(keys) == 0 {
			return []string{pad + "{}"}
		}
		var lines []string
		for _, k := range keys {
			val, _ := v.ObjectGet(k)
			switch {
			case isEmptyComposite(val):
				lines = append(lines, pad+k+": "+emptyMarker(val))
			case val.IsArray() || val.IsObject():
				lines = append(lines, pad+k+":")
				lines = append(lines, renderLines(val, depth+1)...)
			default:
				lines = append(lines, pad+k+": "+scalarString(val))
			}
		}
		return lines
	default:
		return []string{pad + scalarString(v)}
	}
}

func isEmptyComposite(v value.Value) bool {
	return (v.IsArray() && v.ArrayLen() == 0) || (v.IsObject() && v.ObjectLen() == 0)
}

func emptyMarker(v value.Value) string {
	if v.IsArray() {
		return "[]"
	}
	return "{}"
}

func scalarString(v value.Value) string {
	switch v.Kind() {
	case value.KindNull:
		return "null"
	case value.KindString:
		if needsQuoting(v.StringVal()) {
			return strconv.Quote(v.StringVal())
		}
		return v.StringVal()
	default:
		return v.ToString()
	}
}

// needsQuoting reports whether s would be misread as a different
// scalar type (bool/null/number) or contains YAML-significant
// characters if emitted bare.
func needsQuoting(s string) bool {
	if s == "" {
		return true
	}
	switch s {
	case "true", "false", "null", "~":
		return true
	}
	if _, err := strconv.ParseFloat(s, 64); err == nil {
		return true
	}
	for _, c := range []string{":", "#", "\n", "\"", "'"} {
		if strings.Contains(s, c) {
			return true
		}
	}
	return strings.TrimSpace(s) != s
}
