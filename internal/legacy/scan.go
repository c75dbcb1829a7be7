package legacy

import (
	"regexp"
	"strings"
)

type segKind int

const (
	segText segKind = iota
	segDirective
)

// segment is one unit of host text: either literal text to emit
// verbatim, or a directive body (already stripped of the `<!-- xmd:`
// prefix and `-->` suffix and outer whitespace, internal newlines
// preserved).
type segment struct {
	kind segKind
	raw  string
}

var commentPattern = regexp.MustCompile(`(?s)<!--(.*?)-->`)

// scan splits text into an ordered sequence of segments. A comment
// whose trimmed body begins with "xmd:" becomes a directive segment;
// every other comment, and all text between comments, passes through
// as a text segment (§4.4: "non-directive comments pass through
// verbatim").
func scan(text string) []segment {
	matches := commentPattern.FindAllStringSubmatchIndex(text, -1)
	if matches == nil {
		return []segment{{kind: segText, raw: text}}
	}

	var segs []segment
	last := 0
	for _, m := range matches {
		matchStart, matchEnd := m[0], m[1]
		capStart, capEnd := m[2], m[3]

		if matchStart > last {
			segs = append(segs, segment{kind: segText, raw: text[last:matchStart]})
		}

		inner := strings.TrimSpace(text[capStart:capEnd])
		if body, ok := strings.CutPrefix(inner, "xmd:"); ok {
			segs = append(segs, segment{kind: segDirective, raw: strings.TrimSpace(body)})
		} else {
			segs = append(segs, segment{kind: segText, raw: text[matchStart:matchEnd]})
		}
		last = matchEnd
	}
	if last < len(text) {
		segs = append(segs, segment{kind: segText, raw: text[last:]})
	}
	return segs
}

// splitFirstWord splits a single-line directive body into its command
// keyword and the remaining argument text.
func splitFirstWord(s string) (string, string) {
	s = strings.TrimSpace(s)
	idx := strings.IndexAny(s, " \t")
	if idx < 0 {
		return s, ""
	}
	return s[:idx], strings.TrimSpace(s[idx+1:])
}
