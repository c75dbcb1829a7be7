package security

import (
	"regexp"
	"strings"
)

// SanitizeOutput HTML-escapes the characters enumerated in §4.8 and
// replaces non-printable bytes with a space. The output buffer is
// pre-sized to 6x the input to match the reference's growth hint; Go's
// strings.Builder already grows amortized, so this only avoids a few
// early reallocations.
func SanitizeOutput(text string) string {
	var b strings.Builder
	b.Grow(len(text) * 6)
	for _, r := range text {
		switch r {
		case '&':
			b.WriteString("&amp;")
		case '<':
			b.WriteString("&lt;")
		case '>':
			b.WriteString("&gt;")
		case '"':
			b.WriteString("&quot;")
		case '\'':
			b.WriteString("&#39;")
		case '/':
			b.WriteString("&#47;")
		default:
			if r < 0x20 && r != '\n' && r != '\t' || r == 0x7f {
				b.WriteByte(' ')
			} else {
				b.WriteRune(r)
			}
		}
	}
	return b.String()
}

var inertTags = map[string]bool{
	"p": true, "br": true, "strong": true, "em": true, "i": true, "b": true, "u": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"ul": true, "ol": true, "li": true, "blockquote": true, "pre": true, "code": true,
	"span": true, "div": true, "a": true, "img": true, "table": true, "tr": true,
	"td": true, "th": true, "tbody": true, "thead": true, "tfoot": true,
}

var attrWhitelist = map[string]bool{
	"id": true, "class": true, "href": true, "src": true, "alt": true, "title": true,
	"width": true, "height": true, "colspan": true, "rowspan": true, "align": true, "valign": true,
}

var dangerousURLScheme = regexp.MustCompile(`(?i)^\s*(javascript|vbscript|data):`)

var tagPattern = regexp.MustCompile(`(?is)</?([a-zA-Z][a-zA-Z0-9]*)((?:\s+[a-zA-Z][a-zA-Z0-9-]*(?:\s*=\s*(?:"[^"]*"|'[^']*'|[^\s>]+))?)*)\s*/?>`)
var attrPattern = regexp.MustCompile(`(?i)([a-zA-Z][a-zA-Z0-9-]*)\s*=\s*(?:"([^"]*)"|'([^']*)'|([^\s>]+))`)

// SanitizeHTML keeps a whitelist of inert tags with a narrow attribute
// whitelist, escaping everything else, and dropping href/src attributes
// with a dangerous URL scheme as well as event-handler attributes (§4.8).
func SanitizeHTML(text string) string {
	var out strings.Builder
	last := 0
	for _, m := range tagPattern.FindAllStringSubmatchIndex(text, -1) {
		out.WriteString(escapeHTMLText(text[last:m[0]]))
		last = m[1]

		full := text[m[0]:m[1]]
		name := strings.ToLower(text[m[2]:m[3]])
		closing := strings.HasPrefix(full, "</")
		if !inertTags[name] {
			out.WriteString(escapeHTMLText(full))
			continue
		}
		if closing {
			out.WriteString("</" + name + ">")
			continue
		}
		attrsRaw := ""
		if m[4] >= 0 {
			attrsRaw = text[m[4]:m[5]]
		}
		rendered, ok := renderInertOpenTag(name, attrsRaw, strings.HasSuffix(strings.TrimSpace(full), "/>"))
		if !ok {
			out.WriteString(escapeHTMLText(full))
			continue
		}
		out.WriteString(rendered)
	}
	out.WriteString(escapeHTMLText(text[last:]))
	return out.String()
}

func renderInertOpenTag(name, attrsRaw string, selfClose bool) (string, bool) {
	var kept strings.Builder
	for _, am := range attrPattern.FindAllStringSubmatch(attrsRaw, -1) {
		attrName := strings.ToLower(am[1])
		if !attrWhitelist[attrName] {
			continue
		}
		if strings.HasPrefix(attrName, "on") {
			continue
		}
		val := am[2]
		if val == "" {
			val = am[3]
		}
		if val == "" {
			val = am[4]
		}
		if (attrName == "href" || attrName == "src") && dangerousURLScheme.MatchString(val) {
			continue
		}
		kept.WriteString(" " + attrName + `="` + escapeHTMLAttr(val) + `"`)
	}
	tag := "<" + name + kept.String()
	if selfClose {
		tag += " /"
	}
	tag += ">"
	return tag, true
}

func escapeHTMLText(s string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	return r.Replace(s)
}

func escapeHTMLAttr(s string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;")
	return r.Replace(s)
}

var ansiCSI = regexp.MustCompile("\x1b\\[[0-9;]*[a-zA-Z]")

var markdownSignificant = strings.NewReplacer(
	"*", "\\*", "_", "\\_", "`", "\\`", "[", "\\[", "]", "\\]",
	"(", "\\(", ")", "\\)", "#", "\\#", "!", "\\!",
)

const commandOutputLimit = 10240
const truncationMarker = "\n[...truncated]"

// SanitizeCommandOutput strips ANSI CSI sequences, escapes
// markdown-significant characters and HTML entities, and truncates to
// 10,240 bytes (§4.8).
func SanitizeCommandOutput(text string) string {
	stripped := ansiCSI.ReplaceAllString(text, "")
	escaped := markdownSignificant.Replace(stripped)
	escaped = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;").Replace(escaped)
	if len(escaped) <= commandOutputLimit {
		return escaped
	}
	cut := commandOutputLimit - len(truncationMarker)
	if cut < 0 {
		cut = 0
	}
	// avoid splitting a multi-byte rune at the cut point
	for cut > 0 && !validRuneStart(escaped, cut) {
		cut--
	}
	return escaped[:cut] + truncationMarker
}

func validRuneStart(s string, i int) bool {
	if i >= len(s) {
		return true
	}
	return !isUTF8Continuation(s[i])
}

func isUTF8Continuation(b byte) bool { return b&0xC0 == 0x80 }
