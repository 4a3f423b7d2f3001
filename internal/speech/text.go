package speech

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	urlPattern          = regexp.MustCompile(`https?://\S+`)
	fencedCodePattern   = regexp.MustCompile("(?s)```.*?```")
	inlineCodePattern   = regexp.MustCompile("`([^`]*)`")
	markdownLinkPattern = regexp.MustCompile(`\[(.*?)\]\((.*?)\)`)
	headerPattern       = regexp.MustCompile(`(?m)^[ \t]*#{1,6}[ \t]*`)
	bulletPattern       = regexp.MustCompile(`(?m)^[ \t]*(?:[-*+]|\d+[.)])[ \t]+`)
)

// StripMarkup turns model or parser text into something a synthesizer
// reads naturally: emphasis and header markers go, links keep their
// label, line breaks become sentence breaks, emoji are dropped.
func StripMarkup(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	raw = fencedCodePattern.ReplaceAllString(raw, " ")
	raw = inlineCodePattern.ReplaceAllString(raw, "$1")
	raw = markdownLinkPattern.ReplaceAllString(raw, "$1")
	raw = urlPattern.ReplaceAllString(raw, " ")
	raw = headerPattern.ReplaceAllString(raw, "")
	raw = bulletPattern.ReplaceAllString(raw, "")
	raw = strings.NewReplacer("**", "", "__", "", "*", "", "#", "", "|", " ", "~", " ").Replace(raw)

	lines := strings.FieldsFunc(raw, func(r rune) bool { return r == '\n' || r == '\r' })
	var joined strings.Builder
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if joined.Len() > 0 {
			if endsSentence(joined.String()) {
				joined.WriteByte(' ')
			} else {
				joined.WriteString(". ")
			}
		}
		joined.WriteString(line)
	}

	var b strings.Builder
	b.Grow(joined.Len())
	prevSpace := true
	for _, r := range joined.String() {
		switch {
		case r == '\u200d' || r == '\ufe0f' || r == '\u20e3':
			continue
		case unicode.IsSpace(r):
			if !prevSpace {
				b.WriteByte(' ')
				prevSpace = true
			}
		case unicode.IsControl(r):
			continue
		case unicode.In(r, unicode.So, unicode.Sk, unicode.Cs, unicode.Co):
			continue
		default:
			b.WriteRune(r)
			prevSpace = false
		}
	}
	return strings.TrimSpace(b.String())
}

func endsSentence(s string) bool {
	s = strings.TrimRight(s, " ")
	if s == "" {
		return true
	}
	switch s[len(s)-1] {
	case '.', '!', '?', ':', ';', ',':
		return true
	default:
		return false
	}
}
