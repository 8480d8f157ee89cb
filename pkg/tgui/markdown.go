package tgui

import (
	"regexp"
	"strings"
)

const (
	markdownV2Reserved = "_*[]()~`>#+-=|{}.!\\"
	markdownReserved   = "_*[`"
)

var htmlEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

func escapeSet(s, set string) string {
	if s == "" {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + len(s)/8)
	for _, r := range s {
		if strings.ContainsRune(set, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// EscapeMarkdownV2 escapes every character Telegram reserves in MarkdownV2.
func EscapeMarkdownV2(s string) string { return escapeSet(s, markdownV2Reserved) }

// EscapeMarkdown escapes text for the legacy Markdown parse mode.
func EscapeMarkdown(s string) string { return escapeSet(s, markdownReserved) }

// EscapeLinkTarget escapes the inside of a MarkdownV2 (...) link target,
// where only ')' and '\' are special.
func EscapeLinkTarget(s string) string { return escapeSet(s, `)\`) }

// inlineLink matches [label](scheme:target) written by the user.
var inlineLink = regexp.MustCompile(`\[([^\[\]\n]+)\]\(([A-Za-z][A-Za-z0-9+.\-]*:[^\s)]+)\)`)

// EscapeMarkdownV2Text escapes s for MarkdownV2 but keeps inline links
// working: labels get the full escape, targets only EscapeLinkTarget.
func EscapeMarkdownV2Text(s string) string {
	locs := inlineLink.FindAllStringSubmatchIndex(s, -1)
	if len(locs) == 0 {
		return EscapeMarkdownV2(s)
	}
	var b strings.Builder
	last := 0
	for _, m := range locs {
		b.WriteString(EscapeMarkdownV2(s[last:m[0]]))
		b.WriteByte('[')
		b.WriteString(EscapeMarkdownV2(s[m[2]:m[3]]))
		b.WriteString("](")
		b.WriteString(EscapeLinkTarget(s[m[4]:m[5]]))
		b.WriteByte(')')
		last = m[1]
	}
	b.WriteString(EscapeMarkdownV2(s[last:]))
	return b.String()
}

// EscapeFor escapes s for the given parse mode. Unknown and empty modes
// return s unchanged.
func EscapeFor(mode, s string) string {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "markdownv2":
		return EscapeMarkdownV2Text(s)
	case "markdown":
		return EscapeMarkdown(s)
	case "html":
		return htmlEscaper.Replace(s)
	default:
		return s
	}
}
