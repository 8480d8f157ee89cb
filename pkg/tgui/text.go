package tgui

import "strings"

const ellipsis = "…"

// TruncRunes keeps the first n runes of s and appends "…" when anything was
// dropped.
func TruncRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	seen := 0
	for i := range s {
		if seen == n {
			return s[:i] + ellipsis
		}
		seen++
	}
	return s
}

// Preview flattens whitespace runs, newlines included, to single spaces and
// truncates the result to n runes. It suits one-line listings of reminder
// texts.
func Preview(s string, n int) string {
	return TruncRunes(strings.Join(strings.Fields(s), " "), n)
}
