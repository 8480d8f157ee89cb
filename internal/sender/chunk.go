package sender

import "strings"

// DefaultChunkSize leaves headroom below Telegram's 4096 limit for escaping.
const DefaultChunkSize = 3500

// splitText splits s into chunks of at most limit runes. It prefers newline
// boundaries, never separates an escape backslash from the character it
// escapes and (best-effort) avoids splitting inside HTML tags or entities.
func splitText(s string, limit int, parseMode string) []string {
	if limit <= 0 {
		limit = DefaultChunkSize
	}
	rs := []rune(s)
	if len(rs) <= limit {
		return []string{s}
	}
	isHTML := strings.EqualFold(parseMode, "HTML")

	out := make([]string, 0, (len(rs)+limit-1)/limit)
	start := 0
	for start < len(rs) {
		end := min(start+limit, len(rs))

		// Prefer splitting on a newline near the end of the window.
		if end < len(rs) {
			for i := end - 1; i > start; i-- {
				if rs[i] == '\n' && i-start >= limit/3 {
					end = i + 1
					break
				}
			}
		}

		if isHTML && end < len(rs) {
			if cut := danglingHTML(rs[start:end]); cut > 1 {
				end = start + cut
			}
		}

		// An escape backslash must stay with the escaped rune.
		if end < len(rs) && end-start > 1 && rs[end-1] == '\\' && !escapedBackslash(rs[start:end]) {
			end--
		}

		out = append(out, strings.TrimRight(string(rs[start:end]), "\n"))

		start = end
		for start < len(rs) && rs[start] == '\n' {
			start++
		}
	}
	return out
}

// escapedBackslash reports whether the trailing backslash of w is itself
// escaped (preceded by an odd run of backslashes).
func escapedBackslash(w []rune) bool {
	n := 0
	for i := len(w) - 1; i >= 0 && w[i] == '\\'; i-- {
		n++
	}
	return n%2 == 0
}

// danglingHTML returns the index of an unterminated '<' tag or '&' entity in
// w, or -1.
func danglingHTML(w []rune) int {
	lastOpen, lastClose := -1, -1
	lastAmp, lastSemi := -1, -1
	for i, r := range w {
		switch r {
		case '<':
			lastOpen = i
		case '>':
			lastClose = i
		case '&':
			lastAmp = i
		case ';':
			lastSemi = i
		}
	}
	if lastOpen > lastClose {
		return lastOpen
	}
	if lastAmp > lastSemi && len(w)-lastAmp <= 10 {
		return lastAmp
	}
	return -1
}
