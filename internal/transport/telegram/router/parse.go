package router

import (
	"math/rand/v2"
	"regexp"
	"strings"
	"sync/atomic"
	"time"
)

var ridSeq atomic.Uint64

func newReqID() string {
	n := ridSeq.Add(1)
	// short-ish: base36 timestamp + seq + 2 random chars
	return base36(time.Now().UnixNano()) + "-" + base36(int64(n)) + randSuffix(2)
}

func randSuffix(n int) string {
	const alpha = "abcdefghijklmnopqrstuvwxyz0123456789"
	var b strings.Builder
	for i := 0; i < n; i++ {
		b.WriteByte(alpha[rand.IntN(len(alpha))])
	}
	return b.String()
}

func base36(v int64) string {
	const chars = "0123456789abcdefghijklmnopqrstuvwxyz"
	if v < 0 {
		v = -v
	}
	if v == 0 {
		return "0"
	}
	var out [32]byte
	i := len(out)
	for v > 0 {
		i--
		out[i] = chars[v%36]
		v /= 36
	}
	return string(out[i:])
}

// splitCommand splits "/cmd@bot rest" into the lower-cased command word, the
// bot mention and the untouched rest (newlines kept for bulk commands).
func splitCommand(text string) (cmd, mention, rest string, ok bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", "", "", false
	}
	head := text
	if i := strings.IndexAny(text, " \t\n\r"); i >= 0 {
		head, rest = text[:i], strings.TrimSpace(text[i+1:])
	}
	head = strings.TrimPrefix(head, "/")
	if i := strings.IndexByte(head, '@'); i >= 0 {
		head, mention = head[:i], head[i+1:]
	}
	if head == "" {
		return "", "", "", false
	}
	return strings.ToLower(head), mention, rest, true
}

var (
	whenDateRe   = regexp.MustCompile(`^(?P<when>\d{4}-\d{2}-\d{2}[ T]+\d{1,2}:\d{2}(?::\d{2})?(?:\s*(?:Z|[+\-]\d{2}:\d{2}))?)\s+(?P<text>.+)$`)
	whenClockRe  = regexp.MustCompile(`^(?P<when>\d{1,2}:\d{2}(?::\d{2})?)\s+(?P<text>.+)$`)
	eventLeftRe  = regexp.MustCompile(`(?i)^(?P<dt>\d{4}-\d{2}-\d{2}[ T]+\d{1,2}:\d{2}(?::\d{2})?(?:\s*(?:Z|[+\-]\d{2}:\d{2}))?)\s*(?P<offs>.*)$`)
	offsetsKeyRe = regexp.MustCompile(`(?i)^offsets\s*=\s*`)
	dashSplitRe  = regexp.MustCompile(`\s-\s`)
)

// splitWhenText splits "/remind" arguments into the time part and the text.
// An explicit " — " or " - " separator wins; otherwise a leading date-time or
// clock is taken, and finally the first word.
func splitWhenText(s string) (when, text string) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", ""
	}
	idx := strings.Index(s, " — ")
	sep := len(" — ")
	if idx < 0 {
		idx, sep = strings.Index(s, " - "), len(" - ")
	}
	if idx > 0 {
		return strings.TrimSpace(s[:idx]), cleanText(s[idx+sep:])
	}
	if m := whenDateRe.FindStringSubmatch(s); m != nil {
		return m[1], cleanText(m[2])
	}
	if m := whenClockRe.FindStringSubmatch(s); m != nil {
		return m[1], cleanText(m[2])
	}
	if sp := strings.IndexByte(s, ' '); sp > 0 {
		return s[:sp], cleanText(s[sp+1:])
	}
	return s, ""
}

func cleanText(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "— ")
	s = strings.TrimPrefix(s, "- ")
	return strings.TrimSpace(s)
}

// splitDash splits "left — text" (em dash) or "left - text".
func splitDash(line string) (left, text string, ok bool) {
	if i := strings.Index(line, "—"); i >= 0 {
		left, text = line[:i], line[i+len("—"):]
	} else if loc := dashSplitRe.FindStringIndex(line); loc != nil {
		left, text = line[:loc[0]], line[loc[1]:]
	} else {
		return strings.TrimSpace(line), "", false
	}
	left, text = strings.TrimSpace(left), strings.TrimSpace(text)
	return left, text, text != ""
}

type eventLine struct {
	EventAt string
	Offsets string
	Poll    bool
	Text    string
}

type lineError struct {
	reason string
}

func (e *lineError) Error() string { return e.reason }

var (
	errNoText     = &lineError{reason: "missing text after —"}
	errBadEventAt = &lineError{reason: "date/time not recognised, expected YYYY-MM-DD HH:mm[:ss][Z|+03:00]"}
)

// parseEventLine parses "<YYYY-MM-DD HH:mm[:ss][zone]> <offsets> — <text>".
func parseEventLine(line string) (eventLine, error) {
	left, text, ok := splitDash(line)
	if !ok {
		return eventLine{}, errNoText
	}
	m := eventLeftRe.FindStringSubmatch(left)
	if m == nil {
		return eventLine{}, errBadEventAt
	}
	offs, poll := normalizeOffsets(m[2])
	return eventLine{EventAt: strings.TrimSpace(m[1]), Offsets: offs, Poll: poll, Text: text}, nil
}

// normalizeOffsets drops an "offsets=" prefix and joins the tokens with
// commas. The "poll" token is reported separately and kept in the list so
// the stored reminder still carries it. Empty input means a single 0.
func normalizeOffsets(s string) (string, bool) {
	s = offsetsKeyRe.ReplaceAllString(strings.TrimSpace(s), "")
	tokens := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ';' || r == ' ' || r == '\t'
	})
	poll := false
	values := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if strings.EqualFold(t, "poll") {
			poll = true
			continue
		}
		values = append(values, t)
	}
	if len(values) == 0 {
		values = append(values, "0")
	}
	if poll {
		values = append(values, "poll")
	}
	return strings.Join(values, ","), poll
}
