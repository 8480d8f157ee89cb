package planner

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// Offsets is a parsed offsets list, e.g. "-1d,-2h,0,poll".
type Offsets struct {
	Values []time.Duration
	Poll   bool
	// Skipped holds tokens that could not be parsed.
	Skipped []string
}

var offsetUnits = map[string]time.Duration{
	"":        time.Minute,
	"s":       time.Second,
	"sec":     time.Second,
	"secs":    time.Second,
	"second":  time.Second,
	"seconds": time.Second,
	"m":       time.Minute,
	"min":     time.Minute,
	"mins":    time.Minute,
	"minute":  time.Minute,
	"minutes": time.Minute,
	"h":       time.Hour,
	"hr":      time.Hour,
	"hrs":     time.Hour,
	"hour":    time.Hour,
	"hours":   time.Hour,
	"d":       24 * time.Hour,
	"day":     24 * time.Hour,
	"days":    24 * time.Hour,
}

// ParseOffsets splits s on commas, semicolons and whitespace. Each token is
// [sign]number[unit] with the unit defaulting to minutes and the sign to '+'.
// The token "poll" (any case) sets Poll. Unparseable tokens are skipped. An
// empty result is a single zero offset.
func ParseOffsets(s string) Offsets {
	var out Offsets
	tokens := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ';' || r == ' ' || r == '\t' || r == '\n' || r == '\r'
	})
	for _, tok := range tokens {
		if strings.EqualFold(tok, "poll") {
			out.Poll = true
			continue
		}
		d, ok := parseOffsetToken(tok)
		if !ok {
			out.Skipped = append(out.Skipped, tok)
			continue
		}
		out.Values = append(out.Values, d)
	}
	if len(out.Values) == 0 {
		out.Values = []time.Duration{0}
	}
	return out
}

func parseOffsetToken(tok string) (time.Duration, bool) {
	t := strings.ToLower(strings.TrimSpace(tok))
	if t == "" {
		return 0, false
	}
	sign := 1.0
	switch t[0] {
	case '-':
		sign = -1
		t = t[1:]
	case '+':
		t = t[1:]
	}
	i := 0
	for i < len(t) && (t[i] == '.' || (t[i] >= '0' && t[i] <= '9')) {
		i++
	}
	num, unit := t[:i], t[i:]
	if num == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, false
	}
	mult, ok := offsetUnits[unit]
	if !ok {
		return 0, false
	}
	f := sign * v * float64(mult)
	// Beyond ±292 years the conversion wraps.
	if f >= math.MaxInt64 || f <= math.MinInt64 {
		return 0, false
	}
	return time.Duration(f), true
}

// FormatOffset renders d as signed whole or fractional seconds: "+3600s",
// "-90s", "0s".
func FormatOffset(d time.Duration) string {
	if d == 0 {
		return "0s"
	}
	secs := strconv.FormatFloat(d.Seconds(), 'f', -1, 64)
	if d > 0 {
		return "+" + secs + "s"
	}
	return secs + "s"
}
