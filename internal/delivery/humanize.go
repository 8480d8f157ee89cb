package delivery

import (
	"strconv"
	"strings"
	"time"
)

// Humanize renders d as non-zero day/hour/minute/second components, most
// significant first ("1d 4h 30m"). Sub-second remainders are dropped and a
// zero result is "instant".
func Humanize(d time.Duration) string {
	if d < 0 {
		d = -d
	}
	secs := int64(d / time.Second)
	units := []struct {
		size   int64
		suffix string
	}{
		{86400, "d"},
		{3600, "h"},
		{60, "m"},
		{1, "s"},
	}
	parts := make([]string, 0, len(units))
	for _, u := range units {
		if n := secs / u.size; n > 0 {
			parts = append(parts, strconv.FormatInt(n, 10)+u.suffix)
			secs -= n * u.size
		}
	}
	if len(parts) == 0 {
		return "instant"
	}
	return strings.Join(parts, " ")
}

// TimeLeftSuffix is appended to event reminder text.
func TimeLeftSuffix(left time.Duration) string {
	if left <= 0 {
		return " (starts now)"
	}
	return " (happens in " + Humanize(left) + ")"
}
