package planner

import (
	"reflect"
	"testing"
	"time"
)

func TestParseOffsets(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		in      string
		want    []time.Duration
		poll    bool
		skipped int
	}{
		{name: "empty defaults to zero", in: "", want: []time.Duration{0}},
		{name: "mixed separators", in: "-1d, -2h;0", want: []time.Duration{-24 * time.Hour, -2 * time.Hour, 0}},
		{name: "poll any case", in: "-4h POLL", want: []time.Duration{-4 * time.Hour}, poll: true},
		{name: "only poll", in: "poll", want: []time.Duration{0}, poll: true},
		{name: "default unit minutes", in: "10", want: []time.Duration{10 * time.Minute}},
		{name: "explicit plus", in: "+5s", want: []time.Duration{5 * time.Second}},
		{name: "fraction", in: "1.5h,-.5h", want: []time.Duration{90 * time.Minute, -30 * time.Minute}},
		{name: "long units", in: "2days -3hours 15min 10secs", want: []time.Duration{48 * time.Hour, -3 * time.Hour, 15 * time.Minute, 10 * time.Second}},
		{name: "garbage skipped", in: "x,5x,-,1h", want: []time.Duration{time.Hour}, skipped: 3},
		{name: "all garbage", in: "abc def", want: []time.Duration{0}, skipped: 2},
		{name: "out of range skipped", in: "99999999999d,-99999999999d,1h", want: []time.Duration{time.Hour}, skipped: 2},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := ParseOffsets(tc.in)
			if !reflect.DeepEqual(got.Values, tc.want) {
				t.Fatalf("ParseOffsets(%q).Values=%v want %v", tc.in, got.Values, tc.want)
			}
			if got.Poll != tc.poll {
				t.Fatalf("ParseOffsets(%q).Poll=%v want %v", tc.in, got.Poll, tc.poll)
			}
			if len(got.Skipped) != tc.skipped {
				t.Fatalf("ParseOffsets(%q).Skipped=%v want %d entries", tc.in, got.Skipped, tc.skipped)
			}
		})
	}
}

func TestFormatOffset(t *testing.T) {
	t.Parallel()

	cases := map[time.Duration]string{
		0:                       "0s",
		time.Hour:               "+3600s",
		-90 * time.Second:       "-90s",
		1500 * time.Millisecond: "+1.5s",
	}
	for in, want := range cases {
		if got := FormatOffset(in); got != want {
			t.Fatalf("FormatOffset(%v)=%q want %q", in, got, want)
		}
	}
}
