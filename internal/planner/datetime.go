package planner

import (
	"strings"
	"time"
)

// ParseResult is the outcome of ParseDateTime. Absolute is set when the input
// carried its own offset; otherwise the wall clock was placed in the location.
type ParseResult struct {
	Time     time.Time
	Absolute bool
	Layout   string
	OK       bool
}

var absoluteLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04Z07:00",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04Z07:00",
	"2006-01-02 15:04:05 Z07:00",
	"2006-01-02 15:04 Z07:00",
	"2006-01-02T15:04:05Z0700",
	"2006-01-02 15:04:05 Z0700",
	"2006-01-02 15:04 Z0700",
}

var localLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseDateTime tries the absolute layouts first, then the local ones.
//
// Local wall clocks are resolved by time.Date: a time inside a spring-forward
// gap moves forward by the gap length (02:30 becomes 03:30 CEST in Berlin) and
// an ambiguous fall-back time resolves to the standard-time occurrence.
func ParseDateTime(raw string, loc *time.Location) ParseResult {
	s := strings.Join(strings.Fields(raw), " ")
	if s == "" {
		return ParseResult{}
	}
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range absoluteLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return ParseResult{Time: t, Absolute: true, Layout: layout, OK: true}
		}
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return ParseResult{Time: t, Layout: layout, OK: true}
		}
	}
	return ParseResult{}
}

var clockLayouts = []string{"15:04:05", "15:04"}

// ResolveClock interprets "HH:MM[:SS]" as the next occurrence of that wall
// clock in loc: today when still ahead of now, otherwise tomorrow.
func ResolveClock(raw string, loc *time.Location, now time.Time) (time.Time, bool) {
	s := strings.TrimSpace(raw)
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range clockLayouts {
		c, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		local := now.In(loc)
		t := time.Date(local.Year(), local.Month(), local.Day(), c.Hour(), c.Minute(), c.Second(), 0, loc)
		if !t.After(now) {
			t = time.Date(local.Year(), local.Month(), local.Day()+1, c.Hour(), c.Minute(), c.Second(), 0, loc)
		}
		return t, true
	}
	return time.Time{}, false
}

// ResolveLocation loads name, or fallback when name is blank. An unknown zone
// yields UTC and a ConfigurationError.
func ResolveLocation(name, fallback string) (*time.Location, error) {
	tz := strings.TrimSpace(name)
	if tz == "" {
		tz = strings.TrimSpace(fallback)
	}
	if tz == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.UTC, &ConfigurationError{Field: "timezone", Value: tz, Fallback: "UTC", Err: err}
	}
	return loc, nil
}
