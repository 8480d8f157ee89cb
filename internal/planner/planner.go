package planner

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"remindbot/internal/storage"
	"remindbot/internal/task/scheduler"
)

// Namespace prefixes every trigger group owned by reminders.
const Namespace = "reminder"

type Kind string

const (
	KindSingle Kind = "single"
	KindCron   Kind = "cron"
	KindEvent  Kind = "event"
)

var kindOrder = map[Kind]int{KindSingle: 0, KindCron: 1, KindEvent: 2}

// Group returns the scheduler group for a trigger kind.
func (k Kind) Group() string { return Namespace + "." + string(k) }

// Trigger is one planned firing (or recurring series, for cron).
type Trigger struct {
	ReminderID string
	Kind       Kind
	// FireAt is the one-shot instant; for cron it is the next occurrence.
	FireAt   time.Time
	Cron     string
	TimeZone string
	// Offset is relative to the event instant (event triggers only).
	Offset time.Duration
	Poll   bool
}

// Name is unique per reminder and kind: "reminder.single:<id>",
// "reminder.cron:<id>", "reminder.event:<id>:-3600s".
func (t Trigger) Name() string {
	base := t.Kind.Group() + ":" + t.ReminderID
	if t.Kind == KindEvent {
		return base + ":" + FormatOffset(t.Offset)
	}
	return base
}

// TimeLeft is the time remaining until the event when this trigger fires.
func (t Trigger) TimeLeft() time.Duration { return -t.Offset }

// CronSpec is the zone-bound spec handed to the scheduler.
func (t Trigger) CronSpec() string { return scheduler.CronSpec(t.Cron, t.TimeZone) }

type Result struct {
	Triggers []Trigger
	Location *time.Location
	// Warnings holds *ConfigurationError and *ParseError values.
	Warnings []error
}

// Plan computes the triggers for r as of now.
func Plan(r storage.Reminder, fallbackTZ string, now time.Time) Result {
	return PlanTagged(r, fallbackTZ, now, "")
}

// PlanTagged is Plan with a scheduling tag; a tag containing "poll" turns the
// poll flag on as if the offsets had listed it.
func PlanTagged(r storage.Reminder, fallbackTZ string, now time.Time, tag string) Result {
	var res Result

	loc, err := ResolveLocation(r.TimeZone, fallbackTZ)
	if err != nil {
		res.Warnings = append(res.Warnings, err)
	}
	res.Location = loc
	tz := loc.String()

	if raw := strings.TrimSpace(r.RunAt); raw != "" {
		pr := ParseDateTime(raw, loc)
		switch {
		case !pr.OK:
			res.Warnings = append(res.Warnings, &ParseError{Field: "run_at", Value: raw})
		case pr.Time.After(now):
			res.Triggers = append(res.Triggers, Trigger{ReminderID: r.ID, Kind: KindSingle, FireAt: pr.Time, TimeZone: tz})
		}
	}

	if raw := strings.TrimSpace(r.Cron); raw != "" {
		sched, err := scheduler.ParseCron(raw, tz)
		if err != nil {
			res.Warnings = append(res.Warnings, &ParseError{Field: "cron", Value: raw, Err: err})
		} else {
			res.Triggers = append(res.Triggers, Trigger{ReminderID: r.ID, Kind: KindCron, Cron: raw, TimeZone: tz, FireAt: sched.Next(now)})
		}
	}

	if raw := strings.TrimSpace(r.EventAt); raw != "" {
		pr := ParseDateTime(raw, loc)
		if !pr.OK {
			res.Warnings = append(res.Warnings, &ParseError{Field: "event_at", Value: raw})
		} else {
			offs := ParseOffsets(r.RemindOffsets)
			for _, tok := range offs.Skipped {
				res.Warnings = append(res.Warnings, &ParseError{Field: "offset", Value: tok})
			}
			poll := offs.Poll || strings.Contains(strings.ToLower(tag), "poll")
			res.Triggers = append(res.Triggers, eventTriggers(r.ID, pr.Time, tz, offs.Values, poll, now)...)
		}
	}

	sort.SliceStable(res.Triggers, func(i, j int) bool {
		a, b := res.Triggers[i], res.Triggers[j]
		if a.Kind != b.Kind {
			return kindOrder[a.Kind] < kindOrder[b.Kind]
		}
		if !a.FireAt.Equal(b.FireAt) {
			return a.FireAt.Before(b.FireAt)
		}
		return a.Offset < b.Offset
	})
	return res
}

func eventTriggers(id string, eventAt time.Time, tz string, offsets []time.Duration, poll bool, now time.Time) []Trigger {
	seen := make(map[time.Duration]bool, len(offsets))
	var pollOffset time.Duration
	hasPoll := false
	if poll {
		// The negative offset closest to zero, computed over the full list so
		// a past-due reminder does not move the poll to another offset.
		for _, o := range offsets {
			if o < 0 && (!hasPoll || o > pollOffset) {
				pollOffset, hasPoll = o, true
			}
		}
	}

	var out []Trigger
	for _, o := range offsets {
		if seen[o] {
			continue
		}
		seen[o] = true
		at := eventAt.Add(o)
		if !at.After(now) {
			continue
		}
		out = append(out, Trigger{
			ReminderID: id,
			Kind:       KindEvent,
			FireAt:     at,
			TimeZone:   tz,
			Offset:     o,
			Poll:       hasPoll && o == pollOffset,
		})
	}
	return out
}

// Describe renders a trigger for humans, e.g. in CLI output or replies.
func (t Trigger) Describe() string {
	switch t.Kind {
	case KindCron:
		return fmt.Sprintf("cron %q (%s), next %s", t.Cron, t.TimeZone, t.FireAt.Format(time.RFC3339))
	case KindEvent:
		s := fmt.Sprintf("event %s at %s", FormatOffset(t.Offset), t.FireAt.Format(time.RFC3339))
		if t.Poll {
			s += " +poll"
		}
		return s
	default:
		return "once at " + t.FireAt.Format(time.RFC3339)
	}
}
