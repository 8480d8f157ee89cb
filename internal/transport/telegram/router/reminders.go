package router

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"remindbot/internal/planner"
	"remindbot/internal/storage"
	"remindbot/internal/task/scheduler"
	logx "remindbot/pkg/logx"
	"remindbot/pkg/tgui"
)

const (
	maxBulkLines   = 200
	listLimit      = 10
	maxReplyErrors = 10
)

const (
	usageRemind = "/remind <YYYY-MM-DD HH:mm[:ss][Z|+03:00]|HH:mm> — text"
	usageEvent  = "/event <YYYY-MM-DD HH:mm[:ss][Z|+03:00]> <offsets> — text"
	usageEvents = "/events, then one event per line: <YYYY-MM-DD HH:mm[:ss][Z|+03:00]> <offsets> — text"
	usageCron   = "/cron <min hour dom mon dow> — text"
	usageRmRem  = "/rmrem <id|id prefix>"
	usageRmRems = "/rmrems <id> <id> ... (spaces, commas, ; or new lines)"
)

func (r *Router) reminderCommands() []Command {
	return []Command{
		{
			Name:        "remind",
			Description: "Create a one-time reminder",
			Usage:       usageRemind,
			Policy:      Policy{RequiresGroup: true, RequiresAdmin: true},
			Handle:      r.handleRemind,
		},
		{
			Name:        "event",
			Description: "Create an event with advance reminders, e.g. -1d,-4h,poll",
			Usage:       usageEvent,
			Policy:      Policy{RequiresGroup: true},
			Handle:      r.handleEvent,
		},
		{
			Name:        "events",
			Description: "Create events in bulk, one per line",
			Usage:       usageEvents,
			Policy:      Policy{RequiresGroup: true, RequiresAdmin: true},
			Timeout:     2 * time.Minute,
			Handle:      r.handleEvents,
		},
		{
			Name:        "cron",
			Description: "Create a recurring reminder from a cron expression",
			Usage:       usageCron,
			Policy:      Policy{RequiresGroup: true, RequiresAdmin: true},
			Handle:      r.handleCron,
		},
		{
			Name:        "reminders",
			Description: "List your latest reminders in this chat",
			Usage:       "/reminders",
			Policy:      Policy{RequiresGroup: true, RequiresAdmin: true},
			Handle:      r.handleList,
		},
		{
			Name:        "rmrem",
			Description: "Delete a reminder by id or id prefix",
			Usage:       usageRmRem,
			Policy:      Policy{RequiresGroup: true},
			Handle:      r.handleDelete,
		},
		{
			Name:        "rmrems",
			Description: "Delete several reminders by id or id prefix",
			Usage:       usageRmRems,
			Policy:      Policy{RequiresGroup: true},
			Handle:      r.handleBulkDelete,
		},
		{
			Name:        "rmallmine",
			Description: "Delete all your reminders in this chat",
			Usage:       "/rmallmine",
			Policy:      Policy{RequiresGroup: true},
			Handle:      r.handleDeleteAllMine,
		},
	}
}

// userZone returns the caller's timezone name and location. Users without
// settings get the configured default.
func (r *Router) userZone(ctx context.Context, userID int64) (string, *time.Location) {
	tz := r.config().DefaultTimezone
	if us, err := r.deps.Store.GetUserSettings(ctx, userID); err == nil && strings.TrimSpace(us.TimeZone) != "" {
		tz = us.TimeZone
	}
	loc, err := planner.ResolveLocation(tz, "")
	if err != nil {
		return "UTC", loc
	}
	return tz, loc
}

// targetThread is the chat's default topic when set, otherwise the topic the
// command was sent in (nil outside forums).
func (r *Router) targetThread(ctx context.Context, req *Request) *int {
	if cs, err := r.deps.Store.GetChatSettings(ctx, req.Chat.ChatID); err == nil && cs.DefaultThreadID != nil {
		v := *cs.DefaultThreadID
		return &v
	}
	if req.Chat.ThreadID != 0 {
		v := req.Chat.ThreadID
		return &v
	}
	return nil
}

func (r *Router) usage(ctx context.Context, req *Request, usage string, extra ...string) error {
	b := tgui.New().Plain()
	for _, e := range extra {
		b.Line(e)
	}
	b.Line("Usage: " + usage)
	r.reply(ctx, req, b.Build())
	return nil
}

// createAndSchedule stores rem and schedules it. A scheduling failure removes
// the stored row again so the chat never holds a reminder it was told failed.
func (r *Router) createAndSchedule(ctx context.Context, req *Request, rem *storage.Reminder, tag string) error {
	if err := r.deps.Store.CreateReminder(ctx, rem); err != nil {
		r.reply(ctx, req, tgui.New().Plain().Line("creation failed: "+err.Error()).Build())
		return err
	}
	out, err := r.deps.Scheduler.UpsertAndReschedule(ctx, *rem, r.config().DefaultTimezone, tag)
	if err != nil {
		r.discard(ctx, req, rem.ID)
		r.reply(ctx, req, tgui.New().Plain().Line("creation failed: "+err.Error()).Build())
		return err
	}

	b := tgui.New().Title("⏰", "Reminder created").KV("id", rem.ID)
	if out.Dormant() {
		b.Line("0 triggers scheduled (reminder is dormant)")
	} else {
		next := out.Triggers[0]
		for _, t := range out.Triggers[1:] {
			if t.FireAt.Before(next.FireAt) {
				next = t
			}
		}
		loc, _ := planner.ResolveLocation(next.TimeZone, "")
		b.Line(fmt.Sprintf("%d %s scheduled, next %s", out.Scheduled, plural(out.Scheduled, "trigger", "triggers"),
			next.FireAt.In(loc).Format("2006-01-02 15:04:05 -07:00")))
	}
	b.KV("tz", rem.TimeZone)
	for i, w := range out.Warnings {
		if i == 3 {
			break
		}
		b.Line("⚠️ " + w.Error())
	}
	r.reply(ctx, req, b.Build())
	return nil
}

// discard removes a reminder whose scheduling failed: triggers first, then the row.
func (r *Router) discard(ctx context.Context, req *Request, id string) {
	if err := r.deps.Scheduler.DeleteAndUnschedule(ctx, id); err != nil {
		req.Logger.Warn("cleanup after failed scheduling", logx.String("reminder", id), logx.Err(err))
	}
	if _, err := r.deps.Store.DeleteReminder(ctx, id); err != nil {
		req.Logger.Warn("cleanup after failed scheduling", logx.String("reminder", id), logx.Err(err))
	}
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

func (r *Router) handleRemind(ctx context.Context, req *Request) error {
	when, text := splitWhenText(req.Args)
	if when == "" || text == "" {
		return r.usage(ctx, req, usageRemind, "Example: /remind 2025-12-01 21:30 — Congratulate")
	}
	tz, loc := r.userZone(ctx, req.Msg.FromID)
	at, ok := planner.ResolveClock(when, loc, r.deps.Now())
	if !ok {
		pr := planner.ParseDateTime(when, loc)
		if !pr.OK {
			return r.usage(ctx, req, usageRemind, "Could not parse the date/time.")
		}
		at = pr.Time
	}
	rem := &storage.Reminder{
		ChatID:    req.Chat.ChatID,
		ThreadID:  r.targetThread(ctx, req),
		Text:      text,
		RunAt:     at.In(loc).Format(time.RFC3339),
		TimeZone:  tz,
		NoPreview: true,
		CreatedBy: req.Msg.FromID,
	}
	return r.createAndSchedule(ctx, req, rem, "create")
}

func (r *Router) handleEvent(ctx context.Context, req *Request) error {
	if strings.TrimSpace(req.Args) == "" {
		return r.usage(ctx, req, usageEvent, "Example: /event 2025-11-07 19:00 -1d,-4h — Rehearsal")
	}
	ev, err := parseEventLine(req.Args)
	if err != nil {
		return r.usage(ctx, req, usageEvent, err.Error())
	}
	tz, loc := r.userZone(ctx, req.Msg.FromID)
	if !planner.ParseDateTime(ev.EventAt, loc).OK {
		return r.usage(ctx, req, usageEvent, errBadEventAt.Error())
	}
	rem := &storage.Reminder{
		ChatID:        req.Chat.ChatID,
		ThreadID:      r.targetThread(ctx, req),
		Text:          ev.Text,
		EventAt:       ev.EventAt,
		RemindOffsets: ev.Offsets,
		TimeZone:      tz,
		NoPreview:     true,
		CreatedBy:     req.Msg.FromID,
	}
	return r.createAndSchedule(ctx, req, rem, eventTag("event", ev.Poll))
}

func eventTag(base string, poll bool) string {
	if poll {
		return base + "+poll"
	}
	return base
}

func (r *Router) handleEvents(ctx context.Context, req *Request) error {
	body := strings.TrimSpace(req.Args)
	if body == "" {
		return r.usage(ctx, req, usageEvents,
			"Offsets: -1d,-4h,-15m,0,+5m separated by spaces, commas or ;.",
			"Add the word poll among the offsets to turn the last advance reminder into a poll.")
	}
	tz, loc := r.userZone(ctx, req.Msg.FromID)
	thread := r.targetThread(ctx, req)

	lines := strings.Split(strings.ReplaceAll(body, "\r", ""), "\n")
	if len(lines) > maxBulkLines {
		lines = lines[:maxBulkLines]
	}

	var (
		created   int
		scheduled int
		dormant   int
		problems  []string
	)
	for _, raw := range lines {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		ev, err := parseEventLine(line)
		if err == nil && !planner.ParseDateTime(ev.EventAt, loc).OK {
			err = errBadEventAt
		}
		if err != nil {
			problems = append(problems, fmt.Sprintf("⛔ %s: %q", err.Error(), tgui.TruncRunes(line, 60)))
			continue
		}
		rem := storage.Reminder{
			ChatID:        req.Chat.ChatID,
			ThreadID:      thread,
			Text:          ev.Text,
			EventAt:       ev.EventAt,
			RemindOffsets: ev.Offsets,
			TimeZone:      tz,
			NoPreview:     true,
			CreatedBy:     req.Msg.FromID,
		}
		if err := r.deps.Store.CreateReminder(ctx, &rem); err != nil {
			problems = append(problems, "⛔ creation failed: "+err.Error())
			continue
		}
		out, err := r.deps.Scheduler.UpsertAndReschedule(ctx, rem, r.config().DefaultTimezone, eventTag("bulk", ev.Poll))
		if err != nil {
			r.discard(ctx, req, rem.ID)
			problems = append(problems, fmt.Sprintf("⛔ creation failed: %v: %q", err, tgui.TruncRunes(line, 60)))
			continue
		}
		created++
		scheduled++
		if out.Dormant() {
			dormant++
		}
	}

	if created == 0 {
		b := tgui.New().Plain().Line("No valid lines.")
		for i, p := range problems {
			if i == 5 {
				break
			}
			b.Line(p)
		}
		r.reply(ctx, req, b.Build())
		return nil
	}

	b := tgui.New().Plain().Line(fmt.Sprintf("Created: %d. Scheduled: %d. Dormant: %d.", created, scheduled, dormant))
	for i, p := range problems {
		if i == maxReplyErrors {
			b.Line(fmt.Sprintf("… and %d more", len(problems)-maxReplyErrors))
			break
		}
		b.Line(p)
	}
	r.reply(ctx, req, b.Build())
	return nil
}

func (r *Router) handleCron(ctx context.Context, req *Request) error {
	expr, text, ok := splitDash(req.Args)
	if !ok || expr == "" {
		return r.usage(ctx, req, usageCron, "Example: /cron 0 9 * * 1-5 — Standup")
	}
	tz, _ := r.userZone(ctx, req.Msg.FromID)
	if _, err := scheduler.ParseCron(expr, tz); err != nil {
		return r.usage(ctx, req, usageCron, "Bad cron expression: "+err.Error())
	}
	rem := &storage.Reminder{
		ChatID:    req.Chat.ChatID,
		ThreadID:  r.targetThread(ctx, req),
		Text:      text,
		Cron:      expr,
		TimeZone:  tz,
		NoPreview: true,
		CreatedBy: req.Msg.FromID,
	}
	return r.createAndSchedule(ctx, req, rem, "cron")
}

func (r *Router) handleList(ctx context.Context, req *Request) error {
	items, err := r.deps.Store.ListOwned(ctx, req.Chat.ChatID, req.Msg.FromID, listLimit)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		r.reply(ctx, req, tgui.New().Plain().Line("No reminders.").Build())
		return nil
	}
	now := r.deps.Now()
	b := tgui.New().Title("📋", "Latest reminders")
	for _, it := range items {
		line := tgui.Code(it.ID).String() + " " + tgui.Esc(tgui.Preview(it.Text, 80)).String()
		if d := describeSchedule(it); d != "" {
			line += " " + tgui.I("("+d+")").String()
		}
		line += " · updated " + humanize.RelTime(it.UpdatedAt, now, "ago", "from now")
		b.RawLine(line)
	}
	r.reply(ctx, req, b.Build())
	return nil
}

func describeSchedule(r storage.Reminder) string {
	var parts []string
	if s := strings.TrimSpace(r.RunAt); s != "" {
		parts = append(parts, "at "+s)
	}
	if s := strings.TrimSpace(r.Cron); s != "" {
		parts = append(parts, "cron "+s)
	}
	if s := strings.TrimSpace(r.EventAt); s != "" {
		ev := "event " + s
		if o := strings.TrimSpace(r.RemindOffsets); o != "" {
			ev += " (offsets " + o + ")"
		}
		parts = append(parts, ev)
	}
	return strings.Join(parts, "; ")
}

// remove unschedules id and then deletes its row. When unscheduling fails the
// row stays so the reminder remains visible and can be deleted again.
func (r *Router) remove(ctx context.Context, id string) error {
	if err := r.deps.Scheduler.DeleteAndUnschedule(ctx, id); err != nil {
		return fmt.Errorf("unschedule: %w", err)
	}
	if _, err := r.deps.Store.DeleteReminder(ctx, id); err != nil {
		return err
	}
	return nil
}

func (r *Router) handleDelete(ctx context.Context, req *Request) error {
	key := strings.TrimSpace(req.Args)
	if key == "" {
		return r.usage(ctx, req, usageRmRem)
	}
	rem, err := r.deps.Store.FindOwned(ctx, req.Chat.ChatID, req.Msg.FromID, key)
	if errors.Is(err, storage.ErrNotFound) {
		r.reply(ctx, req, tgui.New().Plain().Line("Not found.").Build())
		return nil
	}
	if err != nil {
		return err
	}
	if err := r.remove(ctx, rem.ID); err != nil {
		r.reply(ctx, req, tgui.New().Plain().Line("delete failed: "+err.Error()).Build())
		return err
	}
	r.reply(ctx, req, tgui.New().RawLine("Deleted "+tgui.Code(rem.ID).String()).Build())
	return nil
}

func (r *Router) handleDeleteAllMine(ctx context.Context, req *Request) error {
	ids, err := r.deps.Store.OwnedIDs(ctx, req.Chat.ChatID, req.Msg.FromID)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		r.reply(ctx, req, tgui.New().Plain().Line("You have no reminders in this chat.").Build())
		return nil
	}
	deleted, failed := r.removeAll(ctx, req, ids)
	b := tgui.New().Plain().Line("Deleted your reminders: " + strconv.Itoa(deleted))
	if len(failed) > 0 {
		b.Line(fmt.Sprintf("Failed: %d (%s)", len(failed), strings.Join(firstN(failed, maxReplyErrors), ", ")))
	}
	r.reply(ctx, req, b.Build())
	return nil
}

func (r *Router) removeAll(ctx context.Context, req *Request, ids []string) (int, []string) {
	var (
		deleted int
		failed  []string
	)
	for _, id := range ids {
		if err := r.remove(ctx, id); err != nil {
			req.Logger.Warn("delete failed", logx.String("reminder", id), logx.Err(err))
			failed = append(failed, id)
			continue
		}
		deleted++
	}
	return deleted, failed
}

// splitIDTokens splits on whitespace, commas and semicolons, dropping
// case-insensitive duplicates.
func splitIDTokens(s string, limit int) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ';' || r == ' ' || r == '\t' || r == '\n' || r == '\r'
	})
	seen := make(map[string]bool, len(fields))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		k := strings.ToLower(f)
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, f)
		if len(out) == limit {
			break
		}
	}
	return out
}

func (r *Router) handleBulkDelete(ctx context.Context, req *Request) error {
	tokens := splitIDTokens(req.Args, maxBulkLines)
	if len(tokens) == 0 {
		return r.usage(ctx, req, usageRmRems)
	}
	var (
		ids      []string
		notFound []string
	)
	seen := map[string]bool{}
	for _, tok := range tokens {
		rem, err := r.deps.Store.FindOwned(ctx, req.Chat.ChatID, req.Msg.FromID, tok)
		if errors.Is(err, storage.ErrNotFound) {
			notFound = append(notFound, tok)
			continue
		}
		if err != nil {
			return err
		}
		if !seen[rem.ID] {
			seen[rem.ID] = true
			ids = append(ids, rem.ID)
		}
	}
	if len(ids) == 0 {
		b := tgui.New().Plain().Line("Nothing deleted.")
		if len(notFound) > 0 {
			b.Line("Not found: " + strings.Join(firstN(notFound, maxReplyErrors), ", "))
		}
		r.reply(ctx, req, b.Build())
		return nil
	}
	deleted, failed := r.removeAll(ctx, req, ids)
	b := tgui.New().Plain().Line(fmt.Sprintf("Deleted: %d; not found: %d", deleted, len(notFound)))
	if len(notFound) > 0 {
		b.Line("Not found: " + strings.Join(firstN(notFound, maxReplyErrors), ", "))
	}
	if len(failed) > 0 {
		b.Line(fmt.Sprintf("Failed: %d (%s)", len(failed), strings.Join(firstN(failed, maxReplyErrors), ", ")))
	}
	r.reply(ctx, req, b.Build())
	return nil
}

func firstN(s []string, n int) []string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
