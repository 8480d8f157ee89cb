package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"

	"remindbot/internal/storage"
	"remindbot/pkg/tgui"
)

func schedule(r storage.Reminder) string {
	switch {
	case r.Cron != "":
		return "cron " + r.Cron
	case r.EventAt != "":
		return "event " + r.EventAt + " [" + r.RemindOffsets + "]"
	case r.RunAt != "":
		return "once " + r.RunAt
	default:
		return "-"
	}
}

func printReminders(w io.Writer, rs []storage.Reminder, now time.Time) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCHAT\tSCHEDULE\tTZ\tCREATED\tTEXT")
	for _, r := range rs {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\t%s\n",
			r.ID, r.ChatID, schedule(r), r.TimeZone,
			humanize.RelTime(r.CreatedAt, now, "ago", "from now"),
			tgui.Preview(r.Text, 40),
		)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "%d reminder(s)\n", len(rs))
	return err
}
