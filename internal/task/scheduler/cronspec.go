package scheduler

import (
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"
)

// cronParser accepts 5 or 6 fields (optional leading seconds) and descriptors
// such as "@daily". Shared by planning and arming so both agree on validity.
var cronParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// CronSpec binds expr to tz with a CRON_TZ prefix. An expression that already
// names its own zone is returned unchanged.
func CronSpec(expr, tz string) string {
	s := strings.Join(strings.Fields(expr), " ")
	if s == "" {
		return ""
	}
	if strings.HasPrefix(s, "CRON_TZ=") || strings.HasPrefix(s, "TZ=") {
		return s
	}
	tz = strings.TrimSpace(tz)
	if tz == "" {
		return s
	}
	return "CRON_TZ=" + tz + " " + s
}

// ParseCron validates expr in tz and returns its schedule.
func ParseCron(expr, tz string) (cron.Schedule, error) {
	spec := CronSpec(expr, tz)
	if spec == "" {
		return nil, fmt.Errorf("cron expression required")
	}
	sched, err := cronParser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid cron %q: %w", expr, err)
	}
	return sched, nil
}
