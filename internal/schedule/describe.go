package schedule

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"blinkbrain/internal/domain"
)

var weekdayShort = [...]string{"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"}

// Describe renders rule as a short label such as "Daily at 09:00".
func Describe(rule domain.ScheduleRule) string {
	tod := "--:--"
	if rule.TimeOfDay != nil {
		tod = rule.TimeOfDay.String()
	}
	switch rule.Kind {
	case domain.KindOnce:
		if rule.Anchor == nil {
			return "Once"
		}
		return "Once on " + rule.Anchor.Format("Jan 2, 2006 15:04")
	case domain.KindHourly:
		h := rule.IntervalHours
		if h <= 1 {
			return "Every hour"
		}
		return fmt.Sprintf("Every %d hours", h)
	case domain.KindDaily:
		return "Daily at " + tod
	case domain.KindSpecificTime:
		if rule.Anchor == nil {
			return "At " + tod
		}
		return "On " + rule.Anchor.Format("Jan 2, 2006") + " at " + tod
	case domain.KindWeekly:
		days := normalizeWeekdays(rule.DaysOfWeek)
		names := make([]string, len(days))
		for i, d := range days {
			names[i] = weekdayShort[d]
		}
		if len(names) == 0 {
			return "Weekly at " + tod
		}
		return "Weekly on " + strings.Join(names, ", ") + " at " + tod
	case domain.KindAlternateDay:
		return "Every other day at " + tod
	default:
		return string(rule.Kind)
	}
}

// Preview summarises when rem fires next relative to now, labelled with its
// priority rule. Example: "in 3 hours (Daily at 09:00)".
func Preview(rem domain.Reminder, now time.Time) string {
	if rem.Disabled {
		return "disabled"
	}
	next, ok := ResolveNext(rem, now)
	if !ok {
		return "not scheduled"
	}
	out := "in " + strings.TrimSuffix(humanize.RelTime(next, now, "ago", ""), " ")
	if rule, ok := PrioritySchedule(rem); ok {
		out += " (" + Describe(rule) + ")"
	}
	return out
}

// FormatCountdown renders a countdown as "1h 5m", "4m 10s" or "9s".
func FormatCountdown(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	h := seconds / 3600
	m := (seconds % 3600) / 60
	s := seconds % 60
	switch {
	case h > 0:
		return fmt.Sprintf("%dh %dm", h, m)
	case m > 0:
		return fmt.Sprintf("%dm %ds", m, s)
	default:
		return fmt.Sprintf("%ds", s)
	}
}
