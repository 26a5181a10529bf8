// Package schedule computes reminder fire times from schedule rules.
//
// Everything here is pure: results depend only on the rule, the reminder and
// the reference instant passed in. Wall-clock fields (time of day, weekdays,
// calendar dates) are interpreted in the reference instant's location.
package schedule

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/teambition/rrule-go"

	"blinkbrain/internal/domain"
)

// Standard five-field parser. Specs built here never carry a TZ= prefix, so
// cron keeps the location of the reference passed to Next.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// NextOccurrence returns the first instant strictly after ref at which rule
// fires. ok is false when the rule never fires again or is missing a field
// its kind requires.
func NextOccurrence(rule domain.ScheduleRule, ref time.Time) (next time.Time, ok bool) {
	switch rule.Kind {
	case domain.KindOnce:
		return once(rule, ref)
	case domain.KindHourly:
		return hourly(rule, ref)
	case domain.KindDaily:
		return daily(rule, ref)
	case domain.KindSpecificTime:
		return specificTime(rule, ref)
	case domain.KindWeekly:
		return weekly(rule, ref)
	case domain.KindAlternateDay:
		return alternateDay(rule, ref)
	default:
		return time.Time{}, false
	}
}

func once(rule domain.ScheduleRule, ref time.Time) (time.Time, bool) {
	if rule.Anchor == nil || !rule.Anchor.After(ref) {
		return time.Time{}, false
	}
	return rule.Anchor.In(ref.Location()), true
}

func hourly(rule domain.ScheduleRule, ref time.Time) (time.Time, bool) {
	h := rule.IntervalHours
	if h <= 0 {
		h = 1
	}
	// Truncate in absolute time; rebuilding the hour from wall fields picks
	// the first of two repeated hours and can land before ref.
	top := ref.Add(-time.Duration(ref.Minute())*time.Minute -
		time.Duration(ref.Second())*time.Second -
		time.Duration(ref.Nanosecond()))
	return top.Add(time.Duration(h) * time.Hour), true
}

func daily(rule domain.ScheduleRule, ref time.Time) (time.Time, bool) {
	if rule.TimeOfDay == nil {
		return time.Time{}, false
	}
	return nextOnDates("0 12 * * *", *rule.TimeOfDay, ref)
}

func specificTime(rule domain.ScheduleRule, ref time.Time) (time.Time, bool) {
	if rule.TimeOfDay == nil || rule.Anchor == nil {
		return time.Time{}, false
	}
	at := rule.TimeOfDay.At(rule.Anchor.In(ref.Location()))
	if !at.After(ref) {
		return time.Time{}, false
	}
	return at, true
}

func weekly(rule domain.ScheduleRule, ref time.Time) (time.Time, bool) {
	if rule.TimeOfDay == nil {
		return time.Time{}, false
	}
	days := normalizeWeekdays(rule.DaysOfWeek)
	if len(days) == 0 {
		return time.Time{}, false
	}
	dow := make([]string, len(days))
	for i, d := range days {
		dow[i] = strconv.Itoa(d)
	}
	return nextOnDates("0 12 * * "+strings.Join(dow, ","), *rule.TimeOfDay, ref)
}

// alternateDay fires on every calendar date whose distance in days from the
// anchor date is even, in both directions.
func alternateDay(rule domain.ScheduleRule, ref time.Time) (time.Time, bool) {
	if rule.TimeOfDay == nil || rule.Anchor == nil {
		return time.Time{}, false
	}
	loc := ref.Location()
	anchor := rule.Anchor.In(loc)

	// Start the recurrence on a matching date one or two days before ref's
	// date, so the first few dates always cover today and tomorrow.
	offset := dayNumber(ref) - dayNumber(anchor)
	back := 2
	if offset%2 != 0 {
		back = 1
	}
	y, m, d := ref.Date()
	rr, err := rrule.NewRRule(rrule.ROption{
		Freq:     rrule.DAILY,
		Interval: 2,
		Count:    4,
		Dtstart:  time.Date(y, m, d-back, 12, 0, 0, 0, loc),
	})
	if err != nil {
		return time.Time{}, false
	}
	for _, day := range rr.All() {
		if at := rule.TimeOfDay.At(day.In(loc)); at.After(ref) {
			return at, true
		}
	}
	return time.Time{}, false
}

// nextOnDates walks the dates picked by spec, a cron expression firing at
// noon, and returns the first whose time of day falls after ref. Only the
// date comes from cron: the wall time is composed by TimeOfDay.At, since
// cron skips times that a daylight-saving jump removes.
func nextOnDates(spec string, tod domain.TimeOfDay, ref time.Time) (time.Time, bool) {
	sched, err := cronParser.Parse(spec)
	if err != nil {
		return time.Time{}, false
	}
	y, m, d := ref.Date()
	probe := time.Date(y, m, d, 0, 0, 0, 0, ref.Location())
	for i := 0; i < 9; i++ {
		day := sched.Next(probe)
		if day.IsZero() {
			return time.Time{}, false
		}
		if at := tod.At(day); at.After(ref) {
			return at, true
		}
		probe = day
	}
	return time.Time{}, false
}

// normalizeWeekdays drops out-of-range and duplicate entries and sorts.
func normalizeWeekdays(in []int) []int {
	seen := make(map[int]bool, len(in))
	out := make([]int, 0, len(in))
	for _, d := range in {
		if d < 0 || d > 6 || seen[d] {
			continue
		}
		seen[d] = true
		out = append(out, d)
	}
	sort.Ints(out)
	return out
}

// dayNumber is the count of calendar days since the Unix epoch for t's date
// in t's location. It ignores DST shifts.
func dayNumber(t time.Time) int64 {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Unix() / 86400
}
