package schedule

import (
	"sort"
	"time"

	"blinkbrain/internal/domain"
)

// TriggerWindow is how long after its fire time a reminder still counts as
// due.
const TriggerWindow = time.Minute

// ResolveNext returns the earliest next occurrence over the active rules of
// rem. Disabled reminders and reminders without a firing rule resolve to
// none.
func ResolveNext(rem domain.Reminder, ref time.Time) (time.Time, bool) {
	if rem.Disabled {
		return time.Time{}, false
	}
	var (
		best  time.Time
		found bool
	)
	for _, rule := range rem.Schedules {
		if !rule.Active {
			continue
		}
		next, ok := NextOccurrence(rule, ref)
		if !ok {
			continue
		}
		if !found || next.Before(best) {
			best, found = next, true
		}
	}
	return best, found
}

// PrioritySchedule returns the active rule with the highest priority; ties
// go to the rule listed first. It is used for display only and has no effect
// on fire times.
func PrioritySchedule(rem domain.Reminder) (domain.ScheduleRule, bool) {
	if rem.Disabled {
		return domain.ScheduleRule{}, false
	}
	active := make([]domain.ScheduleRule, 0, len(rem.Schedules))
	for _, rule := range rem.Schedules {
		if rule.Active {
			active = append(active, rule)
		}
	}
	if len(active) == 0 {
		return domain.ScheduleRule{}, false
	}
	sort.SliceStable(active, func(i, j int) bool { return active[i].Priority > active[j].Priority })
	return active[0], true
}

// ShouldTrigger reports whether now falls in [NextFireAt, NextFireAt+TriggerWindow).
func ShouldTrigger(rem domain.Reminder, now time.Time) bool {
	if rem.NextFireAt == nil {
		return false
	}
	diff := now.Sub(*rem.NextFireAt)
	return diff >= 0 && diff < TriggerWindow
}
