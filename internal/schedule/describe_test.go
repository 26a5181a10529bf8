package schedule

import (
	"testing"

	"blinkbrain/internal/domain"
)

func TestDescribe(t *testing.T) {
	t.Parallel()
	tests := []struct {
		rule domain.ScheduleRule
		want string
	}{
		{domain.ScheduleRule{Kind: domain.KindDaily, TimeOfDay: tod(9, 5)}, "Daily at 09:05"},
		{domain.ScheduleRule{Kind: domain.KindHourly}, "Every hour"},
		{domain.ScheduleRule{Kind: domain.KindHourly, IntervalHours: 4}, "Every 4 hours"},
		{domain.ScheduleRule{Kind: domain.KindWeekly, TimeOfDay: tod(10, 0), DaysOfWeek: []int{3, 1}}, "Weekly on Mon, Wed at 10:00"},
		{domain.ScheduleRule{Kind: domain.KindAlternateDay, TimeOfDay: tod(7, 0)}, "Every other day at 07:00"},
		{domain.ScheduleRule{Kind: domain.KindSpecificTime, TimeOfDay: tod(7, 0), Anchor: ptr(at(15, 0, 0))}, "On Mar 15, 2024 at 07:00"},
	}
	for _, tt := range tests {
		if got := Describe(tt.rule); got != tt.want {
			t.Fatalf("Describe(%+v) = %q, want %q", tt.rule, got, tt.want)
		}
	}
}

func TestPreview(t *testing.T) {
	t.Parallel()
	now := at(12, 6, 0)
	rem := domain.Reminder{Schedules: []domain.ScheduleRule{
		{Kind: domain.KindDaily, TimeOfDay: tod(9, 0), Active: true, Priority: 1},
	}}
	if got, want := Preview(rem, now), "in 3 hours (Daily at 09:00)"; got != want {
		t.Fatalf("Preview = %q, want %q", got, want)
	}
	rem.Disabled = true
	if got := Preview(rem, now); got != "disabled" {
		t.Fatalf("Preview disabled = %q", got)
	}
	if got := Preview(domain.Reminder{}, now); got != "not scheduled" {
		t.Fatalf("Preview empty = %q", got)
	}
}

func TestFormatCountdown(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   int
		want string
	}{
		{0, "0s"},
		{9, "9s"},
		{60, "1m 0s"},
		{250, "4m 10s"},
		{3900, "1h 5m"},
		{-3, "0s"},
	}
	for _, tt := range tests {
		if got := FormatCountdown(tt.in); got != tt.want {
			t.Fatalf("FormatCountdown(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
