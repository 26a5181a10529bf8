package schedule

import (
	"testing"
	"time"

	"blinkbrain/internal/domain"
)

func TestResolveNext(t *testing.T) {
	t.Parallel()

	// 2024-03-10 is a Sunday; the rules below both land on Monday the 11th.
	ref := time.Date(2024, 3, 10, 20, 0, 0, 0, time.UTC)
	nine := domain.ScheduleRule{ID: "a", Kind: domain.KindWeekly, TimeOfDay: tod(9, 0), DaysOfWeek: []int{1}, Active: true}
	eight := domain.ScheduleRule{ID: "b", Kind: domain.KindWeekly, TimeOfDay: tod(8, 0), DaysOfWeek: []int{1}, Active: true}

	tests := []struct {
		name   string
		rem    domain.Reminder
		want   time.Time
		wantOK bool
	}{
		{
			name:   "earliest active rule wins",
			rem:    domain.Reminder{Schedules: []domain.ScheduleRule{nine, eight}},
			want:   time.Date(2024, 3, 11, 8, 0, 0, 0, time.UTC),
			wantOK: true,
		},
		{
			name: "disabled is none",
			rem:  domain.Reminder{Disabled: true, Schedules: []domain.ScheduleRule{nine, eight}},
		},
		{
			name: "empty is none",
			rem:  domain.Reminder{},
		},
		{
			name: "all inactive is none",
			rem: domain.Reminder{Schedules: []domain.ScheduleRule{
				{Kind: domain.KindDaily, TimeOfDay: tod(9, 0)},
			}},
		},
		{
			name: "inactive earlier rule ignored",
			rem: domain.Reminder{Schedules: []domain.ScheduleRule{
				nine,
				{Kind: domain.KindWeekly, TimeOfDay: tod(8, 0), DaysOfWeek: []int{1}},
			}},
			want:   time.Date(2024, 3, 11, 9, 0, 0, 0, time.UTC),
			wantOK: true,
		},
		{
			name: "misconfigured rules are skipped",
			rem: domain.Reminder{Schedules: []domain.ScheduleRule{
				{Kind: domain.KindDaily, Active: true},
				{Kind: domain.KindOnce, Anchor: ptr(ref.Add(-time.Hour)), Active: true},
				nine,
			}},
			want:   time.Date(2024, 3, 11, 9, 0, 0, 0, time.UTC),
			wantOK: true,
		},
		{
			name: "every rule none",
			rem: domain.Reminder{Schedules: []domain.ScheduleRule{
				{Kind: domain.KindOnce, Anchor: ptr(ref.Add(-time.Hour)), Active: true},
			}},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := ResolveNext(tt.rem, ref)
			if ok != tt.wantOK {
				t.Fatalf("ResolveNext ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && !got.Equal(tt.want) {
				t.Fatalf("ResolveNext = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPrioritySchedule(t *testing.T) {
	t.Parallel()
	rem := domain.Reminder{Schedules: []domain.ScheduleRule{
		{ID: "low", Priority: 1, Active: true},
		{ID: "inactive", Priority: 9},
		{ID: "high1", Priority: 5, Active: true},
		{ID: "high2", Priority: 5, Active: true},
	}}
	got, ok := PrioritySchedule(rem)
	if !ok || got.ID != "high1" {
		t.Fatalf("PrioritySchedule = %q/%v, want high1", got.ID, ok)
	}

	rem.Disabled = true
	if _, ok := PrioritySchedule(rem); ok {
		t.Fatalf("PrioritySchedule on disabled reminder returned a rule")
	}
	if _, ok := PrioritySchedule(domain.Reminder{}); ok {
		t.Fatalf("PrioritySchedule on empty reminder returned a rule")
	}
}

func TestShouldTrigger(t *testing.T) {
	t.Parallel()
	fire := time.Date(2024, 3, 12, 9, 0, 0, 0, time.UTC)
	rem := domain.Reminder{NextFireAt: &fire}

	tests := []struct {
		now  time.Time
		want bool
	}{
		{fire.Add(-time.Second), false},
		{fire, true},
		{fire.Add(59 * time.Second), true},
		{fire.Add(time.Minute), false},
	}
	for _, tt := range tests {
		if got := ShouldTrigger(rem, tt.now); got != tt.want {
			t.Fatalf("ShouldTrigger(%v) = %v, want %v", tt.now, got, tt.want)
		}
	}
	if ShouldTrigger(domain.Reminder{}, fire) {
		t.Fatalf("ShouldTrigger without NextFireAt = true")
	}
}
