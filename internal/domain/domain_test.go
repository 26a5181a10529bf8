package domain

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
	_ "time/tzdata"
)

func TestParseTimeOfDay(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in      string
		want    TimeOfDay
		wantErr bool
	}{
		{in: "09:00", want: TimeOfDay{9, 0}},
		{in: "9:05", want: TimeOfDay{9, 5}},
		{in: " 23:59 ", want: TimeOfDay{23, 59}},
		{in: "24:00", wantErr: true},
		{in: "12:60", wantErr: true},
		{in: "12", wantErr: true},
		{in: "ab:cd", wantErr: true},
		{in: "12:5", wantErr: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, err := ParseTimeOfDay(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidTimeOfDay) {
					t.Fatalf("ParseTimeOfDay(%q) err = %v, want ErrInvalidTimeOfDay", tt.in, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseTimeOfDay(%q) unexpected err: %v", tt.in, err)
			}
			if got != tt.want {
				t.Fatalf("ParseTimeOfDay(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestScheduleRuleJSON(t *testing.T) {
	anchor := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	in := ScheduleRule{
		ID:         "s1",
		Kind:       KindWeekly,
		TimeOfDay:  &TimeOfDay{Hour: 7, Minute: 30},
		DaysOfWeek: []int{1, 3},
		Anchor:     &anchor,
		Priority:   2,
		Active:     true,
	}
	b, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var raw map[string]any
	_ = json.Unmarshal(b, &raw)
	if raw["time"] != "07:30" {
		t.Fatalf("time = %v, want 07:30", raw["time"])
	}
	if raw["type"] != "weekly" {
		t.Fatalf("type = %v, want weekly", raw["type"])
	}
}

func TestReminderCloneIsDeep(t *testing.T) {
	now := time.Now()
	r := Reminder{
		ID:         "r1",
		Schedules:  []ScheduleRule{{ID: "a", TimeOfDay: &TimeOfDay{9, 0}, DaysOfWeek: []int{1}}},
		NextFireAt: &now,
	}
	cp := r.Clone()
	cp.Schedules[0].TimeOfDay.Hour = 10
	cp.Schedules[0].DaysOfWeek[0] = 5
	*cp.NextFireAt = now.Add(time.Hour)

	if r.Schedules[0].TimeOfDay.Hour != 9 || r.Schedules[0].DaysOfWeek[0] != 1 {
		t.Fatalf("clone shares schedule state")
	}
	if !r.NextFireAt.Equal(now) {
		t.Fatalf("clone shares NextFireAt")
	}
	if r.ScheduleIndex("a") != 0 || r.ScheduleIndex("zz") != -1 {
		t.Fatalf("ScheduleIndex mismatch")
	}
}

func TestTimeOfDayAtAcrossDaylightSaving(t *testing.T) {
	t.Parallel()
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	tests := []struct {
		name string
		tod  TimeOfDay
		day  time.Time
		want time.Time
	}{
		{
			name: "ordinary day",
			tod:  TimeOfDay{Hour: 9, Minute: 15},
			day:  time.Date(2026, 3, 7, 18, 0, 0, 0, ny),
			want: time.Date(2026, 3, 7, 14, 15, 0, 0, time.UTC),
		},
		{
			name: "skipped wall time moves forward",
			tod:  TimeOfDay{Hour: 2, Minute: 30},
			day:  time.Date(2026, 3, 8, 12, 0, 0, 0, ny),
			want: time.Date(2026, 3, 8, 7, 30, 0, 0, time.UTC),
		},
		{
			name: "repeated wall time takes the first pass",
			tod:  TimeOfDay{Hour: 1, Minute: 30},
			day:  time.Date(2026, 11, 1, 12, 0, 0, 0, ny),
			want: time.Date(2026, 11, 1, 5, 30, 0, 0, time.UTC),
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.tod.At(tt.day); !got.Equal(tt.want) {
				t.Fatalf("At = %v, want %v", got, tt.want.In(ny))
			}
		})
	}
}
