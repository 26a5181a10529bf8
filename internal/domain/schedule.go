package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Kind names a recurrence pattern.
type Kind string

const (
	KindOnce         Kind = "once"
	KindDaily        Kind = "daily"
	KindHourly       Kind = "hourly"
	KindSpecificTime Kind = "specific-time"
	KindWeekly       Kind = "weekly"
	KindAlternateDay Kind = "alternate-day"
)

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindOnce, KindDaily, KindHourly, KindSpecificTime, KindWeekly, KindAlternateDay:
		return true
	}
	return false
}

var ErrInvalidTimeOfDay = errors.New("invalid time of day")

// TimeOfDay is a wall-clock hour and minute. It marshals as "HH:MM".
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay accepts "H:MM" or "HH:MM" in 24h form.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	s = strings.TrimSpace(s)
	hh, mm, ok := strings.Cut(s, ":")
	if !ok || len(mm) != 2 || len(hh) == 0 || len(hh) > 2 {
		return TimeOfDay{}, fmt.Errorf("%w: %q", ErrInvalidTimeOfDay, s)
	}
	h, err1 := strconv.Atoi(hh)
	m, err2 := strconv.Atoi(mm)
	if err1 != nil || err2 != nil || h < 0 || h > 23 || m < 0 || m > 59 {
		return TimeOfDay{}, fmt.Errorf("%w: %q", ErrInvalidTimeOfDay, s)
	}
	return TimeOfDay{Hour: h, Minute: m}, nil
}

// At returns the instant of this time of day on the calendar date of day, in
// day's location. A wall time skipped by a daylight-saving jump moves
// forward by the length of the jump (02:30 becomes 03:30). A repeated wall
// time resolves to its first occurrence.
func (t TimeOfDay) At(day time.Time) time.Time {
	y, mo, d := day.Date()
	loc := day.Location()
	at := time.Date(y, mo, d, t.Hour, t.Minute, 0, 0, loc)
	if ay, amo, ad := at.Date(); ay == y && amo == mo && ad == d && at.Hour() == t.Hour && at.Minute() == t.Minute {
		return at
	}
	// Skipped: read the wall time with the offset in force before the jump.
	_, before := at.Add(-12 * time.Hour).Zone()
	wall := time.Date(y, mo, d, t.Hour, t.Minute, 0, 0, time.UTC)
	return wall.Add(-time.Duration(before) * time.Second).In(loc)
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

func (t TimeOfDay) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *TimeOfDay) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	v, err := ParseTimeOfDay(s)
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// ScheduleRule is one recurrence rule of a reminder. Fields that do not apply
// to Kind are ignored.
type ScheduleRule struct {
	ID            string     `json:"id"`
	Kind          Kind       `json:"type"`
	TimeOfDay     *TimeOfDay `json:"time,omitempty"`
	IntervalHours int        `json:"intervalHours,omitempty"`
	// DaysOfWeek uses 0 for Sunday through 6 for Saturday.
	DaysOfWeek []int      `json:"daysOfWeek,omitempty"`
	Anchor     *time.Time `json:"specificDate,omitempty"`
	Priority   int        `json:"priority"`
	Active     bool       `json:"isActive"`
}

// Clone returns a deep copy.
func (r ScheduleRule) Clone() ScheduleRule {
	cp := r
	if r.TimeOfDay != nil {
		tod := *r.TimeOfDay
		cp.TimeOfDay = &tod
	}
	if r.Anchor != nil {
		a := *r.Anchor
		cp.Anchor = &a
	}
	if r.DaysOfWeek != nil {
		cp.DaysOfWeek = append([]int(nil), r.DaysOfWeek...)
	}
	return cp
}
