package domain

import "time"

// Reminder binds schedule rules to a note. NextFireAt and NotificationHandle
// are derived by the reminders repository and never set by callers.
type Reminder struct {
	ID               string         `json:"id"`
	NoteID           string         `json:"noteId"`
	Schedules        []ScheduleRule `json:"schedules"`
	CountdownSeconds int            `json:"countdownSeconds"`
	Disabled         bool           `json:"isDisabled"`
	LastTriggeredAt  *time.Time     `json:"lastTriggered,omitempty"`
	NextFireAt       *time.Time     `json:"nextScheduled,omitempty"`
	// NotificationHandle is the dispatcher token of the pending notification.
	NotificationHandle string    `json:"notificationId,omitempty"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

// Clone returns a deep copy.
func (r Reminder) Clone() Reminder {
	cp := r
	if r.Schedules != nil {
		cp.Schedules = make([]ScheduleRule, len(r.Schedules))
		for i, s := range r.Schedules {
			cp.Schedules[i] = s.Clone()
		}
	}
	if r.LastTriggeredAt != nil {
		t := *r.LastTriggeredAt
		cp.LastTriggeredAt = &t
	}
	if r.NextFireAt != nil {
		t := *r.NextFireAt
		cp.NextFireAt = &t
	}
	return cp
}

// ScheduleIndex returns the position of the rule with the given id or -1.
func (r Reminder) ScheduleIndex(id string) int {
	for i, s := range r.Schedules {
		if s.ID == id {
			return i
		}
	}
	return -1
}
