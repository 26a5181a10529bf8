// Package reminders is the reminder repository. Every mutation recomputes
// the reminder's next fire time, reconciles its pending notification and
// rewrites the whole collection under storage.KeyReminders before the new
// state becomes visible in memory.
package reminders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmhodges/clock"

	"blinkbrain/internal/domain"
	"blinkbrain/internal/schedule"
	"blinkbrain/internal/storage"
	"blinkbrain/pkg/logx"
)

var (
	ErrPersistence      = errors.New("reminders: persistence failed")
	ErrNoSchedules      = errors.New("reminders: at least one schedule is required")
	ErrInvalidCountdown = errors.New("reminders: countdown must not be negative")
	ErrNotLoaded        = errors.New("reminders: collection not loaded")
)

// Reconciler keeps a reminder's pending notification in step with its
// NextFireAt. It never fails; problems degrade to an empty handle.
type Reconciler interface {
	Reconcile(ctx context.Context, rem domain.Reminder) domain.Reminder
	Release(ctx context.Context, rem domain.Reminder) domain.Reminder
}

// Update carries reminder-level changes; nil fields are left alone.
type Update struct {
	NoteID           *string
	Schedules        *[]domain.ScheduleRule
	CountdownSeconds *int
	Disabled         *bool
}

// ScheduleUpdate carries rule-level changes; nil fields are left alone.
type ScheduleUpdate struct {
	Kind          *domain.Kind
	TimeOfDay     **domain.TimeOfDay
	IntervalHours *int
	DaysOfWeek    *[]int
	Anchor        **time.Time
	Priority      *int
	Active        *bool
}

type Option func(*Repository)

func WithClock(c clock.Clock) Option         { return func(r *Repository) { r.clk = c } }
func WithLocation(loc *time.Location) Option { return func(r *Repository) { r.loc = loc } }
func WithLogger(l logx.Logger) Option        { return func(r *Repository) { r.log = l } }

// Repository is safe for concurrent use; dispatcher callbacks acknowledge
// fired reminders from their own goroutines.
type Repository struct {
	kv  storage.Store
	rec Reconciler
	clk clock.Clock
	loc *time.Location
	log logx.Logger

	mu     sync.Mutex
	items  []domain.Reminder
	loaded bool
}

func New(kv storage.Store, rec Reconciler, opts ...Option) *Repository {
	r := &Repository{kv: kv, rec: rec, clk: clock.New(), loc: time.Local, log: logx.Nop()}
	for _, o := range opts {
		o(r)
	}
	if r.loc == nil {
		r.loc = time.Local
	}
	r.log = r.log.With(logx.String("component", "reminders"))
	return r
}

// Load replaces the in-memory collection with the stored one without
// touching notifications; call Resync afterwards to re-arm them.
func (r *Repository) Load(ctx context.Context) error {
	b, ok, err := r.kv.Get(ctx, storage.KeyReminders)
	if err != nil {
		return fmt.Errorf("%w: load: %w", ErrPersistence, err)
	}
	var items []domain.Reminder
	if ok && len(b) > 0 {
		if err := json.Unmarshal(b, &items); err != nil {
			return fmt.Errorf("%w: decode: %w", ErrPersistence, err)
		}
	}
	r.mu.Lock()
	r.items = items
	r.loaded = true
	r.mu.Unlock()
	r.log.Debug("reminders loaded", logx.Int("count", len(items)))
	return nil
}

func (r *Repository) List() []domain.Reminder {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Reminder, len(r.items))
	for i, it := range r.items {
		out[i] = it.Clone()
	}
	return out
}

func (r *Repository) Get(id string) (domain.Reminder, bool) {
	return r.find(func(it domain.Reminder) bool { return it.ID == id })
}

// GetByNoteID returns the first reminder attached to noteID.
func (r *Repository) GetByNoteID(noteID string) (domain.Reminder, bool) {
	return r.find(func(it domain.Reminder) bool { return it.NoteID == noteID })
}

func (r *Repository) find(match func(domain.Reminder) bool) (domain.Reminder, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, it := range r.items {
		if match(it) {
			return it.Clone(), true
		}
	}
	return domain.Reminder{}, false
}

func (r *Repository) Create(ctx context.Context, noteID string, schedules []domain.ScheduleRule, countdownSeconds int) (domain.Reminder, error) {
	if len(schedules) == 0 {
		return domain.Reminder{}, ErrNoSchedules
	}
	if countdownSeconds < 0 {
		return domain.Reminder{}, ErrInvalidCountdown
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.loaded {
		return domain.Reminder{}, ErrNotLoaded
	}

	now := r.now()
	rem := domain.Reminder{
		ID:               uuid.NewString(),
		NoteID:           noteID,
		Schedules:        withIDs(schedules),
		CountdownSeconds: countdownSeconds,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	rem.NextFireAt = resolve(rem, now)
	rem = r.rec.Reconcile(ctx, rem)

	next := append(r.snapshotLocked(), rem)
	if err := r.persistLocked(ctx, next); err != nil {
		r.rec.Release(ctx, rem)
		return domain.Reminder{}, err
	}
	r.items = next
	r.log.Info("reminder created", logx.String("reminder_id", rem.ID), logx.String("note_id", noteID), logx.Int("schedules", len(rem.Schedules)))
	return rem.Clone(), nil
}

// Update applies u. Changing schedules or the disabled flag recomputes the
// next fire time; changing the countdown only refreshes the notification.
func (r *Repository) Update(ctx context.Context, id string, u Update) error {
	if u.CountdownSeconds != nil && *u.CountdownSeconds < 0 {
		return ErrInvalidCountdown
	}
	return r.mutate(ctx, id, func(rem *domain.Reminder) effect {
		var e effect
		if u.NoteID != nil {
			rem.NoteID = *u.NoteID
			e.reconcile = true
		}
		if u.Schedules != nil {
			rem.Schedules = withIDs(*u.Schedules)
			e.recompute = true
		}
		if u.Disabled != nil {
			rem.Disabled = *u.Disabled
			e.recompute = true
		}
		if u.CountdownSeconds != nil {
			rem.CountdownSeconds = *u.CountdownSeconds
			e.reconcile = true
		}
		return e
	})
}

// Delete removes the reminder and cancels its pending notification.
func (r *Repository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.loaded {
		return ErrNotLoaded
	}
	idx := r.indexLocked(id)
	if idx < 0 {
		return nil
	}
	removed := r.items[idx]
	next := make([]domain.Reminder, 0, len(r.items)-1)
	next = append(next, r.items[:idx]...)
	next = append(next, r.items[idx+1:]...)
	if err := r.persistLocked(ctx, next); err != nil {
		return err
	}
	r.items = next
	r.rec.Release(ctx, removed)
	r.log.Info("reminder deleted", logx.String("reminder_id", id))
	return nil
}

func (r *Repository) SetDisabled(ctx context.Context, id string, disabled bool) error {
	return r.Update(ctx, id, Update{Disabled: &disabled})
}

func (r *Repository) Enable(ctx context.Context, id string) error  { return r.SetDisabled(ctx, id, false) }
func (r *Repository) Disable(ctx context.Context, id string) error { return r.SetDisabled(ctx, id, true) }

// AddSchedule appends rule, assigning an id when it has none.
func (r *Repository) AddSchedule(ctx context.Context, reminderID string, rule domain.ScheduleRule) error {
	return r.mutate(ctx, reminderID, func(rem *domain.Reminder) effect {
		rem.Schedules = append(rem.Schedules, withIDs([]domain.ScheduleRule{rule})...)
		return effect{recompute: true}
	})
}

// RemoveSchedule drops the rule; an unknown rule id is a no-op.
func (r *Repository) RemoveSchedule(ctx context.Context, reminderID, scheduleID string) error {
	return r.mutate(ctx, reminderID, func(rem *domain.Reminder) effect {
		i := rem.ScheduleIndex(scheduleID)
		if i < 0 {
			return effect{skip: true}
		}
		rem.Schedules = append(rem.Schedules[:i], rem.Schedules[i+1:]...)
		return effect{recompute: true}
	})
}

func (r *Repository) UpdateSchedule(ctx context.Context, reminderID, scheduleID string, u ScheduleUpdate) error {
	return r.mutate(ctx, reminderID, func(rem *domain.Reminder) effect {
		i := rem.ScheduleIndex(scheduleID)
		if i < 0 {
			return effect{skip: true}
		}
		s := &rem.Schedules[i]
		if u.Kind != nil {
			s.Kind = *u.Kind
		}
		if u.TimeOfDay != nil {
			s.TimeOfDay = *u.TimeOfDay
		}
		if u.IntervalHours != nil {
			s.IntervalHours = *u.IntervalHours
		}
		if u.DaysOfWeek != nil {
			s.DaysOfWeek = append([]int(nil), (*u.DaysOfWeek)...)
		}
		if u.Anchor != nil {
			s.Anchor = *u.Anchor
		}
		if u.Priority != nil {
			s.Priority = *u.Priority
		}
		if u.Active != nil {
			s.Active = *u.Active
		}
		return effect{recompute: true}
	})
}

// MarkTriggered records that the reminder fired now and moves it to its
// following occurrence.
func (r *Repository) MarkTriggered(ctx context.Context, id string) error {
	return r.mutate(ctx, id, func(rem *domain.Reminder) effect {
		now := r.now()
		rem.LastTriggeredAt = &now
		return effect{recompute: true}
	})
}

// Acknowledge is MarkTriggered for a specific notification handle. It is a
// no-op when the reminder has since been rescheduled under another handle.
func (r *Repository) Acknowledge(ctx context.Context, id, handle string) error {
	return r.mutate(ctx, id, func(rem *domain.Reminder) effect {
		if handle == "" || rem.NotificationHandle != handle {
			return effect{skip: true}
		}
		now := r.now()
		rem.LastTriggeredAt = &now
		// The fired notification is gone; there is nothing left to cancel.
		rem.NotificationHandle = ""
		return effect{recompute: true}
	})
}

// Resync recomputes and reconciles every reminder, then persists the
// collection. It re-arms notifications after a restart and corrects drift
// after clock or timezone changes.
func (r *Repository) Resync(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.loaded {
		return ErrNotLoaded
	}
	now := r.now()
	next := r.snapshotLocked()
	armed := 0
	for i := range next {
		next[i].NextFireAt = resolve(next[i], now)
		next[i] = r.rec.Reconcile(ctx, next[i])
		if next[i].NotificationHandle != "" {
			armed++
		}
	}
	if err := r.persistLocked(ctx, next); err != nil {
		return err
	}
	r.items = next
	r.log.Info("reminders resynced", logx.Int("count", len(next)), logx.Int("armed", armed))
	return nil
}

type effect struct {
	skip      bool
	recompute bool
	reconcile bool
}

// mutate runs fn on a copy of one reminder, then recomputes, reconciles and
// persists according to the returned effect. In-memory state changes only
// after the write succeeds. Unknown ids are a no-op.
func (r *Repository) mutate(ctx context.Context, id string, fn func(rem *domain.Reminder) effect) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.loaded {
		return ErrNotLoaded
	}
	idx := r.indexLocked(id)
	if idx < 0 {
		r.log.Debug("reminder not found", logx.String("reminder_id", id))
		return nil
	}

	prev := r.items[idx]
	cur := prev.Clone()
	e := fn(&cur)
	if e.skip {
		return nil
	}
	now := r.now()
	cur.UpdatedAt = now
	if e.recompute {
		cur.NextFireAt = resolve(cur, now)
	}
	if e.recompute || e.reconcile {
		cur = r.rec.Reconcile(ctx, cur)
	}

	next := r.snapshotLocked()
	next[idx] = cur
	if err := r.persistLocked(ctx, next); err != nil {
		r.rollbackLocked(ctx, idx, prev, cur)
		return err
	}
	r.items = next
	return nil
}

// rollbackLocked drops the notification armed for a rejected write and
// re-arms the previous one so memory and the dispatcher agree again.
func (r *Repository) rollbackLocked(ctx context.Context, idx int, prev, cur domain.Reminder) {
	if cur.NotificationHandle == prev.NotificationHandle {
		return
	}
	r.rec.Release(ctx, cur)
	if prev.NotificationHandle == "" {
		return
	}
	restored := r.rec.Reconcile(ctx, prev)
	r.items[idx].NotificationHandle = restored.NotificationHandle
}

func (r *Repository) indexLocked(id string) int {
	for i, it := range r.items {
		if it.ID == id {
			return i
		}
	}
	return -1
}

func (r *Repository) snapshotLocked() []domain.Reminder {
	out := make([]domain.Reminder, len(r.items), len(r.items)+1)
	for i, it := range r.items {
		out[i] = it.Clone()
	}
	return out
}

func (r *Repository) persistLocked(ctx context.Context, items []domain.Reminder) error {
	if items == nil {
		items = []domain.Reminder{}
	}
	b, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("%w: encode: %w", ErrPersistence, err)
	}
	if err := r.kv.Set(ctx, storage.KeyReminders, b); err != nil {
		r.log.Warn("reminders write failed", logx.Err(err))
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return nil
}

func (r *Repository) now() time.Time { return r.clk.Now().In(r.loc) }

func resolve(rem domain.Reminder, now time.Time) *time.Time {
	next, ok := schedule.ResolveNext(rem, now)
	if !ok {
		return nil
	}
	return &next
}

func withIDs(in []domain.ScheduleRule) []domain.ScheduleRule {
	out := make([]domain.ScheduleRule, len(in))
	for i, s := range in {
		out[i] = s.Clone()
		if out[i].ID == "" {
			out[i].ID = uuid.NewString()
		}
	}
	return out
}
