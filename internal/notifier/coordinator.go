// Package notifier keeps each reminder's pending notification in step with
// its computed next fire time. It cancels the previous notification before
// arranging a new one and never lets a dispatcher failure escape.
package notifier

import (
	"context"
	"time"

	"blinkbrain/internal/domain"
	"blinkbrain/internal/eventbus"
	"blinkbrain/pkg/logx"
)

// Dispatcher arranges and cancels delivery of a notification.
type Dispatcher interface {
	Schedule(ctx context.Context, title, body string, at time.Time, payload []byte) (handle string, err error)
	Cancel(ctx context.Context, handle string) error
}

// NoteLookup resolves the note a reminder belongs to.
type NoteLookup interface {
	FindByID(id string) (domain.Note, bool)
}

// ReconcileInfo is published on the bus after every Reconcile.
type ReconcileInfo struct {
	ReminderID string     `json:"reminderId"`
	Cancelled  string     `json:"cancelled,omitempty"`
	Handle     string     `json:"handle,omitempty"`
	FireAt     *time.Time `json:"fireAt,omitempty"`
	Error      string     `json:"error,omitempty"`
}

type Option func(*Coordinator)

func WithLogger(l logx.Logger) Option { return func(c *Coordinator) { c.log = l } }
func WithBus(b eventbus.Bus) Option   { return func(c *Coordinator) { c.bus = b } }

// WithCallTimeout bounds each dispatcher call. Zero leaves calls unbounded.
func WithCallTimeout(d time.Duration) Option { return func(c *Coordinator) { c.timeout = d } }

type Coordinator struct {
	dispatcher Dispatcher
	notes      NoteLookup
	log        logx.Logger
	bus        eventbus.Bus
	timeout    time.Duration
}

func NewCoordinator(d Dispatcher, notes NoteLookup, opts ...Option) *Coordinator {
	c := &Coordinator{dispatcher: d, notes: notes, log: logx.Nop()}
	for _, o := range opts {
		o(c)
	}
	c.log = c.log.With(logx.String("component", "notifier"))
	return c
}

// Reconcile cancels rem's pending notification, if any, and schedules a new
// one at rem.NextFireAt unless the reminder is disabled or has no next time.
// The returned reminder carries the new handle, or none when scheduling was
// not possible.
func (c *Coordinator) Reconcile(ctx context.Context, rem domain.Reminder) domain.Reminder {
	info := ReconcileInfo{ReminderID: rem.ID, Cancelled: rem.NotificationHandle}
	rem = c.Release(ctx, rem)

	if rem.Disabled || rem.NextFireAt == nil {
		c.publish(info)
		return rem
	}

	var note domain.Note
	var found bool
	if c.notes != nil {
		note, found = c.notes.FindByID(rem.NoteID)
	}
	p := BuildPayload(rem, note, found, *rem.NextFireAt)
	body, err := p.Encode()
	if err != nil {
		c.log.Warn("payload encode failed", logx.String("reminder_id", rem.ID), logx.Err(err))
		info.Error = err.Error()
		c.publish(info)
		return rem
	}

	cctx, cancel := c.callContext(ctx)
	handle, err := c.dispatcher.Schedule(cctx, p.Title, p.Body, *rem.NextFireAt, body)
	cancel()
	if err != nil {
		c.log.Warn("notification schedule failed", logx.String("reminder_id", rem.ID), logx.Time("fire_at", *rem.NextFireAt), logx.Err(err))
		info.Error = err.Error()
		c.publish(info)
		return rem
	}

	rem.NotificationHandle = handle
	info.Handle = handle
	info.FireAt = rem.NextFireAt
	c.log.Debug("notification scheduled", logx.String("reminder_id", rem.ID), logx.String("handle", handle), logx.Time("fire_at", *rem.NextFireAt))
	c.publish(info)
	return rem
}

// Release cancels rem's pending notification and clears its handle.
func (c *Coordinator) Release(ctx context.Context, rem domain.Reminder) domain.Reminder {
	if rem.NotificationHandle == "" {
		return rem
	}
	c.Cancel(ctx, rem.NotificationHandle)
	rem.NotificationHandle = ""
	return rem
}

// Cancel is a best-effort cancel of a single handle.
func (c *Coordinator) Cancel(ctx context.Context, handle string) {
	if handle == "" {
		return
	}
	cctx, cancel := c.callContext(ctx)
	defer cancel()
	if err := c.dispatcher.Cancel(cctx, handle); err != nil {
		c.log.Warn("notification cancel failed", logx.String("handle", handle), logx.Err(err))
	}
}

func (c *Coordinator) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.timeout)
}

func (c *Coordinator) publish(info ReconcileInfo) {
	if c.bus == nil {
		return
	}
	c.bus.Publish(eventbus.Event{Type: eventbus.ReminderReconciled, Data: info})
}
