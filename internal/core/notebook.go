// Package core ties notes and reminders together: a note owns at most one
// reminder, linked through Note.ReminderID.
package core

import (
	"context"
	"errors"

	"blinkbrain/internal/domain"
	"blinkbrain/internal/notes"
	"blinkbrain/internal/reminders"
	"blinkbrain/pkg/logx"
)

// DefaultCountdownSeconds is the countdown given to reminders created while
// saving a note.
const DefaultCountdownSeconds = 60

var ErrNoteNotFound = errors.New("core: note not found")

// Draft is the editor's view of a note when it is saved. An empty Schedules
// slice means the note should carry no reminder.
type Draft struct {
	Title            string
	Content          string
	Attachments      []domain.Attachment
	CodeBlocks       []domain.CodeBlock
	Schedules        []domain.ScheduleRule
	ReminderDisabled bool
}

type Option func(*Notebook)

func WithLogger(l logx.Logger) Option { return func(b *Notebook) { b.log = l } }

// WithCountdown overrides DefaultCountdownSeconds for new reminders.
func WithCountdown(seconds int) Option { return func(b *Notebook) { b.countdown = seconds } }

type Notebook struct {
	notes     *notes.Store
	reminders *reminders.Repository
	log       logx.Logger
	countdown int
}

func NewNotebook(ns *notes.Store, rs *reminders.Repository, opts ...Option) *Notebook {
	b := &Notebook{notes: ns, reminders: rs, log: logx.Nop(), countdown: DefaultCountdownSeconds}
	for _, o := range opts {
		o(b)
	}
	if b.countdown < 0 {
		b.countdown = DefaultCountdownSeconds
	}
	b.log = b.log.With(logx.String("component", "notebook"))
	return b
}

// SaveNote creates a note when id is empty and updates it otherwise, then
// brings the note's reminder in line with d.Schedules: created when the
// note had none, updated when it had one, deleted when the schedules were
// cleared.
func (b *Notebook) SaveNote(ctx context.Context, id string, d Draft) (domain.Note, error) {
	var (
		note domain.Note
		err  error
	)
	if id == "" {
		note, err = b.notes.Create(ctx, d.Title, d.Content)
		if err != nil {
			return domain.Note{}, err
		}
	} else {
		var ok bool
		if note, ok = b.notes.FindByID(id); !ok {
			return domain.Note{}, ErrNoteNotFound
		}
	}

	atts, blocks := nonNil(d.Attachments), nonNilBlocks(d.CodeBlocks)
	if err := b.notes.Update(ctx, note.ID, notes.Update{
		Title:       &d.Title,
		Content:     &d.Content,
		Attachments: &atts,
		CodeBlocks:  &blocks,
	}); err != nil {
		return domain.Note{}, err
	}

	if err := b.syncReminder(ctx, note, d); err != nil {
		return domain.Note{}, err
	}
	saved, _ := b.notes.FindByID(note.ID)
	return saved, nil
}

func (b *Notebook) syncReminder(ctx context.Context, note domain.Note, d Draft) error {
	linked := note.ReminderID != ""
	if linked {
		if _, ok := b.reminders.Get(note.ReminderID); !ok {
			b.log.Warn("note links a missing reminder", logx.String("note_id", note.ID), logx.String("reminder_id", note.ReminderID))
			linked = false
		}
	}

	switch {
	case linked && len(d.Schedules) > 0:
		schedules := d.Schedules
		disabled := d.ReminderDisabled
		return b.reminders.Update(ctx, note.ReminderID, reminders.Update{Schedules: &schedules, Disabled: &disabled})

	case linked:
		if err := b.reminders.Delete(ctx, note.ReminderID); err != nil {
			return err
		}
		return b.link(ctx, note.ID, "")

	case len(d.Schedules) > 0:
		rem, err := b.reminders.Create(ctx, note.ID, d.Schedules, b.countdown)
		if err != nil {
			return err
		}
		if d.ReminderDisabled {
			if err := b.reminders.Disable(ctx, rem.ID); err != nil {
				return err
			}
		}
		return b.link(ctx, note.ID, rem.ID)

	case note.ReminderID != "":
		return b.link(ctx, note.ID, "")
	}
	return nil
}

func (b *Notebook) link(ctx context.Context, noteID, reminderID string) error {
	return b.notes.Update(ctx, noteID, notes.Update{ReminderID: &reminderID})
}

// DeleteNote removes the note permanently together with its reminder.
func (b *Notebook) DeleteNote(ctx context.Context, id string) error {
	note, ok := b.notes.FindByID(id)
	if !ok {
		return nil
	}
	if note.ReminderID != "" {
		if err := b.reminders.Delete(ctx, note.ReminderID); err != nil {
			return err
		}
	}
	if err := b.notes.Delete(ctx, id); err != nil {
		return err
	}
	b.log.Info("note deleted", logx.String("note_id", id), logx.Bool("had_reminder", note.ReminderID != ""))
	return nil
}

func nonNil(in []domain.Attachment) []domain.Attachment {
	if in == nil {
		return []domain.Attachment{}
	}
	return in
}

func nonNilBlocks(in []domain.CodeBlock) []domain.CodeBlock {
	if in == nil {
		return []domain.CodeBlock{}
	}
	return in
}
