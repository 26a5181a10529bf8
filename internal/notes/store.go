// Package notes holds the note collection: CRUD, soft delete, pinning,
// attachments, code blocks and list filtering. The whole collection is
// persisted under storage.KeyNotes on every mutation.
package notes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmhodges/clock"

	"blinkbrain/internal/domain"
	"blinkbrain/internal/storage"
	"blinkbrain/pkg/logx"
)

var (
	ErrPersistence = errors.New("notes: persistence failed")
	ErrNotLoaded   = errors.New("notes: collection not loaded")
)

// Update carries the fields to change; nil fields are left alone.
type Update struct {
	Title       *string
	Content     *string
	ReminderID  *string
	Attachments *[]domain.Attachment
	CodeBlocks  *[]domain.CodeBlock
}

// Filters narrows List. Zero value lists every live note.
type Filters struct {
	PinnedOnly      bool
	WithReminder    bool
	WithAttachments bool
	Query           string
}

type Option func(*Store)

func WithClock(c clock.Clock) Option   { return func(s *Store) { s.clk = c } }
func WithLogger(l logx.Logger) Option { return func(s *Store) { s.log = l } }

// Store is safe for concurrent use.
type Store struct {
	kv  storage.Store
	clk clock.Clock
	log logx.Logger

	mu     sync.Mutex
	notes  []domain.Note
	loaded bool
}

func New(kv storage.Store, opts ...Option) *Store {
	s := &Store{kv: kv, clk: clock.New(), log: logx.Nop()}
	for _, o := range opts {
		o(s)
	}
	s.log = s.log.With(logx.String("component", "notes"))
	return s
}

// Load replaces the in-memory collection with the stored one. A missing key
// yields an empty collection.
func (s *Store) Load(ctx context.Context) error {
	b, ok, err := s.kv.Get(ctx, storage.KeyNotes)
	if err != nil {
		return fmt.Errorf("%w: load: %w", ErrPersistence, err)
	}
	var notes []domain.Note
	if ok && len(b) > 0 {
		if err := json.Unmarshal(b, &notes); err != nil {
			return fmt.Errorf("%w: decode: %w", ErrPersistence, err)
		}
	}
	s.mu.Lock()
	s.notes = notes
	s.loaded = true
	s.mu.Unlock()
	s.log.Debug("notes loaded", logx.Int("count", len(notes)))
	return nil
}

// FindByID returns a copy of the note, deleted or not.
func (s *Store) FindByID(id string) (domain.Note, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range s.notes {
		if n.ID == id {
			return n.Clone(), true
		}
	}
	return domain.Note{}, false
}

func (s *Store) Create(ctx context.Context, title, content string) (domain.Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loaded {
		return domain.Note{}, ErrNotLoaded
	}
	now := s.clk.Now()
	n := domain.Note{
		ID:          uuid.NewString(),
		Title:       title,
		Content:     content,
		CreatedAt:   now,
		UpdatedAt:   now,
		Attachments: []domain.Attachment{},
		CodeBlocks:  []domain.CodeBlock{},
	}
	next := append(s.snapshotLocked(), n)
	if err := s.persistLocked(ctx, next); err != nil {
		return domain.Note{}, err
	}
	s.notes = next
	return n.Clone(), nil
}

func (s *Store) Update(ctx context.Context, id string, u Update) error {
	return s.mutate(ctx, id, func(n *domain.Note, now time.Time) {
		if u.Title != nil {
			n.Title = *u.Title
		}
		if u.Content != nil {
			n.Content = *u.Content
		}
		if u.ReminderID != nil {
			n.ReminderID = *u.ReminderID
		}
		if u.Attachments != nil {
			n.Attachments = append([]domain.Attachment{}, (*u.Attachments)...)
		}
		if u.CodeBlocks != nil {
			n.CodeBlocks = append([]domain.CodeBlock{}, (*u.CodeBlocks)...)
		}
		n.UpdatedAt = now
	})
}

// Delete removes the note permanently.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loaded {
		return ErrNotLoaded
	}
	next := make([]domain.Note, 0, len(s.notes))
	for _, n := range s.notes {
		if n.ID != id {
			next = append(next, n)
		}
	}
	if len(next) == len(s.notes) {
		return nil
	}
	if err := s.persistLocked(ctx, next); err != nil {
		return err
	}
	s.notes = next
	return nil
}

func (s *Store) SoftDelete(ctx context.Context, id string) error {
	return s.mutate(ctx, id, func(n *domain.Note, now time.Time) {
		n.Deleted = true
		n.DeletedAt = &now
	})
}

func (s *Store) Restore(ctx context.Context, id string) error {
	return s.mutate(ctx, id, func(n *domain.Note, _ time.Time) {
		n.Deleted = false
		n.DeletedAt = nil
	})
}

func (s *Store) Pin(ctx context.Context, id string) error   { return s.setPinned(ctx, id, true) }
func (s *Store) Unpin(ctx context.Context, id string) error { return s.setPinned(ctx, id, false) }

func (s *Store) setPinned(ctx context.Context, id string, pinned bool) error {
	return s.mutate(ctx, id, func(n *domain.Note, now time.Time) {
		n.Pinned = pinned
		n.UpdatedAt = now
	})
}

// AddAttachment appends a; an empty ID or zero AddedAt is filled in.
func (s *Store) AddAttachment(ctx context.Context, noteID string, a domain.Attachment) error {
	return s.mutate(ctx, noteID, func(n *domain.Note, now time.Time) {
		if a.ID == "" {
			a.ID = uuid.NewString()
		}
		if a.AddedAt.IsZero() {
			a.AddedAt = now
		}
		n.Attachments = append(n.Attachments, a)
		n.UpdatedAt = now
	})
}

func (s *Store) RemoveAttachment(ctx context.Context, noteID, attachmentID string) error {
	return s.mutate(ctx, noteID, func(n *domain.Note, now time.Time) {
		kept := n.Attachments[:0]
		for _, a := range n.Attachments {
			if a.ID != attachmentID {
				kept = append(kept, a)
			}
		}
		n.Attachments = kept
		n.UpdatedAt = now
	})
}

func (s *Store) AddCodeBlock(ctx context.Context, noteID string, cb domain.CodeBlock) error {
	return s.mutate(ctx, noteID, func(n *domain.Note, now time.Time) {
		if cb.ID == "" {
			cb.ID = uuid.NewString()
		}
		if cb.AddedAt.IsZero() {
			cb.AddedAt = now
		}
		n.CodeBlocks = append(n.CodeBlocks, cb)
		n.UpdatedAt = now
	})
}

func (s *Store) RemoveCodeBlock(ctx context.Context, noteID, codeBlockID string) error {
	return s.mutate(ctx, noteID, func(n *domain.Note, now time.Time) {
		kept := n.CodeBlocks[:0]
		for _, cb := range n.CodeBlocks {
			if cb.ID != codeBlockID {
				kept = append(kept, cb)
			}
		}
		n.CodeBlocks = kept
		n.UpdatedAt = now
	})
}

// List returns live (not soft-deleted) notes matching f, pinned first and
// then most recently updated first.
func (s *Store) List(f Filters) []domain.Note {
	s.mu.Lock()
	defer s.mu.Unlock()

	q := strings.ToLower(strings.TrimSpace(f.Query))
	out := make([]domain.Note, 0, len(s.notes))
	for _, n := range s.notes {
		switch {
		case n.Deleted:
			continue
		case f.PinnedOnly && !n.Pinned:
			continue
		case f.WithReminder && n.ReminderID == "":
			continue
		case f.WithAttachments && len(n.Attachments) == 0:
			continue
		case q != "" && !strings.Contains(strings.ToLower(n.Title), q) && !strings.Contains(strings.ToLower(n.Content), q):
			continue
		}
		out = append(out, n.Clone())
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Pinned != out[j].Pinned {
			return out[i].Pinned
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out
}

// Trash returns soft-deleted notes, most recently deleted first.
func (s *Store) Trash() []domain.Note {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Note
	for _, n := range s.notes {
		if n.Deleted {
			out = append(out, n.Clone())
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return deletedAt(out[i]).After(deletedAt(out[j]))
	})
	return out
}

func deletedAt(n domain.Note) time.Time {
	if n.DeletedAt == nil {
		return time.Time{}
	}
	return *n.DeletedAt
}

// mutate applies fn to a copy of the note with the given id, persists the
// collection and only then commits it. Unknown ids are a no-op.
func (s *Store) mutate(ctx context.Context, id string, fn func(n *domain.Note, now time.Time)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loaded {
		return ErrNotLoaded
	}
	next := s.snapshotLocked()
	idx := -1
	for i := range next {
		if next[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.log.Debug("note not found", logx.String("note_id", id))
		return nil
	}
	fn(&next[idx], s.clk.Now())
	if err := s.persistLocked(ctx, next); err != nil {
		return err
	}
	s.notes = next
	return nil
}

func (s *Store) snapshotLocked() []domain.Note {
	out := make([]domain.Note, len(s.notes), len(s.notes)+1)
	for i, n := range s.notes {
		out[i] = n.Clone()
	}
	return out
}

func (s *Store) persistLocked(ctx context.Context, notes []domain.Note) error {
	if notes == nil {
		notes = []domain.Note{}
	}
	b, err := json.Marshal(notes)
	if err != nil {
		return fmt.Errorf("%w: encode: %w", ErrPersistence, err)
	}
	if err := s.kv.Set(ctx, storage.KeyNotes, b); err != nil {
		s.log.Warn("notes write failed", logx.Err(err))
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return nil
}
