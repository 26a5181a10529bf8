// Package storage is the durable key-value layer behind the notes and
// reminders collections. Each collection lives under one key as a single
// JSON document and is rewritten whole on every mutation.
package storage

import (
	"context"
	"errors"
	"time"
)

var (
	ErrDisabled = errors.New("storage disabled")
	ErrClosed   = errors.New("storage closed")
)

// Collection keys.
const (
	KeyNotes     = "blinkbrain:notes"
	KeyReminders = "blinkbrain:reminders"
	KeySettings  = "blinkbrain:settings"
	KeyLastSync  = "blinkbrain:last_sync"
)

// Config configures storage.
//
// Driver values:
//   - "memory": process-local map, nothing survives a restart
//   - "file": snapshot + JSONL journal next to Path
//   - "sqlite": SQLite database file at Path
//   - "postgres": PostgreSQL reachable through DSN
type Config struct {
	Driver      string
	Path        string
	DSN         string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Store is a string-keyed byte store. Get reports ok=false for a missing key
// rather than an error.
type Store interface {
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Set(ctx context.Context, key string, value []byte) error
	Remove(ctx context.Context, key string) error
	Keys(ctx context.Context) ([]string, error)
	Clear(ctx context.Context) error
	Close() error
}
