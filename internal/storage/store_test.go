package storage

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"

	"blinkbrain/pkg/logx"
)

func openDrivers(t *testing.T) map[string]Store {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()

	fs, err := Open(ctx, Config{Driver: "file", Path: filepath.Join(dir, "kv.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("open file: %v", err)
	}
	sq, err := Open(ctx, Config{Driver: "sqlite", Path: filepath.Join(dir, "kv.sqlite")}, logx.Nop())
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	stores := map[string]Store{
		"memory": NewMemory(),
		"file":   fs,
		"sqlite": sq,
	}
	t.Cleanup(func() {
		for _, s := range stores {
			_ = s.Close()
		}
	})
	return stores
}

func TestStoreContract(t *testing.T) {
	ctx := context.Background()
	for name, st := range openDrivers(t) {
		st := st
		t.Run(name, func(t *testing.T) {
			if _, ok, err := st.Get(ctx, KeyNotes); err != nil || ok {
				t.Fatalf("Get on empty store = ok %v err %v", ok, err)
			}
			if err := st.Set(ctx, KeyNotes, []byte(`[{"id":"n1"}]`)); err != nil {
				t.Fatalf("Set: %v", err)
			}
			if err := st.Set(ctx, KeyReminders, []byte(`[]`)); err != nil {
				t.Fatalf("Set: %v", err)
			}
			if err := st.Set(ctx, KeyNotes, []byte(`[]`)); err != nil {
				t.Fatalf("overwrite: %v", err)
			}
			v, ok, err := st.Get(ctx, KeyNotes)
			if err != nil || !ok || string(v) != "[]" {
				t.Fatalf("Get = %q ok %v err %v, want []", v, ok, err)
			}
			keys, err := st.Keys(ctx)
			if err != nil {
				t.Fatalf("Keys: %v", err)
			}
			if want := []string{KeyNotes, KeyReminders}; !reflect.DeepEqual(keys, want) {
				t.Fatalf("Keys = %v, want %v", keys, want)
			}
			if err := st.Remove(ctx, KeyNotes); err != nil {
				t.Fatalf("Remove: %v", err)
			}
			if err := st.Remove(ctx, "missing"); err != nil {
				t.Fatalf("Remove missing: %v", err)
			}
			if _, ok, _ := st.Get(ctx, KeyNotes); ok {
				t.Fatalf("key still present after Remove")
			}
			if err := st.Clear(ctx); err != nil {
				t.Fatalf("Clear: %v", err)
			}
			if keys, _ := st.Keys(ctx); len(keys) != 0 {
				t.Fatalf("Keys after Clear = %v", keys)
			}
		})
	}
}

func TestFileStoreReplaysJournal(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "data", "kv.json")

	st, err := Open(ctx, Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	_ = st.Set(ctx, "a", []byte("1"))
	_ = st.Set(ctx, "b", []byte("2"))
	_ = st.Remove(ctx, "a")
	_ = st.Set(ctx, "b", []byte("3"))
	if err := st.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	st, err = Open(ctx, Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer st.Close()
	if _, ok, _ := st.Get(ctx, "a"); ok {
		t.Fatalf("removed key resurrected")
	}
	v, ok, _ := st.Get(ctx, "b")
	if !ok || string(v) != "3" {
		t.Fatalf("b = %q ok %v, want 3", v, ok)
	}
}

func TestFileStoreCompaction(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "kv.json")
	st, err := Open(ctx, Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	for i := 0; i < compactEvery+5; i++ {
		if err := st.Set(ctx, "k", []byte{byte('a' + i%26)}); err != nil {
			t.Fatalf("set %d: %v", i, err)
		}
	}
	_ = st.Close()

	st, err = Open(ctx, Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer st.Close()
	v, _, _ := st.Get(ctx, "k")
	want := byte('a' + (compactEvery+4)%26)
	if len(v) != 1 || v[0] != want {
		t.Fatalf("k = %q, want %q", v, want)
	}
}

func TestClosedStoreErrors(t *testing.T) {
	st := NewMemory()
	_ = st.Close()
	if err := st.Set(context.Background(), "a", nil); !errors.Is(err, ErrClosed) {
		t.Fatalf("Set after Close err = %v, want ErrClosed", err)
	}
}

func TestOpenDrivers(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "disabled", cfg: Config{}, wantErr: true},
		{name: "memory", cfg: Config{Driver: "memory"}},
		{name: "file without path", cfg: Config{Driver: "file"}, wantErr: true},
		{name: "sqlite without path", cfg: Config{Driver: "sqlite"}, wantErr: true},
		{name: "postgres without dsn", cfg: Config{Driver: "postgres"}, wantErr: true},
		{name: "unknown", cfg: Config{Driver: "redis"}, wantErr: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			st, err := Open(ctx, tt.cfg, logx.Nop())
			if (err != nil) != tt.wantErr {
				t.Fatalf("Open err = %v, wantErr %v", err, tt.wantErr)
			}
			if st != nil {
				_ = st.Close()
			}
		})
	}
	if _, err := Open(ctx, Config{Driver: "none"}, logx.Nop()); !errors.Is(err, ErrDisabled) {
		t.Fatalf("none driver err = %v, want ErrDisabled", err)
	}
}
