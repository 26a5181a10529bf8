package storage

import (
	"context"
	"errors"
	"reflect"
	"regexp"
	"testing"

	"github.com/pashagolub/pgxmock/v2"

	"blinkbrain/pkg/logx"
)

func newMockPostgres(t *testing.T) (*postgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	t.Cleanup(mock.Close)

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS kv")).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	st, err := newPostgres(context.Background(), mock, logx.Nop())
	if err != nil {
		t.Fatalf("newPostgres: %v", err)
	}
	return st, mock
}

func TestPostgresGetSet(t *testing.T) {
	ctx := context.Background()
	st, mock := newMockPostgres(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO kv(key, value)")).
		WithArgs(KeyReminders, []byte(`[]`)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT value FROM kv WHERE key = $1")).
		WithArgs(KeyReminders).
		WillReturnRows(pgxmock.NewRows([]string{"value"}).AddRow([]byte(`[]`)))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT value FROM kv WHERE key = $1")).
		WithArgs(KeyNotes).
		WillReturnRows(pgxmock.NewRows([]string{"value"}))

	if err := st.Set(ctx, KeyReminders, []byte(`[]`)); err != nil {
		t.Fatalf("Set: %v", err)
	}
	v, ok, err := st.Get(ctx, KeyReminders)
	if err != nil || !ok || string(v) != "[]" {
		t.Fatalf("Get = %q ok %v err %v", v, ok, err)
	}
	if _, ok, err := st.Get(ctx, KeyNotes); err != nil || ok {
		t.Fatalf("Get missing = ok %v err %v, want false nil", ok, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPostgresKeysRemoveClear(t *testing.T) {
	ctx := context.Background()
	st, mock := newMockPostgres(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT key FROM kv ORDER BY key")).
		WillReturnRows(pgxmock.NewRows([]string{"key"}).AddRow(KeyNotes).AddRow(KeyReminders))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM kv WHERE key = $1")).
		WithArgs(KeyNotes).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM kv")).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

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
	if err := st.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPostgresSetError(t *testing.T) {
	st, mock := newMockPostgres(t)
	boom := errors.New("connection reset")
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO kv")).
		WithArgs(KeySettings, []byte(`{}`)).
		WillReturnError(boom)

	if err := st.Set(context.Background(), KeySettings, []byte(`{}`)); !errors.Is(err, boom) {
		t.Fatalf("Set err = %v, want %v", err, boom)
	}
}
