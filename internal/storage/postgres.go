package storage

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"blinkbrain/pkg/logx"
)

const postgresSchema = `CREATE TABLE IF NOT EXISTS kv (
	key        TEXT PRIMARY KEY,
	value      BYTEA NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// pgConn is the subset of *pgxpool.Pool the store needs.
type pgConn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

type postgresStore struct {
	conn pgConn
	log  logx.Logger
}

func openPostgres(ctx context.Context, cfg Config, log logx.Logger) (Store, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("storage.dsn is required for postgres driver")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	st, err := newPostgres(ctx, pool, log)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return st, nil
}

func newPostgres(ctx context.Context, conn pgConn, log logx.Logger) (*postgresStore, error) {
	if _, err := conn.Exec(ctx, postgresSchema); err != nil {
		return nil, err
	}
	log.Debug("postgres storage ready")
	return &postgresStore{conn: conn, log: log}, nil
}

func (s *postgresStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var v []byte
	err := s.conn.QueryRow(ctx, `SELECT value FROM kv WHERE key = $1`, key).Scan(&v)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

func (s *postgresStore) Set(ctx context.Context, key string, value []byte) error {
	_, err := s.conn.Exec(ctx,
		`INSERT INTO kv(key, value) VALUES($1, $2)
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`,
		key, value)
	return err
}

func (s *postgresStore) Remove(ctx context.Context, key string) error {
	_, err := s.conn.Exec(ctx, `DELETE FROM kv WHERE key = $1`, key)
	return err
}

func (s *postgresStore) Keys(ctx context.Context) ([]string, error) {
	rows, err := s.conn.Query(ctx, `SELECT key FROM kv ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

func (s *postgresStore) Clear(ctx context.Context) error {
	_, err := s.conn.Exec(ctx, `DELETE FROM kv`)
	return err
}

func (s *postgresStore) Close() error {
	s.conn.Close()
	return nil
}
