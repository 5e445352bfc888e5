// Package sqlitekv keeps keys in a single SQLite table. Change events are
// delivered to watchers in the same process only.
package sqlitekv

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/jrsteele09/go-app-lock/kv"
	_ "modernc.org/sqlite"
)

const schema = `CREATE TABLE IF NOT EXISTS kv (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
)`

var _ kv.Store = (*Store)(nil)

type Store struct {
	db     *sql.DB
	events *kv.Broadcaster
}

// Open opens (or creates) the database at path.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("[sqlitekv.Open] open %s: %w", path, err)
	}
	// A single connection serialises writers and keeps :memory: databases shared.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("[sqlitekv.Open] create schema: %w", err)
	}
	return &Store{db: db, events: kv.NewBroadcaster()}, nil
}

func (s *Store) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", kv.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("[sqlitekv.Get] %s: %w", key, err)
	}
	return value, nil
}

func (s *Store) Set(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kv (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value)
	if err != nil {
		return fmt.Errorf("[sqlitekv.Set] %s: %w", key, err)
	}
	s.events.Publish(kv.Event{Key: key, Op: kv.OpSet})
	return nil
}

func (s *Store) Delete(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		res, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key)
		if err != nil {
			return fmt.Errorf("[sqlitekv.Delete] %s: %w", key, err)
		}
		if n, err := res.RowsAffected(); err == nil && n > 0 {
			s.events.Publish(kv.Event{Key: key, Op: kv.OpDelete})
		}
	}
	return nil
}

func (s *Store) DeleteIf(ctx context.Context, key, value string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ? AND value = ?`, key, value)
	if err != nil {
		return false, fmt.Errorf("[sqlitekv.DeleteIf] %s: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("[sqlitekv.DeleteIf] %s: %w", key, err)
	}
	if n == 0 {
		return false, nil
	}
	s.events.Publish(kv.Event{Key: key, Op: kv.OpDelete})
	return true, nil
}

func (s *Store) Keys(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key FROM kv WHERE substr(key, 1, ?) = ? ORDER BY key`,
		utf8.RuneCountInString(prefix), prefix)
	if err != nil {
		return nil, fmt.Errorf("[sqlitekv.Keys] %s: %w", prefix, err)
	}
	defer rows.Close()

	keys := make([]string, 0)
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("[sqlitekv.Keys] scan: %w", err)
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

func (s *Store) Watch(ctx context.Context) (<-chan kv.Event, error) {
	return s.events.Subscribe(ctx), nil
}

func (s *Store) Close() error {
	s.events.Close()
	return s.db.Close()
}
