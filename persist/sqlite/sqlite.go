// Package sqlite provides the SQLite-backed persist.Store implementation.
// It uses modernc.org/sqlite (pure Go, no CGO) so the binary is fully
// static and works in scratch/alpine images without a C compiler, exactly
// as the teacher's store/sqlite package does for its own schema.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	json "github.com/goccy/go-json"
	_ "modernc.org/sqlite"

	"github.com/whisper-darkly/dvr-engine/persist"
)

// DB implements persist.Store using SQLite via database/sql.
type DB struct {
	db *sql.DB
}

// Open opens (or creates) the SQLite database at path and applies
// migrations.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	// SQLite serialises writes; one connection avoids SQLITE_BUSY from
	// the process's own concurrent callers (the engine lock already
	// serializes these, but admin tooling connecting separately would not).
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	s := &DB{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *DB) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS entries (
			uuid       TEXT PRIMARY KEY,
			props      TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// busyRetry wraps a SQLite write with an exponential backoff so a
// SQLITE_BUSY from a concurrently-running admin export doesn't surface as
// a hard error to the engine (spec §7: callback errors never propagate).
func busyRetry(ctx context.Context, fn func() error) error {
	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 5), ctx)
	return backoff.Retry(fn, b)
}

func (s *DB) Save(ctx context.Context, uuid string, props map[string]any) error {
	raw, err := json.Marshal(props)
	if err != nil {
		return fmt.Errorf("persist: marshal %s: %w", uuid, err)
	}
	now := time.Now().UTC().Format(time.RFC3339)
	return busyRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO entries (uuid, props, updated_at)
			VALUES (?, ?, ?)
			ON CONFLICT(uuid) DO UPDATE SET
				props      = excluded.props,
				updated_at = excluded.updated_at
		`, uuid, string(raw), now)
		return err
	})
}

func (s *DB) LoadAll(ctx context.Context) ([]persist.Record, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT uuid, props FROM entries ORDER BY uuid`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []persist.Record
	for rows.Next() {
		var uuid, raw string
		if err := rows.Scan(&uuid, &raw); err != nil {
			return nil, err
		}
		var props map[string]any
		if err := json.Unmarshal([]byte(raw), &props); err != nil {
			return nil, fmt.Errorf("persist: unmarshal %s: %w", uuid, err)
		}
		out = append(out, persist.Record{UUID: uuid, Props: props})
	}
	return out, rows.Err()
}

func (s *DB) Remove(ctx context.Context, uuid string) error {
	return busyRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `DELETE FROM entries WHERE uuid = ?`, uuid)
		return err
	})
}

func (s *DB) Close() error { return s.db.Close() }
