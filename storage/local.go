package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

const dbFile = "records.db"

const schema = `
CREATE TABLE IF NOT EXISTS entries (
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	key        TEXT    NOT NULL,
	value      BLOB    NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS entries_key ON entries (key, seq);
`

// OpenLocal opens or creates the SQLite store in dir.
// Every append is committed with synchronous=FULL before it returns.
func OpenLocal(dir string, logger *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create storage directory: %w", err)
	}
	path := filepath.Join(dir, dbFile)

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(FULL)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	logger.Info("Using local storage", "path", path)
	return &Store{db: db, path: path, logger: logger}, nil
}

func (s *Store) appendLocal(ctx context.Context, key string, data []byte) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO entries (key, value, created_at) VALUES (?, ?, ?)",
		key, data, time.Now().UnixNano()); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Warn("Failed to roll back append", "key", key, "error", rbErr)
		}
		return fmt.Errorf("append %s: %w", key, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit %s: %w", key, err)
	}
	return nil
}

func (s *Store) readLocal(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT value FROM entries WHERE key = ? ORDER BY seq DESC LIMIT 1", key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return data, nil
}

type entry struct {
	key   string
	value []byte
}

// iterateLocal loads matching rows before calling fn so that fn may append.
func (s *Store) iterateLocal(ctx context.Context, prefix string, fn func(string, []byte) error) error {
	query := "SELECT key, value FROM entries WHERE instr(key, ?) = 1 ORDER BY seq"
	args := []any{prefix}
	if prefix == "" {
		query = "SELECT key, value FROM entries ORDER BY seq"
		args = nil
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("query prefix %q: %w", prefix, err)
	}

	var entries []entry
	for rows.Next() {
		var e entry
		if err := rows.Scan(&e.key, &e.value); err != nil {
			rows.Close()
			return fmt.Errorf("scan entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("iterate prefix %q: %w", prefix, err)
	}
	rows.Close()

	for _, e := range entries {
		if err := fn(e.key, e.value); err != nil {
			return err
		}
	}
	return nil
}
