package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

const (
	dirPermissions  = 0750
	filePermissions = 0600

	connectionTimeout = 5 * time.Second
)

const schema = `CREATE TABLE IF NOT EXISTS settings (
	key        TEXT PRIMARY KEY,
	kind       TEXT NOT NULL,
	value      TEXT NOT NULL,
	updated_at INTEGER NOT NULL
)`

// SQLiteConfig configures the sqlite backend.
type SQLiteConfig struct {
	// Path of the database file. The directory is created when missing.
	Path string

	// BusyTimeout is how long to wait for a locked database, in seconds.
	BusyTimeout int
}

// SQLite persists settings in a single-table sqlite database.
type SQLite struct {
	db   *sql.DB
	path string
}

var _ Store = (*SQLite)(nil)

// OpenSQLite opens (or creates) the settings database in WAL mode.
func OpenSQLite(cfg SQLiteConfig) (*SQLite, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Path), dirPermissions); err != nil {
		return nil, fmt.Errorf("creating store directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_busy_timeout=%d&_journal_mode=WAL&_synchronous=NORMAL",
		cfg.Path, cfg.BusyTimeout*1000)

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	// One writer; settings traffic is tiny.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), connectionTimeout)
	defer cancel()

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close() //nolint:errcheck
		return nil, fmt.Errorf("migrating store: %w", err)
	}

	_ = os.Chmod(cfg.Path, filePermissions)

	return &SQLite{db: db, path: cfg.Path}, nil
}

// Path returns the filesystem path of the database.
func (s *SQLite) Path() string {
	return s.path
}

func (s *SQLite) Get(ctx context.Context, key string) (Value, error) {
	var v Value
	err := s.db.QueryRowContext(ctx, `SELECT kind, value FROM settings WHERE key = ?`, key).Scan(&v.Kind, &v.Data)
	if errors.Is(err, sql.ErrNoRows) {
		return Value{}, fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	if err != nil {
		return Value{}, fmt.Errorf("reading %s: %w", key, err)
	}
	return v, nil
}

func (s *SQLite) Set(ctx context.Context, key string, v Value) error {
	if !validKind(v.Kind) {
		return fmt.Errorf("set %s: unknown kind %q", key, v.Kind)
	}

	_, err := s.db.ExecContext(ctx, `INSERT INTO settings (key, kind, value, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET kind = excluded.kind, value = excluded.value, updated_at = excluded.updated_at`,
		key, string(v.Kind), v.Data, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("writing %s: %w", key, err)
	}
	return nil
}

func (s *SQLite) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM settings WHERE key = ?`, key); err != nil {
		return fmt.Errorf("deleting %s: %w", key, err)
	}
	return nil
}

func (s *SQLite) List(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, kind, value FROM settings ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("listing settings: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Key, &e.Kind, &e.Data); err != nil {
			return nil, fmt.Errorf("scanning setting: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *SQLite) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("closing store: %w", err)
	}
	return nil
}
