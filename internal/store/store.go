package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a blob is missing or expired.
var ErrNotFound = errors.New("not found")

// Blobs is opaque key/value storage with per-entry expiry.
type Blobs interface {
	// Put stores value under id. A zero expiresAt never expires.
	Put(ctx context.Context, id string, value []byte, expiresAt time.Time) error
	// Get returns the value for id or ErrNotFound.
	Get(ctx context.Context, id string) ([]byte, error)
	Delete(ctx context.Context, id string) error
	// Salt returns the backend's key-derivation salt, creating it on first use.
	Salt(ctx context.Context) ([]byte, error)
	Close() error
}

// Store is the SQLite implementation of Blobs.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

var _ Blobs = (*Store)(nil)

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	// one connection keeps ":memory:" databases shared
	db.SetMaxOpenConns(1)
	s := &Store{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS blobs (
		id TEXT PRIMARY KEY,
		value BLOB NOT NULL,
		expires_at INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_blobs_expires_at ON blobs(expires_at);

	CREATE TABLE IF NOT EXISTS metadata (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Put stores or replaces a blob.
func (s *Store) Put(ctx context.Context, id string, value []byte, expiresAt time.Time) error {
	var exp int64
	if !expiresAt.IsZero() {
		exp = expiresAt.Unix()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO blobs (id, value, expires_at) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at`,
		id, value, exp,
	)
	return err
}

// Get returns a blob. Expired blobs are deleted and reported as ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) ([]byte, error) {
	var value []byte
	var exp int64
	err := s.db.QueryRowContext(ctx,
		`SELECT value, expires_at FROM blobs WHERE id = ?`, id,
	).Scan(&value, &exp)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if exp > 0 && s.now().Unix() >= exp {
		_ = s.Delete(ctx, id)
		return nil, ErrNotFound
	}
	return value, nil
}

// Delete removes a blob. Deleting a missing blob is not an error.
func (s *Store) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM blobs WHERE id = ?`, id)
	return err
}

// PurgeExpired removes all expired blobs and returns how many were removed.
func (s *Store) PurgeExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM blobs WHERE expires_at > 0 AND expires_at <= ?`, s.now().Unix(),
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Count returns the number of stored blobs, expired ones included.
func (s *Store) Count(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM blobs`).Scan(&count)
	return count, err
}
