package store

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
)

const saltKey = "kdf_salt"

// SetMetadata upserts a key-value pair in the metadata table.
func (s *Store) SetMetadata(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO metadata (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = ?`,
		key, value, value,
	)
	return err
}

// GetMetadata returns the value for a metadata key.
// Returns empty string and nil error if the key is missing.
func (s *Store) GetMetadata(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return value, err
}

// Salt returns the database's key-derivation salt, generating and storing
// a random one the first time.
func (s *Store) Salt(ctx context.Context) ([]byte, error) {
	v, err := s.GetMetadata(ctx, saltKey)
	if err != nil {
		return nil, err
	}
	if v != "" {
		salt, err := hex.DecodeString(v)
		if err != nil {
			return nil, fmt.Errorf("decode salt: %w", err)
		}
		return salt, nil
	}

	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	// a concurrent first caller may have won; keep whichever row exists
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO metadata (key, value) VALUES (?, ?) ON CONFLICT(key) DO NOTHING`,
		saltKey, hex.EncodeToString(salt),
	); err != nil {
		return nil, err
	}
	v, err = s.GetMetadata(ctx, saltKey)
	if err != nil {
		return nil, err
	}
	return hex.DecodeString(v)
}
