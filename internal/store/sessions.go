package store

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pavelanni/schoolportal/internal/model"
)

// DefaultSessionTTL applies when the API token carries no expiry.
const DefaultSessionTTL = 24 * time.Hour

// DeviceSessionID is the fixed session used by the CLI.
const DeviceSessionID = "device"

// Sessions keeps signed-in identities in sealed blobs keyed by session ID.
type Sessions struct {
	blobs  Blobs
	sealer *Sealer
	now    func() time.Time
}

// NewSessions derives the sealing key from secret and the backend's salt.
func NewSessions(ctx context.Context, blobs Blobs, secret string) (*Sessions, error) {
	salt, err := blobs.Salt(ctx)
	if err != nil {
		return nil, fmt.Errorf("load salt: %w", err)
	}
	sealer, err := NewSealer(secret, salt)
	if err != nil {
		return nil, err
	}
	return &Sessions{blobs: blobs, sealer: sealer, now: time.Now}, nil
}

// Create stores id under a new random session ID and returns that ID.
func (m *Sessions) Create(ctx context.Context, id *model.Identity) (string, error) {
	sid, err := generateToken()
	if err != nil {
		return "", err
	}
	if err := m.Save(ctx, sid, id); err != nil {
		return "", err
	}
	return sid, nil
}

// Save stores id under sid. The entry expires with the token.
func (m *Sessions) Save(ctx context.Context, sid string, id *model.Identity) error {
	data, err := json.Marshal(id)
	if err != nil {
		return fmt.Errorf("encode identity: %w", err)
	}
	sealed, err := m.sealer.Seal(data)
	if err != nil {
		return fmt.Errorf("seal identity: %w", err)
	}
	expires := id.ExpiresAt
	if expires.IsZero() {
		expires = m.now().Add(DefaultSessionTTL)
	}
	return m.blobs.Put(ctx, sessionKey(sid), sealed, expires)
}

// Lookup returns the identity stored under sid, or ErrNotFound when the
// session is unknown, expired or unreadable.
func (m *Sessions) Lookup(ctx context.Context, sid string) (*model.Identity, error) {
	if sid == "" {
		return nil, ErrNotFound
	}
	sealed, err := m.blobs.Get(ctx, sessionKey(sid))
	if err != nil {
		return nil, err
	}
	data, err := m.sealer.Open(sealed)
	if err != nil {
		slog.Warn("dropping unreadable session", "error", err)
		_ = m.blobs.Delete(ctx, sessionKey(sid))
		return nil, ErrNotFound
	}
	var id model.Identity
	if err := json.Unmarshal(data, &id); err != nil {
		slog.Warn("dropping undecodable session", "error", err)
		_ = m.blobs.Delete(ctx, sessionKey(sid))
		return nil, ErrNotFound
	}
	if id.Expired(m.now()) {
		_ = m.blobs.Delete(ctx, sessionKey(sid))
		return nil, ErrNotFound
	}
	return &id, nil
}

// Delete removes a session.
func (m *Sessions) Delete(ctx context.Context, sid string) error {
	return m.blobs.Delete(ctx, sessionKey(sid))
}

// IsNotFound reports whether err means "no such session".
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func sessionKey(sid string) string { return "session:" + sid }

func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
