package store

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pavelanni/schoolportal/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("newTestStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestSessions(t *testing.T, blobs Blobs) *Sessions {
	t.Helper()
	m, err := NewSessions(context.Background(), blobs, "test-secret")
	if err != nil {
		t.Fatalf("NewSessions: %v", err)
	}
	return m
}

func testIdentity(expires time.Time) *model.Identity {
	return &model.Identity{
		Token:     "tok-1",
		ExpiresAt: expires,
		Profile: model.StudentProfile{
			UserID:    "u1",
			Name:      "Meera",
			StudentID: "st1",
			SchoolID:  "s1",
			ClassID:   "c1",
		},
	}
}

func TestBlobCRUD(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if _, err := s.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get missing: %v", err)
	}

	if err := s.Put(ctx, "a", []byte("one"), time.Time{}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := s.Put(ctx, "a", []byte("two"), time.Time{}); err != nil {
		t.Fatalf("Put replace: %v", err)
	}
	got, err := s.Get(ctx, "a")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "two" {
		t.Errorf("value = %q, want two", got)
	}

	if err := s.Delete(ctx, "a"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Delete(ctx, "a"); err != nil {
		t.Fatalf("Delete twice: %v", err)
	}
	if _, err := s.Get(ctx, "a"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after delete: %v", err)
	}
}

func TestBlobExpiry(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	now := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	s.Put(ctx, "short", []byte("x"), now.Add(time.Minute))
	s.Put(ctx, "long", []byte("y"), now.Add(time.Hour))
	s.Put(ctx, "forever", []byte("z"), time.Time{})

	now = now.Add(2 * time.Minute)
	if _, err := s.Get(ctx, "short"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expired blob returned: %v", err)
	}
	if _, err := s.Get(ctx, "long"); err != nil {
		t.Errorf("live blob: %v", err)
	}

	now = now.Add(2 * time.Hour)
	n, err := s.PurgeExpired(ctx)
	if err != nil {
		t.Fatalf("PurgeExpired: %v", err)
	}
	if n != 1 {
		t.Errorf("purged %d, want 1", n)
	}
	count, _ := s.Count(ctx)
	if count != 1 {
		t.Errorf("count = %d, want 1", count)
	}
}

func TestMetadata(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	v, err := s.GetMetadata(ctx, "nope")
	if err != nil || v != "" {
		t.Fatalf("missing key: %q %v", v, err)
	}
	s.SetMetadata(ctx, "k", "1")
	s.SetMetadata(ctx, "k", "2")
	if v, _ := s.GetMetadata(ctx, "k"); v != "2" {
		t.Errorf("value = %q", v)
	}
}

func TestSaltIsStable(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "portal.db")

	s, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	first, err := s.Salt(ctx)
	if err != nil {
		t.Fatalf("Salt: %v", err)
	}
	if len(first) != saltSize {
		t.Errorf("salt size = %d", len(first))
	}
	s.Close()

	s, err = New(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	second, _ := s.Salt(ctx)
	if !bytes.Equal(first, second) {
		t.Error("salt changed across reopen")
	}
}

func TestSealer(t *testing.T) {
	salt := bytes.Repeat([]byte{7}, saltSize)
	a, err := NewSealer("secret", salt)
	if err != nil {
		t.Fatalf("NewSealer: %v", err)
	}
	sealed, err := a.Seal([]byte("hello"))
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if bytes.Contains(sealed, []byte("hello")) {
		t.Error("sealed data contains plaintext")
	}
	plain, err := a.Open(sealed)
	if err != nil || string(plain) != "hello" {
		t.Fatalf("Open = %q, %v", plain, err)
	}

	tests := []struct {
		name   string
		secret string
		data   []byte
	}{
		{"other secret", "other", sealed},
		{"tampered", "secret", append(append([]byte{}, sealed[:len(sealed)-1]...), sealed[len(sealed)-1]^1)},
		{"truncated", "secret", sealed[:10]},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, _ := NewSealer(tt.secret, salt)
			if _, err := b.Open(tt.data); !errors.Is(err, ErrSealBroken) {
				t.Errorf("err = %v", err)
			}
		})
	}

	if _, err := NewSealer("", salt); err == nil {
		t.Error("empty secret accepted")
	}
}

func TestSessionsRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	m := newTestSessions(t, s)

	want := testIdentity(time.Now().Add(time.Hour).Truncate(time.Second))
	sid, err := m.Create(ctx, want)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if len(sid) != 64 {
		t.Errorf("session id length = %d", len(sid))
	}

	got, err := m.Lookup(ctx, sid)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if got.Token != want.Token || !got.ExpiresAt.Equal(want.ExpiresAt) || got.Profile != want.Profile {
		t.Errorf("identity = %+v, want %+v", got, want)
	}

	raw, _ := s.Get(ctx, sessionKey(sid))
	if bytes.Contains(raw, []byte("tok-1")) {
		t.Error("token stored in clear")
	}

	if err := m.Delete(ctx, sid); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := m.Lookup(ctx, sid); !IsNotFound(err) {
		t.Errorf("Lookup after delete: %v", err)
	}
}

func TestSessionsExpiry(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	m := newTestSessions(t, s)
	now := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }
	s.now = m.now

	sid, err := m.Create(ctx, testIdentity(now.Add(30*time.Minute)))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	noExpiry, err := m.Create(ctx, testIdentity(time.Time{}))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	now = now.Add(time.Hour)
	if _, err := m.Lookup(ctx, sid); !IsNotFound(err) {
		t.Errorf("expired session returned: %v", err)
	}
	if _, err := m.Lookup(ctx, noExpiry); err != nil {
		t.Errorf("session without token expiry should use the default TTL: %v", err)
	}
	now = now.Add(DefaultSessionTTL)
	if _, err := m.Lookup(ctx, noExpiry); !IsNotFound(err) {
		t.Errorf("default TTL not applied: %v", err)
	}
}

func TestSessionsSecretChange(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	m := newTestSessions(t, s)

	sid, err := m.Create(ctx, testIdentity(time.Now().Add(time.Hour)))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	other, err := NewSessions(ctx, s, "rotated")
	if err != nil {
		t.Fatalf("NewSessions: %v", err)
	}
	if _, err := other.Lookup(ctx, sid); !IsNotFound(err) {
		t.Errorf("lookup with rotated secret: %v", err)
	}
	if n, _ := s.Count(ctx); n != 0 {
		t.Errorf("unreadable session kept: %d blobs", n)
	}
}

func TestSessionsEmptyID(t *testing.T) {
	m := newTestSessions(t, newTestStore(t))
	if _, err := m.Lookup(context.Background(), ""); !IsNotFound(err) {
		t.Errorf("err = %v", err)
	}
}

func TestRedisBlobs(t *testing.T) {
	url := os.Getenv("SCHOOLPORTAL_TEST_REDIS_URL")
	if url == "" {
		t.Skip("set SCHOOLPORTAL_TEST_REDIS_URL to run redis tests")
	}
	ctx := context.Background()
	r, err := NewRedis(ctx, url)
	if err != nil {
		t.Fatalf("NewRedis: %v", err)
	}
	t.Cleanup(func() { r.Close() })

	m := newTestSessions(t, r)
	sid, err := m.Create(ctx, testIdentity(time.Now().Add(time.Minute)))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	t.Cleanup(func() { m.Delete(ctx, sid) })

	got, err := m.Lookup(ctx, sid)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if got.Role() != model.RoleStudent {
		t.Errorf("role = %q", got.Role())
	}

	if err := r.Put(ctx, "past", []byte("x"), time.Now().Add(-time.Second)); err != nil {
		t.Fatalf("Put expired: %v", err)
	}
	if _, err := r.Get(ctx, "past"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expired value stored: %v", err)
	}
}
