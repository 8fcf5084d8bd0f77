package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"clubapi.org/internal/ids"
	"clubapi.org/internal/store"
)

// tokenBytes is the entropy of an issued session token: 32 bytes = 256 bits.
const tokenBytes = 32

// SessionManager issues, validates and expires opaque session tokens. Tokens
// are random and unforgeable without the server's stored state; only the
// SHA-256 of a token is kept at rest, so a leaked session table does not leak
// usable credentials.
type SessionManager struct {
	sessions store.SessionStore
	now      func() time.Time
}

// NewSessionManager creates a manager on top of the session store.
func NewSessionManager(sessions store.SessionStore) *SessionManager {
	return &SessionManager{sessions: sessions, now: time.Now}
}

// WithClock overrides the time source, for tests.
func (m *SessionManager) WithClock(now func() time.Time) *SessionManager {
	if now != nil {
		m.now = now
	}
	return m
}

// Issue creates a session for the user and returns the plaintext token. The
// token is shown exactly once; it cannot be recovered from the store.
func (m *SessionManager) Issue(ctx context.Context, userID string) (string, *store.Session, error) {
	raw := make([]byte, tokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", nil, fmt.Errorf("generate session token: %w", err)
	}
	token := base64.RawURLEncoding.EncodeToString(raw)
	now := m.now().UTC()
	session := &store.Session{
		ID:        ids.New(),
		UserID:    userID,
		TokenHash: HashToken(token),
		CreatedAt: now,
		LastSeen:  now,
	}
	if err := m.sessions.Create(ctx, session); err != nil {
		return "", nil, fmt.Errorf("persist session: %w", err)
	}
	return token, session, nil
}

// Validate resolves a presented token to its active session and refreshes the
// last-seen timestamp, so any authenticated request counts as activity for
// expiry purposes. A request that validates just before a concurrent sweep
// completes with the pre-sweep identity; the touch of a deleted session is
// ignored.
func (m *SessionManager) Validate(ctx context.Context, token string) (*store.Session, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}
	session, err := m.sessions.FindByTokenHash(ctx, HashToken(token))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("session lookup: %w", err)
	}
	if err := m.sessions.Touch(ctx, session.ID, m.now().UTC()); err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("session touch: %w", err)
	}
	return session, nil
}

// Revoke deletes the session presenting the given token.
func (m *SessionManager) Revoke(ctx context.Context, token string) error {
	session, err := m.sessions.FindByTokenHash(ctx, HashToken(token))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrInvalidToken
		}
		return err
	}
	return m.sessions.Delete(ctx, session.ID)
}

// ExpireStale deletes sessions whose last activity is older than timeout.
// A session exactly at the threshold is not yet expired. Idempotent and safe
// to run concurrently with Issue and Validate.
func (m *SessionManager) ExpireStale(ctx context.Context, now time.Time, timeout time.Duration) (int, error) {
	return m.sessions.DeleteLastSeenBefore(ctx, now.Add(-timeout))
}

// HashToken computes the storage form of a session token.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
