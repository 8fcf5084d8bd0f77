package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"clubapi.org/internal/store"
)

func TestSessionIssueAndValidate(t *testing.T) {
	st := store.NewMemory()
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	m := NewSessionManager(st.Sessions()).WithClock(func() time.Time { return now })
	ctx := context.Background()

	token, session, err := m.Issue(ctx, "u1")
	require.NoError(t, err)
	require.NotEmpty(t, token)
	require.NotEqual(t, token, session.TokenHash, "plaintext token is never stored")
	require.Equal(t, HashToken(token), session.TokenHash)

	// Validation touches the session.
	now = now.Add(10 * time.Minute)
	got, err := m.Validate(ctx, token)
	require.NoError(t, err)
	require.Equal(t, "u1", got.UserID)

	stored, err := st.Sessions().Find(ctx, session.ID)
	require.NoError(t, err)
	require.Equal(t, now, stored.LastSeen)
}

func TestSessionValidateRejectsUnknownToken(t *testing.T) {
	m := NewSessionManager(store.NewMemory().Sessions())
	ctx := context.Background()

	_, err := m.Validate(ctx, "")
	require.ErrorIs(t, err, ErrInvalidToken)

	_, err = m.Validate(ctx, "not-a-token")
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestSessionTokensAreUnique(t *testing.T) {
	m := NewSessionManager(store.NewMemory().Sessions())
	ctx := context.Background()

	t1, _, err := m.Issue(ctx, "u1")
	require.NoError(t, err)
	t2, _, err := m.Issue(ctx, "u1")
	require.NoError(t, err)
	require.NotEqual(t, t1, t2)
}

func TestSessionRevoke(t *testing.T) {
	m := NewSessionManager(store.NewMemory().Sessions())
	ctx := context.Background()

	token, _, err := m.Issue(ctx, "u1")
	require.NoError(t, err)
	require.NoError(t, m.Revoke(ctx, token))

	_, err = m.Validate(ctx, token)
	require.ErrorIs(t, err, ErrInvalidToken)

	require.ErrorIs(t, m.Revoke(ctx, token), ErrInvalidToken)
}

func TestExpireStaleBoundary(t *testing.T) {
	st := store.NewMemory()
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	now := base
	m := NewSessionManager(st.Sessions()).WithClock(func() time.Time { return now })
	ctx := context.Background()

	const timeout = time.Hour
	atThreshold, _, err := m.Issue(ctx, "u1")
	require.NoError(t, err)

	now = base.Add(time.Microsecond)
	_, _, err = m.Issue(ctx, "u1")
	require.NoError(t, err)

	// Sweep exactly timeout after the first session's activity: a session
	// last seen precisely at the threshold is not yet expired.
	deleted, err := m.ExpireStale(ctx, base.Add(timeout), timeout)
	require.NoError(t, err)
	require.Zero(t, deleted)

	_, err = m.Validate(ctx, atThreshold)
	require.NoError(t, err, "validation refreshed last-seen, keeping the session alive")

	// Much later both sessions are stale.
	deleted, err = m.ExpireStale(ctx, base.Add(48*time.Hour), timeout)
	require.NoError(t, err)
	require.Equal(t, 2, deleted)

	deleted, err = m.ExpireStale(ctx, base.Add(48*time.Hour), timeout)
	require.NoError(t, err)
	require.Zero(t, deleted, "the sweep is idempotent")
}
