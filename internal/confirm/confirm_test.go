package confirm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSignAndVerify(t *testing.T) {
	s, err := NewSigner([]byte("test-secret"), time.Hour)
	require.NoError(t, err)

	token, err := s.Sign("eventsignups", "s1", "confirm-email")
	require.NoError(t, err)

	claims, err := s.Verify(token, "confirm-email")
	require.NoError(t, err)
	require.Equal(t, "eventsignups", claims.Resource)
	require.Equal(t, "s1", claims.ItemID)
}

func TestVerifyRejections(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	s, err := NewSigner([]byte("test-secret"), time.Hour)
	require.NoError(t, err)
	s.WithClock(func() time.Time { return now })

	token, err := s.Sign("eventsignups", "s1", "confirm-email")
	require.NoError(t, err)

	t.Run("wrong purpose", func(t *testing.T) {
		_, err := s.Verify(token, "reset-password")
		require.ErrorIs(t, err, ErrInvalid)
	})

	t.Run("wrong secret", func(t *testing.T) {
		other, err := NewSigner([]byte("other-secret"), time.Hour)
		require.NoError(t, err)
		_, err = other.Verify(token, "confirm-email")
		require.ErrorIs(t, err, ErrInvalid)
	})

	t.Run("expired", func(t *testing.T) {
		now = now.Add(2 * time.Hour)
		_, err := s.Verify(token, "confirm-email")
		require.ErrorIs(t, err, ErrInvalid)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := s.Verify("not.a.token", "confirm-email")
		require.ErrorIs(t, err, ErrInvalid)
	})
}

func TestNewSignerRequiresSecret(t *testing.T) {
	_, err := NewSigner(nil, time.Hour)
	require.Error(t, err)
}
