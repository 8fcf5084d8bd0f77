package auth

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"clubapi.org/internal/store"
)

func TestLoadMatrix(t *testing.T) {
	const doc = `
vorstand:
  events: [GET, POST, PATCH, DELETE]
  users: [GET, PATCH]
kulturi:
  events: [GET, POST]
`
	m, err := LoadMatrix(strings.NewReader(doc))
	require.NoError(t, err)

	require.True(t, m.Allows("vorstand", "events", http.MethodDelete))
	require.True(t, m.Allows("kulturi", "events", http.MethodPost))
	require.False(t, m.Allows("kulturi", "users", http.MethodGet))
	require.False(t, m.Allows("unknown-role", "events", http.MethodGet))
	require.False(t, m.Allows("vorstand", "unknown-resource", http.MethodGet))
}

func TestLoadMatrixRejectsUnknownMethod(t *testing.T) {
	_, err := LoadMatrix(strings.NewReader("vorstand:\n  events: [FETCH]\n"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown method")
}

func TestNilMatrixDeniesEverything(t *testing.T) {
	var m *Matrix
	require.False(t, m.Allows("vorstand", "events", http.MethodGet))
}

func TestAnyRoleAllowsSkipsExpired(t *testing.T) {
	m, err := NewMatrix(map[string]map[string][]string{
		"vorstand": {"events": {http.MethodPost}},
		"kulturi":  {"events": {http.MethodGet}},
	})
	require.NoError(t, err)

	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	assignments := []store.RoleAssignment{
		{UserID: "u1", Role: "vorstand", ExpiresAt: now.Add(-time.Minute)},
		{UserID: "u1", Role: "kulturi"},
	}
	require.False(t, m.AnyRoleAllows(assignments, "events", http.MethodPost, now))
	require.True(t, m.AnyRoleAllows(assignments, "events", http.MethodGet, now))

	// An assignment expiring exactly now is still valid.
	boundary := []store.RoleAssignment{{UserID: "u1", Role: "vorstand", ExpiresAt: now}}
	require.True(t, m.AnyRoleAllows(boundary, "events", http.MethodPost, now))
}

func TestMatrixSnapshot(t *testing.T) {
	m, err := NewMatrix(map[string]map[string][]string{
		"vorstand": {"events": {http.MethodPost, http.MethodGet}},
		"kulturi":  {"events": {http.MethodGet}},
	})
	require.NoError(t, err)

	snap := m.Snapshot()
	require.Len(t, snap, 2)
	require.Equal(t, "kulturi", snap[0].Name)
	require.Equal(t, "vorstand", snap[1].Name)
	require.Equal(t, []string{http.MethodGet, http.MethodPost}, snap[1].Permissions["events"])
}
