package auth

import (
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadKeyring(t *testing.T) {
	const doc = `
screen-7f3a:
  name: event-screen
  resources:
    events: read
importer-91bc:
  name: signup-importer
  resources:
    eventsignups: readwrite
    events: read
`
	ring, err := LoadKeyring(strings.NewReader(doc))
	require.NoError(t, err)

	key, ok := ring.Lookup("screen-7f3a")
	require.True(t, ok)
	require.Equal(t, "event-screen", key.Name)
	require.True(t, key.AllowsMethod("events", http.MethodGet))
	require.False(t, key.AllowsMethod("events", http.MethodPost), "read covers GET only")
	require.False(t, key.AllowsMethod("users", http.MethodGet))

	key, ok = ring.Lookup("importer-91bc")
	require.True(t, ok)
	require.True(t, key.AllowsMethod("eventsignups", http.MethodPost))
	require.True(t, key.AllowsMethod("eventsignups", http.MethodDelete))

	// An unconfigured credential is not an API key; callers fall through to
	// session token authentication.
	_, ok = ring.Lookup("some-session-token")
	require.False(t, ok)
}

func TestNewKeyringValidation(t *testing.T) {
	_, err := NewKeyring(map[string]APIKey{
		"k1": {Name: "bad", Resources: map[string]KeyPermission{"events": "admin"}},
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown permission")

	_, err = NewKeyring(map[string]APIKey{
		"  ": {Name: "empty"},
	})
	require.Error(t, err)
}

func TestNilKeyringLookup(t *testing.T) {
	var ring *Keyring
	_, ok := ring.Lookup("anything")
	require.False(t, ok)
}
