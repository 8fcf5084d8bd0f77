package auth

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// KeyPermission is the access level an API key holds on one resource.
type KeyPermission string

const (
	KeyPermissionNone      KeyPermission = ""
	KeyPermissionRead      KeyPermission = "read"
	KeyPermissionReadWrite KeyPermission = "readwrite"
)

// APIKey is one configured static key. API keys identify non-interactive
// clients; they are not bound to any user record.
type APIKey struct {
	Name      string                   `yaml:"name"`
	Resources map[string]KeyPermission `yaml:"resources"`
}

// Level returns the key's permission on the resource, KeyPermissionNone when
// unconfigured.
func (k APIKey) Level(resource string) KeyPermission {
	return k.Resources[resource]
}

// AllowsMethod reports whether the key's grant covers the method on the
// resource: read covers GET only, readwrite covers everything.
func (k APIKey) AllowsMethod(resource, method string) bool {
	switch k.Level(resource) {
	case KeyPermissionReadWrite:
		return true
	case KeyPermissionRead:
		return method == http.MethodGet
	default:
		return false
	}
}

// Keyring is the static key table, loaded once at startup and read-only for
// the process lifetime.
type Keyring struct {
	keys map[string]APIKey
}

// NewKeyring validates and builds a keyring from its literal form.
func NewKeyring(keys map[string]APIKey) (*Keyring, error) {
	ring := &Keyring{keys: make(map[string]APIKey, len(keys))}
	for token, key := range keys {
		token = strings.TrimSpace(token)
		if token == "" {
			return nil, fmt.Errorf("api keys: empty key string")
		}
		for resource, level := range key.Resources {
			if strings.TrimSpace(resource) == "" {
				return nil, fmt.Errorf("api keys: key %q grants an empty resource name", key.Name)
			}
			switch level {
			case KeyPermissionRead, KeyPermissionReadWrite:
			default:
				return nil, fmt.Errorf("api keys: key %q resource %q: unknown permission %q", key.Name, resource, level)
			}
		}
		ring.keys[token] = key
	}
	return ring, nil
}

// LoadKeyring reads a YAML document mapping key strings to their grants:
//
//	<key>:
//	  name: event-screen
//	  resources:
//	    events: read
func LoadKeyring(r io.Reader) (*Keyring, error) {
	var raw map[string]APIKey
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("api keys: decode: %w", err)
	}
	return NewKeyring(raw)
}

// LoadKeyringFile loads the key table from a YAML file.
func LoadKeyringFile(path string) (*Keyring, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("api keys: %w", err)
	}
	defer f.Close()
	return LoadKeyring(f)
}

// Lookup resolves a presented credential to a configured key. ok=false means
// "not an API key": the caller falls through to session token authentication.
func (r *Keyring) Lookup(token string) (APIKey, bool) {
	if r == nil {
		return APIKey{}, false
	}
	key, ok := r.keys[token]
	return key, ok
}
