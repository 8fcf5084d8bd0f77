package store

import "time"

// User is an account that can log in and hold role assignments.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name,omitempty"`
	PasswordHash string    `json:"-"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Session binds a login token to a user. Only the SHA-256 of the token is
// stored; the plaintext token exists client-side only.
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	TokenHash string    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
	LastSeen  time.Time `json:"last_seen"`
}

// RoleAssignment grants a user the blanket permissions of a role. A zero
// ExpiresAt means the assignment never expires.
type RoleAssignment struct {
	UserID    string    `json:"user_id"`
	Role      string    `json:"role"`
	ExpiresAt time.Time `json:"expires_at,omitzero"`
}

// Expired reports whether the assignment is inert at the given time.
func (a RoleAssignment) Expired(now time.Time) bool {
	return !a.ExpiresAt.IsZero() && now.After(a.ExpiresAt)
}

// Document is a schemaless record in a named collection. The "_id" field holds
// the record identifier once persisted.
type Document map[string]any

// IDField is the document identifier field.
const IDField = "_id"

// ID returns the document identifier, or "" for unpersisted documents.
func (d Document) ID() string {
	v, _ := d[IDField].(string)
	return v
}

// Clone returns a deep copy of the document.
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = cloneValue(v)
	}
	return out
}

// Merge returns a copy of original with updates applied on top. Neither input
// is modified.
func Merge(original, updates Document) Document {
	merged := original.Clone()
	if merged == nil {
		merged = Document{}
	}
	for k, v := range updates {
		merged[k] = cloneValue(v)
	}
	return merged
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return Document(t).Clone()
	case Document:
		return t.Clone()
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}
