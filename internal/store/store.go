// Package store describes persistence for the API: typed stores for users,
// sessions and role assignments, and a schemaless document store for the
// registered resources. Memory implements everything in-process; store/pg is
// the durable PostgreSQL implementation.
package store

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("store: not found")
	ErrConflict = errors.New("store: conflict")
)

// Store bundles the individual stores behind one connection.
type Store interface {
	Users() UserStore
	Sessions() SessionStore
	Assignments() AssignmentStore
	Documents(collection string) DocumentStore
}

// UserStore manages accounts.
type UserStore interface {
	// Create persists the user, assigning an ID when none is set.
	Create(ctx context.Context, u *User) error
	Find(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	List(ctx context.Context) ([]*User, error)
	// Update rewrites the mutable account fields (email, name, active).
	Update(ctx context.Context, u *User) error
	UpdatePassword(ctx context.Context, userID, passwordHash string) error
	Delete(ctx context.Context, id string) error
}

// SessionStore manages login sessions.
type SessionStore interface {
	Create(ctx context.Context, s *Session) error
	Find(ctx context.Context, id string) (*Session, error)
	FindByTokenHash(ctx context.Context, hash string) (*Session, error)
	ListByUser(ctx context.Context, userID string) ([]*Session, error)
	// Touch refreshes the last-seen timestamp. Concurrent touches of the
	// same session race; last write wins.
	Touch(ctx context.Context, id string, at time.Time) error
	Delete(ctx context.Context, id string) error
	// DeleteLastSeenBefore removes sessions whose last-seen time is strictly
	// before cutoff. A session last seen exactly at cutoff survives. Safe to
	// run concurrently with Create/Touch and idempotent.
	DeleteLastSeenBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// AssignmentStore manages role assignments.
type AssignmentStore interface {
	Assign(ctx context.Context, a RoleAssignment) error
	ListByUser(ctx context.Context, userID string) ([]RoleAssignment, error)
	Remove(ctx context.Context, userID, role string) error
	// DeleteExpired purges assignments whose expiry has passed.
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}

// DocumentStore manages one schemaless collection.
type DocumentStore interface {
	// Insert persists the document, assigning "_id" when missing, and
	// returns the stored copy.
	Insert(ctx context.Context, doc Document) (Document, error)
	Find(ctx context.Context, id string) (Document, error)
	List(ctx context.Context, filter Filter) ([]Document, error)
	Replace(ctx context.Context, id string, doc Document) error
	// Update applies a partial update and returns the resulting document.
	Update(ctx context.Context, id string, updates Document) (Document, error)
	Delete(ctx context.Context, id string) error
}
