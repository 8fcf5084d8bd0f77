package auth

import (
	"clubapi.org/internal/store"
)

const (
	// RootUserID is the designated superuser identity. The engine bypasses
	// the matrix and the ownership resolver for it through an explicit
	// branch, never through matrix data.
	RootUserID = "000000000000000000000000"

	// AnonymousUserID identifies unauthenticated callers and callers
	// authorized via a static API key.
	AnonymousUserID = "-1"
)

// AuthorField is stamped onto every authorized insert and replace with the
// identity that performed the write.
const AuthorField = "_author"

// Identity is the resolved caller of one request. It is constructed once by
// the authentication middleware and passed explicitly down the call chain.
type Identity struct {
	UserID string
	Roles  []store.RoleAssignment

	// Key is set when the caller presented a configured API key instead of
	// a session token. Such callers are anonymous.
	Key *APIKey
}

// Anonymous returns the identity of a caller without any credential.
func Anonymous() Identity {
	return Identity{UserID: AnonymousUserID}
}

func (id Identity) IsRoot() bool      { return id.UserID == RootUserID }
func (id Identity) IsAnonymous() bool { return id.UserID == AnonymousUserID || id.UserID == "" }

// StampAuthor records the acting identity on a document about to be inserted
// or replaced. API-key and anonymous system writes record the anonymous
// sentinel.
func StampAuthor(id Identity, doc store.Document) {
	author := id.UserID
	if author == "" {
		author = AnonymousUserID
	}
	doc[AuthorField] = author
}
