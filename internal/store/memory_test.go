package store

import (
	"context"
	"testing"
	"time"
)

func TestSessionSweepBoundary(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	timeout := time.Hour
	cutoff := now.Add(-timeout)

	atThreshold := &Session{ID: "at", UserID: "u1", TokenHash: "h1", LastSeen: cutoff}
	justPast := &Session{ID: "past", UserID: "u1", TokenHash: "h2", LastSeen: cutoff.Add(-time.Microsecond)}
	fresh := &Session{ID: "fresh", UserID: "u1", TokenHash: "h3", LastSeen: now}
	for _, s := range []*Session{atThreshold, justPast, fresh} {
		if err := m.Sessions().Create(ctx, s); err != nil {
			t.Fatalf("Create(%s): %v", s.ID, err)
		}
	}

	deleted, err := m.Sessions().DeleteLastSeenBefore(ctx, cutoff)
	if err != nil {
		t.Fatalf("DeleteLastSeenBefore: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("expected exactly the stale session deleted, got %d", deleted)
	}
	if _, err := m.Sessions().Find(ctx, "at"); err != nil {
		t.Fatalf("session at the threshold must survive: %v", err)
	}
	if _, err := m.Sessions().Find(ctx, "past"); err != ErrNotFound {
		t.Fatalf("session past the threshold must be gone, got %v", err)
	}

	// Idempotent: a second sweep removes nothing.
	deleted, err = m.Sessions().DeleteLastSeenBefore(ctx, cutoff)
	if err != nil || deleted != 0 {
		t.Fatalf("second sweep: deleted=%d err=%v", deleted, err)
	}
}

func TestSessionTokenHashUnique(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	if err := m.Sessions().Create(ctx, &Session{ID: "a", TokenHash: "same"}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := m.Sessions().Create(ctx, &Session{ID: "b", TokenHash: "same"}); err != ErrConflict {
		t.Fatalf("expected ErrConflict for duplicate token hash, got %v", err)
	}
}

func TestAssignmentExpiry(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	now := time.Now().UTC()
	perennial := RoleAssignment{UserID: "u1", Role: "vorstand"}
	expired := RoleAssignment{UserID: "u1", Role: "kulturi", ExpiresAt: now.Add(-time.Hour)}
	for _, a := range []RoleAssignment{perennial, expired} {
		if err := m.Assignments().Assign(ctx, a); err != nil {
			t.Fatalf("Assign: %v", err)
		}
	}

	deleted, err := m.Assignments().DeleteExpired(ctx, now)
	if err != nil {
		t.Fatalf("DeleteExpired: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("expected one purged assignment, got %d", deleted)
	}
	rest, err := m.Assignments().ListByUser(ctx, "u1")
	if err != nil {
		t.Fatalf("ListByUser: %v", err)
	}
	if len(rest) != 1 || rest[0].Role != "vorstand" {
		t.Fatalf("unexpected surviving assignments: %v", rest)
	}
}

func TestDocumentFilterDirectAndExists(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	groups := m.Documents("groups")
	g, err := groups.Insert(ctx, Document{"name": "it-committee", "moderator_id": "u-mod"})
	if err != nil {
		t.Fatalf("Insert group: %v", err)
	}
	memberships := m.Documents("groupmemberships")
	if _, err := memberships.Insert(ctx, Document{"group_id": g.ID(), "user_id": "u-member"}); err != nil {
		t.Fatalf("Insert membership: %v", err)
	}

	direct := Eq("moderator_id", "u-mod")
	got, err := groups.List(ctx, direct)
	if err != nil || len(got) != 1 {
		t.Fatalf("direct filter: docs=%d err=%v", len(got), err)
	}

	viaMembers := Filter{}.AndClause(Condition{Exists: &Exists{
		Collection:  "groupmemberships",
		LocalField:  IDField,
		RemoteField: "group_id",
		Field:       "user_id",
		Value:       "u-member",
	}})
	got, err = groups.List(ctx, viaMembers)
	if err != nil || len(got) != 1 {
		t.Fatalf("exists filter: docs=%d err=%v", len(got), err)
	}

	nobody := Eq("moderator_id", "someone-else")
	got, err = groups.List(ctx, nobody)
	if err != nil || len(got) != 0 {
		t.Fatalf("non-matching filter: docs=%d err=%v", len(got), err)
	}
}

func TestDocumentUpdateMergesWithoutMutatingInputs(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	docs := m.Documents("events")

	inserted, err := docs.Insert(ctx, Document{"title": "LAN party", "spots": 40})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	updates := Document{"spots": 60}
	merged, err := docs.Update(ctx, inserted.ID(), updates)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if merged["title"] != "LAN party" || !valuesEqual(merged["spots"], 60) {
		t.Fatalf("unexpected merge result: %v", merged)
	}
	if merged.ID() != inserted.ID() {
		t.Fatalf("identifier changed during update")
	}

	// The returned copy must not alias the stored document.
	merged["title"] = "changed"
	reread, err := docs.Find(ctx, inserted.ID())
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if reread["title"] != "LAN party" {
		t.Fatalf("stored document was mutated through a returned copy")
	}
}

func TestUserEmailUnique(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	if err := m.Users().Create(ctx, &User{Email: "Pres@example.com", Active: true}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	err := m.Users().Create(ctx, &User{Email: "pres@example.com", Active: true})
	if err != ErrConflict {
		t.Fatalf("expected ErrConflict for duplicate email, got %v", err)
	}
	found, err := m.Users().FindByEmail(ctx, "PRES@example.com")
	if err != nil {
		t.Fatalf("FindByEmail: %v", err)
	}
	if found.Email != "pres@example.com" {
		t.Fatalf("email not normalized: %s", found.Email)
	}
}
