package auth

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"clubapi.org/internal/store"
)

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	reg := NewRegistry()
	for _, meta := range []Metadata{
		{
			Name:             "events",
			PublicMethods:    []string{http.MethodGet},
			PublicItemLookup: true,
		},
		{
			Name:         "eventsignups",
			UserMethods:  []string{http.MethodPost},
			OwnerMethods: []string{http.MethodGet, http.MethodPatch, http.MethodDelete},
			OwnerFields:  []string{"user_id"},
		},
		{
			Name:         "groups",
			OwnerMethods: []string{http.MethodGet, http.MethodPatch},
			OwnerFields:  []string{"moderator_id", "members.user_id"},
			Relations: map[string]Relation{
				"members": {Collection: "groupmemberships", LocalField: store.IDField, RemoteField: "group_id"},
			},
		},
		{
			Name:         "joboffers",
			OwnerMethods: []string{http.MethodGet},
			OwnerFields:  []string{AuthorField},
		},
	} {
		require.NoError(t, reg.Register(meta))
	}
	return reg
}

func testEngine(t *testing.T, st store.Store) *Engine {
	t.Helper()
	matrix, err := NewMatrix(map[string]map[string][]string{
		"vorstand": {
			"events":       {http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete},
			"eventsignups": {http.MethodGet, http.MethodPatch, http.MethodDelete},
		},
	})
	require.NoError(t, err)
	return NewEngine(testRegistry(t), matrix, NewOwnerResolver(st))
}

func userIdentity(id string, roles ...string) Identity {
	ident := Identity{UserID: id}
	for _, role := range roles {
		ident.Roles = append(ident.Roles, store.RoleAssignment{UserID: id, Role: role})
	}
	return ident
}

func TestAuthorizePrecedence(t *testing.T) {
	eng := testEngine(t, store.NewMemory())
	ctx := context.Background()

	tests := []struct {
		name     string
		ident    Identity
		resource string
		method   string
		effect   Effect
		err      error
	}{
		{"root bypasses everything", Identity{UserID: RootUserID}, "eventsignups", http.MethodDelete, EffectAllow, nil},
		{"public method open to anonymous", Anonymous(), "events", http.MethodGet, EffectAllow, nil},
		{"role grant allows", userIdentity("u1", "vorstand"), "events", http.MethodPost, EffectAllow, nil},
		{"anonymous refused as unauthenticated", Anonymous(), "eventsignups", http.MethodPost, EffectDeny, ErrUnauthenticated},
		{"registered user method allows", userIdentity("u1"), "eventsignups", http.MethodPost, EffectAllow, nil},
		{"owner method allows with filter", userIdentity("u1"), "eventsignups", http.MethodGet, EffectAllowOwnerFilter, nil},
		{"role grant beats owner restriction", userIdentity("u1", "vorstand"), "eventsignups", http.MethodGet, EffectAllow, nil},
		{"no grant at all is forbidden", userIdentity("u1"), "events", http.MethodPost, EffectDeny, ErrForbidden},
		{"unregistered resource is forbidden", userIdentity("u1"), "nonsense", http.MethodGet, EffectDeny, ErrForbidden},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			d := eng.Authorize(ctx, tc.ident, tc.resource, tc.method)
			require.Equal(t, tc.effect, d.Effect)
			if tc.err != nil {
				require.ErrorIs(t, d.Err, tc.err)
			} else {
				require.NoError(t, d.Err)
			}
		})
	}
}

func TestAuthorizeIsIdempotent(t *testing.T) {
	eng := testEngine(t, store.NewMemory())
	ctx := context.Background()
	ident := userIdentity("u1")

	first := eng.Authorize(ctx, ident, "eventsignups", http.MethodGet)
	second := eng.Authorize(ctx, ident, "eventsignups", http.MethodGet)
	require.Equal(t, first.Effect, second.Effect)
	require.Equal(t, first.Filter, second.Filter)
}

func TestAuthorizeExpiredRoleIsInert(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	matrix, err := NewMatrix(map[string]map[string][]string{
		"vorstand": {"events": {http.MethodPost}},
	})
	require.NoError(t, err)
	eng := NewEngine(testRegistry(t), matrix, NewOwnerResolver(store.NewMemory()),
		WithClock(func() time.Time { return now }))

	ident := Identity{UserID: "u1", Roles: []store.RoleAssignment{
		{UserID: "u1", Role: "vorstand", ExpiresAt: now.Add(-time.Hour)},
	}}
	d := eng.Authorize(context.Background(), ident, "events", http.MethodPost)
	require.Equal(t, EffectDeny, d.Effect)
	require.ErrorIs(t, d.Err, ErrForbidden)
}

func TestAuthorizeAPIKeyIsExclusive(t *testing.T) {
	eng := testEngine(t, store.NewMemory())
	ctx := context.Background()

	reader := &APIKey{Name: "screen", Resources: map[string]KeyPermission{"eventsignups": KeyPermissionRead}}
	writer := &APIKey{Name: "importer", Resources: map[string]KeyPermission{"eventsignups": KeyPermissionReadWrite}}

	d := eng.Authorize(ctx, Identity{UserID: AnonymousUserID, Key: reader}, "eventsignups", http.MethodGet)
	require.Equal(t, EffectAllow, d.Effect, "read key grants GET without any owner scoping")

	d = eng.Authorize(ctx, Identity{UserID: AnonymousUserID, Key: reader}, "eventsignups", http.MethodPost)
	require.Equal(t, EffectDeny, d.Effect)
	require.ErrorIs(t, d.Err, ErrForbidden)

	d = eng.Authorize(ctx, Identity{UserID: AnonymousUserID, Key: writer}, "eventsignups", http.MethodDelete)
	require.Equal(t, EffectAllow, d.Effect)

	// A key without a grant is denied even where anonymous callers would be
	// allowed: the key decides the request on its own.
	d = eng.Authorize(ctx, Identity{UserID: AnonymousUserID, Key: reader}, "events", http.MethodGet)
	require.Equal(t, EffectDeny, d.Effect)
	require.ErrorIs(t, d.Err, ErrForbidden)
}

func TestAuthorizeItemOwnership(t *testing.T) {
	st := store.NewMemory()
	eng := testEngine(t, st)
	ctx := context.Background()

	signup := store.Document{"_id": "s1", "user_id": "u1", "event_id": "e1"}
	_, err := st.Documents("eventsignups").Insert(ctx, signup)
	require.NoError(t, err)

	d := eng.AuthorizeItem(ctx, userIdentity("u1"), "eventsignups", http.MethodDelete, signup)
	require.Equal(t, EffectAllow, d.Effect)

	d = eng.AuthorizeItem(ctx, userIdentity("u2"), "eventsignups", http.MethodDelete, signup)
	require.Equal(t, EffectDeny, d.Effect)
	require.ErrorIs(t, d.Err, ErrForbidden)

	// Future payload: authorizing a POST against a document that is not
	// persisted yet.
	draft := store.Document{"user_id": "u1", "event_id": "e1"}
	d = eng.AuthorizeItem(ctx, userIdentity("u1"), "eventsignups", http.MethodPatch, draft)
	require.Equal(t, EffectAllow, d.Effect)
}

func TestAuthorizeItemResolutionFaultDenies(t *testing.T) {
	st := store.NewMemory()
	reg := NewRegistry()
	require.NoError(t, reg.Register(Metadata{
		Name:         "groupmemberships",
		OwnerMethods: []string{http.MethodDelete},
		OwnerFields:  []string{"user_id", "group.moderator_id"},
		Relations: map[string]Relation{
			"group": {Collection: "groups", LocalField: "group_id", RemoteField: store.IDField},
		},
	}))
	matrix, err := NewMatrix(nil)
	require.NoError(t, err)

	var logged []string
	eng := NewEngine(reg, matrix, NewOwnerResolver(st),
		WithLogf(func(format string, args ...any) { logged = append(logged, format) }))

	// group_id points at a group that does not exist.
	membership := store.Document{"_id": "m1", "user_id": "other", "group_id": "gone"}
	d := eng.AuthorizeItem(context.Background(), userIdentity("u1"), "groupmemberships", http.MethodDelete, membership)
	require.Equal(t, EffectDeny, d.Effect)
	require.ErrorIs(t, d.Err, ErrForbidden, "resolution faults look like any other denial externally")
	require.NotEmpty(t, logged, "the fault is logged for operators")
}

func TestAuthorizeItemChangeReassignmentGuard(t *testing.T) {
	st := store.NewMemory()
	eng := testEngine(t, st)
	ctx := context.Background()

	signup := store.Document{"_id": "s1", "user_id": "u1", "event_id": "e1"}
	_, err := st.Documents("eventsignups").Insert(ctx, signup)
	require.NoError(t, err)

	// Owner keeps ownership: fine.
	kept := store.Merge(signup, store.Document{"comment": "vegan"})
	d := eng.AuthorizeItemChange(ctx, userIdentity("u1"), "eventsignups", http.MethodPatch, signup, kept)
	require.Equal(t, EffectAllow, d.Effect)

	// Owner hands the item to someone else: refused.
	reassigned := store.Merge(signup, store.Document{"user_id": "u2"})
	d = eng.AuthorizeItemChange(ctx, userIdentity("u1"), "eventsignups", http.MethodPatch, signup, reassigned)
	require.Equal(t, EffectDeny, d.Effect)
	require.ErrorIs(t, d.Err, ErrForbidden)

	// A blanket grant is exempt from the guard.
	d = eng.AuthorizeItemChange(ctx, userIdentity("admin", "vorstand"), "eventsignups", http.MethodPatch, signup, reassigned)
	require.Equal(t, EffectAllow, d.Effect)

	// So is root.
	d = eng.AuthorizeItemChange(ctx, Identity{UserID: RootUserID}, "eventsignups", http.MethodPatch, signup, reassigned)
	require.Equal(t, EffectAllow, d.Effect)
}

func TestAuthorizeOwnerFilterScopesReads(t *testing.T) {
	st := store.NewMemory()
	eng := testEngine(t, st)
	ctx := context.Background()

	for _, doc := range []store.Document{
		{"user_id": "u1", "event_id": "e1"},
		{"user_id": "u1", "event_id": "e2"},
		{"user_id": "u2", "event_id": "e1"},
	} {
		_, err := st.Documents("eventsignups").Insert(ctx, doc)
		require.NoError(t, err)
	}

	d := eng.Authorize(ctx, userIdentity("u1"), "eventsignups", http.MethodGet)
	require.Equal(t, EffectAllowOwnerFilter, d.Effect)

	docs, err := st.Documents("eventsignups").List(ctx, d.Filter)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	for _, doc := range docs {
		require.Equal(t, "u1", doc["user_id"])
	}
}
