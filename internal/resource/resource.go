// Package resource declares the domain resources of the API: their access
// rules, owner fields and relations. The declarations are static; anything
// inconsistent in them fails Registry registration at startup.
package resource

import (
	"net/http"

	"clubapi.org/internal/auth"
	"clubapi.org/internal/store"
)

// Collections are the schemaless document collections served by the generic
// CRUD handlers. Users and sessions are typed and have dedicated handlers.
var Collections = []string{
	"events",
	"eventsignups",
	"studydocuments",
	"joboffers",
	"groups",
	"groupmemberships",
	"blacklist",
	"purchases",
}

// Catalog returns the full resource declarations.
func Catalog() []auth.Metadata {
	return []auth.Metadata{
		{
			// Members read and edit their own account; everything beyond that
			// is role-gated.
			Name:         "users",
			OwnerMethods: []string{http.MethodGet, http.MethodPatch},
			OwnerFields:  []string{store.IDField},
		},
		{
			// Login is open to anyone; listing and revoking sessions is
			// strictly per owner.
			Name:          "sessions",
			PublicMethods: []string{http.MethodPost},
			OwnerMethods:  []string{http.MethodGet, http.MethodDelete},
			OwnerFields:   []string{"user_id"},
		},
		{
			Name:             "events",
			PublicMethods:    []string{http.MethodGet},
			PublicItemLookup: true,
		},
		{
			// Any member may sign up; the signup itself stays private to its
			// owner.
			Name:         "eventsignups",
			UserMethods:  []string{http.MethodPost},
			OwnerMethods: []string{http.MethodGet, http.MethodPatch, http.MethodDelete},
			OwnerFields:  []string{"user_id"},
		},
		{
			// Uploads are shared with all members; only the uploader may
			// change or withdraw one.
			Name:         "studydocuments",
			UserMethods:  []string{http.MethodGet, http.MethodPost},
			OwnerMethods: []string{http.MethodPatch, http.MethodDelete},
			OwnerFields:  []string{auth.AuthorField},
		},
		{
			Name:             "joboffers",
			PublicMethods:    []string{http.MethodGet},
			PublicItemLookup: true,
		},
		{
			// Group moderators own their group; plain members reach it
			// through their membership.
			Name:         "groups",
			UserMethods:  []string{http.MethodGet},
			OwnerMethods: []string{http.MethodPatch},
			OwnerFields:  []string{"moderator_id", "members.user_id"},
			Relations: map[string]auth.Relation{
				"members": {Collection: "groupmemberships", LocalField: store.IDField, RemoteField: "group_id"},
			},
		},
		{
			// A membership is visible to the member and to the moderator of
			// the group it points into; either may end it.
			Name:         "groupmemberships",
			UserMethods:  []string{http.MethodPost},
			OwnerMethods: []string{http.MethodGet, http.MethodDelete},
			OwnerFields:  []string{"user_id", "group.moderator_id"},
			Relations: map[string]auth.Relation{
				"group": {Collection: "groups", LocalField: "group_id", RemoteField: store.IDField},
			},
		},
		{
			// Members see their own entries; creation and removal is
			// role-gated.
			Name:         "blacklist",
			OwnerMethods: []string{http.MethodGet},
			OwnerFields:  []string{"user_id"},
		},
		{
			Name:         "purchases",
			OwnerMethods: []string{http.MethodGet},
			OwnerFields:  []string{"user_id"},
		},
	}
}

// NewRegistry registers the full catalog. Any invalid declaration surfaces
// here as a ConfigurationError and must abort startup.
func NewRegistry() (*auth.Registry, error) {
	reg := auth.NewRegistry()
	for _, meta := range Catalog() {
		if err := reg.Register(meta); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// DefaultMatrix is the built-in role table, used when no matrix file is
// configured. Operators override it with a YAML file of the same shape.
func DefaultMatrix() (*auth.Matrix, error) {
	all := []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete}
	return auth.NewMatrix(map[string]map[string][]string{
		"vorstand": {
			"users":            all,
			"sessions":         {http.MethodGet, http.MethodDelete},
			"events":           all,
			"eventsignups":     all,
			"studydocuments":   all,
			"joboffers":        all,
			"groups":           all,
			"groupmemberships": all,
			"blacklist":        all,
			"purchases":        {http.MethodGet, http.MethodDelete},
		},
		"event_admin": {
			"events":       all,
			"eventsignups": all,
		},
		"studydoc_admin": {
			"studydocuments": all,
		},
		"group_admin": {
			"groups":           all,
			"groupmemberships": all,
		},
		"job_admin": {
			"joboffers": all,
		},
		"blacklist_admin": {
			"blacklist": all,
			"users":     {http.MethodGet},
		},
	})
}
