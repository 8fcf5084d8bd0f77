package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"clubapi.org/internal/store"
)

// OwnerResolver decides whether a resource item belongs to a user. It works
// against persisted items and against in-memory payloads that have not been
// committed yet, so authorization can run strictly before any write.
type OwnerResolver struct {
	st store.Store
}

// NewOwnerResolver creates a resolver backed by the given store. The resolver
// only ever reads.
func NewOwnerResolver(st store.Store) *OwnerResolver {
	return &OwnerResolver{st: st}
}

// OwnsItem reports whether item belongs to userID under the resource's owner
// declaration. The candidate owner fields are OR-combined; the first match
// wins. item may be a hypothetical payload: relation fields are resolved
// through the values present in the payload, querying only already-persisted
// related collections.
//
// A dangling reference (a set foreign key whose target does not exist) makes
// the affected candidate fail closed. If no other candidate matches, the
// returned error wraps ErrResolution so callers can log the fault while still
// denying.
func (r *OwnerResolver) OwnsItem(ctx context.Context, meta Metadata, item store.Document, userID string) (bool, error) {
	if userID == "" || userID == AnonymousUserID {
		return false, nil
	}
	var resolutionErr error
	for _, field := range meta.OwnerFields {
		owns, err := r.fieldMatches(ctx, meta, item, field, userID)
		if err != nil {
			resolutionErr = errors.Join(resolutionErr, err)
			continue
		}
		if owns {
			return true, nil
		}
	}
	if resolutionErr != nil {
		return false, fmt.Errorf("%w: resource %s: %w", ErrResolution, meta.Name, resolutionErr)
	}
	return false, nil
}

func (r *OwnerResolver) fieldMatches(ctx context.Context, meta Metadata, item store.Document, field, userID string) (bool, error) {
	rel, terminal, ok := splitOwnerField(meta, field)
	if !ok {
		// Direct field on the item itself.
		v, _ := item[field].(string)
		return v == userID, nil
	}

	local, present := item[rel.LocalField]
	if !present || local == nil {
		// Unset relation key: nothing to traverse. For one-to-many paths
		// this is the normal unpersisted-item case.
		return false, nil
	}
	related, err := r.st.Documents(rel.Collection).List(ctx, store.Eq(rel.RemoteField, local))
	if err != nil {
		return false, fmt.Errorf("list %s by %s: %w", rel.Collection, rel.RemoteField, err)
	}
	if len(related) == 0 && rel.RemoteField == store.IDField {
		// A set foreign key pointing at nothing is an error, not merely a
		// non-match.
		return false, fmt.Errorf("dangling reference %s=%v into %s", rel.LocalField, local, rel.Collection)
	}
	for _, doc := range related {
		if v, _ := doc[terminal].(string); v == userID {
			return true, nil
		}
	}
	return false, nil
}

// OwnerFilter builds the predicate "any candidate owner field equals userID"
// for scoping collection queries. Callers AND it with their base query.
func OwnerFilter(meta Metadata, userID string) (store.Filter, error) {
	if len(meta.OwnerFields) == 0 {
		return store.Filter{}, fmt.Errorf("%w: resource %q has no owner fields", ErrConfiguration, meta.Name)
	}
	conds := make([]store.Condition, 0, len(meta.OwnerFields))
	for _, field := range meta.OwnerFields {
		if rel, terminal, ok := splitOwnerField(meta, field); ok {
			conds = append(conds, store.Condition{Exists: &store.Exists{
				Collection:  rel.Collection,
				LocalField:  rel.LocalField,
				RemoteField: rel.RemoteField,
				Field:       terminal,
				Value:       userID,
			}})
			continue
		}
		conds = append(conds, store.Condition{Field: field, Value: userID})
	}
	return store.Filter{}.AndClause(conds...), nil
}

// splitOwnerField resolves a dotted owner field against the resource's
// relation declarations. Returns ok=false for direct fields.
func splitOwnerField(meta Metadata, field string) (Relation, string, bool) {
	name, terminal, found := strings.Cut(field, ".")
	if !found {
		return Relation{}, "", false
	}
	rel, ok := meta.Relations[name]
	if !ok {
		return Relation{}, "", false
	}
	return rel, terminal, true
}
