package auth

import (
	"context"
	"log"
	"time"

	"clubapi.org/internal/store"
)

// Effect is the outcome class of an authorization decision.
type Effect int

const (
	// EffectDeny refuses the operation. Decision.Err distinguishes a
	// missing credential from an insufficient one.
	EffectDeny Effect = iota
	// EffectAllow grants the operation unconditionally.
	EffectAllow
	// EffectAllowOwnerFilter grants the operation scoped to items the
	// caller owns. Reads intersect Decision.Filter into their queries;
	// writes verify ownership of the targeted or future item first.
	EffectAllowOwnerFilter
)

// Decision is the result of one authorization check. Authorization failures
// are values, never panics or stray errors, so a mishandled failure cannot
// surface as an allow.
type Decision struct {
	Effect Effect
	Filter store.Filter
	Err    error
}

// Allowed reports whether the operation may proceed in some form.
func (d Decision) Allowed() bool { return d.Effect != EffectDeny }

func deny(err error) Decision { return Decision{Effect: EffectDeny, Err: err} }

// Engine answers "may this identity perform this method on this resource?"
// for every incoming request. It depends only on the static resource registry,
// the permission matrix and the ownership resolver.
type Engine struct {
	registry *Registry
	matrix   *Matrix
	resolver *OwnerResolver
	now      func() time.Time
	logf     func(format string, args ...any)
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithClock overrides the engine's time source, for tests.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithLogf overrides the engine's internal logger.
func WithLogf(logf func(format string, args ...any)) EngineOption {
	return func(e *Engine) {
		if logf != nil {
			e.logf = logf
		}
	}
}

// NewEngine builds the authorization engine.
func NewEngine(registry *Registry, matrix *Matrix, resolver *OwnerResolver, opts ...EngineOption) *Engine {
	e := &Engine{
		registry: registry,
		matrix:   matrix,
		resolver: resolver,
		now:      time.Now,
		logf:     log.Printf,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Authorize decides a method on a resource for the given identity. Checks run
// in fixed precedence and short-circuit on the first grant:
//
//  1. API-key callers are decided by their static grant alone.
//  2. Root is allowed unconditionally (explicit, audited bypass).
//  3. Public methods are allowed without any identity.
//  4. Any unexpired role granting (resource, method) in the matrix allows.
//  5. Anonymous callers are refused as unauthenticated.
//  6. Methods open to authenticated users allow.
//  7. Owner-restricted methods allow with an ownership filter.
//  8. Everything else is forbidden.
func (e *Engine) Authorize(ctx context.Context, id Identity, resource, method string) Decision {
	meta, ok := e.registry.Lookup(resource)
	if !ok {
		return deny(ErrForbidden)
	}

	if id.Key != nil {
		// A presented API key decides the request on its own; it does not
		// fall back to public or ownership access.
		if id.Key.AllowsMethod(resource, method) {
			return Decision{Effect: EffectAllow}
		}
		return deny(ErrForbidden)
	}

	if id.IsRoot() {
		e.logf("authz: root bypass for %s %s", method, resource)
		return Decision{Effect: EffectAllow}
	}

	if meta.MethodPublic(method) {
		return Decision{Effect: EffectAllow}
	}

	if e.matrix.AnyRoleAllows(id.Roles, resource, method, e.now()) {
		return Decision{Effect: EffectAllow}
	}

	if id.IsAnonymous() {
		return deny(ErrUnauthenticated)
	}

	if meta.MethodForUsers(method) {
		return Decision{Effect: EffectAllow}
	}

	if meta.MethodForOwners(method) {
		filter, err := OwnerFilter(meta, id.UserID)
		if err != nil {
			// Cannot happen for registered resources; fail closed anyway.
			e.logf("authz: owner filter for %s: %v", resource, err)
			return deny(ErrForbidden)
		}
		return Decision{Effect: EffectAllowOwnerFilter, Filter: filter}
	}

	return deny(ErrForbidden)
}

// AuthorizeItem decides a method against a concrete item: an existing
// document for GET/DELETE, or the in-memory payload of a POST/PUT that has
// not been committed yet. Ownership is verified before any write happens, so
// a denied request leaves no partial side effects.
func (e *Engine) AuthorizeItem(ctx context.Context, id Identity, resource, method string, item store.Document) Decision {
	d := e.Authorize(ctx, id, resource, method)
	if d.Effect != EffectAllowOwnerFilter {
		return d
	}
	meta, _ := e.registry.Lookup(resource)
	owns, err := e.resolver.OwnsItem(ctx, meta, item, id.UserID)
	if err != nil {
		// Resolution faults are logged with detail for operators but deny
		// like any other failed ownership check.
		e.logf("authz: %v", err)
		return deny(ErrForbidden)
	}
	if !owns {
		return deny(ErrForbidden)
	}
	return Decision{Effect: EffectAllow}
}

// AuthorizeItemChange decides a PATCH or PUT, verifying ownership of both the
// current item and the item as it would exist after the change. Owners may
// not reassign their own items to someone else; blanket grants are exempt.
func (e *Engine) AuthorizeItemChange(ctx context.Context, id Identity, resource, method string, original, result store.Document) Decision {
	d := e.Authorize(ctx, id, resource, method)
	if d.Effect != EffectAllowOwnerFilter {
		return d
	}
	meta, _ := e.registry.Lookup(resource)
	for _, item := range []store.Document{original, result} {
		owns, err := e.resolver.OwnsItem(ctx, meta, item, id.UserID)
		if err != nil {
			e.logf("authz: %v", err)
			return deny(ErrForbidden)
		}
		if !owns {
			return deny(ErrForbidden)
		}
	}
	return Decision{Effect: EffectAllow}
}
