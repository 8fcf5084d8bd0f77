// Package httpapi is the HTTP surface of the service: authentication
// middleware, the generic resource CRUD handlers and the session, role and
// confirmation endpoints. Every request is decided by the authorization
// engine before any store mutation happens.
package httpapi

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"clubapi.org/internal/auth"
	"clubapi.org/internal/confirm"
	"clubapi.org/internal/obs"
	"clubapi.org/internal/resource"
	"clubapi.org/internal/store"
)

// ReadyProbe reports whether the backing store is reachable.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Options carries the collaborators of the HTTP layer.
type Options struct {
	Store    store.Store
	Engine   *auth.Engine
	Auth     *auth.Service
	Registry *auth.Registry
	Matrix   *auth.Matrix
	Keyring  *auth.Keyring
	Signer   *confirm.Signer
	Ready    ReadyProbe
	Version  string

	// MaxBodyBytes caps request bodies; zero means 1 MiB.
	MaxBodyBytes int64
	// RateBurst/RatePerSecond shape the per-client limiter; zero disables it.
	RateBurst     int
	RatePerSecond int
}

// API is the HTTP layer.
type API struct {
	mux  *http.ServeMux
	opts Options
}

// New wires all routes. Collection resources are served generically; users,
// sessions, roles and confirmations have dedicated handlers that win over
// the generic ones by being registered on literal paths.
func New(opts Options) *API {
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 1 << 20
	}
	a := &API{mux: http.NewServeMux(), opts: opts}

	a.mux.HandleFunc("/healthz", a.healthz)
	a.mux.HandleFunc("/readyz", a.ready)
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/sessions", a.handleSessionsCollection)
	a.mux.HandleFunc("/sessions/", a.handleSessionItem)
	a.mux.HandleFunc("/users", a.handleUsersCollection)
	a.mux.HandleFunc("/users/", a.handleUserItem)
	a.mux.HandleFunc("/roles", a.handleRoles)
	a.mux.HandleFunc("/confirmations", a.handleConfirmations)

	for _, name := range resource.Collections {
		name := name
		a.mux.HandleFunc("/"+name, func(w http.ResponseWriter, r *http.Request) {
			a.handleCollection(w, r, name)
		})
		a.mux.HandleFunc("/"+name+"/", func(w http.ResponseWriter, r *http.Request) {
			a.handleItem(w, r, name)
		})
	}

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "resource not found")
	})

	return a
}

// Handler returns the fully wrapped handler: metrics outermost, then
// logging, hardening, request id, body cap, rate limit and authentication.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = a.withIdentity(h)
	if a.opts.RatePerSecond > 0 {
		h = RateLimit(h, a.opts.RateBurst, a.opts.RatePerSecond)
	}
	h = MaxBodyBytes(h, a.opts.MaxBodyBytes)
	h = RequestID(h)
	h = SecurityHeaders(h)
	h = Logging(h)
	return obs.Instrument(h)
}

func (a *API) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "clubapi",
		"version": a.opts.Version,
	})
}

func (a *API) ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := a.opts.Ready.Check(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

// handleRoles lists the permission matrix. Authenticated callers only; the
// table itself is not secret but it enumerates the deployment's roles.
func (a *API) handleRoles(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	ident, _ := auth.IdentityFromContext(r.Context())
	if ident.IsAnonymous() && ident.Key == nil {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": a.opts.Matrix.Snapshot()})
}
