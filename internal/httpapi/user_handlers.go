package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"clubapi.org/internal/auth"
	"clubapi.org/internal/credentials"
	"clubapi.org/internal/store"
)

type createUserRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
	Active   *bool  `json:"active"`
}

type updateUserRequest struct {
	Email    *string `json:"email"`
	Name     *string `json:"name"`
	Password *string `json:"password"`
	Active   *bool   `json:"active"`
}

// userDoc is the document view of an account used for ownership checks.
func userDoc(id string) store.Document {
	return store.Document{store.IDField: id}
}

func (a *API) handleUsersCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.listUsers(w, r)
	case http.MethodPost:
		a.createUser(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleUserItem(w http.ResponseWriter, r *http.Request) {
	id := itemID(r.URL.Path, "users")
	if id == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	switch r.Method {
	case http.MethodGet:
		a.getUser(w, r, id)
	case http.MethodPatch:
		a.patchUser(w, r, id)
	case http.MethodDelete:
		a.deleteUser(w, r, id)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPatch, http.MethodDelete)
	}
}

func (a *API) listUsers(w http.ResponseWriter, r *http.Request) {
	ident := identityOf(r)
	d := observe("users", r.Method, a.opts.Engine.Authorize(r.Context(), ident, "users", r.Method))
	if !d.Allowed() {
		writeAuthError(w, r, d.Err)
		return
	}
	if d.Effect == auth.EffectAllowOwnerFilter {
		// Plain members see exactly their own account.
		u, err := a.opts.Store.Users().Find(r.Context(), ident.UserID)
		if err != nil {
			writeError(w, r, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": []*store.User{u}})
		return
	}
	users, err := a.opts.Store.Users().List(r.Context())
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": users})
}

func (a *API) createUser(w http.ResponseWriter, r *http.Request) {
	ident := identityOf(r)
	d := observe("users", r.Method, a.opts.Engine.Authorize(r.Context(), ident, "users", r.Method))
	if !d.Allowed() || d.Effect != auth.EffectAllow {
		// Account creation is never owner-scoped.
		writeAuthError(w, r, errOrForbidden(d.Err))
		return
	}

	var req createUserRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		writeError(w, r, http.StatusBadRequest, "email and password are required")
		return
	}
	hash, err := credentials.Hash(req.Password)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	u := &store.User{Email: req.Email, Name: req.Name, PasswordHash: hash, Active: active}
	if err := a.opts.Store.Users().Create(r.Context(), u); err != nil {
		if errors.Is(err, store.ErrConflict) {
			writeError(w, r, http.StatusConflict, "email already registered")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"item": u})
}

func (a *API) getUser(w http.ResponseWriter, r *http.Request, id string) {
	u, err := a.opts.Store.Users().Find(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "resource not found")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	ident := identityOf(r)
	d := observe("users", r.Method, a.opts.Engine.AuthorizeItem(r.Context(), ident, "users", r.Method, userDoc(u.ID)))
	if !d.Allowed() {
		a.denyItem(w, r, "users", d.Err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"item": u})
}

func (a *API) patchUser(w http.ResponseWriter, r *http.Request, id string) {
	u, err := a.opts.Store.Users().Find(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "resource not found")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}

	ident := identityOf(r)
	d := observe("users", r.Method, a.opts.Engine.Authorize(r.Context(), ident, "users", r.Method))
	if !d.Allowed() {
		a.denyItem(w, r, "users", d.Err)
		return
	}
	blanket := d.Effect == auth.EffectAllow
	if !blanket && u.ID != ident.UserID {
		a.denyItem(w, r, "users", auth.ErrForbidden)
		return
	}

	var req updateUserRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	// Membership status is an administrative fact; owners cannot flip it.
	if req.Active != nil && !blanket {
		writeError(w, r, http.StatusForbidden, "permission denied")
		return
	}

	if req.Email != nil {
		u.Email = strings.TrimSpace(*req.Email)
	}
	if req.Name != nil {
		u.Name = *req.Name
	}
	if req.Active != nil {
		u.Active = *req.Active
	}
	if err := a.opts.Store.Users().Update(r.Context(), u); err != nil {
		if errors.Is(err, store.ErrConflict) {
			writeError(w, r, http.StatusConflict, "email already registered")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	if req.Password != nil {
		hash, err := credentials.Hash(*req.Password)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		if err := a.opts.Store.Users().UpdatePassword(r.Context(), u.ID, hash); err != nil {
			writeError(w, r, http.StatusInternalServerError, "internal error")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"item": u})
}

func (a *API) deleteUser(w http.ResponseWriter, r *http.Request, id string) {
	ident := identityOf(r)
	d := observe("users", r.Method, a.opts.Engine.Authorize(r.Context(), ident, "users", r.Method))
	if !d.Allowed() || d.Effect != auth.EffectAllow {
		a.denyItem(w, r, "users", errOrForbidden(d.Err))
		return
	}
	if err := a.opts.Store.Users().Delete(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "resource not found")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func errOrForbidden(err error) error {
	if err != nil {
		return err
	}
	return auth.ErrForbidden
}
