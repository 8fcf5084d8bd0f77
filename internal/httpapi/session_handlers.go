package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"clubapi.org/internal/audit"
	"clubapi.org/internal/auth"
	"clubapi.org/internal/obs"
	"clubapi.org/internal/store"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (a *API) handleSessionsCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		a.login(w, r)
	case http.MethodGet:
		a.listSessions(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleSessionItem(w http.ResponseWriter, r *http.Request) {
	id := itemID(r.URL.Path, "sessions")
	if id == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodDelete {
		methodNotAllowed(w, r, http.MethodDelete)
		return
	}
	a.logout(w, r, id)
}

// login is the one public write: it trades an email/password pair for a
// session token. The token appears in this response only.
func (a *API) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		writeError(w, r, http.StatusBadRequest, "email and password are required")
		return
	}

	token, session, err := a.opts.Auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			obs.ObserveLogin("denied")
			_ = audit.LogEvent(r.Context(), "auth.login", map[string]any{"outcome": "denied"})
			writeError(w, r, http.StatusUnauthorized, "invalid credentials")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}

	obs.ObserveLogin("ok")
	_ = audit.LogEvent(r.Context(), "auth.login", map[string]any{
		"outcome": "ok",
		"user_id": session.UserID,
		"session": session.ID,
	})
	writeJSON(w, http.StatusCreated, map[string]any{
		"token":   token,
		"session": session,
	})
}

// listSessions shows the caller's own sessions. Root may inspect another
// user's with ?user_id=.
func (a *API) listSessions(w http.ResponseWriter, r *http.Request) {
	ident := identityOf(r)
	if ident.IsAnonymous() {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	target := ident.UserID
	if q := r.URL.Query().Get("user_id"); q != "" {
		target = q
	}
	sessions, err := a.opts.Auth.Sessions(r.Context(), ident, target)
	if err != nil {
		if errors.Is(err, auth.ErrForbidden) {
			writeError(w, r, http.StatusForbidden, "permission denied")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	if sessions == nil {
		sessions = []*store.Session{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": sessions})
}

func (a *API) logout(w http.ResponseWriter, r *http.Request, sessionID string) {
	ident := identityOf(r)
	if ident.IsAnonymous() {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	err := a.opts.Auth.Logout(r.Context(), ident, sessionID)
	switch {
	case err == nil:
		_ = audit.LogEvent(r.Context(), "auth.logout", map[string]any{"session": sessionID})
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, store.ErrNotFound), errors.Is(err, auth.ErrForbidden):
		// Session ids are private; someone else's id looks like a missing one.
		writeError(w, r, http.StatusNotFound, "resource not found")
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
