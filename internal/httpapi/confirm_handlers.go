package httpapi

import (
	"errors"
	"net/http"

	"clubapi.org/internal/audit"
	"clubapi.org/internal/store"
)

type confirmRequest struct {
	Token string `json:"token"`
}

// handleConfirmations redeems a confirmation token issued at insert time for
// documents carrying an email address. The token itself is the credential, so
// the endpoint is public.
func (a *API) handleConfirmations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if a.opts.Signer == nil {
		writeError(w, r, http.StatusNotFound, "confirmations are not enabled")
		return
	}

	var req confirmRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	claims, err := a.opts.Signer.Verify(req.Token, "confirm-email")
	if err != nil {
		writeError(w, r, http.StatusUnauthorized, "invalid confirmation token")
		return
	}

	updated, err := a.opts.Store.Documents(claims.Resource).Update(r.Context(),
		claims.ItemID, store.Document{"confirmed": true})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// The item was deleted in the meantime; the token is useless.
			writeError(w, r, http.StatusNotFound, "resource not found")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}

	_ = audit.LogEvent(r.Context(), "confirm.redeemed", map[string]any{
		"resource": claims.Resource,
		"item":     claims.ItemID,
	})
	writeJSON(w, http.StatusOK, map[string]any{"item": updated})
}
