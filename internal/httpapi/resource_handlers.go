package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"clubapi.org/internal/auth"
	"clubapi.org/internal/obs"
	"clubapi.org/internal/store"
)

func identityOf(r *http.Request) auth.Identity {
	ident, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		return auth.Anonymous()
	}
	return ident
}

func effectLabel(e auth.Effect) string {
	switch e {
	case auth.EffectAllow:
		return "allow"
	case auth.EffectAllowOwnerFilter:
		return "allow_owner"
	default:
		return "deny"
	}
}

func observe(resource, method string, d auth.Decision) auth.Decision {
	obs.ObserveDecision(resource, method, effectLabel(d.Effect))
	return d
}

// itemID extracts the trailing id of /<resource>/<id> requests.
func itemID(path, resource string) string {
	id := strings.TrimPrefix(path, "/"+resource+"/")
	if id == "" || strings.Contains(id, "/") {
		return ""
	}
	return id
}

// denyItem hides the existence of items on resources whose item lookup is
// not public: outsiders get the same 404 as for a missing id.
func (a *API) denyItem(w http.ResponseWriter, r *http.Request, resourceName string, err error) {
	meta, ok := a.opts.Registry.Lookup(resourceName)
	if ok && !meta.PublicItemLookup {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	writeAuthError(w, r, err)
}

func (a *API) handleCollection(w http.ResponseWriter, r *http.Request, resourceName string) {
	switch r.Method {
	case http.MethodGet:
		a.listResource(w, r, resourceName)
	case http.MethodPost:
		a.createResource(w, r, resourceName)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleItem(w http.ResponseWriter, r *http.Request, resourceName string) {
	id := itemID(r.URL.Path, resourceName)
	if id == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	switch r.Method {
	case http.MethodGet:
		a.getResource(w, r, resourceName, id)
	case http.MethodPatch:
		a.patchResource(w, r, resourceName, id)
	case http.MethodPut:
		a.replaceResource(w, r, resourceName, id)
	case http.MethodDelete:
		a.deleteResource(w, r, resourceName, id)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPatch, http.MethodPut, http.MethodDelete)
	}
}

func (a *API) listResource(w http.ResponseWriter, r *http.Request, resourceName string) {
	ident := identityOf(r)
	d := observe(resourceName, r.Method, a.opts.Engine.Authorize(r.Context(), ident, resourceName, r.Method))
	if !d.Allowed() {
		writeAuthError(w, r, d.Err)
		return
	}
	// An owner-scoped grant narrows the listing to the caller's items.
	docs, err := a.opts.Store.Documents(resourceName).List(r.Context(), d.Filter)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	if docs == nil {
		docs = []store.Document{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": docs})
}

func (a *API) createResource(w http.ResponseWriter, r *http.Request, resourceName string) {
	ident := identityOf(r)
	doc, err := decodeDocument(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	delete(doc, store.IDField) // ids are always server-assigned

	// Ownership of the not-yet-persisted payload is resolved before the
	// insert: a denied request writes nothing.
	d := observe(resourceName, r.Method, a.opts.Engine.AuthorizeItem(r.Context(), ident, resourceName, r.Method, doc))
	if !d.Allowed() {
		writeAuthError(w, r, d.Err)
		return
	}

	auth.StampAuthor(ident, doc)

	var confirmToken string
	if email, _ := doc["email"].(string); email != "" && a.opts.Signer != nil {
		doc["confirmed"] = false
	}

	created, err := a.opts.Store.Documents(resourceName).Insert(r.Context(), doc)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}

	if _, pending := created["confirmed"]; pending && a.opts.Signer != nil {
		// In production the token travels by email; it is returned in the
		// response as well so clients can drive the flow in tests and dev.
		confirmToken, err = a.opts.Signer.Sign(resourceName, created.ID(), "confirm-email")
		if err != nil {
			writeError(w, r, http.StatusInternalServerError, "internal error")
			return
		}
	}

	resp := map[string]any{"item": created}
	if confirmToken != "" {
		resp["confirmation_token"] = confirmToken
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (a *API) getResource(w http.ResponseWriter, r *http.Request, resourceName, id string) {
	doc, err := a.opts.Store.Documents(resourceName).Find(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "resource not found")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	ident := identityOf(r)
	d := observe(resourceName, r.Method, a.opts.Engine.AuthorizeItem(r.Context(), ident, resourceName, r.Method, doc))
	if !d.Allowed() {
		a.denyItem(w, r, resourceName, d.Err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"item": doc})
}

func (a *API) patchResource(w http.ResponseWriter, r *http.Request, resourceName, id string) {
	original, err := a.opts.Store.Documents(resourceName).Find(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "resource not found")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	updates, err := decodeDocument(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if newID, ok := updates[store.IDField]; ok && newID != id {
		writeError(w, r, http.StatusUnprocessableEntity, "id is immutable")
		return
	}

	ident := identityOf(r)
	result := store.Merge(original, updates)
	d := observe(resourceName, r.Method, a.opts.Engine.AuthorizeItemChange(r.Context(), ident, resourceName, r.Method, original, result))
	if !d.Allowed() {
		a.denyItem(w, r, resourceName, d.Err)
		return
	}

	updated, err := a.opts.Store.Documents(resourceName).Update(r.Context(), id, updates)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"item": updated})
}

func (a *API) replaceResource(w http.ResponseWriter, r *http.Request, resourceName, id string) {
	original, err := a.opts.Store.Documents(resourceName).Find(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "resource not found")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	replacement, err := decodeDocument(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if newID, ok := replacement[store.IDField]; ok && newID != id {
		writeError(w, r, http.StatusUnprocessableEntity, "id is immutable")
		return
	}
	replacement[store.IDField] = id

	ident := identityOf(r)
	d := observe(resourceName, r.Method, a.opts.Engine.AuthorizeItemChange(r.Context(), ident, resourceName, r.Method, original, replacement))
	if !d.Allowed() {
		a.denyItem(w, r, resourceName, d.Err)
		return
	}

	auth.StampAuthor(ident, replacement)
	if err := a.opts.Store.Documents(resourceName).Replace(r.Context(), id, replacement); err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"item": replacement})
}

func (a *API) deleteResource(w http.ResponseWriter, r *http.Request, resourceName, id string) {
	doc, err := a.opts.Store.Documents(resourceName).Find(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "resource not found")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	ident := identityOf(r)
	d := observe(resourceName, r.Method, a.opts.Engine.AuthorizeItem(r.Context(), ident, resourceName, r.Method, doc))
	if !d.Allowed() {
		a.denyItem(w, r, resourceName, d.Err)
		return
	}
	if err := a.opts.Store.Documents(resourceName).Delete(r.Context(), id); err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
