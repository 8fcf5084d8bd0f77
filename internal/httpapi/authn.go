package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"clubapi.org/internal/auth"
)

const authHeader = "Authorization"

// withIdentity resolves the caller's identity and attaches it to the request
// context. Resolution order: configured API key, then session token, then
// anonymous. No request is refused here; route handlers consult the engine,
// which turns a missing credential into 401 exactly where one is required.
func (a *API) withIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := extractToken(r.Header.Get(authHeader))

		ident := auth.Anonymous()
		if token != "" {
			if key, ok := a.opts.Keyring.Lookup(token); ok {
				ident = auth.Identity{UserID: auth.AnonymousUserID, Key: &key}
			} else if a.opts.Auth != nil {
				resolved, err := a.opts.Auth.Identify(r.Context(), token)
				switch {
				case err == nil:
					ident = resolved
				case errors.Is(err, auth.ErrInvalidToken):
					// Stale or bogus token: the caller proceeds as anonymous
					// and public endpoints keep working.
				default:
					writeError(w, r, http.StatusInternalServerError, "authentication error")
					return
				}
			}
		}

		ctx := auth.ContextWithIdentity(r.Context(), ident)
		ctx = auth.ContextWithToken(ctx, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// extractToken accepts a raw credential or one with a Bearer/Token prefix.
func extractToken(header string) string {
	header = strings.TrimSpace(header)
	for _, scheme := range []string{"Bearer ", "Token "} {
		if len(header) > len(scheme) && strings.EqualFold(header[:len(scheme)], scheme) {
			return strings.TrimSpace(header[len(scheme):])
		}
	}
	return header
}
