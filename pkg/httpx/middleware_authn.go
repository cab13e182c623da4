package httpx

import (
	"net/http"
	"strings"

	"github.com/aussiebroadwan/tabsession/pkg/slogx"
)

// Resolver authenticates a request and returns its subject.
type Resolver func(r *http.Request) (string, error)

// Authn rejects requests the resolver cannot authenticate and injects the
// subject into the request context for downstream handlers.
func Authn(resolve Resolver) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			subject, err := resolve(r)
			if err != nil || subject == "" {
				slogx.FromContext(r.Context()).Debug("request not authenticated", "err", err)
				WriteBearerError(w, "missing or invalid credentials")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithSubject(r.Context(), subject)))
		})
	}
}

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(r *http.Request) (string, bool) {
	authz := r.Header.Get("Authorization")
	if !strings.HasPrefix(authz, "Bearer ") {
		return "", false
	}
	raw := strings.TrimSpace(strings.TrimPrefix(authz, "Bearer "))
	return raw, raw != ""
}

// WriteBearerError writes an RFC 6750 style 401.
func WriteBearerError(w http.ResponseWriter, desc string) {
	w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token", error_description="`+desc+`"`)
	WriteJSON(w, http.StatusUnauthorized, map[string]string{
		"error":             "invalid_token",
		"error_description": desc,
	})
}
