/*
middleware.go - Bearer-token authentication middleware

PURPOSE:
  Extracts the Authorization: Bearer token, verifies it through the auth
  service, and stores the resolved Principal in the request context.
  Handlers read the principal back with PrincipalFrom; core operations
  only ever see explicit principal ids, never tokens or globals.
*/
package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/permitdesk/permitdesk/auth"
)

type contextKey string

const principalKey contextKey = "principal"

// Authenticator rejects requests without a valid bearer token and
// injects the principal into the request context.
func Authenticator(svc *auth.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := bearerToken(r)
			if raw == "" {
				writeError(w, http.StatusUnauthorized, "Missing bearer token", nil)
				return
			}
			principal, err := svc.ParseToken(raw)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "Invalid or expired token", nil)
				return
			}
			ctx := context.WithValue(r.Context(), principalKey, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// PrincipalFrom returns the authenticated principal stored by
// Authenticator. The second return is false on unauthenticated routes.
func PrincipalFrom(ctx context.Context) (auth.Principal, bool) {
	p, ok := ctx.Value(principalKey).(auth.Principal)
	return p, ok
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}
