package auth

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/voyager-crm/voyager/internal/platform/httpx"
	"github.com/voyager-crm/voyager/internal/shared"
)

// Authenticate requires a valid bearer token and stores the principal in the request context.
func (t *TokenIssuer) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}
		header := r.Header.Get("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			httpx.RespondError(w, fmt.Errorf("bearer token missing: %w", httpx.ErrUnauthorized))
			return
		}
		principal, err := t.Parse(strings.TrimSpace(raw))
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(shared.ContextWithPrincipal(r.Context(), principal)))
	})
}

// RequireRole allows the request only when the principal holds one of roles.
// Super admins pass every role check.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, err := shared.RequirePrincipal(r.Context())
			if err != nil {
				httpx.RespondError(w, err)
				return
			}
			if _, ok := allowed[principal.Role]; !ok && !principal.IsSuperAdmin() {
				httpx.RespondError(w, fmt.Errorf("role %s not allowed: %w", principal.Role, httpx.ErrForbidden))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
