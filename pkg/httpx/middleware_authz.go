package httpx

import (
	"net/http"
	"slices"
	"strings"
)

// RequireAnyRole the caller's token must carry at least one of the roles.
// Roles are compared after adding the ROLE_ prefix where missing.
func RequireAnyRole(required ...string) Middleware {
	want := make([]string, 0, len(required))
	for _, r := range required {
		want = append(want, roleName(r))
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok {
				writeBearerError(w, "missing bearer token")
				return
			}

			for _, have := range claims.RoleNames() {
				if slices.Contains(want, roleName(have)) {
					next.ServeHTTP(w, r)
					return
				}
			}

			w.Header().Set("WWW-Authenticate", `Bearer error="insufficient_scope"`)
			WriteError(w, http.StatusForbidden, "requires one of: "+strings.Join(want, ", "))
		})
	}
}

func roleName(r string) string {
	r = strings.ToUpper(strings.TrimSpace(r))
	if strings.HasPrefix(r, "ROLE_") {
		return r
	}
	return "ROLE_" + r
}
