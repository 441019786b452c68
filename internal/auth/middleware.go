package auth

import (
	"net/http"
	"strings"

	"github.com/solkant/solkant/internal/platform/httpx"
	"github.com/solkant/solkant/internal/shared"
)

// LoginPath is where anonymous browser requests are sent.
const LoginPath = "/auth/login"

// RequireTenant rejects requests without an authenticated tenant. JSON
// clients get a 401 envelope, browsers are redirected to the login page.
func RequireTenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := shared.TenantFromContext(r.Context()); err != nil {
			if wantsJSON(r) {
				httpx.Fail(w, shared.ErrUnauthorized, "")
				return
			}
			http.Redirect(w, r, LoginPath, http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RedirectIfAuthenticated sends signed-in users away from guest pages.
func RedirectIfAuthenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := shared.TenantFromContext(r.Context()); err == nil && r.Method == http.MethodGet {
			http.Redirect(w, r, "/", http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func wantsJSON(r *http.Request) bool {
	if strings.HasPrefix(r.URL.Path, "/api/") {
		return true
	}
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}
