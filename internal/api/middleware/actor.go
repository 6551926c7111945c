package middleware

import (
	"net/http"

	"github.com/nikhilbhutani/pdfaccess/internal/audit"
	"github.com/nikhilbhutani/pdfaccess/internal/auth"
)

// Actor tags the request context with the authenticated caller so that
// remediation transitions are attributed in the audit trail. It must run
// after authentication.
func Actor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if claims := auth.ClaimsFromContext(r.Context()); claims != nil {
			r = r.WithContext(audit.WithActor(r.Context(), claims.Identity()))
		}
		next.ServeHTTP(w, r)
	})
}
