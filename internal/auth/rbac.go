package auth

import (
	"net/http"
)

type Permission string

const (
	PermDocumentsRead        Permission = "documents:read"
	PermDocumentsAnalyze     Permission = "documents:analyze"
	PermRemediationRead      Permission = "remediation:read"
	PermRemediationGenerate  Permission = "remediation:generate"
	PermRemediationReview    Permission = "remediation:review"
	PermRemediationImplement Permission = "remediation:implement"
	PermRemediationBulk      Permission = "remediation:bulk"
	PermReportsUsage         Permission = "reports:usage"
	PermWildcard             Permission = "*"
)

// DefaultRoles maps the role claim to its permissions. Supabase issues
// "authenticated" for every signed-in user.
var DefaultRoles = map[string][]Permission{
	"authenticated": {PermDocumentsRead, PermRemediationRead},
	"editor":        {PermDocumentsRead, PermDocumentsAnalyze, PermRemediationRead, PermRemediationGenerate},
	"reviewer": {
		PermDocumentsRead, PermDocumentsAnalyze, PermRemediationRead, PermRemediationGenerate,
		PermRemediationReview, PermRemediationImplement, PermRemediationBulk,
	},
	"admin": {PermWildcard},
}

type RBAC struct {
	roles map[string][]Permission
}

func NewRBAC(roles map[string][]Permission) *RBAC {
	if roles == nil {
		roles = DefaultRoles
	}
	return &RBAC{roles: roles}
}

func (r *RBAC) RequirePermission(perm Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			claims := ClaimsFromContext(req.Context())
			if claims == nil {
				writeError(w, http.StatusForbidden, "no caller in context")
				return
			}
			if !r.Allows(claims.Role, perm) {
				writeError(w, http.StatusForbidden, "insufficient permissions")
				return
			}
			next.ServeHTTP(w, req)
		})
	}
}

func (r *RBAC) Allows(role string, perm Permission) bool {
	for _, p := range r.roles[role] {
		if p == PermWildcard || p == perm {
			return true
		}
	}
	return false
}
