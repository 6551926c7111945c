package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func signed(t *testing.T, method jwt.SigningMethod, key any, claims Claims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return s
}

func validClaims() Claims {
	return Claims{
		Email: "reviewer@example.com",
		Role:  "reviewer",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
}

func TestAuthenticate(t *testing.T) {
	t.Parallel()

	expired := validClaims()
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
	noExp := validClaims()
	noExp.ExpiresAt = nil
	anon := validClaims()
	anon.Email, anon.Subject = "", ""

	tests := []struct {
		name       string
		header     string
		wantStatus int
	}{
		{name: "valid", header: "Bearer " + signed(t, jwt.SigningMethodHS256, []byte(testSecret), validClaims()), wantStatus: http.StatusOK},
		{name: "missing", header: "", wantStatus: http.StatusUnauthorized},
		{name: "wrong secret", header: "Bearer " + signed(t, jwt.SigningMethodHS256, []byte("other"), validClaims()), wantStatus: http.StatusUnauthorized},
		{name: "expired", header: "Bearer " + signed(t, jwt.SigningMethodHS256, []byte(testSecret), expired), wantStatus: http.StatusUnauthorized},
		{name: "no expiry", header: "Bearer " + signed(t, jwt.SigningMethodHS256, []byte(testSecret), noExp), wantStatus: http.StatusUnauthorized},
		{name: "no identity", header: "Bearer " + signed(t, jwt.SigningMethodHS256, []byte(testSecret), anon), wantStatus: http.StatusUnauthorized},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			var seen *Claims
			h := NewJWTMiddleware(testSecret).Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen = ClaimsFromContext(r.Context())
			}))

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tc.wantStatus, rec.Code)
			if tc.wantStatus == http.StatusOK {
				require.NotNil(t, seen)
				assert.Equal(t, "reviewer@example.com", seen.Identity())
			}
		})
	}
}

func TestClaimsIdentity(t *testing.T) {
	t.Parallel()

	c := &Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "abc"}}
	assert.Equal(t, "abc", c.Identity())
	c.Email = "a@b.c"
	assert.Equal(t, "a@b.c", c.Identity())
}

func TestRBAC(t *testing.T) {
	t.Parallel()

	rbac := NewRBAC(nil)
	assert.True(t, rbac.Allows("reviewer", PermRemediationReview))
	assert.False(t, rbac.Allows("editor", PermRemediationReview))
	assert.True(t, rbac.Allows("admin", PermRemediationBulk))
	assert.False(t, rbac.Allows("", PermDocumentsRead))

	h := rbac.RequirePermission(PermRemediationImplement)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	for role, want := range map[string]int{"reviewer": http.StatusNoContent, "authenticated": http.StatusForbidden} {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req = req.WithContext(WithClaims(req.Context(), &Claims{Role: role}))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, want, rec.Code, role)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
