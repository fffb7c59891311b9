package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campusleave/internal/domain/auth"
)

const testSecret = "unit-test-secret"

func claimsProbe(t *testing.T) (http.Handler, *auth.Claims, *bool) {
	t.Helper()
	var captured auth.Claims
	var present bool
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured, present = GetUser(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	return handler, &captured, &present
}

func TestAuthStoresClaimsFromValidToken(t *testing.T) {
	token, err := auth.GenerateToken(testSecret, auth.Claims{
		UserID:   "user-1",
		RoleID:   "role-1",
		RoleName: auth.RoleHOD,
	}, time.Hour)
	require.NoError(t, err)

	probe, captured, present := claimsProbe(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/leave/requests", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	Auth(testSecret)(probe).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, *present)
	assert.Equal(t, "user-1", captured.UserID)
	assert.Equal(t, auth.RoleHOD, captured.RoleName)
}

func TestAuthPassesThroughWithoutToken(t *testing.T) {
	probe, _, present := claimsProbe(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()

	Auth(testSecret)(probe).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, *present)
}

func TestAuthIgnoresBadToken(t *testing.T) {
	probe, _, present := claimsProbe(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/employees", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	rec := httptest.NewRecorder()

	Auth(testSecret)(probe).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, *present)
}

func TestAuthRejectsWrongSecret(t *testing.T) {
	token, err := auth.GenerateToken("other-secret", auth.Claims{UserID: "user-2"}, time.Hour)
	require.NoError(t, err)

	probe, _, present := claimsProbe(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/employees", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	Auth(testSecret)(probe).ServeHTTP(rec, req)

	assert.False(t, *present)
}
