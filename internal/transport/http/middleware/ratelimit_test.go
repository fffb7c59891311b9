package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"campusleave/internal/domain/auth"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimitBlocksAfterLimit(t *testing.T) {
	handler := RateLimit(2, time.Minute)(okHandler())

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/leave/requests", nil)
		req.RemoteAddr = "10.0.0.1:4000"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/leave/requests", nil)
	req.RemoteAddr = "10.0.0.1:4000"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
}

func TestRateLimitKeysByActorWhenAuthenticated(t *testing.T) {
	handler := RateLimit(1, time.Minute)(okHandler())

	first := httptest.NewRequest(http.MethodGet, "/api/v1/leave/requests", nil)
	first.RemoteAddr = "10.0.0.9:4000"
	first = first.WithContext(WithUser(first.Context(), auth.Claims{UserID: "user-a"}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, first)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Same IP, different user: separate bucket.
	second := httptest.NewRequest(http.MethodGet, "/api/v1/leave/requests", nil)
	second.RemoteAddr = "10.0.0.9:4000"
	second = second.WithContext(WithUser(second.Context(), auth.Claims{UserID: "user-b"}))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, second)
	assert.Equal(t, http.StatusOK, rec.Code)

	third := httptest.NewRequest(http.MethodGet, "/api/v1/leave/requests", nil)
	third.RemoteAddr = "10.0.0.9:4000"
	third = third.WithContext(WithUser(third.Context(), auth.Claims{UserID: "user-a"}))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, third)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestSensitiveMutationRateLimitLoginByEmail(t *testing.T) {
	// baseLimit 4 gives an auth limit of 1 per window.
	handler := SensitiveMutationRateLimit(4, time.Minute)(okHandler())

	login := func(ip, email string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(`{"email":"`+email+`"}`))
		req.Header.Set("Content-Type", "application/json")
		req.RemoteAddr = ip + ":1000"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusOK, login("10.1.1.1", "a@example.edu").Code)
	// Same email from a different IP is still throttled.
	assert.Equal(t, http.StatusTooManyRequests, login("10.1.1.2", "a@example.edu").Code)
	// Unrelated email on a fresh IP passes.
	assert.Equal(t, http.StatusOK, login("10.1.1.3", "b@example.edu").Code)
}

func TestSensitiveMutationRateLimitIgnoresReads(t *testing.T) {
	handler := SensitiveMutationRateLimit(4, time.Minute)(okHandler())

	for i := 0; i < 10; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/leave/requests", nil)
		req.RemoteAddr = "10.2.2.2:1000"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestSensitiveRateScope(t *testing.T) {
	post := func(path string) *http.Request {
		return httptest.NewRequest(http.MethodPost, path, nil)
	}

	assert.Equal(t, sensitiveScopeAuth, sensitiveRateScope(post("/api/v1/auth/login")))
	assert.Equal(t, sensitiveScopeAuth, sensitiveRateScope(post("/auth/mfa/enable")))
	assert.Equal(t, sensitiveScopeActor, sensitiveRateScope(post("/api/v1/leave/requests/abc/approve")))
	assert.Equal(t, sensitiveScopeActor, sensitiveRateScope(post("/api/v1/ccl/work-requests/abc/forward")))
	assert.Equal(t, sensitiveScopeActor, sensitiveRateScope(post("/api/v1/admin/outbox/drain")))
	assert.Equal(t, sensitiveScopeNone, sensitiveRateScope(post("/api/v1/leave/requests")))
	assert.Equal(t, sensitiveScopeNone, sensitiveRateScope(httptest.NewRequest(http.MethodGet, "/api/v1/auth/login", nil)))
}

func TestNormalizedAPIPath(t *testing.T) {
	assert.Equal(t, "/auth/login", normalizedAPIPath("/api/v1/auth/login"))
	assert.Equal(t, "/auth/login", normalizedAPIPath("/auth/login"))
	assert.Equal(t, "/", normalizedAPIPath("/api/v1"))
}
