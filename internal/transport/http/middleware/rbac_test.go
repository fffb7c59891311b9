package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"campusleave/internal/domain/auth"
)

type fakePerms struct {
	allowed map[string]bool
	err     error
}

func (f fakePerms) HasPermission(ctx context.Context, roleID, permission string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.allowed[roleID+":"+permission], nil
}

func TestRequirePermissionAllows(t *testing.T) {
	store := fakePerms{allowed: map[string]bool{"role-hod:leave.forward": true}}
	handler := RequirePermission(auth.PermLeaveForward, store)(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/leave/requests/x/forward", nil)
	req = req.WithContext(WithUser(req.Context(), auth.Claims{UserID: "u1", RoleID: "role-hod"}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequirePermissionRejectsAnonymous(t *testing.T) {
	handler := RequirePermission(auth.PermLeaveForward, fakePerms{})(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/leave/requests/x/forward", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequirePermissionForbidsMissingGrant(t *testing.T) {
	handler := RequirePermission(auth.PermLeaveApprove, fakePerms{allowed: map[string]bool{}})(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/leave/requests/x/approve", nil)
	req = req.WithContext(WithUser(req.Context(), auth.Claims{UserID: "u1", RoleID: "role-employee"}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRequirePermissionStoreErrorIs500(t *testing.T) {
	handler := RequirePermission(auth.PermLeaveApprove, fakePerms{err: errors.New("db down")})(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/leave/requests/x/approve", nil)
	req = req.WithContext(WithUser(req.Context(), auth.Claims{UserID: "u1", RoleID: "role-hr"}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
