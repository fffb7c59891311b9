package cclhandler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"

	"campusleave/internal/domain/audit"
	"campusleave/internal/domain/auth"
	"campusleave/internal/domain/ccl"
	"campusleave/internal/domain/employee"
	"campusleave/internal/domain/requestid"
	"campusleave/internal/transport/http/api"
	"campusleave/internal/transport/http/middleware"
	"campusleave/internal/transport/http/shared"
)

type Handler struct {
	Service   *ccl.Service
	Employees *employee.Store
	Perms     middleware.PermissionStore
	Audit     *audit.Service
}

func NewHandler(service *ccl.Service, employees *employee.Store, perms middleware.PermissionStore, auditSvc *audit.Service) *Handler {
	return &Handler{Service: service, Employees: employees, Perms: perms, Audit: auditSvc}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/ccl", func(r chi.Router) {
		r.With(middleware.RequirePermission(auth.PermCCLRead, h.Perms)).Get("/work-requests", h.handleList)
		r.With(middleware.RequirePermission(auth.PermCCLSubmit, h.Perms)).Post("/work-requests", h.handleSubmit)
		r.With(middleware.RequirePermission(auth.PermCCLRead, h.Perms)).Get("/work-requests/{workID}", h.handleGet)
		r.With(middleware.RequirePermission(auth.PermCCLForward, h.Perms)).Post("/work-requests/{workID}/forward", h.handleForward)
		r.With(middleware.RequirePermission(auth.PermCCLApprove, h.Perms)).Post("/work-requests/{workID}/approve", h.handleApprove)
		r.With(middleware.RequirePermission(auth.PermCCLForward, h.Perms)).Post("/work-requests/{workID}/reject", h.handleReject)
	})
}

type submitPayload struct {
	WorkDate        string `json:"workDate"`
	TargetAuthority string `json:"targetAuthority"`
	Reason          string `json:"reason"`
}

type remarkPayload struct {
	Remark string `json:"remark"`
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}

	filter := ccl.Filter{Status: ccl.Status(strings.TrimSpace(r.URL.Query().Get("status")))}
	page := shared.ParsePagination(r, 50, 200)
	requests, err := h.Service.ListVisible(r.Context(), user, filter, page.Limit, page.Offset)
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "list_failed", "failed to list work requests", middleware.GetRequestID(r.Context()))
		return
	}
	api.Success(w, map[string]any{"workRequests": requests}, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}

	var payload submitPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", middleware.GetRequestID(r.Context()))
		return
	}

	v := shared.NewValidator()
	workDate, _ := v.Date("workDate", payload.WorkDate)
	v.Required("reason", payload.Reason, "reason is required")
	if v.Reject(w, middleware.GetRequestID(r.Context())) {
		return
	}

	work, err := h.Service.SubmitWork(r.Context(), user.UserID, ccl.SubmitInput{
		WorkDate:        workDate,
		TargetAuthority: payload.TargetAuthority,
		Reason:          payload.Reason,
	})
	if err != nil {
		h.writeCCLError(w, r, err)
		return
	}

	h.record(r, user, "ccl.work.submit", work.ID, map[string]any{"workDate": payload.WorkDate})
	api.Created(w, work, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}

	work, err := h.Service.Get(r.Context(), chi.URLParam(r, "workID"))
	if err != nil {
		api.Fail(w, http.StatusNotFound, "not_found", "work request not found", middleware.GetRequestID(r.Context()))
		return
	}
	if !h.visible(r.Context(), user, work) {
		api.Fail(w, http.StatusNotFound, "not_found", "work request not found", middleware.GetRequestID(r.Context()))
		return
	}
	api.Success(w, work, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleForward(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, "ccl.work.forward", h.Service.Forward)
}

func (h *Handler) handleApprove(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, "ccl.work.approve", h.Service.Approve)
}

func (h *Handler) handleReject(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, "ccl.work.reject", h.Service.Reject)
}

func (h *Handler) decide(w http.ResponseWriter, r *http.Request, action string,
	op func(ctx context.Context, actor auth.Claims, workID, remark string) (ccl.WorkRequest, error)) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}
	workID := chi.URLParam(r, "workID")

	var payload remarkPayload
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&payload)
	}

	work, err := op(r.Context(), user, workID, payload.Remark)
	if err != nil {
		h.writeCCLError(w, r, err)
		return
	}

	h.record(r, user, action, workID, map[string]any{"status": work.Status})
	api.Success(w, work, middleware.GetRequestID(r.Context()))
}

func (h *Handler) visible(ctx context.Context, user auth.Claims, work ccl.WorkRequest) bool {
	switch user.RoleName {
	case auth.RoleEmployee:
		emp, err := h.Employees.GetByUserID(ctx, user.UserID)
		return err == nil && emp.ID == work.EmployeeID
	case auth.RoleHOD:
		approver, err := h.Employees.GetByUserID(ctx, user.UserID)
		if err != nil {
			return false
		}
		owner, err := h.Employees.Get(ctx, work.EmployeeID)
		if err != nil {
			return false
		}
		return approver.Department == owner.Department || approver.ID == owner.FirstApproverID
	}
	return true
}

func (h *Handler) writeCCLError(w http.ResponseWriter, r *http.Request, err error) {
	requestID := middleware.GetRequestID(r.Context())
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		api.Fail(w, http.StatusNotFound, "not_found", "work request not found", requestID)
	case errors.Is(err, ccl.ErrAlreadyDecided):
		api.Fail(w, http.StatusConflict, "already_decided", err.Error(), requestID)
	case errors.Is(err, ccl.ErrNotForwarded), errors.Is(err, ccl.ErrNotPendingStage):
		api.Fail(w, http.StatusConflict, "invalid_transition", err.Error(), requestID)
	case errors.Is(err, ccl.ErrWrongScope):
		api.Fail(w, http.StatusForbidden, "forbidden", err.Error(), requestID)
	case errors.Is(err, ccl.ErrFutureWorkDate):
		api.Fail(w, http.StatusBadRequest, "invalid_request", err.Error(), requestID)
	case errors.Is(err, requestid.ErrSequenceExhausted):
		api.Fail(w, http.StatusConflict, "sequence_exhausted", "request id space exhausted for this year", requestID)
	default:
		slog.Error("ccl operation failed", "err", err)
		api.Fail(w, http.StatusInternalServerError, "internal_error", "operation failed", requestID)
	}
}

func (h *Handler) record(r *http.Request, user auth.Claims, action, entityID string, after any) {
	if h.Audit == nil {
		return
	}
	if err := h.Audit.Record(r.Context(), user.UserID, action, "ccl_work_request", entityID,
		middleware.GetRequestID(r.Context()), shared.ClientIP(r), nil, after); err != nil {
		slog.Warn("audit record failed", "action", action, "err", err)
	}
}
