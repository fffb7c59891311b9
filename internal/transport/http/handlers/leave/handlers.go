package leavehandler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"

	"campusleave/internal/domain/audit"
	"campusleave/internal/domain/auth"
	"campusleave/internal/domain/leave"
	"campusleave/internal/domain/ledger"
	"campusleave/internal/domain/requestid"
	"campusleave/internal/domain/schedule"
	"campusleave/internal/transport/http/api"
	"campusleave/internal/transport/http/middleware"
	"campusleave/internal/transport/http/shared"
)

type Handler struct {
	Service  *leave.Service
	Schedule *schedule.Validator
	Perms    middleware.PermissionStore
	Audit    *audit.Service
}

func NewHandler(service *leave.Service, scheduleValidator *schedule.Validator, perms middleware.PermissionStore, auditSvc *audit.Service) *Handler {
	return &Handler{Service: service, Schedule: scheduleValidator, Perms: perms, Audit: auditSvc}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/leave", func(r chi.Router) {
		r.With(middleware.RequirePermission(auth.PermLeaveRead, h.Perms)).Get("/requests", h.handleListRequests)
		r.With(middleware.RequirePermission(auth.PermLeaveSubmit, h.Perms)).Post("/requests", h.handleSubmitRequest)
		r.With(middleware.RequirePermission(auth.PermLeaveRead, h.Perms)).Get("/requests/{requestID}", h.handleGetRequest)
		r.With(middleware.RequirePermission(auth.PermLeaveRead, h.Perms)).Get("/requests/{requestID}/substitutions", h.handleGetSubstitutions)
		r.With(middleware.RequirePermission(auth.PermLeaveForward, h.Perms)).Post("/requests/{requestID}/forward", h.handleForwardRequest)
		r.With(middleware.RequirePermission(auth.PermLeaveApprove, h.Perms)).Post("/requests/{requestID}/approve", h.handleApproveRequest)
		r.With(middleware.RequirePermission(auth.PermLeaveApprove, h.Perms)).Post("/requests/{requestID}/reject", h.handleRejectRequest)
		r.With(middleware.RequirePermission(auth.PermLeaveSubmit, h.Perms)).Delete("/requests/{requestID}", h.handleDeleteRequest)
	})
}

type substitutionPayload struct {
	Date         string `json:"date"`
	Period       int    `json:"period"`
	SubstituteID string `json:"substituteId"`
}

type submitPayload struct {
	LeaveType     string                `json:"leaveType"`
	HalfDay       bool                  `json:"halfDay"`
	Session       string                `json:"session"`
	StartDate     string                `json:"startDate"`
	EndDate       string                `json:"endDate"`
	Reason        string                `json:"reason"`
	Substitutions []substitutionPayload `json:"substitutions"`
}

type remarkPayload struct {
	Remark string `json:"remark"`
}

type approvePayload struct {
	Remark    string `json:"remark"`
	Override  bool   `json:"override"`
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
	HalfDay   bool   `json:"halfDay"`
	Session   string `json:"session"`
}

func (h *Handler) handleListRequests(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}

	filter := leave.Filter{
		Status:    leave.Status(strings.TrimSpace(r.URL.Query().Get("status"))),
		LeaveType: leave.Type(strings.TrimSpace(r.URL.Query().Get("type"))),
	}
	page := shared.ParsePagination(r, 50, 200)
	requests, err := h.Service.ListVisible(r.Context(), user, filter, page.Limit, page.Offset)
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "list_failed", "failed to list leave requests", middleware.GetRequestID(r.Context()))
		return
	}
	api.Success(w, map[string]any{"requests": requests}, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleSubmitRequest(w http.ResponseWriter, r *http.Request) {
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
	v.Required("leaveType", payload.LeaveType, "leave type is required")
	v.Enum("leaveType", payload.LeaveType, []string{"casual", "compensatory", "onduty"}, "must be casual, compensatory or onduty")
	start, startOK := v.Date("startDate", payload.StartDate)
	end, endOK := v.Date("endDate", payload.EndDate)
	if startOK && endOK {
		v.DateOrder("startDate", start, "endDate", end)
	}
	if payload.HalfDay {
		v.Enum("session", payload.Session, []string{leave.SessionMorning, leave.SessionAfternoon}, "must be morning or afternoon")
		v.Required("session", payload.Session, "session is required for half-day leave")
	}
	if v.Reject(w, middleware.GetRequestID(r.Context())) {
		return
	}

	in := leave.SubmitInput{
		LeaveType: leave.Type(strings.ToLower(payload.LeaveType)),
		HalfDay:   payload.HalfDay,
		Session:   payload.Session,
		StartDate: start,
		EndDate:   end,
		Reason:    payload.Reason,
	}
	for _, entry := range payload.Substitutions {
		date, err := shared.ParseDate(entry.Date)
		if err != nil {
			api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid substitution date", middleware.GetRequestID(r.Context()))
			return
		}
		in.Substitutions = append(in.Substitutions, schedule.Entry{Date: date, Period: entry.Period, SubstituteID: entry.SubstituteID})
	}

	req, err := h.Service.Submit(r.Context(), user.UserID, in)
	if err != nil {
		h.writeLeaveError(w, r, err)
		return
	}

	h.record(r, user, "leave.request.submit", req.ID, nil, map[string]any{"days": req.Days, "type": req.LeaveType})
	api.Created(w, req, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleGetRequest(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}

	req, err := h.Service.Get(r.Context(), chi.URLParam(r, "requestID"))
	if err != nil {
		api.Fail(w, http.StatusNotFound, "not_found", "leave request not found", middleware.GetRequestID(r.Context()))
		return
	}
	visible, err := h.Service.VisibleTo(r.Context(), user, req)
	if err != nil || !visible {
		api.Fail(w, http.StatusNotFound, "not_found", "leave request not found", middleware.GetRequestID(r.Context()))
		return
	}
	api.Success(w, req, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleGetSubstitutions(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}
	requestID := chi.URLParam(r, "requestID")

	req, err := h.Service.Get(r.Context(), requestID)
	if err != nil {
		api.Fail(w, http.StatusNotFound, "not_found", "leave request not found", middleware.GetRequestID(r.Context()))
		return
	}
	visible, err := h.Service.VisibleTo(r.Context(), user, req)
	if err != nil || !visible {
		api.Fail(w, http.StatusNotFound, "not_found", "leave request not found", middleware.GetRequestID(r.Context()))
		return
	}

	entries, err := h.Schedule.ForRequest(r.Context(), requestID)
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "list_failed", "failed to load substitutions", middleware.GetRequestID(r.Context()))
		return
	}
	api.Success(w, map[string]any{"substitutions": entries}, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleForwardRequest(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}
	requestID := chi.URLParam(r, "requestID")

	var payload remarkPayload
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&payload)
	}

	req, err := h.Service.Forward(r.Context(), user, requestID, payload.Remark)
	if err != nil {
		h.writeLeaveError(w, r, err)
		return
	}

	h.record(r, user, "leave.request.forward", requestID, nil, map[string]any{"status": req.Status})
	api.Success(w, req, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleApproveRequest(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}
	requestID := chi.URLParam(r, "requestID")

	var payload approvePayload
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&payload)
	}

	in := leave.ApproveInput{Remark: payload.Remark, Override: payload.Override, HalfDay: payload.HalfDay, Session: payload.Session}
	if payload.Override {
		v := shared.NewValidator()
		start, startOK := v.Date("startDate", payload.StartDate)
		end, endOK := v.Date("endDate", payload.EndDate)
		if startOK && endOK {
			v.DateOrder("startDate", start, "endDate", end)
		}
		if v.Reject(w, middleware.GetRequestID(r.Context())) {
			return
		}
		in.StartDate, in.EndDate = start, end
	}

	req, err := h.Service.Approve(r.Context(), user, requestID, in)
	if err != nil {
		h.writeLeaveError(w, r, err)
		return
	}

	h.record(r, user, "leave.request.approve", requestID, nil,
		map[string]any{"debitedDays": req.DebitedDays, "modified": req.ModifiedByApprover})
	api.Success(w, req, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleRejectRequest(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}
	requestID := chi.URLParam(r, "requestID")

	var payload remarkPayload
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&payload)
	}

	req, err := h.Service.Reject(r.Context(), user, requestID, payload.Remark)
	if err != nil {
		h.writeLeaveError(w, r, err)
		return
	}

	h.record(r, user, "leave.request.reject", requestID, nil, map[string]any{"status": req.Status})
	api.Success(w, req, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleDeleteRequest(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}
	requestID := chi.URLParam(r, "requestID")

	if err := h.Service.Delete(r.Context(), user.UserID, requestID); err != nil {
		h.writeLeaveError(w, r, err)
		return
	}

	h.record(r, user, "leave.request.delete", requestID, nil, nil)
	api.Success(w, map[string]string{"status": "deleted"}, middleware.GetRequestID(r.Context()))
}

func (h *Handler) writeLeaveError(w http.ResponseWriter, r *http.Request, err error) {
	requestID := middleware.GetRequestID(r.Context())

	var subErr *leave.SubstitutionError
	if errors.As(err, &subErr) {
		api.FailWithDetails(w, http.StatusBadRequest, "substitution_invalid", "substitute arrangement is not acceptable",
			map[string]any{"issues": subErr.Issues}, requestID)
		return
	}
	var balErr *ledger.InsufficientBalanceError
	if errors.As(err, &balErr) {
		api.FailWithDetails(w, http.StatusConflict, "insufficient_balance", balErr.Error(),
			map[string]any{"balance": balErr.Balance, "available": balErr.Available, "required": balErr.Required}, requestID)
		return
	}

	switch {
	case errors.Is(err, pgx.ErrNoRows):
		api.Fail(w, http.StatusNotFound, "not_found", "leave request not found", requestID)
	case errors.Is(err, leave.ErrAlreadyTerminal):
		api.Fail(w, http.StatusConflict, "already_decided", "request already decided", requestID)
	case errors.Is(err, leave.ErrInvalidTransition):
		api.Fail(w, http.StatusConflict, "invalid_transition", err.Error(), requestID)
	case errors.Is(err, leave.ErrNotOwner), errors.Is(err, leave.ErrWrongScope):
		api.Fail(w, http.StatusForbidden, "forbidden", err.Error(), requestID)
	case errors.Is(err, leave.ErrNotPending):
		api.Fail(w, http.StatusConflict, "not_pending", err.Error(), requestID)
	case errors.Is(err, requestid.ErrSequenceExhausted):
		api.Fail(w, http.StatusConflict, "sequence_exhausted", "request id space exhausted for this year", requestID)
	case errors.Is(err, leave.ErrUnknownType),
		errors.Is(err, leave.ErrDateOrder),
		errors.Is(err, leave.ErrHalfDayRange),
		errors.Is(err, leave.ErrHalfDaySession),
		errors.Is(err, leave.ErrSessionOnFullDay):
		api.Fail(w, http.StatusBadRequest, "invalid_request", err.Error(), requestID)
	default:
		slog.Error("leave operation failed", "err", err)
		api.Fail(w, http.StatusInternalServerError, "internal_error", "operation failed", requestID)
	}
}

func (h *Handler) record(r *http.Request, user auth.Claims, action, entityID string, before, after any) {
	if h.Audit == nil {
		return
	}
	if err := h.Audit.Record(r.Context(), user.UserID, action, "leave_request", entityID,
		middleware.GetRequestID(r.Context()), shared.ClientIP(r), before, after); err != nil {
		slog.Warn("audit record failed", "action", action, "err", err)
	}
}
