package employeeshandler

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
	"campusleave/internal/domain/employee"
	"campusleave/internal/domain/ledger"
	"campusleave/internal/transport/http/api"
	"campusleave/internal/transport/http/middleware"
	"campusleave/internal/transport/http/shared"
)

type Handler struct {
	Service *employee.Service
	Ledger  *ledger.Service
	Users   *auth.Store
	Perms   middleware.PermissionStore
	Audit   *audit.Service
}

func NewHandler(service *employee.Service, ledgerSvc *ledger.Service, users *auth.Store, perms middleware.PermissionStore, auditSvc *audit.Service) *Handler {
	return &Handler{Service: service, Ledger: ledgerSvc, Users: users, Perms: perms, Audit: auditSvc}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/employees", func(r chi.Router) {
		r.With(middleware.RequirePermission(auth.PermEmployeesRead, h.Perms)).Get("/", h.handleList)
		r.With(middleware.RequirePermission(auth.PermEmployeesWrite, h.Perms)).Post("/", h.handleCreate)
		r.With(middleware.RequirePermission(auth.PermEmployeesRead, h.Perms)).Get("/me", h.handleGetSelf)
		r.With(middleware.RequirePermission(auth.PermEmployeesRead, h.Perms)).Get("/{employeeID}", h.handleGet)
		r.With(middleware.RequirePermission(auth.PermEmployeesWrite, h.Perms)).Delete("/{employeeID}", h.handleDeactivate)
		r.With(middleware.RequirePermission(auth.PermLeaveRead, h.Perms)).Get("/{employeeID}/balances", h.handleBalances)
		r.With(middleware.RequirePermission(auth.PermLeaveRead, h.Perms)).Get("/{employeeID}/ledger", h.handleLedger)
	})
}

type createPayload struct {
	Email           string `json:"email"`
	Password        string `json:"password"`
	Role            string `json:"role"`
	StaffID         string `json:"staffId"`
	FirstName       string `json:"firstName"`
	LastName        string `json:"lastName"`
	StaffType       string `json:"staffType"`
	Department      string `json:"department"`
	Campus          string `json:"campus"`
	Designation     string `json:"designation"`
	FirstApproverID string `json:"firstApproverId"`
	JoinedOn        string `json:"joinedOn"`
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	page := shared.ParsePagination(r, 50, 200)
	department := strings.TrimSpace(r.URL.Query().Get("department"))
	employees, err := h.Service.List(r.Context(), department, page.Limit, page.Offset)
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "list_failed", "failed to list employees", middleware.GetRequestID(r.Context()))
		return
	}
	api.Success(w, map[string]any{"employees": employees}, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}

	var payload createPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", middleware.GetRequestID(r.Context()))
		return
	}

	v := shared.NewValidator()
	v.Required("email", payload.Email, "email is required")
	v.Required("password", payload.Password, "password is required")
	v.Required("staffId", payload.StaffID, "staff id is required")
	v.Required("firstName", payload.FirstName, "first name is required")
	v.Required("staffType", payload.StaffType, "staff type is required")
	v.Enum("staffType", payload.StaffType, []string{employee.StaffTeaching, employee.StaffNonTeaching}, "must be teaching or nonteaching")
	v.Enum("role", payload.Role, auth.AllRoles, "unknown role")
	if payload.StaffType == employee.StaffTeaching {
		v.Required("department", payload.Department, "department is required for teaching staff")
	}
	joined, _ := v.Date("joinedOn", payload.JoinedOn)
	if v.Reject(w, middleware.GetRequestID(r.Context())) {
		return
	}

	role := payload.Role
	if role == "" {
		role = auth.RoleEmployee
	}

	hash, err := auth.HashPassword(payload.Password)
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "create_failed", "failed to create employee", middleware.GetRequestID(r.Context()))
		return
	}
	userID, err := h.Users.CreateUser(r.Context(), payload.Email, hash, role)
	if err != nil {
		slog.Error("user account create failed", "err", err)
		api.Fail(w, http.StatusConflict, "create_failed", "failed to create login account", middleware.GetRequestID(r.Context()))
		return
	}

	employeeID, err := h.Service.Create(r.Context(), employee.CreateInput{
		UserID:          userID,
		StaffID:         payload.StaffID,
		FirstName:       payload.FirstName,
		LastName:        payload.LastName,
		Email:           payload.Email,
		StaffType:       strings.ToLower(payload.StaffType),
		Department:      strings.ToUpper(strings.TrimSpace(payload.Department)),
		Campus:          payload.Campus,
		Designation:     payload.Designation,
		FirstApproverID: payload.FirstApproverID,
		JoinedOn:        joined,
	})
	if err != nil {
		slog.Error("employee create failed", "err", err)
		api.Fail(w, http.StatusConflict, "create_failed", "failed to create employee", middleware.GetRequestID(r.Context()))
		return
	}

	created, err := h.Service.Get(r.Context(), employeeID)
	if err != nil {
		created = employee.Employee{ID: employeeID, StaffID: payload.StaffID}
	}

	h.record(r, user, "employee.create", employeeID, map[string]any{"staffId": payload.StaffID})
	api.Created(w, created, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleGetSelf(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}
	emp, err := h.Service.GetByUserID(r.Context(), user.UserID)
	if err != nil {
		api.Fail(w, http.StatusNotFound, "not_found", "no employee profile for this account", middleware.GetRequestID(r.Context()))
		return
	}
	api.Success(w, emp, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	emp, err := h.Service.Get(r.Context(), chi.URLParam(r, "employeeID"))
	if err != nil {
		api.Fail(w, http.StatusNotFound, "not_found", "employee not found", middleware.GetRequestID(r.Context()))
		return
	}
	api.Success(w, emp, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleDeactivate(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}
	employeeID := chi.URLParam(r, "employeeID")

	if _, err := h.Service.Get(r.Context(), employeeID); err != nil {
		api.Fail(w, http.StatusNotFound, "not_found", "employee not found", middleware.GetRequestID(r.Context()))
		return
	}
	if err := h.Service.Deactivate(r.Context(), employeeID); err != nil {
		api.Fail(w, http.StatusInternalServerError, "deactivate_failed", "failed to deactivate employee", middleware.GetRequestID(r.Context()))
		return
	}

	h.record(r, user, "employee.deactivate", employeeID, nil)
	api.Success(w, map[string]string{"status": "deactivated"}, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleBalances(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}
	employeeID := chi.URLParam(r, "employeeID")
	if !h.canViewBalances(r, user, employeeID) {
		api.Fail(w, http.StatusForbidden, "forbidden", "cannot view another employee's balances", middleware.GetRequestID(r.Context()))
		return
	}

	leaveBal, cclBal, err := h.Ledger.Balances(r.Context(), employeeID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			api.Fail(w, http.StatusNotFound, "not_found", "employee not found", middleware.GetRequestID(r.Context()))
			return
		}
		api.Fail(w, http.StatusInternalServerError, "balances_failed", "failed to load balances", middleware.GetRequestID(r.Context()))
		return
	}
	api.Success(w, map[string]any{"leaveBalance": leaveBal, "cclBalance": cclBal}, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleLedger(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}
	employeeID := chi.URLParam(r, "employeeID")
	if !h.canViewBalances(r, user, employeeID) {
		api.Fail(w, http.StatusForbidden, "forbidden", "cannot view another employee's ledger", middleware.GetRequestID(r.Context()))
		return
	}

	balance := ledger.Balance(strings.TrimSpace(r.URL.Query().Get("balance")))
	if balance == "" {
		balance = ledger.BalanceLeave
	}
	page := shared.ParsePagination(r, 50, 200)
	entries, err := h.Ledger.History(r.Context(), employeeID, balance, page.Limit, page.Offset)
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "ledger_failed", "failed to load ledger", middleware.GetRequestID(r.Context()))
		return
	}
	api.Success(w, map[string]any{"entries": entries}, middleware.GetRequestID(r.Context()))
}

// canViewBalances lets privileged roles read anyone; plain employees only
// their own record.
func (h *Handler) canViewBalances(r *http.Request, user auth.Claims, employeeID string) bool {
	if user.RoleName != auth.RoleEmployee {
		return true
	}
	emp, err := h.Service.GetByUserID(r.Context(), user.UserID)
	return err == nil && emp.ID == employeeID
}

func (h *Handler) record(r *http.Request, user auth.Claims, action, entityID string, after any) {
	if h.Audit == nil {
		return
	}
	if err := h.Audit.Record(r.Context(), user.UserID, action, "employee", entityID,
		middleware.GetRequestID(r.Context()), shared.ClientIP(r), nil, after); err != nil {
		slog.Warn("audit record failed", "action", action, "err", err)
	}
}
