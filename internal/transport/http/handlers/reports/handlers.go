package reportshandler

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"campusleave/internal/domain/auth"
	"campusleave/internal/domain/reports"
	"campusleave/internal/transport/http/api"
	"campusleave/internal/transport/http/middleware"
)

type Handler struct {
	Service *reports.Service
	Perms   middleware.PermissionStore
}

func NewHandler(service *reports.Service, perms middleware.PermissionStore) *Handler {
	return &Handler{Service: service, Perms: perms}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/reports", func(r chi.Router) {
		r.With(middleware.RequirePermission(auth.PermReportsRead, h.Perms)).Get("/summary", h.handleSummary)
		r.With(middleware.RequirePermission(auth.PermReportsRead, h.Perms)).Get("/register.pdf", h.handleRegisterPDF)
	})
}

func (h *Handler) handleSummary(w http.ResponseWriter, r *http.Request) {
	department, year, ok := h.reportParams(w, r)
	if !ok {
		return
	}
	summary, err := h.Service.Summarize(r.Context(), department, year)
	if err != nil {
		slog.Error("summary report failed", "err", err)
		api.Fail(w, http.StatusInternalServerError, "report_failed", "failed to build summary", middleware.GetRequestID(r.Context()))
		return
	}
	api.Success(w, summary, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleRegisterPDF(w http.ResponseWriter, r *http.Request) {
	department, year, ok := h.reportParams(w, r)
	if !ok {
		return
	}
	document, err := h.Service.LeaveRegisterPDF(r.Context(), department, year)
	if err != nil {
		slog.Error("register pdf failed", "err", err)
		api.Fail(w, http.StatusInternalServerError, "report_failed", "failed to render register", middleware.GetRequestID(r.Context()))
		return
	}

	filename := fmt.Sprintf("leave-register-%d", year)
	if department != "" {
		filename += "-" + strings.ToLower(department)
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`.pdf"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(document)
}

func (h *Handler) reportParams(w http.ResponseWriter, r *http.Request) (string, int, bool) {
	department := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("department")))
	year := time.Now().UTC().Year()
	if raw := strings.TrimSpace(r.URL.Query().Get("year")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 2000 || parsed > 2100 {
			api.Fail(w, http.StatusBadRequest, "invalid_year", "year must be a four digit calendar year", middleware.GetRequestID(r.Context()))
			return "", 0, false
		}
		year = parsed
	}
	return department, year, true
}
