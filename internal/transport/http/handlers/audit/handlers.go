package audithandler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"campusleave/internal/domain/audit"
	"campusleave/internal/domain/auth"
	"campusleave/internal/transport/http/api"
	"campusleave/internal/transport/http/middleware"
	"campusleave/internal/transport/http/shared"
)

type Handler struct {
	Service *audit.Service
	Perms   middleware.PermissionStore
}

func NewHandler(service *audit.Service, perms middleware.PermissionStore) *Handler {
	return &Handler{Service: service, Perms: perms}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.With(middleware.RequirePermission(auth.PermAuditRead, h.Perms)).Get("/audit/events", h.handleList)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := audit.Filter{
		Action:     strings.TrimSpace(query.Get("action")),
		EntityType: strings.TrimSpace(query.Get("entityType")),
		ActorID:    strings.TrimSpace(query.Get("actorId")),
	}
	includeDetails, _ := strconv.ParseBool(query.Get("details"))
	page := shared.ParsePagination(r, 50, 200)

	total, err := h.Service.Count(r.Context(), filter)
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "list_failed", "failed to count audit events", middleware.GetRequestID(r.Context()))
		return
	}
	events, err := h.Service.List(r.Context(), filter, includeDetails, page.Limit, page.Offset)
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "list_failed", "failed to list audit events", middleware.GetRequestID(r.Context()))
		return
	}

	api.Success(w, map[string]any{
		"events": events,
		"total":  total,
		"limit":  page.Limit,
		"offset": page.Offset,
	}, middleware.GetRequestID(r.Context()))
}
