package adminhandler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"campusleave/internal/domain/auth"
	"campusleave/internal/domain/notifications"
	"campusleave/internal/platform/jobs"
	"campusleave/internal/platform/metrics"
	"campusleave/internal/transport/http/api"
	"campusleave/internal/transport/http/middleware"
	"campusleave/internal/transport/http/shared"
)

const drainBatchSize = 100

type Handler struct {
	Jobs      *jobs.Service
	Notifier  *notifications.Service
	Collector *metrics.Collector
	Perms     middleware.PermissionStore
}

func NewHandler(jobsSvc *jobs.Service, notifier *notifications.Service, collector *metrics.Collector, perms middleware.PermissionStore) *Handler {
	return &Handler{Jobs: jobsSvc, Notifier: notifier, Collector: collector, Perms: perms}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/admin", func(r chi.Router) {
		r.With(middleware.RequirePermission(auth.PermJobsRun, h.Perms)).Post("/balance-reset/run", h.handleBalanceReset)
		r.With(middleware.RequirePermission(auth.PermJobsRun, h.Perms)).Post("/outbox/drain", h.handleOutboxDrain)
		r.With(middleware.RequirePermission(auth.PermSystemAdmin, h.Perms)).Get("/metrics", h.handleMetrics)
	})
}

type balanceResetPayload struct {
	AsOf string `json:"asOf"`
}

func (h *Handler) handleBalanceReset(w http.ResponseWriter, r *http.Request) {
	asOf := time.Now().UTC()
	var payload balanceResetPayload
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&payload)
	}
	if payload.AsOf != "" {
		parsed, err := shared.ParseDate(payload.AsOf)
		if err != nil {
			api.Fail(w, http.StatusBadRequest, "invalid_date", "asOf must be a date in YYYY-MM-DD format", middleware.GetRequestID(r.Context()))
			return
		}
		asOf = parsed
	}

	summary, err := h.Jobs.RunBalanceReset(r.Context(), asOf)
	if err != nil {
		slog.Error("balance reset failed", "err", err)
		api.Fail(w, http.StatusInternalServerError, "job_failed", "balance reset failed", middleware.GetRequestID(r.Context()))
		return
	}
	api.Success(w, summary, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleOutboxDrain(w http.ResponseWriter, r *http.Request) {
	details, err := h.Jobs.RunNow(r.Context(), jobs.JobOutboxDrain, func(ctx context.Context) (any, error) {
		sent, err := h.Notifier.DrainOutbox(ctx, drainBatchSize)
		return map[string]any{"sent": sent}, err
	})
	if err != nil {
		slog.Error("outbox drain failed", "err", err)
		api.Fail(w, http.StatusInternalServerError, "job_failed", "outbox drain failed", middleware.GetRequestID(r.Context()))
		return
	}
	api.Success(w, details, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if h.Collector == nil {
		api.Fail(w, http.StatusServiceUnavailable, "metrics_disabled", "metrics collection is disabled", middleware.GetRequestID(r.Context()))
		return
	}
	api.Success(w, h.Collector.Snapshot(), middleware.GetRequestID(r.Context()))
}
