package server

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"campusleave/internal/domain/audit"
	"campusleave/internal/domain/auth"
	"campusleave/internal/domain/ccl"
	"campusleave/internal/domain/employee"
	"campusleave/internal/domain/leave"
	"campusleave/internal/domain/ledger"
	"campusleave/internal/domain/notifications"
	"campusleave/internal/domain/reports"
	"campusleave/internal/domain/requestid"
	"campusleave/internal/domain/schedule"
	"campusleave/internal/platform/config"
	cryptoutil "campusleave/internal/platform/crypto"
	"campusleave/internal/platform/db"
	"campusleave/internal/platform/email"
	"campusleave/internal/platform/jobs"
	"campusleave/internal/platform/metrics"
	adminhandler "campusleave/internal/transport/http/handlers/admin"
	audithandler "campusleave/internal/transport/http/handlers/audit"
	authhandler "campusleave/internal/transport/http/handlers/auth"
	cclhandler "campusleave/internal/transport/http/handlers/ccl"
	employeeshandler "campusleave/internal/transport/http/handlers/employees"
	leavehandler "campusleave/internal/transport/http/handlers/leave"
	notificationshandler "campusleave/internal/transport/http/handlers/notifications"
	reportshandler "campusleave/internal/transport/http/handlers/reports"
	"campusleave/internal/transport/http/middleware"
)

type App struct {
	Config config.Config
	DB     *pgxpool.Pool
	Router http.Handler
	Jobs   *jobs.Service
}

// New wires stores, services and the HTTP router against an already connected
// pool. Background workers are not started here; callers own that through
// app.Jobs.Start.
func New(cfg config.Config, pool *pgxpool.Pool) (*App, error) {
	sealer, err := cryptoutil.NewSealer(cfg.DataEncryptionKey)
	if err != nil {
		return nil, err
	}

	authStore := auth.NewStore(pool)
	ledgerSvc := ledger.New(pool)
	employeeStore := employee.NewStore(pool)
	employeeSvc := employee.NewService(employeeStore, ledgerSvc)
	scheduleValidator := schedule.NewValidator(pool)
	notifier := notifications.New(pool, email.New(cfg), cfg.EmailFrom)
	auditSvc := audit.New(pool)
	ids := requestid.New()

	cclSvc := &ccl.Service{
		DB:        pool,
		Store:     ccl.NewStore(pool),
		Employees: employeeStore,
		Ledger:    ledgerSvc,
		IDs:       ids,
		Notifier:  notifier,
		Auth:      authStore,
	}
	leaveSvc := &leave.Service{
		DB:        pool,
		Store:     leave.NewStore(pool),
		Employees: employeeStore,
		Ledger:    ledgerSvc,
		IDs:       ids,
		Schedule:  scheduleValidator,
		Notifier:  notifier,
		Auth:      authStore,
		Credits:   cclSvc,
	}
	reportsSvc := reports.New(pool, cfg.InstitutionName)
	jobsSvc := jobs.New(pool, cfg, notifier, employeeSvc)

	var collector *metrics.Collector
	if cfg.MetricsEnabled {
		collector = metrics.New()
	}
	idempotency := middleware.NewIdempotencyStore(pool)

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(middleware.SecureHeaders(cfg.Environment == "production"))
	router.Use(middleware.BodyLimit(cfg.MaxBodyBytes))
	if collector != nil {
		router.Use(middleware.Metrics(collector))
	}
	router.Use(middleware.Auth(cfg.JWTSecret))
	router.Use(middleware.RateLimit(cfg.RateLimitPerMinute, time.Minute))
	router.Use(middleware.SensitiveMutationRateLimit(cfg.RateLimitPerMinute, time.Minute))
	router.Use(middleware.Idempotency(idempotency))

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	router.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := pool.Ping(ctx); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	router.Route("/api/v1", func(r chi.Router) {
		authHandler := authhandler.NewHandler(pool, cfg.JWTSecret, sealer, cfg.InstitutionName)
		r.Post("/auth/login", authHandler.HandleLogin)
		r.Post("/auth/logout", authHandler.HandleLogout)
		r.Post("/auth/refresh", authHandler.HandleRefresh)
		r.Post("/auth/mfa/setup", authHandler.HandleMFASetup)
		r.Post("/auth/mfa/enable", authHandler.HandleMFAEnable)
		r.Post("/auth/mfa/disable", authHandler.HandleMFADisable)
		r.Post("/auth/request-reset", authHandler.HandleRequestReset)
		r.Post("/auth/reset", authHandler.HandleResetPassword)

		employeeshandler.NewHandler(employeeSvc, ledgerSvc, authStore, authStore, auditSvc).RegisterRoutes(r)
		leavehandler.NewHandler(leaveSvc, scheduleValidator, authStore, auditSvc).RegisterRoutes(r)
		cclhandler.NewHandler(cclSvc, employeeStore, authStore, auditSvc).RegisterRoutes(r)
		reportshandler.NewHandler(reportsSvc, authStore).RegisterRoutes(r)
		notificationshandler.NewHandler(notifier).RegisterRoutes(r)
		audithandler.NewHandler(auditSvc, authStore).RegisterRoutes(r)
		adminhandler.NewHandler(jobsSvc, notifier, collector, authStore).RegisterRoutes(r)
	})

	return &App{Config: cfg, DB: pool, Router: router, Jobs: jobsSvc}, nil
}

func Run() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config invalid: %v", err)
	}

	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer pool.Close()

	if cfg.RunMigrations {
		if err := db.Migrate(ctx, pool, "migrations"); err != nil {
			log.Fatalf("migrations failed: %v", err)
		}
	}
	if cfg.RunSeed {
		if err := db.Seed(ctx, pool, cfg); err != nil {
			log.Fatalf("seed failed: %v", err)
		}
	}

	app, err := New(cfg, pool)
	if err != nil {
		log.Fatalf("app wiring failed: %v", err)
	}
	app.Jobs.Start(ctx)

	slog.Info("leave server listening", "addr", cfg.Addr, "env", cfg.Environment)
	if err := http.ListenAndServe(cfg.Addr, app.Router); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}
