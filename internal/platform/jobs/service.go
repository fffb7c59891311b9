package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"campusleave/internal/domain/employee"
	"campusleave/internal/domain/notifications"
	"campusleave/internal/platform/config"
)

const (
	JobOutboxDrain  = "outbox_drain"
	JobBalanceReset = "balance_reset"
)

const outboxBatchSize = 50

type Service struct {
	DB        *pgxpool.Pool
	Cfg       config.Config
	Notifier  *notifications.Service
	Employees *employee.Service
	queue     chan job
}

type job struct {
	Type string
	Run  func(context.Context) (any, error)
}

func New(db *pgxpool.Pool, cfg config.Config, notifier *notifications.Service, employees *employee.Service) *Service {
	return &Service{
		DB:        db,
		Cfg:       cfg,
		Notifier:  notifier,
		Employees: employees,
		queue:     make(chan job, 128),
	}
}

func (s *Service) Start(ctx context.Context) {
	go s.worker(ctx)
	if s.Cfg.OutboxInterval > 0 {
		go s.scheduleOutboxDrain(ctx, s.Cfg.OutboxInterval)
	}
	if s.Cfg.BalanceResetInterval > 0 {
		go s.scheduleBalanceReset(ctx, s.Cfg.BalanceResetInterval)
	}
}

func (s *Service) Enqueue(jobType string, run func(context.Context) (any, error)) {
	select {
	case s.queue <- job{Type: jobType, Run: run}:
	default:
		slog.Warn("job queue full", "jobType", jobType)
	}
}

// RunNow executes a job synchronously with the same bookkeeping the worker
// applies, for operator-triggered runs.
func (s *Service) RunNow(ctx context.Context, jobType string, run func(context.Context) (any, error)) (any, error) {
	return s.runJob(ctx, job{Type: jobType, Run: run})
}

// RunBalanceReset applies the annual entitlement reset for the given date.
func (s *Service) RunBalanceReset(ctx context.Context, asOf time.Time) (any, error) {
	return s.RunNow(ctx, JobBalanceReset, func(ctx context.Context) (any, error) {
		return s.Employees.AnnualReset(ctx, asOf)
	})
}

func (s *Service) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-s.queue:
			if _, err := s.runJob(ctx, j); err != nil {
				slog.Warn("job run failed", "jobType", j.Type, "err", err)
			}
		}
	}
}

func (s *Service) runJob(ctx context.Context, j job) (any, error) {
	runID := ""
	if err := s.DB.QueryRow(ctx, `
    INSERT INTO job_runs (job_type, status)
    VALUES ($1,$2)
    RETURNING id
  `, j.Type, "running").Scan(&runID); err != nil {
		slog.Warn("job run insert failed", "err", err)
	}

	details, err := j.Run(ctx)
	status := "completed"
	if err != nil {
		status = "failed"
	}
	detailsJSON, marshalErr := json.Marshal(details)
	if marshalErr != nil {
		slog.Warn("job details marshal failed", "err", marshalErr)
		detailsJSON = []byte("{}")
	}
	if runID != "" {
		if _, updErr := s.DB.Exec(ctx, `
      UPDATE job_runs
      SET status = $1, details_json = $2, completed_at = now()
      WHERE id = $3
    `, status, detailsJSON, runID); updErr != nil {
			slog.Warn("job run update failed", "err", updErr)
		}
	}
	return details, err
}

func (s *Service) scheduleOutboxDrain(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Enqueue(JobOutboxDrain, func(ctx context.Context) (any, error) {
				sent, err := s.Notifier.DrainOutbox(ctx, outboxBatchSize)
				return map[string]any{"sent": sent}, err
			})
		}
	}
}

// scheduleBalanceReset wakes periodically but only fires once per calendar
// year, on or after January 1st, guarded by the job_runs record of the
// previous completion.
func (s *Service) scheduleBalanceReset(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now().UTC()
			done, err := s.balanceResetDoneForYear(ctx, now.Year())
			if err != nil {
				slog.Warn("balance reset schedule check failed", "err", err)
				continue
			}
			if done {
				continue
			}
			asOf := time.Date(now.Year(), 1, 1, 0, 0, 0, 0, time.UTC)
			s.Enqueue(JobBalanceReset, func(ctx context.Context) (any, error) {
				return s.Employees.AnnualReset(ctx, asOf)
			})
		}
	}
}

func (s *Service) balanceResetDoneForYear(ctx context.Context, year int) (bool, error) {
	var count int
	err := s.DB.QueryRow(ctx, `
    SELECT COUNT(1) FROM job_runs
    WHERE job_type = $1 AND status = 'completed'
      AND started_at >= make_date($2, 1, 1)
  `, JobBalanceReset, year).Scan(&count)
	return count > 0, err
}
