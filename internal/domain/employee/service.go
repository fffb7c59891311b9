package employee

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"campusleave/internal/domain/ledger"
)

type Service struct {
	Store  *Store
	Ledger *ledger.Service
}

func NewService(store *Store, ledgerSvc *ledger.Service) *Service {
	return &Service{Store: store, Ledger: ledgerSvc}
}

func (s *Service) Get(ctx context.Context, id string) (Employee, error) {
	return s.Store.Get(ctx, id)
}

func (s *Service) GetByUserID(ctx context.Context, userID string) (Employee, error) {
	return s.Store.GetByUserID(ctx, userID)
}

func (s *Service) List(ctx context.Context, department string, limit, offset int) ([]Employee, error) {
	return s.Store.List(ctx, department, limit, offset)
}

func (s *Service) Deactivate(ctx context.Context, id string) error {
	return s.Store.Deactivate(ctx, id)
}

// Create registers an employee and credits the opening leave entitlement
// through the ledger so the balance starts with a paired history entry.
func (s *Service) Create(ctx context.Context, in CreateInput) (string, error) {
	id, err := s.Store.Create(ctx, in)
	if err != nil {
		return "", err
	}
	opening := AnnualEntitlement(in.JoinedOn, time.Now())
	if err := s.Ledger.AdjustAlone(ctx, id, ledger.BalanceLeave, ledger.DirectionEarned, opening, id, "employee", "opening entitlement"); err != nil {
		return id, fmt.Errorf("opening entitlement credit failed: %w", err)
	}
	return id, nil
}

type ResetSummary struct {
	Employees int     `json:"employees"`
	Credited  float64 `json:"credited"`
	Debited   float64 `json:"debited"`
	Failed    int     `json:"failed"`
}

// AnnualReset re-baselines every active employee's ordinary-leave balance to
// the experience-derived entitlement. Each change flows through the ledger as
// an earned or used entry, never as a raw column write.
func (s *Service) AnnualReset(ctx context.Context, asOf time.Time) (ResetSummary, error) {
	ids, err := s.Store.ListActiveIDs(ctx)
	if err != nil {
		return ResetSummary{}, err
	}

	var summary ResetSummary
	remark := fmt.Sprintf("annual entitlement reset %d", asOf.Year())
	for _, id := range ids {
		emp, err := s.Store.Get(ctx, id)
		if err != nil {
			summary.Failed++
			slog.Warn("annual reset load failed", "employeeId", id, "err", err)
			continue
		}
		target := AnnualEntitlement(emp.JoinedOn, asOf)
		delta := target - emp.LeaveBalance
		if delta == 0 {
			summary.Employees++
			continue
		}
		direction := ledger.DirectionEarned
		amount := delta
		if delta < 0 {
			direction = ledger.DirectionUsed
			amount = -delta
		}
		if err := s.Ledger.AdjustAlone(ctx, id, ledger.BalanceLeave, direction, amount, id, "employee", remark); err != nil {
			summary.Failed++
			slog.Warn("annual reset adjust failed", "employeeId", id, "err", err)
			continue
		}
		summary.Employees++
		if delta > 0 {
			summary.Credited += delta
		} else {
			summary.Debited += -delta
		}
	}
	return summary, nil
}
