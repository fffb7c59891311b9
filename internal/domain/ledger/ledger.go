// Package ledger owns the two per-employee balance counters and their
// append-only history. Every balance mutation goes through Adjust, which
// serializes on the employee row so the sufficiency check and the debit are
// one critical section.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Balance string

const (
	BalanceLeave Balance = "leave"
	BalanceCCL   Balance = "ccl"
)

type Direction string

const (
	DirectionEarned Direction = "earned"
	// DirectionRestored reverses a prior approval; it is deliberately distinct
	// from earned so audits can tell a reversal from new credit.
	DirectionRestored Direction = "restored"
	DirectionUsed     Direction = "used"
)

var ErrInvalidAmount = errors.New("ledger amount must be a positive multiple of 0.5")

type InsufficientBalanceError struct {
	Balance   Balance
	Available float64
	Required  float64
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient %s balance: have %.1f, need %.1f", e.Balance, e.Available, e.Required)
}

type Entry struct {
	ID            string    `json:"id"`
	EmployeeID    string    `json:"employeeId"`
	Balance       Balance   `json:"balance"`
	Direction     Direction `json:"direction"`
	Amount        float64   `json:"amount"`
	ReferenceID   string    `json:"referenceId"`
	ReferenceKind string    `json:"referenceKind"`
	Remark        string    `json:"remark"`
	CreatedAt     time.Time `json:"createdAt"`
}

type Service struct {
	DB *pgxpool.Pool
}

func New(db *pgxpool.Pool) *Service {
	return &Service{DB: db}
}

func balanceColumn(balance Balance) (string, error) {
	switch balance {
	case BalanceLeave:
		return "leave_balance", nil
	case BalanceCCL:
		return "ccl_balance", nil
	}
	return "", fmt.Errorf("unknown balance kind %q", balance)
}

func validAmount(amount float64) bool {
	if amount <= 0 {
		return false
	}
	doubled := amount * 2
	return doubled == float64(int64(doubled))
}

// Adjust mutates one balance and appends the matching ledger entry within the
// caller's transaction. The employee row is locked for the duration, so two
// concurrent debits cannot both pass the sufficiency check on stale state.
func (s *Service) Adjust(ctx context.Context, tx pgx.Tx, employeeID string, balance Balance, direction Direction, amount float64, referenceID, referenceKind, remark string) error {
	if !validAmount(amount) {
		return ErrInvalidAmount
	}
	column, err := balanceColumn(balance)
	if err != nil {
		return err
	}

	var leaveBal, cclBal float64
	err = tx.QueryRow(ctx, "SELECT leave_balance, ccl_balance FROM employees WHERE id = $1 FOR UPDATE", employeeID).Scan(&leaveBal, &cclBal)
	if err != nil {
		return err
	}

	current := leaveBal
	if balance == BalanceCCL {
		current = cclBal
	}

	delta := amount
	if direction == DirectionUsed {
		if current < amount {
			return &InsufficientBalanceError{Balance: balance, Available: current, Required: amount}
		}
		delta = -amount
	}

	if _, err := tx.Exec(ctx, fmt.Sprintf("UPDATE employees SET %s = %s + $1 WHERE id = $2", column, column), delta, employeeID); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `
    INSERT INTO balance_ledger (employee_id, balance, direction, amount, reference_id, reference_kind, remark)
    VALUES ($1,$2,$3,$4,$5,$6,$7)
  `, employeeID, balance, direction, amount, referenceID, referenceKind, remark); err != nil {
		return err
	}
	return nil
}

// AdjustAlone runs Adjust in its own transaction, for callers that have no
// surrounding unit of work (seeding, annual reset).
func (s *Service) AdjustAlone(ctx context.Context, employeeID string, balance Balance, direction Direction, amount float64, referenceID, referenceKind, remark string) error {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	if err := s.Adjust(ctx, tx, employeeID, balance, direction, amount, referenceID, referenceKind, remark); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

func (s *Service) Balances(ctx context.Context, employeeID string) (leave, ccl float64, err error) {
	err = s.DB.QueryRow(ctx, "SELECT leave_balance, ccl_balance FROM employees WHERE id = $1", employeeID).Scan(&leave, &ccl)
	return leave, ccl, err
}

func (s *Service) History(ctx context.Context, employeeID string, balance Balance, limit, offset int) ([]Entry, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT id, employee_id, balance, direction, amount, reference_id, reference_kind, remark, created_at
    FROM balance_ledger
    WHERE employee_id = $1 AND balance = $2
    ORDER BY created_at DESC
    LIMIT $3 OFFSET $4
  `, employeeID, balance, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var entry Entry
		if err := rows.Scan(&entry.ID, &entry.EmployeeID, &entry.Balance, &entry.Direction, &entry.Amount, &entry.ReferenceID, &entry.ReferenceKind, &entry.Remark, &entry.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}
