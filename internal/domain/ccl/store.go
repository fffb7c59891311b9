package ccl

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	DB *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{DB: db}
}

const workColumns = `
  id, employee_id, work_date, target_authority, reason, status,
  first_remark, COALESCE(first_decided_by::text,''), first_decided_at,
  second_remark, COALESCE(second_decided_by::text,''), second_decided_at,
  is_used, COALESCE(used_by_request_id,''), created_at
`

func scanWork(row interface{ Scan(...any) error }) (WorkRequest, error) {
	var w WorkRequest
	err := row.Scan(&w.ID, &w.EmployeeID, &w.WorkDate, &w.TargetAuthority, &w.Reason, &w.Status,
		&w.FirstRemark, &w.FirstDecidedBy, &w.FirstDecidedAt,
		&w.SecondRemark, &w.SecondDecidedBy, &w.SecondDecidedAt,
		&w.IsUsed, &w.UsedByRequestID, &w.CreatedAt)
	return w, err
}

func (s *Store) Get(ctx context.Context, id string) (WorkRequest, error) {
	row := s.DB.QueryRow(ctx, "SELECT "+workColumns+" FROM ccl_work_requests WHERE id = $1", id)
	return scanWork(row)
}

func (s *Store) GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (WorkRequest, error) {
	row := tx.QueryRow(ctx, "SELECT "+workColumns+" FROM ccl_work_requests WHERE id = $1 FOR UPDATE", id)
	return scanWork(row)
}

type Filter struct {
	EmployeeID string
	Department string
	Status     Status
}

func (s *Store) List(ctx context.Context, filter Filter, limit, offset int) ([]WorkRequest, error) {
	query := "SELECT " + workColumns + " FROM ccl_work_requests WHERE 1=1"
	args := []any{}
	if filter.EmployeeID != "" {
		args = append(args, filter.EmployeeID)
		query += fmt.Sprintf(" AND employee_id = $%d", len(args))
	}
	if filter.Department != "" {
		args = append(args, filter.Department)
		query += fmt.Sprintf(" AND employee_id IN (SELECT id FROM employees WHERE department = $%d)", len(args))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	args = append(args, limit, offset)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := s.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []WorkRequest
	for rows.Next() {
		w, err := scanWork(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func (s *Store) Insert(ctx context.Context, tx pgx.Tx, w WorkRequest) error {
	_, err := tx.Exec(ctx, `
    INSERT INTO ccl_work_requests (id, employee_id, work_date, target_authority, reason)
    VALUES ($1,$2,$3,$4,$5)
  `, w.ID, w.EmployeeID, w.WorkDate, w.TargetAuthority, w.Reason)
	return err
}

// MarkFirstDecision records the first-line outcome: forwarded upward or
// rejected outright.
func (s *Store) MarkFirstDecision(ctx context.Context, tx pgx.Tx, id string, status Status, decidedBy, remark string) error {
	_, err := tx.Exec(ctx, `
    UPDATE ccl_work_requests
    SET status = $1, first_decided_by = $2, first_remark = $3, first_decided_at = now()
    WHERE id = $4
  `, status, decidedBy, remark, id)
	return err
}

// MarkSecondDecision records the final outcome.
func (s *Store) MarkSecondDecision(ctx context.Context, tx pgx.Tx, id string, status Status, decidedBy, remark string) error {
	_, err := tx.Exec(ctx, `
    UPDATE ccl_work_requests
    SET status = $1, second_decided_by = $2, second_remark = $3, second_decided_at = now()
    WHERE id = $4
  `, status, decidedBy, remark, id)
	return err
}
