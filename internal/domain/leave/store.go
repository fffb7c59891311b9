package leave

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	DB *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{DB: db}
}

const requestColumns = `
  id, employee_id, leave_type, half_day, half_day_session, start_date, end_date, days,
  reason, status, cl_days, lop_days,
  COALESCE(forwarded_by::text,''), forward_remark, forwarded_at,
  COALESCE(decided_by::text,''), decision_remark, decided_at,
  modified_by_approver, original_start_date, original_end_date, original_days,
  debited_days, created_at
`

func scanRequest(row interface{ Scan(...any) error }) (Request, error) {
	var r Request
	err := row.Scan(&r.ID, &r.EmployeeID, &r.LeaveType, &r.HalfDay, &r.HalfDaySession,
		&r.StartDate, &r.EndDate, &r.Days, &r.Reason, &r.Status, &r.CLDays, &r.LOPDays,
		&r.ForwardedBy, &r.ForwardRemark, &r.ForwardedAt,
		&r.DecidedBy, &r.DecisionRemark, &r.DecidedAt,
		&r.ModifiedByApprover, &r.OriginalStartDate, &r.OriginalEndDate, &r.OriginalDays,
		&r.DebitedDays, &r.CreatedAt)
	return r, err
}

func (s *Store) Get(ctx context.Context, id string) (Request, error) {
	row := s.DB.QueryRow(ctx, "SELECT "+requestColumns+" FROM leave_requests WHERE id = $1", id)
	return scanRequest(row)
}

// GetForUpdate locks the request row inside tx so concurrent decisions
// serialize on it.
func (s *Store) GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (Request, error) {
	row := tx.QueryRow(ctx, "SELECT "+requestColumns+" FROM leave_requests WHERE id = $1 FOR UPDATE", id)
	return scanRequest(row)
}

type Filter struct {
	EmployeeID string
	Department string
	Status     Status
	LeaveType  Type
}

func (s *Store) List(ctx context.Context, filter Filter, limit, offset int) ([]Request, error) {
	query := "SELECT " + requestColumns + " FROM leave_requests WHERE 1=1"
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
	if filter.LeaveType != "" {
		args = append(args, filter.LeaveType)
		query += fmt.Sprintf(" AND leave_type = $%d", len(args))
	}
	args = append(args, limit, offset)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := s.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Request
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Insert writes a freshly submitted request within the caller's transaction.
func (s *Store) Insert(ctx context.Context, tx pgx.Tx, r Request) error {
	_, err := tx.Exec(ctx, `
    INSERT INTO leave_requests
      (id, employee_id, leave_type, half_day, half_day_session, start_date, end_date, days, reason, cl_days, lop_days)
    VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
  `, r.ID, r.EmployeeID, r.LeaveType, r.HalfDay, r.HalfDaySession, r.StartDate, r.EndDate,
		r.Days, r.Reason, r.CLDays, r.LOPDays)
	return err
}

// MarkForwarded records the first-line endorsement.
func (s *Store) MarkForwarded(ctx context.Context, tx pgx.Tx, id, forwardedBy, remark string) error {
	_, err := tx.Exec(ctx, `
    UPDATE leave_requests
    SET status = 'forwarded', forwarded_by = $1, forward_remark = $2, forwarded_at = now()
    WHERE id = $3
  `, forwardedBy, remark, id)
	return err
}

type Decision struct {
	Status         Status
	DecidedBy      string
	DecisionRemark string
	DebitedDays    float64
}

// MarkDecided records the final decision fields.
func (s *Store) MarkDecided(ctx context.Context, tx pgx.Tx, id string, d Decision) error {
	_, err := tx.Exec(ctx, `
    UPDATE leave_requests
    SET status = $1, decided_by = $2, decision_remark = $3, decided_at = now(), debited_days = $4
    WHERE id = $5
  `, d.Status, d.DecidedBy, d.DecisionRemark, d.DebitedDays, id)
	return err
}

type Override struct {
	StartDate time.Time
	EndDate   time.Time
	Days      float64
	CLDays    float64
	LOPDays   float64
}

// ApplyOverride replaces the requested range with the approver's modified one,
// keeping the originals so the record still shows what was asked for.
func (s *Store) ApplyOverride(ctx context.Context, tx pgx.Tx, id string, original Request, o Override) error {
	_, err := tx.Exec(ctx, `
    UPDATE leave_requests
    SET start_date = $1, end_date = $2, days = $3, cl_days = $4, lop_days = $5,
        modified_by_approver = true, original_start_date = $6, original_end_date = $7, original_days = $8
    WHERE id = $9
  `, o.StartDate, o.EndDate, o.Days, o.CLDays, o.LOPDays,
		original.StartDate, original.EndDate, original.Days, id)
	return err
}

// Delete removes a request row; substitutions cascade with it.
func (s *Store) Delete(ctx context.Context, tx pgx.Tx, id string) error {
	_, err := tx.Exec(ctx, "DELETE FROM leave_requests WHERE id = $1", id)
	return err
}

// CLDaysInMonth sums the paid casual days an employee already holds in the
// month containing ref, counting live requests by their start date. Pending
// and forwarded requests count too, so parallel submissions cannot each claim
// the month's paid day. excludeID drops one request from the sum, for
// re-splitting during an approver override.
func (s *Store) CLDaysInMonth(ctx context.Context, tx pgx.Tx, employeeID string, ref time.Time, excludeID string) (float64, error) {
	from, to := MonthWindow(ref)
	var used float64
	err := tx.QueryRow(ctx, `
    SELECT COALESCE(SUM(cl_days), 0)
    FROM leave_requests
    WHERE employee_id = $1 AND leave_type = 'casual'
      AND status IN ('pending','forwarded','approved')
      AND start_date >= $2 AND start_date < $3
      AND id <> $4
  `, employeeID, from, to, excludeID).Scan(&used)
	return used, err
}

// ReservedCompensatoryDays sums the days of live compensatory requests, which
// hold credits that are not yet debited from the balance.
func (s *Store) ReservedCompensatoryDays(ctx context.Context, tx pgx.Tx, employeeID string) (float64, error) {
	var reserved float64
	err := tx.QueryRow(ctx, `
    SELECT COALESCE(SUM(days), 0)
    FROM leave_requests
    WHERE employee_id = $1 AND leave_type = 'compensatory' AND status IN ('pending','forwarded')
  `, employeeID).Scan(&reserved)
	return reserved, err
}
