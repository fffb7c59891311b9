package employee

import (
	"context"
	"database/sql"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	DB *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{DB: db}
}

const employeeColumns = `
  id, COALESCE(user_id::text, ''), staff_id, first_name, last_name, email, staff_type,
  department, campus, designation, COALESCE(first_approver_id::text, ''), joined_on,
  leave_balance, ccl_balance, active, created_at
`

func scanEmployee(row interface{ Scan(...any) error }) (Employee, error) {
	var e Employee
	err := row.Scan(&e.ID, &e.UserID, &e.StaffID, &e.FirstName, &e.LastName, &e.Email, &e.StaffType,
		&e.Department, &e.Campus, &e.Designation, &e.FirstApproverID, &e.JoinedOn,
		&e.LeaveBalance, &e.CCLBalance, &e.Active, &e.CreatedAt)
	return e, err
}

func (s *Store) Get(ctx context.Context, id string) (Employee, error) {
	row := s.DB.QueryRow(ctx, "SELECT "+employeeColumns+" FROM employees WHERE id = $1", id)
	return scanEmployee(row)
}

func (s *Store) GetByUserID(ctx context.Context, userID string) (Employee, error) {
	row := s.DB.QueryRow(ctx, "SELECT "+employeeColumns+" FROM employees WHERE user_id = $1", userID)
	return scanEmployee(row)
}

func (s *Store) List(ctx context.Context, department string, limit, offset int) ([]Employee, error) {
	query := "SELECT " + employeeColumns + " FROM employees WHERE active"
	args := []any{}
	if department != "" {
		query += " AND department = $1"
		args = append(args, department)
	}
	query += " ORDER BY staff_id"
	args = append(args, limit, offset)
	if department != "" {
		query += " LIMIT $2 OFFSET $3"
	} else {
		query += " LIMIT $1 OFFSET $2"
	}

	rows, err := s.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Employee
	for rows.Next() {
		e, err := scanEmployee(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) ListActiveIDs(ctx context.Context) ([]string, error) {
	rows, err := s.DB.Query(ctx, "SELECT id FROM employees WHERE active")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

type CreateInput struct {
	UserID          string
	StaffID         string
	FirstName       string
	LastName        string
	Email           string
	StaffType       string
	Department      string
	Campus          string
	Designation     string
	FirstApproverID string
	JoinedOn        time.Time
}

func (s *Store) Create(ctx context.Context, in CreateInput) (string, error) {
	var id string
	err := s.DB.QueryRow(ctx, `
    INSERT INTO employees (user_id, staff_id, first_name, last_name, email, staff_type, department, campus, designation, first_approver_id, joined_on)
    VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
    RETURNING id
  `, nullable(in.UserID), in.StaffID, in.FirstName, in.LastName, in.Email, in.StaffType,
		in.Department, in.Campus, in.Designation, nullable(in.FirstApproverID), in.JoinedOn).Scan(&id)
	return id, err
}

// Deactivate retires an employee record; rows are never deleted because the
// ledger references them.
func (s *Store) Deactivate(ctx context.Context, id string) error {
	_, err := s.DB.Exec(ctx, "UPDATE employees SET active = false WHERE id = $1", id)
	return err
}

// HODUserID finds the user account of the department head for a department.
func (s *Store) HODUserID(ctx context.Context, department string) (string, error) {
	var userID string
	err := s.DB.QueryRow(ctx, `
    SELECT u.id
    FROM employees e
    JOIN users u ON e.user_id = u.id
    JOIN roles r ON u.role_id = r.id
    WHERE e.department = $1 AND e.active AND r.name = 'hod'
    LIMIT 1
  `, department).Scan(&userID)
	return userID, err
}

func (s *Store) UserIDByEmployeeID(ctx context.Context, employeeID string) (string, error) {
	var userID string
	err := s.DB.QueryRow(ctx, "SELECT COALESCE(user_id::text,'') FROM employees WHERE id = $1", employeeID).Scan(&userID)
	return userID, err
}

func nullable(value string) sql.NullString {
	return sql.NullString{String: value, Valid: value != ""}
}
