// Package reports produces the administrative views over the leave data: a
// department summary and a printable leave register.
package reports

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jung-kurt/gofpdf"
)

type Summary struct {
	Department    string  `json:"department,omitempty"`
	Year          int     `json:"year"`
	TotalRequests int     `json:"totalRequests"`
	Pending       int     `json:"pending"`
	Forwarded     int     `json:"forwarded"`
	Approved      int     `json:"approved"`
	Rejected      int     `json:"rejected"`
	CasualDays    float64 `json:"casualDays"`
	LOPDays       float64 `json:"lopDays"`
	CCLDays       float64 `json:"cclDays"`
	OnDutyDays    float64 `json:"onDutyDays"`
}

type RegisterRow struct {
	RequestID  string
	StaffID    string
	Name       string
	Department string
	LeaveType  string
	StartDate  time.Time
	EndDate    time.Time
	Days       float64
	Status     string
}

type Service struct {
	DB              *pgxpool.Pool
	InstitutionName string
}

func New(db *pgxpool.Pool, institutionName string) *Service {
	return &Service{DB: db, InstitutionName: institutionName}
}

// Summarize aggregates request counts and day totals for one calendar year,
// optionally restricted to a department.
func (s *Service) Summarize(ctx context.Context, department string, year int) (Summary, error) {
	from := time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(1, 0, 0)

	query := `
    SELECT
      COUNT(1),
      COUNT(1) FILTER (WHERE lr.status = 'pending'),
      COUNT(1) FILTER (WHERE lr.status = 'forwarded'),
      COUNT(1) FILTER (WHERE lr.status = 'approved'),
      COUNT(1) FILTER (WHERE lr.status = 'rejected'),
      COALESCE(SUM(lr.cl_days) FILTER (WHERE lr.leave_type = 'casual' AND lr.status = 'approved'), 0),
      COALESCE(SUM(lr.lop_days) FILTER (WHERE lr.leave_type = 'casual' AND lr.status = 'approved'), 0),
      COALESCE(SUM(lr.days) FILTER (WHERE lr.leave_type = 'compensatory' AND lr.status = 'approved'), 0),
      COALESCE(SUM(lr.days) FILTER (WHERE lr.leave_type = 'onduty' AND lr.status = 'approved'), 0)
    FROM leave_requests lr
    JOIN employees e ON lr.employee_id = e.id
    WHERE lr.start_date >= $1 AND lr.start_date < $2
  `
	args := []any{from, to}
	if department != "" {
		query += " AND e.department = $3"
		args = append(args, department)
	}

	summary := Summary{Department: department, Year: year}
	err := s.DB.QueryRow(ctx, query, args...).Scan(
		&summary.TotalRequests, &summary.Pending, &summary.Forwarded, &summary.Approved, &summary.Rejected,
		&summary.CasualDays, &summary.LOPDays, &summary.CCLDays, &summary.OnDutyDays)
	return summary, err
}

func (s *Service) registerRows(ctx context.Context, department string, year int) ([]RegisterRow, error) {
	from := time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(1, 0, 0)

	query := `
    SELECT lr.id, e.staff_id, e.first_name || ' ' || e.last_name, e.department,
           lr.leave_type, lr.start_date, lr.end_date, lr.days, lr.status
    FROM leave_requests lr
    JOIN employees e ON lr.employee_id = e.id
    WHERE lr.start_date >= $1 AND lr.start_date < $2
  `
	args := []any{from, to}
	if department != "" {
		query += " AND e.department = $3"
		args = append(args, department)
	}
	query += " ORDER BY lr.start_date, lr.id"

	rows, err := s.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RegisterRow
	for rows.Next() {
		var r RegisterRow
		if err := rows.Scan(&r.RequestID, &r.StaffID, &r.Name, &r.Department,
			&r.LeaveType, &r.StartDate, &r.EndDate, &r.Days, &r.Status); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// LeaveRegisterPDF renders the year's leave register as a PDF document.
func (s *Service) LeaveRegisterPDF(ctx context.Context, department string, year int) ([]byte, error) {
	registerRows, err := s.registerRows(ctx, department, year)
	if err != nil {
		return nil, err
	}

	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 16)
	pdf.Cell(0, 10, s.InstitutionName)
	pdf.Ln(10)
	pdf.SetFont("Helvetica", "B", 12)
	title := fmt.Sprintf("Leave Register %d", year)
	if department != "" {
		title += " - " + department
	}
	pdf.Cell(0, 8, title)
	pdf.Ln(12)

	widths := []float64{42, 25, 55, 30, 30, 26, 26, 18, 25}
	headers := []string{"Request", "Staff ID", "Name", "Department", "Type", "From", "To", "Days", "Status"}
	pdf.SetFont("Helvetica", "B", 9)
	for i, header := range headers {
		pdf.CellFormat(widths[i], 7, header, "1", 0, "L", false, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 9)
	for _, row := range registerRows {
		cells := []string{
			row.RequestID, row.StaffID, row.Name, row.Department, row.LeaveType,
			row.StartDate.Format("2006-01-02"), row.EndDate.Format("2006-01-02"),
			fmt.Sprintf("%.1f", row.Days), row.Status,
		}
		for i, cell := range cells {
			pdf.CellFormat(widths[i], 6, cell, "1", 0, "L", false, 0, "")
		}
		pdf.Ln(-1)
	}
	if len(registerRows) == 0 {
		pdf.Cell(0, 8, "No leave records for the selected period.")
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
