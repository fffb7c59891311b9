// Package schedule validates the substitute arrangements a teaching employee
// proposes for the classroom periods a full-day leave would leave uncovered.
package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Entry struct {
	Date         time.Time `json:"date"`
	Period       int       `json:"period"`
	SubstituteID string    `json:"substituteId"`
}

type Issue struct {
	Date   string `json:"date"`
	Reason string `json:"reason"`
}

const dateLayout = "2006-01-02"

// CheckCoverage verifies the structural rules that need no storage access:
// every calendar day in [start, end] has at least one entry, periods are
// positive, and no day assigns the same period twice.
func CheckCoverage(start, end time.Time, entries []Entry) []Issue {
	var issues []Issue

	covered := make(map[string]map[int]bool)
	for _, entry := range entries {
		day := entry.Date.Format(dateLayout)
		if entry.Period <= 0 {
			issues = append(issues, Issue{Date: day, Reason: "period must be positive"})
			continue
		}
		if entry.Date.Before(truncate(start)) || entry.Date.After(truncate(end)) {
			issues = append(issues, Issue{Date: day, Reason: "entry outside leave range"})
			continue
		}
		if covered[day] == nil {
			covered[day] = make(map[int]bool)
		}
		if covered[day][entry.Period] {
			issues = append(issues, Issue{Date: day, Reason: fmt.Sprintf("duplicate assignment for period %d", entry.Period)})
			continue
		}
		covered[day][entry.Period] = true
	}

	for day := truncate(start); !day.After(truncate(end)); day = day.AddDate(0, 0, 1) {
		if len(covered[day.Format(dateLayout)]) == 0 {
			issues = append(issues, Issue{Date: day.Format(dateLayout), Reason: "no substitute assigned"})
		}
	}
	return issues
}

func truncate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

type Validator struct {
	DB *pgxpool.Pool
}

func NewValidator(db *pgxpool.Pool) *Validator {
	return &Validator{DB: db}
}

// CheckConflicts verifies the rules that require looking at other records: a
// substitute may not be the requester, may not be on approved leave on the
// covered date, and may not already hold the same period that day for another
// live request.
func (v *Validator) CheckConflicts(ctx context.Context, ownerEmployeeID string, entries []Entry) ([]Issue, error) {
	var issues []Issue
	for _, entry := range entries {
		day := entry.Date.Format(dateLayout)
		if entry.SubstituteID == ownerEmployeeID {
			issues = append(issues, Issue{Date: day, Reason: "substitute cannot be the requester"})
			continue
		}

		var onLeave int
		err := v.DB.QueryRow(ctx, `
      SELECT COUNT(1)
      FROM leave_requests
      WHERE employee_id = $1 AND status = 'approved' AND start_date <= $2 AND end_date >= $2
    `, entry.SubstituteID, entry.Date).Scan(&onLeave)
		if err != nil {
			return nil, err
		}
		if onLeave > 0 {
			issues = append(issues, Issue{Date: day, Reason: "substitute is on approved leave"})
			continue
		}

		var busy int
		err = v.DB.QueryRow(ctx, `
      SELECT COUNT(1)
      FROM leave_substitutions ls
      JOIN leave_requests lr ON ls.request_id = lr.id
      WHERE ls.substitute_employee_id = $1
        AND ls.substitute_date = $2
        AND ls.period = $3
        AND lr.status IN ('pending','forwarded','approved')
    `, entry.SubstituteID, entry.Date, entry.Period).Scan(&busy)
		if err != nil {
			return nil, err
		}
		if busy > 0 {
			issues = append(issues, Issue{Date: day, Reason: fmt.Sprintf("substitute already covers period %d", entry.Period)})
		}
	}
	return issues, nil
}

// Insert persists the entries for a request within the caller's transaction.
func (v *Validator) Insert(ctx context.Context, tx pgx.Tx, requestID string, entries []Entry) error {
	for _, entry := range entries {
		if _, err := tx.Exec(ctx, `
      INSERT INTO leave_substitutions (request_id, substitute_date, period, substitute_employee_id)
      VALUES ($1,$2,$3,$4)
    `, requestID, entry.Date, entry.Period, entry.SubstituteID); err != nil {
			return err
		}
	}
	return nil
}

// ForRequest loads the stored entries of a request.
func (v *Validator) ForRequest(ctx context.Context, requestID string) ([]Entry, error) {
	rows, err := v.DB.Query(ctx, `
    SELECT substitute_date, period, substitute_employee_id
    FROM leave_substitutions
    WHERE request_id = $1
    ORDER BY substitute_date, period
  `, requestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var entry Entry
		if err := rows.Scan(&entry.Date, &entry.Period, &entry.SubstituteID); err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}
