package leave

import (
	"errors"
	"fmt"
	"time"
)

// MaxCLPerMonth caps how many casual leave days a month may draw from the
// paid balance; anything beyond it becomes loss of pay.
const MaxCLPerMonth = 1.0

var (
	ErrHalfDayRange     = errors.New("half-day leave must start and end on the same date")
	ErrHalfDaySession   = errors.New("half-day leave requires a session of morning or afternoon")
	ErrSessionOnFullDay = errors.New("session may only be set on a half-day request")
	ErrDateOrder        = errors.New("end date must not precede start date")
)

// CalculateDays returns the day count of a request. Full-day ranges are
// counted inclusively; a half day is always 0.5.
func CalculateDays(start, end time.Time, halfDay bool) (float64, error) {
	start = dateOnly(start)
	end = dateOnly(end)
	if end.Before(start) {
		return 0, ErrDateOrder
	}
	if halfDay {
		if !start.Equal(end) {
			return 0, ErrHalfDayRange
		}
		return 0.5, nil
	}
	return float64(end.Sub(start).Hours()/24) + 1, nil
}

// ValidateHalfDay checks the session field against the half-day flag.
func ValidateHalfDay(halfDay bool, session string) error {
	if !halfDay {
		if session != "" {
			return fmt.Errorf("%w: got %q", ErrSessionOnFullDay, session)
		}
		return nil
	}
	if session != SessionMorning && session != SessionAfternoon {
		return ErrHalfDaySession
	}
	return nil
}

// SplitCasualDays divides a casual request into the paid portion and the loss
// of pay remainder, given how many paid days the start month already consumed.
func SplitCasualDays(requested, usedThisMonth float64) (cl, lop float64) {
	remaining := MaxCLPerMonth - usedThisMonth
	if remaining < 0 {
		remaining = 0
	}
	cl = requested
	if cl > remaining {
		cl = remaining
	}
	return cl, requested - cl
}

// MonthWindow returns the first day of t's month and the first day of the
// following month, for month-scoped queries.
func MonthWindow(t time.Time) (from, to time.Time) {
	from = time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	return from, from.AddDate(0, 1, 0)
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
