package leave

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestCalculateDays(t *testing.T) {
	days, err := CalculateDays(date(2026, 3, 2), date(2026, 3, 4), false)
	require.NoError(t, err)
	assert.Equal(t, 3.0, days)

	days, err = CalculateDays(date(2026, 3, 2), date(2026, 3, 2), false)
	require.NoError(t, err)
	assert.Equal(t, 1.0, days)

	days, err = CalculateDays(date(2026, 3, 2), date(2026, 3, 2), true)
	require.NoError(t, err)
	assert.Equal(t, 0.5, days)
}

func TestCalculateDaysRejectsBadRanges(t *testing.T) {
	_, err := CalculateDays(date(2026, 3, 4), date(2026, 3, 2), false)
	assert.ErrorIs(t, err, ErrDateOrder)

	_, err = CalculateDays(date(2026, 3, 2), date(2026, 3, 3), true)
	assert.ErrorIs(t, err, ErrHalfDayRange)
}

func TestValidateHalfDay(t *testing.T) {
	assert.NoError(t, ValidateHalfDay(true, SessionMorning))
	assert.NoError(t, ValidateHalfDay(true, SessionAfternoon))
	assert.NoError(t, ValidateHalfDay(false, ""))

	assert.ErrorIs(t, ValidateHalfDay(true, ""), ErrHalfDaySession)
	assert.ErrorIs(t, ValidateHalfDay(true, "evening"), ErrHalfDaySession)
	assert.Error(t, ValidateHalfDay(false, SessionMorning))
}

func TestSplitCasualDays(t *testing.T) {
	cases := []struct {
		name      string
		requested float64
		used      float64
		wantCL    float64
		wantLOP   float64
	}{
		{"first request of the month", 3, 0, 1, 2},
		{"single day, nothing used", 1, 0, 1, 0},
		{"half day, nothing used", 0.5, 0, 0.5, 0},
		{"half day after a half day", 0.5, 0.5, 0.5, 0},
		{"month cap already reached", 2, 1, 0, 2},
		{"cap exceeded by earlier data", 1, 1.5, 0, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cl, lop := SplitCasualDays(tc.requested, tc.used)
			assert.Equal(t, tc.wantCL, cl)
			assert.Equal(t, tc.wantLOP, lop)
			assert.Equal(t, tc.requested, cl+lop)
		})
	}
}

func TestMonthWindow(t *testing.T) {
	from, to := MonthWindow(date(2026, 3, 17))
	assert.Equal(t, date(2026, 3, 1), from)
	assert.Equal(t, date(2026, 4, 1), to)

	from, to = MonthWindow(date(2026, 12, 31))
	assert.Equal(t, date(2026, 12, 1), from)
	assert.Equal(t, date(2027, 1, 1), to)
}
