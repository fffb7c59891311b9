package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func day(d int) time.Time {
	return time.Date(2026, 3, d, 0, 0, 0, 0, time.UTC)
}

func TestCheckCoverageFullRange(t *testing.T) {
	entries := []Entry{
		{Date: day(2), Period: 1, SubstituteID: "a"},
		{Date: day(3), Period: 1, SubstituteID: "b"},
	}
	assert.Empty(t, CheckCoverage(day(2), day(3), entries))
}

func TestCheckCoverageMissingDay(t *testing.T) {
	entries := []Entry{{Date: day(2), Period: 1, SubstituteID: "a"}}
	issues := CheckCoverage(day(2), day(4), entries)
	assert.Len(t, issues, 2)
	assert.Equal(t, "2026-03-03", issues[0].Date)
	assert.Equal(t, "2026-03-04", issues[1].Date)
}

func TestCheckCoverageDuplicatePeriod(t *testing.T) {
	entries := []Entry{
		{Date: day(2), Period: 3, SubstituteID: "a"},
		{Date: day(2), Period: 3, SubstituteID: "b"},
	}
	issues := CheckCoverage(day(2), day(2), entries)
	assert.Len(t, issues, 1)
	assert.Contains(t, issues[0].Reason, "duplicate assignment")
}

func TestCheckCoverageOutOfRangeAndBadPeriod(t *testing.T) {
	entries := []Entry{
		{Date: day(1), Period: 1, SubstituteID: "a"},
		{Date: day(2), Period: 0, SubstituteID: "b"},
		{Date: day(2), Period: 2, SubstituteID: "c"},
	}
	issues := CheckCoverage(day(2), day(2), entries)
	assert.Len(t, issues, 2)
}
