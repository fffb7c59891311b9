package requestid

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormat(t *testing.T) {
	assert.Equal(t, "CL2026CSE0007", Format("CL", 2026, "CSE", 7))
	assert.Equal(t, "CCLW2026NT0123", Format("CCLW", 2026, ScopeNonTeaching, 123))
	assert.Equal(t, "OD2026ECE9999", Format("OD", 2026, "ECE", MaxSeq))
}

func TestPrefix(t *testing.T) {
	assert.Equal(t, "CL2026CSE", Prefix("CL", 2026, "CSE"))
}

func TestParseSeq(t *testing.T) {
	seq, ok := ParseSeq("CL2026CSE0007")
	assert.True(t, ok)
	assert.Equal(t, 7, seq)

	seq, ok = ParseSeq("CCLW2026NT9999")
	assert.True(t, ok)
	assert.Equal(t, MaxSeq, seq)

	_, ok = ParseSeq("CL2026CSE")
	assert.False(t, ok)

	_, ok = ParseSeq("")
	assert.False(t, ok)
}

func TestBackoffGrowsWithAttempt(t *testing.T) {
	assert.Equal(t, 20*time.Millisecond, Backoff(1))
	assert.Equal(t, 100*time.Millisecond, Backoff(5))
	assert.True(t, Backoff(3) > Backoff(2))
	assert.Equal(t, Backoff(1), Backoff(0))
}
