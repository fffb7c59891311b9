package employee

import (
	"testing"
	"time"
)

func TestSequenceScope(t *testing.T) {
	teaching := Employee{StaffType: StaffTeaching, Department: "CSE"}
	if got := teaching.SequenceScope(); got != "CSE" {
		t.Fatalf("expected CSE, got %s", got)
	}

	nonTeaching := Employee{StaffType: StaffNonTeaching, Department: "ADMIN"}
	if got := nonTeaching.SequenceScope(); got != "NT" {
		t.Fatalf("expected NT, got %s", got)
	}
}

func TestAnnualEntitlement(t *testing.T) {
	asOf := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		joined time.Time
		want   float64
	}{
		{time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), 12},
		{time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC), 15},
		{time.Date(2020, 12, 31, 0, 0, 0, 0, time.UTC), 15},
		{time.Date(2016, 1, 1, 0, 0, 0, 0, time.UTC), 18},
		{time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), 12},
	}
	for _, tc := range cases {
		if got := AnnualEntitlement(tc.joined, asOf); got != tc.want {
			t.Fatalf("joined %v: expected %v, got %v", tc.joined, tc.want, got)
		}
	}
}
