package employee

import "time"

const (
	StaffTeaching    = "teaching"
	StaffNonTeaching = "nonteaching"
)

type Employee struct {
	ID              string    `json:"id"`
	UserID          string    `json:"userId,omitempty"`
	StaffID         string    `json:"staffId"`
	FirstName       string    `json:"firstName"`
	LastName        string    `json:"lastName"`
	Email           string    `json:"email"`
	StaffType       string    `json:"staffType"`
	Department      string    `json:"department"`
	Campus          string    `json:"campus"`
	Designation     string    `json:"designation"`
	FirstApproverID string    `json:"firstApproverId,omitempty"`
	JoinedOn        time.Time `json:"joinedOn"`
	LeaveBalance    float64   `json:"leaveBalance"`
	CCLBalance      float64   `json:"cclBalance"`
	Active          bool      `json:"active"`
	CreatedAt       time.Time `json:"createdAt"`
}

// SequenceScope is the partition code embedded in generated request ids:
// the department code for teaching staff, a fixed marker otherwise.
func (e Employee) SequenceScope() string {
	if e.StaffType == StaffNonTeaching {
		return "NT"
	}
	return e.Department
}

// AnnualEntitlement derives the yearly ordinary-leave baseline from length of
// service as of the reset date.
func AnnualEntitlement(joinedOn, asOf time.Time) float64 {
	years := yearsOfService(joinedOn, asOf)
	switch {
	case years >= 10:
		return 18
	case years >= 5:
		return 15
	default:
		return 12
	}
}

func yearsOfService(joinedOn, asOf time.Time) int {
	if asOf.Before(joinedOn) {
		return 0
	}
	years := asOf.Year() - joinedOn.Year()
	anniversary := joinedOn.AddDate(years, 0, 0)
	if anniversary.After(asOf) {
		years--
	}
	if years < 0 {
		years = 0
	}
	return years
}
