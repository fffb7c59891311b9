// Package leave implements the leave request lifecycle: submission with
// credit validation, forwarding by the first-line approver, and the final
// approve/reject decision with its balance effects.
package leave

import "time"

type Status string

const (
	StatusPending   Status = "pending"
	StatusForwarded Status = "forwarded"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
)

func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

type Type string

const (
	TypeCasual       Type = "casual"
	TypeCompensatory Type = "compensatory"
	TypeOnDuty       Type = "onduty"
)

// TypeCode maps a leave type to the prefix used in request identifiers.
func TypeCode(t Type) string {
	switch t {
	case TypeCasual:
		return "CL"
	case TypeCompensatory:
		return "CCL"
	case TypeOnDuty:
		return "OD"
	}
	return ""
}

func ValidType(t Type) bool {
	return TypeCode(t) != ""
}

const (
	SessionMorning   = "morning"
	SessionAfternoon = "afternoon"
)

type Request struct {
	ID                 string     `json:"id"`
	EmployeeID         string     `json:"employeeId"`
	LeaveType          Type       `json:"leaveType"`
	HalfDay            bool       `json:"halfDay"`
	HalfDaySession     string     `json:"halfDaySession,omitempty"`
	StartDate          time.Time  `json:"startDate"`
	EndDate            time.Time  `json:"endDate"`
	Days               float64    `json:"days"`
	Reason             string     `json:"reason"`
	Status             Status     `json:"status"`
	CLDays             float64    `json:"clDays"`
	LOPDays            float64    `json:"lopDays"`
	ForwardedBy        string     `json:"forwardedBy,omitempty"`
	ForwardRemark      string     `json:"forwardRemark,omitempty"`
	ForwardedAt        *time.Time `json:"forwardedAt,omitempty"`
	DecidedBy          string     `json:"decidedBy,omitempty"`
	DecisionRemark     string     `json:"decisionRemark,omitempty"`
	DecidedAt          *time.Time `json:"decidedAt,omitempty"`
	ModifiedByApprover bool       `json:"modifiedByApprover"`
	OriginalStartDate  *time.Time `json:"originalStartDate,omitempty"`
	OriginalEndDate    *time.Time `json:"originalEndDate,omitempty"`
	OriginalDays       *float64   `json:"originalDays,omitempty"`
	DebitedDays        float64    `json:"debitedDays"`
	CreatedAt          time.Time  `json:"createdAt"`
}
