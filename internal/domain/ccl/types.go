// Package ccl handles compensatory casual leave work records: extra duty an
// employee performs, approved in two stages, which earns a credit that a
// later compensatory leave request can spend.
package ccl

import "time"

type Status string

const (
	StatusPending   Status = "pending"
	StatusForwarded Status = "forwarded"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
)

// TypeCode is the identifier prefix for work records.
const TypeCode = "CCLW"

// CreditPerApproval is the credit one approved work record earns. A full
// extra duty day is worth one day of compensatory leave regardless of hours.
const CreditPerApproval = 1.0

type WorkRequest struct {
	ID              string     `json:"id"`
	EmployeeID      string     `json:"employeeId"`
	WorkDate        time.Time  `json:"workDate"`
	TargetAuthority string     `json:"targetAuthority,omitempty"`
	Reason          string     `json:"reason"`
	Status          Status     `json:"status"`
	FirstRemark     string     `json:"firstRemark,omitempty"`
	FirstDecidedBy  string     `json:"firstDecidedBy,omitempty"`
	FirstDecidedAt  *time.Time `json:"firstDecidedAt,omitempty"`
	SecondRemark    string     `json:"secondRemark,omitempty"`
	SecondDecidedBy string     `json:"secondDecidedBy,omitempty"`
	SecondDecidedAt *time.Time `json:"secondDecidedAt,omitempty"`
	IsUsed          bool       `json:"isUsed"`
	UsedByRequestID string     `json:"usedByRequestId,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
}
