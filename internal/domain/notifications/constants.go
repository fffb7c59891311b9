package notifications

const (
	TypeLeaveSubmitted = "leave_submitted"
	TypeLeaveForwarded = "leave_forwarded"
	TypeLeaveApproved  = "leave_approved"
	TypeLeaveRejected  = "leave_rejected"
	TypeCCLSubmitted   = "ccl_submitted"
	TypeCCLForwarded   = "ccl_forwarded"
	TypeCCLApproved    = "ccl_approved"
	TypeCCLRejected    = "ccl_rejected"
)
