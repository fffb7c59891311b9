package auth

const (
	PermEmployeesRead  = "employees.read"
	PermEmployeesWrite = "employees.write"
	PermLeaveRead      = "leave.read"
	PermLeaveSubmit    = "leave.submit"
	PermLeaveForward   = "leave.forward"
	PermLeaveApprove   = "leave.approve"
	PermCCLRead        = "ccl.read"
	PermCCLSubmit      = "ccl.submit"
	PermCCLForward     = "ccl.forward"
	PermCCLApprove     = "ccl.approve"
	PermReportsRead    = "reports.read"
	PermAuditRead      = "audit.read"
	PermJobsRun        = "jobs.run"
	PermSystemAdmin    = "admin.system"
)

var DefaultPermissions = []string{
	PermEmployeesRead,
	PermEmployeesWrite,
	PermLeaveRead,
	PermLeaveSubmit,
	PermLeaveForward,
	PermLeaveApprove,
	PermCCLRead,
	PermCCLSubmit,
	PermCCLForward,
	PermCCLApprove,
	PermReportsRead,
	PermAuditRead,
	PermJobsRun,
	PermSystemAdmin,
}

var RolePermissions = map[string][]string{
	RoleEmployee: {
		PermEmployeesRead,
		PermLeaveRead,
		PermLeaveSubmit,
		PermCCLRead,
		PermCCLSubmit,
		PermReportsRead,
	},
	RoleHOD: {
		PermEmployeesRead,
		PermLeaveRead,
		PermLeaveSubmit,
		PermLeaveForward,
		PermCCLRead,
		PermCCLSubmit,
		PermCCLForward,
		PermReportsRead,
	},
	RolePrincipal: {
		PermEmployeesRead,
		PermLeaveRead,
		PermLeaveForward,
		PermLeaveApprove,
		PermCCLRead,
		PermCCLForward,
		PermCCLApprove,
		PermReportsRead,
	},
	RoleHR: {
		PermEmployeesRead,
		PermEmployeesWrite,
		PermLeaveRead,
		PermLeaveForward,
		PermLeaveApprove,
		PermCCLRead,
		PermCCLForward,
		PermCCLApprove,
		PermReportsRead,
		PermAuditRead,
		PermJobsRun,
	},
	RoleAdmin: {
		PermSystemAdmin,
		PermAuditRead,
		PermJobsRun,
	},
}
