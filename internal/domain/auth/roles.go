package auth

const (
	RoleEmployee  = "employee"
	RoleHOD       = "hod"
	RolePrincipal = "principal"
	RoleHR        = "hr"
	RoleAdmin     = "admin"
)

var AllRoles = []string{RoleEmployee, RoleHOD, RolePrincipal, RoleHR, RoleAdmin}

const (
	UserStatusActive   = "active"
	UserStatusDisabled = "disabled"
)
