package auth

import "context"

const (
	RoleEmployee       = "employee"
	RolePayrollOfficer = "payroll_officer"
	RoleHR             = "hr"
	RoleSystemAdmin    = "admin"
)

const (
	PermPayrollRead           = "payroll.read"
	PermElectronicRead        = "payroll.electronic.read"
	PermElectronicIssue       = "payroll.electronic.issue"
	PermElectronicTransmit    = "payroll.electronic.transmit"
	PermElectronicCredentials = "payroll.electronic.credentials"
	PermSystemAdmin           = "admin.system"
)

var DefaultPermissions = []string{
	PermPayrollRead,
	PermElectronicRead,
	PermElectronicIssue,
	PermElectronicTransmit,
	PermElectronicCredentials,
	PermSystemAdmin,
}

var RolePermissions = map[string][]string{
	RoleEmployee: {
		PermPayrollRead,
	},
	RolePayrollOfficer: {
		PermPayrollRead,
		PermElectronicRead,
		PermElectronicIssue,
		PermElectronicTransmit,
	},
	RoleHR: {
		PermPayrollRead,
		PermElectronicRead,
		PermElectronicIssue,
		PermElectronicTransmit,
		PermElectronicCredentials,
	},
	RoleSystemAdmin: {
		PermSystemAdmin,
	},
}

// StaticPermissions answers permission checks from RolePermissions.
type StaticPermissions struct {
	grants map[string]map[string]bool
}

func NewStaticPermissions(roles map[string][]string) *StaticPermissions {
	grants := make(map[string]map[string]bool, len(roles))
	for role, perms := range roles {
		set := make(map[string]bool, len(perms))
		for _, p := range perms {
			set[p] = true
		}
		grants[role] = set
	}
	return &StaticPermissions{grants: grants}
}

func (s *StaticPermissions) HasPermission(ctx context.Context, role, permission string) (bool, error) {
	return s.grants[role][permission], nil
}
