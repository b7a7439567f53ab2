package authstate

import "strings"

// Role is the authorization tier assigned to a user.
type Role string

const (
	// RoleUser is the unprivileged default tier.
	RoleUser Role = "user"
	// RoleStaff can access staff tooling but not the admin CMS.
	RoleStaff Role = "staff"
	// RoleAdmin can manage CMS content.
	RoleAdmin Role = "admin"
	// RoleSuperAdmin can additionally manage other admins.
	RoleSuperAdmin Role = "superadmin"
)

// DefaultRole is the least-privilege role used whenever resolution fails.
const DefaultRole = RoleUser

// NormalizeRole lower-cases and trims a raw role string. Values outside the
// known set are preserved as-is after normalization; they simply carry no
// privileges.
func NormalizeRole(raw string) Role {
	return Role(strings.ToLower(strings.TrimSpace(raw)))
}

// ParseRole normalizes a raw string and reports whether it is a known role.
func ParseRole(raw string) (Role, bool) {
	role := NormalizeRole(raw)
	return role, role.IsValid()
}

// IsValid checks if the role is one of the predefined valid roles
func (r Role) IsValid() bool {
	switch r {
	case RoleUser, RoleStaff, RoleAdmin, RoleSuperAdmin:
		return true
	default:
		return false
	}
}

// IsAdmin reports whether the role grants access to the admin CMS.
func (r Role) IsAdmin() bool {
	return r == RoleAdmin || r == RoleSuperAdmin
}

// IsSuperAdmin reports whether the role grants super admin privileges.
func (r Role) IsSuperAdmin() bool {
	return r == RoleSuperAdmin
}

// IsAtLeast checks if this role meets the minimum required level
func (r Role) IsAtLeast(minRole Role) bool {
	roleHierarchy := map[Role]int{
		RoleUser:       0,
		RoleStaff:      1,
		RoleAdmin:      2,
		RoleSuperAdmin: 3,
	}

	currentLevel, exists := roleHierarchy[r]
	if !exists {
		return false
	}

	minLevel, exists := roleHierarchy[minRole]
	if !exists {
		return false
	}

	return currentLevel >= minLevel
}

// AllRoles returns all predefined roles in hierarchical order
func AllRoles() []Role {
	return []Role{
		RoleUser,
		RoleStaff,
		RoleAdmin,
		RoleSuperAdmin,
	}
}
