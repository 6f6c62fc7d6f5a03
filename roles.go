package library

import "strings"

// UserRole is the user's role
type UserRole string

const (
	// RoleMember can browse, borrow and return books
	RoleMember UserRole = "member"
	// RoleAdmin can also manage the catalog
	RoleAdmin UserRole = "admin"
)

// IsValid checks if the role is one of the predefined valid roles
func (r UserRole) IsValid() bool {
	switch r {
	case RoleMember, RoleAdmin:
		return true
	default:
		return false
	}
}

// IsAtLeast checks if this role meets the minimum required level
func (r UserRole) IsAtLeast(minRole UserRole) bool {
	roleHierarchy := map[UserRole]int{
		RoleMember: 1,
		RoleAdmin:  2,
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

// GetAllRoles returns all predefined roles in hierarchical order
func GetAllRoles() []UserRole {
	return []UserRole{
		RoleMember,
		RoleAdmin,
	}
}

// ParseRole safely parses a string into a UserRole type. An empty string
// resolves to RoleMember.
func ParseRole(roleStr string) (UserRole, bool) {
	roleStr = strings.ToLower(strings.TrimSpace(roleStr))
	if roleStr == "" {
		return RoleMember, true
	}
	role := UserRole(roleStr)
	return role, role.IsValid()
}
