package authz

import (
	"fmt"

	"github.com/docvaulthq/docvault/tenant"
)

// Role is one of the fixed set of organization roles, ordered
// admin > manager > member > viewer.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleManager Role = "manager"
	RoleMember  Role = "member"
	RoleViewer  Role = "viewer"
)

// DefaultRole is assigned to users who have not been explicitly
// elevated. Least privilege: organization creators are promoted to admin
// of their own organization at setup time, nobody defaults to admin.
const DefaultRole = RoleViewer

// roleRank backs the role hierarchy comparisons. Unknown roles rank 0.
var roleRank = map[Role]int{
	RoleViewer:  1,
	RoleMember:  2,
	RoleManager: 3,
	RoleAdmin:   4,
}

// Permission is a "resource:action" tag. Permissions are computed from
// the role, never stored.
type Permission string

const (
	PermDocumentsRead   Permission = "documents:read"
	PermDocumentsWrite  Permission = "documents:write"
	PermDocumentsDelete Permission = "documents:delete"

	PermProjectsRead   Permission = "projects:read"
	PermProjectsWrite  Permission = "projects:write"
	PermProjectsDelete Permission = "projects:delete"

	PermSearchRead Permission = "search:read"
	PermChatRead   Permission = "chat:read"
	PermChatWrite  Permission = "chat:write"

	PermUsersRead   Permission = "users:read"
	PermUsersWrite  Permission = "users:write"
	PermUsersManage Permission = "users:manage"

	PermOrganizationsManage Permission = "organizations:manage"

	PermAuditRead   Permission = "audit:read"
	PermAuditExport Permission = "audit:export"
)

// RolePermissions is the static role → permission table. Each role's set
// is a strict superset of the role below it; the table is immutable
// process-wide state and safe for concurrent reads.
var RolePermissions = buildRolePermissions()

func buildRolePermissions() map[Role]map[Permission]bool {
	viewer := []Permission{
		PermDocumentsRead,
		PermProjectsRead,
		PermSearchRead,
		PermChatRead,
	}
	member := append([]Permission{
		PermDocumentsWrite,
		PermProjectsWrite,
		PermChatWrite,
	}, viewer...)
	manager := append([]Permission{
		PermDocumentsDelete,
		PermProjectsDelete,
		PermUsersRead,
		PermAuditRead,
	}, member...)
	admin := append([]Permission{
		PermUsersWrite,
		PermUsersManage,
		PermOrganizationsManage,
		PermAuditExport,
	}, manager...)

	table := make(map[Role]map[Permission]bool, 4)
	for role, perms := range map[Role][]Permission{
		RoleViewer:  viewer,
		RoleMember:  member,
		RoleManager: manager,
		RoleAdmin:   admin,
	} {
		set := make(map[Permission]bool, len(perms))
		for _, p := range perms {
			set[p] = true
		}
		table[role] = set
	}
	return table
}

// ValidRole reports whether role names one of the fixed roles.
func ValidRole(role Role) bool {
	_, ok := roleRank[role]
	return ok
}

// HasPermission checks the static table. Unknown roles have no
// permissions.
func HasPermission(role Role, permission Permission) bool {
	return RolePermissions[role][permission]
}

// HasAllPermissions is the short-circuiting conjunction of HasPermission.
func HasAllPermissions(role Role, permissions ...Permission) bool {
	for _, p := range permissions {
		if !HasPermission(role, p) {
			return false
		}
	}
	return true
}

// HasAnyPermission is the short-circuiting disjunction of HasPermission.
func HasAnyPermission(role Role, permissions ...Permission) bool {
	for _, p := range permissions {
		if HasPermission(role, p) {
			return true
		}
	}
	return false
}

// HasHigherRole reports whether a is strictly above b in the role
// hierarchy.
func HasHigherRole(a, b Role) bool {
	return roleRank[a] > roleRank[b]
}

// Permissions returns the permission set for a role, for diagnostics and
// the /auth/me surface.
func Permissions(role Role) []Permission {
	set := RolePermissions[role]
	perms := make([]Permission, 0, len(set))
	for p := range set {
		perms = append(perms, p)
	}
	return perms
}

// InsufficientPermissionsError carries the required permission and the
// caller's role for diagnostics. It never includes other users' data.
type InsufficientPermissionsError struct {
	Required Permission
	Role     Role
}

func (e *InsufficientPermissionsError) Error() string {
	return fmt.Sprintf("permission %q required, current role is %q", e.Required, e.Role)
}

// ErrorCode places the permission error in the closed taxonomy.
func (e *InsufficientPermissionsError) ErrorCode() tenant.ErrorCode {
	return tenant.CodeForbidden
}

// Require fails with ErrMissingAuth when there is no authenticated
// session and with InsufficientPermissionsError when the session's role
// lacks the permission. Route handlers call this before any data access.
// Repeated calls with an unchanged session are side-effect free.
func Require(session *tenant.Session, permission Permission) error {
	if session == nil || session.UserID == "" {
		return tenant.ErrMissingAuth
	}
	if !HasPermission(Role(session.Role), permission) {
		return &InsufficientPermissionsError{Required: permission, Role: Role(session.Role)}
	}
	return nil
}

// Has is the boolean form of Require: false for missing sessions, else a
// table lookup.
func Has(session *tenant.Session, permission Permission) bool {
	return Require(session, permission) == nil
}

// CanAccessUserResource layers per-record ownership on top of the
// organization filter: the owner or an admin may touch the record.
// Organization scoping alone does not stop one member reading another
// member's private resource inside the same tenant.
func CanAccessUserResource(session *tenant.Session, resourceOwnerID string) bool {
	if session == nil || session.UserID == "" {
		return false
	}
	if session.UserID == resourceOwnerID {
		return true
	}
	return Role(session.Role) == RoleAdmin
}
