package auth

import "sort"

const (
	PermLegalLint        = "legal.lint"
	PermApprovalsRead    = "approvals.read"
	PermApprovalsRequest = "approvals.request"
	PermApprovalsAct     = "approvals.act"
	PermArtifactsWrite   = "artifacts.write"
)

const (
	RoleComms     = "comms"
	RoleLegal     = "legal"
	RoleExecutive = "executive"
	RoleViewer    = "viewer"
	RoleAdmin     = "admin"
)

var allPermissions = []string{
	PermLegalLint, PermApprovalsRead, PermApprovalsRequest, PermApprovalsAct, PermArtifactsWrite,
}

// rolePermissions is the built-in grant table. Roles are compared lower-cased.
var rolePermissions = map[string][]string{
	RoleComms:     {PermLegalLint, PermApprovalsRead, PermApprovalsRequest, PermArtifactsWrite},
	RoleLegal:     {PermLegalLint, PermApprovalsRead, PermApprovalsAct},
	RoleExecutive: {PermApprovalsRead, PermApprovalsAct},
	RoleViewer:    {PermApprovalsRead},
	RoleAdmin:     allPermissions,
}

// PermissionsForRoles returns the sorted union of grants for roles. Unknown
// roles grant nothing.
func PermissionsForRoles(roles []string) []string {
	set := make(map[string]struct{})
	for _, role := range dedupeRoles(roles) {
		for _, p := range rolePermissions[role] {
			set[p] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// KnownRole reports whether role has a grant entry.
func KnownRole(role string) bool {
	_, ok := rolePermissions[role]
	return ok
}
