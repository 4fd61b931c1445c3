package auth

// Principal is an authenticated caller with resolved permissions.
type Principal struct {
	UserID      string
	Roles       []string
	Permissions map[string]struct{}
}

// NewPrincipal resolves roles to permissions.
func NewPrincipal(userID string, roles []string) Principal {
	roles = dedupeRoles(roles)
	perms := PermissionsForRoles(roles)
	set := make(map[string]struct{}, len(perms))
	for _, p := range perms {
		set[p] = struct{}{}
	}
	return Principal{UserID: userID, Roles: roles, Permissions: set}
}

// PrincipalFromClaims builds the principal for a validated token.
func PrincipalFromClaims(c *Claims) Principal {
	return NewPrincipal(c.Subject, c.Roles)
}

// HasPermission reports whether the principal can execute action identified by key.
func (p Principal) HasPermission(key string) bool {
	_, ok := p.Permissions[key]
	return ok
}
