package model

// Identity is the authenticated caller handed over by the gateway:
// an employee id plus the role set attached to the session. Either part
// may be empty, but an identity carrying neither is not allowed to touch
// the inbox at all.
type Identity struct {
	EmployeeID string
	Roles      []string
}

// Anonymous reports whether the identity carries neither an employee id
// nor any role. Such callers are rejected, not served an empty inbox.
func (i Identity) Anonymous() bool {
	return i.EmployeeID == "" && len(i.Roles) == 0
}

// HasRole reports whether the identity holds the given role.
func (i Identity) HasRole(role string) bool {
	for _, r := range i.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// HasAnyRole reports whether the identity holds at least one of the roles.
func (i Identity) HasAnyRole(roles []string) bool {
	for _, r := range roles {
		if i.HasRole(r) {
			return true
		}
	}
	return false
}
