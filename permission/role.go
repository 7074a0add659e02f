package permission

import (
	"errors"
	"strings"
)

// Role is a closed, ordered enumeration of actor roles.
type Role int

const (
	RoleUnknown    Role = 0
	RoleViewer     Role = 10
	RoleEditor     Role = 20
	RoleAdmin      Role = 30
	RoleSuperAdmin Role = 40
)

// ErrUnknownRole is returned by ParseRole for names outside the enumeration.
var ErrUnknownRole = errors.New("unknown role")

var roleNames = map[Role]string{
	RoleViewer:     "viewer",
	RoleEditor:     "editor",
	RoleAdmin:      "admin",
	RoleSuperAdmin: "super_admin",
}

// Roles lists every defined role in ascending hierarchy order.
func Roles() []Role {
	return []Role{RoleViewer, RoleEditor, RoleAdmin, RoleSuperAdmin}
}

func (r Role) String() string {
	if name, ok := roleNames[r]; ok {
		return name
	}
	return "unknown"
}

// Valid reports whether r is one of the defined roles.
func (r Role) Valid() bool {
	_, ok := roleNames[r]
	return ok
}

// AtLeast reports whether r ranks at or above other in the hierarchy.
// It is informational only and never grants permissions.
func (r Role) AtLeast(other Role) bool {
	return r.Valid() && r >= other
}

// ParseRole maps a case-insensitive role name to its Role.
func ParseRole(name string) (Role, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	n = strings.ReplaceAll(n, "-", "_")
	for role, roleName := range roleNames {
		if roleName == n {
			return role, nil
		}
	}
	return RoleUnknown, ErrUnknownRole
}

// MarshalText encodes the role name.
func (r Role) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, ErrUnknownRole
	}
	return []byte(r.String()), nil
}

// UnmarshalText decodes a role name.
func (r *Role) UnmarshalText(text []byte) error {
	parsed, err := ParseRole(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
