package permission

import (
	"errors"
	"fmt"
	"strings"
)

// Wildcard matches every resource or every action.
const Wildcard = "*"

// ErrInvalidPermission is returned by ParsePermission for malformed grants.
var ErrInvalidPermission = errors.New("invalid permission")

// Permission is one grant. Scope is optional; an unscoped grant matches every
// scope.
type Permission struct {
	Resource string
	Action   string
	Scope    string
}

// ParsePermission parses "*", "resource:*", "resource:action" or
// "resource:action:scope".
func ParsePermission(s string) (Permission, error) {
	s = strings.TrimSpace(s)
	if s == Wildcard {
		return Permission{Resource: Wildcard, Action: Wildcard}, nil
	}

	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return Permission{}, fmt.Errorf("%w: %q", ErrInvalidPermission, s)
	}
	for _, p := range parts {
		if p == "" {
			return Permission{}, fmt.Errorf("%w: %q", ErrInvalidPermission, s)
		}
	}
	if parts[0] == Wildcard {
		return Permission{}, fmt.Errorf("%w: resource wildcard must be the whole grant: %q", ErrInvalidPermission, s)
	}

	p := Permission{Resource: parts[0], Action: parts[1]}
	if len(parts) == 3 {
		if p.Action == Wildcard {
			return Permission{}, fmt.Errorf("%w: scoped grants need an explicit action: %q", ErrInvalidPermission, s)
		}
		p.Scope = parts[2]
	}
	return p, nil
}

// MustParsePermissions parses every grant and panics on the first error.
// Intended for tests and static tables.
func MustParsePermissions(grants ...string) []Permission {
	out := make([]Permission, 0, len(grants))
	for _, g := range grants {
		p, err := ParsePermission(g)
		if err != nil {
			panic(err)
		}
		out = append(out, p)
	}
	return out
}

func (p Permission) String() string {
	if p.IsGlobal() {
		return Wildcard
	}
	if p.Scope != "" {
		return p.Resource + ":" + p.Action + ":" + p.Scope
	}
	return p.Resource + ":" + p.Action
}

// IsGlobal reports whether p is the "*" grant.
func (p Permission) IsGlobal() bool {
	return p.Resource == Wildcard
}

// IsResourceWildcard reports whether p is a "resource:*" grant.
func (p Permission) IsResourceWildcard() bool {
	return !p.IsGlobal() && p.Action == Wildcard
}

func (p Permission) scopeMatches(scope string) bool {
	return p.Scope == "" || p.Scope == scope
}
