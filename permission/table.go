package permission

import (
	"context"
	"fmt"
	"io"
	"sort"

	"gopkg.in/yaml.v3"
)

// Table is an immutable role-to-grants mapping.
type Table struct {
	grants map[Role][]Permission
}

// NewTable parses grant strings per role. When registry is non-nil every grant
// must name registered resources and actions.
func NewTable(roles map[Role][]string, registry *Registry) (*Table, error) {
	t := &Table{grants: make(map[Role][]Permission, len(roles))}
	for role, list := range roles {
		if !role.Valid() {
			return nil, fmt.Errorf("%w: %d", ErrUnknownRole, int(role))
		}
		parsed := make([]Permission, 0, len(list))
		for _, raw := range list {
			p, err := ParsePermission(raw)
			if err != nil {
				return nil, fmt.Errorf("role %s: %w", role, err)
			}
			if registry != nil {
				if err := registry.Check(p); err != nil {
					return nil, fmt.Errorf("role %s: %w", role, err)
				}
			}
			parsed = append(parsed, p)
		}
		t.grants[role] = parsed
	}
	return t, nil
}

type tableFile struct {
	Roles map[string][]string `yaml:"roles"`
}

// LoadTable reads a YAML document of the form
//
//	roles:
//	  editor: ["products:read", "categories:*"]
//	  super_admin: ["*"]
func LoadTable(r io.Reader, registry *Registry) (*Table, error) {
	var doc tableFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode permission table: %w", err)
	}

	roles := make(map[Role][]string, len(doc.Roles))
	for name, grants := range doc.Roles {
		role, err := ParseRole(name)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", err, name)
		}
		roles[role] = grants
	}
	return NewTable(roles, registry)
}

// Grants returns a copy of the role's grants.
func (t *Table) Grants(role Role) []Permission {
	if t == nil {
		return nil
	}
	src := t.grants[role]
	out := make([]Permission, len(src))
	copy(out, src)
	return out
}

// PermissionsForRole implements Source.
func (t *Table) PermissionsForRole(_ context.Context, role Role) ([]Permission, error) {
	return t.Grants(role), nil
}

// Evaluate decides a request for actor using the actor's role grants.
func (t *Table) Evaluate(actor Actor, resource, action, scope string) bool {
	if t == nil {
		return false
	}
	return Evaluate(actor, t.grants[actor.Role], resource, action, scope)
}

// Explain is Evaluate with the matching rule.
func (t *Table) Explain(actor Actor, resource, action, scope string) Decision {
	if t == nil {
		return Decision{Rule: MatchNone}
	}
	return Explain(actor, t.grants[actor.Role], resource, action, scope)
}

// Roles lists the roles with grant lists in ascending order.
func (t *Table) Roles() []Role {
	if t == nil {
		return nil
	}
	out := make([]Role, 0, len(t.grants))
	for r := range t.grants {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
