package permission

// MatchRule names the rule that produced a decision.
type MatchRule string

const (
	MatchInactive         MatchRule = "inactive"
	MatchExact            MatchRule = "exact"
	MatchResourceWildcard MatchRule = "resource_wildcard"
	MatchGlobalWildcard   MatchRule = "global_wildcard"
	MatchNone             MatchRule = "none"
)

// Decision is the result of evaluating one request.
type Decision struct {
	Allowed bool
	Rule    MatchRule
	Grant   Permission
}

// Explain evaluates a request against grants and reports which rule decided
// it. It is a pure function of its arguments.
func Explain(actor Actor, grants []Permission, resource, action, scope string) Decision {
	if !actor.IsActive {
		return Decision{Rule: MatchInactive}
	}

	for _, g := range grants {
		if !g.IsGlobal() && !g.IsResourceWildcard() &&
			g.Resource == resource && g.Action == action && g.scopeMatches(scope) {
			return Decision{Allowed: true, Rule: MatchExact, Grant: g}
		}
	}
	for _, g := range grants {
		if g.IsResourceWildcard() && g.Resource == resource && g.scopeMatches(scope) {
			return Decision{Allowed: true, Rule: MatchResourceWildcard, Grant: g}
		}
	}
	for _, g := range grants {
		if g.IsGlobal() {
			return Decision{Allowed: true, Rule: MatchGlobalWildcard, Grant: g}
		}
	}

	return Decision{Rule: MatchNone}
}

// Evaluate returns true when the request is allowed.
func Evaluate(actor Actor, grants []Permission, resource, action, scope string) bool {
	return Explain(actor, grants, resource, action, scope).Allowed
}
