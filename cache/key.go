package cache

import (
	"strings"

	"github.com/gobwas/glob"
)

// Key identifies one cached decision.
type Key struct {
	ActorID  string
	Resource string
	Action   string
	Scope    string
}

var componentEscaper = strings.NewReplacer("%", "%25", ":", "%3A")

// String serializes k as actor:resource:action:scope with '%' and ':'
// percent-escaped inside each component.
func (k Key) String() string {
	var b strings.Builder
	b.Grow(len(k.ActorID) + len(k.Resource) + len(k.Action) + len(k.Scope) + 3)
	b.WriteString(componentEscaper.Replace(k.ActorID))
	b.WriteByte(':')
	b.WriteString(componentEscaper.Replace(k.Resource))
	b.WriteByte(':')
	b.WriteString(componentEscaper.Replace(k.Action))
	b.WriteByte(':')
	b.WriteString(componentEscaper.Replace(k.Scope))
	return b.String()
}

func quoteComponent(s string) string {
	return glob.QuoteMeta(componentEscaper.Replace(s))
}

// ResourcePattern matches every key for resource, across actors, actions and
// scopes.
func ResourcePattern(resource string) string {
	return "*:" + quoteComponent(resource) + ":*:*"
}

// ActorPattern matches every key for actorID.
func ActorPattern(actorID string) string {
	return quoteComponent(actorID) + ":*:*:*"
}

// ResourceActionPattern matches every key for one resource and action.
func ResourceActionPattern(resource, action string) string {
	return "*:" + quoteComponent(resource) + ":" + quoteComponent(action) + ":*"
}
