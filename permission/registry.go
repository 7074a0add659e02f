package permission

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	ErrRegistryFrozen     = errors.New("registry frozen")
	ErrUnknownResource    = errors.New("unknown resource")
	ErrUnknownAction      = errors.New("unknown action")
	ErrResourceRegistered = errors.New("resource already registered")
)

// Registry records the resources and actions an application defines, so grant
// tables can be checked for typos before they are used.
type Registry struct {
	mu        sync.RWMutex
	resources map[string]map[string]struct{}
	frozen    bool
}

// NewRegistry returns an empty, unfrozen registry.
func NewRegistry() *Registry {
	return &Registry{resources: make(map[string]map[string]struct{})}
}

// Register adds a resource and its actions. Must be called before
// [Registry.Freeze].
func (r *Registry) Register(resource string, actions ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return ErrRegistryFrozen
	}
	if resource == "" || resource == Wildcard {
		return errors.New("resource name cannot be empty or a wildcard")
	}
	if _, exists := r.resources[resource]; exists {
		return ErrResourceRegistered
	}
	if len(actions) == 0 {
		return errors.New("resource requires at least one action")
	}

	set := make(map[string]struct{}, len(actions))
	for _, a := range actions {
		if a == "" || a == Wildcard {
			return errors.New("action name cannot be empty or a wildcard")
		}
		set[a] = struct{}{}
	}
	r.resources[resource] = set
	return nil
}

// Freeze prevents further registrations.
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
}

// Known reports whether resource (and action, unless it is a wildcard) are
// registered.
func (r *Registry) Known(resource, action string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	actions, ok := r.resources[resource]
	if !ok {
		return false
	}
	if action == Wildcard {
		return true
	}
	_, ok = actions[action]
	return ok
}

// Check returns an error naming the first unknown part of p.
func (r *Registry) Check(p Permission) error {
	if p.IsGlobal() {
		return nil
	}
	r.mu.RLock()
	_, ok := r.resources[p.Resource]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownResource, p.Resource)
	}
	if !r.Known(p.Resource, p.Action) {
		return fmt.Errorf("%w: %s:%s", ErrUnknownAction, p.Resource, p.Action)
	}
	return nil
}

// Resources returns the registered resource names in sorted order.
func (r *Registry) Resources() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.resources))
	for name := range r.resources {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Count returns the number of registered resources.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.resources)
}
