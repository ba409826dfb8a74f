package recipe

import (
	"fmt"
	"slices"
)

// Registry holds named checks in registration order.
type Registry struct {
	names  []string
	checks map[string]Check
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{checks: make(map[string]Check)}
}

// Register adds a check under name. Names must be unique.
func (r *Registry) Register(name string, check Check) error {
	if name == "" {
		return fmt.Errorf("recipe name must not be empty")
	}
	if check == nil {
		return fmt.Errorf("recipe %q: nil check", name)
	}
	if _, ok := r.checks[name]; ok {
		return fmt.Errorf("recipe %q already registered", name)
	}
	r.names = append(r.names, name)
	r.checks[name] = check
	return nil
}

// Lookup returns the check registered under name.
func (r *Registry) Lookup(name string) (Check, bool) {
	c, ok := r.checks[name]
	return c, ok
}

// Names returns recipe names in registration order.
func (r *Registry) Names() []string { return slices.Clone(r.names) }

// Len returns the number of registered recipes.
func (r *Registry) Len() int { return len(r.names) }

// Without returns a copy of r without the named recipes. Unknown names are
// ignored.
func (r *Registry) Without(names ...string) *Registry {
	out := NewRegistry()
	for _, n := range r.names {
		if !slices.Contains(names, n) {
			_ = out.Register(n, r.checks[n])
		}
	}
	return out
}

// Default returns a new registry with the built-in recipes.
func Default() *Registry {
	r := NewRegistry()
	for _, b := range builtins {
		_ = r.Register(b.name, b.check)
	}
	return r
}
