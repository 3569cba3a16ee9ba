package core

import (
	"fmt"
	"regexp"
	"sync"
)

var toolNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// Registry holds the immutable set of tools exposed by the server. It is
// populated once at startup; duplicate names are a startup error.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
	order []string
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool, validating its descriptor. Registration order is
// preserved for listing.
func (r *Registry) Register(t Tool) error {
	name := t.Name()
	if !toolNamePattern.MatchString(name) {
		return fmt.Errorf("tool name %q is not snake_case", name)
	}
	if err := t.Pricing().Validate(); err != nil {
		return fmt.Errorf("tool %q: %w", name, err)
	}
	if t.InputSchema() == nil {
		return fmt.Errorf("tool %q has no input schema", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("duplicate tool name %q", name)
	}
	r.tools[name] = t
	r.order = append(r.order, name)
	return nil
}

// Lookup resolves a tool by wire name.
func (r *Registry) Lookup(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// List returns tools in registration order.
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name])
	}
	return out
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}
