package macro

import (
	"sort"
	"sync"
)

// Registry manages macro definitions and provides lookup functionality.
type Registry struct {
	macros map[string]*Macro
	mu     sync.RWMutex
}

// NewRegistry creates a new empty macro registry.
func NewRegistry() *Registry {
	return &Registry{
		macros: make(map[string]*Macro),
	}
}

// Register adds a macro to the registry.
// If a macro with the same name exists, it will be replaced.
func (r *Registry) Register(m *Macro) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.macros[m.Name] = m
}

// Get retrieves a macro by name.
// Returns nil if not found.
func (r *Registry) Get(name string) *Macro {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.macros[name]
}

// List returns all registered macro names, sorted alphabetically.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.macros))
	for name := range r.macros {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered macros.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.macros)
}
