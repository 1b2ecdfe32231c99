package agentbackend

import (
	"fmt"
	"sort"
	"sync"
)

// Registry maps agent types to backends. A fallback backend, when set,
// serves every agent type without an explicit registration.
type Registry struct {
	mu       sync.RWMutex
	backends map[string]Backend
	fallback Backend
}

// NewRegistry creates an empty registry with an optional fallback.
func NewRegistry(fallback Backend) *Registry {
	return &Registry{backends: make(map[string]Backend), fallback: fallback}
}

// Register binds a backend to an agent type. Registering the same agent
// type twice panics.
func (r *Registry) Register(agentType string, b Backend) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.backends[agentType]; exists {
		panic(fmt.Sprintf("agentbackend: duplicate registration for %q", agentType))
	}
	r.backends[agentType] = b
}

// Lookup returns the backend for agentType.
func (r *Registry) Lookup(agentType string) (Backend, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if b, ok := r.backends[agentType]; ok {
		return b, nil
	}
	if r.fallback != nil {
		return r.fallback, nil
	}
	return nil, fmt.Errorf("agentbackend: no backend for agent type %q", agentType)
}

// Available returns the explicitly registered agent types, sorted.
func (r *Registry) Available() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.backends))
	for name := range r.backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
