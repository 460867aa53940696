package bus

import (
	"fmt"
	"sync"
)

// Registry holds every registered module by name, in registration order,
// grounded on the teacher's system/core/registry.go module map.
type Registry struct {
	mu      sync.RWMutex
	modules map[string]ServiceModule
	order   []string
}

// NewRegistry builds an empty Registry.
func NewRegistry() *Registry {
	return &Registry{modules: make(map[string]ServiceModule)}
}

// Register adds a module. It is an error to register the same name twice.
func (r *Registry) Register(m ServiceModule) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.modules[m.Name()]; exists {
		return fmt.Errorf("module %q already registered", m.Name())
	}
	r.modules[m.Name()] = m
	r.order = append(r.order, m.Name())
	return nil
}

// Get looks up a module by name.
func (r *Registry) Get(name string) (ServiceModule, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.modules[name]
	return m, ok
}

// All returns every registered module in registration order.
func (r *Registry) All() []ServiceModule {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ServiceModule, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.modules[name])
	}
	return out
}

// Names returns every registered module's name in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}
