package server

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// MethodFunc handles one method call. The returned value becomes the reply's result.
type MethodFunc func(ctx context.Context, c *client, args json.RawMessage) (any, error)

// Registry maps method names to handlers.
type Registry struct {
	mu      sync.RWMutex
	methods map[string]MethodFunc
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{methods: make(map[string]MethodFunc)}
}

// Handle registers fn under name. Registering a name twice is an error.
func (r *Registry) Handle(name string, fn MethodFunc) error {
	if fn == nil {
		return fmt.Errorf("handler cannot be nil")
	}
	if name == "" {
		return fmt.Errorf("method name cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.methods[name]; exists {
		return fmt.Errorf("handler for method '%s' already registered", name)
	}
	r.methods[name] = fn
	return nil
}

// Get returns the handler for name.
func (r *Registry) Get(name string) (MethodFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	fn, ok := r.methods[name]
	return fn, ok
}

// Methods returns the registered names, sorted.
func (r *Registry) Methods() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.methods))
	for name := range r.methods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
