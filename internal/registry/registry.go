// Package registry implements the callable lookup that backs the inline
// and process executors, replacing the Python original's dynamic
// "module:function" import with the registry design spec.md §9 calls for
// in a systems language: flows reference a plain string key, and the host
// binary registers the Go function behind that key at start-up.
package registry

import (
	"context"
	"fmt"
	"sync"

	"github.com/G14MB0/conductor/internal/node"
	"github.com/G14MB0/conductor/internal/state"
)

// Callable is the signature every registered node body must implement. It
// receives the shared state handle as its shared parameter: inline
// callables get the executor's *state.State directly; process-pool
// callables get a proxy that round-trips through the IPC channel (see
// internal/workerproc/proxy.go).
type Callable func(ctx context.Context, in node.Input, shared state.Store) (any, error)

// Registry is a mutex-guarded map of callable key to Callable, grounded in
// herki-piper/internal/plugin.Registry's Register/Get/Has/List shape.
type Registry struct {
	mu        sync.RWMutex
	callables map[string]Callable
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{callables: make(map[string]Callable)}
}

// Register adds a callable under key. It is an error to register the same
// key twice.
func (r *Registry) Register(key string, fn Callable) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.callables[key]; exists {
		return fmt.Errorf("registry: callable %q already registered", key)
	}
	r.callables[key] = fn
	return nil
}

// MustRegister panics if Register fails; for use in package init() blocks
// where a duplicate key is a programming error, not a runtime condition.
func (r *Registry) MustRegister(key string, fn Callable) {
	if err := r.Register(key, fn); err != nil {
		panic(err)
	}
}

// Get returns the callable registered under key.
func (r *Registry) Get(key string) (Callable, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.callables[key]
	return fn, ok
}

// Has reports whether key is registered.
func (r *Registry) Has(key string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.callables[key]
	return ok
}

// List returns all registered keys.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.callables))
	for k := range r.callables {
		keys = append(keys, k)
	}
	return keys
}
