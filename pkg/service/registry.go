// ============================================================================
// SpanStream Service Registry
// ============================================================================
//
// Package: pkg/service
// File: registry.go
// Purpose: Explicit name-to-service registration shared by the dispatcher
//          and the cluster worker.
//
// Design:
//   Registration happens once at startup with explicit calls. There is no
//   package scanning and no global registry instance; callers construct a
//   Registry and pass it to the components that need it. The params factory
//   lets the cluster worker decode wire params into the right concrete type
//   without reflection over unknown packages.
//
// ============================================================================

package service

import (
	"fmt"
	"sync"

	"github.com/spanstream/spanstream/pkg/timeseries"
)

// ParamsFactory returns a fresh zero value of the concrete params type, as a
// pointer suitable for JSON decoding.
type ParamsFactory func() timeseries.Params

// Entry pairs a registered service with its params factory.
type Entry struct {
	Name      string
	Service   DataService
	NewParams ParamsFactory
}

// Registry maps request type names to data services.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]Entry)}
}

// Register binds name to svc. The name must be unique; registering it twice
// is a programming error and is rejected rather than silently overwritten.
func (r *Registry) Register(name string, svc DataService, newParams ParamsFactory) error {
	if name == "" {
		return fmt.Errorf("register: empty service name")
	}
	if svc == nil {
		return fmt.Errorf("register %q: nil service", name)
	}
	if newParams == nil {
		return fmt.Errorf("register %q: nil params factory", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[name]; exists {
		return fmt.Errorf("register %q: already registered", name)
	}
	r.entries[name] = Entry{Name: name, Service: svc, NewParams: newParams}
	return nil
}

// MustRegister is Register for startup wiring, panicking on error.
func (r *Registry) MustRegister(name string, svc DataService, newParams ParamsFactory) {
	if err := r.Register(name, svc, newParams); err != nil {
		panic(err)
	}
}

// Lookup resolves a registered service by name.
func (r *Registry) Lookup(name string) (Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	if !ok {
		return Entry{}, fmt.Errorf("lookup %q: service not registered", name)
	}
	return e, nil
}

// Names returns the registered service names, for diagnostics.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	return names
}
