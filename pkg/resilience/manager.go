// ============================================================================
// Spanstream Resilience Manager
// Purpose: One circuit breaker per logical endpoint, shared across all
//          concurrent executors hitting that endpoint
// ============================================================================

package resilience

import (
	"context"
	"sync"
)

// Manager owns the per-endpoint breakers and the process defaults. Defaults
// are supplied once at construction and passed along explicitly; there is
// no ambient global configuration.
type Manager struct {
	retry      RetryConfig
	breakerCfg BreakerConfig
	observer   Observer

	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
}

// NewManager builds a manager with the given defaults. observer may be nil.
func NewManager(retry RetryConfig, breakerCfg BreakerConfig, observer Observer) *Manager {
	if observer == nil {
		observer = NopObserver{}
	}
	return &Manager{
		retry:      retry,
		breakerCfg: breakerCfg,
		observer:   observer,
		breakers:   make(map[string]*CircuitBreaker),
	}
}

// Breaker returns the breaker guarding endpoint, creating it on first use.
// All callers against the same endpoint share one instance.
func (m *Manager) Breaker(endpoint string) *CircuitBreaker {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.breakers[endpoint]
	if !ok {
		b = NewCircuitBreaker(endpoint, m.breakerCfg, m.observer)
		m.breakers[endpoint] = b
	}
	return b
}

// Executor returns an executor bound to endpoint's shared breaker and the
// manager's retry defaults.
func (m *Manager) Executor(endpoint string) *Executor {
	return NewExecutor(endpoint, m.retry, m.Breaker(endpoint), m.observer)
}

// Execute is a convenience for one-off calls.
func (m *Manager) Execute(ctx context.Context, endpoint string, op Operation) error {
	return m.Executor(endpoint).Execute(ctx, op)
}

// RetryConfig returns the manager's retry defaults.
func (m *Manager) RetryConfig() RetryConfig {
	return m.retry
}
