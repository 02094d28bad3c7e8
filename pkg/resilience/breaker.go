// ============================================================================
// Spanstream Circuit Breaker
// Purpose: Per-endpoint state machine guarding remote calls from cascading
//          failure
// ============================================================================
//
// Package: pkg/resilience
// File: breaker.go
//
// State machine:
//   CLOSED    -> OPEN       after FailureThreshold consecutive counted
//                           failures
//   OPEN      -> HALF_OPEN  lazily, at call time, once RecoveryTimeout has
//                           elapsed (no background timer)
//   HALF_OPEN -> CLOSED     on probe success (failure counter resets)
//   HALF_OPEN -> OPEN       on probe failure (timeout restarts)
//
// While OPEN and inside the recovery window every call fails fast with
// *fault.CircuitOpenError and consumes no retry budget. HALF_OPEN admits a
// single in-flight probe; concurrent callers are rejected until the probe
// reports. All transitions happen under one mutex, so a breaker instance is
// safe to share across goroutines hitting the same endpoint.

package resilience

import (
	"sync"
	"time"

	"github.com/spanstream/spanstream/pkg/fault"
)

// State is the circuit breaker condition.
type State int

const (
	// StateClosed passes calls through while counting failures.
	StateClosed State = iota

	// StateOpen rejects every call until the recovery timeout elapses.
	StateOpen

	// StateHalfOpen admits a single probe call.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// BreakerConfig controls when a breaker trips and recovers.
type BreakerConfig struct {
	FailureThreshold int
	RecoveryTimeout  time.Duration
}

// DefaultBreakerConfig returns the production defaults: trip after 5
// consecutive failures, probe again after 30 seconds.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		RecoveryTimeout:  30 * time.Second,
	}
}

// CircuitBreaker guards one logical endpoint. State is owned exclusively by
// the instance and mutated only through Allow / RecordSuccess /
// RecordFailure; callers never touch it directly.
type CircuitBreaker struct {
	endpoint string
	cfg      BreakerConfig
	observer Observer

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	probing  bool

	// now is injectable for tests.
	now func() time.Time
}

// NewCircuitBreaker builds a CLOSED breaker for the named endpoint.
func NewCircuitBreaker(endpoint string, cfg BreakerConfig, observer Observer) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultBreakerConfig().FailureThreshold
	}
	if cfg.RecoveryTimeout <= 0 {
		cfg.RecoveryTimeout = DefaultBreakerConfig().RecoveryTimeout
	}
	if observer == nil {
		observer = NopObserver{}
	}
	return &CircuitBreaker{
		endpoint: endpoint,
		cfg:      cfg,
		observer: observer,
		state:    StateClosed,
		now:      time.Now,
	}
}

// Endpoint returns the logical endpoint name the breaker guards.
func (b *CircuitBreaker) Endpoint() string {
	return b.endpoint
}

// State returns the current state (for status surfaces and metrics).
func (b *CircuitBreaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Allow decides whether a call may proceed. It returns nil when admitted or
// a *fault.CircuitOpenError when the circuit rejects the call. The
// OPEN -> HALF_OPEN transition is evaluated here, lazily.
func (b *CircuitBreaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateOpen {
		elapsed := b.now().Sub(b.openedAt)
		if elapsed < b.cfg.RecoveryTimeout {
			return &fault.CircuitOpenError{
				Endpoint:   b.endpoint,
				RetryAfter: b.cfg.RecoveryTimeout - elapsed,
			}
		}
		b.transition(StateHalfOpen)
		b.probing = false
	}

	if b.state == StateHalfOpen {
		if b.probing {
			// A probe is already in flight; reject everyone else. The
			// probe may report at any moment, so there is no meaningful
			// cooldown to advertise.
			return &fault.CircuitOpenError{
				Endpoint: b.endpoint,
			}
		}
		b.probing = true
	}

	return nil
}

// RecordSuccess reports a successful call. A HALF_OPEN probe success closes
// the circuit and resets the failure counter.
func (b *CircuitBreaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateHalfOpen:
		b.probing = false
		b.failures = 0
		b.transition(StateClosed)
	case StateClosed:
		b.failures = 0
	}
}

// RecordFailure reports a failed call. While CLOSED only transient fault
// kinds count toward the threshold; authentication or validation failures
// say nothing about endpoint health. A HALF_OPEN probe failure of any kind
// releases the probe slot and reopens the circuit.
func (b *CircuitBreaker) RecordFailure(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		if !fault.IsTransient(err) {
			return
		}
		b.failures++
		if b.failures >= b.cfg.FailureThreshold {
			b.openedAt = b.now()
			b.transition(StateOpen)
		}
	case StateHalfOpen:
		// Probe failed; back to OPEN with a fresh recovery window.
		b.probing = false
		b.openedAt = b.now()
		b.transition(StateOpen)
	}
}

// transition must be called with b.mu held.
func (b *CircuitBreaker) transition(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	b.observer.BreakerStateChanged(b.endpoint, from, to)
}
