// ============================================================================
// Spanstream Resilient Executor
// Purpose: Compose breaker-guard(retry-loop(operation)) around one remote
//          call
// ============================================================================

package resilience

import (
	"context"
	"log/slog"
	"time"

	"github.com/spanstream/spanstream/pkg/fault"
)

// Observer receives advisory resilience events (attempt numbers, error
// kinds, delays, breaker transitions). Implementations must be cheap and
// must not block; events carry no functional weight.
type Observer interface {
	// RetryScheduled fires before the executor sleeps between attempts.
	RetryScheduled(endpoint string, attempt int, kind fault.Kind, delay time.Duration)

	// BreakerStateChanged fires on every breaker transition.
	BreakerStateChanged(endpoint string, from, to State)

	// BreakerRejected fires when an open circuit fails a call fast.
	BreakerRejected(endpoint string)
}

// NopObserver discards all events.
type NopObserver struct{}

func (NopObserver) RetryScheduled(string, int, fault.Kind, time.Duration) {}
func (NopObserver) BreakerStateChanged(string, State, State)              {}
func (NopObserver) BreakerRejected(string)                                {}

// Operation is one remote call. It must respect ctx cancellation.
type Operation func(ctx context.Context) error

// Executor wraps operations against one logical endpoint with a retry
// policy and an optional shared circuit breaker. Executors are stateless
// apart from the breaker and safe for concurrent use.
type Executor struct {
	endpoint string
	retry    RetryConfig
	breaker  *CircuitBreaker
	observer Observer

	// sleep is injectable for tests; defaults to a context-aware wait.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewExecutor builds an executor. breaker may be nil to disable circuit
// protection; observer may be nil.
func NewExecutor(endpoint string, retry RetryConfig, breaker *CircuitBreaker, observer Observer) *Executor {
	if observer == nil {
		observer = NopObserver{}
	}
	return &Executor{
		endpoint: endpoint,
		retry:    retry,
		breaker:  breaker,
		observer: observer,
		sleep:    sleepContext,
	}
}

// Execute runs op under the retry policy and breaker guard.
//
// For each attempt: an open circuit fails fast with *fault.CircuitOpenError
// (no retry budget consumed, never retried); otherwise op runs and its
// outcome is reported to the breaker. Terminal errors surface immediately.
// When every attempt fails, the caller receives *fault.RetryExhaustedError
// wrapping the last error, or the bare error when MaxAttempts is 1.
func (e *Executor) Execute(ctx context.Context, op Operation) error {
	if err := e.retry.Validate(); err != nil {
		return err
	}

	var lastErr error
	for attempt := 1; attempt <= e.retry.MaxAttempts; attempt++ {
		if e.breaker != nil {
			if err := e.breaker.Allow(); err != nil {
				e.observer.BreakerRejected(e.endpoint)
				return err
			}
		}

		err := op(ctx)
		if err == nil {
			if e.breaker != nil {
				e.breaker.RecordSuccess()
			}
			return nil
		}

		lastErr = err
		if e.breaker != nil {
			e.breaker.RecordFailure(err)
		}

		if fault.IsCircuitOpen(err) {
			// Retrying against an open circuit defeats its purpose.
			return err
		}

		if !e.retry.ShouldRetry(err, attempt) {
			if !fault.IsTransient(err) || e.retry.MaxAttempts == 1 {
				return err
			}
			break
		}

		delay := e.retry.NextDelay(attempt)
		e.observer.RetryScheduled(e.endpoint, attempt, fault.KindOf(err), delay)
		slog.Warn("operation failed, retrying",
			"endpoint", e.endpoint,
			"attempt", attempt,
			"max_attempts", e.retry.MaxAttempts,
			"delay", delay,
			"error", err)

		if serr := e.sleep(ctx, delay); serr != nil {
			return serr
		}
	}

	return &fault.RetryExhaustedError{Attempts: e.retry.MaxAttempts, LastErr: lastErr}
}

// sleepContext waits for d or until ctx is cancelled.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
