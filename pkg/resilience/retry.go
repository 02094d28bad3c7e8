// ============================================================================
// Spanstream Retry Policy
// Purpose: Delay sequence computation and retry/surface decisions
// ============================================================================

package resilience

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/spanstream/spanstream/pkg/fault"
)

// Strategy selects how the delay between attempts grows.
type Strategy int

const (
	// StrategyFixed waits BaseDelay before every attempt.
	StrategyFixed Strategy = iota

	// StrategyExponentialBackoff doubles the delay each attempt, capped
	// at MaxDelay.
	StrategyExponentialBackoff

	// StrategyExponentialBackoffJitter is exponential backoff scaled by
	// a uniform random factor in [0.5, 1.0] to desynchronize concurrent
	// retries.
	StrategyExponentialBackoffJitter
)

func (s Strategy) String() string {
	switch s {
	case StrategyFixed:
		return "fixed"
	case StrategyExponentialBackoff:
		return "exponential_backoff"
	case StrategyExponentialBackoffJitter:
		return "exponential_backoff_jitter"
	default:
		return "unknown"
	}
}

// ParseStrategy maps a config-file name to a Strategy.
func ParseStrategy(name string) (Strategy, error) {
	switch name {
	case "fixed":
		return StrategyFixed, nil
	case "exponential_backoff":
		return StrategyExponentialBackoff, nil
	case "exponential_backoff_jitter":
		return StrategyExponentialBackoffJitter, nil
	default:
		return 0, fault.Validation(fmt.Sprintf("unknown retry strategy %q", name), nil)
	}
}

// RetryConfig controls the retry loop of an Executor.
type RetryConfig struct {
	MaxAttempts int
	Strategy    Strategy
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryConfig returns the production defaults: 3 attempts,
// exponential backoff from 1s capped at 16s.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		Strategy:    StrategyExponentialBackoff,
		BaseDelay:   time.Second,
		MaxDelay:    16 * time.Second,
	}
}

// Validate rejects configurations the retry loop cannot honor.
func (c RetryConfig) Validate() error {
	if c.MaxAttempts < 1 {
		return fault.Validation(fmt.Sprintf("retry max attempts must be >= 1, got %d", c.MaxAttempts), nil)
	}
	if c.BaseDelay <= 0 {
		return fault.Validation(fmt.Sprintf("retry base delay must be positive, got %s", c.BaseDelay), nil)
	}
	if c.MaxDelay < c.BaseDelay {
		return fault.Validation(fmt.Sprintf("retry max delay %s must be >= base delay %s", c.MaxDelay, c.BaseDelay), nil)
	}
	return nil
}

// NextDelay computes the delay before the retry following attempt
// (1-based). The result never exceeds MaxDelay.
func (c RetryConfig) NextDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	delay := c.BaseDelay
	switch c.Strategy {
	case StrategyFixed:
		// delay stays at BaseDelay

	case StrategyExponentialBackoff, StrategyExponentialBackoffJitter:
		for i := 1; i < attempt && delay < c.MaxDelay; i++ {
			delay *= 2
		}
	}

	if delay > c.MaxDelay {
		delay = c.MaxDelay
	}

	if c.Strategy == StrategyExponentialBackoffJitter {
		factor := 0.5 + 0.5*rand.Float64()
		delay = time.Duration(float64(delay) * factor)
	}
	return delay
}

// ShouldRetry decides whether the error from the given attempt (1-based)
// warrants another try. Terminal fault kinds (authentication, validation)
// and exhausted budgets surface immediately.
func (c RetryConfig) ShouldRetry(err error, attempt int) bool {
	if attempt >= c.MaxAttempts {
		return false
	}
	return fault.IsTransient(err)
}
