package resilience

// ============================================================================
// Retry Policy Test File
// Purpose: Verify delay formulas, jitter bounds and retry decisions
// ============================================================================

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spanstream/spanstream/pkg/fault"
)

// TestFixedDelay tests that every attempt waits BaseDelay
func TestFixedDelay(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 5, Strategy: StrategyFixed, BaseDelay: 2 * time.Second, MaxDelay: time.Minute}

	for attempt := 1; attempt <= 5; attempt++ {
		assert.Equal(t, 2*time.Second, cfg.NextDelay(attempt))
	}
}

// TestExponentialBackoff tests base * 2^(attempt-1) capped at MaxDelay
func TestExponentialBackoff(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 10, Strategy: StrategyExponentialBackoff, BaseDelay: time.Second, MaxDelay: 16 * time.Second}

	expected := []time.Duration{
		1 * time.Second,  // attempt 1
		2 * time.Second,  // attempt 2
		4 * time.Second,  // attempt 3
		8 * time.Second,  // attempt 4
		16 * time.Second, // attempt 5
		16 * time.Second, // attempt 6 (capped)
	}
	for i, want := range expected {
		assert.Equal(t, want, cfg.NextDelay(i+1), "attempt %d", i+1)
	}
}

// TestExponentialBackoffMonotonic checks that backoff delays are
// non-decreasing in attempt and bounded by MaxDelay.
func TestExponentialBackoffMonotonic(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 64, Strategy: StrategyExponentialBackoff, BaseDelay: 50 * time.Millisecond, MaxDelay: 10 * time.Second}

	prev := time.Duration(0)
	for attempt := 1; attempt <= 64; attempt++ {
		d := cfg.NextDelay(attempt)
		assert.GreaterOrEqual(t, d, prev, "attempt %d", attempt)
		assert.LessOrEqual(t, d, cfg.MaxDelay, "attempt %d", attempt)
		prev = d
	}
}

// TestJitterBounds tests the uniform factor stays inside [0.5, 1.0]
func TestJitterBounds(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 5, Strategy: StrategyExponentialBackoffJitter, BaseDelay: time.Second, MaxDelay: 16 * time.Second}

	for i := 0; i < 200; i++ {
		d := cfg.NextDelay(3) // un-jittered value would be 4s
		assert.GreaterOrEqual(t, d, 2*time.Second)
		assert.LessOrEqual(t, d, 4*time.Second)
	}
}

// TestShouldRetry tests budget and error-kind decisions
func TestShouldRetry(t *testing.T) {
	cfg := DefaultRetryConfig() // 3 attempts

	conn := fault.Connection("refused", nil)
	assert.True(t, cfg.ShouldRetry(conn, 1))
	assert.True(t, cfg.ShouldRetry(conn, 2))
	assert.False(t, cfg.ShouldRetry(conn, 3), "budget exhausted")

	assert.False(t, cfg.ShouldRetry(fault.Authentication("denied", nil), 1))
	assert.False(t, cfg.ShouldRetry(fault.Validation("bad input", nil), 1))
	assert.False(t, cfg.ShouldRetry(errors.New("untyped"), 1))
}

// TestRetryConfigValidate tests configuration validation
func TestRetryConfigValidate(t *testing.T) {
	require.NoError(t, DefaultRetryConfig().Validate())

	bad := DefaultRetryConfig()
	bad.MaxAttempts = 0
	assert.Error(t, bad.Validate())

	bad = DefaultRetryConfig()
	bad.BaseDelay = 0
	assert.Error(t, bad.Validate())

	bad = DefaultRetryConfig()
	bad.MaxDelay = bad.BaseDelay / 2
	assert.Error(t, bad.Validate())
}

// TestParseStrategy tests config-name mapping
func TestParseStrategy(t *testing.T) {
	s, err := ParseStrategy("exponential_backoff")
	require.NoError(t, err)
	assert.Equal(t, StrategyExponentialBackoff, s)

	s, err = ParseStrategy("fixed")
	require.NoError(t, err)
	assert.Equal(t, StrategyFixed, s)

	s, err = ParseStrategy("exponential_backoff_jitter")
	require.NoError(t, err)
	assert.Equal(t, StrategyExponentialBackoffJitter, s)

	_, err = ParseStrategy("fibonacci")
	assert.Error(t, err)
}
