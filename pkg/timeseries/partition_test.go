package timeseries

// ============================================================================
// Partitioner Test File
// Purpose: Verify ordering/reconstruction invariants, the partition-count
//          formula and the planner policies
// ============================================================================

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// barParams is a minimal Params implementation: fixed-interval bars whose
// estimate is duration / interval.
type barParams struct {
	Symbol   string        `json:"symbol"`
	Interval time.Duration `json:"interval"`
	Range    TimeRange     `json:"range"`
}

func (p barParams) TimeRange() TimeRange { return p.Range }

func (p barParams) EstimateDataPoints() int64 {
	if p.Interval <= 0 {
		return 0
	}
	return int64(p.Range.Duration() / p.Interval)
}

func (p barParams) WithTimeRange(r TimeRange) Params {
	clone := p
	clone.Range = r
	return clone
}

func newBarParams(t *testing.T, start time.Time, d time.Duration, interval time.Duration) barParams {
	t.Helper()
	r, err := NewTimeRange(start, start.Add(d))
	require.NoError(t, err)
	return barParams{Symbol: "TEST", Interval: interval, Range: r}
}

// assertPartitionInvariants checks ordering, contiguity and reconstruction.
func assertPartitionInvariants(t *testing.T, full TimeRange, parts []Partition) {
	t.Helper()
	require.NotEmpty(t, parts)
	assert.Equal(t, full.Start, parts[0].Range().Start)
	assert.Equal(t, full.End, parts[len(parts)-1].Range().End)
	for i, p := range parts {
		assert.Equal(t, i, p.Index)
		if i > 0 {
			assert.Equal(t, parts[i-1].Range().End, p.Range().Start)
		}
	}
}

// ============================================================================
// SplitByWindow
// ============================================================================

// TestSplitByWindow tests fixed-step walking with a short tail
func TestSplitByWindow(t *testing.T) {
	base := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	p := newBarParams(t, base, 3*time.Hour+20*time.Minute, time.Minute)

	parts, err := SplitByWindow(p, time.Hour)
	require.NoError(t, err)
	require.Len(t, parts, 4)

	assertPartitionInvariants(t, p.Range, parts)
	for _, part := range parts[:3] {
		assert.Equal(t, time.Hour, part.Range().Duration())
	}
	assert.Equal(t, 20*time.Minute, parts[3].Range().Duration())
}

// TestSplitByWindowExact tests a range that divides evenly
func TestSplitByWindowExact(t *testing.T) {
	base := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	p := newBarParams(t, base, 3*time.Hour, time.Minute)

	parts, err := SplitByWindow(p, time.Hour)
	require.NoError(t, err)
	require.Len(t, parts, 3)
	for _, part := range parts {
		assert.Equal(t, time.Hour, part.Range().Duration())
	}
}

// TestSplitByWindowInvalid tests rejection of non-positive windows
func TestSplitByWindowInvalid(t *testing.T) {
	base := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	p := newBarParams(t, base, time.Hour, time.Minute)

	_, err := SplitByWindow(p, 0)
	assert.Error(t, err)

	_, err = SplitByWindow(p, -time.Minute)
	assert.Error(t, err)
}

// ============================================================================
// SplitByEstimatedVolume
// ============================================================================

// TestSplitByEstimatedVolume tests count = clamp(ceil(est/target), 1, max)
func TestSplitByEstimatedVolume(t *testing.T) {
	base := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		duration   time.Duration
		interval   time.Duration
		target     int64
		maxWorkers int
		expected   int
	}{
		// 120 estimated points, target 60 -> 2 partitions
		{"even split", 2 * time.Hour, time.Minute, 60, 8, 2},
		// 121 points, target 60 -> ceil -> 3
		{"ceiling", 2*time.Hour + time.Minute, time.Minute, 60, 8, 3},
		// 1440 points, target 60 -> 24, capped at 8
		{"capped by workers", 24 * time.Hour, time.Minute, 60, 8, 8},
		// estimate smaller than target -> 1
		{"small estimate", 30 * time.Minute, time.Minute, 60, 8, 1},
		// unknown estimate (interval 0) -> 1
		{"unknown estimate", 24 * time.Hour, 0, 60, 8, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newBarParams(t, base, tt.duration, tt.interval)
			parts, err := SplitByEstimatedVolume(p, tt.target, tt.maxWorkers)
			require.NoError(t, err)
			assert.Len(t, parts, tt.expected)
			assertPartitionInvariants(t, p.Range, parts)
		})
	}
}

// TestSplitByEstimatedVolumeInvalid tests argument validation
func TestSplitByEstimatedVolumeInvalid(t *testing.T) {
	base := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	p := newBarParams(t, base, time.Hour, time.Minute)

	_, err := SplitByEstimatedVolume(p, 0, 8)
	assert.Error(t, err)

	_, err = SplitByEstimatedVolume(p, 100, 0)
	assert.Error(t, err)
}

// ============================================================================
// Planner
// ============================================================================

// TestPlanRealTimeSmallRange checks that a 30-minute real-time
// query stays whole because it is below the 1-hour threshold.
func TestPlanRealTimeSmallRange(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	p := newBarParams(t, start, 30*time.Minute, time.Minute)

	parts, err := Plan(p, RealTimeHint(), DefaultPlannerConfig())
	require.NoError(t, err)
	require.Len(t, parts, 1)
	assert.Equal(t, p.Range, parts[0].Range())
}

// TestPlanRealTimeLongRange tests 15-minute windowing above the threshold
func TestPlanRealTimeLongRange(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	p := newBarParams(t, start, 2*time.Hour, time.Minute)

	parts, err := Plan(p, RealTimeHint(), DefaultPlannerConfig())
	require.NoError(t, err)
	assert.Len(t, parts, 8) // 2h / 15min
	assertPartitionInvariants(t, p.Range, parts)
}

// TestPlanAnalyticsFourYears checks that 4 years of 1-minute
// bars (~126M points), target 50k, 8 workers -> 8 equal partitions.
func TestPlanAnalyticsFourYears(t *testing.T) {
	start := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	r, err := NewTimeRange(start, end)
	require.NoError(t, err)
	p := barParams{Symbol: "TEST", Interval: time.Minute, Range: r}

	require.Greater(t, p.EstimateDataPoints(), int64(100_000_000))

	hint := AnalyticsHint()
	hint.MaxWorkers = 8
	hint.TargetBatchSize = 50000

	parts, err := Plan(p, hint, DefaultPlannerConfig())
	require.NoError(t, err)
	require.Len(t, parts, 8)
	assertPartitionInvariants(t, r, parts)

	// Equal duration within the rounding tolerance of the last window.
	want := r.Duration() / 8
	for _, part := range parts[:7] {
		assert.Equal(t, want, part.Range().Duration())
	}
}

// TestPlanHistoricalThreshold tests the whole-below / split-above policy
func TestPlanHistoricalThreshold(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	small := newBarParams(t, start, time.Hour, time.Minute)
	parts, err := Plan(small, HistoricalHint(), DefaultPlannerConfig())
	require.NoError(t, err)
	assert.Len(t, parts, 1)

	large := newBarParams(t, start, 48*time.Hour, time.Minute)
	parts, err = Plan(large, HistoricalHint(), DefaultPlannerConfig())
	require.NoError(t, err)
	assert.Greater(t, len(parts), 1)
}

// TestPlanDeterministic tests that identical inputs yield identical plans
func TestPlanDeterministic(t *testing.T) {
	start := time.Date(2023, 3, 1, 0, 0, 0, 0, time.UTC)
	p := newBarParams(t, start, 72*time.Hour, time.Minute)
	hint := AnalyticsHint()
	hint.MaxWorkers = 6
	hint.TargetBatchSize = 1000

	first, err := Plan(p, hint, DefaultPlannerConfig())
	require.NoError(t, err)
	second, err := Plan(p, hint, DefaultPlannerConfig())
	require.NoError(t, err)

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].Range(), second[i].Range())
	}
}

// TestPlanRejectsInvalidHint tests hint validation
func TestPlanRejectsInvalidHint(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	p := newBarParams(t, start, time.Hour, time.Minute)

	_, err := Plan(p, OptimizationHint{}, DefaultPlannerConfig())
	assert.Error(t, err)

	bad := RealTimeHint()
	bad.MaxWorkers = 0
	_, err = Plan(p, bad, DefaultPlannerConfig())
	assert.Error(t, err)

	bad = RealTimeHint()
	bad.TargetBatchSize = -1
	_, err = Plan(p, bad, DefaultPlannerConfig())
	assert.Error(t, err)
}
