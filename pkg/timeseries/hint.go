// ============================================================================
// Spanstream Query Planner
// Purpose: Map a query's usage pattern to partitioning and concurrency
//          parameters, then produce the partition plan
// ============================================================================

package timeseries

import (
	"fmt"
	"runtime"
	"time"

	"github.com/spanstream/spanstream/pkg/fault"
)

// QueryPattern classifies how a time-series query will be used. The pattern
// drives default partition sizing and worker counts.
type QueryPattern int

const (
	patternUnset QueryPattern = iota

	// PatternRealTime favors latency: latest data, small windows.
	PatternRealTime

	// PatternAnalytics favors throughput: aggressive partitioning.
	PatternAnalytics

	// PatternHistorical covers large-range scans with balanced defaults.
	PatternHistorical

	// PatternBackfill recovers missing data; behaves like historical.
	PatternBackfill
)

func (p QueryPattern) String() string {
	switch p {
	case PatternRealTime:
		return "real_time"
	case PatternAnalytics:
		return "analytics"
	case PatternHistorical:
		return "historical"
	case PatternBackfill:
		return "backfill"
	default:
		return "unset"
	}
}

// OptimizationHint bundles the tunables derived from a query pattern. Build
// one through a preset or explicit fields; treat it as immutable afterwards.
type OptimizationHint struct {
	Pattern          QueryPattern
	MaxWorkers       int
	TargetBatchSize  int64
	PreferRecentData bool
	EnableCaching    bool
}

// RealTimeHint returns the preset for latency-sensitive queries: a single
// worker and small target batches over the freshest data.
func RealTimeHint() OptimizationHint {
	return OptimizationHint{
		Pattern:          PatternRealTime,
		MaxWorkers:       1,
		TargetBatchSize:  5000,
		PreferRecentData: true,
		EnableCaching:    false,
	}
}

// AnalyticsHint returns the preset for large analysis queries: every
// available worker and large target batches.
func AnalyticsHint() OptimizationHint {
	return OptimizationHint{
		Pattern:         PatternAnalytics,
		MaxWorkers:      runtime.NumCPU(),
		TargetBatchSize: 50000,
		EnableCaching:   true,
	}
}

// HistoricalHint returns balanced defaults for large-range scans.
func HistoricalHint() OptimizationHint {
	return OptimizationHint{
		Pattern:         PatternHistorical,
		MaxWorkers:      runtime.NumCPU(),
		TargetBatchSize: 10000,
		EnableCaching:   true,
	}
}

// BackfillHint returns defaults for missing-data recovery.
func BackfillHint() OptimizationHint {
	h := HistoricalHint()
	h.Pattern = PatternBackfill
	return h
}

// Validate rejects hints with an unset pattern or non-positive tunables.
func (h OptimizationHint) Validate() error {
	if h.Pattern == patternUnset {
		return fault.Validation("optimization hint requires a query pattern", nil)
	}
	if h.MaxWorkers <= 0 {
		return fault.Validation(fmt.Sprintf("optimization hint max workers must be positive, got %d", h.MaxWorkers), nil)
	}
	if h.TargetBatchSize <= 0 {
		return fault.Validation(fmt.Sprintf("optimization hint target batch size must be positive, got %d", h.TargetBatchSize), nil)
	}
	return nil
}

// PlannerConfig holds the policy thresholds. They are deployment tunables,
// not constants; internal/config surfaces them in the YAML file.
type PlannerConfig struct {
	// NoPartitionThreshold is the range duration at or below which a
	// query is never partitioned, so coordination overhead cannot
	// dominate small queries.
	NoPartitionThreshold time.Duration

	// RealTimeWindow is the fixed window size used when a real-time
	// query does exceed the threshold.
	RealTimeWindow time.Duration
}

// DefaultPlannerConfig returns the stock thresholds: 1 hour and 15 minutes.
func DefaultPlannerConfig() PlannerConfig {
	return PlannerConfig{
		NoPartitionThreshold: time.Hour,
		RealTimeWindow:       15 * time.Minute,
	}
}

// Plan produces the ordered partition list for a request. It is
// deterministic: identical inputs always yield identical boundaries.
//
// Policy per pattern:
//   - real_time: ranges at or below the threshold stay whole; longer ranges
//     split into fixed real-time windows.
//   - analytics: aggressive volume-based partitioning, one partition per
//     TargetBatchSize worth of estimated points, capped at MaxWorkers.
//   - historical/backfill: whole below the threshold, volume-based above.
func Plan(p Params, hint OptimizationHint, cfg PlannerConfig) ([]Partition, error) {
	if err := hint.Validate(); err != nil {
		return nil, err
	}
	if cfg.NoPartitionThreshold <= 0 {
		cfg.NoPartitionThreshold = DefaultPlannerConfig().NoPartitionThreshold
	}
	if cfg.RealTimeWindow <= 0 {
		cfg.RealTimeWindow = DefaultPlannerConfig().RealTimeWindow
	}

	duration := p.TimeRange().Duration()

	switch hint.Pattern {
	case PatternRealTime:
		if duration <= cfg.NoPartitionThreshold {
			return []Partition{{Index: 0, Params: p}}, nil
		}
		return SplitByWindow(p, cfg.RealTimeWindow)

	case PatternAnalytics:
		return SplitByEstimatedVolume(p, hint.TargetBatchSize, hint.MaxWorkers)

	default:
		if duration <= cfg.NoPartitionThreshold {
			return []Partition{{Index: 0, Params: p}}, nil
		}
		return SplitByEstimatedVolume(p, hint.TargetBatchSize, hint.MaxWorkers)
	}
}
