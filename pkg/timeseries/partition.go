// ============================================================================
// Spanstream Partitioner
// Purpose: Split a time-range query into ordered, independently executable
//          sub-queries by window size or estimated data volume
// ============================================================================
//
// Invariants (relied on by the dispatcher):
//   1. Partitions are ordered by start time ascending.
//   2. Ranges are contiguous and non-overlapping.
//   3. The union of all ranges reconstructs the original range exactly.

package timeseries

import (
	"fmt"
	"time"

	"github.com/spanstream/spanstream/pkg/fault"
)

// SplitByWindow walks the request's range in fixed-size steps. The last
// partition may be shorter than window.
func SplitByWindow(p Params, window time.Duration) ([]Partition, error) {
	if window <= 0 {
		return nil, fault.Validation(fmt.Sprintf("window size must be positive, got %s", window), nil)
	}

	full := p.TimeRange()
	var parts []Partition
	cursor := full.Start
	for cursor.Before(full.End) {
		end := cursor.Add(window)
		if end.After(full.End) {
			end = full.End
		}
		parts = append(parts, Partition{
			Index:  len(parts),
			Params: p.WithTimeRange(TimeRange{Start: cursor, End: end}),
		})
		cursor = end
	}
	return parts, nil
}

// SplitByCount divides the range into n equal-duration partitions (the last
// absorbs any rounding remainder).
func SplitByCount(p Params, n int) ([]Partition, error) {
	windows, err := p.TimeRange().SplitWindows(n)
	if err != nil {
		return nil, err
	}

	parts := make([]Partition, len(windows))
	for i, w := range windows {
		parts[i] = Partition{Index: i, Params: p.WithTimeRange(w)}
	}
	return parts, nil
}

// SplitByEstimatedVolume sizes partitions from the request's data-point
// estimate: count = ceil(estimate / targetPoints), clipped to [1, maxWorkers].
// An unknown estimate ((<= 0) defaults to a single partition.
func SplitByEstimatedVolume(p Params, targetPoints int64, maxWorkers int) ([]Partition, error) {
	if targetPoints <= 0 {
		return nil, fault.Validation(fmt.Sprintf("target points per partition must be positive, got %d", targetPoints), nil)
	}
	if maxWorkers <= 0 {
		return nil, fault.Validation(fmt.Sprintf("max workers must be positive, got %d", maxWorkers), nil)
	}

	estimated := p.EstimateDataPoints()
	count := 1
	if estimated > 0 {
		count = int((estimated + targetPoints - 1) / targetPoints)
		if count < 1 {
			count = 1
		}
		if count > maxWorkers {
			count = maxWorkers
		}
	}
	return SplitByCount(p, count)
}
