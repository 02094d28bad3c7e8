// ============================================================================
// Spanstream Time Range
// Purpose: Immutable half-open time interval used by every query and partition
// ============================================================================

package timeseries

import (
	"fmt"
	"time"

	"github.com/spanstream/spanstream/pkg/fault"
)

// TimeRange is a half-open interval [Start, End). Construct it through
// NewTimeRange so the Start < End invariant always holds; treat values as
// immutable after construction.
type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// NewTimeRange builds a validated range.
func NewTimeRange(start, end time.Time) (TimeRange, error) {
	if !start.Before(end) {
		return TimeRange{}, fault.Validation(
			fmt.Sprintf("time range start %s must be before end %s", start.Format(time.RFC3339), end.Format(time.RFC3339)), nil)
	}
	return TimeRange{Start: start, End: end}, nil
}

// Duration returns End - Start.
func (r TimeRange) Duration() time.Duration {
	return r.End.Sub(r.Start)
}

// Contains reports whether t falls inside the half-open interval.
func (r TimeRange) Contains(t time.Time) bool {
	return !t.Before(r.Start) && t.Before(r.End)
}

// SplitWindows divides the range into n contiguous, non-overlapping windows
// ordered by start time. The first n-1 windows have equal duration; the last
// one ends exactly at r.End so the union reconstructs the range bit-for-bit
// even when the duration does not divide evenly.
func (r TimeRange) SplitWindows(n int) ([]TimeRange, error) {
	if n <= 0 {
		return nil, fault.Validation(fmt.Sprintf("window count must be positive, got %d", n), nil)
	}
	if n == 1 {
		return []TimeRange{r}, nil
	}

	step := r.Duration() / time.Duration(n)
	if step <= 0 {
		// Range shorter than n nanoseconds; collapsing to a single
		// window keeps the reconstruction invariant.
		return []TimeRange{r}, nil
	}

	windows := make([]TimeRange, 0, n)
	cursor := r.Start
	for i := 0; i < n; i++ {
		end := cursor.Add(step)
		if i == n-1 {
			end = r.End
		}
		windows = append(windows, TimeRange{Start: cursor, End: end})
		cursor = end
	}
	return windows, nil
}

func (r TimeRange) String() string {
	return fmt.Sprintf("[%s, %s)", r.Start.Format(time.RFC3339), r.End.Format(time.RFC3339))
}
