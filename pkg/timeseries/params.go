// ============================================================================
// Spanstream Query Parameters
// Purpose: Contract between callers, the partitioner and execution backends
// ============================================================================
//
// Package: pkg/timeseries
// File: params.go
//
// A Params value describes one time-series data request. The partitioner
// never inspects anything beyond the three methods below: the time range to
// narrow, an estimated point count to size partitions, and a clone operation
// that produces the narrowed copy handed to a worker. Implementations must
// be JSON-marshalable so cluster workers can reconstruct them on the far
// side of the wire.

package timeseries

// Params is the request-parameter contract for time-series queries.
type Params interface {
	// TimeRange returns the requested interval.
	TimeRange() TimeRange

	// EstimateDataPoints returns the expected number of data points in
	// the range, or 0 when the implementation cannot estimate. The
	// partitioner treats 0 (and negative values) as "unknown" and falls
	// back to a single partition.
	EstimateDataPoints() int64

	// WithTimeRange returns a copy of the request narrowed to r. The
	// receiver is never mutated.
	WithTimeRange(r TimeRange) Params
}

// Partition is one independently executable sub-query: a clone of the
// original request narrowed to a slice of its time range. Partitions are
// created by the split functions, consumed once by a worker, and discarded
// after their batches are yielded.
type Partition struct {
	// Index is the position in start-time order. The dispatcher uses it
	// to reassemble results chronologically.
	Index int

	Params Params
}

// Range is a shorthand for the partition's narrowed time range.
func (p Partition) Range() TimeRange {
	return p.Params.TimeRange()
}
