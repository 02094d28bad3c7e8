// ============================================================================
// SpanStream Data Service Contract
// ============================================================================
//
// Package: pkg/service
// File: service.go
// Purpose: Defines the abstraction external collaborators implement to plug
//          a data source into the framework.
//
// Motivation:
//   The dispatcher never talks to a concrete store directly. It hands a
//   (possibly partitioned) params value to a DataService and consumes the
//   batches it pushes. This keeps fan-out, resilience and reassembly logic
//   independent of where the data actually lives.
//
// ============================================================================

package service

import (
	"context"

	"github.com/spanstream/spanstream/pkg/fault"
	"github.com/spanstream/spanstream/pkg/timeseries"
)

// Batch is a columnar slice of time-series data. Timestamps are unix
// milliseconds in ascending order; every series holds exactly
// len(Timestamps) values. Batches are JSON-serializable so they can cross
// the cluster transport unchanged.
type Batch struct {
	Timestamps []int64              `json:"timestamps"`
	Series     map[string][]float64 `json:"series"`
}

// NumRows returns the number of rows in the batch.
func (b Batch) NumRows() int {
	return len(b.Timestamps)
}

// Validate checks that every series matches the timestamp column length.
func (b Batch) Validate() error {
	for name, vals := range b.Series {
		if len(vals) != len(b.Timestamps) {
			return fault.Validation(
				"series "+name+" length does not match timestamp column", nil)
		}
	}
	return nil
}

// DataService is implemented by data-source adapters.
//
// FetchBatches streams the rows covered by params, calling emit once per
// batch in time order. Implementations must stop and return promptly when
// ctx is cancelled or emit returns an error. Failures should be reported as
// pkg/fault errors so that retry classification works.
type DataService interface {
	FetchBatches(ctx context.Context, params timeseries.Params, emit func(Batch) error) error
}
