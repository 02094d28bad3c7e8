// ============================================================================
// SpanStream Result Stream
// ============================================================================
//
// Package: pkg/dispatch
// File: stream.go
// Purpose: The consumer-facing handle for an in-flight query.
//
// ============================================================================

package dispatch

import (
	"fmt"
	"strings"
	"sync"

	"github.com/spanstream/spanstream/pkg/service"
	"github.com/spanstream/spanstream/pkg/timeseries"
)

// PartitionFailure records one partition the dispatcher gave up on after
// retries were exhausted.
type PartitionFailure struct {
	Index int
	Range timeseries.TimeRange
	Err   error
}

// AllPartitionsFailedError is returned when no partition of a query
// produced data.
type AllPartitionsFailedError struct {
	Failures []PartitionFailure
}

func (e *AllPartitionsFailedError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "all %d partitions failed:", len(e.Failures))
	for _, f := range e.Failures {
		fmt.Fprintf(&sb, " [%d %s: %v]", f.Index, f.Range, f.Err)
	}
	return sb.String()
}

// Stream delivers batches strictly in partition order as they become
// available. Err and Skipped are valid once the Batches channel has closed.
type Stream struct {
	batches chan service.Batch

	mu      sync.Mutex
	err     error
	skipped []PartitionFailure
}

func newStream(buffer int) *Stream {
	return &Stream{batches: make(chan service.Batch, buffer)}
}

// Batches returns the ordered result channel. It closes when the query
// finishes, fails, or is cancelled.
func (s *Stream) Batches() <-chan service.Batch {
	return s.batches
}

// Err reports the terminal error, if any. Call after Batches closes.
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Skipped lists the partitions dropped after exhausting retries. Call after
// Batches closes.
func (s *Stream) Skipped() []PartitionFailure {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]PartitionFailure, len(s.skipped))
	copy(out, s.skipped)
	return out
}

func (s *Stream) recordSkip(f PartitionFailure) {
	s.mu.Lock()
	s.skipped = append(s.skipped, f)
	s.mu.Unlock()
}

// finish sets the terminal error and closes the result channel.
func (s *Stream) finish(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
	close(s.batches)
}
