// ============================================================================
// SpanStream Execution Backends
// ============================================================================
//
// Package: pkg/dispatch
// File: backend.go
// Purpose: Defines the abstraction for executing partition fetches and the
//          inline Sequential variant.
//
// Motivation:
//   To support single-process and distributed modes with one dispatcher, we
//   decouple "run this partition" from where it runs.
//
//   - Sequential: inline, one partition at a time (debugging, tiny queries).
//   - LocalPool:  bounded goroutine pool in this process (pool.go).
//   - ClusterPool: fan-out to remote worker nodes over gRPC (clusterpool.go).
//
// ============================================================================

package dispatch

import (
	"context"
	"fmt"
	"sync"

	"github.com/spanstream/spanstream/pkg/service"
	"github.com/spanstream/spanstream/pkg/timeseries"
)

// PartitionRequest identifies one partition fetch. Service names a registry
// entry; Params already carries the partition's narrowed time range.
type PartitionRequest struct {
	RequestID string
	Service   string
	Index     int
	Params    timeseries.Params
}

// Backend executes partition fetches. Fetch is safe for concurrent use; each
// variant bounds its own effective parallelism.
type Backend interface {
	// Name identifies the backend variant for logs and status output.
	Name() string

	// Workers reports the backend's effective parallelism.
	Workers() int

	// Fetch runs one partition to completion and returns its batches in
	// time order. It respects ctx cancellation.
	Fetch(ctx context.Context, req PartitionRequest) ([]service.Batch, error)

	// Close releases backend resources. Fetch must not be called after.
	Close() error
}

// fetchLocal resolves the service in reg and collects the partition's
// batches in this process.
func fetchLocal(ctx context.Context, reg *service.Registry, req PartitionRequest) ([]service.Batch, error) {
	entry, err := reg.Lookup(req.Service)
	if err != nil {
		return nil, err
	}

	var batches []service.Batch
	err = entry.Service.FetchBatches(ctx, req.Params, func(b service.Batch) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		batches = append(batches, b)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("fetch partition %d of %s: %w", req.Index, req.Service, err)
	}
	return batches, nil
}

// Sequential runs partitions inline, one at a time. Concurrent Fetch calls
// serialize on an internal mutex so the one-at-a-time guarantee holds even
// under a fan-out dispatcher.
type Sequential struct {
	registry *service.Registry
	mu       sync.Mutex
}

// NewSequential creates the inline backend.
func NewSequential(reg *service.Registry) *Sequential {
	return &Sequential{registry: reg}
}

func (s *Sequential) Name() string { return "sequential" }

func (s *Sequential) Workers() int { return 1 }

func (s *Sequential) Fetch(ctx context.Context, req PartitionRequest) ([]service.Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return fetchLocal(ctx, s.registry, req)
}

func (s *Sequential) Close() error { return nil }
