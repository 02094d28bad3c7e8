// ============================================================================
// SpanStream Distributed Dispatcher
// ============================================================================
//
// Package: pkg/dispatch
// File: dispatcher.go
// Purpose: Plans a query into partitions, executes them on the selected
//          backend under the resilience layer, and reassembles the results
//          strictly in partition order.
//
// Backend selection happens once at construction and is cached:
//   enable_distributed=false      -> Sequential
//   cluster configured + reachable -> ClusterPool
//   otherwise                      -> LocalPool
//
// ============================================================================

package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/google/uuid"

	"github.com/spanstream/spanstream/pkg/resilience"
	"github.com/spanstream/spanstream/pkg/service"
	"github.com/spanstream/spanstream/pkg/timeseries"
)

// Metrics receives dispatcher lifecycle events. Implementations must be
// safe for concurrent use. Failures to record must never affect dispatch.
type Metrics interface {
	PartitionsDispatched(service string, n int)
	PartitionCompleted(service string, elapsed time.Duration)
	PartitionSkipped(service string)
	InFlightAdd(delta float64)
}

// NopMetrics discards all events.
type NopMetrics struct{}

func (NopMetrics) PartitionsDispatched(string, int)         {}
func (NopMetrics) PartitionCompleted(string, time.Duration) {}
func (NopMetrics) PartitionSkipped(string)                  {}
func (NopMetrics) InFlightAdd(float64)                      {}

// Config holds the dispatcher tunables.
type Config struct {
	// EnableDistributed selects between Sequential and a pooled backend.
	EnableDistributed bool

	// MaxWorkers caps backend parallelism. Zero means auto: NumCPU for the
	// local pool, the reachable node count for the cluster pool.
	MaxWorkers int

	// Planner carries the partitioning thresholds.
	Planner timeseries.PlannerConfig
}

// DefaultConfig returns the distributed-by-default tunables.
func DefaultConfig() Config {
	return Config{
		EnableDistributed: true,
		MaxWorkers:        0,
		Planner:           timeseries.DefaultPlannerConfig(),
	}
}

// Request names a registered service and the query to run against it.
type Request struct {
	Service string
	Params  timeseries.Params
	Hint    timeseries.OptimizationHint
}

// Dispatcher coordinates planned, resilient, ordered query execution.
type Dispatcher struct {
	cfg        Config
	registry   *service.Registry
	resilience *resilience.Manager
	backend    Backend
	metrics    Metrics
}

// NewDispatcher probes the environment once, picks the execution backend,
// and returns a ready dispatcher. ctx bounds the cluster reachability probe.
func NewDispatcher(ctx context.Context, cfg Config, reg *service.Registry, res *resilience.Manager, cluster ClusterRuntime, metrics Metrics) (*Dispatcher, error) {
	if reg == nil {
		return nil, fmt.Errorf("dispatcher requires a service registry")
	}
	if res == nil {
		return nil, fmt.Errorf("dispatcher requires a resilience manager")
	}
	if metrics == nil {
		metrics = NopMetrics{}
	}

	backend := selectBackend(ctx, cfg, reg, cluster)
	slog.Info("execution backend selected",
		"backend", backend.Name(),
		"workers", backend.Workers())

	return &Dispatcher{
		cfg:        cfg,
		registry:   reg,
		resilience: res,
		backend:    backend,
		metrics:    metrics,
	}, nil
}

// selectBackend evaluates the strategy exactly once.
func selectBackend(ctx context.Context, cfg Config, reg *service.Registry, cluster ClusterRuntime) Backend {
	if !cfg.EnableDistributed {
		return NewSequential(reg)
	}

	if cluster != nil && cluster.IsAvailable(ctx) {
		n := cfg.MaxWorkers
		if n <= 0 {
			n = len(cluster.Nodes())
		}
		return NewClusterPool(cluster, n)
	}

	n := cfg.MaxWorkers
	if n <= 0 {
		n = runtime.NumCPU()
	}
	return NewLocalPool(reg, n)
}

// Backend exposes the selected backend for status reporting.
func (d *Dispatcher) Backend() Backend {
	return d.backend
}

// Close shuts down the execution backend.
func (d *Dispatcher) Close() error {
	return d.backend.Close()
}

// partitionResult carries one completed partition back to the collector.
type partitionResult struct {
	part    timeseries.Partition
	batches []service.Batch
	err     error
}

// Stream plans req into partitions and starts executing them. Batches arrive
// on the returned stream strictly in partition order. Partitions that fail
// after exhausting retries are skipped and reported via Stream.Skipped; if
// every partition fails the stream terminates with *AllPartitionsFailedError.
func (d *Dispatcher) Stream(ctx context.Context, req Request) (*Stream, error) {
	if err := req.Hint.Validate(); err != nil {
		return nil, err
	}
	if _, err := d.registry.Lookup(req.Service); err != nil {
		return nil, err
	}

	parts, err := timeseries.Plan(req.Params, req.Hint, d.cfg.Planner)
	if err != nil {
		return nil, err
	}

	requestID := uuid.NewString()
	d.metrics.PartitionsDispatched(req.Service, len(parts))
	slog.Info("query planned",
		"request_id", requestID,
		"service", req.Service,
		"pattern", req.Hint.Pattern.String(),
		"partitions", len(parts),
		"backend", d.backend.Name())

	s := newStream(len(parts))

	if len(parts) == 1 {
		go d.runSingle(ctx, requestID, req.Service, parts[0], s)
		return s, nil
	}

	go d.runFanOut(ctx, requestID, req.Service, parts, s)
	return s, nil
}

// runSingle executes a one-partition query without the fan-out machinery.
func (d *Dispatcher) runSingle(ctx context.Context, requestID, svc string, part timeseries.Partition, s *Stream) {
	batches, err := d.fetchPartition(ctx, requestID, svc, part)
	if err != nil {
		s.recordSkip(PartitionFailure{Index: part.Index, Range: part.Range(), Err: err})
		d.metrics.PartitionSkipped(svc)
		s.finish(&AllPartitionsFailedError{Failures: s.Skipped()})
		return
	}
	for _, b := range batches {
		if err := emitBatch(ctx, s, b); err != nil {
			s.finish(err)
			return
		}
	}
	s.finish(nil)
}

// runFanOut submits every partition to the backend and reassembles the
// completions in partition order, buffering whatever arrives early.
func (d *Dispatcher) runFanOut(ctx context.Context, requestID, svc string, parts []timeseries.Partition, s *Stream) {
	results := make(chan partitionResult, len(parts))

	for _, part := range parts {
		part := part
		go func() {
			if err := ctx.Err(); err != nil {
				results <- partitionResult{part: part, err: err}
				return
			}
			batches, err := d.fetchPartition(ctx, requestID, svc, part)
			results <- partitionResult{part: part, batches: batches, err: err}
		}()
	}

	pending := make(map[int]partitionResult, len(parts))
	next := 0
	received := 0
	completed := 0

	for received < len(parts) {
		select {
		case <-ctx.Done():
			s.finish(ctx.Err())
			return
		case r := <-results:
			received++
			pending[r.part.Index] = r
		}

		// Drain everything that is now in order.
		for {
			r, ok := pending[next]
			if !ok {
				break
			}
			delete(pending, next)
			next++

			if r.err != nil {
				slog.Warn("partition skipped",
					"request_id", requestID,
					"service", svc,
					"partition", r.part.Index,
					"range", r.part.Range().String(),
					"error", r.err)
				s.recordSkip(PartitionFailure{Index: r.part.Index, Range: r.part.Range(), Err: r.err})
				d.metrics.PartitionSkipped(svc)
				continue
			}

			completed++
			for _, b := range r.batches {
				if err := emitBatch(ctx, s, b); err != nil {
					s.finish(err)
					return
				}
			}
		}
	}

	if completed == 0 {
		s.finish(&AllPartitionsFailedError{Failures: s.Skipped()})
		return
	}
	s.finish(nil)
}

// fetchPartition runs one partition on the backend under the service's
// retry policy and circuit breaker.
func (d *Dispatcher) fetchPartition(ctx context.Context, requestID, svc string, part timeseries.Partition) ([]service.Batch, error) {
	d.metrics.InFlightAdd(1)
	defer d.metrics.InFlightAdd(-1)

	preq := PartitionRequest{
		RequestID: requestID,
		Service:   svc,
		Index:     part.Index,
		Params:    part.Params,
	}

	start := time.Now()
	var batches []service.Batch
	err := d.resilience.Execute(ctx, svc, func(ctx context.Context) error {
		b, ferr := d.backend.Fetch(ctx, preq)
		if ferr != nil {
			return ferr
		}
		batches = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	d.metrics.PartitionCompleted(svc, time.Since(start))
	return batches, nil
}

// emitBatch delivers b unless the consumer's context ends first.
func emitBatch(ctx context.Context, s *Stream, b service.Batch) error {
	select {
	case s.batches <- b:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
