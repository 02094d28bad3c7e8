// ============================================================================
// SpanStream Integration Test Suite
// ============================================================================
//
// Package: test/integration
// File: pipeline_test.go
// Purpose: End-to-end query execution tests.
//
// Scenarios:
//   1. Cluster query: two worker nodes over in-memory connections serve a
//      partitioned analytics query; results must be complete and ordered.
//   2. Recovery: every partition fails its first attempt with a transient
//      fault; retries must complete the query with zero skips.
//   3. Degradation: a permanently failing service must trip the breaker
//      and surface the aggregate failure instead of hanging.
//
// ============================================================================

package integration

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/resolver"
	"google.golang.org/grpc/test/bufconn"

	"github.com/spanstream/spanstream/internal/cluster"
	"github.com/spanstream/spanstream/internal/dataservice"
	"github.com/spanstream/spanstream/pkg/dispatch"
	"github.com/spanstream/spanstream/pkg/fault"
	"github.com/spanstream/spanstream/pkg/resilience"
	"github.com/spanstream/spanstream/pkg/service"
	"github.com/spanstream/spanstream/pkg/timeseries"
)

// The worker addresses below are fake hostnames resolved by the injected
// bufconn dialers, so the default dns resolver must not run first.
func init() { resolver.SetDefaultScheme("passthrough") }

func newRegistry(t *testing.T, svc service.DataService) *service.Registry {
	t.Helper()
	reg := service.NewRegistry()
	require.NoError(t, reg.Register("bars", svc, dataservice.NewBarParams))
	return reg
}

func fastResilience(maxAttempts int, threshold int) *resilience.Manager {
	retry := resilience.RetryConfig{
		MaxAttempts: maxAttempts,
		Strategy:    resilience.StrategyFixed,
		BaseDelay:   time.Millisecond,
		MaxDelay:    time.Millisecond,
	}
	breaker := resilience.BreakerConfig{FailureThreshold: threshold, RecoveryTimeout: time.Minute}
	return resilience.NewManager(retry, breaker, nil)
}

func analyticsRequest(t *testing.T, hours int) dispatch.Request {
	t.Helper()
	start := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	r, err := timeseries.NewTimeRange(start, start.Add(time.Duration(hours)*time.Hour))
	require.NoError(t, err)

	hint := timeseries.AnalyticsHint()
	hint.MaxWorkers = 4
	hint.TargetBatchSize = 60 // one partition per hour of minute bars

	return dispatch.Request{
		Service: "bars",
		Params:  &dataservice.BarParams{Symbol: "ITG", Interval: time.Minute, Range: r},
		Hint:    hint,
	}
}

func drain(t *testing.T, s *dispatch.Stream) (rows int, stamps []int64) {
	t.Helper()
	for b := range s.Batches() {
		rows += b.NumRows()
		stamps = append(stamps, b.Timestamps...)
	}
	return rows, stamps
}

// TestEndToEndClusterQuery runs a partitioned query against two worker
// nodes and verifies complete, ordered reassembly.
func TestEndToEndClusterQuery(t *testing.T) {
	listeners := map[string]*bufconn.Listener{}
	for _, name := range []string{"worker-a:7000", "worker-b:7000"} {
		lis := bufconn.Listen(1 << 20)
		srv := cluster.NewWorkerServer(name, newRegistry(t, dataservice.NewSynthetic(64)))
		go func() { _ = srv.Serve(lis) }()
		t.Cleanup(srv.Stop)
		listeners[name] = lis
	}

	clusterCfg := cluster.DefaultConfig()
	for addr := range listeners {
		clusterCfg.Nodes = append(clusterCfg.Nodes, addr)
	}
	rt, err := cluster.NewRuntime(clusterCfg, grpc.WithContextDialer(
		func(ctx context.Context, addr string) (net.Conn, error) {
			return listeners[addr].Dial()
		}))
	require.NoError(t, err)

	d, err := dispatch.NewDispatcher(context.Background(), dispatch.DefaultConfig(),
		newRegistry(t, dataservice.NewSynthetic(64)), fastResilience(3, 5), rt, nil)
	require.NoError(t, err)
	defer d.Close()

	require.Equal(t, "cluster_pool", d.Backend().Name())
	require.Equal(t, 2, d.Backend().Workers())

	s, err := d.Stream(context.Background(), analyticsRequest(t, 4))
	require.NoError(t, err)

	rows, stamps := drain(t, s)
	require.NoError(t, s.Err())
	assert.Empty(t, s.Skipped())
	assert.Equal(t, 4*60, rows)
	for i := 1; i < len(stamps); i++ {
		require.Less(t, stamps[i-1], stamps[i], "timestamps must ascend across partitions")
	}
}

// flakyService fails the first attempt for every distinct range, then
// delegates to the real generator.
type flakyService struct {
	inner service.DataService

	mu   sync.Mutex
	seen map[int64]bool
}

func (f *flakyService) FetchBatches(ctx context.Context, params timeseries.Params, emit func(service.Batch) error) error {
	key := params.TimeRange().Start.UnixMilli()
	f.mu.Lock()
	first := !f.seen[key]
	f.seen[key] = true
	f.mu.Unlock()

	if first {
		return fault.Timeout("transient store stall", nil)
	}
	return f.inner.FetchBatches(ctx, params, emit)
}

// TestEndToEndRecovery verifies that per-partition retries absorb transient
// faults without losing data.
func TestEndToEndRecovery(t *testing.T) {
	svc := &flakyService{inner: dataservice.NewSynthetic(64), seen: map[int64]bool{}}

	cfg := dispatch.DefaultConfig()
	cfg.MaxWorkers = 4
	d, err := dispatch.NewDispatcher(context.Background(), cfg,
		newRegistry(t, svc), fastResilience(3, 100), nil, nil)
	require.NoError(t, err)
	defer d.Close()

	s, err := d.Stream(context.Background(), analyticsRequest(t, 4))
	require.NoError(t, err)

	rows, _ := drain(t, s)
	require.NoError(t, s.Err())
	assert.Empty(t, s.Skipped())
	assert.Equal(t, 4*60, rows)
}

// deadService always fails with a transient fault.
type deadService struct{}

func (deadService) FetchBatches(ctx context.Context, params timeseries.Params, emit func(service.Batch) error) error {
	return fault.Connection("store unreachable", nil)
}

// TestEndToEndDegradation verifies that a dead service yields the aggregate
// failure and leaves the breaker open for the endpoint.
func TestEndToEndDegradation(t *testing.T) {
	res := fastResilience(2, 3)

	cfg := dispatch.DefaultConfig()
	cfg.MaxWorkers = 2
	d, err := dispatch.NewDispatcher(context.Background(), cfg,
		newRegistry(t, deadService{}), res, nil, nil)
	require.NoError(t, err)
	defer d.Close()

	s, err := d.Stream(context.Background(), analyticsRequest(t, 4))
	require.NoError(t, err)

	rows, _ := drain(t, s)
	assert.Zero(t, rows)

	var all *dispatch.AllPartitionsFailedError
	require.ErrorAs(t, s.Err(), &all)
	assert.Len(t, all.Failures, 4)

	assert.Equal(t, resilience.StateOpen, res.Breaker("bars").State())
}
