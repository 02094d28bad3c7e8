// ============================================================================
// SpanStream Cluster Pool Backend
// ============================================================================
//
// Package: pkg/dispatch
// File: clusterpool.go
// Purpose: Fans partition fetches out to remote worker nodes.
//
// The transport lives in internal/cluster; this backend only bounds the
// number of in-flight remote fetches and delegates the rest.
//
// ============================================================================

package dispatch

import (
	"context"

	"github.com/spanstream/spanstream/pkg/service"
)

// ClusterRuntime is the remote-execution contract implemented by the gRPC
// cluster client.
type ClusterRuntime interface {
	// IsAvailable reports whether at least one worker node answers a ping.
	IsAvailable(ctx context.Context) bool

	// Fetch runs one partition on a worker node.
	Fetch(ctx context.Context, req PartitionRequest) ([]service.Batch, error)

	// Nodes lists the configured worker addresses.
	Nodes() []string

	// Close tears down the node connections.
	Close() error
}

// ClusterPool executes partition fetches on remote workers, at most
// `workers` in flight at once.
type ClusterPool struct {
	runtime ClusterRuntime
	workers int
	slots   chan struct{}
}

// NewClusterPool wraps rt with an n-slot admission limit.
func NewClusterPool(rt ClusterRuntime, n int) *ClusterPool {
	if n < 1 {
		n = 1
	}
	return &ClusterPool{
		runtime: rt,
		workers: n,
		slots:   make(chan struct{}, n),
	}
}

func (c *ClusterPool) Name() string { return "cluster_pool" }

func (c *ClusterPool) Workers() int { return c.workers }

func (c *ClusterPool) Fetch(ctx context.Context, req PartitionRequest) ([]service.Batch, error) {
	select {
	case c.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-c.slots }()

	return c.runtime.Fetch(ctx, req)
}

func (c *ClusterPool) Close() error {
	return c.runtime.Close()
}
