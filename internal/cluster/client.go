// ============================================================================
// SpanStream Cluster Client Runtime
// ============================================================================
//
// Package: internal/cluster
// File: client.go
// Purpose: The dispatcher-facing side of the cluster: probes worker nodes,
//          round-robins partition fetches across the healthy ones.
//
// ============================================================================

package cluster

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/spanstream/spanstream/pkg/dispatch"
	"github.com/spanstream/spanstream/pkg/fault"
	"github.com/spanstream/spanstream/pkg/service"
)

// Config holds the cluster client tunables.
type Config struct {
	// Nodes lists worker addresses (host:port).
	Nodes []string

	// DialTimeout bounds each liveness probe.
	DialTimeout time.Duration

	// FetchTimeout bounds a single remote partition fetch. Zero means the
	// caller's context deadline alone applies.
	FetchTimeout time.Duration
}

// DefaultConfig returns the standalone-friendly defaults: no nodes.
func DefaultConfig() Config {
	return Config{
		DialTimeout:  2 * time.Second,
		FetchTimeout: 0,
	}
}

// node is one worker connection with its probed health.
type node struct {
	addr    string
	conn    *grpc.ClientConn
	healthy bool
}

// Runtime implements dispatch.ClusterRuntime over the Worker RPC service.
type Runtime struct {
	cfg Config

	mu    sync.Mutex
	nodes []*node
	next  int
}

var _ dispatch.ClusterRuntime = (*Runtime)(nil)

// NewRuntime opens a client connection per configured node. Connections are
// lazy; reachability is established by IsAvailable, not here. Extra dial
// options are appended after the defaults, so tests can inject dialers.
func NewRuntime(cfg Config, opts ...grpc.DialOption) (*Runtime, error) {
	if len(cfg.Nodes) == 0 {
		return nil, fmt.Errorf("cluster runtime requires at least one node address")
	}

	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(codecName)),
	}, opts...)

	rt := &Runtime{cfg: cfg}
	for _, addr := range cfg.Nodes {
		conn, err := grpc.NewClient(addr, dialOpts...)
		if err != nil {
			rt.closeLocked()
			return nil, fmt.Errorf("dial worker %s: %w", addr, err)
		}
		rt.nodes = append(rt.nodes, &node{addr: addr, conn: conn})
	}
	return rt, nil
}

// IsAvailable pings every node and reports whether at least one answered.
// Health flags are refreshed as a side effect and steer Fetch routing.
func (r *Runtime) IsAvailable(ctx context.Context) bool {
	r.mu.Lock()
	nodes := make([]*node, len(r.nodes))
	copy(nodes, r.nodes)
	r.mu.Unlock()

	anyHealthy := false
	for _, n := range nodes {
		out, err := r.ping(ctx, n)

		r.mu.Lock()
		n.healthy = err == nil
		r.mu.Unlock()

		if err != nil {
			slog.Warn("worker unreachable", "addr", n.addr, "error", err)
			continue
		}
		anyHealthy = true
		slog.Info("worker reachable", "addr", n.addr, "node", out.Node, "services", out.Services)
	}
	return anyHealthy
}

// ping probes one node with its own deadline so the timer is released as
// soon as the probe resolves.
func (r *Runtime) ping(ctx context.Context, n *node) (*PingResponse, error) {
	if r.cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.DialTimeout)
		defer cancel()
	}
	out := new(PingResponse)
	err := n.conn.Invoke(ctx, pingMethod, &PingRequest{From: "dispatcher"}, out)
	return out, err
}

// Nodes lists the configured worker addresses.
func (r *Runtime) Nodes() []string {
	addrs := make([]string, 0, len(r.cfg.Nodes))
	addrs = append(addrs, r.cfg.Nodes...)
	return addrs
}

// Fetch runs one partition on the next healthy worker.
func (r *Runtime) Fetch(ctx context.Context, req dispatch.PartitionRequest) ([]service.Batch, error) {
	n, err := r.pick()
	if err != nil {
		return nil, err
	}

	rawParams, err := json.Marshal(req.Params)
	if err != nil {
		return nil, fault.Serialization("encode partition params", err)
	}

	if r.cfg.FetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.FetchTimeout)
		defer cancel()
	}

	in := &FetchPartitionRequest{
		RequestID: req.RequestID,
		Service:   req.Service,
		Index:     req.Index,
		Params:    rawParams,
	}
	out := new(FetchPartitionResponse)
	if err := n.conn.Invoke(ctx, fetchPartitionMethod, in, out); err != nil {
		r.mu.Lock()
		n.healthy = false
		r.mu.Unlock()
		return nil, fromStatus(err)
	}
	return out.Batches, nil
}

// pick returns the next healthy node round-robin, falling back to any node
// when none is marked healthy (the probe may simply be stale).
func (r *Runtime) pick() (*node, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.nodes) == 0 {
		return nil, fault.Connection("no worker nodes configured", nil)
	}
	for i := 0; i < len(r.nodes); i++ {
		n := r.nodes[r.next%len(r.nodes)]
		r.next++
		if n.healthy {
			return n, nil
		}
	}
	n := r.nodes[r.next%len(r.nodes)]
	r.next++
	return n, nil
}

// Close tears down every node connection.
func (r *Runtime) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closeLocked()
}

func (r *Runtime) closeLocked() error {
	var firstErr error
	for _, n := range r.nodes {
		if err := n.conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	r.nodes = nil
	return firstErr
}
