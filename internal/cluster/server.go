// ============================================================================
// SpanStream Cluster Worker Server
// ============================================================================
//
// Package: internal/cluster
// File: server.go
// Purpose: Serves the Worker RPC service on a node: answers pings and runs
//          partition fetches against the local service registry.
//
// The service descriptor is written by hand since the wire format is JSON
// rather than protobuf; handler shape follows the generated-code convention
// so interceptors keep working.
//
// ============================================================================

package cluster

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/spanstream/spanstream/pkg/service"
)

// workerAPI is the server-side contract behind the service descriptor.
type workerAPI interface {
	Ping(ctx context.Context, req *PingRequest) (*PingResponse, error)
	FetchPartition(ctx context.Context, req *FetchPartitionRequest) (*FetchPartitionResponse, error)
}

var workerServiceDesc = grpc.ServiceDesc{
	ServiceName: workerServiceName,
	HandlerType: (*workerAPI)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Ping", Handler: pingHandler},
		{MethodName: "FetchPartition", Handler: fetchPartitionHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "spanstream/worker",
}

func pingHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(PingRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(workerAPI).Ping(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: pingMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(workerAPI).Ping(ctx, req.(*PingRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func fetchPartitionHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(FetchPartitionRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(workerAPI).FetchPartition(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fetchPartitionMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(workerAPI).FetchPartition(ctx, req.(*FetchPartitionRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// WorkerServer executes partition fetches on behalf of remote dispatchers.
type WorkerServer struct {
	node     string
	registry *service.Registry
	grpc     *grpc.Server
}

// NewWorkerServer creates a worker node server backed by reg.
func NewWorkerServer(node string, reg *service.Registry) *WorkerServer {
	s := &WorkerServer{
		node:     node,
		registry: reg,
		grpc:     grpc.NewServer(),
	}
	s.grpc.RegisterService(&workerServiceDesc, s)
	return s
}

// Serve blocks serving connections on lis until Stop is called.
func (s *WorkerServer) Serve(lis net.Listener) error {
	slog.Info("worker serving", "node", s.node, "addr", lis.Addr().String())
	return s.grpc.Serve(lis)
}

// Stop drains in-flight RPCs and shuts the server down.
func (s *WorkerServer) Stop() {
	s.grpc.GracefulStop()
}

// Ping confirms liveness and advertises the registered services.
func (s *WorkerServer) Ping(ctx context.Context, req *PingRequest) (*PingResponse, error) {
	return &PingResponse{Node: s.node, Services: s.registry.Names()}, nil
}

// FetchPartition resolves the service, decodes the partition params through
// the registered factory, and returns the collected batches.
func (s *WorkerServer) FetchPartition(ctx context.Context, req *FetchPartitionRequest) (*FetchPartitionResponse, error) {
	entry, err := s.registry.Lookup(req.Service)
	if err != nil {
		return nil, status.Error(codes.NotFound, err.Error())
	}

	params := entry.NewParams()
	if err := json.Unmarshal(req.Params, params); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "decode params for %s: %v", req.Service, err)
	}

	slog.Debug("partition fetch",
		"node", s.node,
		"request_id", req.RequestID,
		"service", req.Service,
		"partition", req.Index)

	var batches []service.Batch
	err = entry.Service.FetchBatches(ctx, params, func(b service.Batch) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		batches = append(batches, b)
		return nil
	})
	if err != nil {
		return nil, toStatus(err)
	}
	return &FetchPartitionResponse{Batches: batches}, nil
}
