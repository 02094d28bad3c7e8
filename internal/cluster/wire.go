// ============================================================================
// SpanStream Cluster Wire Types
// ============================================================================
//
// Package: internal/cluster
// File: wire.go
// Purpose: Request/response messages and status-code mapping for the Worker
//          RPC service.
//
// ============================================================================

package cluster

import (
	"encoding/json"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/spanstream/spanstream/pkg/fault"
	"github.com/spanstream/spanstream/pkg/service"
)

const (
	workerServiceName    = "spanstream.Worker"
	pingMethod           = "/spanstream.Worker/Ping"
	fetchPartitionMethod = "/spanstream.Worker/FetchPartition"
)

// PingRequest probes a worker node.
type PingRequest struct {
	From string `json:"from"`
}

// PingResponse advertises the node and the services it can execute.
type PingResponse struct {
	Node     string   `json:"node"`
	Services []string `json:"services"`
}

// FetchPartitionRequest asks a worker to run one partition. Params is the
// JSON encoding of the concrete params type registered under Service; the
// worker decodes it through the registry's params factory.
type FetchPartitionRequest struct {
	RequestID string          `json:"request_id"`
	Service   string          `json:"service"`
	Index     int             `json:"index"`
	Params    json.RawMessage `json:"params"`
}

// FetchPartitionResponse carries the partition's batches in time order.
type FetchPartitionResponse struct {
	Batches []service.Batch `json:"batches"`
}

// toStatus maps a fault kind onto a grpc status so the caller can rebuild
// an equivalent fault on its side.
func toStatus(err error) error {
	switch fault.KindOf(err) {
	case fault.KindConnection:
		return status.Error(codes.Unavailable, err.Error())
	case fault.KindTimeout:
		return status.Error(codes.DeadlineExceeded, err.Error())
	case fault.KindAuthentication:
		return status.Error(codes.Unauthenticated, err.Error())
	case fault.KindDataValidation:
		return status.Error(codes.InvalidArgument, err.Error())
	case fault.KindResourceExhaustion:
		return status.Error(codes.ResourceExhausted, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// fromStatus rebuilds a fault from a grpc status so retry classification
// keeps working across the wire. Transport-level failures (no status) count
// as connection faults.
func fromStatus(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return fault.Connection("worker rpc failed", err)
	}
	switch st.Code() {
	case codes.Unavailable:
		return fault.Connection(st.Message(), err)
	case codes.DeadlineExceeded:
		return fault.Timeout(st.Message(), err)
	case codes.Unauthenticated:
		return fault.Authentication(st.Message(), err)
	case codes.InvalidArgument:
		return fault.Validation(st.Message(), err)
	case codes.NotFound:
		return fault.Validation(st.Message(), err)
	case codes.ResourceExhausted:
		return fault.ResourceExhaustion(st.Message(), err)
	case codes.Canceled:
		return err
	default:
		return fault.Server(st.Message(), err)
	}
}
