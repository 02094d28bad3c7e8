// ============================================================================
// SpanStream Cluster Wire Codec
// ============================================================================
//
// Package: internal/cluster
// File: codec.go
// Purpose: JSON codec for the worker RPC surface.
//
// The repo defines no protobuf schema; requests and responses are plain Go
// structs carried as JSON message payloads. Registering the codec with the
// grpc encoding registry lets both server and client resolve it by name
// through the standard content-subtype negotiation.
//
// ============================================================================

package cluster

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// codecName is the grpc content-subtype for the JSON codec.
const codecName = "json"

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string {
	return codecName
}
