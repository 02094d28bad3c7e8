// ============================================================================
// Spanstream Fault Taxonomy
// Purpose: Shared error kinds for data-fetch, resilience and dispatch layers
// ============================================================================
//
// Package: pkg/fault
// File: fault.go
//
// The taxonomy is flat: every failure a remote data fetch can produce maps to
// exactly one Kind, carried by a single *Error type with a message and an
// optional cause. Two failures have extra structure and get their own types:
// CircuitOpenError (breaker rejection) and RetryExhaustedError (all attempts
// spent). Classification helpers decide which kinds are transient, i.e.
// worth retrying and counted by circuit breakers.

package fault

import (
	"errors"
	"fmt"
	"time"
)

// Kind identifies the failure class of a data-fetch operation.
type Kind int

const (
	KindUnknown Kind = iota

	// KindConnection indicates the remote endpoint could not be reached.
	KindConnection

	// KindTimeout indicates the operation exceeded its deadline.
	KindTimeout

	// KindAuthentication indicates rejected credentials. Never retried.
	KindAuthentication

	// KindServer indicates a failure inside the remote service.
	KindServer

	// KindDataService is a KindServer specialization for query-level
	// failures reported by a data service handler.
	KindDataService

	// KindDataValidation indicates malformed or out-of-contract input.
	// Also used for invalid-argument failures in the partitioner and
	// planner. Never retried.
	KindDataValidation

	// KindSerialization indicates a wire encode/decode failure.
	KindSerialization

	// KindResourceExhaustion indicates the remote ran out of capacity.
	KindResourceExhaustion
)

// String returns the stable name used in logs and metrics labels.
func (k Kind) String() string {
	switch k {
	case KindConnection:
		return "connection"
	case KindTimeout:
		return "timeout"
	case KindAuthentication:
		return "authentication"
	case KindServer:
		return "server"
	case KindDataService:
		return "data_service"
	case KindDataValidation:
		return "data_validation"
	case KindSerialization:
		return "serialization"
	case KindResourceExhaustion:
		return "resource_exhaustion"
	default:
		return "unknown"
	}
}

// Error is the single carrier for all taxonomy kinds.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is lets errors.Is match two taxonomy errors by Kind, so callers can write
// errors.Is(err, fault.Connection("", nil)) style sentinels if they want.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// ============================================================================
// Constructors
// ============================================================================

func newError(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

// Connection builds a KindConnection error.
func Connection(msg string, cause error) *Error {
	return newError(KindConnection, msg, cause)
}

// Timeout builds a KindTimeout error.
func Timeout(msg string, cause error) *Error {
	return newError(KindTimeout, msg, cause)
}

// Authentication builds a KindAuthentication error.
func Authentication(msg string, cause error) *Error {
	return newError(KindAuthentication, msg, cause)
}

// Server builds a KindServer error.
func Server(msg string, cause error) *Error {
	return newError(KindServer, msg, cause)
}

// DataService builds a KindDataService error (query-level server failure).
func DataService(msg string, cause error) *Error {
	return newError(KindDataService, msg, cause)
}

// Validation builds a KindDataValidation error.
func Validation(msg string, cause error) *Error {
	return newError(KindDataValidation, msg, cause)
}

// Serialization builds a KindSerialization error.
func Serialization(msg string, cause error) *Error {
	return newError(KindSerialization, msg, cause)
}

// ResourceExhaustion builds a KindResourceExhaustion error.
func ResourceExhaustion(msg string, cause error) *Error {
	return newError(KindResourceExhaustion, msg, cause)
}

// ============================================================================
// Structured failures
// ============================================================================

// CircuitOpenError reports a call rejected by an open circuit breaker.
// It always surfaces immediately: retrying against an open circuit would
// defeat its purpose.
type CircuitOpenError struct {
	Endpoint   string
	RetryAfter time.Duration
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit breaker %q is open (retry after %s)", e.Endpoint, e.RetryAfter)
}

// RetryExhaustedError reports that every retry attempt failed. It carries
// the attempt count and unwraps to the last underlying error.
type RetryExhaustedError struct {
	Attempts int
	LastErr  error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("operation failed after %d attempts: %v", e.Attempts, e.LastErr)
}

func (e *RetryExhaustedError) Unwrap() error {
	return e.LastErr
}

// ============================================================================
// Classification
// ============================================================================

// KindOf extracts the taxonomy kind from err, walking wrapped causes.
// Untyped errors report KindUnknown.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindUnknown
}

// IsTransient reports whether err is worth retrying. Connection, timeout and
// server-side failures are transient; authentication, validation,
// serialization and resource-exhaustion failures surface immediately.
// The same set is counted by circuit breakers.
func IsTransient(err error) bool {
	switch KindOf(err) {
	case KindConnection, KindTimeout, KindServer, KindDataService:
		return true
	default:
		return false
	}
}

// IsCircuitOpen reports whether err is (or wraps) a breaker rejection.
func IsCircuitOpen(err error) bool {
	var co *CircuitOpenError
	return errors.As(err, &co)
}

// IsRetryExhausted reports whether err is (or wraps) a retry exhaustion.
func IsRetryExhausted(err error) bool {
	var re *RetryExhaustedError
	return errors.As(err, &re)
}
