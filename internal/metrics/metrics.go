// ============================================================================
// SpanStream Metrics - Prometheus Instrumentation
// ============================================================================
//
// Package: internal/metrics
// File: metrics.go
// Purpose: Collects and exposes dispatcher and resilience metrics.
//
// Metric families:
//
//   1. Counters (cumulative):
//      - spanstream_partitions_dispatched_total{service}
//      - spanstream_partitions_completed_total{service}
//      - spanstream_partitions_skipped_total{service}
//      - spanstream_retry_attempts_total{endpoint,kind}
//      - spanstream_breaker_rejections_total{endpoint}
//
//   2. Histograms:
//      - spanstream_partition_fetch_seconds{service}
//
//   3. Gauges (instantaneous):
//      - spanstream_breaker_state{endpoint}: 0 closed, 1 open, 2 half-open
//      - spanstream_partitions_in_flight
//
// All metrics are advisory: recording failures never influence dispatch
// decisions. Exposed via /metrics for Prometheus scraping.
//
// ============================================================================

package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/spanstream/spanstream/pkg/fault"
	"github.com/spanstream/spanstream/pkg/resilience"
)

// Collector bundles the dispatcher and resilience metric families. It
// implements resilience.Observer and the dispatcher's Metrics hooks.
type Collector struct {
	partitionsDispatched *prometheus.CounterVec
	partitionsCompleted  *prometheus.CounterVec
	partitionsSkipped    *prometheus.CounterVec
	retryAttempts        *prometheus.CounterVec
	breakerRejections    *prometheus.CounterVec

	fetchLatency *prometheus.HistogramVec

	breakerState       *prometheus.GaugeVec
	partitionsInFlight prometheus.Gauge
}

var _ resilience.Observer = (*Collector)(nil)

// NewCollector creates and registers the metric families. Pass nil to use
// the process-wide default registerer.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := &Collector{
		partitionsDispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "spanstream_partitions_dispatched_total",
			Help: "Total number of partitions submitted to the backend",
		}, []string{"service"}),
		partitionsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "spanstream_partitions_completed_total",
			Help: "Total number of partitions fetched successfully",
		}, []string{"service"}),
		partitionsSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "spanstream_partitions_skipped_total",
			Help: "Total number of partitions dropped after exhausting retries",
		}, []string{"service"}),
		retryAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "spanstream_retry_attempts_total",
			Help: "Total number of retries scheduled, by endpoint and fault kind",
		}, []string{"endpoint", "kind"}),
		breakerRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "spanstream_breaker_rejections_total",
			Help: "Total number of calls rejected by an open circuit",
		}, []string{"endpoint"}),
		fetchLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "spanstream_partition_fetch_seconds",
			Help:    "Partition fetch latency in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"service"}),
		breakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "spanstream_breaker_state",
			Help: "Circuit breaker state per endpoint (0 closed, 1 open, 2 half-open)",
		}, []string{"endpoint"}),
		partitionsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "spanstream_partitions_in_flight",
			Help: "Current number of partition fetches in flight",
		}),
	}

	reg.MustRegister(
		c.partitionsDispatched,
		c.partitionsCompleted,
		c.partitionsSkipped,
		c.retryAttempts,
		c.breakerRejections,
		c.fetchLatency,
		c.breakerState,
		c.partitionsInFlight,
	)
	return c
}

// ============================================================================
// Dispatcher Hooks
// ============================================================================

// PartitionsDispatched records a planned fan-out of n partitions.
func (c *Collector) PartitionsDispatched(service string, n int) {
	c.partitionsDispatched.WithLabelValues(service).Add(float64(n))
}

// PartitionCompleted records one successful partition fetch.
func (c *Collector) PartitionCompleted(service string, elapsed time.Duration) {
	c.partitionsCompleted.WithLabelValues(service).Inc()
	c.fetchLatency.WithLabelValues(service).Observe(elapsed.Seconds())
}

// PartitionSkipped records a partition dropped after retries.
func (c *Collector) PartitionSkipped(service string) {
	c.partitionsSkipped.WithLabelValues(service).Inc()
}

// InFlightAdd adjusts the in-flight partition gauge.
func (c *Collector) InFlightAdd(delta float64) {
	c.partitionsInFlight.Add(delta)
}

// ============================================================================
// Resilience Observer
// ============================================================================

// RetryScheduled counts a retry by endpoint and fault kind.
func (c *Collector) RetryScheduled(endpoint string, attempt int, kind fault.Kind, delay time.Duration) {
	c.retryAttempts.WithLabelValues(endpoint, kind.String()).Inc()
}

// BreakerStateChanged tracks the breaker state gauge.
func (c *Collector) BreakerStateChanged(endpoint string, from, to resilience.State) {
	c.breakerState.WithLabelValues(endpoint).Set(stateValue(to))
}

// BreakerRejected counts a fast-failed call.
func (c *Collector) BreakerRejected(endpoint string) {
	c.breakerRejections.WithLabelValues(endpoint).Inc()
}

func stateValue(s resilience.State) float64 {
	switch s {
	case resilience.StateOpen:
		return 1
	case resilience.StateHalfOpen:
		return 2
	default:
		return 0
	}
}

// ============================================================================
// HTTP Exposure
// ============================================================================

// StartServer serves /metrics on the given port. Blocks until the listener
// fails.
func StartServer(port int) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	addr := fmt.Sprintf(":%d", port)
	return http.ListenAndServe(addr, mux)
}
