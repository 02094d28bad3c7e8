// ============================================================================
// SpanStream Synthetic Data Service
// ============================================================================
//
// Package: internal/dataservice
// File: synthetic.go
// Purpose: Deterministic generated OHLCV bars for demos, CLI runs and tests.
//          The same params always produce the same batches, so partitioned
//          and unpartitioned executions of a query are comparable.
//
// ============================================================================

package dataservice

import (
	"context"
	"hash/fnv"
	"math"
	"time"

	"github.com/spanstream/spanstream/pkg/fault"
	"github.com/spanstream/spanstream/pkg/service"
	"github.com/spanstream/spanstream/pkg/timeseries"
)

// BarParams asks for OHLCV bars of one symbol at a fixed interval.
type BarParams struct {
	Symbol   string               `json:"symbol"`
	Interval time.Duration        `json:"interval"`
	Range    timeseries.TimeRange `json:"range"`
}

var _ timeseries.Params = (*BarParams)(nil)

func (p *BarParams) TimeRange() timeseries.TimeRange { return p.Range }

// EstimateDataPoints derives the row count from the range and bar interval.
func (p *BarParams) EstimateDataPoints() int64 {
	if p.Interval <= 0 {
		return 0
	}
	return int64(p.Range.Duration() / p.Interval)
}

func (p *BarParams) WithTimeRange(r timeseries.TimeRange) timeseries.Params {
	cp := *p
	cp.Range = r
	return &cp
}

// NewBarParams is the registry params factory for the synthetic service.
func NewBarParams() timeseries.Params { return &BarParams{} }

// Synthetic generates bars on the fly. BatchRows bounds the rows per emitted
// batch.
type Synthetic struct {
	BatchRows int
}

// NewSynthetic creates the generator with the given batch size (rows).
func NewSynthetic(batchRows int) *Synthetic {
	if batchRows < 1 {
		batchRows = 1024
	}
	return &Synthetic{BatchRows: batchRows}
}

func (s *Synthetic) FetchBatches(ctx context.Context, params timeseries.Params, emit func(service.Batch) error) error {
	p, ok := params.(*BarParams)
	if !ok {
		return fault.Validation("synthetic service requires bar params", nil)
	}
	if p.Interval <= 0 {
		return fault.Validation("bar interval must be positive", nil)
	}

	base := symbolBase(p.Symbol)
	r := p.Range

	batch := newBarBatch(s.BatchRows)
	for t := r.Start; t.Before(r.End); t = t.Add(p.Interval) {
		if err := ctx.Err(); err != nil {
			return err
		}

		appendBar(batch, t.UnixMilli(), base)
		if len(batch.Timestamps) == s.BatchRows {
			if err := emit(*batch); err != nil {
				return err
			}
			batch = newBarBatch(s.BatchRows)
		}
	}

	if len(batch.Timestamps) > 0 {
		return emit(*batch)
	}
	return nil
}

func newBarBatch(capacity int) *service.Batch {
	return &service.Batch{
		Timestamps: make([]int64, 0, capacity),
		Series: map[string][]float64{
			"open":   make([]float64, 0, capacity),
			"high":   make([]float64, 0, capacity),
			"low":    make([]float64, 0, capacity),
			"close":  make([]float64, 0, capacity),
			"volume": make([]float64, 0, capacity),
		},
	}
}

// appendBar derives one bar purely from the timestamp and the symbol's base
// price, keeping the stream reproducible.
func appendBar(b *service.Batch, tsMillis int64, base float64) {
	phase := float64(tsMillis%86_400_000) / 86_400_000 * 2 * math.Pi
	mid := base * (1 + 0.05*math.Sin(phase))
	spread := base * 0.002

	b.Timestamps = append(b.Timestamps, tsMillis)
	b.Series["open"] = append(b.Series["open"], mid-spread/2)
	b.Series["high"] = append(b.Series["high"], mid+spread)
	b.Series["low"] = append(b.Series["low"], mid-spread)
	b.Series["close"] = append(b.Series["close"], mid+spread/2)
	b.Series["volume"] = append(b.Series["volume"], math.Floor(1000+500*math.Cos(phase)))
}

// symbolBase maps a symbol to a stable base price in [50, 550).
func symbolBase(symbol string) float64 {
	h := fnv.New32a()
	h.Write([]byte(symbol))
	return 50 + float64(h.Sum32()%500)
}
