package main

// ============================================================================
// SpanStream local demo: plans and runs two queries end-to-end in one
// process, one against the synthetic bar generator and one against a seeded
// SQLite table, and prints what the dispatcher did.
//
//   go run ./cmd/demo
// ============================================================================

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/spanstream/spanstream/internal/dataservice"
	"github.com/spanstream/spanstream/internal/metrics"
	"github.com/spanstream/spanstream/pkg/dispatch"
	"github.com/spanstream/spanstream/pkg/resilience"
	"github.com/spanstream/spanstream/pkg/service"
	"github.com/spanstream/spanstream/pkg/timeseries"
)

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})))

	dir, err := os.MkdirTemp("", "spanstream-demo-")
	if err != nil {
		log.Fatalf("temp dir: %v", err)
	}
	defer os.RemoveAll(dir)

	reg := service.NewRegistry()
	reg.MustRegister("bars", dataservice.NewSynthetic(1024), dataservice.NewBarParams)

	sqlSvc, err := seedSQLite(filepath.Join(dir, "ticks.db"))
	if err != nil {
		log.Fatalf("seed sqlite: %v", err)
	}
	reg.MustRegister("ticks", sqlSvc, dataservice.NewRangeParams)

	collector := metrics.NewCollector(prometheus.NewRegistry())
	res := resilience.NewManager(resilience.DefaultRetryConfig(), resilience.DefaultBreakerConfig(), collector)

	cfg := dispatch.DefaultConfig()
	cfg.MaxWorkers = 4
	d, err := dispatch.NewDispatcher(context.Background(), cfg, reg, res, nil, collector)
	if err != nil {
		log.Fatalf("dispatcher: %v", err)
	}
	defer d.Close()

	start := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)

	// A week of minute bars, partitioned by estimated volume.
	barsRange, _ := timeseries.NewTimeRange(start, start.Add(7*24*time.Hour))
	runQuery(d, "bars", &dataservice.BarParams{
		Symbol:   "DEMO",
		Interval: time.Minute,
		Range:    barsRange,
	}, timeseries.AnalyticsHint())

	// A short real-time slice of the SQLite ticks.
	ticksRange, _ := timeseries.NewTimeRange(start, start.Add(30*time.Minute))
	runQuery(d, "ticks", &dataservice.RangeParams{
		Range:         ticksRange,
		EstimatedRows: 30,
	}, timeseries.RealTimeHint())
}

func runQuery(d *dispatch.Dispatcher, svc string, params timeseries.Params, hint timeseries.OptimizationHint) {
	begin := time.Now()
	stream, err := d.Stream(context.Background(), dispatch.Request{
		Service: svc,
		Params:  params,
		Hint:    hint,
	})
	if err != nil {
		log.Fatalf("stream %s: %v", svc, err)
	}

	batches, rows := 0, 0
	for b := range stream.Batches() {
		batches++
		rows += b.NumRows()
	}
	if err := stream.Err(); err != nil {
		log.Fatalf("stream %s failed: %v", svc, err)
	}

	fmt.Printf("%-6s %s: %d rows in %d batches, %d skipped, %s\n",
		svc,
		params.TimeRange(),
		rows,
		batches,
		len(stream.Skipped()),
		time.Since(begin).Round(time.Millisecond))
}

// seedSQLite creates a ticks table with one row per minute for a day.
func seedSQLite(path string) (*dataservice.SQL, error) {
	db, err := dataservice.OpenSQLite(path)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec("CREATE TABLE ticks (ts INTEGER NOT NULL, value REAL NOT NULL)"); err != nil {
		return nil, err
	}

	start := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	tx, err := db.Begin()
	if err != nil {
		return nil, err
	}
	stmt, err := tx.Prepare("INSERT INTO ticks (ts, value) VALUES (?, ?)")
	if err != nil {
		return nil, err
	}
	defer stmt.Close()

	for i := 0; i < 24*60; i++ {
		ts := start.Add(time.Duration(i) * time.Minute).UnixMilli()
		if _, err := stmt.Exec(ts, float64(i%100)); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return dataservice.NewSQL(db, "ticks", 256), nil
}
