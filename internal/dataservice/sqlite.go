// ============================================================================
// SpanStream SQLite Data Service
// ============================================================================
//
// Package: internal/dataservice
// File: sqlite.go
// Purpose: Serves (ts, value) rows from a SQLite table, the minimal shape of
//          a warehouse-backed source. Rows are read in timestamp order and
//          batched before being pushed to the caller.
//
// ============================================================================

package dataservice

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/spanstream/spanstream/pkg/fault"
	"github.com/spanstream/spanstream/pkg/service"
	"github.com/spanstream/spanstream/pkg/timeseries"
)

// RangeParams is the generic time-range query used by the SQL service.
// EstimatedRows feeds the planner's volume heuristics; zero is allowed and
// simply disables volume-based partitioning.
type RangeParams struct {
	Range         timeseries.TimeRange `json:"range"`
	EstimatedRows int64                `json:"estimated_rows"`
}

var _ timeseries.Params = (*RangeParams)(nil)

func (p *RangeParams) TimeRange() timeseries.TimeRange { return p.Range }

func (p *RangeParams) EstimateDataPoints() int64 { return p.EstimatedRows }

func (p *RangeParams) WithTimeRange(r timeseries.TimeRange) timeseries.Params {
	cp := *p
	cp.Range = r
	return &cp
}

// NewRangeParams is the registry params factory for the SQL service.
func NewRangeParams() timeseries.Params { return &RangeParams{} }

// SQL reads a (ts INTEGER, value REAL) table. ts is unix milliseconds.
type SQL struct {
	db        *sql.DB
	table     string
	batchRows int
}

// OpenSQLite opens (or creates) a SQLite database file.
func OpenSQLite(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fault.Connection(fmt.Sprintf("open sqlite %s", path), err)
	}
	return db, nil
}

// NewSQL creates a service over db's table.
func NewSQL(db *sql.DB, table string, batchRows int) *SQL {
	if batchRows < 1 {
		batchRows = 1024
	}
	return &SQL{db: db, table: table, batchRows: batchRows}
}

func (s *SQL) FetchBatches(ctx context.Context, params timeseries.Params, emit func(service.Batch) error) error {
	r := params.TimeRange()

	query := fmt.Sprintf(
		"SELECT ts, value FROM %s WHERE ts >= ? AND ts < ? ORDER BY ts", s.table)
	rows, err := s.db.QueryContext(ctx, query, r.Start.UnixMilli(), r.End.UnixMilli())
	if err != nil {
		return fault.DataService(fmt.Sprintf("query %s", s.table), err)
	}
	defer rows.Close()

	batch := newValueBatch(s.batchRows)
	for rows.Next() {
		var ts int64
		var value float64
		if err := rows.Scan(&ts, &value); err != nil {
			return fault.DataService(fmt.Sprintf("scan %s row", s.table), err)
		}

		batch.Timestamps = append(batch.Timestamps, ts)
		batch.Series["value"] = append(batch.Series["value"], value)

		if len(batch.Timestamps) == s.batchRows {
			if err := emit(*batch); err != nil {
				return err
			}
			batch = newValueBatch(s.batchRows)
		}
	}
	if err := rows.Err(); err != nil {
		return fault.DataService(fmt.Sprintf("iterate %s rows", s.table), err)
	}

	if len(batch.Timestamps) > 0 {
		return emit(*batch)
	}
	return nil
}

func newValueBatch(capacity int) *service.Batch {
	return &service.Batch{
		Timestamps: make([]int64, 0, capacity),
		Series: map[string][]float64{
			"value": make([]float64, 0, capacity),
		},
	}
}
