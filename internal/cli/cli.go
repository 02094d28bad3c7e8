// ============================================================================
// SpanStream CLI - Command Line Interface
// ============================================================================
//
// Package: internal/cli
// File: cli.go
// Purpose: Provides the command line surface based on the Cobra framework.
//
// Command Structure:
//   spanstream                     # Root command
//   ├── worker                     # Run a cluster worker node
//   │   ├── --node                # Node name advertised to dispatchers
//   │   └── --listen              # Listen address override
//   ├── fetch                      # Run a query end-to-end, print a summary
//   │   ├── --symbol, --interval  # Query shape
//   │   ├── --start, --duration   # Time range
//   │   └── --pattern             # real_time | analytics | historical | backfill
//   ├── status                     # Print effective config and backend
//   ├── --config, -c               # Config file path (all commands)
//   ├── --version                  # Display version information
//   └── --help                     # Display help information
//
// Signal Handling:
//   worker captures SIGINT and SIGTERM and shuts down gracefully:
//   1. Stop accepting new RPCs
//   2. Drain in-flight partition fetches
//   3. Close listeners
//
// ============================================================================

package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/spanstream/spanstream/internal/cluster"
	"github.com/spanstream/spanstream/internal/config"
	"github.com/spanstream/spanstream/internal/dataservice"
	"github.com/spanstream/spanstream/internal/metrics"
	"github.com/spanstream/spanstream/pkg/dispatch"
	"github.com/spanstream/spanstream/pkg/resilience"
	"github.com/spanstream/spanstream/pkg/service"
	"github.com/spanstream/spanstream/pkg/timeseries"
)

const defaultConfigPath = "configs/default.yaml"

var configFile string

// The collector registers its metric families on the process-wide default
// prometheus registry, so commands share a single instance.
var (
	collectorOnce sync.Once
	collector     *metrics.Collector
)

func sharedCollector() *metrics.Collector {
	collectorOnce.Do(func() {
		collector = metrics.NewCollector(nil)
	})
	return collector
}

// BuildCLI assembles the spanstream command tree.
func BuildCLI() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "spanstream",
		Short: "SpanStream: resilient distributed time-series data transfer",
		Long: `SpanStream plans time-series queries into partitions, executes them on a
local pool or a worker cluster, and reassembles the results in order with
retries and circuit breaking along the way.`,
		Version: "1.0.0",
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", defaultConfigPath, "config file path")

	rootCmd.AddCommand(buildWorkerCommand())
	rootCmd.AddCommand(buildFetchCommand())
	rootCmd.AddCommand(buildStatusCommand())

	return rootCmd
}

// loadConfig reads the config file, tolerating a missing file only at the
// stock path so `spanstream fetch` works without any setup.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && configFile == defaultConfigPath {
			return config.Default(), nil
		}
		return nil, err
	}
	return cfg, nil
}

// setupLogging installs the process logger at the configured level.
func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
}

// buildRegistry wires the bundled reference services.
func buildRegistry() (*service.Registry, error) {
	reg := service.NewRegistry()
	if err := reg.Register("bars", dataservice.NewSynthetic(1024), dataservice.NewBarParams); err != nil {
		return nil, err
	}
	return reg, nil
}

// ============================================================================
// worker Command
// ============================================================================

func buildWorkerCommand() *cobra.Command {
	var nodeName string
	var listenAddr string

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run a cluster worker node",
		Long:  "Serve partition fetches to remote dispatchers until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorker(nodeName, listenAddr)
		},
	}

	cmd.Flags().StringVar(&nodeName, "node", "", "node name (defaults to hostname)")
	cmd.Flags().StringVar(&listenAddr, "listen", "", "listen address (overrides config)")

	return cmd
}

func runWorker(nodeName, listenAddr string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	setupLogging(cfg.Logging.Level)

	if nodeName == "" {
		nodeName, _ = os.Hostname()
	}
	if listenAddr == "" {
		listenAddr = cfg.Server.ListenAddr
	}

	reg, err := buildRegistry()
	if err != nil {
		return err
	}

	lis, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", listenAddr, err)
	}

	if cfg.Metrics.Enabled {
		// Register the spanstream metric families so /metrics exposes
		// them alongside the default process metrics.
		sharedCollector()
		go func() {
			if err := metrics.StartServer(cfg.Metrics.Port); err != nil {
				slog.Error("metrics server stopped", "error", err)
			}
		}()
	}

	srv := cluster.NewWorkerServer(nodeName, reg)
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(lis) }()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutdown signal received, stopping gracefully", "signal", sig.String())
		srv.Stop()
		return nil
	case err := <-errCh:
		return err
	}
}

// ============================================================================
// fetch Command
// ============================================================================

func buildFetchCommand() *cobra.Command {
	var symbol string
	var interval time.Duration
	var startStr string
	var duration time.Duration
	var pattern string

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Run a query end-to-end and print a summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFetch(cmd, symbol, interval, startStr, duration, pattern)
		},
	}

	cmd.Flags().StringVar(&symbol, "symbol", "DEMO", "symbol to fetch")
	cmd.Flags().DurationVar(&interval, "interval", time.Minute, "bar interval")
	cmd.Flags().StringVar(&startStr, "start", "", "range start, RFC3339 (defaults to duration before now)")
	cmd.Flags().DurationVar(&duration, "duration", 24*time.Hour, "range length")
	cmd.Flags().StringVar(&pattern, "pattern", "historical", "query pattern: real_time, analytics, historical, backfill")

	return cmd
}

func runFetch(cmd *cobra.Command, symbol string, interval time.Duration, startStr string, duration time.Duration, pattern string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	setupLogging(cfg.Logging.Level)

	start := time.Now().Add(-duration).UTC().Truncate(interval)
	if startStr != "" {
		start, err = time.Parse(time.RFC3339, startStr)
		if err != nil {
			return fmt.Errorf("parse --start: %w", err)
		}
	}
	r, err := timeseries.NewTimeRange(start, start.Add(duration))
	if err != nil {
		return err
	}

	hint, err := hintForPattern(pattern)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	d, cleanup, err := buildDispatcher(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	begin := time.Now()
	stream, err := d.Stream(ctx, dispatch.Request{
		Service: "bars",
		Params:  &dataservice.BarParams{Symbol: symbol, Interval: interval, Range: r},
		Hint:    hint,
	})
	if err != nil {
		return err
	}

	batches, rows := 0, 0
	for b := range stream.Batches() {
		batches++
		rows += b.NumRows()
	}
	if err := stream.Err(); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "backend:    %s (%d workers)\n", d.Backend().Name(), d.Backend().Workers())
	fmt.Fprintf(out, "range:      %s\n", r)
	fmt.Fprintf(out, "batches:    %d\n", batches)
	fmt.Fprintf(out, "rows:       %d\n", rows)
	fmt.Fprintf(out, "skipped:    %d partitions\n", len(stream.Skipped()))
	fmt.Fprintf(out, "elapsed:    %s\n", time.Since(begin).Round(time.Millisecond))
	return nil
}

func hintForPattern(pattern string) (timeseries.OptimizationHint, error) {
	switch pattern {
	case "real_time":
		return timeseries.RealTimeHint(), nil
	case "analytics":
		return timeseries.AnalyticsHint(), nil
	case "historical":
		return timeseries.HistoricalHint(), nil
	case "backfill":
		return timeseries.BackfillHint(), nil
	default:
		return timeseries.OptimizationHint{}, fmt.Errorf("unknown query pattern %q", pattern)
	}
}

// buildDispatcher assembles registry, resilience and (when configured) the
// cluster runtime into a ready dispatcher.
func buildDispatcher(ctx context.Context, cfg *config.Config) (*dispatch.Dispatcher, func(), error) {
	reg, err := buildRegistry()
	if err != nil {
		return nil, nil, err
	}

	retryCfg, err := cfg.RetryConfig()
	if err != nil {
		return nil, nil, err
	}
	coll := sharedCollector()
	res := resilience.NewManager(retryCfg, cfg.BreakerConfig(), coll)

	var rt dispatch.ClusterRuntime
	if len(cfg.Cluster.Nodes) > 0 {
		clusterRT, err := cluster.NewRuntime(cluster.Config{
			Nodes:        cfg.Cluster.Nodes,
			DialTimeout:  cfg.Cluster.DialTimeout,
			FetchTimeout: cfg.Cluster.FetchTimeout,
		})
		if err != nil {
			return nil, nil, err
		}
		rt = clusterRT
	}

	d, err := dispatch.NewDispatcher(ctx, dispatch.Config{
		EnableDistributed: cfg.Dispatch.EnableDistributed,
		MaxWorkers:        cfg.Dispatch.MaxWorkers,
		Planner:           cfg.PlannerConfig(),
	}, reg, res, rt, coll)
	if err != nil {
		if rt != nil {
			_ = rt.Close()
		}
		return nil, nil, err
	}

	cleanup := func() { _ = d.Close() }
	return d, cleanup, nil
}

// ============================================================================
// status Command
// ============================================================================

func buildStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the effective configuration and selected backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd)
		},
	}
}

func runStatus(cmd *cobra.Command) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	setupLogging(cfg.Logging.Level)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	d, cleanup, err := buildDispatcher(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "config file:         %s\n", configFile)
	fmt.Fprintf(out, "backend:             %s (%d workers)\n", d.Backend().Name(), d.Backend().Workers())
	fmt.Fprintf(out, "distributed:         %t\n", cfg.Dispatch.EnableDistributed)
	fmt.Fprintf(out, "retry:               %d attempts, %s, base %s, cap %s\n",
		cfg.Retry.MaxAttempts, cfg.Retry.Strategy, cfg.Retry.BaseDelay, cfg.Retry.MaxDelay)
	fmt.Fprintf(out, "circuit:             threshold %d, recovery %s\n",
		cfg.Circuit.FailureThreshold, cfg.Circuit.RecoveryTimeout)
	fmt.Fprintf(out, "planner:             no-partition below %s, real-time window %s\n",
		cfg.Planner.NoPartitionThreshold, cfg.Planner.RealTimeWindow)
	fmt.Fprintf(out, "cluster nodes:       %d\n", len(cfg.Cluster.Nodes))
	fmt.Fprintf(out, "metrics:             enabled=%t port=%d\n", cfg.Metrics.Enabled, cfg.Metrics.Port)
	return nil
}
