package cli

// ============================================================================
// CLI Test File
// ============================================================================

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	root := BuildCLI()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

func TestCommandTree(t *testing.T) {
	root := BuildCLI()

	names := map[string]bool{}
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["worker"])
	assert.True(t, names["fetch"])
	assert.True(t, names["status"])
}

// TestFetchEndToEnd runs a small query against the bundled synthetic
// service with default configuration.
func TestFetchEndToEnd(t *testing.T) {
	out, err := execute(t,
		"fetch",
		"--symbol", "AAPL",
		"--duration", "30m",
		"--interval", "1m",
		"--pattern", "real_time",
	)
	require.NoError(t, err)
	assert.Contains(t, out, "rows:       30")
	assert.Contains(t, out, "skipped:    0 partitions")
}

// TestFetchFeedsCollector checks the binary wires the prometheus collector:
// running a query increments the dispatch counters on the default registry.
func TestFetchFeedsCollector(t *testing.T) {
	_, err := execute(t,
		"fetch",
		"--duration", "30m",
		"--interval", "1m",
		"--pattern", "real_time",
	)
	require.NoError(t, err)

	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)

	var dispatched float64
	for _, mf := range families {
		if mf.GetName() != "spanstream_partitions_dispatched_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			dispatched += m.GetCounter().GetValue()
		}
	}
	assert.GreaterOrEqual(t, dispatched, 1.0)

	// Repeated commands in one process reuse the registered instance.
	assert.Same(t, sharedCollector(), sharedCollector())
}

func TestFetchSequentialBackend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("dispatch:\n  enable_distributed: false\n"), 0o644))

	out, err := execute(t,
		"fetch",
		"-c", path,
		"--duration", "2h",
		"--interval", "1m",
		"--pattern", "analytics",
	)
	require.NoError(t, err)
	assert.Contains(t, out, "backend:    sequential")
	assert.Contains(t, out, "rows:       120")
}

func TestFetchRejectsUnknownPattern(t *testing.T) {
	_, err := execute(t, "fetch", "--pattern", "psychic")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown query pattern")
}

func TestStatusPrintsBackend(t *testing.T) {
	out, err := execute(t, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "backend:")
	assert.Contains(t, out, "retry:")
	assert.Contains(t, out, "circuit:")
}
