// ============================================================================
// SpanStream Configuration
// ============================================================================
//
// Package: internal/config
// File: config.go
// Purpose: YAML configuration loaded once at startup and passed explicitly
//          to the components that need it. There is no ambient global.
//
// Configuration sections:
//   - dispatch: backend selection and worker cap
//   - retry:    retry policy defaults
//   - circuit:  circuit breaker defaults
//   - planner:  partitioning thresholds
//   - cluster:  worker node addresses and RPC timeouts
//   - metrics:  Prometheus exposure
//   - server:   worker node listen address
//   - logging:  slog level
//
// ============================================================================

package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/spanstream/spanstream/pkg/resilience"
	"github.com/spanstream/spanstream/pkg/timeseries"
)

// Config represents the complete system configuration structure.
type Config struct {
	Dispatch struct {
		EnableDistributed bool `yaml:"enable_distributed"`
		MaxWorkers        int  `yaml:"max_workers"` // 0 = auto
	} `yaml:"dispatch"`

	Retry struct {
		MaxAttempts int           `yaml:"max_attempts"`
		Strategy    string        `yaml:"strategy"`
		BaseDelay   time.Duration `yaml:"base_delay"`
		MaxDelay    time.Duration `yaml:"max_delay"`
	} `yaml:"retry"`

	Circuit struct {
		FailureThreshold int           `yaml:"failure_threshold"`
		RecoveryTimeout  time.Duration `yaml:"recovery_timeout"`
	} `yaml:"circuit"`

	Planner struct {
		NoPartitionThreshold time.Duration `yaml:"no_partition_threshold"`
		RealTimeWindow       time.Duration `yaml:"real_time_window"`
	} `yaml:"planner"`

	Cluster struct {
		Nodes        []string      `yaml:"nodes"`
		DialTimeout  time.Duration `yaml:"dial_timeout"`
		FetchTimeout time.Duration `yaml:"fetch_timeout"`
	} `yaml:"cluster"`

	Metrics struct {
		Enabled bool `yaml:"enabled"`
		Port    int  `yaml:"port"`
	} `yaml:"metrics"`

	Server struct {
		ListenAddr string `yaml:"listen_addr"`
	} `yaml:"server"`

	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}

	cfg.Dispatch.EnableDistributed = true
	cfg.Dispatch.MaxWorkers = 0

	retry := resilience.DefaultRetryConfig()
	cfg.Retry.MaxAttempts = retry.MaxAttempts
	cfg.Retry.Strategy = retry.Strategy.String()
	cfg.Retry.BaseDelay = retry.BaseDelay
	cfg.Retry.MaxDelay = retry.MaxDelay

	breaker := resilience.DefaultBreakerConfig()
	cfg.Circuit.FailureThreshold = breaker.FailureThreshold
	cfg.Circuit.RecoveryTimeout = breaker.RecoveryTimeout

	planner := timeseries.DefaultPlannerConfig()
	cfg.Planner.NoPartitionThreshold = planner.NoPartitionThreshold
	cfg.Planner.RealTimeWindow = planner.RealTimeWindow

	cfg.Cluster.DialTimeout = 2 * time.Second
	cfg.Cluster.FetchTimeout = 0

	cfg.Metrics.Enabled = true
	cfg.Metrics.Port = 9090

	cfg.Server.ListenAddr = ":7000"
	cfg.Logging.Level = "info"

	return cfg
}

// Load reads path and overlays it on the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects configurations that cannot produce a working system.
func (c *Config) Validate() error {
	if _, err := c.RetryConfig(); err != nil {
		return err
	}
	if c.Circuit.FailureThreshold < 1 {
		return fmt.Errorf("circuit failure_threshold must be at least 1, got %d", c.Circuit.FailureThreshold)
	}
	if c.Circuit.RecoveryTimeout <= 0 {
		return fmt.Errorf("circuit recovery_timeout must be positive, got %s", c.Circuit.RecoveryTimeout)
	}
	if c.Planner.NoPartitionThreshold <= 0 {
		return fmt.Errorf("planner no_partition_threshold must be positive, got %s", c.Planner.NoPartitionThreshold)
	}
	if c.Planner.RealTimeWindow <= 0 {
		return fmt.Errorf("planner real_time_window must be positive, got %s", c.Planner.RealTimeWindow)
	}
	if c.Dispatch.MaxWorkers < 0 {
		return fmt.Errorf("dispatch max_workers must not be negative, got %d", c.Dispatch.MaxWorkers)
	}
	if c.Metrics.Enabled && (c.Metrics.Port < 1 || c.Metrics.Port > 65535) {
		return fmt.Errorf("metrics port out of range: %d", c.Metrics.Port)
	}
	return nil
}

// RetryConfig converts the retry section into the resilience form.
func (c *Config) RetryConfig() (resilience.RetryConfig, error) {
	strategy, err := resilience.ParseStrategy(c.Retry.Strategy)
	if err != nil {
		return resilience.RetryConfig{}, err
	}
	rc := resilience.RetryConfig{
		MaxAttempts: c.Retry.MaxAttempts,
		Strategy:    strategy,
		BaseDelay:   c.Retry.BaseDelay,
		MaxDelay:    c.Retry.MaxDelay,
	}
	if err := rc.Validate(); err != nil {
		return resilience.RetryConfig{}, err
	}
	return rc, nil
}

// BreakerConfig converts the circuit section into the resilience form.
func (c *Config) BreakerConfig() resilience.BreakerConfig {
	return resilience.BreakerConfig{
		FailureThreshold: c.Circuit.FailureThreshold,
		RecoveryTimeout:  c.Circuit.RecoveryTimeout,
	}
}

// PlannerConfig converts the planner section into the timeseries form.
func (c *Config) PlannerConfig() timeseries.PlannerConfig {
	return timeseries.PlannerConfig{
		NoPartitionThreshold: c.Planner.NoPartitionThreshold,
		RealTimeWindow:       c.Planner.RealTimeWindow,
	}
}
