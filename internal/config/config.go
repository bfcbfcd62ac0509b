package config

import (
	"fmt"
	"time"

	"github.com/nanda/kirana/internal/logger"
	"github.com/nanda/kirana/pkg/model"
)

// BusConfig configures the message bus
type BusConfig struct {
	QueueSize   int `json:"queue_size" mapstructure:"queue_size"`
	HistorySize int `json:"history_size" mapstructure:"history_size"`
}

// CoordinatorConfig configures the coordinator agent
type CoordinatorConfig struct {
	AgentID           string        `json:"agent_id" mapstructure:"agent_id"`
	RequestTimeout    time.Duration `json:"request_timeout" mapstructure:"request_timeout"`
	RetryAttempts     int           `json:"retry_attempts" mapstructure:"retry_attempts"`
	RetryBackoff      time.Duration `json:"retry_backoff" mapstructure:"retry_backoff"`
	ReasoningFallback bool          `json:"reasoning_fallback" mapstructure:"reasoning_fallback"`
}

// ExecutorConfig configures the tool executor agent
type ExecutorConfig struct {
	AgentID        string        `json:"agent_id" mapstructure:"agent_id"`
	Workers        int           `json:"workers" mapstructure:"workers"`
	DefaultTimeout time.Duration `json:"default_timeout" mapstructure:"default_timeout"`
}

// HistoryConfig configures exchange persistence
type HistoryConfig struct {
	Path      string        `json:"path" mapstructure:"path"`
	RetainFor time.Duration `json:"retain_for" mapstructure:"retain_for"`
}

// MaintenanceConfig configures periodic upkeep
type MaintenanceConfig struct {
	SweepSpec  string        `json:"sweep_spec" mapstructure:"sweep_spec"`
	PruneSpec  string        `json:"prune_spec" mapstructure:"prune_spec"`
	StaleAfter time.Duration `json:"stale_after" mapstructure:"stale_after"`
}

// MetricsConfig configures the Prometheus endpoint
type MetricsConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Addr    string `json:"addr" mapstructure:"addr"`
}

// Config is the root configuration
type Config struct {
	DataDir     string            `json:"data_dir" mapstructure:"data_dir"`
	Logging     logger.Config     `json:"logging" mapstructure:"logging"`
	Bus         BusConfig         `json:"bus" mapstructure:"bus"`
	Coordinator CoordinatorConfig `json:"coordinator" mapstructure:"coordinator"`
	Executor    ExecutorConfig    `json:"executor" mapstructure:"executor"`
	Model       model.Config      `json:"model" mapstructure:"model"`
	History     HistoryConfig     `json:"history" mapstructure:"history"`
	Maintenance MaintenanceConfig `json:"maintenance" mapstructure:"maintenance"`
	Metrics     MetricsConfig     `json:"metrics" mapstructure:"metrics"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Logging: logger.DefaultConfig(),
		Bus: BusConfig{
			QueueSize:   64,
			HistorySize: 1000,
		},
		Coordinator: CoordinatorConfig{
			AgentID:           "coordinator",
			RequestTimeout:    30 * time.Second,
			RetryAttempts:     3,
			RetryBackoff:      200 * time.Millisecond,
			ReasoningFallback: true,
		},
		Executor: ExecutorConfig{
			AgentID:        "tool-executor",
			Workers:        4,
			DefaultTimeout: 30 * time.Second,
		},
		Model: model.DefaultConfig(),
		History: HistoryConfig{
			RetainFor: 30 * 24 * time.Hour,
		},
		Maintenance: MaintenanceConfig{
			SweepSpec:  "@every 1m",
			PruneSpec:  "@every 1h",
			StaleAfter: 2 * time.Minute,
		},
		Metrics: MetricsConfig{
			Addr: "127.0.0.1:9464",
		},
	}
}

// Validate checks the configuration for values the runtime cannot work with
func (c *Config) Validate() error {
	if c.Bus.QueueSize <= 0 {
		return fmt.Errorf("bus.queue_size must be positive")
	}
	if c.Bus.HistorySize <= 0 {
		return fmt.Errorf("bus.history_size must be positive")
	}
	if c.Coordinator.RetryAttempts < 1 {
		return fmt.Errorf("coordinator.retry_attempts must be at least 1")
	}
	if c.Coordinator.RequestTimeout <= 0 {
		return fmt.Errorf("coordinator.request_timeout must be positive")
	}
	if c.Executor.Workers <= 0 {
		return fmt.Errorf("executor.workers must be positive")
	}
	if c.Coordinator.AgentID == c.Executor.AgentID {
		return fmt.Errorf("coordinator and executor agent IDs must differ")
	}
	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		return fmt.Errorf("metrics.addr is required when metrics are enabled")
	}
	switch c.Model.Provider {
	case "", "anthropic", "openai":
	default:
		return fmt.Errorf("model.provider must be anthropic or openai, got %q", c.Model.Provider)
	}
	return nil
}
