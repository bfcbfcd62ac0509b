package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 64, cfg.Bus.QueueSize)
	assert.Equal(t, 1000, cfg.Bus.HistorySize)
	assert.Equal(t, 30*time.Second, cfg.Coordinator.RequestTimeout)
	assert.Equal(t, 3, cfg.Coordinator.RetryAttempts)
	assert.Equal(t, 200*time.Millisecond, cfg.Coordinator.RetryBackoff)
	assert.True(t, cfg.Coordinator.ReasoningFallback)
	assert.Equal(t, 4, cfg.Executor.Workers)
	assert.Equal(t, 30*time.Second, cfg.Executor.DefaultTimeout)

	require.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"zero queue size":      func(c *Config) { c.Bus.QueueSize = 0 },
		"zero retry attempts":  func(c *Config) { c.Coordinator.RetryAttempts = 0 },
		"zero request timeout": func(c *Config) { c.Coordinator.RequestTimeout = 0 },
		"zero workers":         func(c *Config) { c.Executor.Workers = 0 },
		"colliding agent ids":  func(c *Config) { c.Executor.AgentID = c.Coordinator.AgentID },
		"unknown provider":     func(c *Config) { c.Model.Provider = "llamacpp" },
		"metrics without addr": func(c *Config) { c.Metrics.Enabled = true; c.Metrics.Addr = "" },
	}

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
