package agent

import (
	"time"

	"github.com/rs/zerolog"
)

// TaskState tracks a task through the coordinator's lifecycle
type TaskState string

const (
	StateReceived     TaskState = "received"
	StateAnalyzing    TaskState = "analyzing_capabilities"
	StateDelegating   TaskState = "delegating"
	StateAwaiting     TaskState = "awaiting_results"
	StateSynthesizing TaskState = "synthesizing"
	StateCompleted    TaskState = "completed"
	StateFailed       TaskState = "failed"
)

// Answer is the user-facing outcome of a task
type Answer struct {
	Text      string   `json:"text"`
	Success   bool     `json:"success"`
	ToolsUsed []string `json:"tools_used"`
}

// CoordinatorConfig holds coordinator tuning
type CoordinatorConfig struct {
	AgentID           string         `json:"agent_id" mapstructure:"agent_id"`
	RequestTimeout    time.Duration  `json:"request_timeout" mapstructure:"request_timeout"`
	RetryAttempts     int            `json:"retry_attempts" mapstructure:"retry_attempts"`
	RetryBackoff      time.Duration  `json:"retry_backoff" mapstructure:"retry_backoff"`
	ReasoningFallback bool           `json:"reasoning_fallback" mapstructure:"reasoning_fallback"`
	HeartbeatInterval time.Duration  `json:"heartbeat_interval" mapstructure:"heartbeat_interval"`
	Logger            zerolog.Logger `json:"-" mapstructure:"-"`
}

// DefaultCoordinatorConfig returns default coordinator configuration
func DefaultCoordinatorConfig() CoordinatorConfig {
	return CoordinatorConfig{
		AgentID:           "coordinator",
		RequestTimeout:    30 * time.Second,
		RetryAttempts:     3,
		RetryBackoff:      200 * time.Millisecond,
		ReasoningFallback: true,
		HeartbeatInterval: 10 * time.Second,
	}
}

// ExecutorConfig holds tool executor tuning
type ExecutorConfig struct {
	AgentID           string         `json:"agent_id" mapstructure:"agent_id"`
	Workers           int            `json:"workers" mapstructure:"workers"`
	DefaultTimeout    time.Duration  `json:"default_timeout" mapstructure:"default_timeout"`
	HeartbeatInterval time.Duration  `json:"heartbeat_interval" mapstructure:"heartbeat_interval"`
	Logger            zerolog.Logger `json:"-" mapstructure:"-"`
}

// DefaultExecutorConfig returns default executor configuration
func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		AgentID:           "tool-executor",
		Workers:           4,
		DefaultTimeout:    30 * time.Second,
		HeartbeatInterval: 10 * time.Second,
	}
}

// CoordinatorStats counts task outcomes
type CoordinatorStats struct {
	TasksCompleted uint64 `json:"tasks_completed"`
	TasksFailed    uint64 `json:"tasks_failed"`
}

// ExecutorStats counts tool request outcomes
type ExecutorStats struct {
	Processed uint64 `json:"processed"`
	Succeeded uint64 `json:"succeeded"`
	Failed    uint64 `json:"failed"`
	Skipped   uint64 `json:"skipped"`
}
