package toolkit

import (
	"context"
	"errors"
	"time"
)

// Category groups related tools
type Category string

const (
	CategoryMath   Category = "math"
	CategorySearch Category = "search"
	CategoryCode   Category = "code"
	CategorySystem Category = "system"
	CategoryCustom Category = "custom"
)

// Handler is the function signature for tool execution. The core places no
// constraint on the implementation beyond being invocable with a timeout.
type Handler func(ctx context.Context, params map[string]interface{}) (interface{}, error)

// Parameter defines a parameter for a tool
type Parameter struct {
	Name        string      `json:"name"`
	Type        string      `json:"type"`
	Description string      `json:"description"`
	Required    bool        `json:"required"`
	Default     interface{} `json:"default,omitempty"`
}

// Definition defines a tool's metadata and handler
type Definition struct {
	Name        string      `json:"name"`
	Category    Category    `json:"category"`
	Description string      `json:"description"`
	Parameters  []Parameter `json:"parameters"`
	Handler     Handler     `json:"-"`
}

// ErrorKind classifies tool execution failures for logs and tests. User
// facing output never carries these values.
type ErrorKind string

const (
	KindNone              ErrorKind = ""
	KindToolNotFound      ErrorKind = "tool_not_found"
	KindInvalidParameters ErrorKind = "invalid_parameters"
	KindTimeout           ErrorKind = "timeout"
	KindExecutionError    ErrorKind = "execution_error"
)

// Result represents the outcome of a tool execution
type Result struct {
	Success       bool          `json:"success"`
	Value         interface{}   `json:"value,omitempty"`
	Error         string        `json:"error,omitempty"`
	ErrorKind     ErrorKind     `json:"error_kind,omitempty"`
	ExecutionTime time.Duration `json:"execution_time"`
}

// Stats holds execution counters for one tool or the aggregate
type Stats struct {
	TotalCalls   uint64        `json:"total_calls"`
	SuccessCount uint64        `json:"success_count"`
	FailureCount uint64        `json:"failure_count"`
	TotalTime    time.Duration `json:"total_time"`
}

var (
	// ErrToolNotFound is returned when a tool name is not registered
	ErrToolNotFound = errors.New("tool not found")

	// ErrDuplicateTool is returned when registering an existing tool name
	ErrDuplicateTool = errors.New("tool name already registered")
)
