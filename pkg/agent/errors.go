package agent

import "errors"

var (
	// ErrParameterExtraction is returned when a tool was selected but its
	// parameters could not be derived from the query text
	ErrParameterExtraction = errors.New("parameter extraction failed")

	// ErrNoAgentAvailable is returned when no active agent advertises the
	// capability a task needs
	ErrNoAgentAvailable = errors.New("no agent available")

	// ErrDelegationFailed is returned when every delegation attempt for a
	// tool was exhausted
	ErrDelegationFailed = errors.New("delegation failed")

	// ErrSynthesisFailure is returned when no tool produced a result and no
	// reasoning fallback is configured
	ErrSynthesisFailure = errors.New("synthesis failed")
)
