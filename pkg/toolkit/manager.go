package toolkit

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/nanda/kirana/internal/observability"
	"github.com/rs/zerolog/log"
	"github.com/xeipuuv/gojsonschema"
)

// Manager registers invocable tools and executes them with timeout and
// statistics tracking. Tool names are globally unique.
type Manager struct {
	tools     map[string]*Definition
	schemas   map[string]*gojsonschema.Schema
	stats     map[string]*Stats
	aggregate Stats
	mu        sync.RWMutex
}

// NewManager creates an empty tool manager
func NewManager() *Manager {
	observability.EnsureRegistered()

	return &Manager{
		tools:   make(map[string]*Definition),
		schemas: make(map[string]*gojsonschema.Schema),
		stats:   make(map[string]*Stats),
	}
}

// Register adds a tool. Duplicate names are rejected with ErrDuplicateTool.
// The parameter schema is generated and compiled once at registration.
func (m *Manager) Register(def Definition) error {
	if err := validateDefinition(def); err != nil {
		return fmt.Errorf("invalid tool definition: %w", err)
	}

	schema, err := generateSchema(def)
	if err != nil {
		return fmt.Errorf("failed to generate schema for %s: %w", def.Name, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.tools[def.Name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateTool, def.Name)
	}

	m.tools[def.Name] = &def
	m.schemas[def.Name] = schema
	m.stats[def.Name] = &Stats{}

	log.Info().Str("tool", def.Name).Str("category", string(def.Category)).Msg("Tool registered")
	return nil
}

// Unregister removes a tool and its counters. Unknown names are rejected
// with ErrToolNotFound.
func (m *Manager) Unregister(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.tools[name]; !ok {
		return fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}

	delete(m.tools, name)
	delete(m.schemas, name)
	delete(m.stats, name)

	log.Info().Str("tool", name).Msg("Tool unregistered")
	return nil
}

// Get returns a tool definition by name
func (m *Manager) Get(name string) (*Definition, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	def, ok := m.tools[name]
	return def, ok
}

// List returns all registered tool definitions sorted by name
func (m *Manager) List() []*Definition {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Definition, 0, len(m.tools))
	for _, def := range m.tools {
		out = append(out, def)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Search returns tools whose name or description contains the query
func (m *Manager) Search(query string) []*Definition {
	query = strings.ToLower(query)

	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Definition
	for _, def := range m.tools {
		if strings.Contains(strings.ToLower(def.Name), query) ||
			strings.Contains(strings.ToLower(def.Description), query) {
			out = append(out, def)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ByCategory returns tools in a category sorted by name
func (m *Manager) ByCategory(category Category) []*Definition {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Definition
	for _, def := range m.tools {
		if def.Category == category {
			out = append(out, def)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Execute runs a tool under a timeout guard and returns a structured result.
// An unknown tool fails fast with KindToolNotFound and leaves all counters
// untouched. A handler panic or error never escapes the call.
func (m *Manager) Execute(ctx context.Context, name string, params map[string]interface{}, timeout time.Duration) Result {
	m.mu.RLock()
	def := m.tools[name]
	schema := m.schemas[name]
	m.mu.RUnlock()

	if def == nil {
		log.Warn().Str("tool", name).Msg("Tool not found")
		return Result{
			Success:   false,
			Error:     fmt.Sprintf("tool not found: %s", name),
			ErrorKind: KindToolNotFound,
		}
	}

	start := time.Now()

	if err := validateParams(schema, params); err != nil {
		elapsed := time.Since(start)
		m.record(name, false, elapsed)
		log.Warn().Str("tool", name).Err(err).Msg("Parameter validation failed")
		return Result{
			Success:       false,
			Error:         fmt.Sprintf("parameter validation failed: %v", err),
			ErrorKind:     KindInvalidParameters,
			ExecutionTime: elapsed,
		}
	}

	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resultChan := make(chan interface{}, 1)
	errChan := make(chan error, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				errChan <- fmt.Errorf("tool handler panicked: %v", r)
			}
		}()
		value, err := def.Handler(timeoutCtx, params)
		if err != nil {
			errChan <- err
		} else {
			resultChan <- value
		}
	}()

	select {
	case value := <-resultChan:
		elapsed := time.Since(start)
		m.record(name, true, elapsed)
		observability.RecordToolExecution(name, elapsed, true)
		log.Debug().Str("tool", name).Dur("duration", elapsed).Msg("Tool execution completed")
		return Result{
			Success:       true,
			Value:         value,
			ExecutionTime: elapsed,
		}

	case err := <-errChan:
		elapsed := time.Since(start)
		m.record(name, false, elapsed)
		observability.RecordToolExecution(name, elapsed, false)

		// A handler that surfaces the deadline itself still counts as a timeout.
		kind := KindExecutionError
		if timeoutCtx.Err() != nil && errors.Is(err, context.DeadlineExceeded) {
			kind = KindTimeout
		}

		log.Error().Str("tool", name).Dur("duration", elapsed).Err(err).Msg("Tool execution failed")
		return Result{
			Success:       false,
			Error:         err.Error(),
			ErrorKind:     kind,
			ExecutionTime: elapsed,
		}

	case <-timeoutCtx.Done():
		elapsed := time.Since(start)
		m.record(name, false, elapsed)
		observability.RecordToolExecution(name, elapsed, false)
		log.Error().Str("tool", name).Dur("timeout", timeout).Msg("Tool execution timed out")
		return Result{
			Success:       false,
			Error:         fmt.Sprintf("tool execution timed out after %v", timeout),
			ErrorKind:     KindTimeout,
			ExecutionTime: elapsed,
		}
	}
}

// record applies one atomic counter update per call so concurrent
// executions never corrupt counts.
func (m *Manager) record(name string, success bool, elapsed time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats, ok := m.stats[name]
	if !ok {
		// tool was unregistered mid-flight
		return
	}

	stats.TotalCalls++
	stats.TotalTime += elapsed
	m.aggregate.TotalCalls++
	m.aggregate.TotalTime += elapsed

	if success {
		stats.SuccessCount++
		m.aggregate.SuccessCount++
	} else {
		stats.FailureCount++
		m.aggregate.FailureCount++
	}
}

// GetStats returns counters for one tool
func (m *Manager) GetStats(name string) (Stats, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats, ok := m.stats[name]
	if !ok {
		return Stats{}, false
	}
	return *stats, true
}

// AggregateStats returns counters across all tools
func (m *Manager) AggregateStats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.aggregate
}

// validateDefinition checks a tool definition before registration
func validateDefinition(def Definition) error {
	if def.Name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}
	if def.Description == "" {
		return fmt.Errorf("tool description cannot be empty")
	}
	if def.Handler == nil {
		return fmt.Errorf("tool handler cannot be nil")
	}

	validTypes := map[string]bool{
		"string": true, "number": true, "boolean": true,
		"object": true, "array": true, "integer": true,
	}
	for _, param := range def.Parameters {
		if param.Name == "" {
			return fmt.Errorf("parameter name cannot be empty")
		}
		if !validTypes[param.Type] {
			return fmt.Errorf("invalid parameter type %s for %s", param.Type, param.Name)
		}
	}

	return nil
}

// generateSchema builds a JSON Schema from tool parameters
func generateSchema(def Definition) (*gojsonschema.Schema, error) {
	properties := make(map[string]interface{})
	required := []string{}

	for _, param := range def.Parameters {
		paramSchema := map[string]interface{}{
			"type": param.Type,
		}
		if param.Description != "" {
			paramSchema["description"] = param.Description
		}
		if param.Default != nil {
			paramSchema["default"] = param.Default
		}
		properties[param.Name] = paramSchema

		if param.Required {
			required = append(required, param.Name)
		}
	}

	schemaMap := map[string]interface{}{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           properties,
	}
	if len(required) > 0 {
		schemaMap["required"] = required
	}

	return gojsonschema.NewSchema(gojsonschema.NewGoLoader(schemaMap))
}

// validateParams validates parameters against a compiled schema
func validateParams(schema *gojsonschema.Schema, params map[string]interface{}) error {
	if schema == nil {
		return nil
	}
	if params == nil {
		params = map[string]interface{}{}
	}

	result, err := schema.Validate(gojsonschema.NewGoLoader(params))
	if err != nil {
		return err
	}

	if !result.Valid() {
		var errs []string
		for _, e := range result.Errors() {
			errs = append(errs, e.String())
		}
		return fmt.Errorf("validation errors: %v", errs)
	}

	return nil
}
