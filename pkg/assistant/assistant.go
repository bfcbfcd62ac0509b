package assistant

import (
	"context"
	"fmt"
	"net/http"

	"github.com/nanda/kirana/internal/config"
	"github.com/nanda/kirana/internal/observability"
	"github.com/nanda/kirana/pkg/agent"
	"github.com/nanda/kirana/pkg/bus"
	"github.com/nanda/kirana/pkg/history"
	"github.com/nanda/kirana/pkg/maintenance"
	"github.com/nanda/kirana/pkg/model"
	"github.com/nanda/kirana/pkg/registry"
	"github.com/nanda/kirana/pkg/toolkit"
	"github.com/rs/zerolog"
)

// ContextProvider supplies background snippets for a query, such as memory
// retrieval. Failures degrade gracefully: the query proceeds without
// context.
type ContextProvider interface {
	Retrieve(ctx context.Context, userID, query string) ([]string, error)
}

// Options tunes assembly beyond the file configuration
type Options struct {
	Logger zerolog.Logger

	// InMemoryHistory forces the in-memory store regardless of the
	// configured path. Used by tests and the one-shot CLI path.
	InMemoryHistory bool

	// ExtraTools are registered before the executor starts so their
	// categories count toward its advertised capabilities.
	ExtraTools []toolkit.Definition

	// Provider is the optional context provider
	Provider ContextProvider
}

// Assistant owns the orchestration core: bus, registry, toolkit, the two
// agents, persistence and upkeep.
type Assistant struct {
	cfg      *config.Config
	logger   zerolog.Logger
	bus      *bus.Bus
	registry *registry.Registry
	tools    *toolkit.Manager
	coord    *agent.Coordinator
	executor *agent.Executor
	store    history.Store
	janitor  *maintenance.Janitor
	provider ContextProvider
}

// New assembles and starts an assistant from configuration
func New(cfg *config.Config, opts Options) (*Assistant, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := opts.Logger

	b := bus.New(bus.Config{
		QueueSize:   cfg.Bus.QueueSize,
		HistorySize: cfg.Bus.HistorySize,
		Logger:      logger,
	})
	reg := registry.New(logger)

	tools := toolkit.NewManager()
	if err := toolkit.RegisterBuiltinToolkits(tools); err != nil {
		b.Close()
		return nil, err
	}
	for _, def := range opts.ExtraTools {
		if err := tools.Register(def); err != nil {
			b.Close()
			return nil, err
		}
	}

	var binding model.Binding
	if cfg.Model.APIKey != "" {
		var err error
		binding, err = model.New(cfg.Model)
		if err != nil {
			b.Close()
			return nil, err
		}
	}

	coord := agent.NewCoordinator(agent.CoordinatorConfig{
		AgentID:           cfg.Coordinator.AgentID,
		RequestTimeout:    cfg.Coordinator.RequestTimeout,
		RetryAttempts:     cfg.Coordinator.RetryAttempts,
		RetryBackoff:      cfg.Coordinator.RetryBackoff,
		ReasoningFallback: cfg.Coordinator.ReasoningFallback,
		Logger:            logger,
	}, b, reg, binding)

	executor := agent.NewExecutor(agent.ExecutorConfig{
		AgentID:        cfg.Executor.AgentID,
		Workers:        cfg.Executor.Workers,
		DefaultTimeout: cfg.Executor.DefaultTimeout,
		Logger:         logger,
	}, b, tools, reg)

	if err := coord.Start(); err != nil {
		b.Close()
		return nil, fmt.Errorf("failed to start coordinator: %w", err)
	}
	if err := executor.Start(); err != nil {
		coord.Close()
		b.Close()
		return nil, fmt.Errorf("failed to start executor: %w", err)
	}

	var store history.Store
	if opts.InMemoryHistory || cfg.History.Path == "" {
		store = history.NewMemoryStore()
	} else {
		var err error
		store, err = history.OpenSQLite(cfg.History.Path, logger)
		if err != nil {
			executor.Close()
			coord.Close()
			b.Close()
			return nil, err
		}
	}

	janitor := maintenance.New(maintenance.Config{
		SweepSpec:  cfg.Maintenance.SweepSpec,
		PruneSpec:  cfg.Maintenance.PruneSpec,
		StaleAfter: cfg.Maintenance.StaleAfter,
		RetainFor:  cfg.History.RetainFor,
		Logger:     logger,
	}, reg, store)
	if err := janitor.Start(); err != nil {
		store.Close()
		executor.Close()
		coord.Close()
		b.Close()
		return nil, err
	}

	logger.Info().Msg("Assistant assembled")
	return &Assistant{
		cfg:      cfg,
		logger:   logger,
		bus:      b,
		registry: reg,
		tools:    tools,
		coord:    coord,
		executor: executor,
		store:    store,
		janitor:  janitor,
		provider: opts.Provider,
	}, nil
}

// Ask runs one query end to end and returns the synthesized answer
func (a *Assistant) Ask(ctx context.Context, userID, query string) (agent.Answer, error) {
	var extra []string
	if a.provider != nil {
		snippets, err := a.provider.Retrieve(ctx, userID, query)
		if err != nil {
			// Context retrieval is best-effort; the query proceeds without it.
			a.logger.Warn().Err(err).Str("userId", userID).Msg("Context retrieval failed")
		} else {
			extra = snippets
		}
	}

	answer, err := a.coord.HandleQuery(ctx, userID, query, extra)
	if err != nil {
		return answer, err
	}

	if err := a.store.Append(ctx, history.Record{
		UserID:    userID,
		Query:     query,
		Answer:    answer.Text,
		Success:   answer.Success,
		ToolsUsed: answer.ToolsUsed,
	}); err != nil {
		a.logger.Warn().Err(err).Msg("Failed to persist exchange")
	}
	return answer, nil
}

// RegisterTool adds a tool and, optionally, a parameter extractor for it.
// Tools added after startup are routable via the generic tool-calling
// capability.
func (a *Assistant) RegisterTool(def toolkit.Definition, extractor agent.Extractor) error {
	if err := a.tools.Register(def); err != nil {
		return err
	}
	if extractor != nil {
		a.coord.Extractors().Register(def.Name, extractor)
	}
	return nil
}

// History returns a user's recent persisted exchanges, oldest first
func (a *Assistant) History(ctx context.Context, userID string, limit int) ([]history.Record, error) {
	return a.store.Recent(ctx, userID, limit)
}

// ClearSession drops a user's conversation state and cancels their
// in-flight work.
func (a *Assistant) ClearSession(userID string) {
	a.coord.ClearSession(userID)
}

// Tools exposes the tool manager for inspection
func (a *Assistant) Tools() *toolkit.Manager {
	return a.tools
}

// Registry exposes the agent registry for inspection
func (a *Assistant) Registry() *registry.Registry {
	return a.registry
}

// Stats is a point-in-time snapshot across the core
type Stats struct {
	Bus         bus.Stats              `json:"bus"`
	Agents      registry.Stats         `json:"agents"`
	Coordinator agent.CoordinatorStats `json:"coordinator"`
	Executor    agent.ExecutorStats    `json:"executor"`
	Tools       toolkit.Stats          `json:"tools"`
}

// Stats returns a snapshot across the core
func (a *Assistant) Stats() Stats {
	return Stats{
		Bus:         a.bus.Stats(),
		Agents:      a.registry.GetStats(),
		Coordinator: a.coord.Stats(),
		Executor:    a.executor.Stats(),
		Tools:       a.tools.AggregateStats(),
	}
}

// MetricsHandler returns the Prometheus scrape handler
func (a *Assistant) MetricsHandler() http.Handler {
	return observability.Handler()
}

// Close shuts the core down in dependency order
func (a *Assistant) Close() error {
	a.janitor.Stop()
	a.coord.Close()
	a.executor.Close()
	err := a.bus.Close()
	if storeErr := a.store.Close(); err == nil {
		err = storeErr
	}
	a.logger.Info().Msg("Assistant closed")
	return err
}
