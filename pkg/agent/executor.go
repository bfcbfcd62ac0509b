package agent

import (
	"context"
	"sync"
	"time"

	"github.com/nanda/kirana/pkg/bus"
	"github.com/nanda/kirana/pkg/registry"
	"github.com/nanda/kirana/pkg/toolkit"
	"github.com/rs/zerolog"
)

// Executor is the tool-calling agent. It consumes ToolRequest messages from
// the bus, runs them on a bounded worker pool, and publishes one ToolResult
// per request carrying the original correlation ID.
type Executor struct {
	cfg    ExecutorConfig
	bus    *bus.Bus
	tools  *toolkit.Manager
	reg    *registry.Registry
	logger zerolog.Logger

	jobs chan *bus.Message
	stop chan struct{}
	once sync.Once
	wg   sync.WaitGroup

	statsMu sync.Mutex
	stats   ExecutorStats
}

// NewExecutor creates a tool executor agent
func NewExecutor(cfg ExecutorConfig, b *bus.Bus, tools *toolkit.Manager, reg *registry.Registry) *Executor {
	def := DefaultExecutorConfig()
	if cfg.AgentID == "" {
		cfg.AgentID = def.AgentID
	}
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = def.DefaultTimeout
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = def.HeartbeatInterval
	}

	return &Executor{
		cfg:    cfg,
		bus:    b,
		tools:  tools,
		reg:    reg,
		logger: cfg.Logger.With().Str("agent", cfg.AgentID).Logger(),
		jobs:   make(chan *bus.Message, cfg.Workers*2),
		stop:   make(chan struct{}),
	}
}

// ID returns the executor's agent ID
func (e *Executor) ID() string {
	return e.cfg.AgentID
}

// Start registers the executor, subscribes it to the bus and launches the
// worker pool and heartbeat loop.
func (e *Executor) Start() error {
	profile := &registry.AgentProfile{
		AgentID:      e.cfg.AgentID,
		Name:         e.cfg.AgentID,
		Role:         registry.RoleToolExecutor,
		Capabilities: e.capabilities(),
	}
	if err := e.reg.Register(profile); err != nil {
		return err
	}

	if err := e.bus.Subscribe(e.cfg.AgentID, e.onMessage); err != nil {
		e.reg.Unregister(e.cfg.AgentID)
		return err
	}

	for i := 0; i < e.cfg.Workers; i++ {
		e.wg.Add(1)
		go e.worker()
	}

	e.wg.Add(1)
	go e.heartbeatLoop()

	e.logger.Info().
		Int("workers", e.cfg.Workers).
		Strs("capabilities", capabilityStrings(profile.Capabilities)).
		Msg("Tool executor started")
	return nil
}

// capabilities derives the advertised capability set from the registered
// tool categories.
func (e *Executor) capabilities() []registry.Capability {
	caps := []registry.Capability{registry.CapabilityToolCalling}
	seen := map[registry.Capability]bool{}

	for _, def := range e.tools.List() {
		var c registry.Capability
		switch def.Category {
		case toolkit.CategoryMath:
			c = registry.CapabilityMath
		case toolkit.CategorySearch:
			c = registry.CapabilitySearch
		case toolkit.CategoryCode:
			c = registry.CapabilityCodeExecution
		default:
			continue
		}
		if !seen[c] {
			seen[c] = true
			caps = append(caps, c)
		}
	}
	return caps
}

func capabilityStrings(caps []registry.Capability) []string {
	out := make([]string, len(caps))
	for i, c := range caps {
		out[i] = string(c)
	}
	return out
}

// onMessage enqueues a job for the worker pool. The send blocks when all
// workers are busy and the backlog is full, which pushes backpressure onto
// the bus queue.
func (e *Executor) onMessage(msg *bus.Message) {
	if msg.Type != bus.TypeToolRequest {
		return
	}
	select {
	case e.jobs <- msg:
	case <-e.stop:
	}
}

func (e *Executor) worker() {
	defer e.wg.Done()

	for {
		select {
		case msg := <-e.jobs:
			e.handle(msg)
		case <-e.stop:
			return
		}
	}
}

// handle runs one tool request and publishes its result
func (e *Executor) handle(msg *bus.Message) {
	req, ok := msg.ToolRequestPayload()
	if !ok {
		e.logger.Warn().Str("messageId", msg.ID).Msg("Malformed tool request payload")
		e.reply(msg, bus.ToolResult{
			Success:   false,
			Error:     "malformed tool request payload",
			ErrorKind: string(toolkit.KindInvalidParameters),
		})
		e.count(func(s *ExecutorStats) { s.Processed++; s.Failed++ })
		return
	}

	// The requester may have timed out or been cancelled while this request
	// sat in the queue; skip the work entirely.
	if msg.CorrelationID != "" && e.bus.IsCancelled(msg.CorrelationID) {
		e.logger.Debug().
			Str("correlationId", msg.CorrelationID).
			Str("tool", req.ToolName).
			Msg("Skipping cancelled tool request")
		e.count(func(s *ExecutorStats) { s.Skipped++ })
		return
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = e.cfg.DefaultTimeout
	}

	res := e.tools.Execute(context.Background(), req.ToolName, req.Parameters, timeout)

	e.count(func(s *ExecutorStats) {
		s.Processed++
		if res.Success {
			s.Succeeded++
		} else {
			s.Failed++
		}
	})

	e.reply(msg, bus.ToolResult{
		ToolName:      req.ToolName,
		Success:       res.Success,
		Value:         res.Value,
		Error:         res.Error,
		ErrorKind:     string(res.ErrorKind),
		ExecutionTime: res.ExecutionTime,
	})
}

// reply publishes a ToolResult back to the requester under the original
// correlation ID. The bus drops it if the correlation was resolved meanwhile.
func (e *Executor) reply(msg *bus.Message, result bus.ToolResult) {
	resp := bus.NewMessage(bus.TypeToolResult, e.cfg.AgentID, msg.SenderID, result)
	resp.CorrelationID = msg.CorrelationID

	if err := e.bus.Publish(resp); err != nil {
		e.logger.Warn().
			Err(err).
			Str("recipient", msg.SenderID).
			Str("tool", result.ToolName).
			Msg("Failed to publish tool result")
	}
}

func (e *Executor) heartbeatLoop() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := e.reg.Heartbeat(e.cfg.AgentID); err != nil {
				e.logger.Warn().Err(err).Msg("Heartbeat failed")
			}
		case <-e.stop:
			return
		}
	}
}

func (e *Executor) count(update func(*ExecutorStats)) {
	e.statsMu.Lock()
	defer e.statsMu.Unlock()
	update(&e.stats)
}

// Stats returns a snapshot of the executor's counters
func (e *Executor) Stats() ExecutorStats {
	e.statsMu.Lock()
	defer e.statsMu.Unlock()
	return e.stats
}

// Close stops the worker pool and removes the executor from the bus and
// registry. Queued but unstarted requests are abandoned; their requesters
// time out.
func (e *Executor) Close() {
	e.once.Do(func() {
		e.bus.Unsubscribe(e.cfg.AgentID)
		e.reg.Unregister(e.cfg.AgentID)
		close(e.stop)
		e.wg.Wait()
		e.logger.Info().Msg("Tool executor stopped")
	})
}
