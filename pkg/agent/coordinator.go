package agent

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nanda/kirana/internal/observability"
	"github.com/nanda/kirana/pkg/bus"
	"github.com/nanda/kirana/pkg/model"
	"github.com/nanda/kirana/pkg/registry"
	"github.com/rs/zerolog"
)

const reasoningSystem = "You are the coordinator of a personal assistant. " +
	"No tool was available for the task, so answer the user directly and concisely."

// Coordinator is the planning agent. It analyzes a query, selects tools,
// delegates each one over the bus, and synthesizes a single answer from the
// results in selection order.
type Coordinator struct {
	cfg        CoordinatorConfig
	bus        *bus.Bus
	reg        *registry.Registry
	binding    model.Binding // optional reasoning fallback
	signatures []Signature
	extractors *ExtractorTable
	sessions   *SessionStore
	logger     zerolog.Logger

	stop chan struct{}
	once sync.Once
	wg   sync.WaitGroup

	statsMu sync.Mutex
	stats   CoordinatorStats
}

// delegation tracks one selected tool through extraction, delegation and
// synthesis.
type delegation struct {
	sel    Selection
	params map[string]interface{}
	note   string
	result bus.ToolResult
	done   bool
}

// NewCoordinator creates a coordinator agent. binding may be nil; reasoning
// fallback then uses a deterministic local answer.
func NewCoordinator(cfg CoordinatorConfig, b *bus.Bus, reg *registry.Registry, binding model.Binding) *Coordinator {
	def := DefaultCoordinatorConfig()
	if cfg.AgentID == "" {
		cfg.AgentID = def.AgentID
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = def.RequestTimeout
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = def.RetryAttempts
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = def.RetryBackoff
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = def.HeartbeatInterval
	}

	return &Coordinator{
		cfg:        cfg,
		bus:        b,
		reg:        reg,
		binding:    binding,
		signatures: DefaultSignatures(),
		extractors: DefaultExtractors(),
		sessions:   NewSessionStore(),
		logger:     cfg.Logger.With().Str("agent", cfg.AgentID).Logger(),
		stop:       make(chan struct{}),
	}
}

// ID returns the coordinator's agent ID
func (c *Coordinator) ID() string {
	return c.cfg.AgentID
}

// Extractors exposes the parameter extractor table so external toolkits can
// register extractors for their tools.
func (c *Coordinator) Extractors() *ExtractorTable {
	return c.extractors
}

// Start registers the coordinator and subscribes it to the bus
func (c *Coordinator) Start() error {
	caps := []registry.Capability{registry.CapabilityReasoning}
	profile := &registry.AgentProfile{
		AgentID:      c.cfg.AgentID,
		Name:         c.cfg.AgentID,
		Role:         registry.RoleCoordinator,
		Capabilities: caps,
	}
	if c.binding != nil {
		profile.ModelBinding = c.binding
	}
	if err := c.reg.Register(profile); err != nil {
		return err
	}

	if err := c.bus.Subscribe(c.cfg.AgentID, c.onMessage); err != nil {
		c.reg.Unregister(c.cfg.AgentID)
		return err
	}

	c.wg.Add(1)
	go c.heartbeatLoop()

	c.logger.Info().Msg("Coordinator started")
	return nil
}

// onMessage answers queries and requests that arrive over the bus. Each
// task runs in its own goroutine so the bus consumer loop never blocks on
// delegation round-trips.
func (c *Coordinator) onMessage(msg *bus.Message) {
	if msg.Type != bus.TypeUserQuery && msg.Type != bus.TypeAgentRequest {
		return
	}

	req, ok := msg.AgentRequestPayload()
	if !ok {
		if text, isText := msg.Payload.(string); isText {
			req = bus.AgentRequest{TaskDescription: text}
		} else {
			c.logger.Warn().Str("messageId", msg.ID).Msg("Malformed request payload")
			return
		}
	}

	go func() {
		answer, err := c.handleTask(context.Background(), msg.SenderID, req)
		if err != nil {
			c.logger.Error().Err(err).Str("messageId", msg.ID).Msg("Task failed")
			answer = Answer{Text: "Something went wrong while handling the request.", Success: false}
		}

		resp := bus.NewMessage(bus.TypeAgentResponse, c.cfg.AgentID, msg.SenderID, bus.AgentResponse{
			Result:     answer.Text,
			Confidence: confidenceFor(answer),
			ToolsUsed:  answer.ToolsUsed,
			Success:    answer.Success,
		})
		resp.CorrelationID = msg.CorrelationID
		if err := c.bus.Publish(resp); err != nil {
			c.logger.Warn().Err(err).Str("recipient", msg.SenderID).Msg("Failed to publish response")
		}
	}()
}

func confidenceFor(answer Answer) float64 {
	switch {
	case answer.Success && len(answer.ToolsUsed) > 0:
		return 0.9
	case answer.Success:
		return 0.5
	default:
		return 0.1
	}
}

// HandleQuery runs one user query end to end and returns the synthesized
// answer. extraContext is prepended knowledge from outside the core, such
// as memory retrieval; it may be nil.
func (c *Coordinator) HandleQuery(ctx context.Context, userID, query string, extraContext []string) (Answer, error) {
	return c.handleTask(ctx, userID, bus.AgentRequest{
		TaskDescription: query,
		Context:         extraContext,
	})
}

func (c *Coordinator) handleTask(ctx context.Context, userID string, req bus.AgentRequest) (Answer, error) {
	taskID := uuid.NewString()
	start := time.Now()
	logger := c.logger.With().Str("taskId", taskID).Str("userId", userID).Logger()

	setState := func(s TaskState) {
		logger.Debug().Str("state", string(s)).Msg("Task state")
	}
	setState(StateReceived)

	setState(StateAnalyzing)
	var selections []Selection
	if len(req.RequiredTools) > 0 {
		// Explicitly requested tools bypass signature analysis.
		for _, name := range req.RequiredTools {
			selections = append(selections, Selection{Tool: name, Capability: registry.CapabilityToolCalling})
		}
	} else {
		selections = AnalyzeQuery(req.TaskDescription, c.signatures)
	}
	logger.Debug().Int("selections", len(selections)).Msg("Query analyzed")

	session := c.sessions.Get(userID)

	dels := make([]*delegation, len(selections))
	for i, sel := range selections {
		d := &delegation{sel: sel}
		switch {
		case sel.Tool == "":
			d.note = fmt.Sprintf("I couldn't determine which %s operation to run.", sel.Capability)
		default:
			params, err := c.extractors.Extract(sel.Tool, req.TaskDescription)
			if err != nil {
				logger.Warn().Err(err).Str("tool", sel.Tool).Msg("Parameter extraction failed")
				d.note = fmt.Sprintf("I couldn't work out the parameters for %s.", sel.Tool)
			} else {
				d.params = params
			}
		}
		dels[i] = d
	}

	setState(StateDelegating)
	var wg sync.WaitGroup
	for _, d := range dels {
		if d.params == nil {
			continue
		}
		wg.Add(1)
		go func(d *delegation) {
			defer wg.Done()
			result, err := c.delegate(ctx, session, d.sel, d.params, logger)
			if err != nil {
				d.note = delegationNote(d.sel.Tool, err)
				return
			}
			d.result = result
			d.done = true
		}(d)
	}

	setState(StateAwaiting)
	wg.Wait()

	setState(StateSynthesizing)
	answer := c.synthesize(ctx, req, dels, logger)

	session.Append(req.TaskDescription, answer.Text, answer.Success)

	final := StateCompleted
	if !answer.Success {
		final = StateFailed
	}
	setState(final)

	c.statsMu.Lock()
	if answer.Success {
		c.stats.TasksCompleted++
	} else {
		c.stats.TasksFailed++
	}
	c.statsMu.Unlock()
	observability.RecordTask(string(final), time.Since(start))

	logger.Info().
		Str("state", string(final)).
		Strs("toolsUsed", answer.ToolsUsed).
		Dur("duration", time.Since(start)).
		Msg("Task finished")
	return answer, nil
}

// delegate routes one tool call to a capable agent and waits for its
// result, retrying timeouts with exponential backoff. Every attempt uses a
// fresh correlation ID; the bus already resolved the previous one on
// timeout, so a late result for it is discarded rather than double-counted.
func (c *Coordinator) delegate(ctx context.Context, session *Session, sel Selection, params map[string]interface{}, logger zerolog.Logger) (bus.ToolResult, error) {
	candidates, ok := c.reg.FindByCapability(sel.Capability)
	if !ok && sel.Capability != registry.CapabilityToolCalling {
		candidates, ok = c.reg.FindByCapability(registry.CapabilityToolCalling)
	}
	if !ok {
		return bus.ToolResult{}, fmt.Errorf("%w: capability %s", ErrNoAgentAvailable, sel.Capability)
	}
	target := candidates[0].AgentID

	backoff := c.cfg.RetryBackoff
	var lastErr error

	for attempt := 1; attempt <= c.cfg.RetryAttempts; attempt++ {
		msg := bus.NewMessage(bus.TypeToolRequest, c.cfg.AgentID, target, bus.ToolRequest{
			ToolName:   sel.Tool,
			Parameters: params,
			Timeout:    c.cfg.RequestTimeout,
		})
		msg.CorrelationID = bus.NewCorrelationID()

		session.TrackCorrelation(msg.CorrelationID)
		resp, err := c.bus.Request(ctx, msg, c.cfg.RequestTimeout)
		session.ReleaseCorrelation(msg.CorrelationID)

		if err == nil {
			result, isResult := resp.ToolResultPayload()
			if !isResult {
				return bus.ToolResult{}, fmt.Errorf("%w: unexpected payload from %s", ErrDelegationFailed, target)
			}
			return result, nil
		}

		lastErr = err
		if !errors.Is(err, bus.ErrResponseTimeout) && !errors.Is(err, bus.ErrBusFull) {
			return bus.ToolResult{}, err
		}

		logger.Warn().
			Err(err).
			Int("attempt", attempt).
			Str("tool", sel.Tool).
			Str("target", target).
			Msg("Delegation attempt failed")

		if attempt < c.cfg.RetryAttempts {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return bus.ToolResult{}, ctx.Err()
			}
			backoff *= 2
		}
	}

	return bus.ToolResult{}, fmt.Errorf("%w: %s after %d attempts: %v",
		ErrDelegationFailed, sel.Tool, c.cfg.RetryAttempts, lastErr)
}

func delegationNote(tool string, err error) string {
	switch {
	case errors.Is(err, ErrNoAgentAvailable):
		return fmt.Sprintf("No agent was available to run %s.", tool)
	case errors.Is(err, bus.ErrNoSubscriber):
		return fmt.Sprintf("No agent was listening for %s.", tool)
	case errors.Is(err, bus.ErrRequestCancelled):
		return fmt.Sprintf("The %s request was cancelled.", tool)
	default:
		return fmt.Sprintf("The %s tool did not respond in time.", tool)
	}
}

// synthesize composes the final answer from delegation outcomes in
// selection order. Partial failures become notes in the answer; if nothing
// succeeded, the task falls back to reasoning.
func (c *Coordinator) synthesize(ctx context.Context, req bus.AgentRequest, dels []*delegation, logger zerolog.Logger) Answer {
	var parts, notes []string
	toolsUsed := []string{}

	for _, d := range dels {
		switch {
		case d.done && d.result.Success:
			toolsUsed = append(toolsUsed, d.sel.Tool)
			parts = append(parts, fmt.Sprintf("The result of %s is %s.", d.sel.Tool, formatValue(d.result.Value)))
		case d.done:
			notes = append(notes, fmt.Sprintf("The %s tool failed: %s.", d.sel.Tool, d.result.Error))
		case d.note != "":
			notes = append(notes, d.note)
		}
	}

	if len(toolsUsed) > 0 {
		return Answer{
			Text:      strings.Join(append(parts, notes...), " "),
			Success:   true,
			ToolsUsed: toolsUsed,
		}
	}

	// No tool produced a result; answer from reasoning instead.
	if c.binding != nil {
		text, err := c.binding.Complete(ctx, reasoningSystem, reasoningPrompt(req))
		if err != nil {
			logger.Warn().Err(err).Str("model", c.binding.Name()).Msg("Reasoning fallback failed")
		} else if strings.TrimSpace(text) != "" {
			return Answer{Text: text, Success: true, ToolsUsed: toolsUsed}
		}
	}

	if c.cfg.ReasoningFallback {
		return Answer{Text: fallbackText(req, notes), Success: true, ToolsUsed: toolsUsed}
	}

	logger.Error().Err(ErrSynthesisFailure).Msg("No result and no reasoning fallback")
	if len(notes) == 0 {
		notes = append(notes, "I couldn't produce an answer for this request.")
	}
	return Answer{Text: strings.Join(notes, " "), Success: false, ToolsUsed: toolsUsed}
}

func reasoningPrompt(req bus.AgentRequest) string {
	if len(req.Context) == 0 {
		return req.TaskDescription
	}
	return fmt.Sprintf("Context:\n%s\n\nTask: %s", strings.Join(req.Context, "\n"), req.TaskDescription)
}

func fallbackText(req bus.AgentRequest, notes []string) string {
	var sb strings.Builder
	for _, snippet := range req.Context {
		sb.WriteString(snippet)
		sb.WriteString(" ")
	}
	for _, note := range notes {
		sb.WriteString(note)
		sb.WriteString(" ")
	}
	sb.WriteString(fmt.Sprintf("I couldn't use any tools for %q, so take this as my best direct answer.", req.TaskDescription))
	return strings.TrimSpace(sb.String())
}

// formatValue renders a tool result value for the answer text. Floats drop
// their trailing zeros so 345.0 reads as 345.
func formatValue(v interface{}) string {
	switch n := v.(type) {
	case float64:
		return strconv.FormatFloat(n, 'f', -1, 64)
	case string:
		return n
	default:
		return fmt.Sprintf("%v", n)
	}
}

// SessionHistory returns a copy of a user's conversation history
func (c *Coordinator) SessionHistory(userID string) []Exchange {
	return c.sessions.Get(userID).History()
}

// ClearSession cancels a user's in-flight delegations and drops their
// conversation state.
func (c *Coordinator) ClearSession(userID string) {
	session, ok := c.sessions.Remove(userID)
	if !ok {
		return
	}
	for _, id := range session.OpenCorrelations() {
		c.bus.Cancel(id)
	}
	c.logger.Info().Str("userId", userID).Msg("Session cleared")
}

// Stats returns a snapshot of the coordinator's counters
func (c *Coordinator) Stats() CoordinatorStats {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	return c.stats
}

func (c *Coordinator) heartbeatLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := c.reg.Heartbeat(c.cfg.AgentID); err != nil {
				c.logger.Warn().Err(err).Msg("Heartbeat failed")
			}
		case <-c.stop:
			return
		}
	}
}

// Close removes the coordinator from the bus and registry
func (c *Coordinator) Close() {
	c.once.Do(func() {
		c.bus.Unsubscribe(c.cfg.AgentID)
		c.reg.Unregister(c.cfg.AgentID)
		close(c.stop)
		c.wg.Wait()
		c.logger.Info().Msg("Coordinator stopped")
	})
}
