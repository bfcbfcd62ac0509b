package registry

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/nanda/kirana/internal/observability"
	"github.com/rs/zerolog"
)

// Registry stores agent profiles and answers "who can do X"
type Registry struct {
	profiles map[string]*AgentProfile
	seq      int
	logger   zerolog.Logger
	mu       sync.RWMutex
}

// New creates an empty registry
func New(logger zerolog.Logger) *Registry {
	return &Registry{
		profiles: make(map[string]*AgentProfile),
		logger:   logger,
	}
}

// Register adds an agent profile. The profile starts Active with a fresh
// heartbeat unless it already carries health state.
func (r *Registry) Register(profile *AgentProfile) error {
	if profile == nil || profile.AgentID == "" {
		return fmt.Errorf("agent profile requires an agent id")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.profiles[profile.AgentID]; exists {
		return fmt.Errorf("agent already registered: %s", profile.AgentID)
	}

	if profile.Health.State == "" {
		profile.Health = Health{
			LastHeartbeat: time.Now(),
			State:         StateActive,
		}
	}

	r.seq++
	profile.seq = r.seq
	r.profiles[profile.AgentID] = profile

	observability.SetRegisteredAgents(len(r.profiles))
	r.logger.Info().
		Str("agentId", profile.AgentID).
		Str("role", string(profile.Role)).
		Int("capabilities", len(profile.Capabilities)).
		Msg("Agent registered")

	return nil
}

// Unregister removes an agent profile
func (r *Registry) Unregister(agentID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.profiles[agentID]; !exists {
		return
	}
	delete(r.profiles, agentID)

	observability.SetRegisteredAgents(len(r.profiles))
	r.logger.Info().Str("agentId", agentID).Msg("Agent unregistered")
}

// Get returns a profile by agent ID
func (r *Registry) Get(agentID string) (*AgentProfile, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.profiles[agentID]
	return p, ok
}

// List returns all profiles in registration order
func (r *Registry) List() []*AgentProfile {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*AgentProfile, 0, len(r.profiles))
	for _, p := range r.profiles {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

// FindByCapability returns Active agents declaring the capability, ordered
// by priority (higher first) then registration order. Zero matches is a
// normal outcome: the second return value is false and no error is raised.
func (r *Registry) FindByCapability(c Capability) ([]*AgentProfile, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matches []*AgentProfile
	for _, p := range r.profiles {
		if p.Health.State != StateActive {
			continue
		}
		if p.HasCapability(c) {
			matches = append(matches, p)
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Priority != matches[j].Priority {
			return matches[i].Priority > matches[j].Priority
		}
		return matches[i].seq < matches[j].seq
	})

	return matches, len(matches) > 0
}

// Heartbeat refreshes an agent's liveness. An Offline agent becomes Active
// again and is eligible for routing.
func (r *Registry) Heartbeat(agentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, exists := r.profiles[agentID]
	if !exists {
		return fmt.Errorf("agent not registered: %s", agentID)
	}

	p.Health.LastHeartbeat = time.Now()
	if p.Health.State == StateOffline {
		r.logger.Info().Str("agentId", agentID).Msg("Agent back online")
	}
	p.Health.State = StateActive
	return nil
}

// MarkDegraded flags an agent as degraded without removing it
func (r *Registry) MarkDegraded(agentID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p, exists := r.profiles[agentID]; exists {
		p.Health.State = StateDegraded
		r.logger.Warn().Str("agentId", agentID).Msg("Agent marked degraded")
	}
}

// SweepStale marks agents Offline when their last heartbeat is older than
// the threshold. Returns the number of agents transitioned.
func (r *Registry) SweepStale(threshold time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := time.Now().Add(-threshold)
	swept := 0

	for _, p := range r.profiles {
		if p.Health.State == StateOffline {
			continue
		}
		if p.Health.LastHeartbeat.Before(cutoff) {
			p.Health.State = StateOffline
			swept++
			r.logger.Warn().
				Str("agentId", p.AgentID).
				Time("lastHeartbeat", p.Health.LastHeartbeat).
				Msg("Agent marked offline after missed heartbeats")
		}
	}

	return swept
}

// GetStats returns counts of profiles by health state
func (r *Registry) GetStats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := Stats{Total: len(r.profiles)}
	for _, p := range r.profiles {
		switch p.Health.State {
		case StateActive:
			stats.Active++
		case StateDegraded:
			stats.Degraded++
		case StateOffline:
			stats.Offline++
		}
	}
	return stats
}
