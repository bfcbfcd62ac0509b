package registry

import "time"

// Role is the closed set of agent roles. Routing never inspects roles
// directly; it goes through capability membership.
type Role string

const (
	RoleCoordinator  Role = "coordinator"
	RoleToolExecutor Role = "tool_executor"
	RoleCustom       Role = "custom"
)

// Capability is a declared skill tag an agent advertises
type Capability string

const (
	CapabilityReasoning     Capability = "reasoning"
	CapabilityToolCalling   Capability = "tool_calling"
	CapabilitySearch        Capability = "search"
	CapabilityCodeExecution Capability = "code_execution"
	CapabilityMath          Capability = "math"
)

// HealthState tracks an agent's liveness
type HealthState string

const (
	StateActive   HealthState = "active"
	StateDegraded HealthState = "degraded"
	StateOffline  HealthState = "offline"
)

// Health holds an agent's heartbeat bookkeeping
type Health struct {
	LastHeartbeat time.Time   `json:"last_heartbeat"`
	State         HealthState `json:"state"`
}

// AgentProfile describes an agent registered with the system
type AgentProfile struct {
	AgentID      string       `json:"agent_id"`
	Name         string       `json:"name"`
	Role         Role         `json:"role"`
	Capabilities []Capability `json:"capabilities"`
	ModelBinding interface{}  `json:"-"` // opaque handle, never inspected here
	Priority     int          `json:"priority"`
	Health       Health       `json:"health"`

	// seq is the registration order, used as the stable tie-break
	seq int
}

// HasCapability reports whether the profile declares a capability
func (p *AgentProfile) HasCapability(c Capability) bool {
	for _, have := range p.Capabilities {
		if have == c {
			return true
		}
	}
	return false
}

// Stats summarizes registry contents by health state
type Stats struct {
	Total    int
	Active   int
	Degraded int
	Offline  int
}
