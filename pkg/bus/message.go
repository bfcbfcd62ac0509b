package bus

import (
	"time"

	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Type identifies the kind of message on the bus
type Type string

const (
	TypeUserQuery     Type = "user_query"
	TypeAgentRequest  Type = "agent_request"
	TypeAgentResponse Type = "agent_response"
	TypeToolRequest   Type = "tool_request"
	TypeToolResult    Type = "tool_result"
	TypeHeartbeat     Type = "heartbeat"
	TypeError         Type = "error"
)

// IsResponse reports whether messages of this type resolve a pending request
func (t Type) IsResponse() bool {
	return t == TypeAgentResponse || t == TypeToolResult
}

// Priority orders messages of equal standing for observability purposes
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityUrgent
)

// Status tracks message delivery state
type Status string

const (
	StatusPending   Status = "pending"
	StatusDelivered Status = "delivered"
	StatusExpired   Status = "expired"
)

// Message is the unit of communication between agents
type Message struct {
	ID            string      `json:"id"`
	Type          Type        `json:"type"`
	SenderID      string      `json:"sender_id"`
	RecipientID   string      `json:"recipient_id,omitempty"`
	Broadcast     bool        `json:"broadcast,omitempty"`
	CorrelationID string      `json:"correlation_id,omitempty"`
	Payload       interface{} `json:"payload,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
	Priority      Priority    `json:"priority"`
	Status        Status      `json:"status"`
}

// AgentRequest asks another agent to perform a task
type AgentRequest struct {
	TaskDescription      string            `json:"task_description"`
	RequiredCapabilities []string          `json:"required_capabilities,omitempty"`
	RequiredTools        []string          `json:"required_tools,omitempty"`
	Context              []string          `json:"context,omitempty"`
	Metadata             map[string]string `json:"metadata,omitempty"`
}

// AgentResponse carries an agent's answer to an AgentRequest
type AgentResponse struct {
	Result     string   `json:"result"`
	Confidence float64  `json:"confidence"`
	ToolsUsed  []string `json:"tools_used,omitempty"`
	Success    bool     `json:"success"`
}

// ToolRequest asks a tool-capable agent to execute one tool
type ToolRequest struct {
	ToolName   string                 `json:"tool_name"`
	Parameters map[string]interface{} `json:"parameters,omitempty"`
	Timeout    time.Duration          `json:"timeout,omitempty"`
}

// ToolResult carries the outcome of a single tool execution
type ToolResult struct {
	ToolName      string        `json:"tool_name"`
	Success       bool          `json:"success"`
	Value         interface{}   `json:"value,omitempty"`
	Error         string        `json:"error,omitempty"`
	ErrorKind     string        `json:"error_kind,omitempty"`
	ExecutionTime time.Duration `json:"execution_time"`
}

// NewMessage creates a message addressed to a single recipient
func NewMessage(t Type, senderID, recipientID string, payload interface{}) *Message {
	return &Message{
		ID:          uuid.NewString(),
		Type:        t,
		SenderID:    senderID,
		RecipientID: recipientID,
		Payload:     payload,
		CreatedAt:   time.Now(),
		Priority:    PriorityNormal,
		Status:      StatusPending,
	}
}

// NewBroadcast creates a message addressed to every subscriber
func NewBroadcast(t Type, senderID string, payload interface{}) *Message {
	m := NewMessage(t, senderID, "", payload)
	m.Broadcast = true
	return m
}

// NewCorrelationID generates an identifier threading a request to its response
func NewCorrelationID() string {
	id, err := gonanoid.New()
	if err != nil {
		// nanoid only fails if the entropy source does; fall back to uuid
		return uuid.NewString()
	}
	return id
}

// ToolRequestPayload extracts a ToolRequest payload if present
func (m *Message) ToolRequestPayload() (ToolRequest, bool) {
	req, ok := m.Payload.(ToolRequest)
	return req, ok
}

// ToolResultPayload extracts a ToolResult payload if present
func (m *Message) ToolResultPayload() (ToolResult, bool) {
	res, ok := m.Payload.(ToolResult)
	return res, ok
}

// AgentRequestPayload extracts an AgentRequest payload if present
func (m *Message) AgentRequestPayload() (AgentRequest, bool) {
	req, ok := m.Payload.(AgentRequest)
	return req, ok
}

// AgentResponsePayload extracts an AgentResponse payload if present
func (m *Message) AgentResponsePayload() (AgentResponse, bool) {
	res, ok := m.Payload.(AgentResponse)
	return res, ok
}
