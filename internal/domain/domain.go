// Package domain defines the trust core's persisted entities and their
// closed enumerations (spec §3): Agent, Event, Capability, Reputation,
// Outcome.
package domain

import "time"

// AgentStatus is the lifecycle state of an Agent.
type AgentStatus string

const (
	AgentActive  AgentStatus = "active"
	AgentRevoked AgentStatus = "revoked"
)

// Agent is a principal identified by an Ed25519 public key.
type Agent struct {
	AgentID   string                 `json:"agent_id"`
	PublicKey string                 `json:"public_key"`
	Name      string                 `json:"name,omitempty"`
	Owner     string                 `json:"owner,omitempty"`
	Status    AgentStatus            `json:"status"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
	RevokedAt *time.Time             `json:"revoked_at,omitempty"`
}

// EventType is the closed set of event kinds an agent may append.
type EventType string

const (
	EventInputReceived      EventType = "input_received"
	EventDecisionMade       EventType = "decision_made"
	EventToolCallRequested  EventType = "tool_call_requested"
	EventToolCallResult     EventType = "tool_call_result"
	EventResponseEmitted    EventType = "response_emitted"
	EventMemoryCreated      EventType = "memory_created"
	EventMemoryUpdated      EventType = "memory_updated"
	EventCapabilityGranted  EventType = "capability_granted"
	EventCapabilityRevoked  EventType = "capability_revoked"
	EventPolicyViolation    EventType = "policy_violation"
	EventErrorOccurred      EventType = "error_occurred"
	EventSystemEvent        EventType = "system_event"
)

// ValidEventTypes lists every admissible EventType, in the order
// presented by spec §3.
var ValidEventTypes = []EventType{
	EventInputReceived, EventDecisionMade, EventToolCallRequested,
	EventToolCallResult, EventResponseEmitted, EventMemoryCreated,
	EventMemoryUpdated, EventCapabilityGranted, EventCapabilityRevoked,
	EventPolicyViolation, EventErrorOccurred, EventSystemEvent,
}

// IsValid reports whether t is one of the twelve admissible event types.
func (t EventType) IsValid() bool {
	for _, v := range ValidEventTypes {
		if v == t {
			return true
		}
	}
	return false
}

// Event is one atomic, signed, hash-linked record in an agent's chain.
type Event struct {
	ID            int64                  `json:"id"`
	AgentID       string                 `json:"agent_id"`
	EventType     EventType              `json:"event_type"`
	Timestamp     time.Time              `json:"timestamp"`
	PrevHash      *string                `json:"prev_hash"`
	Hash          string                 `json:"hash"`
	Payload       map[string]interface{} `json:"payload"`
	Signature     string                 `json:"signature"`
	CorrelationID string                 `json:"correlation_id,omitempty"`
}

// CapabilityStatus is the lifecycle state of a Capability.
type CapabilityStatus string

const (
	CapabilityActive  CapabilityStatus = "active"
	CapabilityExpired CapabilityStatus = "expired"
	CapabilityRevoked CapabilityStatus = "revoked"
)

// Capability is a bearer-token-backed grant of a scoped, time-limited
// action set for one agent.
type Capability struct {
	ID        string                 `json:"id"`
	AgentID   string                 `json:"agent_id"`
	Scope     map[string]interface{} `json:"scope"`
	IssuedBy  string                 `json:"issued_by"`
	IssuedAt  time.Time              `json:"issued_at"`
	ExpiresAt time.Time              `json:"expires_at"`
	Status    CapabilityStatus       `json:"status"`
	TokenHash string                 `json:"token_hash"`
	RevokedAt *time.Time             `json:"revoked_at,omitempty"`
}

// Reputation is the single aggregate behavioral-score row per agent.
type Reputation struct {
	AgentID        string             `json:"agent_id"`
	OverallScore   float64            `json:"overall_score"`
	TotalActions   int64              `json:"total_actions"`
	SuccessRate    float64            `json:"success_rate"`
	FailureRate    float64            `json:"failure_rate"`
	HarmfulActions int64              `json:"harmful_actions"`
	UserCorrections int64             `json:"user_corrections"`
	Breakdown      map[string]float64 `json:"breakdown,omitempty"`
	LastUpdated    time.Time          `json:"last_updated"`
}

// OutcomeType is the closed set of outcome judgments a reporter may
// attest for an event.
type OutcomeType string

const (
	OutcomeSuccess        OutcomeType = "success"
	OutcomePartialSuccess OutcomeType = "partial_success"
	OutcomeFailure        OutcomeType = "failure"
	OutcomeUserCorrected  OutcomeType = "user_corrected"
	OutcomeHarmful        OutcomeType = "harmful"
)

// IsValid reports whether t is one of the five admissible outcome types.
func (t OutcomeType) IsValid() bool {
	switch t {
	case OutcomeSuccess, OutcomePartialSuccess, OutcomeFailure, OutcomeUserCorrected, OutcomeHarmful:
		return true
	default:
		return false
	}
}

// IsPositive reports whether t counts toward the success side of the
// success_rate/failure_rate split (spec §4.5 step 3).
func (t OutcomeType) IsPositive() bool {
	return t == OutcomeSuccess || t == OutcomePartialSuccess
}

// Outcome is an append-only reporter-attested judgment about an event,
// used to adjust reputation.
type Outcome struct {
	ID          string      `json:"id"`
	AgentID     string      `json:"agent_id"`
	EventID     int64       `json:"event_id"`
	OutcomeType OutcomeType `json:"outcome_type"`
	Reporter    string      `json:"reporter"`
	ImpactScore float64     `json:"impact_score"`
	Details     string      `json:"details,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
}
