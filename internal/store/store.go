// Package store defines the persistence interfaces the trust core's
// services depend on, and the query/pagination types shared across the
// postgres and in-memory implementations (spec §5, §6 persisted state).
package store

import (
	"context"
	"time"

	"github.com/agenttrust/trustcore/internal/domain"
)

// Store aggregates the per-entity stores backing the trust core and
// owns the driver-level resource (a connection pool for postgres, a
// mutex-guarded map for memory).
type Store interface {
	Agents() AgentStore
	Events() EventStore
	Capabilities() CapabilityStore
	Reputation() ReputationStore
	Outcomes() OutcomeStore

	Ping(ctx context.Context) error
	Close() error
}

// AgentStore persists Agent rows and their companion Reputation row.
type AgentStore interface {
	// Insert creates the agent and, atomically, its reputation row
	// (spec §4.8, the "database trigger" requirement). Returns
	// ErrAlreadyExists if the public key is already registered.
	Insert(ctx context.Context, a *domain.Agent) error
	Get(ctx context.Context, agentID string) (*domain.Agent, error)
	GetByPublicKey(ctx context.Context, publicKeyHex string) (*domain.Agent, error)
	List(ctx context.Context, filter AgentFilter) ([]*domain.Agent, error)
	// Revoke transitions an active agent to revoked, merging reason
	// into metadata under "revocation_reason" when non-empty. Returns
	// ErrNotFound if missing, ErrInvalidState if already revoked.
	Revoke(ctx context.Context, agentID string, reason string, revokedAt time.Time) (*domain.Agent, error)
}

// AgentFilter narrows AgentStore.List.
type AgentFilter struct {
	Status domain.AgentStatus
	Owner  string
}

// EventStore persists the append-only per-agent event chain.
type EventStore interface {
	// LastForAgent returns the highest (timestamp, id) event for the
	// agent, or nil if the chain is empty.
	LastForAgent(ctx context.Context, agentID string) (*domain.Event, error)
	// InsertLinked atomically re-validates that the agent's current
	// chain head still matches expectedPrevHash and inserts e,
	// returning ErrChainConflict if the head moved underneath the
	// caller (the race §5 and spec §4.6 step 6/7 guard against) and
	// ErrAlreadyExists on a duplicate hash.
	InsertLinked(ctx context.Context, e *domain.Event, expectedPrevHash *string) error
	GetByID(ctx context.Context, id int64) (*domain.Event, error)
	GetByHash(ctx context.Context, hash string) (*domain.Event, error)
	Query(ctx context.Context, filter EventFilter) ([]*domain.Event, error)
	Count(ctx context.Context, filter EventFilter) (int64, error)
	// ChainForAgent returns every event for the agent in ascending
	// (timestamp, id) order, for chain verification.
	ChainForAgent(ctx context.Context, agentID string) ([]*domain.Event, error)
}

// EventFilter narrows EventStore.Query/Count.
type EventFilter struct {
	AgentID       string
	EventType     domain.EventType
	CorrelationID string
	Since         *time.Time
	Until         *time.Time
	Limit         int
	Offset        int
}

// CapabilityStore persists capability grants.
type CapabilityStore interface {
	Insert(ctx context.Context, c *domain.Capability) error
	GetByTokenHash(ctx context.Context, tokenHash string) (*domain.Capability, error)
	GetByID(ctx context.Context, id string) (*domain.Capability, error)
	ListActiveForAgent(ctx context.Context, agentID string) ([]*domain.Capability, error)
	List(ctx context.Context, agentID string, activeOnly bool) ([]*domain.Capability, error)
	// Revoke transitions active -> revoked. Returns ErrInvalidState if
	// the capability is already revoked or expired.
	Revoke(ctx context.Context, id string, revokedAt time.Time) (*domain.Capability, error)
	// ExpireDue transitions every active capability with
	// expires_at <= asOf to expired, returning the count affected.
	ExpireDue(ctx context.Context, asOf time.Time) (int64, error)
}

// ReputationStore persists the single reputation row per agent.
type ReputationStore interface {
	Get(ctx context.Context, agentID string) (*domain.Reputation, error)
	List(ctx context.Context) ([]*domain.Reputation, error)
	// Update persists the full row; callers read-modify-write under
	// the store's per-agent serialization (see postgres row lock / the
	// memory store's per-agent mutex).
	Update(ctx context.Context, r *domain.Reputation) error
}

// OutcomeStore persists append-only outcome reports.
type OutcomeStore interface {
	Insert(ctx context.Context, o *domain.Outcome) error
}
