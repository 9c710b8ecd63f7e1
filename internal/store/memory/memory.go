// Package memory implements store.Store entirely in-process, mirroring
// the teacher's pkg/storage/memory sibling to its postgres store: same
// interface, no driver, used for tests and local development.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agenttrust/trustcore/internal/domain"
	"github.com/agenttrust/trustcore/internal/store"
)

// Store is an in-memory store.Store. A single mutex guards all state;
// the trust core's hot path (per-agent chain writes) is correct under
// a coarse lock because admission already serializes through it, and
// fine-grained per-agent locking is left to the postgres row lock
// where concurrency actually matters.
type Store struct {
	mu sync.Mutex

	agents       map[string]*domain.Agent
	pubKeyIndex  map[string]string // public_key hex -> agent_id
	events       []*domain.Event
	eventByHash  map[string]*domain.Event
	capabilities map[string]*domain.Capability
	tokenIndex   map[string]string // token_hash -> capability id
	reputation   map[string]*domain.Reputation
	outcomes     []*domain.Outcome

	nextEventID int64
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		agents:       make(map[string]*domain.Agent),
		pubKeyIndex:  make(map[string]string),
		eventByHash:  make(map[string]*domain.Event),
		capabilities: make(map[string]*domain.Capability),
		tokenIndex:   make(map[string]string),
		reputation:   make(map[string]*domain.Reputation),
		nextEventID:  1,
	}
}

func (s *Store) Agents() store.AgentStore             { return (*agentStore)(s) }
func (s *Store) Events() store.EventStore             { return (*eventStore)(s) }
func (s *Store) Capabilities() store.CapabilityStore  { return (*capabilityStore)(s) }
func (s *Store) Reputation() store.ReputationStore    { return (*reputationStore)(s) }
func (s *Store) Outcomes() store.OutcomeStore         { return (*outcomeStore)(s) }

func (s *Store) Ping(ctx context.Context) error { return nil }
func (s *Store) Close() error                   { return nil }

type agentStore Store

func (a *agentStore) Insert(ctx context.Context, ag *domain.Agent) error {
	s := (*Store)(a)
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.pubKeyIndex[ag.PublicKey]; exists {
		return store.ErrAlreadyExists
	}

	cp := *ag
	s.agents[ag.AgentID] = &cp
	s.pubKeyIndex[ag.PublicKey] = ag.AgentID
	s.reputation[ag.AgentID] = &domain.Reputation{
		AgentID:      ag.AgentID,
		OverallScore: 50.0,
		TotalActions: 0,
		Breakdown:    map[string]float64{},
		LastUpdated:  time.Now(),
	}
	return nil
}

func (a *agentStore) Get(ctx context.Context, agentID string) (*domain.Agent, error) {
	s := (*Store)(a)
	s.mu.Lock()
	defer s.mu.Unlock()
	ag, ok := s.agents[agentID]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *ag
	return &cp, nil
}

func (a *agentStore) GetByPublicKey(ctx context.Context, publicKeyHex string) (*domain.Agent, error) {
	s := (*Store)(a)
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.pubKeyIndex[publicKeyHex]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *s.agents[id]
	return &cp, nil
}

func (a *agentStore) List(ctx context.Context, filter store.AgentFilter) ([]*domain.Agent, error) {
	s := (*Store)(a)
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*domain.Agent, 0, len(s.agents))
	for _, ag := range s.agents {
		if filter.Status != "" && ag.Status != filter.Status {
			continue
		}
		if filter.Owner != "" && ag.Owner != filter.Owner {
			continue
		}
		cp := *ag
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (a *agentStore) Revoke(ctx context.Context, agentID string, reason string, revokedAt time.Time) (*domain.Agent, error) {
	s := (*Store)(a)
	s.mu.Lock()
	defer s.mu.Unlock()

	ag, ok := s.agents[agentID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if ag.Status != domain.AgentActive {
		return nil, store.ErrInvalidState
	}

	if reason != "" {
		if ag.Metadata == nil {
			ag.Metadata = map[string]interface{}{}
		}
		ag.Metadata["revocation_reason"] = reason
	}
	ag.Status = domain.AgentRevoked
	t := revokedAt
	ag.RevokedAt = &t

	cp := *ag
	return &cp, nil
}

type eventStore Store

func (e *eventStore) LastForAgent(ctx context.Context, agentID string) (*domain.Event, error) {
	s := (*Store)(e)
	s.mu.Lock()
	defer s.mu.Unlock()

	var last *domain.Event
	for _, ev := range s.events {
		if ev.AgentID != agentID {
			continue
		}
		if last == nil || isAfter(ev, last) {
			last = ev
		}
	}
	if last == nil {
		return nil, nil
	}
	cp := *last
	return &cp, nil
}

func isAfter(a, b *domain.Event) bool {
	if a.Timestamp.Equal(b.Timestamp) {
		return a.ID > b.ID
	}
	return a.Timestamp.After(b.Timestamp)
}

func (e *eventStore) InsertLinked(ctx context.Context, ev *domain.Event, expectedPrevHash *string) error {
	s := (*Store)(e)
	s.mu.Lock()
	defer s.mu.Unlock()

	var last *domain.Event
	for _, existing := range s.events {
		if existing.AgentID != ev.AgentID {
			continue
		}
		if last == nil || isAfter(existing, last) {
			last = existing
		}
	}

	var actualPrevHash *string
	if last != nil {
		h := last.Hash
		actualPrevHash = &h
	}
	if !hashPtrEqual(actualPrevHash, expectedPrevHash) {
		return store.ErrChainConflict
	}

	if _, exists := s.eventByHash[ev.Hash]; exists {
		return store.ErrAlreadyExists
	}

	ev.ID = s.nextEventID
	s.nextEventID++

	cp := *ev
	s.events = append(s.events, &cp)
	s.eventByHash[ev.Hash] = &cp
	return nil
}

func hashPtrEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func (e *eventStore) GetByID(ctx context.Context, id int64) (*domain.Event, error) {
	s := (*Store)(e)
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ev := range s.events {
		if ev.ID == id {
			cp := *ev
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (e *eventStore) GetByHash(ctx context.Context, hash string) (*domain.Event, error) {
	s := (*Store)(e)
	s.mu.Lock()
	defer s.mu.Unlock()
	ev, ok := s.eventByHash[hash]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *ev
	return &cp, nil
}

func (e *eventStore) Query(ctx context.Context, filter store.EventFilter) ([]*domain.Event, error) {
	s := (*Store)(e)
	s.mu.Lock()
	defer s.mu.Unlock()

	matches := matchEvents(s.events, filter)
	sort.Slice(matches, func(i, j int) bool { return isAfter(matches[i], matches[j]) })

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	if offset >= len(matches) {
		return []*domain.Event{}, nil
	}
	end := offset + limit
	if end > len(matches) {
		end = len(matches)
	}

	out := make([]*domain.Event, end-offset)
	for i, ev := range matches[offset:end] {
		cp := *ev
		out[i] = &cp
	}
	return out, nil
}

func (e *eventStore) Count(ctx context.Context, filter store.EventFilter) (int64, error) {
	s := (*Store)(e)
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(matchEvents(s.events, filter))), nil
}

func matchEvents(events []*domain.Event, filter store.EventFilter) []*domain.Event {
	out := make([]*domain.Event, 0, len(events))
	for _, ev := range events {
		if filter.AgentID != "" && ev.AgentID != filter.AgentID {
			continue
		}
		if filter.EventType != "" && ev.EventType != filter.EventType {
			continue
		}
		if filter.CorrelationID != "" && ev.CorrelationID != filter.CorrelationID {
			continue
		}
		if filter.Since != nil && ev.Timestamp.Before(*filter.Since) {
			continue
		}
		if filter.Until != nil && ev.Timestamp.After(*filter.Until) {
			continue
		}
		out = append(out, ev)
	}
	return out
}

func (e *eventStore) ChainForAgent(ctx context.Context, agentID string) ([]*domain.Event, error) {
	s := (*Store)(e)
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*domain.Event, 0)
	for _, ev := range s.events {
		if ev.AgentID == agentID {
			cp := *ev
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].ID < out[j].ID
		}
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out, nil
}

type capabilityStore Store

func (c *capabilityStore) Insert(ctx context.Context, cap *domain.Capability) error {
	s := (*Store)(c)
	s.mu.Lock()
	defer s.mu.Unlock()

	if cap.ID == "" {
		cap.ID = uuid.NewString()
	}
	if _, exists := s.tokenIndex[cap.TokenHash]; exists {
		return store.ErrAlreadyExists
	}
	cp := *cap
	s.capabilities[cap.ID] = &cp
	s.tokenIndex[cap.TokenHash] = cap.ID
	return nil
}

func (c *capabilityStore) GetByTokenHash(ctx context.Context, tokenHash string) (*domain.Capability, error) {
	s := (*Store)(c)
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.tokenIndex[tokenHash]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *s.capabilities[id]
	return &cp, nil
}

func (c *capabilityStore) GetByID(ctx context.Context, id string) (*domain.Capability, error) {
	s := (*Store)(c)
	s.mu.Lock()
	defer s.mu.Unlock()
	cap, ok := s.capabilities[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *cap
	return &cp, nil
}

func (c *capabilityStore) ListActiveForAgent(ctx context.Context, agentID string) ([]*domain.Capability, error) {
	return c.List(ctx, agentID, true)
}

func (c *capabilityStore) List(ctx context.Context, agentID string, activeOnly bool) ([]*domain.Capability, error) {
	s := (*Store)(c)
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*domain.Capability, 0)
	for _, cap := range s.capabilities {
		if agentID != "" && cap.AgentID != agentID {
			continue
		}
		if activeOnly && cap.Status != domain.CapabilityActive {
			continue
		}
		cp := *cap
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IssuedAt.Before(out[j].IssuedAt) })
	return out, nil
}

func (c *capabilityStore) Revoke(ctx context.Context, id string, revokedAt time.Time) (*domain.Capability, error) {
	s := (*Store)(c)
	s.mu.Lock()
	defer s.mu.Unlock()

	cap, ok := s.capabilities[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if cap.Status != domain.CapabilityActive {
		return nil, store.ErrInvalidState
	}
	cap.Status = domain.CapabilityRevoked
	t := revokedAt
	cap.RevokedAt = &t
	cp := *cap
	return &cp, nil
}

func (c *capabilityStore) ExpireDue(ctx context.Context, asOf time.Time) (int64, error) {
	s := (*Store)(c)
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int64
	for _, cap := range s.capabilities {
		if cap.Status == domain.CapabilityActive && !cap.ExpiresAt.After(asOf) {
			cap.Status = domain.CapabilityExpired
			count++
		}
	}
	return count, nil
}

type reputationStore Store

func (r *reputationStore) Get(ctx context.Context, agentID string) (*domain.Reputation, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	rep, ok := s.reputation[agentID]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *rep
	cp.Breakdown = cloneBreakdown(rep.Breakdown)
	return &cp, nil
}

func (r *reputationStore) List(ctx context.Context) ([]*domain.Reputation, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*domain.Reputation, 0, len(s.reputation))
	for _, rep := range s.reputation {
		cp := *rep
		cp.Breakdown = cloneBreakdown(rep.Breakdown)
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AgentID < out[j].AgentID })
	return out, nil
}

func (r *reputationStore) Update(ctx context.Context, rep *domain.Reputation) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.reputation[rep.AgentID]; !ok {
		return store.ErrNotFound
	}
	cp := *rep
	cp.Breakdown = cloneBreakdown(rep.Breakdown)
	s.reputation[rep.AgentID] = &cp
	return nil
}

func cloneBreakdown(m map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

type outcomeStore Store

func (o *outcomeStore) Insert(ctx context.Context, out *domain.Outcome) error {
	s := (*Store)(o)
	s.mu.Lock()
	defer s.mu.Unlock()
	if out.ID == "" {
		out.ID = uuid.NewString()
	}
	cp := *out
	s.outcomes = append(s.outcomes, &cp)
	return nil
}
