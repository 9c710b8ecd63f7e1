package memory

import (
	"bytes"
	"context"
	"encoding/hex"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenttrust/trustcore/internal/domain"
	"github.com/agenttrust/trustcore/internal/ledger"
	"github.com/agenttrust/trustcore/internal/logger"
	"github.com/agenttrust/trustcore/internal/store"
	"github.com/agenttrust/trustcore/pkg/signer"
)

func newAgent(id, pubKey string) *domain.Agent {
	return &domain.Agent{
		AgentID:   id,
		PublicKey: pubKey,
		Status:    domain.AgentActive,
		CreatedAt: time.Now(),
	}
}

func TestAgentInsertCreatesReputationRow(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.Agents().Insert(ctx, newAgent("agent-1", "pub-1")))

	rep, err := s.Reputation().Get(ctx, "agent-1")
	require.NoError(t, err)
	assert.Equal(t, 50.0, rep.OverallScore)
	assert.Equal(t, int64(0), rep.TotalActions)
}

func TestAgentInsertRejectsDuplicatePublicKey(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.Agents().Insert(ctx, newAgent("agent-1", "pub-1")))
	err := s.Agents().Insert(ctx, newAgent("agent-2", "pub-1"))
	assert.ErrorIs(t, err, store.ErrAlreadyExists)
}

func TestAgentGetByPublicKey(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.Agents().Insert(ctx, newAgent("agent-1", "pub-1")))

	ag, err := s.Agents().GetByPublicKey(ctx, "pub-1")
	require.NoError(t, err)
	assert.Equal(t, "agent-1", ag.AgentID)

	_, err = s.Agents().GetByPublicKey(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestAgentRevokeMergesReason(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.Agents().Insert(ctx, newAgent("agent-1", "pub-1")))

	ag, err := s.Agents().Revoke(ctx, "agent-1", "key compromised", time.Now())
	require.NoError(t, err)
	assert.Equal(t, domain.AgentRevoked, ag.Status)
	assert.Equal(t, "key compromised", ag.Metadata["revocation_reason"])

	_, err = s.Agents().Revoke(ctx, "agent-1", "again", time.Now())
	assert.ErrorIs(t, err, store.ErrInvalidState)
}

func TestEventInsertLinkedChain(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.Agents().Insert(ctx, newAgent("agent-1", "pub-1")))

	e1 := &domain.Event{AgentID: "agent-1", EventType: domain.EventInputReceived, Timestamp: time.Now(), Hash: "h1"}
	require.NoError(t, s.Events().InsertLinked(ctx, e1, nil))

	h1 := "h1"
	e2 := &domain.Event{AgentID: "agent-1", EventType: domain.EventDecisionMade, Timestamp: time.Now(), PrevHash: &h1, Hash: "h2"}
	require.NoError(t, s.Events().InsertLinked(ctx, e2, &h1))

	chain, err := s.Events().ChainForAgent(ctx, "agent-1")
	require.NoError(t, err)
	require.Len(t, chain, 2)
	assert.Equal(t, "h1", chain[0].Hash)
	assert.Equal(t, "h2", chain[1].Hash)
}

func TestEventInsertLinkedRejectsStalePrevHash(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.Agents().Insert(ctx, newAgent("agent-1", "pub-1")))

	e1 := &domain.Event{AgentID: "agent-1", EventType: domain.EventInputReceived, Timestamp: time.Now(), Hash: "h1"}
	require.NoError(t, s.Events().InsertLinked(ctx, e1, nil))

	stale := "not-h1"
	e2 := &domain.Event{AgentID: "agent-1", EventType: domain.EventDecisionMade, Timestamp: time.Now(), PrevHash: &stale, Hash: "h2"}
	err := s.Events().InsertLinked(ctx, e2, &stale)
	assert.ErrorIs(t, err, store.ErrChainConflict)
}

func TestEventInsertLinkedRejectsDuplicateHash(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.Agents().Insert(ctx, newAgent("agent-1", "pub-1")))

	e1 := &domain.Event{AgentID: "agent-1", EventType: domain.EventInputReceived, Timestamp: time.Now(), Hash: "h1"}
	require.NoError(t, s.Events().InsertLinked(ctx, e1, nil))

	dup := &domain.Event{AgentID: "agent-1", EventType: domain.EventInputReceived, Timestamp: time.Now(), Hash: "h1"}
	err := s.Events().InsertLinked(ctx, dup, nil)
	assert.ErrorIs(t, err, store.ErrAlreadyExists)
}

func TestEventQueryFilterAndPagination(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.Agents().Insert(ctx, newAgent("agent-1", "pub-1")))

	var prev *string
	for i := 0; i < 5; i++ {
		h := string(rune('a' + i))
		ev := &domain.Event{AgentID: "agent-1", EventType: domain.EventSystemEvent, Timestamp: time.Now().Add(time.Duration(i) * time.Second), PrevHash: prev, Hash: h}
		require.NoError(t, s.Events().InsertLinked(ctx, ev, prev))
		hh := h
		prev = &hh
	}

	page, err := s.Events().Query(ctx, store.EventFilter{AgentID: "agent-1", Limit: 2, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 2)

	count, err := s.Events().Count(ctx, store.EventFilter{AgentID: "agent-1"})
	require.NoError(t, err)
	assert.Equal(t, int64(5), count)
}

func TestCapabilityLifecycle(t *testing.T) {
	s := New()
	ctx := context.Background()

	cap := &domain.Capability{
		AgentID:   "agent-1",
		Scope:     map[string]interface{}{"files": []interface{}{"read"}},
		TokenHash: "th-1",
		IssuedAt:  time.Now(),
		ExpiresAt: time.Now().Add(time.Hour),
		Status:    domain.CapabilityActive,
	}
	require.NoError(t, s.Capabilities().Insert(ctx, cap))
	assert.NotEmpty(t, cap.ID)

	got, err := s.Capabilities().GetByTokenHash(ctx, "th-1")
	require.NoError(t, err)
	assert.Equal(t, cap.ID, got.ID)

	revoked, err := s.Capabilities().Revoke(ctx, cap.ID, time.Now())
	require.NoError(t, err)
	assert.Equal(t, domain.CapabilityRevoked, revoked.Status)

	_, err = s.Capabilities().Revoke(ctx, cap.ID, time.Now())
	assert.ErrorIs(t, err, store.ErrInvalidState)
}

func TestCapabilityExpireDueReturnsAffectedCount(t *testing.T) {
	s := New()
	ctx := context.Background()

	past := time.Now().Add(-time.Hour)
	future := time.Now().Add(time.Hour)
	require.NoError(t, s.Capabilities().Insert(ctx, &domain.Capability{
		AgentID: "agent-1", TokenHash: "th-1", ExpiresAt: past, Status: domain.CapabilityActive, IssuedAt: time.Now(),
	}))
	require.NoError(t, s.Capabilities().Insert(ctx, &domain.Capability{
		AgentID: "agent-1", TokenHash: "th-2", ExpiresAt: future, Status: domain.CapabilityActive, IssuedAt: time.Now(),
	}))

	n, err := s.Capabilities().ExpireDue(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	active, err := s.Capabilities().ListActiveForAgent(ctx, "agent-1")
	require.NoError(t, err)
	assert.Len(t, active, 1)
	assert.Equal(t, "th-2", active[0].TokenHash)
}

func TestReputationUpdate(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.Agents().Insert(ctx, newAgent("agent-1", "pub-1")))

	rep, err := s.Reputation().Get(ctx, "agent-1")
	require.NoError(t, err)
	rep.OverallScore = 75.5
	rep.TotalActions = 10
	require.NoError(t, s.Reputation().Update(ctx, rep))

	got, err := s.Reputation().Get(ctx, "agent-1")
	require.NoError(t, err)
	assert.Equal(t, 75.5, got.OverallScore)
	assert.Equal(t, int64(10), got.TotalActions)
}

func TestOutcomeInsert(t *testing.T) {
	s := New()
	ctx := context.Background()

	o := &domain.Outcome{AgentID: "agent-1", EventID: 1, OutcomeType: domain.OutcomeSuccess, Reporter: "user"}
	require.NoError(t, s.Outcomes().Insert(ctx, o))
	assert.NotEmpty(t, o.ID)
}

// TestLedgerVerifyDetectsPayloadTamperedAtRest mutates an admitted
// event directly in the store (rather than a local, never-persisted
// copy), so VerifyAgentChain's recomputed hash genuinely disagrees
// with what's on record.
func TestLedgerVerifyDetectsPayloadTamperedAtRest(t *testing.T) {
	s := New()
	ctx := context.Background()
	log := logger.New(&bytes.Buffer{}, logger.ErrorLevel)
	l := ledger.New(s, log)

	pub, priv, err := signer.Generate()
	require.NoError(t, err)
	agentID := signer.AgentID(pub)
	require.NoError(t, s.Agents().Insert(ctx, &domain.Agent{
		AgentID: agentID, PublicKey: hex.EncodeToString(pub), Status: domain.AgentActive, CreatedAt: time.Now(),
	}))

	unsigned := domain.UnsignedEvent{
		AgentID:   agentID,
		EventType: domain.EventInputReceived,
		Timestamp: time.Now(),
		Payload:   map[string]interface{}{"k": "v"},
	}
	canonicalBytes, err := unsigned.CanonicalBytes()
	require.NoError(t, err)
	hash := signer.SHA256Hex(canonicalBytes)
	sig, err := signer.Sign(canonicalBytes, priv)
	require.NoError(t, err)

	ev, err := l.Admit(ctx, ledger.AdmitRequest{
		AgentID: agentID, EventType: domain.EventInputReceived, Timestamp: &unsigned.Timestamp,
		Payload: unsigned.Payload, Hash: hash, Signature: hex.EncodeToString(sig),
	})
	require.NoError(t, err)

	before, err := l.VerifyAgentChain(ctx, agentID)
	require.NoError(t, err)
	assert.True(t, before.Valid)

	s.mu.Lock()
	for _, stored := range s.events {
		if stored.ID == ev.ID {
			stored.Payload = map[string]interface{}{"k": "tampered"}
		}
	}
	s.mu.Unlock()

	after, err := l.VerifyAgentChain(ctx, agentID)
	require.NoError(t, err)
	assert.False(t, after.Valid)
	require.NotEmpty(t, after.Violations)
	assert.Equal(t, "recomputed hash does not match stored hash", after.Violations[0].Reason)
	assert.Equal(t, 0, after.FirstOffendingID)
}
