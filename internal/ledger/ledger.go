// Package ledger implements the event ledger's admission pipeline
// (spec §4.6), the hash-linked append-only per-agent event chain at
// the center of the trust core.
package ledger

import (
	"context"
	"encoding/hex"
	"time"

	"github.com/agenttrust/trustcore/internal/domain"
	"github.com/agenttrust/trustcore/internal/errs"
	"github.com/agenttrust/trustcore/internal/logger"
	"github.com/agenttrust/trustcore/internal/metrics"
	"github.com/agenttrust/trustcore/internal/store"
	"github.com/agenttrust/trustcore/pkg/signer"
)

// Ledger admits, queries, and verifies an agent's event chain.
type Ledger struct {
	store store.Store
	log   *logger.Logger
}

// New constructs a Ledger over st.
func New(st store.Store, log *logger.Logger) *Ledger {
	return &Ledger{store: st, log: log}
}

// AdmitRequest is the client-submitted event admission request.
type AdmitRequest struct {
	AgentID       string
	EventType     domain.EventType
	Timestamp     *time.Time // nil: server assigns now
	PrevHash      *string    // nil: client omitted it, server substitutes its own view
	Payload       map[string]interface{}
	CorrelationID string
	Hash          string
	Signature     string // hex-encoded
}

// Admit runs the eight-step admission pipeline and returns the
// persisted event. It retries once on store.ErrChainConflict, which
// both stores return when another admission for the same agent moved
// the chain head between link resolution and the locked insert; if the
// retry conflicts as well, Admit returns CHAIN_BROKEN.
func (l *Ledger) Admit(ctx context.Context, req AdmitRequest) (*domain.Event, error) {
	start := time.Now()
	ev, err := l.admit(ctx, req)
	metrics.EventAdmissionDuration.Observe(time.Since(start).Seconds())
	metrics.EventsAdmitted.WithLabelValues(admissionResultLabel(err)).Inc()
	return ev, err
}

func (l *Ledger) admit(ctx context.Context, req AdmitRequest) (*domain.Event, error) {
	for attempt := 0; attempt < 2; attempt++ {
		ev, err := l.admitOnce(ctx, req)
		if err == store.ErrChainConflict {
			continue
		}
		return ev, err
	}

	serverHead, _ := l.store.Events().LastForAgent(ctx, req.AgentID)
	return nil, errs.New(errs.ChainBroken, "concurrent admission could not be resolved").
		WithDetail("submitted_prev_hash", hashDetail(req.PrevHash)).
		WithDetail("server_prev_hash", hashDetail(lastHash(serverHead)))
}

func lastHash(ev *domain.Event) *string {
	if ev == nil {
		return nil
	}
	return &ev.Hash
}

// hashDetail renders a *string hash for inclusion in an error's
// Details map: the literal hash, or nil for an empty chain head.
func hashDetail(h *string) interface{} {
	if h == nil {
		return nil
	}
	return *h
}

// sameHash reports whether a and b are both nil or both point at the
// same hash value.
func sameHash(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func admissionResultLabel(err error) string {
	if err == nil {
		return "admitted"
	}
	return string(errs.KindOf(err))
}

func (l *Ledger) admitOnce(ctx context.Context, req AdmitRequest) (*domain.Event, error) {
	// Step 1: agent lookup.
	ag, err := l.store.Agents().Get(ctx, req.AgentID)
	if err != nil {
		if err == store.ErrNotFound {
			return nil, errs.New(errs.NotFound, "agent_unknown").WithDetail("agent_id", req.AgentID)
		}
		return nil, errs.Wrap(errs.Internal, "load agent", err)
	}
	if ag.Status != domain.AgentActive {
		return nil, errs.New(errs.Forbidden, "agent_revoked").WithDetail("agent_id", req.AgentID)
	}

	if !req.EventType.IsValid() {
		return nil, errs.New(errs.Validation, "unknown event_type").WithDetail("event_type", string(req.EventType))
	}

	// Step 2: link resolution.
	last, err := l.store.Events().LastForAgent(ctx, req.AgentID)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "load chain head", err)
	}
	var serverPrevHash *string
	if last != nil {
		h := last.Hash
		serverPrevHash = &h
	}

	// Step 3: canonical reconstruction. Only fields the client omitted
	// are substituted with the server's own view; prev_hash the client
	// did supply is canonicalized as submitted, so its signature still
	// verifies in step 5 even when it turns out to be stale — step 6
	// below is what catches that case.
	ts := time.Now()
	if req.Timestamp != nil {
		ts = *req.Timestamp
	}
	effectivePrevHash := serverPrevHash
	if req.PrevHash != nil {
		effectivePrevHash = req.PrevHash
	}
	unsigned := domain.UnsignedEvent{
		AgentID:       req.AgentID,
		EventType:     req.EventType,
		Timestamp:     ts,
		PrevHash:      effectivePrevHash,
		Payload:       req.Payload,
		CorrelationID: req.CorrelationID,
	}
	canonicalBytes, err := unsigned.CanonicalBytes()
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "canonicalize event", err)
	}

	// Step 4: hash check.
	computedHash := signer.SHA256Hex(canonicalBytes)
	if computedHash != req.Hash {
		return nil, errs.New(errs.HashMismatch, "submitted hash does not match recomputed hash").
			WithDetail("computed_hash", computedHash).WithDetail("submitted_hash", req.Hash)
	}

	// Step 5: signature check.
	pub, err := signer.DecodeHexKey(ag.PublicKey)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "decode agent public key", err)
	}
	sigBytes, err := hex.DecodeString(req.Signature)
	if err != nil || len(sigBytes) != signer.SignatureSize {
		return nil, errs.New(errs.SignatureInvalid, "malformed signature encoding")
	}
	if !signer.Verify(sigBytes, canonicalBytes, pub) {
		return nil, errs.New(errs.SignatureInvalid, "signature does not verify under agent's public key")
	}

	// Step 6: chain check. The client's view of prev_hash (whatever it
	// signed over in step 3) must equal the server's own derived head;
	// a client racing against a concurrent admission, or signing
	// against a head it already knows is stale, is caught here rather
	// than surfacing as a spurious hash or signature failure.
	if !sameHash(effectivePrevHash, serverPrevHash) {
		return nil, errs.New(errs.ChainBroken, "submitted prev_hash does not match server-derived chain head").
			WithDetail("submitted_prev_hash", hashDetail(effectivePrevHash)).
			WithDetail("server_prev_hash", hashDetail(serverPrevHash))
	}

	// Step 7: persist.
	ev := &domain.Event{
		AgentID:       req.AgentID,
		EventType:     req.EventType,
		Timestamp:     domain.NormalizeTimestamp(ts),
		PrevHash:      effectivePrevHash,
		Hash:          computedHash,
		Payload:       req.Payload,
		Signature:     req.Signature,
		CorrelationID: req.CorrelationID,
	}
	if err := l.store.Events().InsertLinked(ctx, ev, serverPrevHash); err != nil {
		if err == store.ErrChainConflict {
			return nil, store.ErrChainConflict
		}
		if err == store.ErrAlreadyExists {
			return nil, errs.New(errs.Conflict, "duplicate_event").WithDetail("hash", ev.Hash)
		}
		return nil, errs.Wrap(errs.Internal, "persist event", err)
	}

	l.log.WithContext(ctx).Debug("event admitted",
		logger.String("agent_id", req.AgentID), logger.String("event_type", string(req.EventType)),
		logger.String("hash", ev.Hash))

	// Step 8: return.
	return ev, nil
}
