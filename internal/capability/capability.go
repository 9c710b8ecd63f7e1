// Package capability implements the capability engine (spec §4.4):
// minting, validating, and revoking scoped, time-limited bearer-token
// grants, and checking whether a grant authorizes a given action.
package capability

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/agenttrust/trustcore/internal/domain"
	"github.com/agenttrust/trustcore/internal/errs"
	"github.com/agenttrust/trustcore/internal/logger"
	"github.com/agenttrust/trustcore/internal/metrics"
	"github.com/agenttrust/trustcore/internal/store"
	"github.com/agenttrust/trustcore/pkg/signer"
)

// tokenBytes is the length of the random bearer token minted (spec
// §4.4: "generate 32 random bytes as token").
const tokenBytes = 32

// Engine mints, validates, checks, revokes, and sweeps capabilities.
type Engine struct {
	store store.Store
	log   *logger.Logger
}

// New constructs an Engine over st.
func New(st store.Store, log *logger.Logger) *Engine {
	return &Engine{store: st, log: log}
}

// MintRequest is the input to Mint.
type MintRequest struct {
	AgentID   string
	Scope     map[string]interface{}
	IssuedBy  string
	ExpiresAt time.Time
}

// MintResult carries the persisted capability plus the one-time
// plaintext bearer token.
type MintResult struct {
	Capability *domain.Capability
	Token      string
}

// Mint validates req, generates a random bearer token, and inserts an
// active capability keyed by the token's SHA-256 hash. The plaintext
// token is returned only here; it is never again recoverable.
func (e *Engine) Mint(ctx context.Context, req MintRequest) (*MintResult, error) {
	if req.AgentID == "" {
		return nil, errs.New(errs.Validation, "agent_id is required")
	}
	if len(req.Scope) == 0 {
		return nil, errs.New(errs.Validation, "scope must not be empty")
	}
	if !req.ExpiresAt.After(time.Now()) {
		return nil, errs.New(errs.Validation, "expires_at must be in the future")
	}

	if _, err := e.store.Agents().Get(ctx, req.AgentID); err != nil {
		if err == store.ErrNotFound {
			return nil, errs.New(errs.NotFound, "agent not found")
		}
		return nil, errs.Wrap(errs.Internal, "load agent", err)
	}

	raw := make([]byte, tokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return nil, errs.Wrap(errs.Internal, "generate token", err)
	}
	token := hex.EncodeToString(raw)
	tokenHash := signer.SHA256Hex([]byte(token))

	cap := &domain.Capability{
		ID:        uuid.NewString(),
		AgentID:   req.AgentID,
		Scope:     req.Scope,
		IssuedBy:  req.IssuedBy,
		IssuedAt:  time.Now(),
		ExpiresAt: req.ExpiresAt,
		Status:    domain.CapabilityActive,
		TokenHash: tokenHash,
	}
	if err := e.store.Capabilities().Insert(ctx, cap); err != nil {
		return nil, errs.Wrap(errs.Internal, "insert capability", err)
	}

	e.log.WithContext(ctx).Info("capability minted",
		logger.String("capability_id", cap.ID), logger.String("agent_id", cap.AgentID))
	metrics.CapabilitiesMinted.Inc()
	return &MintResult{Capability: cap, Token: token}, nil
}

// ValidationResult is the outcome of Validate.
type ValidationResult struct {
	Valid      bool
	Reason     string
	Capability *domain.Capability
}

// Validate looks up the capability by SHA-256(token) and reports
// whether it is currently usable: not revoked, not expired. A stored
// status of "active" whose expires_at has already elapsed is still
// reported invalid regardless of whether the expiry sweep has run
// (spec §4.4).
func (e *Engine) Validate(ctx context.Context, token string) (*ValidationResult, error) {
	tokenHash := signer.SHA256Hex([]byte(token))
	cap, err := e.store.Capabilities().GetByTokenHash(ctx, tokenHash)
	if err != nil {
		if err == store.ErrNotFound {
			metrics.CapabilityValidations.WithLabelValues("not_found").Inc()
			return &ValidationResult{Valid: false, Reason: "not found"}, nil
		}
		return nil, errs.Wrap(errs.Internal, "lookup capability", err)
	}

	if cap.Status == domain.CapabilityRevoked {
		metrics.CapabilityValidations.WithLabelValues("revoked").Inc()
		return &ValidationResult{Valid: false, Reason: "revoked", Capability: cap}, nil
	}
	if !cap.ExpiresAt.After(time.Now()) {
		metrics.CapabilityValidations.WithLabelValues("expired").Inc()
		return &ValidationResult{Valid: false, Reason: "expired", Capability: cap}, nil
	}
	metrics.CapabilityValidations.WithLabelValues("valid").Inc()
	return &ValidationResult{Valid: true, Capability: cap}, nil
}

// CheckResult is the outcome of CheckPermission.
type CheckResult struct {
	Granted    bool
	Reason     string
	Constraint interface{}
}

// CheckPermission enumerates the agent's active, non-expired
// capabilities and grants if any scope contains action or the
// wildcard "<prefix>:*" for action's namespace. The first granting
// capability wins; its matched constraint is returned (spec §4.4).
func (e *Engine) CheckPermission(ctx context.Context, agentID, action string) (*CheckResult, error) {
	caps, err := e.store.Capabilities().ListActiveForAgent(ctx, agentID)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "list capabilities", err)
	}

	now := time.Now()
	wildcard := wildcardFor(action)
	for _, cap := range caps {
		if !cap.ExpiresAt.After(now) {
			continue
		}
		if constraint, ok := cap.Scope[action]; ok {
			metrics.PermissionChecks.WithLabelValues("granted").Inc()
			return &CheckResult{Granted: true, Constraint: constraint}, nil
		}
		if constraint, ok := cap.Scope[wildcard]; ok {
			metrics.PermissionChecks.WithLabelValues("granted").Inc()
			return &CheckResult{Granted: true, Constraint: constraint}, nil
		}
	}
	metrics.PermissionChecks.WithLabelValues("denied").Inc()
	return &CheckResult{Granted: false, Reason: fmt.Sprintf("no active capability grants %q", action)}, nil
}

func wildcardFor(action string) string {
	idx := strings.Index(action, ":")
	if idx < 0 {
		return action + ":*"
	}
	return action[:idx] + ":*"
}

// Revoke transitions an active capability to revoked.
func (e *Engine) Revoke(ctx context.Context, id string) (*domain.Capability, error) {
	cap, err := e.store.Capabilities().Revoke(ctx, id, time.Now())
	if err != nil {
		switch err {
		case store.ErrNotFound:
			return nil, errs.New(errs.NotFound, "capability not found")
		case store.ErrInvalidState:
			return nil, errs.New(errs.Conflict, "capability is already revoked or expired")
		default:
			return nil, errs.Wrap(errs.Internal, "revoke capability", err)
		}
	}
	e.log.WithContext(ctx).Info("capability revoked", logger.String("capability_id", id))
	metrics.CapabilitiesRevoked.Inc()
	return cap, nil
}

// ExpireSweep transitions every due-active capability to expired and
// returns the number affected; intended to run periodically, but
// Validate enforces elapsed expiry regardless of whether this has run.
func (e *Engine) ExpireSweep(ctx context.Context) (int64, error) {
	n, err := e.store.Capabilities().ExpireDue(ctx, time.Now())
	if err != nil {
		return 0, errs.Wrap(errs.Internal, "expire sweep", err)
	}
	if n > 0 {
		e.log.WithContext(ctx).Info("capability expiry sweep", logger.Int64("expired_count", n))
		metrics.CapabilitiesExpired.Add(float64(n))
	}
	return n, nil
}

// List returns capabilities for agentID, optionally filtered to active.
func (e *Engine) List(ctx context.Context, agentID string, activeOnly bool) ([]*domain.Capability, error) {
	caps, err := e.store.Capabilities().List(ctx, agentID, activeOnly)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "list capabilities", err)
	}
	return caps, nil
}
