// Package registry implements agent registration and lookup (spec
// §4.8): the trust core's analog of the teacher's did/registry.go, but
// resolving a plain Ed25519 public key against a Store instead of
// anchoring a DID on a blockchain.
package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/agenttrust/trustcore/internal/domain"
	"github.com/agenttrust/trustcore/internal/errs"
	"github.com/agenttrust/trustcore/internal/logger"
	"github.com/agenttrust/trustcore/internal/store"
	"github.com/agenttrust/trustcore/pkg/signer"
)

// Registry registers, looks up, and revokes agents.
type Registry struct {
	store store.Store
	log   *logger.Logger
}

// New constructs a Registry over st, logging through log.
func New(st store.Store, log *logger.Logger) *Registry {
	return &Registry{store: st, log: log}
}

// RegisterRequest is the input to Register.
type RegisterRequest struct {
	PublicKeyHex string
	Name         string
	Owner        string
	Metadata     map[string]interface{}
}

// Register validates req and inserts a new active agent keyed by its
// public key, deriving its agent id as the SHA-256 of that key.
func (r *Registry) Register(ctx context.Context, req RegisterRequest) (*domain.Agent, error) {
	if err := validateRegisterRequest(req); err != nil {
		return nil, err
	}

	pub, err := signer.DecodeHexKey(req.PublicKeyHex)
	if err != nil {
		return nil, errs.Wrap(errs.Validation, "invalid public key", err)
	}

	ag := &domain.Agent{
		AgentID:   signer.AgentID(pub),
		PublicKey: req.PublicKeyHex,
		Name:      req.Name,
		Owner:     req.Owner,
		Status:    domain.AgentActive,
		Metadata:  req.Metadata,
		CreatedAt: time.Now(),
	}

	if err := r.store.Agents().Insert(ctx, ag); err != nil {
		if err == store.ErrAlreadyExists {
			return nil, errs.New(errs.Conflict, "agent with this public key is already registered")
		}
		return nil, errs.Wrap(errs.Internal, "register agent", err)
	}

	r.log.WithContext(ctx).Info("agent registered",
		logger.String("agent_id", ag.AgentID), logger.String("owner", ag.Owner))
	return ag, nil
}

func validateRegisterRequest(req RegisterRequest) error {
	if req.PublicKeyHex == "" {
		return errs.New(errs.Validation, "public_key is required")
	}
	if req.Name == "" {
		return errs.New(errs.Validation, "name is required")
	}
	return nil
}

// Get returns the agent by id.
func (r *Registry) Get(ctx context.Context, agentID string) (*domain.Agent, error) {
	ag, err := r.store.Agents().Get(ctx, agentID)
	if err != nil {
		if err == store.ErrNotFound {
			return nil, errs.New(errs.NotFound, fmt.Sprintf("agent %s not found", agentID))
		}
		return nil, errs.Wrap(errs.Internal, "get agent", err)
	}
	return ag, nil
}

// GetByPublicKey resolves an agent by its hex-encoded public key.
func (r *Registry) GetByPublicKey(ctx context.Context, publicKeyHex string) (*domain.Agent, error) {
	ag, err := r.store.Agents().GetByPublicKey(ctx, publicKeyHex)
	if err != nil {
		if err == store.ErrNotFound {
			return nil, errs.New(errs.NotFound, "no agent registered for this public key")
		}
		return nil, errs.Wrap(errs.Internal, "get agent by public key", err)
	}
	return ag, nil
}

// List returns agents matching filter.
func (r *Registry) List(ctx context.Context, filter store.AgentFilter) ([]*domain.Agent, error) {
	agents, err := r.store.Agents().List(ctx, filter)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "list agents", err)
	}
	return agents, nil
}

// Revoke transitions an active agent to revoked.
func (r *Registry) Revoke(ctx context.Context, agentID, reason string) (*domain.Agent, error) {
	ag, err := r.store.Agents().Revoke(ctx, agentID, reason, time.Now())
	if err != nil {
		switch err {
		case store.ErrNotFound:
			return nil, errs.New(errs.NotFound, fmt.Sprintf("agent %s not found", agentID))
		case store.ErrInvalidState:
			return nil, errs.New(errs.Conflict, "agent is already revoked")
		default:
			return nil, errs.Wrap(errs.Internal, "revoke agent", err)
		}
	}

	r.log.WithContext(ctx).Info("agent revoked",
		logger.String("agent_id", agentID), logger.String("reason", reason))
	return ag, nil
}

// EnsureActive returns errs.Forbidden if the agent is not active, used
// by the request authenticator before it accepts a request signed by
// the agent.
func EnsureActive(ag *domain.Agent) error {
	if ag.Status != domain.AgentActive {
		return errs.New(errs.Forbidden, fmt.Sprintf("agent %s is not active", ag.AgentID))
	}
	return nil
}
