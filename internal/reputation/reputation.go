// Package reputation implements the behavioral scoring engine (spec
// §4.5): outcome-driven score adjustment, per-domain score breakdown,
// and the downgrade predicate.
package reputation

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/agenttrust/trustcore/internal/domain"
	"github.com/agenttrust/trustcore/internal/errs"
	"github.com/agenttrust/trustcore/internal/logger"
	"github.com/agenttrust/trustcore/internal/metrics"
	"github.com/agenttrust/trustcore/internal/store"
)

// impactTable is the default per-outcome-type score delta (spec §4.5).
var impactTable = map[domain.OutcomeType]float64{
	domain.OutcomeSuccess:        0.5,
	domain.OutcomePartialSuccess: 0.2,
	domain.OutcomeFailure:        -0.3,
	domain.OutcomeUserCorrected:  -0.5,
	domain.OutcomeHarmful:        -2.0,
}

// Engine records outcomes and maintains the reputation row per agent.
type Engine struct {
	store store.Store
	log   *logger.Logger
}

// New constructs an Engine over st.
func New(st store.Store, log *logger.Logger) *Engine {
	return &Engine{store: st, log: log}
}

// RecordOutcomeRequest is the input to RecordOutcome.
type RecordOutcomeRequest struct {
	AgentID     string
	EventID     int64
	OutcomeType domain.OutcomeType
	Reporter    string
	// Impact overrides impactTable when non-nil; must be in [-1, 1].
	Impact  *float64
	Details string
}

// RecordOutcome applies the five-step update from spec §4.5 and
// appends the outcome row. Both writes are not atomic across stores in
// the memory implementation, but in postgres the reputation update
// happens under the same per-agent serialization the ledger uses,
// since callers invoke this after an event has already been admitted
// for the agent.
func (e *Engine) RecordOutcome(ctx context.Context, req RecordOutcomeRequest) (*domain.Reputation, error) {
	if !req.OutcomeType.IsValid() {
		return nil, errs.New(errs.Validation, "unknown outcome_type")
	}
	if req.Impact != nil && (*req.Impact < -1 || *req.Impact > 1) {
		return nil, errs.New(errs.Validation, "impact must be in [-1, 1]")
	}

	rep, err := e.store.Reputation().Get(ctx, req.AgentID)
	if err != nil {
		if err == store.ErrNotFound {
			return nil, errs.New(errs.NotFound, "agent has no reputation row")
		}
		return nil, errs.Wrap(errs.Internal, "load reputation", err)
	}

	delta := impactTable[req.OutcomeType]
	if req.Impact != nil {
		delta = *req.Impact
	}

	// Step 2: clamp overall_score.
	rep.OverallScore = clamp(rep.OverallScore+delta, 0, 100)

	// Step 3: recompute success/failure rate from integer counts.
	n := rep.TotalActions
	successCount := int64(math.Round(rep.SuccessRate * float64(n)))
	failureCount := int64(math.Round(rep.FailureRate * float64(n)))
	if req.OutcomeType.IsPositive() {
		successCount++
	} else {
		failureCount++
	}
	rep.TotalActions = n + 1
	rep.SuccessRate = float64(successCount) / float64(rep.TotalActions)
	rep.FailureRate = float64(failureCount) / float64(rep.TotalActions)

	// Step 4: harmful/user_corrected counters.
	if req.OutcomeType == domain.OutcomeHarmful {
		rep.HarmfulActions++
	}
	if req.OutcomeType == domain.OutcomeUserCorrected {
		rep.UserCorrections++
	}

	// Step 5: last_updated.
	rep.LastUpdated = time.Now()

	if err := e.store.Reputation().Update(ctx, rep); err != nil {
		return nil, errs.Wrap(errs.Internal, "update reputation", err)
	}

	outcome := &domain.Outcome{
		ID:          uuid.NewString(),
		AgentID:     req.AgentID,
		EventID:     req.EventID,
		OutcomeType: req.OutcomeType,
		Reporter:    req.Reporter,
		ImpactScore: delta,
		Details:     req.Details,
		CreatedAt:   time.Now(),
	}
	if err := e.store.Outcomes().Insert(ctx, outcome); err != nil {
		return nil, errs.Wrap(errs.Internal, "insert outcome", err)
	}

	e.log.WithContext(ctx).Info("outcome recorded",
		logger.String("agent_id", req.AgentID), logger.String("outcome_type", string(req.OutcomeType)),
		logger.Any("overall_score", rep.OverallScore))
	metrics.OutcomesRecorded.WithLabelValues(string(req.OutcomeType)).Inc()
	metrics.OverallScore.WithLabelValues(req.AgentID).Set(rep.OverallScore)
	return rep, nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// UpdateDomainScore replaces the breakdown value for domain with
// score, which must be in [0, 1].
func (e *Engine) UpdateDomainScore(ctx context.Context, agentID, domainName string, score float64) (*domain.Reputation, error) {
	if score < 0 || score > 1 {
		return nil, errs.New(errs.Validation, "score must be in [0, 1]")
	}

	rep, err := e.store.Reputation().Get(ctx, agentID)
	if err != nil {
		if err == store.ErrNotFound {
			return nil, errs.New(errs.NotFound, "agent has no reputation row")
		}
		return nil, errs.Wrap(errs.Internal, "load reputation", err)
	}

	if rep.Breakdown == nil {
		rep.Breakdown = map[string]float64{}
	}
	rep.Breakdown[domainName] = score
	rep.LastUpdated = time.Now()

	if err := e.store.Reputation().Update(ctx, rep); err != nil {
		return nil, errs.Wrap(errs.Internal, "update reputation", err)
	}
	return rep, nil
}

// DowngradeVerdict is the result of ShouldDowngrade.
type DowngradeVerdict struct {
	Downgrade bool
	Reasons   []string
}

// ShouldDowngrade reports whether the agent should be downgraded:
// overall_score < 20, failure_rate > 0.5, or harmful_actions >= 5
// (spec §4.5). All matching reasons are returned, not just the first.
func (e *Engine) ShouldDowngrade(ctx context.Context, agentID string) (*DowngradeVerdict, error) {
	rep, err := e.store.Reputation().Get(ctx, agentID)
	if err != nil {
		if err == store.ErrNotFound {
			return nil, errs.New(errs.NotFound, "agent has no reputation row")
		}
		return nil, errs.Wrap(errs.Internal, "load reputation", err)
	}

	verdict := &DowngradeVerdict{}
	if rep.OverallScore < 20 {
		verdict.Downgrade = true
		verdict.Reasons = append(verdict.Reasons, "overall_score below 20")
	}
	if rep.FailureRate > 0.5 {
		verdict.Downgrade = true
		verdict.Reasons = append(verdict.Reasons, "failure_rate above 0.5")
	}
	if rep.HarmfulActions >= 5 {
		verdict.Downgrade = true
		verdict.Reasons = append(verdict.Reasons, "harmful_actions at or above 5")
	}
	if verdict.Downgrade {
		metrics.DowngradesDetected.Inc()
	}
	return verdict, nil
}

// Get returns the reputation row for agentID.
func (e *Engine) Get(ctx context.Context, agentID string) (*domain.Reputation, error) {
	rep, err := e.store.Reputation().Get(ctx, agentID)
	if err != nil {
		if err == store.ErrNotFound {
			return nil, errs.New(errs.NotFound, "agent has no reputation row")
		}
		return nil, errs.Wrap(errs.Internal, "get reputation", err)
	}
	return rep, nil
}

// List returns every agent's reputation row.
func (e *Engine) List(ctx context.Context) ([]*domain.Reputation, error) {
	reps, err := e.store.Reputation().List(ctx)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "list reputation", err)
	}
	return reps, nil
}
