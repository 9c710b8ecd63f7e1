package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agenttrust/trustcore/internal/domain"
	"github.com/agenttrust/trustcore/internal/store"
)

type reputationStore struct {
	db *pgxpool.Pool
}

const reputationColumns = `agent_id, overall_score, total_actions, success_rate, failure_rate, harmful_actions, user_corrections, breakdown, last_updated`

func (r *reputationStore) Get(ctx context.Context, agentID string) (*domain.Reputation, error) {
	row := r.db.QueryRow(ctx, `SELECT `+reputationColumns+` FROM reputation WHERE agent_id = $1`, agentID)
	return scanReputation(row)
}

func (r *reputationStore) List(ctx context.Context) ([]*domain.Reputation, error) {
	rows, err := r.db.Query(ctx, `SELECT `+reputationColumns+` FROM reputation ORDER BY agent_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list reputation: %w", err)
	}
	defer rows.Close()

	var out []*domain.Reputation
	for rows.Next() {
		rep, err := scanReputationRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rep)
	}
	return out, rows.Err()
}

// Update overwrites the row. Callers (the reputation engine) serialize
// concurrent updates to the same agent through the event ledger's
// per-agent admission lock, so a blind overwrite here is safe; a
// standalone caller racing this method would need its own locking.
func (r *reputationStore) Update(ctx context.Context, rep *domain.Reputation) error {
	breakdown, err := json.Marshal(nonNilFloatMap(rep.Breakdown))
	if err != nil {
		return fmt.Errorf("marshal breakdown: %w", err)
	}

	tag, err := r.db.Exec(ctx, `
		UPDATE reputation SET
			overall_score = $1, total_actions = $2, success_rate = $3,
			failure_rate = $4, harmful_actions = $5, user_corrections = $6,
			breakdown = $7, last_updated = $8
		WHERE agent_id = $9
	`, rep.OverallScore, rep.TotalActions, rep.SuccessRate, rep.FailureRate,
		rep.HarmfulActions, rep.UserCorrections, breakdown, rep.LastUpdated, rep.AgentID)
	if err != nil {
		return fmt.Errorf("update reputation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func scanReputation(row rowScanner) (*domain.Reputation, error) {
	var rep domain.Reputation
	var breakdown []byte
	err := row.Scan(&rep.AgentID, &rep.OverallScore, &rep.TotalActions, &rep.SuccessRate,
		&rep.FailureRate, &rep.HarmfulActions, &rep.UserCorrections, &breakdown, &rep.LastUpdated)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan reputation: %w", err)
	}
	if err := json.Unmarshal(breakdown, &rep.Breakdown); err != nil {
		return nil, fmt.Errorf("unmarshal breakdown: %w", err)
	}
	return &rep, nil
}

func scanReputationRows(rows pgx.Rows) (*domain.Reputation, error) {
	var rep domain.Reputation
	var breakdown []byte
	if err := rows.Scan(&rep.AgentID, &rep.OverallScore, &rep.TotalActions, &rep.SuccessRate,
		&rep.FailureRate, &rep.HarmfulActions, &rep.UserCorrections, &breakdown, &rep.LastUpdated); err != nil {
		return nil, fmt.Errorf("scan reputation: %w", err)
	}
	if err := json.Unmarshal(breakdown, &rep.Breakdown); err != nil {
		return nil, fmt.Errorf("unmarshal breakdown: %w", err)
	}
	return &rep, nil
}

func nonNilFloatMap(m map[string]float64) map[string]float64 {
	if m == nil {
		return map[string]float64{}
	}
	return m
}
