package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agenttrust/trustcore/internal/domain"
)

type outcomeStore struct {
	db *pgxpool.Pool
}

func (o *outcomeStore) Insert(ctx context.Context, out *domain.Outcome) error {
	_, err := o.db.Exec(ctx, `
		INSERT INTO outcomes (id, agent_id, event_id, outcome_type, reporter, impact_score, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, out.ID, out.AgentID, out.EventID, string(out.OutcomeType), out.Reporter, out.ImpactScore, out.Details, out.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert outcome: %w", err)
	}
	return nil
}
