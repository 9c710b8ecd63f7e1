package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agenttrust/trustcore/internal/domain"
	"github.com/agenttrust/trustcore/internal/store"
)

type agentStore struct {
	db *pgxpool.Pool
}

// Insert creates the agent row and its companion reputation row inside
// one transaction, so a reader can never observe an agent without a
// reputation row (spec §4.8).
func (a *agentStore) Insert(ctx context.Context, ag *domain.Agent) error {
	tx, err := a.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	metadata, err := json.Marshal(nonNilMap(ag.Metadata))
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO agents (agent_id, public_key, name, owner, status, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, ag.AgentID, ag.PublicKey, ag.Name, ag.Owner, string(ag.Status), metadata, ag.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return store.ErrAlreadyExists
		}
		return fmt.Errorf("insert agent: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO reputation (agent_id, overall_score, total_actions, breakdown, last_updated)
		VALUES ($1, 50, 0, '{}'::jsonb, now())
	`, ag.AgentID)
	if err != nil {
		return fmt.Errorf("insert reputation: %w", err)
	}

	return tx.Commit(ctx)
}

func (a *agentStore) Get(ctx context.Context, agentID string) (*domain.Agent, error) {
	row := a.db.QueryRow(ctx, `
		SELECT agent_id, public_key, name, owner, status, metadata, created_at, revoked_at
		FROM agents WHERE agent_id = $1
	`, agentID)
	return scanAgent(row)
}

func (a *agentStore) GetByPublicKey(ctx context.Context, publicKeyHex string) (*domain.Agent, error) {
	row := a.db.QueryRow(ctx, `
		SELECT agent_id, public_key, name, owner, status, metadata, created_at, revoked_at
		FROM agents WHERE public_key = $1
	`, publicKeyHex)
	return scanAgent(row)
}

func (a *agentStore) List(ctx context.Context, filter store.AgentFilter) ([]*domain.Agent, error) {
	query := `
		SELECT agent_id, public_key, name, owner, status, metadata, created_at, revoked_at
		FROM agents WHERE 1=1
	`
	var args []interface{}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if filter.Owner != "" {
		args = append(args, filter.Owner)
		query += fmt.Sprintf(" AND owner = $%d", len(args))
	}
	query += " ORDER BY created_at ASC"

	rows, err := a.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	defer rows.Close()

	var out []*domain.Agent
	for rows.Next() {
		ag, err := scanAgentRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ag)
	}
	return out, rows.Err()
}

// Revoke transitions an active agent to revoked inside a transaction
// holding a row lock, so a concurrent revoke of the same agent either
// serializes behind this one or reports ErrInvalidState.
func (a *agentStore) Revoke(ctx context.Context, agentID string, reason string, revokedAt time.Time) (*domain.Agent, error) {
	tx, err := a.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
		SELECT agent_id, public_key, name, owner, status, metadata, created_at, revoked_at
		FROM agents WHERE agent_id = $1 FOR UPDATE
	`, agentID)
	ag, err := scanAgent(row)
	if err != nil {
		return nil, err
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
	metadata, err := json.Marshal(nonNilMap(ag.Metadata))
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE agents SET status = $1, metadata = $2, revoked_at = $3 WHERE agent_id = $4
	`, string(domain.AgentRevoked), metadata, revokedAt, agentID)
	if err != nil {
		return nil, fmt.Errorf("revoke agent: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit revoke: %w", err)
	}

	ag.Status = domain.AgentRevoked
	t := revokedAt
	ag.RevokedAt = &t
	return ag, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAgent(row rowScanner) (*domain.Agent, error) {
	var ag domain.Agent
	var metadata []byte
	err := row.Scan(&ag.AgentID, &ag.PublicKey, &ag.Name, &ag.Owner, &ag.Status, &metadata, &ag.CreatedAt, &ag.RevokedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan agent: %w", err)
	}
	if err := json.Unmarshal(metadata, &ag.Metadata); err != nil {
		return nil, fmt.Errorf("unmarshal metadata: %w", err)
	}
	return &ag, nil
}

func scanAgentRows(rows pgx.Rows) (*domain.Agent, error) {
	var ag domain.Agent
	var metadata []byte
	if err := rows.Scan(&ag.AgentID, &ag.PublicKey, &ag.Name, &ag.Owner, &ag.Status, &metadata, &ag.CreatedAt, &ag.RevokedAt); err != nil {
		return nil, fmt.Errorf("scan agent: %w", err)
	}
	if err := json.Unmarshal(metadata, &ag.Metadata); err != nil {
		return nil, fmt.Errorf("unmarshal metadata: %w", err)
	}
	return &ag, nil
}

func nonNilMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return map[string]interface{}{}
	}
	return m
}
