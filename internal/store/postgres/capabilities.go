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

type capabilityStore struct {
	db *pgxpool.Pool
}

const capabilityColumns = `id, agent_id, scope, issued_by, issued_at, expires_at, status, token_hash, revoked_at`

func (c *capabilityStore) Insert(ctx context.Context, cap *domain.Capability) error {
	scope, err := json.Marshal(nonNilMap(cap.Scope))
	if err != nil {
		return fmt.Errorf("marshal scope: %w", err)
	}

	_, err = c.db.Exec(ctx, `
		INSERT INTO capabilities (id, agent_id, scope, issued_by, issued_at, expires_at, status, token_hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, cap.ID, cap.AgentID, scope, cap.IssuedBy, cap.IssuedAt, cap.ExpiresAt, string(cap.Status), cap.TokenHash)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return store.ErrAlreadyExists
		}
		return fmt.Errorf("insert capability: %w", err)
	}
	return nil
}

func (c *capabilityStore) GetByTokenHash(ctx context.Context, tokenHash string) (*domain.Capability, error) {
	row := c.db.QueryRow(ctx, `SELECT `+capabilityColumns+` FROM capabilities WHERE token_hash = $1`, tokenHash)
	return scanCapability(row)
}

func (c *capabilityStore) GetByID(ctx context.Context, id string) (*domain.Capability, error) {
	row := c.db.QueryRow(ctx, `SELECT `+capabilityColumns+` FROM capabilities WHERE id = $1`, id)
	return scanCapability(row)
}

func (c *capabilityStore) ListActiveForAgent(ctx context.Context, agentID string) ([]*domain.Capability, error) {
	return c.List(ctx, agentID, true)
}

func (c *capabilityStore) List(ctx context.Context, agentID string, activeOnly bool) ([]*domain.Capability, error) {
	query := `SELECT ` + capabilityColumns + ` FROM capabilities WHERE 1=1`
	var args []interface{}
	if agentID != "" {
		args = append(args, agentID)
		query += fmt.Sprintf(" AND agent_id = $%d", len(args))
	}
	if activeOnly {
		args = append(args, string(domain.CapabilityActive))
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	query += " ORDER BY issued_at ASC"

	rows, err := c.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list capabilities: %w", err)
	}
	defer rows.Close()

	var out []*domain.Capability
	for rows.Next() {
		cap, err := scanCapabilityRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, cap)
	}
	return out, rows.Err()
}

func (c *capabilityStore) Revoke(ctx context.Context, id string, revokedAt time.Time) (*domain.Capability, error) {
	tx, err := c.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `SELECT `+capabilityColumns+` FROM capabilities WHERE id = $1 FOR UPDATE`, id)
	cap, err := scanCapability(row)
	if err != nil {
		return nil, err
	}
	if cap.Status != domain.CapabilityActive {
		return nil, store.ErrInvalidState
	}

	_, err = tx.Exec(ctx, `
		UPDATE capabilities SET status = $1, revoked_at = $2 WHERE id = $3
	`, string(domain.CapabilityRevoked), revokedAt, id)
	if err != nil {
		return nil, fmt.Errorf("revoke capability: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit revoke: %w", err)
	}

	cap.Status = domain.CapabilityRevoked
	t := revokedAt
	cap.RevokedAt = &t
	return cap, nil
}

// ExpireDue transitions every due-active capability to expired in one
// statement and returns pgx's reported row count, not an approximation.
func (c *capabilityStore) ExpireDue(ctx context.Context, asOf time.Time) (int64, error) {
	tag, err := c.db.Exec(ctx, `
		UPDATE capabilities SET status = $1
		WHERE status = $2 AND expires_at <= $3
	`, string(domain.CapabilityExpired), string(domain.CapabilityActive), asOf)
	if err != nil {
		return 0, fmt.Errorf("expire capabilities: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanCapability(row rowScanner) (*domain.Capability, error) {
	var cap domain.Capability
	var scope []byte
	err := row.Scan(&cap.ID, &cap.AgentID, &scope, &cap.IssuedBy, &cap.IssuedAt, &cap.ExpiresAt, &cap.Status, &cap.TokenHash, &cap.RevokedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan capability: %w", err)
	}
	if err := json.Unmarshal(scope, &cap.Scope); err != nil {
		return nil, fmt.Errorf("unmarshal scope: %w", err)
	}
	return &cap, nil
}

func scanCapabilityRows(rows pgx.Rows) (*domain.Capability, error) {
	var cap domain.Capability
	var scope []byte
	if err := rows.Scan(&cap.ID, &cap.AgentID, &scope, &cap.IssuedBy, &cap.IssuedAt, &cap.ExpiresAt, &cap.Status, &cap.TokenHash, &cap.RevokedAt); err != nil {
		return nil, fmt.Errorf("scan capability: %w", err)
	}
	if err := json.Unmarshal(scope, &cap.Scope); err != nil {
		return nil, fmt.Errorf("unmarshal scope: %w", err)
	}
	return &cap, nil
}
