package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agenttrust/trustcore/internal/domain"
	"github.com/agenttrust/trustcore/internal/store"
)

type eventStore struct {
	db *pgxpool.Pool
}

const eventColumns = `id, agent_id, event_type, ts, prev_hash, hash, payload, signature, correlation_id`

func (e *eventStore) LastForAgent(ctx context.Context, agentID string) (*domain.Event, error) {
	row := e.db.QueryRow(ctx, `
		SELECT `+eventColumns+` FROM events
		WHERE agent_id = $1 ORDER BY ts DESC, id DESC LIMIT 1
	`, agentID)
	ev, err := scanEvent(row)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	return ev, err
}

// InsertLinked locks the agent row for the duration of the transaction
// (SELECT ... FOR UPDATE), so two concurrent admissions for the same
// agent serialize rather than both observing the same chain head. The
// second to commit re-reads the head inside the lock and fails with
// ErrChainConflict if it no longer matches expectedPrevHash.
func (e *eventStore) InsertLinked(ctx context.Context, ev *domain.Event, expectedPrevHash *string) error {
	tx, err := e.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var lockedAgentID string
	if err := tx.QueryRow(ctx, `SELECT agent_id FROM agents WHERE agent_id = $1 FOR UPDATE`, ev.AgentID).Scan(&lockedAgentID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.ErrNotFound
		}
		return fmt.Errorf("lock agent: %w", err)
	}

	var actualPrevHash *string
	row := tx.QueryRow(ctx, `
		SELECT hash FROM events WHERE agent_id = $1 ORDER BY ts DESC, id DESC LIMIT 1
	`, ev.AgentID)
	var h string
	switch err := row.Scan(&h); {
	case errors.Is(err, pgx.ErrNoRows):
		actualPrevHash = nil
	case err != nil:
		return fmt.Errorf("read chain head: %w", err)
	default:
		actualPrevHash = &h
	}

	if !hashPtrEqual(actualPrevHash, expectedPrevHash) {
		return store.ErrChainConflict
	}

	payload, err := json.Marshal(nonNilMap(ev.Payload))
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO events (agent_id, event_type, ts, prev_hash, hash, payload, signature, correlation_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`, ev.AgentID, string(ev.EventType), ev.Timestamp, ev.PrevHash, ev.Hash, payload, ev.Signature, ev.CorrelationID).Scan(&ev.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return store.ErrAlreadyExists
		}
		return fmt.Errorf("insert event: %w", err)
	}

	return tx.Commit(ctx)
}

func hashPtrEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func (e *eventStore) GetByID(ctx context.Context, id int64) (*domain.Event, error) {
	row := e.db.QueryRow(ctx, `SELECT `+eventColumns+` FROM events WHERE id = $1`, id)
	return scanEvent(row)
}

func (e *eventStore) GetByHash(ctx context.Context, hash string) (*domain.Event, error) {
	row := e.db.QueryRow(ctx, `SELECT `+eventColumns+` FROM events WHERE hash = $1`, hash)
	return scanEvent(row)
}

func (e *eventStore) Query(ctx context.Context, filter store.EventFilter) ([]*domain.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE 1=1`
	var args []interface{}
	addArg := func(v interface{}) int {
		args = append(args, v)
		return len(args)
	}
	if filter.AgentID != "" {
		query += fmt.Sprintf(" AND agent_id = $%d", addArg(filter.AgentID))
	}
	if filter.EventType != "" {
		query += fmt.Sprintf(" AND event_type = $%d", addArg(string(filter.EventType)))
	}
	if filter.CorrelationID != "" {
		query += fmt.Sprintf(" AND correlation_id = $%d", addArg(filter.CorrelationID))
	}
	if filter.Since != nil {
		query += fmt.Sprintf(" AND ts >= $%d", addArg(*filter.Since))
	}
	if filter.Until != nil {
		query += fmt.Sprintf(" AND ts <= $%d", addArg(*filter.Until))
	}
	query += " ORDER BY ts DESC, id DESC"

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(" LIMIT $%d", addArg(limit))
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	query += fmt.Sprintf(" OFFSET $%d", addArg(offset))

	rows, err := e.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []*domain.Event
	for rows.Next() {
		ev, err := scanEventRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (e *eventStore) Count(ctx context.Context, filter store.EventFilter) (int64, error) {
	query := `SELECT COUNT(*) FROM events WHERE 1=1`
	var args []interface{}
	addArg := func(v interface{}) int {
		args = append(args, v)
		return len(args)
	}
	if filter.AgentID != "" {
		query += fmt.Sprintf(" AND agent_id = $%d", addArg(filter.AgentID))
	}
	if filter.EventType != "" {
		query += fmt.Sprintf(" AND event_type = $%d", addArg(string(filter.EventType)))
	}
	if filter.CorrelationID != "" {
		query += fmt.Sprintf(" AND correlation_id = $%d", addArg(filter.CorrelationID))
	}
	if filter.Since != nil {
		query += fmt.Sprintf(" AND ts >= $%d", addArg(*filter.Since))
	}
	if filter.Until != nil {
		query += fmt.Sprintf(" AND ts <= $%d", addArg(*filter.Until))
	}

	var count int64
	if err := e.db.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return count, nil
}

func (e *eventStore) ChainForAgent(ctx context.Context, agentID string) ([]*domain.Event, error) {
	rows, err := e.db.Query(ctx, `
		SELECT `+eventColumns+` FROM events WHERE agent_id = $1 ORDER BY ts ASC, id ASC
	`, agentID)
	if err != nil {
		return nil, fmt.Errorf("query chain: %w", err)
	}
	defer rows.Close()

	var out []*domain.Event
	for rows.Next() {
		ev, err := scanEventRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func scanEvent(row rowScanner) (*domain.Event, error) {
	var ev domain.Event
	var payload []byte
	err := row.Scan(&ev.ID, &ev.AgentID, &ev.EventType, &ev.Timestamp, &ev.PrevHash, &ev.Hash, &payload, &ev.Signature, &ev.CorrelationID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan event: %w", err)
	}
	if err := json.Unmarshal(payload, &ev.Payload); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}
	return &ev, nil
}

func scanEventRows(rows pgx.Rows) (*domain.Event, error) {
	var ev domain.Event
	var payload []byte
	if err := rows.Scan(&ev.ID, &ev.AgentID, &ev.EventType, &ev.Timestamp, &ev.PrevHash, &ev.Hash, &payload, &ev.Signature, &ev.CorrelationID); err != nil {
		return nil, fmt.Errorf("scan event: %w", err)
	}
	if err := json.Unmarshal(payload, &ev.Payload); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}
	return &ev, nil
}
