// Package postgres implements internal/store.Store on top of pgx/v5,
// mirroring the teacher's pkg/storage/postgres package: a thin Store
// holding a pgxpool.Pool and a sub-store per entity.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agenttrust/trustcore/internal/store"
)

// Config holds PostgreSQL connection configuration.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	// MaxConns bounds the pool; zero leaves pgxpool's default.
	MaxConns int32
}

func (c Config) connString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// Store implements store.Store for PostgreSQL.
type Store struct {
	pool         *pgxpool.Pool
	agents       *agentStore
	events       *eventStore
	capabilities *capabilityStore
	reputation   *reputationStore
	outcomes     *outcomeStore
}

// NewStore opens a pool against cfg, pings it, and wires the sub-stores.
func NewStore(ctx context.Context, cfg Config) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.connString())
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Store{
		pool:         pool,
		agents:       &agentStore{db: pool},
		events:       &eventStore{db: pool},
		capabilities: &capabilityStore{db: pool},
		reputation:   &reputationStore{db: pool},
		outcomes:     &outcomeStore{db: pool},
	}, nil
}

func (s *Store) Agents() store.AgentStore            { return s.agents }
func (s *Store) Events() store.EventStore            { return s.events }
func (s *Store) Capabilities() store.CapabilityStore { return s.capabilities }
func (s *Store) Reputation() store.ReputationStore   { return s.reputation }
func (s *Store) Outcomes() store.OutcomeStore        { return s.outcomes }

func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

// ApplySchema runs the trust core's DDL (Schema) against the pool.
// Intended for cmd/trustcore-admin; the store never applies it on its
// own so a running process never races a migration.
func (s *Store) ApplySchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, Schema)
	return err
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}
