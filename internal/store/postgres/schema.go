package postgres

// Schema is the DDL for the trust core's five tables (spec §6). It is
// exposed so cmd/trustcore-admin can run it against a fresh database;
// the store itself never applies it implicitly.
const Schema = `
CREATE TABLE IF NOT EXISTS agents (
	agent_id   TEXT PRIMARY KEY,
	public_key TEXT NOT NULL UNIQUE,
	name       TEXT NOT NULL DEFAULT '',
	owner      TEXT NOT NULL DEFAULT '',
	status     TEXT NOT NULL DEFAULT 'active',
	metadata   JSONB NOT NULL DEFAULT '{}'::jsonb,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	revoked_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS reputation (
	agent_id         TEXT PRIMARY KEY REFERENCES agents(agent_id),
	overall_score    DOUBLE PRECISION NOT NULL DEFAULT 50,
	total_actions    BIGINT NOT NULL DEFAULT 0,
	success_rate     DOUBLE PRECISION NOT NULL DEFAULT 0,
	failure_rate     DOUBLE PRECISION NOT NULL DEFAULT 0,
	harmful_actions  BIGINT NOT NULL DEFAULT 0,
	user_corrections BIGINT NOT NULL DEFAULT 0,
	breakdown        JSONB NOT NULL DEFAULT '{}'::jsonb,
	last_updated     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS events (
	id             BIGSERIAL PRIMARY KEY,
	agent_id       TEXT NOT NULL REFERENCES agents(agent_id),
	event_type     TEXT NOT NULL,
	ts             TIMESTAMPTZ NOT NULL,
	prev_hash      TEXT,
	hash           TEXT NOT NULL UNIQUE,
	payload        JSONB NOT NULL DEFAULT '{}'::jsonb,
	signature      TEXT NOT NULL,
	correlation_id TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_events_agent_ts ON events (agent_id, ts, id);
CREATE INDEX IF NOT EXISTS idx_events_correlation ON events (correlation_id) WHERE correlation_id <> '';

-- Events are append-only: no UPDATE or DELETE may ever touch this
-- table. The trigger is the database-level backstop for the invariant
-- the ledger's admission pipeline already enforces in application code.
CREATE OR REPLACE FUNCTION reject_event_mutation() RETURNS trigger AS $$
BEGIN
	RAISE EXCEPTION 'events is append-only';
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS events_no_update ON events;
CREATE TRIGGER events_no_update BEFORE UPDATE ON events
	FOR EACH ROW EXECUTE FUNCTION reject_event_mutation();

DROP TRIGGER IF EXISTS events_no_delete ON events;
CREATE TRIGGER events_no_delete BEFORE DELETE ON events
	FOR EACH ROW EXECUTE FUNCTION reject_event_mutation();

CREATE TABLE IF NOT EXISTS capabilities (
	id         TEXT PRIMARY KEY,
	agent_id   TEXT NOT NULL REFERENCES agents(agent_id),
	scope      JSONB NOT NULL,
	issued_by  TEXT NOT NULL DEFAULT '',
	issued_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	expires_at TIMESTAMPTZ NOT NULL,
	status     TEXT NOT NULL DEFAULT 'active',
	token_hash TEXT NOT NULL UNIQUE,
	revoked_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_capabilities_agent ON capabilities (agent_id, status);
CREATE INDEX IF NOT EXISTS idx_capabilities_expiry ON capabilities (status, expires_at) WHERE status = 'active';

CREATE TABLE IF NOT EXISTS outcomes (
	id           TEXT PRIMARY KEY,
	agent_id     TEXT NOT NULL REFERENCES agents(agent_id),
	event_id     BIGINT NOT NULL REFERENCES events(id),
	outcome_type TEXT NOT NULL,
	reporter     TEXT NOT NULL DEFAULT '',
	impact_score DOUBLE PRECISION NOT NULL DEFAULT 0,
	details      TEXT NOT NULL DEFAULT '',
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_outcomes_agent ON outcomes (agent_id, created_at);
`
