package repository

// SchemaDDL creates the backing tables. Applied by `cmd/seed` and by the
// repository integration tests.
const SchemaDDL = `
CREATE TABLE IF NOT EXISTS workflows (
	id UUID PRIMARY KEY,
	customer_id TEXT NOT NULL,
	name TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	version INT NOT NULL,
	nodes JSONB NOT NULL DEFAULT '[]',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS workflows_customer_idx ON workflows (customer_id, created_at DESC);

CREATE TABLE IF NOT EXISTS workflow_runs (
	id UUID PRIMARY KEY,
	workflow_id UUID NOT NULL,
	customer_id TEXT NOT NULL,
	status TEXT NOT NULL,
	input JSONB,
	nodes_snapshot JSONB NOT NULL DEFAULT '[]',
	results JSONB NOT NULL DEFAULT '[]',
	summary JSONB NOT NULL DEFAULT '{}',
	started_at TIMESTAMPTZ NOT NULL,
	completed_at TIMESTAMPTZ,
	execution_time_ms BIGINT,
	error TEXT
);
CREATE INDEX IF NOT EXISTS workflow_runs_customer_idx ON workflow_runs (customer_id, started_at DESC);
CREATE INDEX IF NOT EXISTS workflow_runs_workflow_idx ON workflow_runs (workflow_id, started_at DESC);

CREATE TABLE IF NOT EXISTS workflow_events (
	id UUID PRIMARY KEY,
	workflow_id UUID NOT NULL,
	customer_id TEXT NOT NULL,
	event_data JSONB NOT NULL DEFAULT '{}',
	received_at TIMESTAMPTZ NOT NULL,
	processed BOOLEAN NOT NULL DEFAULT FALSE,
	run_id UUID
);
CREATE INDEX IF NOT EXISTS workflow_events_workflow_idx ON workflow_events (workflow_id, received_at DESC);

CREATE TABLE IF NOT EXISTS workflow_sessions (
	id UUID PRIMARY KEY,
	workflow_id UUID NOT NULL,
	customer_id TEXT NOT NULL,
	messages JSONB NOT NULL DEFAULT '[]',
	created_at TIMESTAMPTZ NOT NULL,
	last_active_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS workflow_sessions_activity_idx ON workflow_sessions (last_active_at);

CREATE TABLE IF NOT EXISTS run_step_results (
	run_key TEXT NOT NULL,
	step_name TEXT NOT NULL,
	payload BYTEA NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (run_key, step_name)
);
`
