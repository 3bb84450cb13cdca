package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schema is the document-store layout: one jsonb doc per row with the
// columns the query paths need extracted for indexing.
const schema = `
CREATE TABLE IF NOT EXISTS leads (
	uid           TEXT PRIMARY KEY,
	item_id       TEXT NOT NULL UNIQUE,
	current_stage TEXT NOT NULL,
	config        TEXT NOT NULL,
	status        TEXT NOT NULL,
	assigned_to   TEXT[] NOT NULL DEFAULT '{}',
	created_at    TIMESTAMPTZ NOT NULL,
	updated_at    TIMESTAMPTZ NOT NULL,
	doc           JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS leads_current_stage_idx ON leads (current_stage);
CREATE INDEX IF NOT EXISTS leads_config_idx ON leads (config);
CREATE INDEX IF NOT EXISTS leads_created_at_idx ON leads (created_at DESC);
CREATE INDEX IF NOT EXISTS leads_assigned_to_idx ON leads USING GIN (assigned_to);

CREATE TABLE IF NOT EXISTS stages (
	uid        TEXT PRIMARY KEY,
	config     TEXT NOT NULL,
	ord        INT NOT NULL DEFAULT 0,
	seq        BIGINT GENERATED ALWAYS AS IDENTITY,
	updated_at TIMESTAMPTZ NOT NULL,
	doc        JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS stages_config_idx ON stages (config);
CREATE INDEX IF NOT EXISTS stages_ord_idx ON stages (ord);

CREATE TABLE IF NOT EXISTS configs (
	uid        TEXT PRIMARY KEY,
	updated_at TIMESTAMPTZ NOT NULL,
	doc        JSONB NOT NULL
);

CREATE TABLE IF NOT EXISTS lead_counters (
	counter_key TEXT PRIMARY KEY,
	seq         BIGINT NOT NULL
);
`

// EnsureSchema creates the tables and indexes if they do not exist yet.
// Safe to run on every startup.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensuring schema: %w", err)
	}
	return nil
}
