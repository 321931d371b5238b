package postgres

import (
	"context"
	"fmt"
)

// migrations are applied in order by Migrate. Every statement is idempotent
// so Migrate is safe to run on every start.
//
// The unique indexes are load-bearing: they are the hard constraints the
// engine relies on for idempotency and sequence contiguity under concurrent
// writers (see the store package doc).
var migrations = []struct {
	name string
	stmt string
}{
	{
		name: "create_tally_accounts",
		stmt: `
CREATE TABLE IF NOT EXISTS tally_accounts (
    id           TEXT NOT NULL,
    tenant_id    TEXT NOT NULL,
    account_type TEXT NOT NULL DEFAULT '',
    currency     TEXT NOT NULL,
    metadata     JSONB NOT NULL DEFAULT '{}',
    created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    CONSTRAINT tally_accounts_pkey PRIMARY KEY (tenant_id, id)
);
`,
	},
	{
		name: "create_tally_events",
		stmt: `
CREATE TABLE IF NOT EXISTS tally_events (
    id                TEXT NOT NULL,
    tenant_id         TEXT NOT NULL,
    account_id        TEXT NOT NULL,
    event_type        TEXT NOT NULL,
    amount            NUMERIC NOT NULL,
    currency          TEXT NOT NULL,
    idempotency_key   TEXT NOT NULL,
    reverses_event_id TEXT,
    description       TEXT NOT NULL DEFAULT '',
    metadata          JSONB NOT NULL DEFAULT '{}',
    sequence_number   BIGINT NOT NULL,
    created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    CONSTRAINT tally_events_pkey PRIMARY KEY (tenant_id, id)
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_tally_events_idem
    ON tally_events (tenant_id, idempotency_key);
CREATE UNIQUE INDEX IF NOT EXISTS idx_tally_events_seq
    ON tally_events (tenant_id, account_id, sequence_number);
CREATE INDEX IF NOT EXISTS idx_tally_events_account
    ON tally_events (tenant_id, account_id);
`,
	},
	{
		name: "create_tally_audit_events",
		stmt: `
CREATE TABLE IF NOT EXISTS tally_audit_events (
    id          TEXT NOT NULL,
    tenant_id   TEXT NOT NULL,
    entity_type TEXT NOT NULL,
    entity_id   TEXT NOT NULL,
    action      TEXT NOT NULL,
    actor       TEXT NOT NULL DEFAULT '',
    payload     JSONB,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    CONSTRAINT tally_audit_events_pkey PRIMARY KEY (tenant_id, id)
);

CREATE INDEX IF NOT EXISTS idx_tally_audit_tenant
    ON tally_audit_events (tenant_id, created_at);
`,
	},
}

// Migrate creates the required tables and indexes.
func (s *Store) Migrate(ctx context.Context) error {
	for _, m := range migrations {
		if _, err := s.db.ExecContext(ctx, m.stmt); err != nil {
			return fmt.Errorf("tally/postgres: migrate %s: %w", m.name, err)
		}
	}

	return nil
}
