package postgres

import "context"

const schemaSQL = `
CREATE TABLE IF NOT EXISTS workflows (
    agent_id          TEXT PRIMARY KEY,
    name              TEXT NOT NULL DEFAULT '',
    description       TEXT NOT NULL DEFAULT '',
    instructions      TEXT NOT NULL DEFAULT '',
    global_actions    JSONB NOT NULL DEFAULT '[]',
    global_faqs       JSONB NOT NULL DEFAULT '[]',
    global_objections JSONB NOT NULL DEFAULT '[]',
    nodes             JSONB NOT NULL DEFAULT '[]',
    edges             JSONB NOT NULL DEFAULT '[]',
    position_x        DOUBLE PRECISION NOT NULL DEFAULT 0,
    position_y        DOUBLE PRECISION NOT NULL DEFAULT 0,
    updated_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS workflow_actions (
    id          TEXT PRIMARY KEY,
    project_id  TEXT NOT NULL,
    name        TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    kind        TEXT NOT NULL DEFAULT '',
    active      BOOLEAN NOT NULL DEFAULT TRUE,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_workflow_actions_project ON workflow_actions(project_id);
`

// CreateSchema creates the workflows and workflow_actions tables if they
// don't exist.
func (s *PGStore) CreateSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, schemaSQL)
	return err
}

// DropSchema drops the workflow tables.
func (s *PGStore) DropSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `DROP TABLE IF EXISTS workflow_actions, workflows CASCADE;`)
	return err
}
