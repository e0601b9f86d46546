package postgres

import (
	"context"
	"fmt"
)

const schema = `
CREATE TABLE IF NOT EXISTS kv_users (
	namespace TEXT NOT NULL,
	id TEXT NOT NULL,
	email TEXT NOT NULL,
	data JSONB NOT NULL,
	PRIMARY KEY (namespace, id),
	UNIQUE (namespace, email)
);

CREATE TABLE IF NOT EXISTS kv_sessions (
	namespace TEXT NOT NULL,
	token TEXT NOT NULL,
	user_id TEXT NOT NULL,
	expires_at TIMESTAMPTZ,
	PRIMARY KEY (namespace, token)
);

CREATE TABLE IF NOT EXISTS kv_projects (
	namespace TEXT NOT NULL,
	id TEXT NOT NULL,
	owner_user_id TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	data JSONB NOT NULL,
	PRIMARY KEY (namespace, id)
);
CREATE INDEX IF NOT EXISTS kv_projects_owner ON kv_projects (namespace, owner_user_id, created_at DESC);

CREATE TABLE IF NOT EXISTS kv_notes (
	seq BIGSERIAL PRIMARY KEY,
	namespace TEXT NOT NULL,
	id TEXT NOT NULL,
	project_id TEXT NOT NULL,
	data JSONB NOT NULL,
	UNIQUE (namespace, id)
);
CREATE INDEX IF NOT EXISTS kv_notes_project ON kv_notes (namespace, project_id, seq);
`

// Migrate creates the key-value tables when they do not exist yet.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}
