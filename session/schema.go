package session

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DefaultTable is the table PostgresStore reads and writes.
const DefaultTable = "tokenauth_sessions"

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS ` + DefaultTable + ` (
		principal_id       TEXT PRIMARY KEY,
		access_token_id    TEXT NOT NULL,
		refresh_token      TEXT NOT NULL,
		refresh_digest     TEXT NOT NULL,
		refresh_binding_id TEXT NOT NULL,
		name               TEXT NOT NULL DEFAULT '',
		role               TEXT NOT NULL DEFAULT '',
		store_name         TEXT NOT NULL DEFAULT '',
		store_category     TEXT NOT NULL DEFAULT '',
		expires_at         TIMESTAMPTZ NOT NULL,
		created_at         TIMESTAMPTZ NOT NULL,
		last_used_at       TIMESTAMPTZ NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ` + DefaultTable + `_refresh_digest_idx
		ON ` + DefaultTable + ` (refresh_digest)`,
	`CREATE INDEX IF NOT EXISTS ` + DefaultTable + `_expires_at_idx
		ON ` + DefaultTable + ` (expires_at)`,
}

// EnsureSchema creates the session table and its indexes if they do not
// exist. It is safe to call on every startup.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schemaStatements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensuring session schema: %w", err)
		}
	}
	return nil
}
