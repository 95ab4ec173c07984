package db

import (
	"context"
	"database/sql"
	"fmt"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS privileged_users (
    subject_id  TEXT PRIMARY KEY,
    granted_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
    granted_by  TEXT,
    revoked_at  TIMESTAMPTZ
)`,
	// lookups only ever target active grants
	`CREATE INDEX IF NOT EXISTS idx_privileged_users_active ON privileged_users(subject_id) WHERE revoked_at IS NULL`,
}

// MigrateUp creates the role registry schema. It is idempotent.
func MigrateUp(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate role registry: %w", err)
		}
	}
	return nil
}
