package store

import (
	"context"
	"database/sql"
	"fmt"
)

const schema = `
CREATE TABLE IF NOT EXISTS verification_requests (
	account_id   BYTEA PRIMARY KEY CHECK (octet_length(account_id) = 32),
	resource_id  BYTEA NOT NULL CHECK (octet_length(resource_id) = 32),
	submitted_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS identity_bindings (
	account_id BYTEA PRIMARY KEY CHECK (octet_length(account_id) = 32),
	username   TEXT NOT NULL,
	bound_at   BIGINT NOT NULL
);
`

// Migrate creates the registry tables when they do not exist yet.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate oracle schema: %w", err)
	}
	return nil
}
