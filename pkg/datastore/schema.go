package datastore

import (
	"context"
	"fmt"
)

// Schema lists the tables used by the journal and project stores.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS journal_entries (
		id uuid PRIMARY KEY,
		operation text,
		project_id text,
		account text,
		target text,
		tx_hash text,
		status text,
		error text,
		result text,
		created_at timestamp,
		updated_at timestamp
	)`,
	`CREATE INDEX IF NOT EXISTS journal_entries_status_idx ON journal_entries (status)`,
	`CREATE TABLE IF NOT EXISTS projects (
		id text PRIMARY KEY,
		name text,
		token_address text,
		token_symbol text,
		pool_address text,
		price text,
		market_cap text,
		percent_change double,
		current_supply text,
		updated_at timestamp
	)`,
}

// Migrate creates any missing tables in the session's keyspace.
func Migrate(ctx context.Context, session Sessioner) error {
	for _, stmt := range Schema {
		if err := session.Query(stmt).WithContext(ctx).Exec(); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}
