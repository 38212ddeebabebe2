// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"fmt"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS links (
	id TEXT PRIMARY KEY,
	url TEXT NOT NULL UNIQUE,
	domain TEXT NOT NULL DEFAULT '',
	title TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	content_type TEXT NOT NULL DEFAULT 'unknown',
	status TEXT NOT NULL DEFAULT 'active',
	priority INT NOT NULL DEFAULT 0,
	scrape_interval_seconds BIGINT NOT NULL DEFAULT 86400,
	last_scraped TIMESTAMPTZ,
	next_scrape TIMESTAMPTZ,
	success_count INT NOT NULL DEFAULT 0,
	error_count INT NOT NULL DEFAULT 0,
	last_error TEXT NOT NULL DEFAULT '',
	tags JSONB NOT NULL DEFAULT '[]',
	discovered_from TEXT NOT NULL DEFAULT '',
	metadata JSONB NOT NULL DEFAULT '{}',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS links_due_idx
	ON links (priority DESC, next_scrape ASC)
	WHERE status = 'active'`,
	`CREATE TABLE IF NOT EXISTS scrape_jobs (
	id TEXT PRIMARY KEY,
	target_url TEXT NOT NULL,
	kind TEXT NOT NULL DEFAULT 'unknown',
	status TEXT NOT NULL DEFAULT 'pending',
	options JSONB NOT NULL DEFAULT '{}',
	result JSONB,
	error TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	started_at TIMESTAMPTZ,
	ended_at TIMESTAMPTZ
)`,
	`CREATE TABLE IF NOT EXISTS scrape_history (
	id TEXT PRIMARY KEY,
	link_id TEXT NOT NULL,
	job_id TEXT NOT NULL,
	status TEXT NOT NULL,
	error TEXT NOT NULL DEFAULT '',
	scraped_at TIMESTAMPTZ NOT NULL,
	duration_ms BIGINT NOT NULL DEFAULT 0,
	UNIQUE (link_id, job_id)
)`,
	`CREATE INDEX IF NOT EXISTS scrape_history_link_idx
	ON scrape_history (link_id, scraped_at DESC)`,
}

// EnsureSchema creates the tables and indexes if they do not exist.
func EnsureSchema(ctx context.Context, db execer) error {
	for _, stmt := range schemaStatements {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
