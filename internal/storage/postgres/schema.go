package postgres

import (
	"context"
	"fmt"
)

// Schema creates the tables used by RunStore and ResultStore with their
// default names.
const Schema = `
CREATE TABLE IF NOT EXISTS crawl_runs (
	id            uuid PRIMARY KEY,
	started_at    timestamptz NOT NULL,
	finished_at   timestamptz,
	status        text NOT NULL,
	pages         bigint NOT NULL DEFAULT 0,
	error_message text
);

CREATE TABLE IF NOT EXISTS crawl_site_stats (
	run_id      uuid NOT NULL REFERENCES crawl_runs (id),
	site        text NOT NULL,
	last_update timestamptz NOT NULL,
	pages       bigint NOT NULL DEFAULT 0,
	failures    bigint NOT NULL DEFAULT 0,
	links       bigint NOT NULL DEFAULT 0,
	PRIMARY KEY (run_id, site)
);

CREATE TABLE IF NOT EXISTS crawl_pages (
	id          text PRIMARY KEY,
	run_id      text NOT NULL,
	url         text NOT NULL,
	depth       integer NOT NULL,
	status      text NOT NULL,
	links       jsonb NOT NULL,
	results     jsonb NOT NULL,
	crawled_at  timestamptz NOT NULL,
	duration_ms bigint NOT NULL
);

CREATE INDEX IF NOT EXISTS crawl_pages_run_idx ON crawl_pages (run_id);
`

// Migrate applies Schema.
func Migrate(ctx context.Context, pool execCloser) error {
	if _, err := pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
