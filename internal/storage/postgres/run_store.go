package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/headless-page-crawler/internal/store"
)

// RunStore implements store.RunRepository against the crawl_runs and
// crawl_site_stats tables.
type RunStore struct {
	pool queryExecCloser
}

var _ store.RunRepository = (*RunStore)(nil)

// NewRunStore wraps an existing pool.
func NewRunStore(pool queryExecCloser) (*RunStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &RunStore{pool: pool}, nil
}

// Close closes the underlying connection pool.
func (s *RunStore) Close() {
	s.pool.Close()
}

// StartRun inserts a run row or flips an existing one back to running.
func (s *RunStore) StartRun(ctx context.Context, runID uuid.UUID, startedAt time.Time) error {
	const query = `
		INSERT INTO crawl_runs (id, started_at, status, pages)
		VALUES ($1, $2, $3, 0)
		ON CONFLICT (id) DO UPDATE
		SET status = EXCLUDED.status
		WHERE crawl_runs.status <> EXCLUDED.status;`
	if _, err := s.pool.Exec(ctx, query, runID, startedAt, store.RunRunning); err != nil {
		return fmt.Errorf("upsert run start: %w", err)
	}
	return nil
}

// CompleteRun marks a run finished.
func (s *RunStore) CompleteRun(
	ctx context.Context,
	runID uuid.UUID,
	finishedAt time.Time,
	status store.RunStatus,
	pages int64,
	errMsg *string,
) error {
	const query = `
		UPDATE crawl_runs
		SET finished_at = $1, status = $2, pages = $3, error_message = $4
		WHERE id = $5;`
	if _, err := s.pool.Exec(ctx, query, finishedAt, status, pages, errMsg, runID); err != nil {
		return fmt.Errorf("complete run: %w", err)
	}
	return nil
}

// AddSiteStats upserts the per-site aggregate in a single statement.
func (s *RunStore) AddSiteStats(ctx context.Context, runID uuid.UUID, site string, delta store.SiteDelta, at time.Time) error {
	const query = `
		INSERT INTO crawl_site_stats (run_id, site, last_update, pages, failures, links)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (run_id, site) DO UPDATE
		SET pages = crawl_site_stats.pages + EXCLUDED.pages,
			failures = crawl_site_stats.failures + EXCLUDED.failures,
			links = crawl_site_stats.links + EXCLUDED.links,
			last_update = GREATEST(crawl_site_stats.last_update, EXCLUDED.last_update);`
	if _, err := s.pool.Exec(ctx, query, runID, site, at, delta.Pages, delta.Failures, delta.Links); err != nil {
		return fmt.Errorf("upsert site stats: %w", err)
	}
	return nil
}

// GetRun retrieves a single run by its ID.
func (s *RunStore) GetRun(ctx context.Context, runID uuid.UUID) (store.Run, error) {
	const query = `
		SELECT id, started_at, finished_at, status, pages, error_message
		FROM crawl_runs
		WHERE id = $1;`
	var run store.Run
	err := s.pool.QueryRow(ctx, query, runID).Scan(
		&run.ID,
		&run.StartedAt,
		&run.FinishedAt,
		&run.Status,
		&run.Pages,
		&run.ErrorMessage,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Run{}, store.ErrNotFound
		}
		return store.Run{}, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

// ListRuns retrieves runs newest first, optionally filtered by status.
func (s *RunStore) ListRuns(ctx context.Context, status *store.RunStatus, limit, offset int) ([]store.Run, error) {
	const query = `
		SELECT id, started_at, finished_at, status, pages, error_message
		FROM crawl_runs
		WHERE ($1::text IS NULL OR status = $1)
		ORDER BY started_at DESC
		LIMIT $2 OFFSET $3;`
	rows, err := s.pool.Query(ctx, query, status, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	runs := []store.Run{}
	for rows.Next() {
		var run store.Run
		if err := rows.Scan(&run.ID, &run.StartedAt, &run.FinishedAt, &run.Status, &run.Pages, &run.ErrorMessage); err != nil {
			return nil, fmt.Errorf("scan run row: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run rows: %w", err)
	}
	return runs, nil
}

// ListRunSites retrieves aggregated site statistics for a run.
func (s *RunStore) ListRunSites(ctx context.Context, runID uuid.UUID, limit, offset int) ([]store.SiteStats, error) {
	const query = `
		SELECT run_id, site, last_update, pages, failures, links
		FROM crawl_site_stats
		WHERE run_id = $1
		ORDER BY pages DESC, site
		LIMIT $2 OFFSET $3;`
	rows, err := s.pool.Query(ctx, query, runID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list run sites: %w", err)
	}
	defer rows.Close()

	stats := []store.SiteStats{}
	for rows.Next() {
		var stat store.SiteStats
		if err := rows.Scan(&stat.RunID, &stat.Site, &stat.LastUpdate, &stat.Pages, &stat.Failures, &stat.Links); err != nil {
			return nil, fmt.Errorf("scan site stats row: %w", err)
		}
		stats = append(stats, stat)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate site stats rows: %w", err)
	}
	return stats, nil
}
