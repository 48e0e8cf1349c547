package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound signals that the requested record does not exist.
var ErrNotFound = errors.New("run record not found")

// RunStatus mirrors the crawl_runs status column.
type RunStatus string

// Run statuses persisted in crawl_runs.status.
const (
	RunRunning RunStatus = "running"
	RunSuccess RunStatus = "success"
	RunError   RunStatus = "error"
)

// Run models one row of crawl_runs.
type Run struct {
	ID         uuid.UUID
	StartedAt  time.Time
	FinishedAt *time.Time
	Status     RunStatus
	// Pages counts crawled pages as reported at completion.
	Pages        int64
	ErrorMessage *string
}

// SiteStats aggregates page outcomes per (run, site).
type SiteStats struct {
	RunID      uuid.UUID
	Site       string
	LastUpdate time.Time
	Pages      int64
	Failures   int64
	Links      int64
}

// SiteDelta is an increment applied to SiteStats.
type SiteDelta struct {
	Pages    int64
	Failures int64
	Links    int64
}

// RunRepository persists incremental run progress.
type RunRepository interface {
	// StartRun inserts (or idempotently updates) the run as running.
	StartRun(ctx context.Context, runID uuid.UUID, startedAt time.Time) error
	// CompleteRun marks the run finished with the provided status and error.
	CompleteRun(ctx context.Context, runID uuid.UUID, finishedAt time.Time, status RunStatus, pages int64, errMsg *string) error
	// AddSiteStats applies a delta to the (run, site) aggregate.
	AddSiteStats(ctx context.Context, runID uuid.UUID, site string, delta SiteDelta, at time.Time) error

	// GetRun loads a single run or returns ErrNotFound.
	GetRun(ctx context.Context, runID uuid.UUID) (Run, error)
	// ListRuns returns runs filtered by optional status plus limit/offset.
	ListRuns(ctx context.Context, status *RunStatus, limit, offset int) ([]Run, error)
	// ListRunSites returns aggregated site stats for one run.
	ListRunSites(ctx context.Context, runID uuid.UUID, limit, offset int) ([]SiteStats, error)
}
