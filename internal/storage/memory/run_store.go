package memory

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JakeFAU/headless-page-crawler/internal/crawler"
	"github.com/JakeFAU/headless-page-crawler/internal/store"
)

type siteKey struct {
	run  uuid.UUID
	site string
}

// RunStore is an in-memory store.RunRepository and crawler.ResultStore used
// when no database is configured.
type RunStore struct {
	mu    sync.RWMutex
	runs  map[uuid.UUID]store.Run
	sites map[siteKey]store.SiteStats
	pages map[string][]crawler.PageRecord
}

var (
	_ store.RunRepository = (*RunStore)(nil)
	_ crawler.ResultStore = (*RunStore)(nil)
)

// NewRunStore constructs an empty RunStore.
func NewRunStore() *RunStore {
	return &RunStore{
		runs:  make(map[uuid.UUID]store.Run),
		sites: make(map[siteKey]store.SiteStats),
		pages: make(map[string][]crawler.PageRecord),
	}
}

// StartRun records the run as running.
func (s *RunStore) StartRun(_ context.Context, runID uuid.UUID, startedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok {
		run = store.Run{ID: runID, StartedAt: startedAt.UTC()}
	}
	run.Status = store.RunRunning
	s.runs[runID] = run
	return nil
}

// CompleteRun marks the run finished.
func (s *RunStore) CompleteRun(
	_ context.Context,
	runID uuid.UUID,
	finishedAt time.Time,
	status store.RunStatus,
	pages int64,
	errMsg *string,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok {
		return store.ErrNotFound
	}
	finished := finishedAt.UTC()
	run.FinishedAt = &finished
	run.Status = status
	run.Pages = pages
	run.ErrorMessage = errMsg
	s.runs[runID] = run
	return nil
}

// AddSiteStats applies delta to the (run, site) aggregate.
func (s *RunStore) AddSiteStats(_ context.Context, runID uuid.UUID, site string, delta store.SiteDelta, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := siteKey{run: runID, site: site}
	stats, ok := s.sites[key]
	if !ok {
		stats = store.SiteStats{RunID: runID, Site: site}
	}
	stats.Pages += delta.Pages
	stats.Failures += delta.Failures
	stats.Links += delta.Links
	stats.LastUpdate = at.UTC()
	s.sites[key] = stats
	return nil
}

// GetRun returns the run or store.ErrNotFound.
func (s *RunStore) GetRun(_ context.Context, runID uuid.UUID) (store.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[runID]
	if !ok {
		return store.Run{}, store.ErrNotFound
	}
	return run, nil
}

// ListRuns returns runs newest first.
func (s *RunStore) ListRuns(_ context.Context, status *store.RunStatus, limit, offset int) ([]store.Run, error) {
	s.mu.RLock()
	runs := make([]store.Run, 0, len(s.runs))
	for _, run := range s.runs {
		if status != nil && run.Status != *status {
			continue
		}
		runs = append(runs, run)
	}
	s.mu.RUnlock()
	slices.SortFunc(runs, func(a, b store.Run) int {
		return b.StartedAt.Compare(a.StartedAt)
	})
	return page(runs, limit, offset), nil
}

// ListRunSites returns site aggregates for a run, busiest first.
func (s *RunStore) ListRunSites(_ context.Context, runID uuid.UUID, limit, offset int) ([]store.SiteStats, error) {
	s.mu.RLock()
	var out []store.SiteStats
	for key, stats := range s.sites {
		if key.run == runID {
			out = append(out, stats)
		}
	}
	s.mu.RUnlock()
	slices.SortFunc(out, func(a, b store.SiteStats) int {
		if c := cmp.Compare(b.Pages, a.Pages); c != 0 {
			return c
		}
		return cmp.Compare(a.Site, b.Site)
	})
	return page(out, limit, offset), nil
}

// StoreResult appends a page record to its run.
func (s *RunStore) StoreResult(_ context.Context, record crawler.PageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages[record.RunID] = append(s.pages[record.RunID], record)
	return nil
}

// Pages returns the page records stored for runID.
func (s *RunStore) Pages(runID string) []crawler.PageRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.pages[runID])
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
