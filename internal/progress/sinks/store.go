package sinks

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/headless-page-crawler/internal/crawler"
	"github.com/JakeFAU/headless-page-crawler/internal/progress"
	"github.com/JakeFAU/headless-page-crawler/internal/store"
)

// StoreSink keeps run bookkeeping in a store.RunRepository and, when a
// ResultStore is configured, persists one record per crawled page. Site
// counters are collapsed per batch to reduce write amplification.
type StoreSink struct {
	repo    store.RunRepository
	results crawler.ResultStore
	ids     crawler.IDGenerator
	logger  *zap.Logger
}

// StoreSinkOption customizes a StoreSink.
type StoreSinkOption func(*StoreSink)

// WithResultStore persists a page record for every PAGE_CRAWLED event.
// ids fills in record ids for results that carry none.
func WithResultStore(results crawler.ResultStore, ids crawler.IDGenerator) StoreSinkOption {
	return func(s *StoreSink) {
		s.results = results
		s.ids = ids
	}
}

// NewStoreSink constructs a StoreSink for the provided repository.
func NewStoreSink(repo store.RunRepository, logger *zap.Logger, opts ...StoreSinkOption) *StoreSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &StoreSink{repo: repo, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Consume applies run transitions in order, stores page records and then
// flushes the collapsed site deltas. It returns the first repository error.
func (s *StoreSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.repo == nil {
		return nil
	}
	stats := make(map[statsKey]*statsDelta)

	for _, evt := range batch {
		runID := evt.RunUUID()
		switch evt.Stage {
		case progress.StageRunStart, progress.StageRunDone:
			if err := s.handleRunEvent(ctx, runID, evt); err != nil {
				return err
			}
		case progress.StagePageCrawled:
			recordSiteStats(stats, runID, evt)
			if err := s.storePage(ctx, evt); err != nil {
				return err
			}
		case progress.StagePageError:
			recordSiteStats(stats, runID, evt)
		}
	}

	for key, delta := range stats {
		if err := s.repo.AddSiteStats(ctx, key.runID, key.site, delta.SiteDelta, delta.at); err != nil {
			return fmt.Errorf("add site stats: %w", err)
		}
	}
	return nil
}

func (s *StoreSink) handleRunEvent(ctx context.Context, runID uuid.UUID, evt progress.Event) error {
	if evt.Stage == progress.StageRunStart {
		if err := s.repo.StartRun(ctx, runID, evt.TS); err != nil {
			return fmt.Errorf("start run: %w", err)
		}
		return nil
	}
	status := store.RunSuccess
	var note *string
	if evt.Failed() {
		status = store.RunError
		msg := evt.Note
		note = &msg
	}
	if err := s.repo.CompleteRun(ctx, runID, evt.TS, status, evt.Pages, note); err != nil {
		return fmt.Errorf("complete run: %w", err)
	}
	return nil
}

func (s *StoreSink) storePage(ctx context.Context, evt progress.Event) error {
	if s.results == nil {
		return nil
	}
	rec := pageRecord(evt)
	if rec.ID == "" && s.ids != nil {
		id, err := s.ids.NewID()
		if err != nil {
			return fmt.Errorf("page record id: %w", err)
		}
		rec.ID = id
	}
	if err := s.results.StoreResult(ctx, rec); err != nil {
		return fmt.Errorf("store page %s: %w", rec.URL, err)
	}
	return nil
}

func recordSiteStats(stats map[statsKey]*statsDelta, runID uuid.UUID, evt progress.Event) {
	if evt.Site == "" {
		return
	}
	key := statsKey{runID: runID, site: evt.Site}
	stat := stats[key]
	if stat == nil {
		stat = &statsDelta{}
		stats[key] = stat
	}
	if evt.Stage == progress.StagePageCrawled && evt.Status.Success() {
		stat.Pages++
	} else {
		stat.Failures++
	}
	stat.Links += int64(evt.Links)
	if evt.TS.After(stat.at) {
		stat.at = evt.TS
	}
}

// Close implements the Sink interface; it performs no action.
func (s *StoreSink) Close(context.Context) error {
	return nil
}

type statsKey struct {
	runID uuid.UUID
	site  string
}

type statsDelta struct {
	store.SiteDelta
	at time.Time
}
