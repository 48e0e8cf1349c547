// Package dispatcher drives a pool of page workers over a crawl frontier.
// Each worker crawls at most one URL at a time; the dispatcher decides which
// URLs are admitted, spaces requests per host and feeds discovered links back
// into the frontier.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/headless-page-crawler/internal/crawler"
	"github.com/JakeFAU/headless-page-crawler/internal/metrics"
	"github.com/JakeFAU/headless-page-crawler/internal/progress"
	"github.com/JakeFAU/headless-page-crawler/internal/queue/memory"
	"github.com/JakeFAU/headless-page-crawler/internal/worker"
)

const tracerName = "github.com/JakeFAU/headless-page-crawler/internal/dispatcher"

// Skip reasons reported in PAGE_SKIPPED notes and admission metrics.
const (
	SkipDuplicate = "duplicate"
	SkipDepth     = "depth"
	SkipOffsite   = "offsite"
	SkipRobots    = "robots"
	SkipMaxPages  = "max_pages"
	SkipInvalid   = "invalid_url"
	SkipQueueFull = "queue_full"
)

var (
	// ErrRunning is returned by Run while another run is in progress.
	ErrRunning = errors.New("dispatcher: run already in progress")
	// ErrNoSeeds is returned when none of the seed URLs can be crawled.
	ErrNoSeeds = errors.New("dispatcher: no valid seed urls")
)

// PageCrawler is the part of worker.Worker the dispatcher drives.
type PageCrawler interface {
	Process(url string) error
	OnCrawled(fn func(result crawler.CrawlResult))
}

// RateLimiter blocks until a request to rawURL may proceed.
type RateLimiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// RunIDGenerator issues run ids and page record ids.
type RunIDGenerator interface {
	crawler.IDGenerator
	NewRunID() (uuid.UUID, error)
}

// Config bounds a crawl run.
type Config struct {
	// MaxDepth is the deepest link level crawled; seeds are depth 0. A
	// negative value means unlimited.
	MaxDepth int
	// MaxPages caps the pages crawled per run; zero means unlimited.
	MaxPages int
	// SameHost restricts discovered links to the hosts of the seeds.
	SameHost bool
	// QueueDepth is the frontier capacity (default 1024).
	QueueDepth int
	// PageTimeout bounds the wait for onPageCrawled (default 2m).
	PageTimeout time.Duration
}

// Deps groups the collaborators of a Dispatcher. Nil members get no-op or
// default implementations.
type Deps struct {
	Robots   crawler.RobotsPolicy
	Limiter  RateLimiter
	Progress progress.Emitter
	IDs      RunIDGenerator
	Clock    crawler.Clock
}

// Summary describes a finished run.
type Summary struct {
	RunID    uuid.UUID
	Pages    int64
	Failed   int64
	Skipped  int64
	Errors   int64
	Duration time.Duration
}

// settlePoll is how often a slot with a timed-out crawl checks whether its
// worker went idle without delivering the late result.
const settlePoll = 50 * time.Millisecond

type slot struct {
	crawler PageCrawler
	results chan crawler.CrawlResult
	// pending is the url of a crawl that timed out and has not yet delivered
	// its result. Only the slot's own goroutine touches it.
	pending string
}

type busyReporter interface {
	Busy() bool
}

// Dispatcher owns the worker pool. Runs are sequential.
type Dispatcher struct {
	slots   []*slot
	deps    Deps
	cfg     Config
	logger  *zap.Logger
	tracer  trace.Tracer
	running atomic.Bool
}

// New subscribes to every worker's onPageCrawled event. The workers must not
// be shared with another Dispatcher.
func New(workers []PageCrawler, deps Deps, cfg Config, logger *zap.Logger) (*Dispatcher, error) {
	if len(workers) == 0 {
		return nil, fmt.Errorf("at least one worker is required")
	}
	if deps.IDs == nil {
		return nil, fmt.Errorf("id generator is required")
	}
	if deps.Clock == nil {
		return nil, fmt.Errorf("clock is required")
	}
	if deps.Robots == nil {
		deps.Robots = allowAll{}
	}
	if deps.Progress == nil {
		deps.Progress = discard{}
	}
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = 1024
	}
	if cfg.PageTimeout <= 0 {
		cfg.PageTimeout = 2 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	d := &Dispatcher{
		deps:   deps,
		cfg:    cfg,
		logger: logger.Named("dispatcher"),
		tracer: otel.Tracer(tracerName),
	}
	for _, w := range workers {
		s := &slot{crawler: w, results: make(chan crawler.CrawlResult, 2)}
		w.OnCrawled(func(result crawler.CrawlResult) {
			select {
			case s.results <- result:
			default:
				d.logger.Warn("dropping unclaimed crawl result", zap.String("url", result.URL))
			}
		})
		d.slots = append(d.slots, s)
	}
	return d, nil
}

// run holds the state of one crawl run.
type run struct {
	id       uuid.UUID
	started  time.Time
	queue    *memory.Queue
	seeds    map[string]struct{}
	seenMu   sync.Mutex
	seen     map[string]struct{}
	admitted atomic.Int64

	// outstanding counts targets enqueued but not yet finished; the frontier
	// closes when it reaches zero.
	outstanding atomic.Int64

	pages   atomic.Int64
	failed  atomic.Int64
	skipped atomic.Int64
	errors  atomic.Int64
}

// Run crawls from seeds until the frontier drains or ctx ends. A canceled run
// still emits RUN_DONE and returns the partial summary with ctx's error.
func (d *Dispatcher) Run(ctx context.Context, seeds []string) (Summary, error) {
	if !d.running.CompareAndSwap(false, true) {
		return Summary{}, ErrRunning
	}
	defer d.running.Store(false)

	runID, err := d.deps.IDs.NewRunID()
	if err != nil {
		return Summary{}, fmt.Errorf("new run id: %w", err)
	}
	r := &run{
		id:      runID,
		started: d.deps.Clock.Now(),
		queue:   memory.NewQueue(d.cfg.QueueDepth),
		seeds:   make(map[string]struct{}),
		seen:    make(map[string]struct{}),
	}
	ctx, span := d.tracer.Start(ctx, "crawl run", trace.WithAttributes(
		attribute.String("run.id", runID.String()),
		attribute.Int("run.seeds", len(seeds)),
	))
	defer span.End()

	targets := d.seedTargets(r, seeds)
	if len(targets) == 0 {
		span.SetStatus(codes.Error, ErrNoSeeds.Error())
		return Summary{RunID: runID}, ErrNoSeeds
	}

	d.emit(progress.Event{RunID: progress.UUIDToBytes(runID), TS: r.started, Stage: progress.StageRunStart})
	d.logger.Info("run started", zap.Stringer("run_id", runID), zap.Int("seeds", len(targets)))

	var wg sync.WaitGroup
	for i, s := range d.slots {
		wg.Add(1)
		go func(id int, s *slot) {
			defer wg.Done()
			d.loop(ctx, r, id, s)
		}(i, s)
	}

	// Hold one count while seeding so a fast first crawl cannot close the
	// frontier before the remaining seeds are queued.
	r.outstanding.Add(1)
	for _, t := range targets {
		r.outstanding.Add(1)
		if err := r.queue.Enqueue(ctx, t); err != nil {
			d.finish(r)
			break
		}
	}
	d.finish(r)
	wg.Wait()
	r.queue.Close()
	metrics.SetFrontierDepth(0)

	summary := Summary{
		RunID:    runID,
		Pages:    r.pages.Load(),
		Failed:   r.failed.Load(),
		Skipped:  r.skipped.Load(),
		Errors:   r.errors.Load(),
		Duration: d.deps.Clock.Now().Sub(r.started),
	}
	done := progress.Event{
		RunID: progress.UUIDToBytes(runID),
		TS:    d.deps.Clock.Now(),
		Stage: progress.StageRunDone,
		Pages: summary.Pages,
		Dur:   summary.Duration,
	}
	runErr := ctx.Err()
	if runErr != nil {
		done.Note = runErr.Error()
		span.SetStatus(codes.Error, runErr.Error())
	}
	d.emit(done)
	span.SetAttributes(attribute.Int64("run.pages", summary.Pages))
	d.logger.Info("run finished",
		zap.Stringer("run_id", runID),
		zap.Int64("pages", summary.Pages),
		zap.Int64("failed", summary.Failed),
		zap.Int64("skipped", summary.Skipped),
		zap.Duration("dur", summary.Duration),
	)
	if runErr != nil {
		return summary, fmt.Errorf("run %s: %w", runID, runErr)
	}
	return summary, nil
}

func (d *Dispatcher) seedTargets(r *run, seeds []string) []crawler.Target {
	targets := make([]crawler.Target, 0, len(seeds))
	for _, raw := range seeds {
		normalized, err := crawler.NormalizeURL(raw)
		if err != nil {
			d.logger.Warn("invalid seed", zap.String("url", raw), zap.Error(err))
			metrics.ObserveAdmission(SkipInvalid)
			continue
		}
		if !r.markSeen(normalized) {
			continue
		}
		r.seeds[crawler.SiteOf(normalized)] = struct{}{}
		targets = append(targets, crawler.Target{URL: normalized})
	}
	return targets
}

// loop is one worker goroutine: dequeue, admit, crawl, expand.
func (d *Dispatcher) loop(ctx context.Context, r *run, id int, s *slot) {
	logger := d.logger.With(zap.Int("worker", id))
	for {
		target, err := r.queue.Dequeue(ctx)
		if err != nil {
			if !errors.Is(err, memory.ErrClosed) {
				logger.Debug("worker stopping", zap.Error(err))
			}
			return
		}
		metrics.SetFrontierDepth(r.queue.Len())
		d.handle(ctx, r, s, target, logger)
		d.finish(r)
	}
}

func (d *Dispatcher) finish(r *run) {
	if r.outstanding.Add(-1) == 0 {
		r.queue.Close()
	}
}

func (d *Dispatcher) handle(ctx context.Context, r *run, s *slot, target crawler.Target, logger *zap.Logger) {
	if ctx.Err() != nil {
		return
	}
	if d.cfg.MaxPages > 0 && r.admitted.Load() >= int64(d.cfg.MaxPages) {
		d.skip(r, target, SkipMaxPages)
		return
	}
	if !d.deps.Robots.Allowed(ctx, target.URL) {
		d.skip(r, target, SkipRobots)
		return
	}
	if n := r.admitted.Add(1); d.cfg.MaxPages > 0 && n > int64(d.cfg.MaxPages) {
		d.skip(r, target, SkipMaxPages)
		return
	}
	metrics.ObserveAdmission("admitted")

	if d.deps.Limiter != nil {
		if err := d.deps.Limiter.Wait(ctx, target.URL); err != nil {
			if ctx.Err() == nil {
				d.pageError(r, target, fmt.Sprintf("rate limit: %v", err))
			}
			return
		}
	}

	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	ctx, span := d.tracer.Start(ctx, "crawl page", trace.WithAttributes(
		attribute.String("page.url", target.URL),
		attribute.Int("page.depth", target.Depth),
	))
	defer span.End()

	result, dur, err := d.crawl(ctx, s, target.URL)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if ctx.Err() == nil {
			logger.Warn("page not crawled", zap.String("url", target.URL), zap.Error(err))
			d.pageError(r, target, err.Error())
		}
		return
	}
	span.SetAttributes(
		attribute.String("page.status", string(result.Status)),
		attribute.Int("page.links", len(result.Links)),
	)

	if id, err := d.deps.IDs.NewID(); err == nil {
		result.ID = id
	} else {
		logger.Warn("page id", zap.Error(err))
	}
	r.pages.Add(1)
	if !result.Status.Success() {
		r.failed.Add(1)
	}
	d.emit(progress.Event{
		RunID:  progress.UUIDToBytes(r.id),
		TS:     d.deps.Clock.Now(),
		Stage:  progress.StagePageCrawled,
		URL:    target.URL,
		Site:   crawler.SiteOf(target.URL),
		Depth:  target.Depth,
		Status: result.Status,
		Links:  len(result.Links),
		Dur:    dur,
		Result: &result,
	})
	d.expand(r, target, result.Links)
}

// crawl hands url to the worker and waits for its onPageCrawled event.
func (d *Dispatcher) crawl(ctx context.Context, s *slot, url string) (crawler.CrawlResult, time.Duration, error) {
	if err := d.settle(ctx, s); err != nil {
		return crawler.CrawlResult{}, 0, err
	}
	start := d.deps.Clock.Now()
	if err := s.crawler.Process(url); err != nil {
		if errors.Is(err, worker.ErrBusy) {
			metrics.ObserveBusyRejection()
		}
		return crawler.CrawlResult{}, 0, fmt.Errorf("process %s: %w", url, err)
	}

	timer := time.NewTimer(d.cfg.PageTimeout)
	defer timer.Stop()
	for {
		select {
		case result := <-s.results:
			if result.URL != url {
				// Late result of a crawl that already timed out.
				continue
			}
			return result, d.deps.Clock.Now().Sub(start), nil
		case <-timer.C:
			s.pending = url
			return crawler.CrawlResult{}, 0, fmt.Errorf("no crawl result for %s after %s", url, d.cfg.PageTimeout)
		case <-ctx.Done():
			return crawler.CrawlResult{}, 0, fmt.Errorf("wait for %s: %w", url, ctx.Err())
		}
	}
}

// settle blocks until the slot's timed-out crawl delivers its late result or
// the worker reports it is idle, so the next Process is not rejected as busy.
func (d *Dispatcher) settle(ctx context.Context, s *slot) error {
	if s.pending == "" {
		return nil
	}
	d.logger.Debug("waiting for late crawl result", zap.String("url", s.pending))
	idle, _ := s.crawler.(busyReporter)
	ticker := time.NewTicker(settlePoll)
	defer ticker.Stop()
	for {
		select {
		case result := <-s.results:
			if result.URL == s.pending {
				s.pending = ""
				return nil
			}
		case <-ticker.C:
			if idle != nil && !idle.Busy() {
				s.pending = ""
				return nil
			}
		case <-ctx.Done():
			return fmt.Errorf("wait for late result of %s: %w", s.pending, ctx.Err())
		}
	}
}

// expand admits discovered links into the frontier without blocking.
func (d *Dispatcher) expand(r *run, parent crawler.Target, links []string) {
	depth := parent.Depth + 1
	for _, link := range links {
		normalized, err := crawler.NormalizeURL(link)
		if err != nil {
			metrics.ObserveAdmission(SkipInvalid)
			continue
		}
		if d.cfg.MaxDepth >= 0 && depth > d.cfg.MaxDepth {
			metrics.ObserveAdmission(SkipDepth)
			continue
		}
		if d.cfg.SameHost {
			if _, ok := r.seeds[crawler.SiteOf(normalized)]; !ok {
				metrics.ObserveAdmission(SkipOffsite)
				continue
			}
		}
		if !r.markSeen(normalized) {
			metrics.ObserveAdmission(SkipDuplicate)
			continue
		}
		target := crawler.Target{URL: normalized, Depth: depth, Parent: parent.URL}
		r.outstanding.Add(1)
		if err := r.queue.TryEnqueue(target); err != nil {
			r.outstanding.Add(-1)
			d.skip(r, target, SkipQueueFull)
		}
	}
	metrics.SetFrontierDepth(r.queue.Len())
}

func (r *run) markSeen(url string) bool {
	r.seenMu.Lock()
	defer r.seenMu.Unlock()
	if _, ok := r.seen[url]; ok {
		return false
	}
	r.seen[url] = struct{}{}
	return true
}

func (d *Dispatcher) skip(r *run, target crawler.Target, reason string) {
	r.skipped.Add(1)
	metrics.ObserveAdmission(reason)
	d.emit(progress.Event{
		RunID: progress.UUIDToBytes(r.id),
		TS:    d.deps.Clock.Now(),
		Stage: progress.StagePageSkipped,
		URL:   target.URL,
		Site:  crawler.SiteOf(target.URL),
		Depth: target.Depth,
		Note:  reason,
	})
}

func (d *Dispatcher) pageError(r *run, target crawler.Target, note string) {
	r.errors.Add(1)
	d.emit(progress.Event{
		RunID: progress.UUIDToBytes(r.id),
		TS:    d.deps.Clock.Now(),
		Stage: progress.StagePageError,
		URL:   target.URL,
		Site:  crawler.SiteOf(target.URL),
		Depth: target.Depth,
		Note:  note,
	})
}

func (d *Dispatcher) emit(evt progress.Event) {
	d.deps.Progress.Emit(evt)
}

type allowAll struct{}

func (allowAll) Allowed(context.Context, string) bool { return true }

type discard struct{}

func (discard) Emit(progress.Event) {}
