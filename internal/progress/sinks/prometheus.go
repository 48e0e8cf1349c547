package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/headless-page-crawler/internal/progress"
)

// PrometheusSink exports crawl progress via Prometheus. It owns the
// collectors for runs started/completed/running and per-site page counters.
type PrometheusSink struct {
	runsStarted   prometheus.Counter
	runsCompleted *prometheus.CounterVec
	runsRunning   prometheus.Gauge
	runRuntime    *prometheus.HistogramVec

	pages        *prometheus.CounterVec
	pageLinks    *prometheus.CounterVec
	pageDuration *prometheus.HistogramVec
	pagesSkipped *prometheus.CounterVec
	pageErrors   *prometheus.CounterVec

	tracker *runTracker
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "crawler_runs_started_total",
			Help: "Total crawl runs that have started.",
		}),
		runsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crawler_runs_completed_total",
			Help: "Total crawl runs completed partitioned by result.",
		}, []string{"result"}),
		runsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "crawler_runs_running",
			Help: "Current number of running crawl runs.",
		}),
		runRuntime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "crawler_run_runtime_seconds",
			Help:    "Wall time per completed run.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		}, []string{"result"}),
		pages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crawler_pages_total",
			Help: "Pages crawled partitioned by site and load status.",
		}, []string{"site", "status"}),
		pageLinks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crawler_page_links_total",
			Help: "Links discovered per site.",
		}, []string{"site"}),
		pageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "crawler_page_duration_seconds",
			Help:    "Time from Process to onPageCrawled partitioned by site and load status.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"site", "status"}),
		pagesSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crawler_pages_skipped_total",
			Help: "Frontier URLs not crawled partitioned by reason.",
		}, []string{"reason"}),
		pageErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crawler_page_errors_total",
			Help: "Pages whose crawl could not be started partitioned by site.",
		}, []string{"site"}),
		tracker: newRunTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.runsStarted,
		s.runsCompleted,
		s.runsRunning,
		s.runRuntime,
		s.pages,
		s.pageLinks,
		s.pageDuration,
		s.pagesSkipped,
		s.pageErrors,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the Prometheus collectors using the provided batch. It is
// safe for concurrent use by multiple goroutines.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	switch evt.Stage {
	case progress.StageRunStart:
		s.runsStarted.Inc()
		if s.tracker.start(evt.RunID) {
			s.runsRunning.Inc()
		}
	case progress.StageRunDone:
		result := "success"
		if evt.Failed() {
			result = "error"
		}
		s.runsCompleted.WithLabelValues(result).Inc()
		if evt.Dur > 0 {
			s.runRuntime.WithLabelValues(result).Observe(evt.Dur.Seconds())
		}
		if s.tracker.complete(evt.RunID) {
			s.runsRunning.Dec()
		}
	case progress.StagePageCrawled:
		s.handlePageEvent(evt)
	case progress.StagePageSkipped:
		s.pagesSkipped.WithLabelValues(labelOr(evt.Note, "unknown")).Inc()
	case progress.StagePageError:
		s.pageErrors.WithLabelValues(labelOr(evt.Site, "unknown")).Inc()
	}
}

func (s *PrometheusSink) handlePageEvent(evt progress.Event) {
	site := labelOr(evt.Site, "unknown")
	status := labelOr(string(evt.Status), "unknown")
	s.pages.WithLabelValues(site, status).Inc()
	if evt.Links > 0 {
		s.pageLinks.WithLabelValues(site).Add(float64(evt.Links))
	}
	if evt.Dur > 0 {
		s.pageDuration.WithLabelValues(site, status).Observe(evt.Dur.Seconds())
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

func labelOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

type runTracker struct {
	mu      sync.Mutex
	running map[[16]byte]struct{}
}

func newRunTracker() *runTracker {
	return &runTracker{running: make(map[[16]byte]struct{})}
}

func (t *runTracker) start(id [16]byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; ok {
		return false
	}
	t.running[id] = struct{}{}
	return true
}

func (t *runTracker) complete(id [16]byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; !ok {
		return false
	}
	delete(t.running, id)
	return true
}
