// Package worker implements the single-page crawl orchestrator: one page
// session, an ordered set of extraction modules and the per-URL crawl
// sequence that ends in an onPageCrawled event.
package worker

import (
	"errors"
	"fmt"
	"maps"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/JakeFAU/headless-page-crawler/internal/crawler"
	"github.com/JakeFAU/headless-page-crawler/internal/emitter"
)

var (
	// ErrBusy is returned by Process while a previous crawl has not finished.
	ErrBusy = errors.New("worker: crawl already in progress")
	// ErrClosed is returned by Process after Close.
	ErrClosed = errors.New("worker: closed")
)

// Config controls Worker behavior. It is copied by New and never mutated.
type Config struct {
	// Viewport is the page size; zero means crawler.DefaultViewport.
	Viewport crawler.Viewport
	// Modules holds per-module configuration keyed by module id.
	Modules map[string]map[string]any
	// LinkScript is evaluated after a successful load; empty means
	// crawler.DefaultLinkScript.
	LinkScript string
}

// Worker owns one page session and the modules attached to it.
type Worker struct {
	page    crawler.Page
	modules []crawler.Module
	events  *emitter.Emitter[crawler.Event]
	cfg     Config
	logger  *zap.Logger

	// mu serializes module access between Process (caller goroutine) and the
	// page session's event loop.
	mu     sync.Mutex
	busy   atomic.Bool
	closed atomic.Bool
}

// New opens a page session, wires the engine relays and instantiates every
// module in order. It fails only when the page session cannot be created or
// configured, when a factory or the module it builds is nil, or when two
// modules share an id.
func New(browser crawler.Browser, factories []crawler.Factory, cfg Config, logger *zap.Logger) (*Worker, error) {
	if browser == nil {
		return nil, fmt.Errorf("browser is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cloneConfig(cfg)

	page, err := browser.NewPage()
	if err != nil {
		return nil, fmt.Errorf("create page session: %w", err)
	}
	if err := page.SetViewport(cfg.Viewport); err != nil {
		if cerr := page.Close(); cerr != nil {
			logger.Warn("close page after viewport failure", zap.Error(cerr))
		}
		return nil, fmt.Errorf("set viewport: %w", err)
	}

	w := &Worker{
		page:   page,
		events: emitter.New[crawler.Event](logger),
		cfg:    cfg,
		logger: logger,
	}
	for event, relay := range w.relays() {
		page.SetHandler(event, relay)
	}

	seen := make(map[string]struct{}, len(factories))
	for i, factory := range factories {
		if factory == nil {
			return nil, w.abort(fmt.Errorf("module %d: nil factory", i))
		}
		module := factory(w)
		if module == nil {
			return nil, w.abort(fmt.Errorf("module %d: factory returned nil module", i))
		}
		id := module.ID()
		if _, dup := seen[id]; dup {
			return nil, w.abort(fmt.Errorf("module %d %q: %w", i, id, crawler.ErrDuplicateModule))
		}
		seen[id] = struct{}{}
		w.modules = append(w.modules, module)
	}
	logger.Debug("worker ready", zap.Int("modules", len(w.modules)))
	return w, nil
}

// abort closes the page session of a worker whose construction failed.
func (w *Worker) abort(err error) error {
	if cerr := w.page.Close(); cerr != nil {
		w.logger.Warn("close page after module failure", zap.Error(cerr))
	}
	return err
}

func cloneConfig(cfg Config) Config {
	if cfg.Viewport.IsZero() {
		cfg.Viewport = crawler.DefaultViewport
	}
	if cfg.LinkScript == "" {
		cfg.LinkScript = crawler.DefaultLinkScript
	}
	modules := make(map[string]map[string]any, len(cfg.Modules))
	for id, settings := range cfg.Modules {
		modules[id] = maps.Clone(settings)
	}
	cfg.Modules = modules
	return cfg
}

// relays builds the forwarding table from engine callbacks to the worker's
// own event stream. Arguments pass through untouched.
func (w *Worker) relays() map[crawler.Event]crawler.Listener {
	table := make(map[crawler.Event]crawler.Listener, len(crawler.RelayedEvents))
	for _, event := range crawler.RelayedEvents {
		event := event
		table[event] = func(args ...any) {
			w.mu.Lock()
			defer w.mu.Unlock()
			w.events.Emit(event, args...)
		}
	}
	return table
}

// On subscribes fn to event. Listeners for relayed events and for
// onPageOpen/onPageOpenSuccess run while the worker holds its module lock and
// must not call Process; onPageCrawled listeners may.
func (w *Worker) On(event crawler.Event, fn crawler.Listener) {
	w.events.On(event, emitter.Listener(fn))
}

// OnCrawled subscribes fn to the terminal event with a typed payload.
func (w *Worker) OnCrawled(fn func(result crawler.CrawlResult)) {
	w.On(crawler.EventPageCrawled, func(args ...any) {
		result, ok := crawler.CrawlResultFromArgs(args)
		if !ok {
			w.logger.Warn("malformed crawl event", zap.Int("args", len(args)))
			return
		}
		fn(result)
	})
}

// ModuleConfig returns a copy of the configuration for module id.
func (w *Worker) ModuleConfig(id string) map[string]any {
	settings := maps.Clone(w.cfg.Modules[id])
	if settings == nil {
		settings = map[string]any{}
	}
	return settings
}

// Logger returns the worker's logger.
func (w *Worker) Logger() *zap.Logger {
	return w.logger
}

// Modules returns the ids of the attached modules in attachment order.
func (w *Worker) Modules() []string {
	ids := make([]string, 0, len(w.modules))
	for _, m := range w.modules {
		ids = append(ids, m.ID())
	}
	return ids
}

// Page returns the worker's page session.
func (w *Worker) Page() crawler.Page {
	return w.page
}

// Process resets every module and asks the page session to open url. It
// returns before the crawl completes; the outcome is delivered through
// onPageCrawled. Overlapping calls are rejected with ErrBusy.
func (w *Worker) Process(url string) error {
	if w.closed.Load() {
		return ErrClosed
	}
	if !w.busy.CompareAndSwap(false, true) {
		return ErrBusy
	}

	w.mu.Lock()
	for _, m := range w.modules {
		w.cleanModule(m)
	}
	w.mu.Unlock()

	w.logger.Debug("opening page", zap.String("url", url))
	var once sync.Once
	w.page.Open(url, func(status crawler.LoadStatus) {
		once.Do(func() { w.complete(url, status) })
	})
	return nil
}

// Busy reports whether a crawl is in flight.
func (w *Worker) Busy() bool {
	return w.busy.Load()
}

func (w *Worker) complete(url string, status crawler.LoadStatus) {
	w.mu.Lock()
	w.events.Emit(crawler.EventPageOpen, w.page, status)

	urls := []string{}
	if status.Success() {
		w.events.Emit(crawler.EventPageOpenSuccess, w.page)
		urls = w.extractLinks(url)
	}

	results := make(map[string]any, len(w.modules))
	for _, m := range w.modules {
		results[m.ID()] = w.moduleResult(m)
	}
	w.mu.Unlock()

	w.logger.Debug("page crawled",
		zap.String("url", url),
		zap.String("status", string(status)),
		zap.Int("links", len(urls)),
	)
	w.busy.Store(false)
	w.events.Emit(crawler.EventPageCrawled, url, urls, results, status)
}

func (w *Worker) extractLinks(url string) []string {
	var urls []string
	if err := w.page.Evaluate(w.cfg.LinkScript, &urls); err != nil {
		w.logger.Warn("link extraction failed", zap.String("url", url), zap.Error(err))
		return []string{}
	}
	if urls == nil {
		return []string{}
	}
	return urls
}

func (w *Worker) cleanModule(m crawler.Module) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("module clean panicked", zap.String("module", m.ID()), zap.Any("panic", r))
		}
	}()
	m.Clean()
}

func (w *Worker) moduleResult(m crawler.Module) (result any) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("module result panicked", zap.String("module", m.ID()), zap.Any("panic", r))
			result = crawler.ModuleError{Err: fmt.Sprint(r)}
		}
	}()
	return m.Result()
}

// Close releases the page session. It is safe to call more than once.
func (w *Worker) Close() error {
	if !w.closed.CompareAndSwap(false, true) {
		return nil
	}
	if err := w.page.Close(); err != nil {
		return fmt.Errorf("close page: %w", err)
	}
	return nil
}
