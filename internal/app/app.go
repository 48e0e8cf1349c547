// Package app assembles the crawl pipeline from configuration and owns the
// long-lived services behind it: the browser, workers, progress hub, sinks,
// stores and the ops server.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/headless-page-crawler/internal/api"
	"github.com/JakeFAU/headless-page-crawler/internal/browser/headless"
	"github.com/JakeFAU/headless-page-crawler/internal/clock/system"
	"github.com/JakeFAU/headless-page-crawler/internal/config"
	"github.com/JakeFAU/headless-page-crawler/internal/crawler"
	"github.com/JakeFAU/headless-page-crawler/internal/dispatcher"
	"github.com/JakeFAU/headless-page-crawler/internal/id/uuid"
	"github.com/JakeFAU/headless-page-crawler/internal/metrics"
	"github.com/JakeFAU/headless-page-crawler/internal/modules"
	"github.com/JakeFAU/headless-page-crawler/internal/policy/ratelimit"
	"github.com/JakeFAU/headless-page-crawler/internal/policy/robots"
	"github.com/JakeFAU/headless-page-crawler/internal/progress"
	"github.com/JakeFAU/headless-page-crawler/internal/store"
	"github.com/JakeFAU/headless-page-crawler/internal/telemetry"
	"github.com/JakeFAU/headless-page-crawler/internal/worker"
)

const shutdownTimeout = 10 * time.Second

// Option customizes New.
type Option func(*options)

type options struct {
	browser   crawler.Browser
	registry  *modules.Registry
	registrar prometheus.Registerer
	exporters []sdktrace.SpanExporter
	sinks     []progress.Sink
}

// WithBrowser uses b instead of launching headless Chrome. The caller keeps
// ownership of b.
func WithBrowser(b crawler.Browser) Option {
	return func(o *options) { o.browser = b }
}

// WithModuleRegistry resolves modules.enabled against r instead of the
// bundled registry.
func WithModuleRegistry(r *modules.Registry) Option {
	return func(o *options) { o.registry = r }
}

// WithRegisterer registers the progress collectors against reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registrar = reg }
}

// WithSpanExporter exports crawl spans to exp.
func WithSpanExporter(exp sdktrace.SpanExporter) Option {
	return func(o *options) { o.exporters = append(o.exporters, exp) }
}

// WithSink adds an extra progress sink.
func WithSink(s progress.Sink) Option {
	return func(o *options) { o.sinks = append(o.sinks, s) }
}

type closer struct {
	name string
	fn   func(context.Context) error
}

// App holds the wired pipeline. It is built once per process.
type App struct {
	cfg        config.Config
	logger     *zap.Logger
	dispatcher *dispatcher.Dispatcher
	hub        *progress.Hub
	runs       store.RunRepository
	handler    http.Handler
	addr       string
	ping       func(context.Context) error

	closers []closer
}

// New builds every service named by cfg. Any failure releases whatever was
// already started.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := options{
		registry:  modules.NewRegistry(),
		registrar: prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{cfg: cfg, logger: logger}
	if err := a.build(ctx, o); err != nil {
		if cerr := a.Close(ctx); cerr != nil {
			logger.Warn("cleanup after failed start", zap.Error(cerr))
		}
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context, o options) error {
	cfg := a.cfg
	metrics.Init()

	tp, err := telemetry.InitTracerProvider(ctx, cfg.Telemetry, o.exporters...)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	a.onClose("tracer", tp.Shutdown)

	factories, err := o.registry.Select(cfg.Modules.Enabled)
	if err != nil {
		return fmt.Errorf("select modules: %w", err)
	}

	browser := o.browser
	if browser == nil {
		chrome, err := headless.New(headless.Config{
			UserAgent:         cfg.Crawler.UserAgent,
			ExecPath:          cfg.Headless.ExecPath,
			NoSandbox:         cfg.Headless.NoSandbox,
			NavigationTimeout: cfg.NavigationTimeout(),
			EvalTimeout:       cfg.EvalTimeout(),
		}, a.logger.Named("browser"))
		if err != nil {
			return fmt.Errorf("start browser: %w", err)
		}
		a.onClose("browser", func(context.Context) error {
			chrome.Close()
			return nil
		})
		browser = chrome
	}

	crawlers := make([]dispatcher.PageCrawler, 0, cfg.Crawler.Concurrency)
	settings := cfg.ModuleSettings()
	for i := range cfg.Crawler.Concurrency {
		w, err := worker.New(browser, factories, worker.Config{
			Viewport: cfg.Crawler.ViewportSize,
			Modules:  settings,
		}, a.logger.Named("worker").With(zap.Int("worker", i)))
		if err != nil {
			return fmt.Errorf("create worker %d: %w", i, err)
		}
		a.onClose("worker "+strconv.Itoa(i), func(context.Context) error { return w.Close() })
		crawlers = append(crawlers, w)
	}

	ids := uuid.New()
	sinks, err := a.buildSinks(ctx, o, ids)
	if err != nil {
		return err
	}

	a.hub = progress.NewHub(progress.Config{
		BufferSize:     cfg.Progress.BufferSize,
		MaxBatchEvents: cfg.Progress.MaxBatchEvents,
		MaxBatchWait:   cfg.ProgressWait(),
		Logger:         a.logger.Named("progress"),
	}, sinks...)
	a.onClose("progress hub", a.hub.Close)

	robotsClient := &http.Client{Timeout: time.Duration(cfg.Crawler.RobotsTimeoutSecs) * time.Second}
	a.dispatcher, err = dispatcher.New(crawlers, dispatcher.Deps{
		Robots:   robots.New(!cfg.Crawler.IgnoreRobots, cfg.Crawler.UserAgent, robotsClient, a.logger.Named("robots")),
		Limiter:  ratelimit.New(ratelimit.Config{DefaultRPS: cfg.Crawler.RateLimitPerDomain}),
		Progress: a.hub,
		IDs:      ids,
		Clock:    system.New(),
	}, dispatcher.Config{
		MaxDepth:    cfg.Crawler.MaxDepth,
		MaxPages:    cfg.Crawler.MaxPages,
		SameHost:    cfg.Crawler.SameHost,
		QueueDepth:  cfg.Crawler.QueueDepth,
		PageTimeout: cfg.PageTimeout(),
	}, a.logger)
	if err != nil {
		return fmt.Errorf("create dispatcher: %w", err)
	}

	a.handler = api.NewServer(a.runs, a.logger, api.WithReadiness(a.ready)).Handler()
	if cfg.Metrics.Port > 0 {
		if err := a.serve(net.JoinHostPort("", strconv.Itoa(cfg.Metrics.Port))); err != nil {
			return err
		}
	}
	return nil
}

// serve binds addr so port conflicts surface before the crawl begins.
func (a *App) serve(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	srv := &http.Server{
		Handler:           a.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	a.addr = ln.Addr().String()
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("ops server failed", zap.Error(err))
		}
	}()
	a.logger.Info("ops server listening", zap.String("addr", a.addr))
	a.onClose("ops server", srv.Shutdown)
	return nil
}

func (a *App) ready(ctx context.Context) error {
	if a.dispatcher == nil {
		return errors.New("dispatcher not started")
	}
	if a.ping != nil {
		if err := a.ping(ctx); err != nil {
			return fmt.Errorf("run store: %w", err)
		}
	}
	return nil
}

func (a *App) onClose(name string, fn func(context.Context) error) {
	a.closers = append(a.closers, closer{name: name, fn: fn})
}

// Run crawls from seeds and returns the run summary.
func (a *App) Run(ctx context.Context, seeds []string) (dispatcher.Summary, error) {
	summary, err := a.dispatcher.Run(ctx, seeds)
	if err != nil {
		return summary, fmt.Errorf("crawl run: %w", err)
	}
	return summary, nil
}

// Runs exposes the run repository the store sink writes to.
func (a *App) Runs() store.RunRepository {
	return a.runs
}

// Handler returns the ops router, whether or not it is being served.
func (a *App) Handler() http.Handler {
	return a.handler
}

// Addr is the ops server address, empty when metrics.port is zero.
func (a *App) Addr() string {
	return a.addr
}

// Close releases services in reverse start order. The progress hub drains
// its buffer before the sinks' backends are closed.
func (a *App) Close(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.fn(ctx); err != nil {
			a.logger.Warn("close failed", zap.String("service", c.name), zap.Error(err))
			errs = append(errs, fmt.Errorf("close %s: %w", c.name, err))
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
