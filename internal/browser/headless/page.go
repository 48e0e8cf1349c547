package headless

import (
	"context"
	"fmt"
	"sync"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/headless-page-crawler/internal/crawler"
)

// Page is one Chrome tab. Handlers and open callbacks run on the tab's
// event loop.
type Page struct {
	ctx    context.Context
	cancel context.CancelFunc
	cfg    Config
	logger *zap.Logger
	loop   *eventLoop

	mu        sync.RWMutex
	handlers  map[crawler.Event]crawler.Listener
	mainFrame cdp.FrameID

	// requests maps request ids to URLs; only touched on the loop.
	requests map[network.RequestID]string

	acceptDialog func(ev *page.EventJavascriptDialogOpening)
	closeOnce    sync.Once
}

var _ crawler.Page = (*Page)(nil)

func newPage(ctx context.Context, cancel context.CancelFunc, cfg Config, logger *zap.Logger) *Page {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Page{
		ctx:      ctx,
		cancel:   cancel,
		cfg:      cfg.withDefaults(),
		logger:   logger,
		loop:     newEventLoop(logger),
		handlers: make(map[crawler.Event]crawler.Listener),
		requests: make(map[network.RequestID]string),
	}
	p.acceptDialog = p.acceptJavaScriptDialog
	return p
}

// SetViewport resizes the emulated window.
func (p *Page) SetViewport(v crawler.Viewport) error {
	ctx, cancel := context.WithTimeout(p.ctx, p.cfg.EvalTimeout)
	defer cancel()
	if err := chromedp.Run(ctx, chromedp.EmulateViewport(v.Width, v.Height)); err != nil {
		return fmt.Errorf("emulate viewport %dx%d: %w", v.Width, v.Height, err)
	}
	return nil
}

// SetHandler installs fn for event, replacing any previous handler.
func (p *Page) SetHandler(event crawler.Event, fn crawler.Listener) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers[event] = fn
}

// Open navigates to url in the background and reports the outcome on the
// event loop, after onLoadFinished. done is called exactly once; on a closed
// page it gets StatusFail without onLoadFinished.
func (p *Page) Open(url string, done func(status crawler.LoadStatus)) {
	go func() {
		status := p.navigate(url)
		posted := p.loop.post(func() {
			p.fire(crawler.EventLoadFinished, status)
			done(status)
		})
		if !posted {
			p.logger.Debug("page closed before load finished", zap.String("url", url))
			done(crawler.StatusFail)
		}
	}()
}

func (p *Page) navigate(url string) crawler.LoadStatus {
	ctx, cancel := context.WithTimeout(p.ctx, p.cfg.NavigationTimeout)
	defer cancel()
	if err := chromedp.Run(ctx, chromedp.Navigate(url)); err != nil {
		p.logger.Info("navigation failed", zap.String("url", url), zap.Error(err))
		return crawler.StatusFail
	}
	return crawler.StatusSuccess
}

// Evaluate runs script in the page and decodes its result into out.
func (p *Page) Evaluate(script string, out any) error {
	ctx, cancel := context.WithTimeout(p.ctx, p.cfg.EvalTimeout)
	defer cancel()
	if err := chromedp.Run(ctx, chromedp.Evaluate(script, out)); err != nil {
		return fmt.Errorf("evaluate: %w", err)
	}
	return nil
}

// Close raises onClosing and closes the tab.
func (p *Page) Close() error {
	p.closeOnce.Do(func() {
		p.post(func() { p.fire(crawler.EventClosing, p) })
		p.loop.stop()
		p.cancel()
	})
	return nil
}

func (p *Page) post(fn func()) {
	if !p.loop.post(fn) {
		p.logger.Debug("page event dropped after close")
	}
}

func (p *Page) fire(event crawler.Event, args ...any) {
	p.mu.RLock()
	fn := p.handlers[event]
	p.mu.RUnlock()
	if fn != nil {
		fn(args...)
	}
}

func (p *Page) setMainFrame(id cdp.FrameID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.mainFrame = id
}

func (p *Page) isMainFrame(id cdp.FrameID) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.mainFrame != "" && id == p.mainFrame
}

func (p *Page) acceptJavaScriptDialog(ev *page.EventJavascriptDialogOpening) {
	go func() {
		action := page.HandleJavaScriptDialog(true)
		if ev.Type == page.DialogTypePrompt {
			action = action.WithPromptText(ev.DefaultPrompt)
		}
		if err := chromedp.Run(p.ctx, action); err != nil {
			p.logger.Debug("dismiss dialog", zap.Error(err))
		}
	}()
}
