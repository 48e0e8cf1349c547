// Package headless implements crawler.Browser and crawler.Page on top of
// chromedp and headless Chrome.
package headless

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/headless-page-crawler/internal/crawler"
)

// callbackBinding is the name of the window function pages call to raise
// onCallback.
const callbackBinding = "pageCallback"

const (
	defaultNavigationTimeout = 45 * time.Second
	defaultEvalTimeout       = 10 * time.Second
)

// Config controls the headless browser.
type Config struct {
	UserAgent         string
	ExecPath          string
	NoSandbox         bool
	NavigationTimeout time.Duration
	EvalTimeout       time.Duration
}

func (c Config) withDefaults() Config {
	if c.NavigationTimeout <= 0 {
		c.NavigationTimeout = defaultNavigationTimeout
	}
	if c.EvalTimeout <= 0 {
		c.EvalTimeout = defaultEvalTimeout
	}
	return c
}

// Browser owns one Chrome process and hands out tabs as page sessions.
type Browser struct {
	cfg           Config
	logger        *zap.Logger
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
}

var _ crawler.Browser = (*Browser)(nil)

// New launches headless Chrome.
func New(cfg Config, logger *zap.Logger) (*Browser, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.withDefaults()

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	if cfg.NoSandbox {
		opts = append(opts, chromedp.NoSandbox)
	}
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	// Start the browser process now so launch failures surface here.
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("start chrome: %w", err)
	}
	logger.Info("headless browser started")

	return &Browser{
		cfg:           cfg,
		logger:        logger,
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
	}, nil
}

// NewPage opens a tab and prepares it for event relaying.
func (b *Browser) NewPage() (crawler.Page, error) {
	tabCtx, tabCancel := chromedp.NewContext(b.browserCtx)
	p := newPage(tabCtx, tabCancel, b.cfg, b.logger.Named("page"))
	chromedp.ListenTarget(tabCtx, p.handleTargetEvent)

	if err := chromedp.Run(tabCtx, p.setupAction()); err != nil {
		p.loop.stop()
		tabCancel()
		return nil, fmt.Errorf("prepare tab: %w", err)
	}
	return p, nil
}

// Close shuts down Chrome.
func (b *Browser) Close() {
	b.browserCancel()
	b.allocCancel()
}

func (p *Page) setupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if err := runtime.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable runtime domain: %w", err)
		}
		if err := page.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable page domain: %w", err)
		}
		if err := page.SetInterceptFileChooserDialog(true).Do(ctx); err != nil {
			return fmt.Errorf("intercept file chooser: %w", err)
		}
		if err := runtime.AddBinding(callbackBinding).Do(ctx); err != nil {
			return fmt.Errorf("add %s binding: %w", callbackBinding, err)
		}
		if p.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(p.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		tree, err := page.GetFrameTree().Do(ctx)
		if err != nil {
			return fmt.Errorf("get frame tree: %w", err)
		}
		if tree != nil && tree.Frame != nil {
			p.setMainFrame(tree.Frame.ID)
		}
		return nil
	})
}
