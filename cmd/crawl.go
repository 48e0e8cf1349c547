package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/headless-page-crawler/internal/config"
	"github.com/JakeFAU/headless-page-crawler/internal/logging"
)

type crawlOptions struct {
	maxDepth    int
	maxPages    int
	concurrency int
	modules     []string
}

// newCrawlCmd creates the crawl subcommand. Flags override the matching
// config keys only when set.
func newCrawlCmd(root *rootOptions) *cobra.Command {
	opts := &crawlOptions{}
	cmd := &cobra.Command{
		Use:   "crawl URL...",
		Short: "Crawl from the given seed URLs",
		Long: `Crawls the seed URLs and the links discovered on them, one page per
worker at a time, until the frontier drains or the process is interrupted.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCrawl(cmd, root, opts, args)
		},
	}
	flags := cmd.Flags()
	flags.IntVar(&opts.maxDepth, "max-depth", 0, "deepest link level to follow (-1 for unlimited)")
	flags.IntVar(&opts.maxPages, "max-pages", 0, "maximum pages per run (0 for unlimited)")
	flags.IntVar(&opts.concurrency, "concurrency", 0, "number of workers")
	flags.StringSliceVar(&opts.modules, "modules", nil, "modules to attach, in order")
	return cmd
}

func runCrawl(cmd *cobra.Command, root *rootOptions, opts *crawlOptions, seeds []string) error {
	cfg, err := config.Load(root.cfgFile)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("max-depth") {
		cfg.Crawler.MaxDepth = opts.maxDepth
	}
	if flags.Changed("max-pages") {
		cfg.Crawler.MaxPages = opts.maxPages
	}
	if flags.Changed("concurrency") {
		cfg.Crawler.Concurrency = opts.concurrency
	}
	if flags.Changed("modules") {
		cfg.Modules.Enabled = opts.modules
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	cfg.Telemetry.Version = version

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx := cmd.Context()
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize application: %w", err)
	}
	defer func() {
		if cerr := a.Close(ctx); cerr != nil {
			logger.Warn("shutdown incomplete", zap.Error(cerr))
		}
	}()

	summary, err := a.Run(ctx, seeds)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	_, werr := fmt.Fprintf(cmd.OutOrStdout(),
		"run %s: %d pages, %d failed, %d skipped, %d errors in %s\n",
		summary.RunID, summary.Pages, summary.Failed, summary.Skipped, summary.Errors,
		summary.Duration.Round(time.Millisecond),
	)
	if err != nil {
		logger.Info("crawl interrupted", zap.Stringer("run_id", summary.RunID))
	}
	return werr
}
