// Package cmd defines the pagecrawl command line.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/headless-page-crawler/internal/app"
	"github.com/JakeFAU/headless-page-crawler/internal/config"
	"github.com/JakeFAU/headless-page-crawler/internal/dispatcher"
)

// version is stamped at build time with -ldflags "-X".
var version = "dev"

// crawlApp is the part of app.App the commands use.
type crawlApp interface {
	Run(ctx context.Context, seeds []string) (dispatcher.Summary, error)
	Close(ctx context.Context) error
}

// newApp is the application factory. It is a variable so tests can swap in
// a fake.
var newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (crawlApp, error) {
	return app.New(ctx, cfg, logger)
}

type rootOptions struct {
	cfgFile string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "pagecrawl",
		Short: "Crawl pages in headless Chrome with pluggable extraction modules.",
		Long: `pagecrawl renders every page in headless Chrome, runs the configured
extraction modules against it and follows the links it finds, reporting
progress to logs, metrics, files, Postgres, GCS or Pub/Sub.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&opts.cfgFile, "config", "", "config file (yaml, json or toml)")
	cmd.AddCommand(newCrawlCmd(opts), newVersionCmd())
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the build version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), version)
			return err
		},
	}
}

// Execute runs the root command until it finishes or the process is
// signalled.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
