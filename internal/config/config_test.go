package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/headless-page-crawler/internal/crawler"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, crawler.DefaultViewport, cfg.Crawler.ViewportSize)
	require.Equal(t, 2, cfg.Crawler.Concurrency)
	require.Equal(t, 1, cfg.Crawler.MaxDepth)
	require.True(t, cfg.Crawler.SameHost)
	require.Equal(t, []string{"resources", "console", "document", "navigation"}, cfg.Modules.Enabled)
	require.Equal(t, 45*time.Second, cfg.NavigationTimeout())
	require.Equal(t, 10*time.Second, cfg.EvalTimeout())
	require.Equal(t, 500*time.Millisecond, cfg.ProgressWait())
	require.Equal(t, "crawl_pages", cfg.Sinks.Postgres.Table)
	require.True(t, cfg.Sinks.Log)
	require.Zero(t, cfg.Metrics.Port)
	require.Empty(t, cfg.ModuleSettings())
}

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
crawler:
  viewport_size:
    width: 1280
    height: 720
  user_agent: test-agent
  concurrency: 6
  max_depth: -1
  max_pages: 0
  same_host: false
  ignore_robots: true
  rate_limit_per_domain: 0.5
  queue_depth: 128
headless:
  nav_timeout_seconds: 30
  exec_path: /usr/bin/chromium
  no_sandbox: true
modules:
  enabled: [document, console]
  console:
    max_entries: 5
    dialogs: false
  document:
    max_headings: 3
sinks:
  log: false
  file:
    dir: /tmp/pages
  postgres:
    dsn: postgres://crawler@localhost/crawl
  pubsub:
    project_id: proj
    topic: pages
metrics:
  port: 9100
logging:
  development: false
  level: warn
telemetry:
  sample_ratio: 0.25
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, crawler.Viewport{Width: 1280, Height: 720}, cfg.Crawler.ViewportSize)
	require.Equal(t, "test-agent", cfg.Crawler.UserAgent)
	require.Equal(t, 6, cfg.Crawler.Concurrency)
	require.Equal(t, -1, cfg.Crawler.MaxDepth)
	require.False(t, cfg.Crawler.SameHost)
	require.True(t, cfg.Crawler.IgnoreRobots)
	require.InDelta(t, 0.5, cfg.Crawler.RateLimitPerDomain, 1e-9)
	require.Equal(t, 30*time.Second, cfg.NavigationTimeout())
	require.True(t, cfg.Headless.NoSandbox)
	require.Equal(t, []string{"document", "console"}, cfg.Modules.Enabled)

	settings := cfg.ModuleSettings()
	require.Len(t, settings, 2)
	require.EqualValues(t, 5, settings["console"]["max_entries"])
	require.Equal(t, false, settings["console"]["dialogs"])
	require.EqualValues(t, 3, settings["document"]["max_headings"])

	require.False(t, cfg.Sinks.Log)
	require.Equal(t, "/tmp/pages", cfg.Sinks.File.Dir)
	require.Equal(t, "postgres://crawler@localhost/crawl", cfg.Sinks.Postgres.DSN)
	require.Equal(t, "pages", cfg.Sinks.PubSub.Topic)
	require.Equal(t, 9100, cfg.Metrics.Port)
	require.Equal(t, "warn", cfg.Logging.Level)
	require.InDelta(t, 0.25, cfg.Telemetry.SampleRatio, 1e-9)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("CRAWLER_CRAWLER_CONCURRENCY", "3")
	t.Setenv("CRAWLER_MODULES_ENABLED", "resources navigation")
	t.Setenv("CRAWLER_METRICS_PORT", "9200")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 3, cfg.Crawler.Concurrency)
	require.Equal(t, []string{"resources", "navigation"}, cfg.Modules.Enabled)
	require.Equal(t, 9200, cfg.Metrics.Port)
}

func TestLoadErrors(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	path := writeConfig(t, "crawler:\n  concurrency: 0\n")
	_, err = Load(path)
	require.ErrorContains(t, err, "crawler.concurrency")
}

func TestValidate(t *testing.T) {
	t.Parallel()

	base, err := Load("")
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{name: "negative viewport", mutate: func(c *Config) { c.Crawler.ViewportSize.Width = -1 }, want: "viewport_size"},
		{name: "depth", mutate: func(c *Config) { c.Crawler.MaxDepth = -2 }, want: "max_depth"},
		{name: "pages", mutate: func(c *Config) { c.Crawler.MaxPages = -1 }, want: "max_pages"},
		{name: "rate", mutate: func(c *Config) { c.Crawler.RateLimitPerDomain = -1 }, want: "rate_limit_per_domain"},
		{name: "queue", mutate: func(c *Config) { c.Crawler.QueueDepth = 0 }, want: "queue_depth"},
		{name: "timeouts", mutate: func(c *Config) { c.Headless.EvalTimeoutSeconds = 0 }, want: "headless timeouts"},
		{name: "page timeout", mutate: func(c *Config) { c.Crawler.PageTimeoutSeconds = 65 }, want: "page_timeout_seconds"},
		{name: "page timeout below navigation", mutate: func(c *Config) { c.Headless.NavTimeoutSeconds = 120 }, want: "page_timeout_seconds"},
		{name: "port", mutate: func(c *Config) { c.Metrics.Port = 70000 }, want: "metrics.port"},
		{name: "pubsub pair", mutate: func(c *Config) { c.Sinks.PubSub.Topic = "t" }, want: "sinks.pubsub"},
		{name: "sample ratio", mutate: func(c *Config) { c.Telemetry.SampleRatio = 2 }, want: "sample_ratio"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := base
			tc.mutate(&cfg)
			require.ErrorContains(t, cfg.Validate(), tc.want)
		})
	}
}
