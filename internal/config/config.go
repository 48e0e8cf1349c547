// Package config loads and validates crawler configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cast"
	"github.com/spf13/viper"

	"github.com/JakeFAU/headless-page-crawler/internal/crawler"
	"github.com/JakeFAU/headless-page-crawler/internal/logging"
	"github.com/JakeFAU/headless-page-crawler/internal/telemetry"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Crawler   CrawlerConfig    `mapstructure:"crawler"`
	Headless  HeadlessConfig   `mapstructure:"headless"`
	Modules   ModulesConfig    `mapstructure:"modules"`
	Progress  ProgressConfig   `mapstructure:"progress"`
	Sinks     SinksConfig      `mapstructure:"sinks"`
	Metrics   MetricsConfig    `mapstructure:"metrics"`
	Logging   logging.Config   `mapstructure:"logging"`
	Telemetry telemetry.Config `mapstructure:"telemetry"`
}

// CrawlerConfig governs the worker pool and frontier admission.
type CrawlerConfig struct {
	ViewportSize       crawler.Viewport `mapstructure:"viewport_size"`
	UserAgent          string           `mapstructure:"user_agent"`
	Concurrency        int              `mapstructure:"concurrency"`
	MaxDepth           int              `mapstructure:"max_depth"`
	MaxPages           int              `mapstructure:"max_pages"`
	SameHost           bool             `mapstructure:"same_host"`
	IgnoreRobots       bool             `mapstructure:"ignore_robots"`
	RateLimitPerDomain float64          `mapstructure:"rate_limit_per_domain"`
	QueueDepth         int              `mapstructure:"queue_depth"`
	PageTimeoutSeconds int              `mapstructure:"page_timeout_seconds"`
	RobotsTimeoutSecs  int              `mapstructure:"robots_timeout_seconds"`
}

// HeadlessConfig configures Chrome.
type HeadlessConfig struct {
	NavTimeoutSeconds  int    `mapstructure:"nav_timeout_seconds"`
	EvalTimeoutSeconds int    `mapstructure:"eval_timeout_seconds"`
	ExecPath           string `mapstructure:"exec_path"`
	NoSandbox          bool   `mapstructure:"no_sandbox"`
}

// ModulesConfig selects the modules attached to each worker. Every other key
// under modules is that module's settings map.
type ModulesConfig struct {
	Enabled  []string       `mapstructure:"enabled"`
	Settings map[string]any `mapstructure:",remain"`
}

// ProgressConfig tunes the progress hub batching.
type ProgressConfig struct {
	BufferSize     int `mapstructure:"buffer_size"`
	MaxBatchEvents int `mapstructure:"max_batch_events"`
	MaxBatchWaitMs int `mapstructure:"max_batch_wait_ms"`
}

// SinksConfig enables progress sinks.
type SinksConfig struct {
	Log      bool           `mapstructure:"log"`
	File     FileSinkConfig `mapstructure:"file"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	GCS      GCSConfig      `mapstructure:"gcs"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
}

// FileSinkConfig writes page documents below Dir when set.
type FileSinkConfig struct {
	Dir string `mapstructure:"dir"`
}

// PostgresConfig stores runs and page records when DSN is set.
type PostgresConfig struct {
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int32  `mapstructure:"max_conns"`
	Migrate  bool   `mapstructure:"migrate"`
}

// GCSConfig uploads page documents when Bucket is set.
type GCSConfig struct {
	Bucket string `mapstructure:"bucket"`
	Prefix string `mapstructure:"prefix"`
}

// PubSubConfig publishes page messages when ProjectID and Topic are set.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// MetricsConfig controls the ops HTTP server; a zero port disables it.
type MetricsConfig struct {
	Port int `mapstructure:"port"`
}

// Load builds a Config from an optional file plus CRAWLER_* environment
// variables.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CRAWLER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	// Env values for list keys arrive as one space separated string.
	cfg.Modules.Enabled = splitList(v.Get("modules.enabled"))

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("crawler.viewport_size.width", crawler.DefaultViewport.Width)
	v.SetDefault("crawler.viewport_size.height", crawler.DefaultViewport.Height)
	v.SetDefault("crawler.user_agent", "headless-page-crawler/0.1")
	v.SetDefault("crawler.concurrency", 2)
	v.SetDefault("crawler.max_depth", 1)
	v.SetDefault("crawler.max_pages", 100)
	v.SetDefault("crawler.same_host", true)
	v.SetDefault("crawler.ignore_robots", false)
	v.SetDefault("crawler.rate_limit_per_domain", 1.0)
	v.SetDefault("crawler.queue_depth", 1024)
	v.SetDefault("crawler.page_timeout_seconds", 90)
	v.SetDefault("crawler.robots_timeout_seconds", 10)
	v.SetDefault("headless.nav_timeout_seconds", 45)
	v.SetDefault("headless.eval_timeout_seconds", 10)
	v.SetDefault("headless.exec_path", "")
	v.SetDefault("headless.no_sandbox", false)
	v.SetDefault("modules.enabled", []string{"resources", "console", "document", "navigation"})
	v.SetDefault("progress.buffer_size", 1024)
	v.SetDefault("progress.max_batch_events", 100)
	v.SetDefault("progress.max_batch_wait_ms", 500)
	v.SetDefault("sinks.log", true)
	v.SetDefault("sinks.file.dir", "")
	v.SetDefault("sinks.postgres.dsn", "")
	v.SetDefault("sinks.postgres.table", "crawl_pages")
	v.SetDefault("sinks.postgres.max_conns", 4)
	v.SetDefault("sinks.postgres.migrate", false)
	v.SetDefault("sinks.gcs.bucket", "")
	v.SetDefault("sinks.gcs.prefix", "pages")
	v.SetDefault("sinks.pubsub.project_id", "")
	v.SetDefault("sinks.pubsub.topic", "")
	v.SetDefault("metrics.port", 0)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
	v.SetDefault("telemetry.service_name", "headless-page-crawler")
	v.SetDefault("telemetry.sample_ratio", 0.0)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Crawler.Concurrency <= 0 {
		return fmt.Errorf("crawler.concurrency must be > 0")
	}
	if c.Crawler.ViewportSize.Width < 0 || c.Crawler.ViewportSize.Height < 0 {
		return fmt.Errorf("crawler.viewport_size must not be negative")
	}
	if c.Crawler.MaxDepth < -1 {
		return fmt.Errorf("crawler.max_depth must be >= -1")
	}
	if c.Crawler.MaxPages < 0 {
		return fmt.Errorf("crawler.max_pages must be >= 0")
	}
	if c.Crawler.RateLimitPerDomain < 0 {
		return fmt.Errorf("crawler.rate_limit_per_domain must be >= 0")
	}
	if c.Crawler.QueueDepth <= 0 {
		return fmt.Errorf("crawler.queue_depth must be > 0")
	}
	if c.Headless.NavTimeoutSeconds <= 0 || c.Headless.EvalTimeoutSeconds <= 0 {
		return fmt.Errorf("headless timeouts must be > 0")
	}
	// One navigation plus the link script and the document module evaluation.
	if budget := c.Headless.NavTimeoutSeconds + 2*c.Headless.EvalTimeoutSeconds; c.Crawler.PageTimeoutSeconds <= budget {
		return fmt.Errorf("crawler.page_timeout_seconds must be > %d (navigation plus two evaluations)", budget)
	}
	if c.Metrics.Port < 0 || c.Metrics.Port > 65535 {
		return fmt.Errorf("metrics.port must be within 0-65535")
	}
	if (c.Sinks.PubSub.ProjectID == "") != (c.Sinks.PubSub.Topic == "") {
		return fmt.Errorf("sinks.pubsub.project_id and sinks.pubsub.topic must be set together")
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry.sample_ratio must be within [0, 1]")
	}
	return nil
}

// ModuleSettings returns the per-module settings maps keyed by module id.
func (c Config) ModuleSettings() map[string]map[string]any {
	out := make(map[string]map[string]any, len(c.Modules.Settings))
	for id, raw := range c.Modules.Settings {
		settings, err := cast.ToStringMapE(raw)
		if err != nil {
			continue
		}
		out[id] = settings
	}
	return out
}

// NavigationTimeout is the per-page navigation budget.
func (c Config) NavigationTimeout() time.Duration {
	return time.Duration(c.Headless.NavTimeoutSeconds) * time.Second
}

// EvalTimeout is the per-evaluation budget.
func (c Config) EvalTimeout() time.Duration {
	return time.Duration(c.Headless.EvalTimeoutSeconds) * time.Second
}

// PageTimeout bounds how long the dispatcher waits for one crawl.
func (c Config) PageTimeout() time.Duration {
	return time.Duration(c.Crawler.PageTimeoutSeconds) * time.Second
}

// ProgressWait is the maximum hub batch delay.
func (c Config) ProgressWait() time.Duration {
	return time.Duration(c.Progress.MaxBatchWaitMs) * time.Millisecond
}

func splitList(raw any) []string {
	var items []string
	if s, ok := raw.(string); ok {
		items = strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' })
	} else {
		items = cast.ToStringSlice(raw)
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
