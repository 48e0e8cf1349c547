package crawler

import (
	"errors"
	"time"
)

// ErrDuplicateModule is returned when two modules attached to one worker share an id.
var ErrDuplicateModule = errors.New("duplicate module id")

// LoadStatus is the outcome reported by the engine when a page open completes.
type LoadStatus string

// Load statuses. Any value other than StatusSuccess is a failure.
const (
	StatusSuccess LoadStatus = "success"
	StatusFail    LoadStatus = "fail"
)

// Success reports whether the page loaded.
func (s LoadStatus) Success() bool {
	return s == StatusSuccess
}

// Viewport is the emulated browser window size in CSS pixels.
type Viewport struct {
	Width  int64 `json:"width" mapstructure:"width"`
	Height int64 `json:"height" mapstructure:"height"`
}

// DefaultViewport is used when no viewport is configured.
var DefaultViewport = Viewport{Width: 1920, Height: 1080}

// IsZero reports whether neither dimension is set.
func (v Viewport) IsZero() bool {
	return v.Width == 0 && v.Height == 0
}

// CrawlResult is the terminal payload of one page crawl.
type CrawlResult struct {
	ID      string         `json:"id,omitempty"`
	URL     string         `json:"url"`
	Links   []string       `json:"links"`
	Results map[string]any `json:"results"`
	Status  LoadStatus     `json:"status"`
}

// CrawlResultFromArgs rebuilds a CrawlResult from the positional arguments of
// EventPageCrawled.
func CrawlResultFromArgs(args []any) (CrawlResult, bool) {
	url, ok := Arg[string](args, 0)
	if !ok {
		return CrawlResult{}, false
	}
	links, ok := Arg[[]string](args, 1)
	if !ok {
		return CrawlResult{}, false
	}
	results, ok := Arg[map[string]any](args, 2)
	if !ok {
		return CrawlResult{}, false
	}
	status, ok := Arg[LoadStatus](args, 3)
	if !ok {
		return CrawlResult{}, false
	}
	return CrawlResult{URL: url, Links: links, Results: results, Status: status}, true
}

// ModuleError takes the place of a module's result when producing it failed.
type ModuleError struct {
	Err string `json:"error"`
}

// Error implements error.
func (e ModuleError) Error() string {
	return e.Err
}

// Target is a URL waiting in the dispatcher's frontier.
type Target struct {
	URL    string
	Depth  int
	Parent string
}

// PageRecord is persisted for each crawled page.
type PageRecord struct {
	ID         string         `json:"id"`
	RunID      string         `json:"run_id"`
	URL        string         `json:"url"`
	Depth      int            `json:"depth"`
	Status     LoadStatus     `json:"status"`
	Links      []string       `json:"links"`
	Results    map[string]any `json:"results"`
	CrawledAt  time.Time      `json:"crawled_at"`
	DurationMs int64          `json:"duration_ms"`
}
