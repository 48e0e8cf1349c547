// Package robots enforces robots.txt directives before a page is opened.
package robots

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
	"go.uber.org/zap"

	"github.com/JakeFAU/headless-page-crawler/internal/crawler"
	"github.com/JakeFAU/headless-page-crawler/internal/metrics"
)

const maxRobotsBytes = 1 << 20

var retryBackoff = []time.Duration{
	250 * time.Millisecond,
	500 * time.Millisecond,
	time.Second,
}

// Enforcer fetches and caches robots.txt per host.
type Enforcer struct {
	client    *http.Client
	cache     sync.Map
	userAgent string
	logger    *zap.Logger
	backoff   []time.Duration
}

// New builds a RobotsPolicy. When respect is false every URL is allowed.
func New(respect bool, userAgent string, client *http.Client, logger *zap.Logger) crawler.RobotsPolicy {
	if !respect {
		return AllowAll{}
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if userAgent == "" {
		userAgent = "*"
	}
	return &Enforcer{
		client:    client,
		userAgent: userAgent,
		logger:    logger,
		backoff:   retryBackoff,
	}
}

// Allowed implements crawler.RobotsPolicy. Fetch failures allow access.
func (r *Enforcer) Allowed(ctx context.Context, rawURL string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return false
	}
	data, err := r.load(ctx, parsed)
	if err != nil {
		r.logger.Warn("robots fetch failed; allowing access", zap.String("host", parsed.Host), zap.Error(err))
		return true
	}
	group := data.FindGroup(r.userAgent)
	if group == nil {
		return true
	}
	target := parsed.EscapedPath()
	if target == "" {
		target = "/"
	}
	if parsed.RawQuery != "" {
		target += "?" + parsed.RawQuery
	}
	return group.Test(target)
}

func (r *Enforcer) load(ctx context.Context, parsed *url.URL) (*robotstxt.RobotsData, error) {
	hostKey := strings.ToLower(parsed.Scheme + "://" + parsed.Host)
	if data, ok := r.cache.Load(hostKey); ok {
		cached, assertOK := data.(*robotstxt.RobotsData)
		if !assertOK {
			return nil, fmt.Errorf("robots cache type mismatch: %T", data)
		}
		return cached, nil
	}

	robotsURL := url.URL{Scheme: parsed.Scheme, Host: parsed.Host, Path: "/robots.txt"}
	status, body, err := r.fetchWithRetry(ctx, robotsURL.String())
	if err != nil {
		metrics.ObserveRobotsFetch("error")
		return nil, err
	}
	data, err := robotstxt.FromStatusAndBytes(status, body)
	if err != nil {
		metrics.ObserveRobotsFetch("invalid")
		return nil, fmt.Errorf("parse robots: %w", err)
	}
	metrics.ObserveRobotsFetch("ok")
	r.cache.Store(hostKey, data)
	return data, nil
}

func (r *Enforcer) fetchWithRetry(ctx context.Context, robotsURL string) (int, []byte, error) {
	for attempt := 0; ; attempt++ {
		status, body, err := r.fetch(ctx, robotsURL)
		if err == nil {
			return status, body, nil
		}
		if !isTransient(err) || attempt >= len(r.backoff) {
			return 0, nil, err
		}
		if err := sleepWithContext(ctx, r.backoff[attempt]); err != nil {
			return 0, nil, err
		}
	}
}

func (r *Enforcer) fetch(ctx context.Context, robotsURL string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("new robots request: %w", err)
	}
	req.Header.Set("User-Agent", r.userAgent)
	resp, err := r.client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("fetch robots: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			r.logger.Debug("close robots response body", zap.Error(cerr))
		}
	}()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRobotsBytes))
	if err != nil {
		return 0, nil, fmt.Errorf("read robots body: %w", err)
	}
	return resp.StatusCode, body, nil
}

func isTransient(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return strings.Contains(err.Error(), "tls: handshake timeout")
}

func sleepWithContext(ctx context.Context, delay time.Duration) error {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("robots backoff: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}

// AllowAll permits every URL.
type AllowAll struct{}

// Allowed implements crawler.RobotsPolicy.
func (AllowAll) Allowed(context.Context, string) bool { return true }
