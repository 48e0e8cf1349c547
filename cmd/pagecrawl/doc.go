// Package main hosts the pagecrawl entrypoint.
//
// Architecture overview:
//   - Worker: internal/worker binds one headless page session to an ordered
//     set of extraction modules. Process(url) cleans the modules, opens the
//     page, collects module results and link targets, and raises
//     onPageCrawled. A worker crawls one URL at a time.
//   - Browser: internal/browser/headless drives Chrome over CDP with chromedp
//     and relays page events through a per-tab event loop, so handlers and
//     open callbacks never run concurrently for one page.
//   - Dispatcher: internal/dispatcher owns the worker pool and the bounded
//     frontier. It admits targets (dedupe, depth, page cap, same host,
//     robots.txt), rate limits per host and expands discovered links.
//   - Progress: run and page events go through the batching progress hub to
//     the configured sinks (zap log, Prometheus, local/GCS documents,
//     Postgres or in-memory run store, Pub/Sub).
//   - Ops: when metrics.port is set, a chi router serves /healthz, /readyz,
//     /metrics and read-only run progress under /api/runs.
//
// Quick checklist:
//   - Configure with a YAML/JSON/TOML file passed as --config and CRAWLER_*
//     env overrides (CRAWLER_CRAWLER_CONCURRENCY, CRAWLER_MODULES_ENABLED,
//     CRAWLER_SINKS_POSTGRES_DSN, ...).
//   - Run locally: go run ./cmd/pagecrawl crawl --config config.yaml https://example.com/
//   - SIGINT/SIGTERM cancels the run; RUN_DONE is still emitted and the hub
//     drains before the process exits.
package main
