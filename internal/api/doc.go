// Package api hosts the operator HTTP server that runs alongside a crawl.
// Routes:
//   - GET /healthz and /readyz for probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /api/runs, /api/runs/{run_id} and /api/runs/{run_id}/sites for
//     run progress read through store.RunRepository.
package api
