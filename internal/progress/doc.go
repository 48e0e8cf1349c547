// Package progress carries crawl run events from the dispatcher to pluggable
// sinks. Emit never blocks the crawl: events are buffered, batched on a
// background goroutine and fanned out to sinks such as structured logs,
// Prometheus, blob storage, Postgres or Pub/Sub.
package progress
