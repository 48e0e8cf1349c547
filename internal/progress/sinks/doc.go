// Package sinks implements concrete progress consumers: structured logging,
// Prometheus collectors, run bookkeeping in a store.RunRepository, page
// documents in a BlobStore and page messages on a Publisher. Each sink
// satisfies progress.Sink and is safe for repeated Consume/Close cycles.
package sinks
