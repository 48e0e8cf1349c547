package crawler

import (
	"context"
	"io"
	"time"

	"go.uber.org/zap"
)

// Page is one headless-browser page session. Every handler and every open
// completion callback is invoked on the session's single event loop.
type Page interface {
	// SetViewport resizes the emulated window.
	SetViewport(v Viewport) error
	// SetHandler installs the callback for an engine lifecycle event,
	// replacing any previous one.
	SetHandler(event Event, fn Listener)
	// Open starts navigating to url and returns immediately. done is called
	// exactly once with the load status.
	Open(url string, done func(status LoadStatus))
	// Evaluate runs script in the page context and decodes its value into out.
	Evaluate(script string, out any) error
	// Close releases the page session.
	Close() error
}

// Browser creates page sessions.
type Browser interface {
	NewPage() (Page, error)
}

// Module accumulates extraction state across one crawl.
type Module interface {
	// ID is unique among the modules attached to one worker.
	ID() string
	// Clean resets the accumulator state. It must be idempotent.
	Clean()
	// Result returns a snapshot of the accumulator state without mutating it.
	Result() any
}

// Host is the non-owning handle a module receives from its worker.
type Host interface {
	// On subscribes to the worker's event stream.
	On(event Event, fn Listener)
	// ModuleConfig returns the configuration sub-map for a module id; never nil.
	ModuleConfig(id string) map[string]any
	// Logger returns the worker's logger.
	Logger() *zap.Logger
}

// Factory builds one module bound to a worker.
type Factory func(host Host) Module

// Queue provides enqueue/dequeue semantics for the crawl frontier.
type Queue interface {
	Enqueue(ctx context.Context, target Target) error
	Dequeue(ctx context.Context) (Target, error)
	Close()
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Publisher pushes completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// ResultStore persists page records.
type ResultStore interface {
	StoreResult(ctx context.Context, record PageRecord) error
}

// RobotsPolicy decides whether robots.txt allows a URL.
type RobotsPolicy interface {
	Allowed(ctx context.Context, rawURL string) bool
}

// Hasher computes digests for content-addressed names.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run and record IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
