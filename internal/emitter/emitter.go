// Package emitter provides a synchronous, in-process publish/subscribe
// surface keyed by event name.
package emitter

import (
	"sync"

	"go.uber.org/zap"
)

// Listener receives the positional arguments of one emission.
type Listener func(args ...any)

// Emitter fans named events out to every listener registered for the name,
// in registration order. It is safe for concurrent use; listeners run on the
// goroutine that calls Emit.
type Emitter[K comparable] struct {
	mu        sync.RWMutex
	listeners map[K][]Listener
	logger    *zap.Logger
}

// New creates an Emitter. A nil logger disables panic reporting.
func New[K comparable](logger *zap.Logger) *Emitter[K] {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Emitter[K]{
		listeners: make(map[K][]Listener),
		logger:    logger,
	}
}

// On registers fn for name. The same name may be subscribed many times.
func (e *Emitter[K]) On(name K, fn Listener) {
	if fn == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners[name] = append(e.listeners[name], fn)
}

// Emit invokes every listener registered for name with args. A panicking
// listener is logged and does not stop the remaining listeners.
func (e *Emitter[K]) Emit(name K, args ...any) {
	e.mu.RLock()
	listeners := make([]Listener, len(e.listeners[name]))
	copy(listeners, e.listeners[name])
	e.mu.RUnlock()

	for _, fn := range listeners {
		e.invoke(name, fn, args)
	}
}

// Count returns the number of listeners registered for name.
func (e *Emitter[K]) Count(name K) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.listeners[name])
}

func (e *Emitter[K]) invoke(name K, fn Listener, args []any) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("event listener panicked", zap.Any("event", name), zap.Any("panic", r))
		}
	}()
	fn(args...)
}
