package headless

import (
	"sync"

	"go.uber.org/zap"
)

// eventLoop runs posted tasks one at a time, in order, on a single goroutine.
// post never blocks, so it is safe to call from chromedp listeners.
type eventLoop struct {
	mu     sync.Mutex
	cond   *sync.Cond
	tasks  []func()
	closed bool
	done   chan struct{}
	logger *zap.Logger
}

func newEventLoop(logger *zap.Logger) *eventLoop {
	l := &eventLoop{
		done:   make(chan struct{}),
		logger: logger,
	}
	l.cond = sync.NewCond(&l.mu)
	go l.run()
	return l
}

// post queues fn. It reports false once the loop has been stopped.
func (l *eventLoop) post(fn func()) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return false
	}
	l.tasks = append(l.tasks, fn)
	l.cond.Signal()
	return true
}

// stop rejects new tasks; already queued tasks still run.
func (l *eventLoop) stop() {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
	l.cond.Broadcast()
}

func (l *eventLoop) run() {
	defer close(l.done)
	for {
		l.mu.Lock()
		for len(l.tasks) == 0 && !l.closed {
			l.cond.Wait()
		}
		if len(l.tasks) == 0 {
			l.mu.Unlock()
			return
		}
		fn := l.tasks[0]
		l.tasks[0] = nil
		l.tasks = l.tasks[1:]
		l.mu.Unlock()

		l.invoke(fn)
	}
}

func (l *eventLoop) invoke(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("page event task panicked", zap.Any("panic", r))
		}
	}()
	fn()
}
