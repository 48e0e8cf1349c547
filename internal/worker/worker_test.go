package worker

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/headless-page-crawler/internal/crawler"
)

func TestWorker_ProcessSuccessWithoutModules(t *testing.T) {
	t.Parallel()

	page := newFakePage()
	page.links = []string{"http://x.test/a", "http://x.test/b"}
	w := newTestWorker(t, page, nil)

	var got []crawler.CrawlResult
	w.OnCrawled(func(r crawler.CrawlResult) { got = append(got, r) })

	require.NoError(t, w.Process("http://x.test/"))
	require.Len(t, got, 1)
	require.Equal(t, "http://x.test/", got[0].URL)
	require.Equal(t, []string{"http://x.test/a", "http://x.test/b"}, got[0].Links)
	require.Empty(t, got[0].Results)
	require.NotNil(t, got[0].Results)
	require.Equal(t, crawler.StatusSuccess, got[0].Status)
	require.Equal(t, []string{"http://x.test/"}, page.opened)
	require.Len(t, page.evaluated, 1)
	require.Equal(t, crawler.DefaultViewport, page.viewport)
	require.False(t, w.Busy())
}

func TestWorker_ProcessFailureSkipsLinksAndSuccessHook(t *testing.T) {
	t.Parallel()

	page := newFakePage()
	page.status = crawler.StatusFail
	page.links = []string{"http://never/"}

	counter := &countingModule{id: "counter"}
	w := newTestWorker(t, page, []crawler.Factory{counter.factory})

	var opens []crawler.LoadStatus
	successHooks := 0
	w.On(crawler.EventPageOpen, func(args ...any) {
		status, ok := crawler.Arg[crawler.LoadStatus](args, 1)
		require.True(t, ok)
		opens = append(opens, status)
	})
	w.On(crawler.EventPageOpenSuccess, func(...any) { successHooks++ })

	var got crawler.CrawlResult
	w.OnCrawled(func(r crawler.CrawlResult) { got = r })

	require.NoError(t, w.Process("http://down.test/"))
	require.Equal(t, []crawler.LoadStatus{crawler.StatusFail}, opens)
	require.Zero(t, successHooks)
	require.Empty(t, page.evaluated)
	require.NotNil(t, got.Links)
	require.Empty(t, got.Links)
	require.Equal(t, crawler.StatusFail, got.Status)
	require.Contains(t, got.Results, "counter")
}

func TestWorker_ModuleCountsResetBetweenCrawls(t *testing.T) {
	t.Parallel()

	page := newFakePage()
	page.duringOpen = func(p *fakePage) {
		p.fire(crawler.EventResourceRequested, crawler.Request{URL: "a"}, 1)
		p.fire(crawler.EventResourceRequested, crawler.Request{URL: "b"}, 2)
		p.fire(crawler.EventResourceRequested, crawler.Request{URL: "c"}, 3)
	}
	counter := &countingModule{id: "counter"}
	w := newTestWorker(t, page, []crawler.Factory{counter.factory})

	var results []any
	w.OnCrawled(func(r crawler.CrawlResult) { results = append(results, r.Results["counter"]) })

	require.NoError(t, w.Process("http://one.test/"))
	page.duringOpen = nil
	require.NoError(t, w.Process("http://two.test/"))

	require.Equal(t, []any{3, 0}, results)
}

func TestWorker_ResultsKeyedByEveryModule(t *testing.T) {
	t.Parallel()

	page := newFakePage()
	a := &countingModule{id: "a"}
	b := &countingModule{id: "b"}
	c := &countingModule{id: "c"}
	w := newTestWorker(t, page, []crawler.Factory{a.factory, b.factory, c.factory})
	require.Equal(t, []string{"a", "b", "c"}, w.Modules())

	var got crawler.CrawlResult
	w.OnCrawled(func(r crawler.CrawlResult) { got = r })
	require.NoError(t, w.Process("http://x.test/"))

	require.Len(t, got.Results, 3)
	for _, id := range []string{"a", "b", "c"} {
		require.Contains(t, got.Results, id)
	}
	require.Equal(t, 1, a.cleans)
	require.Equal(t, 1, a.results)
}

func TestWorker_CleanRunsBeforeOpen(t *testing.T) {
	t.Parallel()

	page := newFakePage()
	var order []string
	mod := &orderModule{id: "m", log: &order}
	page.beforeOpen = func() { order = append(order, "open") }
	w := newTestWorker(t, page, []crawler.Factory{func(crawler.Host) crawler.Module { return mod }})
	w.On(crawler.EventPageCrawled, func(...any) { order = append(order, "crawled") })

	require.NoError(t, w.Process("http://x.test/"))
	require.Equal(t, []string{"clean", "open", "result", "crawled"}, order)
}

func TestWorker_RelaysPassArgumentsUnchanged(t *testing.T) {
	t.Parallel()

	page := newFakePage()
	w := newTestWorker(t, page, nil)

	var loadStarted [][]any
	var console [][]any
	w.On(crawler.EventLoadStarted, func(args ...any) { loadStarted = append(loadStarted, args) })
	w.On(crawler.EventConsoleMessage, func(args ...any) { console = append(console, args) })

	for _, event := range crawler.RelayedEvents {
		require.Contains(t, page.handlers, event)
	}

	page.fire(crawler.EventLoadStarted)
	page.fire(crawler.EventConsoleMessage, "hello", 3, "app.js")

	require.Len(t, loadStarted, 1)
	require.Empty(t, loadStarted[0])
	require.Equal(t, [][]any{{"hello", 3, "app.js"}}, console)
}

func TestWorker_ProcessRejectsOverlap(t *testing.T) {
	t.Parallel()

	page := newFakePage()
	page.deferred = true
	w := newTestWorker(t, page, nil)

	crawled := 0
	w.OnCrawled(func(crawler.CrawlResult) { crawled++ })

	require.NoError(t, w.Process("http://slow.test/"))
	require.True(t, w.Busy())
	require.ErrorIs(t, w.Process("http://other.test/"), ErrBusy)

	page.finish(crawler.StatusSuccess)
	page.finish(crawler.StatusSuccess)
	require.Equal(t, 1, crawled)
	require.False(t, w.Busy())
	require.NoError(t, w.Process("http://other.test/"))
}

func TestWorker_ProcessFromCrawledListener(t *testing.T) {
	t.Parallel()

	page := newFakePage()
	w := newTestWorker(t, page, nil)

	queue := []string{"http://b.test/", "http://c.test/"}
	var visited []string
	w.OnCrawled(func(r crawler.CrawlResult) {
		visited = append(visited, r.URL)
		if len(queue) == 0 {
			return
		}
		next := queue[0]
		queue = queue[1:]
		require.NoError(t, w.Process(next))
	})

	require.NoError(t, w.Process("http://a.test/"))
	require.Equal(t, []string{"http://a.test/", "http://b.test/", "http://c.test/"}, visited)
}

func TestWorker_LinkExtractionErrorYieldsEmptyLinks(t *testing.T) {
	t.Parallel()

	page := newFakePage()
	page.evalErr = errors.New("script died")
	w := newTestWorker(t, page, nil)

	var got crawler.CrawlResult
	w.OnCrawled(func(r crawler.CrawlResult) { got = r })
	require.NoError(t, w.Process("http://x.test/"))

	require.NotNil(t, got.Links)
	require.Empty(t, got.Links)
	require.Equal(t, crawler.StatusSuccess, got.Status)
}

func TestWorker_ModulePanicIsolated(t *testing.T) {
	t.Parallel()

	page := newFakePage()
	good := &countingModule{id: "good"}
	bad := func(crawler.Host) crawler.Module { return panicModule{id: "bad"} }
	w := newTestWorker(t, page, []crawler.Factory{bad, good.factory})

	var got crawler.CrawlResult
	w.OnCrawled(func(r crawler.CrawlResult) { got = r })
	require.NoError(t, w.Process("http://x.test/"))

	require.Equal(t, crawler.ModuleError{Err: "boom"}, got.Results["bad"])
	require.Equal(t, 0, got.Results["good"])
}

func TestWorker_CleanPanicIsolated(t *testing.T) {
	t.Parallel()

	page := newFakePage()
	good := &countingModule{id: "good"}
	bad := func(crawler.Host) crawler.Module { return cleanPanicModule{id: "bad"} }
	w := newTestWorker(t, page, []crawler.Factory{bad, good.factory})

	var got []crawler.CrawlResult
	w.OnCrawled(func(r crawler.CrawlResult) { got = append(got, r) })
	require.NoError(t, w.Process("http://x.test/"))

	require.Equal(t, 1, good.cleans)
	require.Equal(t, []string{"http://x.test/"}, page.opened)
	require.Len(t, got, 1)
	require.Len(t, got[0].Results, 2)
	require.Equal(t, "bad result", got[0].Results["bad"])
	require.Equal(t, 0, got[0].Results["good"])
	require.False(t, w.Busy())
}

func TestNew_RejectsNilModules(t *testing.T) {
	t.Parallel()

	good := &countingModule{id: "good"}
	tests := []struct {
		name      string
		factories []crawler.Factory
		want      string
	}{
		{name: "nil factory", factories: []crawler.Factory{good.factory, nil}, want: "module 1: nil factory"},
		{
			name:      "nil module",
			factories: []crawler.Factory{func(crawler.Host) crawler.Module { return nil }},
			want:      "module 0: factory returned nil module",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			page := newFakePage()
			w, err := New(&fakeBrowser{page: page}, tc.factories, Config{}, zap.NewNop())
			require.Nil(t, w)
			require.ErrorContains(t, err, tc.want)
			require.True(t, page.closed)
		})
	}
}

func TestNew_RejectsDuplicateModuleIDs(t *testing.T) {
	t.Parallel()

	page := newFakePage()
	a := &countingModule{id: "dup"}
	b := &countingModule{id: "dup"}
	_, err := New(&fakeBrowser{page: page}, []crawler.Factory{a.factory, b.factory}, Config{}, zap.NewNop())
	require.ErrorIs(t, err, crawler.ErrDuplicateModule)
	require.True(t, page.closed)
}

func TestNew_PageSessionFailure(t *testing.T) {
	t.Parallel()

	_, err := New(&fakeBrowser{err: errors.New("no engine")}, nil, Config{}, zap.NewNop())
	require.Error(t, err)
	require.Contains(t, err.Error(), "no engine")

	page := newFakePage()
	page.viewportErr = errors.New("bad size")
	_, err = New(&fakeBrowser{page: page}, nil, Config{}, zap.NewNop())
	require.ErrorContains(t, err, "bad size")
	require.True(t, page.closed)
}

func TestWorker_ModuleConfigIsCopied(t *testing.T) {
	t.Parallel()

	settings := map[string]map[string]any{"console": {"max_entries": 5}}
	var seen map[string]any
	factory := func(h crawler.Host) crawler.Module {
		seen = h.ModuleConfig("console")
		require.NotNil(t, h.Logger())
		require.NotNil(t, h.ModuleConfig("missing"))
		return &countingModule{id: "console"}
	}
	page := newFakePage()
	_, err := New(&fakeBrowser{page: page}, []crawler.Factory{factory}, Config{
		Viewport: crawler.Viewport{Width: 800, Height: 600},
		Modules:  settings,
	}, zap.NewNop())
	require.NoError(t, err)

	settings["console"]["max_entries"] = 99
	require.Equal(t, 5, seen["max_entries"])
	require.Equal(t, crawler.Viewport{Width: 800, Height: 600}, page.viewport)
}

func TestWorker_CloseIsIdempotent(t *testing.T) {
	t.Parallel()

	page := newFakePage()
	w := newTestWorker(t, page, nil)
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())
	require.Equal(t, 1, page.closeCalls)
	require.ErrorIs(t, w.Process("http://x.test/"), ErrClosed)
}

func newTestWorker(t *testing.T, page *fakePage, factories []crawler.Factory) *Worker {
	t.Helper()
	w, err := New(&fakeBrowser{page: page}, factories, Config{}, zap.NewNop())
	require.NoError(t, err)
	return w
}

type fakeBrowser struct {
	page *fakePage
	err  error
}

func (b *fakeBrowser) NewPage() (crawler.Page, error) {
	if b.err != nil {
		return nil, b.err
	}
	return b.page, nil
}

// fakePage completes opens synchronously unless deferred is set.
type fakePage struct {
	mu          sync.Mutex
	handlers    map[crawler.Event]crawler.Listener
	status      crawler.LoadStatus
	links       []string
	evalErr     error
	viewportErr error
	viewport    crawler.Viewport
	deferred    bool
	pending     func(crawler.LoadStatus)
	duringOpen  func(p *fakePage)
	beforeOpen  func()
	opened      []string
	evaluated   []string
	closed      bool
	closeCalls  int
}

func newFakePage() *fakePage {
	return &fakePage{
		handlers: make(map[crawler.Event]crawler.Listener),
		status:   crawler.StatusSuccess,
	}
}

func (p *fakePage) SetViewport(v crawler.Viewport) error {
	if p.viewportErr != nil {
		return p.viewportErr
	}
	p.viewport = v
	return nil
}

func (p *fakePage) SetHandler(event crawler.Event, fn crawler.Listener) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers[event] = fn
}

func (p *fakePage) Open(url string, done func(crawler.LoadStatus)) {
	if p.beforeOpen != nil {
		p.beforeOpen()
	}
	p.opened = append(p.opened, url)
	if p.duringOpen != nil {
		p.duringOpen(p)
	}
	if p.deferred {
		p.pending = done
		return
	}
	done(p.status)
}

func (p *fakePage) finish(status crawler.LoadStatus) {
	if p.pending != nil {
		p.pending(status)
	}
}

func (p *fakePage) Evaluate(script string, out any) error {
	p.evaluated = append(p.evaluated, script)
	if p.evalErr != nil {
		return p.evalErr
	}
	if dst, ok := out.(*[]string); ok {
		*dst = append([]string(nil), p.links...)
	}
	return nil
}

func (p *fakePage) Close() error {
	p.closed = true
	p.closeCalls++
	return nil
}

func (p *fakePage) fire(event crawler.Event, args ...any) {
	p.mu.Lock()
	fn := p.handlers[event]
	p.mu.Unlock()
	if fn != nil {
		fn(args...)
	}
}

// countingModule counts onResourceRequested events.
type countingModule struct {
	id      string
	count   int
	cleans  int
	results int
}

func (m *countingModule) factory(h crawler.Host) crawler.Module {
	h.On(crawler.EventResourceRequested, func(...any) { m.count++ })
	return m
}

func (m *countingModule) ID() string { return m.id }

func (m *countingModule) Clean() {
	m.cleans++
	m.count = 0
}

func (m *countingModule) Result() any {
	m.results++
	return m.count
}

type orderModule struct {
	id  string
	log *[]string
}

func (m *orderModule) ID() string { return m.id }
func (m *orderModule) Clean() { *m.log = append(*m.log, "clean") }
func (m *orderModule) Result() any { *m.log = append(*m.log, "result"); return nil }

type panicModule struct{ id string }

func (m panicModule) ID() string { return m.id }
func (m panicModule) Clean() {}
func (m panicModule) Result() any { panic("boom") }

type cleanPanicModule struct{ id string }

func (m cleanPanicModule) ID() string  { return m.id }
func (m cleanPanicModule) Clean()      { panic("clean failed") }
func (m cleanPanicModule) Result() any { return "bad result" }
