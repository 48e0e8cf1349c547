package crawler

// Event names a signal on a worker's event stream.
type Event string

// Engine lifecycle events relayed verbatim from the page session.
const (
	EventAlert               Event = "onAlert"
	EventCallback            Event = "onCallback"
	EventClosing             Event = "onClosing"
	EventConfirm             Event = "onConfirm"
	EventConsoleMessage      Event = "onConsoleMessage"
	EventError               Event = "onError"
	EventFilePicker          Event = "onFilePicker"
	EventInitialized         Event = "onInitialized"
	EventLoadFinished        Event = "onLoadFinished"
	EventLoadStarted         Event = "onLoadStarted"
	EventNavigationRequested Event = "onNavigationRequested"
	EventPageCreated         Event = "onPageCreated"
	EventPrompt              Event = "onPrompt"
	EventResourceError       Event = "onResourceError"
	EventResourceReceived    Event = "onResourceReceived"
	EventResourceRequested   Event = "onResourceRequested"
	EventResourceTimeout     Event = "onResourceTimeout"
	EventURLChanged          Event = "onUrlChanged"
)

// Events synthesized by the worker while processing a URL.
const (
	// EventPageOpen carries (Page, LoadStatus).
	EventPageOpen Event = "onPageOpen"
	// EventPageOpenSuccess carries (Page) and fires only for successful loads.
	EventPageOpenSuccess Event = "onPageOpenSuccess"
	// EventPageCrawled carries (url string, links []string, results map[string]any, status LoadStatus).
	EventPageCrawled Event = "onPageCrawled"
)

// RelayedEvents lists every engine callback a page session exposes, in a
// stable order.
var RelayedEvents = []Event{
	EventAlert,
	EventCallback,
	EventClosing,
	EventConfirm,
	EventConsoleMessage,
	EventError,
	EventFilePicker,
	EventInitialized,
	EventLoadFinished,
	EventLoadStarted,
	EventNavigationRequested,
	EventPageCreated,
	EventPrompt,
	EventResourceError,
	EventResourceReceived,
	EventResourceRequested,
	EventResourceTimeout,
	EventURLChanged,
}

// Listener receives the positional arguments of an event.
type Listener func(args ...any)

// Arg returns args[i] asserted to T. The second result is false when the
// argument is missing or has a different type.
func Arg[T any](args []any, i int) (T, bool) {
	var zero T
	if i < 0 || i >= len(args) {
		return zero, false
	}
	v, ok := args[i].(T)
	if !ok {
		return zero, false
	}
	return v, true
}
