package modules

import (
	"slices"

	"github.com/JakeFAU/headless-page-crawler/internal/crawler"
)

const defaultMaxEntries = 100

// ConsoleEntry is one console line, script error or dialog.
type ConsoleEntry struct {
	Kind    string               `json:"kind"`
	Message string               `json:"message"`
	Line    int                  `json:"line,omitempty"`
	Source  string               `json:"source,omitempty"`
	Trace   []crawler.StackFrame `json:"trace,omitempty"`
}

// ConsoleLog is the console module's result.
type ConsoleLog struct {
	Entries   []ConsoleEntry `json:"entries"`
	Errors    int            `json:"errors"`
	Dropped   int            `json:"dropped"`
	Truncated bool           `json:"truncated"`
}

// Console records console output, uncaught errors and, unless
// dialogs is false, alert/confirm/prompt messages.
type Console struct {
	maxEntries int
	log        ConsoleLog
}

// NewConsole builds the console module. Settings: max_entries, dialogs.
func NewConsole(host crawler.Host) crawler.Module {
	settings := host.ModuleConfig(ConsoleID)
	m := &Console{maxEntries: intSetting(settings, "max_entries", defaultMaxEntries)}
	m.Clean()

	host.On(crawler.EventConsoleMessage, func(args ...any) {
		msg, _ := crawler.Arg[string](args, 0)
		line, _ := crawler.Arg[int](args, 1)
		source, _ := crawler.Arg[string](args, 2)
		m.add(ConsoleEntry{Kind: "console", Message: msg, Line: line, Source: source})
	})
	host.On(crawler.EventError, func(args ...any) {
		msg, _ := crawler.Arg[string](args, 0)
		trace, _ := crawler.Arg[[]crawler.StackFrame](args, 1)
		m.log.Errors++
		m.add(ConsoleEntry{Kind: "error", Message: msg, Trace: trace})
	})
	if boolSetting(settings, "dialogs", true) {
		for event, kind := range map[crawler.Event]string{
			crawler.EventAlert:   "alert",
			crawler.EventConfirm: "confirm",
			crawler.EventPrompt:  "prompt",
		} {
			host.On(event, func(args ...any) {
				msg, _ := crawler.Arg[string](args, 0)
				m.add(ConsoleEntry{Kind: kind, Message: msg})
			})
		}
	}
	return m
}

func (m *Console) add(entry ConsoleEntry) {
	if len(m.log.Entries) >= m.maxEntries {
		m.log.Dropped++
		m.log.Truncated = true
		return
	}
	m.log.Entries = append(m.log.Entries, entry)
}

// ID implements crawler.Module.
func (m *Console) ID() string { return ConsoleID }

// Clean implements crawler.Module.
func (m *Console) Clean() {
	m.log = ConsoleLog{Entries: []ConsoleEntry{}}
}

// Result implements crawler.Module.
func (m *Console) Result() any {
	out := m.log
	out.Entries = slices.Clone(m.log.Entries)
	return out
}
