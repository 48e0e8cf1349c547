package modules

import (
	"maps"
	"strconv"

	"github.com/JakeFAU/headless-page-crawler/internal/crawler"
)

// ResourceStats summarizes network activity for one crawl.
type ResourceStats struct {
	Requested int            `json:"requested"`
	Received  int            `json:"received"`
	Failed    int            `json:"failed"`
	TimedOut  int            `json:"timed_out"`
	Bytes     int64          `json:"bytes"`
	ByStatus  map[string]int `json:"by_status"`
	ByType    map[string]int `json:"by_type"`
}

// Resources counts requests, responses and failures.
type Resources struct {
	stats ResourceStats
}

// NewResources builds the resources module.
func NewResources(host crawler.Host) crawler.Module {
	m := &Resources{}
	m.Clean()
	host.On(crawler.EventResourceRequested, func(...any) {
		m.stats.Requested++
	})
	host.On(crawler.EventResourceReceived, func(args ...any) {
		resp, ok := crawler.Arg[crawler.Response](args, 0)
		if !ok {
			return
		}
		m.stats.Received++
		m.stats.Bytes += resp.Bytes
		m.stats.ByStatus[statusClass(resp.Status)]++
		if resp.Type != "" {
			m.stats.ByType[resp.Type]++
		}
	})
	host.On(crawler.EventResourceError, func(...any) {
		m.stats.Failed++
	})
	host.On(crawler.EventResourceTimeout, func(...any) {
		m.stats.TimedOut++
	})
	return m
}

// ID implements crawler.Module.
func (m *Resources) ID() string { return ResourcesID }

// Clean implements crawler.Module.
func (m *Resources) Clean() {
	m.stats = ResourceStats{
		ByStatus: make(map[string]int),
		ByType:   make(map[string]int),
	}
}

// Result implements crawler.Module.
func (m *Resources) Result() any {
	out := m.stats
	out.ByStatus = maps.Clone(m.stats.ByStatus)
	out.ByType = maps.Clone(m.stats.ByType)
	return out
}

func statusClass(code int) string {
	if code < 100 || code > 599 {
		return "other"
	}
	return strconv.Itoa(code/100) + "xx"
}
