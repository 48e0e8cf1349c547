package modules

import (
	"slices"

	"github.com/JakeFAU/headless-page-crawler/internal/crawler"
)

// NavigationRequest is one main-document navigation.
type NavigationRequest struct {
	URL       string `json:"url"`
	Type      string `json:"type"`
	MainFrame bool   `json:"main_frame"`
}

// NavigationTrail is the navigation module's result.
type NavigationTrail struct {
	URLs     []string            `json:"urls"`
	Requests []NavigationRequest `json:"requests"`
	FinalURL string              `json:"final_url,omitempty"`
	Popups   []string            `json:"popups"`
}

// Navigation follows URL changes so redirects and client-side routing are
// visible in the result.
type Navigation struct {
	trail NavigationTrail
}

// NewNavigation builds the navigation module.
func NewNavigation(host crawler.Host) crawler.Module {
	m := &Navigation{}
	m.Clean()
	host.On(crawler.EventURLChanged, func(args ...any) {
		url, ok := crawler.Arg[string](args, 0)
		if !ok || url == "" {
			return
		}
		if n := len(m.trail.URLs); n > 0 && m.trail.URLs[n-1] == url {
			return
		}
		m.trail.URLs = append(m.trail.URLs, url)
		m.trail.FinalURL = url
	})
	host.On(crawler.EventNavigationRequested, func(args ...any) {
		url, _ := crawler.Arg[string](args, 0)
		kind, _ := crawler.Arg[string](args, 1)
		main, _ := crawler.Arg[bool](args, 3)
		m.trail.Requests = append(m.trail.Requests, NavigationRequest{URL: url, Type: kind, MainFrame: main})
	})
	host.On(crawler.EventPageCreated, func(args ...any) {
		if url, ok := crawler.Arg[string](args, 0); ok {
			m.trail.Popups = append(m.trail.Popups, url)
		}
	})
	return m
}

// ID implements crawler.Module.
func (m *Navigation) ID() string { return NavigationID }

// Clean implements crawler.Module.
func (m *Navigation) Clean() {
	m.trail = NavigationTrail{
		URLs:     []string{},
		Requests: []NavigationRequest{},
		Popups:   []string{},
	}
}

// Result implements crawler.Module.
func (m *Navigation) Result() any {
	out := m.trail
	out.URLs = slices.Clone(m.trail.URLs)
	out.Requests = slices.Clone(m.trail.Requests)
	out.Popups = slices.Clone(m.trail.Popups)
	return out
}
