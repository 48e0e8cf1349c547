// Package modules holds the bundled extraction modules and the registry that
// maps configured module ids to factories.
package modules

import (
	"fmt"
	"slices"

	"github.com/spf13/cast"

	"github.com/JakeFAU/headless-page-crawler/internal/crawler"
)

// Module ids.
const (
	ResourcesID  = "resources"
	ConsoleID    = "console"
	DocumentID   = "document"
	NavigationID = "navigation"
)

// Registry maps module ids to factories.
type Registry struct {
	factories map[string]crawler.Factory
}

// NewRegistry returns a registry holding the bundled modules.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]crawler.Factory)}
	r.Register(ResourcesID, NewResources)
	r.Register(ConsoleID, NewConsole)
	r.Register(DocumentID, NewDocument)
	r.Register(NavigationID, NewNavigation)
	return r
}

// Register adds or replaces the factory for id.
func (r *Registry) Register(id string, factory crawler.Factory) {
	r.factories[id] = factory
}

// Available lists registered ids in sorted order.
func (r *Registry) Available() []string {
	ids := make([]string, 0, len(r.factories))
	for id := range r.factories {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Select returns the factories for ids, in the given order.
func (r *Registry) Select(ids []string) ([]crawler.Factory, error) {
	out := make([]crawler.Factory, 0, len(ids))
	for _, id := range ids {
		factory, ok := r.factories[id]
		if !ok {
			return nil, fmt.Errorf("unknown module %q (available: %v)", id, r.Available())
		}
		out = append(out, factory)
	}
	return out, nil
}

func intSetting(settings map[string]any, key string, fallback int) int {
	raw, ok := settings[key]
	if !ok {
		return fallback
	}
	v, err := cast.ToIntE(raw)
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

func boolSetting(settings map[string]any, key string, fallback bool) bool {
	raw, ok := settings[key]
	if !ok {
		return fallback
	}
	v, err := cast.ToBoolE(raw)
	if err != nil {
		return fallback
	}
	return v
}
