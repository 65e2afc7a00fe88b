package livegraph

import (
	"maps"
	"slices"
	"sync"

	"brooklyn/pkg/graph"
	"brooklyn/pkg/memento"
)

// Location is a managed deployment target.
type Location struct {
	g *Graph

	id            string
	typeName      string
	catalogItemID string

	mu          sync.RWMutex
	displayName string
	tags        []string
	parent      *Location
	children    []*Location
	flags       []graph.FlagField
	config      map[string]any
	used        map[string]bool
	description string
}

var _ graph.Location = (*Location)(nil)

func newLocation(g *Graph, spec LocationSpec) *Location {
	cfg := maps.Clone(spec.Config)
	if cfg == nil {
		cfg = make(map[string]any)
	}
	used := make(map[string]bool, len(spec.Used))
	for _, k := range spec.Used {
		used[k] = true
	}
	return &Location{
		g:             g,
		id:            spec.ID,
		typeName:      spec.Type,
		catalogItemID: spec.CatalogItemID,
		displayName:   spec.DisplayName,
		tags:          slices.Clone(spec.Tags),
		parent:        spec.Parent,
		flags:         slices.Clone(spec.Flags),
		config:        cfg,
		used:          used,
		description:   spec.Description,
	}
}

func (l *Location) ID() string            { return l.id }
func (l *Location) TypeName() string      { return l.typeName }
func (l *Location) CatalogItemID() string { return l.catalogItemID }

func (l *Location) DisplayName() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.displayName
}

func (l *Location) Tags() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return slices.Clone(l.tags)
}

func (l *Location) Parent() graph.Location {
	if p := l.parentLocation(); p != nil {
		return p
	}
	return nil
}

func (l *Location) parentLocation() *Location {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.parent
}

func (l *Location) Children() []graph.Location {
	children := l.childLocations()
	out := make([]graph.Location, 0, len(children))
	for _, c := range children {
		out = append(out, c)
	}
	return out
}

func (l *Location) childLocations() []*Location {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return slices.Clone(l.children)
}

func (l *Location) Flags() []graph.FlagField {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return slices.Clone(l.flags)
}

func (l *Location) LocalConfig() map[string]any {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return maps.Clone(l.config)
}

// UnusedConfig lists config keys never read through Config, sorted.
func (l *Location) UnusedConfig() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []string
	for k := range l.config {
		if !l.used[k] {
			out = append(out, k)
		}
	}
	slices.Sort(out)
	return out
}

func (l *Location) ConfigDescription() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.description
}

// Config reads a config value and marks it used.
func (l *Location) Config(name string) (any, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	v, ok := l.config[name]
	if ok {
		l.used[name] = true
	}
	return v, ok
}

// SetConfig sets a config value.
func (l *Location) SetConfig(name string, v any) {
	l.mu.Lock()
	l.config[name] = v
	l.mu.Unlock()
	l.g.emit(event{eventChanged, memento.TypeLocation, l})
}

func (l *Location) addChild(c *Location) {
	l.mu.Lock()
	if !slices.Contains(l.children, c) {
		l.children = append(l.children, c)
	}
	l.mu.Unlock()
}

func (l *Location) removeChild(id string) {
	l.mu.Lock()
	l.children = slices.DeleteFunc(l.children, func(c *Location) bool { return c.id == id })
	l.mu.Unlock()
}
