// Package livegraph is an in-memory, concurrently mutable management graph.
// It implements the read-only view consumed by snapshot generation and
// reports every change to registered listeners, which is how the periodic
// persister learns what to write.
//
// Each object guards its own fields; the graph lock only protects the
// registries. Listeners are called after locks are released.
package livegraph

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"brooklyn/pkg/graph"
	"brooklyn/pkg/memento"
)

// ErrDuplicateID is returned when an id is already managed.
var ErrDuplicateID = errors.New("livegraph: id already managed")

// ErrNotManaged is returned when an operation names an unmanaged object.
var ErrNotManaged = errors.New("livegraph: object not managed")

// Listener observes changes to the graph.
type Listener interface {
	Managed(t memento.ObjectType, obj graph.Object)
	Changed(t memento.ObjectType, obj graph.Object)
	Unmanaged(t memento.ObjectType, obj graph.Object)
}

type event struct {
	kind int
	t    memento.ObjectType
	obj  graph.Object
}

const (
	eventManaged = iota
	eventChanged
	eventUnmanaged
)

// Graph is the registry of managed objects.
type Graph struct {
	mu        sync.RWMutex
	entities  map[string]*Entity
	apps      []string
	locations map[string]*Location
	catalog   map[string]*CatalogItem

	lmu       sync.RWMutex
	listeners []Listener
}

var _ graph.View = (*Graph)(nil)

// New returns an empty graph.
func New() *Graph {
	return &Graph{
		entities:  make(map[string]*Entity),
		locations: make(map[string]*Location),
		catalog:   make(map[string]*CatalogItem),
	}
}

// NewID returns a fresh object id.
func NewID() string { return uuid.NewString() }

// AddListener registers l for every subsequent change.
func (g *Graph) AddListener(l Listener) {
	g.lmu.Lock()
	g.listeners = append(g.listeners, l)
	g.lmu.Unlock()
}

// RemoveListener unregisters l.
func (g *Graph) RemoveListener(l Listener) {
	g.lmu.Lock()
	defer g.lmu.Unlock()
	for i, cur := range g.listeners {
		if cur == l {
			g.listeners = append(g.listeners[:i], g.listeners[i+1:]...)
			return
		}
	}
}

func (g *Graph) emit(events ...event) {
	if g == nil || len(events) == 0 {
		return
	}
	g.lmu.RLock()
	listeners := append([]Listener(nil), g.listeners...)
	g.lmu.RUnlock()
	for _, ev := range events {
		for _, l := range listeners {
			switch ev.kind {
			case eventManaged:
				l.Managed(ev.t, ev.obj)
			case eventChanged:
				l.Changed(ev.t, ev.obj)
			case eventUnmanaged:
				l.Unmanaged(ev.t, ev.obj)
			}
		}
	}
}

// EntitySpec describes an entity to create.
type EntitySpec struct {
	// ID is generated when empty.
	ID            string
	Type          string
	DisplayName   string
	CatalogItemID string
	Tags          []string
	Parent        *Entity
	// Application marks a parentless entity as a top-level application.
	Application bool
}

// CreateEntity manages a new entity and attaches it to its parent.
func (g *Graph) CreateEntity(spec EntitySpec) (*Entity, error) {
	if spec.ID == "" {
		spec.ID = NewID()
	}
	e := newEntity(g, spec)
	g.mu.Lock()
	if _, exists := g.entities[spec.ID]; exists {
		g.mu.Unlock()
		return nil, fmt.Errorf("entity %s: %w", spec.ID, ErrDuplicateID)
	}
	if spec.Parent != nil {
		if g.entities[spec.Parent.ID()] != spec.Parent {
			g.mu.Unlock()
			return nil, fmt.Errorf("parent %s: %w", spec.Parent.ID(), ErrNotManaged)
		}
	}
	g.entities[spec.ID] = e
	if spec.Application && spec.Parent == nil {
		g.apps = append(g.apps, spec.ID)
	}
	g.mu.Unlock()

	events := []event{{eventManaged, memento.TypeEntity, e}}
	if spec.Parent != nil {
		spec.Parent.addChild(e)
		events = append(events, event{eventChanged, memento.TypeEntity, spec.Parent})
	}
	g.emit(events...)
	return e, nil
}

// Unmanage removes e and all of its descendants. The parent loses e as a
// child and groups lose every removed entity as a member.
func (g *Graph) Unmanage(e *Entity) error {
	g.mu.Lock()
	if g.entities[e.ID()] != e {
		g.mu.Unlock()
		return fmt.Errorf("entity %s: %w", e.ID(), ErrNotManaged)
	}
	var removed []*Entity
	var walk func(*Entity)
	walk = func(n *Entity) {
		for _, c := range n.childEntities() {
			walk(c)
		}
		delete(g.entities, n.ID())
		removed = append(removed, n)
	}
	walk(e)
	gone := make(map[string]bool, len(removed))
	for _, r := range removed {
		gone[r.ID()] = true
	}
	apps := g.apps[:0]
	for _, id := range g.apps {
		if !gone[id] {
			apps = append(apps, id)
		}
	}
	g.apps = apps
	survivors := make([]*Entity, 0, len(g.entities))
	for _, s := range g.entities {
		survivors = append(survivors, s)
	}
	g.mu.Unlock()

	var events []event
	if p := e.parentEntity(); p != nil && !gone[p.ID()] {
		p.removeChild(e.ID())
		events = append(events, event{eventChanged, memento.TypeEntity, p})
	}
	for _, s := range survivors {
		if s.dropMembers(gone) {
			events = append(events, event{eventChanged, memento.TypeEntity, s})
		}
	}
	for _, r := range removed {
		for _, p := range r.policyList() {
			events = append(events, event{eventUnmanaged, memento.TypePolicy, p})
		}
		for _, en := range r.enricherList() {
			events = append(events, event{eventUnmanaged, memento.TypeEnricher, en})
		}
		for _, f := range r.feedList() {
			events = append(events, event{eventUnmanaged, memento.TypeFeed, f})
		}
		events = append(events, event{eventUnmanaged, memento.TypeEntity, r})
	}
	g.emit(events...)
	return nil
}

// LocationSpec describes a location to create.
type LocationSpec struct {
	ID            string
	Type          string
	DisplayName   string
	CatalogItemID string
	Tags          []string
	Parent        *Location
	Flags         []graph.FlagField
	Config        map[string]any
	// Used lists config keys to treat as already consumed.
	Used        []string
	Description string
}

// CreateLocation manages a new location and attaches it to its parent.
func (g *Graph) CreateLocation(spec LocationSpec) (*Location, error) {
	if spec.ID == "" {
		spec.ID = NewID()
	}
	l := newLocation(g, spec)
	g.mu.Lock()
	if _, exists := g.locations[spec.ID]; exists {
		g.mu.Unlock()
		return nil, fmt.Errorf("location %s: %w", spec.ID, ErrDuplicateID)
	}
	if spec.Parent != nil && g.locations[spec.Parent.ID()] != spec.Parent {
		g.mu.Unlock()
		return nil, fmt.Errorf("parent %s: %w", spec.Parent.ID(), ErrNotManaged)
	}
	g.locations[spec.ID] = l
	g.mu.Unlock()

	events := []event{{eventManaged, memento.TypeLocation, l}}
	if spec.Parent != nil {
		spec.Parent.addChild(l)
		events = append(events, event{eventChanged, memento.TypeLocation, spec.Parent})
	}
	g.emit(events...)
	return l, nil
}

// UnmanageLocation removes l and its descendants.
func (g *Graph) UnmanageLocation(l *Location) error {
	g.mu.Lock()
	if g.locations[l.ID()] != l {
		g.mu.Unlock()
		return fmt.Errorf("location %s: %w", l.ID(), ErrNotManaged)
	}
	var removed []*Location
	var walk func(*Location)
	walk = func(n *Location) {
		for _, c := range n.childLocations() {
			walk(c)
		}
		delete(g.locations, n.ID())
		removed = append(removed, n)
	}
	walk(l)
	g.mu.Unlock()

	var events []event
	if p := l.parentLocation(); p != nil {
		p.removeChild(l.ID())
		events = append(events, event{eventChanged, memento.TypeLocation, p})
	}
	for _, r := range removed {
		events = append(events, event{eventUnmanaged, memento.TypeLocation, r})
	}
	g.emit(events...)
	return nil
}

// AddCatalogItem manages c, replacing any item with the same id.
func (g *Graph) AddCatalogItem(c *CatalogItem) {
	g.mu.Lock()
	_, existed := g.catalog[c.ID()]
	g.catalog[c.ID()] = c
	g.mu.Unlock()
	if existed {
		g.emit(event{eventChanged, memento.TypeCatalogItem, c})
		return
	}
	g.emit(event{eventManaged, memento.TypeCatalogItem, c})
}

// RemoveCatalogItem unmanages the catalog item with id.
func (g *Graph) RemoveCatalogItem(id string) bool {
	g.mu.Lock()
	c, ok := g.catalog[id]
	delete(g.catalog, id)
	g.mu.Unlock()
	if ok {
		g.emit(event{eventUnmanaged, memento.TypeCatalogItem, c})
	}
	return ok
}

// Entity returns the managed entity with id.
func (g *Graph) Entity(id string) (*Entity, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	e, ok := g.entities[id]
	return e, ok
}

// Location returns the managed location with id.
func (g *Graph) Location(id string) (*Location, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	l, ok := g.locations[id]
	return l, ok
}

// CatalogItem returns the managed catalog item with id.
func (g *Graph) CatalogItem(id string) (*CatalogItem, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	c, ok := g.catalog[id]
	return c, ok
}

// Applications returns the top-level applications in creation order.
func (g *Graph) Applications() []graph.Entity {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]graph.Entity, 0, len(g.apps))
	for _, id := range g.apps {
		out = append(out, g.entities[id])
	}
	return out
}

// Entities returns every managed entity, ordered by id.
func (g *Graph) Entities() []graph.Entity {
	g.mu.RLock()
	ids := sortedIDs(g.entities)
	out := make([]graph.Entity, 0, len(ids))
	for _, id := range ids {
		out = append(out, g.entities[id])
	}
	g.mu.RUnlock()
	return out
}

// Locations returns every managed location, ordered by id.
func (g *Graph) Locations() []graph.Location {
	g.mu.RLock()
	defer g.mu.RUnlock()
	ids := sortedIDs(g.locations)
	out := make([]graph.Location, 0, len(ids))
	for _, id := range ids {
		out = append(out, g.locations[id])
	}
	return out
}

// CatalogItems returns every managed catalog item, ordered by id.
func (g *Graph) CatalogItems() []graph.CatalogItem {
	g.mu.RLock()
	defer g.mu.RUnlock()
	ids := sortedIDs(g.catalog)
	out := make([]graph.CatalogItem, 0, len(ids))
	for _, id := range ids {
		out = append(out, g.catalog[id])
	}
	return out
}

func sortedIDs[V any](m map[string]V) []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
