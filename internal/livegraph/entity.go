package livegraph

import (
	"maps"
	"slices"
	"sync"

	"brooklyn/pkg/graph"
	"brooklyn/pkg/memento"
)

// Entity is a managed entity. Every entity can hold members; an entity with
// none is an ordinary entity.
type Entity struct {
	g *Graph

	id            string
	typeName      string
	catalogItemID string

	mu          sync.RWMutex
	displayName string
	tags        []string
	isApp       bool
	parent      *Entity
	children    []*Entity
	config      map[graph.ConfigKey]any
	rawConfig   map[string]any
	attributes  map[graph.AttributeSensor]any
	locations   []*Location
	members     []*Entity
	policies    []*Policy
	enrichers   []*Enricher
	feeds       []*Feed
}

var _ graph.Group = (*Entity)(nil)

func newEntity(g *Graph, spec EntitySpec) *Entity {
	return &Entity{
		g:             g,
		id:            spec.ID,
		typeName:      spec.Type,
		catalogItemID: spec.CatalogItemID,
		displayName:   spec.DisplayName,
		tags:          slices.Clone(spec.Tags),
		isApp:         spec.Application && spec.Parent == nil,
		parent:        spec.Parent,
		config:        make(map[graph.ConfigKey]any),
		rawConfig:     make(map[string]any),
		attributes:    make(map[graph.AttributeSensor]any),
	}
}

func (e *Entity) ID() string            { return e.id }
func (e *Entity) TypeName() string      { return e.typeName }
func (e *Entity) CatalogItemID() string { return e.catalogItemID }

func (e *Entity) DisplayName() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.displayName
}

func (e *Entity) Tags() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return slices.Clone(e.tags)
}

func (e *Entity) IsApplication() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.isApp
}

func (e *Entity) Parent() graph.Entity {
	if p := e.parentEntity(); p != nil {
		return p
	}
	return nil
}

func (e *Entity) parentEntity() *Entity {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.parent
}

func (e *Entity) Children() []graph.Entity {
	return toEntities(e.childEntities())
}

func (e *Entity) childEntities() []*Entity {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return slices.Clone(e.children)
}

func (e *Entity) LocalConfig() map[graph.ConfigKey]any {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return maps.Clone(e.config)
}

func (e *Entity) LocalConfigBag() map[string]any {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make(map[string]any, len(e.config)+len(e.rawConfig))
	for k, v := range e.rawConfig {
		out[k] = v
	}
	for k, v := range e.config {
		out[k.Name] = v
	}
	return out
}

func (e *Entity) Attributes() map[graph.AttributeSensor]any {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return maps.Clone(e.attributes)
}

func (e *Entity) Locations() []graph.Location {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]graph.Location, 0, len(e.locations))
	for _, l := range e.locations {
		out = append(out, l)
	}
	return out
}

func (e *Entity) Members() []graph.Entity {
	e.mu.RLock()
	members := slices.Clone(e.members)
	e.mu.RUnlock()
	return toEntities(members)
}

func (e *Entity) Policies() []graph.Policy {
	out := []graph.Policy{}
	for _, p := range e.policyList() {
		out = append(out, p)
	}
	return out
}

func (e *Entity) policyList() []*Policy {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return slices.Clone(e.policies)
}

func (e *Entity) Enrichers() []graph.Enricher {
	out := []graph.Enricher{}
	for _, en := range e.enricherList() {
		out = append(out, en)
	}
	return out
}

func (e *Entity) enricherList() []*Enricher {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return slices.Clone(e.enrichers)
}

func (e *Entity) Feeds() []graph.Feed {
	out := []graph.Feed{}
	for _, f := range e.feedList() {
		out = append(out, f)
	}
	return out
}

func (e *Entity) feedList() []*Feed {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return slices.Clone(e.feeds)
}

func toEntities(in []*Entity) []graph.Entity {
	out := make([]graph.Entity, 0, len(in))
	for _, e := range in {
		out = append(out, e)
	}
	return out
}

// mutate runs fn under the write lock and reports the entity as changed.
func (e *Entity) mutate(fn func()) {
	e.mu.Lock()
	fn()
	e.mu.Unlock()
	e.g.emit(event{eventChanged, memento.TypeEntity, e})
}

// SetDisplayName renames the entity.
func (e *Entity) SetDisplayName(name string) {
	e.mutate(func() { e.displayName = name })
}

// SetConfig sets a declared config key. The value may be a graph.Task or a
// reference to another managed entity or location.
func (e *Entity) SetConfig(key graph.ConfigKey, v any) {
	e.mutate(func() {
		e.config[key] = v
		delete(e.rawConfig, key.Name)
	})
}

// SetRawConfig sets a config entry that matches no declared key.
func (e *Entity) SetRawConfig(name string, v any) {
	e.mutate(func() { e.rawConfig[name] = v })
}

// SetAttribute publishes a sensor value.
func (e *Entity) SetAttribute(sensor graph.AttributeSensor, v any) {
	e.mutate(func() { e.attributes[sensor] = v })
}

// AddLocation deploys the entity into l.
func (e *Entity) AddLocation(l *Location) {
	e.mutate(func() {
		if !slices.Contains(e.locations, l) {
			e.locations = append(e.locations, l)
		}
	})
}

// AddMember adds m to the entity's members.
func (e *Entity) AddMember(m *Entity) {
	e.mutate(func() {
		if !slices.Contains(e.members, m) {
			e.members = append(e.members, m)
		}
	})
}

// RemoveMember removes m from the entity's members.
func (e *Entity) RemoveMember(m *Entity) {
	e.mutate(func() {
		e.members = slices.DeleteFunc(e.members, func(x *Entity) bool { return x == m })
	})
}

// AddPolicy attaches p. The policy is reported as managed.
func (e *Entity) AddPolicy(p *Policy) {
	e.mu.Lock()
	e.policies = append(e.policies, p)
	e.mu.Unlock()
	e.g.emit(event{eventManaged, memento.TypePolicy, p}, event{eventChanged, memento.TypeEntity, e})
}

// RemovePolicy detaches the policy with id.
func (e *Entity) RemovePolicy(id string) bool {
	e.mu.Lock()
	idx := slices.IndexFunc(e.policies, func(p *Policy) bool { return p.ID() == id })
	var p *Policy
	if idx >= 0 {
		p = e.policies[idx]
		e.policies = slices.Delete(e.policies, idx, idx+1)
	}
	e.mu.Unlock()
	if p == nil {
		return false
	}
	e.g.emit(event{eventUnmanaged, memento.TypePolicy, p}, event{eventChanged, memento.TypeEntity, e})
	return true
}

// AddEnricher attaches en. The enricher is reported as managed.
func (e *Entity) AddEnricher(en *Enricher) {
	e.mu.Lock()
	e.enrichers = append(e.enrichers, en)
	e.mu.Unlock()
	e.g.emit(event{eventManaged, memento.TypeEnricher, en}, event{eventChanged, memento.TypeEntity, e})
}

// AddFeed attaches f. The feed is reported as managed.
func (e *Entity) AddFeed(f *Feed) {
	e.mu.Lock()
	e.feeds = append(e.feeds, f)
	e.mu.Unlock()
	e.g.emit(event{eventManaged, memento.TypeFeed, f}, event{eventChanged, memento.TypeEntity, e})
}

func (e *Entity) addChild(c *Entity) {
	e.mu.Lock()
	if !slices.Contains(e.children, c) {
		e.children = append(e.children, c)
	}
	e.mu.Unlock()
}

func (e *Entity) removeChild(id string) {
	e.mu.Lock()
	e.children = slices.DeleteFunc(e.children, func(c *Entity) bool { return c.id == id })
	e.mu.Unlock()
}

// dropMembers removes every member whose id is in gone and reports whether
// anything changed.
func (e *Entity) dropMembers(gone map[string]bool) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	before := len(e.members)
	e.members = slices.DeleteFunc(e.members, func(m *Entity) bool { return gone[m.id] })
	return len(e.members) != before
}
