// Package generator turns live management objects into mementos.
//
// Generation reads each object through the accessors of pkg/graph, which hand
// back per-object copies; it never holds a lock across the graph, so a full
// snapshot is only per-node consistent.
package generator

import (
	"errors"
	"fmt"
	"sort"

	"brooklyn/pkg/graph"
	"brooklyn/pkg/memento"
)

// LossRecorder is told about config values that could not be captured
// because they were pending or failed asynchronous computations. The value is
// persisted as nil; this is reported, never raised.
type LossRecorder interface {
	ValueLost(objectID, key string, cause error)
}

// ErrPending is the cause reported for a task that had not finished.
var ErrPending = errors.New("value still pending")

// Generator builds mementos from live objects.
type Generator struct {
	loss             LossRecorder
	persistPolicies  bool
	persistEnrichers bool
	persistFeeds     bool
}

// Option configures a Generator.
type Option func(*Generator)

// WithLossRecorder installs a recorder for partially lost values.
func WithLossRecorder(r LossRecorder) Option {
	return func(g *Generator) { g.loss = r }
}

// WithPolicies makes entity mementos list the ids of their non-anonymous
// policies and makes full snapshots include the policy mementos.
func WithPolicies(enabled bool) Option {
	return func(g *Generator) { g.persistPolicies = enabled }
}

// WithEnrichers is the enricher counterpart of WithPolicies.
func WithEnrichers(enabled bool) Option {
	return func(g *Generator) { g.persistEnrichers = enabled }
}

// WithFeeds is the feed counterpart of WithPolicies.
func WithFeeds(enabled bool) Option {
	return func(g *Generator) { g.persistFeeds = enabled }
}

// New constructs a Generator. Policies, enrichers and feeds are left out
// unless enabled.
func New(opts ...Option) *Generator {
	g := &Generator{}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

var defaultGenerator = New()

// NewEntityMemento generates an entity memento with default options.
func NewEntityMemento(e graph.Entity) *memento.EntityMemento {
	return defaultGenerator.EntityMemento(e)
}

// NewLocationMemento generates a location memento with default options.
func NewLocationMemento(l graph.Location) *memento.LocationMemento {
	return defaultGenerator.LocationMemento(l)
}

// NewBrooklynMemento generates and validates a full snapshot with default options.
func NewBrooklynMemento(view graph.View) (*memento.BrooklynMemento, error) {
	return defaultGenerator.BrooklynMemento(view)
}

// PersistsPolicies reports whether policies are part of generated snapshots.
func (g *Generator) PersistsPolicies() bool { return g.persistPolicies }

// PersistsEnrichers reports whether enrichers are part of generated snapshots.
func (g *Generator) PersistsEnrichers() bool { return g.persistEnrichers }

// PersistsFeeds reports whether feeds are part of generated snapshots.
func (g *Generator) PersistsFeeds() bool { return g.persistFeeds }

func keyDef(k graph.ConfigKey) memento.KeyDef {
	return memento.KeyDef{Name: k.Name, TypeName: k.TypeName, Description: k.Description}
}

func sensorDef(s graph.AttributeSensor) memento.KeyDef {
	return memento.KeyDef{Name: s.Name, TypeName: s.TypeName, Description: s.Description}
}

type refKind int

const (
	refNone refKind = iota
	refEntity
	refLocation
)

// persistable substitutes a finished task by its result, and a pending or
// failed one by nil. Entity and location values are replaced by their ids.
func (g *Generator) persistable(objectID, key string, v any) (any, refKind) {
	if task, ok := v.(graph.Task); ok {
		if !task.Done() {
			g.lost(objectID, key, ErrPending)
			return nil, refNone
		}
		res, err := task.Result()
		if err != nil {
			g.lost(objectID, key, err)
			return nil, refNone
		}
		v = res
	}
	switch ref := v.(type) {
	case graph.Entity:
		return ref.ID(), refEntity
	case graph.Location:
		return ref.ID(), refLocation
	}
	return v, refNone
}

func (g *Generator) lost(objectID, key string, cause error) {
	if g.loss != nil {
		g.loss.ValueLost(objectID, key, cause)
	}
}

// EntityMemento captures an entity's locally set config, its persisted
// sensor values and its relationships by id. Adjunct bodies are not captured.
func (g *Generator) EntityMemento(e graph.Entity) *memento.EntityMemento {
	b := memento.NewEntityBuilder().
		ID(e.ID()).
		Type(e.TypeName()).
		DisplayName(e.DisplayName()).
		CatalogItemID(e.CatalogItemID())
	for _, tag := range e.Tags() {
		b.Tag(tag)
	}

	parent := e.Parent()
	if parent != nil {
		b.Parent(parent.ID())
	}
	b.TopLevelApp(e.IsApplication() && parent == nil)

	local := e.LocalConfig()
	matched := make(map[string]bool, len(local))
	for key, raw := range local {
		matched[key.Name] = true
		v, ref := g.persistable(e.ID(), key.Name, raw)
		b.Config(keyDef(key), v)
		switch ref {
		case refEntity:
			b.EntityReferenceConfig(key.Name)
		case refLocation:
			b.LocationReferenceConfig(key.Name)
		}
	}
	for name, v := range e.LocalConfigBag() {
		if !matched[name] {
			b.ConfigUnmatched(name, v)
		}
	}

	for sensor, raw := range e.Attributes() {
		if !sensor.Persisted() {
			continue
		}
		v, ref := g.persistable(e.ID(), sensor.Name, raw)
		b.Attribute(sensorDef(sensor), v)
		switch ref {
		case refEntity:
			b.EntityReferenceAttribute(sensor.Name)
		case refLocation:
			b.LocationReferenceAttribute(sensor.Name)
		}
	}

	for _, loc := range e.Locations() {
		b.AddLocation(loc.ID())
	}
	for _, child := range e.Children() {
		b.AddChild(child.ID())
	}
	if group, ok := e.(graph.Group); ok {
		for _, member := range group.Members() {
			b.AddMember(member.ID())
		}
	}
	if g.persistPolicies {
		for _, p := range e.Policies() {
			if !p.Anonymous() {
				b.AddPolicy(p.ID())
			}
		}
	}
	if g.persistEnrichers {
		for _, en := range e.Enrichers() {
			if !en.Anonymous() {
				b.AddEnricher(en.ID())
			}
		}
	}
	if g.persistFeeds {
		for _, f := range e.Feeds() {
			if !f.Anonymous() {
				b.AddFeed(f.ID())
			}
		}
	}
	return b.Build()
}

// LocationMemento captures a location's persistable flags merged over its
// local config bag. Flags marked transient or static, and the id flag, are
// excluded from both.
func (g *Generator) LocationMemento(l graph.Location) *memento.LocationMemento {
	b := memento.NewLocationBuilder().
		ID(l.ID()).
		Type(l.TypeName()).
		DisplayName(l.DisplayName()).
		CatalogItemID(l.CatalogItemID()).
		ConfigDescription(l.ConfigDescription())
	for _, tag := range l.Tags() {
		b.Tag(tag)
	}

	flags := l.Flags()
	excluded := map[string]bool{"id": true}
	for _, f := range flags {
		if f.Transient || f.Static {
			excluded[f.Name] = true
		}
	}
	put := func(name string, raw any) {
		v, ref := g.persistable(l.ID(), name, raw)
		b.Config(name, v)
		switch ref {
		case refEntity:
			b.EntityReferenceConfig(name)
		case refLocation:
			b.LocationReferenceConfig(name)
		}
	}
	for name, v := range l.LocalConfig() {
		if !excluded[name] {
			put(name, v)
		}
	}
	for _, f := range flags {
		if !excluded[f.Name] {
			put(f.Name, f.Value)
		}
	}
	for _, name := range l.UnusedConfig() {
		if !excluded[name] {
			b.ConfigUnused(name)
		}
	}

	if parent := l.Parent(); parent != nil {
		b.Parent(parent.ID())
	}
	for _, child := range l.Children() {
		b.AddChild(child.ID())
	}
	return b.Build()
}

func (g *Generator) adjunct(b *memento.AdjunctBuilder, a graph.Adjunct) {
	b.ID(a.ID()).Type(a.TypeName()).DisplayName(a.DisplayName()).CatalogItemID(a.CatalogItemID())
	for _, tag := range a.Tags() {
		b.Tag(tag)
	}
	for key, raw := range a.Config() {
		v, _ := g.persistable(a.ID(), key.Name, raw)
		b.Config(key.Name, v)
	}
	for _, f := range a.Flags() {
		if f.Transient || f.Static || f.Name == "id" || f.Name == "name" {
			continue
		}
		v, _ := g.persistable(a.ID(), f.Name, f.Value)
		b.Config(f.Name, v)
	}
}

// PolicyMemento captures a policy's config and persistable flags. Anonymous
// policies are skipped and reported with ok false.
func (g *Generator) PolicyMemento(p graph.Policy) (m *memento.PolicyMemento, ok bool) {
	if p.Anonymous() {
		return nil, false
	}
	b := memento.NewPolicyBuilder()
	g.adjunct(b, p)
	return b.Build(), true
}

// EnricherMemento is the enricher counterpart of PolicyMemento.
func (g *Generator) EnricherMemento(e graph.Enricher) (m *memento.EnricherMemento, ok bool) {
	if e.Anonymous() {
		return nil, false
	}
	b := memento.NewEnricherBuilder()
	g.adjunct(b, e)
	return b.Build(), true
}

// FeedMemento captures a feed's config. What the feed last read is not part
// of it.
func (g *Generator) FeedMemento(f graph.Feed) (m *memento.FeedMemento, ok bool) {
	if f.Anonymous() {
		return nil, false
	}
	b := memento.NewFeedBuilder()
	g.adjunct(b, f)
	return b.Build(), true
}

// CatalogItemMemento captures a catalog item.
func (g *Generator) CatalogItemMemento(c graph.CatalogItem) *memento.CatalogItemMemento {
	b := memento.NewCatalogItemBuilder().
		ID(c.ID()).
		Type(c.TypeName()).
		DisplayName(c.DisplayName()).
		CatalogItemID(c.CatalogItemID()).
		SymbolicName(c.SymbolicName()).
		Version(c.Version()).
		Description(c.Description()).
		IconURL(c.IconURL()).
		PlanYAML(c.PlanYAML()).
		JavaType(c.JavaType()).
		SpecType(c.SpecType()).
		CatalogItemType(c.CatalogItemType()).
		Deprecated(c.Deprecated())
	for _, tag := range c.Tags() {
		b.Tag(tag)
	}
	for _, lib := range c.Libraries() {
		b.Library(lib)
	}
	return b.Build()
}

// Memento dispatches on the kind of obj. Anonymous adjuncts yield nil.
func (g *Generator) Memento(obj graph.Object) (memento.Memento, error) {
	switch v := obj.(type) {
	case graph.Entity:
		return g.EntityMemento(v), nil
	case graph.Location:
		return g.LocationMemento(v), nil
	case graph.CatalogItem:
		return g.CatalogItemMemento(v), nil
	case graph.Adjunct:
		return nil, fmt.Errorf("adjunct %s: use PolicyMemento, EnricherMemento or FeedMemento", v.ID())
	default:
		return nil, fmt.Errorf("unexpected object type %T", obj)
	}
}

// LocationHierarchy returns the root of l's tree followed by every descendant
// of that root, depth first.
func LocationHierarchy(l graph.Location) []graph.Location {
	root := l
	for p := root.Parent(); p != nil; p = root.Parent() {
		root = p
	}
	var out []graph.Location
	seen := map[string]bool{}
	var walk func(graph.Location)
	walk = func(n graph.Location) {
		if seen[n.ID()] {
			return
		}
		seen[n.ID()] = true
		out = append(out, n)
		for _, c := range n.Children() {
			walk(c)
		}
	}
	walk(root)
	return out
}

// BrooklynMemento walks the whole view: every application id, every entity,
// every location reachable from any entity (with its full hierarchy, once),
// and the catalog. The result is validated before being returned; an
// integrity failure is returned as is and no snapshot is produced.
func (g *Generator) BrooklynMemento(view graph.View) (*memento.BrooklynMemento, error) {
	b := memento.NewBuilder()
	for _, app := range view.Applications() {
		b.ApplicationID(app.ID())
	}
	var topLevel []string
	for _, e := range view.Entities() {
		b.Entity(g.EntityMemento(e))
		for _, loc := range e.Locations() {
			if b.HasLocation(loc.ID()) {
				continue
			}
			for _, l := range LocationHierarchy(loc) {
				if b.HasLocation(l.ID()) {
					continue
				}
				lm := g.LocationMemento(l)
				b.Location(lm)
				if lm.Parent() == "" {
					topLevel = append(topLevel, lm.ID())
				}
			}
		}
		if g.persistPolicies {
			for _, p := range e.Policies() {
				if pm, ok := g.PolicyMemento(p); ok {
					b.Policy(pm)
				}
			}
		}
		if g.persistEnrichers {
			for _, en := range e.Enrichers() {
				if em, ok := g.EnricherMemento(en); ok {
					b.Enricher(em)
				}
			}
		}
		if g.persistFeeds {
			for _, f := range e.Feeds() {
				if fm, ok := g.FeedMemento(f); ok {
					b.Feed(fm)
				}
			}
		}
	}
	sort.Strings(topLevel)
	b.TopLevelLocationIDs(topLevel...)
	for _, c := range view.CatalogItems() {
		b.CatalogItem(g.CatalogItemMemento(c))
	}

	agg := b.Build()
	if err := memento.Validate(agg); err != nil {
		return nil, err
	}
	return agg, nil
}
