package memento

import (
	"maps"
	"slices"
	"sort"
)

// BrooklynMemento is the frozen snapshot of the whole management graph. It is
// never mutated after Build and is safe for any number of concurrent readers.
type BrooklynMemento struct {
	applicationIDs      []string
	topLevelLocationIDs []string
	entities            map[string]*EntityMemento
	locations           map[string]*LocationMemento
	policies            map[string]*PolicyMemento
	enrichers           map[string]*EnricherMemento
	feeds               map[string]*FeedMemento
	catalogItems        map[string]*CatalogItemMemento
}

// ApplicationIDs returns the ids of the application roots in insertion order.
func (b *BrooklynMemento) ApplicationIDs() []string { return slices.Clone(b.applicationIDs) }

// TopLevelLocationIDs returns the ids of the parentless locations.
func (b *BrooklynMemento) TopLevelLocationIDs() []string {
	return slices.Clone(b.topLevelLocationIDs)
}

func (b *BrooklynMemento) Entity(id string) (*EntityMemento, bool) {
	m, ok := b.entities[id]
	return m, ok
}

func (b *BrooklynMemento) Location(id string) (*LocationMemento, bool) {
	m, ok := b.locations[id]
	return m, ok
}

func (b *BrooklynMemento) Policy(id string) (*PolicyMemento, bool) {
	m, ok := b.policies[id]
	return m, ok
}

func (b *BrooklynMemento) Enricher(id string) (*EnricherMemento, bool) {
	m, ok := b.enrichers[id]
	return m, ok
}

func (b *BrooklynMemento) Feed(id string) (*FeedMemento, bool) {
	m, ok := b.feeds[id]
	return m, ok
}

func (b *BrooklynMemento) CatalogItem(id string) (*CatalogItemMemento, bool) {
	m, ok := b.catalogItems[id]
	return m, ok
}

func (b *BrooklynMemento) Entities() map[string]*EntityMemento    { return maps.Clone(b.entities) }
func (b *BrooklynMemento) Locations() map[string]*LocationMemento { return maps.Clone(b.locations) }
func (b *BrooklynMemento) Policies() map[string]*PolicyMemento    { return maps.Clone(b.policies) }
func (b *BrooklynMemento) Enrichers() map[string]*EnricherMemento { return maps.Clone(b.enrichers) }
func (b *BrooklynMemento) Feeds() map[string]*FeedMemento         { return maps.Clone(b.feeds) }
func (b *BrooklynMemento) CatalogItems() map[string]*CatalogItemMemento {
	return maps.Clone(b.catalogItems)
}

func (b *BrooklynMemento) EntityIDs() []string      { return sortedKeys(b.entities) }
func (b *BrooklynMemento) LocationIDs() []string    { return sortedKeys(b.locations) }
func (b *BrooklynMemento) PolicyIDs() []string      { return sortedKeys(b.policies) }
func (b *BrooklynMemento) EnricherIDs() []string    { return sortedKeys(b.enrichers) }
func (b *BrooklynMemento) FeedIDs() []string        { return sortedKeys(b.feeds) }
func (b *BrooklynMemento) CatalogItemIDs() []string { return sortedKeys(b.catalogItems) }

// IsEmpty reports whether the snapshot holds no mementos at all.
func (b *BrooklynMemento) IsEmpty() bool {
	return len(b.entities) == 0 && len(b.locations) == 0 && len(b.policies) == 0 &&
		len(b.enrichers) == 0 && len(b.feeds) == 0 && len(b.catalogItems) == 0
}

// Mementos returns every memento of the given type, ordered by id.
func (b *BrooklynMemento) Mementos(t ObjectType) []Memento {
	var out []Memento
	switch t {
	case TypeEntity:
		for _, id := range sortedKeys(b.entities) {
			out = append(out, b.entities[id])
		}
	case TypeLocation:
		for _, id := range sortedKeys(b.locations) {
			out = append(out, b.locations[id])
		}
	case TypePolicy:
		for _, id := range sortedKeys(b.policies) {
			out = append(out, b.policies[id])
		}
	case TypeEnricher:
		for _, id := range sortedKeys(b.enrichers) {
			out = append(out, b.enrichers[id])
		}
	case TypeFeed:
		for _, id := range sortedKeys(b.feeds) {
			out = append(out, b.feeds[id])
		}
	case TypeCatalogItem:
		for _, id := range sortedKeys(b.catalogItems) {
			out = append(out, b.catalogItems[id])
		}
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Builder assembles a BrooklynMemento. Build surrenders the builder's maps to
// the aggregate without copying; any later use of the builder panics.
type Builder struct {
	state builderState
	agg   *BrooklynMemento
}

// NewBuilder returns an empty aggregate builder.
func NewBuilder() *Builder {
	return &Builder{agg: &BrooklynMemento{
		entities:     map[string]*EntityMemento{},
		locations:    map[string]*LocationMemento{},
		policies:     map[string]*PolicyMemento{},
		enrichers:    map[string]*EnricherMemento{},
		feeds:        map[string]*FeedMemento{},
		catalogItems: map[string]*CatalogItemMemento{},
	}}
}

func (b *Builder) ApplicationID(id string) *Builder {
	b.state.check()
	b.agg.applicationIDs = appendUnique(b.agg.applicationIDs, id)
	return b
}

func (b *Builder) ApplicationIDs(ids ...string) *Builder {
	for _, id := range ids {
		b.ApplicationID(id)
	}
	return b
}

func (b *Builder) TopLevelLocationID(id string) *Builder {
	b.state.check()
	b.agg.topLevelLocationIDs = appendUnique(b.agg.topLevelLocationIDs, id)
	return b
}

func (b *Builder) TopLevelLocationIDs(ids ...string) *Builder {
	for _, id := range ids {
		b.TopLevelLocationID(id)
	}
	return b
}

func (b *Builder) Entity(m *EntityMemento) *Builder {
	b.state.check()
	b.agg.entities[m.ID()] = m
	return b
}

func (b *Builder) Entities(ms ...*EntityMemento) *Builder {
	for _, m := range ms {
		b.Entity(m)
	}
	return b
}

func (b *Builder) Location(m *LocationMemento) *Builder {
	b.state.check()
	b.agg.locations[m.ID()] = m
	return b
}

func (b *Builder) Locations(ms ...*LocationMemento) *Builder {
	for _, m := range ms {
		b.Location(m)
	}
	return b
}

func (b *Builder) Policy(m *PolicyMemento) *Builder {
	b.state.check()
	b.agg.policies[m.ID()] = m
	return b
}

func (b *Builder) Policies(ms ...*PolicyMemento) *Builder {
	for _, m := range ms {
		b.Policy(m)
	}
	return b
}

func (b *Builder) Enricher(m *EnricherMemento) *Builder {
	b.state.check()
	b.agg.enrichers[m.ID()] = m
	return b
}

func (b *Builder) Feed(m *FeedMemento) *Builder {
	b.state.check()
	b.agg.feeds[m.ID()] = m
	return b
}

func (b *Builder) CatalogItem(m *CatalogItemMemento) *Builder {
	b.state.check()
	b.agg.catalogItems[m.ID()] = m
	return b
}

// Add routes m to the map matching its object type.
func (b *Builder) Add(m Memento) *Builder {
	switch v := m.(type) {
	case *EntityMemento:
		return b.Entity(v)
	case *LocationMemento:
		return b.Location(v)
	case *CatalogItemMemento:
		return b.CatalogItem(v)
	case *AdjunctMemento:
		switch v.ObjectType() {
		case TypeEnricher:
			return b.Enricher(v)
		case TypeFeed:
			return b.Feed(v)
		}
		return b.Policy(v)
	}
	return b
}

// HasLocation reports whether a location with id has been added.
func (b *Builder) HasLocation(id string) bool {
	b.state.check()
	_, ok := b.agg.locations[id]
	return ok
}

// Build returns the aggregate and retires the builder.
func (b *Builder) Build() *BrooklynMemento {
	b.state.finish()
	agg := b.agg
	b.agg = nil
	return agg
}
