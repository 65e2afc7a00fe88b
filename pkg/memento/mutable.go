package memento

import (
	"maps"
	"slices"
)

// MutableBrooklynMemento is the working snapshot kept current as the live
// graph changes, without re-walking it. Mementos held here are never mutated
// in place; a parent needing a child list repair is rebuilt and replaced.
//
// It performs no locking. All Update and Remove calls against one instance
// must be sequenced by the caller.
type MutableBrooklynMemento struct {
	applicationIDs      []string
	topLevelLocationIDs []string
	entities            map[string]*EntityMemento
	locations           map[string]*LocationMemento
	policies            map[string]*PolicyMemento
	enrichers           map[string]*EnricherMemento
	feeds               map[string]*FeedMemento
	catalogItems        map[string]*CatalogItemMemento
}

// NewMutableBrooklynMemento returns an empty working snapshot.
func NewMutableBrooklynMemento() *MutableBrooklynMemento {
	m := &MutableBrooklynMemento{}
	m.clear()
	return m
}

func (m *MutableBrooklynMemento) clear() {
	m.applicationIDs = nil
	m.topLevelLocationIDs = nil
	m.entities = map[string]*EntityMemento{}
	m.locations = map[string]*LocationMemento{}
	m.policies = map[string]*PolicyMemento{}
	m.enrichers = map[string]*EnricherMemento{}
	m.feeds = map[string]*FeedMemento{}
	m.catalogItems = map[string]*CatalogItemMemento{}
}

// Reset replaces the whole content with that of agg. A nil agg empties the
// snapshot.
func (m *MutableBrooklynMemento) Reset(agg *BrooklynMemento) {
	m.clear()
	if agg == nil {
		return
	}
	m.applicationIDs = slices.Clone(agg.applicationIDs)
	m.topLevelLocationIDs = slices.Clone(agg.topLevelLocationIDs)
	maps.Copy(m.entities, agg.entities)
	maps.Copy(m.locations, agg.locations)
	maps.Copy(m.policies, agg.policies)
	maps.Copy(m.enrichers, agg.enrichers)
	maps.Copy(m.feeds, agg.feeds)
	maps.Copy(m.catalogItems, agg.catalogItems)
}

func (m *MutableBrooklynMemento) ApplicationIDs() []string { return slices.Clone(m.applicationIDs) }
func (m *MutableBrooklynMemento) TopLevelLocationIDs() []string {
	return slices.Clone(m.topLevelLocationIDs)
}

func (m *MutableBrooklynMemento) Entity(id string) (*EntityMemento, bool) {
	e, ok := m.entities[id]
	return e, ok
}

func (m *MutableBrooklynMemento) Location(id string) (*LocationMemento, bool) {
	l, ok := m.locations[id]
	return l, ok
}

func (m *MutableBrooklynMemento) Policy(id string) (*PolicyMemento, bool) {
	p, ok := m.policies[id]
	return p, ok
}

func (m *MutableBrooklynMemento) Enricher(id string) (*EnricherMemento, bool) {
	e, ok := m.enrichers[id]
	return e, ok
}

func (m *MutableBrooklynMemento) Feed(id string) (*FeedMemento, bool) {
	f, ok := m.feeds[id]
	return f, ok
}

func (m *MutableBrooklynMemento) CatalogItem(id string) (*CatalogItemMemento, bool) {
	c, ok := m.catalogItems[id]
	return c, ok
}

func (m *MutableBrooklynMemento) EntityIDs() []string   { return sortedKeys(m.entities) }
func (m *MutableBrooklynMemento) LocationIDs() []string { return sortedKeys(m.locations) }

// UpdateEntityMementos upserts each memento by id, tracks application roots
// from the explicit top-level flag, and repairs the child list of any parent
// already present. A parent not yet present is left for a later update;
// integrity is rechecked by Validate before a snapshot is persisted.
func (m *MutableBrooklynMemento) UpdateEntityMementos(batch ...*EntityMemento) {
	for _, e := range batch {
		m.entities[e.ID()] = e
		if e.IsTopLevelApp() {
			m.applicationIDs = appendUnique(m.applicationIDs, e.ID())
		} else {
			m.applicationIDs = removeAll(m.applicationIDs, e.ID())
		}
	}
	for _, e := range batch {
		m.adoptEntityOrphans(e.ID())
		parentID := e.Parent()
		if parentID == "" {
			continue
		}
		parent, ok := m.entities[parentID]
		if !ok || parent.HasChild(e.ID()) {
			continue
		}
		m.entities[parentID] = EntityBuilderFrom(parent).AddChild(e.ID()).Build()
	}
}

// adoptEntityOrphans adds to id's child list any present entity that names
// id as parent but is not yet listed, covering children updated before their
// parent.
func (m *MutableBrooklynMemento) adoptEntityOrphans(id string) {
	parent := m.entities[id]
	var missing []string
	for _, childID := range sortedKeys(m.entities) {
		if child := m.entities[childID]; child.Parent() == id && !parent.HasChild(childID) {
			missing = append(missing, childID)
		}
	}
	if len(missing) == 0 {
		return
	}
	b := EntityBuilderFrom(parent)
	for _, childID := range missing {
		b.AddChild(childID)
	}
	m.entities[id] = b.Build()
}

// UpdateLocationMementos is the location-tree counterpart of
// UpdateEntityMementos; parentless locations are tracked as top level.
func (m *MutableBrooklynMemento) UpdateLocationMementos(batch ...*LocationMemento) {
	for _, l := range batch {
		m.locations[l.ID()] = l
		if l.Parent() == "" {
			m.topLevelLocationIDs = appendUnique(m.topLevelLocationIDs, l.ID())
		} else {
			m.topLevelLocationIDs = removeAll(m.topLevelLocationIDs, l.ID())
		}
	}
	for _, l := range batch {
		m.adoptLocationOrphans(l.ID())
		parentID := l.Parent()
		if parentID == "" {
			continue
		}
		parent, ok := m.locations[parentID]
		if !ok || parent.HasChild(l.ID()) {
			continue
		}
		m.locations[parentID] = LocationBuilderFrom(parent).AddChild(l.ID()).Build()
	}
}

func (m *MutableBrooklynMemento) adoptLocationOrphans(id string) {
	parent := m.locations[id]
	var missing []string
	for _, childID := range sortedKeys(m.locations) {
		if child := m.locations[childID]; child.Parent() == id && !parent.HasChild(childID) {
			missing = append(missing, childID)
		}
	}
	if len(missing) == 0 {
		return
	}
	b := LocationBuilderFrom(parent)
	for _, childID := range missing {
		b.AddChild(childID)
	}
	m.locations[id] = b.Build()
}

func (m *MutableBrooklynMemento) UpdatePolicyMementos(batch ...*PolicyMemento) {
	for _, p := range batch {
		m.policies[p.ID()] = p
	}
}

func (m *MutableBrooklynMemento) UpdateEnricherMementos(batch ...*EnricherMemento) {
	for _, e := range batch {
		m.enrichers[e.ID()] = e
	}
}

func (m *MutableBrooklynMemento) UpdateFeedMementos(batch ...*FeedMemento) {
	for _, f := range batch {
		m.feeds[f.ID()] = f
	}
}

func (m *MutableBrooklynMemento) UpdateCatalogItemMementos(batch ...*CatalogItemMemento) {
	for _, c := range batch {
		m.catalogItems[c.ID()] = c
	}
}

// RemoveEntities removes every requested entity together with all of its
// descendants, then drops each requested entity from its surviving parent's
// child list. It returns every removed id. Unknown ids are ignored.
func (m *MutableBrooklynMemento) RemoveEntities(ids ...string) []string {
	parents := make(map[string]string, len(ids))
	for _, id := range ids {
		if e, ok := m.entities[id]; ok {
			parents[id] = e.Parent()
		}
	}
	removed := removeSubtrees(m.entities, ids)
	for _, id := range removed {
		m.applicationIDs = removeAll(m.applicationIDs, id)
	}
	for _, id := range ids {
		parentID, ok := parents[id]
		if !ok || parentID == "" {
			continue
		}
		if parent, ok := m.entities[parentID]; ok {
			m.entities[parentID] = EntityBuilderFrom(parent).RemoveChild(id).Build()
		}
	}
	return removed
}

// RemoveLocations is the location-tree counterpart of RemoveEntities.
func (m *MutableBrooklynMemento) RemoveLocations(ids ...string) []string {
	parents := make(map[string]string, len(ids))
	for _, id := range ids {
		if l, ok := m.locations[id]; ok {
			parents[id] = l.Parent()
		}
	}
	removed := removeSubtrees(m.locations, ids)
	for _, id := range removed {
		m.topLevelLocationIDs = removeAll(m.topLevelLocationIDs, id)
	}
	for _, id := range ids {
		parentID, ok := parents[id]
		if !ok || parentID == "" {
			continue
		}
		if parent, ok := m.locations[parentID]; ok {
			m.locations[parentID] = LocationBuilderFrom(parent).RemoveChild(id).Build()
		}
	}
	return removed
}

func (m *MutableBrooklynMemento) RemovePolicies(ids ...string) {
	for _, id := range ids {
		delete(m.policies, id)
	}
}

func (m *MutableBrooklynMemento) RemoveEnrichers(ids ...string) {
	for _, id := range ids {
		delete(m.enrichers, id)
	}
}

func (m *MutableBrooklynMemento) RemoveFeeds(ids ...string) {
	for _, id := range ids {
		delete(m.feeds, id)
	}
}

func (m *MutableBrooklynMemento) RemoveCatalogItems(ids ...string) {
	for _, id := range ids {
		delete(m.catalogItems, id)
	}
}

// removeSubtrees deletes each root and, breadth first, every node reachable
// through child lists or parent pointers. It returns the removed ids in
// visiting order.
func removeSubtrees[T TreeNode](nodes map[string]T, roots []string) []string {
	byParent := make(map[string][]string)
	for _, id := range sortedKeys(nodes) {
		if p := nodes[id].Parent(); p != "" {
			byParent[p] = append(byParent[p], id)
		}
	}
	var removed []string
	seen := make(map[string]bool)
	for _, root := range roots {
		if _, ok := nodes[root]; !ok || seen[root] {
			continue
		}
		queue := []string{root}
		seen[root] = true
		for len(queue) > 0 {
			id := queue[0]
			queue = queue[1:]
			node, ok := nodes[id]
			if !ok {
				continue
			}
			delete(nodes, id)
			removed = append(removed, id)
			next := append(node.Children(), byParent[id]...)
			for _, child := range next {
				if child == "" || seen[child] {
					continue
				}
				seen[child] = true
				queue = append(queue, child)
			}
		}
	}
	return removed
}

// Snapshot freezes the current content into a new BrooklynMemento. The
// mementos are shared, the maps are not.
func (m *MutableBrooklynMemento) Snapshot() *BrooklynMemento {
	b := NewBuilder().
		ApplicationIDs(m.applicationIDs...).
		TopLevelLocationIDs(m.topLevelLocationIDs...)
	for _, e := range m.entities {
		b.Entity(e)
	}
	for _, l := range m.locations {
		b.Location(l)
	}
	for _, p := range m.policies {
		b.Policy(p)
	}
	for _, e := range m.enrichers {
		b.Enricher(e)
	}
	for _, f := range m.feeds {
		b.Feed(f)
	}
	for _, c := range m.catalogItems {
		b.CatalogItem(c)
	}
	return b.Build()
}
