package rebind

import (
	"fmt"
	"slices"
	"sort"

	"brooklyn/internal/livegraph"
	"brooklyn/pkg/graph"
	"brooklyn/pkg/memento"
)

// Reconstruction holds the live objects rebuilt from a snapshot, by id.
type Reconstruction struct {
	Entities  map[string]*livegraph.Entity
	Locations map[string]*livegraph.Location
	Policies  map[string]*livegraph.Policy
	Enrichers map[string]*livegraph.Enricher
	Feeds     map[string]*livegraph.Feed
}

type reconstructor struct {
	g        *livegraph.Graph
	agg      *memento.BrooklynMemento
	resolver *memento.KeyResolver
	handler  *ExceptionHandler
	out      *Reconstruction

	locationOrder []string
	entityOrder   []string
}

// Reconstruct instantiates the objects of a validated aggregate into g.
// Locations are created first, parents before children, then catalog items,
// then entities in tree order; once every object exists, config and
// attributes are set and references are re-linked to the reconstructed
// targets. A reference to an object missing from agg goes through handler.
// A node that no root reaches fails with an *memento.IntegrityError before
// anything is created.
func Reconstruct(g *livegraph.Graph, agg *memento.BrooklynMemento, resolver *memento.KeyResolver, handler *ExceptionHandler) (*Reconstruction, error) {
	if resolver == nil {
		resolver = memento.NewKeyResolver(nil)
	}
	if handler == nil {
		handler = NewExceptionHandler(true, nil)
	}
	r := &reconstructor{
		g:        g,
		agg:      agg,
		resolver: resolver,
		handler:  handler,
		out: &Reconstruction{
			Entities:  make(map[string]*livegraph.Entity),
			Locations: make(map[string]*livegraph.Location),
			Policies:  make(map[string]*livegraph.Policy),
			Enrichers: make(map[string]*livegraph.Enricher),
			Feeds:     make(map[string]*livegraph.Feed),
		},
	}
	var err error
	if r.locationOrder, err = ordered(memento.TypeLocation, agg.Locations(), agg.TopLevelLocationIDs()); err != nil {
		return nil, err
	}
	if r.entityOrder, err = ordered(memento.TypeEntity, agg.Entities(), agg.ApplicationIDs()); err != nil {
		return nil, err
	}
	steps := []func() error{
		r.createLocations,
		r.createCatalogItems,
		r.createEntities,
		r.linkLocations,
		r.linkEntities,
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return r.out, err
		}
	}
	return r.out, nil
}

// treeOrder lists ids so that every parent precedes its children and
// siblings keep their recorded order. first lists roots to visit before the
// remaining roots, which follow in id order. A child is only followed from
// the parent it names; ids never reached from a root are returned in
// unreached, sorted.
func treeOrder[T memento.TreeNode](nodes map[string]T, first []string) (order, unreached []string) {
	var roots []string
	seen := make(map[string]bool, len(nodes))
	for _, id := range first {
		if n, ok := nodes[id]; ok && n.Parent() == "" && !seen[id] {
			seen[id] = true
			roots = append(roots, id)
		}
	}
	var rest []string
	for id, n := range nodes {
		if n.Parent() == "" && !seen[id] {
			rest = append(rest, id)
		}
	}
	sort.Strings(rest)
	roots = append(roots, rest...)

	out := make([]string, 0, len(nodes))
	visited := make(map[string]bool, len(nodes))
	queue := roots
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if visited[id] {
			continue
		}
		n, ok := nodes[id]
		if !ok {
			continue
		}
		visited[id] = true
		out = append(out, id)
		for _, c := range n.Children() {
			if child, ok := nodes[c]; ok && child.Parent() == id {
				queue = append(queue, c)
			}
		}
	}
	for id := range nodes {
		if !visited[id] {
			unreached = append(unreached, id)
		}
	}
	sort.Strings(unreached)
	return out, unreached
}

// ordered returns the creation order of nodes, failing with an
// *memento.IntegrityError for the first node outside every tree.
func ordered[T memento.TreeNode](t memento.ObjectType, nodes map[string]T, first []string) ([]string, error) {
	order, unreached := treeOrder(nodes, first)
	if len(unreached) > 0 {
		id := unreached[0]
		return nil, &memento.IntegrityError{Object: t, NodeID: id, Relation: memento.RelationUnreachable, MissingID: nodes[id].Parent()}
	}
	return order, nil
}

func (r *reconstructor) createLocations() error {
	mementos := r.agg.Locations()
	for _, id := range r.locationOrder {
		m := mementos[id]
		cfg := m.LocationConfig()
		unused := m.LocationConfigUnused()
		var used []string
		for k := range cfg {
			if !slices.Contains(unused, k) {
				used = append(used, k)
			}
		}
		spec := livegraph.LocationSpec{
			ID:            m.ID(),
			Type:          m.Type(),
			DisplayName:   m.DisplayName(),
			CatalogItemID: m.CatalogItemID(),
			Tags:          m.Tags(),
			Config:        cfg,
			Used:          used,
			Description:   m.LocationConfigDescription(),
		}
		if p := m.Parent(); p != "" {
			spec.Parent = r.out.Locations[p]
		}
		l, err := r.g.CreateLocation(spec)
		if err != nil {
			if herr := r.handler.OnRebindFailed(memento.TypeLocation, id, err); herr != nil {
				return herr
			}
			continue
		}
		r.out.Locations[id] = l
	}
	return nil
}

func (r *reconstructor) createCatalogItems() error {
	for _, id := range r.agg.CatalogItemIDs() {
		m, _ := r.agg.CatalogItem(id)
		r.g.AddCatalogItem(livegraph.NewCatalogItem(livegraph.CatalogItemSpec{
			ID:              m.ID(),
			Type:            m.Type(),
			DisplayName:     m.DisplayName(),
			CatalogItemID:   m.CatalogItemID(),
			Tags:            m.Tags(),
			SymbolicName:    m.SymbolicName(),
			Version:         m.Version(),
			Description:     m.Description(),
			IconURL:         m.IconURL(),
			PlanYAML:        m.PlanYAML(),
			JavaType:        m.JavaType(),
			SpecType:        m.SpecType(),
			CatalogItemType: m.CatalogItemType(),
			Libraries:       m.Libraries(),
			Deprecated:      m.Deprecated(),
		}))
	}
	return nil
}

func (r *reconstructor) createEntities() error {
	mementos := r.agg.Entities()
	for _, id := range r.entityOrder {
		m := mementos[id]
		spec := livegraph.EntitySpec{
			ID:            m.ID(),
			Type:          m.Type(),
			DisplayName:   m.DisplayName(),
			CatalogItemID: m.CatalogItemID(),
			Tags:          m.Tags(),
			Application:   m.IsTopLevelApp(),
		}
		if p := m.Parent(); p != "" {
			spec.Parent = r.out.Entities[p]
		}
		e, err := r.g.CreateEntity(spec)
		if err != nil {
			if herr := r.handler.OnRebindFailed(memento.TypeEntity, id, err); herr != nil {
				return herr
			}
			continue
		}
		r.out.Entities[id] = e
	}
	return nil
}

// reference resolves a stored reference value to its reconstructed target.
// A nil value stays nil.
func (r *reconstructor) reference(owner memento.ObjectType, ownerID, key string, target memento.ObjectType, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	id, _ := v.(string)
	switch target {
	case memento.TypeEntity:
		if e, ok := r.out.Entities[id]; ok {
			return e, nil
		}
	case memento.TypeLocation:
		if l, ok := r.out.Locations[id]; ok {
			return l, nil
		}
	}
	err := r.handler.OnDanglingReference(&memento.UnresolvedReferenceError{
		Object:   owner,
		NodeID:   ownerID,
		Key:      key,
		Target:   target,
		TargetID: fmt.Sprint(v),
	})
	return nil, err
}

func (r *reconstructor) linkLocations() error {
	for id, l := range r.out.Locations {
		m, _ := r.agg.Location(id)
		for name, v := range m.LocationConfig() {
			var target memento.ObjectType
			switch {
			case m.IsEntityReferenceConfig(name):
				target = memento.TypeEntity
			case m.IsLocationReferenceConfig(name):
				target = memento.TypeLocation
			default:
				continue
			}
			ref, err := r.reference(memento.TypeLocation, id, name, target, v)
			if err != nil {
				return err
			}
			l.SetConfig(name, ref)
		}
	}
	return nil
}

func configKey(k memento.KeyDef) graph.ConfigKey {
	return graph.ConfigKey{Name: k.Name, TypeName: k.TypeName, Description: k.Description}
}

func attributeSensor(k memento.KeyDef) graph.AttributeSensor {
	return graph.AttributeSensor{Name: k.Name, TypeName: k.TypeName, Description: k.Description, Persistence: graph.PersistRequired}
}

func (r *reconstructor) linkEntities() error {
	for _, id := range r.agg.EntityIDs() {
		e, ok := r.out.Entities[id]
		if !ok {
			continue
		}
		m, _ := r.agg.Entity(id)
		resolved := r.resolver.Resolve(m)

		for key, v := range resolved.Config {
			value := v
			var err error
			switch {
			case m.IsEntityReferenceConfig(key.Name):
				value, err = r.reference(memento.TypeEntity, id, key.Name, memento.TypeEntity, v)
			case m.IsLocationReferenceConfig(key.Name):
				value, err = r.reference(memento.TypeEntity, id, key.Name, memento.TypeLocation, v)
			}
			if err != nil {
				return err
			}
			e.SetConfig(configKey(key), value)
		}
		for name, v := range m.ConfigUnmatched() {
			e.SetRawConfig(name, v)
		}
		for key, v := range resolved.Attributes {
			value := v
			var err error
			switch {
			case m.IsEntityReferenceAttribute(key.Name):
				value, err = r.reference(memento.TypeEntity, id, key.Name, memento.TypeEntity, v)
			case m.IsLocationReferenceAttribute(key.Name):
				value, err = r.reference(memento.TypeEntity, id, key.Name, memento.TypeLocation, v)
			}
			if err != nil {
				return err
			}
			e.SetAttribute(attributeSensor(key), value)
		}

		for _, locID := range m.Locations() {
			l, ok := r.out.Locations[locID]
			if !ok {
				if err := r.handler.OnDanglingReference(&memento.UnresolvedReferenceError{
					Object: memento.TypeEntity, NodeID: id, Key: "locations", Target: memento.TypeLocation, TargetID: locID,
				}); err != nil {
					return err
				}
				continue
			}
			e.AddLocation(l)
		}
		for _, memberID := range m.Members() {
			member, ok := r.out.Entities[memberID]
			if !ok {
				if err := r.handler.OnDanglingReference(&memento.UnresolvedReferenceError{
					Object: memento.TypeEntity, NodeID: id, Key: "members", Target: memento.TypeEntity, TargetID: memberID,
				}); err != nil {
					return err
				}
				continue
			}
			e.AddMember(member)
		}
		if err := r.attachAdjuncts(e, m); err != nil {
			return err
		}
	}
	return nil
}

func adjunctSpec(m *memento.AdjunctMemento) livegraph.AdjunctSpec {
	cfg := make(map[graph.ConfigKey]any)
	for name, v := range m.Config() {
		cfg[graph.ConfigKey{Name: name}] = v
	}
	return livegraph.AdjunctSpec{
		ID:            m.ID(),
		Type:          m.Type(),
		DisplayName:   m.DisplayName(),
		CatalogItemID: m.CatalogItemID(),
		Tags:          m.Tags(),
		Config:        cfg,
	}
}

func (r *reconstructor) attachAdjuncts(e *livegraph.Entity, m *memento.EntityMemento) error {
	for _, pid := range m.Policies() {
		pm, ok := r.agg.Policy(pid)
		if !ok {
			if err := r.handler.OnDanglingReference(&memento.UnresolvedReferenceError{
				Object: memento.TypeEntity, NodeID: m.ID(), Key: "policies", Target: memento.TypePolicy, TargetID: pid,
			}); err != nil {
				return err
			}
			continue
		}
		p := livegraph.NewPolicy(adjunctSpec(pm))
		e.AddPolicy(p)
		r.out.Policies[pid] = p
	}
	for _, eid := range m.Enrichers() {
		em, ok := r.agg.Enricher(eid)
		if !ok {
			if err := r.handler.OnDanglingReference(&memento.UnresolvedReferenceError{
				Object: memento.TypeEntity, NodeID: m.ID(), Key: "enrichers", Target: memento.TypeEnricher, TargetID: eid,
			}); err != nil {
				return err
			}
			continue
		}
		en := livegraph.NewEnricher(adjunctSpec(em))
		e.AddEnricher(en)
		r.out.Enrichers[eid] = en
	}
	for _, fid := range m.Feeds() {
		fm, ok := r.agg.Feed(fid)
		if !ok {
			if err := r.handler.OnDanglingReference(&memento.UnresolvedReferenceError{
				Object: memento.TypeEntity, NodeID: m.ID(), Key: "feeds", Target: memento.TypeFeed, TargetID: fid,
			}); err != nil {
				return err
			}
			continue
		}
		f := livegraph.NewFeed(adjunctSpec(fm))
		e.AddFeed(f)
		r.out.Feeds[fid] = f
	}
	return nil
}
