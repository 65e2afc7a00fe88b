// Package rebind drives persistence of the live graph and its
// reconstruction: it collects changes, writes them periodically as deltas,
// takes full checkpoints, and rebuilds a live graph from a stored snapshot
// when this node becomes master.
package rebind

import (
	"sync"

	"brooklyn/pkg/graph"
	"brooklyn/pkg/memento"
)

// orderedSet keeps values by id in first-insertion order.
type orderedSet[V any] struct {
	order []string
	items map[string]V
}

func newOrderedSet[V any]() *orderedSet[V] {
	return &orderedSet[V]{items: make(map[string]V)}
}

func (s *orderedSet[V]) put(id string, v V) {
	if _, ok := s.items[id]; !ok {
		s.order = append(s.order, id)
	}
	s.items[id] = v
}

func (s *orderedSet[V]) has(id string) bool {
	_, ok := s.items[id]
	return ok
}

func (s *orderedSet[V]) remove(id string) {
	if _, ok := s.items[id]; !ok {
		return
	}
	delete(s.items, id)
	for i, cur := range s.order {
		if cur == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

func (s *orderedSet[V]) values() []V {
	out := make([]V, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.items[id])
	}
	return out
}

func (s *orderedSet[V]) ids() []string {
	return append([]string(nil), s.order...)
}

func (s *orderedSet[V]) len() int { return len(s.order) }

// DeltaCollector accumulates changes of the live graph between two deltas.
// A removal wins over any pending change of the same object and later
// changes of a removed object are ignored, except for catalog items, which
// may be registered again under the same id.
//
// It implements livegraph.Listener and is safe for concurrent use.
type DeltaCollector struct {
	mu      sync.Mutex
	changed map[memento.ObjectType]*orderedSet[graph.Object]
	removed map[memento.ObjectType]*orderedSet[struct{}]
}

// NewDeltaCollector returns an empty collector.
func NewDeltaCollector() *DeltaCollector {
	d := &DeltaCollector{
		changed: make(map[memento.ObjectType]*orderedSet[graph.Object]),
		removed: make(map[memento.ObjectType]*orderedSet[struct{}]),
	}
	for _, t := range memento.PersistenceOrder {
		d.changed[t] = newOrderedSet[graph.Object]()
		d.removed[t] = newOrderedSet[struct{}]()
	}
	return d
}

// Add records obj as changed.
func (d *DeltaCollector) Add(t memento.ObjectType, obj graph.Object) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.add(t, obj)
}

func (d *DeltaCollector) add(t memento.ObjectType, obj graph.Object) {
	changed, ok := d.changed[t]
	if !ok {
		return
	}
	if d.removed[t].has(obj.ID()) {
		if t != memento.TypeCatalogItem {
			return
		}
		d.removed[t].remove(obj.ID())
	}
	changed.put(obj.ID(), obj)
}

// Remove records the object with id as removed.
func (d *DeltaCollector) Remove(t memento.ObjectType, id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.remove(t, id)
}

func (d *DeltaCollector) remove(t memento.ObjectType, id string) {
	if _, ok := d.changed[t]; !ok {
		return
	}
	d.changed[t].remove(id)
	d.removed[t].put(id, struct{}{})
}

func (d *DeltaCollector) Managed(t memento.ObjectType, obj graph.Object) { d.Add(t, obj) }

func (d *DeltaCollector) Changed(t memento.ObjectType, obj graph.Object) { d.Add(t, obj) }

func (d *DeltaCollector) Unmanaged(t memento.ObjectType, obj graph.Object) { d.Remove(t, obj.ID()) }

// ChangedObjects returns the changed objects of type t in the order they
// were first reported.
func (d *DeltaCollector) ChangedObjects(t memento.ObjectType) []graph.Object {
	d.mu.Lock()
	defer d.mu.Unlock()
	if s, ok := d.changed[t]; ok {
		return s.values()
	}
	return nil
}

// RemovedIDs returns the removed ids of type t in removal order.
func (d *DeltaCollector) RemovedIDs(t memento.ObjectType) []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if s, ok := d.removed[t]; ok {
		return s.ids()
	}
	return nil
}

// IsRemoved reports whether the object with id has been removed.
func (d *DeltaCollector) IsRemoved(t memento.ObjectType, id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.removed[t]
	return ok && s.has(id)
}

// Len counts changed and removed objects.
func (d *DeltaCollector) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, t := range memento.PersistenceOrder {
		n += d.changed[t].len() + d.removed[t].len()
	}
	return n
}

// IsEmpty reports whether nothing has been collected.
func (d *DeltaCollector) IsEmpty() bool { return d.Len() == 0 }

// MergeInto replays the contents of d into next, which holds newer changes.
// Newer removals keep precedence; an object both in d and removed in next
// stays removed.
func (d *DeltaCollector) MergeInto(next *DeltaCollector) {
	d.mu.Lock()
	defer d.mu.Unlock()
	next.mu.Lock()
	defer next.mu.Unlock()
	for _, t := range memento.PersistenceOrder {
		for _, id := range d.removed[t].ids() {
			if !next.changed[t].has(id) {
				next.removed[t].put(id, struct{}{})
			}
		}
		for _, obj := range d.changed[t].values() {
			if next.removed[t].has(obj.ID()) || next.changed[t].has(obj.ID()) {
				continue
			}
			next.changed[t].put(obj.ID(), obj)
		}
	}
}
