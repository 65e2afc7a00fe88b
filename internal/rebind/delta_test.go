package rebind

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"brooklyn/internal/livegraph"
	"brooklyn/pkg/graph"
	"brooklyn/pkg/memento"
)

func ids(objs []graph.Object) []string {
	out := make([]string, 0, len(objs))
	for _, o := range objs {
		out = append(out, o.ID())
	}
	return out
}

func TestDeltaCollectorKeepsFirstReportOrder(t *testing.T) {
	g := livegraph.New()
	a, _ := g.CreateEntity(livegraph.EntitySpec{ID: "a", Type: "t"})
	b, _ := g.CreateEntity(livegraph.EntitySpec{ID: "b", Type: "t"})

	d := NewDeltaCollector()
	d.Add(memento.TypeEntity, b)
	d.Add(memento.TypeEntity, a)
	d.Add(memento.TypeEntity, b)

	assert.Equal(t, []string{"b", "a"}, ids(d.ChangedObjects(memento.TypeEntity)))
	assert.Equal(t, 2, d.Len())
	assert.False(t, d.IsEmpty())
}

func TestDeltaCollectorRemovalWins(t *testing.T) {
	g := livegraph.New()
	a, _ := g.CreateEntity(livegraph.EntitySpec{ID: "a", Type: "t"})

	d := NewDeltaCollector()
	d.Add(memento.TypeEntity, a)
	d.Remove(memento.TypeEntity, "a")
	d.Add(memento.TypeEntity, a)

	assert.Empty(t, d.ChangedObjects(memento.TypeEntity))
	assert.Equal(t, []string{"a"}, d.RemovedIDs(memento.TypeEntity))
	assert.True(t, d.IsRemoved(memento.TypeEntity, "a"))
}

func TestDeltaCollectorCatalogItemCanReturn(t *testing.T) {
	item := livegraph.NewCatalogItem(livegraph.CatalogItemSpec{ID: "c1", Type: "catalog", SymbolicName: "web"})

	d := NewDeltaCollector()
	d.Remove(memento.TypeCatalogItem, "c1")
	d.Add(memento.TypeCatalogItem, item)

	assert.Equal(t, []string{"c1"}, ids(d.ChangedObjects(memento.TypeCatalogItem)))
	assert.Empty(t, d.RemovedIDs(memento.TypeCatalogItem))
}

func TestDeltaCollectorFollowsGraphEvents(t *testing.T) {
	g := livegraph.New()
	d := NewDeltaCollector()
	g.AddListener(d)

	app, _ := g.CreateEntity(livegraph.EntitySpec{ID: "app", Type: "t", Application: true})
	_, _ = g.CreateEntity(livegraph.EntitySpec{ID: "child", Type: "t", Parent: app})
	assert.ElementsMatch(t, []string{"app", "child"}, ids(d.ChangedObjects(memento.TypeEntity)))

	assert.NoError(t, g.Unmanage(app))
	assert.Empty(t, d.ChangedObjects(memento.TypeEntity))
	assert.ElementsMatch(t, []string{"app", "child"}, d.RemovedIDs(memento.TypeEntity))
}

func TestDeltaCollectorMergeInto(t *testing.T) {
	g := livegraph.New()
	a, _ := g.CreateEntity(livegraph.EntitySpec{ID: "a", Type: "t"})
	b, _ := g.CreateEntity(livegraph.EntitySpec{ID: "b", Type: "t"})
	c, _ := g.CreateEntity(livegraph.EntitySpec{ID: "c", Type: "t"})

	older := NewDeltaCollector()
	older.Add(memento.TypeEntity, a)
	older.Add(memento.TypeEntity, b)
	older.Remove(memento.TypeEntity, "gone")
	older.Remove(memento.TypeEntity, "c")

	newer := NewDeltaCollector()
	newer.Remove(memento.TypeEntity, "b")
	newer.Add(memento.TypeEntity, c)

	older.MergeInto(newer)

	assert.ElementsMatch(t, []string{"c", "a"}, ids(newer.ChangedObjects(memento.TypeEntity)))
	assert.ElementsMatch(t, []string{"b", "gone"}, newer.RemovedIDs(memento.TypeEntity))
}
