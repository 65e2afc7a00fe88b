package rebind

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"brooklyn/internal/codec"
	"brooklyn/internal/generator"
	"brooklyn/internal/livegraph"
	"brooklyn/pkg/memento"
)

func encodeAll(t *testing.T, agg *memento.BrooklynMemento) map[string]string {
	t.Helper()
	out := make(map[string]string)
	for _, ot := range memento.PersistenceOrder {
		for _, m := range agg.Mementos(ot) {
			data, err := codec.JSON{}.Encode(m)
			require.NoError(t, err)
			out[string(ot)+"/"+m.ID()] = string(data)
		}
	}
	return out
}

func TestReconstructRoundTrip(t *testing.T) {
	gen := generator.New(generator.WithPolicies(true), generator.WithEnrichers(true), generator.WithFeeds(true))
	before, err := gen.BrooklynMemento(buildGraph(t))
	require.NoError(t, err)

	g := livegraph.New()
	out, err := Reconstruct(g, before, nil, nil)
	require.NoError(t, err)
	assert.Len(t, out.Entities, 3)
	assert.Len(t, out.Locations, 3)
	assert.Len(t, out.Policies, 1)
	assert.Len(t, out.Enrichers, 1)
	require.Len(t, out.Feeds, 1)
	assert.Equal(t, "acme.HttpFeed", out.Feeds["feed1"].TypeName())

	after, err := gen.BrooklynMemento(g)
	require.NoError(t, err)
	assert.Equal(t, encodeAll(t, before), encodeAll(t, after))
	assert.Equal(t, before.ApplicationIDs(), after.ApplicationIDs())
}

func TestReconstructRelinksReferences(t *testing.T) {
	gen := generator.New()
	agg, err := gen.BrooklynMemento(buildGraph(t))
	require.NoError(t, err)

	g := livegraph.New()
	_, err = Reconstruct(g, agg, nil, nil)
	require.NoError(t, err)

	web, ok := g.Entity("web")
	require.True(t, ok)
	db, _ := g.Entity("db")
	cloud, _ := g.Location("cloud1")
	cfg := web.LocalConfig()
	assert.Same(t, db, cfg[dbKey])
	assert.Same(t, cloud, cfg[zoneKey])
	assert.EqualValues(t, 8080, cfg[portKey])
	assert.Equal(t, "10.0.0.1", web.Attributes()[hostAttr])

	app, _ := g.Entity("app1")
	require.Len(t, app.Members(), 1)
	assert.Equal(t, "web", app.Members()[0].ID())
	assert.Equal(t, []string{"web", "db"}, []string{app.Children()[0].ID(), app.Children()[1].ID()})
	require.Len(t, web.Locations(), 1)
	assert.Equal(t, "cloud1", web.Locations()[0].Parent().ID())
}

func TestReconstructUsesRegistryKeys(t *testing.T) {
	e := memento.NewEntityBuilder().ID("app").Type("acme.App").TopLevelApp(true).
		RawConfig("timeout", "30s").Build()
	agg := memento.NewBuilder().ApplicationID("app").Entity(e).Build()
	reg := NewRegistry()
	reg.Register(memento.TypeEntity, "acme.App", memento.KeyDef{Name: "timeout", TypeName: "duration"})

	g := livegraph.New()
	_, err := Reconstruct(g, agg, memento.NewKeyResolver(reg.LookupKey), nil)
	require.NoError(t, err)

	app, _ := g.Entity("app")
	var typeName string
	for k := range app.LocalConfig() {
		if k.Name == "timeout" {
			typeName = k.TypeName
		}
	}
	assert.Equal(t, "duration", typeName)
}

func danglingReferenceAggregate() *memento.BrooklynMemento {
	e := memento.NewEntityBuilder().ID("app").Type("acme.App").TopLevelApp(true).
		Config(memento.KeyDef{Name: "db", TypeName: "entity"}, "missing").
		EntityReferenceConfig("db").
		Build()
	return memento.NewBuilder().ApplicationID("app").Entity(e).Build()
}

func TestReconstructDanglingReferenceStrict(t *testing.T) {
	_, err := Reconstruct(livegraph.New(), danglingReferenceAggregate(), nil, NewExceptionHandler(true, nil))

	var unresolved *memento.UnresolvedReferenceError
	require.ErrorAs(t, err, &unresolved)
	assert.Equal(t, "missing", unresolved.TargetID)
	assert.Equal(t, "db", unresolved.Key)
}

func TestReconstructDanglingReferenceLenient(t *testing.T) {
	h := NewExceptionHandler(false, nil)
	g := livegraph.New()

	_, err := Reconstruct(g, danglingReferenceAggregate(), nil, h)

	require.NoError(t, err)
	app, _ := g.Entity("app")
	v, ok := app.LocalConfig()[dbKey]
	assert.True(t, ok)
	assert.Nil(t, v)
	assert.Len(t, h.Problems(), 1)
}

func TestTreeOrderParentsFirst(t *testing.T) {
	nodes := map[string]*memento.EntityMemento{
		"b":  memento.NewEntityBuilder().ID("b").Type("t").Build(),
		"a":  memento.NewEntityBuilder().ID("a").Type("t").AddChild("a2").AddChild("a1").Build(),
		"a1": memento.NewEntityBuilder().ID("a1").Type("t").Parent("a").Build(),
		"a2": memento.NewEntityBuilder().ID("a2").Type("t").Parent("a").Build(),
	}
	order, unreached := treeOrder(nodes, []string{"b"})
	assert.Equal(t, []string{"b", "a", "a2", "a1"}, order)
	assert.Empty(t, unreached)
}

func TestTreeOrderReportsUnreachedNodes(t *testing.T) {
	nodes := map[string]*memento.EntityMemento{
		"app1":  memento.NewEntityBuilder().ID("app1").Type("t").Build(),
		"node1": memento.NewEntityBuilder().ID("node1").Type("t").Parent("app1").Build(),
	}
	order, unreached := treeOrder(nodes, nil)
	assert.Equal(t, []string{"app1"}, order)
	assert.Equal(t, []string{"node1"}, unreached)
}

func TestReconstructRejectsUnlistedChild(t *testing.T) {
	app := memento.NewEntityBuilder().ID("app1").Type("acme.App").TopLevelApp(true).Build()
	node := memento.NewEntityBuilder().ID("node1").Type("acme.Node").Parent("app1").Build()
	cloud := memento.NewLocationBuilder().ID("cloud1").Type("acme.Cloud").Build()
	agg := memento.NewBuilder().ApplicationID("app1").Entities(app, node).
		TopLevelLocationID("cloud1").Location(cloud).Build()
	g := livegraph.New()

	_, err := Reconstruct(g, agg, nil, NewExceptionHandler(false, nil))

	var ie *memento.IntegrityError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, "node1", ie.NodeID)
	assert.Equal(t, memento.RelationUnreachable, ie.Relation)
	assert.Empty(t, g.Entities())
	assert.Empty(t, g.Locations())
}
