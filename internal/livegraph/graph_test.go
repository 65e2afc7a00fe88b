package livegraph

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"brooklyn/pkg/graph"
	"brooklyn/pkg/memento"
)

type recorded struct {
	kind string
	t    memento.ObjectType
	id   string
}

type recorder struct {
	mu     sync.Mutex
	events []recorded
}

func (r *recorder) add(kind string, t memento.ObjectType, obj graph.Object) {
	r.mu.Lock()
	r.events = append(r.events, recorded{kind, t, obj.ID()})
	r.mu.Unlock()
}

func (r *recorder) Managed(t memento.ObjectType, obj graph.Object)   { r.add("managed", t, obj) }
func (r *recorder) Changed(t memento.ObjectType, obj graph.Object)   { r.add("changed", t, obj) }
func (r *recorder) Unmanaged(t memento.ObjectType, obj graph.Object) { r.add("unmanaged", t, obj) }

func (r *recorder) kinds(kind string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, ev := range r.events {
		if ev.kind == kind {
			out = append(out, ev.id)
		}
	}
	return out
}

func TestCreateAndUnmanageSubtree(t *testing.T) {
	g := New()
	rec := &recorder{}
	g.AddListener(rec)

	app, err := g.CreateEntity(EntitySpec{ID: "app", Type: "acme.App", Application: true})
	require.NoError(t, err)
	cluster, err := g.CreateEntity(EntitySpec{ID: "cluster", Type: "acme.Cluster", Parent: app})
	require.NoError(t, err)
	n1, err := g.CreateEntity(EntitySpec{ID: "n1", Type: "acme.Node", Parent: cluster})
	require.NoError(t, err)
	cluster.AddMember(n1)
	other, err := g.CreateEntity(EntitySpec{ID: "other", Type: "acme.Group", Parent: app})
	require.NoError(t, err)
	other.AddMember(n1)

	assert.Len(t, g.Applications(), 1)
	assert.Equal(t, "app", cluster.Parent().ID())
	assert.Nil(t, app.Parent())
	assert.Len(t, app.Children(), 2)
	assert.Equal(t, []string{"app", "cluster", "n1", "other"}, rec.kinds("managed"))

	require.NoError(t, g.Unmanage(cluster))

	_, ok := g.Entity("n1")
	assert.False(t, ok)
	assert.Len(t, app.Children(), 1)
	assert.Empty(t, other.Members())
	assert.ElementsMatch(t, []string{"n1", "cluster"}, rec.kinds("unmanaged"))
	assert.ErrorIs(t, g.Unmanage(cluster), ErrNotManaged)
}

func TestDuplicateAndUnmanagedParent(t *testing.T) {
	g := New()
	_, err := g.CreateEntity(EntitySpec{ID: "a"})
	require.NoError(t, err)
	_, err = g.CreateEntity(EntitySpec{ID: "a"})
	assert.ErrorIs(t, err, ErrDuplicateID)

	stranger := New()
	p, err := stranger.CreateEntity(EntitySpec{ID: "p"})
	require.NoError(t, err)
	_, err = g.CreateEntity(EntitySpec{ID: "c", Parent: p})
	assert.ErrorIs(t, err, ErrNotManaged)
}

func TestGeneratedIDs(t *testing.T) {
	g := New()
	e, err := g.CreateEntity(EntitySpec{Type: "acme.App"})
	require.NoError(t, err)
	assert.Len(t, e.ID(), 36)
}

func TestLocationsAndConfigUse(t *testing.T) {
	g := New()
	cloud, err := g.CreateLocation(LocationSpec{ID: "cloud", Type: "acme.Cloud"})
	require.NoError(t, err)
	vm, err := g.CreateLocation(LocationSpec{
		ID:     "vm",
		Type:   "acme.VM",
		Parent: cloud,
		Config: map[string]any{"user": "root", "port": 22},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"port", "user"}, vm.UnusedConfig())
	v, ok := vm.Config("user")
	require.True(t, ok)
	assert.Equal(t, "root", v)
	assert.Equal(t, []string{"port"}, vm.UnusedConfig())
	assert.Equal(t, "cloud", vm.Parent().ID())
	assert.Len(t, g.Locations(), 2)

	require.NoError(t, g.UnmanageLocation(cloud))
	assert.Empty(t, g.Locations())
}

func TestEntityMutationsNotifyListeners(t *testing.T) {
	g := New()
	rec := &recorder{}
	e, err := g.CreateEntity(EntitySpec{ID: "e"})
	require.NoError(t, err)
	g.AddListener(rec)

	e.SetConfig(graph.ConfigKey{Name: "port", TypeName: "int"}, 80)
	e.SetRawConfig("legacy", true)
	e.SetAttribute(graph.AttributeSensor{Name: "up"}, true)
	p := NewPolicy(AdjunctSpec{ID: "p1", Type: "acme.Restart"})
	e.AddPolicy(p)
	assert.True(t, e.RemovePolicy("p1"))
	assert.False(t, e.RemovePolicy("p1"))

	assert.Equal(t, []string{"p1"}, rec.kinds("managed"))
	assert.Equal(t, []string{"p1"}, rec.kinds("unmanaged"))
	assert.Len(t, rec.kinds("changed"), 5)
	assert.Equal(t, map[string]any{"port": 80, "legacy": true}, e.LocalConfigBag())

	g.RemoveListener(rec)
	e.SetDisplayName("quiet")
	assert.Len(t, rec.kinds("changed"), 5)
}

func TestFeedsFollowTheirEntity(t *testing.T) {
	g := New()
	rec := &recorder{}
	app, err := g.CreateEntity(EntitySpec{ID: "app", Application: true})
	require.NoError(t, err)
	web, err := g.CreateEntity(EntitySpec{ID: "web", Parent: app})
	require.NoError(t, err)
	g.AddListener(rec)

	f := NewFeed(AdjunctSpec{ID: "f1", Type: "acme.HttpFeed"})
	f.SetConfig(graph.ConfigKey{Name: "url", TypeName: "string"}, "http://web/status")
	web.AddFeed(f)

	require.Len(t, web.Feeds(), 1)
	assert.Equal(t, "http://web/status", web.Feeds()[0].Config()[graph.ConfigKey{Name: "url", TypeName: "string"}])
	assert.Equal(t, []string{"f1"}, rec.kinds("managed"))

	require.NoError(t, g.Unmanage(web))
	assert.ElementsMatch(t, []string{"f1", "web"}, rec.kinds("unmanaged"))
}

func TestCatalogItems(t *testing.T) {
	g := New()
	rec := &recorder{}
	g.AddListener(rec)
	g.AddCatalogItem(NewCatalogItem(CatalogItemSpec{ID: "c1", SymbolicName: "web", Version: "1.0"}))
	g.AddCatalogItem(NewCatalogItem(CatalogItemSpec{ID: "c1", SymbolicName: "web", Version: "1.1"}))
	c, ok := g.CatalogItem("c1")
	require.True(t, ok)
	assert.Equal(t, "1.1", c.Version())
	assert.True(t, g.RemoveCatalogItem("c1"))
	assert.False(t, g.RemoveCatalogItem("c1"))
	assert.Equal(t, []string{"c1"}, rec.kinds("managed"))
	assert.Equal(t, []string{"c1"}, rec.kinds("changed"))
	assert.Equal(t, []string{"c1"}, rec.kinds("unmanaged"))
}

func TestTask(t *testing.T) {
	task := NewTask()
	assert.False(t, task.Done())
	task.Fail(errors.New("boom"))
	task.Complete(1)
	<-task.Wait()
	v, err := task.Result()
	assert.Nil(t, v)
	assert.EqualError(t, err, "boom")

	ok := Resolved("x")
	require.True(t, ok.Done())
	v, err = ok.Result()
	assert.NoError(t, err)
	assert.Equal(t, "x", v)
}

func TestConcurrentMutation(t *testing.T) {
	g := New()
	app, err := g.CreateEntity(EntitySpec{ID: "app", Application: true})
	require.NoError(t, err)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				app.SetAttribute(graph.AttributeSensor{Name: "n"}, j)
				_ = app.Attributes()
				_ = g.Entities()
			}
		}()
	}
	wg.Wait()
	assert.Len(t, app.Attributes(), 1)
}
