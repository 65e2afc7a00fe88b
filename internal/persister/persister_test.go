package persister

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"brooklyn/internal/codec"
	"brooklyn/internal/objectstore"
	"brooklyn/pkg/memento"
)

func sampleAggregate() *memento.BrooklynMemento {
	app := memento.NewEntityBuilder().ID("app1").Type("acme.App").TopLevelApp(true).
		AddChild("web").AddLocation("vm1").
		Config(memento.KeyDef{Name: "owner", TypeName: "string"}, "ops").
		Build()
	web := memento.NewEntityBuilder().ID("web").Type("acme.Web").Parent("app1").
		AddLocation("vm1").AddPolicy("p1").AddFeed("f1").
		Attribute(memento.KeyDef{Name: "host", TypeName: "string"}, "10.0.0.1").
		Build()
	cloud := memento.NewLocationBuilder().ID("cloud1").Type("acme.Cloud").AddChild("vm1").Build()
	vm := memento.NewLocationBuilder().ID("vm1").Type("acme.VM").Parent("cloud1").Config("user", "root").Build()
	return memento.NewBuilder().
		ApplicationID("app1").
		Entities(app, web).
		TopLevelLocationID("cloud1").
		Locations(cloud, vm).
		Policy(memento.NewPolicyBuilder().ID("p1").Type("acme.Restart").Config("limit", 3).Build()).
		Enricher(memento.NewEnricherBuilder().ID("e1").Type("acme.Sum").Build()).
		Feed(memento.NewFeedBuilder().ID("f1").Type("acme.HttpFeed").Config("period", "30s").Build()).
		CatalogItem(memento.NewCatalogItemBuilder().ID("c1").Type("catalog").SymbolicName("web").Version("1.0").Build()).
		Build()
}

func TestCheckpointAndLoad(t *testing.T) {
	for _, c := range []codec.Codec{codec.JSON{}, codec.Msgpack{}} {
		t.Run(c.Name(), func(t *testing.T) {
			ctx := context.Background()
			store := objectstore.NewMemory()
			p := New(store, c, WithParallelism(2))

			require.NoError(t, p.Checkpoint(ctx, sampleAggregate()))

			infos, err := store.List(ctx, "")
			require.NoError(t, err)
			assert.Len(t, infos, 9, "eight mementos and the application order")

			agg, err := p.LoadMemento(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"app1"}, agg.ApplicationIDs())
			assert.Equal(t, []string{"cloud1"}, agg.TopLevelLocationIDs())
			assert.Equal(t, []string{"app1", "web"}, agg.EntityIDs())
			assert.Equal(t, []string{"p1"}, agg.PolicyIDs())
			assert.Equal(t, []string{"e1"}, agg.EnricherIDs())
			assert.Equal(t, []string{"f1"}, agg.FeedIDs())
			assert.Equal(t, []string{"c1"}, agg.CatalogItemIDs())
			web, ok := agg.Entity("web")
			require.True(t, ok)
			assert.Equal(t, "app1", web.Parent())
			assert.Equal(t, "10.0.0.1", web.Attributes()["host"])
		})
	}
}

func TestCheckpointDeletesStaleObjects(t *testing.T) {
	ctx := context.Background()
	store := objectstore.NewMemory()
	p := New(store, codec.JSON{})
	require.NoError(t, p.Checkpoint(ctx, sampleAggregate()))

	smaller := memento.NewBuilder().
		ApplicationID("solo").
		Entity(memento.NewEntityBuilder().ID("solo").Type("acme.App").TopLevelApp(true).Build()).
		Build()
	require.NoError(t, p.Checkpoint(ctx, smaller))

	infos, err := store.List(ctx, "")
	require.NoError(t, err)
	var keys []string
	for _, info := range infos {
		keys = append(keys, info.Key)
	}
	assert.ElementsMatch(t, []string{ApplicationsKey, "entities/solo"}, keys)
}

func TestLoadManifest(t *testing.T) {
	ctx := context.Background()
	p := New(objectstore.NewMemory(), codec.Msgpack{})
	require.NoError(t, p.Checkpoint(ctx, sampleAggregate()))

	mf, err := p.LoadManifest(ctx)
	require.NoError(t, err)
	assert.Equal(t, 8, mf.Len())
	assert.Equal(t, "app1", mf.Entities["web"].Parent)
	assert.Equal(t, "acme.Web", mf.Entities["web"].Type)
	assert.Equal(t, "acme.VM", mf.Locations["vm1"])
	assert.Equal(t, "acme.Restart", mf.Policies["p1"])
	assert.Equal(t, "acme.Sum", mf.Enrichers["e1"])
	assert.Equal(t, "acme.HttpFeed", mf.Feeds["f1"])
	assert.Equal(t, "catalog", mf.CatalogItems["c1"])
}

func TestDeltaWritesAndRemoves(t *testing.T) {
	ctx := context.Background()
	store := objectstore.NewMemory()
	p := New(store, codec.JSON{})
	require.NoError(t, p.Checkpoint(ctx, sampleAggregate()))

	web := memento.NewEntityBuilder().ID("web").Type("acme.Web").Parent("app1").AddLocation("vm1").
		Attribute(memento.KeyDef{Name: "host", TypeName: "string"}, "10.0.0.2").Build()
	d := &Delta{
		Entities:           []*memento.EntityMemento{web},
		RemovedPolicyIDs:   []string{"p1"},
		RemovedEnricherIDs: []string{"e1", "never-stored"},
		RemovedFeedIDs:     []string{"f1"},
	}
	assert.Equal(t, 5, d.Len())
	require.NoError(t, p.Delta(ctx, d))

	got, err := p.LoadOne(ctx, memento.TypeEntity, "web")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.2", got.(*memento.EntityMemento).Attributes()["host"])
	_, err = p.LoadOne(ctx, memento.TypePolicy, "p1")
	assert.ErrorIs(t, err, memento.ErrNotFound)
	_, err = p.LoadOne(ctx, memento.TypeFeed, "f1")
	assert.ErrorIs(t, err, memento.ErrNotFound)
}

func app(id string) *memento.EntityMemento {
	return memento.NewEntityBuilder().ID(id).Type("acme.App").TopLevelApp(true).Build()
}

func TestLoadKeepsApplicationOrder(t *testing.T) {
	for _, c := range []codec.Codec{codec.JSON{}, codec.Msgpack{}} {
		t.Run(c.Name(), func(t *testing.T) {
			ctx := context.Background()
			p := New(objectstore.NewMemory(), c)
			agg := memento.NewBuilder().
				ApplicationIDs("zeta", "alpha", "mid").
				Entities(app("alpha"), app("mid"), app("zeta")).
				Build()
			require.NoError(t, p.Checkpoint(ctx, agg))

			loaded, err := p.LoadMemento(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"zeta", "alpha", "mid"}, loaded.ApplicationIDs())

			require.NoError(t, p.Delta(ctx, &Delta{
				Entities:         []*memento.EntityMemento{app("new")},
				RemovedEntityIDs: []string{"alpha"},
				ApplicationIDs:   []string{"zeta", "mid", "new"},
			}))
			loaded, err = p.Load(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"zeta", "mid", "new"}, loaded.ApplicationIDs())
		})
	}
}

func TestLoadWithoutApplicationOrder(t *testing.T) {
	ctx := context.Background()
	store := objectstore.NewMemory()
	p := New(store, codec.JSON{})
	agg := memento.NewBuilder().ApplicationIDs("b", "a").Entities(app("a"), app("b")).Build()
	require.NoError(t, p.Checkpoint(ctx, agg))
	_, err := store.Delete(ctx, ApplicationsKey)
	require.NoError(t, err)

	loaded, err := p.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, loaded.ApplicationIDs(), "unlisted applications follow in id order")
}

func TestOrderApplications(t *testing.T) {
	assert.Equal(t, []string{"c", "a", "b", "d"}, orderApplications([]string{"c", "gone", "a"}, []string{"a", "b", "c", "d"}))
	assert.Empty(t, orderApplications([]string{"x"}, nil))
}

func TestOpaqueIDsRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := objectstore.NewMemory()
	p := New(store, codec.JSON{})
	app := memento.NewEntityBuilder().ID("apps/web").Type("acme.App").TopLevelApp(true).AddLocation("..").Build()
	loc := memento.NewLocationBuilder().ID("..").Type("acme.VM").Build()
	item := memento.NewCatalogItemBuilder().ID("web:1.0").Type("catalog").SymbolicName("web").Version("1.0").Build()
	agg := memento.NewBuilder().ApplicationID("apps/web").Entity(app).
		TopLevelLocationID("..").Location(loc).CatalogItem(item).Build()

	require.NoError(t, p.Checkpoint(ctx, agg))
	loaded, err := p.LoadMemento(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"apps/web"}, loaded.EntityIDs())
	assert.Equal(t, []string{".."}, loaded.LocationIDs())
	assert.Equal(t, []string{"web:1.0"}, loaded.CatalogItemIDs())
	m, err := p.Find(ctx, "apps/web")
	require.NoError(t, err)
	assert.Equal(t, "apps/web", m.ID())

	require.NoError(t, p.Checkpoint(ctx, memento.NewBuilder().Build()))
	infos, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, infos, "stale objects with escaped ids are removed")
}

func TestFind(t *testing.T) {
	ctx := context.Background()
	p := New(objectstore.NewMemory(), codec.JSON{})
	require.NoError(t, p.Checkpoint(ctx, sampleAggregate()))

	m, err := p.Find(ctx, "vm1")
	require.NoError(t, err)
	assert.Equal(t, memento.TypeLocation, m.ObjectType())

	_, err = p.Find(ctx, "ghost")
	assert.ErrorIs(t, err, memento.ErrNotFound)
}

func TestLoadMementoRejectsDanglingReferences(t *testing.T) {
	ctx := context.Background()
	store := objectstore.NewMemory()
	p := New(store, codec.JSON{})
	require.NoError(t, p.Checkpoint(ctx, sampleAggregate()))
	_, err := store.Delete(ctx, Key(memento.TypeLocation, "vm1"))
	require.NoError(t, err)

	_, err = p.LoadMemento(ctx)
	var ie *memento.IntegrityError
	require.True(t, errors.As(err, &ie), "got %v", err)
	assert.Equal(t, "vm1", ie.MissingID)

	agg, err := p.Load(ctx)
	require.NoError(t, err, "Load does not validate")
	assert.Equal(t, []string{"cloud1"}, agg.LocationIDs())
}

func TestLoadRejectsMisplacedObject(t *testing.T) {
	ctx := context.Background()
	store := objectstore.NewMemory()
	p := New(store, codec.JSON{})
	data, err := codec.JSON{}.Encode(memento.NewLocationBuilder().ID("real").Type("acme.VM").Build())
	require.NoError(t, err)
	_, err = store.Put(ctx, Key(memento.TypeLocation, "other"), data)
	require.NoError(t, err)

	_, err = p.Load(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stored under other")
}

type failingStore struct {
	objectstore.Store
	failKey string
}

func (f *failingStore) Put(ctx context.Context, key string, data []byte) (objectstore.Info, error) {
	if strings.HasPrefix(key, f.failKey) {
		return objectstore.Info{}, errors.New("disk full")
	}
	return f.Store.Put(ctx, key, data)
}

func TestDeltaAggregatesFailures(t *testing.T) {
	ctx := context.Background()
	store := &failingStore{Store: objectstore.NewMemory(), failKey: "entities/"}
	p := New(store, codec.JSON{})

	err := p.Checkpoint(ctx, sampleAggregate())

	var merr *multierror.Error
	require.True(t, errors.As(err, &merr), "got %v", err)
	assert.Len(t, merr.Errors, 2)
	infos, listErr := store.List(ctx, "locations/")
	require.NoError(t, listErr)
	assert.Len(t, infos, 2, "other object types are still written")
}

func TestCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := New(objectstore.NewMemory(), codec.JSON{})
	err := p.Delta(ctx, DeltaOf(sampleAggregate()))
	assert.ErrorIs(t, err, context.Canceled)
}
