package rebind

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"brooklyn/internal/codec"
	"brooklyn/internal/livegraph"
	"brooklyn/internal/objectstore"
	"brooklyn/internal/persister"
	"brooklyn/pkg/graph"
)

var (
	portKey  = graph.ConfigKey{Name: "port", TypeName: "int"}
	dbKey    = graph.ConfigKey{Name: "db", TypeName: "entity"}
	zoneKey  = graph.ConfigKey{Name: "zone", TypeName: "location"}
	hostAttr = graph.AttributeSensor{Name: "host", TypeName: "string", Persistence: graph.PersistRequired}
)

func buildGraph(t *testing.T) *livegraph.Graph {
	t.Helper()
	return populate(t, livegraph.New())
}

// populate adds two locations under a cloud, an application with two
// children and a member, adjuncts and a catalog item.
func populate(t *testing.T, g *livegraph.Graph) *livegraph.Graph {
	t.Helper()
	cloud, err := g.CreateLocation(livegraph.LocationSpec{ID: "cloud1", Type: "acme.Cloud", Description: "eu cloud"})
	require.NoError(t, err)
	vm, err := g.CreateLocation(livegraph.LocationSpec{
		ID:     "vm1",
		Type:   "acme.VM",
		Parent: cloud,
		Flags:  []graph.FlagField{{Name: "user", Value: "root"}, {Name: "password", Value: "secret", Transient: true}},
		Config: map[string]any{"region": "eu"},
	})
	require.NoError(t, err)
	_, err = g.CreateLocation(livegraph.LocationSpec{ID: "vm2", Type: "acme.VM", Parent: cloud})
	require.NoError(t, err)

	app, err := g.CreateEntity(livegraph.EntitySpec{ID: "app1", Type: "acme.App", Application: true})
	require.NoError(t, err)
	web, err := g.CreateEntity(livegraph.EntitySpec{ID: "web", Type: "acme.Web", Parent: app, Tags: []string{"front"}})
	require.NoError(t, err)
	db, err := g.CreateEntity(livegraph.EntitySpec{ID: "db", Type: "acme.DB", Parent: app})
	require.NoError(t, err)

	web.AddLocation(vm)
	web.SetConfig(portKey, 8080)
	web.SetConfig(dbKey, db)
	web.SetConfig(zoneKey, cloud)
	web.SetRawConfig("legacy", "x")
	web.SetAttribute(hostAttr, "10.0.0.1")
	web.AddPolicy(livegraph.NewPolicy(livegraph.AdjunctSpec{
		ID:     "p1",
		Type:   "acme.Restart",
		Config: map[graph.ConfigKey]any{{Name: "limit"}: 3},
	}))
	web.AddEnricher(livegraph.NewEnricher(livegraph.AdjunctSpec{ID: "en1", Type: "acme.Sum"}))
	web.AddFeed(livegraph.NewFeed(livegraph.AdjunctSpec{
		ID:     "feed1",
		Type:   "acme.HttpFeed",
		Config: map[graph.ConfigKey]any{{Name: "url"}: "http://web/status"},
	}))
	app.AddMember(web)
	g.AddCatalogItem(livegraph.NewCatalogItem(livegraph.CatalogItemSpec{ID: "c1", Type: "catalog", SymbolicName: "web", Version: "1.0"}))
	return g
}

func newMemoryPersister() *persister.Persister {
	return persister.New(objectstore.NewMemory(), codec.JSON{}, persister.WithParallelism(2))
}

// flakyStore fails Puts under prefix while failing is set, or for the next
// failures Puts when that count is positive.
type flakyStore struct {
	objectstore.Store
	prefix string

	mu       sync.Mutex
	failing  bool
	failures int
}

func (f *flakyStore) Put(ctx context.Context, key string, data []byte) (objectstore.Info, error) {
	f.mu.Lock()
	fail := false
	if strings.HasPrefix(key, f.prefix) {
		if f.failing {
			fail = true
		} else if f.failures > 0 {
			f.failures--
			fail = true
		}
	}
	f.mu.Unlock()
	if fail {
		return objectstore.Info{}, errors.New("store unavailable")
	}
	return f.Store.Put(ctx, key, data)
}

func (f *flakyStore) setFailing(v bool) {
	f.mu.Lock()
	f.failing = v
	f.mu.Unlock()
}
