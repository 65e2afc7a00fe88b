package rebind

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"brooklyn/internal/codec"
	"brooklyn/internal/generator"
	"brooklyn/internal/livegraph"
	"brooklyn/internal/metrics"
	"brooklyn/internal/objectstore"
	"brooklyn/internal/persister"
	"brooklyn/pkg/memento"
)

func TestStateString(t *testing.T) {
	assert.Equal(t, "INIT", StateInit.String())
	assert.Equal(t, "RUNNING", StateRunning.String())
	assert.Equal(t, "STOPPING", StateStopping.String())
	assert.Equal(t, "STOPPED", StateStopped.String())
	assert.Equal(t, "State(9)", State(9).String())
}

func TestPeriodicPersisterWritesDeltas(t *testing.T) {
	ctx := context.Background()
	p := newMemoryPersister()
	pp := NewPeriodicPersister(generator.New(generator.WithPolicies(true)), p, WithPeriod(time.Hour))
	g := livegraph.New()
	g.AddListener(pp)
	require.NoError(t, pp.Start(ctx))
	assert.Equal(t, StateRunning, pp.State())

	populate(t, g)
	require.NoError(t, pp.WaitForPendingComplete(ctx))

	agg, err := p.LoadMemento(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"app1"}, agg.ApplicationIDs())
	assert.Equal(t, []string{"app1", "db", "web"}, agg.EntityIDs())
	assert.Equal(t, []string{"cloud1", "vm1", "vm2"}, agg.LocationIDs())
	assert.Equal(t, []string{"p1"}, agg.PolicyIDs())
	assert.Empty(t, agg.EnricherIDs(), "enrichers are not persisted")
	assert.Empty(t, agg.FeedIDs(), "feeds are not persisted")
	assert.Equal(t, []string{"c1"}, agg.CatalogItemIDs())

	app, _ := g.Entity("app1")
	require.NoError(t, g.Unmanage(app))
	require.NoError(t, pp.WaitForPendingComplete(ctx))

	agg, err = p.LoadMemento(ctx)
	require.NoError(t, err)
	assert.Empty(t, agg.EntityIDs())
	assert.Empty(t, agg.PolicyIDs())
	assert.Equal(t, []string{"cloud1", "vm1", "vm2"}, agg.LocationIDs())
	assert.Empty(t, pp.Snapshot().EntityIDs())

	require.NoError(t, pp.Stop(ctx))
	assert.Equal(t, StateStopped, pp.State())

	_, err = g.CreateEntity(livegraph.EntitySpec{ID: "late", Type: "acme.App", Application: true})
	require.NoError(t, err)
	assert.Zero(t, pp.pending(), "changes after stop are not collected")
}

func TestPeriodicPersisterWritesFeedsAndApplicationOrder(t *testing.T) {
	ctx := context.Background()
	p := newMemoryPersister()
	pp := NewPeriodicPersister(generator.New(generator.WithFeeds(true)), p, WithPeriod(time.Hour))
	g := livegraph.New()
	g.AddListener(pp)
	require.NoError(t, pp.Start(ctx))
	defer func() { _ = pp.Stop(ctx) }()

	zeta, err := g.CreateEntity(livegraph.EntitySpec{ID: "zeta", Type: "acme.App", Application: true})
	require.NoError(t, err)
	_, err = g.CreateEntity(livegraph.EntitySpec{ID: "alpha", Type: "acme.App", Application: true})
	require.NoError(t, err)
	w, err := g.CreateEntity(livegraph.EntitySpec{ID: "w", Type: "acme.Web", Parent: zeta})
	require.NoError(t, err)
	w.AddFeed(livegraph.NewFeed(livegraph.AdjunctSpec{ID: "feed1", Type: "acme.HttpFeed"}))
	require.NoError(t, pp.WaitForPendingComplete(ctx))

	agg, err := p.LoadMemento(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"zeta", "alpha"}, agg.ApplicationIDs())
	assert.Equal(t, []string{"feed1"}, agg.FeedIDs())
	wm, ok := agg.Entity("w")
	require.True(t, ok)
	assert.Equal(t, []string{"feed1"}, wm.Feeds())

	require.NoError(t, g.Unmanage(w))
	require.NoError(t, pp.WaitForPendingComplete(ctx))

	agg, err = p.LoadMemento(ctx)
	require.NoError(t, err)
	assert.Empty(t, agg.FeedIDs())
	assert.Equal(t, []string{"zeta", "alpha"}, agg.ApplicationIDs())
}

func TestPeriodicPersisterStopFlushes(t *testing.T) {
	ctx := context.Background()
	p := newMemoryPersister()
	pp := NewPeriodicPersister(generator.New(), p, WithPeriod(time.Hour))
	g := livegraph.New()
	g.AddListener(pp)
	require.NoError(t, pp.Start(ctx))

	_, err := g.CreateEntity(livegraph.EntitySpec{ID: "app", Type: "acme.App", Application: true})
	require.NoError(t, err)
	require.NoError(t, pp.Stop(ctx))

	m, err := p.LoadOne(ctx, memento.TypeEntity, "app")
	require.NoError(t, err)
	assert.Equal(t, "acme.App", m.Type())
}

func TestPeriodicPersisterWritesOnTick(t *testing.T) {
	ctx := context.Background()
	p := newMemoryPersister()
	pp := NewPeriodicPersister(generator.New(), p, WithPeriod(10*time.Millisecond))
	g := livegraph.New()
	g.AddListener(pp)
	require.NoError(t, pp.Start(ctx))
	defer func() { _ = pp.Stop(ctx) }()

	_, err := g.CreateEntity(livegraph.EntitySpec{ID: "app", Type: "acme.App", Application: true})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		_, err := p.LoadOne(ctx, memento.TypeEntity, "app")
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)
}

func TestPeriodicPersisterRetries(t *testing.T) {
	ctx := context.Background()
	store := &flakyStore{Store: objectstore.NewMemory(), prefix: "entities/", failures: 1}
	p := persister.New(store, codec.JSON{})
	pp := NewPeriodicPersister(generator.New(), p,
		WithPeriod(time.Hour), WithMaxAttempts(3), WithRetryInterval(time.Millisecond))
	g := livegraph.New()
	g.AddListener(pp)
	require.NoError(t, pp.Start(ctx))
	defer func() { _ = pp.Stop(ctx) }()

	_, err := g.CreateEntity(livegraph.EntitySpec{ID: "app", Type: "acme.App", Application: true})
	require.NoError(t, err)
	require.NoError(t, pp.WaitForPendingComplete(ctx))

	_, err = p.LoadOne(ctx, memento.TypeEntity, "app")
	assert.NoError(t, err)
}

func TestPeriodicPersisterKeepsFailedChanges(t *testing.T) {
	ctx := context.Background()
	store := &flakyStore{Store: objectstore.NewMemory(), prefix: "entities/", failing: true}
	p := persister.New(store, codec.JSON{})
	m := metrics.New(nil)
	pp := NewPeriodicPersister(generator.New(), p,
		WithPeriod(time.Hour), WithMaxAttempts(1), WithMetrics(m))
	g := livegraph.New()
	g.AddListener(pp)
	require.NoError(t, pp.Start(ctx))
	defer func() { _ = pp.Stop(ctx) }()

	_, err := g.CreateEntity(livegraph.EntitySpec{ID: "app", Type: "acme.App", Application: true})
	require.NoError(t, err)

	require.Error(t, pp.WaitForPendingComplete(ctx))
	assert.Equal(t, 1, pp.pending())
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Pending))

	store.setFailing(false)
	require.NoError(t, pp.WaitForPendingComplete(ctx))
	_, err = p.LoadOne(ctx, memento.TypeEntity, "app")
	assert.NoError(t, err)
	assert.Equal(t, float64(0), testutil.ToFloat64(m.Pending))
}

func TestPeriodicPersisterLifecycleErrors(t *testing.T) {
	ctx := context.Background()
	pp := NewPeriodicPersister(generator.New(), newMemoryPersister())

	assert.ErrorIs(t, pp.Stop(ctx), ErrNotRunning)
	require.NoError(t, pp.Start(ctx))
	assert.ErrorIs(t, pp.Start(ctx), ErrNotRunning)
	require.NoError(t, pp.Stop(ctx))
	assert.ErrorIs(t, pp.Start(ctx), ErrNotRunning)
	assert.NoError(t, pp.WaitForPendingComplete(ctx))
}
