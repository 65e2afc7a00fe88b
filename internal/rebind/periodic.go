package rebind

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"brooklyn/internal/generator"
	"brooklyn/internal/metrics"
	"brooklyn/internal/persister"
	"brooklyn/pkg/graph"
	"brooklyn/pkg/memento"
)

// State is the lifecycle state of a PeriodicPersister.
type State int

const (
	StateInit State = iota
	StateRunning
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateRunning:
		return "RUNNING"
	case StateStopping:
		return "STOPPING"
	case StateStopped:
		return "STOPPED"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// ErrNotRunning is returned when a persister is started twice or stopped
// before it runs.
var ErrNotRunning = errors.New("rebind: periodic persister not running")

const (
	defaultPeriod        = time.Second
	defaultMaxAttempts   = 3
	defaultRetryInterval = 100 * time.Millisecond
)

// PeriodicPersister writes the changes reported by the live graph as a delta
// once per period. Changes are collected while in INIT or RUNNING and
// dropped afterwards. It implements livegraph.Listener.
type PeriodicPersister struct {
	gen           *generator.Generator
	persister     *persister.Persister
	log           logrus.FieldLogger
	metrics       *metrics.Persistence
	period        time.Duration
	maxAttempts   int
	retryInterval time.Duration

	mu        sync.Mutex
	state     State
	collector *DeltaCollector
	stop      chan struct{}
	done      chan struct{}

	// writeMu serializes delta writes and guards working.
	writeMu sync.Mutex
	working *memento.MutableBrooklynMemento
}

// PeriodicOption configures a PeriodicPersister.
type PeriodicOption func(*PeriodicPersister)

// WithPeriod sets the delay between deltas.
func WithPeriod(d time.Duration) PeriodicOption {
	return func(p *PeriodicPersister) {
		if d > 0 {
			p.period = d
		}
	}
}

// WithMaxAttempts bounds the write attempts of one delta.
func WithMaxAttempts(n int) PeriodicOption {
	return func(p *PeriodicPersister) {
		if n > 0 {
			p.maxAttempts = n
		}
	}
}

// WithRetryInterval sets the initial delay between write attempts.
func WithRetryInterval(d time.Duration) PeriodicOption {
	return func(p *PeriodicPersister) {
		if d > 0 {
			p.retryInterval = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) PeriodicOption {
	return func(p *PeriodicPersister) {
		if l != nil {
			p.log = l
		}
	}
}

// WithMetrics records delta activity on m.
func WithMetrics(m *metrics.Persistence) PeriodicOption {
	return func(p *PeriodicPersister) { p.metrics = m }
}

// NewPeriodicPersister constructs a persister in state INIT.
func NewPeriodicPersister(gen *generator.Generator, p *persister.Persister, opts ...PeriodicOption) *PeriodicPersister {
	pp := &PeriodicPersister{
		gen:           gen,
		persister:     p,
		period:        defaultPeriod,
		maxAttempts:   defaultMaxAttempts,
		retryInterval: defaultRetryInterval,
		collector:     NewDeltaCollector(),
		working:       memento.NewMutableBrooklynMemento(),
	}
	for _, opt := range opts {
		opt(pp)
	}
	if pp.log == nil {
		pp.log = discardLogger()
	}
	return pp
}

func discardLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// State returns the current lifecycle state.
func (p *PeriodicPersister) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *PeriodicPersister) collecting() *DeltaCollector {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == StateInit || p.state == StateRunning {
		return p.collector
	}
	return nil
}

func (p *PeriodicPersister) Managed(t memento.ObjectType, obj graph.Object) {
	if c := p.collecting(); c != nil {
		c.Add(t, obj)
	}
}

func (p *PeriodicPersister) Changed(t memento.ObjectType, obj graph.Object) {
	if c := p.collecting(); c != nil {
		c.Add(t, obj)
	}
}

func (p *PeriodicPersister) Unmanaged(t memento.ObjectType, obj graph.Object) {
	if c := p.collecting(); c != nil {
		c.Remove(t, obj.ID())
	}
}

// Reset replaces the working aggregate with agg, typically right after a
// checkpoint or rebind.
func (p *PeriodicPersister) Reset(agg *memento.BrooklynMemento) {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	p.working.Reset(agg)
}

// Snapshot returns a frozen copy of the working aggregate.
func (p *PeriodicPersister) Snapshot() *memento.BrooklynMemento {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	return p.working.Snapshot()
}

// Start moves the persister to RUNNING and begins writing a delta every
// period until Stop.
func (p *PeriodicPersister) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.state != StateInit {
		state := p.state
		p.mu.Unlock()
		return fmt.Errorf("start in state %s: %w", state, ErrNotRunning)
	}
	p.state = StateRunning
	p.stop = make(chan struct{})
	p.done = make(chan struct{})
	p.mu.Unlock()

	go p.loop(ctx)
	p.log.WithFields(logrus.Fields{"action": "start", "took": p.period}).Info("periodic persistence started")
	return nil
}

func (p *PeriodicPersister) loop(ctx context.Context) {
	defer close(p.done)
	ticker := time.NewTicker(p.period)
	defer ticker.Stop()
	for {
		select {
		case <-p.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.persistNow(ctx); err != nil {
				p.log.WithError(err).WithField("action", "delta").Warn("delta write failed; changes kept for the next period")
			}
		}
	}
}

// WaitForPendingComplete writes every change collected so far and returns
// once the write is finished.
func (p *PeriodicPersister) WaitForPendingComplete(ctx context.Context) error {
	if p.State() == StateStopped {
		return nil
	}
	return p.persistNow(ctx)
}

// Stop ends the periodic loop, writes any outstanding changes once and then
// discards all collected state.
func (p *PeriodicPersister) Stop(ctx context.Context) error {
	p.mu.Lock()
	if p.state != StateRunning {
		state := p.state
		p.mu.Unlock()
		return fmt.Errorf("stop in state %s: %w", state, ErrNotRunning)
	}
	p.state = StateStopping
	close(p.stop)
	done := p.done
	p.mu.Unlock()

	<-done
	err := p.persistNow(ctx)

	p.mu.Lock()
	p.state = StateStopped
	p.collector = NewDeltaCollector()
	p.mu.Unlock()
	p.writeMu.Lock()
	p.working = memento.NewMutableBrooklynMemento()
	p.writeMu.Unlock()
	p.metrics.SetPending(0)
	p.log.WithField("action", "stop").Info("periodic persistence stopped")
	return err
}

// persistNow swaps the collector and writes what it held. On failure the
// swapped changes are merged back so the next period retries them.
func (p *PeriodicPersister) persistNow(ctx context.Context) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	p.mu.Lock()
	prev := p.collector
	p.collector = NewDeltaCollector()
	p.mu.Unlock()

	if prev.IsEmpty() {
		return nil
	}
	start := time.Now()
	delta := p.buildDelta(prev)

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.retryInterval
	attempts := 0
	err := backoff.Retry(func() error {
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		attempts++
		return p.persister.Delta(ctx, delta)
	}, backoff.WithContext(backoff.WithMaxRetries(eb, uint64(p.maxAttempts-1)), ctx))

	fields := logrus.Fields{"action": "delta", "count": delta.Len(), "took": time.Since(start)}
	if err != nil {
		p.mu.Lock()
		next := p.collector
		p.mu.Unlock()
		prev.MergeInto(next)
		p.metrics.SetPending(next.Len())
		p.log.WithFields(fields).WithError(err).WithField("attempts", attempts).Error("delta not persisted")
		return err
	}
	p.metrics.SetPending(p.pending())
	p.log.WithFields(fields).Debug("delta persisted")
	return nil
}

func (p *PeriodicPersister) pending() int {
	p.mu.Lock()
	c := p.collector
	p.mu.Unlock()
	return c.Len()
}

// buildDelta generates mementos for the collected changes, applies them to
// the working aggregate and returns the delta to write. Every location in
// the hierarchy of a changed entity's locations is included, and so are the
// entity's adjuncts when they are persisted.
func (p *PeriodicPersister) buildDelta(c *DeltaCollector) *persister.Delta {
	entities := c.ChangedObjects(memento.TypeEntity)

	locations := newOrderedSet[graph.Location]()
	for _, obj := range c.ChangedObjects(memento.TypeLocation) {
		if l, ok := obj.(graph.Location); ok {
			locations.put(l.ID(), l)
		}
	}
	policies := newOrderedSet[graph.Policy]()
	for _, obj := range c.ChangedObjects(memento.TypePolicy) {
		if pol, ok := obj.(graph.Policy); ok {
			policies.put(pol.ID(), pol)
		}
	}
	enrichers := newOrderedSet[graph.Enricher]()
	for _, obj := range c.ChangedObjects(memento.TypeEnricher) {
		if en, ok := obj.(graph.Enricher); ok {
			enrichers.put(en.ID(), en)
		}
	}
	feeds := newOrderedSet[graph.Feed]()
	for _, obj := range c.ChangedObjects(memento.TypeFeed) {
		if f, ok := obj.(graph.Feed); ok {
			feeds.put(f.ID(), f)
		}
	}
	for _, obj := range entities {
		e, ok := obj.(graph.Entity)
		if !ok {
			continue
		}
		for _, loc := range e.Locations() {
			for _, l := range generator.LocationHierarchy(loc) {
				if !c.IsRemoved(memento.TypeLocation, l.ID()) {
					locations.put(l.ID(), l)
				}
			}
		}
		if p.gen.PersistsPolicies() {
			for _, pol := range e.Policies() {
				if !c.IsRemoved(memento.TypePolicy, pol.ID()) {
					policies.put(pol.ID(), pol)
				}
			}
		}
		if p.gen.PersistsEnrichers() {
			for _, en := range e.Enrichers() {
				if !c.IsRemoved(memento.TypeEnricher, en.ID()) {
					enrichers.put(en.ID(), en)
				}
			}
		}
		if p.gen.PersistsFeeds() {
			for _, f := range e.Feeds() {
				if !c.IsRemoved(memento.TypeFeed, f.ID()) {
					feeds.put(f.ID(), f)
				}
			}
		}
	}

	d := &persister.Delta{}
	for _, l := range locations.values() {
		d.Locations = append(d.Locations, p.gen.LocationMemento(l))
	}
	for _, obj := range entities {
		if e, ok := obj.(graph.Entity); ok {
			d.Entities = append(d.Entities, p.gen.EntityMemento(e))
		}
	}
	if p.gen.PersistsPolicies() {
		for _, pol := range policies.values() {
			if m, ok := p.gen.PolicyMemento(pol); ok {
				d.Policies = append(d.Policies, m)
			}
		}
	}
	if p.gen.PersistsEnrichers() {
		for _, en := range enrichers.values() {
			if m, ok := p.gen.EnricherMemento(en); ok {
				d.Enrichers = append(d.Enrichers, m)
			}
		}
	}
	if p.gen.PersistsFeeds() {
		for _, f := range feeds.values() {
			if m, ok := p.gen.FeedMemento(f); ok {
				d.Feeds = append(d.Feeds, m)
			}
		}
	}
	for _, obj := range c.ChangedObjects(memento.TypeCatalogItem) {
		if item, ok := obj.(graph.CatalogItem); ok {
			d.CatalogItems = append(d.CatalogItems, p.gen.CatalogItemMemento(item))
		}
	}

	p.working.UpdateLocationMementos(d.Locations...)
	p.working.UpdateEntityMementos(d.Entities...)
	p.working.UpdatePolicyMementos(d.Policies...)
	p.working.UpdateEnricherMementos(d.Enrichers...)
	p.working.UpdateFeedMementos(d.Feeds...)
	p.working.UpdateCatalogItemMementos(d.CatalogItems...)

	removedEntities := c.RemovedIDs(memento.TypeEntity)
	d.RemovedEntityIDs = union(removedEntities, p.working.RemoveEntities(removedEntities...))
	removedLocations := c.RemovedIDs(memento.TypeLocation)
	d.RemovedLocationIDs = union(removedLocations, p.working.RemoveLocations(removedLocations...))
	d.RemovedPolicyIDs = c.RemovedIDs(memento.TypePolicy)
	d.RemovedEnricherIDs = c.RemovedIDs(memento.TypeEnricher)
	d.RemovedFeedIDs = c.RemovedIDs(memento.TypeFeed)
	d.RemovedCatalogItemIDs = c.RemovedIDs(memento.TypeCatalogItem)
	p.working.RemovePolicies(d.RemovedPolicyIDs...)
	p.working.RemoveEnrichers(d.RemovedEnricherIDs...)
	p.working.RemoveFeeds(d.RemovedFeedIDs...)
	p.working.RemoveCatalogItems(d.RemovedCatalogItemIDs...)
	if len(d.Entities) > 0 || len(d.RemovedEntityIDs) > 0 {
		d.ApplicationIDs = append([]string{}, p.working.ApplicationIDs()...)
	}
	return d
}

// union appends the ids of b missing from a.
func union(a, b []string) []string {
	seen := make(map[string]bool, len(a))
	out := append([]string(nil), a...)
	for _, id := range a {
		seen[id] = true
	}
	for _, id := range b {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
