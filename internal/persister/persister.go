// Package persister stores mementos in an object store, one object per
// memento under `<subpath>/<id>`, encoded with a codec.
package persister

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"brooklyn/internal/codec"
	"brooklyn/internal/metrics"
	"brooklyn/internal/objectstore"
	"brooklyn/pkg/memento"
)

const defaultParallelism = 8

// ApplicationsKey holds the application ids in the order they were created.
// Load falls back to id order for applications it does not list.
const ApplicationsKey = "applications"

// Persister writes and reads aggregate snapshots. Methods are safe for
// concurrent use; callers serialize writes of overlapping snapshots.
type Persister struct {
	store       objectstore.Store
	codec       codec.Codec
	log         logrus.FieldLogger
	metrics     *metrics.Persistence
	parallelism int
}

// Option configures a Persister.
type Option func(*Persister)

// WithLogger sets the logger. A nil logger discards output.
func WithLogger(l logrus.FieldLogger) Option {
	return func(p *Persister) {
		if l != nil {
			p.log = l
		}
	}
}

// WithMetrics records write activity on m.
func WithMetrics(m *metrics.Persistence) Option {
	return func(p *Persister) { p.metrics = m }
}

// WithParallelism bounds concurrent object store calls.
func WithParallelism(n int) Option {
	return func(p *Persister) {
		if n > 0 {
			p.parallelism = n
		}
	}
}

// New constructs a Persister over store using c.
func New(store objectstore.Store, c codec.Codec, opts ...Option) *Persister {
	p := &Persister{store: store, codec: c, parallelism: defaultParallelism}
	for _, opt := range opts {
		opt(p)
	}
	if p.log == nil {
		discard := logrus.New()
		discard.SetOutput(io.Discard)
		p.log = discard
	}
	return p
}

// Codec returns the codec in use.
func (p *Persister) Codec() codec.Codec { return p.codec }

// Store returns the backing object store.
func (p *Persister) Store() objectstore.Store { return p.store }

// Key returns the object store key of a memento. The id is path-escaped,
// dots included, so any id maps to exactly one key directly under the type's
// subpath.
func Key(t memento.ObjectType, id string) string {
	return t.SubPath() + "/" + escapeID(id)
}

func escapeID(id string) string {
	return strings.ReplaceAll(url.PathEscape(id), ".", "%2E")
}

// Delta is an incremental change set: mementos to write and ids to delete.
type Delta struct {
	Entities     []*memento.EntityMemento
	Locations    []*memento.LocationMemento
	Policies     []*memento.PolicyMemento
	Enrichers    []*memento.EnricherMemento
	Feeds        []*memento.FeedMemento
	CatalogItems []*memento.CatalogItemMemento

	RemovedEntityIDs      []string
	RemovedLocationIDs    []string
	RemovedPolicyIDs      []string
	RemovedEnricherIDs    []string
	RemovedFeedIDs        []string
	RemovedCatalogItemIDs []string

	// ApplicationIDs replaces the stored application order when non-nil. An
	// empty non-nil slice removes it.
	ApplicationIDs []string
}

// Mementos returns the changed mementos of type t.
func (d *Delta) Mementos(t memento.ObjectType) []memento.Memento {
	var out []memento.Memento
	switch t {
	case memento.TypeEntity:
		for _, m := range d.Entities {
			out = append(out, m)
		}
	case memento.TypeLocation:
		for _, m := range d.Locations {
			out = append(out, m)
		}
	case memento.TypePolicy:
		for _, m := range d.Policies {
			out = append(out, m)
		}
	case memento.TypeEnricher:
		for _, m := range d.Enrichers {
			out = append(out, m)
		}
	case memento.TypeFeed:
		for _, m := range d.Feeds {
			out = append(out, m)
		}
	case memento.TypeCatalogItem:
		for _, m := range d.CatalogItems {
			out = append(out, m)
		}
	}
	return out
}

// Removed returns the removed ids of type t.
func (d *Delta) Removed(t memento.ObjectType) []string {
	switch t {
	case memento.TypeEntity:
		return d.RemovedEntityIDs
	case memento.TypeLocation:
		return d.RemovedLocationIDs
	case memento.TypePolicy:
		return d.RemovedPolicyIDs
	case memento.TypeEnricher:
		return d.RemovedEnricherIDs
	case memento.TypeFeed:
		return d.RemovedFeedIDs
	case memento.TypeCatalogItem:
		return d.RemovedCatalogItemIDs
	}
	return nil
}

// IsEmpty reports whether the delta changes nothing.
func (d *Delta) IsEmpty() bool {
	return d.Len() == 0 && d.ApplicationIDs == nil
}

// Len counts changed and removed objects.
func (d *Delta) Len() int {
	n := 0
	for _, t := range memento.PersistenceOrder {
		n += len(d.Mementos(t)) + len(d.Removed(t))
	}
	return n
}

// DeltaOf returns a delta that writes every memento of agg.
func DeltaOf(agg *memento.BrooklynMemento) *Delta {
	d := &Delta{ApplicationIDs: append([]string{}, agg.ApplicationIDs()...)}
	for _, id := range agg.EntityIDs() {
		m, _ := agg.Entity(id)
		d.Entities = append(d.Entities, m)
	}
	for _, id := range agg.LocationIDs() {
		m, _ := agg.Location(id)
		d.Locations = append(d.Locations, m)
	}
	for _, id := range agg.PolicyIDs() {
		m, _ := agg.Policy(id)
		d.Policies = append(d.Policies, m)
	}
	for _, id := range agg.EnricherIDs() {
		m, _ := agg.Enricher(id)
		d.Enrichers = append(d.Enrichers, m)
	}
	for _, id := range agg.FeedIDs() {
		m, _ := agg.Feed(id)
		d.Feeds = append(d.Feeds, m)
	}
	for _, id := range agg.CatalogItemIDs() {
		m, _ := agg.CatalogItem(id)
		d.CatalogItems = append(d.CatalogItems, m)
	}
	return d
}

// errorCollector gathers the failures of parallel calls.
type errorCollector struct {
	mu  sync.Mutex
	err *multierror.Error
}

func (c *errorCollector) add(err error) {
	c.mu.Lock()
	c.err = multierror.Append(c.err, err)
	c.mu.Unlock()
}

func (c *errorCollector) result() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err.ErrorOrNil()
}

// Delta writes every changed memento and deletes every removed one. Writes
// happen before deletes, each object type in persistence order. Every
// failure is collected; the returned error is a *multierror.Error.
func (p *Persister) Delta(ctx context.Context, d *Delta) error {
	start := time.Now()
	err := p.apply(ctx, d)
	p.metrics.ObserveWrite("delta", time.Since(start), err)
	p.log.WithFields(logrus.Fields{
		"action": "delta",
		"count":  d.Len(),
		"took":   time.Since(start),
	}).Debug("persisted delta")
	return err
}

func (p *Persister) apply(ctx context.Context, d *Delta) error {
	errs := &errorCollector{}
	for _, t := range memento.PersistenceOrder {
		if err := p.writeAll(ctx, t, d.Mementos(t), errs); err != nil {
			return err
		}
	}
	if err := p.writeApplicationOrder(ctx, d.ApplicationIDs, errs); err != nil {
		return err
	}
	for _, t := range memento.PersistenceOrder {
		if err := p.deleteAll(ctx, t, d.Removed(t), errs); err != nil {
			return err
		}
	}
	return errs.result()
}

func (p *Persister) writeAll(ctx context.Context, t memento.ObjectType, ms []memento.Memento, errs *errorCollector) error {
	if len(ms) == 0 {
		return nil
	}
	var g errgroup.Group
	g.SetLimit(p.parallelism)
	for _, m := range ms {
		m := m
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			data, err := p.codec.Encode(m)
			if err != nil {
				errs.add(err)
				return nil
			}
			if _, err := p.store.Put(ctx, Key(t, m.ID()), data); err != nil {
				errs.add(fmt.Errorf("write %s %s: %w", t, m.ID(), err))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	p.metrics.AddObjects(string(t), "write", len(ms))
	return nil
}

func (p *Persister) writeApplicationOrder(ctx context.Context, ids []string, errs *errorCollector) error {
	if ids == nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(ids) == 0 {
		if _, err := p.store.Delete(ctx, ApplicationsKey); err != nil {
			errs.add(fmt.Errorf("delete application order: %w", err))
		}
		return nil
	}
	data, err := p.codec.EncodeIDs(ids)
	if err != nil {
		errs.add(err)
		return nil
	}
	if _, err := p.store.Put(ctx, ApplicationsKey, data); err != nil {
		errs.add(fmt.Errorf("write application order: %w", err))
	}
	return nil
}

func (p *Persister) deleteAll(ctx context.Context, t memento.ObjectType, ids []string, errs *errorCollector) error {
	if len(ids) == 0 {
		return nil
	}
	var g errgroup.Group
	g.SetLimit(p.parallelism)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if _, err := p.store.Delete(ctx, Key(t, id)); err != nil {
				errs.add(fmt.Errorf("delete %s %s: %w", t, id, err))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	p.metrics.AddObjects(string(t), "delete", len(ids))
	return nil
}

// Checkpoint replaces the stored snapshot with agg. Every memento of agg is
// written first; stored objects that agg no longer contains are deleted
// afterwards, so an interrupted checkpoint leaves the previous objects in
// place rather than a partial snapshot.
func (p *Persister) Checkpoint(ctx context.Context, agg *memento.BrooklynMemento) error {
	start := time.Now()
	d := DeltaOf(agg)
	err := p.checkpoint(ctx, agg, d)
	p.metrics.ObserveWrite("checkpoint", time.Since(start), err)
	entry := p.log.WithFields(logrus.Fields{
		"action": "checkpoint",
		"count":  d.Len(),
		"took":   time.Since(start),
	})
	if err != nil {
		entry.WithError(err).Error("checkpoint not persisted")
		return err
	}
	entry.Info("persisted checkpoint")
	return nil
}

func (p *Persister) checkpoint(ctx context.Context, agg *memento.BrooklynMemento, d *Delta) error {
	if err := p.apply(ctx, d); err != nil {
		return err
	}
	stale := &Delta{}
	for _, t := range memento.PersistenceOrder {
		ids, err := p.ids(ctx, t)
		if err != nil {
			return err
		}
		keep := make(map[string]bool)
		for _, m := range agg.Mementos(t) {
			keep[m.ID()] = true
		}
		for _, id := range ids {
			if keep[id] {
				continue
			}
			switch t {
			case memento.TypeEntity:
				stale.RemovedEntityIDs = append(stale.RemovedEntityIDs, id)
			case memento.TypeLocation:
				stale.RemovedLocationIDs = append(stale.RemovedLocationIDs, id)
			case memento.TypePolicy:
				stale.RemovedPolicyIDs = append(stale.RemovedPolicyIDs, id)
			case memento.TypeEnricher:
				stale.RemovedEnricherIDs = append(stale.RemovedEnricherIDs, id)
			case memento.TypeFeed:
				stale.RemovedFeedIDs = append(stale.RemovedFeedIDs, id)
			case memento.TypeCatalogItem:
				stale.RemovedCatalogItemIDs = append(stale.RemovedCatalogItemIDs, id)
			}
		}
	}
	if stale.IsEmpty() {
		return nil
	}
	return p.apply(ctx, stale)
}

// ids lists the stored ids of type t, sorted.
func (p *Persister) ids(ctx context.Context, t memento.ObjectType) ([]string, error) {
	prefix := t.SubPath() + "/"
	infos, err := p.store.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", t.SubPath(), err)
	}
	out := make([]string, 0, len(infos))
	for _, info := range infos {
		name := strings.TrimPrefix(info.Key, prefix)
		if name == "" || strings.Contains(name, "/") {
			continue
		}
		id, err := url.PathUnescape(name)
		if err != nil {
			p.log.WithField("key", info.Key).Warn("skipping object with malformed key")
			continue
		}
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

// readAll fetches every stored object of type t in parallel and hands each
// payload to fn. Results are returned in id order.
func (p *Persister) readAll(ctx context.Context, t memento.ObjectType, fn func(id string, data []byte) (any, error)) ([]any, error) {
	ids, err := p.ids(ctx, t)
	if err != nil {
		return nil, err
	}
	out := make([]any, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.parallelism)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			data, err := p.store.Get(gctx, Key(t, id))
			if err != nil {
				return fmt.Errorf("read %s %s: %w", t, id, err)
			}
			v, err := fn(id, data)
			if err != nil {
				return fmt.Errorf("%s %s: %w", t, id, err)
			}
			out[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// LoadManifest reads only the header of every stored memento.
func (p *Persister) LoadManifest(ctx context.Context) (*memento.Manifest, error) {
	mf := memento.NewManifest()
	for _, t := range memento.PersistenceOrder {
		headers, err := p.readAll(ctx, t, func(id string, data []byte) (any, error) {
			h, err := p.codec.DecodeHeader(data)
			if err != nil {
				return nil, err
			}
			if h.ID != id {
				return nil, fmt.Errorf("stored under %s but has id %s", id, h.ID)
			}
			return h, nil
		})
		if err != nil {
			return nil, err
		}
		for _, v := range headers {
			h := v.(codec.Header)
			switch t {
			case memento.TypeEntity:
				mf.Entities[h.ID] = memento.EntityManifest{ID: h.ID, Type: h.Type, Parent: h.Parent, CatalogItemID: h.CatalogItemID}
			default:
				mf.Types(t)[h.ID] = h.Type
			}
		}
	}
	p.log.WithFields(logrus.Fields{"action": "load_manifest", "count": mf.Len()}).Debug("loaded manifest")
	return mf, nil
}

// Load decodes every stored memento into an aggregate without validating
// it. Application ids are the entities flagged as top-level applications, in
// the stored application order; top-level locations are the locations
// without a parent.
func (p *Persister) Load(ctx context.Context) (*memento.BrooklynMemento, error) {
	b := memento.NewBuilder()
	var apps, topLevel []string
	for _, t := range memento.PersistenceOrder {
		ms, err := p.readAll(ctx, t, func(id string, data []byte) (any, error) {
			m, err := p.codec.Decode(t, data)
			if err != nil {
				return nil, err
			}
			if m.ID() != id {
				return nil, fmt.Errorf("stored under %s but has id %s", id, m.ID())
			}
			return m, nil
		})
		if err != nil {
			return nil, err
		}
		for _, v := range ms {
			m := v.(memento.Memento)
			b.Add(m)
			switch tm := m.(type) {
			case *memento.EntityMemento:
				if tm.IsTopLevelApp() {
					apps = append(apps, tm.ID())
				}
			case *memento.LocationMemento:
				if tm.Parent() == "" {
					topLevel = append(topLevel, tm.ID())
				}
			}
		}
	}
	order, err := p.applicationOrder(ctx)
	if err != nil {
		return nil, err
	}
	agg := b.ApplicationIDs(orderApplications(order, apps)...).TopLevelLocationIDs(topLevel...).Build()
	p.log.WithFields(logrus.Fields{
		"action": "load",
		"count":  len(agg.EntityIDs()) + len(agg.LocationIDs()),
	}).Debug("loaded snapshot")
	return agg, nil
}

// applicationOrder reads the stored application order. A store written
// without one yields nil.
func (p *Persister) applicationOrder(ctx context.Context) ([]string, error) {
	data, err := p.store.Get(ctx, ApplicationsKey)
	if errors.Is(err, objectstore.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read application order: %w", err)
	}
	return p.codec.DecodeIDs(data)
}

// orderApplications returns apps in stored order. Ids in order that are not
// loaded applications are dropped; applications order does not list follow
// in the order given.
func orderApplications(order, apps []string) []string {
	pending := make(map[string]bool, len(apps))
	for _, id := range apps {
		pending[id] = true
	}
	out := make([]string, 0, len(apps))
	for _, id := range order {
		if pending[id] {
			out = append(out, id)
			delete(pending, id)
		}
	}
	for _, id := range apps {
		if pending[id] {
			out = append(out, id)
		}
	}
	return out
}

// LoadMemento loads the stored snapshot and validates it.
func (p *Persister) LoadMemento(ctx context.Context) (*memento.BrooklynMemento, error) {
	agg, err := p.Load(ctx)
	if err != nil {
		return nil, err
	}
	if err := memento.Validate(agg); err != nil {
		return nil, err
	}
	return agg, nil
}

// LoadOne reads a single memento. A missing object yields an error wrapping
// memento.ErrNotFound.
func (p *Persister) LoadOne(ctx context.Context, t memento.ObjectType, id string) (memento.Memento, error) {
	data, err := p.store.Get(ctx, Key(t, id))
	if errors.Is(err, objectstore.ErrNotFound) {
		return nil, fmt.Errorf("%s %s: %w", t, id, memento.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return p.codec.Decode(t, data)
}

// Find looks id up under every object type, in persistence order.
func (p *Persister) Find(ctx context.Context, id string) (memento.Memento, error) {
	for _, t := range memento.PersistenceOrder {
		m, err := p.LoadOne(ctx, t, id)
		if errors.Is(err, memento.ErrNotFound) {
			continue
		}
		return m, err
	}
	return nil, fmt.Errorf("%s: %w", id, memento.ErrNotFound)
}
