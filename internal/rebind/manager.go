package rebind

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"brooklyn/internal/config"
	"brooklyn/internal/generator"
	"brooklyn/internal/livegraph"
	"brooklyn/internal/metrics"
	"brooklyn/internal/persister"
	"brooklyn/pkg/memento"
)

// Options configures a Manager.
type Options struct {
	Period           time.Duration
	MaxAttempts      int
	PersistPolicies  bool
	PersistEnrichers bool
	PersistFeeds     bool
	// Strict makes any rebind problem fatal. Integrity errors are always
	// fatal.
	Strict bool
	// Registry lists the reconstructable types; nil accepts every type.
	Registry *Registry
	Logger   logrus.FieldLogger
	Metrics  *metrics.Persistence
}

// OptionsFromConfig maps the rebind section of the process configuration.
func OptionsFromConfig(c config.Rebind) Options {
	return Options{
		Period:           c.Period,
		MaxAttempts:      c.MaxAttempts,
		PersistPolicies:  c.PersistPolicies,
		PersistEnrichers: c.PersistEnrichers,
		PersistFeeds:     c.PersistFeeds,
		Strict:           c.Strict,
	}
}

// Manager owns persistence for one node: it checkpoints the live graph,
// rebinds it from storage, and runs periodic delta persistence while the
// node is master.
type Manager struct {
	graph     *livegraph.Graph
	persister *persister.Persister
	gen       *generator.Generator
	registry  *Registry
	log       logrus.FieldLogger
	metrics   *metrics.Persistence
	opts      Options

	mu       sync.Mutex
	running  bool
	periodic *PeriodicPersister
	handler  *ExceptionHandler
}

type lossRecorder struct {
	log     logrus.FieldLogger
	metrics *metrics.Persistence
}

func (r lossRecorder) ValueLost(objectID, key string, cause error) {
	r.metrics.ValueLost()
	r.log.WithFields(logrus.Fields{"id": objectID, "key": key}).WithError(cause).Warn("config value persisted as nil")
}

// NewManager builds a manager over g and p.
func NewManager(g *livegraph.Graph, p *persister.Persister, opts Options) *Manager {
	log := opts.Logger
	if log == nil {
		log = discardLogger()
	}
	reg := opts.Registry
	if reg == nil {
		reg = OpenRegistry()
	}
	m := &Manager{
		graph:     g,
		persister: p,
		registry:  reg,
		log:       log,
		metrics:   opts.Metrics,
		opts:      opts,
		handler:   NewExceptionHandler(opts.Strict, log),
	}
	m.gen = generator.New(
		generator.WithLossRecorder(lossRecorder{log: log, metrics: opts.Metrics}),
		generator.WithPolicies(opts.PersistPolicies),
		generator.WithEnrichers(opts.PersistEnrichers),
		generator.WithFeeds(opts.PersistFeeds),
	)
	m.periodic = m.newPeriodic()
	return m
}

func (m *Manager) newPeriodic() *PeriodicPersister {
	return NewPeriodicPersister(m.gen, m.persister,
		WithPeriod(m.opts.Period),
		WithMaxAttempts(m.opts.MaxAttempts),
		WithLogger(m.log),
		WithMetrics(m.metrics),
	)
}

// Generator returns the memento generator used for every write.
func (m *Manager) Generator() *generator.Generator { return m.gen }

// Running reports whether the node is master and persisting.
func (m *Manager) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Problems returns what the last rebind tolerated in lenient mode.
func (m *Manager) Problems() []error { return m.handler.Problems() }

// Checkpoint writes a full snapshot of the live graph, replacing whatever is
// stored, and makes it the base for subsequent deltas. A write failure is
// always returned, whatever the exception handler's mode; the store may then
// hold a mix of old and new objects until the next successful checkpoint.
func (m *Manager) Checkpoint(ctx context.Context) error {
	agg, err := m.gen.BrooklynMemento(m.graph)
	if err != nil {
		return fmt.Errorf("checkpoint: %w", err)
	}
	m.mu.Lock()
	periodic := m.periodic
	m.mu.Unlock()
	if err := periodic.WaitForPendingComplete(ctx); err != nil {
		m.log.WithError(err).WithField("action", "checkpoint").Warn("pending delta not written before checkpoint")
	}
	if err := m.persister.Checkpoint(ctx, agg); err != nil {
		return fmt.Errorf("checkpoint: %w", err)
	}
	periodic.Reset(agg)
	return nil
}

// checkTypes fails on the first stored object whose type the registry does
// not know, unless the handler is lenient.
func (m *Manager) checkTypes(mf *memento.Manifest) error {
	for _, t := range memento.PersistenceOrder {
		types := mf.Types(t)
		for id, typeName := range types {
			if m.registry.Known(t, typeName) {
				continue
			}
			if err := m.handler.OnUnknownType(&UnknownTypeError{Object: t, ID: id, Type: typeName}); err != nil {
				return err
			}
		}
	}
	return nil
}

// Rebind loads the stored snapshot and reconstructs it into the live graph,
// which is expected to be empty. It fails without touching the graph when
// the snapshot is inconsistent or, in strict mode, when a stored type is
// unknown.
func (m *Manager) Rebind(ctx context.Context) error {
	start := time.Now()
	err := m.rebind(ctx)
	m.metrics.ObserveRebind(err)
	fields := logrus.Fields{"action": "rebind", "took": time.Since(start)}
	if err != nil {
		m.log.WithFields(fields).WithError(err).Error("rebind failed")
		return err
	}
	if problems := m.handler.Problems(); len(problems) > 0 {
		m.log.WithFields(fields).WithField("count", len(problems)).Warn("rebind completed with problems")
	} else {
		m.log.WithFields(fields).Info("rebind completed")
	}
	return nil
}

func (m *Manager) rebind(ctx context.Context) error {
	m.handler.Reset()
	mf, err := m.persister.LoadManifest(ctx)
	if err != nil {
		return fmt.Errorf("rebind: load manifest: %w", err)
	}
	if err := m.checkTypes(mf); err != nil {
		return fmt.Errorf("rebind: %w", err)
	}
	agg, err := m.persister.Load(ctx)
	if err != nil {
		return fmt.Errorf("rebind: load: %w", err)
	}
	if err := memento.Validate(agg); err != nil {
		return fmt.Errorf("rebind: %w", err)
	}
	resolver := memento.NewKeyResolver(m.registry.LookupKey)
	if _, err := Reconstruct(m.graph, agg, resolver, m.handler); err != nil {
		if isIntegrity(err) {
			return fmt.Errorf("rebind: %w", err)
		}
		return fmt.Errorf("rebind: reconstruct: %w", err)
	}
	m.mu.Lock()
	periodic := m.periodic
	m.mu.Unlock()
	periodic.Reset(agg)
	return nil
}

// SetMaster promotes or demotes this node. Promotion rebinds from storage
// and starts periodic persistence; demotion flushes outstanding changes and
// stops it. Setting the current state again is a no-op.
func (m *Manager) SetMaster(ctx context.Context, master bool) error {
	m.mu.Lock()
	running := m.running
	m.mu.Unlock()
	if master == running {
		return nil
	}
	if master {
		return m.promote(ctx)
	}
	return m.demote(ctx)
}

func (m *Manager) promote(ctx context.Context) error {
	if err := m.Rebind(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	periodic := m.periodic
	m.mu.Unlock()

	m.graph.AddListener(periodic)
	if err := periodic.Start(ctx); err != nil {
		m.graph.RemoveListener(periodic)
		return err
	}
	m.mu.Lock()
	m.running = true
	m.mu.Unlock()
	m.log.WithField("action", "promote").Info("node is master")
	return nil
}

func (m *Manager) demote(ctx context.Context) error {
	m.mu.Lock()
	periodic := m.periodic
	m.running = false
	m.periodic = m.newPeriodic()
	m.mu.Unlock()

	m.graph.RemoveListener(periodic)
	err := periodic.Stop(ctx)
	if errors.Is(err, ErrNotRunning) {
		err = nil
	}
	m.log.WithField("action", "demote").Info("node is no longer master")
	return err
}

// WaitForPendingComplete writes every change collected so far.
func (m *Manager) WaitForPendingComplete(ctx context.Context) error {
	m.mu.Lock()
	periodic := m.periodic
	m.mu.Unlock()
	return periodic.WaitForPendingComplete(ctx)
}
