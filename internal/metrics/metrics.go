// Package metrics exposes Prometheus instruments for memento persistence.
//
// A nil *Persistence is valid and records nothing, so components can take one
// unconditionally.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "brooklyn"

const subsystem = "persistence"

// Outcome labels.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Persistence holds the persistence instruments.
type Persistence struct {
	// Writes counts checkpoint and delta writes. Labels: kind (checkpoint,
	// delta), outcome.
	Writes *prometheus.CounterVec
	// WriteDuration observes write latency. Labels: kind.
	WriteDuration *prometheus.HistogramVec
	// Objects counts mementos written or deleted. Labels: object_type, op
	// (write, delete).
	Objects *prometheus.CounterVec
	// Rebinds counts rebind attempts. Labels: outcome.
	Rebinds *prometheus.CounterVec
	// LostValues counts config values persisted as nil because they were
	// pending or failed.
	LostValues prometheus.Counter
	// Pending is the number of changed objects waiting for the next delta.
	Pending prometheus.Gauge
}

// New creates the instruments and registers them with reg. A nil reg leaves
// them unregistered, which tests use for isolation.
func New(reg prometheus.Registerer) *Persistence {
	p := &Persistence{
		Writes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "writes_total",
			Help:      "Checkpoint and delta writes by kind and outcome.",
		}, []string{"kind", "outcome"}),
		WriteDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "write_duration_seconds",
			Help:      "Time spent writing a checkpoint or delta.",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"kind"}),
		Objects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "objects_total",
			Help:      "Mementos written or deleted by object type.",
		}, []string{"object_type", "op"}),
		Rebinds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "rebinds_total",
			Help:      "Rebind attempts by outcome.",
		}, []string{"outcome"}),
		LostValues: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "lost_values_total",
			Help:      "Config values persisted as absent because they were pending or failed.",
		}),
		Pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "pending_changes",
			Help:      "Changed objects waiting for the next delta.",
		}),
	}
	if reg != nil {
		reg.MustRegister(p.Writes, p.WriteDuration, p.Objects, p.Rebinds, p.LostValues, p.Pending)
	}
	return p
}

func outcome(err error) string {
	if err != nil {
		return OutcomeFailure
	}
	return OutcomeSuccess
}

// ObserveWrite records one checkpoint or delta write.
func (p *Persistence) ObserveWrite(kind string, took time.Duration, err error) {
	if p == nil {
		return
	}
	p.Writes.WithLabelValues(kind, outcome(err)).Inc()
	p.WriteDuration.WithLabelValues(kind).Observe(took.Seconds())
}

// AddObjects records n mementos of objectType handled by op.
func (p *Persistence) AddObjects(objectType, op string, n int) {
	if p == nil || n == 0 {
		return
	}
	p.Objects.WithLabelValues(objectType, op).Add(float64(n))
}

// ObserveRebind records a rebind attempt.
func (p *Persistence) ObserveRebind(err error) {
	if p == nil {
		return
	}
	p.Rebinds.WithLabelValues(outcome(err)).Inc()
}

// ValueLost counts one config value lost to a pending or failed task.
func (p *Persistence) ValueLost() {
	if p == nil {
		return
	}
	p.LostValues.Inc()
}

// SetPending sets the pending change gauge.
func (p *Persistence) SetPending(n int) {
	if p == nil {
		return
	}
	p.Pending.Set(float64(n))
}
