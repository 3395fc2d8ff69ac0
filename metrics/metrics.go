// Package metrics exports scheduling events of a [donsched.Scheduler] as
// Prometheus metrics.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/tomasbasham/donsched"
)

const namespace = "donsched"

// Hook implements [donsched.MetricsHook]. Queue handles are used as label
// values; entity values are never exported.
type Hook[T comparable] struct {
	WaitsTotal           *prometheus.CounterVec
	DequeuesTotal        *prometheus.CounterVec
	RemovalsTotal        *prometheus.CounterVec
	DonationsTotal       *prometheus.CounterVec
	RevocationsTotal     *prometheus.CounterVec
	Waiting              *prometheus.GaugeVec
	PriorityChanges      prometheus.Counter
	EffectivePriority    prometheus.Histogram
	InconsistenciesTotal prometheus.Counter
}

var _ donsched.MetricsHook[string] = (*Hook[string])(nil)

// NewHook creates a [Hook] and registers its collectors with reg.
func NewHook[T comparable](reg prometheus.Registerer) *Hook[T] {
	factory := promauto.With(reg)
	queue := []string{"queue"}

	return &Hook[T]{
		WaitsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "waits_total",
				Help:      "Total number of entities that started waiting on a queue",
			},
			queue,
		),
		DequeuesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dequeues_total",
				Help:      "Total number of entities selected as the next holder of a queue",
			},
			queue,
		),
		RemovalsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "removals_total",
				Help:      "Total number of entities removed from a queue without being selected",
			},
			queue,
		),
		DonationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "donations_total",
				Help:      "Total number of priority donations made or refreshed through a queue",
			},
			queue,
		),
		RevocationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "revocations_total",
				Help:      "Total number of priority donations revoked",
			},
			queue,
		),
		Waiting: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "waiting",
				Help:      "Current number of entities waiting on a queue",
			},
			queue,
		),
		PriorityChanges: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "effective_priority_changes_total",
				Help:      "Total number of effective priority changes",
			},
		),
		EffectivePriority: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "effective_priority",
				Help:      "Effective priorities observed when they change",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
			},
		),
		InconsistenciesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "inconsistencies_total",
				Help:      "Total number of failed consistency checks",
			},
		),
	}
}

func label(q donsched.QueueID) string {
	return strconv.Itoa(int(q))
}

func (h *Hook[T]) OnWait(q donsched.QueueID, _ T) {
	h.WaitsTotal.WithLabelValues(label(q)).Inc()
	h.Waiting.WithLabelValues(label(q)).Inc()
}

func (h *Hook[T]) OnDequeue(q donsched.QueueID, _ T) {
	h.DequeuesTotal.WithLabelValues(label(q)).Inc()
	h.Waiting.WithLabelValues(label(q)).Dec()
}

func (h *Hook[T]) OnRemove(q donsched.QueueID, _ T) {
	h.RemovalsTotal.WithLabelValues(label(q)).Inc()
	h.Waiting.WithLabelValues(label(q)).Dec()
}

func (h *Hook[T]) OnDonate(q donsched.QueueID, _, _ T, _ int) {
	h.DonationsTotal.WithLabelValues(label(q)).Inc()
}

func (h *Hook[T]) OnRevoke(q donsched.QueueID, _, _ T) {
	h.RevocationsTotal.WithLabelValues(label(q)).Inc()
}

func (h *Hook[T]) OnEffectivePriority(_ T, _, to int) {
	h.PriorityChanges.Inc()
	h.EffectivePriority.Observe(float64(to))
}

func (h *Hook[T]) OnInconsistency(error) {
	h.InconsistenciesTotal.Inc()
}
