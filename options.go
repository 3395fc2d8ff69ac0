package donsched

import (
	"math/rand/v2"

	"github.com/go-logr/logr"
)

// RandSource is the random source used by the lottery policy to draw winners.
// [*rand.Rand] satisfies it.
type RandSource interface {
	Float64() float64
}

// Options holds configuration options for the [Scheduler].
type Options[T comparable] struct {
	Logger        logr.Logger
	Metrics       MetricsHook[T]
	Rand          RandSource
	Inconsistency func(error)
}

// Option is a function that configures [Options].
type Option[T comparable] func(*Options[T])

// WithLogger sets the logger for the [Scheduler]. Scheduling events are logged
// at V(1).
func WithLogger[T comparable](logger logr.Logger) Option[T] {
	return func(o *Options[T]) {
		o.Logger = logger
	}
}

// WithMetricsHook sets the metrics hook for the [Scheduler].
func WithMetricsHook[T comparable](hook MetricsHook[T]) Option[T] {
	return func(o *Options[T]) {
		o.Metrics = hook
	}
}

// WithRand sets the random source used by lottery queues.
func WithRand[T comparable](r RandSource) Option[T] {
	return func(o *Options[T]) {
		o.Rand = r
	}
}

// WithSeed seeds a PCG random source for lottery queues, making draws
// reproducible.
func WithSeed[T comparable](seed uint64) Option[T] {
	return func(o *Options[T]) {
		o.Rand = rand.New(rand.NewPCG(seed, seed))
	}
}

// WithConsistencyChecks enables consistency checks after every dequeue. Each
// failure is reported to fn, logged, and passed to the metrics hook. A nil fn
// still enables the checks.
func WithConsistencyChecks[T comparable](fn func(error)) Option[T] {
	return func(o *Options[T]) {
		if fn == nil {
			fn = func(error) {}
		}
		o.Inconsistency = fn
	}
}
