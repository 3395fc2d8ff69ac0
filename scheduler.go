package donsched

import (
	"fmt"
	"math/rand/v2"
	"sync"

	"github.com/go-logr/logr"
)

// MetricsHook defines hooks for monitoring scheduling events. Hooks run inside
// the exclusive section and must not call back into the [Scheduler].
type MetricsHook[T any] interface {
	OnWait(q QueueID, value T)
	OnDequeue(q QueueID, value T)
	OnRemove(q QueueID, value T)
	OnDonate(q QueueID, donor, donee T, amount int)
	OnRevoke(q QueueID, donor, donee T)
	OnEffectivePriority(value T, from, to int)
	OnInconsistency(err error)
}

// Scheduler is the scheduling core shared by every queue it creates. It
// supports the following operations:
//
//   - Priority get/set and effective priority queries
//   - Resource queues with or without priority transfer
//   - Transitive priority donation from waiting entities to resource holders
//   - Revocation of donations once the resource that justified them is handed
//     over
//   - Consistency checks of the donation graph
//
// Entities are identified by the caller's value of type T and are created on
// their first scheduling interaction with the default priority of the policy.
//
// Every operation runs inside the single exclusive section returned by
// [Scheduler.Lock]. Nothing inside the section blocks or yields.
type Scheduler[T comparable] struct {
	mu sync.Mutex

	policy        Policy
	bounds        Bounds
	logger        logr.Logger
	metrics       MetricsHook[T]
	rand          RandSource
	inconsistency func(error)

	ids      map[T]entityID
	entities []*entity[T]
	free     []entityID
	queues   []*queue
}

// New creates a new [Scheduler] for the given policy with the given options.
// New panics if the policy is not [Policies.Priority] or [Policies.Lottery].
func New[T comparable](p Policy, opts ...Option[T]) *Scheduler[T] {
	if !p.IsValid() {
		panic(fmt.Sprintf("donsched: unknown policy %d", p.policy))
	}

	o := &Options[T]{
		Logger: logr.Discard(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.Rand == nil {
		o.Rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	return &Scheduler[T]{
		policy:        p,
		bounds:        p.Bounds(),
		logger:        o.Logger.WithName("donsched").WithValues("policy", p.String()),
		metrics:       o.Metrics,
		rand:          o.Rand,
		inconsistency: o.Inconsistency,
		ids:           make(map[T]entityID),
	}
}

// Policy returns the policy of the scheduler and of all its queues.
func (s *Scheduler[T]) Policy() Policy {
	return s.policy
}

// Bounds returns the priority bounds enforced by the scheduler.
func (s *Scheduler[T]) Bounds() Bounds {
	return s.bounds
}

// Lock enters the exclusive scheduling section, blocking until no other
// section is held. The returned [Section] must be released with
// [Section.Unlock].
func (s *Scheduler[T]) Lock() *Section[T] {
	s.mu.Lock()
	return &Section[T]{s: s}
}

// Do runs fn inside the exclusive scheduling section. The section is released
// when fn returns unless fn released it already.
func (s *Scheduler[T]) Do(fn func(*Section[T])) {
	sec := s.Lock()
	defer func() {
		if !sec.released {
			sec.Unlock()
		}
	}()
	fn(sec)
}

// entity returns the state of v, creating it on first use.
func (s *Scheduler[T]) entity(v T) *entity[T] {
	if id, ok := s.ids[v]; ok {
		return s.entities[id]
	}

	var id entityID
	if n := len(s.free); n > 0 {
		id, s.free = s.free[n-1], s.free[:n-1]
	} else {
		id = entityID(len(s.entities))
		s.entities = append(s.entities, nil)
	}

	e := newEntity(id, v, s.bounds.Default)
	s.entities[id] = e
	s.ids[v] = id
	return e
}

// lookup returns the state of v, or nil if v has never been scheduled.
func (s *Scheduler[T]) lookup(v T) *entity[T] {
	if id, ok := s.ids[v]; ok {
		return s.entities[id]
	}
	return nil
}

func (s *Scheduler[T]) queue(op string, id QueueID) *queue {
	if id < 0 || int(id) >= len(s.queues) || s.queues[id] == nil {
		violation(op, ErrUnknownQueue, "queue %d", id)
	}
	return s.queues[id]
}

func (s *Scheduler[T]) setPriority(e *entity[T], p int) error {
	if !s.bounds.Contains(p) {
		return fmt.Errorf("%w: %d not in [%d, %d]", ErrPriorityOutOfRange, p, s.bounds.Min, s.bounds.Max)
	}
	if e.priority == p {
		return nil
	}

	s.logger.V(1).Info("setting priority", "entity", e.value, "from", e.priority, "to", p)
	e.priority = p
	s.refresh(e)
	return nil
}

func (s *Scheduler[T]) forget(v T) {
	id, ok := s.ids[v]
	if !ok {
		return
	}
	if e := s.entities[id]; !e.idle() {
		violation("Forget", ErrEntityBusy, "%v waits on %d, holds %d queues", v, len(e.waiting), len(e.holding))
	}
	delete(s.ids, v)
	s.entities[id] = nil
	s.free = append(s.free, id)
}

func (s *Scheduler[T]) deleteQueue(q *queue) {
	if n := q.waiters.len(); n != 0 {
		violation("DeleteQueue", ErrQueueNotEmpty, "queue %d has %d waiting", q.id, n)
	}
	s.releaseHolder(q)
	s.queues[q.id] = nil
}
