package donsched

import (
	"errors"
	"fmt"
)

func (s *Scheduler[T]) verify() error {
	var errs []error
	for _, e := range s.entities {
		if e != nil {
			errs = append(errs, s.verifyEntity(e)...)
		}
	}
	for _, q := range s.queues {
		if q != nil {
			errs = append(errs, s.verifyQueue(q)...)
		}
	}
	return errors.Join(errs...)
}

// checkDequeue verifies the queue and its new holder after a dequeue and
// reports every failure.
func (s *Scheduler[T]) checkDequeue(q *queue, winner *entity[T]) {
	errs := append(s.verifyQueue(q), s.verifyEntity(winner)...)
	for _, err := range errs {
		s.logger.Error(err, "consistency check failed", "queue", q.id, "entity", winner.value)
		if s.metrics != nil {
			s.metrics.OnInconsistency(err)
		}
		s.inconsistency(err)
	}
}

func (s *Scheduler[T]) verifyEntity(e *entity[T]) []error {
	var errs []error
	fail := func(q QueueID, format string, args ...any) {
		errs = append(errs, &ConsistencyError{Entity: e.value, Queue: q, Reason: fmt.Sprintf(format, args...)})
	}

	if live := e.live(s.policy.policy); e.effective != live {
		fail(noQueue, "cached effective priority %d, donations give %d", e.effective, live)
	}
	if e.effective < e.priority {
		fail(noQueue, "effective priority %d below priority %d", e.effective, e.priority)
	}

	if s.policy.policy == policyPriority {
		switch rec, ok := e.received[e.bestDonor]; {
		case e.bestDonor == noEntity && len(e.received) > 0:
			fail(noQueue, "no best donor cached for %d donations", len(e.received))
		case e.bestDonor == noEntity && e.bestOffer != noOffer:
			fail(noQueue, "best offer %d cached without a best donor", e.bestOffer)
		case e.bestDonor != noEntity && !ok:
			fail(noQueue, "best donor %d has no donation record", e.bestDonor)
		case e.bestDonor != noEntity && rec.amount != e.bestOffer:
			fail(noQueue, "best offer %d does not match donation %d", e.bestOffer, rec.amount)
		}
		if _, offer := e.maxOffer(); e.bestDonor != noEntity && offer != e.bestOffer {
			fail(noQueue, "best offer %d is not the maximum donation %d", e.bestOffer, offer)
		}
	}

	for _, d := range sortedKeys(e.received) {
		rec := e.received[d]
		donor := s.entities[d]
		if donor == nil {
			fail(rec.origin, "donation from forgotten entity %d", d)
			continue
		}
		if _, ok := donor.donatedTo[e.id]; !ok {
			fail(rec.origin, "donor %v does not know it donates", donor.value)
		}
		if q := s.lookupQueue(rec.origin); q == nil || !q.transfer {
			fail(rec.origin, "donation from %v through a queue that does not transfer priority", donor.value)
		}
		if rec.amount != donor.effective {
			fail(rec.origin, "donation %d from %v does not match its effective priority %d", rec.amount, donor.value, donor.effective)
		}
	}

	for _, d := range sortedKeys(e.donatedTo) {
		donee := s.entities[d]
		if donee == nil {
			fail(noQueue, "donates to forgotten entity %d", d)
			continue
		}
		if _, ok := donee.received[e.id]; !ok {
			fail(noQueue, "donates to %v which holds no record of it", donee.value)
		}
		if s.donationPath(e, d, noQueue) == nil {
			fail(noQueue, "donates to %v without waiting on a queue it holds", donee.value)
		}
	}

	for _, id := range sortedKeys(e.waiting) {
		q := s.lookupQueue(id)
		if q == nil {
			fail(id, "waits on a deleted queue")
			continue
		}
		elem := e.waiting[id]
		if got, _ := elem.Value.(entityID); got != e.id {
			fail(id, "wait element holds handle %d", got)
		}
		if b, ok := q.waiters.(*priorityBuckets); ok {
			if i := b.bucketOf(elem); i != e.effective {
				fail(id, "in bucket %d with effective priority %d", i, e.effective)
			}
		}
	}

	for _, id := range sortedKeys(e.holding) {
		if q := s.lookupQueue(id); q == nil || q.holder != e.id {
			fail(id, "believes it holds a queue it does not hold")
		}
	}
	return errs
}

func (s *Scheduler[T]) verifyQueue(q *queue) []error {
	var errs []error
	fail := func(v any, format string, args ...any) {
		errs = append(errs, &ConsistencyError{Entity: v, Queue: q.id, Reason: fmt.Sprintf(format, args...)})
	}

	ids := q.waiters.ids()
	if len(ids) != q.waiters.len() {
		fail(nil, "%d waiting entities counted as %d", len(ids), q.waiters.len())
	}

	var holder *entity[T]
	if q.holder != noEntity {
		holder = s.entities[q.holder]
		if _, ok := holder.holding[q.id]; !ok {
			fail(holder.value, "holder does not know it holds the queue")
		}
	}

	for _, id := range ids {
		e := s.entities[id]
		if e == nil {
			fail(nil, "forgotten entity %d still waiting", id)
			continue
		}
		if _, ok := e.waiting[q.id]; !ok {
			fail(e.value, "queue holds an entity that does not think it waits")
		}
		if q.transfer && holder != nil && holder != e {
			if _, ok := holder.received[e.id]; !ok {
				fail(e.value, "waiting without donating to holder %v", holder.value)
			}
		}
	}

	if p, ok := q.waiters.(*lotteryPool); ok && p.winner != noEntity {
		if e := s.entities[p.winner]; e == nil {
			fail(nil, "cached winner %d forgotten", p.winner)
		} else if _, ok := e.waiting[q.id]; !ok {
			fail(e.value, "cached winner no longer waiting")
		}
	}

	if !q.transfer {
		for _, e := range s.entities {
			if e == nil {
				continue
			}
			for _, rec := range e.received {
				if rec.origin == q.id {
					fail(e.value, "received a donation through a queue that does not transfer priority")
				}
			}
		}
	}
	return errs
}

func (s *Scheduler[T]) lookupQueue(id QueueID) *queue {
	if id < 0 || int(id) >= len(s.queues) {
		return nil
	}
	return s.queues[id]
}
