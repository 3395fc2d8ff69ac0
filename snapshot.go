package donsched

import (
	"fmt"
	"strings"
)

// EntitySnapshot is a copy of one entity's scheduling state.
type EntitySnapshot[T comparable] struct {
	Value             T             `json:"value"`
	Priority          int           `json:"priority"`
	EffectivePriority int           `json:"effectivePriority"`
	Donations         []Donation[T] `json:"donations,omitempty"`
	DonatedTo         []T           `json:"donatedTo,omitempty"`
	Waiting           []QueueID     `json:"waiting,omitempty"`
	Holding           []QueueID     `json:"holding,omitempty"`
}

func (e EntitySnapshot[T]) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%v(%d/%d)", e.Value, e.Priority, e.EffectivePriority)
	for _, d := range e.Donations {
		fmt.Fprintf(&b, " <-%v:%d@%d", d.Donor, d.Amount, d.Origin)
	}
	for _, d := range e.DonatedTo {
		fmt.Fprintf(&b, " ->%v", d)
	}
	return b.String()
}

// QueueSnapshot is a copy of one queue's state. Waiters are listed in service
// order for the priority policy and in arrival order for the lottery policy.
type QueueSnapshot[T comparable] struct {
	ID       QueueID             `json:"id"`
	Policy   Policy              `json:"policy"`
	Transfer bool                `json:"transfer"`
	Holder   *T                  `json:"holder,omitempty"`
	Waiters  []EntitySnapshot[T] `json:"waiters,omitempty"`
}

func (q QueueSnapshot[T]) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "queue %d (%s) transfer=%t holder=", q.ID, q.Policy, q.Transfer)
	if q.Holder != nil {
		fmt.Fprintf(&b, "%v", *q.Holder)
	} else {
		b.WriteString("none")
	}
	for _, w := range q.Waiters {
		fmt.Fprintf(&b, " -->%v(%d/%d)", w.Value, w.Priority, w.EffectivePriority)
	}
	return b.String()
}

func (s *Scheduler[T]) donations(e *entity[T]) []Donation[T] {
	out := make([]Donation[T], 0, len(e.received))
	for _, d := range sortedKeys(e.received) {
		rec := e.received[d]
		out = append(out, Donation[T]{
			Donor:  s.entities[d].value,
			Amount: rec.amount,
			Origin: rec.origin,
		})
	}
	return out
}

func (s *Scheduler[T]) snapshotEntity(e *entity[T]) EntitySnapshot[T] {
	snap := EntitySnapshot[T]{
		Value:             e.value,
		Priority:          e.priority,
		EffectivePriority: e.effective,
		Waiting:           sortedKeys(e.waiting),
		Holding:           sortedKeys(e.holding),
	}
	if len(e.received) > 0 {
		snap.Donations = s.donations(e)
	}
	for _, d := range sortedKeys(e.donatedTo) {
		snap.DonatedTo = append(snap.DonatedTo, s.entities[d].value)
	}
	return snap
}

func (s *Scheduler[T]) snapshotQueue(q *queue) QueueSnapshot[T] {
	snap := QueueSnapshot[T]{
		ID:       q.id,
		Policy:   s.policy,
		Transfer: q.transfer,
	}
	if q.holder != noEntity {
		v := s.entities[q.holder].value
		snap.Holder = &v
	}
	for _, id := range q.waiters.ids() {
		snap.Waiters = append(snap.Waiters, s.snapshotEntity(s.entities[id]))
	}
	return snap
}
