package donsched

// Section is the exclusive scheduling section of a [Scheduler]. Holding a
// Section is the only way to observe or mutate scheduling state, so every
// operation runs atomically with respect to every other. A Section must not be
// shared between goroutines and panics once released.
type Section[T comparable] struct {
	s        *Scheduler[T]
	released bool
}

// Unlock leaves the exclusive section.
func (x *Section[T]) Unlock() {
	x.sched("Unlock")
	x.released = true
	x.s.mu.Unlock()
}

func (x *Section[T]) sched(op string) *Scheduler[T] {
	if x.released {
		violation(op, ErrSectionReleased, "")
	}
	return x.s
}

// NewQueue creates a resource queue. When transfer is false no donation ever
// flows through the queue. Every queue uses the scheduler's policy: the
// priority bounds and the effective priority of an entity are shared by all
// queues it meets, so the policy cannot differ between them. Create one
// [Scheduler] per policy instead.
func (x *Section[T]) NewQueue(transfer bool) QueueID {
	return x.sched("NewQueue").newQueue(transfer).id
}

// DeleteQueue destroys a queue that has no waiting entities, revoking any
// donation its holder still owes to it. The handle must not be used again.
func (x *Section[T]) DeleteQueue(q QueueID) {
	s := x.sched("DeleteQueue")
	s.deleteQueue(s.queue("DeleteQueue", q))
}

// WaitForAccess adds v to the queue and, if the queue has a holder other than
// v and transfers priority, donates v's effective priority to the holder. It
// panics if v already waits on the queue.
func (x *Section[T]) WaitForAccess(q QueueID, v T) {
	s := x.sched("WaitForAccess")
	s.waitForAccess(s.queue("WaitForAccess", q), s.entity(v))
}

// Acquire hands the resource directly to v. The queue must have no waiting
// entities.
func (x *Section[T]) Acquire(q QueueID, v T) {
	s := x.sched("Acquire")
	s.acquire(s.queue("Acquire", q), s.entity(v))
}

// NextThread removes and returns the next entity of the queue and makes it the
// resource holder. Donations to the previous holder that nothing else
// justifies are revoked. If the queue is empty the holder is cleared and
// NextThread returns false.
func (x *Section[T]) NextThread(q QueueID) (T, bool) {
	s := x.sched("NextThread")
	e, ok := s.nextThread(s.queue("NextThread", q))
	if !ok {
		var zero T
		return zero, false
	}
	return e.value, true
}

// PickNextThread returns the entity NextThread would select without removing
// it. A lottery draw made here is kept for the following NextThread unless the
// queue's membership or a waiting entity's weight changes first.
func (x *Section[T]) PickNextThread(q QueueID) (T, bool) {
	s := x.sched("PickNextThread")
	id := s.pick(s.queue("PickNextThread", q))
	if id == noEntity {
		var zero T
		return zero, false
	}
	return s.entities[id].value, true
}

// ReleaseHolder clears the holder of the queue without selecting a new one.
func (x *Section[T]) ReleaseHolder(q QueueID) {
	s := x.sched("ReleaseHolder")
	s.releaseHolder(s.queue("ReleaseHolder", q))
}

// Remove takes v off the queue without selecting it, for example when the
// primitive built on the queue times out. It returns false if v was not
// waiting on the queue.
func (x *Section[T]) Remove(q QueueID, v T) bool {
	s := x.sched("Remove")
	qu := s.queue("Remove", q)
	e := s.lookup(v)
	if e == nil {
		return false
	}
	return s.remove(qu, e)
}

// Holder returns the resource holder of the queue.
func (x *Section[T]) Holder(q QueueID) (T, bool) {
	s := x.sched("Holder")
	qu := s.queue("Holder", q)
	if qu.holder == noEntity {
		var zero T
		return zero, false
	}
	return s.entities[qu.holder].value, true
}

// Len returns the number of entities waiting on the queue.
func (x *Section[T]) Len(q QueueID) int {
	s := x.sched("Len")
	return s.queue("Len", q).waiters.len()
}

// Transfer reports whether the queue transfers priority.
func (x *Section[T]) Transfer(q QueueID) bool {
	s := x.sched("Transfer")
	return s.queue("Transfer", q).transfer
}

// GetPriority returns v's own priority. An entity never scheduled has the
// default priority of the policy.
func (x *Section[T]) GetPriority(v T) int {
	s := x.sched("GetPriority")
	if e := s.lookup(v); e != nil {
		return e.priority
	}
	return s.bounds.Default
}

// SetPriority sets v's own priority. If v's effective priority changes, v
// moves to the matching bucket of every queue it waits on and the change is
// propagated to every entity it donates to. It returns an error wrapping
// [ErrPriorityOutOfRange] if p is outside the policy bounds.
func (x *Section[T]) SetPriority(v T, p int) error {
	s := x.sched("SetPriority")
	return s.setPriority(s.entity(v), p)
}

// IncreasePriority raises v's priority by one. It returns false if v is
// already at the maximum.
func (x *Section[T]) IncreasePriority(v T) bool {
	s := x.sched("IncreasePriority")
	e := s.entity(v)
	if e.priority == s.bounds.Max {
		return false
	}
	return s.setPriority(e, e.priority+1) == nil
}

// DecreasePriority lowers v's priority by one. It returns false if v is
// already at the minimum.
func (x *Section[T]) DecreasePriority(v T) bool {
	s := x.sched("DecreasePriority")
	e := s.entity(v)
	if e.priority == s.bounds.Min {
		return false
	}
	return s.setPriority(e, e.priority-1) == nil
}

// GetEffectivePriority returns v's priority after donations: the maximum of
// its own priority and every donation under the priority policy, their sum
// under the lottery policy.
func (x *Section[T]) GetEffectivePriority(v T) int {
	s := x.sched("GetEffectivePriority")
	if e := s.lookup(v); e != nil {
		return e.effective
	}
	return s.bounds.Default
}

// ReceiveOffer records a donation of amount from donor to donee through the
// queue. The queue must transfer priority, donor must wait on it, donee must
// hold it and amount must be donor's effective priority. An existing donation
// from donor is replaced.
func (x *Section[T]) ReceiveOffer(donee T, amount int, donor T, q QueueID) {
	s := x.sched("ReceiveOffer")
	qu := s.queue("ReceiveOffer", q)
	if !qu.transfer {
		violation("ReceiveOffer", ErrTransferDisabled, "queue %d", q)
	}

	dr := s.lookup(donor)
	if dr == nil {
		violation("ReceiveOffer", ErrNotWaiting, "donor %v on queue %d", donor, q)
	}
	if _, ok := dr.waiting[q]; !ok {
		violation("ReceiveOffer", ErrNotWaiting, "donor %v on queue %d", donor, q)
	}
	de := s.lookup(donee)
	if de == nil || qu.holder != de.id {
		violation("ReceiveOffer", ErrNotHolder, "donee %v on queue %d", donee, q)
	}
	if amount != dr.effective {
		violation("ReceiveOffer", ErrOfferMismatch, "offer %d, %v has %d", amount, donor, dr.effective)
	}
	s.receiveOffer(de, amount, dr, qu)
}

// RevokeDonation removes donor's donation from donee. Donations are revoked
// automatically when the queue that justified them changes hands, so this
// only clears a record nothing justifies any more. It panics if there is no
// such donation or if donor still waits on a transfer-enabled queue donee
// holds.
func (x *Section[T]) RevokeDonation(donee, donor T) {
	s := x.sched("RevokeDonation")
	de, dr := s.lookup(donee), s.lookup(donor)
	if de == nil || dr == nil {
		violation("RevokeDonation", ErrDonationNotFound, "%v has no donation from %v", donee, donor)
	}
	rec, ok := de.received[dr.id]
	if !ok {
		violation("RevokeDonation", ErrDonationNotFound, "%v has no donation from %v", donee, donor)
	}
	if q := s.donationPath(dr, de.id, noQueue); q != nil {
		violation("RevokeDonation", ErrDonationJustified, "%v waits for %v on queue %d", donor, donee, q.id)
	}
	s.revoke(de, rec)
}

// Donations returns the donations v currently receives, ordered by donor
// handle, or nil if there are none.
func (x *Section[T]) Donations(v T) []Donation[T] {
	s := x.sched("Donations")
	e := s.lookup(v)
	if e == nil || len(e.received) == 0 {
		return nil
	}
	return s.donations(e)
}

// Forget drops the scheduling state of v. v must neither wait, hold, donate
// nor receive donations.
func (x *Section[T]) Forget(v T) {
	x.sched("Forget").forget(v)
}

// Verify checks the whole donation graph and every queue. It returns every
// [*ConsistencyError] found, joined, or nil.
func (x *Section[T]) Verify() error {
	return x.sched("Verify").verify()
}

// Snapshot returns a copy of the queue's state for diagnostics.
func (x *Section[T]) Snapshot(q QueueID) QueueSnapshot[T] {
	s := x.sched("Snapshot")
	return s.snapshotQueue(s.queue("Snapshot", q))
}

// Entity returns a copy of v's scheduling state for diagnostics. Queries never
// create scheduling state: an entity never scheduled reports the default
// priority.
func (x *Section[T]) Entity(v T) EntitySnapshot[T] {
	s := x.sched("Entity")
	e := s.lookup(v)
	if e == nil {
		return EntitySnapshot[T]{Value: v, Priority: s.bounds.Default, EffectivePriority: s.bounds.Default}
	}
	return s.snapshotEntity(e)
}
