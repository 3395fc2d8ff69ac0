package donsched

// donation is an active donation record. A donee holds at most one record per
// donor.
type donation struct {
	donor  entityID
	amount int
	origin QueueID
}

// Donation is an active donation record as seen from its donee.
type Donation[T comparable] struct {
	Donor  T       `json:"donor"`
	Amount int     `json:"amount"`
	Origin QueueID `json:"origin"`
}

// donate offers e's effective priority to the holder of q, if q transfers
// priority and is held by another entity.
func (s *Scheduler[T]) donate(e *entity[T], q *queue) {
	if q.holder == noEntity || q.holder == e.id || !q.transfer {
		return
	}
	s.receiveOffer(s.entities[q.holder], e.effective, e, q)
}

// receiveOffer upserts donor's record on e and recomputes e's effective
// priority when the offer may change it.
func (s *Scheduler[T]) receiveOffer(e *entity[T], amount int, donor *entity[T], q *queue) {
	if !q.transfer {
		violation("ReceiveOffer", ErrTransferDisabled, "queue %d", q.id)
	}

	e.received[donor.id] = donation{donor: donor.id, amount: amount, origin: q.id}
	donor.donatedTo[e.id] = struct{}{}

	s.logger.V(1).Info("received donation", "donee", e.value, "donor", donor.value, "amount", amount, "queue", q.id)
	if s.metrics != nil {
		s.metrics.OnDonate(q.id, donor.value, e.value, amount)
	}

	// A worse offer from a donor other than the best cannot move the maximum.
	// Every offer moves a lottery sum.
	if s.policy.policy == policyLottery || amount > e.bestOffer || donor.id == e.bestDonor {
		s.refresh(e)
	}
}

// revoke removes rec from e and from the donor's donee set.
func (s *Scheduler[T]) revoke(e *entity[T], rec donation) {
	if _, ok := e.received[rec.donor]; !ok {
		violation("RevokeDonation", ErrDonationNotFound, "%v has no donation from handle %d", e.value, rec.donor)
	}
	donor := s.entities[rec.donor]
	if _, ok := donor.donatedTo[e.id]; !ok {
		violation("RevokeDonation", ErrDonationNotFound, "%v does not know it donates to %v", donor.value, e.value)
	}

	delete(e.received, rec.donor)
	delete(donor.donatedTo, e.id)

	s.logger.V(1).Info("revoked donation", "donee", e.value, "donor", donor.value, "amount", rec.amount, "queue", rec.origin)
	if s.metrics != nil {
		s.metrics.OnRevoke(rec.origin, donor.value, e.value)
	}

	if s.policy.policy == policyLottery || rec.donor == e.bestDonor {
		s.refresh(e)
	}
}

// refresh recomputes e's effective priority. When it changes, e is moved to
// the matching bucket of every queue it waits on and the new value is offered
// to every entity e donates to. The recursion ends because donation edges
// follow holder relationships, which the queue discipline keeps acyclic.
func (s *Scheduler[T]) refresh(e *entity[T]) {
	old := e.effective
	switch s.policy.policy {
	case policyLottery:
		e.effective = e.tickets()
	default:
		e.bestDonor, e.bestOffer = e.maxOffer()
		e.effective = max(e.priority, e.bestOffer)
	}
	if e.effective == old {
		return
	}

	s.logger.V(1).Info("effective priority changed", "entity", e.value, "from", old, "to", e.effective)
	if s.metrics != nil {
		s.metrics.OnEffectivePriority(e.value, old, e.effective)
	}

	for _, id := range sortedKeys(e.waiting) {
		e.waiting[id] = s.queues[id].waiters.move(e.waiting[id], old, e.effective)
	}
	s.propagate(e)
}

// propagate re-offers e's effective priority to every entity it donates to.
func (s *Scheduler[T]) propagate(e *entity[T]) {
	for _, d := range sortedKeys(e.donatedTo) {
		q := s.donationPath(e, d, noQueue)
		if q == nil {
			s.logger.V(1).Info("no queue justifies donation", "donor", e.value, "donee", s.entities[d].value)
			continue
		}
		s.receiveOffer(s.entities[d], e.effective, e, q)
	}
}

// donationPath returns a transfer-enabled queue other than except that e waits
// on and holder holds, or nil.
func (s *Scheduler[T]) donationPath(e *entity[T], holder entityID, except QueueID) *queue {
	for _, id := range sortedKeys(e.waiting) {
		if q := s.queues[id]; id != except && q.transfer && q.holder == holder {
			return q
		}
	}
	return nil
}

// revokeFromQueue revokes every donation held by holder that is no longer
// justified once holder gives up q. A donation stays while its donor still
// waits for holder on another queue holder controls.
func (s *Scheduler[T]) revokeFromQueue(holder *entity[T], q *queue) int {
	revoked := 0
	for _, d := range sortedKeys(holder.received) {
		rec, ok := holder.received[d]
		if !ok {
			continue
		}
		donor := s.entities[d]
		if other := s.donationPath(donor, holder.id, q.id); other != nil {
			s.logger.V(1).Info("donation still justified", "donee", holder.value, "donor", donor.value, "queue", other.id)
			if rec.origin == q.id {
				rec.origin = other.id
				holder.received[d] = rec
			}
			continue
		}
		s.revoke(holder, rec)
		revoked++
	}
	return revoked
}
