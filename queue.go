package donsched

import "container/list"

// QueueID is the handle of a resource queue created by [Section.NewQueue].
type QueueID int

const noQueue QueueID = -1

// queue is the wait list of one contended resource.
type queue struct {
	id       QueueID
	transfer bool
	holder   entityID
	waiters  waitSet
}

// waitSet is the policy-specific wait structure of a queue: *priorityBuckets
// or *lotteryPool. Elements hold entity handles.
type waitSet interface {
	insert(id entityID, effective int) *list.Element
	remove(elem *list.Element, effective int)
	// move re-homes elem after its entity's effective priority changed and
	// returns the element now holding it.
	move(elem *list.Element, from, to int) *list.Element
	// ids returns the waiting entities in service order.
	ids() []entityID
	len() int
}

var (
	_ waitSet = (*priorityBuckets)(nil)
	_ waitSet = (*lotteryPool)(nil)
)

// priorityBuckets keeps one FIFO list per priority level. An entity sits in
// the bucket matching its effective priority.
type priorityBuckets struct {
	buckets []*list.List
	n       int
}

func newPriorityBuckets(maxPriority int) *priorityBuckets {
	b := &priorityBuckets{buckets: make([]*list.List, maxPriority+1)}
	for i := range b.buckets {
		b.buckets[i] = list.New()
	}
	return b
}

func (b *priorityBuckets) insert(id entityID, effective int) *list.Element {
	b.n++
	return b.buckets[effective].PushBack(id)
}

func (b *priorityBuckets) remove(elem *list.Element, effective int) {
	b.buckets[effective].Remove(elem)
	b.n--
}

func (b *priorityBuckets) move(elem *list.Element, from, to int) *list.Element {
	id := b.buckets[from].Remove(elem).(entityID)
	return b.buckets[to].PushBack(id)
}

// front returns the oldest entity of the highest non-empty bucket.
func (b *priorityBuckets) front() entityID {
	for i := len(b.buckets) - 1; i >= 0; i-- {
		if f := b.buckets[i].Front(); f != nil {
			return f.Value.(entityID)
		}
	}
	return noEntity
}

// bucketOf returns the index of the bucket holding elem, or -1.
func (b *priorityBuckets) bucketOf(elem *list.Element) int {
	for i, l := range b.buckets {
		for e := l.Front(); e != nil; e = e.Next() {
			if e == elem {
				return i
			}
		}
	}
	return -1
}

func (b *priorityBuckets) ids() []entityID {
	out := make([]entityID, 0, b.n)
	for i := len(b.buckets) - 1; i >= 0; i-- {
		for e := b.buckets[i].Front(); e != nil; e = e.Next() {
			out = append(out, e.Value.(entityID))
		}
	}
	return out
}

func (b *priorityBuckets) len() int {
	return b.n
}

// lotteryPool keeps every waiting entity in one list in arrival order. The
// winner of the last draw is cached until membership or a waiting entity's
// weight changes.
type lotteryPool struct {
	pool   *list.List
	winner entityID
}

func newLotteryPool() *lotteryPool {
	return &lotteryPool{pool: list.New(), winner: noEntity}
}

func (p *lotteryPool) insert(id entityID, _ int) *list.Element {
	p.winner = noEntity
	return p.pool.PushBack(id)
}

func (p *lotteryPool) remove(elem *list.Element, _ int) {
	p.winner = noEntity
	p.pool.Remove(elem)
}

func (p *lotteryPool) move(elem *list.Element, _, _ int) *list.Element {
	p.winner = noEntity
	return elem
}

func (p *lotteryPool) ids() []entityID {
	out := make([]entityID, 0, p.pool.Len())
	for e := p.pool.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value.(entityID))
	}
	return out
}

func (p *lotteryPool) len() int {
	return p.pool.Len()
}

func (s *Scheduler[T]) newQueue(transfer bool) *queue {
	q := &queue{
		id:       QueueID(len(s.queues)),
		transfer: transfer,
		holder:   noEntity,
	}
	switch s.policy.policy {
	case policyLottery:
		q.waiters = newLotteryPool()
	default:
		q.waiters = newPriorityBuckets(s.bounds.Max)
	}
	s.queues = append(s.queues, q)
	return q
}

// pick returns the entity nextThread would select without committing. A
// lottery draw is cached on the pool.
func (s *Scheduler[T]) pick(q *queue) entityID {
	switch w := q.waiters.(type) {
	case *priorityBuckets:
		return w.front()
	case *lotteryPool:
		return s.draw(w)
	default:
		panic("donsched: unknown wait structure")
	}
}

// draw holds a lottery over the pool. The winning ticket r*total falls into
// exactly one entity's interval [low, high) of cumulative effective priority.
func (s *Scheduler[T]) draw(p *lotteryPool) entityID {
	if p.winner != noEntity {
		return p.winner
	}
	if p.pool.Len() == 0 {
		return noEntity
	}

	total := 0
	for e := p.pool.Front(); e != nil; e = e.Next() {
		total += s.entities[e.Value.(entityID)].effective
	}
	if total <= 0 {
		violation("NextThread", ErrZeroWeight, "%d waiting entities", p.pool.Len())
	}

	ticket := s.rand.Float64() * float64(total)
	high := 0
	for e := p.pool.Front(); e != nil; e = e.Next() {
		id := e.Value.(entityID)
		high += s.entities[id].effective
		if ticket < float64(high) {
			p.winner = id
			return id
		}
	}
	panic("donsched: winning ticket outside every interval")
}

func (s *Scheduler[T]) waitForAccess(q *queue, e *entity[T]) {
	if _, ok := e.waiting[q.id]; ok {
		violation("WaitForAccess", ErrAlreadyWaiting, "%v on queue %d", e.value, q.id)
	}

	e.waiting[q.id] = q.waiters.insert(e.id, e.effective)

	s.logger.V(1).Info("waiting for access", "entity", e.value, "priority", e.priority, "effective", e.effective, "queue", q.id)
	if s.metrics != nil {
		s.metrics.OnWait(q.id, e.value)
	}

	s.donate(e, q)
}

// nextThread selects the next holder of q. The outgoing holder loses every
// donation no longer justified, the winner leaves the wait structure, and the
// entities still waiting donate to the winner.
func (s *Scheduler[T]) nextThread(q *queue) (*entity[T], bool) {
	id := s.pick(q)
	if id == noEntity {
		s.setHolder(q, noEntity)
		return nil, false
	}

	winner := s.entities[id]
	if q.holder != noEntity {
		s.revokeFromQueue(s.entities[q.holder], q)
	}

	q.waiters.remove(winner.waiting[q.id], winner.effective)
	delete(winner.waiting, q.id)
	s.setHolder(q, winner.id)

	s.logger.V(1).Info("next thread", "entity", winner.value, "priority", winner.priority, "effective", winner.effective, "queue", q.id)
	if s.metrics != nil {
		s.metrics.OnDequeue(q.id, winner.value)
	}

	if q.transfer {
		for _, w := range q.waiters.ids() {
			s.donate(s.entities[w], q)
		}
	}

	if s.inconsistency != nil {
		s.checkDequeue(q, winner)
	}
	return winner, true
}

func (s *Scheduler[T]) acquire(q *queue, e *entity[T]) {
	if n := q.waiters.len(); n != 0 {
		violation("Acquire", ErrQueueNotEmpty, "queue %d has %d waiting", q.id, n)
	}
	s.setHolder(q, e.id)
	s.logger.V(1).Info("acquired", "entity", e.value, "queue", q.id)
}

func (s *Scheduler[T]) releaseHolder(q *queue) {
	if q.holder == noEntity {
		return
	}
	s.revokeFromQueue(s.entities[q.holder], q)
	s.setHolder(q, noEntity)
}

// remove takes e off q without selecting it. Its donation to the holder of q
// is revoked unless another held queue still justifies it.
func (s *Scheduler[T]) remove(q *queue, e *entity[T]) bool {
	elem, ok := e.waiting[q.id]
	if !ok {
		return false
	}

	q.waiters.remove(elem, e.effective)
	delete(e.waiting, q.id)

	if q.holder != noEntity && q.holder != e.id {
		holder := s.entities[q.holder]
		if rec, ok := holder.received[e.id]; ok {
			if other := s.donationPath(e, holder.id, noQueue); other == nil {
				s.revoke(holder, rec)
			} else if rec.origin == q.id {
				rec.origin = other.id
				holder.received[e.id] = rec
			}
		}
	}

	s.logger.V(1).Info("removed", "entity", e.value, "queue", q.id)
	if s.metrics != nil {
		s.metrics.OnRemove(q.id, e.value)
	}
	return true
}

func (s *Scheduler[T]) setHolder(q *queue, id entityID) {
	if q.holder != noEntity {
		delete(s.entities[q.holder].holding, q.id)
	}
	q.holder = id
	if id != noEntity {
		s.entities[id].holding[q.id] = struct{}{}
	}
}
