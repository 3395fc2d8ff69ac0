package donsched

import (
	"container/list"
	"maps"
	"slices"
)

type entityID int

const (
	noEntity entityID = -1
	noOffer           = -1
)

// entity is the scheduling state of one schedulable unit. References to other
// entities and to queues are handles into the scheduler's arenas.
type entity[T comparable] struct {
	id    entityID
	value T

	priority  int
	effective int

	// Donations received, keyed by donor. Re-offering replaces the record.
	received map[entityID]donation
	// Entities this one currently donates to.
	donatedTo map[entityID]struct{}
	// Queues this entity waits on, with its element in the wait structure.
	waiting map[QueueID]*list.Element
	holding map[QueueID]struct{}

	// Cached maximum offer, priority policy only.
	bestDonor entityID
	bestOffer int
}

func newEntity[T comparable](id entityID, value T, priority int) *entity[T] {
	return &entity[T]{
		id:        id,
		value:     value,
		priority:  priority,
		effective: priority,
		received:  make(map[entityID]donation),
		donatedTo: make(map[entityID]struct{}),
		waiting:   make(map[QueueID]*list.Element),
		holding:   make(map[QueueID]struct{}),
		bestDonor: noEntity,
		bestOffer: noOffer,
	}
}

// maxOffer returns the donor with the largest donation. Ties go to the lowest
// donor handle.
func (e *entity[T]) maxOffer() (entityID, int) {
	donor, offer := noEntity, noOffer
	for _, d := range sortedKeys(e.received) {
		if amount := e.received[d].amount; amount > offer {
			donor, offer = d, amount
		}
	}
	return donor, offer
}

// tickets is the lottery effective priority: own tickets plus every donation.
func (e *entity[T]) tickets() int {
	sum := e.priority
	for _, rec := range e.received {
		sum += rec.amount
	}
	return sum
}

// live computes the effective priority from the donation records without
// touching any cache.
func (e *entity[T]) live(p policy) int {
	if p == policyLottery {
		return e.tickets()
	}
	_, offer := e.maxOffer()
	return max(e.priority, offer)
}

func (e *entity[T]) idle() bool {
	return len(e.waiting) == 0 && len(e.holding) == 0 &&
		len(e.received) == 0 && len(e.donatedTo) == 0
}

func sortedKeys[K ~int, V any](m map[K]V) []K {
	return slices.Sorted(maps.Keys(m))
}
