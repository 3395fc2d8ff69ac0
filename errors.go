package donsched

import (
	"errors"
	"fmt"
)

// Errors describing violated calling contracts. Apart from
// [ErrPriorityOutOfRange], which [Section.SetPriority] returns, they reach the
// caller as the cause of a [*ContractError] panic: a violated contract means
// the donation graph can no longer be trusted.
var (
	ErrPriorityOutOfRange = errors.New("donsched: priority out of range")
	ErrAlreadyWaiting     = errors.New("donsched: entity already waiting on queue")
	ErrNotWaiting         = errors.New("donsched: entity not waiting on queue")
	ErrNotHolder          = errors.New("donsched: entity does not hold queue")
	ErrQueueNotEmpty      = errors.New("donsched: queue not empty")
	ErrUnknownQueue       = errors.New("donsched: unknown queue")
	ErrTransferDisabled   = errors.New("donsched: queue does not transfer priority")
	ErrDonationNotFound   = errors.New("donsched: donation not found")
	ErrDonationJustified  = errors.New("donsched: donation still justified by a held queue")
	ErrOfferMismatch      = errors.New("donsched: offer does not match donor effective priority")
	ErrZeroWeight         = errors.New("donsched: lottery weights sum to zero")
	ErrEntityBusy         = errors.New("donsched: entity still scheduled")
	ErrSectionReleased    = errors.New("donsched: section already released")
)

// ContractError is the panic value raised when an operation is called in
// violation of its contract.
type ContractError struct {
	Op  string
	Err error
}

func (e *ContractError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *ContractError) Unwrap() error {
	return e.Err
}

func violation(op string, err error, format string, args ...any) {
	if format != "" {
		err = fmt.Errorf("%w: "+format, append([]any{err}, args...)...)
	}
	panic(&ContractError{Op: op, Err: err})
}

// ConsistencyError reports drift between the cached scheduling state and the
// state it was derived from. Queue is -1 when the failure is not tied to a
// queue.
type ConsistencyError struct {
	Entity any
	Queue  QueueID
	Reason string
}

func (e *ConsistencyError) Error() string {
	if e.Queue < 0 {
		return fmt.Sprintf("donsched: inconsistent state for %v: %s", e.Entity, e.Reason)
	}
	return fmt.Sprintf("donsched: inconsistent state for %v on queue %d: %s", e.Entity, e.Queue, e.Reason)
}
