// Package donsched implements the scheduling core of a priority scheduler with
// priority donation, and a lottery scheduler built on the same donation
// machinery.
//
// Entities wait on resource queues. When an entity waits on a queue that has a
// resource holder and allows transfer, it donates its effective priority to
// the holder. Donations flow transitively through chains of holders, are
// revoked once the resource that justified them is handed over, and move
// waiting entities between the priority buckets of every queue they wait on.
//
// The priority policy takes the maximum of an entity's own priority and the
// donations it has received, and serves the highest non-empty bucket in FIFO
// order. The lottery policy adds donations to the entity's own tickets and
// draws a winner with probability proportional to its effective priority.
//
// The core is not internally synchronised beyond a single exclusive section.
// Every operation is a method on a [Section], which is obtained from
// [Scheduler.Lock] and must be released with [Section.Unlock].
package donsched
