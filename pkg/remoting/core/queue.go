package core

import (
	"sync"

	"github.com/jabolina/go-remoting/pkg/remoting/types"
)

// PendingQueue is the multi-producer single-consumer FIFO an association
// buffers outgoing envelopes in while it is still associating. It is
// drained exactly once, by the association's own state transition, and is
// otherwise only ever appended to.
type PendingQueue struct {
	mutex   sync.Mutex
	entries []types.TransportEnvelope
}

// NewPendingQueue allocates an empty queue.
func NewPendingQueue() *PendingQueue {
	return &PendingQueue{}
}

// Append enqueues an envelope. Safe for concurrent callers.
func (q *PendingQueue) Append(envelope types.TransportEnvelope) {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	q.entries = append(q.entries, envelope)
}

// Drain removes and returns every queued envelope, in enqueue order,
// leaving the queue empty. Intended to be called exactly once, by whatever
// holds the association's state mutex across the associating->associated
// or associating->tombstone transition.
func (q *PendingQueue) Drain() []types.TransportEnvelope {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	drained := q.entries
	q.entries = nil
	return drained
}

// Len reports the number of currently queued envelopes. Used by tests and
// by invariant checks, not by the protocol itself.
func (q *PendingQueue) Len() int {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	return len(q.entries)
}
