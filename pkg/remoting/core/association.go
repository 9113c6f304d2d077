package core

import (
	"sync"
	"time"

	"github.com/jabolina/go-remoting/pkg/remoting/types"
)

// AssociationState is one of the three states an Association may be in.
// Transitions follow a strict monotone chain: Associating -> Associated ->
// Tombstone, or Associating -> Tombstone directly. Reverse transitions
// never occur.
type AssociationState uint8

const (
	StateAssociating AssociationState = iota
	StateAssociated
	StateTombstone
)

func (s AssociationState) String() string {
	switch s {
	case StateAssociating:
		return "associating"
	case StateAssociated:
		return "associated"
	case StateTombstone:
		return "tombstone"
	default:
		return "unknown"
	}
}

// Association is the long-lived per-peer object routing every outgoing
// envelope according to its current state. self is fixed at creation;
// remote is immutable after creation. The mutex is the sole
// synchronization discipline for state, pending, channel and sink: every
// Send and every transition holds it, which is what keeps the per-peer
// FIFO guarantee intact across the associating->associated seam.
type Association struct {
	self   types.UniqueNode
	remote types.UniqueNode
	log    types.Logger

	mutex     sync.Mutex
	state     AssociationState
	pending   *PendingQueue
	channel   Channel
	sink      DeadLetterSink
	tombstone Tombstone
}

// NewAssociation creates a fresh Association in the associating state,
// ready to buffer envelopes before any channel exists.
func NewAssociation(self, remote types.UniqueNode, log types.Logger) *Association {
	return &Association{
		self:    self,
		remote:  remote,
		log:     log,
		state:   StateAssociating,
		pending: NewPendingQueue(),
	}
}

// Self returns the local node this association was created for.
func (a *Association) Self() types.UniqueNode {
	return a.self
}

// Remote returns the peer this association routes traffic to.
func (a *Association) Remote() types.UniqueNode {
	return a.remote
}

// State returns the association's current state.
func (a *Association) State() AssociationState {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	return a.state
}

// PendingLen reports how many envelopes are currently buffered. Zero once
// the association has left the associating state. Diagnostic/test use.
func (a *Association) PendingLen() int {
	return a.pending.Len()
}

func resolveWriteResult(envelope types.TransportEnvelope) WriteCallback {
	return func(err error) {
		if err != nil {
			envelope.FailPromise(&types.ChannelWriteFailed{Underlying: err})
			return
		}
		envelope.ResolvePromise()
	}
}

// Send dispatches envelope according to the current state:
//   - associating: appended to the pending queue; its promise, if any,
//     waits for the eventual flush or for terminate() to dead-letter it.
//   - associated: written straight to the channel.
//   - tombstone: forwarded to the dead-letter sink and failed with
//     AssociationTerminated.
//
// The entire switch runs under the association's mutex, which is what
// makes the FIFO ordering invariant hold across the associating->
// associated transition: CompleteAssociation takes the same mutex to drain
// the queue and bind the channel, so no Send can observe a half-migrated
// state, and no Send can race ahead of (or behind) the drained backlog.
func (a *Association) Send(envelope types.TransportEnvelope) {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	switch a.state {
	case StateAssociating:
		a.pending.Append(envelope)
	case StateAssociated:
		a.channel.WriteAndFlush(envelope, resolveWriteResult(envelope))
	case StateTombstone:
		a.sink.Deliver(envelope.UnderlyingMessage(), envelope.Recipient)
		envelope.FailPromise(types.ErrAssociationTerminated)
	}
}

// CompleteAssociation is legal only from associating. It atomically
// transitions to associated, drains the entire pending queue into the new
// channel preserving enqueue order, and binds the channel as the
// association's transport.
//
// Calling it a second time (i.e. from associated) is a programmer error
// and panics. Calling it from tombstone closes the supplied channel and
// returns, since the peer this channel was negotiated for is already
// gone.
func (a *Association) CompleteAssociation(channel Channel) {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	switch a.state {
	case StateTombstone:
		_ = channel.Close()
		return
	case StateAssociated:
		panic("completeAssociation called on an already-associated association")
	case StateAssociating:
		a.state = StateAssociated
		a.channel = channel
		for _, envelope := range a.pending.Drain() {
			channel.WriteAndFlush(envelope, resolveWriteResult(envelope))
		}
	}
}

// Terminate ends the association: from associating, every queued envelope
// is redirected to sink; from associated, the channel is closed. Either
// way the association becomes a tombstone, carrying a removal deadline
// ttl past now. Calling it again on an already-tombstoned association is
// idempotent and returns the original tombstone.
func (a *Association) Terminate(sink DeadLetterSink, ttl time.Duration, now time.Time) Tombstone {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	if a.state == StateTombstone {
		return a.tombstone
	}

	switch a.state {
	case StateAssociating:
		for _, envelope := range a.pending.Drain() {
			sink.Deliver(envelope.UnderlyingMessage(), envelope.Recipient)
			envelope.FailPromise(types.ErrAssociationTerminated)
		}
	case StateAssociated:
		if err := a.channel.Close(); err != nil {
			a.log.Warnf("closing channel to %s: %v", a.remote, err)
		}
	}

	a.state = StateTombstone
	a.sink = sink
	a.tombstone = Tombstone{RemoteNode: a.remote, RemovalDeadline: now.Add(ttl)}
	return a.tombstone
}
