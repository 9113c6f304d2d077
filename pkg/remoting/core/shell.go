package core

import (
	"context"
	"sync"
	"time"

	"github.com/jabolina/go-remoting/pkg/remoting/types"
)

// HandshakeDecision is the result of evaluating an inbound Offer against
// the shell's current association/tombstone state. It carries enough
// information for the caller - which owns the actual network connection -
// to send back an Accept or Reject frame and, on acceptance, to complete
// the matching Association once that reply has been flushed.
type HandshakeDecision struct {
	Accept      bool
	Reason      types.RejectReason
	Message     string
	Association *Association
}

// ClusterShell is the single-owner coordinator: it keeps the
// UniqueNode->Association map and the tombstone set, arbitrates concurrent
// handshakes, and expires tombstones. Every mutation of its maps happens
// under its own mutex - other components call into it rather than
// reaching into its state directly.
type ClusterShell struct {
	self        types.UniqueNode
	settings    types.ClusterSettings
	log         types.Logger
	deadLetters DeadLetterSink
	invoker     Invoker
	now         func() time.Time

	mutex        sync.Mutex
	associations map[types.UniqueNode]*Association
	byNode       map[types.Node]types.UniqueNode
	tombstones   *TombstoneRegistry

	// OnNeedsHandshake is invoked (outside the shell's mutex) whenever
	// AssociationFor creates a brand new association that must now
	// initiate an outbound handshake. Production wiring (package
	// remoting) dials the peer and drives the HandshakeAttempt; tests may
	// leave it nil or substitute a fake.
	OnNeedsHandshake func(remote types.UniqueNode, attempt *HandshakeAttempt)

	reapCancel context.CancelFunc
	reapDone   chan struct{}
}

// NewClusterShell constructs a shell for self. deadLetters and log must be
// non-nil; invoker defaults to InvokerInstance() when nil.
func NewClusterShell(self types.UniqueNode, settings types.ClusterSettings, deadLetters DeadLetterSink, log types.Logger, invoker Invoker) *ClusterShell {
	if invoker == nil {
		invoker = InvokerInstance()
	}
	return &ClusterShell{
		self:         self,
		settings:     settings,
		log:          log,
		deadLetters:  deadLetters,
		invoker:      invoker,
		now:          time.Now,
		associations: make(map[types.UniqueNode]*Association),
		byNode:       make(map[types.Node]types.UniqueNode),
		tombstones:   NewTombstoneRegistry(),
	}
}

// AssociationFor returns the association for remote, creating one (and
// triggering an outbound handshake) if none exists and no tombstone bars
// it. If a tombstone bars it, the returned association is already a
// tombstone, so every send on it dead-letters immediately.
func (s *ClusterShell) AssociationFor(remote types.UniqueNode) *Association {
	s.mutex.Lock()

	if assoc, ok := s.associations[remote]; ok {
		s.mutex.Unlock()
		return assoc
	}

	if s.tombstones.Contains(remote) {
		assoc := NewAssociation(s.self, remote, s.log)
		assoc.Terminate(s.deadLetters, s.settings.AssociationTombstoneTTL, s.now())
		s.associations[remote] = assoc
		s.mutex.Unlock()
		return assoc
	}

	assoc := NewAssociation(s.self, remote, s.log)
	s.associations[remote] = assoc
	attempt := NewHandshakeAttempt(types.Offer{Local: s.self, Target: remote})
	hook := s.OnNeedsHandshake
	s.mutex.Unlock()

	if hook != nil {
		s.invoker.Spawn(func() {
			hook(remote, attempt)
		})
	}
	return assoc
}

// Lookup returns the association currently tracked for remote, if any,
// without creating one.
func (s *ClusterShell) Lookup(remote types.UniqueNode) (*Association, bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	assoc, ok := s.associations[remote]
	return assoc, ok
}

// OnInboundOffer evaluates an inbound Offer: wrong-target rejection,
// tombstone rejection, duplicate rejection, tie-breaking against a
// concurrent associating entry, incarnation-swap handling, or plain
// acceptance of a fresh peer.
func (s *ClusterShell) OnInboundOffer(offer types.Offer) HandshakeDecision {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !offer.Target.Equal(s.self) {
		return HandshakeDecision{Reason: types.RejectWrongTarget, Message: "offer targeted a different node"}
	}

	remote := offer.Local

	if s.tombstones.Contains(remote) {
		return HandshakeDecision{Reason: types.RejectTombstoned}
	}

	if existing, ok := s.associations[remote]; ok {
		switch existing.State() {
		case StateAssociated:
			return HandshakeDecision{Reason: types.RejectDuplicate}
		case StateTombstone:
			return HandshakeDecision{Reason: types.RejectTombstoned}
		case StateAssociating:
			if s.self.Less(remote) {
				// We are the smaller UniqueNode: we win the tie-break, so
				// our own outbound offer is the one that proceeds, and
				// this inbound offer loses.
				return HandshakeDecision{Reason: types.RejectConcurrentLost}
			}
			// We lose the tie-break: our own outbound offer will be
			// rejected by the peer: accept this inbound offer using the
			// already-existing associating entry instead of a new one.
			return HandshakeDecision{Accept: true, Association: existing}
		}
	}

	s.handleIncarnationSwap(remote)

	assoc := NewAssociation(s.self, remote, s.log)
	s.associations[remote] = assoc
	return HandshakeDecision{Accept: true, Association: assoc}
}

// handleIncarnationSwap terminates any prior association bound to the same
// Node but a different NID: the old incarnation at that address is dead.
// Must be called with s.mutex held.
func (s *ClusterShell) handleIncarnationSwap(remote types.UniqueNode) {
	prior, ok := s.byNode[remote.Node]
	if !ok || prior == remote {
		return
	}
	if assoc, ok := s.associations[prior]; ok {
		tomb := assoc.Terminate(s.deadLetters, s.settings.AssociationTombstoneTTL, s.now())
		s.tombstones.Put(tomb.RemoteNode, s.settings.AssociationTombstoneTTL, s.now())
		s.log.Warnf("incarnation swap at %s: %s replaced by %s", remote.Node, prior, remote)
	}
	delete(s.byNode, remote.Node)
}

// OnHandshakeCompleted binds channel to the association for remoteNode,
// completing its associating->associated transition.
func (s *ClusterShell) OnHandshakeCompleted(remoteNode types.UniqueNode, channel Channel) {
	s.mutex.Lock()
	assoc, ok := s.associations[remoteNode]
	if !ok {
		s.mutex.Unlock()
		_ = channel.Close()
		return
	}
	s.byNode[remoteNode.Node] = remoteNode
	s.mutex.Unlock()

	assoc.CompleteAssociation(channel)
}

// OnHandshakeRejected records the outcome of a failed outbound attempt for
// remoteNode. A concurrentLost rejection means a parallel attempt in the
// other direction is expected to complete the very same association, so it
// leaves the association alone; every other reason (duplicate, tombstoned,
// wrongTarget, a real network failure or timeout) terminates it.
func (s *ClusterShell) OnHandshakeRejected(remoteNode types.UniqueNode, reason types.RejectReason) {
	if reason == types.RejectConcurrentLost {
		s.log.Infof("outbound handshake to %s lost a concurrent tie-break", remoteNode)
		return
	}

	s.mutex.Lock()
	assoc, ok := s.associations[remoteNode]
	if !ok {
		s.mutex.Unlock()
		return
	}
	if cur, ok := s.byNode[remoteNode.Node]; ok && cur == remoteNode {
		delete(s.byNode, remoteNode.Node)
	}
	s.mutex.Unlock()

	tomb := assoc.Terminate(s.deadLetters, s.settings.AssociationTombstoneTTL, s.now())
	s.mutex.Lock()
	s.tombstones.Put(tomb.RemoteNode, s.settings.AssociationTombstoneTTL, s.now())
	s.mutex.Unlock()
	s.log.Infof("handshake with %s rejected: %s", remoteNode, reason)
}

// ReapTombstones removes every tombstone (and its associated Association
// entry) whose removal deadline has passed as of now.
func (s *ClusterShell) ReapTombstones(now time.Time) int {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	removed := s.tombstones.Reap(now)
	for node, assoc := range s.associations {
		if assoc.State() == StateTombstone && !s.tombstones.Contains(node) {
			delete(s.associations, node)
		}
	}
	return removed
}

// StartReaping spawns a background loop that calls ReapTombstones every
// TTL/n, until ctx is cancelled or Shutdown is called.
func (s *ClusterShell) StartReaping(ctx context.Context, n int) {
	ctx, cancel := context.WithCancel(ctx)
	s.reapCancel = cancel
	s.reapDone = make(chan struct{})
	interval := s.settings.ReapInterval(n)
	s.invoker.Spawn(func() {
		defer close(s.reapDone)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				s.ReapTombstones(now)
			}
		}
	})
}

// Shutdown terminates every association (draining pending envelopes to
// dead letters and closing open channels) and stops the reaper, if
// running.
func (s *ClusterShell) Shutdown() {
	if s.reapCancel != nil {
		s.reapCancel()
		<-s.reapDone
	}

	s.mutex.Lock()
	associations := make([]*Association, 0, len(s.associations))
	for _, assoc := range s.associations {
		associations = append(associations, assoc)
	}
	s.mutex.Unlock()

	now := s.now()
	for _, assoc := range associations {
		assoc.Terminate(s.deadLetters, s.settings.AssociationTombstoneTTL, now)
	}
}
