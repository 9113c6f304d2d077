package core

import (
	"testing"
	"time"

	"github.com/jabolina/go-remoting/pkg/remoting/types"
)

func newTestShell(t *testing.T, self types.UniqueNode) *ClusterShell {
	t.Helper()
	settings := types.ClusterSettings{AssociationTombstoneTTL: time.Hour, HandshakeTimeout: time.Second}
	return NewClusterShell(self, settings, &LoggingDeadLetterSink{Log: testLogger{}}, testLogger{}, &invoker{})
}

func TestAssociationForCreatesExactlyOneAssociationPerPeer(t *testing.T) {
	self := makeNode(t, "a", 1)
	remote := makeNode(t, "b", 2)
	shell := newTestShell(t, self)

	first := shell.AssociationFor(remote)
	second := shell.AssociationFor(remote)

	if first != second {
		t.Fatal("expected AssociationFor to return the same Association object for the same peer")
	}
}

func TestOnInboundOfferRejectsWrongTarget(t *testing.T) {
	self := makeNode(t, "a", 1)
	other := makeNode(t, "other", 9)
	remote := makeNode(t, "b", 2)
	shell := newTestShell(t, self)

	decision := shell.OnInboundOffer(types.Offer{Local: remote, Target: other})
	if decision.Accept || decision.Reason != types.RejectWrongTarget {
		t.Fatalf("expected wrongTarget rejection, got %#v", decision)
	}
}

func TestOnInboundOfferAcceptsFreshPeer(t *testing.T) {
	self := makeNode(t, "a", 1)
	remote := makeNode(t, "b", 2)
	shell := newTestShell(t, self)

	decision := shell.OnInboundOffer(types.Offer{Local: remote, Target: self})
	if !decision.Accept || decision.Association == nil {
		t.Fatalf("expected acceptance of a fresh peer, got %#v", decision)
	}
	if decision.Association.State() != StateAssociating {
		t.Fatalf("expected the new association to start associating, got %s", decision.Association.State())
	}
}

func TestOnInboundOfferRejectsDuplicateWhenAlreadyAssociated(t *testing.T) {
	self := makeNode(t, "a", 1)
	remote := makeNode(t, "b", 2)
	shell := newTestShell(t, self)

	decision := shell.OnInboundOffer(types.Offer{Local: remote, Target: self})
	shell.OnHandshakeCompleted(remote, NewMockChannel(remote))
	if decision.Association.State() != StateAssociated {
		t.Fatalf("setup failed: expected associated, got %s", decision.Association.State())
	}

	second := shell.OnInboundOffer(types.Offer{Local: remote, Target: self})
	if second.Accept || second.Reason != types.RejectDuplicate {
		t.Fatalf("expected duplicate rejection for a redundant handshake, got %#v", second)
	}
}

func TestOnInboundOfferRejectsTombstonedPeer(t *testing.T) {
	self := makeNode(t, "a", 1)
	remote := makeNode(t, "b", 2)
	shell := newTestShell(t, self)

	shell.AssociationFor(remote)
	shell.OnHandshakeRejected(remote, types.RejectOther)

	decision := shell.OnInboundOffer(types.Offer{Local: remote, Target: self})
	if decision.Accept || decision.Reason != types.RejectTombstoned {
		t.Fatalf("expected tombstoned rejection, got %#v", decision)
	}
}

func TestAssociationForOnTombstonedPeerReturnsAnAlreadyTerminatedAssociation(t *testing.T) {
	self := makeNode(t, "a", 1)
	remote := makeNode(t, "b", 2)
	shell := newTestShell(t, self)

	shell.AssociationFor(remote)
	shell.OnHandshakeRejected(remote, types.RejectOther)

	assoc := shell.AssociationFor(remote)
	if assoc.State() != StateTombstone {
		t.Fatalf("expected a tombstoned association to be handed back, got %s", assoc.State())
	}
}

// Concurrent handshakes in both directions.
// The lexicographically smaller UniqueNode wins: its own outbound offer
// proceeds, and it rejects the inbound offer from the larger peer with
// concurrentLost. The larger peer, symmetrically, accepts the inbound
// offer from the smaller peer using its own pre-existing associating
// entry.
func TestTieBreakOnConcurrentHandshake(t *testing.T) {
	small := makeNode(t, "aaa", 0x1111) // lexicographically smaller SystemName
	big := makeNode(t, "bbb", 0x2222)

	shellOnSmall := newTestShell(t, small)
	shellOnBig := newTestShell(t, big)

	// Both sides simultaneously initiate their own outbound offer.
	shellOnSmall.AssociationFor(big)
	shellOnBig.AssociationFor(small)

	// small, as acceptor of big's inbound offer, wins the tie-break: its
	// own offer proceeds, so it rejects big's.
	decision := shellOnSmall.OnInboundOffer(types.Offer{Local: big, Target: small})
	if decision.Accept || decision.Reason != types.RejectConcurrentLost {
		t.Fatalf("expected the winner to reject the loser's inbound offer with concurrentLost, got %#v", decision)
	}

	// big, as acceptor of small's inbound offer, loses the tie-break: it
	// accepts, reusing its own pre-existing associating entry.
	existing, ok := shellOnBig.Lookup(small)
	if !ok {
		t.Fatal("expected big to already have an associating entry for small")
	}
	decision = shellOnBig.OnInboundOffer(types.Offer{Local: small, Target: big})
	if !decision.Accept || decision.Association != existing {
		t.Fatalf("expected the loser to accept using its existing associating entry, got %#v", decision)
	}
}

// Address reuse / incarnation swap. An inbound offer from a new NID at a Node
// already bound to a different (stale) NID must tombstone the old
// incarnation before the new one is accepted.
func TestIncarnationSwapTombstonesThePriorAssociation(t *testing.T) {
	self := makeNode(t, "a", 1)
	shell := newTestShell(t, self)

	remoteHost := types.Node{Protocol: "sact", SystemName: "peer", Host: "10.0.0.2", Port: 7000}
	oldIncarnation := types.UniqueNode{Node: remoteHost, NID: 0x1111}
	newIncarnation := types.UniqueNode{Node: remoteHost, NID: 0x2222}

	first := shell.OnInboundOffer(types.Offer{Local: oldIncarnation, Target: self})
	shell.OnHandshakeCompleted(oldIncarnation, NewMockChannel(oldIncarnation))
	if first.Association.State() != StateAssociated {
		t.Fatalf("setup failed: expected the old incarnation to be associated, got %s", first.Association.State())
	}

	second := shell.OnInboundOffer(types.Offer{Local: newIncarnation, Target: self})
	if !second.Accept {
		t.Fatalf("expected the new incarnation's offer to be accepted, got %#v", second)
	}
	if first.Association.State() != StateTombstone {
		t.Fatalf("expected the old incarnation's association to be tombstoned, got %s", first.Association.State())
	}
}

// A send to a tombstoned peer dead-letters and fails its promise.
func TestSendToTombstonedPeerDeadLetters(t *testing.T) {
	self := makeNode(t, "a", 1)
	remote := makeNode(t, "b", 2)
	shell := newTestShell(t, self)

	shell.AssociationFor(remote)
	shell.OnHandshakeRejected(remote, types.RejectOther)

	assoc := shell.AssociationFor(remote)
	promise := types.NewPromise()
	assoc.Send(types.NewUserEnvelope([]byte("x"), types.ActorAddress{Path: []string{"x"}}, promise))

	if err := <-promise.Done(); err != types.ErrAssociationTerminated {
		t.Fatalf("expected ErrAssociationTerminated, got %v", err)
	}
}

// Tombstone expiry - ReapTombstones removes
// an expired tombstone and its association entry, so a later offer from
// the same peer is evaluated fresh rather than rejected as tombstoned.
func TestReapTombstonesExpiresAndForgetsTheAssociation(t *testing.T) {
	self := makeNode(t, "a", 1)
	remote := makeNode(t, "b", 2)
	shell := newTestShell(t, self)

	shell.AssociationFor(remote)
	shell.OnHandshakeRejected(remote, types.RejectOther)

	future := time.Now().Add(2 * time.Hour)
	shell.ReapTombstones(future)

	decision := shell.OnInboundOffer(types.Offer{Local: remote, Target: self})
	if !decision.Accept {
		t.Fatalf("expected a reaped peer to be treated as fresh, got %#v", decision)
	}
}

func TestShutdownTerminatesEveryAssociation(t *testing.T) {
	self := makeNode(t, "a", 1)
	remoteA := makeNode(t, "b", 2)
	remoteB := makeNode(t, "c", 3)
	shell := newTestShell(t, self)

	assocA := shell.AssociationFor(remoteA)
	channel := NewMockChannel(remoteB)
	shell.OnInboundOffer(types.Offer{Local: remoteB, Target: self})
	shell.OnHandshakeCompleted(remoteB, channel)

	shell.Shutdown()

	if assocA.State() != StateTombstone {
		t.Fatalf("expected the still-associating peer to be tombstoned on shutdown, got %s", assocA.State())
	}
	if !channel.Closed() {
		t.Fatal("expected the associated channel to be closed on shutdown")
	}
}
