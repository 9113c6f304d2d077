// Package wire implements the fixed binary framing the handshake and
// envelope traffic travels in: Offer/Accept/Reject, the two envelope
// shapes, and the UniqueNode/ActorAddress/SystemMessage encodings they
// carry. Every message is a tag byte followed by length-prefixed fields;
// all integers are big-endian.
package wire

import "github.com/jabolina/go-remoting/pkg/remoting/types"

// SerializationContext is threaded explicitly through encode/decode
// calls. It knows the local node (for substituting an absent
// ActorAddress.Node at encode time) and how to resolve a decoded
// ActorAddress into whatever local representation the caller's actor
// tree uses.
//
// Threading it as a parameter, rather than through package-level state,
// means any caller holding a context can never hit
// ErrMissingSerializationContext.
type SerializationContext interface {
	LocalNode() types.UniqueNode
	ResolveAddress(types.ActorAddress) (types.ActorAddress, error)
}

// StaticContext is the simplest SerializationContext: a fixed local node,
// and address resolution that is the identity function. Sufficient for
// tests and for callers with no actor-tree resolution step.
type StaticContext struct {
	Local types.UniqueNode
}

func (c StaticContext) LocalNode() types.UniqueNode {
	return c.Local
}

func (c StaticContext) ResolveAddress(addr types.ActorAddress) (types.ActorAddress, error) {
	return addr, nil
}
