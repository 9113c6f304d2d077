package core

import "github.com/jabolina/go-remoting/pkg/remoting/types"

// WriteCallback reports the outcome of one WriteAndFlush call. It is
// invoked exactly once, possibly on a different goroutine than the one
// that called WriteAndFlush.
type WriteCallback func(err error)

// Channel is the duplex byte channel abstraction an association writes
// envelopes to once associated. Framing, retries and reconnection policy
// belong to the transport layer; Channel is the narrow surface this
// subsystem needs from it.
type Channel interface {
	// WriteAndFlush submits envelope for writing and reports completion
	// through cb. Implementations must preserve the order WriteAndFlush
	// calls were made in: once an association is associated, the per-peer
	// FIFO guarantee rests on this seam.
	WriteAndFlush(envelope types.TransportEnvelope, cb WriteCallback)

	// RemoteNode identifies the peer this channel is connected to.
	RemoteNode() types.UniqueNode

	// Close releases the underlying connection. Idempotent.
	Close() error
}
