package core

import "github.com/jabolina/go-remoting/pkg/remoting/types"

// InboundDispatcher receives envelopes that have arrived over an
// associated channel and are ready to be handed to whatever local actor
// system sits above this subsystem. It is the narrow seam a caller plugs
// into, the same way DeadLetterSink is the seam for messages that never
// made it.
type InboundDispatcher interface {
	Dispatch(envelope types.TransportEnvelope)
}

// LoggingInboundDispatcher is the default InboundDispatcher: it logs every
// inbound envelope at Debug level and drops it. Sufficient for a cluster
// shell with nothing above it yet; callers with a real actor tree supply
// their own.
type LoggingInboundDispatcher struct {
	Log types.Logger
}

func (d *LoggingInboundDispatcher) Dispatch(envelope types.TransportEnvelope) {
	d.Log.Debugf("inbound envelope for %s: %#v", envelope.Recipient, envelope.UnderlyingMessage())
}
