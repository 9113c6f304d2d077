package types

// EnvelopeKind discriminates the two shapes a TransportEnvelope may take.
type EnvelopeKind uint8

const (
	EnvelopeUser EnvelopeKind = iota
	EnvelopeSystem
)

// TransportEnvelope is the tagged union that crosses the wire: either a
// user message (payload, recipient, optional completion notifier) or a
// system message. It is consumed once.
//
// The promise travels inside the envelope, so a send buffered before a
// channel exists still gets its completion reported: the eventual flush
// resolves it, or termination fails it.
type TransportEnvelope struct {
	Kind      EnvelopeKind
	Payload   []byte
	SysMsg    SystemMessage
	Recipient ActorAddress
	Promise   *Promise
}

// NewUserEnvelope builds a user-message envelope. promise may be nil.
func NewUserEnvelope(payload []byte, recipient ActorAddress, promise *Promise) TransportEnvelope {
	return TransportEnvelope{
		Kind:      EnvelopeUser,
		Payload:   payload,
		Recipient: recipient,
		Promise:   promise,
	}
}

// NewSystemEnvelope builds a system-message envelope.
func NewSystemEnvelope(msg SystemMessage, recipient ActorAddress) TransportEnvelope {
	return TransportEnvelope{
		Kind:      EnvelopeSystem,
		SysMsg:    msg,
		Recipient: recipient,
	}
}

// UnderlyingMessage returns whatever payload a dead-letter sink should log:
// the raw bytes for a user message, or the system message value itself.
func (e TransportEnvelope) UnderlyingMessage() interface{} {
	if e.Kind == EnvelopeUser {
		return e.Payload
	}
	return e.SysMsg
}

// FailPromise resolves the envelope's promise, if any, with err. Safe to
// call on an envelope with no promise.
func (e TransportEnvelope) FailPromise(err error) {
	if e.Promise != nil {
		e.Promise.Complete(err)
	}
}

// ResolvePromise resolves the envelope's promise, if any, with a nil error.
func (e TransportEnvelope) ResolvePromise() {
	if e.Promise != nil {
		e.Promise.Complete(nil)
	}
}
