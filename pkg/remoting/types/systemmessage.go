package types

// SystemMessageType discriminates the system message variants carried by a
// SystemEnvelope, matching the `type` discriminator in the wire format.
type SystemMessageType uint8

const (
	SystemWatch SystemMessageType = iota
	SystemTerminated
)

// SystemMessage is the tagged payload of a system envelope. Only one of
// Watch/Terminated is meaningful, selected by Type.
type SystemMessage struct {
	Type SystemMessageType

	Watch      WatchMessage
	Terminated TerminatedMessage
}

// WatchMessage asks the recipient to notify Watcher when Watchee stops
// existing.
type WatchMessage struct {
	Watchee ActorAddress
	Watcher ActorAddress
}

// TerminatedMessage notifies a watcher that a watched actor is gone.
type TerminatedMessage struct {
	Ref                ActorAddress
	ExistenceConfirmed bool
	AddressTerminated  bool
}

// Watch builds a watch system message.
func Watch(watchee, watcher ActorAddress) SystemMessage {
	return SystemMessage{Type: SystemWatch, Watch: WatchMessage{Watchee: watchee, Watcher: watcher}}
}

// Terminated builds a terminated system message.
func Terminated(ref ActorAddress, existenceConfirmed, addressTerminated bool) SystemMessage {
	return SystemMessage{
		Type: SystemTerminated,
		Terminated: TerminatedMessage{
			Ref:                ref,
			ExistenceConfirmed: existenceConfirmed,
			AddressTerminated:  addressTerminated,
		},
	}
}

// Equal compares two system messages by value, following only the active
// variant for the message's Type.
func (m SystemMessage) Equal(other SystemMessage) bool {
	if m.Type != other.Type {
		return false
	}
	switch m.Type {
	case SystemWatch:
		return m.Watch.Watchee.Equal(other.Watch.Watchee) && m.Watch.Watcher.Equal(other.Watch.Watcher)
	case SystemTerminated:
		return m.Terminated.Ref.Equal(other.Terminated.Ref) &&
			m.Terminated.ExistenceConfirmed == other.Terminated.ExistenceConfirmed &&
			m.Terminated.AddressTerminated == other.Terminated.AddressTerminated
	default:
		return false
	}
}
