package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/jabolina/go-remoting/pkg/remoting/types"
)

// Top-level wire tags.
const (
	TagOffer          byte = 0x01
	TagAccept         byte = 0x02
	TagReject         byte = 0x03
	TagUserEnvelope   byte = 0x10
	TagSystemEnvelope byte = 0x11
)

// System message type discriminators.
const (
	sysTypeWatch      uint8 = 0
	sysTypeTerminated uint8 = 1
)

func writeString(buf *bytes.Buffer, s string) error {
	if len(s) > 0xFFFF {
		return &types.InvalidWireFormat{Detail: "string exceeds 16-bit length prefix"}
	}
	var length [2]byte
	binary.BigEndian.PutUint16(length[:], uint16(len(s)))
	buf.Write(length[:])
	buf.WriteString(s)
	return nil
}

func readString(r io.Reader) (string, error) {
	var length [2]byte
	if _, err := io.ReadFull(r, length[:]); err != nil {
		return "", &types.InvalidWireFormat{Detail: "truncated string length: " + err.Error()}
	}
	n := binary.BigEndian.Uint16(length[:])
	data := make([]byte, n)
	if _, err := io.ReadFull(r, data); err != nil {
		return "", &types.InvalidWireFormat{Detail: "truncated string body: " + err.Error()}
	}
	return string(data), nil
}

// EncodeUniqueNode writes the 5-tuple (protocol, systemName, host, port, nid).
func EncodeUniqueNode(buf *bytes.Buffer, n types.UniqueNode) error {
	for _, s := range []string{n.Protocol, n.SystemName, n.Host} {
		if err := writeString(buf, s); err != nil {
			return err
		}
	}
	var rest [6]byte
	binary.BigEndian.PutUint16(rest[0:2], n.Port)
	binary.BigEndian.PutUint32(rest[2:6], uint32(n.NID))
	buf.Write(rest[:])
	return nil
}

// DecodeUniqueNode reads back a UniqueNode written by EncodeUniqueNode.
func DecodeUniqueNode(r io.Reader) (types.UniqueNode, error) {
	var n types.UniqueNode
	protocol, err := readString(r)
	if err != nil {
		return n, err
	}
	systemName, err := readString(r)
	if err != nil {
		return n, err
	}
	host, err := readString(r)
	if err != nil {
		return n, err
	}
	var rest [6]byte
	if _, err := io.ReadFull(r, rest[:]); err != nil {
		return n, &types.InvalidWireFormat{Detail: "truncated node tail: " + err.Error()}
	}
	n.Protocol = protocol
	n.SystemName = systemName
	n.Host = host
	n.Port = binary.BigEndian.Uint16(rest[0:2])
	n.NID = types.NodeID(binary.BigEndian.Uint32(rest[2:6]))
	return n, nil
}

// EncodeActorAddress writes the map-shaped address: node, path, incarnation.
// When a.Node is nil, the local node from ctx is substituted; if ctx is nil
// in that case encoding fails with ErrMissingSerializationContext.
func EncodeActorAddress(buf *bytes.Buffer, a types.ActorAddress, ctx SerializationContext) error {
	node := a.Node
	if node == nil {
		if ctx == nil {
			return types.ErrMissingSerializationContext
		}
		local := ctx.LocalNode()
		node = &local
	}
	if err := EncodeUniqueNode(buf, *node); err != nil {
		return err
	}
	if len(a.Path) > 0xFFFF {
		return &types.InvalidWireFormat{Detail: "actor address path exceeds 16-bit segment count"}
	}
	var count [2]byte
	binary.BigEndian.PutUint16(count[:], uint16(len(a.Path)))
	buf.Write(count[:])
	for _, segment := range a.Path {
		if err := writeString(buf, segment); err != nil {
			return err
		}
	}
	var incarnation [4]byte
	binary.BigEndian.PutUint32(incarnation[:], a.Incarnation)
	buf.Write(incarnation[:])
	return nil
}

// DecodeActorAddress reads back an ActorAddress. The decoded Node is always
// present on the wire (encode never omits it), so decoding never needs a
// context to fill it in; ctx, when non-nil, is used only to resolve the
// address into the caller's local representation.
func DecodeActorAddress(r io.Reader, ctx SerializationContext) (types.ActorAddress, error) {
	var a types.ActorAddress
	node, err := DecodeUniqueNode(r)
	if err != nil {
		return a, err
	}
	a.Node = &node

	var count [2]byte
	if _, err := io.ReadFull(r, count[:]); err != nil {
		return a, &types.InvalidWireFormat{Detail: "truncated path count: " + err.Error()}
	}
	n := binary.BigEndian.Uint16(count[:])
	for i := uint16(0); i < n; i++ {
		segment, err := readString(r)
		if err != nil {
			return a, err
		}
		if segment == "" {
			return a, &types.InvalidWireFormat{Detail: "empty actor address path segment"}
		}
		a.Path = append(a.Path, segment)
	}

	var incarnation [4]byte
	if _, err := io.ReadFull(r, incarnation[:]); err != nil {
		return a, &types.InvalidWireFormat{Detail: "truncated incarnation: " + err.Error()}
	}
	a.Incarnation = binary.BigEndian.Uint32(incarnation[:])

	if ctx != nil {
		return ctx.ResolveAddress(a)
	}
	return a, nil
}

// EncodeOffer frames a complete Offer message: tag, sender UniqueNode,
// target UniqueNode.
func EncodeOffer(offer types.Offer) ([]byte, error) {
	buf := bytes.NewBuffer(nil)
	buf.WriteByte(TagOffer)
	if err := EncodeUniqueNode(buf, offer.Local); err != nil {
		return nil, err
	}
	if err := EncodeUniqueNode(buf, offer.Target); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// EncodeAccept frames a complete Accept message: tag, acceptor UniqueNode.
func EncodeAccept(accept types.Accept) ([]byte, error) {
	buf := bytes.NewBuffer(nil)
	buf.WriteByte(TagAccept)
	if err := EncodeUniqueNode(buf, accept.Local); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// EncodeReject frames a complete Reject message: tag, reason byte, UTF-8
// message.
func EncodeReject(reject types.Reject) ([]byte, error) {
	buf := bytes.NewBuffer(nil)
	buf.WriteByte(TagReject)
	buf.WriteByte(byte(reject.Reason))
	if err := writeString(buf, reject.Message); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// EncodeUserEnvelope frames a UserEnvelope: tag, recipient address, then a
// 32-bit length-prefixed opaque payload.
func EncodeUserEnvelope(recipient types.ActorAddress, payload []byte, ctx SerializationContext) ([]byte, error) {
	buf := bytes.NewBuffer(nil)
	buf.WriteByte(TagUserEnvelope)
	if err := EncodeActorAddress(buf, recipient, ctx); err != nil {
		return nil, err
	}
	var length [4]byte
	binary.BigEndian.PutUint32(length[:], uint32(len(payload)))
	buf.Write(length[:])
	buf.Write(payload)
	return buf.Bytes(), nil
}

// EncodeSystemMessage writes the keyed system-message body: a type
// discriminator followed by the variant's fields.
func EncodeSystemMessage(buf *bytes.Buffer, msg types.SystemMessage, ctx SerializationContext) error {
	switch msg.Type {
	case types.SystemWatch:
		buf.WriteByte(sysTypeWatch)
		if err := EncodeActorAddress(buf, msg.Watch.Watchee, ctx); err != nil {
			return err
		}
		return EncodeActorAddress(buf, msg.Watch.Watcher, ctx)
	case types.SystemTerminated:
		buf.WriteByte(sysTypeTerminated)
		if err := EncodeActorAddress(buf, msg.Terminated.Ref, ctx); err != nil {
			return err
		}
		var flags [2]byte
		if msg.Terminated.ExistenceConfirmed {
			flags[0] = 1
		}
		if msg.Terminated.AddressTerminated {
			flags[1] = 1
		}
		buf.Write(flags[:])
		return nil
	default:
		return &types.InvalidWireFormat{Detail: fmt.Sprintf("unknown system message type %d", msg.Type)}
	}
}

// DecodeSystemMessage reads back a system message body. An unrecognized
// type discriminator fails the enclosing connection rather than being
// silently skipped.
func DecodeSystemMessage(r io.Reader, ctx SerializationContext) (types.SystemMessage, error) {
	var typeByte [1]byte
	if _, err := io.ReadFull(r, typeByte[:]); err != nil {
		return types.SystemMessage{}, &types.InvalidWireFormat{Detail: "truncated system message type: " + err.Error()}
	}
	switch typeByte[0] {
	case sysTypeWatch:
		watchee, err := DecodeActorAddress(r, ctx)
		if err != nil {
			return types.SystemMessage{}, err
		}
		watcher, err := DecodeActorAddress(r, ctx)
		if err != nil {
			return types.SystemMessage{}, err
		}
		return types.Watch(watchee, watcher), nil
	case sysTypeTerminated:
		ref, err := DecodeActorAddress(r, ctx)
		if err != nil {
			return types.SystemMessage{}, err
		}
		var flags [2]byte
		if _, err := io.ReadFull(r, flags[:]); err != nil {
			return types.SystemMessage{}, &types.InvalidWireFormat{Detail: "truncated terminated flags: " + err.Error()}
		}
		return types.Terminated(ref, flags[0] == 1, flags[1] == 1), nil
	default:
		return types.SystemMessage{}, &types.InvalidWireFormat{Detail: fmt.Sprintf("unknown system message type %d", typeByte[0])}
	}
}

// EncodeSystemEnvelope frames a SystemEnvelope: tag, recipient address,
// then the system-message encoding.
func EncodeSystemEnvelope(recipient types.ActorAddress, msg types.SystemMessage, ctx SerializationContext) ([]byte, error) {
	buf := bytes.NewBuffer(nil)
	buf.WriteByte(TagSystemEnvelope)
	if err := EncodeActorAddress(buf, recipient, ctx); err != nil {
		return nil, err
	}
	if err := EncodeSystemMessage(buf, msg, ctx); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// EncodeEnvelope dispatches on the envelope's kind and frames the
// appropriate message.
func EncodeEnvelope(env types.TransportEnvelope, ctx SerializationContext) ([]byte, error) {
	switch env.Kind {
	case types.EnvelopeUser:
		return EncodeUserEnvelope(env.Recipient, env.Payload, ctx)
	case types.EnvelopeSystem:
		return EncodeSystemEnvelope(env.Recipient, env.SysMsg, ctx)
	default:
		return nil, &types.InvalidWireFormat{Detail: fmt.Sprintf("unknown envelope kind %d", env.Kind)}
	}
}

// Frame is the parsed result of decoding one top-level wire message: the
// handshake control messages, or a reconstructed envelope.
type Frame struct {
	Tag      byte
	Offer    *types.Offer
	Accept   *types.Accept
	Reject   *types.Reject
	Envelope *types.TransportEnvelope
}

// Decode reads one complete framed message (as produced by any of the
// Encode* functions above) and dispatches on its tag byte.
func Decode(data []byte, ctx SerializationContext) (Frame, error) {
	if len(data) == 0 {
		return Frame{}, &types.InvalidWireFormat{Detail: "empty frame"}
	}
	r := bytes.NewReader(data[1:])
	switch data[0] {
	case TagOffer:
		local, err := DecodeUniqueNode(r)
		if err != nil {
			return Frame{}, err
		}
		target, err := DecodeUniqueNode(r)
		if err != nil {
			return Frame{}, err
		}
		offer := types.Offer{Local: local, Target: target}
		return Frame{Tag: TagOffer, Offer: &offer}, nil
	case TagAccept:
		local, err := DecodeUniqueNode(r)
		if err != nil {
			return Frame{}, err
		}
		accept := types.Accept{Local: local}
		return Frame{Tag: TagAccept, Accept: &accept}, nil
	case TagReject:
		var reasonByte [1]byte
		if _, err := io.ReadFull(r, reasonByte[:]); err != nil {
			return Frame{}, &types.InvalidWireFormat{Detail: "truncated reject reason: " + err.Error()}
		}
		message, err := readString(r)
		if err != nil {
			return Frame{}, err
		}
		reject := types.Reject{Reason: types.RejectReason(reasonByte[0]), Message: message}
		return Frame{Tag: TagReject, Reject: &reject}, nil
	case TagUserEnvelope:
		recipient, err := DecodeActorAddress(r, ctx)
		if err != nil {
			return Frame{}, err
		}
		var length [4]byte
		if _, err := io.ReadFull(r, length[:]); err != nil {
			return Frame{}, &types.InvalidWireFormat{Detail: "truncated payload length: " + err.Error()}
		}
		payloadLen := binary.BigEndian.Uint32(length[:])
		payload := make([]byte, payloadLen)
		if _, err := io.ReadFull(r, payload); err != nil {
			return Frame{}, &types.InvalidWireFormat{Detail: "truncated payload: " + err.Error()}
		}
		env := types.NewUserEnvelope(payload, recipient, nil)
		return Frame{Tag: TagUserEnvelope, Envelope: &env}, nil
	case TagSystemEnvelope:
		recipient, err := DecodeActorAddress(r, ctx)
		if err != nil {
			return Frame{}, err
		}
		msg, err := DecodeSystemMessage(r, ctx)
		if err != nil {
			return Frame{}, err
		}
		env := types.NewSystemEnvelope(msg, recipient)
		return Frame{Tag: TagSystemEnvelope, Envelope: &env}, nil
	default:
		return Frame{}, &types.InvalidWireFormat{Detail: fmt.Sprintf("unknown tag byte 0x%x", data[0])}
	}
}
