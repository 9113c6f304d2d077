package wire

import (
	"bytes"
	"testing"

	"github.com/jabolina/go-remoting/pkg/remoting/types"
)

func testNode(nid types.NodeID) types.UniqueNode {
	return types.UniqueNode{
		Node: types.Node{Protocol: "sact", SystemName: "sys", Host: "10.0.0.1", Port: 7000},
		NID:  nid,
	}
}

func TestUniqueNodeRoundTrip(t *testing.T) {
	n := testNode(0xCAFEBABE)
	buf := bytes.NewBuffer(nil)
	if err := EncodeUniqueNode(buf, n); err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := DecodeUniqueNode(buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !decoded.Equal(n) {
		t.Fatalf("round trip mismatch: got %s, want %s", decoded, n)
	}
}

func TestActorAddressRoundTrip(t *testing.T) {
	n := testNode(1)
	ctx := StaticContext{Local: n}
	addr := types.ActorAddress{Node: &n, Path: []string{"user", "greeter"}, Incarnation: 7}

	buf := bytes.NewBuffer(nil)
	if err := EncodeActorAddress(buf, addr, ctx); err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := DecodeActorAddress(buf, ctx)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !decoded.Equal(addr) {
		t.Fatalf("round trip mismatch: got %#v, want %#v", decoded, addr)
	}
}

func TestActorAddressEncodeSubstitutesLocalNodeWhenAbsent(t *testing.T) {
	local := testNode(1)
	ctx := StaticContext{Local: local}
	addr := types.ActorAddress{Path: []string{"user", "greeter"}}

	buf := bytes.NewBuffer(nil)
	if err := EncodeActorAddress(buf, addr, ctx); err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := DecodeActorAddress(buf, ctx)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Node == nil || !decoded.Node.Equal(local) {
		t.Fatalf("expected the local node to be substituted, got %#v", decoded.Node)
	}
}

// proxyContext resolves every decoded address into a local proxy by
// stamping a recognizable incarnation, standing in for an actor tree that
// swaps wire addresses for its own refs.
type proxyContext struct {
	local types.UniqueNode
}

func (c proxyContext) LocalNode() types.UniqueNode {
	return c.local
}

func (c proxyContext) ResolveAddress(addr types.ActorAddress) (types.ActorAddress, error) {
	addr.Incarnation = 0xBEEF
	return addr, nil
}

func TestDecodeResolvesAddressesThroughContext(t *testing.T) {
	n := testNode(1)
	msg := types.Watch(
		types.ActorAddress{Node: &n, Path: []string{"user", "watchee"}},
		types.ActorAddress{Node: &n, Path: []string{"user", "watcher"}},
	)

	payload, err := EncodeSystemEnvelope(types.ActorAddress{Node: &n, Path: []string{"user", "watchee"}}, msg, StaticContext{Local: n})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	frame, err := Decode(payload, proxyContext{local: n})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	watch := frame.Envelope.SysMsg.Watch
	if watch.Watchee.Incarnation != 0xBEEF || watch.Watcher.Incarnation != 0xBEEF {
		t.Fatalf("expected both addresses to be resolved into local proxies, got %#v", watch)
	}
}

func TestActorAddressEncodeFailsWithoutContextOrNode(t *testing.T) {
	addr := types.ActorAddress{Path: []string{"user"}}
	buf := bytes.NewBuffer(nil)
	err := EncodeActorAddress(buf, addr, nil)
	if err != types.ErrMissingSerializationContext {
		t.Fatalf("expected ErrMissingSerializationContext, got %v", err)
	}
}

func TestWatchSystemMessageRoundTrip(t *testing.T) {
	n := testNode(1)
	ctx := StaticContext{Local: n}
	msg := types.Watch(
		types.ActorAddress{Node: &n, Path: []string{"user", "a"}},
		types.ActorAddress{Node: &n, Path: []string{"user", "b"}},
	)

	payload, err := EncodeSystemEnvelope(types.ActorAddress{Node: &n, Path: []string{"user", "a"}}, msg, ctx)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	frame, err := Decode(payload, ctx)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if frame.Envelope == nil || !frame.Envelope.SysMsg.Equal(msg) {
		t.Fatalf("round trip mismatch: got %#v, want %#v", frame.Envelope, msg)
	}
}

func TestTerminatedSystemMessageRoundTrip(t *testing.T) {
	n := testNode(1)
	ctx := StaticContext{Local: n}
	msg := types.Terminated(types.ActorAddress{Node: &n, Path: []string{"user", "a"}}, true, false)

	payload, err := EncodeSystemEnvelope(types.ActorAddress{Node: &n, Path: []string{"user", "a"}}, msg, ctx)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	frame, err := Decode(payload, ctx)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if frame.Envelope == nil || !frame.Envelope.SysMsg.Equal(msg) {
		t.Fatalf("round trip mismatch: got %#v, want %#v", frame.Envelope, msg)
	}
}

func TestUserEnvelopeRoundTrip(t *testing.T) {
	n := testNode(1)
	ctx := StaticContext{Local: n}
	recipient := types.ActorAddress{Node: &n, Path: []string{"user", "a"}}
	payload := []byte("hello associated world")

	encoded, err := EncodeUserEnvelope(recipient, payload, ctx)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	frame, err := Decode(encoded, ctx)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if frame.Envelope == nil || !bytes.Equal(frame.Envelope.Payload, payload) {
		t.Fatalf("payload mismatch: got %q, want %q", frame.Envelope.Payload, payload)
	}
	if !frame.Envelope.Recipient.Equal(recipient) {
		t.Fatalf("recipient mismatch: got %#v, want %#v", frame.Envelope.Recipient, recipient)
	}
}

func TestDecodeRejectsEmptyFrame(t *testing.T) {
	if _, err := Decode(nil, nil); err == nil {
		t.Fatal("expected an empty frame to be rejected")
	} else if _, ok := err.(*types.InvalidWireFormat); !ok {
		t.Fatalf("expected *types.InvalidWireFormat, got %T", err)
	}
}

func TestDecodeRejectsUnknownTag(t *testing.T) {
	_, err := Decode([]byte{0xFF}, nil)
	if _, ok := err.(*types.InvalidWireFormat); !ok {
		t.Fatalf("expected *types.InvalidWireFormat, got %T (%v)", err, err)
	}
}

func TestDecodeRejectsTruncatedOffer(t *testing.T) {
	offer, err := EncodeOffer(types.Offer{Local: testNode(1), Target: testNode(2)})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	truncated := offer[:len(offer)-4]
	if _, err := Decode(truncated, nil); err == nil {
		t.Fatal("expected a truncated offer to fail decoding")
	}
}

func TestDecodeRejectsUnknownSystemMessageType(t *testing.T) {
	n := testNode(1)
	ctx := StaticContext{Local: n}
	recipient := types.ActorAddress{Node: &n, Path: []string{"a"}}

	buf := bytes.NewBuffer(nil)
	buf.WriteByte(TagSystemEnvelope)
	if err := EncodeActorAddress(buf, recipient, ctx); err != nil {
		t.Fatalf("encode address: %v", err)
	}
	buf.WriteByte(0x7F) // unknown system message type discriminator

	_, err := Decode(buf.Bytes(), ctx)
	if _, ok := err.(*types.InvalidWireFormat); !ok {
		t.Fatalf("expected *types.InvalidWireFormat for an unknown system message type, got %T (%v)", err, err)
	}
}

func TestOfferAcceptRejectRoundTrip(t *testing.T) {
	offerPayload, err := EncodeOffer(types.Offer{Local: testNode(1), Target: testNode(2)})
	if err != nil {
		t.Fatalf("encode offer: %v", err)
	}
	frame, err := Decode(offerPayload, nil)
	if err != nil {
		t.Fatalf("decode offer: %v", err)
	}
	if frame.Offer == nil || !frame.Offer.Local.Equal(testNode(1)) || !frame.Offer.Target.Equal(testNode(2)) {
		t.Fatalf("offer round trip mismatch: %#v", frame.Offer)
	}

	acceptPayload, err := EncodeAccept(types.Accept{Local: testNode(2)})
	if err != nil {
		t.Fatalf("encode accept: %v", err)
	}
	frame, err = Decode(acceptPayload, nil)
	if err != nil {
		t.Fatalf("decode accept: %v", err)
	}
	if frame.Accept == nil || !frame.Accept.Local.Equal(testNode(2)) {
		t.Fatalf("accept round trip mismatch: %#v", frame.Accept)
	}

	rejectPayload, err := EncodeReject(types.Reject{Reason: types.RejectDuplicate, Message: "already associated"})
	if err != nil {
		t.Fatalf("encode reject: %v", err)
	}
	frame, err = Decode(rejectPayload, nil)
	if err != nil {
		t.Fatalf("decode reject: %v", err)
	}
	if frame.Reject == nil || frame.Reject.Reason != types.RejectDuplicate || frame.Reject.Message != "already associated" {
		t.Fatalf("reject round trip mismatch: %#v", frame.Reject)
	}
}
