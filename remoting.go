// Package remoting is the public entry point for the association
// subsystem: it owns a local UniqueNode, a cluster shell, and the network
// listener that turns inbound TCP connections into handshake events and
// outbound association requests into dialed connections.
package remoting

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/jabolina/go-remoting/pkg/remoting/core"
	"github.com/jabolina/go-remoting/pkg/remoting/types"
	"github.com/jabolina/go-remoting/pkg/remoting/wire"
)

// reapFanout divides the tombstone TTL to get the reap interval, so a
// tombstone is swept at most one interval after its deadline passes.
const reapFanout = 4

// Remoting is the facade a caller constructs to join the cluster: send to
// a peer (dialing and handshaking as needed), accept inbound associations,
// and shut the whole thing down cleanly.
type Remoting struct {
	self       types.UniqueNode
	settings   types.ClusterSettings
	log        types.Logger
	dispatcher core.InboundDispatcher
	shell      *core.ClusterShell
	serCtx     wire.SerializationContext
	invoker    core.Invoker

	listener net.Listener

	shutdownOnce sync.Once
}

// New constructs a Remoting for self. dispatcher receives envelopes
// delivered over associated channels; pass a *core.LoggingInboundDispatcher
// if the caller has no actor tree of its own yet.
func New(self types.UniqueNode, settings types.ClusterSettings, log types.Logger, dispatcher core.InboundDispatcher) *Remoting {
	invoker := core.NewInvoker()
	shell := core.NewClusterShell(self, settings, &core.LoggingDeadLetterSink{Log: log}, log, invoker)
	r := &Remoting{
		self:       self,
		settings:   settings,
		log:        log,
		dispatcher: dispatcher,
		shell:      shell,
		serCtx:     wire.StaticContext{Local: self},
		invoker:    invoker,
	}
	shell.OnNeedsHandshake = r.initiateHandshake
	return r
}

// Self returns the local node this Remoting was constructed for.
func (r *Remoting) Self() types.UniqueNode {
	return r.self
}

// Start binds bindAddr, begins accepting inbound connections, and starts
// the tombstone reaper.
func (r *Remoting) Start(bindAddr string) error {
	ln, err := net.Listen("tcp", bindAddr)
	if err != nil {
		return fmt.Errorf("binding %s: %w", bindAddr, err)
	}
	r.listener = ln
	r.shell.StartReaping(context.Background(), reapFanout)
	r.invoker.Spawn(r.acceptLoop)
	return nil
}

// Send looks up or creates the association for remote and submits a user
// message to it, returning a promise that resolves once the write is
// flushed (or fails, per the association's current/eventual state).
func (r *Remoting) Send(remote types.UniqueNode, recipient types.ActorAddress, payload []byte) *types.Promise {
	assoc := r.shell.AssociationFor(remote)
	promise := types.NewPromise()
	assoc.Send(types.NewUserEnvelope(payload, recipient, promise))
	return promise
}

// SendSystem submits a system message to the association for remote. No
// promise is carried; system messages are best-effort.
func (r *Remoting) SendSystem(remote types.UniqueNode, recipient types.ActorAddress, msg types.SystemMessage) {
	assoc := r.shell.AssociationFor(remote)
	assoc.Send(types.NewSystemEnvelope(msg, recipient))
}

// Shutdown closes the listener, terminates every association (dead-
// lettering anything still queued, failing outstanding promises), and
// waits for every spawned goroutine - the accept loop, per-connection
// readers, the reaper - to return.
func (r *Remoting) Shutdown() {
	r.shutdownOnce.Do(func() {
		if r.listener != nil {
			_ = r.listener.Close()
		}
		r.shell.Shutdown()
		r.invoker.Stop()
	})
}

func (r *Remoting) acceptLoop() {
	for {
		conn, err := r.listener.Accept()
		if err != nil {
			return
		}
		r.invoker.Spawn(func() {
			r.serveInbound(conn)
		})
	}
}

// serveInbound drives a single accepted connection: the first control
// frame must be an Offer, which the shell evaluates; once accepted, the
// same connection carries envelopes for the association's lifetime.
func (r *Remoting) serveInbound(conn net.Conn) {
	var remote types.UniqueNode
	var channel core.Channel

	err := core.ReadFrames(conn, r.serCtx, func(frame wire.Frame) error {
		switch frame.Tag {
		case wire.TagOffer:
			if channel != nil {
				return &types.InvalidWireFormat{Detail: "offer received after handshake completed"}
			}
			decision := r.shell.OnInboundOffer(*frame.Offer)
			if !decision.Accept {
				r.replyReject(conn, decision.Reason, decision.Message)
				return fmt.Errorf("offer from %s rejected: %s", frame.Offer.Local, decision.Reason)
			}
			payload, err := wire.EncodeAccept(types.Accept{Local: r.self})
			if err != nil {
				return err
			}
			if err := core.WriteFrame(conn, payload); err != nil {
				return err
			}
			remote = frame.Offer.Local
			channel = core.NewTCPChannel(conn, remote, r.serCtx, r.log, r.invoker)
			r.shell.OnHandshakeCompleted(remote, channel)
			return nil
		case wire.TagUserEnvelope, wire.TagSystemEnvelope:
			if channel == nil {
				return &types.InvalidWireFormat{Detail: "envelope before an accepted handshake"}
			}
			r.dispatcher.Dispatch(*frame.Envelope)
			return nil
		default:
			return &types.InvalidWireFormat{Detail: "unexpected control frame on an inbound connection"}
		}
	})
	if err != nil {
		r.log.Debugf("inbound connection ended: %v", err)
	}
	if channel == nil {
		_ = conn.Close()
	}
}

func (r *Remoting) replyReject(conn net.Conn, reason types.RejectReason, message string) {
	payload, err := wire.EncodeReject(types.Reject{Reason: reason, Message: message})
	if err != nil {
		r.log.Errorf("encoding reject: %v", err)
		return
	}
	if err := core.WriteFrame(conn, payload); err != nil {
		r.log.Warnf("writing reject: %v", err)
	}
}

// initiateHandshake dials remote, sends the outbound Offer, and then
// drives the same connection's read loop for the lifetime of the
// resulting association. It runs on its own goroutine, spawned by the
// cluster shell whenever AssociationFor creates a brand new association.
func (r *Remoting) initiateHandshake(remote types.UniqueNode, attempt *core.HandshakeAttempt) {
	addr := net.JoinHostPort(remote.Host, strconv.Itoa(int(remote.Port)))
	conn, err := net.DialTimeout("tcp", addr, r.settings.HandshakeTimeout)
	if err != nil {
		attempt.Reject(types.RejectOther, err.Error())
		r.shell.OnHandshakeRejected(remote, types.RejectOther)
		return
	}

	payload, err := wire.EncodeOffer(attempt.Offer)
	if err != nil {
		attempt.Reject(types.RejectOther, err.Error())
		r.shell.OnHandshakeRejected(remote, types.RejectOther)
		_ = conn.Close()
		return
	}
	if err := core.WriteFrame(conn, payload); err != nil {
		attempt.Reject(types.RejectOther, err.Error())
		r.shell.OnHandshakeRejected(remote, types.RejectOther)
		_ = conn.Close()
		return
	}

	r.runOutbound(conn, remote, attempt)
}

func (r *Remoting) runOutbound(conn net.Conn, remote types.UniqueNode, attempt *core.HandshakeAttempt) {
	var channel core.Channel

	// The initiator watches for a reply within HandshakeTimeout; once the
	// handshake resolves either way the deadline is cleared so a long-lived
	// associated channel never spuriously times out on an idle read.
	_ = conn.SetReadDeadline(time.Now().Add(r.settings.HandshakeTimeout))

	err := core.ReadFrames(conn, r.serCtx, func(frame wire.Frame) error {
		switch frame.Tag {
		case wire.TagAccept:
			if channel != nil {
				return &types.InvalidWireFormat{Detail: "duplicate accept"}
			}
			_ = conn.SetReadDeadline(time.Time{})
			channel = core.NewTCPChannel(conn, remote, r.serCtx, r.log, r.invoker)
			attempt.Complete(channel)
			r.shell.OnHandshakeCompleted(remote, channel)
			return nil
		case wire.TagReject:
			_ = conn.SetReadDeadline(time.Time{})
			attempt.Reject(frame.Reject.Reason, frame.Reject.Message)
			r.shell.OnHandshakeRejected(remote, frame.Reject.Reason)
			return fmt.Errorf("handshake with %s rejected: %s", remote, frame.Reject.Reason)
		case wire.TagUserEnvelope, wire.TagSystemEnvelope:
			if channel == nil {
				return &types.InvalidWireFormat{Detail: "envelope before accept"}
			}
			r.dispatcher.Dispatch(*frame.Envelope)
			return nil
		default:
			return &types.InvalidWireFormat{Detail: "unexpected control frame on an outbound connection"}
		}
	})
	if err != nil {
		r.log.Debugf("outbound connection to %s ended: %v", remote, err)
	}
	if channel == nil {
		_ = conn.Close()
		// Only a read/timeout failure with no control frame at all leaves
		// the attempt still Initiated here - an explicit Accept or Reject
		// already drove attempt and shell state from inside the callback
		// above, including the concurrentLost case, which must NOT
		// terminate the association since a parallel attempt is expected to
		// complete it.
		if attempt.State() == core.HandshakeInitiated {
			attempt.Reject(types.RejectOther, "handshake did not complete")
			r.shell.OnHandshakeRejected(remote, types.RejectOther)
		}
	}
}
