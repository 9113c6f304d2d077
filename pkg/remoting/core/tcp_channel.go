package core

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/jabolina/go-remoting/pkg/remoting/types"
	"github.com/jabolina/go-remoting/pkg/remoting/wire"
)

// frameWork pairs one outbound envelope with the callback that reports its
// write completion, so a single writer goroutine can serialize the
// conn.Write calls while still letting callers submit concurrently.
type frameWork struct {
	envelope types.TransportEnvelope
	cb       WriteCallback
}

// TCPChannel is the production Channel: one net.Conn per peer, a single
// writer goroutine draining an internal work queue so concurrent senders
// never interleave partial frames, and a 32-bit length prefix around each
// wire frame so the reader can resynchronize.
type TCPChannel struct {
	conn    net.Conn
	remote  types.UniqueNode
	ctx     wire.SerializationContext
	log     types.Logger
	invoker Invoker

	work chan frameWork

	closeOnce sync.Once
	closeErr  error
}

// NewTCPChannel wraps conn as a Channel to remote, encoding outgoing
// envelopes with serCtx. The writer goroutine is spawned via invoker (the
// owning Remoting passes its own NewInvoker() instance).
func NewTCPChannel(conn net.Conn, remote types.UniqueNode, serCtx wire.SerializationContext, log types.Logger, invoker Invoker) *TCPChannel {
	c := &TCPChannel{
		conn:    conn,
		remote:  remote,
		ctx:     serCtx,
		log:     log,
		invoker: invoker,
		work:    make(chan frameWork, 256),
	}
	invoker.Spawn(c.writeLoop)
	return c
}

func (c *TCPChannel) RemoteNode() types.UniqueNode {
	return c.remote
}

func (c *TCPChannel) WriteAndFlush(envelope types.TransportEnvelope, cb WriteCallback) {
	defer func() {
		// The work channel is closed on Close(); a send after that would
		// panic. Treat it the same as a write failure instead.
		if r := recover(); r != nil {
			if cb != nil {
				cb(fmt.Errorf("channel closed"))
			}
		}
	}()
	c.work <- frameWork{envelope: envelope, cb: cb}
}

func (c *TCPChannel) writeLoop() {
	writer := bufio.NewWriter(c.conn)
	for item := range c.work {
		err := c.writeFrame(writer, item.envelope)
		if err != nil {
			c.log.Errorf("channel write to %s failed: %v", c.remote, err)
		}
		if item.cb != nil {
			item.cb(err)
		}
	}
}

func (c *TCPChannel) writeFrame(writer *bufio.Writer, envelope types.TransportEnvelope) error {
	payload, err := wire.EncodeEnvelope(envelope, c.ctx)
	if err != nil {
		return err
	}
	return writeFrame(writer, payload)
}

// WriteFrame writes one length-prefixed frame to w: a 32-bit big-endian
// length followed by payload, the same framing TCPChannel's writer
// goroutine uses. It carries the handshake control messages
// (Offer/Accept/Reject), which are written directly to a net.Conn before
// any Channel exists for it.
func WriteFrame(w io.Writer, payload []byte) error {
	bw, ok := w.(*bufio.Writer)
	if !ok {
		bw = bufio.NewWriter(w)
		if err := writeFrame(bw, payload); err != nil {
			return err
		}
		return bw.Flush()
	}
	return writeFrame(bw, payload)
}

func writeFrame(writer *bufio.Writer, payload []byte) error {
	var length [4]byte
	binary.BigEndian.PutUint32(length[:], uint32(len(payload)))
	if _, err := writer.Write(length[:]); err != nil {
		return err
	}
	if _, err := writer.Write(payload); err != nil {
		return err
	}
	return writer.Flush()
}

// Close stops the writer goroutine and closes the underlying connection.
// Safe to call more than once.
func (c *TCPChannel) Close() error {
	c.closeOnce.Do(func() {
		close(c.work)
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

// ReadFrames blocks reading length-prefixed frames off the connection,
// decoding each with ctx and invoking onFrame, until the connection errors
// out (including on Close). It is meant to run on its own goroutine for
// the lifetime of the channel; the caller (Remoting's per-connection
// handler) owns dispatch of the decoded frames.
func ReadFrames(conn net.Conn, ctx wire.SerializationContext, onFrame func(wire.Frame) error) error {
	reader := bufio.NewReader(conn)
	for {
		var length [4]byte
		if _, err := readFull(reader, length[:]); err != nil {
			return err
		}
		n := binary.BigEndian.Uint32(length[:])
		data := make([]byte, n)
		if _, err := readFull(reader, data); err != nil {
			return err
		}
		frame, err := wire.Decode(data, ctx)
		if err != nil {
			return err
		}
		if err := onFrame(frame); err != nil {
			return err
		}
	}
}

func readFull(r *bufio.Reader, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
