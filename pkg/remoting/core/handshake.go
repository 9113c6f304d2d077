package core

import (
	"sync"
	"time"

	"github.com/jabolina/go-remoting/pkg/remoting/types"
)

// HandshakeState is the state of one in-flight handshake attempt, as seen
// from whichever side is tracking it.
type HandshakeState uint8

const (
	HandshakeInitiated HandshakeState = iota
	HandshakeCompleted
	HandshakeRejected
)

// HandshakeAttempt tracks a single handshake exchange from the initiator's
// point of view: the offer that was sent, and the eventual outcome -
// completed with a bound channel, or rejected with a reason. It is created
// per attempt and consumed once.
type HandshakeAttempt struct {
	Offer types.Offer

	mutex   sync.Mutex
	state   HandshakeState
	channel Channel
	reason  types.RejectReason
	detail  string
	done    chan struct{}
}

// NewHandshakeAttempt begins tracking an attempt for the given outbound
// offer.
func NewHandshakeAttempt(offer types.Offer) *HandshakeAttempt {
	return &HandshakeAttempt{
		Offer: offer,
		state: HandshakeInitiated,
		done:  make(chan struct{}),
	}
}

// State returns the attempt's current state.
func (h *HandshakeAttempt) State() HandshakeState {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return h.state
}

// Complete transitions the attempt to completed, binding channel. Only the
// first call (Complete or Reject) has any effect.
func (h *HandshakeAttempt) Complete(channel Channel) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if h.state != HandshakeInitiated {
		return
	}
	h.state = HandshakeCompleted
	h.channel = channel
	close(h.done)
}

// Reject transitions the attempt to rejected with reason/detail. Only the
// first call (Complete or Reject) has any effect.
func (h *HandshakeAttempt) Reject(reason types.RejectReason, detail string) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if h.state != HandshakeInitiated {
		return
	}
	h.state = HandshakeRejected
	h.reason = reason
	h.detail = detail
	close(h.done)
}

// Wait blocks until the attempt resolves or timeout elapses, returning the
// bound channel on success or a *types.HandshakeFailed on rejection/timeout.
func (h *HandshakeAttempt) Wait(timeout time.Duration) (Channel, error) {
	select {
	case <-h.done:
		h.mutex.Lock()
		defer h.mutex.Unlock()
		if h.state == HandshakeCompleted {
			return h.channel, nil
		}
		return nil, &types.HandshakeFailed{Reason: h.reason, Detail: h.detail}
	case <-time.After(timeout):
		return nil, &types.HandshakeFailed{Reason: types.RejectOther, Detail: "handshake timed out"}
	}
}
