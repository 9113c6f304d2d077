package core

import (
	"sync"

	"github.com/jabolina/go-remoting/pkg/remoting/types"
)

// MockChannel is an in-memory Channel test double: WriteAndFlush records
// each envelope, in call order, and synchronously invokes cb with FailWith
// (or nil). Tests assert on the recorded write log to check flush order.
type MockChannel struct {
	remote types.UniqueNode

	mutex    sync.Mutex
	writeLog []types.TransportEnvelope
	closed   bool

	// FailWith, when non-nil, is passed to the callback of every
	// subsequent WriteAndFlush instead of recording the envelope.
	FailWith error
}

// NewMockChannel builds a MockChannel standing in for a connection to
// remote.
func NewMockChannel(remote types.UniqueNode) *MockChannel {
	return &MockChannel{remote: remote}
}

func (m *MockChannel) RemoteNode() types.UniqueNode {
	return m.remote
}

func (m *MockChannel) WriteAndFlush(envelope types.TransportEnvelope, cb WriteCallback) {
	m.mutex.Lock()
	err := m.FailWith
	if err == nil {
		m.writeLog = append(m.writeLog, envelope)
	}
	m.mutex.Unlock()
	if cb != nil {
		cb(err)
	}
}

func (m *MockChannel) Close() error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.closed = true
	return nil
}

// Closed reports whether Close has been called.
func (m *MockChannel) Closed() bool {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.closed
}

// WriteLog returns a snapshot of every envelope written so far, in order.
func (m *MockChannel) WriteLog() []types.TransportEnvelope {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	out := make([]types.TransportEnvelope, len(m.writeLog))
	copy(out, m.writeLog)
	return out
}
