package types

import "sync"

// Promise is the optional completion notifier carried inside an envelope.
// It resolves exactly once, with a nil error on success.
type Promise struct {
	once sync.Once
	done chan error
}

// NewPromise allocates an unresolved Promise.
func NewPromise() *Promise {
	return &Promise{done: make(chan error, 1)}
}

// Complete resolves the promise with err. Only the first call has any
// effect; later calls are no-ops, so both a channel's write-completion
// callback and a terminate() can race to resolve it safely.
func (p *Promise) Complete(err error) {
	p.once.Do(func() {
		p.done <- err
	})
}

// Done returns a channel that receives the promise's result exactly once.
func (p *Promise) Done() <-chan error {
	return p.done
}
