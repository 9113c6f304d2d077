package core

import "sync"

// Invoker spawns and tracks goroutines, so components can fire off
// background work without each owning its own WaitGroup bookkeeping.
type Invoker interface {
	// Spawn runs f on its own goroutine, tracked so Stop can wait for it.
	Spawn(f func())

	// Stop blocks until every spawned goroutine has returned.
	Stop()
}

type invoker struct {
	group sync.WaitGroup
}

// instance is the process-wide Invoker.
var instance = &invoker{}

// InvokerInstance returns the shared Invoker that NewClusterShell falls
// back to when the caller does not supply its own.
func InvokerInstance() Invoker {
	return instance
}

// NewInvoker returns a fresh Invoker whose Stop waits only for goroutines
// it spawned itself. Each Remoting owns one, so shutting one instance down
// never blocks on another instance's accept loop or readers.
func NewInvoker() Invoker {
	return &invoker{}
}

func (i *invoker) Spawn(f func()) {
	i.group.Add(1)
	go func() {
		defer i.group.Done()
		f()
	}()
}

func (i *invoker) Stop() {
	i.group.Wait()
}
