package core

import "github.com/jabolina/go-remoting/pkg/remoting/types"

// DeadLetterSink receives messages an association can no longer deliver:
// either because it never could (tombstoned) or because it just stopped
// being able to (terminate draining the pending queue).
type DeadLetterSink interface {
	Deliver(underlyingMessage interface{}, recipient types.ActorAddress)
}

// LoggingDeadLetterSink is the default sink: it logs every dead letter at
// Warn level, so a dropped message always leaves a trace.
type LoggingDeadLetterSink struct {
	Log types.Logger
}

func (s *LoggingDeadLetterSink) Deliver(underlyingMessage interface{}, recipient types.ActorAddress) {
	s.Log.Warnf("dead letter to %s: %#v", recipient, underlyingMessage)
}
