package core

import (
	"testing"

	"github.com/jabolina/go-remoting/pkg/remoting/types"
)

// testLogger discards everything; it exists so tests don't have to depend
// on definition.DefaultLogger (and, by extension, logrus) just to satisfy
// types.Logger.
type testLogger struct{}

func (testLogger) Info(...interface{})           {}
func (testLogger) Infof(string, ...interface{})  {}
func (testLogger) Warn(...interface{})           {}
func (testLogger) Warnf(string, ...interface{})  {}
func (testLogger) Error(...interface{})          {}
func (testLogger) Errorf(string, ...interface{}) {}
func (testLogger) Debug(...interface{})          {}
func (testLogger) Debugf(string, ...interface{}) {}
func (testLogger) ToggleDebug(value bool) bool   { return value }

// collectingSink records every dead-lettered message, for assertions on
// what an association drained where.
type collectingSink struct {
	delivered []interface{}
}

func (s *collectingSink) Deliver(msg interface{}, _ types.ActorAddress) {
	s.delivered = append(s.delivered, msg)
}

func makeNode(t *testing.T, system string, nid types.NodeID) types.UniqueNode {
	t.Helper()
	return types.UniqueNode{
		Node: types.Node{Protocol: "sact", SystemName: system, Host: "10.0.0.1", Port: 7000},
		NID:  nid,
	}
}
