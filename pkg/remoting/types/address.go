package types

import "strings"

// ActorAddress identifies an actor within a given node incarnation. Node is
// optional at construction time: when absent at encode time the local node
// is substituted from the ambient serialization context (see the wire
// package), and absence is only ever legal in that narrow window.
type ActorAddress struct {
	Node        *UniqueNode
	Path        []string
	Incarnation uint32
}

// Validate enforces that the path is a non-empty sequence of non-empty
// segments.
func (a ActorAddress) Validate() error {
	if len(a.Path) == 0 {
		return errEmptyPath
	}
	for _, segment := range a.Path {
		if segment == "" {
			return errEmptyPathSegment
		}
	}
	return nil
}

// String renders the address path the way log lines and error messages
// reference it; it is not the wire format.
func (a ActorAddress) String() string {
	var node string
	if a.Node != nil {
		node = a.Node.String()
	} else {
		node = "<local>"
	}
	return node + "/" + strings.Join(a.Path, "/")
}

// Equal compares two addresses field by field. Two nil Nodes are equal;
// a nil and non-nil Node are not.
func (a ActorAddress) Equal(other ActorAddress) bool {
	if a.Incarnation != other.Incarnation {
		return false
	}
	if len(a.Path) != len(other.Path) {
		return false
	}
	for i := range a.Path {
		if a.Path[i] != other.Path[i] {
			return false
		}
	}
	switch {
	case a.Node == nil && other.Node == nil:
		return true
	case a.Node == nil || other.Node == nil:
		return false
	default:
		return a.Node.Equal(*other.Node)
	}
}
