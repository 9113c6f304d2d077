package types

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
)

// DefaultProtocol is used for a Node whose protocol was left unset.
const DefaultProtocol = "sact"

// Node identifies a network endpoint a remote system listens on. Two Nodes
// with an identical quadruple are considered the same endpoint, regardless
// of which process is currently bound to it.
type Node struct {
	Protocol   string
	SystemName string
	Host       string
	Port       uint16
}

// NodeID is the random per-process incarnation tag that lets a UniqueNode
// distinguish between two processes that happen to reuse the same Node.
type NodeID uint32

// NewNodeID draws a fresh incarnation tag from a cryptographic-quality RNG,
// as required by the identity invariant in the data model.
func NewNodeID() (NodeID, error) {
	var buf [4]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0, fmt.Errorf("generating node id: %w", err)
	}
	return NodeID(binary.BigEndian.Uint32(buf[:])), nil
}

// UniqueNode is a Node plus its incarnation. Equality considers all five
// fields; two UniqueNodes sharing a Node but differing in NID are distinct
// peers that must never be conflated.
type UniqueNode struct {
	Node
	NID NodeID
}

func (n Node) String() string {
	return fmt.Sprintf("%s://%s@%s:%d", n.Protocol, n.SystemName, n.Host, n.Port)
}

func (u UniqueNode) String() string {
	return fmt.Sprintf("%s#%d", u.Node.String(), u.NID)
}

// Equal reports whether the two UniqueNodes name the same incarnation of
// the same endpoint.
func (u UniqueNode) Equal(other UniqueNode) bool {
	return u.Node == other.Node && u.NID == other.NID
}

// Less implements the tie-break comparison order from the handshake
// protocol: lexicographic over (protocol, systemName, host, port, nid).
func (u UniqueNode) Less(other UniqueNode) bool {
	if u.Protocol != other.Protocol {
		return u.Protocol < other.Protocol
	}
	if u.SystemName != other.SystemName {
		return u.SystemName < other.SystemName
	}
	if u.Host != other.Host {
		return u.Host < other.Host
	}
	if u.Port != other.Port {
		return u.Port < other.Port
	}
	return u.NID < other.NID
}

// Validate enforces the non-empty-field invariant on Node's string members
// and the port range.
func (n Node) Validate() error {
	if n.Protocol == "" {
		return fmt.Errorf("node protocol must not be empty")
	}
	if n.SystemName == "" {
		return fmt.Errorf("node system name must not be empty")
	}
	if n.Host == "" {
		return fmt.Errorf("node host must not be empty")
	}
	if n.Port == 0 {
		return fmt.Errorf("node port must be in [1, 65535], got 0")
	}
	return nil
}

// WithDefaults returns a copy of n with Protocol defaulted to DefaultProtocol
// when unset.
func (n Node) WithDefaults() Node {
	if n.Protocol == "" {
		n.Protocol = DefaultProtocol
	}
	return n
}
