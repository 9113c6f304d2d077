package core

import (
	"sync"
	"time"

	"github.com/jabolina/go-remoting/pkg/remoting/types"
)

// Tombstone marks a terminated peer. Registry membership is over
// RemoteNode only; RemovalDeadline is carried for expiry but never
// consulted for membership, so a lookup never needs to fabricate a
// deadline - TombstoneRegistry keys its set by RemoteNode alone.
type Tombstone struct {
	RemoteNode      types.UniqueNode
	RemovalDeadline time.Time
}

// TombstoneRegistry is the set of terminated-peer markers, reaped
// periodically by the cluster shell.
type TombstoneRegistry struct {
	mutex   sync.RWMutex
	entries map[types.UniqueNode]Tombstone
}

// NewTombstoneRegistry allocates an empty registry.
func NewTombstoneRegistry() *TombstoneRegistry {
	return &TombstoneRegistry{entries: make(map[types.UniqueNode]Tombstone)}
}

// Put installs a tombstone for remote with the given TTL measured from now.
func (r *TombstoneRegistry) Put(remote types.UniqueNode, ttl time.Duration, now time.Time) Tombstone {
	t := Tombstone{RemoteNode: remote, RemovalDeadline: now.Add(ttl)}
	r.mutex.Lock()
	r.entries[remote] = t
	r.mutex.Unlock()
	return t
}

// Contains reports whether remote is currently tombstoned.
func (r *TombstoneRegistry) Contains(remote types.UniqueNode) bool {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	_, ok := r.entries[remote]
	return ok
}

// Reap removes every tombstone whose RemovalDeadline has passed as of now,
// and returns how many were removed.
func (r *TombstoneRegistry) Reap(now time.Time) int {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	removed := 0
	for node, tombstone := range r.entries {
		if !tombstone.RemovalDeadline.After(now) {
			delete(r.entries, node)
			removed++
		}
	}
	return removed
}

// Len reports the number of live tombstones. Test/diagnostic use only.
func (r *TombstoneRegistry) Len() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return len(r.entries)
}
