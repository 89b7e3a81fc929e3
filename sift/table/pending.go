/* siftd - SIFT geographic forwarding
 *
 * This file is licensed under the terms of the MIT License, as found in LICENSE.md.
 */

package table

import (
	"sync"
	"time"

	"github.com/resilinets/siftd/sift/core"
	"github.com/resilinets/siftd/sift/defn"
)

// PendingForward is a rebroadcast waiting for its delay to elapse.
type PendingForward struct {
	Key defn.PacketKey
	// packet to rebroadcast, header already updated for this hop
	Wire []byte
	// time the forward fires
	Due time.Time

	cancel func() error
}

// PendingTable holds at most one pending forward per packet key.
//
// Schedule and Cancel must be called with the owner's lock held. Expiry
// takes the same lock, so whichever of cancel and expiry gets the lock
// first decides the outcome.
type PendingTable struct {
	timer   defn.Timer
	lock    sync.Locker
	entries map[defn.PacketKey]*PendingForward
}

type noLock struct{}

func (noLock) Lock()   {}
func (noLock) Unlock() {}

// NewPendingTable creates a table scheduling on timer. lock is the owner's
// lock; nil means the owner is single-threaded.
func NewPendingTable(timer defn.Timer, lock sync.Locker) *PendingTable {
	if lock == nil {
		lock = noLock{}
	}
	return &PendingTable{
		timer:   timer,
		lock:    lock,
		entries: make(map[defn.PacketKey]*PendingForward),
	}
}

func (pt *PendingTable) String() string {
	return "sift-pending"
}

// Size returns the number of pending forwards.
func (pt *PendingTable) Size() int {
	return len(pt.entries)
}

// Has reports whether a forward is pending for key.
func (pt *PendingTable) Has(key defn.PacketKey) bool {
	_, ok := pt.entries[key]
	return ok
}

// Get returns the pending forward for key, if any.
func (pt *PendingTable) Get(key defn.PacketKey) (*PendingForward, bool) {
	e, ok := pt.entries[key]
	return e, ok
}

// Schedule registers a forward of wire after delay, replacing any forward
// pending for the same key. fire runs without the lock once the entry has
// been removed from the table.
func (pt *PendingTable) Schedule(
	key defn.PacketKey,
	delay time.Duration,
	wire []byte,
	fire func(*PendingForward),
) *PendingForward {
	if pt.Cancel(key) {
		core.Log.Debug(pt, "Replaced pending forward", "key", key)
	}

	e := &PendingForward{
		Key:  key,
		Wire: wire,
		Due:  pt.timer.Now().Add(delay),
	}
	pt.entries[key] = e
	e.cancel = pt.timer.Schedule(delay, func() {
		if pt.expire(e) {
			fire(e)
		}
	})
	return e
}

// Cancel removes the forward pending for key.
// Returns false if nothing was pending.
func (pt *PendingTable) Cancel(key defn.PacketKey) bool {
	e, ok := pt.entries[key]
	if !ok {
		return false
	}
	delete(pt.entries, key)
	if err := e.cancel(); err != nil {
		core.Log.Trace(pt, "Cancel after expiry", "key", key, "err", err)
	}
	return true
}

// CancelAll removes every pending forward and returns how many there were.
func (pt *PendingTable) CancelAll() int {
	n := len(pt.entries)
	for key := range pt.entries {
		pt.Cancel(key)
	}
	return n
}

// expire removes e if it is still the current entry for its key.
func (pt *PendingTable) expire(e *PendingForward) bool {
	pt.lock.Lock()
	defer pt.lock.Unlock()

	if cur, ok := pt.entries[e.Key]; !ok || cur != e {
		return false // cancelled or replaced
	}
	delete(pt.entries, e.Key)
	return true
}
