/* siftd - SIFT geographic forwarding
 *
 * This file is licensed under the terms of the MIT License, as found in LICENSE.md.
 */

package table

import (
	"time"

	"github.com/resilinets/siftd/sift/core"
	"github.com/resilinets/siftd/sift/defn"
)

// DedupTable remembers recently seen packets for a fixed window.
// Expired records are swept lazily on lookup.
type DedupTable struct {
	window time.Duration
	seen   map[defn.PacketKey]time.Time
}

// NewDedupTable creates a table whose records live for window.
func NewDedupTable(window time.Duration) *DedupTable {
	return &DedupTable{
		window: window,
		seen:   make(map[defn.PacketKey]time.Time),
	}
}

func (dt *DedupTable) String() string {
	return "sift-dedup"
}

// Size returns the number of records, including ones not yet swept.
func (dt *DedupTable) Size() int {
	return len(dt.seen)
}

// Window returns the record lifetime.
func (dt *DedupTable) Window() time.Duration {
	return dt.window
}

// RegisterSeen records key as seen at t.
func (dt *DedupTable) RegisterSeen(key defn.PacketKey, t time.Time) {
	dt.seen[key] = t
}

// IsDuplicate sweeps expired records, then reports whether key was seen
// within the window before now.
func (dt *DedupTable) IsDuplicate(key defn.PacketKey, now time.Time) bool {
	dt.Sweep(now)
	_, ok := dt.seen[key]
	return ok
}

// Sweep drops every record at least one window old.
func (dt *DedupTable) Sweep(now time.Time) {
	for key, t := range dt.seen {
		if now.Sub(t) >= dt.window {
			delete(dt.seen, key)
			core.Log.Trace(dt, "Expired record", "key", key)
		}
	}
}
