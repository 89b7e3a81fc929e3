/* siftd - SIFT geographic forwarding
 *
 * This file is licensed under the terms of the MIT License, as found in LICENSE.md.
 */

package table

import (
	"fmt"
	"net/netip"
	"time"

	"github.com/resilinets/siftd/sift/core"
	"github.com/resilinets/siftd/sift/defn"
)

// Values written into an invalidated record.
var (
	InvalidPosition = defn.Vector{X: 9999, Y: 9999, Z: 9999}
	InvalidVelocity = defn.Vector{X: 256, Y: 256, Z: 256}
)

// GeoRecord is the last known geographic state of a node.
type GeoRecord struct {
	// address of the node
	Addr netip.Addr
	// node this record was learned through
	ReceivedFrom netip.Addr

	Position defn.Vector
	Velocity defn.Vector

	// time the record was last written
	RecordedTime time.Time
	// time the position sample was taken
	DataRecordedTime time.Time
	// validity window
	StartTime  time.Time
	ExpireTime time.Time

	// a correction for this node is already propagating
	IsBeingUpdated bool
	// the velocity vector changed since it was last announced
	IsChanged bool
	// false once the record has been invalidated
	Valid bool
}

func (r *GeoRecord) String() string {
	return fmt.Sprintf("geo(%s from=%s pos=%s vel=%s changed=%t valid=%t)",
		r.Addr, r.ReceivedFrom, r.Position, r.Velocity, r.IsChanged, r.Valid)
}

// GeoTable holds one record per node address. Records are never removed,
// only invalidated, so the slot and anything attached to it survive.
type GeoTable struct {
	// clock used to stamp invalidations
	now func() time.Time
	// node address -> record
	records map[netip.Addr]*GeoRecord
}

// NewGeoTable creates an empty table stamped by now.
func NewGeoTable(now func() time.Time) *GeoTable {
	return &GeoTable{
		now:     now,
		records: make(map[netip.Addr]*GeoRecord),
	}
}

func (gt *GeoTable) String() string {
	return "sift-geo"
}

// Size returns the number of slots, including invalidated ones.
func (gt *GeoTable) Size() int {
	return len(gt.records)
}

// Find returns a copy of the record for addr.
func (gt *GeoTable) Find(addr netip.Addr) (GeoRecord, bool) {
	if r, ok := gt.records[addr]; ok {
		return *r, true
	}
	return GeoRecord{}, false
}

// All returns copies of every record.
func (gt *GeoTable) All() []GeoRecord {
	ret := make([]GeoRecord, 0, len(gt.records))
	for _, r := range gt.records {
		ret = append(ret, *r)
	}
	return ret
}

// Upsert merges rec into the table.
// Returns true if a triggered update should be propagated: the node is new,
// or its velocity differs from the stored one.
func (gt *GeoTable) Upsert(rec GeoRecord) (needsTriggerUpdate bool) {
	r, ok := gt.records[rec.Addr]
	if !ok {
		rec.IsChanged = true
		rec.Valid = true
		gt.records[rec.Addr] = &rec
		core.Log.Trace(gt, "Added record", "addr", rec.Addr, "pos", rec.Position)
		return true
	}

	if r.Velocity != rec.Velocity {
		core.Log.Debug(gt, "Velocity changed, trigger update", "addr", rec.Addr,
			"old", r.Velocity, "new", rec.Velocity)
		r.IsChanged = true
		needsTriggerUpdate = true
	}

	// Merge in place; fields not carried by a sighting are kept.
	r.Position = rec.Position
	r.Velocity = rec.Velocity
	r.RecordedTime = rec.RecordedTime
	r.DataRecordedTime = rec.DataRecordedTime
	r.ExpireTime = rec.ExpireTime
	r.ReceivedFrom = rec.ReceivedFrom
	if r.StartTime.IsZero() {
		r.StartTime = rec.StartTime
	}
	r.IsBeingUpdated = false
	r.Valid = true
	return needsTriggerUpdate
}

// Invalidate resets the record of addr to sentinel values, keeping the slot.
func (gt *GeoTable) Invalidate(addr netip.Addr) {
	r, ok := gt.records[addr]
	if !ok {
		return
	}
	r.Position = InvalidPosition
	r.Velocity = InvalidVelocity
	r.RecordedTime = gt.now()
	r.DataRecordedTime = time.Time{}
	r.StartTime = time.Time{}
	r.ExpireTime = time.Time{}
	r.ReceivedFrom = netip.Addr{}
	r.IsBeingUpdated = false
	r.IsChanged = false
	r.Valid = false
	core.Log.Debug(gt, "Invalidated record", "addr", addr)
}

// SetBeingUpdated marks whether a correction for addr is in flight.
func (gt *GeoTable) SetBeingUpdated(addr netip.Addr, updating bool) {
	if r, ok := gt.records[addr]; ok {
		r.IsBeingUpdated = updating
	}
}

// IsBeingUpdated is false for unknown addresses.
func (gt *GeoTable) IsBeingUpdated(addr netip.Addr) bool {
	if r, ok := gt.records[addr]; ok {
		return r.IsBeingUpdated
	}
	return false
}

func (gt *GeoTable) SetChanged(addr netip.Addr, changed bool) {
	if r, ok := gt.records[addr]; ok {
		r.IsChanged = changed
	}
}

func (gt *GeoTable) SetAllChanged(changed bool) {
	for _, r := range gt.records {
		r.IsChanged = changed
	}
}
