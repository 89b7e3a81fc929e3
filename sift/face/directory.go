/* siftd - SIFT geographic forwarding
 *
 * This file is licensed under the terms of the MIT License, as found in LICENSE.md.
 */

package face

import (
	"net/netip"
	"sync"

	"github.com/resilinets/siftd/sift/defn"
)

type motion struct {
	position defn.Vector
	velocity defn.Vector
}

// Directory holds the last announced position of every station on a hub.
// It is the mobility source of a live engine.
type Directory struct {
	lock    sync.RWMutex
	entries map[netip.Addr]motion
}

func NewDirectory() *Directory {
	return &Directory{entries: make(map[netip.Addr]motion)}
}

// Update records an announcement.
func (d *Directory) Update(addr netip.Addr, position defn.Vector, velocity defn.Vector) {
	d.lock.Lock()
	defer d.lock.Unlock()
	d.entries[addr] = motion{position, velocity}
}

// Remove forgets a station.
func (d *Directory) Remove(addr netip.Addr) {
	d.lock.Lock()
	defer d.lock.Unlock()
	delete(d.entries, addr)
}

func (d *Directory) Position(addr netip.Addr) (defn.Vector, bool) {
	d.lock.RLock()
	defer d.lock.RUnlock()
	m, ok := d.entries[addr]
	return m.position, ok
}

func (d *Directory) Velocity(addr netip.Addr) (defn.Vector, bool) {
	d.lock.RLock()
	defer d.lock.RUnlock()
	m, ok := d.entries[addr]
	return m.velocity, ok
}

// Size returns the number of known stations.
func (d *Directory) Size() int {
	d.lock.RLock()
	defer d.lock.RUnlock()
	return len(d.entries)
}
