/* siftd - SIFT geographic forwarding
 *
 * This file is licensed under the terms of the MIT License, as found in LICENSE.md.
 */

package sim

import (
	"net/netip"
	"sync"
	"time"

	"github.com/resilinets/siftd/sift/defn"
)

// Motion is a constant-velocity track. A zero velocity is a static node.
type Motion struct {
	// position at Since
	Start    defn.Vector
	Velocity defn.Vector
	Since    time.Duration
}

// At returns the position at virtual time t.
func (m Motion) At(t time.Duration) defn.Vector {
	return m.Start.Add(m.Velocity.Scale((t - m.Since).Seconds()))
}

// World knows where every simulated node is.
type World struct {
	clock  func() time.Duration
	lock   sync.RWMutex
	motion map[netip.Addr]Motion
}

// NewWorld creates a world driven by clock.
func NewWorld(clock func() time.Duration) *World {
	return &World{
		clock:  clock,
		motion: make(map[netip.Addr]Motion),
	}
}

// Place puts a static node at pos.
func (w *World) Place(addr netip.Addr, pos defn.Vector) {
	w.Move(addr, pos, defn.Vector{})
}

// Move starts addr on a constant-velocity track from pos, now.
func (w *World) Move(addr netip.Addr, pos defn.Vector, vel defn.Vector) {
	w.lock.Lock()
	defer w.lock.Unlock()
	w.motion[addr] = Motion{Start: pos, Velocity: vel, Since: w.clock()}
}

// SetVelocity changes the velocity of addr, keeping its current position.
func (w *World) SetVelocity(addr netip.Addr, vel defn.Vector) bool {
	pos, ok := w.Position(addr)
	if !ok {
		return false
	}
	w.Move(addr, pos, vel)
	return true
}

// Remove takes addr out of the world.
func (w *World) Remove(addr netip.Addr) {
	w.lock.Lock()
	defer w.lock.Unlock()
	delete(w.motion, addr)
}

func (w *World) Position(addr netip.Addr) (defn.Vector, bool) {
	w.lock.RLock()
	m, ok := w.motion[addr]
	w.lock.RUnlock()
	if !ok {
		return defn.Vector{}, false
	}
	return m.At(w.clock()), true
}

func (w *World) Velocity(addr netip.Addr) (defn.Vector, bool) {
	w.lock.RLock()
	defer w.lock.RUnlock()
	m, ok := w.motion[addr]
	return m.Velocity, ok
}

// Distance returns the distance between two nodes.
func (w *World) Distance(a, b netip.Addr) (float64, bool) {
	pa, ok := w.Position(a)
	if !ok {
		return 0, false
	}
	pb, ok := w.Position(b)
	if !ok {
		return 0, false
	}
	return pa.Distance(pb), true
}
