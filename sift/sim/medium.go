/* siftd - SIFT geographic forwarding
 *
 * This file is licensed under the terms of the MIT License, as found in LICENSE.md.
 */

package sim

import (
	"net/netip"
	"sync"
	"time"

	"github.com/resilinets/siftd/sift/core"
	"github.com/resilinets/siftd/sift/defn"
	"github.com/resilinets/siftd/sift/fw"
)

// Receiver takes packets off the medium. fw.Engine is one.
type Receiver interface {
	Receive(wire []byte, carrier defn.NetHeader) (fw.Outcome, defn.RxStatus, error)
}

// CarrierTTL is the network TTL stamped on every frame.
const CarrierTTL = 64

type station struct {
	addr netip.Addr
	rx   Receiver
}

// Medium is a shared radio channel. A frame reaches every attached station
// within range of the sender, after the propagation delay.
type Medium struct {
	timer defn.Timer
	world *World
	// radio range in meters
	Range float64
	// propagation delay
	Delay time.Duration

	lock     sync.Mutex
	stations []station

	// Counters
	NTransmissions uint64
	NReceptions    uint64
}

// NewMedium creates a medium over world.
func NewMedium(timer defn.Timer, world *World, radioRange float64, delay time.Duration) *Medium {
	return &Medium{
		timer: timer,
		world: world,
		Range: radioRange,
		Delay: delay,
	}
}

func (m *Medium) String() string {
	return "sim-medium"
}

// Attach connects a station. Stations hear frames in attach order.
func (m *Medium) Attach(addr netip.Addr, rx Receiver) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.stations = append(m.stations, station{addr, rx})
}

// Send transmits a frame from src. A broadcast nextHop reaches every station
// in range; any other address reaches only that station.
func (m *Medium) Send(wire []byte, src netip.Addr, nextHop netip.Addr, protocol uint8) {
	m.lock.Lock()
	m.NTransmissions++
	stations := m.stations
	m.lock.Unlock()

	for _, st := range stations {
		if st.addr == src {
			continue
		}
		if nextHop != defn.Broadcast && nextHop != st.addr {
			continue
		}
		dist, ok := m.world.Distance(src, st.addr)
		if !ok || dist > m.Range {
			continue
		}

		frame := make([]byte, len(wire))
		copy(frame, wire)
		carrier := defn.NetHeader{
			Source:      src,
			Destination: nextHop,
			Protocol:    protocol,
			Ttl:         CarrierTTL,
			PayloadSize: uint16(len(frame)),
		}
		rx := st.rx
		m.timer.Schedule(m.Delay, func() {
			m.lock.Lock()
			m.NReceptions++
			m.lock.Unlock()

			if _, _, err := rx.Receive(frame, carrier); err != nil {
				core.Log.Debug(m, "Receive failed", "src", src, "err", err)
			}
		})
	}
}

// Counters returns the transmission and reception counts.
func (m *Medium) Counters() (tx uint64, rx uint64) {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.NTransmissions, m.NReceptions
}
