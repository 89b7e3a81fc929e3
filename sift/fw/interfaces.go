/* siftd - SIFT geographic forwarding
 *
 * This file is licensed under the terms of the MIT License, as found in LICENSE.md.
 */

package fw

import (
	"net/netip"

	"github.com/resilinets/siftd/sift/defn"
)

// LinkLayer sends packets downward. nextHop is always the broadcast address
// for SIFT traffic.
type LinkLayer interface {
	Send(wire []byte, src netip.Addr, nextHop netip.Addr, protocol uint8)
}

// Transport is an upper-layer protocol handler registered for a next-header
// value.
type Transport interface {
	Receive(payload []byte, hdr defn.NetHeader) defn.RxStatus
}

// TransportFunc adapts a function to a Transport.
type TransportFunc func(payload []byte, hdr defn.NetHeader) defn.RxStatus

func (f TransportFunc) Receive(payload []byte, hdr defn.NetHeader) defn.RxStatus {
	return f(payload, hdr)
}

// Mobility reports the current position and velocity of any node.
type Mobility interface {
	Position(addr netip.Addr) (defn.Vector, bool)
	Velocity(addr netip.Addr) (defn.Vector, bool)
}

// Tracer observes packets leaving or dropped by an engine.
type Tracer interface {
	Transmitted(node netip.Addr, hdr defn.Header)
	Dropped(node netip.Addr, hdr defn.Header, outcome Outcome)
}

type nopTracer struct{}

func (nopTracer) Transmitted(netip.Addr, defn.Header) {}
func (nopTracer) Dropped(netip.Addr, defn.Header, Outcome) {}
