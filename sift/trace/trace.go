/* siftd - SIFT geographic forwarding
 *
 * This file is licensed under the terms of the MIT License, as found in LICENSE.md.
 */

package trace

import (
	"net/netip"

	"github.com/resilinets/siftd/sift/defn"
	"github.com/resilinets/siftd/sift/fw"
	"github.com/resilinets/siftd/std/log"
)

// Event kinds
const (
	KindTransmit = "tx"
	KindDrop     = "drop"
)

// Multi fans events out to several tracers.
type Multi []fw.Tracer

func (m Multi) Transmitted(node netip.Addr, hdr defn.Header) {
	for _, t := range m {
		t.Transmitted(node, hdr)
	}
}

func (m Multi) Dropped(node netip.Addr, hdr defn.Header, o fw.Outcome) {
	for _, t := range m {
		t.Dropped(node, hdr, o)
	}
}

// LogTracer writes every event to a logger.
type LogTracer struct {
	Log *log.Logger
}

type nodeTag netip.Addr

func (n nodeTag) String() string {
	return "sift-trace(" + netip.Addr(n).String() + ")"
}

func (l LogTracer) Transmitted(node netip.Addr, hdr defn.Header) {
	l.Log.Info(nodeTag(node), "Transmit", "key", hdr.Key(), "ttl", hdr.TTL, "last", hdr.LastHop())
}

func (l LogTracer) Dropped(node netip.Addr, hdr defn.Header, o fw.Outcome) {
	l.Log.Info(nodeTag(node), "Drop", "key", hdr.Key(), "outcome", o)
}
