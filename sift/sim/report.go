/* siftd - SIFT geographic forwarding
 *
 * This file is licensed under the terms of the MIT License, as found in LICENSE.md.
 */

package sim

import (
	"net/netip"
	"time"

	"github.com/resilinets/siftd/sift/fw"
)

// NodeReport holds the final counters of one node.
type NodeReport struct {
	Addr     netip.Addr
	Counters fw.Counters
	Received uint64
}

// Report summarizes a run.
type Report struct {
	Name     string
	Duration time.Duration

	// application packets
	Sent       uint64
	Failed     uint64
	Delivered  uint64
	Duplicates uint64
	// frames put on the medium
	Transmissions uint64
	Receptions    uint64
	// rebroadcasts fired
	Forwards uint64
	// rebroadcasts suppressed before firing
	Suppressed uint64

	Drops map[fw.Outcome]uint64

	DeliveryRatio float64
	MeanLatency   time.Duration

	Nodes []NodeReport
}

// Report collects the counters of every node.
func (n *Network) Report() *Report {
	r := &Report{
		Name:     n.Scenario.Name,
		Duration: n.Sched.Elapsed(),
		Drops:    make(map[fw.Outcome]uint64),
	}
	r.Transmissions, r.Receptions = n.Medium.Counters()

	for _, f := range n.Flows {
		sent, failed := f.Sent()
		r.Sent += sent
		r.Failed += failed
	}

	var latency time.Duration
	for _, node := range n.Nodes {
		c := node.Engine.Counters()
		node.Sink.lock.Lock()
		received := node.Sink.NReceived
		r.Duplicates += node.Sink.NDuplicates
		latency += node.Sink.TotalLatency
		node.Sink.lock.Unlock()

		r.Delivered += received
		r.Forwards += c.NForwarded
		// scheduled forwards that still wait are neither fired nor suppressed
		r.Suppressed += c.NScheduled - c.NForwarded - uint64(node.Engine.NumPending())
		for o, k := range c.Drops {
			r.Drops[o] += k
		}
		r.Nodes = append(r.Nodes, NodeReport{Addr: node.Addr, Counters: c, Received: received})
	}

	if r.Sent > 0 {
		r.DeliveryRatio = float64(r.Delivered) / float64(r.Sent)
	}
	if r.Delivered > 0 {
		r.MeanLatency = latency / time.Duration(r.Delivered)
	}
	return r
}
