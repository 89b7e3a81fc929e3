/* siftd - SIFT geographic forwarding
 *
 * This file is licensed under the terms of the MIT License, as found in LICENSE.md.
 */

package sim

import (
	"fmt"
	"net/netip"
	"time"

	"github.com/resilinets/siftd/sift/core"
	"github.com/resilinets/siftd/sift/defn"
	"github.com/resilinets/siftd/sift/fw"
	"github.com/resilinets/siftd/sift/sched"
)

// Node is one simulated SIFT node.
type Node struct {
	Addr   netip.Addr
	Engine *fw.Engine
	Sink   *Sink
}

// Network is a set of nodes sharing one medium and one virtual clock.
type Network struct {
	Scenario *Scenario
	Sched    *sched.Scheduler
	World    *World
	Medium   *Medium
	Nodes    []*Node
	Flows    []*Flow

	byAddr map[netip.Addr]*Node
}

// NewNetwork builds the nodes and flows of a scenario. tracer may be nil.
func NewNetwork(scn *Scenario, tracer fw.Tracer) (*Network, error) {
	placements, err := scn.Placements()
	if err != nil {
		return nil, err
	}

	n := &Network{
		Scenario: scn,
		Sched:    sched.NewScheduler(),
		byAddr:   make(map[netip.Addr]*Node, len(placements)),
	}
	n.World = NewWorld(n.Sched.Elapsed)
	n.Medium = NewMedium(n.Sched, n.World, scn.Radio.Range,
		time.Duration(scn.Radio.Delay_ns)*time.Nanosecond)

	for _, p := range placements {
		n.World.Move(p.Addr, p.Position, p.Velocity)
	}

	config := scn.Config()
	for _, p := range placements {
		engine, err := fw.NewEngine(fw.EngineOptions{
			Config:   config,
			Addr:     p.Addr,
			Timer:    n.Sched,
			Link:     n.Medium,
			Mobility: n.World,
			Tracer:   tracer,
		})
		if err != nil {
			return nil, err
		}

		node := &Node{
			Addr:   p.Addr,
			Engine: engine,
			Sink:   NewSink(p.Addr, n.Sched.Elapsed),
		}
		engine.RegisterTransport(defn.ProtoUDP, node.Sink)
		engine.RegisterTransport(defn.ProtoTCP, node.Sink)
		if config.Sift.NextHeader != defn.ProtoUDP && config.Sift.NextHeader != defn.ProtoTCP {
			engine.RegisterTransport(config.Sift.NextHeader, node.Sink)
		}

		n.Medium.Attach(p.Addr, engine)
		n.Nodes = append(n.Nodes, node)
		n.byAddr[p.Addr] = node
	}

	for i, fs := range scn.Flows {
		flow := &Flow{
			ID:       uint32(i + 1),
			Src:      netip.MustParseAddr(fs.Src),
			Dst:      netip.MustParseAddr(fs.Dst),
			Start:    time.Duration(fs.Start_ms) * time.Millisecond,
			Interval: time.Duration(fs.Interval_ms) * time.Millisecond,
			Stop:     time.Duration(fs.Stop_ms) * time.Millisecond,
			Count:    fs.Count,
			Size:     fs.Size,
			Protocol: fs.Protocol,
		}
		if n.byAddr[flow.Src] == nil || n.byAddr[flow.Dst] == nil {
			return nil, fmt.Errorf("flow %d: unknown node", flow.ID)
		}
		if fs.Protocol != 0 {
			n.byAddr[flow.Dst].Engine.RegisterTransport(fs.Protocol, n.byAddr[flow.Dst].Sink)
		}
		n.Flows = append(n.Flows, flow)
	}

	return n, nil
}

func (n *Network) String() string {
	return fmt.Sprintf("sim-network(%s)", n.Scenario.Name)
}

// Node returns the node at addr.
func (n *Network) Node(addr netip.Addr) *Node {
	return n.byAddr[addr]
}

// Run starts every flow and runs the scenario to its end.
func (n *Network) Run() *Report {
	core.Log.Info(n, "Starting run", "nodes", len(n.Nodes), "flows", len(n.Flows),
		"duration", n.Scenario.Duration())

	for _, f := range n.Flows {
		f.Run(n.Sched, n.Sched.Elapsed, n.byAddr[f.Src].Engine)
	}
	n.Sched.RunUntil(n.Scenario.Duration())

	report := n.Report()
	core.Log.Info(n, "Run finished", "sent", report.Sent, "delivered", report.Delivered,
		"events", n.Sched.Fired())
	return report
}

// RunScenario builds and runs a scenario.
func RunScenario(scn *Scenario, tracer fw.Tracer) (*Report, error) {
	n, err := NewNetwork(scn, tracer)
	if err != nil {
		return nil, err
	}
	return n.Run(), nil
}
