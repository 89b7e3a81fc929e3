/* siftd - SIFT geographic forwarding
 *
 * This file is licensed under the terms of the MIT License, as found in LICENSE.md.
 */

package sim

import (
	"fmt"
	"net/netip"
	"path/filepath"
	"time"

	"github.com/resilinets/siftd/sift/core"
	"github.com/resilinets/siftd/sift/defn"
	"github.com/resilinets/siftd/std/utils/toolutils"
)

// Scenario describes a simulation run.
type Scenario struct {
	Name string `json:"name"`
	// Length of the run (milliseconds)
	Duration_ms uint64 `json:"duration_ms"`

	Radio struct {
		// Radio range (meters)
		Range float64 `json:"range"`
		// Propagation delay (nanoseconds)
		Delay_ns uint64 `json:"delay_ns"`
	} `json:"radio"`

	// Optional grid of static nodes, placed before the listed nodes
	Grid struct {
		Count     int     `json:"count"`
		Width     int     `json:"width"`
		XDistance float64 `json:"x_distance"`
		YDistance float64 `json:"y_distance"`
	} `json:"grid"`

	Nodes []NodeSpec `json:"nodes"`
	Flows []FlowSpec `json:"flows"`

	// Node configuration shared by every engine
	Core core.CoreConfig `json:"core"`
	Sift core.SiftConfig `json:"sift"`
}

// NodeSpec places one node. An empty address is assigned from 10.0.0.0/8
// by position in the node list.
type NodeSpec struct {
	Addr     string      `json:"addr"`
	Position defn.Vector `json:"position"`
	Velocity defn.Vector `json:"velocity"`
}

// FlowSpec is a CBR flow between two nodes.
type FlowSpec struct {
	Src string `json:"src"`
	Dst string `json:"dst"`
	// First send (milliseconds)
	Start_ms uint64 `json:"start_ms"`
	// Send interval (milliseconds)
	Interval_ms uint64 `json:"interval_ms"`
	// No sends at or after this time (milliseconds), zero for none
	Stop_ms uint64 `json:"stop_ms"`
	// Number of packets, zero for unbounded
	Count int `json:"count"`
	// Payload size (bytes)
	Size int `json:"size"`
	// Next header, zero for the configured default
	Protocol uint8 `json:"protocol"`
}

// DefaultScenario returns an empty scenario with reference radio settings.
func DefaultScenario() *Scenario {
	s := &Scenario{}
	s.Name = "scenario"
	s.Duration_ms = 10000
	s.Radio.Range = 250
	s.Radio.Delay_ns = 1000

	c := core.DefaultConfig()
	s.Core = c.Core
	s.Sift = c.Sift
	return s
}

// LoadScenario reads a scenario file over the defaults.
func LoadScenario(path string) (*Scenario, error) {
	s := DefaultScenario()
	if err := toolutils.ReadYaml(s, path); err != nil {
		return nil, err
	}
	s.Core.BaseDir = filepath.Dir(path)
	return s, s.Validate()
}

// ParseScenario decodes a scenario document over the defaults.
func ParseScenario(doc []byte) (*Scenario, error) {
	s := DefaultScenario()
	if err := toolutils.ParseYaml(s, doc); err != nil {
		return nil, err
	}
	return s, s.Validate()
}

// Config returns the node configuration of the scenario.
func (s *Scenario) Config() *core.Config {
	return &core.Config{Core: s.Core, Sift: s.Sift}
}

// Duration returns the length of the run.
func (s *Scenario) Duration() time.Duration {
	return time.Duration(s.Duration_ms) * time.Millisecond
}

// Validate checks the scenario and the node configuration.
func (s *Scenario) Validate() error {
	if err := s.Config().Parse(); err != nil {
		return err
	}
	if s.Duration_ms == 0 {
		return fmt.Errorf("duration_ms must be positive")
	}
	if s.Radio.Range <= 0 {
		return fmt.Errorf("radio range must be positive")
	}
	if s.Grid.Count < 0 || (s.Grid.Count > 0 && s.Grid.Width <= 0) {
		return fmt.Errorf("grid needs a positive width")
	}

	nodes, err := s.Placements()
	if err != nil {
		return err
	}
	known := make(map[netip.Addr]bool, len(nodes))
	for _, n := range nodes {
		if known[n.Addr] {
			return fmt.Errorf("duplicate node address %s", n.Addr)
		}
		known[n.Addr] = true
	}

	for i, f := range s.Flows {
		src, err := netip.ParseAddr(f.Src)
		if err != nil {
			return fmt.Errorf("flow %d: %w", i, err)
		}
		dst, err := netip.ParseAddr(f.Dst)
		if err != nil {
			return fmt.Errorf("flow %d: %w", i, err)
		}
		if !known[src] || !known[dst] {
			return fmt.Errorf("flow %d: unknown node %s or %s", i, src, dst)
		}
		if src == dst {
			return fmt.Errorf("flow %d: source and destination are the same", i)
		}
	}
	return nil
}

// Placement is a node with a resolved address.
type Placement struct {
	Addr     netip.Addr
	Position defn.Vector
	Velocity defn.Vector
}

// Placements returns every node of the scenario, grid nodes first.
func (s *Scenario) Placements() ([]Placement, error) {
	ret := make([]Placement, 0, s.Grid.Count+len(s.Nodes))
	for i := 0; i < s.Grid.Count; i++ {
		ret = append(ret, Placement{
			Addr: nthAddr(len(ret)),
			Position: defn.Vector{
				X: float64(i%s.Grid.Width) * s.Grid.XDistance,
				Y: float64(i/s.Grid.Width) * s.Grid.YDistance,
			},
		})
	}

	for _, n := range s.Nodes {
		p := Placement{Position: n.Position, Velocity: n.Velocity}
		if n.Addr == "" {
			p.Addr = nthAddr(len(ret))
		} else {
			addr, err := netip.ParseAddr(n.Addr)
			if err != nil {
				return nil, err
			}
			if !addr.Is4() {
				return nil, fmt.Errorf("node address must be IPv4: %s", addr)
			}
			p.Addr = addr
		}
		ret = append(ret, p)
	}
	return ret, nil
}

// nthAddr is 10.0.0.1 for i=0, counting upwards.
func nthAddr(i int) netip.Addr {
	n := uint32(i + 1)
	return netip.AddrFrom4([4]byte{10, byte(n >> 16), byte(n >> 8), byte(n)})
}
