/* siftd - SIFT geographic forwarding
 *
 * This file is licensed under the terms of the MIT License, as found in LICENSE.md.
 */

package live

import (
	"fmt"
	"net/netip"
	"path/filepath"
	"time"

	"github.com/resilinets/siftd/sift/core"
	"github.com/resilinets/siftd/sift/defn"
	"github.com/resilinets/siftd/sift/sim"
	"github.com/resilinets/siftd/std/utils/toolutils"
)

// StationConfig describes one live station attached to a hub.
type StationConfig struct {
	// WebSocket URL of the hub
	Hub  string `json:"hub"`
	Addr string `json:"addr"`

	Position defn.Vector `json:"position"`
	Velocity defn.Vector `json:"velocity"`
	// Position announcement interval of a moving station (milliseconds)
	Announce_ms uint64 `json:"announce_ms"`

	// Flows originated by this station; src may be omitted
	Flows []sim.FlowSpec `json:"flows"`

	Core core.CoreConfig `json:"core"`
	Sift core.SiftConfig `json:"sift"`
}

func DefaultStationConfig() *StationConfig {
	c := core.DefaultConfig()
	return &StationConfig{
		Hub:         "ws://localhost:8470/",
		Announce_ms: 1000,
		Core:        c.Core,
		Sift:        c.Sift,
	}
}

// LoadStationConfig reads a station file over the defaults.
func LoadStationConfig(path string) (*StationConfig, error) {
	s := DefaultStationConfig()
	if err := toolutils.ReadYaml(s, path); err != nil {
		return nil, err
	}
	s.Core.BaseDir = filepath.Dir(path)
	return s, s.Validate()
}

// ParseStationConfig decodes a station document over the defaults.
func ParseStationConfig(doc []byte) (*StationConfig, error) {
	s := DefaultStationConfig()
	if err := toolutils.ParseYaml(s, doc); err != nil {
		return nil, err
	}
	return s, s.Validate()
}

// Config returns the node configuration of the station.
func (s *StationConfig) Config() *core.Config {
	return &core.Config{Core: s.Core, Sift: s.Sift}
}

func (s *StationConfig) AnnounceInterval() time.Duration {
	return time.Duration(s.Announce_ms) * time.Millisecond
}

// Validate checks the station and node configuration, and fills in the
// source of every flow.
func (s *StationConfig) Validate() error {
	if err := s.Config().Parse(); err != nil {
		return err
	}
	if s.Hub == "" {
		return fmt.Errorf("hub URL is required")
	}
	addr, err := netip.ParseAddr(s.Addr)
	if err != nil {
		return fmt.Errorf("station address: %w", err)
	}
	if !addr.Is4() {
		return fmt.Errorf("station address must be IPv4: %s", addr)
	}
	if s.Velocity != (defn.Vector{}) && s.Announce_ms == 0 {
		return fmt.Errorf("a moving station needs announce_ms")
	}

	for i := range s.Flows {
		f := &s.Flows[i]
		if f.Src == "" {
			f.Src = s.Addr
		}
		src, err := netip.ParseAddr(f.Src)
		if err != nil {
			return fmt.Errorf("flow %d: %w", i, err)
		}
		dst, err := netip.ParseAddr(f.Dst)
		if err != nil {
			return fmt.Errorf("flow %d: %w", i, err)
		}
		if src != addr {
			return fmt.Errorf("flow %d: source %s is not this station", i, src)
		}
		if dst == addr {
			return fmt.Errorf("flow %d: source and destination are the same", i)
		}
	}
	return nil
}
