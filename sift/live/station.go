/* siftd - SIFT geographic forwarding
 *
 * This file is licensed under the terms of the MIT License, as found in LICENSE.md.
 */

package live

import (
	"fmt"
	"net/netip"
	"sync"
	"time"

	"github.com/resilinets/siftd/sift/core"
	"github.com/resilinets/siftd/sift/defn"
	"github.com/resilinets/siftd/sift/face"
	"github.com/resilinets/siftd/sift/fw"
	"github.com/resilinets/siftd/sift/sched"
	"github.com/resilinets/siftd/sift/sim"
)

// Station is a SIFT node running in real time over a hub.
type Station struct {
	Addr   netip.Addr
	Link   *face.WebSocketLink
	Engine *fw.Engine
	Sink   *sim.Sink
	Flows  []*sim.Flow

	config *StationConfig
	clock  sched.WallClock
	motion sim.Motion

	stop chan struct{}
	wg   sync.WaitGroup
}

// Elapsed is the shared clock of every live station: time since the unix epoch.
func Elapsed() time.Duration {
	return time.Since(time.Unix(0, 0))
}

// NewStation connects a station to its hub. tracer may be nil.
func NewStation(cfg *StationConfig, tracer fw.Tracer) (*Station, error) {
	addr, err := netip.ParseAddr(cfg.Addr)
	if err != nil {
		return nil, err
	}

	link, err := face.DialLink(cfg.Hub, addr, cfg.Position, cfg.Velocity)
	if err != nil {
		return nil, fmt.Errorf("unable to reach hub %s: %w", cfg.Hub, err)
	}

	s := &Station{
		Addr:   addr,
		Link:   link,
		Sink:   sim.NewSink(addr, Elapsed),
		config: cfg,
		clock:  sched.NewWallClock(),
		motion: sim.Motion{Start: cfg.Position, Velocity: cfg.Velocity, Since: Elapsed()},
		stop:   make(chan struct{}),
	}

	config := cfg.Config()
	s.Engine, err = fw.NewEngine(fw.EngineOptions{
		Config:   config,
		Addr:     addr,
		Timer:    s.clock,
		Link:     link,
		Mobility: link.Directory(),
		Tracer:   tracer,
	})
	if err != nil {
		link.Close()
		return nil, err
	}
	s.Engine.RegisterTransport(defn.ProtoUDP, s.Sink)
	s.Engine.RegisterTransport(defn.ProtoTCP, s.Sink)
	s.Engine.RegisterTransport(config.Sift.NextHeader, s.Sink)
	link.Attach(s.Engine)

	for i, fs := range cfg.Flows {
		s.Flows = append(s.Flows, &sim.Flow{
			ID:       uint32(i + 1),
			Src:      addr,
			Dst:      netip.MustParseAddr(fs.Dst),
			Start:    time.Duration(fs.Start_ms) * time.Millisecond,
			Interval: time.Duration(fs.Interval_ms) * time.Millisecond,
			Stop:     time.Duration(fs.Stop_ms) * time.Millisecond,
			Count:    fs.Count,
			Size:     fs.Size,
			Protocol: fs.Protocol,
		})
	}
	return s, nil
}

func (s *Station) String() string {
	return fmt.Sprintf("live-station(%s)", s.Addr)
}

// Start receives from the hub, moves the station and starts its flows.
// Flow times count from the call.
func (s *Station) Start() {
	core.Log.Info(s, "Starting station", "hub", s.config.Hub, "position", s.config.Position,
		"flows", len(s.Flows))

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.Link.Run()
	}()

	if s.config.Velocity != (defn.Vector{}) {
		s.wg.Add(1)
		go s.move()
	}

	now := Elapsed()
	for _, f := range s.Flows {
		f.Start += now
		if f.Stop > 0 {
			f.Stop += now
		}
		f.Run(s.clock, Elapsed, s.Engine)
	}
}

func (s *Station) move() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.config.AnnounceInterval())
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			pos := s.motion.At(Elapsed())
			if err := s.Link.Announce(pos, s.motion.Velocity); err != nil {
				core.Log.Warn(s, "Unable to announce position", "err", err)
				return
			}
		}
	}
}

// Close stops the flows, leaves the hub and waits for the receive loop.
// Forwards still pending are dropped.
func (s *Station) Close() {
	for _, f := range s.Flows {
		f.Halt()
	}
	close(s.stop)
	s.Link.Close()
	s.wg.Wait()

	n := s.Engine.CancelPending()
	core.Log.Info(s, "Stopped station", "nOutPackets", s.Engine.Counters().NOutPackets, "nCancelled", n)
}
