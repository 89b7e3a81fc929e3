/* siftd - SIFT geographic forwarding
 *
 * This file is licensed under the terms of the MIT License, as found in LICENSE.md.
 */

package fw

import (
	"errors"
	"fmt"
	"net/netip"
	"sync"

	"github.com/resilinets/siftd/sift/core"
	"github.com/resilinets/siftd/sift/defn"
	"github.com/resilinets/siftd/sift/table"
)

// EngineOptions are the collaborators of an Engine.
type EngineOptions struct {
	// Protocol parameters. Nil means core.DefaultConfig().
	Config *core.Config
	// Own IPv4 address
	Addr netip.Addr
	// Clock and scheduler
	Timer defn.Timer
	// Downward send path
	Link LinkLayer
	// Position provider
	Mobility Mobility
	// Optional packet observer
	Tracer Tracer
}

// Counters are the packet counters of an engine.
type Counters struct {
	NInPackets  uint64
	NOutPackets uint64
	NOriginated uint64
	NDelivered  uint64
	NForwarded  uint64
	NScheduled  uint64
	NDropped    uint64
	// drops by outcome
	Drops map[Outcome]uint64
}

// Engine is the SIFT forwarding engine of one node. It owns the node's geo
// store, duplicate table and pending forwards.
type Engine struct {
	addr     netip.Addr
	config   *core.Config
	timer    defn.Timer
	link     LinkLayer
	mobility Mobility
	tracer   Tracer

	// guards everything below
	lock       sync.Mutex
	geo        *table.GeoTable
	dedup      *table.DedupTable
	pending    *table.PendingTable
	transports map[uint8]Transport
	seq        uint32
	counters   Counters
}

// NewEngine creates an engine and records its own position in the geo store.
func NewEngine(opts EngineOptions) (*Engine, error) {
	if !opts.Addr.Is4() {
		return nil, fmt.Errorf("engine address must be IPv4: %s", opts.Addr)
	}
	if opts.Timer == nil || opts.Link == nil || opts.Mobility == nil {
		return nil, errors.New("engine needs a timer, a link layer and a mobility provider")
	}

	config := opts.Config
	if config == nil {
		config = core.DefaultConfig()
	}
	if err := config.Parse(); err != nil {
		return nil, err
	}

	tracer := opts.Tracer
	if tracer == nil {
		tracer = nopTracer{}
	}

	e := &Engine{
		addr:       opts.Addr,
		config:     config,
		timer:      opts.Timer,
		link:       opts.Link,
		mobility:   opts.Mobility,
		tracer:     tracer,
		transports: make(map[uint8]Transport),
	}
	e.geo = table.NewGeoTable(e.timer.Now)
	e.dedup = table.NewDedupTable(config.DedupWindow())
	e.pending = table.NewPendingTable(e.timer, &e.lock)
	e.counters.Drops = make(map[Outcome]uint64)

	e.lock.Lock()
	e.recordSighting(e.addr, e.addr, defn.Point{})
	pos := e.ownPosition()
	e.lock.Unlock()

	core.Log.Info(e, "Engine started", "pos", pos)
	return e, nil
}

func (e *Engine) String() string {
	return fmt.Sprintf("sift-node(%s)", e.addr)
}

// Addr returns the engine's own address.
func (e *Engine) Addr() netip.Addr {
	return e.addr
}

// RegisterTransport installs the upper-layer handler for a next-header value.
func (e *Engine) RegisterTransport(protocol uint8, t Transport) {
	e.lock.Lock()
	defer e.lock.Unlock()
	e.transports[protocol] = t
}

// UnregisterTransport removes the handler for a next-header value.
func (e *Engine) UnregisterTransport(protocol uint8) {
	e.lock.Lock()
	defer e.lock.Unlock()
	delete(e.transports, protocol)
}

// Send originates payload from src to dst. src must be the engine's own
// address. protocol is the next-header value of the payload; zero selects the
// configured default.
func (e *Engine) Send(payload []byte, src netip.Addr, dst netip.Addr, protocol uint8) error {
	// the header carries plain IPv4, so keys must too
	src, dst = src.Unmap(), dst.Unmap()
	if src != e.addr {
		return fmt.Errorf("%w: %s", ErrForeignSource, src)
	}
	if !dst.Is4() {
		return fmt.Errorf("%w: %s", ErrUnknownDestination, dst)
	}
	if src == dst {
		return fmt.Errorf("%w: %s", ErrSameEndpoints, src)
	}
	if protocol == 0 {
		protocol = e.config.Sift.NextHeader
	}
	if protocol == defn.ProtoICMP {
		core.Log.Info(e, "Not handling ICMP packet", "dst", dst)
		return fmt.Errorf("%w: %d", ErrUnsupportedProtocol, protocol)
	}

	e.lock.Lock()
	own := e.ownPosition().Point()
	dstPos, ok := e.position(dst)
	if !ok {
		e.lock.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownDestination, dst)
	}

	e.seq = (e.seq + 1) % e.config.Sift.SeqModulus

	hdr := defn.NewHeader()
	hdr.NextHeader = protocol
	hdr.MessageType = defn.MsgTypeData
	hdr.SegmentsLeft = e.config.Sift.SegmentsLeft
	hdr.TTL = e.config.Sift.InitialTTL
	hdr.Seq = uint16(e.seq)
	hdr.SourceAddr = src
	hdr.DestAddr = dst
	hdr.SourceX, hdr.SourceY = own.X, own.Y
	hdr.SetLastHop(own)
	dp := dstPos.Point()
	hdr.DestX, hdr.DestY = dp.X, dp.Y

	e.dedup.RegisterSeen(hdr.Key(), e.timer.Now())
	e.counters.NOriginated++
	e.counters.NOutPackets++
	e.lock.Unlock()

	pkt := defn.Pkt{Header: hdr, Payload: payload}
	core.Log.Debug(e, "Originated packet", "header", &hdr)
	e.tracer.Transmitted(e.addr, hdr)
	e.link.Send(pkt.Wire(), e.addr, defn.Broadcast, defn.ProtocolNumber)
	return nil
}

// Receive processes a packet heard on the link. carrier is the network
// header it arrived in. Drops report RxEndpointUnreach; a delivered packet
// reports the transport's status.
func (e *Engine) Receive(wire []byte, carrier defn.NetHeader) (Outcome, defn.RxStatus, error) {
	pkt, err := defn.ParsePkt(wire)
	if err != nil {
		e.lock.Lock()
		e.counters.NInPackets++
		e.countDrop(DropUnreachable)
		e.lock.Unlock()
		core.Log.Debug(e, "Undecodable packet", "err", err)
		e.tracer.Dropped(e.addr, defn.Header{}, DropUnreachable)
		return DropUnreachable, defn.RxEndpointUnreach, err
	}
	hdr := pkt.Header

	e.lock.Lock()
	e.counters.NInPackets++

	if !hdr.DestAddr.IsValid() || hdr.DestAddr == defn.Unspecified {
		return e.dropLocked(hdr, DropUnreachable)
	}

	own := e.ownPosition().Point()
	if own == hdr.Source() {
		return e.dropLocked(hdr, DropSelfOverlap)
	}

	key := hdr.Key()
	now := e.timer.Now()
	if e.dedup.IsDuplicate(key, now) {
		if e.pending.Cancel(key) {
			core.Log.Debug(e, "Forward suppressed by peer", "key", key)
		}
		return e.dropLocked(hdr, DropDuplicate)
	}
	e.dedup.RegisterSeen(key, now)

	if carrier.Source.IsValid() && carrier.Source != e.addr {
		e.recordSighting(carrier.Source, carrier.Source, hdr.LastHop())
	}

	if hdr.DestAddr == e.addr {
		t, ok := e.transports[hdr.NextHeader]
		if !ok {
			e.countDrop(DropNoTransport)
			e.lock.Unlock()
			core.Log.Fatal(e, "No transport registered for next header", "proto", hdr.NextHeader, "key", key)
			e.tracer.Dropped(e.addr, hdr, DropNoTransport)
			return DropNoTransport, defn.RxEndpointUnreach, fmt.Errorf("%w: %d", ErrNoTransport, hdr.NextHeader)
		}
		e.counters.NDelivered++
		e.lock.Unlock()
		return Deliver, e.deliver(t, pkt, carrier), nil
	}

	if e.config.Sift.EnforceTTL && hdr.TTL <= 1 {
		return e.dropLocked(hdr, DropTTLExpired)
	}

	fwd := hdr
	if fwd.TTL > 0 {
		fwd.TTL--
	}
	if fwd.SegmentsLeft > 0 {
		fwd.SegmentsLeft--
	}
	fwd.SetLastHop(own)

	delay := ForwardDelay(hdr.Source(), hdr.Dest(), own, hdr.LastHop(),
		e.config.BaseTransmissionTime(), e.config.Sift.Alpha)
	out := defn.Pkt{Header: fwd, Payload: pkt.Payload}
	e.pending.Schedule(key, delay, out.Wire(), e.fire)
	e.counters.NScheduled++
	e.lock.Unlock()

	core.Log.Debug(e, "Scheduled forward", "key", key, "delay", delay, "pos", own)
	return Forward, defn.RxOK, nil
}

// fire rebroadcasts a forward whose delay elapsed.
func (e *Engine) fire(pf *table.PendingForward) {
	hdr, err := defn.DecodeHeader(pf.Wire)
	if err != nil {
		core.Log.Error(e, "Corrupt pending forward", "key", pf.Key, "err", err)
		return
	}

	e.lock.Lock()
	e.counters.NForwarded++
	e.counters.NOutPackets++
	e.lock.Unlock()

	core.Log.Debug(e, "Forwarding packet", "key", pf.Key, "ttl", hdr.TTL)
	e.tracer.Transmitted(e.addr, hdr)
	e.link.Send(pf.Wire, e.addr, defn.Broadcast, defn.ProtocolNumber)
}

// deliver hands the payload to the transport in a synthetic network header.
func (e *Engine) deliver(t Transport, pkt *defn.Pkt, carrier defn.NetHeader) defn.RxStatus {
	ip := defn.NetHeader{
		Source:      pkt.Header.SourceAddr,
		Destination: e.addr,
		Protocol:    carrier.Protocol,
		Tos:         carrier.Tos,
		Ttl:         carrier.Ttl,
		Ecn:         carrier.Ecn,
		Dscp:        carrier.Dscp,
		PayloadSize: uint16(len(pkt.Payload)),
	}

	status := t.Receive(pkt.Payload, ip)
	core.Log.Debug(e, "Delivered packet", "key", pkt.Header.Key(), "status", status)
	return status
}

// dropLocked counts and traces a drop. Called with the lock held; releases it.
func (e *Engine) dropLocked(hdr defn.Header, o Outcome) (Outcome, defn.RxStatus, error) {
	e.countDrop(o)
	e.lock.Unlock()

	core.Log.Debug(e, "Dropped packet", "outcome", o, "key", hdr.Key())
	e.tracer.Dropped(e.addr, hdr, o)
	return o, defn.RxEndpointUnreach, nil
}

func (e *Engine) countDrop(o Outcome) {
	e.counters.NDropped++
	e.counters.Drops[o]++
}

// recordSighting upserts the current state of addr into the geo store.
// fallback is used when the mobility provider does not know the node.
func (e *Engine) recordSighting(addr netip.Addr, from netip.Addr, fallback defn.Point) {
	pos, ok := e.mobility.Position(addr)
	if !ok {
		pos = defn.Vector{X: float64(fallback.X), Y: float64(fallback.Y)}
	}
	vel, _ := e.mobility.Velocity(addr)

	now := e.timer.Now()
	if e.geo.Upsert(table.GeoRecord{
		Addr:             addr,
		ReceivedFrom:     from,
		Position:         pos,
		Velocity:         vel,
		RecordedTime:     now,
		DataRecordedTime: now,
		StartTime:        now,
	}) {
		core.Log.Trace(e, "Geo record changed", "addr", addr, "pos", pos, "vel", vel)
	}
}

// position looks addr up in the mobility provider, then the geo store.
func (e *Engine) position(addr netip.Addr) (defn.Vector, bool) {
	if pos, ok := e.mobility.Position(addr); ok {
		return pos, true
	}
	if r, ok := e.geo.Find(addr); ok && r.Valid {
		return r.Position, true
	}
	return defn.Vector{}, false
}

func (e *Engine) ownPosition() defn.Vector {
	pos, ok := e.position(e.addr)
	if !ok {
		core.Log.Warn(e, "Own position unknown, using origin")
	}
	return pos
}

// Counters returns a snapshot of the packet counters.
func (e *Engine) Counters() Counters {
	e.lock.Lock()
	defer e.lock.Unlock()

	ret := e.counters
	ret.Drops = make(map[Outcome]uint64, len(e.counters.Drops))
	for o, n := range e.counters.Drops {
		ret.Drops[o] = n
	}
	return ret
}

// GeoRecords returns a copy of the geo store.
func (e *Engine) GeoRecords() []table.GeoRecord {
	e.lock.Lock()
	defer e.lock.Unlock()
	return e.geo.All()
}

// InvalidateGeo resets the geo record of addr.
func (e *Engine) InvalidateGeo(addr netip.Addr) {
	e.lock.Lock()
	defer e.lock.Unlock()
	e.geo.Invalidate(addr)
}

// NumPending returns the number of scheduled forwards.
func (e *Engine) NumPending() int {
	e.lock.Lock()
	defer e.lock.Unlock()
	return e.pending.Size()
}

// CancelPending drops every scheduled forward.
func (e *Engine) CancelPending() int {
	e.lock.Lock()
	defer e.lock.Unlock()
	return e.pending.CancelAll()
}

// NumSeen returns the number of duplicate detection records.
func (e *Engine) NumSeen() int {
	e.lock.Lock()
	defer e.lock.Unlock()
	return e.dedup.Size()
}
