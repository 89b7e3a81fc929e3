package fw_test

import (
	"net/netip"
	"testing"
	"time"

	"github.com/resilinets/siftd/sift/core"
	"github.com/resilinets/siftd/sift/defn"
	"github.com/resilinets/siftd/sift/fw"
	"github.com/resilinets/siftd/sift/sched"
	tu "github.com/resilinets/siftd/std/utils/testutils"
	"github.com/stretchr/testify/require"
)

type sentPacket struct {
	wire     []byte
	src      netip.Addr
	nextHop  netip.Addr
	protocol uint8
}

type fakeLink struct {
	sent []sentPacket
}

func (l *fakeLink) Send(wire []byte, src, nextHop netip.Addr, protocol uint8) {
	l.sent = append(l.sent, sentPacket{wire, src, nextHop, protocol})
}

func (l *fakeLink) header(t *testing.T, i int) defn.Header {
	require.Greater(t, len(l.sent), i)
	return tu.NoErr(defn.DecodeHeader(l.sent[i].wire))
}

type fakeMobility map[netip.Addr]defn.Vector

func (m fakeMobility) Position(addr netip.Addr) (defn.Vector, bool) {
	v, ok := m[addr]
	return v, ok
}

func (m fakeMobility) Velocity(addr netip.Addr) (defn.Vector, bool) {
	_, ok := m[addr]
	return defn.Vector{}, ok
}

type dropEvent struct {
	key     defn.PacketKey
	outcome fw.Outcome
}

type fakeTracer struct {
	tx    []defn.PacketKey
	drops []dropEvent
}

func (f *fakeTracer) Transmitted(_ netip.Addr, hdr defn.Header) {
	f.tx = append(f.tx, hdr.Key())
}

func (f *fakeTracer) Dropped(_ netip.Addr, hdr defn.Header, o fw.Outcome) {
	f.drops = append(f.drops, dropEvent{hdr.Key(), o})
}

var (
	addrA = netip.MustParseAddr("10.0.0.1")
	addrB = netip.MustParseAddr("10.0.0.2")
	addrC = netip.MustParseAddr("10.0.0.3")
	addrD = netip.MustParseAddr("10.0.0.4")
)

// collinear A(0,0) B(100,0) C(200,0) D(300,0)
func lineMobility() fakeMobility {
	return fakeMobility{
		addrA: {X: 0},
		addrB: {X: 100},
		addrC: {X: 200},
		addrD: {X: 300},
	}
}

type harness struct {
	s      *sched.Scheduler
	link   *fakeLink
	tracer *fakeTracer
	e      *fw.Engine
}

func newHarness(t *testing.T, addr netip.Addr, mob fw.Mobility, config *core.Config) *harness {
	tu.SetT(t)
	h := &harness{
		s:      sched.NewScheduler(),
		link:   &fakeLink{},
		tracer: &fakeTracer{},
	}
	h.e = tu.NoErr(fw.NewEngine(fw.EngineOptions{
		Config:   config,
		Addr:     addr,
		Timer:    h.s,
		Link:     h.link,
		Mobility: mob,
		Tracer:   h.tracer,
	}))
	return h
}

// packetFromA is a packet originated by A towards D.
func packetFromA(seq uint16) defn.Header {
	hdr := defn.NewHeader()
	hdr.SourceAddr = addrA
	hdr.DestAddr = addrD
	hdr.DestX = 300
	hdr.Seq = seq
	return hdr
}

func wire(hdr defn.Header, payload string) []byte {
	pkt := defn.Pkt{Header: hdr, Payload: []byte(payload)}
	return pkt.Wire()
}

func carrier(src netip.Addr) defn.NetHeader {
	return defn.NetHeader{
		Source:      src,
		Destination: defn.Broadcast,
		Protocol:    defn.ProtocolNumber,
		Tos:         4,
		Ttl:         33,
		Ecn:         1,
		Dscp:        2,
	}
}

func TestNewEngineValidation(t *testing.T) {
	tu.SetT(t)
	s := sched.NewScheduler()
	_, err := fw.NewEngine(fw.EngineOptions{Addr: netip.MustParseAddr("::1"), Timer: s, Link: &fakeLink{}, Mobility: fakeMobility{}})
	require.Error(t, err)
	_, err = fw.NewEngine(fw.EngineOptions{Addr: addrA, Link: &fakeLink{}, Mobility: fakeMobility{}})
	require.Error(t, err)

	config := core.DefaultConfig()
	config.Sift.SeqModulus = 1
	_, err = fw.NewEngine(fw.EngineOptions{Config: config, Addr: addrA, Timer: s, Link: &fakeLink{}, Mobility: fakeMobility{}})
	require.Error(t, err)
}

func TestEngineRecordsSelf(t *testing.T) {
	h := newHarness(t, addrB, lineMobility(), nil)
	require.Equal(t, "sift-node(10.0.0.2)", h.e.String())
	recs := h.e.GeoRecords()
	require.Len(t, recs, 1)
	require.Equal(t, addrB, recs[0].Addr)
	require.Equal(t, defn.Vector{X: 100}, recs[0].Position)
	require.True(t, recs[0].Valid)
}

func TestSend(t *testing.T) {
	h := newHarness(t, addrA, lineMobility(), nil)
	require.NoError(t, h.e.Send([]byte("hello"), addrA, addrD, defn.ProtoUDP))

	require.Len(t, h.link.sent, 1)
	sent := h.link.sent[0]
	require.Equal(t, addrA, sent.src)
	require.Equal(t, defn.Broadcast, sent.nextHop)
	require.Equal(t, uint8(defn.ProtocolNumber), sent.protocol)

	pkt := tu.NoErr(defn.ParsePkt(sent.wire))
	hdr := pkt.Header
	require.Equal(t, []byte("hello"), pkt.Payload)
	require.Equal(t, defn.MsgTypeData, hdr.MessageType)
	require.Equal(t, defn.ProtoUDP, hdr.NextHeader)
	require.Equal(t, uint8(64), hdr.TTL)
	require.Equal(t, uint8(48), hdr.SegmentsLeft)
	require.Equal(t, uint16(1), hdr.Seq)
	require.Equal(t, addrA, hdr.SourceAddr)
	require.Equal(t, addrD, hdr.DestAddr)
	require.Equal(t, defn.Point{}, hdr.Source())
	require.Equal(t, defn.Point{}, hdr.LastHop())
	require.Equal(t, defn.Point{X: 300}, hdr.Dest())

	require.NoError(t, h.e.Send([]byte("again"), addrA, addrD, 0))
	require.Equal(t, uint16(2), h.link.header(t, 1).Seq)
	require.Equal(t, defn.ProtoUDP, h.link.header(t, 1).NextHeader)

	c := h.e.Counters()
	require.Equal(t, uint64(2), c.NOriginated)
	require.Equal(t, uint64(2), c.NOutPackets)
	require.Equal(t, 2, h.e.NumSeen())
	require.Len(t, h.tracer.tx, 2)
}

func TestSendRejects(t *testing.T) {
	h := newHarness(t, addrA, lineMobility(), nil)

	require.ErrorIs(t, h.e.Send(nil, addrA, addrA, 0), fw.ErrSameEndpoints)
	require.ErrorIs(t, h.e.Send(nil, addrA, netip.MustParseAddr("10.0.0.99"), 0), fw.ErrUnknownDestination)
	require.ErrorIs(t, h.e.Send(nil, addrA, addrD, defn.ProtoICMP), fw.ErrUnsupportedProtocol)
	require.Empty(t, h.link.sent)
	require.Equal(t, 0, h.e.NumSeen())
}

func TestSendFromForeignSource(t *testing.T) {
	h := newHarness(t, addrA, lineMobility(), nil)

	require.ErrorIs(t, h.e.Send(nil, addrC, addrD, 0), fw.ErrForeignSource)
	require.Empty(t, h.link.sent)
	require.Equal(t, 0, h.e.NumSeen())
	require.Equal(t, uint64(0), h.e.Counters().NOriginated)
}

func TestSendUnmapsAddresses(t *testing.T) {
	mob := lineMobility()
	h := newHarness(t, addrA, mob, nil)
	src := netip.AddrFrom16(addrA.As16())
	dst := netip.AddrFrom16(addrD.As16())
	require.True(t, src.Is4In6())

	require.NoError(t, h.e.Send([]byte("mapped"), src, dst, 0))
	require.Len(t, h.link.sent, 1)
	require.Equal(t, addrA, h.link.sent[0].src)
	out := h.link.header(t, 0)
	require.Equal(t, defn.Point{}, out.Source())

	// the registered key matches what a decoded copy yields
	require.Equal(t, []defn.PacketKey{out.Key()}, h.tracer.tx)
	require.Equal(t, defn.PacketKey{Source: addrA, Destination: addrD, Seq: 1}, out.Key())
	require.Equal(t, 1, h.e.NumSeen())

	// once A has moved off the origin, a relayed copy is caught as a duplicate
	mob[addrA] = defn.Vector{X: 50}
	echo := out
	echo.SetLastHop(defn.Point{X: 100})
	outcome, _, err := h.e.Receive(wire(echo, "mapped"), carrier(addrB))
	require.NoError(t, err)
	require.Equal(t, fw.DropDuplicate, outcome)

	require.ErrorIs(t, h.e.Send(nil, addrA, netip.MustParseAddr("fe80::1"), 0), fw.ErrUnknownDestination)
}

func TestSendUsesGeoStoreForDestination(t *testing.T) {
	mob := fakeMobility{addrA: {X: 0}}
	h := newHarness(t, addrA, mob, nil)

	// learn D from a packet it relayed
	hdr := defn.NewHeader()
	hdr.SourceAddr = addrD
	hdr.DestAddr = addrC
	hdr.SourceX, hdr.LastHopX = 300, 300
	hdr.DestX = 200
	_, _, err := h.e.Receive(wire(hdr, ""), carrier(addrD))
	require.NoError(t, err)

	require.NoError(t, h.e.Send(nil, addrA, addrD, 0))
	out := h.link.header(t, 0)
	require.Equal(t, defn.Point{X: 300}, out.Dest())
}

func TestSeqWrap(t *testing.T) {
	config := core.DefaultConfig()
	config.Sift.SeqModulus = 3
	h := newHarness(t, addrA, lineMobility(), config)

	var seqs []uint16
	for i := 0; i < 4; i++ {
		require.NoError(t, h.e.Send(nil, addrA, addrD, 0))
		seqs = append(seqs, h.link.header(t, i).Seq)
	}
	require.Equal(t, []uint16{1, 2, 0, 1}, seqs)
}

func TestForward(t *testing.T) {
	h := newHarness(t, addrB, lineMobility(), nil)

	outcome, status, err := h.e.Receive(wire(packetFromA(1), "data"), carrier(addrA))
	require.NoError(t, err)
	require.Equal(t, fw.Forward, outcome)
	require.Equal(t, defn.RxOK, status)
	require.Equal(t, 1, h.e.NumPending())
	require.Empty(t, h.link.sent)

	h.s.RunFor(146 * time.Microsecond)
	require.Empty(t, h.link.sent)
	h.s.Run()
	require.Equal(t, 147*time.Microsecond, h.s.Elapsed())
	require.Len(t, h.link.sent, 1)
	require.Equal(t, addrB, h.link.sent[0].src)
	require.Equal(t, defn.Broadcast, h.link.sent[0].nextHop)

	pkt := tu.NoErr(defn.ParsePkt(h.link.sent[0].wire))
	require.Equal(t, []byte("data"), pkt.Payload)
	out := pkt.Header
	require.Equal(t, uint8(63), out.TTL)
	require.Equal(t, uint8(47), out.SegmentsLeft)
	require.Equal(t, defn.Point{X: 100}, out.LastHop())
	require.Equal(t, defn.Point{}, out.Source())
	require.Equal(t, defn.Point{X: 300}, out.Dest())
	require.Equal(t, addrA, out.SourceAddr)
	require.Equal(t, addrD, out.DestAddr)
	require.Equal(t, uint16(1), out.Seq)
	require.Equal(t, defn.MsgTypeData, out.MessageType)
	require.Equal(t, defn.ProtoUDP, out.NextHeader)

	c := h.e.Counters()
	require.Equal(t, uint64(1), c.NInPackets)
	require.Equal(t, uint64(1), c.NScheduled)
	require.Equal(t, uint64(1), c.NForwarded)
	require.Equal(t, 0, h.e.NumPending())
}

func TestOffTrajectoryWaitsLonger(t *testing.T) {
	mob := lineMobility()
	mob[addrB] = defn.Vector{X: 100, Y: 50}
	h := newHarness(t, addrB, mob, nil)

	_, _, err := h.e.Receive(wire(packetFromA(1), ""), carrier(addrA))
	require.NoError(t, err)
	h.s.Run()
	require.Len(t, h.link.sent, 1)
	require.Greater(t, h.s.Elapsed(), 147*time.Microsecond)
}

func TestDuplicateCancelsPending(t *testing.T) {
	h := newHarness(t, addrB, lineMobility(), nil)
	hdr := packetFromA(7)

	outcome, _, err := h.e.Receive(wire(hdr, ""), carrier(addrA))
	require.NoError(t, err)
	require.Equal(t, fw.Forward, outcome)

	// C rebroadcast it first
	relayed := hdr
	relayed.TTL--
	relayed.LastHopX = 200
	outcome, status, err := h.e.Receive(wire(relayed, ""), carrier(addrC))
	require.NoError(t, err)
	require.Equal(t, fw.DropDuplicate, outcome)
	require.Equal(t, defn.RxEndpointUnreach, status)
	require.Equal(t, 0, h.e.NumPending())

	h.s.Run()
	require.Empty(t, h.link.sent)
	require.Equal(t, []dropEvent{{hdr.Key(), fw.DropDuplicate}}, h.tracer.drops)
	require.Equal(t, uint64(1), h.e.Counters().Drops[fw.DropDuplicate])
}

func TestDuplicateAfterForward(t *testing.T) {
	h := newHarness(t, addrB, lineMobility(), nil)
	w := wire(packetFromA(7), "")

	_, _, err := h.e.Receive(w, carrier(addrA))
	require.NoError(t, err)
	h.s.Run()
	require.Len(t, h.link.sent, 1)

	outcome, _, err := h.e.Receive(w, carrier(addrC))
	require.NoError(t, err)
	require.Equal(t, fw.DropDuplicate, outcome)
	h.s.Run()
	require.Len(t, h.link.sent, 1)
}

func TestDistinctSequenceIsNotDuplicate(t *testing.T) {
	h := newHarness(t, addrB, lineMobility(), nil)
	for seq := uint16(1); seq <= 3; seq++ {
		outcome, _, err := h.e.Receive(wire(packetFromA(seq), ""), carrier(addrA))
		require.NoError(t, err)
		require.Equal(t, fw.Forward, outcome)
	}
	require.Equal(t, 3, h.e.NumPending())
}

func TestDuplicateWindowExpires(t *testing.T) {
	h := newHarness(t, addrB, lineMobility(), nil)
	w := wire(packetFromA(1), "")

	_, _, err := h.e.Receive(w, carrier(addrA))
	require.NoError(t, err)
	h.s.RunFor(3 * time.Second)

	outcome, _, err := h.e.Receive(w, carrier(addrA))
	require.NoError(t, err)
	require.Equal(t, fw.Forward, outcome)
}

func TestSelfOverlap(t *testing.T) {
	mob := lineMobility()
	mob[addrB] = defn.Vector{X: 0.4, Y: 0.7}
	h := newHarness(t, addrB, mob, nil)

	outcome, status, err := h.e.Receive(wire(packetFromA(1), ""), carrier(addrA))
	require.NoError(t, err)
	require.Equal(t, fw.DropSelfOverlap, outcome)
	require.Equal(t, defn.RxEndpointUnreach, status)
	require.Equal(t, 0, h.e.NumSeen())
}

func TestUnspecifiedDestination(t *testing.T) {
	h := newHarness(t, addrB, lineMobility(), nil)
	hdr := packetFromA(1)
	hdr.DestAddr = defn.Unspecified

	outcome, status, err := h.e.Receive(wire(hdr, ""), carrier(addrA))
	require.NoError(t, err)
	require.Equal(t, fw.DropUnreachable, outcome)
	require.Equal(t, defn.RxEndpointUnreach, status)
	require.Equal(t, 0, h.e.NumPending())
}

func TestShortPacket(t *testing.T) {
	h := newHarness(t, addrB, lineMobility(), nil)
	outcome, _, err := h.e.Receive(make([]byte, 10), carrier(addrA))
	require.ErrorIs(t, err, defn.ErrShortHeader)
	require.Equal(t, fw.DropUnreachable, outcome)
	require.Equal(t, uint64(1), h.e.Counters().NDropped)
	require.Equal(t, []dropEvent{{defn.PacketKey{}, fw.DropUnreachable}}, h.tracer.drops)
}

func TestDeliver(t *testing.T) {
	h := newHarness(t, addrD, lineMobility(), nil)

	var gotPayload []byte
	var gotHdr defn.NetHeader
	h.e.RegisterTransport(defn.ProtoUDP, fw.TransportFunc(func(payload []byte, hdr defn.NetHeader) defn.RxStatus {
		gotPayload, gotHdr = payload, hdr
		return defn.RxEndpointClosed
	}))

	hdr := packetFromA(1)
	hdr.LastHopX = 200
	outcome, status, err := h.e.Receive(wire(hdr, "payload"), carrier(addrC))
	require.NoError(t, err)
	require.Equal(t, fw.Deliver, outcome)
	require.Equal(t, defn.RxEndpointClosed, status)

	require.Equal(t, []byte("payload"), gotPayload)
	require.Equal(t, defn.NetHeader{
		Source:      addrA,
		Destination: addrD,
		Protocol:    defn.ProtocolNumber,
		Tos:         4,
		Ttl:         33,
		Ecn:         1,
		Dscp:        2,
		PayloadSize: 7,
	}, gotHdr)
	require.Equal(t, 0, h.e.NumPending())
	require.Equal(t, uint64(1), h.e.Counters().NDelivered)

	// delivered once
	outcome, _, err = h.e.Receive(wire(hdr, "payload"), carrier(addrB))
	require.NoError(t, err)
	require.Equal(t, fw.DropDuplicate, outcome)
}

func TestDeliverNoTransport(t *testing.T) {
	h := newHarness(t, addrD, lineMobility(), nil)
	h.e.RegisterTransport(defn.ProtoTCP, fw.TransportFunc(func([]byte, defn.NetHeader) defn.RxStatus {
		return defn.RxOK
	}))

	outcome, status, err := h.e.Receive(wire(packetFromA(1), ""), carrier(addrC))
	require.ErrorIs(t, err, fw.ErrNoTransport)
	require.Equal(t, fw.DropNoTransport, outcome)
	require.Equal(t, defn.RxEndpointUnreach, status)

	h.e.UnregisterTransport(defn.ProtoTCP)
	hdr := packetFromA(2)
	hdr.NextHeader = defn.ProtoTCP
	_, _, err = h.e.Receive(wire(hdr, ""), carrier(addrC))
	require.ErrorIs(t, err, fw.ErrNoTransport)
}

func TestTTLExpired(t *testing.T) {
	h := newHarness(t, addrB, lineMobility(), nil)
	hdr := packetFromA(1)
	hdr.TTL = 1

	outcome, _, err := h.e.Receive(wire(hdr, ""), carrier(addrA))
	require.NoError(t, err)
	require.Equal(t, fw.DropTTLExpired, outcome)
	require.Equal(t, 0, h.e.NumPending())
}

func TestTTLNotEnforced(t *testing.T) {
	config := core.DefaultConfig()
	config.Sift.EnforceTTL = false
	h := newHarness(t, addrB, lineMobility(), config)
	hdr := packetFromA(1)
	hdr.TTL = 0
	hdr.SegmentsLeft = 0

	outcome, _, err := h.e.Receive(wire(hdr, ""), carrier(addrA))
	require.NoError(t, err)
	require.Equal(t, fw.Forward, outcome)
	h.s.Run()
	out := h.link.header(t, 0)
	require.Equal(t, uint8(0), out.TTL)
	require.Equal(t, uint8(0), out.SegmentsLeft)
}

func TestSenderSighting(t *testing.T) {
	mob := lineMobility()
	delete(mob, addrC)
	h := newHarness(t, addrB, mob, nil)

	hdr := packetFromA(1)
	hdr.LastHopX, hdr.LastHopY = 180, -5
	_, _, err := h.e.Receive(wire(hdr, ""), carrier(addrC))
	require.NoError(t, err)
	_, _, err = h.e.Receive(wire(packetFromA(2), ""), carrier(addrA))
	require.NoError(t, err)

	recs := map[netip.Addr]defn.Vector{}
	for _, r := range h.e.GeoRecords() {
		recs[r.Addr] = r.Position
	}
	// C is unknown to the provider, its position comes from the header
	require.Equal(t, defn.Vector{X: 180, Y: -5}, recs[addrC])
	require.Equal(t, defn.Vector{X: 0}, recs[addrA])
	require.Len(t, recs, 3)

	h.e.InvalidateGeo(addrC)
	for _, r := range h.e.GeoRecords() {
		if r.Addr == addrC {
			require.False(t, r.Valid)
		}
	}
}
