/* siftd - SIFT geographic forwarding
 *
 * This file is licensed under the terms of the MIT License, as found in LICENSE.md.
 */

package sim

import (
	"encoding/binary"
	"fmt"
	"net/netip"
	"sync"
	"time"

	"github.com/resilinets/siftd/sift/core"
	"github.com/resilinets/siftd/sift/defn"
	"github.com/resilinets/siftd/sift/fw"
)

// AppHeaderSize is the size of the probe header at the front of every
// application payload: flow id, sequence, send time.
const AppHeaderSize = 16

// Sender originates packets. fw.Engine is one.
type Sender interface {
	Send(payload []byte, src netip.Addr, dst netip.Addr, protocol uint8) error
}

type probe struct {
	flow uint32
	seq  uint32
	sent time.Duration
}

func encodeProbe(p probe, size int) []byte {
	if size < AppHeaderSize {
		size = AppHeaderSize
	}
	buf := make([]byte, size)
	binary.BigEndian.PutUint32(buf[0:4], p.flow)
	binary.BigEndian.PutUint32(buf[4:8], p.seq)
	binary.BigEndian.PutUint64(buf[8:16], uint64(p.sent))
	return buf
}

func decodeProbe(buf []byte) (probe, bool) {
	if len(buf) < AppHeaderSize {
		return probe{}, false
	}
	return probe{
		flow: binary.BigEndian.Uint32(buf[0:4]),
		seq:  binary.BigEndian.Uint32(buf[4:8]),
		sent: time.Duration(binary.BigEndian.Uint64(buf[8:16])),
	}, true
}

// Sink is a transport that counts what it receives.
type Sink struct {
	addr  netip.Addr
	clock func() time.Duration

	lock sync.Mutex
	seen map[[2]uint32]struct{}

	// Counters
	NReceived   uint64
	NBytes      uint64
	NDuplicates uint64
	NMalformed  uint64
	// sum of one-way latencies of first copies
	TotalLatency time.Duration
}

// NewSink creates a sink for the node at addr.
func NewSink(addr netip.Addr, clock func() time.Duration) *Sink {
	return &Sink{
		addr:  addr,
		clock: clock,
		seen:  make(map[[2]uint32]struct{}),
	}
}

func (s *Sink) String() string {
	return fmt.Sprintf("sim-sink(%s)", s.addr)
}

func (s *Sink) Receive(payload []byte, hdr defn.NetHeader) defn.RxStatus {
	p, ok := decodeProbe(payload)

	s.lock.Lock()
	defer s.lock.Unlock()

	if !ok {
		s.NMalformed++
		return defn.RxCsumFailed
	}

	id := [2]uint32{p.flow, p.seq}
	if _, dup := s.seen[id]; dup {
		s.NDuplicates++
		core.Log.Warn(s, "Duplicate delivery", "flow", p.flow, "seq", p.seq, "from", hdr.Source)
		return defn.RxOK
	}
	s.seen[id] = struct{}{}
	s.NReceived++
	s.NBytes += uint64(len(payload))
	s.TotalLatency += s.clock() - p.sent

	core.Log.Debug(s, "Received", "flow", p.flow, "seq", p.seq, "from", hdr.Source)
	return defn.RxOK
}

// Received returns the number of distinct packets received.
func (s *Sink) Received() uint64 {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.NReceived
}

// Flow is a constant bit rate source.
type Flow struct {
	ID  uint32
	Src netip.Addr
	Dst netip.Addr
	// first send, relative to the start of the run
	Start    time.Duration
	Interval time.Duration
	// zero means until Stop
	Count int
	// zero means no limit other than Count
	Stop time.Duration
	// payload bytes, at least AppHeaderSize
	Size     int
	Protocol uint8

	NSent   uint64
	NFailed uint64
	seq     uint32

	// guards the counters, the fields below and every send
	lock    sync.Mutex
	cancel  func() error
	stopped bool
}

func (f *Flow) String() string {
	return fmt.Sprintf("sim-flow(%d %s>%s)", f.ID, f.Src, f.Dst)
}

// Run schedules the flow's sends on timer.
func (f *Flow) Run(timer defn.Timer, clock func() time.Duration, sender Sender) {
	var tick func()
	tick = func() {
		f.lock.Lock()
		defer f.lock.Unlock()
		f.cancel = nil

		now := clock()
		if f.stopped || (f.Stop > 0 && now >= f.Stop) {
			return
		}

		f.seq++
		payload := encodeProbe(probe{flow: f.ID, seq: f.seq, sent: now}, f.Size)
		if err := sender.Send(payload, f.Src, f.Dst, f.Protocol); err != nil {
			f.NFailed++
			core.Log.Warn(f, "Send failed", "seq", f.seq, "err", err)
		} else {
			f.NSent++
		}

		if f.Count > 0 && int(f.seq) >= f.Count {
			return
		}
		if f.Interval > 0 {
			f.cancel = timer.Schedule(f.Interval, tick)
		}
	}

	f.lock.Lock()
	defer f.lock.Unlock()
	f.stopped = false
	f.cancel = timer.Schedule(f.Start-clock(), tick)
}

// Halt cancels the next send. Once it returns the flow sends nothing more.
func (f *Flow) Halt() {
	f.lock.Lock()
	defer f.lock.Unlock()

	f.stopped = true
	if f.cancel != nil {
		f.cancel()
		f.cancel = nil
	}
}

// Sent returns the number of successful and failed sends.
func (f *Flow) Sent() (sent uint64, failed uint64) {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.NSent, f.NFailed
}

var _ fw.Transport = (*Sink)(nil)
