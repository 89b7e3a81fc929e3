/* siftd - SIFT geographic forwarding
 *
 * This file is licensed under the terms of the MIT License, as found in LICENSE.md.
 */

package face

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"net/netip"

	"github.com/resilinets/siftd/sift/defn"
)

// Frame types exchanged between a hub and its stations.
const (
	// station announces its address, position and velocity
	FrameHello byte = 1
	// network packet from the station, or relayed to it
	FrameData byte = 2
	// station left the hub
	FrameBye byte = 3
)

// MaxFrameSize bounds every websocket message.
const MaxFrameSize = 65535

const (
	frameHeadSize  = 5
	helloBodySize  = 48
	dataHeaderSize = 5
)

var ErrBadFrame = errors.New("malformed frame")

// Frame is one message on an emulated radio link.
type Frame struct {
	Type byte
	// hello, bye: the station; data: the link-level sender
	Station netip.Addr

	// hello only
	Position defn.Vector
	Velocity defn.Vector

	// data only
	NextHop  netip.Addr
	Protocol uint8
	Payload  []byte
}

func (f *Frame) String() string {
	switch f.Type {
	case FrameHello:
		return fmt.Sprintf("hello(%s at %s)", f.Station, f.Position)
	case FrameData:
		return fmt.Sprintf("data(%s>%s proto=%d len=%d)", f.Station, f.NextHop, f.Protocol, len(f.Payload))
	case FrameBye:
		return fmt.Sprintf("bye(%s)", f.Station)
	default:
		return fmt.Sprintf("frame(%d)", f.Type)
	}
}

// Encode returns the wire form of f.
func (f *Frame) Encode() []byte {
	size := frameHeadSize
	switch f.Type {
	case FrameHello:
		size += helloBodySize
	case FrameData:
		size += dataHeaderSize + len(f.Payload)
	}

	buf := make([]byte, size)
	buf[0] = f.Type
	putAddr(buf[1:5], f.Station)

	switch f.Type {
	case FrameHello:
		putVector(buf[5:29], f.Position)
		putVector(buf[29:53], f.Velocity)
	case FrameData:
		putAddr(buf[5:9], f.NextHop)
		buf[9] = f.Protocol
		copy(buf[10:], f.Payload)
	}
	return buf
}

// DecodeFrame parses a frame. The payload of a data frame aliases buf.
func DecodeFrame(buf []byte) (*Frame, error) {
	if len(buf) < frameHeadSize {
		return nil, ErrBadFrame
	}

	f := &Frame{
		Type:    buf[0],
		Station: netip.AddrFrom4([4]byte(buf[1:5])),
	}
	switch f.Type {
	case FrameHello:
		if len(buf) != frameHeadSize+helloBodySize {
			return nil, fmt.Errorf("%w: hello of %d bytes", ErrBadFrame, len(buf))
		}
		f.Position = getVector(buf[5:29])
		f.Velocity = getVector(buf[29:53])
	case FrameData:
		if len(buf) < frameHeadSize+dataHeaderSize {
			return nil, fmt.Errorf("%w: data of %d bytes", ErrBadFrame, len(buf))
		}
		f.NextHop = netip.AddrFrom4([4]byte(buf[5:9]))
		f.Protocol = buf[9]
		f.Payload = buf[10:]
	case FrameBye:
		if len(buf) != frameHeadSize {
			return nil, fmt.Errorf("%w: bye of %d bytes", ErrBadFrame, len(buf))
		}
	default:
		return nil, fmt.Errorf("%w: type %d", ErrBadFrame, f.Type)
	}
	return f, nil
}

func putAddr(buf []byte, a netip.Addr) {
	if a.Is4() {
		b := a.As4()
		copy(buf, b[:])
	}
}

func putVector(buf []byte, v defn.Vector) {
	binary.BigEndian.PutUint64(buf[0:8], math.Float64bits(v.X))
	binary.BigEndian.PutUint64(buf[8:16], math.Float64bits(v.Y))
	binary.BigEndian.PutUint64(buf[16:24], math.Float64bits(v.Z))
}

func getVector(buf []byte) defn.Vector {
	return defn.Vector{
		X: math.Float64frombits(binary.BigEndian.Uint64(buf[0:8])),
		Y: math.Float64frombits(binary.BigEndian.Uint64(buf[8:16])),
		Z: math.Float64frombits(binary.BigEndian.Uint64(buf[16:24])),
	}
}
