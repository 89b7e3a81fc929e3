/* siftd - SIFT geographic forwarding
 *
 * This file is licensed under the terms of the MIT License, as found in LICENSE.md.
 */

package defn

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net/netip"
)

// HeaderSize is the fixed size of an encoded SIFT header.
const HeaderSize = 48

var ErrShortHeader = errors.New("buffer shorter than SIFT header")

// Header is the SIFT header. All integers are big-endian on the wire.
//
//	 0               1               2               3
//	+---------------+---------------+---------------+---------------+
//	|  Next Header  | Option Length | Message Type  | Segments Left |
//	+---------------+---------------+---------------+---------------+
//	|                        Source Node ID                         |
//	|                      Source X Coordinate                      |
//	|                      Source Y Coordinate                      |
//	|                     Last Hop X Coordinate                     |
//	|                     Last Hop Y Coordinate                     |
//	|                     Destination Node ID                       |
//	|                   Destination X Coordinate                    |
//	|                   Destination Y Coordinate                    |
//	+-------------------------------+---------------+---------------+
//	|        Sequence Number        |      TTL      |      Pad      |
//	+-------------------------------+---------------+---------------+
//	|                     Source IPv4 Address                       |
//	|                   Destination IPv4 Address                    |
//	+---------------------------------------------------------------+
//
// Source and destination coordinates are fixed at origination. The last hop
// coordinates are rewritten by every forwarder.
type Header struct {
	NextHeader   uint8
	OptionLength uint8
	MessageType  uint8
	SegmentsLeft uint8

	SourceID uint32
	SourceX  int32
	SourceY  int32
	LastHopX int32
	LastHopY int32
	DestID   uint32
	DestX    int32
	DestY    int32

	Seq uint16
	TTL uint8
	Pad uint8

	// IPv4 only. Any other address encodes as 0.0.0.0.
	SourceAddr netip.Addr
	DestAddr   netip.Addr
}

// NewHeader returns a header with the wire defaults.
func NewHeader() Header {
	return Header{
		NextHeader:   DefaultNextHeader,
		MessageType:  MsgTypeData,
		SegmentsLeft: DefaultSegmentsLeft,
		TTL:          DefaultTTL,
		SourceAddr:   Loopback,
		DestAddr:     Loopback,
	}
}

// Encode returns the 48-byte wire form of the header.
func (h *Header) Encode() []byte {
	buf := make([]byte, HeaderSize)
	h.EncodeTo(buf)
	return buf
}

// EncodeTo writes the header into the first HeaderSize bytes of buf.
// It panics if buf is too short.
func (h *Header) EncodeTo(buf []byte) {
	_ = buf[HeaderSize-1]
	buf[0] = h.NextHeader
	buf[1] = h.OptionLength
	buf[2] = h.MessageType
	buf[3] = h.SegmentsLeft
	binary.BigEndian.PutUint32(buf[4:], h.SourceID)
	binary.BigEndian.PutUint32(buf[8:], uint32(h.SourceX))
	binary.BigEndian.PutUint32(buf[12:], uint32(h.SourceY))
	binary.BigEndian.PutUint32(buf[16:], uint32(h.LastHopX))
	binary.BigEndian.PutUint32(buf[20:], uint32(h.LastHopY))
	binary.BigEndian.PutUint32(buf[24:], h.DestID)
	binary.BigEndian.PutUint32(buf[28:], uint32(h.DestX))
	binary.BigEndian.PutUint32(buf[32:], uint32(h.DestY))
	binary.BigEndian.PutUint16(buf[36:], h.Seq)
	buf[38] = h.TTL
	buf[39] = h.Pad
	putAddr(buf[40:44], h.SourceAddr)
	putAddr(buf[44:48], h.DestAddr)
}

// DecodeHeader parses the first HeaderSize bytes of buf.
// No validation is done beyond the length check.
func DecodeHeader(buf []byte) (h Header, err error) {
	if len(buf) < HeaderSize {
		return h, fmt.Errorf("%w: got %d bytes", ErrShortHeader, len(buf))
	}
	h.NextHeader = buf[0]
	h.OptionLength = buf[1]
	h.MessageType = buf[2]
	h.SegmentsLeft = buf[3]
	h.SourceID = binary.BigEndian.Uint32(buf[4:])
	h.SourceX = int32(binary.BigEndian.Uint32(buf[8:]))
	h.SourceY = int32(binary.BigEndian.Uint32(buf[12:]))
	h.LastHopX = int32(binary.BigEndian.Uint32(buf[16:]))
	h.LastHopY = int32(binary.BigEndian.Uint32(buf[20:]))
	h.DestID = binary.BigEndian.Uint32(buf[24:])
	h.DestX = int32(binary.BigEndian.Uint32(buf[28:]))
	h.DestY = int32(binary.BigEndian.Uint32(buf[32:]))
	h.Seq = binary.BigEndian.Uint16(buf[36:])
	h.TTL = buf[38]
	h.Pad = buf[39]
	h.SourceAddr = netip.AddrFrom4([4]byte(buf[40:44]))
	h.DestAddr = netip.AddrFrom4([4]byte(buf[44:48]))
	return h, nil
}

// Key returns the identity of the logical packet this header belongs to.
func (h *Header) Key() PacketKey {
	return PacketKey{Source: h.SourceAddr, Destination: h.DestAddr, Seq: h.Seq}
}

// Source returns the encoded origination point.
func (h *Header) Source() Point {
	return Point{X: h.SourceX, Y: h.SourceY}
}

// LastHop returns the encoded position of the previous transmitter.
func (h *Header) LastHop() Point {
	return Point{X: h.LastHopX, Y: h.LastHopY}
}

// Dest returns the encoded destination point.
func (h *Header) Dest() Point {
	return Point{X: h.DestX, Y: h.DestY}
}

// SetLastHop rewrites the last hop coordinates.
func (h *Header) SetLastHop(p Point) {
	h.LastHopX, h.LastHopY = p.X, p.Y
}

func (h *Header) String() string {
	return fmt.Sprintf("sift(nh=%d type=%d segs=%d src=%s%s lasthop=%s dst=%s%s seq=%d ttl=%d)",
		h.NextHeader, h.MessageType, h.SegmentsLeft,
		h.SourceAddr, h.Source(), h.LastHop(), h.DestAddr, h.Dest(), h.Seq, h.TTL)
}

func putAddr(dst []byte, a netip.Addr) {
	if a.Is4() || a.Is4In6() {
		b := a.Unmap().As4()
		copy(dst, b[:])
		return
	}
	clear(dst)
}
