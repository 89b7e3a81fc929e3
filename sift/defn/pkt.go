/* siftd - SIFT geographic forwarding
 *
 * This file is licensed under the terms of the MIT License, as found in LICENSE.md.
 */

package defn

import (
	"fmt"
	"net/netip"
)

// RxStatus is the result of handing a packet to an upper layer.
type RxStatus int

const (
	RxOK RxStatus = iota
	RxEndpointClosed
	RxCsumFailed
	RxEndpointUnreach
)

func (s RxStatus) String() string {
	switch s {
	case RxOK:
		return "RX_OK"
	case RxEndpointClosed:
		return "RX_ENDPOINT_CLOSED"
	case RxCsumFailed:
		return "RX_CSUM_FAILED"
	case RxEndpointUnreach:
		return "RX_ENDPOINT_UNREACH"
	default:
		return "RX_UNKNOWN"
	}
}

// NetHeader is the network-layer header a packet travelled in, or the
// synthetic one built for upward delivery.
type NetHeader struct {
	Source      netip.Addr
	Destination netip.Addr
	Protocol    uint8
	Tos         uint8
	Ttl         uint8
	Ecn         uint8
	Dscp        uint8
	PayloadSize uint16
}

func (n NetHeader) String() string {
	return fmt.Sprintf("ip(%s>%s proto=%d ttl=%d len=%d)",
		n.Source, n.Destination, n.Protocol, n.Ttl, n.PayloadSize)
}

// Pkt is a SIFT header plus the transport payload above it.
type Pkt struct {
	Header  Header
	Payload []byte
}

// Wire returns header and payload as one buffer.
func (p *Pkt) Wire() []byte {
	buf := make([]byte, HeaderSize+len(p.Payload))
	p.Header.EncodeTo(buf)
	copy(buf[HeaderSize:], p.Payload)
	return buf
}

// ParsePkt splits a wire buffer into header and payload.
// The payload aliases wire.
func ParsePkt(wire []byte) (*Pkt, error) {
	h, err := DecodeHeader(wire)
	if err != nil {
		return nil, err
	}
	return &Pkt{Header: h, Payload: wire[HeaderSize:]}, nil
}
