/* siftd - SIFT geographic forwarding
 *
 * This file is licensed under the terms of the MIT License, as found in LICENSE.md.
 */

package defn

import "net/netip"

// ProtocolNumber is the network-layer protocol number carried by SIFT packets.
// It is placed between the network header and the original transport header.
const ProtocolNumber = 47

// Message types
const (
	// MsgTypeData marks a data packet.
	MsgTypeData uint8 = 47
)

// Transport protocol numbers used as next-header values.
const (
	ProtoICMP uint8 = 1
	ProtoTCP  uint8 = 6
	ProtoUDP  uint8 = 17
)

// Header field defaults, matching a freshly constructed header on the wire.
const (
	DefaultNextHeader   = ProtoUDP
	DefaultSegmentsLeft = uint8(HeaderSize)
	DefaultTTL          = uint8(64)
)

var (
	// Unspecified is 0.0.0.0, never a valid destination.
	Unspecified = netip.IPv4Unspecified()
	// Loopback is the address a new header is initialized with.
	Loopback = netip.AddrFrom4([4]byte{127, 0, 0, 1})
	// Broadcast is the limited broadcast address.
	Broadcast = netip.AddrFrom4([4]byte{255, 255, 255, 255})
)
