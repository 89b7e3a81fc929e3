/* siftd - SIFT geographic forwarding
 *
 * This file is licensed under the terms of the MIT License, as found in LICENSE.md.
 */

package defn

import (
	"encoding/binary"
	"fmt"
	"net/netip"

	"github.com/cespare/xxhash"
)

// PacketKey identifies a logical packet across copies and hops.
// Two keys are equal iff all three fields are equal.
type PacketKey struct {
	Source      netip.Addr
	Destination netip.Addr
	Seq         uint16
}

// Bytes is the 10-byte canonical form of the key.
func (k PacketKey) Bytes() []byte {
	buf := make([]byte, 10)
	putAddr(buf[0:4], k.Source)
	putAddr(buf[4:8], k.Destination)
	binary.BigEndian.PutUint16(buf[8:], k.Seq)
	return buf
}

// Hash returns a stable 64-bit digest of the key, used to correlate trace
// records of the same packet across nodes.
func (k PacketKey) Hash() uint64 {
	return xxhash.Sum64(k.Bytes())
}

func (k PacketKey) String() string {
	return fmt.Sprintf("%s>%s#%d", k.Source, k.Destination, k.Seq)
}
