/* siftd - SIFT geographic forwarding
 *
 * This file is licensed under the terms of the MIT License, as found in LICENSE.md.
 */

package fw

import "errors"

// Outcome is what an engine did with a packet.
type Outcome int

const (
	Originate Outcome = iota
	Deliver
	Forward
	DropDuplicate
	DropSelfOverlap
	DropUnreachable
	DropTTLExpired
	DropNoTransport
)

func (o Outcome) String() string {
	switch o {
	case Originate:
		return "originate"
	case Deliver:
		return "deliver"
	case Forward:
		return "forward"
	case DropDuplicate:
		return "drop-duplicate"
	case DropSelfOverlap:
		return "drop-self-overlap"
	case DropUnreachable:
		return "drop-unreachable"
	case DropTTLExpired:
		return "drop-ttl-expired"
	case DropNoTransport:
		return "drop-no-transport"
	default:
		return "unknown"
	}
}

// IsDrop reports whether the packet went no further at this node.
func (o Outcome) IsDrop() bool {
	return o >= DropDuplicate
}

// Outcomes lists every outcome in order.
var Outcomes = []Outcome{
	Originate, Deliver, Forward,
	DropDuplicate, DropSelfOverlap, DropUnreachable, DropTTLExpired, DropNoTransport,
}

var (
	ErrSameEndpoints       = errors.New("source and destination are the same")
	ErrUnknownDestination  = errors.New("destination position is unknown")
	ErrUnsupportedProtocol = errors.New("protocol is not forwarded")
	ErrNoTransport         = errors.New("no transport registered for next header")
	ErrForeignSource       = errors.New("source is not the node's own address")
)
