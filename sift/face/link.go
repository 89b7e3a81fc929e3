/* siftd - SIFT geographic forwarding
 *
 * This file is licensed under the terms of the MIT License, as found in LICENSE.md.
 */

package face

import (
	"fmt"
	"net/netip"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/resilinets/siftd/sift/core"
	"github.com/resilinets/siftd/sift/defn"
	"github.com/resilinets/siftd/sift/fw"
)

// CarrierTTL is the network TTL stamped on every relayed frame.
const CarrierTTL = 64

// Receiver takes packets off the link. fw.Engine is one.
type Receiver interface {
	Receive(wire []byte, carrier defn.NetHeader) (fw.Outcome, defn.RxStatus, error)
}

// WebSocketLink is the link layer of one station attached to a Hub.
type WebSocketLink struct {
	addr    netip.Addr
	conn    *websocket.Conn
	wlock   sync.Mutex
	running atomic.Bool
	dir     *Directory
	rx      Receiver

	// Counters
	NInFrames  atomic.Uint64
	NOutFrames atomic.Uint64
}

// DialLink connects a station to the hub at url and announces its position.
func DialLink(url string, addr netip.Addr, position defn.Vector, velocity defn.Vector) (*WebSocketLink, error) {
	if !addr.Is4() || addr.IsUnspecified() {
		return nil, fmt.Errorf("station address must be a unicast IPv4 address: %s", addr)
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	c, _, err := dialer.Dial(url, nil)
	if err != nil {
		return nil, err
	}
	c.SetReadLimit(MaxFrameSize + frameHeadSize + dataHeaderSize)

	l := &WebSocketLink{
		addr: addr,
		conn: c,
		dir:  NewDirectory(),
	}
	l.running.Store(true)
	if err := l.Announce(position, velocity); err != nil {
		c.Close()
		return nil, err
	}
	return l, nil
}

func (l *WebSocketLink) String() string {
	return fmt.Sprintf("web-socket-link(%s remote=%s)", l.addr, l.conn.RemoteAddr())
}

// Directory returns the positions announced on the hub, own included.
func (l *WebSocketLink) Directory() *Directory {
	return l.dir
}

// Attach sets the receiver of data frames. Call it before Run.
func (l *WebSocketLink) Attach(rx Receiver) {
	l.rx = rx
}

// Announce publishes a new position and velocity of this station.
func (l *WebSocketLink) Announce(position defn.Vector, velocity defn.Vector) error {
	l.dir.Update(l.addr, position, velocity)
	return l.write((&Frame{
		Type:     FrameHello,
		Station:  l.addr,
		Position: position,
		Velocity: velocity,
	}).Encode())
}

// Send puts a network packet on the emulated radio.
func (l *WebSocketLink) Send(wire []byte, src netip.Addr, nextHop netip.Addr, protocol uint8) {
	if len(wire) > MaxFrameSize {
		core.Log.Warn(l, "Attempted to send frame larger than MTU", "size", len(wire))
		return
	}

	frame := (&Frame{
		Type:     FrameData,
		Station:  l.addr,
		NextHop:  nextHop,
		Protocol: protocol,
		Payload:  wire,
	}).Encode()
	if err := l.write(frame); err != nil {
		core.Log.Warn(l, "Unable to send on socket - DROP", "err", err)
		return
	}
	l.NOutFrames.Add(1)
}

// Run receives frames until the connection closes.
func (l *WebSocketLink) Run() {
	defer l.Close()

	for {
		mt, message, err := l.conn.ReadMessage()
		if err != nil {
			if !l.running.Load() || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				// gracefully closed
			} else {
				core.Log.Warn(l, "Unable to read from hub - Link DOWN", "err", err)
			}
			return
		}
		if mt != websocket.BinaryMessage {
			core.Log.Warn(l, "Ignored non-binary message")
			continue
		}

		f, err := DecodeFrame(message)
		if err != nil {
			core.Log.Warn(l, "Ignored malformed frame", "err", err)
			continue
		}

		switch f.Type {
		case FrameHello:
			l.dir.Update(f.Station, f.Position, f.Velocity)
		case FrameBye:
			l.dir.Remove(f.Station)
		case FrameData:
			l.NInFrames.Add(1)
			if l.rx == nil {
				continue
			}
			carrier := defn.NetHeader{
				Source:      f.Station,
				Destination: f.NextHop,
				Protocol:    f.Protocol,
				Ttl:         CarrierTTL,
				PayloadSize: uint16(len(f.Payload)),
			}
			if _, _, err := l.rx.Receive(f.Payload, carrier); err != nil {
				core.Log.Debug(l, "Receive failed", "src", f.Station, "err", err)
			}
		}
	}
}

// Close leaves the hub.
func (l *WebSocketLink) Close() {
	if !l.running.Swap(false) {
		return
	}

	l.wlock.Lock()
	l.conn.WriteMessage(websocket.BinaryMessage, (&Frame{Type: FrameBye, Station: l.addr}).Encode())
	l.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	l.wlock.Unlock()

	l.conn.Close()
}

func (l *WebSocketLink) write(frame []byte) error {
	if !l.running.Load() {
		return websocket.ErrCloseSent
	}
	l.wlock.Lock()
	defer l.wlock.Unlock()
	return l.conn.WriteMessage(websocket.BinaryMessage, frame)
}

var _ fw.LinkLayer = (*WebSocketLink)(nil)
var _ fw.Mobility = (*Directory)(nil)
