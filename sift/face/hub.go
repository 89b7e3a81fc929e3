/* siftd - SIFT geographic forwarding
 *
 * This file is licensed under the terms of the MIT License, as found in LICENSE.md.
 */

package face

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"github.com/resilinets/siftd/sift/core"
	"github.com/resilinets/siftd/sift/defn"
)

var (
	ErrNoHello          = errors.New("first frame must be a hello")
	ErrDuplicateStation = errors.New("station address already connected")
)

// HubConfig contains Hub configuration.
type HubConfig struct {
	Bind string
	Port uint16
	// Radio range in meters, zero for unlimited
	Range float64
}

func (cfg HubConfig) URL() *url.URL {
	return &url.URL{
		Scheme: "ws",
		Host:   net.JoinHostPort(cfg.Bind, strconv.FormatUint(uint64(cfg.Port), 10)),
	}
}

// Hub is an emulated radio medium. Stations connect over WebSocket, and a
// data frame is relayed to every other station within range of its sender.
type Hub struct {
	config   HubConfig
	server   http.Server
	upgrader websocket.Upgrader

	lock     sync.RWMutex
	stations map[netip.Addr]*hubStation

	// Counters
	NFrames  atomic.Uint64
	NRelayed atomic.Uint64
}

type hubStation struct {
	addr     netip.Addr
	position defn.Vector
	velocity defn.Vector
	conn     *websocket.Conn
	wlock    sync.Mutex
}

func (st *hubStation) write(frame []byte) error {
	st.wlock.Lock()
	defer st.wlock.Unlock()
	return st.conn.WriteMessage(websocket.BinaryMessage, frame)
}

func NewHub(cfg HubConfig) *Hub {
	h := &Hub{
		config: cfg,
		upgrader: websocket.Upgrader{
			WriteBufferPool: &sync.Pool{},
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		stations: make(map[netip.Addr]*hubStation),
	}
	h.server = http.Server{Addr: cfg.URL().Host, Handler: h}
	return h
}

func (h *Hub) String() string {
	return fmt.Sprintf("medium-hub(%s range=%g)", h.config.URL(), h.config.Range)
}

// Run serves stations until Close.
func (h *Hub) Run() error {
	err := h.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Close stops the server and disconnects every station.
func (h *Hub) Close() {
	core.Log.Info(h, "Stopping hub")
	h.server.Shutdown(context.TODO())

	h.lock.Lock()
	defer h.lock.Unlock()
	for _, st := range h.stations {
		st.conn.Close()
	}
}

// NumStations returns the number of connected stations.
func (h *Hub) NumStations() int {
	h.lock.RLock()
	defer h.lock.RUnlock()
	return len(h.stations)
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	c.SetReadLimit(MaxFrameSize + frameHeadSize + dataHeaderSize)

	st, err := h.join(c)
	if err != nil {
		core.Log.Warn(h, "Rejected station", "remote", c.RemoteAddr(), "err", err)
		c.Close()
		return
	}
	defer h.leave(st)

	h.runReceive(st)
}

func (h *Hub) join(c *websocket.Conn) (*hubStation, error) {
	mt, message, err := c.ReadMessage()
	if err != nil {
		return nil, err
	}
	if mt != websocket.BinaryMessage {
		return nil, ErrNoHello
	}
	hello, err := DecodeFrame(message)
	if err != nil {
		return nil, err
	}
	if hello.Type != FrameHello || !hello.Station.Is4() || hello.Station.IsUnspecified() {
		return nil, ErrNoHello
	}

	st := &hubStation{
		addr:     hello.Station,
		position: hello.Position,
		velocity: hello.Velocity,
		conn:     c,
	}

	h.lock.Lock()
	if _, ok := h.stations[st.addr]; ok {
		h.lock.Unlock()
		return nil, ErrDuplicateStation
	}
	others := h.othersLocked(st)
	known := make([][]byte, 0, len(others))
	for _, o := range others {
		known = append(known, (&Frame{
			Type:     FrameHello,
			Station:  o.addr,
			Position: o.position,
			Velocity: o.velocity,
		}).Encode())
	}
	h.stations[st.addr] = st
	h.lock.Unlock()

	core.Log.Info(h, "Station joined", "addr", st.addr, "position", st.position, "remote", c.RemoteAddr())

	// tell the newcomer about everyone, and everyone about the newcomer
	for _, frame := range known {
		h.send(st, frame)
	}
	for _, o := range others {
		h.send(o, message)
	}
	return st, nil
}

func (h *Hub) leave(st *hubStation) {
	h.lock.Lock()
	if h.stations[st.addr] == st {
		delete(h.stations, st.addr)
	}
	others := h.othersLocked(st)
	h.lock.Unlock()

	st.conn.Close()
	core.Log.Info(h, "Station left", "addr", st.addr)

	bye := (&Frame{Type: FrameBye, Station: st.addr}).Encode()
	for _, o := range others {
		h.send(o, bye)
	}
}

func (h *Hub) runReceive(st *hubStation) {
	for {
		mt, message, err := st.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				// gracefully closed
			} else {
				core.Log.Info(h, "Station connection lost", "addr", st.addr, "err", err)
			}
			return
		}
		if mt != websocket.BinaryMessage {
			core.Log.Warn(h, "Ignored non-binary message", "addr", st.addr)
			continue
		}

		f, err := DecodeFrame(message)
		if err != nil {
			core.Log.Warn(h, "Ignored malformed frame", "addr", st.addr, "err", err)
			continue
		}

		switch f.Type {
		case FrameHello:
			if f.Station != st.addr {
				core.Log.Warn(h, "Ignored hello for another station", "addr", st.addr, "station", f.Station)
				continue
			}
			h.lock.Lock()
			st.position, st.velocity = f.Position, f.Velocity
			others := h.othersLocked(st)
			h.lock.Unlock()
			for _, o := range others {
				h.send(o, message)
			}
		case FrameData:
			f.Station = st.addr
			h.relay(st, f)
		case FrameBye:
			return
		}
	}
}

// relay hands a data frame to the stations that hear st.
func (h *Hub) relay(st *hubStation, f *Frame) {
	h.NFrames.Add(1)

	h.lock.RLock()
	targets := make([]*hubStation, 0, len(h.stations))
	for _, o := range h.stations {
		if o == st {
			continue
		}
		if f.NextHop != defn.Broadcast && f.NextHop != o.addr {
			continue
		}
		if h.config.Range > 0 && st.position.Distance(o.position) > h.config.Range {
			continue
		}
		targets = append(targets, o)
	}
	h.lock.RUnlock()

	if len(targets) == 0 {
		return
	}
	frame := f.Encode()
	for _, o := range targets {
		if h.send(o, frame) {
			h.NRelayed.Add(1)
		}
	}
}

func (h *Hub) othersLocked(st *hubStation) []*hubStation {
	others := make([]*hubStation, 0, len(h.stations))
	for _, o := range h.stations {
		if o != st {
			others = append(others, o)
		}
	}
	return others
}

func (h *Hub) send(st *hubStation, frame []byte) bool {
	if err := st.write(frame); err != nil {
		core.Log.Warn(h, "Unable to send to station - DROP", "addr", st.addr, "err", err)
		st.conn.Close()
		return false
	}
	return true
}
