/* siftd - SIFT geographic forwarding
 *
 * This file is licensed under the terms of the MIT License, as found in LICENSE.md.
 */

package trace

import (
	"database/sql"
	"net/netip"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/resilinets/siftd/sift/core"
	"github.com/resilinets/siftd/sift/defn"
	"github.com/resilinets/siftd/sift/fw"
)

const schema = `
CREATE TABLE IF NOT EXISTS events (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	vt_ns     INTEGER NOT NULL,
	node      TEXT NOT NULL,
	kind      TEXT NOT NULL,
	outcome   TEXT NOT NULL,
	src       TEXT NOT NULL,
	dst       TEXT NOT NULL,
	seq       INTEGER NOT NULL,
	ttl       INTEGER NOT NULL,
	packet_id INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS events_packet ON events (packet_id);
`

// Event is one row of the events table.
type Event struct {
	Time     time.Duration
	Node     netip.Addr
	Kind     string
	Outcome  string
	Src      netip.Addr
	Dst      netip.Addr
	Seq      uint16
	TTL      uint8
	PacketID int64
}

// SqliteTracer records events into a sqlite database.
// Packets are correlated across nodes by packet_id, the hash of their key.
type SqliteTracer struct {
	db     *sql.DB
	clock  func() time.Duration
	lock   sync.Mutex
	insert *sql.Stmt

	NErrors uint64
}

// NewSqliteTracer opens or creates the database at path.
// ":memory:" keeps the database in memory.
func NewSqliteTracer(path string, clock func() time.Duration) (*SqliteTracer, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	// a second connection to :memory: would see another database
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}
	insert, err := db.Prepare(`INSERT INTO events
		(vt_ns, node, kind, outcome, src, dst, seq, ttl, packet_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		db.Close()
		return nil, err
	}

	return &SqliteTracer{db: db, clock: clock, insert: insert}, nil
}

func (t *SqliteTracer) String() string {
	return "sqlite-trace"
}

func (t *SqliteTracer) Transmitted(node netip.Addr, hdr defn.Header) {
	t.record(node, KindTransmit, "", hdr)
}

func (t *SqliteTracer) Dropped(node netip.Addr, hdr defn.Header, o fw.Outcome) {
	t.record(node, KindDrop, o.String(), hdr)
}

func (t *SqliteTracer) record(node netip.Addr, kind string, outcome string, hdr defn.Header) {
	key := hdr.Key()

	t.lock.Lock()
	defer t.lock.Unlock()

	_, err := t.insert.Exec(int64(t.clock()), node.String(), kind, outcome,
		hdr.SourceAddr.String(), hdr.DestAddr.String(), hdr.Seq, hdr.TTL, int64(key.Hash()))
	if err != nil {
		t.NErrors++
		core.Log.Warn(t, "Unable to record event", "kind", kind, "key", key, "err", err)
	}
}

// Events returns the events of one packet in recording order.
func (t *SqliteTracer) Events(key defn.PacketKey) ([]Event, error) {
	rows, err := t.db.Query(`SELECT vt_ns, node, kind, outcome, src, dst, seq, ttl, packet_id
		FROM events WHERE packet_id=? ORDER BY id`, int64(key.Hash()))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ret []Event
	for rows.Next() {
		var ev Event
		var vt int64
		var node, src, dst string
		if err := rows.Scan(&vt, &node, &ev.Kind, &ev.Outcome, &src, &dst, &ev.Seq, &ev.TTL, &ev.PacketID); err != nil {
			return nil, err
		}
		ev.Time = time.Duration(vt)
		ev.Node, _ = netip.ParseAddr(node)
		ev.Src, _ = netip.ParseAddr(src)
		ev.Dst, _ = netip.ParseAddr(dst)
		ret = append(ret, ev)
	}
	return ret, rows.Err()
}

// Summary counts events by kind and outcome. Transmissions are under
// "tx", drops under their outcome name.
func (t *SqliteTracer) Summary() (map[string]int, error) {
	rows, err := t.db.Query(`SELECT kind, outcome, COUNT(*) FROM events GROUP BY kind, outcome`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ret := make(map[string]int)
	for rows.Next() {
		var kind, outcome string
		var n int
		if err := rows.Scan(&kind, &outcome, &n); err != nil {
			return nil, err
		}
		if kind == KindTransmit {
			ret[kind] += n
		} else {
			ret[outcome] += n
		}
	}
	return ret, rows.Err()
}

// Close flushes and closes the database.
func (t *SqliteTracer) Close() error {
	t.lock.Lock()
	defer t.lock.Unlock()
	t.insert.Close()
	return t.db.Close()
}
