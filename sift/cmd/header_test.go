package cmd

import (
	"bytes"
	"encoding/hex"
	"testing"

	"github.com/resilinets/siftd/sift/defn"
	tu "github.com/resilinets/siftd/std/utils/testutils"
	"github.com/stretchr/testify/require"
)

func TestParseHex(t *testing.T) {
	tu.SetT(t)
	require.Equal(t, []byte{0x11, 0x2f}, tu.NoErr(parseHex("0x112f")))
	require.Equal(t, []byte{0x11, 0x2f, 0x00}, tu.NoErr(parseHex(" 11:2f 00\n")))
	_, err := parseHex("zz")
	require.Error(t, err)
}

func TestPrintHeader(t *testing.T) {
	tu.SetT(t)
	hdr := defn.NewHeader()
	hdr.SourceAddr = tu.Addr("10.0.0.1")
	hdr.DestAddr = tu.Addr("10.0.0.4")
	hdr.DestX = 300
	hdr.LastHopX, hdr.LastHopY = 100, -20
	hdr.Seq = 9
	pkt := defn.Pkt{Header: hdr, Payload: []byte("abc")}

	decoded := tu.NoErr(defn.ParsePkt(tu.NoErr(parseHex(hex.EncodeToString(pkt.Wire())))))
	var buf bytes.Buffer
	printHeader(&buf, decoded)

	out := buf.String()
	require.Contains(t, out, "messageType=DATA(47)")
	require.Contains(t, out, "source=10.0.0.1 (0,0)")
	require.Contains(t, out, "destination=10.0.0.4 (300,0)")
	require.Contains(t, out, "lastHop=(100,-20)")
	require.Contains(t, out, "seq=9")
	require.Contains(t, out, "payload=3 bytes")
}
