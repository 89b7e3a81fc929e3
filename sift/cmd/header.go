/* siftd - SIFT geographic forwarding
 *
 * This file is licensed under the terms of the MIT License, as found in LICENSE.md.
 */

package cmd

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/resilinets/siftd/sift/defn"
	"github.com/resilinets/siftd/std/log"
	"github.com/resilinets/siftd/std/utils"
	"github.com/resilinets/siftd/std/utils/toolutils"
	"github.com/spf13/cobra"
)

type headerTool struct{}

func (headerTool) String() string {
	return "header"
}

// CmdHeader returns the header inspection commands.
func CmdHeader() *cobra.Command {
	ht := headerTool{}

	cmd := &cobra.Command{
		GroupID: "tools",
		Use:     "header",
		Short:   "Inspect SIFT headers",
	}
	cmd.AddCommand(&cobra.Command{
		Use:     "decode HEX",
		Short:   "Decode a hex-encoded SIFT packet",
		Args:    cobra.ExactArgs(1),
		Example: `  siftd header decode 112f0030000000...`,
		Run:     ht.decode,
	})
	return cmd
}

func (ht headerTool) decode(_ *cobra.Command, args []string) {
	wire, err := parseHex(args[0])
	if err != nil {
		log.Fatal(ht, "Invalid hex input", "err", err)
		return
	}
	pkt, err := defn.ParsePkt(wire)
	if err != nil {
		log.Fatal(ht, "Unable to decode header", "len", len(wire), "err", err)
		return
	}
	printHeader(os.Stdout, pkt)
}

// parseHex accepts hex with optional whitespace, colons and a 0x prefix.
func parseHex(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	s = strings.NewReplacer(" ", "", ":", "", "\n", "", "\t", "").Replace(s)
	return hex.DecodeString(s)
}

func printHeader(w io.Writer, pkt *defn.Pkt) {
	h := pkt.Header
	p := toolutils.StatusPrinter{File: w, Padding: 16}

	fmt.Fprintln(w, "SIFT header:")
	p.Print("nextHeader", h.NextHeader)
	p.Print("optionLength", h.OptionLength)
	p.Print("messageType", utils.If(h.MessageType == defn.MsgTypeData, "DATA(47)", fmt.Sprint(h.MessageType)))
	p.Print("segmentsLeft", h.SegmentsLeft)
	p.Print("sourceId", h.SourceID)
	p.Print("source", fmt.Sprintf("%s %s", h.SourceAddr, h.Source()))
	p.Print("lastHop", h.LastHop())
	p.Print("destId", h.DestID)
	p.Print("destination", fmt.Sprintf("%s %s", h.DestAddr, h.Dest()))
	p.Print("seq", h.Seq)
	p.Print("ttl", h.TTL)
	p.Print("payload", fmt.Sprintf("%d bytes", len(pkt.Payload)))
}
