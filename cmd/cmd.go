package cmd

import (
	sift "github.com/resilinets/siftd/sift/cmd"
	"github.com/resilinets/siftd/std/utils"
	"github.com/spf13/cobra"
)

const banner = `
      _  __ _      _
  ___(_)/ _| |_ __| |
 / __| | |_| __/ _  |
 \__ \ |  _| || (_| |
 |___/_|_|  \__\__,_|

SIFT geographic forwarding
`

var CmdSiftd = &cobra.Command{
	Use:     "siftd",
	Short:   "SIFT geographic forwarding",
	Long:    banner[1:],
	Version: utils.SiftdVersion,
}

func init() {
	cobra.EnableCommandSorting = false
	CmdSiftd.Root().CompletionOptions.HiddenDefaultCmd = true
	CmdSiftd.PersistentFlags().BoolP("help", "h", false, "Print usage")
	CmdSiftd.PersistentFlags().Lookup("help").Hidden = true

	CmdSiftd.AddGroup(&cobra.Group{ID: "sim", Title: "Simulation"})
	CmdSiftd.AddCommand(sift.CmdSim())

	CmdSiftd.AddGroup(&cobra.Group{ID: "live", Title: "Live Emulation"})
	CmdSiftd.AddCommand(sift.CmdMedium())
	CmdSiftd.AddCommand(sift.CmdNode())

	CmdSiftd.AddGroup(&cobra.Group{ID: "tools", Title: "Debug Tools"})
	CmdSiftd.AddCommand(sift.CmdHeader())
}
