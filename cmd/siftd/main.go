package main

import (
	"os"

	"github.com/resilinets/siftd/cmd"
)

func main() {
	if err := cmd.CmdSiftd.Execute(); err != nil {
		os.Exit(1)
	}
}
