/* siftd - SIFT geographic forwarding
 *
 * This file is licensed under the terms of the MIT License, as found in LICENSE.md.
 */

package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/resilinets/siftd/sift/core"
	"github.com/resilinets/siftd/sift/face"
	"github.com/resilinets/siftd/sift/fw"
	"github.com/resilinets/siftd/sift/live"
	"github.com/resilinets/siftd/sift/trace"
	"github.com/resilinets/siftd/std/log"
	"github.com/resilinets/siftd/std/utils/toolutils"
	"github.com/spf13/cobra"
)

// CmdMedium returns the emulated radio hub command tree.
func CmdMedium() *cobra.Command {
	cmd := &cobra.Command{
		GroupID: "live",
		Use:     "medium",
		Short:   "Emulated radio medium for live stations",
	}

	hr := hubRunner{config: face.HubConfig{Port: 8470, Range: 250}}
	serve := &cobra.Command{
		Use:     "serve",
		Short:   "Relay frames between stations within radio range",
		Args:    cobra.NoArgs,
		Example: `  siftd medium serve --port 8470 --range 150`,
		Run:     hr.run,
	}
	serve.Flags().StringVar(&hr.config.Bind, "bind", "", "Address to listen on")
	serve.Flags().Uint16Var(&hr.config.Port, "port", hr.config.Port, "Port to listen on")
	serve.Flags().Float64Var(&hr.config.Range, "range", hr.config.Range, "Radio range in meters, 0 for unlimited")
	cmd.AddCommand(serve)

	return cmd
}

// CmdNode returns the live station command tree.
func CmdNode() *cobra.Command {
	cmd := &cobra.Command{
		GroupID: "live",
		Use:     "node",
		Short:   "Live SIFT station",
	}

	nr := nodeRunner{}
	run := &cobra.Command{
		Use:     "run STATION-FILE",
		Short:   "Run a station attached to a medium hub",
		Args:    cobra.ExactArgs(1),
		Example: `  siftd node run station.yml`,
		Run:     nr.run,
	}
	run.Flags().BoolVar(&nr.traceLog, "trace-log", false, "Log every transmission and drop")
	cmd.AddCommand(run)

	return cmd
}

type hubRunner struct {
	config face.HubConfig
}

func (hr *hubRunner) String() string {
	return "medium-serve"
}

func (hr *hubRunner) run(_ *cobra.Command, _ []string) {
	hub := face.NewHub(hr.config)
	core.Log.Info(hub, "Starting hub")
	go func() {
		if err := hub.Run(); err != nil {
			log.Fatal(hr, "Unable to start hub", "err", err)
		}
	}()

	waitSignal(hub)
	hub.Close()

	p := toolutils.StatusPrinter{File: os.Stdout, Padding: 12}
	p.Print("nFrames", hub.NFrames.Load())
	p.Print("nRelayed", hub.NRelayed.Load())
}

type nodeRunner struct {
	traceLog bool
}

func (nr *nodeRunner) String() string {
	return "node-run"
}

func (nr *nodeRunner) run(_ *cobra.Command, args []string) {
	cfg, err := live.LoadStationConfig(args[0])
	if err != nil {
		log.Fatal(nr, "Unable to load station", "file", args[0], "err", err)
		return
	}
	if err := core.OpenLogger(cfg.Config()); err != nil {
		log.Fatal(nr, "Unable to open logger", "err", err)
		return
	}
	defer core.CloseLogger()

	var tracer fw.Tracer
	if nr.traceLog {
		tracer = trace.LogTracer{Log: core.Log}
	}
	station, err := live.NewStation(cfg, tracer)
	if err != nil {
		log.Fatal(nr, "Unable to start station", "err", err)
		return
	}
	station.Start()

	waitSignal(station)
	station.Close()

	c := station.Engine.Counters()
	p := toolutils.StatusPrinter{File: os.Stdout, Padding: 12}
	p.Print("nInPackets", c.NInPackets)
	p.Print("nOutPackets", c.NOutPackets)
	p.Print("nOriginated", c.NOriginated)
	p.Print("nForwarded", c.NForwarded)
	p.Print("nDelivered", c.NDelivered)
	p.Print("nDropped", c.NDropped)
	p.Print("nReceived", station.Sink.Received())
}

func waitSignal(t any) {
	sigChannel := make(chan os.Signal, 1)
	signal.Notify(sigChannel, os.Interrupt, syscall.SIGTERM)
	receivedSig := <-sigChannel
	core.Log.Info(t, "Received signal - exit", "signal", receivedSig)
}
