/* siftd - SIFT geographic forwarding
 *
 * This file is licensed under the terms of the MIT License, as found in LICENSE.md.
 */

package cmd

import (
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/resilinets/siftd/sift/core"
	"github.com/resilinets/siftd/sift/fw"
	"github.com/resilinets/siftd/sift/sim"
	"github.com/resilinets/siftd/sift/store"
	"github.com/resilinets/siftd/sift/trace"
	"github.com/resilinets/siftd/std/log"
	"github.com/resilinets/siftd/std/utils/toolutils"
	"github.com/spf13/cobra"
)

type simRunner struct {
	traceDb    string
	traceLog   bool
	logLevel   string
	perNode    bool
	cpuProfile string
	memProfile string
	results    string
}

// CmdSim returns the simulation command tree.
func CmdSim() *cobra.Command {
	cmd := &cobra.Command{
		GroupID: "sim",
		Use:     "sim",
		Short:   "Discrete-event SIFT simulation",
	}

	sr := simRunner{}
	run := &cobra.Command{
		Use:     "run SCENARIO-FILE",
		Short:   "Run a simulation scenario",
		Args:    cobra.ExactArgs(1),
		Example: `  siftd sim run line.yml --trace-db line.db`,
		Run:     sr.run,
	}
	run.Flags().StringVar(&sr.traceDb, "trace-db", "", "Record packet events into a sqlite database")
	run.Flags().BoolVar(&sr.traceLog, "trace-log", false, "Log every transmission and drop")
	run.Flags().StringVar(&sr.logLevel, "log-level", "", "Override the scenario log level")
	run.Flags().BoolVar(&sr.perNode, "nodes", false, "Print per-node counters")
	run.Flags().StringVar(&sr.cpuProfile, "cpu-profile", "", "Write CPU profile to file")
	run.Flags().StringVar(&sr.memProfile, "mem-profile", "", "Write memory profile to file")
	run.Flags().StringVar(&sr.results, "results", "", "Archive the report into a run store directory")
	cmd.AddCommand(run)

	hr := historyReader{}
	history := &cobra.Command{
		Use:     "history RESULTS-DIR [NAME]",
		Short:   "Show archived simulation reports",
		Args:    cobra.RangeArgs(1, 2),
		Example: `  siftd sim history ./runs line --latest`,
		Run:     hr.run,
	}
	history.Flags().BoolVar(&hr.latest, "latest", false, "Only show the newest report of NAME")
	history.Flags().BoolVar(&hr.remove, "remove", false, "Delete every report of NAME")
	cmd.AddCommand(history)

	return cmd
}

func (sr *simRunner) String() string {
	return "sim-run"
}

func (sr *simRunner) run(_ *cobra.Command, args []string) {
	scn, err := sim.LoadScenario(args[0])
	if err != nil {
		log.Fatal(sr, "Unable to load scenario", "file", args[0], "err", err)
		return
	}
	if sr.logLevel != "" {
		scn.Core.LogLevel = sr.logLevel
	}
	// paths given on the command line are relative to the working directory
	if sr.cpuProfile != "" {
		scn.Core.CpuProfile, _ = filepath.Abs(sr.cpuProfile)
	}
	if sr.memProfile != "" {
		scn.Core.MemProfile, _ = filepath.Abs(sr.memProfile)
	}

	config := scn.Config()
	if err := core.OpenLogger(config); err != nil {
		log.Fatal(sr, "Unable to open logger", "err", err)
		return
	}
	defer core.CloseLogger()

	var network *sim.Network
	clock := func() time.Duration {
		if network == nil {
			return 0
		}
		return network.Sched.Elapsed()
	}
	core.Log.SetClock(clock)

	var tracers trace.Multi
	var db *trace.SqliteTracer
	if path := sr.traceDb; path != "" {
		db, err = trace.NewSqliteTracer(path, clock)
		if err != nil {
			log.Fatal(sr, "Unable to open trace database", "file", path, "err", err)
			return
		}
		defer db.Close()
		tracers = append(tracers, db)
	}
	if sr.traceLog {
		tracers = append(tracers, trace.LogTracer{Log: core.Log})
	}

	var tracer fw.Tracer
	if len(tracers) > 0 {
		tracer = tracers
	}
	network, err = sim.NewNetwork(scn, tracer)
	if err != nil {
		log.Fatal(sr, "Unable to build network", "err", err)
		return
	}

	profiler := NewProfiler(config)
	if err := profiler.Start(); err != nil {
		log.Fatal(sr, "Unable to start profiler", "err", err)
		return
	}
	report := network.Run()
	profiler.Stop()
	sr.print(report)

	if sr.results != "" {
		runs, err := store.OpenRunStore(sr.results)
		if err != nil {
			log.Fatal(sr, "Unable to open run store", "dir", sr.results, "err", err)
			return
		}
		defer runs.Close()
		if err := runs.Put(store.NewRecord(report, time.Now())); err != nil {
			log.Fatal(sr, "Unable to archive report", "err", err)
			return
		}
	}

	if db != nil {
		summary, err := db.Summary()
		if err != nil {
			log.Fatal(sr, "Unable to read trace database", "err", err)
			return
		}
		p := toolutils.StatusPrinter{File: os.Stdout, Padding: 24}
		p.Section("Trace")
		for _, k := range slices.Sorted(maps.Keys(summary)) {
			p.Print(k, summary[k])
		}
	}
}

func (sr *simRunner) print(r *sim.Report) {
	p := toolutils.StatusPrinter{File: os.Stdout, Padding: 24}

	fmt.Printf("SIFT simulation %s\n", r.Name)
	p.Print("duration", r.Duration)
	p.Print("sent", r.Sent)
	p.Print("failed", r.Failed)
	p.Print("delivered", r.Delivered)
	p.Print("duplicates", r.Duplicates)
	p.Print("deliveryRatio", fmt.Sprintf("%.3f", r.DeliveryRatio))
	p.Print("meanLatency", r.MeanLatency)
	p.Print("transmissions", r.Transmissions)
	p.Print("receptions", r.Receptions)
	p.Print("forwards", r.Forwards)
	p.Print("suppressed", r.Suppressed)

	p.Section("Drops")
	for _, o := range fw.Outcomes {
		if o.IsDrop() {
			p.Print(o.String(), r.Drops[o])
		}
	}

	if !sr.perNode {
		return
	}
	for _, n := range r.Nodes {
		p.Section(n.Addr.String())
		p.Print("nInPackets", n.Counters.NInPackets)
		p.Print("nOutPackets", n.Counters.NOutPackets)
		p.Print("nOriginated", n.Counters.NOriginated)
		p.Print("nForwarded", n.Counters.NForwarded)
		p.Print("nDelivered", n.Counters.NDelivered)
		p.Print("nDropped", n.Counters.NDropped)
		p.Print("nReceived", n.Received)
	}
}

type historyReader struct {
	latest bool
	remove bool
}

func (hr *historyReader) String() string {
	return "sim-history"
}

func (hr *historyReader) run(_ *cobra.Command, args []string) {
	name := ""
	if len(args) > 1 {
		name = args[1]
	}
	if (hr.latest || hr.remove) && name == "" {
		log.Fatal(hr, "NAME is required with --latest and --remove")
		return
	}

	runs, err := store.OpenRunStore(args[0])
	if err != nil {
		log.Fatal(hr, "Unable to open run store", "dir", args[0], "err", err)
		return
	}
	defer runs.Close()

	var recs []*store.Record
	switch {
	case hr.remove:
		n, err := runs.Remove(name)
		if err != nil {
			log.Fatal(hr, "Unable to remove reports", "name", name, "err", err)
			return
		}
		fmt.Printf("Removed %d reports of %s\n", n, name)
		return
	case hr.latest:
		rec, err := runs.Latest(name)
		if err != nil {
			log.Fatal(hr, "Unable to read run store", "err", err)
			return
		}
		if rec != nil {
			recs = append(recs, rec)
		}
	default:
		recs, err = runs.List(name)
		if err != nil {
			log.Fatal(hr, "Unable to read run store", "err", err)
			return
		}
	}

	p := toolutils.StatusPrinter{File: os.Stdout, Padding: 24}
	for _, rec := range recs {
		p.Section(fmt.Sprintf("%s @ %s", rec.Name, rec.Time().Format(time.RFC3339)))
		p.Print("nodes", rec.Nodes)
		p.Print("duration", rec.Duration())
		p.Print("sent", rec.Sent)
		p.Print("delivered", rec.Delivered)
		p.Print("deliveryRatio", fmt.Sprintf("%.3f", rec.DeliveryRatio))
		p.Print("meanLatency", rec.MeanLatency())
		p.Print("forwards", rec.Forwards)
		p.Print("suppressed", rec.Suppressed)
		for _, k := range slices.Sorted(maps.Keys(rec.Drops)) {
			p.Print(k, rec.Drops[k])
		}
	}
}
