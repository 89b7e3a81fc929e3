/* siftd - SIFT geographic forwarding
 *
 * This file is licensed under the terms of the MIT License, as found in LICENSE.md.
 */

package cmd

import (
	"os"
	"runtime"
	"runtime/pprof"

	"github.com/resilinets/siftd/sift/core"
)

// Profiler writes CPU and heap profiles of a run.
type Profiler struct {
	config  *core.Config
	cpuFile *os.File
}

func NewProfiler(config *core.Config) *Profiler {
	return &Profiler{config: config}
}

func (p *Profiler) String() string {
	return "profiler"
}

// Start begins CPU profiling if a CPU profile file is configured.
func (p *Profiler) Start() (err error) {
	path := p.config.ResolveRelPath(p.config.Core.CpuProfile)
	if path == "" {
		return nil
	}

	p.cpuFile, err = os.Create(path)
	if err != nil {
		return err
	}
	core.Log.Info(p, "Profiling CPU", "out", path)
	if err = pprof.StartCPUProfile(p.cpuFile); err != nil {
		p.cpuFile.Close()
		p.cpuFile = nil
	}
	return err
}

// Stop ends CPU profiling and writes the heap profile, if configured.
func (p *Profiler) Stop() {
	if path := p.config.ResolveRelPath(p.config.Core.MemProfile); path != "" {
		memFile, err := os.Create(path)
		if err != nil {
			core.Log.Error(p, "Unable to open output file for memory profile", "err", err)
		} else {
			core.Log.Info(p, "Profiling memory", "out", path)
			runtime.GC()
			if err := pprof.WriteHeapProfile(memFile); err != nil {
				core.Log.Error(p, "Unable to write memory profile", "err", err)
			}
			memFile.Close()
		}
	}

	if p.cpuFile != nil {
		pprof.StopCPUProfile()
		p.cpuFile.Close()
		p.cpuFile = nil
	}
}
