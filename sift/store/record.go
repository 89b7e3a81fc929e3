/* siftd - SIFT geographic forwarding
 *
 * This file is licensed under the terms of the MIT License, as found in LICENSE.md.
 */

package store

import (
	"time"

	"github.com/resilinets/siftd/sift/sim"
)

// Record is the archived summary of one simulation run.
type Record struct {
	Name string `json:"name"`
	// Wall clock time the run finished (unix nanoseconds)
	Time_ns int64 `json:"time_ns"`
	// Virtual length of the run (nanoseconds)
	Duration_ns int64 `json:"duration_ns"`

	Nodes         int    `json:"nodes"`
	Sent          uint64 `json:"sent"`
	Failed        uint64 `json:"failed"`
	Delivered     uint64 `json:"delivered"`
	Duplicates    uint64 `json:"duplicates"`
	Transmissions uint64 `json:"transmissions"`
	Receptions    uint64 `json:"receptions"`
	Forwards      uint64 `json:"forwards"`
	Suppressed    uint64 `json:"suppressed"`

	// Drops by outcome name
	Drops map[string]uint64 `json:"drops"`

	DeliveryRatio  float64 `json:"delivery_ratio"`
	MeanLatency_ns int64   `json:"mean_latency_ns"`
}

// NewRecord summarizes a report finished at the given time.
func NewRecord(r *sim.Report, at time.Time) *Record {
	rec := &Record{
		Name:           r.Name,
		Time_ns:        at.UnixNano(),
		Duration_ns:    int64(r.Duration),
		Nodes:          len(r.Nodes),
		Sent:           r.Sent,
		Failed:         r.Failed,
		Delivered:      r.Delivered,
		Duplicates:     r.Duplicates,
		Transmissions:  r.Transmissions,
		Receptions:     r.Receptions,
		Forwards:       r.Forwards,
		Suppressed:     r.Suppressed,
		Drops:          make(map[string]uint64, len(r.Drops)),
		DeliveryRatio:  r.DeliveryRatio,
		MeanLatency_ns: int64(r.MeanLatency),
	}
	for o, n := range r.Drops {
		rec.Drops[o.String()] = n
	}
	return rec
}

func (r *Record) Time() time.Time {
	return time.Unix(0, r.Time_ns)
}

func (r *Record) Duration() time.Duration {
	return time.Duration(r.Duration_ns)
}

func (r *Record) MeanLatency() time.Duration {
	return time.Duration(r.MeanLatency_ns)
}
