/* siftd - SIFT geographic forwarding
 *
 * This file is licensed under the terms of the MIT License, as found in LICENSE.md.
 */

package core

import (
	"fmt"
	"path/filepath"
	"time"
)

// Config represents the configuration of a SIFT node.
type Config struct {
	Core CoreConfig `json:"core"`
	Sift SiftConfig `json:"sift"`
}

type CoreConfig struct {
	// Logging level
	LogLevel string `json:"log_level"`
	// Output log to file
	LogFile string `json:"log_file"`
	// Write CPU profile to file
	CpuProfile string `json:"cpu_profile"`
	// Write memory profile to file
	MemProfile string `json:"mem_profile"`

	// Config file base dir
	BaseDir string `json:"-"`
}

// SiftConfig holds the protocol parameters.
type SiftConfig struct {
	// TTL written into originated packets
	InitialTTL uint8 `json:"initial_ttl"`
	// Hop budget written into originated packets
	SegmentsLeft uint8 `json:"segments_left"`
	// Next header used when the caller does not name a protocol
	NextHeader uint8 `json:"next_header"`
	// Fixed part of the forwarding delay (nanoseconds)
	BaseTransmissionTime_ns uint64 `json:"base_transmission_time_ns"`
	// Weight of the trajectory ratio in the forwarding delay (seconds)
	Alpha float64 `json:"alpha"`
	// Lifetime of duplicate detection records (milliseconds)
	DedupWindow_ms uint64 `json:"dedup_window_ms"`
	// Sequence numbers wrap at this value
	SeqModulus uint32 `json:"seq_modulus"`
	// Drop packets whose TTL is exhausted instead of forwarding them
	EnforceTTL bool `json:"enforce_ttl"`
}

// DefaultConfig returns the reference protocol parameters.
func DefaultConfig() *Config {
	c := &Config{}
	c.Core.LogLevel = "INFO"
	c.Core.LogFile = ""
	c.Core.BaseDir = ""

	c.Sift.InitialTTL = 64
	c.Sift.SegmentsLeft = 48
	c.Sift.NextHeader = 17
	c.Sift.BaseTransmissionTime_ns = 47000
	c.Sift.Alpha = 0.01
	c.Sift.DedupWindow_ms = 3000
	c.Sift.SeqModulus = 65536
	c.Sift.EnforceTTL = true

	return c
}

// Parse validates the configuration.
func (c *Config) Parse() error {
	if c.Sift.Alpha < 0 {
		return fmt.Errorf("alpha must not be negative")
	}
	if c.Sift.DedupWindow_ms == 0 {
		return fmt.Errorf("dedup_window_ms must be positive")
	}
	if c.Sift.SeqModulus < 2 || c.Sift.SeqModulus > 65536 {
		return fmt.Errorf("seq_modulus must be in [2, 65536]")
	}
	if c.Sift.InitialTTL == 0 {
		return fmt.Errorf("initial_ttl must be positive")
	}
	return nil
}

func (c *Config) BaseTransmissionTime() time.Duration {
	return time.Duration(c.Sift.BaseTransmissionTime_ns) * time.Nanosecond
}

func (c *Config) DedupWindow() time.Duration {
	return time.Duration(c.Sift.DedupWindow_ms) * time.Millisecond
}

// ResolveRelPath resolves a possibly relative path based on config file path.
func (c *Config) ResolveRelPath(target string) string {
	if target == "" || filepath.IsAbs(target) {
		return target
	}
	return filepath.Join(c.Core.BaseDir, target)
}
