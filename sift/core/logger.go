/* siftd - SIFT geographic forwarding
 *
 * This file is licensed under the terms of the MIT License, as found in LICENSE.md.
 */

package core

import (
	"io"
	"os"

	"github.com/resilinets/siftd/std/log"
)

var Log = log.Default()
var logFile io.Closer

// OpenLogger initializes the logger from the configuration, replacing any
// log file opened before.
func OpenLogger(c *Config) error {
	level, err := log.ParseLevel(c.Core.LogLevel)
	if err != nil {
		return err
	}

	var w io.Writer = os.Stderr
	var f *os.File
	if path := c.ResolveRelPath(c.Core.LogFile); path != "" {
		if f, err = os.Create(path); err != nil {
			return err
		}
		w = f
	}

	CloseLogger()
	if f != nil {
		logFile = f
	}
	Log = log.NewText(w)
	Log.SetLevel(level)
	log.SetDefault(Log)
	return nil
}

// CloseLogger closes the log file, if any.
func CloseLogger() {
	if logFile != nil {
		logFile.Close()
		logFile = nil
	}
}
