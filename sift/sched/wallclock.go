/* siftd - SIFT geographic forwarding
 *
 * This file is licensed under the terms of the MIT License, as found in LICENSE.md.
 */

package sched

import (
	"sync"
	"time"
)

// WallClock schedules on the system clock.
type WallClock struct{}

func NewWallClock() WallClock {
	return WallClock{}
}

func (WallClock) Now() time.Time {
	return time.Now()
}

func (WallClock) Schedule(d time.Duration, f func()) func() error {
	t := time.AfterFunc(d, f)
	var once sync.Once
	return func() (err error) {
		err = ErrNotPending
		once.Do(func() {
			if t.Stop() {
				err = nil
			}
		})
		return err
	}
}
