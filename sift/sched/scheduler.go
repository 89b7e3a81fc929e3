/* siftd - SIFT geographic forwarding
 *
 * This file is licensed under the terms of the MIT License, as found in LICENSE.md.
 */

package sched

import (
	"errors"
	"sync"
	"time"

	pq "github.com/resilinets/siftd/std/types/priority_queue"
)

var ErrNotPending = errors.New("event has already fired or been canceled")

type event struct {
	f func()
}

// Scheduler is a discrete-event virtual clock. Events run one at a time in
// time order; events due at the same instant run in the order scheduled.
// Time only advances when the scheduler is stepped.
type Scheduler struct {
	epoch time.Time
	now   time.Duration
	queue pq.Queue[*event, time.Duration]
	// guards now and queue. Callbacks run without it.
	lock    sync.Mutex
	stopped bool
	fired   uint64
}

// NewScheduler creates a scheduler whose clock starts at the Unix epoch.
func NewScheduler() *Scheduler {
	return &Scheduler{
		epoch: time.Unix(0, 0).UTC(),
		queue: pq.New[*event, time.Duration](),
	}
}

// Now returns the current virtual time.
func (s *Scheduler) Now() time.Time {
	return s.epoch.Add(s.Elapsed())
}

// Elapsed returns the virtual time passed since the start.
func (s *Scheduler) Elapsed() time.Duration {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.now
}

// Pending returns the number of events waiting to run.
func (s *Scheduler) Pending() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.queue.Len()
}

// Fired returns the number of events run so far.
func (s *Scheduler) Fired() uint64 {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.fired
}

// Schedule runs f after d of virtual time. Negative delays count as zero.
// The returned function cancels the event; it reports ErrNotPending if the
// event already ran or was cancelled.
func (s *Scheduler) Schedule(d time.Duration, f func()) func() error {
	if d < 0 {
		d = 0
	}

	s.lock.Lock()
	item := s.queue.Push(&event{f: f}, s.now+d)
	s.lock.Unlock()

	return func() error {
		s.lock.Lock()
		defer s.lock.Unlock()
		if !s.queue.Remove(item) {
			return ErrNotPending
		}
		return nil
	}
}

// Step runs the next event. Returns false if there is none.
func (s *Scheduler) Step() bool {
	s.lock.Lock()
	if s.queue.Len() == 0 {
		s.lock.Unlock()
		return false
	}
	s.now = s.queue.PeekPriority()
	ev := s.queue.Pop()
	s.fired++
	s.lock.Unlock()

	ev.f()
	return true
}

// RunUntil runs every event due at or before t, then sets the clock to t.
func (s *Scheduler) RunUntil(t time.Duration) {
	s.setStopped(false)
	for !s.isStopped() {
		s.lock.Lock()
		due := s.queue.Len() > 0 && s.queue.PeekPriority() <= t
		s.lock.Unlock()
		if !due {
			break
		}
		s.Step()
	}

	s.lock.Lock()
	if !s.stopped && s.now < t {
		s.now = t
	}
	s.lock.Unlock()
}

// RunFor advances the clock by d, running every event due in between.
func (s *Scheduler) RunFor(d time.Duration) {
	s.RunUntil(s.Elapsed() + d)
}

// Run runs events until none are left or Stop is called.
func (s *Scheduler) Run() {
	s.setStopped(false)
	for !s.isStopped() && s.Step() {
	}
}

// Stop makes the running loop return after the current event.
func (s *Scheduler) Stop() {
	s.setStopped(true)
}

func (s *Scheduler) setStopped(v bool) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.stopped = v
}

func (s *Scheduler) isStopped() bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.stopped
}
