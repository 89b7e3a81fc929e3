package sched_test

import (
	"testing"
	"time"

	"github.com/resilinets/siftd/sift/sched"
	"github.com/stretchr/testify/require"
)

func TestClock(t *testing.T) {
	s := sched.NewScheduler()
	require.Equal(t, time.Unix(0, 0).UTC(), s.Now())
	s.RunFor(10 * time.Second)
	require.Equal(t, 10*time.Second, s.Elapsed())
	s.RunUntil(time.Minute)
	require.Equal(t, time.Unix(60, 0).UTC(), s.Now())
}

func TestScheduleOrder(t *testing.T) {
	s := sched.NewScheduler()
	var order []int
	s.Schedule(20*time.Second, func() { order = append(order, 2) })
	s.Schedule(10*time.Second, func() { order = append(order, 1) })
	s.Schedule(15*time.Second, func() { order = append(order, 3) })
	s.Schedule(15*time.Second, func() { order = append(order, 4) })

	s.RunFor(11 * time.Second)
	require.Equal(t, []int{1}, order)
	s.RunFor(4 * time.Second)
	require.Equal(t, []int{1, 3, 4}, order)
	s.Run()
	require.Equal(t, []int{1, 3, 4, 2}, order)
	require.Equal(t, 20*time.Second, s.Elapsed())
	require.Equal(t, uint64(4), s.Fired())
}

func TestEventSeesItsOwnTime(t *testing.T) {
	s := sched.NewScheduler()
	var at time.Duration
	s.Schedule(47*time.Microsecond, func() { at = s.Elapsed() })
	s.Run()
	require.Equal(t, 47*time.Microsecond, at)
}

func TestCancel(t *testing.T) {
	s := sched.NewScheduler()
	val := 0
	cancel := s.Schedule(10*time.Second, func() { val = 1 })
	s.Schedule(5*time.Second, func() { val = 2 })

	require.NoError(t, cancel())
	require.ErrorIs(t, cancel(), sched.ErrNotPending)
	s.Run()
	require.Equal(t, 2, val)
	require.Equal(t, 0, s.Pending())
}

func TestCancelAfterFire(t *testing.T) {
	s := sched.NewScheduler()
	cancel := s.Schedule(time.Second, func() {})
	s.Run()
	require.ErrorIs(t, cancel(), sched.ErrNotPending)
}

func TestCancelFromEarlierEvent(t *testing.T) {
	s := sched.NewScheduler()
	fired := false
	cancel := s.Schedule(2*time.Second, func() { fired = true })
	s.Schedule(time.Second, func() { require.NoError(t, cancel()) })
	s.Run()
	require.False(t, fired)
}

func TestNestedSchedule(t *testing.T) {
	s := sched.NewScheduler()
	var hits []time.Duration
	s.Schedule(time.Second, func() {
		hits = append(hits, s.Elapsed())
		s.Schedule(-time.Second, func() { hits = append(hits, s.Elapsed()) })
	})
	s.Run()
	require.Equal(t, []time.Duration{time.Second, time.Second}, hits)
}

func TestStop(t *testing.T) {
	s := sched.NewScheduler()
	n := 0
	s.Schedule(time.Second, func() { n++; s.Stop() })
	s.Schedule(2*time.Second, func() { n++ })
	s.Run()
	require.Equal(t, 1, n)
	require.Equal(t, 1, s.Pending())
	s.Run()
	require.Equal(t, 2, n)
}

func TestWallClockCancel(t *testing.T) {
	c := sched.NewWallClock()
	done := make(chan struct{})
	cancel := c.Schedule(time.Hour, func() { close(done) })
	require.NoError(t, cancel())
	require.ErrorIs(t, cancel(), sched.ErrNotPending)
}
