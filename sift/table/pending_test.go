package table_test

import (
	"sync"
	"testing"
	"time"

	"github.com/resilinets/siftd/sift/sched"
	"github.com/resilinets/siftd/sift/table"
	tu "github.com/resilinets/siftd/std/utils/testutils"
	"github.com/stretchr/testify/require"
)

func TestPendingFires(t *testing.T) {
	tu.SetT(t)
	s := sched.NewScheduler()
	pt := table.NewPendingTable(s, nil)

	var fired []*table.PendingForward
	e := pt.Schedule(key(1), 47*time.Microsecond, []byte{1, 2}, func(pf *table.PendingForward) {
		fired = append(fired, pf)
	})
	require.Equal(t, s.Now().Add(47*time.Microsecond), e.Due)
	require.True(t, pt.Has(key(1)))
	require.Equal(t, 1, pt.Size())

	s.Run()
	require.Len(t, fired, 1)
	require.Equal(t, []byte{1, 2}, fired[0].Wire)
	require.Equal(t, 47*time.Microsecond, s.Elapsed())
	require.False(t, pt.Has(key(1)))
	require.False(t, pt.Cancel(key(1)))
}

func TestPendingCancel(t *testing.T) {
	tu.SetT(t)
	s := sched.NewScheduler()
	pt := table.NewPendingTable(s, nil)

	fired := 0
	pt.Schedule(key(1), time.Millisecond, nil, func(*table.PendingForward) { fired++ })
	pt.Schedule(key(2), time.Millisecond, nil, func(*table.PendingForward) { fired++ })

	require.True(t, pt.Cancel(key(1)))
	require.False(t, pt.Cancel(key(1)))
	s.Run()
	require.Equal(t, 1, fired)
	require.Equal(t, 0, pt.Size())
}

func TestPendingReplace(t *testing.T) {
	tu.SetT(t)
	s := sched.NewScheduler()
	pt := table.NewPendingTable(s, nil)

	var got []byte
	pt.Schedule(key(1), time.Millisecond, []byte{1}, func(pf *table.PendingForward) { got = append(got, pf.Wire...) })
	pt.Schedule(key(1), 2*time.Millisecond, []byte{2}, func(pf *table.PendingForward) { got = append(got, pf.Wire...) })
	require.Equal(t, 1, pt.Size())

	s.Run()
	require.Equal(t, []byte{2}, got)
	require.Equal(t, 1, int(s.Fired()))
}

func TestPendingCancelFromEvent(t *testing.T) {
	tu.SetT(t)
	s := sched.NewScheduler()
	lock := &sync.Mutex{}
	pt := table.NewPendingTable(s, lock)

	fired := false
	lock.Lock()
	pt.Schedule(key(1), 10*time.Millisecond, nil, func(*table.PendingForward) { fired = true })
	lock.Unlock()

	s.Schedule(5*time.Millisecond, func() {
		lock.Lock()
		defer lock.Unlock()
		require.True(t, pt.Cancel(key(1)))
	})
	s.Run()
	require.False(t, fired)

	pf, ok := pt.Get(key(1))
	require.False(t, ok)
	require.Nil(t, pf)
}
