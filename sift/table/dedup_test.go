package table_test

import (
	"testing"
	"time"

	"github.com/resilinets/siftd/sift/defn"
	"github.com/resilinets/siftd/sift/table"
	tu "github.com/resilinets/siftd/std/utils/testutils"
	"github.com/stretchr/testify/require"
)

func key(seq uint16) defn.PacketKey {
	return defn.PacketKey{
		Source:      tu.Addr("10.0.0.1"),
		Destination: tu.Addr("10.0.0.4"),
		Seq:         seq,
	}
}

func TestDedupWindow(t *testing.T) {
	tu.SetT(t)
	dt := table.NewDedupTable(3 * time.Second)
	require.Equal(t, 3*time.Second, dt.Window())
	t0 := time.Unix(0, 0)

	require.False(t, dt.IsDuplicate(key(1), t0))
	dt.RegisterSeen(key(1), t0)
	require.True(t, dt.IsDuplicate(key(1), t0))
	require.True(t, dt.IsDuplicate(key(1), t0.Add(2999*time.Millisecond)))
	require.False(t, dt.IsDuplicate(key(2), t0))

	// expires at exactly one window
	require.False(t, dt.IsDuplicate(key(1), t0.Add(3*time.Second)))
	require.Equal(t, 0, dt.Size())
}

func TestDedupRegisterRefreshes(t *testing.T) {
	tu.SetT(t)
	dt := table.NewDedupTable(3 * time.Second)
	t0 := time.Unix(0, 0)
	dt.RegisterSeen(key(1), t0)
	dt.RegisterSeen(key(1), t0.Add(2*time.Second))
	require.Equal(t, 1, dt.Size())
	require.True(t, dt.IsDuplicate(key(1), t0.Add(4*time.Second)))
}

func TestDedupSweep(t *testing.T) {
	tu.SetT(t)
	dt := table.NewDedupTable(time.Second)
	t0 := time.Unix(0, 0)
	dt.RegisterSeen(key(1), t0)
	dt.RegisterSeen(key(2), t0.Add(500*time.Millisecond))
	dt.RegisterSeen(key(3), t0.Add(900*time.Millisecond))

	dt.Sweep(t0.Add(1200 * time.Millisecond))
	require.Equal(t, 2, dt.Size())
	dt.Sweep(t0.Add(2 * time.Second))
	require.Equal(t, 0, dt.Size())
}

func TestDedupKeyIsFullTriple(t *testing.T) {
	tu.SetT(t)
	dt := table.NewDedupTable(time.Second)
	t0 := time.Unix(0, 0)
	dt.RegisterSeen(key(1), t0)

	other := key(1)
	other.Destination = tu.Addr("10.0.0.5")
	require.False(t, dt.IsDuplicate(other, t0))
}
