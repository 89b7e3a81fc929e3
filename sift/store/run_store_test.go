package store_test

import (
	"os"
	"testing"
	"time"

	"github.com/resilinets/siftd/sift/fw"
	"github.com/resilinets/siftd/sift/sim"
	"github.com/resilinets/siftd/sift/store"
	tu "github.com/resilinets/siftd/std/utils/testutils"
	"github.com/stretchr/testify/require"
)

func record(name string, sec int64, delivered uint64) *store.Record {
	return store.NewRecord(&sim.Report{
		Name:          name,
		Duration:      10 * time.Second,
		Sent:          40,
		Delivered:     delivered,
		Forwards:      120,
		Drops:         map[fw.Outcome]uint64{fw.DropDuplicate: 7},
		DeliveryRatio: float64(delivered) / 40,
		MeanLatency:   297 * time.Microsecond,
	}, time.Unix(sec, 0))
}

func TestNewRecord(t *testing.T) {
	rec := record("line", 100, 40)
	require.Equal(t, "line", rec.Name)
	require.Equal(t, time.Unix(100, 0), rec.Time())
	require.Equal(t, 10*time.Second, rec.Duration())
	require.Equal(t, 297*time.Microsecond, rec.MeanLatency())
	require.Equal(t, map[string]uint64{"drop-duplicate": 7}, rec.Drops)
}

func TestRunStore(t *testing.T) {
	tu.SetT(t)
	s := tu.NoErr(store.OpenMemRunStore())
	defer s.Close()

	latest, err := s.Latest("line")
	require.NoError(t, err)
	require.Nil(t, latest)

	require.NoError(t, s.Put(record("line", 200, 39)))
	require.NoError(t, s.Put(record("line", 100, 40)))
	require.NoError(t, s.Put(record("grid", 150, 12)))
	// "lin" must not match records of "line"
	require.NoError(t, s.Put(record("lin", 300, 1)))

	recs := tu.NoErr(s.List("line"))
	require.Len(t, recs, 2)
	require.Equal(t, uint64(40), recs[0].Delivered)
	require.Equal(t, uint64(39), recs[1].Delivered)
	require.Equal(t, map[string]uint64{"drop-duplicate": 7}, recs[0].Drops)
	require.Equal(t, 0.975, recs[1].DeliveryRatio)

	latest = tu.NoErr(s.Latest("line"))
	require.NotNil(t, latest)
	require.Equal(t, int64(200)*int64(time.Second), latest.Time_ns)

	all := tu.NoErr(s.List(""))
	require.Len(t, all, 4)
	require.Equal(t, "grid", all[0].Name)
	require.Equal(t, "lin", all[1].Name)

	require.Equal(t, 2, tu.NoErr(s.Remove("line")))
	require.Empty(t, tu.NoErr(s.List("line")))
	require.Len(t, tu.NoErr(s.List("")), 2)
}

func TestRunStoreReplace(t *testing.T) {
	tu.SetT(t)
	s := tu.NoErr(store.OpenMemRunStore())
	defer s.Close()

	require.NoError(t, s.Put(record("line", 100, 40)))
	require.NoError(t, s.Put(record("line", 100, 38)))
	recs := tu.NoErr(s.List("line"))
	require.Len(t, recs, 1)
	require.Equal(t, uint64(38), recs[0].Delivered)
}

func TestRunStoreBadName(t *testing.T) {
	tu.SetT(t)
	s := tu.NoErr(store.OpenMemRunStore())
	defer s.Close()

	require.ErrorIs(t, s.Put(record("", 1, 1)), store.ErrBadName)
	require.ErrorIs(t, s.Put(record("a\x00b", 1, 1)), store.ErrBadName)
	_, err := s.Latest("")
	require.ErrorIs(t, err, store.ErrBadName)
	_, err = s.Remove("")
	require.ErrorIs(t, err, store.ErrBadName)
}

func TestRunStoreOnDisk(t *testing.T) {
	tu.SetT(t)
	dir := "runs-test"
	os.RemoveAll(dir)
	defer os.RemoveAll(dir)

	s := tu.NoErr(store.OpenRunStore(dir))
	require.NoError(t, s.Put(record("line", 100, 40)))
	require.NoError(t, s.Close())

	s = tu.NoErr(store.OpenRunStore(dir))
	defer s.Close()
	latest := tu.NoErr(s.Latest("line"))
	require.NotNil(t, latest)
	require.Equal(t, uint64(40), latest.Delivered)
}
