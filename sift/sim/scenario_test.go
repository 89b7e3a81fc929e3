package sim_test

import (
	"testing"
	"time"

	"github.com/resilinets/siftd/sift/defn"
	"github.com/resilinets/siftd/sift/sim"
	tu "github.com/resilinets/siftd/std/utils/testutils"
	"github.com/stretchr/testify/require"
)

func TestLoadScenario(t *testing.T) {
	tu.SetT(t)
	scn := tu.NoErr(sim.LoadScenario("testdata/line.yml"))
	require.Equal(t, "line", scn.Name)
	require.Equal(t, time.Second, scn.Duration())
	require.Equal(t, 150.0, scn.Radio.Range)
	require.Equal(t, "WARN", scn.Core.LogLevel)
	require.Equal(t, "testdata", scn.Core.BaseDir)
	// defaults survive
	require.Equal(t, 0.01, scn.Sift.Alpha)
	require.Equal(t, uint8(64), scn.Config().Sift.InitialTTL)

	nodes := tu.NoErr(scn.Placements())
	require.Len(t, nodes, 4)
	require.Equal(t, tu.Addr("10.0.0.4"), nodes[3].Addr)
	require.Equal(t, defn.Vector{X: 300}, nodes[3].Position)
	require.Len(t, scn.Flows, 1)
	require.Equal(t, 64, scn.Flows[0].Size)
}

func TestParseScenarioGrid(t *testing.T) {
	tu.SetT(t)
	scn := tu.NoErr(sim.ParseScenario([]byte(`
grid:
  count: 4
  width: 2
  x_distance: 200
  y_distance: 100
nodes:
  - position: {x: 50, y: 50}
    velocity: {x: 1}
sift:
  alpha: 0.02
  enforce_ttl: false
`)))
	require.Equal(t, 0.02, scn.Sift.Alpha)
	require.False(t, scn.Sift.EnforceTTL)
	require.Equal(t, 250.0, scn.Radio.Range)

	nodes := tu.NoErr(scn.Placements())
	require.Len(t, nodes, 5)
	require.Equal(t, tu.Addr("10.0.0.1"), nodes[0].Addr)
	require.Equal(t, defn.Vector{X: 200}, nodes[1].Position)
	require.Equal(t, defn.Vector{Y: 100}, nodes[2].Position)
	require.Equal(t, defn.Vector{X: 200, Y: 100}, nodes[3].Position)
	require.Equal(t, tu.Addr("10.0.0.5"), nodes[4].Addr)
	require.Equal(t, defn.Vector{X: 1}, nodes[4].Velocity)
}

func TestScenarioValidation(t *testing.T) {
	tu.SetT(t)
	bad := []string{
		"duration_ms: 0\n",
		"radio: {range: 0}\n",
		"sift: {seq_modulus: 1}\n",
		"grid: {count: 2}\n",
		"nodes: [{addr: 10.0.0.1}, {addr: 10.0.0.1}]\n",
		"nodes: [{addr: '::1'}]\n",
		"nodes: [{addr: 10.0.0.1}]\nflows: [{src: 10.0.0.1, dst: 10.0.0.9}]\n",
		"nodes: [{addr: 10.0.0.1}]\nflows: [{src: 10.0.0.1, dst: 10.0.0.1}]\n",
		"unknown_key: 1\n",
	}
	for _, doc := range bad {
		_, err := sim.ParseScenario([]byte(doc))
		require.Error(t, err, doc)
	}
}
