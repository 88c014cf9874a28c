package metrics

import (
	"context"
	"math"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/san-kum/stockflow/internal/config"
	"github.com/san-kum/stockflow/internal/dynamo"
	"github.com/san-kum/stockflow/internal/integrators"
	"github.com/san-kum/stockflow/internal/sim"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func table(t *testing.T) *sim.Result {
	t.Helper()
	r, err := sim.NewTable(
		[]float64{0, 1, 2, 3},
		[]string{"a", "b[x]"},
		[][]float64{{1, 2, 3, 4}, {10, 10, 10, 10}},
	)
	require.NoError(t, err)
	return r
}

func TestSummarize(t *testing.T) {
	ss, err := Summarize(table(t))
	require.NoError(t, err)
	require.Len(t, ss, 2)

	a := ss[0]
	assert.Equal(t, "a", a.Column)
	assert.InDelta(t, 2.5, a.Mean, 1e-12)
	assert.InDelta(t, math.Sqrt(5.0/3.0), a.StdDev, 1e-12)
	assert.Equal(t, 1.0, a.Min)
	assert.Equal(t, 4.0, a.Max)
	assert.Equal(t, 4.0, a.Final)

	assert.Equal(t, 0.0, ss[1].StdDev)

	flat := Flatten(ss)
	assert.Equal(t, 4.0, flat["a.final"])
	assert.Equal(t, 10.0, flat["b[x].mean"])
	assert.Equal(t, []string{"a.final", "a.max", "a.mean", "a.min"}, SortedKeys(flat)[:4])
}

func TestSummarizeEmpty(t *testing.T) {
	r, err := sim.NewTable(nil, nil, nil)
	require.NoError(t, err)
	_, err = Summarize(r)
	assert.Error(t, err)
}

func TestCompare(t *testing.T) {
	other, err := sim.NewTable(
		[]float64{0, 2, 4},
		[]string{"a", "c"},
		[][]float64{{1, 3.5, 5}, {0, 0, 0}},
	)
	require.NoError(t, err)

	diff, err := Compare(table(t), other)
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"a": 0.5}, diff)

	disjoint, _ := sim.NewTable([]float64{0}, []string{"z"}, [][]float64{{1}})
	_, err = Compare(table(t), disjoint)
	assert.Error(t, err)
}

func decayDriver(t *testing.T, opts ...sim.Option) *sim.Result {
	t.Helper()
	cfg := config.GetPreset("decay", "fast")
	cfg.Run.Stop = 10
	g, err := cfg.Build()
	require.NoError(t, err)
	integ, err := integrators.New("rk4")
	require.NoError(t, err)
	r, err := sim.Run(context.Background(), g, integ, cfg.RunConfig(), opts...)
	require.NoError(t, err)
	return r
}

func TestCollector(t *testing.T) {
	peak := NewPeak("drain")
	stab := NewStability(50)
	c := NewCollector(peak, stab)

	decayDriver(t, sim.WithObserver(c))

	values := c.Values()
	// drain = 0.3 * stock is largest at t=0.
	assert.InDelta(t, 30, values["drain.peak"], 1e-9)
	// stock = 100 e^{-0.3 t} drops below 50 after t = ln 2 / 0.3.
	assert.Greater(t, values["stability"], 0.7)
	assert.Less(t, values["stability"], 0.8)

	peak.Reset()
	stab.Reset()
	assert.True(t, math.IsNaN(peak.Value()))
	assert.Equal(t, 1.0, stab.Value())
}

func TestRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	outputs := []sim.Output{{Name: "stock", Shape: dynamo.Shape{}}}
	rec, err := NewRecorder(reg, "decay", outputs)
	require.NoError(t, err)

	r := decayDriver(t, sim.WithObserver(rec))
	rec.Finish(r)

	assert.Equal(t, 40.0, testutil.ToFloat64(rec.steps.WithLabelValues("decay")))
	assert.Equal(t, 10.0, testutil.ToFloat64(rec.time.WithLabelValues("decay")))
	final, _ := r.Series("stock")
	assert.InDelta(t, final[len(final)-1], testutil.ToFloat64(rec.values.WithLabelValues("decay", "stock")), 1e-12)
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.runs.WithLabelValues("decay", "completed")))

	again, err := NewRecorder(reg, "decay", outputs)
	require.NoError(t, err)
	assert.Same(t, rec.runs, again.runs)
}
