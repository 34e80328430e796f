package align

import (
	"math/rand"
	"testing"
	"time"

	"github.com/newthinker/sigalign/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

func at(sec float64) time.Time {
	return epoch.Add(time.Duration(sec * float64(time.Second)))
}

func series(id core.SignalID, pts ...[2]float64) core.TimeSeries {
	s := core.TimeSeries{Signal: id}
	for _, p := range pts {
		s.Samples = append(s.Samples, core.Sample{Time: at(p[0]), Value: p[1]})
	}
	return s
}

func grid(t *testing.T, secs ...float64) *core.Grid {
	t.Helper()
	times := make([]time.Time, len(secs))
	for i, s := range secs {
		times[i] = at(s)
	}
	g, err := GridFromTimes(times)
	require.NoError(t, err)
	return g
}

func TestResample_LinearScenario(t *testing.T) {
	a := series("A", [2]float64{0, 20.0}, [2]float64{10, 30.0})

	got, err := Resample(a, core.Linear, grid(t, 0, 5, 10))
	require.NoError(t, err)
	assert.Equal(t, []float64{20.0, 25.0, 30.0}, got.Values)
	assert.Equal(t, core.SignalID("A"), got.Signal)
}

func TestResample_HoldScenario(t *testing.T) {
	b := series("B", [2]float64{0, 400.0}, [2]float64{6, 402.0})

	g, err := NewGrid([]core.TimeSeries{b}, 3)
	require.NoError(t, err)
	require.Equal(t, 3, g.Len())
	assert.True(t, g.Times[1].Equal(at(3)))

	got, err := Resample(b, core.PreviousValueHold, g)
	require.NoError(t, err)
	assert.Equal(t, []float64{400.0, 400.0, 402.0}, got.Values)
}

func TestNewGrid_DisjointRanges(t *testing.T) {
	a := series("A", [2]float64{0, 1}, [2]float64{10, 2})
	b := series("B", [2]float64{20, 1}, [2]float64{30, 2})

	_, err := NewGrid([]core.TimeSeries{a, b}, 10)
	assert.ErrorIs(t, err, core.ErrDisjointRanges)
}

func TestNewGrid_TouchingRangesAreDisjoint(t *testing.T) {
	a := series("A", [2]float64{0, 1}, [2]float64{10, 2})
	b := series("B", [2]float64{10, 1}, [2]float64{30, 2})

	_, err := NewGrid([]core.TimeSeries{a, b}, 10)
	assert.ErrorIs(t, err, core.ErrDisjointRanges)
}

func TestInsufficientSamples(t *testing.T) {
	single := series("S", [2]float64{5, 1.0})

	_, err := Resample(single, core.Linear, grid(t, 5))
	require.ErrorIs(t, err, core.ErrInsufficientSamples)
	e, ok := core.AsError(err)
	require.True(t, ok)
	assert.Equal(t, core.SignalID("S"), e.Signal)

	_, err = Resample(single, core.PreviousValueHold, grid(t, 5))
	assert.ErrorIs(t, err, core.ErrInsufficientSamples)

	_, err = NewGrid([]core.TimeSeries{single}, 10)
	assert.ErrorIs(t, err, core.ErrInsufficientSamples)

	_, err = NewGrid([]core.TimeSeries{{Signal: "empty"}}, 10)
	assert.ErrorIs(t, err, core.ErrInsufficientSamples)
}

func TestResample_RejectsUnsorted(t *testing.T) {
	s := series("U", [2]float64{5, 1}, [2]float64{0, 2})
	_, err := Resample(s, core.Linear, grid(t, 1))
	assert.ErrorIs(t, err, core.ErrUnsortedSeries)

	_, err = NewGrid([]core.TimeSeries{s}, 3)
	assert.ErrorIs(t, err, core.ErrUnsortedSeries)
}

func TestResample_NoExtrapolation(t *testing.T) {
	s := series("A", [2]float64{0, 1}, [2]float64{10, 2})

	_, err := Resample(s, core.Linear, grid(t, 0, 11))
	assert.ErrorIs(t, err, core.ErrDisjointRanges)

	_, err = Resample(s, core.PreviousValueHold, grid(t, -1, 5))
	assert.ErrorIs(t, err, core.ErrDisjointRanges)
}

func TestResample_UnsupportedPolicy(t *testing.T) {
	s := series("A", [2]float64{0, 1}, [2]float64{10, 2})
	_, err := Resample(s, core.InterpolationPolicy(42), grid(t, 0, 10))
	assert.ErrorIs(t, err, core.ErrUnsupportedInterpolation)

	_, err = ResampleSignalType(s, "Cubic", grid(t, 0, 10))
	require.ErrorIs(t, err, core.ErrUnsupportedInterpolation)
	e, _ := core.AsError(err)
	assert.Equal(t, core.SignalID("A"), e.Signal)
}

func randomSeries(r *rand.Rand, id core.SignalID, n int) core.TimeSeries {
	s := core.TimeSeries{Signal: id}
	t := r.Float64() * 10
	for i := 0; i < n; i++ {
		t += 0.01 + r.Float64()*3
		s.Samples = append(s.Samples, core.Sample{Time: at(t), Value: r.NormFloat64() * 100})
	}
	return s
}

func TestLinear_RoundTrip(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	for trial := 0; trial < 50; trial++ {
		s := randomSeries(r, "R", 2+r.Intn(30))
		times := make([]time.Time, s.Len())
		for i, smp := range s.Samples {
			times[i] = smp.Time
		}
		g, err := GridFromTimes(times)
		require.NoError(t, err)

		got, err := Resample(s, core.Linear, g)
		require.NoError(t, err)
		for i, smp := range s.Samples {
			assert.Equal(t, smp.Value, got.Values[i], "trial %d sample %d", trial, i)
		}
	}
}

func TestHold_LatestSampleAtOrBefore(t *testing.T) {
	r := rand.New(rand.NewSource(11))
	for trial := 0; trial < 50; trial++ {
		s := randomSeries(r, "H", 2+r.Intn(30))
		g, err := NewGrid([]core.TimeSeries{s}, 200)
		require.NoError(t, err)

		got, err := Resample(s, core.PreviousValueHold, g)
		require.NoError(t, err)

		for i, gt := range g.Times {
			var want float64
			for _, smp := range s.Samples {
				if !smp.Time.After(gt) {
					want = smp.Value
				}
			}
			assert.Equal(t, want, got.Values[i], "trial %d point %d", trial, i)
		}
	}
}

func TestHold_ConstantBetweenSamples(t *testing.T) {
	s := series("H", [2]float64{0, 1}, [2]float64{4, 7}, [2]float64{9, 3})
	got, err := Resample(s, core.PreviousValueHold, grid(t, 0, 1, 2, 3.999, 4, 5, 8.5, 9))
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 1, 1, 1, 7, 7, 7, 3}, got.Values)
}

func TestNewGrid_OrderIndependent(t *testing.T) {
	r := rand.New(rand.NewSource(3))
	for trial := 0; trial < 20; trial++ {
		in := []core.TimeSeries{
			randomSeries(r, "a", 10),
			randomSeries(r, "b", 10),
			randomSeries(r, "c", 10),
		}
		start, end, err := Overlap(in)
		if err != nil {
			require.ErrorIs(t, err, core.ErrDisjointRanges)
			continue
		}

		shuffled := []core.TimeSeries{in[2], in[0], in[1]}
		s2, e2, err := Overlap(shuffled)
		require.NoError(t, err)
		assert.True(t, start.Equal(s2))
		assert.True(t, end.Equal(e2))
	}
}

func TestNewGrid_BoundsWithinEverySeries(t *testing.T) {
	a := series("A", [2]float64{0, 1}, [2]float64{3, 1}, [2]float64{10, 2})
	b := series("B", [2]float64{2, 1}, [2]float64{12, 2})

	g, err := NewGrid([]core.TimeSeries{a, b}, 5)
	require.NoError(t, err)
	assert.True(t, g.Start().Equal(at(2)))
	assert.True(t, g.End().Equal(at(10)))
	assert.Equal(t, 5, g.Len())
	assert.True(t, g.Times[2].Equal(at(6)))
}

func TestNewGrid_RejectsTooFewPoints(t *testing.T) {
	a := series("A", [2]float64{0, 1}, [2]float64{10, 2})
	_, err := NewGrid([]core.TimeSeries{a}, 1)
	assert.ErrorIs(t, err, core.ErrConfigInvalid)
}

func TestNewGrid_OverlapTooShortForPoints(t *testing.T) {
	a := core.TimeSeries{Signal: "A", Samples: []core.Sample{
		{Time: epoch, Value: 1},
		{Time: epoch.Add(10 * time.Nanosecond), Value: 2},
	}}

	_, err := NewGrid([]core.TimeSeries{a}, DefaultPoints)
	assert.ErrorIs(t, err, core.ErrConfigInvalid)

	g, err := NewGrid([]core.TimeSeries{a}, 11)
	require.NoError(t, err)
	for i := 1; i < g.Len(); i++ {
		assert.True(t, g.Times[i].After(g.Times[i-1]), "point %d", i)
	}
}

func TestGridFromTimes_RejectsUnsorted(t *testing.T) {
	_, err := GridFromTimes([]time.Time{at(1), at(1)})
	assert.ErrorIs(t, err, core.ErrUnsortedSeries)

	_, err = GridFromTimes(nil)
	assert.Error(t, err)
}

func TestCombine_Mean(t *testing.T) {
	// Linear press temperature averaged with held extruder temperature.
	press := series("press", [2]float64{0, 20}, [2]float64{10, 30})
	extruder := series("extruder", [2]float64{0, 40}, [2]float64{6, 60}, [2]float64{10, 80})

	res, err := AlignAll([]Input{
		{Series: press, Type: core.SignalLinear},
		{Series: extruder, Type: core.SignalHold},
	}, 3)
	require.NoError(t, err)
	require.Len(t, res.Series, 2)
	assert.Equal(t, []float64{20, 25, 30}, res.Series[0].Values)
	assert.Equal(t, []float64{40, 40, 80}, res.Series[1].Values)

	avg, err := Mean(res.Series...)
	require.NoError(t, err)
	assert.Equal(t, []float64{30, 32.5, 55}, avg.Values)
	assert.Same(t, res.Grid, avg.Grid)
}

func TestCombine_Reducers(t *testing.T) {
	g := grid(t, 0, 1)
	a := core.AlignedSeries{Signal: "a", Grid: g, Values: []float64{1, 5}}
	b := core.AlignedSeries{Signal: "b", Grid: g, Values: []float64{3, -5}}

	tests := []struct {
		name string
		want []float64
	}{
		{"mean", []float64{2, 0}},
		{"MIN", []float64{1, -5}},
		{"max", []float64{3, 5}},
		{"sum", []float64{4, 0}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r, err := ReducerByName(tc.name)
			require.NoError(t, err)
			out, err := Combine(r, "combined", a, b)
			require.NoError(t, err)
			assert.Equal(t, tc.want, out.Values)
		})
	}

	_, err := ReducerByName("median")
	assert.Error(t, err)
}

func TestCombine_GridMismatch(t *testing.T) {
	a := core.AlignedSeries{Signal: "a", Grid: grid(t, 0, 1), Values: []float64{1, 2}}
	// Same timestamps, different grid instance.
	b := core.AlignedSeries{Signal: "b", Grid: grid(t, 0, 1), Values: []float64{1, 2}}

	_, err := Mean(a, b)
	assert.ErrorIs(t, err, core.ErrGridMismatch)

	_, err = Mean()
	assert.ErrorIs(t, err, core.ErrGridMismatch)
}

func TestAlignAll_PropagatesFirstError(t *testing.T) {
	ok := series("ok", [2]float64{0, 1}, [2]float64{10, 2})
	_, err := AlignAll([]Input{
		{Series: ok, Type: core.SignalLinear},
		{Series: ok, Type: "Unknown"},
	}, 4)
	assert.ErrorIs(t, err, core.ErrUnsupportedInterpolation)
}

func TestLinspace_EndpointsExact(t *testing.T) {
	start := at(0.123)
	end := at(7.891)
	g := Linspace(start, end, DefaultPoints)
	require.Equal(t, DefaultPoints, g.Len())
	assert.True(t, g.Start().Equal(start))
	assert.True(t, g.End().Equal(end))
	for i := 1; i < g.Len(); i++ {
		assert.True(t, g.Times[i].After(g.Times[i-1]))
	}
}

func TestAlignOnGrid_SharesGrid(t *testing.T) {
	g := grid(t, 0, 5, 10)
	res, err := AlignOnGrid([]Input{
		{Series: series("press", [2]float64{0, 20}, [2]float64{10, 30}), Type: core.SignalLinear},
		{Series: series("extruder", [2]float64{0, 400}, [2]float64{10, 402}), Type: core.SignalHold},
	}, g)
	require.NoError(t, err)
	require.Len(t, res.Series, 2)
	assert.Same(t, g, res.Series[0].Grid)
	assert.Same(t, g, res.Series[1].Grid)
	assert.Equal(t, []float64{20, 25, 30}, res.Series[0].Values)
	assert.Equal(t, []float64{400, 400, 402}, res.Series[1].Values)
}
