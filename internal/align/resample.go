package align

import (
	"sort"
	"time"

	"github.com/newthinker/sigalign/internal/core"
)

// Resample evaluates series at every grid timestamp using policy.
// Grid points outside the series' [first, last] range are rejected; the
// engine never extrapolates.
func Resample(series core.TimeSeries, policy core.InterpolationPolicy, grid *core.Grid) (core.AlignedSeries, error) {
	var eval func(s []core.Sample, t time.Time) float64
	switch policy {
	case core.Linear:
		eval = linearAt
	case core.PreviousValueHold:
		eval = holdAt
	default:
		return core.AlignedSeries{}, core.Errorf(core.ErrUnsupportedInterpolation, "policy %s", policy).ForSignal(series.Signal)
	}

	if series.Len() < 2 {
		return core.AlignedSeries{}, core.Errorf(core.ErrInsufficientSamples,
			"series has %d samples", series.Len()).ForSignal(series.Signal)
	}
	if err := series.Validate(); err != nil {
		return core.AlignedSeries{}, err
	}
	if grid.Len() == 0 {
		return core.AlignedSeries{}, core.Errorf(core.ErrInsufficientSamples, "empty grid").ForSignal(series.Signal)
	}

	first, last, _ := series.Bounds()
	if grid.Start().Before(first) || grid.End().After(last) {
		return core.AlignedSeries{}, core.Errorf(core.ErrDisjointRanges,
			"grid [%s, %s] outside series range [%s, %s]",
			grid.Start().Format(time.RFC3339Nano), grid.End().Format(time.RFC3339Nano),
			first.Format(time.RFC3339Nano), last.Format(time.RFC3339Nano)).ForSignal(series.Signal)
	}

	values := make([]float64, grid.Len())
	for i, t := range grid.Times {
		values[i] = eval(series.Samples, t)
	}

	return core.AlignedSeries{
		Signal: series.Signal,
		Policy: policy,
		Grid:   grid,
		Values: values,
	}, nil
}

// ResampleSignalType resolves the interpolation policy from the signal type
// and resamples.
func ResampleSignalType(series core.TimeSeries, st core.SignalType, grid *core.Grid) (core.AlignedSeries, error) {
	policy, err := st.Policy()
	if err != nil {
		if e, ok := core.AsError(err); ok {
			return core.AlignedSeries{}, e.ForSignal(series.Signal)
		}
		return core.AlignedSeries{}, err
	}
	return Resample(series, policy, grid)
}

// upper returns the index of the first sample strictly after t.
func upper(s []core.Sample, t time.Time) int {
	return sort.Search(len(s), func(i int) bool { return s[i].Time.After(t) })
}

// linearAt assumes s[0].Time <= t <= s[len-1].Time.
func linearAt(s []core.Sample, t time.Time) float64 {
	j := upper(s, t)
	if j == 0 {
		return s[0].Value
	}
	prev := s[j-1]
	if prev.Time.Equal(t) || j == len(s) {
		return prev.Value
	}
	next := s[j]
	frac := float64(t.Sub(prev.Time)) / float64(next.Time.Sub(prev.Time))
	return prev.Value + (next.Value-prev.Value)*frac
}

// holdAt returns the latest sample at or before t.
func holdAt(s []core.Sample, t time.Time) float64 {
	j := upper(s, t)
	if j == 0 {
		return s[0].Value
	}
	return s[j-1].Value
}
