package align

import (
	"fmt"
	"math"
	"strings"

	"github.com/newthinker/sigalign/internal/core"
)

// Reducer folds the values of all series at one grid index.
type Reducer func(values []float64) float64

// Reducers available by name.
var reducers = map[string]Reducer{
	"mean": meanOf,
	"min":  minOf,
	"max":  maxOf,
	"sum":  sumOf,
}

// ReducerByName looks up a reducer. Names are case-insensitive.
func ReducerByName(name string) (Reducer, error) {
	r, ok := reducers[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("unknown combination %q", name)
	}
	return r, nil
}

// Combine applies reduce elementwise across series that share one grid. The
// grid check is structural: all series must reference the same *Grid.
func Combine(reduce Reducer, signal core.SignalID, series ...core.AlignedSeries) (core.AlignedSeries, error) {
	if len(series) == 0 {
		return core.AlignedSeries{}, core.Errorf(core.ErrGridMismatch, "nothing to combine")
	}
	grid := series[0].Grid
	for _, s := range series[1:] {
		if s.Grid != grid || len(s.Values) != len(series[0].Values) {
			return core.AlignedSeries{}, core.Errorf(core.ErrGridMismatch,
				"%s does not share the grid of %s", s.Signal, series[0].Signal)
		}
	}

	out := make([]float64, len(series[0].Values))
	column := make([]float64, len(series))
	for i := range out {
		for k, s := range series {
			column[k] = s.Values[i]
		}
		out[i] = reduce(column)
	}
	return core.AlignedSeries{Signal: signal, Grid: grid, Values: out}, nil
}

// Mean averages series elementwise.
func Mean(series ...core.AlignedSeries) (core.AlignedSeries, error) {
	return Combine(meanOf, "mean", series...)
}

func meanOf(v []float64) float64 {
	return sumOf(v) / float64(len(v))
}

func sumOf(v []float64) float64 {
	var sum float64
	for _, x := range v {
		sum += x
	}
	return sum
}

func minOf(v []float64) float64 {
	m := math.Inf(1)
	for _, x := range v {
		m = math.Min(m, x)
	}
	return m
}

func maxOf(v []float64) float64 {
	m := math.Inf(-1)
	for _, x := range v {
		m = math.Max(m, x)
	}
	return m
}
