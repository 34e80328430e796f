// Package align puts independently sampled series on one shared time grid.
//
// A pass has three steps: NewGrid intersects the valid ranges of all inputs
// and spaces a fixed number of timestamps across the overlap, Resample
// evaluates each series on that grid with its own interpolation policy, and
// Combine reduces the aligned series elementwise. Everything here is pure;
// inputs are never modified.
package align

import (
	"github.com/newthinker/sigalign/internal/core"
)

// Input is one series together with its declared signal type.
type Input struct {
	Series core.TimeSeries
	Type   core.SignalType
}

// Result is the outcome of aligning a set of inputs.
type Result struct {
	Grid   *core.Grid
	Series []core.AlignedSeries
}

// AlignAll builds the shared grid for inputs and resamples each one. Output
// order follows input order.
func AlignAll(inputs []Input, points int) (*Result, error) {
	series := make([]core.TimeSeries, len(inputs))
	for i, in := range inputs {
		series[i] = in.Series
	}

	grid, err := NewGrid(series, points)
	if err != nil {
		return nil, err
	}
	return AlignOnGrid(inputs, grid)
}

// AlignOnGrid resamples every input onto an existing grid.
func AlignOnGrid(inputs []Input, grid *core.Grid) (*Result, error) {
	aligned := make([]core.AlignedSeries, len(inputs))
	for i, in := range inputs {
		a, err := ResampleSignalType(in.Series, in.Type, grid)
		if err != nil {
			return nil, err
		}
		aligned[i] = a
	}
	return &Result{Grid: grid, Series: aligned}, nil
}
