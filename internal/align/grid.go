package align

import (
	"time"

	"github.com/newthinker/sigalign/internal/core"
)

// DefaultPoints is the grid resolution used when none is configured.
const DefaultPoints = 500

// NewGrid builds an evenly spaced grid of points timestamps over the overlap
// of all series' [first, last] ranges. Both bounds are grid points.
func NewGrid(series []core.TimeSeries, points int) (*core.Grid, error) {
	if len(series) == 0 {
		return nil, core.Errorf(core.ErrInsufficientSamples, "no series to align")
	}
	if points < 2 {
		return nil, core.Errorf(core.ErrConfigInvalid, "grid needs at least 2 points, got %d", points)
	}

	start, end, err := Overlap(series)
	if err != nil {
		return nil, err
	}
	if span := end.Sub(start); span < time.Duration(points-1) {
		return nil, core.Errorf(core.ErrConfigInvalid,
			"overlap of %s cannot hold %d distinct grid points", span, points)
	}
	return Linspace(start, end, points), nil
}

// Overlap returns the intersection of every series' [first, last] range.
// The result does not depend on the order of series.
func Overlap(series []core.TimeSeries) (start, end time.Time, err error) {
	for i, s := range series {
		if s.Len() < 2 {
			return time.Time{}, time.Time{}, core.Errorf(core.ErrInsufficientSamples,
				"series has %d samples", s.Len()).ForSignal(s.Signal)
		}
		if err := s.Validate(); err != nil {
			return time.Time{}, time.Time{}, err
		}
		first, last, _ := s.Bounds()
		if i == 0 || first.After(start) {
			start = first
		}
		if i == 0 || last.Before(end) {
			end = last
		}
	}
	if !start.Before(end) {
		return time.Time{}, time.Time{}, core.Errorf(core.ErrDisjointRanges,
			"overlap start %s not before end %s",
			start.Format(time.RFC3339Nano), end.Format(time.RFC3339Nano))
	}
	return start, end, nil
}

// Linspace returns n evenly spaced timestamps from start to end inclusive.
// The timestamps are strictly ascending only if end-start is at least n-1
// nanoseconds.
func Linspace(start, end time.Time, n int) *core.Grid {
	times := make([]time.Time, n)
	span := float64(end.Sub(start))
	for i := 0; i < n-1; i++ {
		offset := time.Duration(span * float64(i) / float64(n-1))
		times[i] = start.Add(offset)
	}
	times[n-1] = end
	return &core.Grid{Times: times}
}

// GridFromTimes wraps externally supplied timestamps as a grid. The
// timestamps must be strictly ascending.
func GridFromTimes(times []time.Time) (*core.Grid, error) {
	if len(times) == 0 {
		return nil, core.Errorf(core.ErrInsufficientSamples, "empty grid")
	}
	for i := 1; i < len(times); i++ {
		if !times[i].After(times[i-1]) {
			return nil, core.Errorf(core.ErrUnsortedSeries, "grid point %d not after its predecessor", i)
		}
	}
	cp := make([]time.Time, len(times))
	copy(cp, times)
	return &core.Grid{Times: cp}, nil
}
