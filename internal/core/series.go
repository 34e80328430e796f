package core

import (
	"fmt"
	"sort"
	"time"
)

// TimeRange is the half-open interval [Start, End).
type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Validate checks End >= Start.
func (r TimeRange) Validate() error {
	if r.Start.IsZero() || r.End.IsZero() {
		return fmt.Errorf("time range bounds must be set")
	}
	if r.End.Before(r.Start) {
		return fmt.Errorf("time range end %s before start %s",
			r.End.Format(time.RFC3339Nano), r.Start.Format(time.RFC3339Nano))
	}
	return nil
}

// Contains reports whether t lies in [Start, End).
func (r TimeRange) Contains(t time.Time) bool {
	return !t.Before(r.Start) && t.Before(r.End)
}

// Duration returns End - Start.
func (r TimeRange) Duration() time.Duration {
	return r.End.Sub(r.Start)
}

// LastWindow returns the range [now-d, now).
func LastWindow(now time.Time, d time.Duration) TimeRange {
	return TimeRange{Start: now.Add(-d), End: now}
}

// Sample is one observation keyed by its source timestamp.
type Sample struct {
	Time  time.Time `json:"time"`
	Value float64   `json:"value"`
}

// TimeSeries holds samples strictly ascending by time.
type TimeSeries struct {
	Signal  SignalID `json:"signal"`
	Samples []Sample `json:"samples"`
}

// Len returns the number of samples.
func (s TimeSeries) Len() int {
	return len(s.Samples)
}

// Bounds returns the first and last timestamps. ok is false for an empty series.
func (s TimeSeries) Bounds() (first, last time.Time, ok bool) {
	if len(s.Samples) == 0 {
		return time.Time{}, time.Time{}, false
	}
	return s.Samples[0].Time, s.Samples[len(s.Samples)-1].Time, true
}

// Validate checks the strictly-ascending precondition.
func (s TimeSeries) Validate() error {
	for i := 1; i < len(s.Samples); i++ {
		if !s.Samples[i].Time.After(s.Samples[i-1].Time) {
			return Errorf(ErrUnsortedSeries, "sample %d at %s not after %s", i,
				s.Samples[i].Time.Format(time.RFC3339Nano),
				s.Samples[i-1].Time.Format(time.RFC3339Nano)).ForSignal(s.Signal)
		}
	}
	return nil
}

// SortSamples sorts samples by time in place and drops duplicate timestamps,
// keeping the last one seen.
func SortSamples(samples []Sample) []Sample {
	if len(samples) < 2 {
		return samples
	}
	sort.SliceStable(samples, func(i, j int) bool {
		return samples[i].Time.Before(samples[j].Time)
	})
	out := samples[:1]
	for _, s := range samples[1:] {
		if s.Time.Equal(out[len(out)-1].Time) {
			out[len(out)-1] = s
			continue
		}
		out = append(out, s)
	}
	return out
}

// InterpolationPolicy selects how a series is reconstructed between samples.
type InterpolationPolicy int

const (
	// Linear interpolates between bracketing samples.
	Linear InterpolationPolicy = iota + 1
	// PreviousValueHold repeats the latest sample (zero-order hold).
	PreviousValueHold
)

func (p InterpolationPolicy) String() string {
	switch p {
	case Linear:
		return "linear"
	case PreviousValueHold:
		return "previous"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

// AlignedSeries is a series resampled onto a shared grid.
type AlignedSeries struct {
	Signal SignalID            `json:"signal"`
	Policy InterpolationPolicy `json:"-"`
	Grid   *Grid               `json:"-"`
	Values []float64           `json:"values"`
}

// Grid is the ordered set of timestamps aligned series are sampled at.
type Grid struct {
	Times []time.Time `json:"times"`
}

// Len returns the number of grid points.
func (g *Grid) Len() int {
	if g == nil {
		return 0
	}
	return len(g.Times)
}

// Start returns the first grid timestamp.
func (g *Grid) Start() time.Time { return g.Times[0] }

// End returns the last grid timestamp.
func (g *Grid) End() time.Time { return g.Times[len(g.Times)-1] }
