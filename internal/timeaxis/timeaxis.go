// Package timeaxis maps observation timestamps onto the numeric axis used by
// the fitting engine. Offsets are day-resolution floats relative to the first
// timestamp, so raw fit coefficients come out in per-day units.
package timeaxis

import (
	"errors"
	"fmt"
	"time"

	"gonum.org/v1/gonum/floats"
)

// EvalPoints is the fixed number of resample points on the evaluation axis.
// Both fit strategies evaluate onto the same axis so their outputs can be
// overlaid directly.
const EvalPoints = 120

// secondsPerDay converts between time.Duration seconds and day offsets.
const secondsPerDay = 86400.0

// ErrDegenerate reports an axis that cannot support a fit: fewer than two
// timestamps, or a time span of zero.
var ErrDegenerate = errors.New("timeaxis: degenerate time axis")

// Axis holds the normalized offsets for a series of timestamps together with
// the fixed-size evaluation axis spanning them.
type Axis struct {
	epoch   time.Time
	offsets []float64
	eval    []float64
}

// New normalizes an ordered sequence of timestamps. Timestamps must be
// non-decreasing with at least two distinct values; otherwise ErrDegenerate
// is returned so callers fail before any divide-by-zero downstream.
func New(timestamps []time.Time) (*Axis, error) {
	if len(timestamps) < 2 {
		return nil, fmt.Errorf("%w: need at least 2 timestamps, got %d", ErrDegenerate, len(timestamps))
	}

	epoch := timestamps[0]
	offsets := make([]float64, len(timestamps))
	for i, t := range timestamps {
		if i > 0 && t.Before(timestamps[i-1]) {
			return nil, fmt.Errorf("timeaxis: timestamps out of order at index %d", i)
		}
		offsets[i] = t.Sub(epoch).Seconds() / secondsPerDay
	}

	if offsets[len(offsets)-1] == offsets[0] {
		return nil, fmt.Errorf("%w: all timestamps identical", ErrDegenerate)
	}

	eval := make([]float64, EvalPoints)
	floats.Span(eval, offsets[0], offsets[len(offsets)-1])

	return &Axis{epoch: epoch, offsets: offsets, eval: eval}, nil
}

// Epoch returns the first timestamp, the zero point of the offset axis.
func (a *Axis) Epoch() time.Time { return a.epoch }

// Offsets returns the per-sample day offsets relative to the epoch.
func (a *Axis) Offsets() []float64 { return a.offsets }

// Eval returns the evenly spaced evaluation offsets spanning the sample range.
func (a *Axis) Eval() []float64 { return a.eval }

// Denormalize maps a day offset back to a timestamp.
func (a *Axis) Denormalize(offset float64) time.Time {
	return a.epoch.Add(time.Duration(offset * secondsPerDay * float64(time.Second)))
}

// EvalTimes returns the evaluation axis as timestamps.
func (a *Axis) EvalTimes() []time.Time {
	times := make([]time.Time, len(a.eval))
	for i, off := range a.eval {
		times[i] = a.Denormalize(off)
	}
	return times
}
