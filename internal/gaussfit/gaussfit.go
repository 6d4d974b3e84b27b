// Package gaussfit fits Gaussian curves to binned samples. It backs the
// timing-offset calibration, where the mean of a fitted time-difference
// distribution is the systematic offset between two detectors or stations.
package gaussfit

import (
	"errors"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat"
)

// ErrNoConverge is returned when a fit cannot produce usable parameters:
// an empty histogram, an optimizer failure, or a non-finite result. Callers
// decide the fallback policy (the calibrators default the offset to zero).
var ErrNoConverge = errors.New("gaussfit: fit did not converge")

// Params describes a Gaussian curve a·exp(-(x-μ)²/(2σ²)).
type Params struct {
	Amplitude float64
	Mean      float64
	Sigma     float64
}

// Gauss evaluates the curve described by p at x.
func (p Params) Gauss(x float64) float64 {
	d := x - p.Mean
	return p.Amplitude * math.Exp(-d*d/(2*p.Sigma*p.Sigma))
}

// Arange returns bin edges from start up to (but excluding) stop in steps of
// width, mirroring how the calibration bins are conventionally laid out.
func Arange(start, stop, width float64) []float64 {
	var edges []float64
	for x := start; x < stop; x += width {
		edges = append(edges, x)
	}
	return edges
}

// Span returns n evenly spaced edges covering [lo, hi].
func Span(lo, hi float64, n int) []float64 {
	return floats.Span(make([]float64, n), lo, hi)
}

// Histogram bins samples into the given edges and returns the bin centers and
// counts. Samples outside the edge range are dropped; the input slice is not
// modified.
func Histogram(samples, edges []float64) (centers, counts []float64) {
	nbins := len(edges) - 1
	centers = make([]float64, nbins)
	for i := 0; i < nbins; i++ {
		centers[i] = (edges[i] + edges[i+1]) / 2
	}

	in := make([]float64, 0, len(samples))
	for _, s := range samples {
		if s >= edges[0] && s < edges[nbins] {
			in = append(in, s)
		}
	}
	sort.Float64s(in)

	counts = stat.Histogram(make([]float64, nbins), edges, in, nil)
	return centers, counts
}

// Fit finds the Gaussian parameters minimizing the squared residuals against
// the binned counts, starting from p0. It returns ErrNoConverge when the
// histogram is empty or the optimizer fails to produce finite parameters.
func Fit(centers, counts []float64, p0 Params) (Params, error) {
	if len(centers) != len(counts) {
		return Params{}, errors.New("gaussfit: centers and counts length mismatch")
	}
	if floats.Sum(counts) == 0 {
		return Params{}, ErrNoConverge
	}

	problem := optimize.Problem{
		Func: func(p []float64) float64 {
			cur := Params{Amplitude: p[0], Mean: p[1], Sigma: p[2]}
			var sse float64
			for i, x := range centers {
				r := counts[i] - cur.Gauss(x)
				sse += r * r
			}
			return sse
		},
	}

	init := []float64{p0.Amplitude, p0.Mean, p0.Sigma}
	result, err := optimize.Minimize(problem, init, nil, &optimize.NelderMead{})
	if err != nil {
		return Params{}, ErrNoConverge
	}
	if err := result.Status.Err(); err != nil {
		return Params{}, ErrNoConverge
	}

	fitted := Params{Amplitude: result.X[0], Mean: result.X[1], Sigma: result.X[2]}
	if !isFinite(fitted.Amplitude) || !isFinite(fitted.Mean) || !isFinite(fitted.Sigma) || fitted.Sigma == 0 {
		return Params{}, ErrNoConverge
	}
	return fitted, nil
}

// FitHistogram bins the samples and fits in one step.
func FitHistogram(samples, edges []float64, p0 Params) (Params, error) {
	centers, counts := Histogram(samples, edges)
	return Fit(centers, counts, p0)
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
