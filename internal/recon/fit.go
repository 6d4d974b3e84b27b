package recon

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// SolveFit reconstructs (zenith, azimuth) from four or more offset-corrected
// measurements by solving the overdetermined plane-wave system in the
// least-squares sense (QR). Every measurement contributes one baseline
// against the first, so the residual being minimized is the timing error of
// the fitted front across all baselines.
//
// An ill-conditioned system surfaces as an error; the caller treats it as a
// per-record failure, never as a batch failure.
func SolveFit(ms []Measurement) (zenith, azimuth float64, err error) {
	if len(ms) < 4 {
		return math.NaN(), math.NaN(), fmt.Errorf("fit solver needs at least 4 measurements, got %d", len(ms))
	}

	n := len(ms) - 1
	a := mat.NewDense(n, 2, nil)
	b := mat.NewVecDense(n, nil)
	for i := 1; i < len(ms); i++ {
		a.Set(i-1, 0, ms[i].Position.X-ms[0].Position.X)
		a.Set(i-1, 1, ms[i].Position.Y-ms[0].Position.Y)
		b.SetVec(i-1, -SpeedOfLight*(ms[i].Time-ms[0].Time))
	}

	var front mat.VecDense
	if err := front.SolveVec(a, b); err != nil {
		return math.NaN(), math.NaN(), fmt.Errorf("plane-wave least squares: %w", err)
	}

	zenith, azimuth = anglesFromFront(front.AtVec(0), front.AtVec(1))
	return zenith, azimuth, nil
}
