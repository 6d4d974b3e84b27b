package recon

import "math"

// SolveDirect reconstructs (zenith, azimuth) from exactly three
// offset-corrected measurements using the closed-form plane-wave system.
//
// With u = sin(zenith)·cos(azimuth) and v = sin(zenith)·sin(azimuth), a plane
// front arriving from direction (zenith, azimuth) satisfies
//
//	c·(t_i − t_j) = −(u·(x_i − x_j) + v·(y_i − y_j))
//
// for every baseline, assuming the measurement points share an altitude. Two
// independent baselines give an exact 2×2 linear system. The solve is
// deterministic and invariant under permutation of the three measurements as
// long as each time stays bound to its position.
//
// Degenerate geometry (collinear points) or a timing pattern implying
// sin(zenith) > 1 yields (NaN, NaN).
func SolveDirect(ms []Measurement) (zenith, azimuth float64) {
	if len(ms) != 3 {
		return math.NaN(), math.NaN()
	}

	dx1 := ms[1].Position.X - ms[0].Position.X
	dy1 := ms[1].Position.Y - ms[0].Position.Y
	dx2 := ms[2].Position.X - ms[0].Position.X
	dy2 := ms[2].Position.Y - ms[0].Position.Y

	b1 := -SpeedOfLight * (ms[1].Time - ms[0].Time)
	b2 := -SpeedOfLight * (ms[2].Time - ms[0].Time)

	det := dx1*dy2 - dx2*dy1
	if det == 0 {
		return math.NaN(), math.NaN()
	}

	u := (b1*dy2 - b2*dy1) / det
	v := (dx1*b2 - dx2*b1) / det

	return anglesFromFront(u, v)
}

// anglesFromFront converts the horizontal front-normal components into
// (zenith, azimuth). A slight numerical overshoot of the unit circle is
// clamped; anything larger is an unphysical front and yields NaN.
func anglesFromFront(u, v float64) (zenith, azimuth float64) {
	sinSq := u*u + v*v
	if sinSq > 1 {
		if sinSq > 1+1e-9 {
			return math.NaN(), math.NaN()
		}
		sinSq = 1
	}
	return math.Asin(math.Sqrt(sinSq)), math.Atan2(v, u)
}
