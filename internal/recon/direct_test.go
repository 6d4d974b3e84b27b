package recon

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skyfront-data/shower.report/internal/cluster"
)

func threeMeasurements(positions []cluster.Position, times []float64) []Measurement {
	ms := make([]Measurement, 3)
	for i := 0; i < 3; i++ {
		ms[i] = Measurement{ID: i, Position: positions[i], Time: times[i]}
	}
	return ms
}

func TestSolveDirect_RecoversKnownDirection(t *testing.T) {
	positions := []cluster.Position{
		{X: 0, Y: 10},
		{X: -8.66, Y: -5},
		{X: 8.66, Y: -5},
	}

	cases := []struct {
		name    string
		zenith  float64
		azimuth float64
	}{
		{"shallow north-east", 0.3, 0.7},
		{"steep west", 1.2, math.Pi - 0.2},
		{"south", 0.8, -math.Pi / 2},
		{"near horizon", 1.5, 2.5},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			times := planeWaveTimes(positions, tc.zenith, tc.azimuth)
			zenith, azimuth := SolveDirect(threeMeasurements(positions, times))

			assert.InDelta(t, tc.zenith, zenith, 1e-9)
			assert.InDelta(t, tc.azimuth, azimuth, 1e-9)
		})
	}
}

func TestSolveDirect_VerticalShower(t *testing.T) {
	positions := []cluster.Position{{X: 0, Y: 10}, {X: -8.66, Y: -5}, {X: 8.66, Y: -5}}
	// equal arrival times mean a vertical front
	zenith, _ := SolveDirect(threeMeasurements(positions, []float64{42, 42, 42}))
	assert.InDelta(t, 0, zenith, 1e-12)
}

func TestSolveDirect_AngleRanges(t *testing.T) {
	positions := []cluster.Position{{X: 0, Y: 10}, {X: -8.66, Y: -5}, {X: 8.66, Y: -5}}

	for zen := 0.05; zen < math.Pi/2; zen += 0.25 {
		for az := -3.0; az <= 3.0; az += 0.5 {
			times := planeWaveTimes(positions, zen, az)
			zenith, azimuth := SolveDirect(threeMeasurements(positions, times))

			require.False(t, math.IsNaN(zenith))
			assert.GreaterOrEqual(t, zenith, 0.0)
			assert.LessOrEqual(t, zenith, math.Pi/2)
			assert.Greater(t, azimuth, -math.Pi)
			assert.LessOrEqual(t, azimuth, math.Pi)
		}
	}
}

func TestSolveDirect_PermutationInvariance(t *testing.T) {
	positions := []cluster.Position{{X: 2, Y: 11}, {X: -7.5, Y: -4}, {X: 9.1, Y: -6}}
	times := planeWaveTimes(positions, 0.9, 1.3)
	ms := threeMeasurements(positions, times)

	wantZenith, wantAzimuth := SolveDirect(ms)

	perms := [][3]int{{0, 2, 1}, {1, 0, 2}, {1, 2, 0}, {2, 0, 1}, {2, 1, 0}}
	for _, p := range perms {
		permuted := []Measurement{ms[p[0]], ms[p[1]], ms[p[2]]}
		zenith, azimuth := SolveDirect(permuted)
		assert.InDelta(t, wantZenith, zenith, 1e-9)
		assert.InDelta(t, wantAzimuth, azimuth, 1e-9)
	}
}

func TestSolveDirect_DegenerateGeometry(t *testing.T) {
	// collinear detectors leave the system singular
	positions := []cluster.Position{{X: 0, Y: 0}, {X: 5, Y: 0}, {X: 10, Y: 0}}
	zenith, azimuth := SolveDirect(threeMeasurements(positions, []float64{0, 3, 6}))

	assert.True(t, math.IsNaN(zenith))
	assert.True(t, math.IsNaN(azimuth))
}

func TestSolveDirect_UnphysicalTiming(t *testing.T) {
	// time differences larger than light travel allows imply sin(zenith) > 1
	positions := []cluster.Position{{X: 0, Y: 10}, {X: -8.66, Y: -5}, {X: 8.66, Y: -5}}
	zenith, azimuth := SolveDirect(threeMeasurements(positions, []float64{0, 500, -500}))

	assert.True(t, math.IsNaN(zenith))
	assert.True(t, math.IsNaN(azimuth))
}

func TestSolveDirect_WrongCount(t *testing.T) {
	zenith, azimuth := SolveDirect([]Measurement{{}, {}})
	assert.True(t, math.IsNaN(zenith))
	assert.True(t, math.IsNaN(azimuth))
}
