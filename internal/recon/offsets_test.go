package recon

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skyfront-data/shower.report/internal/cluster"
)

// syntheticEvents builds events whose detector times carry the given true
// offsets plus seeded Gaussian jitter around a common arrival.
func syntheticEvents(n int, trueOffsets OffsetVector, sigma float64, seed int64) []Event {
	rng := rand.New(rand.NewSource(seed))
	events := make([]Event, n)
	for i := range events {
		e := Event{
			EventID:      int64(i),
			ExtTimestamp: uint64(1_000_000_000 + i*5000),
			N:            [4]float64{1, 1, 1, 1},
		}
		for d := 0; d < 4; d++ {
			e.T[d] = 100 + trueOffsets[d] + rng.NormFloat64()*sigma
		}
		events[i] = e
	}
	return events
}

func TestDetectorOffsets_RecoversInjectedOffsets(t *testing.T) {
	truth := OffsetVector{5, 0, -3, 7.5}
	events := syntheticEvents(600, truth, 3, 42)

	offsets := NewCalibrator().DetectorOffsets(events)

	assert.Equal(t, 0.0, offsets[1], "reference detector stays zero")
	for _, d := range []int{0, 2, 3} {
		assert.InDeltaf(t, truth[d], offsets[d], 0.6, "detector %d", d+1)
	}
}

func TestDetectorOffsets_Idempotent(t *testing.T) {
	events := syntheticEvents(300, OffsetVector{2, 0, -1, 4}, 3, 7)
	c := NewCalibrator()

	first := c.DetectorOffsets(events)
	second := c.DetectorOffsets(events)

	assert.Equal(t, first, second)
}

func TestDetectorOffsets_SentinelsExcluded(t *testing.T) {
	truth := OffsetVector{4, 0, 0, 0}
	events := syntheticEvents(600, truth, 3, 11)
	// knock out detector 1 in half the events; the survivors still carry
	// the same offset
	for i := range events {
		if i%2 == 0 {
			events[i].T[0] = SentinelNoSignal
		}
		if i%3 == 0 {
			events[i].T[3] = SentinelNoData
		}
	}

	offsets := NewCalibrator().DetectorOffsets(events)
	assert.InDelta(t, 4, offsets[0], 0.8)
	assert.InDelta(t, 0, offsets[3], 0.8)
}

func TestDetectorOffsets_FailSoft(t *testing.T) {
	c := NewCalibrator()

	// no events at all: every fit sees an empty histogram
	assert.Equal(t, OffsetVector{}, c.DetectorOffsets(nil))

	// events with no overlap against the reference detector
	events := []Event{
		{T: [4]float64{10, SentinelNoSignal, 12, 13}},
		{T: [4]float64{11, SentinelNoData, 14, 9}},
	}
	assert.Equal(t, OffsetVector{}, c.DetectorOffsets(events))
}

func TestDetectorOffsets_CustomReference(t *testing.T) {
	truth := OffsetVector{5, 2, 0, -4}
	events := syntheticEvents(600, truth, 3, 13)

	c := NewCalibrator()
	c.ReferenceDetector = 2

	offsets := c.DetectorOffsets(events)
	assert.Equal(t, 0.0, offsets[2])
	assert.InDelta(t, 5, offsets[0], 0.6)
	assert.InDelta(t, 2, offsets[1], 0.6)
	assert.InDelta(t, -4, offsets[3], 0.6)
}

// stationPairFixture builds a two-station cluster plus coincidences whose
// station 502 times are shifted by delta ns against station 501.
func stationPairFixture(t *testing.T, nCoincidences int, delta, sigma float64) (*cluster.Cluster, fakeEventSource, *fakeCoincidenceQuery) {
	t.Helper()
	ref := cluster.DiamondStation(501, cluster.Position{}, 5)
	other := cluster.DiamondStation(502, cluster.Position{X: 60, Y: 80}, 5) // 100 m apart
	cl, err := cluster.New("pair-rev", ref, other)
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(99))
	query := &fakeCoincidenceQuery{events: make(map[int64][]StationEvent)}
	for i := 0; i < nCoincidences; i++ {
		id := int64(i)
		ext := uint64(2_000_000_000 + i*100_000)
		base := 40 + rng.NormFloat64()*sigma
		shifted := 40 + delta + rng.NormFloat64()*sigma

		query.coincidences = append(query.coincidences, Coincidence{ID: id, ExtTimestamp: ext})
		query.events[id] = []StationEvent{
			{StationNumber: 501, Event: Event{ExtTimestamp: ext, TTrigger: 10, T: [4]float64{base, base, base, base}}},
			{StationNumber: 502, Event: Event{ExtTimestamp: ext, TTrigger: 10, T: [4]float64{shifted, shifted, shifted, shifted}}},
		}
	}

	// no station-level event history: detector offsets fall back to zero
	source := fakeEventSource{501: nil, 502: nil}
	return cl, source, query
}

func TestStationOffsets_RecoversInjectedOffset(t *testing.T) {
	const delta = 15.0
	cl, source, query := stationPairFixture(t, 60, delta, 4)

	offsets, err := NewCalibrator().StationOffsets(source, query, cl)
	require.NoError(t, err)

	require.Contains(t, offsets, 502)
	assert.NotContains(t, offsets, 501, "reference station has no entry")
	for d := 0; d < 4; d++ {
		assert.InDelta(t, delta, offsets[502][d], 2.0)
	}
}

func TestStationOffsets_SkipsNonPairGroups(t *testing.T) {
	cl, source, query := stationPairFixture(t, 40, 10, 4)
	// a degenerate group: same station twice plus a stray third entry
	query.coincidences = append(query.coincidences, Coincidence{ID: 9999, ExtTimestamp: 5_000_000_000})
	query.events[9999] = []StationEvent{
		{StationNumber: 501, Event: Event{T: [4]float64{1, 1, 1, 1}}},
		{StationNumber: 501, Event: Event{T: [4]float64{2, 2, 2, 2}}},
		{StationNumber: 502, Event: Event{T: [4]float64{3, 3, 3, 3}}},
	}

	offsets, err := NewCalibrator().StationOffsets(source, query, cl)
	require.NoError(t, err)
	assert.InDelta(t, 10, offsets[502][0], 2.0)
}

func TestStationOffsets_NoCoincidences(t *testing.T) {
	ref := cluster.DiamondStation(501, cluster.Position{}, 5)
	other := cluster.DiamondStation(503, cluster.Position{X: 200}, 5)
	cl, err := cluster.New("sparse", ref, other)
	require.NoError(t, err)

	query := &fakeCoincidenceQuery{events: map[int64][]StationEvent{}}
	offsets, err := NewCalibrator().StationOffsets(fakeEventSource{}, query, cl)

	require.NoError(t, err)
	assert.Equal(t, OffsetVector{}, offsets[503], "empty histogram defaults to zero offset")
}

func TestStationOffsets_MissingReferenceStation(t *testing.T) {
	st := cluster.DiamondStation(601, cluster.Position{}, 5)
	other := cluster.DiamondStation(602, cluster.Position{X: 50}, 5)
	cl, err := cluster.New("no-ref", st, other)
	require.NoError(t, err)

	_, err = NewCalibrator().StationOffsets(fakeEventSource{}, &fakeCoincidenceQuery{}, cl)
	assert.Error(t, err)
}

func TestStationOffsets_CombinesDetectorAndStationOffsets(t *testing.T) {
	const delta = 12.0
	cl, _, query := stationPairFixture(t, 60, delta, 4)

	// give station 502 a detector-level offset on top of the station shift
	detTruth := OffsetVector{6, 0, 0, 0}
	source := fakeEventSource{
		501: nil,
		502: syntheticEvents(600, detTruth, 3, 21),
	}

	offsets, err := NewCalibrator().StationOffsets(source, query, cl)
	require.NoError(t, err)

	// detector 1 carries detector offset + station offset, detector 2 only
	// the station offset
	diff := offsets[502][0] - offsets[502][1]
	assert.InDelta(t, 6, diff, 1.0)
}

func TestStationOffsets_WindowDerivedFromGeometry(t *testing.T) {
	// an injected offset beyond the light-travel window cannot be recovered;
	// the fit sees an empty histogram and fails soft to zero
	ref := cluster.DiamondStation(501, cluster.Position{}, 5)
	near := cluster.DiamondStation(502, cluster.Position{X: 3, Y: 4}, 5) // 5 m => ±16.7 ns window
	cl, err := cluster.New("near-rev", ref, near)
	require.NoError(t, err)

	query := &fakeCoincidenceQuery{events: make(map[int64][]StationEvent)}
	for i := 0; i < 40; i++ {
		id := int64(i)
		ext := uint64(3_000_000_000 + i*50_000)
		query.coincidences = append(query.coincidences, Coincidence{ID: id, ExtTimestamp: ext})
		query.events[id] = []StationEvent{
			{StationNumber: 501, Event: Event{ExtTimestamp: ext, T: [4]float64{10, 10, 10, 10}}},
			{StationNumber: 502, Event: Event{ExtTimestamp: ext, T: [4]float64{400, 400, 400, 400}}},
		}
	}

	offsets, err := NewCalibrator().StationOffsets(fakeEventSource{}, query, cl)
	require.NoError(t, err)
	assert.Equal(t, OffsetVector{}, offsets[502])
}

func TestOffsetVector_AppliedInBestTime(t *testing.T) {
	e := Event{T: [4]float64{50, 48, 52, 51}}
	best, ok := e.BestTime(OffsetVector{10, 0, 0, 0})
	require.True(t, ok)
	assert.Equal(t, 40.0, best)
	assert.False(t, math.IsNaN(best))
}
