package recon

import (
	"math"

	"github.com/skyfront-data/shower.report/internal/cluster"
)

// planeWaveTimes returns the arrival time (ns) of a plane front from
// (zenith, azimuth) at each position, with t0 at the frame origin.
func planeWaveTimes(positions []cluster.Position, zenith, azimuth float64) []float64 {
	u := math.Sin(zenith) * math.Cos(azimuth)
	v := math.Sin(zenith) * math.Sin(azimuth)
	times := make([]float64, len(positions))
	for i, p := range positions {
		times[i] = -(u*p.X + v*p.Y) / SpeedOfLight
	}
	return times
}

func detectorPositions(s cluster.Station) []cluster.Position {
	return []cluster.Position{s.Detectors[0], s.Detectors[1], s.Detectors[2], s.Detectors[3]}
}

// fakeEventSource serves in-memory per-station event sets.
type fakeEventSource map[int][]Event

func (f fakeEventSource) StationEvents(stationNumber int) ([]Event, error) {
	return f[stationNumber], nil
}

// fakeCoincidenceQuery serves in-memory coincidences with the same filtering
// semantics as the storage layer.
type fakeCoincidenceQuery struct {
	coincidences []Coincidence
	events       map[int64][]StationEvent

	betweenCalls int
}

func (f *fakeCoincidenceQuery) AllCoincidences() ([]Coincidence, error) {
	return f.coincidences, nil
}

func (f *fakeCoincidenceQuery) AllEvents(coincidences []Coincidence) ([][]StationEvent, error) {
	groups := make([][]StationEvent, len(coincidences))
	for i, c := range coincidences {
		groups[i] = f.events[c.ID]
	}
	return groups, nil
}

func (f *fakeCoincidenceQuery) CoincidencesBetween(stationNumbers []int) ([]Coincidence, error) {
	f.betweenCalls++
	var out []Coincidence
	for _, c := range f.coincidences {
		if len(f.filter(c.ID, stationNumbers)) > 0 {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeCoincidenceQuery) EventsFromStations(coincidences []Coincidence, stationNumbers []int) ([][]StationEvent, error) {
	groups := make([][]StationEvent, len(coincidences))
	for i, c := range coincidences {
		groups[i] = f.filter(c.ID, stationNumbers)
	}
	return groups, nil
}

func (f *fakeCoincidenceQuery) filter(id int64, stationNumbers []int) []StationEvent {
	var out []StationEvent
	for _, ev := range f.events[id] {
		for _, n := range stationNumbers {
			if ev.StationNumber == n {
				out = append(out, ev)
				break
			}
		}
	}
	return out
}

// fakeEventSink records appended rows in memory.
type fakeEventSink struct {
	name    string
	rows    []EventResult
	offsets []OffsetVector
	runIDs  []string
	created bool
}

func (f *fakeEventSink) Name() string { return f.name }

func (f *fakeEventSink) HasReconstructions() (bool, error) { return f.created, nil }

func (f *fakeEventSink) ClearReconstructions() error {
	f.rows = nil
	f.created = false
	return nil
}

func (f *fakeEventSink) CreateReconstructions() error {
	f.created = true
	return nil
}

func (f *fakeEventSink) AppendReconstruction(row EventResult) error {
	f.rows = append(f.rows, row)
	return nil
}

func (f *fakeEventSink) StoreDetectorOffsets(runID string, offsets OffsetVector) error {
	f.runIDs = append(f.runIDs, runID)
	f.offsets = append(f.offsets, offsets)
	return nil
}

// fakeCoincidenceSink records appended rows in memory.
type fakeCoincidenceSink struct {
	name     string
	rows     []CoincidenceResult
	stations []int
	created  bool
}

func (f *fakeCoincidenceSink) Name() string { return f.name }

func (f *fakeCoincidenceSink) HasReconstructions() (bool, error) { return f.created, nil }

func (f *fakeCoincidenceSink) ClearReconstructions() error {
	f.rows = nil
	f.created = false
	return nil
}

func (f *fakeCoincidenceSink) CreateReconstructions(stationNumbers []int) error {
	f.stations = stationNumbers
	f.created = true
	return nil
}

func (f *fakeCoincidenceSink) AppendReconstruction(row CoincidenceResult) error {
	f.rows = append(f.rows, row)
	return nil
}
