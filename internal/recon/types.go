// Package recon reconstructs the arrival direction of cosmic-ray air showers
// from relative arrival times measured by four-detector stations. It contains
// the timing-offset calibrators, the direct (three-measurement) and
// least-squares (four-plus) plane-wave solvers, and the per-run orchestration
// that applies fresh offsets and persists best-effort results.
package recon

import (
	"math"

	"github.com/skyfront-data/shower.report/internal/cluster"
)

// SpeedOfLight is the shower-front propagation speed in meters per
// nanosecond; detector times are recorded in nanoseconds and positions in
// meters.
const SpeedOfLight = 0.299792458

// Timing sentinels. A detector column holding one of these carries no
// measurement and is excluded from all statistics and solving. The convention
// is preserved verbatim from the acquisition chain; values are not
// reinterpreted even where a legitimate reading could collide with them.
const (
	SentinelNoSignal = -1
	SentinelNoData   = -999
)

// ValidTime reports whether t is an actual timing measurement.
func ValidTime(t float64) bool {
	return t != SentinelNoSignal && t != SentinelNoData
}

// OffsetVector holds one systematic timing offset per detector slot, in
// nanoseconds. The reference detector's entry is zero by construction.
// Offsets are computed once per run and shared read-only across all solves.
type OffsetVector [4]float64

// Event is one station-level trigger: four detector arrival times within the
// trace (ns) and the corresponding particle densities.
type Event struct {
	EventID      int64
	Timestamp    int64
	ExtTimestamp uint64 // absolute trigger time, ns
	TTrigger     float64
	T            [4]float64
	N            [4]float64
}

// ValidDetectors returns the indices (0-based) of detectors with a real
// timing measurement.
func (e Event) ValidDetectors() []int {
	ids := make([]int, 0, 4)
	for i, t := range e.T {
		if ValidTime(t) {
			ids = append(ids, i)
		}
	}
	return ids
}

// BestTime returns the station's representative arrival time: the minimum
// offset-corrected valid detector time. ok is false when no detector has a
// valid measurement.
func (e Event) BestTime(offsets OffsetVector) (best float64, ok bool) {
	best = math.Inf(1)
	for i, t := range e.T {
		if !ValidTime(t) {
			continue
		}
		if corrected := t - offsets[i]; corrected < best {
			best = corrected
			ok = true
		}
	}
	return best, ok
}

// StationEvent is an event attributed to a station within a coincidence.
type StationEvent struct {
	StationNumber int
	Event
}

// Coincidence is a time-correlated group of station events judged to
// originate from the same shower. The Reference fields carry an associated
// ground-truth or independent estimate of the shower when one exists and are
// NaN otherwise.
type Coincidence struct {
	ID           int64
	Timestamp    int64
	ExtTimestamp uint64

	ReferenceX       float64
	ReferenceY       float64
	ReferenceZenith  float64
	ReferenceAzimuth float64
	ReferenceSize    float64
	ReferenceEnergy  float64
}

// EventResult is one single-station reconstruction. Zenith and Azimuth are
// radians; NaN marks an unreconstructable event, which is filtered out before
// persistence.
type EventResult struct {
	EventID      int64
	ExtTimestamp uint64
	MinN         float64
	Zenith       float64
	Azimuth      float64
	D            [4]bool
}

// Reconstructed reports whether both angles are finite.
func (r EventResult) Reconstructed() bool {
	return !math.IsNaN(r.Zenith) && !math.IsNaN(r.Azimuth)
}

// CoincidenceResult is one multi-station reconstruction.
type CoincidenceResult struct {
	CoincidenceID int64
	ExtTimestamp  uint64
	Zenith        float64
	Azimuth       float64

	ReferenceX       float64
	ReferenceY       float64
	ReferenceZenith  float64
	ReferenceAzimuth float64
	ReferenceSize    float64
	ReferenceEnergy  float64

	StationNumbers []int
}

// Reconstructed reports whether both angles are finite.
func (r CoincidenceResult) Reconstructed() bool {
	return !math.IsNaN(r.Zenith) && !math.IsNaN(r.Azimuth)
}

// Measurement is one offset-corrected arrival time bound to the geometry it
// was measured at. ID keeps the detector index or station number associated
// with its position through the solve.
type Measurement struct {
	ID       int
	Position cluster.Position
	Time     float64
}

// EventSource provides a station's full event set. Calibration reads the
// whole set once per run; the per-record pass iterates the same snapshot.
type EventSource interface {
	StationEvents(stationNumber int) ([]Event, error)
}

// CoincidenceQuery provides access to stored coincidences and the station
// events belonging to them.
type CoincidenceQuery interface {
	AllCoincidences() ([]Coincidence, error)
	AllEvents(coincidences []Coincidence) ([][]StationEvent, error)
	CoincidencesBetween(stationNumbers []int) ([]Coincidence, error)
	EventsFromStations(coincidences []Coincidence, stationNumbers []int) ([][]StationEvent, error)
}
