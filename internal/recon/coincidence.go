package recon

import (
	"fmt"
	"math"

	"github.com/skyfront-data/shower.report/internal/cluster"
	"github.com/skyfront-data/shower.report/internal/monitoring"
	"github.com/skyfront-data/shower.report/internal/progress"
)

// CoincidenceSink persists multi-station reconstruction results. The output
// schema depends on the cluster's station set, so creation takes the station
// numbers whose participation is tracked.
type CoincidenceSink interface {
	Name() string
	HasReconstructions() (bool, error)
	ClearReconstructions() error
	CreateReconstructions(stationNumbers []int) error
	AppendReconstruction(CoincidenceResult) error
}

// CoincidenceReconstructor runs the multi-station pass: calibrate station
// offsets once against the present cluster, then solve every coincidence
// independently. Station offsets are cached per cluster revision; swapping in
// a cluster with a different revision forces recalibration.
type CoincidenceReconstructor struct {
	Cluster    *cluster.Cluster
	Source     EventSource
	Query      CoincidenceQuery
	Sink       CoincidenceSink
	Calibrator *Calibrator
	Overwrite  bool
	Progress   bool

	offsets         map[int]OffsetVector
	offsetsRevision string
}

// NewCoincidenceReconstructor wires a reconstructor with the default
// calibrator.
func NewCoincidenceReconstructor(cl *cluster.Cluster, source EventSource, query CoincidenceQuery, sink CoincidenceSink) *CoincidenceReconstructor {
	return &CoincidenceReconstructor{
		Cluster:    cl,
		Source:     source,
		Query:      query,
		Sink:       sink,
		Calibrator: NewCalibrator(),
	}
}

// Offsets returns the per-station offset vectors for the current cluster,
// calibrating them on first use and whenever the cluster revision changes.
// The returned map has one entry per non-reference station; the reference
// station is implicitly zero.
func (r *CoincidenceReconstructor) Offsets() (map[int]OffsetVector, error) {
	if r.offsets != nil && r.offsetsRevision == r.Cluster.Revision() {
		return r.offsets, nil
	}
	offsets, err := r.Calibrator.StationOffsets(r.Source, r.Query, r.Cluster)
	if err != nil {
		return nil, fmt.Errorf("determine station offsets: %w", err)
	}
	r.offsets = offsets
	r.offsetsRevision = r.Cluster.Revision()
	return offsets, nil
}

// ReconstructAndStore is the single entry point: prepare the destination,
// calibrate station offsets, solve every coincidence and persist the
// reconstructable ones.
func (r *CoincidenceReconstructor) ReconstructAndStore() error {
	if err := r.prepareOutput(); err != nil {
		return err
	}

	offsets, err := r.Offsets()
	if err != nil {
		return err
	}

	coincidences, err := r.Query.AllCoincidences()
	if err != nil {
		return fmt.Errorf("query coincidences: %w", err)
	}
	groups, err := r.Query.AllEvents(coincidences)
	if err != nil {
		return fmt.Errorf("query coincidence events: %w", err)
	}
	if len(groups) != len(coincidences) {
		return fmt.Errorf("coincidence query returned %d event groups for %d coincidences", len(groups), len(coincidences))
	}

	var reporter *progress.Reporter
	if r.Progress {
		reporter = progress.NewReporter("reconstructing coincidences", len(coincidences))
	}

	stored := 0
	for i, coincidence := range coincidences {
		result := r.Reconstruct(coincidence, groups[i], offsets)
		if result.Reconstructed() {
			if err := r.Sink.AppendReconstruction(result); err != nil {
				return fmt.Errorf("append reconstruction for coincidence %d: %w", coincidence.ID, err)
			}
			stored++
		}
		if reporter != nil {
			reporter.Increment()
		}
	}
	if reporter != nil {
		reporter.Finish()
	}

	monitoring.Logf("cluster %s: stored %d/%d coincidence reconstructions",
		r.Cluster.Revision(), stored, len(coincidences))
	return nil
}

// Reconstruct solves a single coincidence. Three participating stations go
// to the direct solver, four or more to the least-squares fit, anything else
// is unreconstructable. All participating stations are recorded regardless of
// the outcome.
func (r *CoincidenceReconstructor) Reconstruct(c Coincidence, events []StationEvent, offsets map[int]OffsetVector) CoincidenceResult {
	result := CoincidenceResult{
		CoincidenceID:    c.ID,
		ExtTimestamp:     c.ExtTimestamp,
		Zenith:           math.NaN(),
		Azimuth:          math.NaN(),
		ReferenceX:       c.ReferenceX,
		ReferenceY:       c.ReferenceY,
		ReferenceZenith:  c.ReferenceZenith,
		ReferenceAzimuth: c.ReferenceAzimuth,
		ReferenceSize:    c.ReferenceSize,
		ReferenceEnergy:  c.ReferenceEnergy,
	}
	for _, ev := range events {
		result.StationNumbers = append(result.StationNumbers, ev.StationNumber)
	}

	ms := r.measurements(events, offsets)
	class := Classify(len(ms))
	switch class {
	case ClassDirect:
		result.Zenith, result.Azimuth = SolveDirect(ms)
	case ClassFit:
		zenith, azimuth, err := SolveFit(ms)
		if err != nil {
			monitoring.Debugf("coincidence %d: fit solver failed: %v", c.ID, err)
			break
		}
		result.Zenith, result.Azimuth = zenith, azimuth
	}

	countRecord("coincidence", outcomeFor(class, result.Reconstructed()))
	return result
}

// measurements converts station events into solvable measurements: each
// station's best offset-corrected detector time placed on a common time base
// built from the extended timestamps and trigger corrections. Stations with
// no valid detector time or unknown geometry are dropped.
func (r *CoincidenceReconstructor) measurements(events []StationEvent, offsets map[int]OffsetVector) []Measurement {
	if len(events) == 0 {
		return nil
	}
	baseExt := events[0].ExtTimestamp
	for _, ev := range events[1:] {
		if ev.ExtTimestamp < baseExt {
			baseExt = ev.ExtTimestamp
		}
	}

	ms := make([]Measurement, 0, len(events))
	for _, ev := range events {
		station, ok := r.Cluster.Get(ev.StationNumber)
		if !ok {
			monitoring.Debugf("coincidence event from station %d outside cluster %s, skipping",
				ev.StationNumber, r.Cluster.Revision())
			continue
		}
		best, ok := ev.BestTime(offsets[ev.StationNumber])
		if !ok {
			continue
		}
		ms = append(ms, Measurement{
			ID:       ev.StationNumber,
			Position: station.Center(),
			Time:     float64(ev.ExtTimestamp-baseExt) + ev.TTrigger + best,
		})
	}
	return ms
}

func (r *CoincidenceReconstructor) prepareOutput() error {
	exists, err := r.Sink.HasReconstructions()
	if err != nil {
		return fmt.Errorf("check destination %s: %w", r.Sink.Name(), err)
	}
	if exists {
		if !r.Overwrite {
			return fmt.Errorf("%w: %s (pass overwrite to replace)", ErrOutputExists, r.Sink.Name())
		}
		if err := r.Sink.ClearReconstructions(); err != nil {
			return fmt.Errorf("clear destination %s: %w", r.Sink.Name(), err)
		}
	}
	if err := r.Sink.CreateReconstructions(r.Cluster.Numbers()); err != nil {
		return fmt.Errorf("create destination %s: %w", r.Sink.Name(), err)
	}
	return nil
}
