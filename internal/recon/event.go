package recon

import (
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"

	"github.com/skyfront-data/shower.report/internal/cluster"
	"github.com/skyfront-data/shower.report/internal/monitoring"
	"github.com/skyfront-data/shower.report/internal/progress"
)

// ErrOutputExists is returned when a reconstruction destination already holds
// results and overwrite was not requested. It aborts the run before any
// computation.
var ErrOutputExists = errors.New("reconstruction output already exists")

// EventSink persists single-station reconstruction results. Implemented by
// the storage layer; the reconstructor never inspects storage state beyond
// this surface.
type EventSink interface {
	// Name identifies the destination in error messages.
	Name() string
	HasReconstructions() (bool, error)
	ClearReconstructions() error
	CreateReconstructions() error
	AppendReconstruction(EventResult) error
	// StoreDetectorOffsets records the calibrated offsets applied during
	// this run.
	StoreDetectorOffsets(runID string, offsets OffsetVector) error
}

// EventReconstructor runs the single-station pass: calibrate detector
// offsets once, then solve every event independently and persist the
// successful results.
type EventReconstructor struct {
	Station    cluster.Station
	Source     EventSource
	Sink       EventSink
	Calibrator *Calibrator
	Overwrite  bool
	Progress   bool

	// Offsets and RunID are populated by ReconstructAndStore.
	Offsets OffsetVector
	RunID   string
}

// NewEventReconstructor wires a reconstructor with the default calibrator.
func NewEventReconstructor(station cluster.Station, source EventSource, sink EventSink) *EventReconstructor {
	return &EventReconstructor{
		Station:    station,
		Source:     source,
		Sink:       sink,
		Calibrator: NewCalibrator(),
	}
}

// ReconstructAndStore is the single entry point: prepare the destination,
// calibrate, persist the offsets, solve all events and persist every
// reconstructable one. Per-event failures never abort the batch; an empty
// output is a valid outcome.
func (r *EventReconstructor) ReconstructAndStore() error {
	if err := r.prepareOutput(); err != nil {
		return err
	}

	events, err := r.Source.StationEvents(r.Station.Number)
	if err != nil {
		return fmt.Errorf("read events for station %d: %w", r.Station.Number, err)
	}

	r.Offsets = r.Calibrator.DetectorOffsets(events)
	r.RunID = uuid.New().String()
	if err := r.Sink.StoreDetectorOffsets(r.RunID, r.Offsets); err != nil {
		return fmt.Errorf("store detector offsets: %w", err)
	}

	var reporter *progress.Reporter
	if r.Progress {
		reporter = progress.NewReporter(fmt.Sprintf("reconstructing station %d", r.Station.Number), len(events))
	}

	stored := 0
	for _, event := range events {
		result := r.Reconstruct(event)
		if result.Reconstructed() {
			if err := r.Sink.AppendReconstruction(result); err != nil {
				return fmt.Errorf("append reconstruction for event %d: %w", event.EventID, err)
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

	monitoring.Logf("station %d: stored %d/%d reconstructions (offsets %v)",
		r.Station.Number, stored, len(events), r.Offsets)
	return nil
}

// Reconstruct solves a single event. Three valid detector timings go to the
// direct solver, four to the least-squares fit, anything else is
// unreconstructable. The valid-detector flags are recorded either way.
func (r *EventReconstructor) Reconstruct(event Event) EventResult {
	ids := event.ValidDetectors()

	result := EventResult{
		EventID:      event.EventID,
		ExtTimestamp: event.ExtTimestamp,
		Zenith:       math.NaN(),
		Azimuth:      math.NaN(),
	}
	minN := math.Inf(1)
	for _, id := range ids {
		result.D[id] = true
		if event.N[id] < minN {
			minN = event.N[id]
		}
	}
	if len(ids) > 0 {
		result.MinN = minN
	}

	class := Classify(len(ids))
	switch class {
	case ClassDirect:
		result.Zenith, result.Azimuth = SolveDirect(r.measurements(event, ids))
	case ClassFit:
		zenith, azimuth, err := SolveFit(r.measurements(event, ids))
		if err != nil {
			monitoring.Debugf("event %d: fit solver failed: %v", event.EventID, err)
			break
		}
		result.Zenith, result.Azimuth = zenith, azimuth
	}

	countRecord("event", outcomeFor(class, result.Reconstructed()))
	return result
}

// measurements binds each valid detector's offset-corrected time to its
// position, preserving the id association through the solve.
func (r *EventReconstructor) measurements(event Event, ids []int) []Measurement {
	ms := make([]Measurement, 0, len(ids))
	for _, id := range ids {
		ms = append(ms, Measurement{
			ID:       id,
			Position: r.Station.Detectors[id],
			Time:     event.T[id] - r.Offsets[id],
		})
	}
	return ms
}

func (r *EventReconstructor) prepareOutput() error {
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
	if err := r.Sink.CreateReconstructions(); err != nil {
		return fmt.Errorf("create destination %s: %w", r.Sink.Name(), err)
	}
	return nil
}

// outcomeFor labels the metrics outcome: the class name when the solve
// produced angles, "failed" when a solver came up empty.
func outcomeFor(class SolverClass, reconstructed bool) string {
	if class == ClassUnreconstructable {
		return class.String()
	}
	if !reconstructed {
		return "failed"
	}
	return class.String()
}
