package recon

import (
	"fmt"

	"github.com/skyfront-data/shower.report/internal/cluster"
	"github.com/skyfront-data/shower.report/internal/gaussfit"
	"github.com/skyfront-data/shower.report/internal/monitoring"
)

// Default calibration parameters. The detector histogram spans ±~100 ns in
// 2.5 ns bins with edges on a half-bin offset; the station histogram window
// is derived from geometry at calibration time.
const (
	defaultReferenceDetector = 1 // detector 2
	defaultReferenceStation  = 501
	defaultStationBins       = 50
	initialFitSigma          = 10.0
)

// Calibrator estimates systematic timing offsets from accumulated event and
// coincidence data. The reference choices are acknowledged approximations
// (altitude effects ignored, no per-subcluster reference), kept configurable
// rather than baked in.
type Calibrator struct {
	// ReferenceDetector is the 0-based detector slot whose offset is fixed
	// at zero within a station.
	ReferenceDetector int
	// ReferenceStation is the station whose offset is fixed at zero within
	// a cluster.
	ReferenceStation int
	// DetectorEdges are the histogram bin edges (ns) for detector
	// time-difference distributions.
	DetectorEdges []float64
	// StationBins is the bin count for station time-difference histograms;
	// the edge range is derived from the pair's distance.
	StationBins int
	// Plotter, when non-nil, writes a diagnostic plot of every histogram
	// and fitted curve.
	Plotter *OffsetPlotter
}

// NewCalibrator returns a Calibrator with the conventional defaults.
func NewCalibrator() *Calibrator {
	return &Calibrator{
		ReferenceDetector: defaultReferenceDetector,
		ReferenceStation:  defaultReferenceStation,
		DetectorEdges:     gaussfit.Arange(-98.75, 100, 2.5),
		StationBins:       defaultStationBins,
	}
}

// DetectorOffsets estimates the per-detector offsets of one station from its
// event set. For each non-reference detector the offset is the mean of a
// Gaussian fitted to the histogram of time differences against the reference
// detector, restricted to events where both timings are valid. A fit that
// does not converge leaves that offset at zero; calibration never aborts a
// run.
func (c *Calibrator) DetectorOffsets(events []Event) OffsetVector {
	var offsets OffsetVector
	ref := c.ReferenceDetector

	for det := 0; det < 4; det++ {
		if det == ref {
			continue
		}
		var dt []float64
		for _, e := range events {
			if ValidTime(e.T[det]) && ValidTime(e.T[ref]) {
				dt = append(dt, e.T[det]-e.T[ref])
			}
		}
		offsets[det] = c.fitOffset(fmt.Sprintf("detector_dt_d%d", det+1), dt, c.DetectorEdges)
	}
	return offsets
}

// StationOffsets estimates a combined OffsetVector for every non-reference
// station in the cluster: that station's detector offsets shifted uniformly
// by its offset against the reference station. The station offset is fitted
// from two-station coincidence time differences, histogrammed over the pair's
// maximum light-travel time so the search window follows the geometry.
// Coincidences whose filtered station count is not exactly two are skipped.
func (c *Calibrator) StationOffsets(source EventSource, query CoincidenceQuery, cl *cluster.Cluster) (map[int]OffsetVector, error) {
	refNumber := c.ReferenceStation
	if _, ok := cl.Get(refNumber); !ok {
		return nil, fmt.Errorf("reference station %d not in cluster %q", refNumber, cl.Revision())
	}

	detectorOffsets := make(map[int]OffsetVector, len(cl.Numbers()))
	for _, number := range cl.Numbers() {
		events, err := source.StationEvents(number)
		if err != nil {
			return nil, fmt.Errorf("read events for station %d: %w", number, err)
		}
		detectorOffsets[number] = c.DetectorOffsets(events)
	}
	refOffsets := detectorOffsets[refNumber]

	offsets := make(map[int]OffsetVector)
	for _, station := range cl.Stations() {
		if station.Number == refNumber {
			continue
		}

		pair := []int{refNumber, station.Number}
		coincidences, err := query.CoincidencesBetween(pair)
		if err != nil {
			return nil, fmt.Errorf("query coincidences for stations %v: %w", pair, err)
		}
		groups, err := query.EventsFromStations(coincidences, pair)
		if err != nil {
			return nil, fmt.Errorf("query coincidence events for stations %v: %w", pair, err)
		}

		stationDetOffsets := detectorOffsets[station.Number]
		var dt []float64
		for _, events := range groups {
			// The same station can appear twice in a coincidence; only
			// clean two-station pairs contribute.
			if len(events) != 2 {
				continue
			}
			refEvent, event := events[0], events[1]
			if refEvent.StationNumber != refNumber {
				refEvent, event = event, refEvent
			}
			refBest, refOK := refEvent.BestTime(refOffsets)
			best, ok := event.BestTime(stationDetOffsets)
			if !refOK || !ok {
				continue
			}
			dt = append(dt,
				float64(int64(event.ExtTimestamp)-int64(refEvent.ExtTimestamp))+
					(event.TTrigger-refEvent.TTrigger)+
					(best-refBest))
		}

		r, err := cl.DistanceBetween(station.Number, refNumber)
		if err != nil {
			return nil, err
		}
		window := r / SpeedOfLight
		edges := gaussfit.Span(-window, window, c.StationBins)
		stationOffset := c.fitOffset(fmt.Sprintf("station_dt_s%d", station.Number), dt, edges)

		combined := stationDetOffsets
		for i := range combined {
			combined[i] += stationOffset
		}
		offsets[station.Number] = combined
	}
	return offsets, nil
}

// fitOffset runs the histogram + Gaussian fit for one time-difference sample
// set. The fail-soft policy lives here: a fit that cannot converge yields a
// zero offset and the run continues.
func (c *Calibrator) fitOffset(name string, dt []float64, edges []float64) float64 {
	if len(edges) < 2 {
		calibrationFitFailures.Inc()
		return 0
	}
	centers, counts := gaussfit.Histogram(dt, edges)
	p0 := gaussfit.Params{Amplitude: float64(len(dt)), Mean: 0, Sigma: initialFitSigma}

	fitted, err := gaussfit.Fit(centers, counts, p0)
	if c.Plotter != nil {
		if perr := c.Plotter.PlotFit(name, centers, counts, fitted, err == nil); perr != nil {
			monitoring.Logf("offset plot %s failed: %v", name, perr)
		}
	}
	if err != nil {
		calibrationFitFailures.Inc()
		monitoring.Debugf("offset fit %s did not converge (%d samples), using 0", name, len(dt))
		return 0
	}
	return fitted.Mean
}
