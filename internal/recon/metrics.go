package recon

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	recordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "shower_report",
			Subsystem: "recon",
			Name:      "records_total",
			Help:      "Reconstruction records processed by kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)

	calibrationFitFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "shower_report",
			Subsystem: "recon",
			Name:      "calibration_fit_failures_total",
			Help:      "Timing-offset Gaussian fits that did not converge and defaulted to zero.",
		},
	)
)

// countRecord tracks one per-record dispatch outcome. "failed" marks records
// whose solver raised a numerical error.
func countRecord(kind string, outcome string) {
	recordsTotal.WithLabelValues(kind, outcome).Inc()
}
