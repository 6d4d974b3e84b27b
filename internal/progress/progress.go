// Package progress reports batch progress through the monitoring logger at a
// bounded rate. The time source is injectable so tests can drive it
// deterministically.
package progress

import (
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/skyfront-data/shower.report/internal/monitoring"
)

// DefaultInterval is the minimum spacing between progress lines.
const DefaultInterval = 2 * time.Second

// Reporter logs "label: done/total" lines while a batch runs. Zero total is
// allowed; the count is then reported without a denominator.
type Reporter struct {
	label    string
	total    int
	done     int
	interval time.Duration
	clock    clockwork.Clock
	lastLog  time.Time
}

// NewReporter creates a reporter for a batch of total records.
func NewReporter(label string, total int) *Reporter {
	return &Reporter{
		label:    label,
		total:    total,
		interval: DefaultInterval,
		clock:    clockwork.NewRealClock(),
	}
}

// WithClock swaps the time source. Pass nil to keep the real clock.
func (r *Reporter) WithClock(c clockwork.Clock) *Reporter {
	if c != nil {
		r.clock = c
	}
	return r
}

// WithInterval changes the minimum spacing between progress lines.
func (r *Reporter) WithInterval(d time.Duration) *Reporter {
	if d > 0 {
		r.interval = d
	}
	return r
}

// Increment records one completed record and logs if enough time has passed
// since the previous line.
func (r *Reporter) Increment() {
	r.done++
	now := r.clock.Now()
	if !r.lastLog.IsZero() && now.Sub(r.lastLog) < r.interval {
		return
	}
	r.lastLog = now
	r.log()
}

// Finish logs the final count unconditionally.
func (r *Reporter) Finish() {
	r.log()
}

// Done returns the number of records recorded so far.
func (r *Reporter) Done() int { return r.done }

func (r *Reporter) log() {
	if r.total > 0 {
		monitoring.Logf("%s: %d/%d", r.label, r.done, r.total)
		return
	}
	monitoring.Logf("%s: %d", r.label, r.done)
}
