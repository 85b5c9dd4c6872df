package sleep

import (
	"log"
	"sort"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"
)

// Baseline estimation constants.
const (
	// DefaultBaselineWindow bounds how far back pre-bed samples are
	// considered during recalculation.
	DefaultBaselineWindow = 4 * time.Hour

	// MinBaselineSamples is the minimum number of qualifying samples for a
	// recalculation to succeed.
	MinBaselineSamples = 5
)

type baselineSample struct {
	heartRate float64
	rmssd     float64
	hrStdDev  float64
	at        time.Time
}

// BaselineEstimator accumulates awake-period physiology and recomputes the
// adaptive pre-bed baseline on demand. Medians, not means, so a stray spike
// in the pre-bed window cannot drag the reference. The baseline only changes
// through explicit Recalculate calls.
type BaselineEstimator struct {
	mu      sync.Mutex
	window  time.Duration
	samples []baselineSample
	current *Baseline
}

// NewBaselineEstimator creates an estimator with the given trailing window;
// zero uses the default.
func NewBaselineEstimator(window time.Duration) *BaselineEstimator {
	if window <= 0 {
		window = DefaultBaselineWindow
	}
	return &BaselineEstimator{window: window}
}

// Seed installs a previously persisted baseline (cross-restart continuity).
func (e *BaselineEstimator) Seed(b Baseline) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.current = &b
}

// AddSample records one awake-period observation. Callers must only feed
// samples taken while the wearer is not asleep.
func (e *BaselineEstimator) AddSample(heartRate, rmssd, hrStdDev float64, at time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.samples = append(e.samples, baselineSample{heartRate, rmssd, hrStdDev, at})

	cutoff := at.Add(-e.window)
	trim := 0
	for trim < len(e.samples) && e.samples[trim].at.Before(cutoff) {
		trim++
	}
	if trim > 0 {
		e.samples = append(e.samples[:0], e.samples[trim:]...)
	}
}

// Recalculate recomputes the baseline from the trailing window ending at
// now. ok is false (and the previous baseline is kept) when fewer than five
// qualifying samples exist.
func (e *BaselineEstimator) Recalculate(now time.Time) (Baseline, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	cutoff := now.Add(-e.window)
	var hr, rmssd, sd []float64
	for _, s := range e.samples {
		if s.at.Before(cutoff) || s.at.After(now) {
			continue
		}
		hr = append(hr, s.heartRate)
		rmssd = append(rmssd, s.rmssd)
		sd = append(sd, s.hrStdDev)
	}
	if len(hr) < MinBaselineSamples {
		log.Printf("sleep: baseline recalculation skipped, %d samples (%d required)", len(hr), MinBaselineSamples)
		if e.current != nil {
			return *e.current, false
		}
		return Baseline{}, false
	}

	b := Baseline{
		HeartRate: median(hr),
		RMSSD:     median(rmssd),
		HRStdDev:  median(sd),
	}
	e.current = &b
	return b, true
}

// Current returns the active baseline, ok false when none exists yet.
func (e *BaselineEstimator) Current() (Baseline, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current == nil {
		return Baseline{}, false
	}
	return *e.current, true
}

// SampleCount reports buffered awake-period samples.
func (e *BaselineEstimator) SampleCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.samples)
}

func median(xs []float64) float64 {
	sorted := make([]float64, len(xs))
	copy(sorted, xs)
	sort.Float64s(sorted)
	return stat.Quantile(0.5, stat.Empirical, sorted, nil)
}
