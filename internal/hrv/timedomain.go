package hrv

import (
	"math"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/nightbeat-data/pulse.report/internal/timeutil"
)

// TimeDomainMetrics holds the classic time-domain HRV triple.
type TimeDomainMetrics struct {
	RMSSD float64 `json:"rmssd_ms"`
	SDNN  float64 `json:"sdnn_ms"`
	PNN50 float64 `json:"pnn50_pct"`
}

// RMSSD returns the root mean square of successive RR differences (ms).
// Needs at least two intervals; ok is false otherwise.
func RMSSD(intervals []float64) (float64, bool) {
	if len(intervals) < 2 {
		return 0, false
	}
	var sumSq float64
	for i := 1; i < len(intervals); i++ {
		d := intervals[i] - intervals[i-1]
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(intervals)-1)), true
}

// SDNN returns the sample standard deviation of the intervals (ms).
// Needs at least two intervals; ok is false otherwise.
func SDNN(intervals []float64) (float64, bool) {
	if len(intervals) < 2 {
		return 0, false
	}
	return stat.StdDev(intervals, nil), true
}

// PNN50 returns the percentage of successive differences exceeding 50ms.
// Needs at least two intervals; ok is false otherwise.
func PNN50(intervals []float64) (float64, bool) {
	if len(intervals) < 2 {
		return 0, false
	}
	over := 0
	for i := 1; i < len(intervals); i++ {
		if math.Abs(intervals[i]-intervals[i-1]) > 50.0 {
			over++
		}
	}
	return 100.0 * float64(over) / float64(len(intervals)-1), true
}

// ComputeTimeDomain evaluates all three time-domain metrics over a snapshot
// of clean intervals. ok is false when fewer than two intervals are given.
func ComputeTimeDomain(intervals []float64) (TimeDomainMetrics, bool) {
	rmssd, ok := RMSSD(intervals)
	if !ok {
		return TimeDomainMetrics{}, false
	}
	sdnn, _ := SDNN(intervals)
	pnn50, _ := PNN50(intervals)
	return TimeDomainMetrics{RMSSD: rmssd, SDNN: sdnn, PNN50: pnn50}, true
}

// RollingWindowConfig holds retention and computation parameters for the
// stateful time-domain engine.
type RollingWindowConfig struct {
	Retention    time.Duration // how long samples are kept at all
	Window       time.Duration // how far back a metric computation looks
	MinIntervals int           // minimum intervals inside Window for a result
}

// DefaultRollingWindowConfig returns the standard 10min retention / 5min
// computation window configuration.
func DefaultRollingWindowConfig() RollingWindowConfig {
	return RollingWindowConfig{
		Retention:    10 * time.Minute,
		Window:       5 * time.Minute,
		MinIntervals: 30,
	}
}

type intervalSample struct {
	at time.Time
	ms float64
}

// RollingWindow buffers timestamped RR intervals and computes time-domain
// metrics over a sliding window. Entries older than the retention cap are
// trimmed on every insert. Safe for concurrent use.
type RollingWindow struct {
	mu      sync.Mutex
	cfg     RollingWindowConfig
	clock   timeutil.Clock
	samples []intervalSample
}

// NewRollingWindow creates a rolling time-domain engine. A nil clock uses
// real time.
func NewRollingWindow(cfg RollingWindowConfig, clock timeutil.Clock) *RollingWindow {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &RollingWindow{cfg: cfg, clock: clock}
}

// Add inserts one interval observed at ts and trims expired entries.
func (w *RollingWindow) Add(ts time.Time, intervalMs float64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.samples = append(w.samples, intervalSample{at: ts, ms: intervalMs})
	cutoff := w.clock.Now().Add(-w.cfg.Retention)
	trim := 0
	for trim < len(w.samples) && w.samples[trim].at.Before(cutoff) {
		trim++
	}
	if trim > 0 {
		w.samples = append(w.samples[:0], w.samples[trim:]...)
	}
}

// Len reports the number of buffered intervals.
func (w *RollingWindow) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.samples)
}

// Metrics computes time-domain metrics over intervals inside the computation
// window ending now. ok is false when fewer than MinIntervals are available.
func (w *RollingWindow) Metrics() (TimeDomainMetrics, bool) {
	intervals := w.WindowIntervals()
	if len(intervals) < w.cfg.MinIntervals {
		return TimeDomainMetrics{}, false
	}
	return ComputeTimeDomain(intervals)
}

// WindowIntervals returns a copy of the intervals inside the computation
// window ending now, oldest first.
func (w *RollingWindow) WindowIntervals() []float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	cutoff := w.clock.Now().Add(-w.cfg.Window)
	out := make([]float64, 0, len(w.samples))
	for _, s := range w.samples {
		if !s.at.Before(cutoff) {
			out = append(out, s.ms)
		}
	}
	return out
}
